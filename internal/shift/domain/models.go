package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/store"
	"gorm.io/datatypes"
)

const TableName = "shifts"

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

type FuelReading struct {
	FuelTypeID     snowflake.ID     `json:"fuel_type_id" bson:"fuel_type_id"`
	InitialReading decimal.Decimal  `json:"initial_reading" bson:"initial_reading"`
	FinalReading   *decimal.Decimal `json:"final_reading" bson:"final_reading"`
}

// Shift is one employee's session on a dispenser.
//
// ActiveEmployeeID mirrors EmployeeID while the shift is active and is cleared
// when it completes. A unique sparse index on it keeps at most one active shift
// per employee.
type Shift struct {
	ID               snowflake.ID                     `gorm:"primaryKey" bson:"_id" json:"id"`
	StationID        snowflake.ID                     `gorm:"not null;index" bson:"station_id" json:"station_id"`
	EmployeeID       snowflake.ID                     `gorm:"not null;index" bson:"employee_id" json:"employee_id"`
	DispenserID      snowflake.ID                     `gorm:"not null" bson:"dispenser_id" json:"dispenser_id"`
	ActiveEmployeeID *snowflake.ID                    `gorm:"column:active_employee_id" bson:"active_employee_id,omitempty" json:"-"`
	StartTime        time.Time                        `gorm:"not null" bson:"start_time" json:"start_time"`
	EndTime          *time.Time                       `bson:"end_time" json:"end_time"`
	InitialCash      decimal.Decimal                  `gorm:"type:decimal(14,2);not null" bson:"initial_cash" json:"initial_cash"`
	FinalCash        *decimal.Decimal                 `gorm:"type:decimal(14,2)" bson:"final_cash" json:"final_cash"`
	FuelReadings     datatypes.JSONSlice[FuelReading] `bson:"fuel_readings" json:"fuel_readings"`
	Notes            string                           `gorm:"type:text" bson:"notes" json:"notes"`
	Status           Status                           `gorm:"type:text;not null" bson:"status" json:"status"`
	CreatedAt        time.Time                        `gorm:"not null" bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time                        `gorm:"not null" bson:"updated_at" json:"updated_at"`
}

func (s Shift) IsActive() bool {
	return s.Status == StatusActive
}

func Schema() store.Schema {
	return store.Schema{
		Table: TableName,
		Model: &Shift{},
		Indexes: []store.Index{
			{Name: "ux_shifts_active_employee", Fields: []string{"active_employee_id"}, Unique: true, Sparse: true},
			{Name: "ix_shifts_station_start", Fields: []string{"station_id", "start_time"}},
		},
	}
}
