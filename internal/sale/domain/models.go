package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/store"
)

const TableName = "sales"

type PaymentMethod string

const (
	PaymentMethodCash          PaymentMethod = "cash"
	PaymentMethodCreditCard    PaymentMethod = "credit_card"
	PaymentMethodDebitCard     PaymentMethod = "debit_card"
	PaymentMethodCreditAccount PaymentMethod = "credit_account"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCreditCard, PaymentMethodDebitCard, PaymentMethodCreditAccount:
		return true
	}
	return false
}

// Sale is a single dispensing event. It is immutable except for InvoiceID,
// which is stamped once when the sale is billed.
type Sale struct {
	ID              snowflake.ID    `gorm:"primaryKey" bson:"_id" json:"id"`
	StationID       snowflake.ID    `gorm:"not null" bson:"station_id" json:"station_id"`
	DispenserID     snowflake.ID    `gorm:"not null" bson:"dispenser_id" json:"dispenser_id"`
	EmployeeID      snowflake.ID    `gorm:"not null" bson:"employee_id" json:"employee_id"`
	CustomerID      *snowflake.ID   `gorm:"index" bson:"customer_id" json:"customer_id"`
	VehicleID       *snowflake.ID   `gorm:"index" bson:"vehicle_id" json:"vehicle_id"`
	FuelTypeID      snowflake.ID    `gorm:"not null" bson:"fuel_type_id" json:"fuel_type_id"`
	QuantityLiters  decimal.Decimal `gorm:"type:decimal(14,3);not null" bson:"quantity_liters" json:"quantity_liters"`
	PricePerLiter   decimal.Decimal `gorm:"type:decimal(14,3);not null" bson:"price_per_liter" json:"price_per_liter"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(14,2);not null" bson:"total_amount" json:"total_amount"`
	PaymentMethod   PaymentMethod   `gorm:"type:text;not null" bson:"payment_method" json:"payment_method"`
	TransactionDate time.Time       `gorm:"not null" bson:"transaction_date" json:"transaction_date"`
	InvoiceID       *snowflake.ID   `gorm:"index" bson:"invoice_id" json:"invoice_id"`
	CreatedAt       time.Time       `gorm:"not null" bson:"created_at" json:"created_at"`
}

func (s Sale) Invoiced() bool {
	return s.InvoiceID != nil && *s.InvoiceID != 0
}

func Schema() store.Schema {
	return store.Schema{
		Table: TableName,
		Model: &Sale{},
		Indexes: []store.Index{
			{Name: "ix_sales_station_date", Fields: []string{"station_id", "transaction_date"}},
			{Name: "ix_sales_cash_window", Fields: []string{"station_id", "payment_method", "transaction_date"}},
		},
	}
}
