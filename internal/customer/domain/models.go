package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/store"
)

const TableName = "customers"

type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return true
	}
	return false
}

// Customer is a credit account. CurrentBalance is positive when the customer
// owes the station and negative when the station holds a credit.
type Customer struct {
	ID             snowflake.ID    `gorm:"primaryKey" bson:"_id" json:"id"`
	Name           string          `gorm:"type:text;not null" bson:"name" json:"name"`
	CreditLimit    decimal.Decimal `gorm:"type:decimal(14,2);not null" bson:"credit_limit" json:"credit_limit"`
	CurrentBalance decimal.Decimal `gorm:"type:decimal(14,2);not null" bson:"current_balance" json:"current_balance"`
	PaymentTerms   string          `gorm:"type:text;not null" bson:"payment_terms" json:"payment_terms"`
	Status         Status          `gorm:"type:text;not null;index" bson:"status" json:"status"`
	CreatedAt      time.Time       `gorm:"not null" bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" bson:"updated_at" json:"updated_at"`
}

// OverCreditLimit reports whether the balance exceeds the credit limit.
func (c Customer) OverCreditLimit() bool {
	return c.CurrentBalance.GreaterThan(c.CreditLimit)
}

func Schema() store.Schema {
	return store.Schema{
		Table: TableName,
		Model: &Customer{},
		Indexes: []store.Index{
			{Name: "ix_customers_created_at", Fields: []string{"created_at"}},
		},
	}
}
