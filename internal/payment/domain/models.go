package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/store"
)

const TableName = "payments"

type Method string

const (
	MethodCash         Method = "cash"
	MethodBankTransfer Method = "bank_transfer"
	MethodCreditCard   Method = "credit_card"
	MethodCheck        Method = "check"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodCreditCard, MethodCheck:
		return true
	}
	return false
}

// Payment is an immutable receipt against a customer account, optionally
// targeted at one invoice.
type Payment struct {
	ID              snowflake.ID    `gorm:"primaryKey" bson:"_id" json:"id"`
	CustomerID      snowflake.ID    `gorm:"not null" bson:"customer_id" json:"customer_id"`
	InvoiceID       *snowflake.ID   `gorm:"index" bson:"invoice_id" json:"invoice_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(14,2);not null" bson:"amount" json:"amount"`
	PaymentDate     time.Time       `gorm:"not null" bson:"payment_date" json:"payment_date"`
	Method          Method          `gorm:"type:text;not null" bson:"method" json:"method"`
	ReferenceNumber string          `gorm:"type:text" bson:"reference_number" json:"reference_number,omitempty"`
	Notes           string          `gorm:"type:text" bson:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time       `gorm:"not null" bson:"created_at" json:"created_at"`
}

func Schema() store.Schema {
	return store.Schema{
		Table: TableName,
		Model: &Payment{},
		Indexes: []store.Index{
			{Name: "ix_payments_customer_date", Fields: []string{"customer_id", "payment_date"}},
		},
	}
}
