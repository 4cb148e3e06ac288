package domain

import (
	"slices"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/store"
	"gorm.io/datatypes"
)

const TableName = "invoices"

type InvoiceStatus string

const (
	InvoiceStatusPending       InvoiceStatus = "pending"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusOverdue       InvoiceStatus = "overdue"
)

// InvoiceItem is an immutable invoice line. SaleID links the line to the
// dispensing event it bills.
type InvoiceItem struct {
	Description string          `json:"description" bson:"description"`
	Quantity    decimal.Decimal `json:"quantity" bson:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price" bson:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price" bson:"total_price"`
	SaleID      *snowflake.ID   `json:"sale_id,omitempty" bson:"sale_id,omitempty"`
}

// Invoice bills a customer. Version increases on every payment applied and
// guards concurrent updates.
type Invoice struct {
	ID                snowflake.ID                      `gorm:"primaryKey" bson:"_id" json:"id"`
	CustomerID        snowflake.ID                      `gorm:"not null;index" bson:"customer_id" json:"customer_id"`
	InvoiceNumber     string                            `gorm:"type:varchar(64);not null" bson:"invoice_number" json:"invoice_number"`
	IssueDate         time.Time                         `gorm:"not null" bson:"issue_date" json:"issue_date"`
	DueDate           time.Time                         `gorm:"not null" bson:"due_date" json:"due_date"`
	TotalAmount       decimal.Decimal                   `gorm:"type:decimal(14,2);not null" bson:"total_amount" json:"total_amount"`
	PaidAmount        decimal.Decimal                   `gorm:"type:decimal(14,2);not null" bson:"paid_amount" json:"paid_amount"`
	Status            InvoiceStatus                     `gorm:"type:varchar(32);not null;index" bson:"status" json:"status"`
	Notes             string                            `gorm:"type:text" bson:"notes" json:"notes"`
	Items             datatypes.JSONSlice[InvoiceItem]  `bson:"items" json:"items"`
	AppliedPaymentIDs datatypes.JSONSlice[snowflake.ID] `bson:"applied_payment_ids" json:"applied_payment_ids"`
	Version           int64                             `gorm:"not null" bson:"version" json:"version"`
	CreatedAt         time.Time                         `gorm:"not null" bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time                         `gorm:"not null" bson:"updated_at" json:"updated_at"`
}

func (i Invoice) Outstanding() decimal.Decimal {
	return i.TotalAmount.Sub(i.PaidAmount)
}

func (i Invoice) HasPayment(paymentID snowflake.ID) bool {
	return slices.Contains(i.AppliedPaymentIDs, paymentID)
}

// StatusFor derives the invoice status from the paid amount. A paid amount at
// or above the total is paid; callers reject overpayment before persisting.
func StatusFor(total, paid decimal.Decimal, dueDate, now time.Time) InvoiceStatus {
	switch {
	case paid.IsZero():
		if dueDate.Before(now) {
			return InvoiceStatusOverdue
		}
		return InvoiceStatusPending
	case paid.LessThan(total):
		return InvoiceStatusPartiallyPaid
	default:
		return InvoiceStatusPaid
	}
}

func Schema() store.Schema {
	return store.Schema{
		Table: TableName,
		Model: &Invoice{},
		Indexes: []store.Index{
			{Name: "ux_invoices_number", Fields: []string{"invoice_number"}, Unique: true},
			{Name: "ix_invoices_customer_issue", Fields: []string{"customer_id", "issue_date"}},
			{Name: "ix_invoices_status_due", Fields: []string{"status", "due_date"}},
		},
	}
}
