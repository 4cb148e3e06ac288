package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/fuelledger/internal/store"
	"gorm.io/datatypes"
)

const TableName = "ledger_entries"

// LedgerEntryDirection represents debit or credit postings.
type LedgerEntryDirection string

const (
	LedgerEntryDirectionDebit  LedgerEntryDirection = "debit"
	LedgerEntryDirectionCredit LedgerEntryDirection = "credit"
)

type LedgerSourceType string

const (
	SourceTypeInvoice LedgerSourceType = "invoice" // credit sale billed to a customer
	SourceTypePayment LedgerSourceType = "payment" // customer payment received
)

type LedgerAccountCode string

const (
	// Assets
	AccountCodeAccountsReceivable LedgerAccountCode = "accounts_receivable"
	AccountCodeCash               LedgerAccountCode = "cash"

	// Revenue
	AccountCodeFuelRevenue LedgerAccountCode = "fuel_revenue"
)

// LedgerEntryLine is a double-entry posting line.
type LedgerEntryLine struct {
	Account   LedgerAccountCode    `json:"account" bson:"account"`
	Direction LedgerEntryDirection `json:"direction" bson:"direction"`
	Amount    decimal.Decimal      `json:"amount" bson:"amount"`
}

// LedgerEntry is the immutable journal record for one financial event. An
// event posts at most once per (SourceType, SourceID).
type LedgerEntry struct {
	ID         snowflake.ID                         `gorm:"primaryKey" bson:"_id" json:"id"`
	SourceType LedgerSourceType                     `gorm:"type:text;not null" bson:"source_type" json:"source_type"`
	SourceID   snowflake.ID                         `gorm:"not null" bson:"source_id" json:"source_id"`
	CustomerID snowflake.ID                         `gorm:"not null;index" bson:"customer_id" json:"customer_id"`
	OccurredAt time.Time                            `gorm:"not null" bson:"occurred_at" json:"occurred_at"`
	Lines      datatypes.JSONSlice[LedgerEntryLine] `bson:"lines" json:"lines"`
	CreatedAt  time.Time                            `gorm:"not null" bson:"created_at" json:"created_at"`
}

func Schema() store.Schema {
	return store.Schema{
		Table: TableName,
		Model: &LedgerEntry{},
		Indexes: []store.Index{
			{Name: "ux_ledger_entries_source", Fields: []string{"source_type", "source_id"}, Unique: true},
		},
	}
}

// InvoiceLines debits receivables and credits fuel revenue.
func InvoiceLines(amount decimal.Decimal) []LedgerEntryLine {
	return []LedgerEntryLine{
		{Account: AccountCodeAccountsReceivable, Direction: LedgerEntryDirectionDebit, Amount: amount},
		{Account: AccountCodeFuelRevenue, Direction: LedgerEntryDirectionCredit, Amount: amount},
	}
}

// PaymentLines debits cash and credits receivables.
func PaymentLines(amount decimal.Decimal) []LedgerEntryLine {
	return []LedgerEntryLine{
		{Account: AccountCodeCash, Direction: LedgerEntryDirectionDebit, Amount: amount},
		{Account: AccountCodeAccountsReceivable, Direction: LedgerEntryDirectionCredit, Amount: amount},
	}
}
