package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/errs"
	"github.com/smallbiznis/fuelledger/internal/store"
	"github.com/smallbiznis/fuelledger/pkg/db/pagination"
)

type Repository interface {
	store.Repository[LedgerEntry]
}

type CreateEntryRequest struct {
	SourceType LedgerSourceType
	SourceID   snowflake.ID
	CustomerID snowflake.ID
	OccurredAt time.Time
	Lines      []LedgerEntryLine
}

type ListEntriesRequest struct {
	pagination.Pagination
	CustomerID snowflake.ID
}

type ListEntriesResponse struct {
	pagination.PageInfo
	Entries []LedgerEntry `json:"entries"`
}

type Service interface {
	// CreateEntry posts a balanced entry. Posting the same source twice
	// returns the existing entry.
	CreateEntry(context.Context, CreateEntryRequest) (LedgerEntry, error)
	ListEntries(context.Context, ListEntriesRequest) (ListEntriesResponse, error)
}

var (
	ErrInvalidSourceType    = errs.New(errs.KindValidation, "invalid_source_type", "unknown ledger source type")
	ErrInvalidSourceID      = errs.New(errs.KindValidation, "invalid_source_id", "ledger source id is required")
	ErrInvalidCustomer      = errs.New(errs.KindValidation, "invalid_customer_id", "customer id is required")
	ErrInvalidOccurredAt    = errs.New(errs.KindValidation, "invalid_occurred_at", "occurred at is required")
	ErrInvalidEntryLines    = errs.New(errs.KindValidation, "invalid_entry_lines", "an entry needs at least two lines")
	ErrInvalidAccount       = errs.New(errs.KindValidation, "invalid_account", "ledger account is required")
	ErrInvalidLineDirection = errs.New(errs.KindValidation, "invalid_line_direction", "line direction must be debit or credit")
	ErrInvalidLineAmount    = errs.New(errs.KindValidation, "invalid_line_amount", "line amount must not be negative")
	ErrUnbalancedEntry      = errs.New(errs.KindValidation, "unbalanced_entry", "debits and credits differ")
)
