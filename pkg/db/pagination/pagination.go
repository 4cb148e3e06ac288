// Package pagination implements keyset paging over store queries ordered by
// a timestamp and the snowflake id.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/errs"
	"github.com/smallbiznis/fuelledger/internal/store"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

var (
	ErrInvalidPageToken = errs.New(errs.KindValidation, "invalid_page_token", "invalid page_token")
	ErrInvalidPageSize  = errs.New(errs.KindValidation, "invalid_page_size", "page_size must be between 1 and 250")
)

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

// Cursor is the position of the last row of a page.
type Cursor struct {
	ID snowflake.ID `json:"id"`
	At time.Time    `json:"at"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

// Limit returns the page size, DefaultPageSize when unset.
func (p Pagination) Limit() (int, error) {
	switch {
	case p.PageSize == 0:
		return DefaultPageSize, nil
	case p.PageSize < 0 || p.PageSize > MaxPageSize:
		return 0, ErrInvalidPageSize
	}
	return p.PageSize, nil
}

// Apply narrows q to the page after p's cursor. q must be ordered by
// (field, id) in the direction given by desc. It returns the page size and
// leaves q fetching one extra row so BuildCursorPageInfo can detect more.
func (p Pagination) Apply(q *store.Query, field string, desc bool) (int, error) {
	limit, err := p.Limit()
	if err != nil {
		return 0, err
	}
	if p.PageToken != "" {
		cursor, err := DecodeCursor(p.PageToken)
		if err != nil {
			return 0, err
		}
		q.Where = append(q.Where, store.After(field, desc, cursor.At, cursor.ID))
	}
	q.Limit = limit + 1
	return limit, nil
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(Cursor{ID: data.ID, At: data.At.UTC()})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(token string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidPageToken.Wrap(err)
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, ErrInvalidPageToken.Wrap(err)
	}
	if cursor.ID == 0 || cursor.At.IsZero() {
		return nil, ErrInvalidPageToken
	}
	cursor.At = cursor.At.UTC()
	return &cursor, nil
}

// BuildCursorPageInfo trims items fetched with limit+1 rows back to limit and
// points the next token at the last row kept.
func BuildCursorPageInfo[T any](items []T, limit int, extractCursor func(T) Cursor) ([]T, PageInfo, error) {
	if len(items) <= limit {
		return items, PageInfo{}, nil
	}

	items = items[:limit]
	token, err := EncodeCursor(extractCursor(items[len(items)-1]))
	if err != nil {
		return nil, PageInfo{}, err
	}
	return items, PageInfo{NextPageToken: token, HasMore: true}, nil
}
