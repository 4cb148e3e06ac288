package pagination

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/errs"
	"github.com/smallbiznis/fuelledger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 30, 0, 123456789, time.FixedZone("WIB", 7*3600))
	token, err := EncodeCursor(Cursor{ID: 42, At: at})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(42), cursor.ID)
	assert.True(t, cursor.At.Equal(at))
	assert.Equal(t, time.UTC, cursor.At.Location())
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, token := range []string{"%%%", "bm90LWpzb24", "e30"} {
		_, err := DecodeCursor(token)
		assert.ErrorIs(t, err, ErrInvalidPageToken, token)
		assert.ErrorIs(t, err, errs.ErrValidation, token)
	}
}

func TestLimit(t *testing.T) {
	limit, err := Pagination{}.Limit()
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, limit)

	limit, err = Pagination{PageSize: 3}.Limit()
	require.NoError(t, err)
	assert.Equal(t, 3, limit)

	_, err = Pagination{PageSize: -1}.Limit()
	assert.ErrorIs(t, err, ErrInvalidPageSize)
	_, err = Pagination{PageSize: MaxPageSize + 1}.Limit()
	assert.ErrorIs(t, err, ErrInvalidPageSize)
}

func TestApplyAddsKeysetCondition(t *testing.T) {
	q := store.Query{Where: []store.Condition{store.Eq("customer_id", 7)}}
	limit, err := Pagination{PageSize: 2}.Apply(&q, "occurred_at", true)
	require.NoError(t, err)
	assert.Equal(t, 2, limit)
	assert.Equal(t, 3, q.Limit)
	assert.Len(t, q.Where, 1)

	token, err := EncodeCursor(Cursor{ID: 5, At: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	q = store.Query{}
	_, err = Pagination{PageToken: token}.Apply(&q, "occurred_at", true)
	require.NoError(t, err)
	require.Len(t, q.Where, 1)
	assert.Equal(t, store.OpOr, q.Where[0].Op)
	assert.Equal(t, DefaultPageSize+1, q.Limit)

	_, err = Pagination{PageToken: "%%%"}.Apply(&store.Query{}, "occurred_at", true)
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}

func TestBuildCursorPageInfo(t *testing.T) {
	type row struct{ id snowflake.ID }
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cursorOf := func(r row) Cursor { return Cursor{ID: r.id, At: at} }

	items, info, err := BuildCursorPageInfo([]row{{1}, {2}}, 2, cursorOf)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)

	items, info, err = BuildCursorPageInfo([]row{{1}, {2}, {3}}, 2, cursorOf)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.True(t, info.HasMore)
	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(2), cursor.ID)
}
