package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm", err: fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "pg typed", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "sqlite", err: errors.New("constraint failed: UNIQUE constraint failed: shifts.active_employee_id (2067)"), want: true},
		{name: "mysql", err: errors.New("Error 1062 (23000): Duplicate entry"), want: true},
		{name: "other pg", err: &pgconn.PgError{Code: "23503"}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDuplicateKeyErr(tc.err))
		})
	}
}

func TestIsQueryCanceledErr(t *testing.T) {
	assert.True(t, IsQueryCanceledErr(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "57014"})))
	assert.False(t, IsQueryCanceledErr(errors.New("boom")))
}
