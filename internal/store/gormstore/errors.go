package gormstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/fuelledger/internal/store"
	"github.com/smallbiznis/fuelledger/pkg/db"
	"gorm.io/gorm"
)

func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case db.IsDuplicateKeyErr(err):
		return store.ErrDuplicate.Wrap(err)
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err), db.IsQueryCanceledErr(err):
		return store.ErrTimeout.Wrap(err)
	case isUnavailable(err):
		return store.ErrUnavailable.Wrap(err)
	default:
		return err
	}
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
