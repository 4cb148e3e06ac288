package mongostore

import (
	"context"
	"errors"

	"github.com/smallbiznis/fuelledger/internal/store"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return store.ErrDuplicate.Wrap(err)
	case errors.Is(err, context.DeadlineExceeded), mongo.IsTimeout(err):
		return store.ErrTimeout.Wrap(err)
	case mongo.IsNetworkError(err), errors.Is(err, mongo.ErrClientDisconnected):
		return store.ErrUnavailable.Wrap(err)
	default:
		return err
	}
}
