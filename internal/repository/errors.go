package repository

import (
	"context"
	"errors"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/observability"

	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicate    = errors.New("duplicate record")
	ErrConflict     = errors.New("record changed concurrently")
	ErrLimitReached = errors.New("request limit reached")
)

// translate maps gorm errors onto the package errors. The DB must be opened
// with TranslateError for unique violations to surface as ErrDuplicatedKey.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

func observe(ctx context.Context, store, operation string, err error) error {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrDuplicate):
		outcome = "duplicate"
	case errors.Is(err, ErrConflict), errors.Is(err, ErrLimitReached):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	observability.RecordRepositoryOperation(ctx, store, operation, outcome)
	return err
}

// affected turns a zero-row update into miss.
func affected(res *gorm.DB, miss error) error {
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return miss
	}
	return nil
}
