package service

import (
	"errors"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/autherr"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/repository"
)

// storeError keeps typed errors and hides everything else as INTERNAL.
func storeError(err error) error {
	var typed *autherr.Error
	if errors.As(err, &typed) {
		return err
	}
	return autherr.Internal(err)
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

// outcome is the metric label for a use-case result.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return string(autherr.GetCode(err))
}
