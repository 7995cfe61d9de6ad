package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/noah-isme/gym-class-api/pkg/database"
	appErrors "github.com/noah-isme/gym-class-api/pkg/errors"
)

// txRunner runs a unit of work in one database transaction.
type txRunner interface {
	WithinTx(ctx context.Context, fn database.TxFunc) error
}

// storeError maps a repository failure to the public taxonomy. Typed errors
// pass through, missing rows become NotFound, unique violations on the
// active-claim indexes become AlreadyClaimed, and anything else is a transient
// Unavailable the caller may retry.
func storeError(err error, notFound string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	if isUniqueViolation(err) {
		return appErrors.Clone(appErrors.ErrAlreadyClaimed, "")
	}
	return appErrors.Unavailable(err, "")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// validID rejects identifiers that cannot name a row so they surface as
// NotFound instead of a driver cast error.
func validID(id, what string) error {
	if _, err := uuid.Parse(id); err != nil {
		return appErrors.Clone(appErrors.ErrNotFound, what+" not found")
	}
	return nil
}
