// Package repository implements the Postgres-backed stores. Reads outside a
// transaction go through the pool; every write takes the caller's pgx.Tx.
package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ideahub/backend/internal/models"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// notFound maps pgx.ErrNoRows onto models.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", models.ErrNotFound, what)
	}
	return err
}
