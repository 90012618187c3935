// Package repository implements the MySQL side of the application: the
// transactional booking store, the RBAC grant store, and the user and
// refresh-token tables.  Driver errors are mapped to the booking
// package's sentinels (see mapErr) so that handlers translate them
// uniformly.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/department-admin/internal/booking"
)

// ErrEmailExists is returned when a user is created with an email that
// is already registered.
var ErrEmailExists = errors.New("email already exists")

// isDuplicate reports a MySQL 1062 duplicate-entry error.
func isDuplicate(err error) bool {
	return err != nil && strings.Contains(err.Error(), "1062")
}

// isMissingReference reports a MySQL 1452 foreign-key failure.
func isMissingReference(err error) bool {
	return err != nil && strings.Contains(err.Error(), "1452")
}

// mapErr translates driver errors into booking sentinels.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return booking.ErrNotFound
	case isDuplicate(err):
		return booking.ErrDuplicate
	case isMissingReference(err):
		return booking.ErrNotFound
	}
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx so that read helpers
// can serve the store and its transactions.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func lastID(res sql.Result) (uint64, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}
