package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/medrex/clinic-audit/pkg/types"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation
const uniqueViolation = "23505"

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// isRowID reports whether id can name a row; keys are UUIDs
func isRowID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// nullIfEmpty maps "" to SQL NULL
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullIfNil maps a nil pointer to SQL NULL
func nullIfNil(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

// ptrFromNull returns nil for an invalid NullString
func ptrFromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// storeError classifies a driver error. Unique violations become conflicts;
// everything else is a store failure.
func storeError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return types.NewConflictError(types.ErrCodeConflict, fmt.Sprintf("%s: duplicate key", op), err)
	}
	return types.NewStoreError(types.ErrCodeStoreFailure, op, err)
}

// limitClause appends LIMIT when limit > 0
func limitClause(query string, args []interface{}, limit int) (string, []interface{}) {
	if limit <= 0 {
		return query, args
	}
	args = append(args, limit)
	return query + fmt.Sprintf(" LIMIT $%d", len(args)), args
}
