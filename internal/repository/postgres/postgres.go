package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"handover/internal/repository"
)

const (
	pgUniqueViolation   = "23505"
	activeScopeIndex    = "uq_drafts_active_scope"
	exportStorageKeyIdx = "exports_storage_key_key"

	// pgItemGuard is raised by draft_items_guard when an update would drop source entries.
	pgItemGuard = "HO409"
)

// Store is the PostgreSQL implementation of repository.Store.
// It uses database/sql with parameterized queries and contains no business logic.
type Store struct {
	db *sql.DB
}

// New creates a Store over an open pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ repository.Store = (*Store)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", repository.ErrNotFound, what, id)
	}
	return err
}

func isItemGuardViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgItemGuard
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgUniqueViolation && (constraint == "" || pgErr.ConstraintName == constraint)
}

// jsonArgs marshals query arguments for jsonb columns and keeps the first error.
type jsonArgs struct {
	err error
}

func (j *jsonArgs) array(v any) string {
	if j.err != nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		j.err = err
		return ""
	}
	if string(b) == "null" {
		return "[]"
	}
	return string(b)
}

func (j *jsonArgs) object(v any) any {
	if j.err != nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		j.err = err
		return nil
	}
	if string(b) == "null" {
		return nil
	}
	return string(b)
}

func decodeJSON(b []byte, v any) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return json.Unmarshal(b, v)
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func strArg(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func timeArg(p *time.Time) any {
	if p == nil {
		return nil
	}
	return *p
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
