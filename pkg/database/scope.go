package database

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx shared by the pool and a single connection.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var (
	_ Querier = (*pgxpool.Pool)(nil)
	_ Querier = (*pgxpool.Conn)(nil)
)

type contextKey string

// ScopeKey is the context key for a connection held by the current unit of work.
const ScopeKey contextKey = "dbScope"

// Scope is a pooled connection held across several repository calls, for
// example while a session-level advisory lock is taken on it.
type Scope struct {
	Conn    *pgxpool.Conn
	release func()
}

// Close runs the scope's cleanup and returns the connection to the pool.
// Safe to call more than once.
func (s *Scope) Close() {
	if s == nil || s.Conn == nil {
		return
	}
	if s.release != nil {
		s.release()
	}
	s.Conn.Release()
	s.Conn = nil
}

// GetScope retrieves the connection scope from context.
func GetScope(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(ScopeKey).(*Scope)
	return scope, ok && scope != nil && scope.Conn != nil
}

// SetScope stores a connection scope in context.
func SetScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

// Querier returns the scoped connection when ctx carries one, the pool otherwise.
// Repositories call this so work done under a lock runs on the locked connection.
func (db *DB) Querier(ctx context.Context) Querier {
	if scope, ok := GetScope(ctx); ok {
		return scope.Conn
	}
	return db.Pool
}

// advisoryKey folds a facility id into the bigint key space of pg_advisory_lock.
func advisoryKey(facilityID uuid.UUID) int64 {
	return int64(binary.BigEndian.Uint64(facilityID[:8]) ^ binary.BigEndian.Uint64(facilityID[8:]))
}

// WithFacilityLock acquires a connection and blocks until the session-level
// advisory lock for facilityID is held on it. Waiting honours ctx. The
// returned Scope MUST be closed with defer scope.Close(), which unlocks.
func (db *DB) WithFacilityLock(ctx context.Context, facilityID uuid.UUID) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	key := advisoryKey(facilityID)
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("lock facility %s: %w", facilityID, err)
	}

	return &Scope{
		Conn: conn,
		release: func() {
			_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", key)
		},
	}, nil
}

// FacilityLocker serializes schedule imports per facility across every
// server process sharing the database.
type FacilityLocker struct {
	db *DB
}

// NewFacilityLocker creates a FacilityLocker for the given database.
func NewFacilityLocker(db *DB) *FacilityLocker {
	return &FacilityLocker{db: db}
}

// Lock returns a context bound to the locked connection and a function that
// releases the lock. Repository calls made with the returned context run on
// that connection.
func (l *FacilityLocker) Lock(ctx context.Context, facilityID uuid.UUID) (context.Context, func(), error) {
	scope, err := l.db.WithFacilityLock(ctx, facilityID)
	if err != nil {
		return nil, nil, err
	}
	return SetScope(ctx, scope), scope.Close, nil
}
