// Package storage is the Postgres implementation of store.Store.
package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/santiagopena171/app-agenda/libs/db"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/store"
)

//go:embed schema.sql
var schema string

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	reader
	pool   *db.Pool
	policy db.RetryPolicy
}

var _ store.Store = (*Store)(nil)

func New(pool *db.Pool, policy db.RetryPolicy) *Store {
	return &Store{reader: reader{q: pool}, pool: pool, policy: policy}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// ReadWrite runs fn in a serializable transaction and retries serialization failures.
func (s *Store) ReadWrite(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	err := s.pool.InSerializableTx(ctx, s.policy, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txStore{reader: reader{q: tx}, tx: tx})
	})
	if errors.Is(err, db.ErrRetriesExhausted) {
		return fmt.Errorf("%w: %w", model.ErrTransient, err)
	}
	return err
}

type reader struct {
	q querier
}

type txStore struct {
	reader
	tx pgx.Tx
}

// notFound turns pgx.ErrNoRows into model.ErrNotFound.
func notFound(err error, what string) error {
	if db.IsNotFound(err) {
		return fmt.Errorf("%w: %s", model.ErrNotFound, what)
	}
	return err
}
