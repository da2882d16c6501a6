package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Store is the unit of work shared by the domain services. Every mutating service call runs
// inside exactly one WithTx invocation; reads go straight to the pool.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a store over an sqlx connection pool
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// NewStoreFromSQL wraps a plain *sql.DB opened with the postgres driver
func NewStoreFromSQL(db *sql.DB) *Store {
	return NewStore(sqlx.NewDb(db, "postgres"))
}

// DB returns the underlying pool for non-transactional reads
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// WithTx runs fn inside a transaction. The transaction commits only when fn returns nil;
// any error, panic or context cancellation rolls it back in full.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
