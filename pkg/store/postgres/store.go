// Copyright (C) 2025 tsfs-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package postgres is the pgx-backed implementation of pkg/store.Store,
// grounded on the teacher's pkg/storage/postgres connection and query
// patterns but restructured around TSFS's users/keyrings/files/keys/sessions
// schema instead of did/session/nonce.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tsfs-project/tsfs/pkg/store"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN renders cfg as a libpq connection string.
func (cfg *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
}

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx, letting queries.go be
// written once and reused for the top-level Store and for an open Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements store.Store against a pgxpool.Pool.
type Store struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewStore opens a connection pool and verifies it with a ping.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	return NewStoreFromDSN(ctx, cfg.DSN())
}

// NewStoreFromDSN is NewStore for a caller that already has a libpq
// connection string, e.g. config.Config.DatabaseURL read straight from
// DATABASE_URL.
func NewStoreFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{db: pool, pool: pool}, nil
}

// Ping checks the database connection, used by the health checker.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Tx wraps an open pgx.Tx, implementing the same store.Store surface as
// Store so access-graph mutations in internal/fileops can run identical
// query code inside and outside a transaction.
type Tx struct {
	tx pgx.Tx
}

// Begin starts a transaction. internal/fileops uses this for every
// multi-statement mutation of the access graph (spec.md §4.F).
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("postgres: rollback: %w", err)
	}
	return nil
}

// Begin on an open Tx is not supported; nested transactions are not part of
// TSFS's transaction model.
func (t *Tx) Begin(ctx context.Context) (store.Tx, error) {
	return nil, fmt.Errorf("postgres: nested transactions unsupported")
}

func (t *Tx) Close() {}

// Ping checks the connection the transaction runs on.
func (t *Tx) Ping(ctx context.Context) error {
	return t.tx.Conn().Ping(ctx)
}

var _ store.Store = (*Store)(nil)
var _ store.Tx = (*Tx)(nil)
