package bridge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/coastlinevibe/tide"
	"github.com/coastlinevibe/tide/internal/syncutil"
	"github.com/coastlinevibe/tide/reaction"
)

// DefaultReactionsTable is the remote table written by SQLBridge.
const DefaultReactionsTable = "post_reactions"

type SQLConfig struct {
	// Table receiving the records. Defaults to DefaultReactionsTable.
	Table string

	// WriteTimeout bounds a single insert. Defaults to 5s.
	WriteTimeout time.Duration

	// CloseTimeout bounds how long Close waits for in-flight writes.
	// Defaults to 10s.
	CloseTimeout time.Duration

	Logger tide.LoggerAdapter
}

func (c *SQLConfig) setDefaults() {
	if c.Table == "" {
		c.Table = DefaultReactionsTable
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = tide.NopLogger{}
	}
}

// SQLBridge mirrors added records into a Postgres table.
//
// Writes are upsert-like inserts: a conflicting id is silently skipped, so
// a replayed write cannot duplicate a row.
type SQLBridge struct {
	db      *sql.DB
	config  SQLConfig
	logger  tide.LoggerAdapter
	insertQ string

	inflight sync.WaitGroup

	closed     bool
	closedLock sync.Mutex
}

// NewSQLBridge creates a SQLBridge on top of an open Postgres connection pool.
func NewSQLBridge(db *sql.DB, config SQLConfig) (*SQLBridge, error) {
	config.setDefaults()

	if db == nil {
		return nil, errors.New("missing db")
	}

	return &SQLBridge{
		db:      db,
		config:  config,
		logger:  config.Logger,
		insertQ: insertQuery(config.Table),
	}, nil
}

func insertQuery(table string) string {
	return fmt.Sprintf(
		`INSERT INTO %s (id, post_id, user_id, username, reaction_code, reaction_kind, asset_url, created_at, expires_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		table,
	)
}

// Schema returns the DDL for the reactions table.
func Schema(table string) string {
	if table == "" {
		table = DefaultReactionsTable
	}

	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	post_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	username TEXT NOT NULL,
	reaction_code TEXT NOT NULL,
	reaction_kind TEXT NOT NULL,
	asset_url TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ,
	metadata JSONB
);`, table)
}

// WriteThrough inserts the record in the background. It never blocks on
// the database and never surfaces an error; the caller's context is not
// used for the write, a cancelled request must not cancel the mirror.
func (b *SQLBridge) WriteThrough(_ context.Context, record reaction.Record) {
	b.closedLock.Lock()
	if b.closed {
		b.closedLock.Unlock()
		b.logger.Debug("Bridge closed, dropping write-through", tide.LogFields{
			"reaction_id": record.ID,
		})
		return
	}
	b.inflight.Add(1)
	b.closedLock.Unlock()

	go func() {
		defer b.inflight.Done()

		if err := b.insert(record); err != nil {
			b.logger.Error("Write-through failed", err, tide.LogFields{
				"reaction_id": record.ID,
				"post_id":     record.PostID,
			})
		}
	}()
}

func (b *SQLBridge) insert(record reaction.Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.config.WriteTimeout)
	defer cancel()

	var metadata interface{}
	if len(record.Metadata) > 0 {
		raw, err := json.Marshal(record.Metadata)
		if err != nil {
			return errors.Wrap(err, "cannot marshal record metadata")
		}
		metadata = raw
	}

	_, err := b.db.ExecContext(ctx, b.insertQ,
		record.ID,
		record.PostID,
		record.UserID,
		record.Username,
		record.Code,
		string(record.Kind),
		record.AssetURL,
		record.CreatedAt,
		record.ExpiresAt,
		metadata,
	)

	return errors.Wrap(err, "cannot insert reaction")
}

// Close stops accepting writes and waits for in-flight ones, bounded by
// CloseTimeout.
func (b *SQLBridge) Close() error {
	b.closedLock.Lock()
	if b.closed {
		b.closedLock.Unlock()
		return nil
	}
	b.closed = true
	b.closedLock.Unlock()

	if timedOut := syncutil.WaitTimeout(&b.inflight, b.config.CloseTimeout); timedOut {
		return errors.New("bridge close timeout, in-flight writes abandoned")
	}

	return nil
}
