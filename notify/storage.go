package notify

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"
)

// DefaultNotificationsTable is the table written by SQLStorage.
const DefaultNotificationsTable = "notifications"

// SQLStorage persists notifications in Postgres.
type SQLStorage struct {
	db      *sql.DB
	insertQ string
}

// NewSQLStorage creates a SQLStorage writing to the given table.
// An empty table name selects DefaultNotificationsTable.
func NewSQLStorage(db *sql.DB, table string) (*SQLStorage, error) {
	if db == nil {
		return nil, errors.New("missing db")
	}
	if table == "" {
		table = DefaultNotificationsTable
	}

	return &SQLStorage{
		db: db,
		insertQ: fmt.Sprintf(
			`INSERT INTO %s (id, user_id, actor_id, actor_name, post_id, reaction_code, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			table,
		),
	}, nil
}

func (s *SQLStorage) Insert(ctx context.Context, n Notification) error {
	_, err := s.db.ExecContext(ctx, s.insertQ,
		n.ID,
		n.UserID,
		n.ActorID,
		n.ActorName,
		n.PostID,
		n.ReactionCode,
		n.CreatedAt,
	)

	return errors.Wrap(err, "cannot insert notification")
}

// Schema returns the DDL for the notifications table.
func Schema(table string) string {
	if table == "" {
		table = DefaultNotificationsTable
	}

	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	actor_id TEXT NOT NULL,
	actor_name TEXT NOT NULL,
	post_id TEXT NOT NULL,
	reaction_code TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);`, table)
}
