package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/model"
)

// journalSchema creates the notification journal table. The watchlist itself
// is never persisted; the journal is an audit log of what was sent.
const journalSchema = `
CREATE TABLE IF NOT EXISTS notifications (
	id         UUID PRIMARY KEY,
	kind       TEXT        NOT NULL,
	crn        TEXT        NOT NULL DEFAULT '',
	text       TEXT        NOT NULL,
	mentions   TEXT[]      NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS notifications_crn_created_at ON notifications (crn, created_at DESC);
`

// JournalRepository records delivered notifications in PostgreSQL.
type JournalRepository struct {
	db *pgxpool.Pool
}

// NewJournalRepository constructs a JournalRepository.
func NewJournalRepository(db *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{db: db}
}

// EnsureSchema creates the journal table if it does not exist.
func (r *JournalRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, journalSchema); err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	return nil
}

// Record inserts one notification. Re-recording the same ID is a no-op.
func (r *JournalRepository) Record(ctx context.Context, n model.Notification) error {
	mentions := n.Mentions
	if mentions == nil {
		mentions = []string{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO notifications (id, kind, crn, text, mentions, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		n.ID, string(n.Kind), n.CRN, n.Text, mentions, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// Recent returns up to limit notifications, newest first. An empty crn
// returns notifications for every course.
func (r *JournalRepository) Recent(ctx context.Context, crn string, limit int) ([]model.Notification, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id::text, kind, crn, text, mentions, created_at
		 FROM notifications
		 WHERE $1 = '' OR crn = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		crn, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	notifications, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Notification, error) {
		var n model.Notification
		var kind string
		err := row.Scan(&n.ID, &kind, &n.CRN, &n.Text, &n.Mentions, &n.CreatedAt)
		n.Kind = model.NotificationKind(kind)
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	return notifications, nil
}
