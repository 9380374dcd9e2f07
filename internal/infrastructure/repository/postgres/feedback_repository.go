package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/kth-research-assistant/internal/core/domain"
)

type FeedbackRepository struct {
	db *sql.DB
}

func NewFeedbackRepository(db *sql.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func (r *FeedbackRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS answer_feedback (
	id TEXT PRIMARY KEY,
	session_id TEXT,
	query TEXT NOT NULL,
	answer TEXT,
	rating SMALLINT NOT NULL,
	comment TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_answer_feedback_created_at ON answer_feedback(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// SaveFeedback is idempotent on the feedback id, so redelivered messages are
// harmless.
func (r *FeedbackRepository) SaveFeedback(ctx context.Context, fb domain.Feedback) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO answer_feedback (id, session_id, query, answer, rating, comment, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO NOTHING
`, fb.ID, nullableString(fb.SessionID), fb.Query, nullableString(fb.Answer), fb.Rating, nullableString(fb.Comment), fb.CreatedAt)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "save feedback", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
