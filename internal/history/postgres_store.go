package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore archives transcript fragments in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("history: connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transcript_segments (
			session_id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			text TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transcript_segments_session ON transcript_segments (session_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("history: init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, r Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transcript_segments (session_id, seq, text, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id, seq) DO UPDATE SET text = EXCLUDED.text`,
		r.SessionID, r.Seq, r.Text, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

func (s *PostgresStore) Reset(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM transcript_segments WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("history: reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
