package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/germanamz/tabletalk/pkg/chats/message"
)

// SQLStore keeps sessions in a session_messages table. It works on SQLite
// (driver "sqlite") and Postgres (driver "pgx"); statements are rebound to
// the driver's placeholder style.
type SQLStore struct {
	db    *sqlx.DB
	owned bool
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS session_messages (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq)
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS session_messages (
		session_id TEXT NOT NULL,
		seq BIGINT NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (session_id, seq)
	)`,
}

// NewSQLiteStore creates the table if needed and returns a store on db.
func NewSQLiteStore(ctx context.Context, db *sqlx.DB) (*SQLStore, error) {
	return newSQLStore(ctx, db, sqliteSchema)
}

// NewPostgresStore creates the table if needed and returns a store on db.
func NewPostgresStore(ctx context.Context, db *sqlx.DB) (*SQLStore, error) {
	return newSQLStore(ctx, db, postgresSchema)
}

func newSQLStore(ctx context.Context, db *sqlx.DB, schema []string) (*SQLStore, error) {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("memory: migrate session_messages: %w", err)
		}
	}

	slog.Info("session store ready", "driver", db.DriverName())
	return &SQLStore{db: db}, nil
}

// Close closes the database when the store opened it.
func (s *SQLStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context, sessionID string) ([]message.Message, error) {
	if err := checkSession(sessionID); err != nil {
		return nil, err
	}

	var payloads []string
	query := s.db.Rebind(`SELECT payload FROM session_messages WHERE session_id = ? ORDER BY seq`)
	if err := s.db.SelectContext(ctx, &payloads, query, sessionID); err != nil {
		return nil, fmt.Errorf("memory: load session %q: %w", sessionID, err)
	}

	msgs := make([]message.Message, 0, len(payloads))
	for i, p := range payloads {
		m, err := decode(sessionID, i, []byte(p))
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Append implements Store. The messages of one call are inserted in a single
// transaction after the session's current highest sequence number.
func (s *SQLStore) Append(ctx context.Context, sessionID string, msgs ...message.Message) error {
	if err := checkSession(sessionID); err != nil {
		return err
	}

	encoded, err := encodeAll(persistable(msgs))
	if err != nil {
		return err
	}
	if len(encoded) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("memory: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var last int64
	maxSeq := tx.Rebind(`SELECT COALESCE(MAX(seq), 0) FROM session_messages WHERE session_id = ?`)
	if err := tx.GetContext(ctx, &last, maxSeq, sessionID); err != nil {
		return fmt.Errorf("memory: next sequence for %q: %w", sessionID, err)
	}

	insert := tx.Rebind(`INSERT INTO session_messages (session_id, seq, payload, created_at) VALUES (?, ?, ?, ?)`)
	for i, payload := range encoded {
		if _, err := tx.ExecContext(ctx, insert, sessionID, last+int64(i)+1, string(payload), s.now()); err != nil {
			return fmt.Errorf("memory: append session %q: %w", sessionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("memory: commit: %w", err)
	}

	slog.Debug("session messages appended", "session", sessionID, "count", len(encoded))
	return nil
}

// now returns the created_at value in the column type of the driver.
func (s *SQLStore) now() any {
	if s.db.DriverName() == "pgx" {
		return time.Now().UTC()
	}
	return time.Now().Unix()
}

// Sessions lists stored sessions ordered by ID.
func (s *SQLStore) Sessions(ctx context.Context) ([]SessionInfo, error) {
	var out []SessionInfo
	query := `SELECT session_id, COUNT(*) AS messages, MAX(seq) AS last_seq
		FROM session_messages GROUP BY session_id ORDER BY session_id`
	if err := s.db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("memory: list sessions: %w", err)
	}
	return out, nil
}
