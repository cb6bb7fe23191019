package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hergott/ai-words-assistant/internal/transcript"

	_ "modernc.org/sqlite"
)

// Schema creates the tables used by Store. It is safe to apply repeatedly.
const Schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		startedAt REAL NOT NULL,
		endedAt REAL,
		status TEXT NOT NULL DEFAULT 'active',
		createdAt REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transcripts (
		sessionId TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		updatedAt REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vocabulary (
		sessionId TEXT NOT NULL,
		word TEXT NOT NULL,
		PRIMARY KEY (sessionId, word)
	);
`

// Store keeps transcripts, vocabularies and session records in one SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: a second one would see a different :memory: database
	// and SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append implements transcript.Store.
func (s *Store) Append(ctx context.Context, sessionID, text string) (string, error) {
	var old string
	err := s.db.QueryRowContext(ctx,
		`SELECT text FROM transcripts WHERE sessionId = ?`, sessionID).Scan(&old)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return transcript.Truncate(text), fmt.Errorf("%w: query transcript: %v", transcript.ErrPersistence, err)
	}
	updated := transcript.Truncate(old + text)

	if err := s.save(ctx, sessionID, updated); err != nil {
		return updated, fmt.Errorf("%w: %v", transcript.ErrPersistence, err)
	}
	return updated, nil
}

func (s *Store) save(ctx context.Context, sessionID, text string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transcripts (sessionId, text, updatedAt) VALUES (?, ?, ?)
		ON CONFLICT(sessionId) DO UPDATE SET text = excluded.text, updatedAt = excluded.updatedAt
	`, sessionID, text, unixNow()); err != nil {
		return fmt.Errorf("upsert transcript: %w", err)
	}

	// The vocabulary is recomputed from the truncated transcript, never merged.
	if _, err := tx.ExecContext(ctx, `DELETE FROM vocabulary WHERE sessionId = ?`, sessionID); err != nil {
		return fmt.Errorf("clear vocabulary: %w", err)
	}
	for _, w := range transcript.Vocabulary(text).Sorted() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vocabulary (sessionId, word) VALUES (?, ?)`, sessionID, w); err != nil {
			return fmt.Errorf("insert word: %w", err)
		}
	}
	return tx.Commit()
}

// SeenWords implements transcript.Store.
func (s *Store) SeenWords(ctx context.Context, sessionID string) (transcript.WordSet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT word FROM vocabulary WHERE sessionId = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: query vocabulary: %v", transcript.ErrPersistence, err)
	}
	defer rows.Close()

	seen := transcript.WordSet{}
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("%w: scan word: %v", transcript.ErrPersistence, err)
		}
		seen[w] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", transcript.ErrPersistence, err)
	}
	return seen, nil
}

// Delete implements transcript.Store. The session record itself is kept.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM transcripts WHERE sessionId = ?`,
		`DELETE FROM vocabulary WHERE sessionId = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, sessionID); err != nil {
			return fmt.Errorf("delete session data: %w", err)
		}
	}
	return tx.Commit()
}

// TranscriptFor returns the stored transcript of a session, or nil if none.
func (s *Store) TranscriptFor(ctx context.Context, sessionID string) (*Transcript, error) {
	var tr Transcript
	var updatedAt float64
	err := s.db.QueryRowContext(ctx,
		`SELECT sessionId, text, updatedAt FROM transcripts WHERE sessionId = ?`, sessionID).
		Scan(&tr.SessionID, &tr.Text, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	tr.UpdatedAt = timeFromUnix(updatedAt)
	return &tr, nil
}

// BeginSession records the start of a session.
func (s *Store) BeginSession(ctx context.Context, sessionID string) error {
	now := unixNow()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, startedAt, status, createdAt) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET startedAt = excluded.startedAt, endedAt = NULL, status = excluded.status
	`, sessionID, now, StatusActive, now)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// EndSession marks a session completed. Unknown sessions are ignored.
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET endedAt = ?, status = ? WHERE id = ? AND status = ?`,
		unixNow(), StatusCompleted, sessionID, StatusActive)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// ActiveSession returns the most recent active session, if any.
func (s *Store) ActiveSession(ctx context.Context) (*Session, error) {
	return s.scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, startedAt, endedAt, status, createdAt
		FROM sessions
		WHERE status = 'active'
		ORDER BY startedAt DESC
		LIMIT 1
	`))
}

// LatestSession returns the most recent session regardless of status.
func (s *Store) LatestSession(ctx context.Context) (*Session, error) {
	return s.scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, startedAt, endedAt, status, createdAt
		FROM sessions
		ORDER BY startedAt DESC
		LIMIT 1
	`))
}

func (s *Store) scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	var startedAt, createdAt float64
	var endedAt sql.NullFloat64

	if err := row.Scan(&sess.ID, &startedAt, &endedAt, &sess.Status, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.StartedAt = timeFromUnix(startedAt)
	sess.CreatedAt = timeFromUnix(createdAt)
	if endedAt.Valid {
		t := timeFromUnix(endedAt.Float64)
		sess.EndedAt = &t
	}
	return &sess, nil
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
