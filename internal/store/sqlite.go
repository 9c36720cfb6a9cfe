// Package store persists channels, chat messages and transcriptions in
// SQLite and answers the time-windowed queries the translator needs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mkase/streamlens/backend/internal/model/stream"
)

const schema = `
CREATE TABLE IF NOT EXISTS channels (
	name TEXT PRIMARY KEY,
	last_connected_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	channel TEXT NOT NULL,
	username TEXT NOT NULL,
	message TEXT NOT NULL,
	timestamp TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS transcriptions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	channel TEXT NOT NULL,
	message TEXT NOT NULL,
	timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_channel_ts ON messages(channel, timestamp);
CREATE INDEX IF NOT EXISTS idx_transcriptions_channel_ts ON transcriptions(channel, timestamp);
`

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// modernc.org/sqlite serializes writes itself; a single connection
	// avoids SQLITE_BUSY under concurrent translation lookups.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertChannel records that a channel was joined at ts.
func (s *Store) UpsertChannel(ctx context.Context, name string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (name, last_connected_at) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET last_connected_at = excluded.last_connected_at`,
		name, ts.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert channel: %w", err)
	}
	return nil
}

// ListChannels returns known channel names, most recently active first.
func (s *Store) ListChannels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM channels ORDER BY last_connected_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// InsertMessage persists a chat message and returns its store-assigned id.
func (s *Store) InsertMessage(ctx context.Context, channel, username, text string, ts time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (channel, username, message, timestamp) VALUES (?, ?, ?, ?)`,
		channel, username, text, ts.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("message id: %w", err)
	}
	return id, nil
}

// InsertTranscription persists one finished utterance's text.
func (s *Store) InsertTranscription(ctx context.Context, channel, text string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcriptions (channel, message, timestamp) VALUES (?, ?, ?)`,
		channel, text, ts.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert transcription: %w", err)
	}
	return nil
}

// RecentMessages returns chat messages for channel at or after since,
// newest first.
func (s *Store) RecentMessages(ctx context.Context, channel string, since time.Time) ([]stream.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel, username, message, timestamp FROM messages
		WHERE channel = ? AND timestamp >= ? ORDER BY id DESC`,
		channel, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var out []stream.ChatMessage
	for rows.Next() {
		var m stream.ChatMessage
		var ts string
		if err := rows.Scan(&m.ID, &m.Channel, &m.Username, &m.Message, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp, _ = time.Parse(time.RFC3339, ts)
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecentTranscriptions returns transcriptions for channel at or after since,
// newest first.
func (s *Store) RecentTranscriptions(ctx context.Context, channel string, since time.Time) ([]stream.Transcription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel, message, timestamp FROM transcriptions
		WHERE channel = ? AND timestamp >= ? ORDER BY id DESC`,
		channel, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("recent transcriptions: %w", err)
	}
	defer rows.Close()

	var out []stream.Transcription
	for rows.Next() {
		var tr stream.Transcription
		var ts string
		if err := rows.Scan(&tr.ID, &tr.Channel, &tr.Text, &ts); err != nil {
			return nil, fmt.Errorf("scan transcription: %w", err)
		}
		tr.Timestamp, _ = time.Parse(time.RFC3339, ts)
		out = append(out, tr)
	}
	return out, rows.Err()
}
