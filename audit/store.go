// Package audit keeps a SQLite record of every finished chat request.
package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is one finished chat request, successful or not
type Entry struct {
	ID             int64     `json:"id"`
	RequestID      string    `json:"request_id"`
	Timestamp      time.Time `json:"timestamp"`
	Transport      string    `json:"transport"`
	Persona        string    `json:"persona,omitempty"`
	Universe       string    `json:"universe,omitempty"`
	RequestedModel string    `json:"requested_model,omitempty"`
	ModelUsed      string    `json:"model_used,omitempty"`
	PromptHash     string    `json:"prompt_hash"`
	Prompt         string    `json:"prompt"`
	Response       string    `json:"response,omitempty"`
	PromptTokens   int       `json:"prompt_tokens"`
	ProviderTokens int       `json:"provider_tokens"`
	DurationMS     int64     `json:"duration_ms"`
	TriedModels    int       `json:"tried_models"`
	Error          string    `json:"error,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS chat_audit (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	transport TEXT NOT NULL,
	persona TEXT,
	universe TEXT,
	requested_model TEXT,
	model_used TEXT,
	prompt_hash TEXT NOT NULL,
	prompt TEXT NOT NULL,
	response TEXT,
	prompt_tokens INTEGER,
	provider_tokens INTEGER,
	duration_ms INTEGER,
	tried_models INTEGER,
	error TEXT
);

CREATE INDEX IF NOT EXISTS idx_chat_audit_request_id ON chat_audit(request_id);
CREATE INDEX IF NOT EXISTS idx_chat_audit_persona ON chat_audit(persona);
CREATE INDEX IF NOT EXISTS idx_chat_audit_timestamp ON chat_audit(timestamp);
`

// Store writes audit entries to SQLite
type Store struct {
	db     *sql.DB
	tokens *TokenCounter
	now    func() time.Time
}

// Open opens (creating if needed) the audit database at path
func Open(path string, tokens *TokenCounter) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to open %s: %w", path, err)
	}
	// sqlite serialises writers anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: failed to create schema: %w", err)
	}

	return &Store{db: db, tokens: tokens, now: time.Now}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// PromptHash returns the first 16 hex characters of the prompt's SHA-256
func PromptHash(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])[:16]
}

// Record inserts an entry, filling in the timestamp, hash and token estimate
// when they are empty. It returns the new row id.
func (s *Store) Record(ctx context.Context, e Entry) (int64, error) {
	if e.RequestID == "" {
		return 0, errors.New("audit: entry has no request id")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if e.PromptHash == "" {
		e.PromptHash = PromptHash(e.Prompt)
	}
	if e.PromptTokens == 0 {
		e.PromptTokens = s.tokens.Count(e.Prompt)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_audit (
			request_id, timestamp, transport, persona, universe,
			requested_model, model_used, prompt_hash, prompt, response,
			prompt_tokens, provider_tokens, duration_ms, tried_models, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.Timestamp.UTC(), e.Transport, e.Persona, e.Universe,
		e.RequestedModel, e.ModelUsed, e.PromptHash, e.Prompt, e.Response,
		e.PromptTokens, e.ProviderTokens, e.DurationMS, e.TriedModels, e.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("audit: failed to record %s: %w", e.RequestID, err)
	}
	return result.LastInsertId()
}

// History returns the newest entries first. An empty persona matches every
// entry; limit <= 0 means 50.
func (s *Store) History(ctx context.Context, persona string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, request_id, timestamp, transport, persona, universe,
		       requested_model, model_used, prompt_hash, prompt, response,
		       prompt_tokens, provider_tokens, duration_ms, tried_models, error
		FROM chat_audit`
	args := []any{}
	if persona != "" {
		query += ` WHERE persona = ? COLLATE NOCASE`
		args = append(args, persona)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: history query failed: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.RequestID, &e.Timestamp, &e.Transport, &e.Persona, &e.Universe,
			&e.RequestedModel, &e.ModelUsed, &e.PromptHash, &e.Prompt, &e.Response,
			&e.PromptTokens, &e.ProviderTokens, &e.DurationMS, &e.TriedModels, &e.Error,
		); err != nil {
			return nil, fmt.Errorf("audit: failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
