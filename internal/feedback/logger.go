// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package feedback records the outcome of every chat exchange: whether a
// documented fix was served, confirmed by the user or escalated to a ticket.
// It supports both file-based and SQLite storage.
package feedback

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Storage backends accepted by Config.StorageType
const (
	StorageTypeFile   = "file"
	StorageTypeSQLite = "sqlite"
	StorageTypeNone   = "none"
)

// Outcome of a chat exchange
type Outcome string

const (
	// OutcomeAnswered means a fix was served and the user has not replied yet
	OutcomeAnswered Outcome = "answered"
	// OutcomeResolved means the user confirmed the fix worked
	OutcomeResolved Outcome = "resolved"
	// OutcomeEscalated means a ticket was opened
	OutcomeEscalated Outcome = "escalated"
	// OutcomeEscalationFailed means a ticket was needed but could not be created
	OutcomeEscalationFailed Outcome = "escalation_failed"
	// OutcomeUnmatched means no fix matched and no ticket system is configured
	OutcomeUnmatched Outcome = "unmatched"
)

// ErrUnsupportedQuery is returned by reads on a backend that cannot serve them
var ErrUnsupportedQuery = errors.New("query not supported by this storage type")

// Entry is one recorded chat outcome
type Entry struct {
	ID           string    `json:"id"`
	Query        string    `json:"query"`
	Outcome      Outcome   `json:"outcome"`
	FixSourceID  string    `json:"fix_source_id,omitempty"`
	Strategy     string    `json:"strategy,omitempty"`
	Score        float64   `json:"score,omitempty"`
	TicketNumber string    `json:"ticket_number,omitempty"`
	UserEmail    string    `json:"user_email,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Recorder is what the chat pipeline writes outcomes to
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Logger handles feedback logging to various storage backends
type Logger struct {
	config Config
	logger *zap.Logger
	db     *sql.DB
	mu     sync.RWMutex
}

// Config holds configuration for feedback logging
type Config struct {
	StorageType string `json:"storage_type"` // StorageTypeFile, StorageTypeSQLite or StorageTypeNone
	FilePath    string `json:"file_path"`    // Path for file storage
	DBPath      string `json:"db_path"`      // Path for SQLite database
}

// NewLogger creates a new feedback logger
func NewLogger(config Config, logger *zap.Logger) (*Logger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fl := &Logger{
		config: config,
		logger: logger,
	}

	switch config.StorageType {
	case StorageTypeFile:
		if err := fl.initFileStorage(); err != nil {
			return nil, fmt.Errorf("failed to initialize file storage: %w", err)
		}
	case StorageTypeSQLite:
		if err := fl.initSQLiteStorage(); err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite storage: %w", err)
		}
	case StorageTypeNone:
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.StorageType)
	}

	return fl, nil
}

func (fl *Logger) initFileStorage() error {
	dir := filepath.Dir(fl.config.FilePath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create feedback directory: %w", err)
	}

	if _, err := os.Stat(fl.config.FilePath); os.IsNotExist(err) {
		file, err := os.Create(fl.config.FilePath)
		if err != nil {
			return fmt.Errorf("failed to create feedback file: %w", err)
		}
		_ = file.Close()
	}

	return nil
}

func (fl *Logger) initSQLiteStorage() error {
	dir := filepath.Dir(fl.config.DBPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create feedback database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", fl.config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS feedback (
			id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			outcome TEXT NOT NULL,
			fix_source_id TEXT,
			strategy TEXT,
			score REAL,
			ticket_number TEXT,
			user_email TEXT,
			request_id TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_feedback_fix ON feedback(fix_source_id);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create feedback table: %w", err)
	}

	fl.db = db
	return nil
}

// Record stores an outcome. ID and Timestamp are filled in when empty and
// the query is passed through Sanitize before it is written.
func (fl *Logger) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.Query = Sanitize(entry.Query)

	fl.mu.Lock()
	defer fl.mu.Unlock()

	switch fl.config.StorageType {
	case StorageTypeFile:
		return fl.logToFile(entry)
	case StorageTypeSQLite:
		return fl.logToSQLite(ctx, entry)
	case StorageTypeNone:
		return nil
	default:
		return fmt.Errorf("unsupported storage type: %s", fl.config.StorageType)
	}
}

func (fl *Logger) logToFile(entry Entry) error {
	file, err := os.OpenFile(fl.config.FilePath, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open feedback file: %w", err)
	}
	defer func() { _ = file.Close() }()

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback: %w", err)
	}

	if _, err := file.Write(append(jsonData, '\n')); err != nil {
		return fmt.Errorf("failed to write feedback to file: %w", err)
	}

	fl.logger.Debug("Feedback logged to file",
		zap.String("id", entry.ID),
		zap.String("outcome", string(entry.Outcome)))

	return nil
}

func (fl *Logger) logToSQLite(ctx context.Context, entry Entry) error {
	if fl.db == nil {
		return fmt.Errorf("SQLite database not initialized")
	}

	insertSQL := `
		INSERT INTO feedback (id, query, outcome, fix_source_id, strategy, score,
			ticket_number, user_email, request_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := fl.db.ExecContext(ctx, insertSQL,
		entry.ID,
		entry.Query,
		string(entry.Outcome),
		entry.FixSourceID,
		entry.Strategy,
		entry.Score,
		entry.TicketNumber,
		entry.UserEmail,
		entry.RequestID,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert feedback into SQLite: %w", err)
	}

	fl.logger.Debug("Feedback logged to SQLite",
		zap.String("id", entry.ID),
		zap.String("outcome", string(entry.Outcome)))

	return nil
}

// Recent returns up to limit entries, newest first
func (fl *Logger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	fl.mu.RLock()
	defer fl.mu.RUnlock()

	switch fl.config.StorageType {
	case StorageTypeSQLite:
		return fl.recentFromSQLite(ctx, limit)
	case StorageTypeFile:
		entries, err := fl.readFile()
		if err != nil {
			return nil, err
		}
		out := make([]Entry, 0, limit)
		for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, entries[i])
		}
		return out, nil
	default:
		return nil, ErrUnsupportedQuery
	}
}

func (fl *Logger) recentFromSQLite(ctx context.Context, limit int) ([]Entry, error) {
	if fl.db == nil {
		return nil, fmt.Errorf("SQLite database not initialized")
	}

	query := `
		SELECT id, query, outcome, fix_source_id, strategy, score,
			ticket_number, user_email, request_id, timestamp
		FROM feedback
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := fl.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var outcome string
		var sourceID, strategy, ticket, email, requestID sql.NullString
		var score sql.NullFloat64

		if err := rows.Scan(
			&entry.ID,
			&entry.Query,
			&outcome,
			&sourceID,
			&strategy,
			&score,
			&ticket,
			&email,
			&requestID,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}

		entry.Outcome = Outcome(outcome)
		entry.FixSourceID = sourceID.String
		entry.Strategy = strategy.String
		entry.Score = score.Float64
		entry.TicketNumber = ticket.String
		entry.UserEmail = email.String
		entry.RequestID = requestID.String

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback rows: %w", err)
	}

	return entries, nil
}

// readFile loads every entry of the JSONL log; undecodable lines are skipped
func (fl *Logger) readFile() ([]Entry, error) {
	file, err := os.Open(fl.config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open feedback file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			fl.logger.Warn("Skipping undecodable feedback line", zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read feedback file: %w", err)
	}
	return entries, nil
}

// Close closes the feedback logger and any open resources
func (fl *Logger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.db != nil {
		err := fl.db.Close()
		fl.db = nil
		return err
	}

	return nil
}

// Ping verifies the backend is usable
func (fl *Logger) Ping(ctx context.Context) error {
	fl.mu.RLock()
	defer fl.mu.RUnlock()

	switch fl.config.StorageType {
	case StorageTypeSQLite:
		if fl.db == nil {
			return fmt.Errorf("SQLite database not initialized")
		}
		return fl.db.PingContext(ctx)
	case StorageTypeFile:
		_, err := os.Stat(fl.config.FilePath)
		return err
	default:
		return nil
	}
}
