// Package store persists coordination sessions, execution records and
// hallucination reports to SQLite so past runs survive the process and can
// be audited. Persistence is optional: a nil *RecordStore is a no-op at
// every call site in the engine.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"dirigent/internal/logging"
	"dirigent/internal/protocol"
)

// RecordStore is the SQLite-backed session archive. A single connection
// with an external mutex keeps writes serialized; WAL mode keeps readers
// unblocked.
type RecordStore struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger
}

// Open initializes the database at path, creating directories and running
// migrations as needed.
func Open(path string) (*RecordStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	log := logging.L(logging.CategoryStore)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debug("pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	s := &RecordStore{db: db, log: log}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *RecordStore) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

func (s *RecordStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	request    TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	iterations INTEGER NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS execution_records (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	worker_id   TEXT NOT NULL,
	target      TEXT NOT NULL,
	success     INTEGER NOT NULL,
	record      TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS hallucination_reports (
	record_id     TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	unreliability REAL NOT NULL,
	report        TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_session ON execution_records(session_id);
CREATE INDEX IF NOT EXISTS idx_reports_session ON hallucination_reports(session_id);
`)
	return err
}

// SaveSession upserts the session row. Called once per loop iteration so a
// crash mid-session still leaves the latest state behind.
func (s *RecordStore) SaveSession(id, request, outcome string, iterations int, status protocol.CompletionStatus) error {
	if s == nil {
		return nil
	}
	statusJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`
INSERT INTO sessions (id, request, outcome, iterations, status, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET outcome=excluded.outcome, iterations=excluded.iterations, status=excluded.status`,
		id, request, outcome, iterations, string(statusJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SaveRecord appends one execution record.
func (s *RecordStore) SaveRecord(sessionID string, rec protocol.ExecutionRecord) error {
	if s == nil {
		return nil
	}
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`
INSERT OR REPLACE INTO execution_records (id, session_id, worker_id, target, success, record, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, sessionID, rec.Assignment.Worker.ID, rec.Directive.Target,
		boolToInt(rec.Success), string(recJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// SaveReport stores the hallucination report for a record.
func (s *RecordStore) SaveReport(sessionID string, rep protocol.HallucinationReport) error {
	if s == nil {
		return nil
	}
	repJSON, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`
INSERT OR REPLACE INTO hallucination_reports (record_id, session_id, unreliability, report, created_at)
VALUES (?, ?, ?, ?, ?)`,
		rep.RecordID, sessionID, rep.Unreliability, string(repJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// LoadRecords returns all execution records of a session in insertion order.
func (s *RecordStore) LoadRecords(sessionID string) ([]protocol.ExecutionRecord, error) {
	if s == nil {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT record FROM execution_records WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	defer rows.Close()

	var out []protocol.ExecutionRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec protocol.ExecutionRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			s.log.Warn("skipping unreadable record", zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
