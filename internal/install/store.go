// Package install records whether locally installed backends are present.
// The gateway consults it before registering a local backend.
package install

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"lsgw/internal/config"
	"lsgw/internal/slogutil"
)

// Install statuses.
const (
	StatusInstalled = "installed"
	StatusMissing   = "missing"
)

// ErrNotFound is returned for backends without a record.
var ErrNotFound = stderrors.New("install record not found")

// Record is the last known install state of one backend.
type Record struct {
	ID           string    `json:"id"`
	BackendID    string    `json:"backendId"`
	Command      string    `json:"command"`
	ResolvedPath string    `json:"resolvedPath,omitempty"`
	Status       string    `json:"status"`
	Detail       string    `json:"detail,omitempty"`
	CheckedAt    time.Time `json:"checkedAt"`
}

// Store is a SQLite-backed table of install records.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	dbPath string

	// LookPath resolves commands; it defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

// Open opens or creates the store at dbPath.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{db: db, logger: logger, dbPath: dbPath, LookPath: exec.LookPath}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Check verifies a local backend's executable. The command comes from the
// backend's installCheck, falling back to its process command; backends
// naming neither pass. A command missing from PATH still passes when an
// earlier install recorded a path that exists. Every check is recorded.
func (s *Store) Check(ctx context.Context, cfg config.BackendConfig) error {
	command := cfg.InstallCheck
	if command == "" {
		command = cfg.Communication.Command
	}
	if command == "" {
		return nil
	}
	logger := slogutil.ForBackend(s.logger, cfg.ID)

	resolved, lookErr := s.LookPath(command)
	if lookErr == nil {
		_, err := s.upsert(ctx, Record{BackendID: cfg.ID, Command: command, ResolvedPath: resolved, Status: StatusInstalled})
		return err
	}

	prev, err := s.Get(ctx, cfg.ID)
	if err == nil && prev.Status == StatusInstalled && prev.ResolvedPath != "" && isExecutable(prev.ResolvedPath) {
		logger.Debug("Using recorded install", "path", prev.ResolvedPath)
		prev.Command = command
		_, err := s.upsert(ctx, *prev)
		return err
	}
	if err != nil && !stderrors.Is(err, ErrNotFound) {
		return err
	}

	if _, err := s.upsert(ctx, Record{BackendID: cfg.ID, Command: command, Status: StatusMissing, Detail: lookErr.Error()}); err != nil {
		logger.Warn("Failed to record install check", "error", err.Error())
	}
	return fmt.Errorf("%s is not installed: %w", command, lookErr)
}

// Register records an installation at path, which must be an executable
// file.
func (s *Store) Register(ctx context.Context, backendID, command, path string) (*Record, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if !isExecutable(abs) {
		return nil, fmt.Errorf("%s is not an executable file", abs)
	}
	if command == "" {
		command = filepath.Base(abs)
	}
	return s.upsert(ctx, Record{BackendID: backendID, Command: command, ResolvedPath: abs, Status: StatusInstalled})
}

// Get returns the record for backendID or ErrNotFound.
func (s *Store) Get(ctx context.Context, backendID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, backend_id, command, resolved_path, status, detail, checked_at
		FROM installs WHERE backend_id = ?`, backendID)
	rec, err := scanRecord(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read install record: %w", err)
	}
	return rec, nil
}

// List returns every record ordered by backend id.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, backend_id, command, resolved_path, status, detail, checked_at
		FROM installs ORDER BY backend_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list install records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read install record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Remove deletes the record for backendID.
func (s *Store) Remove(ctx context.Context, backendID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM installs WHERE backend_id = ?`, backendID)
	if err != nil {
		return fmt.Errorf("failed to remove install record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// upsert writes rec, keeping the record id of an existing row.
func (s *Store) upsert(ctx context.Context, rec Record) (*Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CheckedAt = time.Now().UTC().Truncate(time.Millisecond)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO installs (id, backend_id, command, resolved_path, status, detail, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(backend_id) DO UPDATE SET
			command = excluded.command,
			resolved_path = excluded.resolved_path,
			status = excluded.status,
			detail = excluded.detail,
			checked_at = excluded.checked_at`,
		rec.ID, rec.BackendID, rec.Command, rec.ResolvedPath, rec.Status, rec.Detail, rec.CheckedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to write install record: %w", err)
	}
	return s.Get(ctx, rec.BackendID)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var checkedAt int64
	if err := row.Scan(&rec.ID, &rec.BackendID, &rec.Command, &rec.ResolvedPath, &rec.Status, &rec.Detail, &checkedAt); err != nil {
		return nil, err
	}
	rec.CheckedAt = time.UnixMilli(checkedAt).UTC()
	return &rec, nil
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0111 != 0
}
