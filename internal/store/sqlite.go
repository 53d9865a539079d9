package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mailnote/internal/model"
)

// defaultLimit applies when a listing is asked for with a non-positive limit.
const defaultLimit = 50

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// CreateRun inserts a new run record. A missing ID or start time is filled
// in on run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = model.RunRunning
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, provider, from_label, status, available, fetched, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Provider, run.FromLabel, string(run.Status),
		run.Available, run.Fetched, run.Error, run.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	return nil
}

// FinishRun stores the final counters and status of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, run model.Run) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, available = ?, fetched = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		string(run.Status), run.Available, run.Fetched, run.Error, finished, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", run.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing run %s: no such run", run.ID)
	}
	return nil
}

// GetRuns retrieves the most recent runs, newest first.
func (s *SQLiteStore) GetRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	var runs []model.Run
	err := s.db.SelectContext(ctx, &runs,
		"SELECT * FROM runs ORDER BY started_at DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	return runs, nil
}

// RecordImport inserts an import record.
func (s *SQLiteStore) RecordImport(ctx context.Context, rec model.ImportRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.ImportedAt.IsZero() {
		rec.ImportedAt = time.Now()
	}

	attachments := rec.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	attachmentsJSON, err := json.Marshal(attachments)
	if err != nil {
		return fmt.Errorf("marshaling attachments for thread %s: %w", rec.ThreadID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO imports (
			id, run_id, thread_id, note_path, subject,
			attachments, trashed, imported_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.ThreadID, rec.NotePath, rec.Subject,
		string(attachmentsJSON), boolToInt(rec.Trashed), rec.ImportedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording import of thread %s: %w", rec.ThreadID, err)
	}
	return nil
}

// GetImports retrieves the most recent imports, newest first.
func (s *SQLiteStore) GetImports(
	ctx context.Context,
	limit int,
) ([]model.ImportRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	return s.queryImports(ctx,
		"SELECT * FROM imports ORDER BY imported_at DESC, rowid DESC LIMIT ?", limit,
	)
}

// GetImportsForThread retrieves every import of a thread, oldest first.
func (s *SQLiteStore) GetImportsForThread(
	ctx context.Context,
	threadID string,
) ([]model.ImportRecord, error) {
	return s.queryImports(ctx,
		"SELECT * FROM imports WHERE thread_id = ? ORDER BY imported_at, rowid", threadID,
	)
}

func (s *SQLiteStore) queryImports(
	ctx context.Context,
	query string,
	args ...interface{},
) ([]model.ImportRecord, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying imports: %w", err)
	}
	defer rows.Close()

	var records []model.ImportRecord
	for rows.Next() {
		rec, err := scanImport(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// CreateNotification inserts a new notification record.
func (s *SQLiteStore) CreateNotification(
	ctx context.Context,
	n model.Notification,
) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, run_id, provider, message, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.RunID, n.Provider, n.Message, n.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}

	return nil
}

// GetNotifications retrieves the most recent notifications, newest first.
func (s *SQLiteStore) GetNotifications(
	ctx context.Context,
	limit int,
) ([]model.Notification, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	var notifications []model.Notification
	err := s.db.SelectContext(ctx, &notifications,
		"SELECT * FROM notifications ORDER BY created_at DESC, rowid DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	return notifications, nil
}

// scanImport scans an import row from a sqlx.Rows result set.
func scanImport(rows *sqlx.Rows) (model.ImportRecord, error) {
	var (
		rec         model.ImportRecord
		attachments string
		trashed     int
		importedAt  time.Time
	)

	err := rows.Scan(
		&rec.ID, &rec.RunID, &rec.ThreadID, &rec.NotePath, &rec.Subject,
		&attachments, &trashed, &importedAt,
	)
	if err != nil {
		return model.ImportRecord{}, fmt.Errorf("scanning import row: %w", err)
	}

	rec.Trashed = trashed != 0
	rec.ImportedAt = importedAt

	if attachments != "" {
		if err := json.Unmarshal([]byte(attachments), &rec.Attachments); err != nil {
			return model.ImportRecord{}, fmt.Errorf("unmarshaling attachments: %w", err)
		}
	}

	return rec, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
