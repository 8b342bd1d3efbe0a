package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"snapsync/internal/database/migrations"
	"snapsync/internal/snap"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteRunStore implements snap.RunStore on SQLite.
type SQLiteRunStore struct {
	db   *sql.DB
	path string
}

var _ snap.RunStore = (*SQLiteRunStore)(nil)

// NewSQLiteRunStore opens the database at path (or ":memory:") and brings its
// schema up to date.
func NewSQLiteRunStore(path string) (*SQLiteRunStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return &SQLiteRunStore{db: db, path: path}, nil
}

// OpenConnection opens a SQLite database with the connection settings the
// run store relies on.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring database: %w", err)
	}
	return db, nil
}

const runColumns = `id, logical_name, source_root, started_at, finished_at, status,
	failed_state, action, remote_id, archive_size, error`

func (s *SQLiteRunStore) CreateRun(rec *snap.RunRecord) error {
	_, err := s.db.Exec(`INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.LogicalName, rec.SourceRoot, rec.StartedAt.UTC(), nullTime(rec.FinishedAt),
		rec.Status, rec.FailedState, rec.Action, rec.RemoteID, rec.ArchiveSize, rec.Error)
	if err != nil {
		return fmt.Errorf("creating run %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteRunStore) FinishRun(rec *snap.RunRecord) error {
	res, err := s.db.Exec(`UPDATE runs SET finished_at = ?, status = ?, failed_state = ?,
		action = ?, remote_id = ?, archive_size = ?, error = ?
		WHERE id = ?`,
		nullTime(rec.FinishedAt), rec.Status, rec.FailedState, rec.Action, rec.RemoteID,
		rec.ArchiveSize, rec.Error, rec.ID)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", rec.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("finishing run %s: no such run", rec.ID)
	}
	return nil
}

func (s *SQLiteRunStore) ListRuns(limit int) ([]*snap.RunRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs
		ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []*snap.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("listing runs: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return out, nil
}

func (s *SQLiteRunStore) FindRun(id string) (*snap.RunRecord, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding run %s: %w", id, err)
	}
	return rec, nil
}

// CheckMigrations reports whether the schema matches this binary.
func (s *SQLiteRunStore) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

func (s *SQLiteRunStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*snap.RunRecord, error) {
	var (
		rec      snap.RunRecord
		started  time.Time
		finished sql.NullTime
	)
	err := sc.Scan(&rec.ID, &rec.LogicalName, &rec.SourceRoot, &started, &finished,
		&rec.Status, &rec.FailedState, &rec.Action, &rec.RemoteID, &rec.ArchiveSize, &rec.Error)
	if err != nil {
		return nil, err
	}
	rec.StartedAt = started.UTC()
	if finished.Valid {
		rec.FinishedAt = sql.NullTime{Time: finished.Time.UTC(), Valid: true}
	}
	return &rec, nil
}

func nullTime(t sql.NullTime) any {
	if !t.Valid {
		return nil
	}
	return t.Time.UTC()
}
