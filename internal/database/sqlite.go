package database

import (
	"database/sql"
	"fmt"
	"time"

	"attach-go/internal/database/migrations"
	"attach-go/internal/intake"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase stores intake history in SQLite.
type SQLiteDatabase struct {
	db       *sql.DB
	path     string
	deviceID string
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteDatabase(path, deviceID string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteDatabase{
		db:       db,
		path:     path,
		deviceID: deviceID,
	}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB, deviceID string) *SQLiteDatabase {
	return &SQLiteDatabase{db: db, deviceID: deviceID}
}

// OpenConnection opens and configures a SQLite database connection.
// The pool is limited to one connection: writes are serialized, and an
// in-memory database stays a single database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

const intakeColumns = `id, path, content_hash, status, reason, error_kind, url, local_path, started_at, finished_at`

// RecordIntake inserts one intake record.
func (s *SQLiteDatabase) RecordIntake(rec *intake.IntakeRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO intakes (`+intakeColumns+`, device_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Path, rec.ContentHash, string(rec.Status), string(rec.Reason), string(rec.ErrorKind),
		rec.URL, rec.LocalPath, rec.StartedAt.UTC(), rec.FinishedAt.UTC(), s.deviceID,
	)
	if err != nil {
		return fmt.Errorf("inserting intake record: %w", err)
	}
	return nil
}

// ListIntakes returns the most recent intake records, newest first.
func (s *SQLiteDatabase) ListIntakes(limit int) ([]*intake.IntakeRecord, error) {
	rows, err := s.db.Query(`SELECT `+intakeColumns+` FROM intakes ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing intakes: %w", err)
	}
	defer rows.Close()
	return scanIntakes(rows)
}

// FindIntakesByHash returns every intake of the given content, newest first.
func (s *SQLiteDatabase) FindIntakesByHash(hash string) ([]*intake.IntakeRecord, error) {
	rows, err := s.db.Query(`SELECT `+intakeColumns+` FROM intakes WHERE content_hash = ? ORDER BY rowid DESC`, hash)
	if err != nil {
		return nil, fmt.Errorf("finding intakes by hash: %w", err)
	}
	defer rows.Close()
	return scanIntakes(rows)
}

// CountIntakesByStatus returns the number of recorded intakes per status.
func (s *SQLiteDatabase) CountIntakesByStatus() (map[intake.Status]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM intakes GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting intakes: %w", err)
	}
	defer rows.Close()

	counts := make(map[intake.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning intake count: %w", err)
		}
		counts[intake.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("counting intakes: %w", err)
	}
	return counts, nil
}

func scanIntakes(rows *sql.Rows) ([]*intake.IntakeRecord, error) {
	var out []*intake.IntakeRecord
	for rows.Next() {
		var (
			rec                   intake.IntakeRecord
			status, reason, kind  string
			startedAt, finishedAt time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.Path, &rec.ContentHash, &status, &reason, &kind,
			&rec.URL, &rec.LocalPath, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scanning intake record: %w", err)
		}
		rec.Status = intake.Status(status)
		rec.Reason = intake.SkipReason(reason)
		rec.ErrorKind = intake.ErrorKind(kind)
		rec.StartedAt = startedAt
		rec.FinishedAt = finishedAt
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading intake records: %w", err)
	}
	return out, nil
}

func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Migrate brings the schema to the latest version.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements intake.History interface
var _ intake.History = (*SQLiteDatabase)(nil)
