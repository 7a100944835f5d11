package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed implementation of Store.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath and runs
// migrations. ttl is the record expiry window applied on every write.
func NewSQLiteStore(dbPath string, ttl time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// WAL mode for better concurrent read performance.
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, ttl: ttl}
	if err = s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			contact_id  TEXT PRIMARY KEY,
			status      TEXT NOT NULL,
			job_id      TEXT NOT NULL DEFAULT '',
			cause       TEXT NOT NULL DEFAULT '',
			expiry_time INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_expiry ON jobs(expiry_time);
	`)
	return err
}

func (s *SQLiteStore) PutQueued(ctx context.Context, contactID string) (*Record, error) {
	rec := &Record{
		ContactID:  contactID,
		Status:     StatusQueued,
		ExpiryTime: time.Now().Add(s.ttl).Unix(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (contact_id, status, job_id, cause, expiry_time)
		VALUES (?, ?, '', '', ?)
		ON CONFLICT(contact_id) DO UPDATE SET
			status      = excluded.status,
			job_id      = excluded.job_id,
			cause       = excluded.cause,
			expiry_time = excluded.expiry_time
	`, rec.ContactID, rec.Status, rec.ExpiryTime)
	if err != nil {
		return nil, fmt.Errorf("put queued %s: %w", contactID, err)
	}
	return rec, nil
}

func (s *SQLiteStore) PutTerminal(ctx context.Context, rec *Record) (*Record, error) {
	if !rec.Status.Terminal() {
		return nil, fmt.Errorf("put terminal %s: status %q is not terminal", rec.ContactID, rec.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("put terminal %s: %w", rec.ContactID, err)
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := scanRecord(tx.QueryRowContext(ctx, `
		SELECT contact_id, status, job_id, cause, expiry_time
		FROM jobs WHERE contact_id = ?
	`, rec.ContactID))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("put terminal %s: %w", rec.ContactID, err)
	}

	now := time.Now()
	if current != nil && current.Status.Terminal() && current.ExpiryTime > now.Unix() {
		// A duplicate delivery lost the race; keep the first outcome.
		return current, nil
	}

	stored := *rec
	stored.ExpiryTime = now.Add(s.ttl).Unix()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (contact_id, status, job_id, cause, expiry_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(contact_id) DO UPDATE SET
			status      = excluded.status,
			job_id      = excluded.job_id,
			cause       = excluded.cause,
			expiry_time = excluded.expiry_time
	`, stored.ContactID, stored.Status, stored.JobID, stored.Cause, stored.ExpiryTime)
	if err != nil {
		return nil, fmt.Errorf("put terminal %s: %w", rec.ContactID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("put terminal %s: %w", rec.ContactID, err)
	}
	return &stored, nil
}

func (s *SQLiteStore) Get(ctx context.Context, contactID string) (*Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, `
		SELECT contact_id, status, job_id, cause, expiry_time
		FROM jobs WHERE contact_id = ?
	`, contactID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", contactID, err)
	}
	// Expired rows read as absent until the sweeper removes them.
	if rec.ExpiryTime <= time.Now().Unix() {
		return nil, nil
	}
	return rec, nil
}

// DeleteExpired removes records whose expiry time has passed. SQLite has no
// native TTL, so a janitor calls this periodically.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE expiry_time <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired jobs: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	rec := &Record{}
	if err := row.Scan(&rec.ContactID, &rec.Status, &rec.JobID, &rec.Cause, &rec.ExpiryTime); err != nil {
		return nil, err
	}
	return rec, nil
}
