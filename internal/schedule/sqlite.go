//go:build sqlite
// +build sqlite

package schedule

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "xqueue/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

func openSQLite(path string, busyTimeout time.Duration, log logx.Logger) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("schedule: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if busyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &sqliteStore{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return s, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const itemCols = `id, text, scheduled_at, tz, status, retry_count, last_error, remote_id, remote_url, created_at, updated_at`

func (s *sqliteStore) Create(ctx context.Context, it Item) (Item, error) {
	if strings.TrimSpace(it.ID) == "" {
		it.ID = NewID()
	}
	if it.Status == "" {
		it.Status = StatusPending
	}
	now := s.now()
	it.ScheduledAt = it.ScheduledAt.UTC()
	it.CreatedAt = now
	it.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items(`+itemCols+`) VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		it.ID, it.Text, fmtTime(it.ScheduledAt), nullStr(it.Timezone), string(it.Status),
		it.RetryCount, nullStr(it.LastError), nullStr(it.RemoteID), nullStr(it.RemoteURL),
		fmtTime(it.CreatedAt), fmtTime(it.UpdatedAt),
	)
	if err != nil {
		return Item{}, err
	}
	return it, nil
}

func (s *sqliteStore) Get(ctx context.Context, id string) (Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemCols+` FROM items WHERE id = ?`, id)
	return scanItem(row)
}

func (s *sqliteStore) List(ctx context.Context, f Filter) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemCols+` FROM items ORDER BY scheduled_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		if f.matches(it) {
			out = append(out, it)
		}
	}
	return out, rows.Err()
}

func (s *sqliteStore) Update(ctx context.Context, id string, p Patch) (Item, error) {
	return s.mutatePending(ctx, id, func(it *Item) {
		if p.Text != nil {
			it.Text = *p.Text
		}
		if p.ScheduledAt != nil {
			it.ScheduledAt = p.ScheduledAt.UTC()
		}
		if p.Timezone != nil {
			it.Timezone = *p.Timezone
		}
	})
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	it, err := scanItem(tx.QueryRowContext(ctx, `SELECT `+itemCols+` FROM items WHERE id = ?`, id))
	if err != nil {
		return err
	}
	if it.Status != StatusPending {
		return ErrConflict
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) Cancel(ctx context.Context, id string) (Item, error) {
	return s.mutatePending(ctx, id, func(it *Item) {
		it.Status = StatusCancelled
	})
}

func (s *sqliteStore) Due(ctx context.Context, now time.Time) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemCols+` FROM items WHERE status = ? AND scheduled_at <= ? ORDER BY scheduled_at, id`,
		string(StatusPending), fmtTime(now.UTC()),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *sqliteStore) MarkPosted(ctx context.Context, id, remoteID, remoteURL string) (Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Item{}, err
	}
	defer tx.Rollback()

	it, err := scanItem(tx.QueryRowContext(ctx, `SELECT `+itemCols+` FROM items WHERE id = ?`, id))
	if err != nil {
		return Item{}, err
	}
	if it.Status == StatusPosted && it.RemoteID == remoteID {
		return it, tx.Commit()
	}
	if it.Status != StatusPending {
		return Item{}, ErrConflict
	}
	it.Status = StatusPosted
	it.RemoteID = remoteID
	it.RemoteURL = remoteURL
	it.LastError = ""
	it.UpdatedAt = s.now()
	if err := writeItem(ctx, tx, it); err != nil {
		return Item{}, err
	}
	return it, tx.Commit()
}

func (s *sqliteStore) RecordFailure(ctx context.Context, id string, attempts int, lastErr string, terminal bool) (Item, error) {
	return s.mutatePending(ctx, id, func(it *Item) {
		it.RetryCount = attempts
		it.LastError = lastErr
		if terminal {
			it.Status = StatusFailed
		}
	})
}

func (s *sqliteStore) mutatePending(ctx context.Context, id string, apply func(it *Item)) (Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Item{}, err
	}
	defer tx.Rollback()

	it, err := scanItem(tx.QueryRowContext(ctx, `SELECT `+itemCols+` FROM items WHERE id = ?`, id))
	if err != nil {
		return Item{}, err
	}
	if it.Status != StatusPending {
		return Item{}, ErrConflict
	}
	apply(&it)
	it.UpdatedAt = s.now()
	if err := writeItem(ctx, tx, it); err != nil {
		return Item{}, err
	}
	return it, tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(r rowScanner) (Item, error) {
	var it Item
	var scheduledAt, createdAt, updatedAt string
	var tz, lastErr, remoteID, remoteURL sql.NullString
	var status string
	err := r.Scan(&it.ID, &it.Text, &scheduledAt, &tz, &status, &it.RetryCount,
		&lastErr, &remoteID, &remoteURL, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, err
	}
	it.Status = Status(status)
	it.Timezone = tz.String
	it.LastError = lastErr.String
	it.RemoteID = remoteID.String
	it.RemoteURL = remoteURL.String
	if it.ScheduledAt, err = parseTime(scheduledAt); err != nil {
		return Item{}, fmt.Errorf("%w: bad scheduled_at for %s: %v", ErrCorrupt, it.ID, err)
	}
	if it.CreatedAt, err = parseTime(createdAt); err != nil {
		return Item{}, fmt.Errorf("%w: bad created_at for %s: %v", ErrCorrupt, it.ID, err)
	}
	if it.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Item{}, fmt.Errorf("%w: bad updated_at for %s: %v", ErrCorrupt, it.ID, err)
	}
	return it, nil
}

func writeItem(ctx context.Context, tx *sql.Tx, it Item) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE items SET text=?, scheduled_at=?, tz=?, status=?, retry_count=?, last_error=?, remote_id=?, remote_url=?, updated_at=? WHERE id=?`,
		it.Text, fmtTime(it.ScheduledAt), nullStr(it.Timezone), string(it.Status), it.RetryCount,
		nullStr(it.LastError), nullStr(it.RemoteID), nullStr(it.RemoteURL), fmtTime(it.UpdatedAt), it.ID,
	)
	return err
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
