// Package dumps implements bulk ID discovery: downloading, decompressing and
// parsing the daily ID dump files, guarded by a durable per-day dump record.
package dumps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/screenarc/tmdb-harvester/internal/state"
)

// DB is the slice of pgxpool.Pool the store needs; pgxmock satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists dump records: one row per (dump_type, dump_date), acting as
// the idempotency guard against re-downloading a completed dump.
type Store struct {
	db  DB
	now func() time.Time
}

// NewStore creates a dump record Store.
func NewStore(db DB) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Status returns the download status recorded for one dump, with found=false
// when no record exists yet.
func (s *Store) Status(ctx context.Context, dt state.ContentType, date time.Time) (string, bool, error) {
	var status string
	err := s.db.QueryRow(ctx,
		`SELECT download_status FROM daily_dumps WHERE dump_type = $1 AND dump_date = $2`,
		dt, dateOnly(date)).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query dump record: %w", err)
	}
	return status, true, nil
}

// MarkDownloading upserts the dump record into the downloading state.
func (s *Store) MarkDownloading(ctx context.Context, dt state.ContentType, date time.Time, url string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO daily_dumps (dump_type, dump_date, file_url, download_status, created_at)
		 VALUES ($1, $2, $3, 'downloading', $4)
		 ON CONFLICT (dump_type, dump_date) DO UPDATE
		 SET download_status = 'downloading', file_url = EXCLUDED.file_url`,
		dt, dateOnly(date), url, s.now())
	if err != nil {
		return fmt.Errorf("mark dump downloading: %w", err)
	}
	return nil
}

// MarkCompleted records a successful download with the parsed ID count.
func (s *Store) MarkCompleted(ctx context.Context, dt state.ContentType, date time.Time, totalIDs int) error {
	_, err := s.db.Exec(ctx,
		`UPDATE daily_dumps
		 SET download_status = 'completed', total_ids = $3, downloaded_at = $4
		 WHERE dump_type = $1 AND dump_date = $2`,
		dt, dateOnly(date), totalIDs, s.now())
	if err != nil {
		return fmt.Errorf("mark dump completed: %w", err)
	}
	return nil
}

// MarkFailed records a failed download so a later cycle can retry it.
func (s *Store) MarkFailed(ctx context.Context, dt state.ContentType, date time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE daily_dumps
		 SET download_status = 'failed'
		 WHERE dump_type = $1 AND dump_date = $2`,
		dt, dateOnly(date))
	if err != nil {
		return fmt.Errorf("mark dump failed: %w", err)
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
