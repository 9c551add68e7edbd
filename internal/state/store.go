// Package state implements the durable per-item processing ledger: the
// pending/processing/completed/failed state machine, stuck-row recovery,
// staleness re-checks and the administrative retry actions.
package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// ContentType distinguishes the two harvested catalogs.
type ContentType string

// Supported content types.
const (
	Movie    ContentType = "movie"
	TVSeries ContentType = "tv_series"
)

// Valid reports whether ct is a known content type.
func (ct ContentType) Valid() bool {
	return ct == Movie || ct == TVSeries
}

// ParseContentType validates a raw string from an external caller.
func ParseContentType(s string) (ContentType, error) {
	ct := ContentType(s)
	if !ct.Valid() {
		return "", fmt.Errorf("unknown content type %q", s)
	}
	return ct, nil
}

const maxErrorLen = 1000

// Administrative retry outcomes for rows the reset could not touch.
var (
	ErrNotTracked = errors.New("item not tracked")
	ErrNotFailed  = errors.New("item not in failed state")
)

// DB is the slice of pgxpool.Pool the store needs; pgxmock satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Item is one claimable ledger row.
type Item struct {
	StateID   int64
	ContentID int64
}

// Stats summarizes one content type's ledger for observability.
type Stats struct {
	Total             int64
	Completed         int64
	Failed            int64
	PermanentlyFailed int64
	Pending           int64
	Processing        int64
}

// CompletionRate returns the completed percentage, zero when empty.
func (s Stats) CompletionRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total) * 100
}

// Store persists processing state in Postgres.
type Store struct {
	db         DB
	maxRetries int
	logger     *zap.Logger
	now        func() time.Time
}

// NewStore creates a Store. maxRetries bounds automatic re-selection of
// failed rows.
func NewStore(db DB, maxRetries int, logger *zap.Logger) *Store {
	return &Store{
		db:         db,
		maxRetries: maxRetries,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SeedIDs inserts the unseen subset of ids as pending rows and returns how
// many were new. Re-running with the same ids inserts nothing further.
func (s *Store) SeedIDs(ctx context.Context, ct ContentType, ids []int64) (int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT content_id FROM processing_state WHERE content_type = $1`, ct)
	if err != nil {
		return 0, fmt.Errorf("query tracked ids: %w", err)
	}
	defer rows.Close()

	seen := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("scan tracked id: %w", err)
		}
		seen[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate tracked ids: %w", err)
	}

	inserted := 0
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		_, err := s.db.Exec(ctx,
			`INSERT INTO processing_state (content_type, content_id, status, attempts, created_at)
			 VALUES ($1, $2, 'pending', 0, $3)`,
			ct, id, s.now())
		if err != nil {
			return inserted, fmt.Errorf("insert pending state for %s %d: %w", ct, id, err)
		}
		seen[id] = struct{}{}
		inserted++
	}
	if inserted > 0 {
		s.logger.Info("seeded new ids",
			zap.String("content_type", string(ct)),
			zap.Int("count", inserted))
	}
	return inserted, nil
}

// PendingBatch returns up to limit rows eligible for processing: pending or
// failed with retries left. Permanently exhausted failures are excluded.
func (s *Store) PendingBatch(ctx context.Context, ct ContentType, limit int) ([]Item, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, content_id FROM processing_state
		 WHERE content_type = $1 AND status IN ('pending', 'failed') AND attempts < $2
		 LIMIT $3`,
		ct, s.maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending batch: %w", err)
	}
	defer rows.Close()

	var batch []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.StateID, &it.ContentID); err != nil {
			return nil, fmt.Errorf("scan pending row: %w", err)
		}
		batch = append(batch, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending batch: %w", err)
	}
	return batch, nil
}

// EligibleCount counts rows a future batch could claim.
func (s *Store) EligibleCount(ctx context.Context, ct ContentType) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM processing_state
		 WHERE content_type = $1 AND status IN ('pending', 'failed') AND attempts < $2`,
		ct, s.maxRetries).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count eligible rows: %w", err)
	}
	return n, nil
}

// MarkProcessing claims one row: status becomes processing, attempts
// increments, last_attempt_at is stamped. The status guard keeps a racing
// claim from resurrecting a row that just completed.
func (s *Store) MarkProcessing(ctx context.Context, stateID int64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE processing_state
		 SET status = 'processing', attempts = attempts + 1, last_attempt_at = $2
		 WHERE id = $1 AND status IN ('pending', 'processing', 'failed')`,
		stateID, s.now())
	if err != nil {
		return fmt.Errorf("mark processing %d: %w", stateID, err)
	}
	return nil
}

// MarkCompleted finishes one row successfully and clears any stored error.
func (s *Store) MarkCompleted(ctx context.Context, stateID int64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE processing_state
		 SET status = 'completed', completed_at = $2, last_error = NULL
		 WHERE id = $1`,
		stateID, s.now())
	if err != nil {
		return fmt.Errorf("mark completed %d: %w", stateID, err)
	}
	return nil
}

// MarkFailed records a failure with the error text truncated for operator
// inspection.
func (s *Store) MarkFailed(ctx context.Context, stateID int64, errText string) error {
	if len(errText) > maxErrorLen {
		errText = errText[:maxErrorLen]
	}
	_, err := s.db.Exec(ctx,
		`UPDATE processing_state
		 SET status = 'failed', last_error = $2, last_attempt_at = $3
		 WHERE id = $1`,
		stateID, errText, s.now())
	if err != nil {
		return fmt.Errorf("mark failed %d: %w", stateID, err)
	}
	return nil
}

// RecoverStuck reverts processing rows abandoned longer than olderThan back
// to pending so a future batch can reclaim them.
func (s *Store) RecoverStuck(ctx context.Context, ct ContentType, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan)
	tag, err := s.db.Exec(ctx,
		`UPDATE processing_state
		 SET status = 'pending'
		 WHERE content_type = $1 AND status = 'processing' AND last_attempt_at < $2`,
		ct, cutoff)
	if err != nil {
		return 0, fmt.Errorf("recover stuck rows: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		s.logger.Warn("recovered stuck processing rows",
			zap.String("content_type", string(ct)),
			zap.Int64("count", n))
		return n, nil
	}
	return 0, nil
}

// ScheduleRefresh re-queues completed items whose content row has not been
// refreshed within the staleness window. Attempts reset so the re-fetch gets
// a full retry budget.
func (s *Store) ScheduleRefresh(ctx context.Context, ct ContentType, staleness time.Duration) (int64, error) {
	table := "movies"
	if ct == TVSeries {
		table = "tv_series"
	}
	cutoff := s.now().Add(-staleness)
	tag, err := s.db.Exec(ctx,
		fmt.Sprintf(`UPDATE processing_state
		 SET status = 'pending', attempts = 0, last_error = NULL
		 WHERE content_type = $1 AND content_id IN (
			SELECT id FROM %s WHERE updated_at < $2
		 )`, table),
		ct, cutoff)
	if err != nil {
		return 0, fmt.Errorf("schedule refresh: %w", err)
	}
	n := tag.RowsAffected()
	if n > 0 {
		s.logger.Info("scheduled stale items for refresh",
			zap.String("content_type", string(ct)),
			zap.Int64("count", n))
	}
	return n, nil
}

// RetryItem resets one failed item to pending. A miss is classified:
// ErrNotTracked when no row exists, ErrNotFailed when the row is in another
// state.
func (s *Store) RetryItem(ctx context.Context, ct ContentType, contentID int64) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE processing_state
		 SET status = 'pending', attempts = 0, last_error = NULL
		 WHERE content_type = $1 AND content_id = $2 AND status = 'failed'`,
		ct, contentID)
	if err != nil {
		return 0, fmt.Errorf("retry item %s %d: %w", ct, contentID, err)
	}
	if n := tag.RowsAffected(); n > 0 {
		return n, nil
	}

	var tracked int64
	err = s.db.QueryRow(ctx,
		`SELECT count(*) FROM processing_state
		 WHERE content_type = $1 AND content_id = $2`,
		ct, contentID).Scan(&tracked)
	if err != nil {
		return 0, fmt.Errorf("check item %s %d: %w", ct, contentID, err)
	}
	if tracked == 0 {
		return 0, ErrNotTracked
	}
	return 0, ErrNotFailed
}

// RetryAllFailed resets every failed row to pending, optionally filtered by
// content type (empty means both).
func (s *Store) RetryAllFailed(ctx context.Context, ct ContentType) (int64, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if ct == "" {
		tag, err = s.db.Exec(ctx,
			`UPDATE processing_state
			 SET status = 'pending', attempts = 0, last_error = NULL
			 WHERE status = 'failed'`)
	} else {
		tag, err = s.db.Exec(ctx,
			`UPDATE processing_state
			 SET status = 'pending', attempts = 0, last_error = NULL
			 WHERE status = 'failed' AND content_type = $1`,
			ct)
	}
	if err != nil {
		return 0, fmt.Errorf("retry all failed: %w", err)
	}
	n := tag.RowsAffected()
	s.logger.Info("reset failed items for retry",
		zap.String("content_type", string(ct)),
		zap.Int64("count", n))
	return n, nil
}

// Statistics returns per-status counts for one content type.
func (s *Store) Statistics(ctx context.Context, ct ContentType) (Stats, error) {
	var st Stats
	err := s.db.QueryRow(ctx,
		`SELECT count(*),
			count(*) FILTER (WHERE status = 'completed'),
			count(*) FILTER (WHERE status = 'failed'),
			count(*) FILTER (WHERE status = 'failed' AND attempts >= $2),
			count(*) FILTER (WHERE status = 'pending'),
			count(*) FILTER (WHERE status = 'processing')
		 FROM processing_state WHERE content_type = $1`,
		ct, s.maxRetries).Scan(
		&st.Total, &st.Completed, &st.Failed, &st.PermanentlyFailed,
		&st.Pending, &st.Processing)
	if err != nil {
		return Stats{}, fmt.Errorf("query statistics: %w", err)
	}
	return st, nil
}
