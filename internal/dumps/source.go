package dumps

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/screenarc/tmdb-harvester/internal/state"
	"github.com/screenarc/tmdb-harvester/internal/telemetry"
)

// scanner buffer large enough for any dump line.
const maxLineBytes = 1 << 20

// Source downloads and parses the daily ID dumps.
type Source struct {
	store   *Store
	http    *http.Client
	baseURL string
	logger  *zap.Logger
}

// NewSource creates a Source with its own download client.
func NewSource(store *Store, baseURL string, timeout time.Duration, logger *zap.Logger) *Source {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Source{
		store:   store,
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		logger:  logger,
	}
}

// URL builds the deterministic dump location for one type and date.
func (s *Source) URL(dt state.ContentType, date time.Time) string {
	return fmt.Sprintf("%s/%s_ids_%s.json.gz", s.baseURL, dt, date.Format("01_02_2006"))
}

// Download fetches and parses one day's dump, returning the extracted IDs.
// A dump already recorded as completed short-circuits with no IDs. Download
// failures are recorded on the dump record and downgraded to an empty result
// so one dump type's failure never affects the other; only dump-record
// persistence errors propagate.
func (s *Source) Download(ctx context.Context, dt state.ContentType, date time.Time) ([]int64, error) {
	url := s.URL(dt, date)

	status, found, err := s.store.Status(ctx, dt, date)
	if err != nil {
		return nil, err
	}
	if found && status == "completed" {
		s.logger.Info("dump already downloaded",
			zap.String("dump_type", string(dt)),
			zap.Time("dump_date", date))
		return nil, nil
	}

	if err := s.store.MarkDownloading(ctx, dt, date, url); err != nil {
		return nil, err
	}

	ids, err := s.fetch(ctx, url)
	if err != nil {
		s.logger.Error("dump download failed",
			zap.String("dump_type", string(dt)),
			zap.String("url", url),
			zap.Error(err))
		if markErr := s.store.MarkFailed(ctx, dt, date); markErr != nil {
			return nil, markErr
		}
		return nil, nil
	}

	if err := s.store.MarkCompleted(ctx, dt, date, len(ids)); err != nil {
		return nil, err
	}
	telemetry.AddDumpIDs(string(dt), len(ids))
	s.logger.Info("dump downloaded",
		zap.String("dump_type", string(dt)),
		zap.Int("ids", len(ids)))
	return ids, nil
}

func (s *Source) fetch(ctx context.Context, url string) ([]int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build dump request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download dump: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dump request returned HTTP %d", resp.StatusCode)
	}
	return s.parse(resp.Body)
}

// parse reads gzip-compressed, newline-delimited JSON and extracts one ID
// per line. Malformed lines are skipped with a warning, not fatal.
func (s *Source) parse(r io.Reader) ([]int64, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer func() { _ = gz.Close() }()

	var ids []int64
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(line, &entry); err != nil || entry.ID <= 0 {
			s.logger.Warn("skipping malformed dump line", zap.ByteString("line", line))
			continue
		}
		ids = append(ids, entry.ID)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dump stream: %w", err)
	}
	return ids, nil
}
