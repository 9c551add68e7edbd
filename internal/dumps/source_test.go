package dumps

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/screenarc/tmdb-harvester/internal/state"
)

var dumpDate = time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

func gzipBody(t *testing.T, lines ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	for _, line := range lines {
		_, err := gz.Write([]byte(line + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func newTestSource(t *testing.T, baseURL string) (*Source, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store := NewStore(mock)
	store.now = func() time.Time { return dumpDate }
	return NewSource(store, baseURL, 5*time.Second, zap.NewNop()), mock
}

func TestURLFormat(t *testing.T) {
	t.Parallel()

	src, _ := newTestSource(t, "https://files.example.org/p/exports")
	require.Equal(t,
		"https://files.example.org/p/exports/movie_ids_08_30_2026.json.gz",
		src.URL(state.Movie, dumpDate))
	require.Equal(t,
		"https://files.example.org/p/exports/tv_series_ids_08_30_2026.json.gz",
		src.URL(state.TVSeries, dumpDate))
}

func TestDownloadParsesIDsAndSkipsMalformedLines(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/movie_ids_08_30_2026.json.gz", r.URL.Path)
		_, _ = w.Write(gzipBody(t,
			`{"id": 550, "original_title": "Fight Club", "popularity": 61.4}`,
			`not json at all`,
			`{"popularity": 1.2}`,
			`{"id": 603, "original_title": "The Matrix"}`,
		))
	}))
	defer srv.Close()

	src, mock := newTestSource(t, srv.URL)

	mock.ExpectQuery("SELECT download_status FROM daily_dumps").
		WithArgs(state.Movie, dumpDate).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO daily_dumps").
		WithArgs(state.Movie, dumpDate, srv.URL+"/movie_ids_08_30_2026.json.gz", dumpDate).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("SET download_status = 'completed'").
		WithArgs(state.Movie, dumpDate, 2, dumpDate).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ids, err := src.Download(context.Background(), state.Movie, dumpDate)
	require.NoError(t, err)
	require.Equal(t, []int64{550, 603}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDownloadShortCircuitsWhenCompleted(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("completed dump must not be re-downloaded")
	}))
	defer srv.Close()

	src, mock := newTestSource(t, srv.URL)

	mock.ExpectQuery("SELECT download_status FROM daily_dumps").
		WithArgs(state.Movie, dumpDate).
		WillReturnRows(pgxmock.NewRows([]string{"download_status"}).AddRow("completed"))

	ids, err := src.Download(context.Background(), state.Movie, dumpDate)
	require.NoError(t, err)
	require.Nil(t, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDownloadMarksFailedOn404WithoutRaising(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	src, mock := newTestSource(t, srv.URL)

	mock.ExpectQuery("SELECT download_status FROM daily_dumps").
		WithArgs(state.TVSeries, dumpDate).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO daily_dumps").
		WithArgs(state.TVSeries, dumpDate, srv.URL+"/tv_series_ids_08_30_2026.json.gz", dumpDate).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("SET download_status = 'failed'").
		WithArgs(state.TVSeries, dumpDate).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ids, err := src.Download(context.Background(), state.TVSeries, dumpDate)
	require.NoError(t, err, "a download failure is isolated, not raised")
	require.Nil(t, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDownloadRetriesAfterPreviousFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(gzipBody(t, `{"id": 42}`))
	}))
	defer srv.Close()

	src, mock := newTestSource(t, srv.URL)

	mock.ExpectQuery("SELECT download_status FROM daily_dumps").
		WithArgs(state.Movie, dumpDate).
		WillReturnRows(pgxmock.NewRows([]string{"download_status"}).AddRow("failed"))
	mock.ExpectExec("INSERT INTO daily_dumps").
		WithArgs(state.Movie, dumpDate, srv.URL+"/movie_ids_08_30_2026.json.gz", dumpDate).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("SET download_status = 'completed'").
		WithArgs(state.Movie, dumpDate, 1, dumpDate).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ids, err := src.Download(context.Background(), state.Movie, dumpDate)
	require.NoError(t, err)
	require.Equal(t, []int64{42}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
