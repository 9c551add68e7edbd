package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/screenarc/tmdb-harvester/internal/state"
	"github.com/screenarc/tmdb-harvester/internal/tmdb"
)

type fakeStore struct {
	mu        sync.Mutex
	batches   map[state.ContentType][]state.Item
	completed []int64
	failed    map[int64]string
	seeded    map[state.ContentType][]int64
	refreshed []state.ContentType

	emptySeen int
	onDrained func()
}

func newFakeStore(onDrained func()) *fakeStore {
	return &fakeStore{
		batches: map[state.ContentType][]state.Item{},
		failed:  map[int64]string{},
		seeded:  map[state.ContentType][]int64{},

		onDrained: onDrained,
	}
}

func (f *fakeStore) SeedIDs(_ context.Context, ct state.ContentType, ids []int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeded[ct] = append(f.seeded[ct], ids...)
	return len(ids), nil
}

func (f *fakeStore) PendingBatch(_ context.Context, ct state.ContentType, _ int) ([]state.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := f.batches[ct]
	f.batches[ct] = nil
	if len(batch) == 0 {
		f.emptySeen++
		// Both passes have drained their queues.
		if f.emptySeen == 2 && f.onDrained != nil {
			f.onDrained()
		}
	}
	return batch, nil
}

func (f *fakeStore) EligibleCount(context.Context, state.ContentType) (int64, error) {
	return 0, nil
}

func (f *fakeStore) MarkProcessing(context.Context, int64) error { return nil }

func (f *fakeStore) MarkCompleted(_ context.Context, stateID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, stateID)
	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, stateID int64, errText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[stateID] = errText
	return nil
}

func (f *fakeStore) RecoverStuck(context.Context, state.ContentType, time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakeStore) ScheduleRefresh(_ context.Context, ct state.ContentType, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, ct)
	return 0, nil
}

func (f *fakeStore) Statistics(context.Context, state.ContentType) (state.Stats, error) {
	return state.Stats{}, nil
}

type fakeFetcher struct {
	mu       sync.Mutex
	movieErr error
	tvErr    error
	delay    time.Duration
	fetched  []int64
}

func (f *fakeFetcher) MovieDetails(ctx context.Context, id int64) (*tmdb.Movie, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, id)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.movieErr != nil {
		return nil, f.movieErr
	}
	return &tmdb.Movie{ID: id, Title: "Payload"}, nil
}

func (f *fakeFetcher) TVSeriesDetails(_ context.Context, id int64) (*tmdb.TVSeries, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, id)
	f.mu.Unlock()
	if f.tvErr != nil {
		return nil, f.tvErr
	}
	return &tmdb.TVSeries{ID: id, Name: "Payload"}, nil
}

type fakeNormalizer struct {
	mu     sync.Mutex
	movies []int64
	series []int64
	err    error
}

func (f *fakeNormalizer) NormalizeMovie(_ context.Context, m *tmdb.Movie) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.movies = append(f.movies, m.ID)
	return nil
}

func (f *fakeNormalizer) NormalizeTVSeries(_ context.Context, s *tmdb.TVSeries) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.series = append(f.series, s.ID)
	return nil
}

type fakeDumps struct {
	mu  sync.Mutex
	ids map[state.ContentType][]int64
	got []state.ContentType
}

func (f *fakeDumps) Download(_ context.Context, dt state.ContentType, _ time.Time) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, dt)
	return f.ids[dt], nil
}

func testConfig() Config {
	return Config{
		BatchSize:          10,
		CheckpointInterval: 100,
		StuckThreshold:     time.Hour,
		Staleness:          30 * 24 * time.Hour,
		DumpInterval:       time.Hour,
		UpdateInterval:     time.Hour,
		IdlePollMax:        time.Millisecond,
	}
}

func runOnce(t *testing.T, store *fakeStore, fetcher *fakeFetcher, norm *fakeNormalizer, dumps *fakeDumps) *Orchestrator {
	t.Helper()
	o := New(testConfig(), fetcher, norm, store, dumps, zap.NewNop())
	store.onDrained = o.Stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Run(ctx))
	return o
}

func TestRunProcessesPendingMovies(t *testing.T) {
	store := newFakeStore(nil)
	store.batches[state.Movie] = []state.Item{
		{StateID: 1, ContentID: 550},
		{StateID: 2, ContentID: 603},
	}
	fetcher := &fakeFetcher{}
	norm := &fakeNormalizer{}

	runOnce(t, store, fetcher, norm, &fakeDumps{})

	require.ElementsMatch(t, []int64{1, 2}, store.completed)
	require.ElementsMatch(t, []int64{550, 603}, norm.movies)
	require.Empty(t, store.failed)
}

func TestRunProcessesPendingSeries(t *testing.T) {
	store := newFakeStore(nil)
	store.batches[state.TVSeries] = []state.Item{{StateID: 7, ContentID: 1399}}
	fetcher := &fakeFetcher{}
	norm := &fakeNormalizer{}

	runOnce(t, store, fetcher, norm, &fakeDumps{})

	require.Equal(t, []int64{7}, store.completed)
	require.Equal(t, []int64{1399}, norm.series)
}

func TestRunMarksGoneItemsCompleted(t *testing.T) {
	store := newFakeStore(nil)
	store.batches[state.Movie] = []state.Item{{StateID: 3, ContentID: 999}}
	fetcher := &fakeFetcher{movieErr: tmdb.ErrNotFound}
	norm := &fakeNormalizer{}

	runOnce(t, store, fetcher, norm, &fakeDumps{})

	require.Equal(t, []int64{3}, store.completed)
	require.Empty(t, store.failed)
	require.Empty(t, norm.movies)
}

func TestRunMarksFetchFailures(t *testing.T) {
	store := newFakeStore(nil)
	store.batches[state.Movie] = []state.Item{{StateID: 4, ContentID: 42}}
	fetcher := &fakeFetcher{movieErr: errors.New("upstream exploded")}
	norm := &fakeNormalizer{}

	runOnce(t, store, fetcher, norm, &fakeDumps{})

	require.Empty(t, store.completed)
	require.Contains(t, store.failed[4], "upstream exploded")
}

func TestRunMarksNormalizationFailures(t *testing.T) {
	store := newFakeStore(nil)
	store.batches[state.Movie] = []state.Item{{StateID: 5, ContentID: 550}}
	fetcher := &fakeFetcher{}
	norm := &fakeNormalizer{err: errors.New("constraint violated")}

	runOnce(t, store, fetcher, norm, &fakeDumps{})

	require.Empty(t, store.completed)
	require.Contains(t, store.failed[5], "constraint violated")
}

func TestRunSeedsDumpIDs(t *testing.T) {
	store := newFakeStore(nil)
	dumps := &fakeDumps{ids: map[state.ContentType][]int64{
		state.Movie:    {550, 603},
		state.TVSeries: {1399},
	}}

	runOnce(t, store, &fakeFetcher{}, &fakeNormalizer{}, dumps)

	require.ElementsMatch(t, []state.ContentType{state.Movie, state.TVSeries}, dumps.got)
	require.Equal(t, []int64{550, 603}, store.seeded[state.Movie])
	require.Equal(t, []int64{1399}, store.seeded[state.TVSeries])
}

func TestShutdownAllowsInFlightBatchToFinish(t *testing.T) {
	store := newFakeStore(nil)
	store.batches[state.Movie] = []state.Item{{StateID: 1, ContentID: 550}}
	fetcher := &fakeFetcher{delay: 300 * time.Millisecond}
	norm := &fakeNormalizer{}
	o := New(testConfig(), fetcher, norm, store, &fakeDumps{}, zap.NewNop())

	// Mirrors the binary's shutdown wiring: the signal context is canceled,
	// but Run gets a detached context so only the running flag stops work.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(context.WithoutCancel(ctx)) }()

	time.Sleep(100 * time.Millisecond)
	o.Stop()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after shutdown request")
	}
	require.Equal(t, []int64{1}, store.completed, "in-flight item must finish")
	require.Equal(t, []int64{550}, norm.movies)
	require.Empty(t, store.failed)
}

func TestRunSchedulesStalenessRefresh(t *testing.T) {
	store := newFakeStore(nil)

	runOnce(t, store, &fakeFetcher{}, &fakeNormalizer{}, &fakeDumps{})

	require.ElementsMatch(t, []state.ContentType{state.Movie, state.TVSeries}, store.refreshed)
}
