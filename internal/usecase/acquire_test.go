package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/prefetch/internal/progress"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/provider"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/repository/ledger"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/repository/store"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/tile"
)

type fetchEvent struct {
	url        string
	start, end time.Time
}

type fakeFetcher struct {
	mu       sync.Mutex
	fail     map[string]bool
	delay    map[string]time.Duration
	events   map[string]fetchEvent
	calls    int
	inFlight int
	maxInFly int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		fail:   make(map[string]bool),
		delay:  make(map[string]time.Duration),
		events: make(map[string]fetchEvent),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxInFly {
		f.maxInFly = f.inFlight
	}
	delay := f.delay[url]
	fail := f.fail[url]
	start := time.Now()
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.events[url] = fetchEvent{url: url, start: start, end: time.Now()}
	f.mu.Unlock()

	if fail {
		return nil, errors.New("upstream unavailable")
	}
	return []byte("png:" + url), nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testRegistry() *provider.Registry {
	r := provider.NewRegistry()
	r.Register("test", provider.TemplateFactory("test", "http://test/{z}/{x}/{y}"))
	r.Register("other", provider.TemplateFactory("other", "http://other/{z}/{x}/{y}?hl={locale}"))
	return r
}

type fixture struct {
	fetcher *fakeFetcher
	store   *store.FilesystemStore
	ledger  *ledger.Ledger
	acq     *Acquirer
}

func newFixture(t *testing.T, mode Mode, sink progress.Sink) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		fetcher: newFakeFetcher(),
		store:   store.NewFilesystemStore(filepath.Join(dir, "tiles")),
		ledger:  ledger.New(filepath.Join(dir, "failed_tiles.txt")),
	}
	f.acq = NewAcquirer(AcquirerConfig{
		Store:     f.store,
		Ledger:    f.ledger,
		Fetcher:   f.fetcher,
		Providers: testRegistry(),
		Sink:      sink,
		Mode:      mode,
	})
	return f
}

func coord(z, x, y uint32) tile.Coordinate {
	return tile.Coordinate{Provider: "test", Zoom: z, X: x, Y: y, Locale: "ru"}
}

func testURL(z, x, y uint32) string {
	return fmt.Sprintf("http://test/%d/%d/%d", z, x, y)
}

func TestAcquireRecordsFailuresAndContinues(t *testing.T) {
	f := newFixture(t, ModeBatch, nil)
	// third tile in order: z0 (0,0), z1 (0,0), z1 (0,1), ...
	f.fetcher.fail[testURL(1, 0, 1)] = true

	stats, err := f.acq.Acquire(context.Background(), AcquireRequest{
		Provider: "test", ZoomStart: 0, ZoomEnd: 1, Locale: "ru", Concurrency: 2,
	})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	want := Stats{Total: 5, Fetched: 4, Failed: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
	if n := f.fetcher.callCount(); n != 5 || len(f.fetcher.events) != 5 {
		t.Fatalf("%d fetches over %d distinct tiles, want each of the 5 tiles attempted once", n, len(f.fetcher.events))
	}

	records, err := f.ledger.DrainAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0] != coord(1, 0, 1) {
		t.Fatalf("ledger = %v, want only %v", records, coord(1, 0, 1))
	}

	for _, c := range []tile.Coordinate{coord(0, 0, 0), coord(1, 0, 0), coord(1, 1, 0), coord(1, 1, 1)} {
		ok, err := f.store.Exists(c)
		if err != nil || !ok {
			t.Errorf("tile %s not stored (err %v)", c, err)
		}
	}
	if ok, _ := f.store.Exists(coord(1, 0, 1)); ok {
		t.Errorf("failed tile was stored")
	}
}

func TestAcquireIsIdempotent(t *testing.T) {
	f := newFixture(t, ModeBatch, nil)
	req := AcquireRequest{Provider: "test", ZoomStart: 0, ZoomEnd: 2, Locale: "ru", Concurrency: 4}

	if _, err := f.acq.Acquire(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	first := f.fetcher.callCount()
	if first != 1+4+16 {
		t.Fatalf("first run fetched %d tiles, want 21", first)
	}

	path, _ := f.store.Path(coord(2, 3, 1))
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	stats, err := f.acq.Acquire(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if f.fetcher.callCount() != first {
		t.Fatalf("second run issued %d fetches", f.fetcher.callCount()-first)
	}
	if stats.Skipped != 21 || stats.Fetched != 0 {
		t.Fatalf("second run stats = %+v", stats)
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Fatalf("stored tile changed between runs")
	}
}

func TestAcquireBatchBarrier(t *testing.T) {
	f := newFixture(t, ModeBatch, nil)
	// zoom 1 in row-major order: (0,0) (0,1) | (1,0) (1,1)
	f.fetcher.delay[testURL(1, 0, 0)] = 80 * time.Millisecond

	if _, err := f.acq.Acquire(context.Background(), AcquireRequest{
		Provider: "test", ZoomStart: 1, ZoomEnd: 1, Concurrency: 2,
	}); err != nil {
		t.Fatal(err)
	}

	slow := f.fetcher.events[testURL(1, 0, 0)]
	next := f.fetcher.events[testURL(1, 1, 0)]
	if next.start.Before(slow.end) {
		t.Fatalf("second batch started before the first settled")
	}
	if f.fetcher.maxInFly > 2 {
		t.Fatalf("in flight = %d, want <= 2", f.fetcher.maxInFly)
	}
}

func TestAcquireWindowRefillsSlots(t *testing.T) {
	f := newFixture(t, ModeWindow, nil)
	f.fetcher.delay[testURL(1, 0, 0)] = 200 * time.Millisecond

	stats, err := f.acq.Acquire(context.Background(), AcquireRequest{
		Provider: "test", ZoomStart: 1, ZoomEnd: 1, Concurrency: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Fetched != 4 {
		t.Fatalf("stats = %+v", stats)
	}

	slow := f.fetcher.events[testURL(1, 0, 0)]
	next := f.fetcher.events[testURL(1, 1, 0)]
	if !next.start.Before(slow.end) {
		t.Fatalf("window mode waited for the slow tile")
	}
	if f.fetcher.maxInFly > 2 {
		t.Fatalf("in flight = %d, want <= 2", f.fetcher.maxInFly)
	}
}

func TestAcquireUnsupportedProvider(t *testing.T) {
	f := newFixture(t, ModeBatch, nil)

	_, err := f.acq.Acquire(context.Background(), AcquireRequest{
		Provider: "nope", ZoomStart: 0, ZoomEnd: 3, Concurrency: 2,
	})
	if !errors.Is(err, provider.ErrUnsupportedProvider) {
		t.Fatalf("err = %v, want ErrUnsupportedProvider", err)
	}
	if f.fetcher.callCount() != 0 {
		t.Fatalf("fetches issued for unknown provider")
	}
}

func TestAcquireRejectsInvalidRequest(t *testing.T) {
	f := newFixture(t, ModeBatch, nil)

	cases := map[string]AcquireRequest{
		"zoom end before start": {Provider: "test", ZoomStart: 3, ZoomEnd: 2, Concurrency: 1},
		"zoom too deep":         {Provider: "test", ZoomStart: 0, ZoomEnd: 23, Concurrency: 1},
		"no concurrency":        {Provider: "test", Concurrency: 0},
		"comma in locale":       {Provider: "test", Locale: "r,u", Concurrency: 1},
		"inverted bounds": {
			Provider: "test", Concurrency: 1,
			Bounds: &tile.BoundingBox{North: 10, South: 20, East: 5, West: 0},
		},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := f.acq.Acquire(context.Background(), req); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
	if f.fetcher.callCount() != 0 {
		t.Fatalf("fetches issued for invalid requests")
	}
}

func TestAcquireRespectsBounds(t *testing.T) {
	f := newFixture(t, ModeBatch, nil)
	box := &tile.BoundingBox{North: 56, South: 55, East: 38, West: 37}

	stats, err := f.acq.Acquire(context.Background(), AcquireRequest{
		Provider: "test", ZoomStart: 10, ZoomEnd: 10, Bounds: box, Concurrency: 6,
	})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != tile.Count(10, box) || stats.Fetched != stats.Total {
		t.Fatalf("stats = %+v, want %d fetched", stats, tile.Count(10, box))
	}

	lat, lon := box.Center()
	x, y, _ := tile.GeoToTile(lat, lon, 10)
	if ok, _ := f.store.Exists(tile.Coordinate{Provider: "test", Zoom: 10, X: x, Y: y}); !ok {
		t.Fatalf("center tile %d/%d not fetched", x, y)
	}
}

func TestAcquireCancelled(t *testing.T) {
	f := newFixture(t, ModeBatch, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.acq.Acquire(ctx, AcquireRequest{
		Provider: "test", ZoomStart: 0, ZoomEnd: 4, Concurrency: 2,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if f.fetcher.callCount() != 0 {
		t.Fatalf("fetches issued after cancellation")
	}
}

func TestAcquireProgressIsMonotonic(t *testing.T) {
	var mu sync.Mutex
	var reports []progress.Report
	sink := progress.SinkFunc(func(r progress.Report) {
		mu.Lock()
		reports = append(reports, r)
		mu.Unlock()
	})

	for _, mode := range []Mode{ModeBatch, ModeWindow} {
		t.Run(string(mode), func(t *testing.T) {
			reports = nil
			f := newFixture(t, mode, sink)
			if _, err := f.acq.Acquire(context.Background(), AcquireRequest{
				Provider: "test", ZoomStart: 3, ZoomEnd: 3, Concurrency: 5,
			}); err != nil {
				t.Fatal(err)
			}

			if len(reports) != 64 {
				t.Fatalf("got %d reports, want 64", len(reports))
			}
			for i, r := range reports {
				if r.Completed != uint64(i+1) || r.Total != 64 {
					t.Fatalf("report %d = %d/%d", i, r.Completed, r.Total)
				}
			}
			if reports[63].Percent() != 100 {
				t.Fatalf("final percent = %v", reports[63].Percent())
			}
		})
	}
}

func TestRetryConverges(t *testing.T) {
	f := newFixture(t, ModeBatch, nil)
	failing := []tile.Coordinate{coord(5, 1, 1), coord(5, 2, 2), coord(5, 3, 3)}
	if err := f.ledger.Replace(failing); err != nil {
		t.Fatal(err)
	}
	f.fetcher.fail[testURL(5, 2, 2)] = true

	stats, err := f.acq.Retry(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Fetched != 2 || stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	records, err := f.ledger.DrainAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0] != coord(5, 2, 2) {
		t.Fatalf("ledger = %v", records)
	}

	f.fetcher.fail[testURL(5, 2, 2)] = false
	if _, err := f.acq.Retry(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(f.ledger.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("ledger file still present: %v", err)
	}
}

func TestRetryUsesRecordedProvider(t *testing.T) {
	f := newFixture(t, ModeBatch, nil)
	records := []tile.Coordinate{
		coord(2, 1, 1),
		{Provider: "other", Zoom: 2, X: 1, Y: 1, Locale: "en"},
		{Provider: "gone", Zoom: 2, X: 0, Y: 0, Locale: "en"},
	}
	if err := f.ledger.Replace(records); err != nil {
		t.Fatal(err)
	}

	stats, err := f.acq.Retry(context.Background(), 4)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Fetched != 2 || stats.Failed != 1 || stats.Total != 3 {
		t.Fatalf("stats = %+v", stats)
	}
	if _, ok := f.fetcher.events["http://other/2/1/1?hl=en"]; !ok {
		t.Fatalf("other provider url not requested: %v", f.fetcher.events)
	}

	left, err := f.ledger.DrainAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || left[0].Provider != "gone" {
		t.Fatalf("ledger = %v", left)
	}
}

func TestRetryEmptyLedger(t *testing.T) {
	f := newFixture(t, ModeBatch, nil)

	stats, err := f.acq.Retry(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if stats != (Stats{}) || f.fetcher.callCount() != 0 {
		t.Fatalf("stats = %+v, calls = %d", stats, f.fetcher.callCount())
	}
}

func TestRetryCancelledKeepsLedger(t *testing.T) {
	f := newFixture(t, ModeBatch, nil)
	if err := f.ledger.Replace([]tile.Coordinate{coord(1, 0, 0), coord(1, 1, 1)}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.acq.Retry(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	data, err := os.ReadFile(f.ledger.Path())
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "\n"); n != 2 {
		t.Fatalf("ledger has %d lines, want 2", n)
	}
}

type brokenLedger struct{ ledger.Ledger }

func (*brokenLedger) Append(tile.Coordinate) error { return ledger.ErrLedgerIO }

func TestAcquireAbortsOnLedgerFailure(t *testing.T) {
	f := newFixture(t, ModeBatch, nil)
	f.acq.ledger = &brokenLedger{}
	f.fetcher.fail[testURL(0, 0, 0)] = true

	_, err := f.acq.Acquire(context.Background(), AcquireRequest{
		Provider: "test", ZoomStart: 0, ZoomEnd: 3, Concurrency: 1,
	})
	if !errors.Is(err, ledger.ErrLedgerIO) {
		t.Fatalf("err = %v, want ErrLedgerIO", err)
	}
	if f.fetcher.callCount() != 1 {
		t.Fatalf("run continued after ledger failure: %d fetches", f.fetcher.callCount())
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeBatch, "batch": ModeBatch, "window": ModeWindow} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("burst"); err == nil {
		t.Errorf("expected error for unknown mode")
	}
}
