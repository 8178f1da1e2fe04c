package source

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/orbital/orbwatch/internal/catalog"
)

const (
	issTLE = "ISS (ZARYA)\n" +
		"1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005\n" +
		"2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09\n"

	iss3LE = "0 ISS (ZARYA)\n" +
		"1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005\n" +
		"2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09\n"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestCelestrakFetch(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Query().Get("CATNR") != "25544" {
			http.Error(w, "unknown object", http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("FORMAT") != "tle" {
			http.Error(w, "bad format", http.StatusBadRequest)
			return
		}
		w.Write([]byte(issTLE))
	}))
	defer srv.Close()

	adapter := NewCelestrak(CelestrakConfig{BaseURL: srv.URL, RateLimit: time.Millisecond}, testLogger())
	if adapter.Name() != catalog.SourcePrimary {
		t.Errorf("Name = %q", adapter.Name())
	}

	snaps, err := adapter.Fetch(context.Background(), []int{25544})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(snaps))
	}
	if snaps[0].CatalogID != 25544 || snaps[0].Source != catalog.SourcePrimary {
		t.Errorf("snapshot = %+v", snaps[0])
	}
	if requests.Load() != 1 {
		t.Errorf("server saw %d requests, want 1", requests.Load())
	}
}

func TestCelestrakRetriesServerErrors(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		w.Write([]byte(issTLE))
	}))
	defer srv.Close()

	adapter := NewCelestrak(CelestrakConfig{BaseURL: srv.URL, RateLimit: time.Millisecond}, testLogger())

	snaps, err := adapter.Fetch(context.Background(), []int{25544})
	if err != nil {
		t.Fatalf("Fetch failed after retries: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(snaps))
	}
	if requests.Load() != 3 {
		t.Errorf("server saw %d requests, want 3 (two 502s then success)", requests.Load())
	}
}

func TestCelestrakToleratesPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("CATNR") == "25544" {
			w.Write([]byte(issTLE))
			return
		}
		http.Error(w, "unknown object", http.StatusNotFound)
	}))
	defer srv.Close()

	adapter := NewCelestrak(CelestrakConfig{BaseURL: srv.URL, RateLimit: time.Millisecond}, testLogger())

	snaps, err := adapter.Fetch(context.Background(), []int{25544, 99999})
	if err != nil {
		t.Fatalf("partial failure should not error: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(snaps))
	}
}

func TestCelestrakAllFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	adapter := NewCelestrak(CelestrakConfig{BaseURL: srv.URL, RateLimit: time.Millisecond}, testLogger())
	if _, err := adapter.Fetch(context.Background(), []int{1, 2}); err == nil {
		t.Fatal("expected error when every object fetch fails")
	}
}

func TestSpaceTrackFetchWithLogin(t *testing.T) {
	var logins, queries atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/ajaxauth/login":
			if r.FormValue("identity") != "watcher" || r.FormValue("password") != "hunter2" {
				http.Error(w, "bad credentials", http.StatusUnauthorized)
				return
			}
			logins.Add(1)
			w.Write([]byte(`""`))
		case strings.HasPrefix(r.URL.Path, "/basicspacedata/query/"):
			if logins.Load() == 0 {
				http.Error(w, "not logged in", http.StatusUnauthorized)
				return
			}
			queries.Add(1)
			if !strings.Contains(r.URL.Path, "NORAD_CAT_ID/25544") {
				http.Error(w, "unexpected query", http.StatusBadRequest)
				return
			}
			w.Write([]byte(iss3LE))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	adapter := NewSpaceTrack(SpaceTrackConfig{
		BaseURL:   srv.URL,
		Identity:  "watcher",
		Password:  "hunter2",
		RateLimit: time.Millisecond,
	}, testLogger())
	if adapter.Name() != catalog.SourceAuthoritative {
		t.Errorf("Name = %q", adapter.Name())
	}

	snaps, err := adapter.Fetch(context.Background(), []int{25544})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(snaps))
	}
	if snaps[0].Source != catalog.SourceAuthoritative {
		t.Errorf("Source = %q", snaps[0].Source)
	}
	if snaps[0].Name != "ISS (ZARYA)" {
		t.Errorf("Name = %q, want 3LE prefix stripped", snaps[0].Name)
	}

	// Session reuse: a second fetch must not log in again.
	if _, err := adapter.Fetch(context.Background(), []int{25544}); err != nil {
		t.Fatalf("second Fetch failed: %v", err)
	}
	if logins.Load() != 1 {
		t.Errorf("server saw %d logins, want 1", logins.Load())
	}
	if queries.Load() != 2 {
		t.Errorf("server saw %d queries, want 2", queries.Load())
	}
}

func TestSpaceTrackMissingCredentials(t *testing.T) {
	adapter := NewSpaceTrack(SpaceTrackConfig{BaseURL: "http://127.0.0.1:0", RateLimit: time.Millisecond}, testLogger())
	if _, err := adapter.Fetch(context.Background(), []int{25544}); err == nil {
		t.Fatal("expected error without credentials")
	}
}

func TestSpaceTrackEmptyIDList(t *testing.T) {
	adapter := NewSpaceTrack(SpaceTrackConfig{BaseURL: "http://127.0.0.1:0", Identity: "a", Password: "b"}, testLogger())
	snaps, err := adapter.Fetch(context.Background(), nil)
	if err != nil || snaps != nil {
		t.Errorf("empty id list: snaps=%v err=%v, want nil/nil", snaps, err)
	}
}

func TestStrip3LEPrefix(t *testing.T) {
	got := strip3LEPrefix(iss3LE)
	if strings.HasPrefix(got, "0 ") {
		t.Error("name prefix not stripped")
	}
	if !strings.HasPrefix(got, "ISS (ZARYA)") {
		t.Errorf("unexpected first line: %q", strings.SplitN(got, "\n", 2)[0])
	}
	// Element lines start with "1 "/"2 " and must pass through untouched.
	if !strings.Contains(got, "\n1 25544U") || !strings.Contains(got, "\n2 25544 ") {
		t.Error("element lines altered")
	}
}

func TestLimiterSpacing(t *testing.T) {
	limiter := NewLimiter(30 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}
	// First slot is immediate; the next two wait an interval each.
	if elapsed := time.Since(start); elapsed < 55*time.Millisecond {
		t.Errorf("3 requests took %v, want >= ~60ms", elapsed)
	}
}

func TestLimiterCancellation(t *testing.T) {
	limiter := NewLimiter(time.Hour)
	ctx := context.Background()
	if err := limiter.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := limiter.Wait(cancelled); err == nil {
		t.Fatal("expected context error from second Wait")
	}
}
