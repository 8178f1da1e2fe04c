package view

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/orbital/orbwatch/internal/reconcile"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestTrackerEmpty(t *testing.T) {
	tracker := NewTracker(nil, testLogger())

	if _, ok := tracker.Get(25544); ok {
		t.Error("Get on empty tracker returned a view")
	}
	views, updatedAt := tracker.All()
	if views != nil || !updatedAt.IsZero() {
		t.Errorf("All on empty tracker = %v @ %v", views, updatedAt)
	}
}

func TestTrackerReplaceAndGet(t *testing.T) {
	tracker := NewTracker(nil, testLogger())
	now := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

	tracker.Replace(context.Background(), map[int]ObjectView{
		25544: {CatalogID: 25544, Name: "ISS", UpdatedAt: now},
		44713: {CatalogID: 44713, Name: "STARLINK-1007", UpdatedAt: now},
	}, now)

	v, ok := tracker.Get(25544)
	if !ok || v.Name != "ISS" {
		t.Errorf("Get(25544) = %+v, %v", v, ok)
	}
	if _, ok := tracker.Get(99999); ok {
		t.Error("Get returned an untracked object")
	}

	views, updatedAt := tracker.All()
	if len(views) != 2 {
		t.Errorf("All returned %d views, want 2", len(views))
	}
	if !updatedAt.Equal(now) {
		t.Errorf("updatedAt = %v, want %v", updatedAt, now)
	}
}

// A replace fully supersedes the previous snapshot; dropped objects vanish.
func TestTrackerReplaceSupersedes(t *testing.T) {
	tracker := NewTracker(nil, testLogger())
	now := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

	tracker.Replace(context.Background(), map[int]ObjectView{
		25544: {CatalogID: 25544, Name: "ISS"},
	}, now)

	later := now.Add(time.Minute)
	tracker.Replace(context.Background(), map[int]ObjectView{
		44713: {CatalogID: 44713, Name: "STARLINK-1007", Health: reconcile.ObjectHealth{CatalogID: 44713}},
	}, later)

	if _, ok := tracker.Get(25544); ok {
		t.Error("stale object survived the replace")
	}
	if _, ok := tracker.Get(44713); !ok {
		t.Error("new object missing after replace")
	}
	if _, updatedAt := tracker.All(); !updatedAt.Equal(later) {
		t.Errorf("updatedAt = %v, want %v", updatedAt, later)
	}
}

func TestTrackerConcurrentReads(t *testing.T) {
	tracker := NewTracker(nil, testLogger())
	now := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			tracker.Replace(context.Background(), map[int]ObjectView{
				25544: {CatalogID: 25544, UpdatedAt: now},
			}, now.Add(time.Duration(i)*time.Second))
		}
	}()

	for i := 0; i < 1000; i++ {
		tracker.Get(25544)
		tracker.All()
	}
	<-done
}
