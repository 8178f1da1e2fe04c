// orbdiag is an offline diagnostic: parse an element file, propagate every
// object to now, and scan the per-object history for maneuvers.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/orbital/orbwatch/internal/catalog"
	"github.com/orbital/orbwatch/internal/maneuver"
	"github.com/orbital/orbwatch/internal/propagation"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	path := flag.String("file", "", "path to a 3-line element file")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "usage: orbdiag -file elements.txt")
		os.Exit(2)
	}

	f, err := os.Open(*path)
	if err != nil {
		fmt.Println("ERROR opening element file:", err)
		os.Exit(1)
	}
	defer f.Close()

	now := time.Now().UTC()
	snaps, err := catalog.Parse(f, catalog.SourcePrimary, now, logger)
	if err != nil {
		fmt.Println("ERROR parsing elements:", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d element snapshots\n", len(snaps))

	history := make(map[int][]catalog.ElementSnapshot)
	for _, snap := range snaps {
		history[snap.CatalogID] = append(history[snap.CatalogID], snap)

		state, err := propagation.PropagateSnapshot(snap, now)
		if err != nil {
			fmt.Printf("  object %d: propagation ERROR: %v\n", snap.CatalogID, err)
			continue
		}
		fmt.Printf("  object %d (%s): lat=%.2f lon=%.2f alt=%.0fkm confidence=%s\n",
			snap.CatalogID, snap.Name,
			state.Geodetic.LatDeg, state.Geodetic.LonDeg, state.Geodetic.AltM/1000.0,
			state.Confidence)
	}

	totalEvents := 0
	for id, snaps := range history {
		events := maneuver.Detect(snaps, now)
		for _, ev := range events {
			fmt.Printf("  object %d: %s maneuver on %s (alt Δ%.2fkm, inc Δ%.4f°)\n",
				id, ev.Class, ev.DayBucket(), ev.AltitudeDeltaKm, ev.InclinationDelta)
		}
		totalEvents += len(events)
	}
	fmt.Printf("Detected %d maneuver events\n", totalEvents)
}
