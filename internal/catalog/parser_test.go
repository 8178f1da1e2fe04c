package catalog

import (
	"log/slog"
	"math"
	"os"
	"strings"
	"testing"
	"time"
)

// ISS element set (epoch 2024 day 100.5 = April 9, 12:00 UTC).
const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestParseLinesFields(t *testing.T) {
	snap, err := ParseLines("ISS (ZARYA)", issLine1, issLine2)
	if err != nil {
		t.Fatalf("ParseLines failed: %v", err)
	}

	if snap.CatalogID != 25544 {
		t.Errorf("CatalogID = %d, want 25544", snap.CatalogID)
	}

	wantEpoch := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	if !snap.Epoch.Equal(wantEpoch) {
		t.Errorf("Epoch = %v, want %v", snap.Epoch, wantEpoch)
	}

	approx := func(name string, got, want, tol float64) {
		t.Helper()
		if math.Abs(got-want) > tol {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
	approx("InclinationDeg", snap.InclinationDeg, 51.64, 1e-9)
	approx("RAANDeg", snap.RAANDeg, 100.0, 1e-9)
	approx("Eccentricity", snap.Eccentricity, 0.0001, 1e-12)
	approx("MeanMotion", snap.MeanMotion, 15.5, 1e-9)
	approx("MeanMotionDot", snap.MeanMotionDot, 0.00016717, 1e-12)
	approx("Bstar", snap.Bstar, 1.0270e-4, 1e-9)

	// ISS sits near 420km; derived apsides should land in that band.
	if snap.PeriapsisKm < 380 || snap.ApoapsisKm > 460 {
		t.Errorf("apsides [%f, %f] km, want ~420km band", snap.PeriapsisKm, snap.ApoapsisKm)
	}
	approx("PeriodMin", snap.PeriodMin, 1440.0/15.5, 1e-9)

	if snap.Line1 != issLine1 || snap.Line2 != issLine2 {
		t.Error("verbatim lines not preserved")
	}
}

func TestParseTagsSourceAndFetchTime(t *testing.T) {
	input := "ISS (ZARYA)\n" + issLine1 + "\n" + issLine2 + "\n"
	fetchedAt := time.Date(2024, 4, 9, 14, 0, 0, 0, time.UTC)

	snaps, err := Parse(strings.NewReader(input), SourceAuthoritative, fetchedAt, testLogger())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(snaps))
	}
	if snaps[0].Source != SourceAuthoritative {
		t.Errorf("Source = %q, want %q", snaps[0].Source, SourceAuthoritative)
	}
	if !snaps[0].FetchedAt.Equal(fetchedAt) {
		t.Errorf("FetchedAt = %v, want %v", snaps[0].FetchedAt, fetchedAt)
	}
	if snaps[0].Name != "ISS (ZARYA)" {
		t.Errorf("Name = %q", snaps[0].Name)
	}
}

func TestParseSkipsMalformedEntries(t *testing.T) {
	input := "GARBAGE\nnot a line 1\nnot a line 2\nISS (ZARYA)\n" + issLine1 + "\n" + issLine2 + "\n"

	snaps, err := Parse(strings.NewReader(input), SourcePrimary, time.Now(), testLogger())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("got %d snapshots, want 1 (malformed entry skipped)", len(snaps))
	}
	if snaps[0].CatalogID != 25544 {
		t.Errorf("CatalogID = %d, want 25544", snaps[0].CatalogID)
	}
}

func TestParseAssumedExponent(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{" 10270-3", 1.0270e-4},
		{"-11606-4", -1.1606e-5},
		{" 00000-0", 0},
		{" 00000+0", 0},
		{" 12345+1", 1.2345},
	}
	for _, tc := range cases {
		got, err := parseAssumedExponent(tc.in)
		if err != nil {
			t.Errorf("parseAssumedExponent(%q) error: %v", tc.in, err)
			continue
		}
		if math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("parseAssumedExponent(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseEpochCentury(t *testing.T) {
	// Year 57+ is the 1900s, below is the 2000s.
	early, err := parseEpoch("57001.00000000")
	if err != nil {
		t.Fatalf("parseEpoch failed: %v", err)
	}
	if early.Year() != 1957 {
		t.Errorf("year = %d, want 1957", early.Year())
	}

	late, err := parseEpoch("24001.00000000")
	if err != nil {
		t.Fatalf("parseEpoch failed: %v", err)
	}
	if late.Year() != 2024 {
		t.Errorf("year = %d, want 2024", late.Year())
	}
}

func TestMeanAltitudeKm(t *testing.T) {
	// 15.5 rev/day is ISS-class: ~420km altitude.
	alt := MeanAltitudeKm(15.5)
	if alt < 380 || alt > 460 {
		t.Errorf("MeanAltitudeKm(15.5) = %f, want ~420", alt)
	}

	// Lower mean motion means a higher orbit.
	if MeanAltitudeKm(15.0) <= MeanAltitudeKm(15.5) {
		t.Error("altitude should decrease with mean motion")
	}
}
