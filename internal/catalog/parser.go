package catalog

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// Orbital constants used for derived apsis/period fields.
const (
	earthMuKm3S2  = 398600.4418 // WGS-84 gravitational parameter, km^3/s^2
	earthRadiusKm = 6378.137
)

// Parse reads 3-line NORAD TLE format from r and returns full element snapshots
// tagged with the given source. Malformed entries are skipped with a warning log.
func Parse(r io.Reader, source Source, fetchedAt time.Time, logger *slog.Logger) ([]ElementSnapshot, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading element data: %w", err)
	}

	var snaps []ElementSnapshot
	for i := 0; i+2 < len(lines); {
		name := lines[i]
		line1 := lines[i+1]
		line2 := lines[i+2]

		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			// Try to find the next valid triplet.
			logger.Warn("skipping malformed element entry", "line_index", i, "name", name)
			i++
			continue
		}

		snap, err := ParseLines(strings.TrimSpace(name), line1, line2)
		if err != nil {
			logger.Warn("skipping unparseable element entry", "name", name, "error", err)
			i += 3
			continue
		}
		snap.Source = source
		snap.FetchedAt = fetchedAt
		snaps = append(snaps, snap)
		i += 3
	}

	return snaps, nil
}

// ParseLines decodes a single element line pair into a snapshot.
// Source and FetchedAt are left for the caller to tag.
func ParseLines(name, line1, line2 string) (ElementSnapshot, error) {
	if len(line1) < 63 || len(line2) < 63 {
		return ElementSnapshot{}, fmt.Errorf("element lines too short (%d, %d)", len(line1), len(line2))
	}

	catalogID, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return ElementSnapshot{}, fmt.Errorf("invalid catalog id %q: %w", line1[2:7], err)
	}

	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return ElementSnapshot{}, fmt.Errorf("invalid epoch: %w", err)
	}

	ndot, err := parseSignedFraction(line1[33:43])
	if err != nil {
		return ElementSnapshot{}, fmt.Errorf("invalid mean motion derivative: %w", err)
	}
	nddot, err := parseAssumedExponent(line1[44:52])
	if err != nil {
		return ElementSnapshot{}, fmt.Errorf("invalid mean motion second derivative: %w", err)
	}
	bstar, err := parseAssumedExponent(line1[53:61])
	if err != nil {
		return ElementSnapshot{}, fmt.Errorf("invalid drag term: %w", err)
	}

	incl, err := parseField(line2[8:16])
	if err != nil {
		return ElementSnapshot{}, fmt.Errorf("invalid inclination: %w", err)
	}
	raan, err := parseField(line2[17:25])
	if err != nil {
		return ElementSnapshot{}, fmt.Errorf("invalid RAAN: %w", err)
	}
	ecc, err := parseField("0." + strings.TrimSpace(line2[26:33]))
	if err != nil {
		return ElementSnapshot{}, fmt.Errorf("invalid eccentricity: %w", err)
	}
	argp, err := parseField(line2[34:42])
	if err != nil {
		return ElementSnapshot{}, fmt.Errorf("invalid argument of perigee: %w", err)
	}
	ma, err := parseField(line2[43:51])
	if err != nil {
		return ElementSnapshot{}, fmt.Errorf("invalid mean anomaly: %w", err)
	}
	mm, err := parseField(line2[52:63])
	if err != nil {
		return ElementSnapshot{}, fmt.Errorf("invalid mean motion: %w", err)
	}
	if mm <= 0 {
		return ElementSnapshot{}, fmt.Errorf("non-positive mean motion %f", mm)
	}

	apoKm, periKm, periodMin := deriveApsides(mm, ecc)

	return ElementSnapshot{
		CatalogID:      catalogID,
		Name:           name,
		Epoch:          epoch,
		InclinationDeg: incl,
		RAANDeg:        raan,
		Eccentricity:   ecc,
		ArgPerigeeDeg:  argp,
		MeanAnomalyDeg: ma,
		MeanMotion:     mm,
		MeanMotionDot:  ndot,
		MeanMotionDDot: nddot,
		Bstar:          bstar,
		ApoapsisKm:     apoKm,
		PeriapsisKm:    periKm,
		PeriodMin:      periodMin,
		Line1:          line1,
		Line2:          line2,
	}, nil
}

// SemiMajorAxisKm converts mean motion (rev/day) to the semi-major axis.
func SemiMajorAxisKm(meanMotion float64) float64 {
	nRadS := meanMotion * 2 * math.Pi / 86400.0
	return math.Cbrt(earthMuKm3S2 / (nRadS * nRadS))
}

// MeanAltitudeKm converts mean motion to altitude above the mean Earth radius.
// Used by the maneuver detector so altitude trends need no propagation calls.
func MeanAltitudeKm(meanMotion float64) float64 {
	return SemiMajorAxisKm(meanMotion) - earthRadiusKm
}

func deriveApsides(meanMotion, ecc float64) (apoKm, periKm, periodMin float64) {
	a := SemiMajorAxisKm(meanMotion)
	apoKm = a*(1+ecc) - earthRadiusKm
	periKm = a*(1-ecc) - earthRadiusKm
	periodMin = 1440.0 / meanMotion
	return apoKm, periKm, periodMin
}

func parseField(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// parseSignedFraction parses the " .00016717" style field (leading sign, no
// integer part before the decimal point).
func parseSignedFraction(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if neg {
		v = -v
	}
	return v, nil
}

// parseAssumedExponent parses the TLE "assumed decimal point" exponent fields,
// e.g. " 10270-3" = 0.10270e-3 and "-11606-4" = -0.11606e-4.
func parseAssumedExponent(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "00000-0" || s == "00000+0" {
		return 0, nil
	}

	sign := 1.0
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}

	// Split mantissa digits from the trailing exponent.
	expIdx := strings.LastIndexAny(s, "+-")
	if expIdx <= 0 {
		return 0, fmt.Errorf("missing exponent in %q", s)
	}
	mant, err := strconv.ParseFloat("0."+s[:expIdx], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid mantissa in %q: %w", s, err)
	}
	exp, err := strconv.Atoi(s[expIdx:])
	if err != nil {
		return 0, fmt.Errorf("invalid exponent in %q: %w", s, err)
	}

	return sign * mant * math.Pow(10, float64(exp)), nil
}

// parseEpoch converts an element epoch string in YYDDD.DDDDDDDD format to
// time.Time. Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}

	// Start of the year, then add fractional days. dayOfYear is 1-based.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	t = t.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour)))

	return t, nil
}
