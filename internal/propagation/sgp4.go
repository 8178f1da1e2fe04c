package propagation

import (
	"fmt"
	"math"
	"strings"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/orbital/orbwatch/internal/transform"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite.
//
// Pure Go (no CGO), widest community adoption, explicit TEME output. Note:
// Propagate() takes Satellite by value so SGP4 error codes are not visible to
// the caller; propagation failures are detected by checking the output for
// NaN/Inf and unreasonable position magnitudes.

// SGP4 wraps an initialized go-satellite model for one element set.
type SGP4 struct {
	sat       satellite.Satellite
	catalogID int
}

// NewSGP4 initializes the SGP4 model from verbatim element lines.
//
// Pre-validates line format before handing off to the library, because
// go-satellite calls log.Fatal on malformed input (which would kill the
// process).
func NewSGP4(line1, line2 string, catalogID int) (*SGP4, error) {
	if err := validateLines(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid element lines for object %d: %w", catalogID, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for object %d: code=%d %s", catalogID, sat.Error, sat.ErrorStr)
	}
	return &SGP4{sat: sat, catalogID: catalogID}, nil
}

func validateLines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// At computes the TEME state at the given UTC instant.
// Malformed output (NaN/Inf or impossible magnitude) is a hard error.
func (p *SGP4) At(year, month, day, hour, min, sec int) (transform.PositionTEME, error) {
	pos, vel := satellite.Propagate(p.sat, year, month, day, hour, min, sec)

	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return transform.PositionTEME{}, fmt.Errorf("sgp4 propagation failed for object %d: output is NaN/Inf", p.catalogID)
	}

	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if mag < 6200.0 || mag > 50000.0 {
		return transform.PositionTEME{}, fmt.Errorf("sgp4 propagation failed for object %d: unreasonable position magnitude %.1f km", p.catalogID, mag)
	}

	return transform.PositionTEME{
		X:  pos.X,
		Y:  pos.Y,
		Z:  pos.Z,
		VX: vel.X,
		VY: vel.Y,
		VZ: vel.Z,
	}, nil
}
