package core

import (
	"math"
	"testing"
)

func TestLineOfSight_NoObstruction(t *testing.T) {
	// Two satellites high and on the same side of Earth, separated in Y.
	// The segment between them stays at x ≈ 8000 km, well outside Earth.
	posA := Vec3{X: 8000, Y: 0, Z: 0}
	posB := Vec3{X: 8000, Y: 1000, Z: 0}

	if !LineOfSight(posA, posB) {
		t.Errorf("expected clear path between two high satellites on same side of Earth")
	}
}

func TestLineOfSight_Obstructed(t *testing.T) {
	// Two points on opposite sides: the chord passes through the Earth.
	posA := Vec3{X: 7000, Y: 0, Z: 0}
	posB := Vec3{X: -7000, Y: 0, Z: 0}

	if LineOfSight(posA, posB) {
		t.Errorf("expected path to be blocked by Earth")
	}
}

func TestElevationDegrees_Overhead(t *testing.T) {
	observer := Vec3{X: EarthRadiusKm, Y: 0, Z: 0}
	target := Vec3{X: EarthRadiusKm + 550, Y: 0, Z: 0}

	// Near the zenith the underlying arccosine is ill-conditioned, so the
	// result lands within a fraction of a millidegree of 90.
	if got := ElevationDegrees(observer, target); math.Abs(got-90) > 1e-4 {
		t.Errorf("overhead elevation = %v, want 90", got)
	}
}

func TestElevationDegrees_Horizon(t *testing.T) {
	// Target on the local horizon plane: direction orthogonal to zenith.
	observer := Vec3{X: EarthRadiusKm, Y: 0, Z: 0}
	target := Vec3{X: EarthRadiusKm, Y: 2000, Z: 0}

	if got := ElevationDegrees(observer, target); math.Abs(got) > 1e-9 {
		t.Errorf("horizon elevation = %v, want 0", got)
	}
}
