package core

import "math"

// LineOfSight checks whether the straight segment between p1 and p2
// intersects the Earth sphere. If it does, the Earth blocks the path and
// the function returns false.
//
// All positions are ECEF in kilometres.
func LineOfSight(p1, p2 Vec3) bool {
	v := p2.Sub(p1)
	a := v.Dot(v)
	if a == 0 {
		// Degenerate case: same point. If it's outside Earth, treat as clear;
		// if inside, treat as blocked.
		return p1.Dot(p1) > EarthRadiusKm*EarthRadiusKm
	}

	// Find the closest point on the segment to the Earth's centre (origin).
	// t* minimises |p1 + t v|^2 over t ∈ ℝ.
	t := -p1.Dot(v) / a
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	closest := Vec3{
		X: p1.X + v.X*t,
		Y: p1.Y + v.Y*t,
		Z: p1.Z + v.Z*t,
	}

	return closest.Dot(closest) > EarthRadiusKm*EarthRadiusKm
}

// ElevationDegrees returns the spherical-Earth elevation angle of the target
// as seen from the observer, in degrees. 0° = geometric horizon, 90° =
// overhead. Coarser than Site.LookAngles (no ellipsoid correction) but needs
// no geodetic site; used for quick checks.
func ElevationDegrees(observer, target Vec3) float64 {
	v := target.Sub(observer)
	vNorm := v.Norm()
	if vNorm == 0 {
		return 90
	}

	r := observer.Norm()
	if r == 0 {
		return 90
	}
	zenith := observer.Scale(1 / r)

	cosGamma := v.Dot(zenith) / vNorm
	if cosGamma > 1 {
		cosGamma = 1
	} else if cosGamma < -1 {
		cosGamma = -1
	}
	gammaDeg := math.Acos(cosGamma) * 180.0 / math.Pi

	return 90.0 - gammaDeg
}
