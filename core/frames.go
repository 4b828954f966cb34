package core

import (
	"math"

	satellite "github.com/joshuaferrara/go-satellite"
)

// WGS-84 ellipsoid parameters, kilometres.
const (
	wgs84A  = 6378.137              // semi-major axis
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// Geodetic is a position on or above the WGS-84 ellipsoid.
type Geodetic struct {
	LatDeg float64
	LonDeg float64
	AltKm  float64
}

// ECEF converts a geodetic position to ECEF kilometres.
func (g Geodetic) ECEF() Vec3 {
	lat := g.LatDeg * math.Pi / 180.0
	lon := g.LonDeg * math.Pi / 180.0

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	// Radius of curvature in the prime vertical.
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return Vec3{
		X: (n + g.AltKm) * cosLat * math.Cos(lon),
		Y: (n + g.AltKm) * cosLat * math.Sin(lon),
		Z: (n*(1-wgs84E2) + g.AltKm) * sinLat,
	}
}

// ECEFToGeodetic converts ECEF kilometres to a geodetic position using the
// iterative Bowring method. Converges in a handful of iterations for any
// Earth-orbit geometry.
func ECEFToGeodetic(p Vec3) Geodetic {
	lon := math.Atan2(p.Y, p.X)
	rho := math.Sqrt(p.X*p.X + p.Y*p.Y)

	lat := math.Atan2(p.Z, rho*(1-wgs84E2))
	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(p.Z+wgs84E2*n*sinLat, rho)
	}

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = rho/cosLat - n
	} else {
		alt = math.Abs(p.Z)/math.Abs(sinLat) - n*(1-wgs84E2)
	}

	return Geodetic{
		LatDeg: lat * 180.0 / math.Pi,
		LonDeg: lon * 180.0 / math.Pi,
		AltKm:  alt,
	}
}

// TEMEToECEF rotates a TEME state into the Earth-fixed frame at the given
// GMST angle (radians). The velocity picks up the frame-rotation term
// v_ecef = R3(θ)·v_teme − ω × r_ecef.
func TEMEToECEF(pos, vel Vec3, gmst float64) (Vec3, Vec3) {
	pe := satellite.ECIToECEF(satellite.Vector3{X: pos.X, Y: pos.Y, Z: pos.Z}, gmst)
	vr := satellite.ECIToECEF(satellite.Vector3{X: vel.X, Y: vel.Y, Z: vel.Z}, gmst)

	posECEF := Vec3{X: pe.X, Y: pe.Y, Z: pe.Z}
	velECEF := Vec3{
		X: vr.X + OmegaEarth*posECEF.Y,
		Y: vr.Y - OmegaEarth*posECEF.X,
		Z: vr.Z,
	}
	return posECEF, velECEF
}

// Site is a ground location with its ECEF position and rotation terms
// precomputed, so it can be reused across many satellite lookups.
type Site struct {
	Geodetic Geodetic
	ECEF     Vec3

	sinLat, cosLat float64
	sinLon, cosLon float64
}

// NewSite precomputes the ECEF position and SEZ rotation for a geodetic
// location.
func NewSite(g Geodetic) Site {
	lat := g.LatDeg * math.Pi / 180.0
	lon := g.LonDeg * math.Pi / 180.0
	return Site{
		Geodetic: g,
		ECEF:     g.ECEF(),
		sinLat:   math.Sin(lat),
		cosLat:   math.Cos(lat),
		sinLon:   math.Sin(lon),
		cosLon:   math.Cos(lon),
	}
}

// LookAngles is the topocentric direction from a site to a satellite.
// Azimuth is measured clockwise from north; elevation from the local
// horizon plane.
type LookAngles struct {
	AzimuthDeg   float64
	ElevationDeg float64
	RangeKm      float64
}

// LookAngles computes azimuth, elevation and slant range to a satellite
// given in ECEF kilometres, via the SEZ (south-east-zenith) rotation
// (Vallado section 4.4).
func (s Site) LookAngles(sat Vec3) LookAngles {
	r := sat.Sub(s.ECEF)

	south := s.sinLat*s.cosLon*r.X + s.sinLat*s.sinLon*r.Y - s.cosLat*r.Z
	east := -s.sinLon*r.X + s.cosLon*r.Y
	zenith := s.cosLat*s.cosLon*r.X + s.cosLat*s.sinLon*r.Y + s.sinLat*r.Z

	rng := math.Sqrt(south*south + east*east + zenith*zenith)
	if rng == 0 {
		return LookAngles{ElevationDeg: 90}
	}

	el := math.Asin(zenith / rng)

	// North is the -south axis, so azimuth = atan2(east, -south).
	az := math.Atan2(east, -south)
	if az < 0 {
		az += 2 * math.Pi
	}

	return LookAngles{
		AzimuthDeg:   az * 180.0 / math.Pi,
		ElevationDeg: el * 180.0 / math.Pi,
		RangeKm:      rng,
	}
}

// RangeRateKmS returns the line-of-sight range rate from the site to a
// satellite with the given ECEF position and velocity. Positive when the
// satellite recedes. Used for Doppler estimates.
func (s Site) RangeRateKmS(pos, vel Vec3) float64 {
	r := pos.Sub(s.ECEF)
	rng := r.Norm()
	if rng == 0 {
		return 0
	}
	return r.Dot(vel) / rng
}
