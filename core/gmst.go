package core

import (
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// OmegaEarth is Earth's rotation rate in rad/s (IAU value). Used for the
// velocity term of the TEME to ECEF transform.
const OmegaEarth = 7.292115146706979e-5

// JulianDate converts a UTC instant to a Julian Date. Sub-second precision
// is preserved; the underlying day-number algorithm is the SGP4 library's.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	jd := satellite.JDay(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	return jd + float64(t.Nanosecond())/1e9/86400.0
}

// GMST returns the Greenwich Mean Sidereal Time angle in radians for a UTC
// instant (IAU-82 model, as implemented by the SGP4 library).
func GMST(t time.Time) float64 {
	return satellite.ThetaG_JD(JulianDate(t))
}
