package model

import (
	"fmt"
	"time"
)

// OrbitClass separates near-earth from deep-space element sets. The
// propagator handles both; the class is recorded for reporting.
type OrbitClass string

const (
	OrbitNearEarth OrbitClass = "near_earth"
	OrbitDeepSpace OrbitClass = "deep_space"
)

// deepSpacePeriodMinutes is the conventional SGP4/SDP4 boundary.
const deepSpacePeriodMinutes = 225.0

// ElementSet is one satellite's mean orbital elements at a reference epoch,
// as published in a two-line element catalog. Immutable after load; the
// epoch is authoritative for all downstream time anchoring.
type ElementSet struct {
	CatalogID     uint32        `json:"catalog_id"`
	Name          string        `json:"name"`
	Constellation Constellation `json:"constellation"`
	Epoch         time.Time     `json:"epoch"`

	// Raw catalog lines, kept verbatim for the propagator.
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`

	// Parsed mean elements.
	InclinationDeg  float64 `json:"inclination_deg"`
	RAANDeg         float64 `json:"raan_deg"`
	Eccentricity    float64 `json:"eccentricity"`
	ArgPerigeeDeg   float64 `json:"arg_perigee_deg"`
	MeanAnomalyDeg  float64 `json:"mean_anomaly_deg"`
	MeanMotionRevPD float64 `json:"mean_motion_rev_per_day"`
	BStar           float64 `json:"bstar"`
}

// PeriodMinutes returns the orbital period implied by the mean motion.
func (e ElementSet) PeriodMinutes() float64 {
	if e.MeanMotionRevPD <= 0 {
		return 0
	}
	return 1440.0 / e.MeanMotionRevPD
}

// Class reports whether the element set falls in the near-earth or
// deep-space propagation regime.
func (e ElementSet) Class() OrbitClass {
	if e.PeriodMinutes() >= deepSpacePeriodMinutes {
		return OrbitDeepSpace
	}
	return OrbitNearEarth
}

// Validate checks the parsed elements for physical plausibility.
func (e ElementSet) Validate() error {
	if e.CatalogID == 0 {
		return fmt.Errorf("%w: element set has no catalog id", ErrValidation)
	}
	if e.Epoch.IsZero() {
		return fmt.Errorf("%w: %d: element set has no epoch", ErrValidation, e.CatalogID)
	}
	if e.MeanMotionRevPD <= 0 {
		return fmt.Errorf("%w: %d: mean motion %.8f must be positive", ErrValidation, e.CatalogID, e.MeanMotionRevPD)
	}
	if e.Eccentricity < 0 || e.Eccentricity >= 1 {
		return fmt.Errorf("%w: %d: eccentricity %.7f out of range [0, 1)", ErrValidation, e.CatalogID, e.Eccentricity)
	}
	if e.InclinationDeg < 0 || e.InclinationDeg > 180 {
		return fmt.Errorf("%w: %d: inclination %.4f out of range [0, 180]", ErrValidation, e.CatalogID, e.InclinationDeg)
	}
	if len(e.Line1) != 69 || len(e.Line2) != 69 {
		return fmt.Errorf("%w: %d: element lines must be 69 characters", ErrValidation, e.CatalogID)
	}
	return nil
}
