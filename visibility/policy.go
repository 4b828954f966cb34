// Package visibility turns propagated tracks into topocentric observations
// from a ground site and merges visible samples into per-satellite windows.
// Threshold decisions live in Policy; it is the only place elevation is
// compared against a limit.
package visibility

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/dynpool/model"
)

// Environment classifies the terrain around the observer. It scales the
// layered quality thresholds per ITU-R guidance.
type Environment string

const (
	EnvironmentOpen        Environment = "open"
	EnvironmentUrban       Environment = "urban"
	EnvironmentMountainous Environment = "mountainous"
)

// Weather classifies the assumed precipitation state for the run.
type Weather string

const (
	WeatherClear     Weather = "clear"
	WeatherLightRain Weather = "light_rain"
	WeatherHeavyRain Weather = "heavy_rain"
)

var environmentFactors = map[Environment]float64{
	EnvironmentOpen:        1.0,
	EnvironmentUrban:       1.1,
	EnvironmentMountainous: 1.3,
}

var weatherFactors = map[Weather]float64{
	WeatherClear:     1.0,
	WeatherLightRain: 1.2,
	WeatherHeavyRain: 1.4,
}

// Base layered quality thresholds in degrees, before environment and
// weather scaling.
const (
	criticalBaseDeg  = 5.0
	standardBaseDeg  = 10.0
	preferredBaseDeg = 15.0
)

// ConstellationThreshold is the serving-visibility rule for one
// constellation. MinElevationDeg is applied unscaled; MinVisibleTime is
// the shortest window worth keeping.
type ConstellationThreshold struct {
	MinElevationDeg float64
	MinVisibleTime  time.Duration
}

// PolicyConfig assembles a Policy. Every constellation appearing in the
// run must have an entry; there are no built-in defaults.
type PolicyConfig struct {
	Environment    Environment
	Weather        Weather
	Constellations map[model.Constellation]ConstellationThreshold
}

// Policy is the system-wide elevation threshold evaluator. The filter,
// the signal analyzer and the pool optimizer all hold the same instance,
// so a sample judged visible in one stage is visible in all of them.
type Policy struct {
	environment Environment
	weather     Weather
	factor      float64

	criticalDeg  float64
	standardDeg  float64
	preferredDeg float64

	constellations map[model.Constellation]ConstellationThreshold
}

// NewPolicy validates the configuration and precomputes the scaled tier
// thresholds.
func NewPolicy(cfg PolicyConfig) (*Policy, error) {
	envFactor, ok := environmentFactors[cfg.Environment]
	if !ok {
		return nil, fmt.Errorf("%w: unknown environment %q", model.ErrConfiguration, cfg.Environment)
	}
	weatherFactor, ok := weatherFactors[cfg.Weather]
	if !ok {
		return nil, fmt.Errorf("%w: unknown weather %q", model.ErrConfiguration, cfg.Weather)
	}
	if len(cfg.Constellations) == 0 {
		return nil, fmt.Errorf("%w: no constellation thresholds configured", model.ErrConfiguration)
	}
	constellations := make(map[model.Constellation]ConstellationThreshold, len(cfg.Constellations))
	for c, th := range cfg.Constellations {
		if th.MinElevationDeg <= 0 || th.MinElevationDeg >= 90 {
			return nil, fmt.Errorf("%w: %s min elevation %.1f outside (0, 90)",
				model.ErrConfiguration, c, th.MinElevationDeg)
		}
		if th.MinVisibleTime < 0 {
			return nil, fmt.Errorf("%w: %s min visible time is negative", model.ErrConfiguration, c)
		}
		constellations[c] = th
	}

	factor := envFactor * weatherFactor
	return &Policy{
		environment:    cfg.Environment,
		weather:        cfg.Weather,
		factor:         factor,
		criticalDeg:    criticalBaseDeg * factor,
		standardDeg:    standardBaseDeg * factor,
		preferredDeg:   preferredBaseDeg * factor,
		constellations: constellations,
	}, nil
}

// Visible reports whether an elevation clears the constellation's serving
// threshold. Unknown constellations are never visible; Require catches
// them before a run starts.
func (p *Policy) Visible(c model.Constellation, elevationDeg float64) bool {
	th, ok := p.constellations[c]
	if !ok {
		return false
	}
	return elevationDeg >= th.MinElevationDeg
}

// Tier grades an elevation against the scaled layered thresholds.
func (p *Policy) Tier(elevationDeg float64) model.ThresholdTier {
	switch {
	case elevationDeg >= p.preferredDeg:
		return model.TierPreferred
	case elevationDeg >= p.standardDeg:
		return model.TierStandard
	case elevationDeg >= p.criticalDeg:
		return model.TierCritical
	default:
		return model.TierNone
	}
}

// Threshold returns the serving rule for a constellation.
func (p *Policy) Threshold(c model.Constellation) (ConstellationThreshold, bool) {
	th, ok := p.constellations[c]
	return th, ok
}

// MinVisibleTime returns the shortest window the constellation keeps.
func (p *Policy) MinVisibleTime(c model.Constellation) time.Duration {
	return p.constellations[c].MinVisibleTime
}

// Require errors unless every given constellation has a threshold entry.
func (p *Policy) Require(constellations ...model.Constellation) error {
	for _, c := range constellations {
		if _, ok := p.constellations[c]; !ok {
			return fmt.Errorf("%w: no visibility threshold for constellation %s",
				model.ErrConfiguration, c)
		}
	}
	return nil
}

// TierThresholds returns the scaled critical, standard and preferred
// thresholds, mostly for run metadata.
func (p *Policy) TierThresholds() (critical, standard, preferred float64) {
	return p.criticalDeg, p.standardDeg, p.preferredDeg
}
