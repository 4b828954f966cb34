package signal

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/dynpool/model"
)

// A4Config parameterises the neighbour-better-than-threshold event
// (TS 38.331 section 5.5.4.5 shape).
type A4Config struct {
	ThresholdDBm      float64
	HysteresisDB      float64
	OffsetFrequencyDB float64
	OffsetCellDB      float64
	TimeToTrigger     time.Duration
}

// A5Config parameterises the serving-worse/neighbour-better dual event
// (section 5.5.4.6 shape).
type A5Config struct {
	Threshold1DBm     float64
	Threshold2DBm     float64
	HysteresisDB      float64
	OffsetFrequencyDB float64
	OffsetCellDB      float64
	TimeToTrigger     time.Duration
}

// D2Config parameterises the distance-based event (section 5.5.4.15a
// shape): serving ground distance beyond Threshold1, candidate ground
// distance within Threshold2.
type D2Config struct {
	Threshold1Km  float64
	Threshold2Km  float64
	HysteresisKm  float64
	TimeToTrigger time.Duration
}

// EventConfig bundles the three measurement events.
type EventConfig struct {
	A4 A4Config
	A5 A5Config
	D2 D2Config
}

// Validate rejects absent thresholds. Offsets may legitimately be zero.
func (c EventConfig) Validate() error {
	if c.A4.ThresholdDBm >= 0 {
		return fmt.Errorf("%w: a4 threshold_dbm must be negative dBm", model.ErrConfiguration)
	}
	if c.A4.HysteresisDB <= 0 {
		return fmt.Errorf("%w: a4 hysteresis_db must be positive", model.ErrConfiguration)
	}
	if c.A5.Threshold1DBm >= 0 || c.A5.Threshold2DBm >= 0 {
		return fmt.Errorf("%w: a5 thresholds must be negative dBm", model.ErrConfiguration)
	}
	if c.A5.HysteresisDB <= 0 {
		return fmt.Errorf("%w: a5 hysteresis_db must be positive", model.ErrConfiguration)
	}
	if c.D2.Threshold1Km <= 0 || c.D2.Threshold2Km <= 0 {
		return fmt.Errorf("%w: d2 thresholds must be positive kilometres", model.ErrConfiguration)
	}
	if c.D2.HysteresisKm <= 0 {
		return fmt.Errorf("%w: d2 hysteresis_km must be positive", model.ErrConfiguration)
	}
	if c.A4.TimeToTrigger < 0 || c.A5.TimeToTrigger < 0 || c.D2.TimeToTrigger < 0 {
		return fmt.Errorf("%w: time to trigger must not be negative", model.ErrConfiguration)
	}
	return nil
}

// machine is one event state machine for one candidate satellite. Enter
// and leave conditions are evaluated by the analyzer; the machine only
// tracks phase and dwell. The enter and leave thresholds differ by twice
// the hysteresis, so a sample can satisfy neither; while triggered, only
// a sustained leave condition moves the machine back towards idle.
type machine struct {
	phase model.EventPhase
	dwell time.Duration
}

func newMachine() *machine {
	return &machine{phase: model.PhaseIdle}
}

// step advances the machine by one grid step.
func (m *machine) step(enter, leave bool, step, ttt time.Duration) {
	switch m.phase {
	case model.PhaseIdle:
		if !enter {
			return
		}
		if ttt <= 0 {
			m.phase = model.PhaseTriggered
			return
		}
		m.phase = model.PhaseApproaching
		m.dwell = 0

	case model.PhaseApproaching:
		if !enter {
			m.phase = model.PhaseIdle
			m.dwell = 0
			return
		}
		m.dwell += step
		if m.dwell >= ttt {
			m.phase = model.PhaseTriggered
			m.dwell = 0
		}

	case model.PhaseTriggered:
		if !leave {
			return
		}
		if ttt <= 0 {
			m.phase = model.PhaseIdle
			return
		}
		m.phase = model.PhaseHysteresis
		m.dwell = 0

	case model.PhaseHysteresis:
		if !leave {
			m.phase = model.PhaseTriggered
			m.dwell = 0
			return
		}
		m.dwell += step
		if m.dwell >= ttt {
			m.phase = model.PhaseIdle
			m.dwell = 0
		}
	}
}

// triggered reports whether the event is currently committed.
func (m *machine) triggered() bool {
	return m.phase == model.PhaseTriggered || m.phase == model.PhaseHysteresis
}

// conditions is the per-instant measurement context for one candidate.
type conditions struct {
	// Candidate measurement, always present while the candidate is
	// visible.
	neighborRSRPdBm    float64
	neighborDistanceKm float64
	visible            bool

	// Serving measurement; valid only when hasServing is set.
	hasServing        bool
	servingRSRPdBm    float64
	servingDistanceKm float64
}

// a4Conditions evaluates Mn + Ofn + Ocn against the threshold with
// hysteresis on both sides.
func a4Conditions(c conditions, cfg A4Config) (enter, leave bool) {
	if !c.visible {
		return false, true
	}
	mn := c.neighborRSRPdBm + cfg.OffsetFrequencyDB + cfg.OffsetCellDB
	return mn-cfg.HysteresisDB > cfg.ThresholdDBm,
		mn+cfg.HysteresisDB < cfg.ThresholdDBm
}

// a5Conditions requires the serving cell to degrade below Threshold1
// while the candidate clears Threshold2.
func a5Conditions(c conditions, cfg A5Config) (enter, leave bool) {
	if !c.visible || !c.hasServing {
		return false, true
	}
	mn := c.neighborRSRPdBm + cfg.OffsetFrequencyDB + cfg.OffsetCellDB
	enter = c.servingRSRPdBm+cfg.HysteresisDB < cfg.Threshold1DBm &&
		mn-cfg.HysteresisDB > cfg.Threshold2DBm
	leave = c.servingRSRPdBm-cfg.HysteresisDB > cfg.Threshold1DBm ||
		mn+cfg.HysteresisDB < cfg.Threshold2DBm
	return enter, leave
}

// d2Conditions compares ground distances: serving reference drifting past
// Threshold1 while the candidate reference is within Threshold2.
func d2Conditions(c conditions, cfg D2Config) (enter, leave bool) {
	if !c.visible || !c.hasServing {
		return false, true
	}
	enter = c.servingDistanceKm-cfg.HysteresisKm > cfg.Threshold1Km &&
		c.neighborDistanceKm+cfg.HysteresisKm < cfg.Threshold2Km
	leave = c.servingDistanceKm+cfg.HysteresisKm < cfg.Threshold1Km ||
		c.neighborDistanceKm-cfg.HysteresisKm > cfg.Threshold2Km
	return enter, leave
}
