package model

import (
	"time"

	"github.com/paulmach/orb"

	"github.com/signalsfoundry/dynpool/core"
)

// PositionSample is one propagated state. Positions are TEME kilometres;
// SinceEpoch is the offset from the run epoch, which together with the
// epoch fully determines At. No sample ever derives from the wall clock.
type PositionSample struct {
	CatalogID  uint32        `json:"catalog_id"`
	SinceEpoch time.Duration `json:"since_epoch_ns"`
	At         time.Time     `json:"at"`

	PositionTEME core.Vec3 `json:"position_teme_km"`
	VelocityTEME core.Vec3 `json:"velocity_teme_km_s"`
}

// ThresholdTier grades how comfortably a satellite clears the layered
// elevation thresholds.
type ThresholdTier string

const (
	TierNone      ThresholdTier = "none"
	TierCritical  ThresholdTier = "critical"
	TierStandard  ThresholdTier = "standard"
	TierPreferred ThresholdTier = "preferred"
)

// ObservationSample is one satellite seen from the observer at one grid
// instant: topocentric angles, slant range, and the sub-satellite ground
// point. Ground is a lon/lat point.
type ObservationSample struct {
	CatalogID     uint32        `json:"catalog_id"`
	Constellation Constellation `json:"constellation"`
	SinceEpoch    time.Duration `json:"since_epoch_ns"`
	At            time.Time     `json:"at"`

	AzimuthDeg   float64 `json:"azimuth_deg"`
	ElevationDeg float64 `json:"elevation_deg"`
	RangeKm      float64 `json:"range_km"`
	RangeRateKmS float64 `json:"range_rate_km_s"`

	Ground orb.Point `json:"ground"`

	Visible bool          `json:"visible"`
	Tier    ThresholdTier `json:"tier"`
}

// EventID names a measurement event type.
type EventID string

const (
	EventA4 EventID = "A4"
	EventA5 EventID = "A5"
	EventD2 EventID = "D2"
)

// EventPhase is the state of one measurement event machine for one
// satellite.
type EventPhase string

const (
	PhaseIdle        EventPhase = "idle"
	PhaseApproaching EventPhase = "approaching"
	PhaseTriggered   EventPhase = "triggered"
	PhaseHysteresis  EventPhase = "hysteresis"
)

// SignalSample is the link-budget evaluation of one visible satellite at
// one grid instant, with the per-event machine phases observed after the
// sample was applied.
type SignalSample struct {
	CatalogID     uint32        `json:"catalog_id"`
	Constellation Constellation `json:"constellation"`
	SinceEpoch    time.Duration `json:"since_epoch_ns"`
	At            time.Time     `json:"at"`

	RSRPdBm float64 `json:"rsrp_dbm"`
	RSRQdB  float64 `json:"rsrq_db"`
	SINRdB  float64 `json:"sinr_db"`

	PathLossDB        float64 `json:"path_loss_db"`
	AtmosphericLossDB float64 `json:"atmospheric_loss_db"`
	DopplerHz         float64 `json:"doppler_hz"`
	GroundDistanceKm  float64 `json:"ground_distance_km"`

	Serving bool                   `json:"serving"`
	Events  map[EventID]EventPhase `json:"events,omitempty"`
}

// VisibilityWindow is a contiguous run of visible samples for one
// satellite: rise, culmination and set, all offsets from the run epoch.
type VisibilityWindow struct {
	CatalogID     uint32        `json:"catalog_id"`
	Constellation Constellation `json:"constellation"`

	Rise time.Duration `json:"rise_ns"`
	Peak time.Duration `json:"peak_ns"`
	Set  time.Duration `json:"set_ns"`

	RiseAt time.Time `json:"rise_at"`
	PeakAt time.Time `json:"peak_at"`
	SetAt  time.Time `json:"set_at"`

	MaxElevationDeg float64 `json:"max_elevation_deg"`
	RiseAzimuthDeg  float64 `json:"rise_azimuth_deg"`
	SetAzimuthDeg   float64 `json:"set_azimuth_deg"`
	Samples         int     `json:"samples"`
}

// Duration returns the window length.
func (w VisibilityWindow) Duration() time.Duration {
	return w.Set - w.Rise
}

// Contains reports whether an offset from the run epoch falls inside the
// window, boundaries included.
func (w VisibilityWindow) Contains(offset time.Duration) bool {
	return offset >= w.Rise && offset <= w.Set
}
