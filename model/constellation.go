package model

import (
	"fmt"
	"strings"
)

// Constellation identifies the operator a satellite belongs to.
type Constellation string

const (
	ConstellationStarlink Constellation = "STARLINK"
	ConstellationOneWeb   Constellation = "ONEWEB"
)

// ParseConstellation normalises a constellation name from config or catalog
// metadata.
func ParseConstellation(s string) (Constellation, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STARLINK":
		return ConstellationStarlink, nil
	case "ONEWEB":
		return ConstellationOneWeb, nil
	default:
		return "", fmt.Errorf("%w: unknown constellation %q", ErrValidation, s)
	}
}

// ConstellationParams holds the per-constellation physical and nominal
// orbital parameters used by the signal and pool stages. There are no
// defaults: every field must come from configuration.
type ConstellationParams struct {
	Constellation Constellation `json:"constellation"`

	// Downlink RF parameters.
	EIRPdBW      float64 `json:"eirp_dbw"`
	FrequencyGHz float64 `json:"frequency_ghz"`

	// Nominal shell geometry, used for reporting and cycle sizing.
	AltitudeKm    float64 `json:"altitude_km"`
	PeriodMinutes float64 `json:"period_minutes"`
}

// Validate rejects absent or non-physical parameters.
func (p ConstellationParams) Validate() error {
	if p.Constellation == "" {
		return fmt.Errorf("%w: constellation params missing constellation name", ErrConfiguration)
	}
	if p.EIRPdBW == 0 {
		return fmt.Errorf("%w: %s: eirp_dbw is required", ErrConfiguration, p.Constellation)
	}
	if p.FrequencyGHz <= 0 {
		return fmt.Errorf("%w: %s: frequency_ghz must be positive", ErrConfiguration, p.Constellation)
	}
	if p.AltitudeKm <= 0 {
		return fmt.Errorf("%w: %s: altitude_km must be positive", ErrConfiguration, p.Constellation)
	}
	if p.PeriodMinutes <= 0 {
		return fmt.Errorf("%w: %s: period_minutes must be positive", ErrConfiguration, p.Constellation)
	}
	return nil
}

// ReceiverParams describes the ground terminal. As with constellation
// parameters, every field is required configuration.
type ReceiverParams struct {
	AntennaGainDBi float64 `json:"antenna_gain_dbi"`
	NoiseFigureDB  float64 `json:"noise_figure_db"`
	CableLossDB    float64 `json:"cable_loss_db"`
	SensitivityDBm float64 `json:"sensitivity_dbm"`
	BandwidthMHz   float64 `json:"bandwidth_mhz"`
	ResourceBlocks int     `json:"resource_blocks"`
}

// Validate rejects absent or non-physical receiver parameters.
func (r ReceiverParams) Validate() error {
	if r.AntennaGainDBi == 0 {
		return fmt.Errorf("%w: receiver antenna_gain_dbi is required", ErrConfiguration)
	}
	if r.NoiseFigureDB <= 0 {
		return fmt.Errorf("%w: receiver noise_figure_db must be positive", ErrConfiguration)
	}
	if r.CableLossDB < 0 {
		return fmt.Errorf("%w: receiver cable_loss_db must not be negative", ErrConfiguration)
	}
	if r.SensitivityDBm >= 0 {
		return fmt.Errorf("%w: receiver sensitivity_dbm must be negative dBm", ErrConfiguration)
	}
	if r.BandwidthMHz <= 0 {
		return fmt.Errorf("%w: receiver bandwidth_mhz must be positive", ErrConfiguration)
	}
	if r.ResourceBlocks <= 0 {
		return fmt.Errorf("%w: receiver resource_blocks must be positive", ErrConfiguration)
	}
	return nil
}

// Observer is the ground location the whole run is evaluated against.
// There is no default observer anywhere in the pipeline.
type Observer struct {
	Name         string  `json:"name"`
	LatitudeDeg  float64 `json:"latitude_deg"`
	LongitudeDeg float64 `json:"longitude_deg"`
	AltitudeM    float64 `json:"altitude_m"`
}

// Validate rejects a missing observer or coordinates outside geodetic bounds.
func (o Observer) Validate() error {
	if o == (Observer{}) {
		return fmt.Errorf("%w: observer is required", ErrConfiguration)
	}
	if o.LatitudeDeg < -90 || o.LatitudeDeg > 90 {
		return fmt.Errorf("%w: observer latitude %.6f out of range [-90, 90]", ErrConfiguration, o.LatitudeDeg)
	}
	if o.LongitudeDeg < -180 || o.LongitudeDeg > 180 {
		return fmt.Errorf("%w: observer longitude %.6f out of range [-180, 180]", ErrConfiguration, o.LongitudeDeg)
	}
	return nil
}
