// Package signal evaluates the downlink budget for visible satellites and
// drives the 3GPP-style measurement event machines over the run grid.
package signal

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/signalsfoundry/dynpool/core"
	"github.com/signalsfoundry/dynpool/model"
)

const (
	speedOfLightKmS = 299792.458

	// Free-space path loss constant for kilometre/GHz units.
	fsplConstDB = 92.45

	// Thermal noise density at 290 K.
	thermalNoiseDensityDBmHz = -174.0

	// Simplified ITU-R P.676 / P.840 attenuation model parameters.
	atmosphericScaleHeightKm = 8.5
	maxAtmosphericPathKm     = 100.0
	subHorizonLossDB         = 100.0
	waterVaporDensityGM3     = 7.5
	cloudWaterContentGM3     = 0.1
)

// 3GPP measurement report ranges.
const (
	minRSRPdBm = -144.0
	maxRSRPdBm = -44.0
	minRSRQdB  = -19.5
	maxRSRQdB  = -3.0
	minSINRdB  = -23.0
	maxSINRdB  = 40.0
)

// FreeSpacePathLossDB is the Friis free-space loss for a slant range in
// kilometres at a carrier in GHz.
func FreeSpacePathLossDB(rangeKm, frequencyGHz float64) float64 {
	if rangeKm <= 0 || frequencyGHz <= 0 {
		return math.Inf(1)
	}
	return fsplConstDB + 20*math.Log10(rangeKm) + 20*math.Log10(frequencyGHz)
}

// AtmosphericLossDB estimates gaseous plus cloud attenuation along the
// slant path. Below the horizon the link is written off with a flat guard
// value. Oxygen and water vapor follow the simplified ITU-R P.676 shapes,
// cloud liquid follows P.840.
func AtmosphericLossDB(elevationDeg, frequencyGHz float64) float64 {
	if elevationDeg <= 0 {
		return subHorizonLossDB
	}

	oxygen := 0.0067 * math.Pow(frequencyGHz, 0.8)
	if frequencyGHz >= 10 {
		oxygen *= 1 + 0.1*(frequencyGHz-10)
	}

	var waterVapor float64
	if frequencyGHz < 15 {
		waterVapor = 0.05 * math.Pow(frequencyGHz/10, 1.6) * waterVaporDensityGM3
	} else {
		waterVapor = 0.1 * math.Pow(frequencyGHz/10, 2.0) * waterVaporDensityGM3
	}

	cloud := 0.434 * math.Pow(frequencyGHz, 1.28) * cloudWaterContentGM3

	elevationRad := elevationDeg * math.Pi / 180.0
	var pathKm float64
	if elevationDeg >= 10 {
		pathKm = atmosphericScaleHeightKm / math.Sin(elevationRad)
	} else {
		// Curved-earth chord through the effective atmosphere.
		re := core.EarthRadiusKm
		rh := re + atmosphericScaleHeightKm
		cos := re * math.Cos(elevationRad)
		pathKm = math.Sqrt(rh*rh-cos*cos) - re*math.Sin(elevationRad)
	}
	if pathKm > maxAtmosphericPathKm {
		pathKm = maxAtmosphericPathKm
	}

	return (oxygen + waterVapor + cloud) * pathKm
}

// Budget computes per-sample link metrics for one receiver against the
// configured constellations.
type Budget struct {
	constellations map[model.Constellation]model.ConstellationParams
	receiver       model.ReceiverParams
	interferenceDB float64
	observer       orb.Point

	noiseFloorDBm float64
}

// NewBudget validates every physical parameter. Nothing is defaulted; a
// missing constellation or zero field is a configuration error.
func NewBudget(constellations map[model.Constellation]model.ConstellationParams, receiver model.ReceiverParams, interferenceToNoiseDB float64, observer model.Observer) (*Budget, error) {
	if len(constellations) == 0 {
		return nil, fmt.Errorf("%w: no constellation parameters configured", model.ErrConfiguration)
	}
	params := make(map[model.Constellation]model.ConstellationParams, len(constellations))
	for c, p := range constellations {
		if p.Constellation == "" {
			p.Constellation = c
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		params[c] = p
	}
	if err := receiver.Validate(); err != nil {
		return nil, err
	}
	if interferenceToNoiseDB == 0 {
		return nil, fmt.Errorf("%w: interference_to_noise_db is required", model.ErrConfiguration)
	}
	if err := observer.Validate(); err != nil {
		return nil, err
	}

	noise := thermalNoiseDensityDBmHz +
		10*math.Log10(receiver.BandwidthMHz*1e6) +
		receiver.NoiseFigureDB

	return &Budget{
		constellations: params,
		receiver:       receiver,
		interferenceDB: interferenceToNoiseDB,
		observer:       orb.Point{observer.LongitudeDeg, observer.LatitudeDeg},
		noiseFloorDBm:  noise,
	}, nil
}

// NoiseFloorDBm is the thermal noise floor including the receiver noise
// figure.
func (b *Budget) NoiseFloorDBm() float64 { return b.noiseFloorDBm }

// Params returns the configured parameters for a constellation.
func (b *Budget) Params(c model.Constellation) (model.ConstellationParams, error) {
	p, ok := b.constellations[c]
	if !ok {
		return model.ConstellationParams{}, fmt.Errorf("%w: no parameters for constellation %s", model.ErrConfiguration, c)
	}
	return p, nil
}

// Evaluate computes the signal sample for one visible observation.
func (b *Budget) Evaluate(obs model.ObservationSample) (model.SignalSample, error) {
	p, err := b.Params(obs.Constellation)
	if err != nil {
		return model.SignalSample{}, err
	}

	fspl := FreeSpacePathLossDB(obs.RangeKm, p.FrequencyGHz)
	atm := AtmosphericLossDB(obs.ElevationDeg, p.FrequencyGHz)

	eirpDBm := p.EIRPdBW + 30
	rsrp := clamp(eirpDBm-fspl-atm+b.receiver.AntennaGainDBi-b.receiver.CableLossDB,
		minRSRPdBm, maxRSRPdBm)

	rsrpMw := fromDBm(rsrp)
	noiseMw := fromDBm(b.noiseFloorDBm)
	interferenceMw := noiseMw * math.Pow(10, b.interferenceDB/10)

	// RSSI carries the signal itself plus noise and interference.
	rssiMw := rsrpMw + noiseMw + interferenceMw
	rsrq := clamp(10*math.Log10(float64(b.receiver.ResourceBlocks)*rsrpMw/rssiMw),
		minRSRQdB, maxRSRQdB)

	sinr := clamp(10*math.Log10(rsrpMw/(noiseMw+interferenceMw)),
		minSINRdB, maxSINRdB)

	// Positive Doppler while the satellite approaches.
	doppler := -obs.RangeRateKmS / speedOfLightKmS * p.FrequencyGHz * 1e9

	return model.SignalSample{
		CatalogID:         obs.CatalogID,
		Constellation:     obs.Constellation,
		SinceEpoch:        obs.SinceEpoch,
		At:                obs.At,
		RSRPdBm:           rsrp,
		RSRQdB:            rsrq,
		SINRdB:            sinr,
		PathLossDB:        fspl,
		AtmosphericLossDB: atm,
		DopplerHz:         doppler,
		GroundDistanceKm:  geo.DistanceHaversine(b.observer, obs.Ground) / 1000.0,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func fromDBm(v float64) float64 {
	return math.Pow(10, v/10)
}
