package main

import (
	"time"

	"github.com/midbel/toml"

	"github.com/signalsfoundry/dynpool/catalog"
	"github.com/signalsfoundry/dynpool/model"
	"github.com/signalsfoundry/dynpool/pipeline"
	"github.com/signalsfoundry/dynpool/pool"
	"github.com/signalsfoundry/dynpool/propagate"
	"github.com/signalsfoundry/dynpool/signal"
	"github.com/signalsfoundry/dynpool/visibility"
)

// Configure reads the TOML run configuration.
func Configure(file string) (Settings, error) {
	var s Settings
	return s, toml.DecodeFile(file, &s)
}

// Duration decodes duration strings like "120m" or "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err == nil {
		d.Duration = v
	}
	return err
}

func (d *Duration) String() string {
	return d.Duration.String()
}

// Settings mirrors the run configuration file. Value validation stays with
// the stage constructors; this layer only reshapes.
type Settings struct {
	RunID       string `toml:"run_id"`
	ArtifactDir string `toml:"artifact_dir"`

	Horizon Duration `toml:"horizon"`
	Step    Duration `toml:"step"`

	// Workers caps the per-satellite fan-out of the propagation and
	// visibility stages. Zero picks a stage-specific default.
	Workers int `toml:"workers"`

	MaxElementAge Duration `toml:"max_element_age"`

	Environment string `toml:"environment"`
	Weather     string `toml:"weather"`

	Serving               string  `toml:"serving_constellation"`
	InterferenceToNoiseDB float64 `toml:"interference_to_noise_db"`
	CoverageBar           float64 `toml:"coverage_bar"`

	Observer observerSettings `toml:"observer"`
	Receiver receiverSettings `toml:"receiver"`
	Events   eventSettings    `toml:"events"`
	Budgets  budgetSettings   `toml:"budgets"`

	Sources        []sourceSettings        `toml:"source"`
	Constellations []constellationSettings `toml:"constellation"`
}

type observerSettings struct {
	Name         string  `toml:"name"`
	LatitudeDeg  float64 `toml:"latitude_deg"`
	LongitudeDeg float64 `toml:"longitude_deg"`
	AltitudeM    float64 `toml:"altitude_m"`
}

type sourceSettings struct {
	Path          string `toml:"path"`
	Constellation string `toml:"constellation"`
}

// constellationSettings folds the physical parameters, the visibility
// threshold and the pool target of one constellation into one table.
type constellationSettings struct {
	Name string `toml:"name"`

	EIRPdBW       float64 `toml:"eirp_dbw"`
	FrequencyGHz  float64 `toml:"frequency_ghz"`
	AltitudeKm    float64 `toml:"altitude_km"`
	PeriodMinutes float64 `toml:"period_minutes"`

	MinElevationDeg float64  `toml:"min_elevation_deg"`
	MinVisibleTime  Duration `toml:"min_visible_time"`

	MinVisible int `toml:"min_visible"`
	MaxPool    int `toml:"max_pool"`
}

type receiverSettings struct {
	AntennaGainDBi float64 `toml:"antenna_gain_dbi"`
	NoiseFigureDB  float64 `toml:"noise_figure_db"`
	CableLossDB    float64 `toml:"cable_loss_db"`
	SensitivityDBm float64 `toml:"sensitivity_dbm"`
	BandwidthMHz   float64 `toml:"bandwidth_mhz"`
	ResourceBlocks int     `toml:"resource_blocks"`
}

type budgetSettings struct {
	Catalog    Duration `toml:"catalog"`
	Propagate  Duration `toml:"propagate"`
	Visibility Duration `toml:"visibility"`
	Signal     Duration `toml:"signal"`
	Pool       Duration `toml:"pool"`
}

type eventSettings struct {
	A4 a4Settings `toml:"a4"`
	A5 a5Settings `toml:"a5"`
	D2 d2Settings `toml:"d2"`
}

type a4Settings struct {
	ThresholdDBm      float64  `toml:"threshold_dbm"`
	HysteresisDB      float64  `toml:"hysteresis_db"`
	OffsetFrequencyDB float64  `toml:"offset_frequency_db"`
	OffsetCellDB      float64  `toml:"offset_cell_db"`
	TimeToTrigger     Duration `toml:"time_to_trigger"`
}

type a5Settings struct {
	Threshold1DBm     float64  `toml:"threshold1_dbm"`
	Threshold2DBm     float64  `toml:"threshold2_dbm"`
	HysteresisDB      float64  `toml:"hysteresis_db"`
	OffsetFrequencyDB float64  `toml:"offset_frequency_db"`
	OffsetCellDB      float64  `toml:"offset_cell_db"`
	TimeToTrigger     Duration `toml:"time_to_trigger"`
}

type d2Settings struct {
	Threshold1Km  float64  `toml:"threshold1_km"`
	Threshold2Km  float64  `toml:"threshold2_km"`
	HysteresisKm  float64  `toml:"hysteresis_km"`
	TimeToTrigger Duration `toml:"time_to_trigger"`
}

// Pipeline maps the file settings onto a runner configuration.
func (s Settings) Pipeline() (pipeline.Config, error) {
	cfg := pipeline.Config{
		RunID:       s.RunID,
		ArtifactDir: s.ArtifactDir,
		Horizon:     s.Horizon.Duration,
		Step:        s.Step.Duration,
		Observer: model.Observer{
			Name:         s.Observer.Name,
			LatitudeDeg:  s.Observer.LatitudeDeg,
			LongitudeDeg: s.Observer.LongitudeDeg,
			AltitudeM:    s.Observer.AltitudeM,
		},
		Propagation: propagate.Config{
			Workers:       s.Workers,
			MaxElementAge: s.MaxElementAge.Duration,
		},
		Visibility: visibility.Config{Workers: s.Workers},
		Budgets: pipeline.StageBudgets{
			Catalog:    s.Budgets.Catalog.Duration,
			Propagate:  s.Budgets.Propagate.Duration,
			Visibility: s.Budgets.Visibility.Duration,
			Signal:     s.Budgets.Signal.Duration,
			Pool:       s.Budgets.Pool.Duration,
		},
	}

	for _, src := range s.Sources {
		var cn model.Constellation
		if src.Constellation != "" {
			parsed, err := model.ParseConstellation(src.Constellation)
			if err != nil {
				return pipeline.Config{}, err
			}
			cn = parsed
		}
		cfg.Sources = append(cfg.Sources, catalog.Source{Path: src.Path, Constellation: cn})
	}

	serving, err := model.ParseConstellation(s.Serving)
	if err != nil {
		return pipeline.Config{}, err
	}

	thresholds := make(map[model.Constellation]visibility.ConstellationThreshold, len(s.Constellations))
	params := make(map[model.Constellation]model.ConstellationParams, len(s.Constellations))
	targets := make(map[model.Constellation]pool.Target, len(s.Constellations))
	for _, c := range s.Constellations {
		cn, err := model.ParseConstellation(c.Name)
		if err != nil {
			return pipeline.Config{}, err
		}
		params[cn] = model.ConstellationParams{
			Constellation: cn,
			EIRPdBW:       c.EIRPdBW,
			FrequencyGHz:  c.FrequencyGHz,
			AltitudeKm:    c.AltitudeKm,
			PeriodMinutes: c.PeriodMinutes,
		}
		thresholds[cn] = visibility.ConstellationThreshold{
			MinElevationDeg: c.MinElevationDeg,
			MinVisibleTime:  c.MinVisibleTime.Duration,
		}
		targets[cn] = pool.Target{MinVisible: c.MinVisible, MaxPool: c.MaxPool}
	}

	cfg.Thresholds = visibility.PolicyConfig{
		Environment:    visibility.Environment(s.Environment),
		Weather:        visibility.Weather(s.Weather),
		Constellations: thresholds,
	}
	cfg.Signal = signal.Config{
		ServingConstellation: serving,
		Constellations:       params,
		Receiver: model.ReceiverParams{
			AntennaGainDBi: s.Receiver.AntennaGainDBi,
			NoiseFigureDB:  s.Receiver.NoiseFigureDB,
			CableLossDB:    s.Receiver.CableLossDB,
			SensitivityDBm: s.Receiver.SensitivityDBm,
			BandwidthMHz:   s.Receiver.BandwidthMHz,
			ResourceBlocks: s.Receiver.ResourceBlocks,
		},
		InterferenceToNoiseDB: s.InterferenceToNoiseDB,
		Events: signal.EventConfig{
			A4: signal.A4Config{
				ThresholdDBm:      s.Events.A4.ThresholdDBm,
				HysteresisDB:      s.Events.A4.HysteresisDB,
				OffsetFrequencyDB: s.Events.A4.OffsetFrequencyDB,
				OffsetCellDB:      s.Events.A4.OffsetCellDB,
				TimeToTrigger:     s.Events.A4.TimeToTrigger.Duration,
			},
			A5: signal.A5Config{
				Threshold1DBm:     s.Events.A5.Threshold1DBm,
				Threshold2DBm:     s.Events.A5.Threshold2DBm,
				HysteresisDB:      s.Events.A5.HysteresisDB,
				OffsetFrequencyDB: s.Events.A5.OffsetFrequencyDB,
				OffsetCellDB:      s.Events.A5.OffsetCellDB,
				TimeToTrigger:     s.Events.A5.TimeToTrigger.Duration,
			},
			D2: signal.D2Config{
				Threshold1Km:  s.Events.D2.Threshold1Km,
				Threshold2Km:  s.Events.D2.Threshold2Km,
				HysteresisKm:  s.Events.D2.HysteresisKm,
				TimeToTrigger: s.Events.D2.TimeToTrigger.Duration,
			},
		},
	}
	cfg.Pool = pool.Config{Targets: targets, CoverageBar: s.CoverageBar}
	return cfg, nil
}
