package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/dynpool/model"
)

const runConfig = `
run_id = "test-run"
artifact_dir = "out"

horizon = "120m"
step = "30s"
workers = 4
max_element_age = "72h"

environment = "open"
weather = "clear"

serving_constellation = "starlink"
interference_to_noise_db = -3.0
coverage_bar = 0.95

[observer]
name = "yokohama"
latitude_deg = 35.4437
longitude_deg = 139.6380
altitude_m = 40.0

[receiver]
antenna_gain_dbi = 35.0
noise_figure_db = 1.2
cable_loss_db = 0.5
sensitivity_dbm = -110.0
bandwidth_mhz = 20.0
resource_blocks = 106

[events.a4]
threshold_dbm = -95.0
hysteresis_db = 2.0
time_to_trigger = "640ms"

[events.a5]
threshold1_dbm = -100.0
threshold2_dbm = -95.0
hysteresis_db = 2.0
time_to_trigger = "640ms"

[events.d2]
threshold1_km = 800.0
threshold2_km = 600.0
hysteresis_km = 20.0
time_to_trigger = "320ms"

[budgets]
propagate = "5m"
pool = "10m"

[[source]]
path = "catalogs/starlink.tle"
constellation = "starlink"

[[source]]
path = "catalogs/oneweb.tle"
constellation = "oneweb"

[[constellation]]
name = "starlink"
eirp_dbw = 36.7
frequency_ghz = 12.5
altitude_km = 550.0
period_minutes = 95.6
min_elevation_deg = 5.0
min_visible_time = "1m"
min_visible = 3
max_pool = 12

[[constellation]]
name = "oneweb"
eirp_dbw = 34.6
frequency_ghz = 11.7
altitude_km = 1200.0
period_minutes = 109.4
min_elevation_deg = 10.0
min_visible_time = "30s"
min_visible = 2
max_pool = 8
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestConfigurePipelineMapping(t *testing.T) {
	settings, err := Configure(writeConfig(t, runConfig))
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}

	cfg, err := settings.Pipeline()
	if err != nil {
		t.Fatalf("Pipeline: %v", err)
	}

	if cfg.RunID != "test-run" {
		t.Errorf("RunID = %q, want test-run", cfg.RunID)
	}
	if cfg.Horizon != 120*time.Minute || cfg.Step != 30*time.Second {
		t.Errorf("grid = %v/%v, want 120m/30s", cfg.Horizon, cfg.Step)
	}
	if cfg.Propagation.Workers != 4 || cfg.Propagation.MaxElementAge != 72*time.Hour {
		t.Errorf("propagation config = %+v", cfg.Propagation)
	}
	if cfg.Observer.Name != "yokohama" || cfg.Observer.LatitudeDeg != 35.4437 {
		t.Errorf("observer = %+v", cfg.Observer)
	}

	if len(cfg.Sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(cfg.Sources))
	}
	if cfg.Sources[0].Constellation != model.ConstellationStarlink {
		t.Errorf("primary source constellation = %s", cfg.Sources[0].Constellation)
	}

	if cfg.Signal.ServingConstellation != model.ConstellationStarlink {
		t.Errorf("serving = %s, want STARLINK", cfg.Signal.ServingConstellation)
	}
	sl, ok := cfg.Signal.Constellations[model.ConstellationStarlink]
	if !ok || sl.EIRPdBW != 36.7 || sl.FrequencyGHz != 12.5 {
		t.Errorf("starlink params = %+v", sl)
	}
	if cfg.Signal.Events.A4.TimeToTrigger != 640*time.Millisecond {
		t.Errorf("a4 ttt = %v, want 640ms", cfg.Signal.Events.A4.TimeToTrigger)
	}

	th, ok := cfg.Thresholds.Constellations[model.ConstellationOneWeb]
	if !ok || th.MinElevationDeg != 10.0 || th.MinVisibleTime != 30*time.Second {
		t.Errorf("oneweb threshold = %+v", th)
	}

	target, ok := cfg.Pool.Targets[model.ConstellationStarlink]
	if !ok || target.MinVisible != 3 || target.MaxPool != 12 {
		t.Errorf("starlink target = %+v", target)
	}
	if cfg.Pool.CoverageBar != 0.95 {
		t.Errorf("coverage bar = %v, want 0.95", cfg.Pool.CoverageBar)
	}

	if cfg.Budgets.Propagate != 5*time.Minute || cfg.Budgets.Pool != 10*time.Minute {
		t.Errorf("budgets = %+v", cfg.Budgets)
	}
	if cfg.Budgets.Signal != 0 {
		t.Errorf("unset signal budget = %v, want 0", cfg.Budgets.Signal)
	}
}

func TestConfigureShippedSample(t *testing.T) {
	// The -config default points at configs/run.toml; the repository
	// ships it together with the catalogs it references.
	root := filepath.Join("..", "..")
	settings, err := Configure(filepath.Join(root, "configs", "run.toml"))
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	cfg, err := settings.Pipeline()
	if err != nil {
		t.Fatalf("Pipeline: %v", err)
	}

	if len(cfg.Sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(cfg.Sources))
	}
	for _, src := range cfg.Sources {
		if _, err := os.Stat(filepath.Join(root, src.Path)); err != nil {
			t.Errorf("catalog %s: %v", src.Path, err)
		}
	}
}

func TestConfigureRejectsUnknownConstellation(t *testing.T) {
	body := runConfig + `
[[constellation]]
name = "iridium"
eirp_dbw = 30.0
frequency_ghz = 1.6
altitude_km = 780.0
period_minutes = 100.0
min_elevation_deg = 8.0
min_visible_time = "30s"
min_visible = 1
max_pool = 4
`
	settings, err := Configure(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if _, err := settings.Pipeline(); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error for unknown constellation, got %v", err)
	}
}

func TestConfigureMissingFile(t *testing.T) {
	if _, err := Configure(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
