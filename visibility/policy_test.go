package visibility

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/dynpool/model"
)

func basePolicyConfig() PolicyConfig {
	return PolicyConfig{
		Environment: EnvironmentOpen,
		Weather:     WeatherClear,
		Constellations: map[model.Constellation]ConstellationThreshold{
			model.ConstellationStarlink: {MinElevationDeg: 5.0, MinVisibleTime: time.Minute},
			model.ConstellationOneWeb:   {MinElevationDeg: 10.0, MinVisibleTime: 30 * time.Second},
		},
	}
}

func TestNewPolicyValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*PolicyConfig)
	}{
		{"unknown environment", func(c *PolicyConfig) { c.Environment = "swamp" }},
		{"unknown weather", func(c *PolicyConfig) { c.Weather = "hail" }},
		{"no constellations", func(c *PolicyConfig) { c.Constellations = nil }},
		{"zero min elevation", func(c *PolicyConfig) {
			c.Constellations[model.ConstellationStarlink] = ConstellationThreshold{MinElevationDeg: 0}
		}},
		{"min elevation at 90", func(c *PolicyConfig) {
			c.Constellations[model.ConstellationStarlink] = ConstellationThreshold{MinElevationDeg: 90}
		}},
		{"negative min visible time", func(c *PolicyConfig) {
			c.Constellations[model.ConstellationOneWeb] = ConstellationThreshold{
				MinElevationDeg: 10, MinVisibleTime: -time.Second,
			}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := basePolicyConfig()
			tc.mutate(&cfg)
			if _, err := NewPolicy(cfg); !errors.Is(err, model.ErrConfiguration) {
				t.Fatalf("got %v, want ErrConfiguration", err)
			}
		})
	}

	if _, err := NewPolicy(basePolicyConfig()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestPolicyVisible(t *testing.T) {
	p, err := NewPolicy(basePolicyConfig())
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}

	cases := []struct {
		constellation model.Constellation
		elevation     float64
		want          bool
	}{
		{model.ConstellationStarlink, 4.99, false},
		{model.ConstellationStarlink, 5.0, true},
		{model.ConstellationStarlink, 89.0, true},
		{model.ConstellationOneWeb, 9.99, false},
		{model.ConstellationOneWeb, 10.0, true},
		{model.Constellation("KUIPER"), 85.0, false},
	}
	for _, tc := range cases {
		if got := p.Visible(tc.constellation, tc.elevation); got != tc.want {
			t.Errorf("Visible(%s, %.2f) = %v, want %v", tc.constellation, tc.elevation, got, tc.want)
		}
	}
}

func TestPolicyTierScaling(t *testing.T) {
	cfg := basePolicyConfig()
	cfg.Environment = EnvironmentUrban
	cfg.Weather = WeatherHeavyRain
	p, err := NewPolicy(cfg)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}

	critical, standard, preferred := p.TierThresholds()
	wantFactor := 1.1 * 1.4
	if math.Abs(critical-5.0*wantFactor) > 1e-9 {
		t.Errorf("critical threshold %.4f, want %.4f", critical, 5.0*wantFactor)
	}
	if math.Abs(standard-10.0*wantFactor) > 1e-9 {
		t.Errorf("standard threshold %.4f, want %.4f", standard, 10.0*wantFactor)
	}
	if math.Abs(preferred-15.0*wantFactor) > 1e-9 {
		t.Errorf("preferred threshold %.4f, want %.4f", preferred, 15.0*wantFactor)
	}

	cases := []struct {
		elevation float64
		want      model.ThresholdTier
	}{
		{critical - 0.01, model.TierNone},
		{critical + 0.01, model.TierCritical},
		{standard + 0.01, model.TierStandard},
		{preferred + 0.01, model.TierPreferred},
		{90.0, model.TierPreferred},
		{-5.0, model.TierNone},
	}
	for _, tc := range cases {
		if got := p.Tier(tc.elevation); got != tc.want {
			t.Errorf("Tier(%.2f) = %q, want %q", tc.elevation, got, tc.want)
		}
	}
}

func TestPolicyRequire(t *testing.T) {
	p, err := NewPolicy(basePolicyConfig())
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	if err := p.Require(model.ConstellationStarlink, model.ConstellationOneWeb); err != nil {
		t.Fatalf("Require known constellations: %v", err)
	}
	if err := p.Require(model.Constellation("KUIPER")); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("got %v, want ErrConfiguration", err)
	}
}
