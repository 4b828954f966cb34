package signal

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/signalsfoundry/dynpool/model"
)

func testConstellations() map[model.Constellation]model.ConstellationParams {
	return map[model.Constellation]model.ConstellationParams{
		model.ConstellationStarlink: {
			EIRPdBW:       37.5,
			FrequencyGHz:  12.0,
			AltitudeKm:    550,
			PeriodMinutes: 95.6,
		},
		model.ConstellationOneWeb: {
			EIRPdBW:       40.0,
			FrequencyGHz:  13.25,
			AltitudeKm:    1200,
			PeriodMinutes: 109.4,
		},
	}
}

func testReceiver() model.ReceiverParams {
	return model.ReceiverParams{
		AntennaGainDBi: 35.0,
		NoiseFigureDB:  2.5,
		CableLossDB:    0.5,
		SensitivityDBm: -110.0,
		BandwidthMHz:   20.0,
		ResourceBlocks: 50,
	}
}

func testObserver() model.Observer {
	return model.Observer{
		Name:         "NTPU",
		LatitudeDeg:  24.9441667,
		LongitudeDeg: 121.3713889,
		AltitudeM:    35,
	}
}

func testBudget(t *testing.T) *Budget {
	t.Helper()
	b, err := NewBudget(testConstellations(), testReceiver(), 3.0, testObserver())
	if err != nil {
		t.Fatalf("NewBudget: %v", err)
	}
	return b
}

func TestFreeSpacePathLoss(t *testing.T) {
	cases := []struct {
		name    string
		rangeKm float64
		freqGHz float64
		want    float64
	}{
		{"starlink overhead", 550, 12.0, 168.8409},
		{"one thousand km at one ghz", 1000, 1.0, 152.45},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FreeSpacePathLossDB(tc.rangeKm, tc.freqGHz)
			if math.Abs(got-tc.want) > 0.001 {
				t.Fatalf("FreeSpacePathLossDB(%v, %v) = %.4f dB, want %.4f", tc.rangeKm, tc.freqGHz, got, tc.want)
			}
		})
	}

	if got := FreeSpacePathLossDB(0, 12); !math.IsInf(got, 1) {
		t.Errorf("zero range: got %.2f, want +Inf", got)
	}
	if near, far := FreeSpacePathLossDB(550, 12), FreeSpacePathLossDB(1200, 12); near >= far {
		t.Errorf("loss must grow with range: %.3f >= %.3f", near, far)
	}
}

func TestAtmosphericLoss(t *testing.T) {
	for _, el := range []float64{0, -5} {
		if got := AtmosphericLossDB(el, 12); got != subHorizonLossDB {
			t.Errorf("elevation %.0f: got %.2f dB, want flat %.0f", el, got, subHorizonLossDB)
		}
	}

	zenith := AtmosphericLossDB(90, 12)
	if math.Abs(zenith-13.643) > 0.02 {
		t.Fatalf("zenith loss at 12 GHz = %.4f dB, want 13.643", zenith)
	}

	// Loss grows as the slant path lengthens towards the horizon.
	prev := zenith
	for _, el := range []float64{45, 20, 10, 7, 3} {
		got := AtmosphericLossDB(el, 12)
		if got <= prev {
			t.Fatalf("loss at %.0f deg = %.3f not above loss at higher elevation %.3f", el, got, prev)
		}
		prev = got
	}

	// Below a few degrees the slant path hits the cap.
	capLoss := zenith / atmosphericScaleHeightKm * maxAtmosphericPathKm
	if got := AtmosphericLossDB(0.1, 12); math.Abs(got-capLoss) > 1e-9 {
		t.Errorf("near-horizon loss = %.6f dB, want capped %.6f", got, capLoss)
	}

	if low, high := AtmosphericLossDB(90, 2), AtmosphericLossDB(90, 20); low >= high {
		t.Errorf("attenuation must grow with frequency: %.3f >= %.3f", low, high)
	}
}

func TestNewBudgetValidation(t *testing.T) {
	type args struct {
		constellations map[model.Constellation]model.ConstellationParams
		receiver       model.ReceiverParams
		interference   float64
		observer       model.Observer
	}
	base := func() args {
		return args{testConstellations(), testReceiver(), 3.0, testObserver()}
	}

	cases := []struct {
		name   string
		mutate func(*args)
	}{
		{"no constellations", func(a *args) { a.constellations = nil }},
		{"missing eirp", func(a *args) {
			p := a.constellations[model.ConstellationStarlink]
			p.EIRPdBW = 0
			a.constellations[model.ConstellationStarlink] = p
		}},
		{"zero bandwidth", func(a *args) { a.receiver.BandwidthMHz = 0 }},
		{"missing interference ratio", func(a *args) { a.interference = 0 }},
		{"empty observer", func(a *args) { a.observer = model.Observer{} }},
		{"observer off the map", func(a *args) { a.observer.LatitudeDeg = 95 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := base()
			tc.mutate(&a)
			if _, err := NewBudget(a.constellations, a.receiver, a.interference, a.observer); !errors.Is(err, model.ErrConfiguration) {
				t.Fatalf("NewBudget: err = %v, want configuration error", err)
			}
		})
	}

	if _, err := NewBudget(testConstellations(), testReceiver(), 3.0, testObserver()); err != nil {
		t.Fatalf("valid configuration rejected: %v", err)
	}
}

func TestBudgetNoiseFloor(t *testing.T) {
	b := testBudget(t)
	if got := b.NoiseFloorDBm(); math.Abs(got-(-98.4897)) > 0.001 {
		t.Fatalf("noise floor = %.4f dBm, want -98.4897", got)
	}
}

func TestBudgetParams(t *testing.T) {
	b := testBudget(t)

	p, err := b.Params(model.ConstellationStarlink)
	if err != nil {
		t.Fatalf("Params: %v", err)
	}
	if p.Constellation != model.ConstellationStarlink {
		t.Errorf("params constellation = %q, want filled from key", p.Constellation)
	}
	if p.FrequencyGHz != 12.0 {
		t.Errorf("frequency = %.2f GHz, want 12.0", p.FrequencyGHz)
	}

	if _, err := b.Params(model.Constellation("KUIPER")); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("unknown constellation: err = %v, want configuration error", err)
	}
}

func TestBudgetEvaluate(t *testing.T) {
	b := testBudget(t)
	epoch := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)

	obs := model.ObservationSample{
		CatalogID:     44713,
		Constellation: model.ConstellationStarlink,
		SinceEpoch:    90 * time.Second,
		At:            epoch.Add(90 * time.Second),
		ElevationDeg:  90,
		RangeKm:       550,
		RangeRateKmS:  -5.0,
		Ground:        orb.Point{121.3713889, 24.9441667},
		Visible:       true,
		Tier:          model.TierPreferred,
	}

	sig, err := b.Evaluate(obs)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if sig.CatalogID != 44713 || sig.Constellation != model.ConstellationStarlink {
		t.Errorf("identity not carried through: %+v", sig)
	}
	if sig.SinceEpoch != 90*time.Second || !sig.At.Equal(obs.At) {
		t.Errorf("grid instant not carried through: %+v", sig)
	}
	if math.Abs(sig.PathLossDB-168.841) > 0.01 {
		t.Errorf("path loss = %.3f dB, want 168.841", sig.PathLossDB)
	}
	if math.Abs(sig.AtmosphericLossDB-13.643) > 0.02 {
		t.Errorf("atmospheric loss = %.3f dB, want 13.643", sig.AtmosphericLossDB)
	}
	if math.Abs(sig.RSRPdBm-(-80.48)) > 0.05 {
		t.Errorf("rsrp = %.3f dBm, want -80.48", sig.RSRPdBm)
	}
	if math.Abs(sig.SINRdB-13.24) > 0.05 {
		t.Errorf("sinr = %.3f dB, want 13.24", sig.SINRdB)
	}
	if sig.RSRQdB != maxRSRQdB {
		t.Errorf("rsrq = %.3f dB, want clamped at %.1f for a strong carrier", sig.RSRQdB, maxRSRQdB)
	}
	if math.Abs(sig.DopplerHz-200138.5) > 1.0 {
		t.Errorf("doppler = %.1f Hz, want 200138.5 while approaching", sig.DopplerHz)
	}
	if sig.GroundDistanceKm > 0.5 {
		t.Errorf("ground distance = %.3f km for the sub-observer point, want ~0", sig.GroundDistanceKm)
	}
	if sig.Serving || sig.Events != nil {
		t.Errorf("budget must not assign serving state or event phases: %+v", sig)
	}

	// Receding satellite flips the Doppler sign.
	obs.RangeRateKmS = 5.0
	away, err := b.Evaluate(obs)
	if err != nil {
		t.Fatalf("Evaluate receding: %v", err)
	}
	if math.Abs(away.DopplerHz+sig.DopplerHz) > 1e-6 {
		t.Errorf("receding doppler = %.1f Hz, want %.1f", away.DopplerHz, -sig.DopplerHz)
	}

	// One degree of latitude between observer and ground track.
	obs.Ground = orb.Point{121.3713889, 25.9441667}
	north, err := b.Evaluate(obs)
	if err != nil {
		t.Fatalf("Evaluate offset ground: %v", err)
	}
	if math.Abs(north.GroundDistanceKm-111.32) > 0.2 {
		t.Errorf("ground distance = %.2f km, want 111.32 for one degree of latitude", north.GroundDistanceKm)
	}
}

func TestBudgetEvaluateClamps(t *testing.T) {
	b := testBudget(t)

	sig, err := b.Evaluate(model.ObservationSample{
		CatalogID:     44713,
		Constellation: model.ConstellationStarlink,
		ElevationDeg:  2,
		RangeKm:       30000,
		Visible:       true,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if sig.RSRPdBm != minRSRPdBm {
		t.Errorf("rsrp = %.2f dBm, want clamped at %.1f", sig.RSRPdBm, minRSRPdBm)
	}
	if sig.RSRQdB != minRSRQdB {
		t.Errorf("rsrq = %.2f dB, want clamped at %.1f", sig.RSRQdB, minRSRQdB)
	}
	if sig.SINRdB != minSINRdB {
		t.Errorf("sinr = %.2f dB, want clamped at %.1f", sig.SINRdB, minSINRdB)
	}

	if _, err := b.Evaluate(model.ObservationSample{Constellation: "KUIPER", Visible: true}); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("unknown constellation: err = %v, want configuration error", err)
	}
}
