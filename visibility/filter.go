package visibility

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/signalsfoundry/dynpool/core"
	"github.com/signalsfoundry/dynpool/internal/logging"
	"github.com/signalsfoundry/dynpool/model"
	"github.com/signalsfoundry/dynpool/propagate"
	"github.com/signalsfoundry/dynpool/timebase"
)

// Config tunes the filter.
type Config struct {
	// Workers caps the per-satellite fan-out. Zero means one worker per
	// track up to 8.
	Workers int
}

// Filter evaluates propagated tracks against one observer site and one
// threshold policy.
type Filter struct {
	log     logging.Logger
	site    core.Site
	policy  *Policy
	workers int
}

// NewFilter validates the observer and builds the site geometry. The
// observer is mandatory; there is no default location.
func NewFilter(observer model.Observer, policy *Policy, cfg Config, log logging.Logger) (*Filter, error) {
	if log == nil {
		log = logging.Noop()
	}
	if policy == nil {
		return nil, fmt.Errorf("%w: threshold policy is required", model.ErrConfiguration)
	}
	if err := observer.Validate(); err != nil {
		return nil, err
	}
	site := core.NewSite(core.Geodetic{
		LatDeg: observer.LatitudeDeg,
		LonDeg: observer.LongitudeDeg,
		AltKm:  observer.AltitudeM / 1000.0,
	})
	return &Filter{log: log, site: site, policy: policy, workers: cfg.Workers}, nil
}

// Observation is one satellite's full observed series plus its accepted
// visibility windows. Samples cover the whole grid, visible or not.
type Observation struct {
	CatalogID     uint32
	Name          string
	Constellation model.Constellation
	Samples       []model.ObservationSample
	Windows       []model.VisibilityWindow
}

// Result is the visibility stage output. Observations carry only
// satellites with at least one accepted window; the rest are excluded
// with a reason. Windows is the flattened window list ordered by rise.
type Result struct {
	Observations []Observation
	Windows      []model.VisibilityWindow
	Excluded     []model.Disposition
}

type observeResult struct {
	obs  Observation
	drop *model.Disposition
}

// Run transforms every track into topocentric samples and merges windows.
// GMST is computed once per grid instant and shared across satellites.
func (f *Filter) Run(ctx context.Context, tracks []propagate.Track, tb timebase.TimeBase) (*Result, error) {
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: no tracks to observe", model.ErrValidation)
	}
	constellations := make(map[model.Constellation]struct{})
	for _, tr := range tracks {
		constellations[tr.Constellation] = struct{}{}
	}
	for c := range constellations {
		if err := f.policy.Require(c); err != nil {
			return nil, err
		}
	}

	steps := tb.Steps()
	gmst := make([]float64, steps)
	for i := 0; i < steps; i++ {
		gmst[i] = core.GMST(tb.At(i))
	}

	workers := f.workers
	if workers <= 0 {
		workers = len(tracks)
		if workers > 8 {
			workers = 8
		}
	}

	jobs := make(chan propagate.Track, workers*2)
	results := make(chan observeResult, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tr := range jobs {
				select {
				case results <- f.observeTrack(tr, gmst, tb):
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, tr := range tracks {
			select {
			case jobs <- tr:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	res := &Result{}
	for r := range results {
		if r.drop != nil {
			res.Excluded = append(res.Excluded, *r.drop)
			continue
		}
		res.Observations = append(res.Observations, r.obs)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(res.Observations, func(i, j int) bool {
		return res.Observations[i].CatalogID < res.Observations[j].CatalogID
	})
	sort.Slice(res.Excluded, func(i, j int) bool {
		return res.Excluded[i].CatalogID < res.Excluded[j].CatalogID
	})
	for _, obs := range res.Observations {
		res.Windows = append(res.Windows, obs.Windows...)
	}
	sort.Slice(res.Windows, func(i, j int) bool {
		if res.Windows[i].Rise != res.Windows[j].Rise {
			return res.Windows[i].Rise < res.Windows[j].Rise
		}
		return res.Windows[i].CatalogID < res.Windows[j].CatalogID
	})

	f.log.Info(ctx, "visibility filtering complete",
		logging.Int("observed", len(res.Observations)),
		logging.Int("excluded", len(res.Excluded)),
		logging.Int("windows", len(res.Windows)))
	return res, nil
}

// observeTrack evaluates one satellite across the grid and merges its
// windows. A satellite with no accepted window is excluded.
func (f *Filter) observeTrack(tr propagate.Track, gmst []float64, tb timebase.TimeBase) observeResult {
	samples := make([]model.ObservationSample, 0, len(tr.Samples))
	maxElevation := -90.0

	for i, ps := range tr.Samples {
		posECEF, velECEF := core.TEMEToECEF(ps.PositionTEME, ps.VelocityTEME, gmst[i])
		look := f.site.LookAngles(posECEF)
		ground := core.ECEFToGeodetic(posECEF)

		if look.ElevationDeg > maxElevation {
			maxElevation = look.ElevationDeg
		}

		samples = append(samples, model.ObservationSample{
			CatalogID:     tr.CatalogID,
			Constellation: tr.Constellation,
			SinceEpoch:    ps.SinceEpoch,
			At:            ps.At,
			AzimuthDeg:    look.AzimuthDeg,
			ElevationDeg:  look.ElevationDeg,
			RangeKm:       look.RangeKm,
			RangeRateKmS:  f.site.RangeRateKmS(posECEF, velECEF),
			Ground:        orb.Point{ground.LonDeg, ground.LatDeg},
			Visible:       f.policy.Visible(tr.Constellation, look.ElevationDeg),
			Tier:          f.policy.Tier(look.ElevationDeg),
		})
	}

	windows := mergeWindows(samples, tr.Constellation, f.policy.MinVisibleTime(tr.Constellation), tb.Step)
	if len(windows) == 0 {
		th, _ := f.policy.Threshold(tr.Constellation)
		return observeResult{drop: &model.Disposition{
			CatalogID:     tr.CatalogID,
			Name:          tr.Name,
			Constellation: tr.Constellation,
			Stage:         "visibility",
			Status:        model.DispositionExcluded,
			Reason: fmt.Sprintf("no window above %.1f° for at least %s (max elevation %.1f°)",
				th.MinElevationDeg, th.MinVisibleTime, maxElevation),
		}}
	}

	return observeResult{obs: Observation{
		CatalogID:     tr.CatalogID,
		Name:          tr.Name,
		Constellation: tr.Constellation,
		Samples:       samples,
		Windows:       windows,
	}}
}

// mergeWindows folds contiguous visible samples into windows and drops
// runs shorter than the constellation minimum. Each sample stands for one
// grid step of visible time.
func mergeWindows(samples []model.ObservationSample, c model.Constellation, minVisible time.Duration, step time.Duration) []model.VisibilityWindow {
	var windows []model.VisibilityWindow

	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		run := samples[start : end+1]
		if time.Duration(len(run))*step >= minVisible {
			windows = append(windows, buildWindow(run, c))
		}
		start = -1
	}

	for i, s := range samples {
		if s.Visible {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i - 1)
	}
	flush(len(samples) - 1)

	return windows
}

func buildWindow(run []model.ObservationSample, c model.Constellation) model.VisibilityWindow {
	peak := 0
	for i, s := range run {
		if s.ElevationDeg > run[peak].ElevationDeg {
			peak = i
		}
	}
	first, last := run[0], run[len(run)-1]
	return model.VisibilityWindow{
		CatalogID:       first.CatalogID,
		Constellation:   c,
		Rise:            first.SinceEpoch,
		Peak:            run[peak].SinceEpoch,
		Set:             last.SinceEpoch,
		RiseAt:          first.At,
		PeakAt:          run[peak].At,
		SetAt:           last.At,
		MaxElevationDeg: run[peak].ElevationDeg,
		RiseAzimuthDeg:  first.AzimuthDeg,
		SetAzimuthDeg:   last.AzimuthDeg,
		Samples:         len(run),
	}
}
