// Package propagate samples satellite trajectories over the run grid using
// the SGP4/SDP4 analytic model. All sample instants derive from the run
// epoch; the engine never consults the wall clock.
package propagate

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/dynpool/core"
	"github.com/signalsfoundry/dynpool/internal/logging"
	"github.com/signalsfoundry/dynpool/model"
	"github.com/signalsfoundry/dynpool/timebase"
)

// DefaultMaxElementAge bounds how far an element epoch may sit from any
// grid instant before the satellite is dropped as stale. SGP4 accuracy
// degrades past roughly a week.
const DefaultMaxElementAge = 7 * 24 * time.Hour

// Position magnitudes outside this envelope mark a failed propagation.
const (
	minSaneRadiusKm = 6200.0
	maxSaneRadiusKm = 50000.0
)

// Config tunes the engine.
type Config struct {
	// Workers caps the propagation fan-out. Zero means GOMAXPROCS.
	Workers int
	// MaxElementAge overrides DefaultMaxElementAge when positive.
	MaxElementAge time.Duration
}

// Engine propagates element sets across the run grid with a fixed worker
// pool. Per-satellite failures are dropped with a reason; they never abort
// the batch.
type Engine struct {
	log     logging.Logger
	workers int
	maxAge  time.Duration
}

// NewEngine constructs an Engine. A nil logger is replaced with a noop.
func NewEngine(cfg Config, log logging.Logger) *Engine {
	if log == nil {
		log = logging.Noop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	maxAge := cfg.MaxElementAge
	if maxAge <= 0 {
		maxAge = DefaultMaxElementAge
	}
	return &Engine{log: log, workers: workers, maxAge: maxAge}
}

// Track is one satellite's sampled trajectory in the TEME frame.
type Track struct {
	CatalogID     uint32
	Name          string
	Constellation model.Constellation
	Class         model.OrbitClass
	Samples       []model.PositionSample
}

// Result is the propagation stage output. Tracks are ordered by catalog ID
// so downstream output is deterministic regardless of worker scheduling.
type Result struct {
	Tracks  []Track
	Dropped []model.Disposition
}

type trackResult struct {
	track Track
	drop  *model.Disposition
}

// Run propagates every element set across the grid.
func (e *Engine) Run(ctx context.Context, elements []model.ElementSet, tb timebase.TimeBase) (*Result, error) {
	if len(elements) == 0 {
		return nil, fmt.Errorf("%w: no element sets to propagate", model.ErrValidation)
	}

	jobs := make(chan model.ElementSet, e.workers*2)
	results := make(chan trackResult, e.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for es := range jobs {
				select {
				case results <- e.propagateTrack(ctx, es, tb):
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, es := range elements {
			select {
			case jobs <- es:
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
			res.Dropped = append(res.Dropped, *r.drop)
			e.log.Warn(ctx, "satellite dropped",
				logging.Int("catalog_id", int(r.drop.CatalogID)),
				logging.String("reason", r.drop.Reason))
			continue
		}
		res.Tracks = append(res.Tracks, r.track)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(res.Tracks, func(i, j int) bool { return res.Tracks[i].CatalogID < res.Tracks[j].CatalogID })
	sort.Slice(res.Dropped, func(i, j int) bool { return res.Dropped[i].CatalogID < res.Dropped[j].CatalogID })

	e.log.Info(ctx, "propagation complete",
		logging.Int("tracks", len(res.Tracks)),
		logging.Int("dropped", len(res.Dropped)),
		logging.Int("grid_steps", tb.Steps()))
	return res, nil
}

// propagateTrack samples one satellite across the whole grid. The first
// bad sample fails the satellite; partial tracks are never emitted.
func (e *Engine) propagateTrack(ctx context.Context, es model.ElementSet, tb timebase.TimeBase) trackResult {
	drop := func(status model.DispositionStatus, reason string) trackResult {
		return trackResult{drop: &model.Disposition{
			CatalogID:     es.CatalogID,
			Name:          es.Name,
			Constellation: es.Constellation,
			Stage:         "propagate",
			Status:        status,
			Reason:        reason,
		}}
	}

	if span := tb.ExtrapolationSpan(es.Epoch); span > e.maxAge {
		return drop(model.DispositionExcluded,
			fmt.Sprintf("%v: epoch %s is %s from the farthest grid instant (limit %s)",
				model.ErrStaleElements, es.Epoch.Format(time.RFC3339), span, e.maxAge))
	}
	if err := validateLines(es.Line1, es.Line2); err != nil {
		return drop(model.DispositionFailed, err.Error())
	}

	// The library calls log.Fatal on unparseable lines, hence the
	// validation above before handing them over.
	sat := satellite.TLEToSat(es.Line1, es.Line2, satellite.GravityWGS72)
	if sat.Error != 0 {
		return drop(model.DispositionFailed,
			fmt.Sprintf("sgp4 init failed: code=%d %s", sat.Error, sat.ErrorStr))
	}

	steps := tb.Steps()
	samples := make([]model.PositionSample, 0, steps)
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return drop(model.DispositionFailed, fmt.Sprintf("propagation aborted: %v", err))
		}
		at := tb.At(i)
		pos, vel := satellite.Propagate(sat,
			at.Year(), int(at.Month()), at.Day(), at.Hour(), at.Minute(), at.Second())

		p := core.Vec3{X: pos.X, Y: pos.Y, Z: pos.Z}
		v := core.Vec3{X: vel.X, Y: vel.Y, Z: vel.Z}
		if !p.IsFinite() || !v.IsFinite() {
			return drop(model.DispositionFailed,
				fmt.Sprintf("propagation produced non-finite state at offset %s", tb.Offset(i)))
		}
		if r := p.Norm(); r < minSaneRadiusKm || r > maxSaneRadiusKm {
			return drop(model.DispositionFailed,
				fmt.Sprintf("position magnitude %.1f km outside [%.0f, %.0f] at offset %s",
					r, minSaneRadiusKm, maxSaneRadiusKm, tb.Offset(i)))
		}

		samples = append(samples, model.PositionSample{
			CatalogID:    es.CatalogID,
			SinceEpoch:   tb.Offset(i),
			At:           at,
			PositionTEME: p,
			VelocityTEME: v,
		})
	}

	return trackResult{track: Track{
		CatalogID:     es.CatalogID,
		Name:          es.Name,
		Constellation: es.Constellation,
		Class:         es.Class(),
		Samples:       samples,
	}}
}

// validateLines guards the library's fatal-on-garbage parser. The catalog
// loader already checksums lines; this re-checks shape for callers that
// construct element sets directly.
func validateLines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)
	if len(line1) != 69 {
		return fmt.Errorf("%w: line1 length %d, expected 69", model.ErrValidation, len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("%w: line2 length %d, expected 69", model.ErrValidation, len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("%w: line1 must start with '1'", model.ErrValidation)
	}
	if line2[0] != '2' {
		return fmt.Errorf("%w: line2 must start with '2'", model.ErrValidation)
	}
	return nil
}
