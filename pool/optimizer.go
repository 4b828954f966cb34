// Package pool selects the minimal per-constellation satellite subset
// whose visibility windows keep the simultaneous-visibility floor met
// across the run grid. A pool is published only when the coverage bar
// holds; anything less is reported as a typed infeasibility, never as an
// under-covered success.
package pool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/dynpool/internal/logging"
	"github.com/signalsfoundry/dynpool/model"
	"github.com/signalsfoundry/dynpool/timebase"
)

// maxReportedGaps bounds the per-selection gap list in the artifact.
const maxReportedGaps = 16

// Target is the per-constellation selection goal.
type Target struct {
	// MinVisible is the simultaneous-visibility floor per slice.
	MinVisible int
	// MaxPool is the selection budget.
	MaxPool int
}

// Config holds the optimizer goals. Nothing is defaulted.
type Config struct {
	Targets map[model.Constellation]Target

	// CoverageBar is the fraction of slices that must meet the floor for
	// a pool to be accepted.
	CoverageBar float64
}

// Candidate is one satellite offered to the optimizer, carrying the
// visibility windows the filter produced for it.
type Candidate struct {
	CatalogID     uint32
	Name          string
	Constellation model.Constellation
	Windows       []model.VisibilityWindow
}

// SliceStats summarizes the per-slice visible counts of a selection.
type SliceStats struct {
	Min    int     `json:"min"`
	Max    int     `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	P5     float64 `json:"p5"`
}

// Deficit is one slice where the selection missed the floor.
type Deficit struct {
	Slice      int           `json:"slice"`
	SinceEpoch time.Duration `json:"since_epoch_ns"`
	Visible    int           `json:"visible"`
	Required   int           `json:"required"`
}

// Selection is an accepted per-constellation pool.
type Selection struct {
	Constellation model.Constellation `json:"constellation"`
	Members       []uint32            `json:"members"`
	Coverage      float64             `json:"coverage"`
	Stats         SliceStats          `json:"slice_stats"`

	// Gaps lists the first slices still below the floor; an accepted pool
	// may carry up to 1-CoverageBar of them.
	Gaps []Deficit `json:"gaps,omitempty"`
}

// Infeasibility is the structured non-success for one constellation.
type Infeasibility struct {
	Constellation model.Constellation `json:"constellation"`
	BestCoverage  float64             `json:"best_coverage"`
	DeficitSlices int                 `json:"deficit_slices"`
	Reason        string              `json:"reason"`
}

// Result is the optimizer output. Feasible is true only when every
// configured constellation produced an accepted selection.
type Result struct {
	Selections []Selection     `json:"selections"`
	Infeasible []Infeasibility `json:"infeasible,omitempty"`
	Feasible   bool            `json:"feasible"`
}

// Optimizer runs the coverage search. Constellations are independent and
// searched in parallel.
type Optimizer struct {
	log logging.Logger
	cfg Config
}

// NewOptimizer validates the goals up front.
func NewOptimizer(cfg Config, log logging.Logger) (*Optimizer, error) {
	if log == nil {
		log = logging.Noop()
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("%w: no pool targets configured", model.ErrConfiguration)
	}
	for c, t := range cfg.Targets {
		if t.MinVisible < 1 {
			return nil, fmt.Errorf("%w: %s: min_visible must be at least 1", model.ErrConfiguration, c)
		}
		if t.MaxPool < t.MinVisible {
			return nil, fmt.Errorf("%w: %s: pool budget %d is below the visibility floor %d",
				model.ErrConfiguration, c, t.MaxPool, t.MinVisible)
		}
	}
	if cfg.CoverageBar <= 0 || cfg.CoverageBar > 1 {
		return nil, fmt.Errorf("%w: coverage bar %.3f outside (0, 1]", model.ErrConfiguration, cfg.CoverageBar)
	}
	return &Optimizer{log: log, cfg: cfg}, nil
}

// Optimize searches every configured constellation over the run grid. An
// empty candidate set is an infeasibility, not an error: the optimizer
// must never publish an empty pool as success.
func (o *Optimizer) Optimize(ctx context.Context, candidates []Candidate, tb timebase.TimeBase) (*Result, error) {
	groups := make(map[model.Constellation][]Candidate)
	for _, cand := range candidates {
		if _, ok := o.cfg.Targets[cand.Constellation]; !ok {
			return nil, fmt.Errorf("%w: candidate %d has constellation %s with no pool target",
				model.ErrConfiguration, cand.CatalogID, cand.Constellation)
		}
		groups[cand.Constellation] = append(groups[cand.Constellation], cand)
	}

	constellations := make([]model.Constellation, 0, len(o.cfg.Targets))
	for c := range o.cfg.Targets {
		constellations = append(constellations, c)
	}
	sort.Slice(constellations, func(i, j int) bool { return constellations[i] < constellations[j] })

	type outcome struct {
		selection  *Selection
		infeasible *Infeasibility
		err        error
	}
	outcomes := make([]outcome, len(constellations))

	var wg sync.WaitGroup
	for i, c := range constellations {
		group := groups[c]
		sort.Slice(group, func(a, b int) bool { return group[a].CatalogID < group[b].CatalogID })

		wg.Add(1)
		go func(i int, c model.Constellation, group []Candidate) {
			defer wg.Done()
			sel, inf, err := o.search(ctx, c, o.cfg.Targets[c], group, tb)
			outcomes[i] = outcome{selection: sel, infeasible: inf, err: err}
		}(i, c, group)
	}
	wg.Wait()

	res := &Result{}
	for i, c := range constellations {
		out := outcomes[i]
		if out.err != nil {
			return nil, out.err
		}
		if out.infeasible != nil {
			o.log.Warn(ctx, "pool infeasible",
				logging.String("constellation", string(c)),
				logging.Any("best_coverage", out.infeasible.BestCoverage),
				logging.Int("deficit_slices", out.infeasible.DeficitSlices),
				logging.String("reason", out.infeasible.Reason))
			res.Infeasible = append(res.Infeasible, *out.infeasible)
			continue
		}
		o.log.Info(ctx, "pool selected",
			logging.String("constellation", string(c)),
			logging.Int("members", len(out.selection.Members)),
			logging.Any("coverage", out.selection.Coverage))
		res.Selections = append(res.Selections, *out.selection)
	}
	res.Feasible = len(res.Infeasible) == 0 && len(res.Selections) > 0
	return res, nil
}
