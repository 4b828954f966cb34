// Package pipeline chains the batch stages of one run: catalog load,
// propagation, visibility filtering, signal analysis and pool selection.
// Stage outputs move between stages in memory only; the runner owns the
// disposition ledger, gates every stage on its validation snapshot and
// persists the artifact set once the whole run has completed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/dynpool/catalog"
	"github.com/signalsfoundry/dynpool/internal/ledger"
	"github.com/signalsfoundry/dynpool/internal/logging"
	"github.com/signalsfoundry/dynpool/internal/observability"
	"github.com/signalsfoundry/dynpool/model"
	"github.com/signalsfoundry/dynpool/pool"
	"github.com/signalsfoundry/dynpool/propagate"
	"github.com/signalsfoundry/dynpool/signal"
	"github.com/signalsfoundry/dynpool/timebase"
	"github.com/signalsfoundry/dynpool/visibility"
)

const tracerName = "github.com/signalsfoundry/dynpool/pipeline"

// Stage names as they appear in artifacts, logs, metrics and spans.
const (
	StageCatalog    = "catalog"
	StagePropagate  = "propagate"
	StageVisibility = "visibility"
	StageSignal     = "signal"
	StagePool       = "pool"
)

// stagePipeline marks dispositions decided by the runner itself: the
// satellites that survived every stage.
const stagePipeline = "pipeline"

// StageBudgets caps wall-clock time per stage. Zero leaves a stage
// unbounded; an exceeded budget aborts the run with ErrTimeout rather
// than truncating its output.
type StageBudgets struct {
	Catalog    time.Duration `json:"catalog_ns"`
	Propagate  time.Duration `json:"propagate_ns"`
	Visibility time.Duration `json:"visibility_ns"`
	Signal     time.Duration `json:"signal_ns"`
	Pool       time.Duration `json:"pool_ns"`
}

// Config assembles one run end to end. Stage configs pass through to the
// stage constructors unchanged; the runner defaults nothing on top.
type Config struct {
	// RunID labels the run in logs, artifacts and spans. Empty generates
	// one.
	RunID string

	// Sources are the catalog files, primary constellation first. The
	// primary's newest element epoch anchors the run grid.
	Sources []catalog.Source

	Observer model.Observer

	// Horizon and Step fix the sampling grid relative to the run epoch.
	Horizon time.Duration
	Step    time.Duration

	Propagation propagate.Config
	Visibility  visibility.Config
	Thresholds  visibility.PolicyConfig
	Signal      signal.Config
	Pool        pool.Config

	Budgets StageBudgets

	// ArtifactDir receives the artifact set as JSON after a completed
	// run. Empty disables persistence.
	ArtifactDir string
}

// Runner executes the stages in order with a validation barrier between
// each.
type Runner struct {
	log     logging.Logger
	metrics *observability.Collector
	cfg     Config

	loader    *catalog.Loader
	engine    *propagate.Engine
	filter    *visibility.Filter
	analyzer  *signal.Analyzer
	optimizer *pool.Optimizer
}

// NewRunner validates the whole run configuration up front by constructing
// every stage. A nil logger is replaced with a noop; a nil collector
// disables metrics.
func NewRunner(cfg Config, log logging.Logger, metrics *observability.Collector) (*Runner, error) {
	if log == nil {
		log = logging.Noop()
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("%w: at least one catalog source is required", model.ErrConfiguration)
	}
	if cfg.Horizon <= 0 {
		return nil, fmt.Errorf("%w: horizon %v must be positive", model.ErrConfiguration, cfg.Horizon)
	}
	if cfg.Step <= 0 {
		return nil, fmt.Errorf("%w: step %v must be positive", model.ErrConfiguration, cfg.Step)
	}
	if cfg.Step > cfg.Horizon {
		return nil, fmt.Errorf("%w: step %v exceeds horizon %v", model.ErrConfiguration, cfg.Step, cfg.Horizon)
	}

	policy, err := visibility.NewPolicy(cfg.Thresholds)
	if err != nil {
		return nil, err
	}

	names := make([]model.Constellation, 0, len(cfg.Signal.Constellations))
	for cn := range cfg.Signal.Constellations {
		names = append(names, cn)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	if err := policy.Require(names...); err != nil {
		return nil, err
	}

	for _, cn := range names {
		// Coverage assessment needs at least one full orbital cycle of
		// every configured constellation inside the horizon.
		period := time.Duration(cfg.Signal.Constellations[cn].PeriodMinutes * float64(time.Minute))
		if period > cfg.Horizon {
			return nil, fmt.Errorf("%w: horizon %v is shorter than the %s nominal period %v",
				model.ErrConfiguration, cfg.Horizon, cn, period)
		}
		if _, ok := cfg.Pool.Targets[cn]; !ok {
			return nil, fmt.Errorf("%w: constellation %s has no pool target", model.ErrConfiguration, cn)
		}
	}
	for cn := range cfg.Pool.Targets {
		if _, ok := cfg.Signal.Constellations[cn]; !ok {
			return nil, fmt.Errorf("%w: pool target %s has no constellation parameters", model.ErrConfiguration, cn)
		}
	}

	filter, err := visibility.NewFilter(cfg.Observer, policy, cfg.Visibility, log)
	if err != nil {
		return nil, err
	}
	analyzer, err := signal.NewAnalyzer(cfg.Signal, cfg.Observer, log)
	if err != nil {
		return nil, err
	}
	optimizer, err := pool.NewOptimizer(cfg.Pool, log)
	if err != nil {
		return nil, err
	}

	return &Runner{
		log:       log,
		metrics:   metrics,
		cfg:       cfg,
		loader:    catalog.NewLoader(log),
		engine:    propagate.NewEngine(cfg.Propagation, log),
		filter:    filter,
		analyzer:  analyzer,
		optimizer: optimizer,
	}, nil
}

// Run executes the five stages over one catalog snapshot and returns the
// full result. A failed gate or an exceeded budget aborts the run with
// nothing written to the artifact directory.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if r.cfg.RunID != "" {
		ctx = logging.ContextWithRunID(ctx, r.cfg.RunID)
	}
	ctx, runID := logging.EnsureRunID(ctx)
	log := r.log.With(logging.String("run_id", runID))

	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	started := time.Now()
	led := ledger.New()
	unsubscribe := led.Subscribe(func(d model.Disposition) {
		log.Debug(ctx, "disposition recorded",
			logging.Int("catalog_id", int(d.CatalogID)),
			logging.String("stage", d.Stage),
			logging.String("status", string(d.Status)),
			logging.String("reason", d.Reason))
	})
	defer unsubscribe()

	var cat *catalog.Catalog
	elapsed, err := r.runStage(ctx, log, StageCatalog, r.cfg.Budgets.Catalog, func(ctx context.Context) error {
		var err error
		cat, err = r.loader.LoadSources(ctx, r.cfg.Sources...)
		return err
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Report: RunReport{RunID: runID, Observer: r.cfg.Observer}}

	art := model.StageArtifact{
		Stage:        StageCatalog,
		RunID:        runID,
		Epoch:        cat.Epoch,
		InputCount:   len(cat.Elements) + len(cat.Skipped),
		OutputCount:  len(cat.Elements),
		Elapsed:      elapsed,
		Dispositions: cat.Skipped,
	}
	snap := model.ValidationSnapshot{
		Stage:       StageCatalog,
		RunID:       runID,
		Epoch:       cat.Epoch,
		InputDigest: cat.Digest,
		InputCount:  art.InputCount,
		OutputCount: art.OutputCount,
	}
	snap.Record("elements_present", len(cat.Elements) > 0,
		fmt.Sprintf("%d element sets, %d skipped", len(cat.Elements), len(cat.Skipped)))
	snap.Record("epoch_anchored", !cat.Epoch.IsZero(), cat.Epoch.UTC().Format(time.RFC3339))
	snap.Record("digest_recorded", cat.Digest != "", cat.Digest)
	if err := r.gate(ctx, log, res, art, snap); err != nil {
		return nil, err
	}

	tb, err := timebase.New(cat.Epoch, r.cfg.Horizon, r.cfg.Step)
	if err != nil {
		return nil, err
	}
	res.Report.Epoch = tb.Epoch
	res.Report.Horizon = tb.Horizon
	res.Report.Step = tb.Step
	res.Report.Steps = tb.Steps()
	res.Report.CatalogDigest = cat.Digest

	// Catalog skips never enter the ID-keyed ledger: they either carry no
	// catalog ID or, when superseded by a newer element set, share one
	// with the entry that replaced them. The catalog artifact is their
	// terminal record; the ledger tracks the deduplicated elements only.
	inputCount := len(cat.Elements)

	var prop *propagate.Result
	elapsed, err = r.runStage(ctx, log, StagePropagate, r.cfg.Budgets.Propagate, func(ctx context.Context) error {
		var err error
		prop, err = r.engine.Run(ctx, cat.Elements, tb)
		return err
	})
	if err != nil {
		return nil, err
	}
	observeAll(led, prop.Dropped)

	art = model.StageArtifact{
		Stage:        StagePropagate,
		RunID:        runID,
		Epoch:        tb.Epoch,
		InputCount:   len(cat.Elements),
		OutputCount:  len(prop.Tracks),
		Elapsed:      elapsed,
		Dispositions: prop.Dropped,
	}
	snap = model.ValidationSnapshot{
		Stage:       StagePropagate,
		RunID:       runID,
		Epoch:       tb.Epoch,
		InputDigest: cat.Digest,
		InputCount:  art.InputCount,
		OutputCount: art.OutputCount,
	}
	snap.Record("accounting_closed", len(prop.Tracks)+len(prop.Dropped) == len(cat.Elements),
		fmt.Sprintf("%d tracks + %d dropped of %d elements", len(prop.Tracks), len(prop.Dropped), len(cat.Elements)))
	snap.Record("tracks_present", len(prop.Tracks) > 0, fmt.Sprintf("%d tracks", len(prop.Tracks)))
	snap.Record("grid_complete", fullGrid(prop.Tracks, tb.Steps()),
		fmt.Sprintf("%d samples per track", tb.Steps()))
	if err := r.gate(ctx, log, res, art, snap); err != nil {
		return nil, err
	}

	var vis *visibility.Result
	elapsed, err = r.runStage(ctx, log, StageVisibility, r.cfg.Budgets.Visibility, func(ctx context.Context) error {
		var err error
		vis, err = r.filter.Run(ctx, prop.Tracks, tb)
		return err
	})
	if err != nil {
		return nil, err
	}
	observeAll(led, vis.Excluded)

	art = model.StageArtifact{
		Stage:        StageVisibility,
		RunID:        runID,
		Epoch:        tb.Epoch,
		InputCount:   len(prop.Tracks),
		OutputCount:  len(vis.Observations),
		Elapsed:      elapsed,
		Dispositions: vis.Excluded,
	}
	snap = model.ValidationSnapshot{
		Stage:       StageVisibility,
		RunID:       runID,
		Epoch:       tb.Epoch,
		InputDigest: cat.Digest,
		InputCount:  art.InputCount,
		OutputCount: art.OutputCount,
	}
	snap.Record("accounting_closed", len(vis.Observations)+len(vis.Excluded) == len(prop.Tracks),
		fmt.Sprintf("%d observed + %d excluded of %d tracks", len(vis.Observations), len(vis.Excluded), len(prop.Tracks)))
	snap.Record("observations_present", len(vis.Observations) > 0,
		fmt.Sprintf("%d satellites with accepted windows", len(vis.Observations)))
	snap.Record("windows_ordered", windowsOrdered(vis.Windows),
		fmt.Sprintf("%d windows", len(vis.Windows)))
	if err := r.gate(ctx, log, res, art, snap); err != nil {
		return nil, err
	}
	res.Windows = vis.Windows

	var sig *signal.Result
	elapsed, err = r.runStage(ctx, log, StageSignal, r.cfg.Budgets.Signal, func(ctx context.Context) error {
		var err error
		sig, err = r.analyzer.Run(ctx, vis.Observations, tb)
		return err
	})
	if err != nil {
		return nil, err
	}

	art = model.StageArtifact{
		Stage:       StageSignal,
		RunID:       runID,
		Epoch:       tb.Epoch,
		InputCount:  len(vis.Observations),
		OutputCount: len(sig.Series),
		Elapsed:     elapsed,
	}
	snap = model.ValidationSnapshot{
		Stage:       StageSignal,
		RunID:       runID,
		Epoch:       tb.Epoch,
		InputDigest: cat.Digest,
		InputCount:  art.InputCount,
		OutputCount: art.OutputCount,
	}
	snap.Record("series_accounted", len(sig.Series) == len(vis.Observations),
		fmt.Sprintf("%d series for %d observed satellites", len(sig.Series), len(vis.Observations)))
	snap.Record("serving_grid_complete", len(sig.Serving) == tb.Steps(),
		fmt.Sprintf("%d serving samples for %d instants", len(sig.Serving), tb.Steps()))
	snap.Record("events_well_formed", eventsWellFormed(sig.Events),
		fmt.Sprintf("%d event records", len(sig.Events)))
	if err := r.gate(ctx, log, res, art, snap); err != nil {
		return nil, err
	}
	res.Series = sig.Series
	res.Events = sig.Events
	res.Report.Serving = sig.Serving
	res.Report.Handovers = sig.Handovers
	res.Report.EventRecords = len(sig.Events)

	cands := poolCandidates(vis.Observations)
	var sel *pool.Result
	elapsed, err = r.runStage(ctx, log, StagePool, r.cfg.Budgets.Pool, func(ctx context.Context) error {
		var err error
		sel, err = r.optimizer.Optimize(ctx, cands, tb)
		return err
	})
	if err != nil {
		return nil, err
	}

	members := 0
	for _, s := range sel.Selections {
		members += len(s.Members)
	}
	art = model.StageArtifact{
		Stage:       StagePool,
		RunID:       runID,
		Epoch:       tb.Epoch,
		InputCount:  len(cands),
		OutputCount: members,
		Elapsed:     elapsed,
	}
	snap = model.ValidationSnapshot{
		Stage:       StagePool,
		RunID:       runID,
		Epoch:       tb.Epoch,
		InputDigest: cat.Digest,
		InputCount:  art.InputCount,
		OutputCount: art.OutputCount,
	}
	snap.Record("constellations_accounted",
		len(sel.Selections)+len(sel.Infeasible) == len(r.cfg.Pool.Targets),
		fmt.Sprintf("%d selections + %d infeasible for %d targets",
			len(sel.Selections), len(sel.Infeasible), len(r.cfg.Pool.Targets)))
	snap.Record("coverage_bar_held", coverageHolds(sel.Selections, r.cfg.Pool.CoverageBar),
		fmt.Sprintf("bar %.2f", r.cfg.Pool.CoverageBar))
	if err := r.gate(ctx, log, res, art, snap); err != nil {
		return nil, err
	}
	res.Report.Pool = *sel
	for _, s := range sel.Selections {
		r.metrics.SetPoolOutcome(string(s.Constellation), len(s.Members), s.Coverage)
	}
	for _, inf := range sel.Infeasible {
		r.metrics.SetPoolOutcome(string(inf.Constellation), 0, inf.BestCoverage)
	}

	for _, obs := range vis.Observations {
		led.Observe(model.Disposition{
			CatalogID:     obs.CatalogID,
			Name:          obs.Name,
			Constellation: obs.Constellation,
			Stage:         stagePipeline,
			Status:        model.DispositionIncluded,
		})
	}
	if err := led.Reconcile(inputCount); err != nil {
		return nil, err
	}
	counts := led.Counts()
	res.Dispositions = led.Snapshot()
	res.Report.Accounting = Accounting{
		Input:    inputCount,
		Included: counts[model.DispositionIncluded],
		Excluded: counts[model.DispositionExcluded],
		Failed:   counts[model.DispositionFailed],
	}
	r.metrics.SetDispositionCounts(
		counts[model.DispositionIncluded],
		counts[model.DispositionExcluded],
		counts[model.DispositionFailed])
	r.metrics.SetRunTotals(sig.Handovers, len(sig.Events))
	res.Report.Elapsed = time.Since(started)

	if r.cfg.ArtifactDir != "" {
		if err := WriteArtifacts(r.cfg.ArtifactDir, res); err != nil {
			return nil, err
		}
		log.Info(ctx, "artifacts written", logging.String("dir", r.cfg.ArtifactDir))
	}

	log.Info(ctx, "run complete",
		logging.Int("input", inputCount),
		logging.Int("included", counts[model.DispositionIncluded]),
		logging.Int("handovers", sig.Handovers),
		logging.Int("events", len(sig.Events)),
		logging.Any("feasible", sel.Feasible))
	return res, nil
}

// runStage runs fn under the stage budget with a span and stage metrics.
// A blown budget surfaces as ErrTimeout; a cancellation of the run context
// passes through untouched.
func (r *Runner) runStage(ctx context.Context, log logging.Logger, stage string, budget time.Duration, fn func(context.Context) error) (time.Duration, error) {
	sctx := ctx
	cancel := func() {}
	if budget > 0 {
		sctx, cancel = context.WithTimeout(ctx, budget)
	}
	defer cancel()

	sctx, span := otel.Tracer(tracerName).Start(sctx, "pipeline."+stage,
		trace.WithAttributes(attribute.String("stage", stage)))
	defer span.End()

	log.Debug(sctx, "stage starting", logging.String("stage", stage))
	started := time.Now()
	err := fn(sctx)
	elapsed := time.Since(started)

	outcome := observability.OutcomeOK
	switch {
	case err == nil:
	case budget > 0 && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		outcome = observability.OutcomeTimeout
		err = fmt.Errorf("%w: stage %s exceeded its %v budget", model.ErrTimeout, stage, budget)
	default:
		outcome = observability.OutcomeError
	}

	r.metrics.ObserveStage(stage, outcome, elapsed)
	if err != nil {
		span.RecordError(err)
		log.Error(sctx, "stage failed",
			logging.String("stage", stage),
			logging.String("outcome", outcome),
			logging.String("error", err.Error()))
		return elapsed, err
	}
	log.Info(sctx, "stage complete",
		logging.String("stage", stage),
		logging.String("elapsed", elapsed.String()))
	return elapsed, nil
}

// gate seals the snapshot into the artifact, records it on the report and
// blocks the run when any check failed.
func (r *Runner) gate(ctx context.Context, log logging.Logger, res *Result, art model.StageArtifact, snap model.ValidationSnapshot) error {
	snap.Seal()
	art.Snapshot = snap
	res.Report.Stages = append(res.Report.Stages, art)
	if err := snap.Err(); err != nil {
		log.Error(ctx, "stage gate failed",
			logging.String("stage", art.Stage),
			logging.String("error", err.Error()))
		return err
	}
	log.Debug(ctx, "stage gate passed",
		logging.String("stage", art.Stage),
		logging.Int("input", art.InputCount),
		logging.Int("output", art.OutputCount))
	return nil
}

// observeAll forwards stage dispositions to the ledger.
func observeAll(led *ledger.Ledger, ds []model.Disposition) {
	for _, d := range ds {
		led.Observe(d)
	}
}

// poolCandidates projects the observed satellites into optimizer input.
// Only window geometry crosses the boundary.
func poolCandidates(observations []visibility.Observation) []pool.Candidate {
	cands := make([]pool.Candidate, 0, len(observations))
	for _, obs := range observations {
		cands = append(cands, pool.Candidate{
			CatalogID:     obs.CatalogID,
			Name:          obs.Name,
			Constellation: obs.Constellation,
			Windows:       obs.Windows,
		})
	}
	return cands
}

// fullGrid reports whether every track carries one sample per grid instant.
func fullGrid(tracks []propagate.Track, steps int) bool {
	for _, t := range tracks {
		if len(t.Samples) != steps {
			return false
		}
	}
	return true
}

// windowsOrdered reports whether the flattened window list is sorted by
// rise time.
func windowsOrdered(ws []model.VisibilityWindow) bool {
	for i := 1; i < len(ws); i++ {
		if ws[i].Rise < ws[i-1].Rise {
			return false
		}
	}
	return true
}

// eventsWellFormed reports whether every record closes at or after it
// opened.
func eventsWellFormed(events []signal.EventRecord) bool {
	for _, ev := range events {
		if ev.End < ev.Start {
			return false
		}
	}
	return true
}

// coverageHolds reports whether every accepted selection meets the bar.
func coverageHolds(sels []pool.Selection, bar float64) bool {
	for _, s := range sels {
		if s.Coverage < bar {
			return false
		}
	}
	return true
}
