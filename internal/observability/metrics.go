package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values recorded per stage run.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Collector bundles the Prometheus metrics of one pipeline process and
// provides helpers to wire them into the runner and an HTTP handler.
type Collector struct {
	gatherer prometheus.Gatherer

	StageRuns     *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec

	Dispositions *prometheus.GaugeVec

	PoolMembers  *prometheus.GaugeVec
	PoolCoverage *prometheus.GaugeVec

	Handovers    prometheus.Gauge
	EventRecords prometheus.Gauge
}

// NewCollector registers pipeline Prometheus metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_stage_runs_total",
		Help: "Total number of executed pipeline stages, labeled by stage and outcome.",
	}, []string{"stage", "outcome"})
	runs, err := registerCounterVec(reg, runs, "pipeline_stage_runs_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Pipeline stage wall time in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"stage"})
	durations, err = registerHistogramVec(reg, durations, "pipeline_stage_duration_seconds")
	if err != nil {
		return nil, err
	}

	dispositions := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "run_satellite_dispositions",
		Help: "Satellites of the last run by terminal disposition status.",
	}, []string{"status"})
	dispositions, err = registerGaugeVec(reg, dispositions, "run_satellite_dispositions")
	if err != nil {
		return nil, err
	}

	members := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pool_members",
		Help: "Selected pool size of the last run, per constellation.",
	}, []string{"constellation"})
	members, err = registerGaugeVec(reg, members, "pool_members")
	if err != nil {
		return nil, err
	}

	coverage := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pool_coverage_ratio",
		Help: "Fraction of grid slices meeting the visibility floor, per constellation.",
	}, []string{"constellation"})
	coverage, err = registerGaugeVec(reg, coverage, "pool_coverage_ratio")
	if err != nil {
		return nil, err
	}

	handovers, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "run_handovers",
		Help: "Serving-satellite changes counted over the last run grid.",
	}), "run_handovers")
	if err != nil {
		return nil, err
	}
	events, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "run_event_records",
		Help: "Committed measurement-event records of the last run.",
	}), "run_event_records")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:      gatherer,
		StageRuns:     runs,
		StageDuration: durations,
		Dispositions:  dispositions,
		PoolMembers:   members,
		PoolCoverage:  coverage,
		Handovers:     handovers,
		EventRecords:  events,
	}, nil
}

// ObserveStage records one stage execution outcome and duration.
func (c *Collector) ObserveStage(stage, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	if c.StageRuns != nil {
		c.StageRuns.WithLabelValues(stage, outcome).Inc()
	}
	if c.StageDuration != nil {
		c.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	}
}

// SetDispositionCounts publishes the run's terminal accounting.
func (c *Collector) SetDispositionCounts(included, excluded, failed int) {
	if c == nil || c.Dispositions == nil {
		return
	}
	c.Dispositions.WithLabelValues("included").Set(float64(included))
	c.Dispositions.WithLabelValues("excluded").Set(float64(excluded))
	c.Dispositions.WithLabelValues("failed").Set(float64(failed))
}

// SetPoolOutcome publishes the accepted pool size and coverage for one
// constellation. An infeasible constellation reports zero members with its
// best coverage.
func (c *Collector) SetPoolOutcome(constellation string, members int, coverage float64) {
	if c == nil {
		return
	}
	if c.PoolMembers != nil {
		c.PoolMembers.WithLabelValues(constellation).Set(float64(members))
	}
	if c.PoolCoverage != nil {
		c.PoolCoverage.WithLabelValues(constellation).Set(coverage)
	}
}

// SetRunTotals publishes grid-wide signal results.
func (c *Collector) SetRunTotals(handovers, eventRecords int) {
	if c == nil {
		return
	}
	if c.Handovers != nil {
		c.Handovers.Set(float64(handovers))
	}
	if c.EventRecords != nil {
		c.EventRecords.Set(float64(eventRecords))
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
