package signal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/signalsfoundry/dynpool/internal/logging"
	"github.com/signalsfoundry/dynpool/model"
	"github.com/signalsfoundry/dynpool/timebase"
	"github.com/signalsfoundry/dynpool/visibility"
)

// Config assembles the analyzer. Every physical value must be present;
// validation rejects zeroes rather than substituting assumptions.
type Config struct {
	// ServingConstellation provides the serving cell at each instant.
	ServingConstellation model.Constellation

	Constellations map[model.Constellation]model.ConstellationParams
	Receiver       model.ReceiverParams

	// InterferenceToNoiseDB is the assumed I/N ratio of the channel.
	InterferenceToNoiseDB float64

	Events EventConfig
}

// Analyzer walks the grid in time order, elects a serving satellite per
// instant and drives one machine per event per candidate.
type Analyzer struct {
	log            logging.Logger
	budget         *Budget
	serving        model.Constellation
	sensitivityDBm float64
	events         EventConfig
}

// NewAnalyzer validates the whole configuration up front.
func NewAnalyzer(cfg Config, observer model.Observer, log logging.Logger) (*Analyzer, error) {
	if log == nil {
		log = logging.Noop()
	}
	if cfg.ServingConstellation == "" {
		return nil, fmt.Errorf("%w: serving constellation is required", model.ErrConfiguration)
	}
	budget, err := NewBudget(cfg.Constellations, cfg.Receiver, cfg.InterferenceToNoiseDB, observer)
	if err != nil {
		return nil, err
	}
	if _, err := budget.Params(cfg.ServingConstellation); err != nil {
		return nil, err
	}
	if err := cfg.Events.Validate(); err != nil {
		return nil, err
	}
	return &Analyzer{
		log:            log,
		budget:         budget,
		serving:        cfg.ServingConstellation,
		sensitivityDBm: cfg.Receiver.SensitivityDBm,
		events:         cfg.Events,
	}, nil
}

// Series is one satellite's signal samples over its visible instants.
type Series struct {
	CatalogID     uint32
	Name          string
	Constellation model.Constellation
	Samples       []model.SignalSample
}

// EventRecord is one committed trigger interval of one event machine.
type EventRecord struct {
	Event         model.EventID       `json:"event"`
	CatalogID     uint32              `json:"catalog_id"`
	Constellation model.Constellation `json:"constellation"`
	ServingID     uint32              `json:"serving_id"`

	Start   time.Duration `json:"start_ns"`
	End     time.Duration `json:"end_ns"`
	StartAt time.Time     `json:"start_at"`
	EndAt   time.Time     `json:"end_at"`

	// Ongoing marks a trigger still committed when the grid ended.
	Ongoing bool `json:"ongoing,omitempty"`
}

// ServingSample records which satellite served one grid instant; zero
// means no serving-constellation satellite was visible.
type ServingSample struct {
	SinceEpoch time.Duration `json:"since_epoch_ns"`
	At         time.Time     `json:"at"`
	CatalogID  uint32        `json:"catalog_id"`
}

// Result is the signal stage output.
type Result struct {
	Series  []Series
	Events  []EventRecord
	Serving []ServingSample

	// Handovers counts serving-satellite changes between instants that
	// both had a serving satellite.
	Handovers int
}

type satState struct {
	obs      visibility.Observation
	machines map[model.EventID]*machine
	open     map[model.EventID]*EventRecord
	series   *Series
}

// Run analyzes all observations across the grid. Observations must carry
// full-grid sample series, as produced by the visibility filter.
func (a *Analyzer) Run(ctx context.Context, observations []visibility.Observation, tb timebase.TimeBase) (*Result, error) {
	if len(observations) == 0 {
		return nil, fmt.Errorf("%w: no observations to analyze", model.ErrValidation)
	}
	steps := tb.Steps()
	for _, obs := range observations {
		if len(obs.Samples) != steps {
			return nil, fmt.Errorf("%w: satellite %d has %d samples, grid has %d",
				model.ErrValidation, obs.CatalogID, len(obs.Samples), steps)
		}
		if _, err := a.budget.Params(obs.Constellation); err != nil {
			return nil, err
		}
	}

	states := make([]*satState, len(observations))
	for i, obs := range observations {
		states[i] = &satState{
			obs: obs,
			machines: map[model.EventID]*machine{
				model.EventA4: newMachine(),
				model.EventA5: newMachine(),
				model.EventD2: newMachine(),
			},
			open: make(map[model.EventID]*EventRecord),
			series: &Series{
				CatalogID:     obs.CatalogID,
				Name:          obs.Name,
				Constellation: obs.Constellation,
			},
		}
	}

	res := &Result{Serving: make([]ServingSample, 0, steps)}
	var lastServing uint32

	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		offset := tb.Offset(i)
		at := tb.At(i)

		// Evaluate the budget for every visible satellite first; serving
		// election needs all of them.
		samples := make(map[uint32]model.SignalSample, len(states))
		for _, st := range states {
			s := st.obs.Samples[i]
			if !s.Visible {
				continue
			}
			sig, err := a.budget.Evaluate(s)
			if err != nil {
				return nil, err
			}
			samples[st.obs.CatalogID] = sig
		}

		servingID := a.electServing(states, samples)
		res.Serving = append(res.Serving, ServingSample{SinceEpoch: offset, At: at, CatalogID: servingID})
		if servingID != 0 && lastServing != 0 && servingID != lastServing {
			res.Handovers++
		}
		if servingID != 0 {
			lastServing = servingID
		}

		var servingSample model.SignalSample
		if servingID != 0 {
			servingSample = samples[servingID]
		}

		for _, st := range states {
			id := st.obs.CatalogID
			sig, visible := samples[id]

			cond := conditions{visible: visible}
			if visible {
				cond.neighborRSRPdBm = sig.RSRPdBm
				cond.neighborDistanceKm = sig.GroundDistanceKm
			}
			if servingID != 0 && id != servingID {
				cond.hasServing = true
				cond.servingRSRPdBm = servingSample.RSRPdBm
				cond.servingDistanceKm = servingSample.GroundDistanceKm
			}

			// The serving satellite measures no neighbour events against
			// itself; its machines decay towards idle.
			if id == servingID {
				cond = conditions{visible: false}
			}

			phases := a.stepMachines(st, cond, servingID, offset, at, tb.Step, res)

			if visible {
				sig.Serving = id == servingID
				if id != servingID {
					sig.Events = phases
				}
				st.series.Samples = append(st.series.Samples, sig)
			}
		}
	}

	// Close records still committed at the end of the grid.
	last := steps - 1
	for _, st := range states {
		for _, ev := range [...]model.EventID{model.EventA4, model.EventA5, model.EventD2} {
			if rec, ok := st.open[ev]; ok && st.machines[ev].triggered() {
				rec.End = tb.Offset(last)
				rec.EndAt = tb.At(last)
				rec.Ongoing = true
				res.Events = append(res.Events, *rec)
			}
		}
	}

	for _, st := range states {
		if len(st.series.Samples) > 0 {
			res.Series = append(res.Series, *st.series)
		}
	}
	sort.Slice(res.Series, func(i, j int) bool { return res.Series[i].CatalogID < res.Series[j].CatalogID })
	sort.Slice(res.Events, func(i, j int) bool {
		if res.Events[i].Start != res.Events[j].Start {
			return res.Events[i].Start < res.Events[j].Start
		}
		if res.Events[i].CatalogID != res.Events[j].CatalogID {
			return res.Events[i].CatalogID < res.Events[j].CatalogID
		}
		return res.Events[i].Event < res.Events[j].Event
	})

	a.log.Info(ctx, "signal analysis complete",
		logging.Int("series", len(res.Series)),
		logging.Int("events", len(res.Events)),
		logging.Int("handovers", res.Handovers))
	return res, nil
}

// electServing picks the strongest visible satellite of the serving
// constellation at or above receiver sensitivity; ties break towards the
// lower catalog ID.
func (a *Analyzer) electServing(states []*satState, samples map[uint32]model.SignalSample) uint32 {
	var bestID uint32
	bestRSRP := 0.0
	for _, st := range states {
		if st.obs.Constellation != a.serving {
			continue
		}
		sig, ok := samples[st.obs.CatalogID]
		if !ok {
			continue
		}
		if sig.RSRPdBm < a.sensitivityDBm {
			continue
		}
		if bestID == 0 || sig.RSRPdBm > bestRSRP ||
			(sig.RSRPdBm == bestRSRP && st.obs.CatalogID < bestID) {
			bestID = st.obs.CatalogID
			bestRSRP = sig.RSRPdBm
		}
	}
	return bestID
}

// stepMachines advances the three machines for one candidate and keeps
// the trigger records in sync with phase transitions.
func (a *Analyzer) stepMachines(st *satState, cond conditions, servingID uint32, offset time.Duration, at time.Time, step time.Duration, res *Result) map[model.EventID]model.EventPhase {
	eval := func(ev model.EventID) (enter, leave bool, ttt time.Duration) {
		switch ev {
		case model.EventA4:
			enter, leave = a4Conditions(cond, a.events.A4)
			return enter, leave, a.events.A4.TimeToTrigger
		case model.EventA5:
			enter, leave = a5Conditions(cond, a.events.A5)
			return enter, leave, a.events.A5.TimeToTrigger
		default:
			enter, leave = d2Conditions(cond, a.events.D2)
			return enter, leave, a.events.D2.TimeToTrigger
		}
	}

	phases := make(map[model.EventID]model.EventPhase, 3)
	for _, ev := range [...]model.EventID{model.EventA4, model.EventA5, model.EventD2} {
		m := st.machines[ev]
		wasTriggered := m.triggered()

		enter, leave, ttt := eval(ev)
		m.step(enter, leave, step, ttt)

		if !wasTriggered && m.triggered() {
			st.open[ev] = &EventRecord{
				Event:         ev,
				CatalogID:     st.obs.CatalogID,
				Constellation: st.obs.Constellation,
				ServingID:     servingID,
				Start:         offset,
				StartAt:       at,
			}
		}
		if wasTriggered && !m.triggered() {
			if rec, ok := st.open[ev]; ok {
				rec.End = offset
				rec.EndAt = at
				res.Events = append(res.Events, *rec)
				delete(st.open, ev)
			}
		}
		phases[ev] = m.phase
	}
	return phases
}
