// Package timebase defines the single time authority for a pipeline run.
// Every sample instant is derived from the catalog epoch plus a grid
// offset; nothing downstream may consult the wall clock for computation.
package timebase

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/dynpool/model"
)

// TimeBase anchors a run at the catalog epoch and fixes the sampling grid.
// It is a value type: copy freely, never mutate.
type TimeBase struct {
	Epoch   time.Time
	Horizon time.Duration
	Step    time.Duration
}

// New validates and constructs a TimeBase. The epoch comes from the
// catalog loader, never from the clock.
func New(epoch time.Time, horizon, step time.Duration) (TimeBase, error) {
	if epoch.IsZero() {
		return TimeBase{}, fmt.Errorf("%w: time base epoch is required", model.ErrConfiguration)
	}
	if horizon <= 0 {
		return TimeBase{}, fmt.Errorf("%w: horizon %v must be positive", model.ErrConfiguration, horizon)
	}
	if step <= 0 {
		return TimeBase{}, fmt.Errorf("%w: step %v must be positive", model.ErrConfiguration, step)
	}
	if step > horizon {
		return TimeBase{}, fmt.Errorf("%w: step %v exceeds horizon %v", model.ErrConfiguration, step, horizon)
	}
	return TimeBase{Epoch: epoch.UTC(), Horizon: horizon, Step: step}, nil
}

// Steps returns the number of grid instants, including the epoch itself.
func (tb TimeBase) Steps() int {
	return int(tb.Horizon/tb.Step) + 1
}

// Offset returns the i-th grid offset from the epoch.
func (tb TimeBase) Offset(i int) time.Duration {
	return time.Duration(i) * tb.Step
}

// At returns the absolute UTC instant of the i-th grid point.
func (tb TimeBase) At(i int) time.Time {
	return tb.Epoch.Add(tb.Offset(i))
}

// ElementAge returns how far an element-set epoch sits from the run epoch,
// as a non-negative duration. Staleness policy is applied by the caller.
func (tb TimeBase) ElementAge(epoch time.Time) time.Duration {
	age := tb.Epoch.Sub(epoch)
	if age < 0 {
		age = -age
	}
	return age
}

// ExtrapolationSpan returns the farthest distance between an element-set
// epoch and any grid instant. Propagation runs out to the end of the
// horizon, so this is the span a staleness limit must cover, not just the
// gap to the run epoch.
func (tb TimeBase) ExtrapolationSpan(epoch time.Time) time.Duration {
	start := tb.Epoch.Sub(epoch)
	if start < 0 {
		start = -start
	}
	end := tb.Epoch.Add(tb.Horizon).Sub(epoch)
	if end < 0 {
		end = -end
	}
	if end > start {
		return end
	}
	return start
}
