package timebase

import (
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/dynpool/model"
)

func TestNew_Validation(t *testing.T) {
	epoch := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		epoch   time.Time
		horizon time.Duration
		step    time.Duration
		wantErr bool
	}{
		{"valid", epoch, 2 * time.Hour, 30 * time.Second, false},
		{"zero epoch", time.Time{}, time.Hour, time.Second, true},
		{"zero horizon", epoch, 0, time.Second, true},
		{"negative step", epoch, time.Hour, -time.Second, true},
		{"step beyond horizon", epoch, time.Minute, time.Hour, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.epoch, tc.horizon, tc.step)
			if tc.wantErr {
				if !errors.Is(err, model.ErrConfiguration) {
					t.Fatalf("expected configuration error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestTimeBase_Grid(t *testing.T) {
	epoch := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	tb, err := New(epoch, 2*time.Minute, 30*time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := tb.Steps(); got != 5 {
		t.Fatalf("Steps = %d, want 5", got)
	}
	if got := tb.Offset(0); got != 0 {
		t.Fatalf("Offset(0) = %v, want 0", got)
	}
	if got := tb.At(4); !got.Equal(epoch.Add(2 * time.Minute)) {
		t.Fatalf("At(4) = %v, want %v", got, epoch.Add(2*time.Minute))
	}
}

func TestTimeBase_ElementAge(t *testing.T) {
	epoch := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	tb, err := New(epoch, time.Hour, time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	older := epoch.Add(-36 * time.Hour)
	newer := epoch.Add(12 * time.Hour)

	if got := tb.ElementAge(older); got != 36*time.Hour {
		t.Fatalf("ElementAge(older) = %v, want 36h", got)
	}
	if got := tb.ElementAge(newer); got != 12*time.Hour {
		t.Fatalf("ElementAge(newer) = %v, want 12h", got)
	}
}

func TestTimeBase_ExtrapolationSpan(t *testing.T) {
	epoch := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	tb, err := New(epoch, 2*time.Hour, time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// An old epoch is farthest from the end of the grid, not the start.
	older := epoch.Add(-36 * time.Hour)
	if got := tb.ExtrapolationSpan(older); got != 38*time.Hour {
		t.Fatalf("ExtrapolationSpan(older) = %v, want 38h", got)
	}

	// A future epoch past the grid is farthest from the run epoch.
	future := epoch.Add(12 * time.Hour)
	if got := tb.ExtrapolationSpan(future); got != 12*time.Hour {
		t.Fatalf("ExtrapolationSpan(future) = %v, want 12h", got)
	}

	// An epoch inside the grid spans to whichever end is farther.
	inside := epoch.Add(30 * time.Minute)
	if got := tb.ExtrapolationSpan(inside); got != 90*time.Minute {
		t.Fatalf("ExtrapolationSpan(inside) = %v, want 1h30m", got)
	}
}
