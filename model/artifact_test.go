package model

import (
	"errors"
	"testing"
	"time"
)

func TestValidationSnapshot_Seal(t *testing.T) {
	s := ValidationSnapshot{Stage: "propagate", RunID: "r1"}

	// No checks recorded: never passes.
	s.Seal()
	if s.Passed {
		t.Fatalf("empty snapshot must not pass")
	}

	s.Record("epoch_inherited", true, "")
	s.Record("accounting_complete", true, "")
	s.Seal()
	if !s.Passed {
		t.Fatalf("all-green snapshot must pass: %+v", s.Checks)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("passing snapshot returned error: %v", err)
	}

	s.Record("timestamps_monotonic", false, "sample 12 repeats offset 360s")
	s.Seal()
	if s.Passed {
		t.Fatalf("snapshot with failed check must not pass")
	}
	if err := s.Err(); !errors.Is(err, ErrValidation) {
		t.Fatalf("failing snapshot error = %v, want ErrValidation", err)
	}
}

func TestVisibilityWindow_ContainsAndDuration(t *testing.T) {
	w := VisibilityWindow{
		Rise: 5 * time.Minute,
		Peak: 9 * time.Minute,
		Set:  13 * time.Minute,
	}

	if got := w.Duration(); got != 8*time.Minute {
		t.Fatalf("Duration = %v, want 8m", got)
	}
	for offset, want := range map[time.Duration]bool{
		5 * time.Minute:  true,
		9 * time.Minute:  true,
		13 * time.Minute: true,
		4 * time.Minute:  false,
		14 * time.Minute: false,
	} {
		if got := w.Contains(offset); got != want {
			t.Errorf("Contains(%v) = %v, want %v", offset, got, want)
		}
	}
}
