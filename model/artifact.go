package model

import (
	"fmt"
	"time"
)

// DispositionStatus records what the pipeline ultimately did with one
// catalog entry.
type DispositionStatus string

const (
	DispositionIncluded DispositionStatus = "included"
	DispositionExcluded DispositionStatus = "excluded"
	DispositionFailed   DispositionStatus = "failed"
)

// Disposition is the per-satellite accounting record. Every catalog entry
// gets exactly one terminal disposition; the run report reconciles them
// against the input count.
type Disposition struct {
	CatalogID     uint32            `json:"catalog_id"`
	Name          string            `json:"name"`
	Constellation Constellation     `json:"constellation"`
	Stage         string            `json:"stage"`
	Status        DispositionStatus `json:"status"`
	Reason        string            `json:"reason,omitempty"`
}

// Check is one named validation outcome inside a snapshot.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// ValidationSnapshot is the gate artifact a stage publishes before the
// next stage may run. A snapshot with any failed check blocks the run.
type ValidationSnapshot struct {
	Stage       string    `json:"stage"`
	RunID       string    `json:"run_id"`
	Epoch       time.Time `json:"epoch"`
	InputDigest string    `json:"input_digest,omitempty"`
	InputCount  int       `json:"input_count"`
	OutputCount int       `json:"output_count"`
	Checks      []Check   `json:"checks"`
	Passed      bool      `json:"passed"`
}

// Record appends a named check and folds it into the overall verdict.
func (s *ValidationSnapshot) Record(name string, passed bool, detail string) {
	s.Checks = append(s.Checks, Check{Name: name, Passed: passed, Detail: detail})
}

// Seal computes the overall verdict. A snapshot with no checks does not
// pass; every stage asserts at least its epoch and accounting checks.
func (s *ValidationSnapshot) Seal() {
	s.Passed = len(s.Checks) > 0
	for _, c := range s.Checks {
		if !c.Passed {
			s.Passed = false
			return
		}
	}
}

// Err returns a descriptive validation error when the snapshot failed,
// nil otherwise.
func (s *ValidationSnapshot) Err() error {
	if s.Passed {
		return nil
	}
	for _, c := range s.Checks {
		if !c.Passed {
			return fmt.Errorf("%w: stage %s check %q: %s", ErrValidation, s.Stage, c.Name, c.Detail)
		}
	}
	return fmt.Errorf("%w: stage %s produced no checks", ErrValidation, s.Stage)
}

// StageArtifact is the common metadata every stage hands to the runner:
// counts, dispositions decided at that stage, and the validation snapshot
// gating the next stage.
type StageArtifact struct {
	Stage string    `json:"stage"`
	RunID string    `json:"run_id"`
	Epoch time.Time `json:"epoch"`

	InputCount  int           `json:"input_count"`
	OutputCount int           `json:"output_count"`
	Elapsed     time.Duration `json:"elapsed_ns"`

	Dispositions []Disposition      `json:"dispositions,omitempty"`
	Snapshot     ValidationSnapshot `json:"snapshot"`
}
