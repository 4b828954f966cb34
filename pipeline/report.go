package pipeline

import (
	"time"

	"github.com/signalsfoundry/dynpool/model"
	"github.com/signalsfoundry/dynpool/pool"
	"github.com/signalsfoundry/dynpool/signal"
)

// Accounting is the reconciled disposition tally of one run. Included,
// excluded and failed always sum to the input count.
type Accounting struct {
	Input    int `json:"input"`
	Included int `json:"included"`
	Excluded int `json:"excluded"`
	Failed   int `json:"failed"`
}

// RunReport is the summary artifact of one run: grid parameters, the
// per-stage artifacts with their validation snapshots, the serving trace
// and the pool verdict.
type RunReport struct {
	RunID string    `json:"run_id"`
	Epoch time.Time `json:"epoch"`

	Observer model.Observer `json:"observer"`

	Horizon time.Duration `json:"horizon_ns"`
	Step    time.Duration `json:"step_ns"`
	Steps   int           `json:"steps"`

	CatalogDigest string `json:"catalog_digest"`

	Stages []model.StageArtifact `json:"stages"`

	Accounting Accounting `json:"accounting"`

	Serving      []signal.ServingSample `json:"serving"`
	Handovers    int                    `json:"handovers"`
	EventRecords int                    `json:"event_records"`

	Pool pool.Result `json:"pool"`

	Elapsed time.Duration `json:"elapsed_ns"`
}

// Result bundles the report with the full data products of the run.
// WriteArtifacts persists one file per field.
type Result struct {
	Report       RunReport
	Windows      []model.VisibilityWindow
	Series       []signal.Series
	Events       []signal.EventRecord
	Dispositions []model.Disposition
}
