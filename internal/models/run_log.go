package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Run types and run log statuses.
const (
	RunTypeMarketOpen  = "market_open"
	RunTypeMarketClose = "market_close"

	RunStatusStarted   = "started"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ValidRunType reports whether t is a recognised run type.
func ValidRunType(t string) bool {
	return t == RunTypeMarketOpen || t == RunTypeMarketClose
}

// RunError describes one per-instrument failure captured during a run.
type RunError struct {
	InstrumentEtoroID int64  `json:"instrument_etoro_id,omitempty"`
	Symbol            string `json:"symbol,omitempty"`
	Stage             string `json:"stage"`
	Kind              string `json:"kind"`
	Message           string `json:"message"`
}

// RunLog is the audit record of one pipeline execution. It is mutable while
// the run is in flight and frozen once Status reaches a terminal value.
type RunLog struct {
	gorm.Model
	RunID               string `gorm:"uniqueIndex"`
	RunType             string
	Status              string
	InstrumentsAnalysed int
	InstrumentsSkipped  int
	RecommendationsMade int
	Degraded            bool
	Errors              string // JSON-encoded []RunError
	FailureStage        string
	FailureReason       string
	DurationMs          int64
	StartedAt           time.Time
	CompletedAt         *time.Time
}

// SetErrors serializes the per-instrument error list.
func (r *RunLog) SetErrors(errs []RunError) error {
	if len(errs) == 0 {
		r.Errors = ""
		return nil
	}
	data, err := json.Marshal(errs)
	if err != nil {
		return err
	}
	r.Errors = string(data)
	return nil
}

// GetErrors deserializes the stored error list.
func (r *RunLog) GetErrors() ([]RunError, error) {
	if r.Errors == "" {
		return nil, nil
	}
	var errs []RunError
	if err := json.Unmarshal([]byte(r.Errors), &errs); err != nil {
		return nil, err
	}
	return errs, nil
}
