package models

import "gorm.io/gorm"

// Recommendation actions and conviction levels.
const (
	ActionBuy      = "buy"
	ActionSell     = "sell"
	ActionHold     = "hold"
	ActionReduce   = "reduce"
	ActionIncrease = "increase"

	ConvictionHigh   = "high"
	ConvictionMedium = "medium"
	ConvictionLow    = "low"
)

// Recommendation is one suggested action inside a report. Ordering within
// the report is preserved via Rank.
type Recommendation struct {
	gorm.Model
	ReportRunID       string `gorm:"index"`
	InstrumentEtoroID int64
	Symbol            string
	Action            string
	Conviction        string
	Reasoning         string
	Rank              int
}

// Report is the final artifact of one run. The unique index on RunID
// guarantees at most one report per run; a second create attempt fails
// instead of overwriting.
type Report struct {
	gorm.Model
	RunID      string `gorm:"uniqueIndex:idx_report_run_id"`
	RunType    string
	SnapshotID uint
	Commentary string
	Summary    string
	Body       string // rendered markdown document
	Degraded   bool
}
