package models

import "gorm.io/gorm"

// Trend directions.
const (
	TrendBullish = "bullish"
	TrendBearish = "bearish"
	TrendNeutral = "neutral"
)

// AnalysisResult is the per-instrument, per-run signal output.
// InputWindow keeps a JSON copy of the candle window the signals were
// computed from, so every number in a report can be traced back to its
// exact input.
type AnalysisResult struct {
	gorm.Model
	RunID             string `gorm:"uniqueIndex:idx_analysis_run_instrument"`
	InstrumentEtoroID int64  `gorm:"uniqueIndex:idx_analysis_run_instrument"`
	Symbol            string
	LastPrice         float64 // current rate at acquisition time, last close when no rate was available
	Trend             string
	TrendStrength     float64
	Momentum          float64
	Support           float64
	Resistance        float64
	SectorContext     string // JSON-encoded SectorStat, empty when not computed
	InputWindow       string // JSON-encoded candle window used for the signals
}
