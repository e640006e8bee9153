package models

import (
	"time"

	"gorm.io/gorm"
)

// Candle is one OHLCV bar for an instrument at a timeframe.
// The compound unique index makes re-ingestion of the same bar a no-op.
type Candle struct {
	gorm.Model
	InstrumentEtoroID int64     `gorm:"uniqueIndex:idx_candle_lookup"`
	Timeframe         string    `gorm:"uniqueIndex:idx_candle_lookup"`
	Timestamp         time.Time `gorm:"uniqueIndex:idx_candle_lookup"`
	Open              float64
	High              float64
	Low               float64
	Close             float64
	Volume            float64
}
