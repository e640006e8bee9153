package models

import (
	"encoding/json"

	"gorm.io/gorm"
)

// Position is one open position inside a portfolio snapshot. Positions are
// serialized as JSON into the snapshot row rather than stored relationally,
// because they are an immutable point-in-time capture, never queried alone.
type Position struct {
	InstrumentEtoroID int64   `json:"instrument_etoro_id"`
	Symbol            string  `json:"symbol"`
	Units             float64 `json:"units"`
	OpenRate          float64 `json:"open_rate"`
	CurrentRate       float64 `json:"current_rate"`
	PnL               float64 `json:"pnl"`
}

// PortfolioSnapshot is the point-in-time portfolio valuation for one run.
type PortfolioSnapshot struct {
	gorm.Model
	RunID         string `gorm:"uniqueIndex"`
	RunType       string
	TotalValue    float64
	CashAvailable float64
	OpenPositions int
	TotalPnL      float64
	Positions     string // JSON-encoded []Position
}

// SetPositions serializes positions into the snapshot.
func (s *PortfolioSnapshot) SetPositions(positions []Position) error {
	data, err := json.Marshal(positions)
	if err != nil {
		return err
	}
	s.Positions = string(data)
	s.OpenPositions = len(positions)
	return nil
}

// GetPositions deserializes the stored position list.
func (s *PortfolioSnapshot) GetPositions() ([]Position, error) {
	if s.Positions == "" {
		return nil, nil
	}
	var positions []Position
	if err := json.Unmarshal([]byte(s.Positions), &positions); err != nil {
		return nil, err
	}
	return positions, nil
}
