package commentary

import (
	"context"
	"errors"

	"etoro-advisor-go/internal/analysis"
	"etoro-advisor-go/internal/models"
)

// Failure kinds the pipeline distinguishes: an unreachable or erroring
// API versus a response that arrived but does not match the contract.
// Both degrade the run rather than failing it.
var (
	ErrUnavailable = errors.New("commentary: generator unavailable")
	ErrMalformed   = errors.New("commentary: malformed response")
)

// Request carries everything the generator needs to write commentary:
// the portfolio state and the deterministic analysis output.
type Request struct {
	RunType   string
	Snapshot  *models.PortfolioSnapshot
	Positions []models.Position
	Analyses  []models.AnalysisResult
	Sectors   map[string]analysis.SectorStat
}

// Recommendation is one action suggested by the generator. Enum fields are
// validated before anything downstream sees them.
type Recommendation struct {
	Symbol     string `json:"symbol" validate:"required"`
	Action     string `json:"action" validate:"required,oneof=buy sell hold reduce increase"`
	Conviction string `json:"conviction" validate:"required,oneof=high medium low"`
	Reasoning  string `json:"reasoning" validate:"required"`
}

// PositionComment is free-text commentary on one held position.
type PositionComment struct {
	Symbol     string `json:"symbol" validate:"required"`
	Commentary string `json:"commentary" validate:"required"`
}

// Result is the structured commentary payload.
type Result struct {
	Summary            string            `json:"summary" validate:"required"`
	MarketContext      string            `json:"market_context"`
	PositionCommentary []PositionComment `json:"position_commentary" validate:"dive"`
	Recommendations    []Recommendation  `json:"recommendations" validate:"dive"`
}

// Generator turns analysis output into prose commentary and ranked
// recommendations.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Result, error)
}
