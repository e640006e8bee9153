package analysis

import (
	"encoding/json"
	"fmt"

	"etoro-advisor-go/internal/models"
	"go.uber.org/zap"
)

// Engine turns candle series into per-instrument analysis results and
// cross-instrument sector context. It is a pure transformation: identical
// input produces identical output, all randomness lives in the pipeline.
type Engine struct {
	params Params
	logger *zap.Logger
}

// NewEngine creates an analysis engine with the given signal parameters.
func NewEngine(params Params, logger *zap.Logger) *Engine {
	return &Engine{params: params, logger: logger}
}

// Params returns the signal parameters the engine was built with.
func (e *Engine) Params() Params {
	return e.params
}

// AnalyseInstrument computes all signals for one instrument and packages
// them with a copy of the input window for auditability.
// ErrInsufficientData propagates so the caller can count the instrument
// as skipped rather than failed.
func (e *Engine) AnalyseInstrument(instrument models.Instrument, series []Bar) (*models.AnalysisResult, error) {
	trend, err := Trend(series, e.params)
	if err != nil {
		return nil, fmt.Errorf("trend for %s: %w", instrument.Symbol, err)
	}

	momentum, err := Momentum(series, e.params)
	if err != nil {
		return nil, fmt.Errorf("momentum for %s: %w", instrument.Symbol, err)
	}

	levels, err := SupportResistance(series, e.params)
	if err != nil {
		return nil, fmt.Errorf("key levels for %s: %w", instrument.Symbol, err)
	}

	window, err := json.Marshal(series)
	if err != nil {
		return nil, fmt.Errorf("serialize input window for %s: %w", instrument.Symbol, err)
	}

	e.logger.Debug("Instrument analysed",
		zap.String("symbol", instrument.Symbol),
		zap.String("trend", trend.Direction),
		zap.Float64("strength", trend.Strength),
		zap.Float64("momentum", momentum),
	)

	return &models.AnalysisResult{
		InstrumentEtoroID: instrument.EtoroID,
		Symbol:            instrument.Symbol,
		Trend:             trend.Direction,
		TrendStrength:     trend.Strength,
		Momentum:          momentum,
		Support:           levels.Support,
		Resistance:        levels.Resistance,
		InputWindow:       string(window),
	}, nil
}

// SectorStat is the relative performance of one asset-class group.
type SectorStat struct {
	AssetClass       string  `json:"asset_class"`
	Instruments      int     `json:"instruments"`
	AvgMomentum      float64 `json:"avg_momentum"`
	RelativeMomentum float64 `json:"relative_momentum"` // group average minus overall average
}

// AnalyseSector groups instruments by asset class and compares each
// group's average momentum against the overall average. Instruments with
// no analysis result are excluded from their group entirely, never
// treated as zero momentum.
func (e *Engine) AnalyseSector(instruments []models.Instrument, results map[int64]*models.AnalysisResult) map[string]SectorStat {
	type acc struct {
		sum   float64
		count int
	}
	groups := make(map[string]*acc)
	overall := acc{}

	for _, instrument := range instruments {
		result, ok := results[instrument.EtoroID]
		if !ok || result == nil {
			continue
		}
		class := instrument.AssetClass
		if class == "" {
			class = models.AssetClassOther
		}
		group, ok := groups[class]
		if !ok {
			group = &acc{}
			groups[class] = group
		}
		group.sum += result.Momentum
		group.count++
		overall.sum += result.Momentum
		overall.count++
	}

	if overall.count == 0 {
		return nil
	}
	overallAvg := overall.sum / float64(overall.count)

	stats := make(map[string]SectorStat, len(groups))
	for class, group := range groups {
		avg := group.sum / float64(group.count)
		stats[class] = SectorStat{
			AssetClass:       class,
			Instruments:      group.count,
			AvgMomentum:      avg,
			RelativeMomentum: avg - overallAvg,
		}
	}
	return stats
}
