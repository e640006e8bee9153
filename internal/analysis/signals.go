package analysis

import (
	"errors"
	"fmt"
	"time"
)

// Errors returned by the signal primitives. A short or degenerate series
// is a normal runtime condition the caller counts as a skip; an unordered
// series is a caller bug and is reported as a distinct precondition
// failure.
var (
	ErrInsufficientData = errors.New("analysis: insufficient data")
	ErrDegenerateSeries = errors.New("analysis: degenerate series")
	ErrUnorderedSeries  = errors.New("analysis: series must be ordered oldest to newest without duplicate timestamps")
)

// Bar is one OHLCV input bar. The analysis package has its own input type
// so the primitives stay decoupled from both the API and storage models.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Params holds the tunable lookback windows. Defaults are deliberately
// explicit here and in the config layer; see DefaultParams.
type Params struct {
	ShortWindow      int // short moving average length
	LongWindow       int // long moving average length
	StrengthWindow   int // number of trailing SMA comparisons that vote on direction
	MomentumLookback int // bars between the two closes compared by Momentum
	KeyLevelWindow   int // bars scanned for support/resistance
}

// DefaultParams returns the documented default windows: a 5/20 SMA cross
// voted over the last 10 positions, 10-bar momentum, 20-bar key levels.
func DefaultParams() Params {
	return Params{
		ShortWindow:      5,
		LongWindow:       20,
		StrengthWindow:   10,
		MomentumLookback: 10,
		KeyLevelWindow:   20,
	}
}

// TrendResult is the output of Trend.
type TrendResult struct {
	Direction string  // bullish, bearish or neutral
	Strength  float64 // in [0,1], fraction of votes agreeing with Direction
}

// KeyLevels is the output of SupportResistance. The At timestamps identify
// which bar set each level; when several bars share the extreme value the
// most recent one wins.
type KeyLevels struct {
	Support      float64
	SupportAt    time.Time
	Resistance   float64
	ResistanceAt time.Time
}

// directionThreshold is the vote fraction a side must reach before the
// trend is called in its favour; below it the trend is neutral.
const directionThreshold = 0.6

// checkSeries verifies the series ordering precondition shared by all
// primitives: strictly increasing timestamps, oldest first.
func checkSeries(series []Bar) error {
	for i := 1; i < len(series); i++ {
		if !series[i].Timestamp.After(series[i-1].Timestamp) {
			return fmt.Errorf("%w: bar %d at %s does not follow bar %d at %s",
				ErrUnorderedSeries, i, series[i].Timestamp, i-1, series[i-1].Timestamp)
		}
	}
	return nil
}

// sma returns the simple moving average of the closes ending at index end
// (inclusive) over window bars.
func sma(series []Bar, end, window int) float64 {
	sum := 0.0
	for i := end - window + 1; i <= end; i++ {
		sum += series[i].Close
	}
	return sum / float64(window)
}

// Trend derives the trend direction and strength from a short/long moving
// average comparison. At each of the last StrengthWindow positions the
// short SMA votes against the long SMA; the side holding at least 60% of
// the votes wins, otherwise the trend is neutral. Strength is the winning
// side's vote fraction, so a series where the condition held at every
// position scores exactly 1.0.
func Trend(series []Bar, p Params) (TrendResult, error) {
	minBars := p.LongWindow + p.StrengthWindow
	if len(series) < minBars {
		return TrendResult{}, fmt.Errorf("%w: trend needs %d bars, got %d", ErrInsufficientData, minBars, len(series))
	}
	if err := checkSeries(series); err != nil {
		return TrendResult{}, err
	}

	bullish, bearish := 0, 0
	for i := len(series) - p.StrengthWindow; i < len(series); i++ {
		short := sma(series, i, p.ShortWindow)
		long := sma(series, i, p.LongWindow)
		switch {
		case short > long:
			bullish++
		case short < long:
			bearish++
		}
	}

	total := float64(p.StrengthWindow)
	bullFrac := float64(bullish) / total
	bearFrac := float64(bearish) / total

	switch {
	case bullFrac >= directionThreshold && bullFrac > bearFrac:
		return TrendResult{Direction: "bullish", Strength: bullFrac}, nil
	case bearFrac >= directionThreshold && bearFrac > bullFrac:
		return TrendResult{Direction: "bearish", Strength: bearFrac}, nil
	default:
		// Neutral keeps the stronger side's fraction so a dead-flat series
		// and a barely-undecided one remain distinguishable.
		strength := bullFrac
		if bearFrac > strength {
			strength = bearFrac
		}
		return TrendResult{Direction: "neutral", Strength: strength}, nil
	}
}

// Momentum returns the rate of change between the latest close and the
// close MomentumLookback bars earlier, as a signed percentage.
func Momentum(series []Bar, p Params) (float64, error) {
	minBars := p.MomentumLookback + 1
	if len(series) < minBars {
		return 0, fmt.Errorf("%w: momentum needs %d bars, got %d", ErrInsufficientData, minBars, len(series))
	}
	if err := checkSeries(series); err != nil {
		return 0, err
	}

	last := series[len(series)-1].Close
	base := series[len(series)-1-p.MomentumLookback].Close
	if base == 0 {
		return 0, fmt.Errorf("%w: zero base close %d bars back", ErrDegenerateSeries, p.MomentumLookback)
	}

	return (last - base) / base * 100, nil
}

// SupportResistance returns the lowest low and highest high over the last
// KeyLevelWindow bars. When several bars share the extreme value the most
// recent one wins, which the >=/<= comparisons below encode by scanning
// oldest to newest.
func SupportResistance(series []Bar, p Params) (KeyLevels, error) {
	if len(series) < p.KeyLevelWindow {
		return KeyLevels{}, fmt.Errorf("%w: key levels need %d bars, got %d", ErrInsufficientData, p.KeyLevelWindow, len(series))
	}
	if err := checkSeries(series); err != nil {
		return KeyLevels{}, err
	}

	window := series[len(series)-p.KeyLevelWindow:]
	levels := KeyLevels{
		Support:      window[0].Low,
		SupportAt:    window[0].Timestamp,
		Resistance:   window[0].High,
		ResistanceAt: window[0].Timestamp,
	}
	for _, bar := range window[1:] {
		if bar.Low <= levels.Support {
			levels.Support = bar.Low
			levels.SupportAt = bar.Timestamp
		}
		if bar.High >= levels.Resistance {
			levels.Resistance = bar.High
			levels.ResistanceAt = bar.Timestamp
		}
	}

	return levels, nil
}
