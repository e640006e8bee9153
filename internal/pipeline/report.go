package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"etoro-advisor-go/internal/analysis"
	"etoro-advisor-go/internal/commentary"
	"etoro-advisor-go/internal/models"
)

const noCommentaryReason = "no commentary available, derived from signals only"

// assembleReport is a pure transformation of the run state and the
// (possibly absent) commentary result into the final report value and its
// ordered recommendation list. When the commentary result is nil the
// report degrades to deterministic fallback content.
func assembleReport(rs *runState, result *commentary.Result, strongTrend float64) (*models.Report, []models.Recommendation) {
	runID := rs.runLog.RunID
	degraded := result == nil

	var recommendations []models.Recommendation
	if result != nil && len(result.Recommendations) > 0 {
		recommendations = mapCommentaryRecommendations(rs, result.Recommendations)
	}
	if len(recommendations) == 0 {
		recommendations = fallbackRecommendations(rs, strongTrend, degraded)
	}

	summary := ""
	commentaryText := ""
	if result != nil {
		summary = result.Summary
		commentaryText = renderCommentaryText(result)
	}
	if summary == "" {
		summary = fmt.Sprintf("%s run: %d instruments analysed, %d recommendations (commentary unavailable)",
			rs.runLog.RunType, len(rs.analyses), len(recommendations))
	}

	report := &models.Report{
		RunID:      runID,
		RunType:    rs.runLog.RunType,
		Commentary: commentaryText,
		Summary:    summary,
		Degraded:   degraded,
	}
	if rs.snapshot != nil {
		report.SnapshotID = rs.snapshot.ID
	}
	report.Body = renderBody(rs, report, recommendations)

	return report, recommendations
}

// mapCommentaryRecommendations converts generator output to stored
// recommendations, dropping symbols the run never acquired so that a
// hallucinated instrument cannot enter the report.
func mapCommentaryRecommendations(rs *runState, recs []commentary.Recommendation) []models.Recommendation {
	bySymbol := make(map[string]int64, len(rs.acquired))
	for id, entry := range rs.acquired {
		bySymbol[strings.ToUpper(entry.instrument.Symbol)] = id
	}

	out := make([]models.Recommendation, 0, len(recs))
	for _, rec := range recs {
		id, ok := bySymbol[strings.ToUpper(rec.Symbol)]
		if !ok {
			continue
		}
		out = append(out, models.Recommendation{
			ReportRunID:       rs.runLog.RunID,
			InstrumentEtoroID: id,
			Symbol:            rec.Symbol,
			Action:            rec.Action,
			Conviction:        rec.Conviction,
			Reasoning:         rec.Reasoning,
			Rank:              len(out) + 1,
		})
	}
	return out
}

// fallbackRecommendations derives actions from the computed signals alone:
// a strong bullish trend suggests buying, a strong bearish trend suggests
// reducing, anything else holds. Deterministic so a degraded run is
// reproducible.
func fallbackRecommendations(rs *runState, strongTrend float64, degraded bool) []models.Recommendation {
	analyses := append([]models.AnalysisResult(nil), rs.analyses...)
	sort.Slice(analyses, func(i, j int) bool { return analyses[i].Symbol < analyses[j].Symbol })

	out := make([]models.Recommendation, 0, len(analyses))
	for _, a := range analyses {
		action := models.ActionHold
		conviction := models.ConvictionLow
		switch {
		case a.Trend == models.TrendBullish && a.TrendStrength >= strongTrend:
			action = models.ActionBuy
			conviction = models.ConvictionMedium
			if a.TrendStrength >= 0.9 {
				conviction = models.ConvictionHigh
			}
		case a.Trend == models.TrendBearish && a.TrendStrength >= strongTrend:
			action = models.ActionReduce
			conviction = models.ConvictionMedium
			if a.TrendStrength >= 0.9 {
				conviction = models.ConvictionHigh
			}
		}

		reasoning := fmt.Sprintf("%s trend (strength %.2f), momentum %+.2f%%",
			a.Trend, a.TrendStrength, a.Momentum)
		if degraded {
			reasoning += "; " + noCommentaryReason
		}

		out = append(out, models.Recommendation{
			ReportRunID:       rs.runLog.RunID,
			InstrumentEtoroID: a.InstrumentEtoroID,
			Symbol:            a.Symbol,
			Action:            action,
			Conviction:        conviction,
			Reasoning:         reasoning,
			Rank:              len(out) + 1,
		})
	}
	return out
}

// renderCommentaryText flattens the structured commentary into the text
// stored on the report.
func renderCommentaryText(result *commentary.Result) string {
	var b strings.Builder
	b.WriteString(result.MarketContext)
	for _, pc := range result.PositionCommentary {
		fmt.Fprintf(&b, "\n\n**%s** — %s", pc.Symbol, pc.Commentary)
	}
	return strings.TrimSpace(b.String())
}

// renderBody produces the markdown document for the report sink.
func renderBody(rs *runState, report *models.Report, recommendations []models.Recommendation) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Advisory Report — %s\n\n", report.RunType)
	fmt.Fprintf(&b, "Run `%s` at %s\n\n", report.RunID, rs.runLog.StartedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "**%s**\n\n", report.Summary)
	if report.Degraded {
		b.WriteString("_Degraded run: commentary was unavailable; recommendations below are signal-derived._\n\n")
	}

	if rs.snapshot != nil {
		b.WriteString("## Portfolio\n\n")
		fmt.Fprintf(&b, "| Total value | Cash | Positions | Total P&L |\n|---:|---:|---:|---:|\n")
		fmt.Fprintf(&b, "| %.2f | %.2f | %d | %+.2f |\n\n",
			rs.snapshot.TotalValue, rs.snapshot.CashAvailable, rs.snapshot.OpenPositions, rs.snapshot.TotalPnL)
	}

	if len(rs.analyses) > 0 {
		b.WriteString("## Signals\n\n")
		b.WriteString("| Symbol | Last price | Trend | Strength | Momentum | Support | Resistance |\n|---|---:|---|---:|---:|---:|---:|\n")
		for _, a := range rs.analyses {
			fmt.Fprintf(&b, "| %s | %.4f | %s | %.2f | %+.2f%% | %.4f | %.4f |\n",
				a.Symbol, a.LastPrice, a.Trend, a.TrendStrength, a.Momentum, a.Support, a.Resistance)
		}
		b.WriteString("\n")
	}

	if len(rs.sectors) > 0 {
		b.WriteString("## Sector rotation\n\n")
		b.WriteString("| Asset class | Instruments | Avg momentum | Relative |\n|---|---:|---:|---:|\n")
		classes := make([]string, 0, len(rs.sectors))
		for class := range rs.sectors {
			classes = append(classes, class)
		}
		sort.Strings(classes)
		for _, class := range classes {
			stat := rs.sectors[class]
			fmt.Fprintf(&b, "| %s | %d | %+.2f%% | %+.2f%% |\n",
				class, stat.Instruments, stat.AvgMomentum, stat.RelativeMomentum)
		}
		b.WriteString("\n")
	}

	if len(recommendations) > 0 {
		b.WriteString("## Recommendations\n\n")
		for _, rec := range recommendations {
			fmt.Fprintf(&b, "%d. **%s** — %s (%s conviction): %s\n",
				rec.Rank, rec.Symbol, rec.Action, rec.Conviction, rec.Reasoning)
		}
		b.WriteString("\n")
	}

	if report.Commentary != "" {
		b.WriteString("## Commentary\n\n")
		b.WriteString(report.Commentary)
		b.WriteString("\n")
	}

	return b.String()
}

func marshalSectorStat(stat analysis.SectorStat) string {
	data, err := json.Marshal(stat)
	if err != nil {
		return ""
	}
	return string(data)
}
