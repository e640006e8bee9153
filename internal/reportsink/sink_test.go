package reportsink

import (
	"os"
	"path/filepath"
	"testing"

	"etoro-advisor-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEmitWritesReportFile(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(filepath.Join(dir, "reports"), zap.NewNop())

	report := &models.Report{
		RunID:   "run-123",
		RunType: models.RunTypeMarketOpen,
		Summary: "Crypto leads",
		Body:    "# Advisory Report\n\nbody text\n",
	}
	recommendations := []models.Recommendation{
		{Symbol: "BTC", Action: models.ActionBuy, Conviction: models.ConvictionHigh, Rank: 1},
	}

	err := sink.Emit(report, recommendations)
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "reports"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "market_open_")
	assert.Contains(t, entries[0].Name(), ".md")

	content, err := os.ReadFile(filepath.Join(dir, "reports", entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, report.Body, string(content))
}

func TestEmitFailsWhenDirectoryIsAFile(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "reports")
	require.NoError(t, os.WriteFile(blocked, []byte("not a directory"), 0o644))

	sink := NewFileSink(blocked, zap.NewNop())

	err := sink.Emit(&models.Report{RunType: models.RunTypeMarketClose}, nil)
	assert.Error(t, err)
}
