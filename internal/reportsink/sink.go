package reportsink

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"etoro-advisor-go/internal/models"
	"go.uber.org/zap"
)

// FileSink writes the finished report to a timestamped markdown file and
// echoes the headline to the terminal. The report is already persisted by
// the time it reaches the sink, so a sink failure costs only the rendered
// copy.
type FileSink struct {
	outputDir string
	logger    *zap.Logger
}

// NewFileSink creates a sink writing into outputDir (created on demand).
func NewFileSink(outputDir string, logger *zap.Logger) *FileSink {
	return &FileSink{outputDir: outputDir, logger: logger}
}

// Emit writes the report body to disk and prints the summary line.
func (s *FileSink) Emit(report *models.Report, recommendations []models.Recommendation) error {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.md", report.RunType, time.Now().UTC().Format("2006-01-02_150405"))
	path := filepath.Join(s.outputDir, name)
	if err := os.WriteFile(path, []byte(report.Body), 0o644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}

	fmt.Println(report.Summary)
	for _, rec := range recommendations {
		fmt.Printf("  %d. %s %s (%s)\n", rec.Rank, rec.Action, rec.Symbol, rec.Conviction)
	}

	s.logger.Info("Report written", zap.String("path", path))
	return nil
}
