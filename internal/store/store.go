package store

import (
	"errors"
	"fmt"

	"etoro-advisor-go/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicateReport is returned when a report already exists for a run id.
// The caller gets an error instead of a silent overwrite.
var ErrDuplicateReport = errors.New("store: report already exists for run id")

// Store is the persistence collaborator for the run pipeline. All methods
// are keyed so that re-running a stage with identical input is idempotent
// where the data model requires it (candles) and an explicit error where
// it forbids it (reports).
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open gorm handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for verification tooling and tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// UpsertInstrument creates the instrument or refreshes its classification
// fields. Identity (EtoroID, Symbol) is never changed on update.
func (s *Store) UpsertInstrument(instrument *models.Instrument) error {
	var existing models.Instrument
	err := s.db.Where("etoro_id = ?", instrument.EtoroID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := s.db.Create(instrument).Error; err != nil {
			return fmt.Errorf("failed to create instrument %s: %w", instrument.Symbol, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up instrument %d: %w", instrument.EtoroID, err)
	}

	updates := map[string]interface{}{
		"name":        instrument.Name,
		"asset_class": instrument.AssetClass,
		"exchange_id": instrument.ExchangeID,
		"sector":      instrument.Sector,
		"is_active":   instrument.IsActive,
	}
	if err := s.db.Model(&existing).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update instrument %s: %w", instrument.Symbol, err)
	}
	instrument.ID = existing.ID
	return nil
}

// InsertCandles bulk-inserts candles, silently skipping rows that collide
// with the (instrument, timeframe, timestamp) unique index. Returns the
// number of rows actually inserted.
func (s *Store) InsertCandles(candles []models.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	result := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&candles)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to insert candles: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

// CandlesFor returns all stored candles for an instrument and timeframe,
// oldest first.
func (s *Store) CandlesFor(instrumentEtoroID int64, timeframe string) ([]models.Candle, error) {
	var candles []models.Candle
	err := s.db.
		Where("instrument_etoro_id = ? AND timeframe = ?", instrumentEtoroID, timeframe).
		Order("timestamp ASC").
		Find(&candles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query candles for instrument %d: %w", instrumentEtoroID, err)
	}
	return candles, nil
}

// CountCandles returns the number of stored candles for an instrument and
// timeframe.
func (s *Store) CountCandles(instrumentEtoroID int64, timeframe string) (int64, error) {
	var count int64
	err := s.db.Model(&models.Candle{}).
		Where("instrument_etoro_id = ? AND timeframe = ?", instrumentEtoroID, timeframe).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count candles for instrument %d: %w", instrumentEtoroID, err)
	}
	return count, nil
}

// CreateSnapshot persists the run's portfolio snapshot.
func (s *Store) CreateSnapshot(snapshot *models.PortfolioSnapshot) error {
	if err := s.db.Create(snapshot).Error; err != nil {
		return fmt.Errorf("failed to create portfolio snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent portfolio snapshot, or nil when
// none exists yet.
func (s *Store) LatestSnapshot() (*models.PortfolioSnapshot, error) {
	var snapshot models.PortfolioSnapshot
	err := s.db.Order("created_at DESC").First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}
	return &snapshot, nil
}

// CreateAnalysis persists one per-instrument analysis result.
func (s *Store) CreateAnalysis(result *models.AnalysisResult) error {
	if err := s.db.Create(result).Error; err != nil {
		return fmt.Errorf("failed to create analysis for %s: %w", result.Symbol, err)
	}
	return nil
}

// AnalysesForRun returns all analysis results of one run.
func (s *Store) AnalysesForRun(runID string) ([]models.AnalysisResult, error) {
	var results []models.AnalysisResult
	if err := s.db.Where("run_id = ?", runID).Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to query analyses for run %s: %w", runID, err)
	}
	return results, nil
}

// CreateReport persists the run's report. At most one report may exist per
// run id; a second attempt fails with ErrDuplicateReport.
func (s *Store) CreateReport(report *models.Report) error {
	var count int64
	if err := s.db.Model(&models.Report{}).Where("run_id = ?", report.RunID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check for existing report: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateReport, report.RunID)
	}
	if err := s.db.Create(report).Error; err != nil {
		return fmt.Errorf("failed to create report for run %s: %w", report.RunID, err)
	}
	return nil
}

// CreateRecommendations persists the report's recommendation list.
func (s *Store) CreateRecommendations(recommendations []models.Recommendation) error {
	if len(recommendations) == 0 {
		return nil
	}
	if err := s.db.Create(&recommendations).Error; err != nil {
		return fmt.Errorf("failed to create recommendations: %w", err)
	}
	return nil
}

// CreateRunLog persists a fresh run log in its started state.
func (s *Store) CreateRunLog(runLog *models.RunLog) error {
	if err := s.db.Create(runLog).Error; err != nil {
		return fmt.Errorf("failed to create run log for run %s: %w", runLog.RunID, err)
	}
	return nil
}

// SaveRunLog writes the current state of an in-flight or finalised run log.
func (s *Store) SaveRunLog(runLog *models.RunLog) error {
	if err := s.db.Save(runLog).Error; err != nil {
		return fmt.Errorf("failed to save run log for run %s: %w", runLog.RunID, err)
	}
	return nil
}

// RunLogByRunID returns the run log for a run id, or nil when absent.
func (s *Store) RunLogByRunID(runID string) (*models.RunLog, error) {
	var runLog models.RunLog
	err := s.db.Where("run_id = ?", runID).First(&runLog).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run log for run %s: %w", runID, err)
	}
	return &runLog, nil
}
