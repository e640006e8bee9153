package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"etoro-advisor-go/internal/analysis"
	"etoro-advisor-go/internal/commentary"
	"etoro-advisor-go/internal/config"
	"etoro-advisor-go/internal/database"
	"etoro-advisor-go/internal/etoro"
	"etoro-advisor-go/internal/models"
	"etoro-advisor-go/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- mocks ---

type mockRestClient struct {
	mock.Mock
}

var _ etoro.RestClientInterface = (*mockRestClient)(nil)

func (m *mockRestClient) GetInstruments() ([]etoro.Instrument, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]etoro.Instrument), args.Error(1)
}

func (m *mockRestClient) GetCandles(instrumentID int64, interval string, count int) ([]etoro.Candle, error) {
	args := m.Called(instrumentID, interval, count)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]etoro.Candle), args.Error(1)
}

func (m *mockRestClient) GetRates(instrumentIDs []int64) ([]etoro.Rate, error) {
	args := m.Called(instrumentIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]etoro.Rate), args.Error(1)
}

func (m *mockRestClient) GetPortfolio() (*etoro.PortfolioResponse, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*etoro.PortfolioResponse), args.Error(1)
}

type mockGenerator struct {
	mock.Mock
}

var _ commentary.Generator = (*mockGenerator)(nil)

func (m *mockGenerator) Generate(ctx context.Context, req *commentary.Request) (*commentary.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*commentary.Result), args.Error(1)
}

// captureSink records what the pipeline emits.
type captureSink struct {
	report          *models.Report
	recommendations []models.Recommendation
	err             error
}

func (s *captureSink) Emit(report *models.Report, recommendations []models.Recommendation) error {
	s.report = report
	s.recommendations = recommendations
	return s.err
}

// --- fixtures ---

func testConfig() *config.Config {
	return &config.Config{
		Advisor: config.Advisor{
			TrackedSymbols:   []string{"BTC", "AAPL"},
			CandleInterval:   etoro.IntervalOneDay,
			CandleCount:      100,
			Timeframe:        "1d",
			IncludePositions: false,
			StrongTrend:      0.7,
		},
	}
}

func testCatalog() []etoro.Instrument {
	return []etoro.Instrument{
		{InstrumentID: 1001, Symbol: "BTC", Name: "Bitcoin", InstrumentTypeID: 10},
		{InstrumentID: 1, Symbol: "AAPL", Name: "Apple", InstrumentTypeID: 5, ExchangeID: 4},
		{InstrumentID: 1002, Symbol: "ETH", Name: "Ethereum", InstrumentTypeID: 10},
	}
}

// apiCandles builds n daily bars with closes rising (or falling) by step.
func apiCandles(instrumentID int64, n int, start, step float64) []etoro.Candle {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]etoro.Candle, n)
	for i := range candles {
		close := start + float64(i)*step
		candles[i] = etoro.Candle{
			InstrumentID: instrumentID,
			Timestamp:    base.AddDate(0, 0, i),
			Open:         close,
			High:         close + 1,
			Low:          close - 1,
			Close:        close,
			Volume:       1000,
		}
	}
	return candles
}

func testPortfolio() *etoro.PortfolioResponse {
	return &etoro.PortfolioResponse{
		ClientPortfolio: etoro.ClientPortfolio{
			Credit:        280.35,
			UnrealizedPnL: 150.75,
			Positions: []etoro.Position{
				{
					PositionID:    2150896073,
					InstrumentID:  1002,
					OpenRate:      2020.77,
					Units:         0.049485,
					Amount:        100,
					IsBuy:         true,
					UnrealizedPnL: etoro.PositionPnL{PnL: 25.5, CloseRate: 2550.0},
				},
			},
		},
	}
}

func newTestPipeline(t *testing.T, cfg *config.Config, client *mockRestClient, generator *mockGenerator, sink Sink) (*Pipeline, *store.Store) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.NewDatabase(dsn)
	require.NoError(t, err)
	st := store.NewStore(db)
	engine := analysis.NewEngine(analysis.DefaultParams(), zap.NewNop())
	return NewPipeline(zap.NewNop(), cfg, client, st, engine, generator, sink), st
}

// --- tests ---

func TestRunCompletes(t *testing.T) {
	client := new(mockRestClient)
	generator := new(mockGenerator)
	sink := &captureSink{}

	client.On("GetInstruments").Return(testCatalog(), nil)
	client.On("GetCandles", int64(1001), etoro.IntervalOneDay, 100).Return(apiCandles(1001, 40, 90000, 500), nil)
	client.On("GetCandles", int64(1), etoro.IntervalOneDay, 100).Return(apiCandles(1, 40, 200, 1), nil)
	client.On("GetRates", []int64{1001}).Return([]etoro.Rate{{InstrumentID: 1001, LastExecution: 110000}}, nil)
	client.On("GetRates", []int64{1}).Return([]etoro.Rate{{InstrumentID: 1, LastExecution: 240}}, nil)
	client.On("GetPortfolio").Return(testPortfolio(), nil)
	generator.On("Generate", mock.Anything, mock.Anything).Return(&commentary.Result{
		Summary:       "Everything is trending up",
		MarketContext: "Broad uptrend.",
		Recommendations: []commentary.Recommendation{
			{Symbol: "BTC", Action: "buy", Conviction: "high", Reasoning: "Strong uptrend."},
			{Symbol: "AAPL", Action: "hold", Conviction: "low", Reasoning: "Mild uptrend."},
		},
	}, nil)

	p, st := newTestPipeline(t, testConfig(), client, generator, sink)

	summary, err := p.Run(context.Background(), models.RunTypeMarketOpen)

	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, summary.Status)
	assert.Equal(t, 2, summary.InstrumentsAnalysed)
	assert.Equal(t, 0, summary.InstrumentsSkipped)
	assert.Equal(t, 2, summary.RecommendationsMade)
	assert.False(t, summary.Degraded)
	assert.Empty(t, summary.Errors)

	// The run log reached its terminal state.
	runLog, err := st.RunLogByRunID(summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, runLog.Status)
	require.NotNil(t, runLog.CompletedAt)

	// The report and its recommendations were persisted and emitted.
	var report models.Report
	require.NoError(t, st.DB().Where("run_id = ?", summary.RunID).First(&report).Error)
	assert.Equal(t, "Everything is trending up", report.Summary)
	assert.False(t, report.Degraded)

	var recs []models.Recommendation
	require.NoError(t, st.DB().Where("report_run_id = ?", summary.RunID).Order("rank").Find(&recs).Error)
	require.Len(t, recs, 2)
	assert.Equal(t, "BTC", recs[0].Symbol)
	assert.Equal(t, models.ActionBuy, recs[0].Action)
	assert.Equal(t, 1, recs[0].Rank)

	require.NotNil(t, sink.report)
	assert.Contains(t, sink.report.Body, "## Signals")
	assert.Contains(t, sink.report.Body, "110000.0000")

	// The fetched rates land on the persisted analysis rows.
	analyses, err := st.AnalysesForRun(summary.RunID)
	require.NoError(t, err)
	prices := map[string]float64{}
	for _, a := range analyses {
		prices[a.Symbol] = a.LastPrice
	}
	assert.Equal(t, 110000.0, prices["BTC"])
	assert.Equal(t, 240.0, prices["AAPL"])

	// Candles landed under the configured timeframe.
	count, err := st.CountCandles(1001, "1d")
	require.NoError(t, err)
	assert.Equal(t, int64(40), count)

	client.AssertExpectations(t)
	generator.AssertExpectations(t)
}

func TestRunIsolatesSingleInstrumentFailure(t *testing.T) {
	client := new(mockRestClient)
	generator := new(mockGenerator)

	client.On("GetInstruments").Return(testCatalog(), nil)
	client.On("GetCandles", int64(1001), etoro.IntervalOneDay, 100).Return(nil, errors.New("connection reset"))
	client.On("GetCandles", int64(1), etoro.IntervalOneDay, 100).Return(apiCandles(1, 40, 200, 1), nil)
	client.On("GetRates", []int64{1}).Return([]etoro.Rate{{InstrumentID: 1, LastExecution: 240}}, nil)
	client.On("GetPortfolio").Return(testPortfolio(), nil)
	generator.On("Generate", mock.Anything, mock.Anything).Return(&commentary.Result{Summary: "Partial run"}, nil)

	p, st := newTestPipeline(t, testConfig(), client, generator, &captureSink{})

	summary, err := p.Run(context.Background(), models.RunTypeMarketOpen)

	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, summary.Status)
	assert.Equal(t, 1, summary.InstrumentsAnalysed)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "BTC", summary.Errors[0].Symbol)
	assert.Equal(t, StageAcquireMarketData, summary.Errors[0].Stage)
	assert.Equal(t, "transport", summary.Errors[0].Kind)

	// The error record survives in the run log.
	runLog, err := st.RunLogByRunID(summary.RunID)
	require.NoError(t, err)
	errs, err := runLog.GetErrors()
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "transport", errs[0].Kind)
}

func TestRunClassifiesRateLimitAndMissingSymbol(t *testing.T) {
	client := new(mockRestClient)
	generator := new(mockGenerator)

	cfg := testConfig()
	cfg.Advisor.TrackedSymbols = []string{"BTC", "AAPL", "NOPE"}

	client.On("GetInstruments").Return(testCatalog(), nil)
	client.On("GetCandles", int64(1001), etoro.IntervalOneDay, 100).Return(nil, etoro.ErrRateLimited)
	client.On("GetCandles", int64(1), etoro.IntervalOneDay, 100).Return(apiCandles(1, 40, 200, 1), nil)
	client.On("GetRates", []int64{1}).Return([]etoro.Rate{{InstrumentID: 1, LastExecution: 240}}, nil)
	client.On("GetPortfolio").Return(testPortfolio(), nil)
	generator.On("Generate", mock.Anything, mock.Anything).Return(&commentary.Result{Summary: "ok"}, nil)

	p, _ := newTestPipeline(t, cfg, client, generator, &captureSink{})

	summary, err := p.Run(context.Background(), models.RunTypeMarketOpen)

	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, summary.Status)
	require.Len(t, summary.Errors, 2)

	kinds := map[string]string{}
	for _, e := range summary.Errors {
		kinds[e.Symbol] = e.Kind
	}
	assert.Equal(t, "not_found", kinds["NOPE"])
	assert.Equal(t, "rate_limited", kinds["BTC"])
}

func TestRunDegradesWhenCommentaryFails(t *testing.T) {
	client := new(mockRestClient)
	generator := new(mockGenerator)

	client.On("GetInstruments").Return(testCatalog(), nil)
	client.On("GetCandles", int64(1001), etoro.IntervalOneDay, 100).Return(apiCandles(1001, 40, 90000, 500), nil)
	client.On("GetCandles", int64(1), etoro.IntervalOneDay, 100).Return(apiCandles(1, 40, 300, -1), nil)
	client.On("GetRates", mock.Anything).Return([]etoro.Rate{}, nil)
	client.On("GetPortfolio").Return(testPortfolio(), nil)
	generator.On("Generate", mock.Anything, mock.Anything).Return(nil, commentary.ErrUnavailable)

	p, st := newTestPipeline(t, testConfig(), client, generator, &captureSink{})

	summary, err := p.Run(context.Background(), models.RunTypeMarketOpen)

	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, summary.Status)
	assert.True(t, summary.Degraded)
	assert.Equal(t, 2, summary.RecommendationsMade)

	var report models.Report
	require.NoError(t, st.DB().Where("run_id = ?", summary.RunID).First(&report).Error)
	assert.True(t, report.Degraded)
	assert.Contains(t, report.Summary, "commentary unavailable")

	// Fallback recommendations are signal-derived: monotonic rise buys,
	// monotonic fall reduces, and each one names the degradation.
	var recs []models.Recommendation
	require.NoError(t, st.DB().Where("report_run_id = ?", summary.RunID).Order("rank").Find(&recs).Error)
	require.Len(t, recs, 2)
	assert.Equal(t, "AAPL", recs[0].Symbol)
	assert.Equal(t, models.ActionReduce, recs[0].Action)
	assert.Equal(t, "BTC", recs[1].Symbol)
	assert.Equal(t, models.ActionBuy, recs[1].Action)
	assert.Equal(t, models.ConvictionHigh, recs[1].Conviction)
	for _, rec := range recs {
		assert.Contains(t, rec.Reasoning, "no commentary available")
	}

	// With no rate available the last close stands in as the price.
	analyses, err := st.AnalysesForRun(summary.RunID)
	require.NoError(t, err)
	for _, a := range analyses {
		if a.Symbol == "BTC" {
			assert.Equal(t, 90000.0+39*500, a.LastPrice)
		}
	}
}

func TestRunFailsWhenPortfolioUnavailable(t *testing.T) {
	client := new(mockRestClient)
	generator := new(mockGenerator)

	client.On("GetInstruments").Return(testCatalog(), nil)
	client.On("GetCandles", mock.Anything, etoro.IntervalOneDay, 100).Return(apiCandles(1, 40, 200, 1), nil)
	client.On("GetRates", mock.Anything).Return([]etoro.Rate{}, nil)
	client.On("GetPortfolio").Return(nil, errors.New("503 service unavailable"))

	p, st := newTestPipeline(t, testConfig(), client, generator, &captureSink{})

	summary, err := p.Run(context.Background(), models.RunTypeMarketClose)

	require.Error(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, models.RunStatusFailed, summary.Status)
	assert.Equal(t, StageAcquirePortfolio, summary.FailureStage)

	// Never left dangling in started.
	runLog, dbErr := st.RunLogByRunID(summary.RunID)
	require.NoError(t, dbErr)
	assert.Equal(t, models.RunStatusFailed, runLog.Status)
	assert.Equal(t, StageAcquirePortfolio, runLog.FailureStage)
	require.NotNil(t, runLog.CompletedAt)

	generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestRunFailsWhenAllAcquisitionFails(t *testing.T) {
	client := new(mockRestClient)
	generator := new(mockGenerator)

	client.On("GetInstruments").Return(testCatalog(), nil)
	client.On("GetCandles", mock.Anything, etoro.IntervalOneDay, 100).Return(nil, errors.New("connection refused"))

	p, st := newTestPipeline(t, testConfig(), client, generator, &captureSink{})

	summary, err := p.Run(context.Background(), models.RunTypeMarketOpen)

	require.Error(t, err)
	assert.Equal(t, models.RunStatusFailed, summary.Status)
	assert.Equal(t, StageAcquireMarketData, summary.FailureStage)
	assert.Len(t, summary.Errors, 2)

	runLog, dbErr := st.RunLogByRunID(summary.RunID)
	require.NoError(t, dbErr)
	assert.Equal(t, models.RunStatusFailed, runLog.Status)

	client.AssertNotCalled(t, "GetPortfolio")
}

func TestRunFailsWhenCatalogUnavailable(t *testing.T) {
	client := new(mockRestClient)
	generator := new(mockGenerator)

	client.On("GetInstruments").Return(nil, errors.New("connection refused"))

	p, _ := newTestPipeline(t, testConfig(), client, generator, &captureSink{})

	summary, err := p.Run(context.Background(), models.RunTypeMarketOpen)

	require.Error(t, err)
	assert.Equal(t, models.RunStatusFailed, summary.Status)
	assert.Equal(t, StageAcquireMarketData, summary.FailureStage)
}

func TestRunFailsWhenReportPersistFails(t *testing.T) {
	client := new(mockRestClient)
	generator := new(mockGenerator)

	client.On("GetInstruments").Return(testCatalog(), nil)
	client.On("GetCandles", int64(1001), etoro.IntervalOneDay, 100).Return(apiCandles(1001, 40, 90000, 500), nil)
	client.On("GetCandles", int64(1), etoro.IntervalOneDay, 100).Return(apiCandles(1, 40, 200, 1), nil)
	client.On("GetRates", mock.Anything).Return([]etoro.Rate{}, nil)
	client.On("GetPortfolio").Return(testPortfolio(), nil)
	generator.On("Generate", mock.Anything, mock.Anything).Return(&commentary.Result{Summary: "ok"}, nil)

	p, st := newTestPipeline(t, testConfig(), client, generator, &captureSink{})

	// Break the report table so the persist stage is the first to fail.
	require.NoError(t, st.DB().Migrator().DropTable(&models.Report{}))

	summary, err := p.Run(context.Background(), models.RunTypeMarketOpen)

	require.Error(t, err)
	assert.Equal(t, models.RunStatusFailed, summary.Status)
	assert.Equal(t, StagePersist, summary.FailureStage)

	// The run log still reached a terminal state, never left in started.
	runLog, dbErr := st.RunLogByRunID(summary.RunID)
	require.NoError(t, dbErr)
	assert.Equal(t, models.RunStatusFailed, runLog.Status)
	assert.Equal(t, StagePersist, runLog.FailureStage)
	require.NotNil(t, runLog.CompletedAt)
}

func TestRunCountsShortSeriesAsSkip(t *testing.T) {
	client := new(mockRestClient)
	generator := new(mockGenerator)

	client.On("GetInstruments").Return(testCatalog(), nil)
	// BTC has too little history for any signal; AAPL is fine.
	client.On("GetCandles", int64(1001), etoro.IntervalOneDay, 100).Return(apiCandles(1001, 5, 90000, 500), nil)
	client.On("GetCandles", int64(1), etoro.IntervalOneDay, 100).Return(apiCandles(1, 40, 200, 1), nil)
	client.On("GetRates", mock.Anything).Return([]etoro.Rate{}, nil)
	client.On("GetPortfolio").Return(testPortfolio(), nil)
	generator.On("Generate", mock.Anything, mock.Anything).Return(&commentary.Result{Summary: "ok"}, nil)

	p, _ := newTestPipeline(t, testConfig(), client, generator, &captureSink{})

	summary, err := p.Run(context.Background(), models.RunTypeMarketOpen)

	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, summary.Status)
	assert.Equal(t, 1, summary.InstrumentsAnalysed)
	assert.Equal(t, 1, summary.InstrumentsSkipped)
	// A skip is not an error.
	assert.Empty(t, summary.Errors)
}

func TestRunCountsDegenerateSeriesAsSkip(t *testing.T) {
	client := new(mockRestClient)
	generator := new(mockGenerator)

	client.On("GetInstruments").Return(testCatalog(), nil)
	// BTC has a full-length series whose closes are all zero; AAPL is fine.
	client.On("GetCandles", int64(1001), etoro.IntervalOneDay, 100).Return(apiCandles(1001, 40, 0, 0), nil)
	client.On("GetCandles", int64(1), etoro.IntervalOneDay, 100).Return(apiCandles(1, 40, 200, 1), nil)
	client.On("GetRates", mock.Anything).Return([]etoro.Rate{}, nil)
	client.On("GetPortfolio").Return(testPortfolio(), nil)
	generator.On("Generate", mock.Anything, mock.Anything).Return(&commentary.Result{Summary: "ok"}, nil)

	p, _ := newTestPipeline(t, testConfig(), client, generator, &captureSink{})

	summary, err := p.Run(context.Background(), models.RunTypeMarketOpen)

	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, summary.Status)
	assert.Equal(t, 1, summary.InstrumentsAnalysed)
	assert.Equal(t, 1, summary.InstrumentsSkipped)
	assert.Empty(t, summary.Errors)
}

func TestRunExtendsUniverseWithHeldPositions(t *testing.T) {
	client := new(mockRestClient)
	generator := new(mockGenerator)

	cfg := testConfig()
	cfg.Advisor.TrackedSymbols = []string{"AAPL"}
	cfg.Advisor.IncludePositions = true

	client.On("GetInstruments").Return(testCatalog(), nil)
	client.On("GetCandles", int64(1), etoro.IntervalOneDay, 100).Return(apiCandles(1, 40, 200, 1), nil)
	// ETH (1002) is held but not tracked; it gets picked up after the
	// portfolio stage.
	client.On("GetCandles", int64(1002), etoro.IntervalOneDay, 100).Return(apiCandles(1002, 40, 2000, 10), nil)
	client.On("GetRates", mock.Anything).Return([]etoro.Rate{}, nil)
	client.On("GetPortfolio").Return(testPortfolio(), nil)
	generator.On("Generate", mock.Anything, mock.Anything).Return(&commentary.Result{Summary: "ok"}, nil)

	p, _ := newTestPipeline(t, cfg, client, generator, &captureSink{})

	summary, err := p.Run(context.Background(), models.RunTypeMarketOpen)

	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, summary.Status)
	assert.Equal(t, 2, summary.InstrumentsAnalysed)
	client.AssertCalled(t, "GetCandles", int64(1002), etoro.IntervalOneDay, 100)
}

func TestRunRejectsInvalidRunType(t *testing.T) {
	client := new(mockRestClient)
	generator := new(mockGenerator)

	p, st := newTestPipeline(t, testConfig(), client, generator, &captureSink{})

	summary, err := p.Run(context.Background(), "midday_checkin")

	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Contains(t, err.Error(), "invalid run type")

	// Nothing was recorded and no API call was made.
	var count int64
	st.DB().Model(&models.RunLog{}).Count(&count)
	assert.Equal(t, int64(0), count)
	client.AssertNotCalled(t, "GetInstruments")
}

func TestRunSinkFailureDoesNotFailRun(t *testing.T) {
	client := new(mockRestClient)
	generator := new(mockGenerator)
	sink := &captureSink{err: errors.New("disk full")}

	client.On("GetInstruments").Return(testCatalog(), nil)
	client.On("GetCandles", int64(1001), etoro.IntervalOneDay, 100).Return(apiCandles(1001, 40, 90000, 500), nil)
	client.On("GetCandles", int64(1), etoro.IntervalOneDay, 100).Return(apiCandles(1, 40, 200, 1), nil)
	client.On("GetRates", mock.Anything).Return([]etoro.Rate{}, nil)
	client.On("GetPortfolio").Return(testPortfolio(), nil)
	generator.On("Generate", mock.Anything, mock.Anything).Return(&commentary.Result{Summary: "ok"}, nil)

	p, st := newTestPipeline(t, testConfig(), client, generator, sink)

	summary, err := p.Run(context.Background(), models.RunTypeMarketOpen)

	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, summary.Status)

	// The report is persisted even though the sink failed.
	var report models.Report
	require.NoError(t, st.DB().Where("run_id = ?", summary.RunID).First(&report).Error)
}

func TestRunEachRunGetsFreshID(t *testing.T) {
	client := new(mockRestClient)
	generator := new(mockGenerator)

	client.On("GetInstruments").Return(testCatalog(), nil)
	client.On("GetCandles", mock.Anything, etoro.IntervalOneDay, 100).Return(apiCandles(1, 40, 200, 1), nil)
	client.On("GetRates", mock.Anything).Return([]etoro.Rate{}, nil)
	client.On("GetPortfolio").Return(testPortfolio(), nil)
	generator.On("Generate", mock.Anything, mock.Anything).Return(&commentary.Result{Summary: "ok"}, nil)

	p, _ := newTestPipeline(t, testConfig(), client, generator, &captureSink{})

	first, err := p.Run(context.Background(), models.RunTypeMarketOpen)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), models.RunTypeMarketOpen)
	require.NoError(t, err)

	// Reports are immutable per run; re-running produces a new run id and a
	// new report, never an overwrite.
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, models.RunStatusCompleted, second.Status)
}
