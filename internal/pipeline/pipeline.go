package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"etoro-advisor-go/internal/analysis"
	"etoro-advisor-go/internal/commentary"
	"etoro-advisor-go/internal/config"
	"etoro-advisor-go/internal/etoro"
	"etoro-advisor-go/internal/models"
	"etoro-advisor-go/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pipeline stages, used in run log failure records and log output.
const (
	StageInit              = "init"
	StageAcquireMarketData = "acquire_market_data"
	StageAcquirePortfolio  = "acquire_portfolio"
	StageAnalyse           = "analyse"
	StageGenerateReport    = "generate_report"
	StagePersist           = "persist"
)

// Error kinds recorded per instrument in the run log.
const (
	errKindNotFound    = "not_found"
	errKindRateLimited = "rate_limited"
	errKindTransport   = "transport"
	errKindAnalysis    = "analysis"
	errKindPersistence = "persistence"
)

// Sink receives the finished report for rendering outside the pipeline.
type Sink interface {
	Emit(report *models.Report, recommendations []models.Recommendation) error
}

// Summary is what one pipeline run reports back to the caller.
type Summary struct {
	RunID               string
	RunType             string
	Status              string
	FailureStage        string
	FailureReason       string
	InstrumentsAnalysed int
	InstrumentsSkipped  int
	RecommendationsMade int
	Degraded            bool
	Errors              []models.RunError
	Duration            time.Duration
}

// Pipeline is the run orchestrator: a linear state machine with
// per-instrument failure isolation. One Run call is one scheduled
// execution; the pipeline holds no state between runs.
type Pipeline struct {
	logger    *zap.Logger
	cfg       *config.Config
	client    etoro.RestClientInterface
	store     *store.Store
	engine    *analysis.Engine
	generator commentary.Generator
	sink      Sink
}

// NewPipeline wires the orchestrator to its collaborators.
func NewPipeline(
	logger *zap.Logger,
	cfg *config.Config,
	client etoro.RestClientInterface,
	st *store.Store,
	engine *analysis.Engine,
	generator commentary.Generator,
	sink Sink,
) *Pipeline {
	return &Pipeline{
		logger:    logger,
		cfg:       cfg,
		client:    client,
		store:     st,
		engine:    engine,
		generator: generator,
		sink:      sink,
	}
}

// fatalError aborts the run and records which stage gave up.
type fatalError struct {
	stage string
	err   error
}

func (e *fatalError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.stage, e.err)
}

func (e *fatalError) Unwrap() error {
	return e.err
}

// acquiredInstrument is the per-instrument output of the acquisition stage.
type acquiredInstrument struct {
	instrument models.Instrument
	bars       []analysis.Bar
	lastPrice  float64
}

// runState is the mutable in-flight state of a single run. It is owned by
// the Run call chain and never shared; concurrent stages hand their
// results back through channels and the state is folded at join points.
type runState struct {
	runLog    *models.RunLog
	errors    []models.RunError
	skipped   int
	acquired  map[int64]*acquiredInstrument
	snapshot  *models.PortfolioSnapshot
	positions []models.Position
	analyses  []models.AnalysisResult
	sectors   map[string]analysis.SectorStat
	catalog   map[int64]etoro.Instrument
	degraded  bool
}

// Run executes one end-to-end pipeline run. The returned Summary is
// populated whenever a run log was created; the error is non-nil exactly
// when the run ends in a failed status.
func (p *Pipeline) Run(ctx context.Context, runType string) (*Summary, error) {
	if !models.ValidRunType(runType) {
		return nil, fmt.Errorf("invalid run type %q, must be %q or %q",
			runType, models.RunTypeMarketOpen, models.RunTypeMarketClose)
	}

	runID := uuid.NewString()
	started := time.Now().UTC()
	runLog := &models.RunLog{
		RunID:     runID,
		RunType:   runType,
		Status:    models.RunStatusStarted,
		StartedAt: started,
	}
	if err := p.store.CreateRunLog(runLog); err != nil {
		// Defensive: no audit record could be written at all, so nothing
		// downstream can be attributed to a run. Abort before any call.
		return nil, &fatalError{stage: StageInit, err: err}
	}

	p.logger.Info("Pipeline started",
		zap.String("run_id", runID),
		zap.String("run_type", runType),
	)

	rs := &runState{
		runLog:   runLog,
		acquired: make(map[int64]*acquiredInstrument),
	}

	// Terminal-status guard: whatever path leaves Run, the run log ends in
	// exactly one terminal state, including on a panic inside a stage.
	defer func() {
		if r := recover(); r != nil {
			p.finalise(rs, started, models.RunStatusFailed, "panic", fmt.Sprintf("%v", r))
			panic(r)
		}
		if rs.runLog.Status == models.RunStatusStarted {
			p.finalise(rs, started, models.RunStatusFailed, "unknown", "run log left in started state")
		}
	}()

	if err := p.execute(ctx, rs); err != nil {
		var fatal *fatalError
		stage, reason := "unknown", err.Error()
		if errors.As(err, &fatal) {
			stage, reason = fatal.stage, fatal.err.Error()
		}
		p.finalise(rs, started, models.RunStatusFailed, stage, reason)
		return p.summary(rs, started), err
	}

	p.finalise(rs, started, models.RunStatusCompleted, "", "")
	return p.summary(rs, started), nil
}

// execute drives stages 2-6. Stage 1 (init) has already happened when it
// is called; terminal status handling belongs to Run.
func (p *Pipeline) execute(ctx context.Context, rs *runState) error {
	if err := p.acquireMarketData(ctx, rs); err != nil {
		return err
	}
	if err := p.acquirePortfolio(rs); err != nil {
		return err
	}
	p.acquirePositionInstruments(rs)
	p.analyse(rs)
	report, recommendations := p.generateReport(ctx, rs)
	return p.persistAndEmit(rs, report, recommendations)
}

// instrumentResult travels from an acquisition goroutine to the join point.
type instrumentResult struct {
	acquired *acquiredInstrument
	candles  []models.Candle
	runErr   *models.RunError
}

// acquireMarketData resolves the instrument catalog once, then fans out
// per tracked symbol: candles and the current rate are fetched
// concurrently, results are collected and folded at a single join point,
// and all database writes happen after the join. A single instrument
// failing never touches the others; all of them failing is fatal.
func (p *Pipeline) acquireMarketData(ctx context.Context, rs *runState) error {
	catalog, err := p.client.GetInstruments()
	if err != nil {
		return &fatalError{stage: StageAcquireMarketData, err: fmt.Errorf("instrument catalog: %w", err)}
	}

	bySymbol := make(map[string]etoro.Instrument, len(catalog))
	rs.catalog = make(map[int64]etoro.Instrument, len(catalog))
	for _, item := range catalog {
		bySymbol[strings.ToUpper(item.Symbol)] = item
		rs.catalog[item.InstrumentID] = item
	}

	tracked := p.cfg.Advisor.TrackedSymbols
	results := make(chan instrumentResult, len(tracked))
	var wg sync.WaitGroup

	for _, symbol := range tracked {
		item, ok := bySymbol[strings.ToUpper(symbol)]
		if !ok {
			rs.errors = append(rs.errors, models.RunError{
				Symbol:  symbol,
				Stage:   StageAcquireMarketData,
				Kind:    errKindNotFound,
				Message: fmt.Sprintf("symbol %s not in instrument catalog", symbol),
			})
			continue
		}

		wg.Add(1)
		go func(item etoro.Instrument) {
			defer wg.Done()
			results <- p.fetchInstrument(item)
		}(item)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// Join point: fold results, then write to the store sequentially so
	// nothing mutates shared state from concurrent contexts.
	var pending []instrumentResult
	for result := range results {
		pending = append(pending, result)
	}
	p.foldAcquisitions(rs, pending)

	if len(rs.acquired) == 0 && len(tracked) > 0 {
		return &fatalError{
			stage: StageAcquireMarketData,
			err:   fmt.Errorf("acquisition failed for all %d tracked instruments", len(tracked)),
		}
	}

	p.logger.Info("Market data acquired",
		zap.String("run_id", rs.runLog.RunID),
		zap.Int("instruments", len(rs.acquired)),
		zap.Int("errors", len(rs.errors)),
	)
	return nil
}

// fetchInstrument fetches candles and the current rate for one instrument.
// It performs no database writes; those happen after the join.
func (p *Pipeline) fetchInstrument(item etoro.Instrument) instrumentResult {
	candles, err := p.client.GetCandles(item.InstrumentID, p.cfg.Advisor.CandleInterval, p.cfg.Advisor.CandleCount)
	if err != nil {
		return instrumentResult{runErr: &models.RunError{
			InstrumentEtoroID: item.InstrumentID,
			Symbol:            item.Symbol,
			Stage:             StageAcquireMarketData,
			Kind:              classifyFetchError(err),
			Message:           err.Error(),
		}}
	}

	var lastPrice float64
	rates, err := p.client.GetRates([]int64{item.InstrumentID})
	if err != nil {
		// A missing spot rate does not invalidate the candle series; the
		// most recent close stands in.
		p.logger.Warn("Rate fetch failed, falling back to last close",
			zap.String("symbol", item.Symbol), zap.Error(err))
	} else if len(rates) > 0 {
		lastPrice = rates[0].LastExecution
	}
	if lastPrice == 0 && len(candles) > 0 {
		lastPrice = candles[len(candles)-1].Close
	}

	bars := make([]analysis.Bar, len(candles))
	rows := make([]models.Candle, len(candles))
	for i, candle := range candles {
		bars[i] = analysis.Bar{
			Timestamp: candle.Timestamp,
			Open:      candle.Open,
			High:      candle.High,
			Low:       candle.Low,
			Close:     candle.Close,
			Volume:    candle.Volume,
		}
		rows[i] = models.Candle{
			InstrumentEtoroID: item.InstrumentID,
			Timeframe:         p.cfg.Advisor.Timeframe,
			Timestamp:         candle.Timestamp,
			Open:              candle.Open,
			High:              candle.High,
			Low:               candle.Low,
			Close:             candle.Close,
			Volume:            candle.Volume,
		}
	}

	return instrumentResult{
		acquired: &acquiredInstrument{
			instrument: models.Instrument{
				EtoroID:    item.InstrumentID,
				Symbol:     item.Symbol,
				Name:       item.Name,
				AssetClass: models.AssetClassForTypeID(item.InstrumentTypeID),
				ExchangeID: item.ExchangeID,
				IsActive:   true,
			},
			bars:      bars,
			lastPrice: lastPrice,
		},
		candles: rows,
	}
}

// foldAcquisitions merges fetch results into the run state and persists
// instrument and candle rows. A persistence failure demotes that one
// instrument to an error entry; the rest continue.
func (p *Pipeline) foldAcquisitions(rs *runState, results []instrumentResult) {
	for _, result := range results {
		if result.runErr != nil {
			rs.errors = append(rs.errors, *result.runErr)
			p.logger.Warn("Instrument acquisition failed",
				zap.String("symbol", result.runErr.Symbol),
				zap.String("kind", result.runErr.Kind),
			)
			continue
		}

		instrument := result.acquired.instrument
		if err := p.store.UpsertInstrument(&instrument); err != nil {
			rs.errors = append(rs.errors, models.RunError{
				InstrumentEtoroID: instrument.EtoroID,
				Symbol:            instrument.Symbol,
				Stage:             StageAcquireMarketData,
				Kind:              errKindPersistence,
				Message:           err.Error(),
			})
			continue
		}
		inserted, err := p.store.InsertCandles(result.candles)
		if err != nil {
			rs.errors = append(rs.errors, models.RunError{
				InstrumentEtoroID: instrument.EtoroID,
				Symbol:            instrument.Symbol,
				Stage:             StageAcquireMarketData,
				Kind:              errKindPersistence,
				Message:           err.Error(),
			})
			continue
		}

		result.acquired.instrument = instrument
		rs.acquired[instrument.EtoroID] = result.acquired
		p.logger.Debug("Instrument acquired",
			zap.String("symbol", instrument.Symbol),
			zap.Int("candles_fetched", len(result.candles)),
			zap.Int("candles_inserted", inserted),
		)
	}
}

// classifyFetchError maps client errors onto run log error kinds.
func classifyFetchError(err error) string {
	switch {
	case errors.Is(err, etoro.ErrNotFound):
		return errKindNotFound
	case errors.Is(err, etoro.ErrRateLimited):
		return errKindRateLimited
	default:
		return errKindTransport
	}
}

// acquirePortfolio fetches the portfolio once and persists the snapshot.
// Without position context there is nothing worth advising on, so any
// failure here is fatal (the run log still ends up failed, not dangling).
func (p *Pipeline) acquirePortfolio(rs *runState) error {
	portfolio, err := p.client.GetPortfolio()
	if err != nil {
		return &fatalError{stage: StageAcquirePortfolio, err: err}
	}

	client := portfolio.ClientPortfolio
	positions := make([]models.Position, 0, len(client.Positions))
	for _, pos := range client.Positions {
		symbol := ""
		if item, ok := rs.catalog[pos.InstrumentID]; ok {
			symbol = item.Symbol
		}
		positions = append(positions, models.Position{
			InstrumentEtoroID: pos.InstrumentID,
			Symbol:            symbol,
			Units:             pos.Units,
			OpenRate:          pos.OpenRate,
			CurrentRate:       pos.UnrealizedPnL.CloseRate,
			PnL:               pos.UnrealizedPnL.PnL,
		})
	}

	snapshot := &models.PortfolioSnapshot{
		RunID:         rs.runLog.RunID,
		RunType:       rs.runLog.RunType,
		TotalValue:    client.Credit + client.UnrealizedPnL,
		CashAvailable: client.Credit,
		TotalPnL:      client.UnrealizedPnL,
	}
	if err := snapshot.SetPositions(positions); err != nil {
		return &fatalError{stage: StageAcquirePortfolio, err: err}
	}
	if err := p.store.CreateSnapshot(snapshot); err != nil {
		return &fatalError{stage: StageAcquirePortfolio, err: err}
	}

	rs.snapshot = snapshot
	rs.positions = positions
	p.logger.Info("Portfolio snapshot created",
		zap.String("run_id", rs.runLog.RunID),
		zap.Int("positions", len(positions)),
		zap.Float64("total_value", snapshot.TotalValue),
	)
	return nil
}

// acquirePositionInstruments extends the tracked universe with held
// positions that the configured symbol list did not cover. Failures here
// are per-instrument, same as the main acquisition pass.
func (p *Pipeline) acquirePositionInstruments(rs *runState) {
	if !p.cfg.Advisor.IncludePositions {
		return
	}

	var pending []instrumentResult
	for _, pos := range rs.positions {
		if _, ok := rs.acquired[pos.InstrumentEtoroID]; ok {
			continue
		}
		item, ok := rs.catalog[pos.InstrumentEtoroID]
		if !ok {
			p.logger.Warn("Held instrument not in catalog",
				zap.Int64("instrument_id", pos.InstrumentEtoroID))
			continue
		}
		pending = append(pending, p.fetchInstrument(item))
	}
	p.foldAcquisitions(rs, pending)
}

// analyse runs the engine over every instrument that survived acquisition,
// in symbol order for reproducibility. A short or degenerate series counts
// as a skip; everything else becomes a per-instrument error. Sector context is
// computed once after the per-instrument pass and attached before results
// are persisted.
func (p *Pipeline) analyse(rs *runState) {
	ids := make([]int64, 0, len(rs.acquired))
	for id := range rs.acquired {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return rs.acquired[ids[i]].instrument.Symbol < rs.acquired[ids[j]].instrument.Symbol
	})

	results := make(map[int64]*models.AnalysisResult, len(ids))
	instruments := make([]models.Instrument, 0, len(ids))
	for _, id := range ids {
		entry := rs.acquired[id]
		instruments = append(instruments, entry.instrument)

		result, err := p.engine.AnalyseInstrument(entry.instrument, entry.bars)
		if err != nil {
			if errors.Is(err, analysis.ErrInsufficientData) || errors.Is(err, analysis.ErrDegenerateSeries) {
				rs.skipped++
				p.logger.Info("Instrument skipped, series unusable",
					zap.String("symbol", entry.instrument.Symbol),
					zap.String("reason", err.Error()))
				continue
			}
			rs.errors = append(rs.errors, models.RunError{
				InstrumentEtoroID: id,
				Symbol:            entry.instrument.Symbol,
				Stage:             StageAnalyse,
				Kind:              errKindAnalysis,
				Message:           err.Error(),
			})
			continue
		}
		result.RunID = rs.runLog.RunID
		result.LastPrice = entry.lastPrice
		results[id] = result
	}

	rs.sectors = p.engine.AnalyseSector(instruments, results)

	for _, id := range ids {
		result, ok := results[id]
		if !ok {
			continue
		}
		if stat, ok := rs.sectors[rs.acquired[id].instrument.AssetClass]; ok {
			result.SectorContext = marshalSectorStat(stat)
		}
		if err := p.store.CreateAnalysis(result); err != nil {
			rs.errors = append(rs.errors, models.RunError{
				InstrumentEtoroID: id,
				Symbol:            result.Symbol,
				Stage:             StageAnalyse,
				Kind:              errKindPersistence,
				Message:           err.Error(),
			})
			continue
		}
		rs.analyses = append(rs.analyses, *result)
	}

	p.logger.Info("Analysis complete",
		zap.String("run_id", rs.runLog.RunID),
		zap.Int("analysed", len(rs.analyses)),
		zap.Int("skipped", rs.skipped),
	)
}

// generateReport invokes the commentary collaborator and assembles the
// final report. Commentary failure degrades the run to deterministic
// fallback content instead of aborting it.
func (p *Pipeline) generateReport(ctx context.Context, rs *runState) (*models.Report, []models.Recommendation) {
	request := &commentary.Request{
		RunType:   rs.runLog.RunType,
		Snapshot:  rs.snapshot,
		Positions: rs.positions,
		Analyses:  rs.analyses,
		Sectors:   rs.sectors,
	}

	result, err := p.generator.Generate(ctx, request)
	if err != nil {
		rs.degraded = true
		p.logger.Warn("Commentary unavailable, producing degraded report",
			zap.String("run_id", rs.runLog.RunID),
			zap.Error(err),
		)
		result = nil
	}

	return assembleReport(rs, result, p.cfg.Advisor.StrongTrend)
}

// persistAndEmit writes the report and its recommendations and finalises
// the run. A persistence failure here flips the run to failed; the run
// log update is handled by the caller's guard.
func (p *Pipeline) persistAndEmit(rs *runState, report *models.Report, recommendations []models.Recommendation) error {
	if err := p.store.CreateReport(report); err != nil {
		return &fatalError{stage: StagePersist, err: err}
	}
	if err := p.store.CreateRecommendations(recommendations); err != nil {
		return &fatalError{stage: StagePersist, err: err}
	}
	rs.runLog.RecommendationsMade = len(recommendations)

	if p.sink != nil {
		if err := p.sink.Emit(report, recommendations); err != nil {
			// The report is already persisted; a sink failure only costs
			// the rendered copy.
			p.logger.Error("Report sink failed", zap.Error(err))
		}
	}

	p.logger.Info("Report persisted",
		zap.String("run_id", rs.runLog.RunID),
		zap.Int("recommendations", len(recommendations)),
		zap.Bool("degraded", report.Degraded),
	)
	return nil
}

// finalise drives the run log to its terminal state. Best-effort: if even
// this write fails the error is logged and surfaced via the process logs,
// never swallowed silently.
func (p *Pipeline) finalise(rs *runState, started time.Time, status, failureStage, failureReason string) {
	now := time.Now().UTC()
	runLog := rs.runLog
	runLog.Status = status
	runLog.FailureStage = failureStage
	runLog.FailureReason = failureReason
	runLog.InstrumentsAnalysed = len(rs.analyses)
	runLog.InstrumentsSkipped = rs.skipped
	runLog.Degraded = rs.degraded
	runLog.DurationMs = now.Sub(started).Milliseconds()
	runLog.CompletedAt = &now
	if err := runLog.SetErrors(rs.errors); err != nil {
		p.logger.Error("Failed to serialize run errors", zap.Error(err))
	}

	if err := p.store.SaveRunLog(runLog); err != nil {
		p.logger.Error("Failed to finalise run log",
			zap.String("run_id", runLog.RunID),
			zap.String("status", status),
			zap.Error(err),
		)
	}

	p.logger.Info("Pipeline finished",
		zap.String("run_id", runLog.RunID),
		zap.String("status", status),
		zap.String("failure_stage", failureStage),
		zap.Int("instruments_analysed", runLog.InstrumentsAnalysed),
		zap.Int("instruments_skipped", runLog.InstrumentsSkipped),
		zap.Int("errors", len(rs.errors)),
		zap.Bool("degraded", rs.degraded),
	)
}

// summary snapshots the run state for the caller.
func (p *Pipeline) summary(rs *runState, started time.Time) *Summary {
	return &Summary{
		RunID:               rs.runLog.RunID,
		RunType:             rs.runLog.RunType,
		Status:              rs.runLog.Status,
		FailureStage:        rs.runLog.FailureStage,
		FailureReason:       rs.runLog.FailureReason,
		InstrumentsAnalysed: rs.runLog.InstrumentsAnalysed,
		InstrumentsSkipped:  rs.runLog.InstrumentsSkipped,
		RecommendationsMade: rs.runLog.RecommendationsMade,
		Degraded:            rs.runLog.Degraded,
		Errors:              append([]models.RunError(nil), rs.errors...),
		Duration:            time.Duration(rs.runLog.DurationMs) * time.Millisecond,
	}
}
