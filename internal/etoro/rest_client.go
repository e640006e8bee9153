package etoro

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"etoro-advisor-go/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://public-api.etoro.com/api/v1"

	// Candle count bounds enforced by the history endpoint.
	minCandleCount = 1
	maxCandleCount = 1000
)

// Typed error kinds the pipeline distinguishes. Transport-level failures
// (network errors, 5xx after retries) come back as plain wrapped errors.
var (
	ErrNotFound    = errors.New("etoro: resource not found")
	ErrRateLimited = errors.New("etoro: rate limited")
)

// RestClientInterface defines the interface for the eToro REST API client.
type RestClientInterface interface {
	GetInstruments() ([]Instrument, error)
	GetCandles(instrumentID int64, interval string, count int) ([]Candle, error)
	GetRates(instrumentIDs []int64) ([]Rate, error)
	GetPortfolio() (*PortfolioResponse, error)
}

// RestClient is a client for the eToro public REST API.
// It implements the RestClientInterface. The surface is GET-only: the
// advisor never mutates brokerage state.
type RestClient struct {
	client  *resty.Client
	apiKey  string
	userKey string
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new eToro REST API client.
func NewRestClient(cfg *config.Etoro, logger *zap.Logger) *RestClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := resty.New().SetBaseURL(baseURL)

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:  client,
		apiKey:  cfg.ApiKey,
		userKey: cfg.UserKey,
		logger:  logger,
		limiter: limiter,
	}
}

// newRequest returns a request with the auth headers every endpoint needs.
func (c *RestClient) newRequest() *resty.Request {
	return c.client.R().
		SetHeader("x-api-key", c.apiKey).
		SetHeader("x-user-key", c.userKey).
		SetHeader("Content-Type", "application/json")
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && err == nil {
			statusCode := resp.StatusCode()
			switch {
			case statusCode == http.StatusNotFound:
				return nil, fmt.Errorf("%w: %s %s", ErrNotFound, method, url)
			case statusCode == http.StatusTooManyRequests || statusCode == 418:
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			case statusCode >= 500:
				shouldRetry = true
			}

			if !shouldRetry {
				return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
			}
		} else {
			// Network or other client-side errors
			shouldRetry = true
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if resp != nil && err == nil {
		statusCode := resp.StatusCode()
		if statusCode == http.StatusTooManyRequests || statusCode == 418 {
			return nil, fmt.Errorf("%w: still throttled after %d attempts", ErrRateLimited, maxRetries)
		}
		return nil, fmt.Errorf("request failed after %d attempts with status %s", maxRetries, resp.Status())
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// GetInstruments fetches the full instrument catalog.
// Catalog items missing an ID or symbol are skipped with a warning rather
// than failing the whole call; the catalog regularly contains partial rows.
func (c *RestClient) GetInstruments() ([]Instrument, error) {
	var catalog instrumentCatalogResponse

	req := c.newRequest().SetResult(&catalog)
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/market-data/instruments", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get instruments: %w", err)
	}

	result := resp.Result().(*instrumentCatalogResponse)
	instruments := make([]Instrument, 0, len(result.Items))
	for _, item := range result.Items {
		if item.InstrumentID == 0 || item.Symbol == "" {
			c.logger.Warn("Skipping malformed catalog item",
				zap.Int64("instrument_id", item.InstrumentID),
				zap.String("symbol", item.Symbol))
			continue
		}
		instruments = append(instruments, item)
	}

	return instruments, nil
}

// GetCandles fetches historical OHLCV candles for an instrument, oldest first.
func (c *RestClient) GetCandles(instrumentID int64, interval string, count int) ([]Candle, error) {
	if count < minCandleCount || count > maxCandleCount {
		return nil, fmt.Errorf("count must be between %d and %d, got %d", minCandleCount, maxCandleCount, count)
	}

	var history candleResponse

	req := c.newRequest().SetResult(&history)
	ctx := context.Background()

	url := fmt.Sprintf("/market-data/instruments/%d/history/candles/asc/%s/%d", instrumentID, interval, count)
	resp, err := c.doRequest(ctx, "GET", url, req)
	if err != nil {
		return nil, fmt.Errorf("failed to get candles for instrument %d: %w", instrumentID, err)
	}

	// Flatten the nested per-instrument grouping.
	result := resp.Result().(*candleResponse)
	var candles []Candle
	for _, group := range result.Candles {
		candles = append(candles, group.Candles...)
	}

	return candles, nil
}

// GetRates fetches the current bid/ask rates for the given instruments.
func (c *RestClient) GetRates(instrumentIDs []int64) ([]Rate, error) {
	if len(instrumentIDs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(instrumentIDs))
	for i, id := range instrumentIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}

	var rates ratesResponse

	req := c.newRequest().
		SetResult(&rates).
		SetQueryParam("instrumentIds", strings.Join(ids, ","))
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/market-data/instruments/rates", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get rates: %w", err)
	}

	return resp.Result().(*ratesResponse).Rates, nil
}

// GetPortfolio fetches the current portfolio with per-position P&L.
func (c *RestClient) GetPortfolio() (*PortfolioResponse, error) {
	var portfolio PortfolioResponse

	req := c.newRequest().SetResult(&portfolio)
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/trading/info/real/pnl", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}

	result := resp.Result().(*PortfolioResponse)
	c.logger.Info("Portfolio fetched",
		zap.Int("positions", len(result.ClientPortfolio.Positions)),
		zap.Float64("credit", result.ClientPortfolio.Credit),
		zap.Float64("unrealized_pnl", result.ClientPortfolio.UnrealizedPnL),
	)
	return result, nil
}
