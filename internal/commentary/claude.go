package commentary

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"etoro-advisor-go/internal/config"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const systemPrompt = `You are a portfolio analyst writing a daily advisory briefing.
You receive a portfolio snapshot and deterministic technical signals per instrument.
Respond with a single JSON object and nothing else, matching exactly:
{
  "summary": "one-line headline for the briefing",
  "market_context": "short paragraph on the overall picture",
  "position_commentary": [{"symbol": "...", "commentary": "..."}],
  "recommendations": [{"symbol": "...", "action": "buy|sell|hold|reduce|increase", "conviction": "high|medium|low", "reasoning": "..."}]
}
Order recommendations from most to least important. You advise only; no orders are placed.`

// ClaudeGenerator implements Generator using the Anthropic Messages API.
type ClaudeGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	temp      float64
	timeout   time.Duration
	logger    *zap.Logger
	validate  *validator.Validate
}

// ensure ClaudeGenerator implements the interface
var _ Generator = (*ClaudeGenerator)(nil)

// NewClaudeGenerator creates a Claude-backed commentary generator.
func NewClaudeGenerator(cfg *config.LLM, logger *zap.Logger) *ClaudeGenerator {
	return &ClaudeGenerator{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.ApiKey)),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
		temp:      cfg.Temperature,
		timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		logger:    logger,
		validate:  validator.New(),
	}
}

// Generate asks Claude for commentary and decodes the strict JSON contract.
// API failures map to ErrUnavailable, contract violations to ErrMalformed.
func (g *ClaudeGenerator) Generate(ctx context.Context, req *Request) (*Result, error) {
	prompt := buildPrompt(req)

	timeoutCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
	}
	if g.temp > 0 {
		params.Temperature = anthropic.Float(g.temp)
	}

	start := time.Now()
	resp, err := g.client.Messages.New(timeoutCtx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	g.logger.Debug("Commentary generated",
		zap.Int("response_length", text.Len()),
		zap.Duration("duration", time.Since(start)),
	)

	result, err := decodeResult(text.String(), g.validate)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// decodeResult parses and validates the generator's JSON payload.
// Unknown fields are tolerated; missing or out-of-enum fields are not.
func decodeResult(raw string, validate *validator.Validate) (*Result, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrMalformed)
	}

	var result Result
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &result, nil
}

// extractJSON strips markdown fences and returns the outermost JSON object.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return s[start : end+1]
}

// buildPrompt renders the request as a compact plain-text briefing input.
func buildPrompt(req *Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run type: %s\n\n", req.RunType)

	if req.Snapshot != nil {
		fmt.Fprintf(&b, "Portfolio: total value %.2f, cash %.2f, %d open positions, total P&L %.2f\n",
			req.Snapshot.TotalValue, req.Snapshot.CashAvailable, req.Snapshot.OpenPositions, req.Snapshot.TotalPnL)
	}

	if len(req.Positions) > 0 {
		b.WriteString("\nPositions:\n")
		for _, pos := range req.Positions {
			fmt.Fprintf(&b, "- %s: %.6f units, open %.4f, current %.4f, P&L %.2f\n",
				pos.Symbol, pos.Units, pos.OpenRate, pos.CurrentRate, pos.PnL)
		}
	}

	if len(req.Analyses) > 0 {
		b.WriteString("\nSignals:\n")
		for _, a := range req.Analyses {
			fmt.Fprintf(&b, "- %s: last %.4f, trend %s (strength %.2f), momentum %+.2f%%, support %.4f, resistance %.4f\n",
				a.Symbol, a.LastPrice, a.Trend, a.TrendStrength, a.Momentum, a.Support, a.Resistance)
		}
	}

	if len(req.Sectors) > 0 {
		b.WriteString("\nSector rotation (avg momentum vs overall):\n")
		classes := make([]string, 0, len(req.Sectors))
		for class := range req.Sectors {
			classes = append(classes, class)
		}
		sort.Strings(classes)
		for _, class := range classes {
			stat := req.Sectors[class]
			fmt.Fprintf(&b, "- %s (%d instruments): avg %+.2f%%, relative %+.2f%%\n",
				class, stat.Instruments, stat.AvgMomentum, stat.RelativeMomentum)
		}
	}

	return b.String()
}
