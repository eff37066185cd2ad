// Package oracle turns a text-completion backend into the crawler's decision
// and extraction oracles. Backends live in subpackages (anthropic, gemini);
// this package owns the prompts, response parsing and usage accounting.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/artist-crawler/internal/crawler"
	"github.com/JakeFAU/artist-crawler/internal/metrics"
)

// Oracle call kinds used for metrics and usage rows.
const (
	KindDecide  = "decide"
	KindExtract = "extract"
)

const (
	defaultTimeout             = 30 * time.Second
	defaultDecisionMaxTokens   = 1000
	defaultExtractionMaxTokens = 1500
)

var (
	// ErrMalformedResponse is returned when model output does not match the
	// expected JSON shape.
	ErrMalformedResponse = errors.New("malformed oracle response")
	// ErrEmptyResponse is returned when the backend produced no text.
	ErrEmptyResponse = errors.New("empty oracle response")
)

// Request is a single system+user completion.
type Request struct {
	System    string
	User      string
	MaxTokens int64
}

// Response carries the generated text and token accounting.
type Response struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Completer is implemented by each LLM backend.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Config tunes per-call limits.
type Config struct {
	Timeout             time.Duration
	DecisionMaxTokens   int64
	ExtractionMaxTokens int64
}

// Oracle implements crawler.DecisionOracle and crawler.ExtractionOracle on
// top of a Completer. It is safe for concurrent use.
type Oracle struct {
	completer Completer
	usage     crawler.UsageRecorder
	cfg       Config
	logger    *zap.Logger
}

var (
	_ crawler.DecisionOracle   = (*Oracle)(nil)
	_ crawler.ExtractionOracle = (*Oracle)(nil)
)

// New wires an Oracle. usage may be nil.
func New(completer Completer, usage crawler.UsageRecorder, cfg Config, logger *zap.Logger) *Oracle {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.DecisionMaxTokens <= 0 {
		cfg.DecisionMaxTokens = defaultDecisionMaxTokens
	}
	if cfg.ExtractionMaxTokens <= 0 {
		cfg.ExtractionMaxTokens = defaultExtractionMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{
		completer: completer,
		usage:     usage,
		cfg:       cfg,
		logger:    logger,
	}
}

// Decide asks the model for the next move on the current page.
func (o *Oracle) Decide(ctx context.Context, input crawler.DecisionInput) (crawler.Action, error) {
	text, err := o.call(ctx, KindDecide, Request{
		System:    decisionSystemPrompt,
		User:      decisionUserPrompt(input),
		MaxTokens: o.cfg.DecisionMaxTokens,
	})
	if err != nil {
		return nil, err
	}
	action, err := parseDecision(text)
	if err != nil {
		o.logger.Debug("unparseable decision", zap.String("url", input.URL), zap.String("raw", text))
		return nil, err
	}
	return action, nil
}

// Extract asks the model for artists on the current page, skipping
// input.KnownNames.
func (o *Oracle) Extract(ctx context.Context, input crawler.ExtractionInput) ([]crawler.Candidate, error) {
	text, err := o.call(ctx, KindExtract, Request{
		System:    extractionSystemPrompt,
		User:      extractionUserPrompt(input),
		MaxTokens: o.cfg.ExtractionMaxTokens,
	})
	if err != nil {
		return nil, err
	}
	candidates, dropped, err := parseCandidates(text)
	if err != nil {
		o.logger.Debug("unparseable extraction", zap.String("url", input.URL), zap.String("raw", text))
		return nil, err
	}
	if dropped > 0 {
		o.logger.Debug("dropped candidates without a name",
			zap.String("url", input.URL),
			zap.Int("dropped", dropped),
		)
	}
	return candidates, nil
}

func (o *Oracle) call(ctx context.Context, kind string, req Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := o.completer.Complete(callCtx, req)
	metrics.ObserveOracleCall(kind, err, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%s call: %w", kind, err)
	}

	metrics.ObserveOracleTokens(kind, resp.InputTokens, resp.OutputTokens)
	o.recordUsage(ctx, kind, resp)

	if resp.Text == "" {
		return "", fmt.Errorf("%s call: %w", kind, ErrEmptyResponse)
	}
	return resp.Text, nil
}

func (o *Oracle) recordUsage(ctx context.Context, kind string, resp Response) {
	if o.usage == nil {
		return
	}
	err := o.usage.RecordOracleUsage(context.WithoutCancel(ctx), crawler.OracleUsage{
		Kind:         kind,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	})
	if err != nil {
		o.logger.Warn("failed to record oracle usage",
			zap.String("kind", kind),
			zap.String("model", resp.Model),
			zap.Error(err),
		)
	}
}
