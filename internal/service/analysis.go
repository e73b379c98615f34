package service

import (
	"context"
	"log/slog"
	"strings"

	"mediarelay/internal/domain"
	"mediarelay/internal/metrics"
)

// Analyzer turns recognized text into a reply, e.g. through a chat model.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (string, error)
}

// Analyzed post-processes the text result of another adapter. Empty results
// and failures of the inner adapter pass through untouched.
type Analyzed struct {
	inner    Adapter
	analyzer Analyzer
	logger   *slog.Logger
}

// WithAnalysis wraps inner so its text result goes through analyzer.
func WithAnalysis(inner Adapter, analyzer Analyzer, logger *slog.Logger) *Analyzed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzed{inner: inner, analyzer: analyzer, logger: logger}
}

func (a *Analyzed) Name() string { return a.inner.Name() + "+analysis" }

func (a *Analyzed) Mode() domain.PayloadMode { return a.inner.Mode() }

// Submit runs the inner adapter, then the analyzer on its body. An analysis
// failure is reported as a *SubmitError.
func (a *Analyzed) Submit(ctx context.Context, payload domain.MediaPayload, sc domain.SubmitContext) (domain.ServiceResponse, error) {
	resp, err := a.inner.Submit(ctx, payload, sc)
	if err != nil || strings.TrimSpace(resp.Body) == "" {
		return resp, err
	}

	metrics.AnalysisTotal.Inc()
	out, err := a.analyzer.Analyze(ctx, resp.Body)
	if err != nil {
		return resp, &SubmitError{Service: "analysis", Err: err}
	}
	a.logger.Info("analysis complete", "input_len", len(resp.Body), "output_len", len(out))
	return domain.ServiceResponse{Status: resp.Status, Body: out}, nil
}
