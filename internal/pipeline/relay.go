package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mediarelay/internal/domain"
	"mediarelay/internal/metrics"
	"mediarelay/internal/service"
)

const (
	DefaultFailureText  = "Sorry, I could not process this file. Please try again later."
	DefaultReportedText = "The processing service could not handle this file: %s"
	DefaultEmptyText    = "The processing service returned no result for this file."
)

// Outcome is what the pipeline produced for one update.
type Outcome struct {
	Text string
	Err  error
}

// RelayConfig configures a Relay.
type RelayConfig struct {
	Sender       domain.Sender
	FailureText  string
	ReportedText string // may contain one %s for the service message
	EmptyText    string
	Logger       *slog.Logger
}

// Relay turns an Outcome into exactly one chat message. Delivery errors are
// logged and counted; they never propagate.
type Relay struct {
	sender       domain.Sender
	failureText  string
	reportedText string
	emptyText    string
	logger       *slog.Logger
}

// NewRelay creates a Relay.
func NewRelay(cfg RelayConfig) *Relay {
	if cfg.FailureText == "" {
		cfg.FailureText = DefaultFailureText
	}
	if cfg.ReportedText == "" {
		cfg.ReportedText = DefaultReportedText
	}
	if cfg.EmptyText == "" {
		cfg.EmptyText = DefaultEmptyText
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Relay{
		sender:       cfg.Sender,
		failureText:  cfg.FailureText,
		reportedText: cfg.ReportedText,
		emptyText:    cfg.EmptyText,
		logger:       cfg.Logger,
	}
}

// Render returns the text that Relay would send for outcome.
func (r *Relay) Render(outcome Outcome) string {
	if outcome.Err != nil {
		var reported *service.ServiceReportedError
		if errors.As(outcome.Err, &reported) {
			return fmt.Sprintf(r.reportedText, reported.Message)
		}
		return r.failureText
	}
	if outcome.Text == "" {
		return r.emptyText
	}
	return outcome.Text
}

// Relay sends the rendered outcome to chatID.
func (r *Relay) Relay(ctx context.Context, chatID int64, outcome Outcome) {
	r.Notify(ctx, chatID, r.Render(outcome))
}

// Notify sends a fixed text, such as a welcome or acknowledgment.
func (r *Relay) Notify(ctx context.Context, chatID int64, text string) {
	metrics.RelaysTotal.Inc()
	if err := r.sender.Send(ctx, chatID, text); err != nil {
		metrics.RelayFailures.Inc()
		r.logger.Error("reply not delivered", "chat_id", chatID, "err", err)
		return
	}
	r.logger.Debug("reply delivered", "chat_id", chatID, "text_len", len(text))
}
