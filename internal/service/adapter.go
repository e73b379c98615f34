// Package service submits fetched media to an external processing service
// (OCR, video translation) and returns its textual result.
package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"mediarelay/internal/domain"
	"mediarelay/internal/transport"
)

// Strategy names accepted in configuration.
const (
	StrategyFormPost  = "url"
	StrategyMultipart = "multipart"
	StrategyVision    = "vision"
)

const maxResponseBytes = 4 << 20

// Field names shared by the form and multipart encodings.
const (
	fieldURL         = "url"
	fieldChatID      = "chatId"
	fieldCallbackURL = "callbackUrl"
	fieldRecipient   = "email"
	fieldResultType  = "resultType"
	fieldSoundID     = "soundId"
	fieldLanguage    = "language"
)

// Adapter encodes a media payload for one processing service and submits it.
type Adapter interface {
	Name() string
	// Mode is the payload form this adapter consumes.
	Mode() domain.PayloadMode
	Submit(ctx context.Context, payload domain.MediaPayload, sc domain.SubmitContext) (domain.ServiceResponse, error)
}

// Params are the deployment constants sent with every submission.
type Params struct {
	Language   string
	VoiceID    string
	ResultType string
}

// DefaultParams returns the values used when a deployment sets none.
func DefaultParams() Params {
	return Params{Language: "en", VoiceID: "default", ResultType: "text"}
}

// withDefaults fills every empty field so required parameters are always sent.
func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Language == "" {
		p.Language = d.Language
	}
	if p.VoiceID == "" {
		p.VoiceID = d.VoiceID
	}
	if p.ResultType == "" {
		p.ResultType = d.ResultType
	}
	return p
}

// Config selects and configures one adapter strategy.
type Config struct {
	Strategy        string
	Endpoint        string
	APIKey          string
	Params          Params
	FileField       string // multipart only, default "file"
	FileContentType string // multipart only, default "video/mp4"
	Client          *transport.Client
	Logger          *slog.Logger
}

// New builds the adapter named by cfg.Strategy.
func New(cfg Config) (Adapter, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Client == nil {
		cfg.Client = transport.New(transport.Options{Logger: cfg.Logger})
	}
	cfg.Params = cfg.Params.withDefaults()

	switch cfg.Strategy {
	case StrategyFormPost, "":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("service endpoint is required for strategy %q", StrategyFormPost)
		}
		return NewFormPost(cfg), nil
	case StrategyMultipart:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("service endpoint is required for strategy %q", StrategyMultipart)
		}
		return NewMultipart(cfg), nil
	case StrategyVision:
		return NewVision(cfg), nil
	default:
		return nil, fmt.Errorf("unknown service strategy: %s", cfg.Strategy)
	}
}

// post sends body to endpoint and returns the raw response. Transport
// failures become *SubmitError; status interpretation is left to the caller.
func post(ctx context.Context, client *transport.Client, name, endpoint, apiKey, contentType string, body []byte) (domain.ServiceResponse, error) {
	resp, err := client.Do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}
		return req, nil
	})
	if err != nil {
		return domain.ServiceResponse{}, &SubmitError{Service: name, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.ServiceResponse{}, &SubmitError{Service: name, Status: resp.StatusCode, Err: transport.StripURL(err)}
	}
	return domain.ServiceResponse{Status: resp.StatusCode, Body: string(data)}, nil
}

func isSuccess(status int) bool { return status >= 200 && status < 300 }
