package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"mediarelay/internal/domain"
	"mediarelay/internal/transport"
)

// FormPost submits the media download URL as an
// application/x-www-form-urlencoded body. The service fetches the media
// itself, so the binary crosses the network once.
//
// Any HTTP status counts as a response: services of this kind report
// failures in the body, which DetectReportedError inspects.
type FormPost struct {
	endpoint string
	apiKey   string
	params   Params
	client   *transport.Client
	logger   *slog.Logger
}

// NewFormPost creates a URL-reference adapter.
func NewFormPost(cfg Config) *FormPost {
	return &FormPost{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		params:   cfg.Params.withDefaults(),
		client:   cfg.Client,
		logger:   cfg.Logger,
	}
}

func (f *FormPost) Name() string { return "form" }

func (f *FormPost) Mode() domain.PayloadMode { return domain.PayloadURL }

// Encode returns the form body for payload.
func (f *FormPost) Encode(payload domain.MediaPayload, sc domain.SubmitContext) (string, error) {
	if !payload.IsURL() {
		return "", fmt.Errorf("form strategy needs a URL payload")
	}
	form := url.Values{}
	form.Set(fieldURL, payload.URL)
	form.Set(fieldChatID, strconv.FormatInt(sc.ChatID, 10))
	if sc.CallbackURL != "" {
		form.Set(fieldCallbackURL, sc.CallbackURL)
	}
	if sc.Recipient != "" {
		form.Set(fieldRecipient, sc.Recipient)
	}
	form.Set(fieldResultType, f.params.ResultType)
	form.Set(fieldSoundID, f.params.VoiceID)
	form.Set(fieldLanguage, f.params.Language)
	return form.Encode(), nil
}

// Submit posts the form and returns the raw body.
func (f *FormPost) Submit(ctx context.Context, payload domain.MediaPayload, sc domain.SubmitContext) (domain.ServiceResponse, error) {
	body, err := f.Encode(payload, sc)
	if err != nil {
		return domain.ServiceResponse{}, &SubmitError{Service: f.Name(), Err: err}
	}

	resp, err := post(ctx, f.client, f.Name(), f.endpoint, f.apiKey, "application/x-www-form-urlencoded", []byte(body))
	if err != nil {
		return domain.ServiceResponse{}, err
	}
	f.logger.Info("form submission answered", "status", resp.Status, "body_len", len(resp.Body))

	if err := DetectReportedError(f.Name(), resp.Body); err != nil {
		return resp, err
	}
	return resp, nil
}
