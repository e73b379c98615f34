package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"mediarelay/internal/domain"
	"mediarelay/internal/transport"
)

const defaultVisionEndpoint = "https://vision.googleapis.com/v1/images:annotate"

// Vision sends the image base64-encoded to a Cloud Vision compatible
// images:annotate endpoint and returns the detected text.
type Vision struct {
	endpoint string
	apiKey   string
	params   Params
	client   *transport.Client
	logger   *slog.Logger
}

// NewVision creates an OCR adapter.
func NewVision(cfg Config) *Vision {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultVisionEndpoint
	}
	return &Vision{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		params:   cfg.Params.withDefaults(),
		client:   cfg.Client,
		logger:   cfg.Logger,
	}
}

func (v *Vision) Name() string { return "vision" }

func (v *Vision) Mode() domain.PayloadMode { return domain.PayloadBytes }

type visionRequest struct {
	Requests []visionImageRequest `json:"requests"`
}

type visionImageRequest struct {
	Image        visionImage         `json:"image"`
	Features     []visionFeature     `json:"features"`
	ImageContext *visionImageContext `json:"imageContext,omitempty"`
}

type visionImage struct {
	Content string `json:"content"`
}

type visionFeature struct {
	Type string `json:"type"`
}

type visionImageContext struct {
	LanguageHints []string `json:"languageHints,omitempty"`
}

type visionResponse struct {
	Responses []struct {
		TextAnnotations []struct {
			Description string `json:"description"`
		} `json:"textAnnotations"`
		FullTextAnnotation *struct {
			Text string `json:"text"`
		} `json:"fullTextAnnotation"`
		Error *visionStatus `json:"error"`
	} `json:"responses"`
	Error *visionStatus `json:"error"`
}

type visionStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// feature maps the configured result type onto a Vision feature name.
func (v *Vision) feature() string {
	if strings.EqualFold(v.params.ResultType, "document") {
		return "DOCUMENT_TEXT_DETECTION"
	}
	return "TEXT_DETECTION"
}

// Encode returns the JSON request body for payload. A payload whose reported
// media type is not an image is refused; images:annotate cannot read it.
func (v *Vision) Encode(payload domain.MediaPayload) ([]byte, error) {
	if len(payload.Bytes) == 0 {
		return nil, fmt.Errorf("vision strategy needs a byte payload")
	}
	if payload.MimeType != "" && !strings.HasPrefix(payload.MimeType, "image/") {
		return nil, fmt.Errorf("vision strategy cannot read %s", payload.MimeType)
	}
	req := visionRequest{Requests: []visionImageRequest{{
		Image:    visionImage{Content: base64.StdEncoding.EncodeToString(payload.Bytes)},
		Features: []visionFeature{{Type: v.feature()}},
	}}}
	if v.params.Language != "" {
		req.Requests[0].ImageContext = &visionImageContext{LanguageHints: []string{v.params.Language}}
	}
	return json.Marshal(req)
}

// Submit runs text detection and returns the recognized text as the body.
func (v *Vision) Submit(ctx context.Context, payload domain.MediaPayload, _ domain.SubmitContext) (domain.ServiceResponse, error) {
	body, err := v.Encode(payload)
	if err != nil {
		return domain.ServiceResponse{}, &SubmitError{Service: v.Name(), Err: err}
	}

	endpoint := v.endpoint
	if v.apiKey != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint += sep + "key=" + url.QueryEscape(v.apiKey)
	}

	// The key travels in the query string, not in a bearer header.
	resp, err := post(ctx, v.client, v.Name(), endpoint, "", "application/json", body)
	if err != nil {
		return domain.ServiceResponse{}, err
	}

	var parsed visionResponse
	if jsonErr := json.Unmarshal([]byte(resp.Body), &parsed); jsonErr != nil {
		if !isSuccess(resp.Status) {
			return resp, &SubmitError{Service: v.Name(), Status: resp.Status, Body: resp.Body}
		}
		return resp, &ServiceReportedError{Service: v.Name(), Message: "unreadable response", Body: resp.Body}
	}
	if parsed.Error != nil {
		return resp, &ServiceReportedError{Service: v.Name(), Message: parsed.Error.Message, Body: resp.Body}
	}
	if !isSuccess(resp.Status) {
		return resp, &SubmitError{Service: v.Name(), Status: resp.Status, Body: resp.Body}
	}
	if len(parsed.Responses) == 0 {
		return domain.ServiceResponse{Status: resp.Status}, nil
	}

	first := parsed.Responses[0]
	if first.Error != nil && first.Error.Message != "" {
		return resp, &ServiceReportedError{Service: v.Name(), Message: first.Error.Message, Body: resp.Body}
	}

	var text string
	switch {
	case first.FullTextAnnotation != nil:
		text = first.FullTextAnnotation.Text
	case len(first.TextAnnotations) > 0:
		text = first.TextAnnotations[0].Description
	}
	v.logger.Info("text detection complete", "text_len", len(text))
	return domain.ServiceResponse{Status: resp.Status, Body: strings.TrimSpace(text)}, nil
}
