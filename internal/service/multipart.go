package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"
	"unicode"

	"mediarelay/internal/domain"
	"mediarelay/internal/transport"

	"github.com/google/uuid"
)

const (
	defaultFileField       = "file"
	defaultFileContentType = "video/mp4"
	defaultFileName        = "media.mp4"
	boundaryPrefix         = "RelayBoundary"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Multipart uploads the media bytes as multipart/form-data. A non-2xx status
// is treated as a failed submission.
type Multipart struct {
	endpoint    string
	apiKey      string
	params      Params
	fileField   string
	contentType string
	client      *transport.Client
	logger      *slog.Logger
}

// NewMultipart creates a binary-upload adapter.
func NewMultipart(cfg Config) *Multipart {
	if cfg.FileField == "" {
		cfg.FileField = defaultFileField
	}
	if cfg.FileContentType == "" {
		cfg.FileContentType = defaultFileContentType
	}
	return &Multipart{
		endpoint:    cfg.Endpoint,
		apiKey:      cfg.APIKey,
		params:      cfg.Params.withDefaults(),
		fileField:   cfg.FileField,
		contentType: cfg.FileContentType,
		client:      cfg.Client,
		logger:      cfg.Logger,
	}
}

func (m *Multipart) Name() string { return "multipart" }

func (m *Multipart) Mode() domain.PayloadMode { return domain.PayloadBytes }

// newBoundary returns a 45-character alphanumeric boundary. It is not checked
// against the payload; a collision with 128 random bits is not a practical
// concern.
func newBoundary() string {
	return boundaryPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// cleanFileName replaces control characters and path separators so a name
// taken from the chat cannot end the Content-Disposition header early.
func cleanFileName(name string) string {
	name = strings.TrimSpace(strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return '_'
		}
		return r
	}, name))
	if name == "" || name == "." || name == ".." {
		return defaultFileName
	}
	return name
}

// Encode builds the multipart body and returns it with its Content-Type.
func (m *Multipart) Encode(payload domain.MediaPayload, sc domain.SubmitContext) ([]byte, string, error) {
	if len(payload.Bytes) == 0 {
		return nil, "", fmt.Errorf("multipart strategy needs a byte payload")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.SetBoundary(newBoundary()); err != nil {
		return nil, "", fmt.Errorf("set boundary: %w", err)
	}

	fields := [][2]string{
		{fieldChatID, strconv.FormatInt(sc.ChatID, 10)},
		{fieldResultType, m.params.ResultType},
		{fieldSoundID, m.params.VoiceID},
		{fieldLanguage, m.params.Language},
	}
	if sc.CallbackURL != "" {
		fields = append(fields, [2]string{fieldCallbackURL, sc.CallbackURL})
	}
	if sc.Recipient != "" {
		fields = append(fields, [2]string{fieldRecipient, sc.Recipient})
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}

	fileName := cleanFileName(payload.FileName)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(m.fileField), quoteEscaper.Replace(fileName)))
	header.Set("Content-Type", m.contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(payload.Bytes); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return body.Bytes(), writer.FormDataContentType(), nil
}

// Submit uploads the payload and returns the raw body.
func (m *Multipart) Submit(ctx context.Context, payload domain.MediaPayload, sc domain.SubmitContext) (domain.ServiceResponse, error) {
	body, contentType, err := m.Encode(payload, sc)
	if err != nil {
		return domain.ServiceResponse{}, &SubmitError{Service: m.Name(), Err: err}
	}

	m.logger.Debug("uploading media", "bytes", len(payload.Bytes), "request_bytes", len(body),
		"mime_type", payload.MimeType, "sent_as", m.contentType)

	resp, err := post(ctx, m.client, m.Name(), m.endpoint, m.apiKey, contentType, body)
	if err != nil {
		return domain.ServiceResponse{}, err
	}
	m.logger.Info("multipart submission answered", "status", resp.Status, "body_len", len(resp.Body))

	if !isSuccess(resp.Status) {
		return resp, &SubmitError{Service: m.Name(), Status: resp.Status, Body: resp.Body}
	}
	if err := DetectReportedError(m.Name(), resp.Body); err != nil {
		return resp, err
	}
	return resp, nil
}
