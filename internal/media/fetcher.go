package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"mediarelay/internal/domain"
	"mediarelay/internal/transport"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	DefaultAPIBase  = "https://api.telegram.org"
	DefaultFileBase = "https://api.telegram.org/file"

	// DefaultMaxBytes matches the Bot API getFile download ceiling.
	DefaultMaxBytes = 20 << 20

	maxMetadataBytes = 1 << 20
)

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Token    string
	APIBase  string // e.g. https://api.telegram.org
	FileBase string // e.g. https://api.telegram.org/file
	MaxBytes int64
	Client   *transport.Client
	Logger   *slog.Logger
}

// Fetcher drives the two-call Bot API file protocol: getFile resolves an
// identifier to a transient path, then the path is downloaded or handed out
// as a URL.
type Fetcher struct {
	token    string
	apiBase  string
	fileBase string
	maxBytes int64
	client   *transport.Client
	logger   *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.FileBase == "" {
		cfg.FileBase = DefaultFileBase
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Client == nil {
		cfg.Client = transport.New(transport.Options{Logger: cfg.Logger})
	}
	return &Fetcher{
		token:    cfg.Token,
		apiBase:  strings.TrimRight(cfg.APIBase, "/"),
		fileBase: strings.TrimRight(cfg.FileBase, "/"),
		maxBytes: cfg.MaxBytes,
		client:   cfg.Client,
		logger:   cfg.Logger,
	}
}

// MaxBytes returns the download size ceiling.
func (f *Fetcher) MaxBytes() int64 { return f.maxBytes }

// Fetch resolves fileID and returns its content in the requested form.
// PayloadURL issues one outbound call, PayloadBytes issues two.
func (f *Fetcher) Fetch(ctx context.Context, fileID string, mode domain.PayloadMode) (domain.MediaPayload, error) {
	desc, err := f.Lookup(ctx, fileID)
	if err != nil {
		return domain.MediaPayload{}, err
	}

	payload := domain.MediaPayload{FileName: path.Base(desc.FilePath)}
	downloadURL := f.FileURL(desc.FilePath)

	if mode == domain.PayloadURL {
		payload.URL = downloadURL
		return payload, nil
	}

	data, err := f.download(ctx, desc.FilePath, downloadURL)
	if err != nil {
		return domain.MediaPayload{}, err
	}
	payload.Bytes = data
	return payload, nil
}

// Lookup performs the getFile call.
func (f *Fetcher) Lookup(ctx context.Context, fileID string) (domain.FileDescriptor, error) {
	endpoint := fmt.Sprintf("%s/bot%s/getFile?file_id=%s", f.apiBase, f.token, url.QueryEscape(fileID))

	resp, err := f.client.Do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return domain.FileDescriptor{}, &MetadataError{FileID: fileID, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return domain.FileDescriptor{}, &MetadataError{FileID: fileID, Reason: "read response", Err: err}
	}

	var apiResp tgbotapi.APIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return domain.FileDescriptor{}, &MetadataError{
			FileID: fileID,
			Reason: fmt.Sprintf("malformed response (HTTP %d)", resp.StatusCode),
			Err:    err,
		}
	}
	if !apiResp.Ok || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.FileDescriptor{}, &MetadataError{
			FileID: fileID,
			Reason: fmt.Sprintf("api error %d: %s", apiResp.ErrorCode, apiResp.Description),
		}
	}

	var file tgbotapi.File
	if err := json.Unmarshal(apiResp.Result, &file); err != nil {
		return domain.FileDescriptor{}, &MetadataError{FileID: fileID, Reason: "malformed result", Err: err}
	}
	if file.FilePath == "" {
		return domain.FileDescriptor{}, &MetadataError{FileID: fileID, Reason: "missing file_path"}
	}

	f.logger.Debug("file metadata resolved", "file_id", fileID, "file_path", file.FilePath, "file_size", file.FileSize)
	return domain.FileDescriptor{FileID: fileID, FilePath: file.FilePath}, nil
}

// FileURL returns the download URL for a path returned by getFile.
func (f *Fetcher) FileURL(filePath string) string {
	return fmt.Sprintf("%s/bot%s/%s", f.fileBase, f.token, filePath)
}

func (f *Fetcher) download(ctx context.Context, filePath, downloadURL string) ([]byte, error) {
	resp, err := f.client.Do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	})
	if err != nil {
		return nil, &DownloadError{FilePath: filePath, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &DownloadError{FilePath: filePath, Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &DownloadError{FilePath: filePath, Reason: "read body", Err: transport.StripURL(err)}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &DownloadError{FilePath: filePath, Reason: fmt.Sprintf("exceeds %d bytes", f.maxBytes)}
	}
	if len(data) == 0 {
		return nil, &DownloadError{FilePath: filePath, Reason: "empty body"}
	}

	f.logger.Debug("file downloaded", "file_path", filePath, "bytes", len(data))
	return data, nil
}
