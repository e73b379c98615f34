package channel

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"mediarelay/internal/domain"
	"mediarelay/internal/metrics"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	// SecretHeader carries the secret_token registered with setWebhook.
	SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

	maxWebhookBody = 1 << 20
)

// WebhookConfig configures the webhook HTTP server.
type WebhookConfig struct {
	Host    string
	Port    int
	Path    string // default /telegram/webhook
	Secret  string // expected SecretHeader value; empty disables the check
	Handler domain.UpdateHandler
	Logger  *slog.Logger
}

// Webhook receives Telegram updates over HTTP and also serves /healthz and
// /metrics. Updates are acknowledged immediately and processed in the
// background, since Telegram retries deliveries that are slow to answer.
type Webhook struct {
	addr    string
	path    string
	secret  string
	handler domain.UpdateHandler
	logger  *slog.Logger

	// base outlives individual requests; cancelled on shutdown.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWebhook creates a webhook server.
func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Path == "" {
		cfg.Path = "/telegram/webhook"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Webhook{
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		path:    cfg.Path,
		secret:  cfg.Secret,
		handler: cfg.Handler,
		logger:  cfg.Logger,
		base:    base,
		cancel:  cancel,
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Router builds the HTTP routes.
func (w *Webhook) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", w.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post(w.path, w.handleUpdate)
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully and waits
// for in-flight updates.
func (w *Webhook) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              w.addr,
		Handler:           w.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	w.logger.Info("webhook server starting", "addr", w.addr, "path", w.path)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		w.cancel()
		w.Wait()
		return err
	case err := <-errCh:
		w.cancel()
		return fmt.Errorf("webhook server: %w", err)
	}
}

// Wait blocks until every accepted update has been processed.
func (w *Webhook) Wait() { w.wg.Wait() }

func (w *Webhook) handleHealth(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(map[string]string{"status": "ok"})
}

func (w *Webhook) handleUpdate(rw http.ResponseWriter, r *http.Request) {
	if w.secret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(w.secret)) != 1 {
			metrics.WebhookRejected.Inc()
			w.logger.Warn("webhook rejected: bad secret token", "remote", r.RemoteAddr)
			http.Error(rw, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		metrics.WebhookRejected.Inc()
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		metrics.WebhookRejected.Inc()
		http.Error(rw, "Invalid JSON", http.StatusBadRequest)
		return
	}

	rw.WriteHeader(http.StatusOK)

	in, ok := FromTelegram(update)
	if !ok {
		w.logger.Debug("webhook update skipped", "update_id", update.UpdateID)
		return
	}
	if w.handler == nil {
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.handler.HandleUpdate(w.base, in)
	}()
}
