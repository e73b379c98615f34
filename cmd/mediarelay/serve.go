package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mediarelay/internal/bus"
	"mediarelay/internal/channel"
	"mediarelay/internal/config"
	"mediarelay/internal/domain"
	"mediarelay/internal/media"
	"mediarelay/internal/pipeline"
	"mediarelay/internal/provider"
	"mediarelay/internal/service"
	"mediarelay/internal/transport"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var register bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive updates through the Telegram webhook",
		Long: `Starts the HTTP server with the Telegram webhook, /healthz and /metrics.
With --register, telegram.webhookUrl is registered with Telegram first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config, tg *channel.Telegram, h domain.UpdateHandler) error {
				if register {
					if cfg.Telegram.WebhookURL == "" {
						return fmt.Errorf("--register needs telegram.webhookUrl")
					}
					if err := tg.SetWebhook(cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
						return err
					}
				}
				if cfg.Telegram.WebhookSecret == "" {
					logger.Warn("telegram.webhookSecret is empty; webhook requests are not authenticated")
				}
				wh := channel.NewWebhook(channel.WebhookConfig{
					Host:    cfg.Server.Host,
					Port:    cfg.Server.Port,
					Path:    cfg.Server.Path,
					Secret:  cfg.Telegram.WebhookSecret,
					Handler: h,
					Logger:  logger,
				})
				return wh.Start(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&register, "register", false, "call setWebhook with telegram.webhookUrl before serving")
	return cmd
}

func pollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Receive updates by long polling (removes any registered webhook)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, _ *config.Config, tg *channel.Telegram, h domain.UpdateHandler) error {
				return tg.Poll(ctx, h)
			})
		},
	}
}

type receiver func(ctx context.Context, cfg *config.Config, tg *channel.Telegram, h domain.UpdateHandler) error

// run loads config, connects to Telegram, builds the pipeline behind the
// update queue and hands them to recv until SIGINT or SIGTERM. Queued
// updates are drained before it returns.
func run(recv receiver) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	closer, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := config.Ready(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newClient(cfg)
	tg, err := channel.NewTelegram(channel.TelegramConfig{
		Token:   cfg.Telegram.Token,
		APIBase: cfg.Telegram.APIBase,
		Client:  client,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	disp, err := newDispatcher(cfg, tg, client)
	if err != nil {
		return err
	}

	queue := bus.NewQueue(bus.QueueConfig{
		Handler: disp,
		Workers: cfg.Dispatcher.Workers,
		Size:    cfg.Dispatcher.QueueSize,
		Logger:  logger,
	})
	queue.Start(ctx)

	logger.Info("relay started", "version", version, "bot", tg.Username(),
		"strategy", cfg.Service.Strategy, "retries", cfg.HTTP.Retries, "workers", cfg.Dispatcher.Workers)
	err = recv(ctx, cfg, tg, queue)

	logger.Info("draining update queue", "pending", queue.Len())
	queue.Close()
	queue.Wait()
	logger.Info("relay stopped")
	return err
}

func newClient(cfg *config.Config) *transport.Client {
	return transport.New(transport.Options{
		Timeout: cfg.HTTP.Timeout(),
		Retries: cfg.HTTP.Retries,
		Logger:  logger,
	})
}

// newDispatcher wires resolver, fetcher, adapter and relay from cfg.
func newDispatcher(cfg *config.Config, sender domain.Sender, client *transport.Client) (*pipeline.Dispatcher, error) {
	kinds := make([]domain.MediaKind, 0, len(cfg.Media.Kinds))
	for _, k := range cfg.Media.Kinds {
		kinds = append(kinds, domain.MediaKind(k))
	}

	fetcher := media.NewFetcher(media.FetcherConfig{
		Token:    cfg.Telegram.Token,
		APIBase:  cfg.Telegram.APIBase,
		FileBase: cfg.Telegram.FileBase,
		MaxBytes: cfg.Media.MaxBytes,
		Client:   client,
		Logger:   logger,
	})

	adapter, err := service.New(service.Config{
		Strategy: cfg.Service.Strategy,
		Endpoint: cfg.Service.Endpoint,
		APIKey:   cfg.Service.APIKey,
		Params: service.Params{
			Language:   cfg.Service.Language,
			VoiceID:    cfg.Service.VoiceID,
			ResultType: cfg.Service.ResultType,
		},
		FileField:       cfg.Service.FileField,
		FileContentType: cfg.Service.FileContentType,
		Client:          client,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("service adapter: %w", err)
	}
	if a := cfg.Service.Analysis; a.Enabled {
		chat := provider.NewOpenAI(provider.OpenAIConfig{
			APIKey:    a.APIKey,
			APIBase:   a.APIBase,
			Model:     a.Model,
			MaxTokens: a.MaxTokens,
			Client:    client,
			Logger:    logger,
		})
		adapter = service.WithAnalysis(adapter, provider.NewAnalyst(chat, a.Prompt), logger)
		logger.Info("analysis enabled", "model", chat.Model())
	}

	relay := pipeline.NewRelay(pipeline.RelayConfig{
		Sender:       sender,
		FailureText:  cfg.Relay.FailureText,
		ReportedText: cfg.Relay.ReportedText,
		EmptyText:    cfg.Relay.EmptyText,
		Logger:       logger,
	})

	return pipeline.NewDispatcher(pipeline.DispatcherConfig{
		Resolver:    media.NewResolver(kinds...),
		Fetcher:     fetcher,
		Adapter:     adapter,
		Relay:       relay,
		WelcomeText: cfg.Dispatcher.WelcomeText,
		Acknowledge: cfg.Dispatcher.Acknowledge,
		AckText:     cfg.Dispatcher.AckText,
		CallbackURL: cfg.Service.CallbackURL,
		Recipient:   cfg.Service.Recipient,
		MaxBytes:    fetcher.MaxBytes(),
		Timeout:     cfg.HTTP.PipelineTimeout(),
		Logger:      logger,
	}), nil
}
