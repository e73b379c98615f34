package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"mediarelay/internal/channel"
	"mediarelay/internal/config"
	"mediarelay/internal/transport"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the relay setup",
		Long: `Verifies the configuration, the bot token, the processing service
endpoint and the listen port. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := &doctor{out: cmd.OutOrStdout()}
			d.run(offline)
			return d.summary()
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip checks that contact Telegram or the service")
	return cmd
}

type doctor struct {
	out                    io.Writer
	passed, failed, warned int
}

func (d *doctor) run(offline bool) {
	cfgPath := resolveConfigPath()
	fmt.Fprintf(d.out, "mediarelay doctor v%s\n\n", version)

	if _, err := os.Stat(cfgPath); err != nil {
		d.warn("Config file", fmt.Sprintf("not found at %s, using environment", cfgPath))
	} else {
		d.pass("Config file", cfgPath)
	}

	cfg, err := loadConfig()
	if err != nil {
		d.fail("Config validation", err.Error())
		return
	}
	d.pass("Config validation", "valid")

	if err := config.Ready(cfg); err != nil {
		d.fail("Required settings", err.Error())
	} else {
		d.pass("Required settings", "token and service configured")
	}

	if cfg.Telegram.WebhookSecret == "" {
		d.warn("Webhook secret", "not set; webhook requests will not be authenticated")
	} else {
		d.pass("Webhook secret", "set")
	}

	if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
		d.warn("Listen port", fmt.Sprintf("%d may be in use: %v", cfg.Server.Port, err))
	} else {
		d.pass("Listen port", fmt.Sprintf(":%d available", cfg.Server.Port))
	}

	if cfg.General.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
			d.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
		} else {
			d.pass("Log file", cfg.General.LogFile)
		}
	}

	if offline {
		return
	}

	if cfg.Telegram.Token != "" {
		tg, err := channel.NewTelegram(channel.TelegramConfig{
			Token:   cfg.Telegram.Token,
			APIBase: cfg.Telegram.APIBase,
			Client:  newClient(cfg),
			Logger:  logger,
		})
		if err != nil {
			d.fail("Telegram token", err.Error())
		} else {
			d.pass("Telegram token", "@"+tg.Username())
		}
	}

	if cfg.Service.Endpoint != "" {
		if err := checkEndpoint(newClient(cfg).HTTP(), cfg.Service.Endpoint); err != nil {
			d.warn("Service endpoint", err.Error())
		} else {
			d.pass("Service endpoint", "reachable")
		}
	}

	if cfg.Service.Analysis.Enabled {
		if err := checkEndpoint(newClient(cfg).HTTP(), cfg.Service.Analysis.APIBase); err != nil {
			d.warn("Analysis API", err.Error())
		} else {
			d.pass("Analysis API", cfg.Service.Analysis.Model+" at "+cfg.Service.Analysis.APIBase)
		}
	}
}

func (d *doctor) summary() error {
	fmt.Fprintf(d.out, "\nResults: %d passed, %d warnings, %d failed\n", d.passed, d.warned, d.failed)
	if d.failed > 0 {
		return fmt.Errorf("%d check(s) failed", d.failed)
	}
	return nil
}

func (d *doctor) pass(check, detail string) {
	d.passed++
	fmt.Fprintf(d.out, "  [PASS] %-20s %s\n", check, detail)
}

func (d *doctor) fail(check, detail string) {
	d.failed++
	fmt.Fprintf(d.out, "  [FAIL] %-20s %s\n", check, detail)
}

func (d *doctor) warn(check, detail string) {
	d.warned++
	fmt.Fprintf(d.out, "  [WARN] %-20s %s\n", check, detail)
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return ln.Close()
}

// checkEndpoint only verifies that the service host answers HTTP; any status
// counts, since services often reject bodiless requests.
func checkEndpoint(client *http.Client, endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("unreachable: %v", transport.StripURL(err))
	}
	resp.Body.Close()
	return nil
}
