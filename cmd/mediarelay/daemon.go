package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/spf13/cobra"
)

const (
	launchdLabel = "com.mediarelay.relay"
	systemdUnit  = "mediarelay.service"
)

type daemonParams struct {
	Label   string
	Exec    string
	Mode    string // serve or poll
	Config  string
	Log     string
	ErrLog  string
	EnvFile string
}

func installDaemonCmd() *cobra.Command {
	var mode, envFile string
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the relay as a user daemon (launchd/systemd)",
		Long:  "Generates a service file that runs 'mediarelay serve' (or poll) at login and restarts it on failure.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if mode != "serve" && mode != "poll" {
				return fmt.Errorf("--mode must be serve or poll")
			}
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			params := daemonParams{
				Label:   launchdLabel,
				Exec:    execPath,
				Mode:    mode,
				Config:  resolveConfigPath(),
				Log:     filepath.Join(home, ".mediarelay", "logs", "mediarelay.log"),
				ErrLog:  filepath.Join(home, ".mediarelay", "logs", "mediarelay-error.log"),
				EnvFile: envFile,
			}

			switch runtime.GOOS {
			case "darwin":
				if err := os.MkdirAll(filepath.Dir(params.Log), 0o755); err != nil {
					return err
				}
				path := launchdPath(home)
				return writeDaemonFile(path, launchdTemplate, params,
					"launchctl load "+path, "launchctl unload "+path)
			case "linux":
				return writeDaemonFile(systemdPath(home), systemdTemplate, params,
					"systemctl --user enable --now "+systemdUnit, "systemctl --user stop "+systemdUnit)
			default:
				return fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", runtime.GOOS)
			}
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "serve", "how updates are received: serve or poll")
	cmd.Flags().StringVar(&envFile, "env-file", "", "systemd EnvironmentFile with MEDIARELAY_* secrets")
	return cmd
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the relay daemon file",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			var path string
			switch runtime.GOOS {
			case "darwin":
				path = launchdPath(home)
			case "linux":
				path = systemdPath(home)
			default:
				return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
			}
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove %s: %w", path, err)
			}
			fmt.Printf("Daemon uninstalled: %s\n", path)
			return nil
		},
	}
}

func launchdPath(home string) string {
	return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
}

func systemdPath(home string) string {
	return filepath.Join(home, ".config", "systemd", "user", systemdUnit)
}

func renderDaemon(tmpl string, params daemonParams) ([]byte, error) {
	t, err := template.New("daemon").Parse(tmpl)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, params); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeDaemonFile(path, tmpl string, params daemonParams, startHint, stopHint string) error {
	data, err := renderDaemon(tmpl, params)
	if err != nil {
		return fmt.Errorf("render service file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("Daemon installed: %s\n", path)
	fmt.Printf("To start: %s\n", startHint)
	fmt.Printf("To stop:  %s\n", stopHint)
	return nil
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Exec}}</string>
        <string>{{.Mode}}</string>
        <string>--config</string>
        <string>{{.Config}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{.Log}}</string>
    <key>StandardErrorPath</key>
    <string>{{.ErrLog}}</string>
</dict>
</plist>
`

const systemdTemplate = `[Unit]
Description=mediarelay Telegram media relay
After=network-online.target

[Service]
Type=simple
ExecStart={{.Exec}} {{.Mode}} --config {{.Config}}
{{- if .EnvFile}}
EnvironmentFile={{.EnvFile}}
{{- end}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`
