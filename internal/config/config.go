package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. MEDIARELAY_TELEGRAM_TOKEN.
const EnvPrefix = "MEDIARELAY_"

// legacyTokenEnv is the lowercase variable older deployments set.
const legacyTokenEnv = "telegram_token"

// Config is the root configuration for the relay.
type Config struct {
	General    GeneralConfig    `json:"general" yaml:"general" envPrefix:"GENERAL_"`
	Telegram   TelegramConfig   `json:"telegram" yaml:"telegram" envPrefix:"TELEGRAM_"`
	Server     ServerConfig     `json:"server" yaml:"server" envPrefix:"SERVER_"`
	HTTP       HTTPConfig       `json:"http" yaml:"http" envPrefix:"HTTP_"`
	Media      MediaConfig      `json:"media" yaml:"media" envPrefix:"MEDIA_"`
	Service    ServiceConfig    `json:"service" yaml:"service" envPrefix:"SERVICE_"`
	Dispatcher DispatcherConfig `json:"dispatcher" yaml:"dispatcher" envPrefix:"DISPATCHER_"`
	Relay      RelayConfig      `json:"relay" yaml:"relay" envPrefix:"RELAY_"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel" env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
	LogFile  string `json:"logFile,omitempty" yaml:"logFile,omitempty" env:"LOG_FILE"` // optional; stderr when empty
}

type TelegramConfig struct {
	Token         string `json:"token" yaml:"token" env:"TOKEN"`
	APIBase       string `json:"apiBase" yaml:"apiBase" env:"API_BASE" validate:"required,url"`
	FileBase      string `json:"fileBase" yaml:"fileBase" env:"FILE_BASE" validate:"required,url"`
	WebhookURL    string `json:"webhookUrl,omitempty" yaml:"webhookUrl,omitempty" env:"WEBHOOK_URL" validate:"omitempty,url"`
	WebhookSecret string `json:"webhookSecret,omitempty" yaml:"webhookSecret,omitempty" env:"WEBHOOK_SECRET"`
}

type ServerConfig struct {
	Host string `json:"host" yaml:"host" env:"HOST"`
	Port int    `json:"port" yaml:"port" env:"PORT" validate:"min=1,max=65535"`
	Path string `json:"path" yaml:"path" env:"PATH" validate:"required,startswith=/"`
}

type HTTPConfig struct {
	TimeoutSeconds         int `json:"timeoutSeconds" yaml:"timeoutSeconds" env:"TIMEOUT_SECONDS" validate:"min=1,max=600"`
	Retries                int `json:"retries" yaml:"retries" env:"RETRIES" validate:"min=0,max=10"`
	PipelineTimeoutSeconds int `json:"pipelineTimeoutSeconds" yaml:"pipelineTimeoutSeconds" env:"PIPELINE_TIMEOUT_SECONDS" validate:"min=1,max=3600"`
}

type MediaConfig struct {
	// Kinds lists the enabled attachment kinds; empty enables all.
	Kinds    []string `json:"kinds,omitempty" yaml:"kinds,omitempty" env:"KINDS" envSeparator:"," validate:"dive,oneof=document photo video"`
	MaxBytes int64    `json:"maxBytes" yaml:"maxBytes" env:"MAX_BYTES" validate:"min=0"`
}

type ServiceConfig struct {
	Strategy        string `json:"strategy" yaml:"strategy" env:"STRATEGY" validate:"oneof=url multipart vision"`
	Endpoint        string `json:"endpoint" yaml:"endpoint" env:"ENDPOINT" validate:"omitempty,url"`
	APIKey          string `json:"apiKey,omitempty" yaml:"apiKey,omitempty" env:"API_KEY"`
	Language        string `json:"language" yaml:"language" env:"LANGUAGE"`
	VoiceID         string `json:"voiceId" yaml:"voiceId" env:"VOICE_ID"`
	ResultType      string `json:"resultType" yaml:"resultType" env:"RESULT_TYPE"`
	FileField       string `json:"fileField,omitempty" yaml:"fileField,omitempty" env:"FILE_FIELD"`
	FileContentType string `json:"fileContentType,omitempty" yaml:"fileContentType,omitempty" env:"FILE_CONTENT_TYPE"`
	CallbackURL     string `json:"callbackUrl,omitempty" yaml:"callbackUrl,omitempty" env:"CALLBACK_URL" validate:"omitempty,url"`
	Recipient       string `json:"recipient,omitempty" yaml:"recipient,omitempty" env:"RECIPIENT" validate:"omitempty,email"`

	Analysis AnalysisConfig `json:"analysis" yaml:"analysis" envPrefix:"ANALYSIS_"`
}

// AnalysisConfig sends recognized text through a chat-completions model
// before it is relayed. Only the vision strategy produces such text.
type AnalysisConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" env:"ENABLED"`
	APIBase   string `json:"apiBase" yaml:"apiBase" env:"API_BASE" validate:"required,url"`
	APIKey    string `json:"apiKey,omitempty" yaml:"apiKey,omitempty" env:"API_KEY"`
	Model     string `json:"model" yaml:"model" env:"MODEL" validate:"required"`
	Prompt    string `json:"prompt,omitempty" yaml:"prompt,omitempty" env:"PROMPT"`
	MaxTokens int    `json:"maxTokens" yaml:"maxTokens" env:"MAX_TOKENS" validate:"min=0,max=32768"`
}

type DispatcherConfig struct {
	Acknowledge bool   `json:"acknowledge" yaml:"acknowledge" env:"ACKNOWLEDGE"`
	AckText     string `json:"ackText,omitempty" yaml:"ackText,omitempty" env:"ACK_TEXT"`
	WelcomeText string `json:"welcomeText,omitempty" yaml:"welcomeText,omitempty" env:"WELCOME_TEXT"`
	Workers     int    `json:"workers" yaml:"workers" env:"WORKERS" validate:"min=1,max=256"`
	QueueSize   int    `json:"queueSize" yaml:"queueSize" env:"QUEUE_SIZE" validate:"min=1,max=10000"`
}

type RelayConfig struct {
	FailureText  string `json:"failureText,omitempty" yaml:"failureText,omitempty" env:"FAILURE_TEXT"`
	ReportedText string `json:"reportedText,omitempty" yaml:"reportedText,omitempty" env:"REPORTED_TEXT"`
	EmptyText    string `json:"emptyText,omitempty" yaml:"emptyText,omitempty" env:"EMPTY_TEXT"`
}

// Timeout is the per-call HTTP timeout.
func (c HTTPConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSeconds) * time.Second }

// PipelineTimeout bounds the processing of one update.
func (c HTTPConfig) PipelineTimeout() time.Duration {
	return time.Duration(c.PipelineTimeoutSeconds) * time.Second
}

// DefaultConfigDir returns the default config directory (~/.mediarelay).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mediarelay"
	}
	return filepath.Join(home, ".mediarelay")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads the file at path, applies environment overrides and validates
// the result. YAML is used for .yaml/.yml paths, JSON otherwise.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// FromEnv builds a config from defaults and environment variables only.
func FromEnv() (*Config, error) {
	cfg := Defaults()
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with MEDIARELAY_* variables. Unset variables leave
// fields untouched. The legacy telegram_token variable fills an empty token.
func ApplyEnv(cfg *Config) error {
	if cfg.Telegram.Token == "" {
		if tok := os.Getenv(legacyTokenEnv); tok != "" {
			cfg.Telegram.Token = tok
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset
// variable without a default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, def := groups[1], groups[2]
		hasDefault := strings.Contains(match, ":-")

		if val, ok := os.LookupEnv(name); ok && val != "" {
			return val
		}
		if hasDefault {
			return def
		}
		return match
	})
}

// Save writes cfg to path in the format implied by its extension. The file
// holds secrets, so it is created owner-readable only.
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
