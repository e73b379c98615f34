package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report json paths (telegram.apiBase) rather than Go field names.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks field ranges and formats. All problems are reported in one
// error. Credentials are not required here; see Ready.
func Validate(cfg *Config) error {
	var errs []string

	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, describe(fe))
		}
	}

	if n := strings.Count(cfg.Relay.ReportedText, "%"); n > 0 &&
		(strings.Count(cfg.Relay.ReportedText, "%s") != 1 || n != 1) {
		errs = append(errs, "relay.reportedText may contain exactly one %s and no other verbs")
	}
	if u := cfg.Telegram.WebhookURL; u != "" {
		if parsed, err := url.Parse(u); err == nil && parsed.Scheme != "https" {
			errs = append(errs, "telegram.webhookUrl must use https")
		}
	}
	if cfg.Service.Analysis.Enabled && cfg.Service.Strategy != "vision" {
		errs = append(errs, "service.analysis.enabled requires strategy \"vision\"")
	}
	if cfg.HTTP.PipelineTimeoutSeconds < cfg.HTTP.TimeoutSeconds {
		errs = append(errs, "http.pipelineTimeoutSeconds must be >= http.timeoutSeconds")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Ready reports what is still missing before the relay can run: the bot
// token, an endpoint for strategies that have no default, and the keys of
// the hosted APIs in use.
func Ready(cfg *Config) error {
	var errs []string
	if cfg.Telegram.Token == "" {
		errs = append(errs, "telegram.token is required (or set "+EnvPrefix+"TELEGRAM_TOKEN)")
	}
	switch cfg.Service.Strategy {
	case "url", "multipart":
		if cfg.Service.Endpoint == "" {
			errs = append(errs, fmt.Sprintf("service.endpoint is required for strategy %q", cfg.Service.Strategy))
		}
	case "vision":
		if cfg.Service.APIKey == "" {
			errs = append(errs, "service.apiKey is required for strategy \"vision\"")
		}
	}
	if cfg.Service.Analysis.Enabled && cfg.Service.Analysis.APIKey == "" {
		errs = append(errs, "service.analysis.apiKey is required when analysis is enabled")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config incomplete:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func describe(fe validator.FieldError) string {
	// Namespace is Config.telegram.apiBase; drop the root type.
	path := fe.Namespace()
	if _, rest, ok := strings.Cut(path, "."); ok {
		path = rest
	}
	switch fe.Tag() {
	case "required":
		return path + " is required"
	case "url":
		return path + " must be a valid URL"
	case "email":
		return path + " must be a valid email address"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", path, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		return fmt.Sprintf("%s must be >= %s", path, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be <= %s", path, fe.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", path, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", path, fe.Tag())
	}
}
