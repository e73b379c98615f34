package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port 0")
	}

	cfg.Server.Port = 70000
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "server.port must be <= 65535") {
		t.Fatalf("expected json-named port error, got %v", err)
	}
}

func TestValidate_Strategy(t *testing.T) {
	for _, s := range []string{"url", "multipart", "vision"} {
		cfg := Defaults()
		cfg.Service.Strategy = s
		if err := Validate(cfg); err != nil {
			t.Fatalf("strategy %q should be valid: %v", s, err)
		}
	}

	cfg := Defaults()
	cfg.Service.Strategy = "ftp"
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "service.strategy must be one of") {
		t.Fatalf("expected strategy error, got %v", err)
	}
}

func TestValidate_MediaKinds(t *testing.T) {
	cfg := Defaults()
	cfg.Media.Kinds = []string{"photo", "video"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("known kinds should be valid: %v", err)
	}
	cfg.Media.Kinds = []string{"sticker"}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown media kind")
	}
}

func TestValidate_URLs(t *testing.T) {
	cfg := Defaults()
	cfg.Service.Endpoint = "not a url"
	cfg.Telegram.WebhookURL = "http://relay.example/hook"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"service.endpoint must be a valid URL", "telegram.webhookUrl must use https"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %v", want, err)
		}
	}
}

func TestValidate_Recipient(t *testing.T) {
	cfg := Defaults()
	cfg.Service.Recipient = "ops@example.com"
	if err := Validate(cfg); err != nil {
		t.Fatalf("valid email rejected: %v", err)
	}
	cfg.Service.Recipient = "nobody"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for invalid recipient")
	}
}

func TestValidate_Timeouts(t *testing.T) {
	cfg := Defaults()
	cfg.HTTP.TimeoutSeconds = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for timeout 0")
	}

	cfg = Defaults()
	cfg.HTTP.PipelineTimeoutSeconds = 10
	if err := Validate(cfg); err == nil {
		t.Fatal("pipeline timeout shorter than the call timeout must be rejected")
	}

	cfg = Defaults()
	cfg.HTTP.Retries = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative retries")
	}
}

func TestValidate_WorkerPool(t *testing.T) {
	cfg := Defaults()
	cfg.Dispatcher.Workers = 0
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "dispatcher.workers must be >= 1") {
		t.Fatalf("expected workers error, got %v", err)
	}
	cfg = Defaults()
	cfg.Dispatcher.QueueSize = 20000
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "dispatcher.queueSize must be <= 10000") {
		t.Fatalf("expected queue size error, got %v", err)
	}
}

func TestValidate_AnalysisNeedsVision(t *testing.T) {
	cfg := Defaults()
	cfg.Service.Analysis.Enabled = true
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), `service.analysis.enabled requires strategy "vision"`) {
		t.Fatalf("expected strategy error, got %v", err)
	}
	cfg.Service.Strategy = "vision"
	if err := Validate(cfg); err != nil {
		t.Fatalf("analysis with vision should be valid: %v", err)
	}
	cfg.Service.Analysis.Model = ""
	cfg.Service.Analysis.MaxTokens = -1
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "service.analysis.model is required") ||
		!strings.Contains(err.Error(), "service.analysis.maxTokens must be >= 0") {
		t.Fatalf("expected model and maxTokens errors, got %v", err)
	}
}

func TestValidate_ReportedText(t *testing.T) {
	cfg := Defaults()
	cfg.Relay.ReportedText = "Service said: %s"
	if err := Validate(cfg); err != nil {
		t.Fatalf("single %%s should be valid: %v", err)
	}
	cfg.Relay.ReportedText = "%d errors: %s"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for extra verbs")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -1
	cfg.General.LogLevel = "loud"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "server.port") || !strings.Contains(err.Error(), "general.logLevel") {
		t.Fatalf("both problems should be reported: %v", err)
	}
}

// --- Ready ---

func TestReady(t *testing.T) {
	cfg := Defaults()
	err := Ready(cfg)
	if err == nil {
		t.Fatal("defaults lack token and endpoint")
	}
	if !strings.Contains(err.Error(), "telegram.token") || !strings.Contains(err.Error(), "service.endpoint") {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.Telegram.Token = "123:abc"
	cfg.Service.Endpoint = "https://svc.example/ocr"
	if err := Ready(cfg); err != nil {
		t.Fatalf("expected ready: %v", err)
	}

	cfg.Service.Strategy = "vision"
	cfg.Service.Endpoint = ""
	if err := Ready(cfg); err == nil || !strings.Contains(err.Error(), "apiKey") {
		t.Fatalf("vision needs an api key: %v", err)
	}

	cfg.Service.APIKey = "vision-key"
	cfg.Service.Analysis.Enabled = true
	if err := Ready(cfg); err == nil || !strings.Contains(err.Error(), "service.analysis.apiKey") {
		t.Fatalf("analysis needs an api key: %v", err)
	}
	cfg.Service.Analysis.APIKey = "sk-analysis"
	if err := Ready(cfg); err != nil {
		t.Fatalf("expected ready: %v", err)
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTripYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	original := Defaults()
	original.Service.Strategy = "multipart"
	original.Service.Endpoint = "https://svc.example/translate"
	original.Media.Kinds = []string{"video"}

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config should be owner-only, got %v", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Service.Strategy != "multipart" || loaded.Service.Endpoint != "https://svc.example/translate" {
		t.Fatalf("service not preserved: %+v", loaded.Service)
	}
	if len(loaded.Media.Kinds) != 1 || loaded.Media.Kinds[0] != "video" {
		t.Fatalf("kinds not preserved: %v", loaded.Media.Kinds)
	}
}

func TestLoadSave_RoundTripJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	original := Defaults()
	original.HTTP.Retries = 2
	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
		t.Fatalf("expected JSON output, got %q", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.HTTP.Retries != 2 {
		t.Fatalf("expected retries 2, got %d", loaded.HTTP.Retries)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := "service:\n  strategy: vision\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service.Strategy != "vision" {
		t.Fatalf("expected vision, got %q", cfg.Service.Strategy)
	}
	if cfg.HTTP.TimeoutSeconds != 45 || cfg.Service.Language != "en" {
		t.Fatalf("defaults lost: %+v %+v", cfg.HTTP, cfg.Service)
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 99999\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoad_WithEnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_RELAY_ENDPOINT", "https://svc.example/ocr")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "service:\n  endpoint: ${TEST_RELAY_ENDPOINT}\n  language: ${TEST_RELAY_LANG_UNSET:-fr}\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Service.Endpoint != "https://svc.example/ocr" {
		t.Fatalf("unexpected endpoint %q", cfg.Service.Endpoint)
	}
	if cfg.Service.Language != "fr" {
		t.Fatalf("unexpected language %q", cfg.Service.Language)
	}
}

// --- environment overrides ---

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv("MEDIARELAY_TELEGRAM_TOKEN", "123:env")
	t.Setenv("MEDIARELAY_SERVICE_STRATEGY", "multipart")
	t.Setenv("MEDIARELAY_HTTP_RETRIES", "3")
	t.Setenv("MEDIARELAY_MEDIA_KINDS", "photo,document")
	t.Setenv("MEDIARELAY_DISPATCHER_ACKNOWLEDGE", "true")
	t.Setenv("MEDIARELAY_SERVICE_ANALYSIS_ENABLED", "true")
	t.Setenv("MEDIARELAY_SERVICE_ANALYSIS_MODEL", "llama3")

	cfg := Defaults()
	cfg.Telegram.Token = "from-file"
	if err := ApplyEnv(cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "123:env" {
		t.Errorf("token: %q", cfg.Telegram.Token)
	}
	if cfg.Service.Strategy != "multipart" || cfg.HTTP.Retries != 3 || !cfg.Dispatcher.Acknowledge {
		t.Errorf("overrides not applied: %+v %+v %+v", cfg.Service, cfg.HTTP, cfg.Dispatcher)
	}
	if !cfg.Service.Analysis.Enabled || cfg.Service.Analysis.Model != "llama3" {
		t.Errorf("nested analysis overrides not applied: %+v", cfg.Service.Analysis)
	}
	if len(cfg.Media.Kinds) != 2 || cfg.Media.Kinds[1] != "document" {
		t.Errorf("kinds: %v", cfg.Media.Kinds)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("unset variables must not reset fields, port=%d", cfg.Server.Port)
	}
}

func TestApplyEnv_LegacyToken(t *testing.T) {
	t.Setenv("telegram_token", "123:legacy")

	cfg := Defaults()
	if err := ApplyEnv(cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "123:legacy" {
		t.Fatalf("legacy token not used: %q", cfg.Telegram.Token)
	}

	cfg = Defaults()
	cfg.Telegram.Token = "from-file"
	_ = ApplyEnv(cfg)
	if cfg.Telegram.Token != "from-file" {
		t.Fatal("legacy variable must not override a configured token")
	}
}

func TestApplyEnv_BadValue(t *testing.T) {
	t.Setenv("MEDIARELAY_SERVER_PORT", "eighty")
	if err := ApplyEnv(Defaults()); err == nil {
		t.Fatal("expected parse error")
	}
}

// --- accessors ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()
	v, err := GetByPath(cfg, "service.strategy")
	if err != nil {
		t.Fatal(err)
	}
	if v != "url" {
		t.Fatalf("expected url, got %v", v)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	if _, err := GetByPath(Defaults(), "service.nonexistent"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSetByPath_Conversions(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "dispatcher.acknowledge", "true"); err != nil {
		t.Fatal(err)
	}
	if err := SetByPath(cfg, "server.port", "9000"); err != nil {
		t.Fatal(err)
	}
	if err := SetByPath(cfg, "media.kinds", `["photo"]`); err != nil {
		t.Fatal(err)
	}
	if err := SetByPath(cfg, "service.analysis.enabled", "true"); err != nil {
		t.Fatal(err)
	}
	if err := SetByPath(cfg, "service.analysis.prompt", "Summarize the report."); err != nil {
		t.Fatal(err)
	}
	if !cfg.Dispatcher.Acknowledge || cfg.Server.Port != 9000 || len(cfg.Media.Kinds) != 1 {
		t.Fatalf("values not applied: %+v %+v %+v", cfg.Dispatcher, cfg.Server, cfg.Media)
	}
	if !cfg.Service.Analysis.Enabled || cfg.Service.Analysis.Prompt != "Summarize the report." {
		t.Fatalf("analysis values not applied: %+v", cfg.Service.Analysis)
	}
}

func TestSetByPath_NumericString(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "telegram.webhookSecret", "123456"); err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.WebhookSecret != "123456" {
		t.Fatalf("got %q", cfg.Telegram.WebhookSecret)
	}
}

func TestSetByPath_Rejects(t *testing.T) {
	cfg := Defaults()
	for _, path := range []string{"", "service", "nosuch.key", "service.nosuch"} {
		if err := SetByPath(cfg, path, "x"); err == nil {
			t.Errorf("expected error for %q", path)
		}
	}
}

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Telegram.Token = "123456789:ABCDEFGHIJKLMNOP"
	cfg.Telegram.WebhookSecret = "hook-secret"
	cfg.Service.APIKey = "short"
	cfg.Service.Analysis.APIKey = "sk-proj-0123456789"

	s := Sanitize(cfg)
	if s.Telegram.Token != "1234****MNOP" {
		t.Errorf("token not masked: %q", s.Telegram.Token)
	}
	if s.Telegram.WebhookSecret != "***" || s.Service.APIKey != "***" {
		t.Errorf("secrets not masked: %q %q", s.Telegram.WebhookSecret, s.Service.APIKey)
	}
	if s.Service.Analysis.APIKey != "sk-p****6789" {
		t.Errorf("analysis key not masked: %q", s.Service.Analysis.APIKey)
	}
	if cfg.Telegram.Token != "123456789:ABCDEFGHIJKLMNOP" {
		t.Error("original must not be modified")
	}
}

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	paths := ListPaths(Defaults())
	for _, want := range []string{"general.logLevel", "telegram.apiBase", "http.timeoutSeconds", "service.strategy", "server.port"} {
		if _, ok := paths[want]; !ok {
			t.Errorf("missing path %q", want)
		}
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-abc123")
	t.Setenv("MY_PORT", "9090")
	t.Setenv("EMPTY_VAR", "")
	os.Unsetenv("TOTALLY_UNSET_VAR_XYZ")

	tests := []struct {
		in, want string
	}{
		{`apiKey: ${TEST_API_KEY}`, `apiKey: sk-abc123`},
		{`port: ${TOTALLY_UNSET_VAR_XYZ:-8080}`, `port: 8080`},
		{`port: ${MY_PORT:-8080}`, `port: 9090`},
		{`${TEST_API_KEY}:${MY_PORT}`, `sk-abc123:9090`},
		{`${TOTALLY_UNSET_VAR_XYZ}`, `${TOTALLY_UNSET_VAR_XYZ}`},
		{`${EMPTY_VAR:-fallback}`, `fallback`},
		{`${TOTALLY_UNSET_VAR_XYZ:-}`, ``},
		{`$HOME is not substituted`, `$HOME is not substituted`},
	}
	for _, tt := range tests {
		if got := ExpandEnvVars(tt.in); got != tt.want {
			t.Errorf("ExpandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// --- Defaults ---

func TestDefaults_ReturnsValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	if cfg.HTTP.Retries != 0 {
		t.Fatal("retries must be disabled by default")
	}
	if cfg.HTTP.Timeout().Seconds() != 45 {
		t.Fatalf("unexpected default timeout %v", cfg.HTTP.Timeout())
	}
	if cfg.Dispatcher.Acknowledge {
		t.Fatal("acknowledgment must be off by default")
	}
}
