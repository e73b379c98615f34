package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mediarelay/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// chatServer answers /chat/completions with reply and records the request.
func chatServer(t *testing.T, status int, reply string, got *oaiRequest, auth *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		if got != nil {
			_ = json.NewDecoder(r.Body).Decode(got)
		}
		w.WriteHeader(status)
		io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestOpenAI(base, key string) *OpenAI {
	logger := testLogger()
	return NewOpenAI(OpenAIConfig{
		APIKey:    key,
		APIBase:   base + "/v1/",
		Model:     "gpt-test",
		MaxTokens: 256,
		Client:    transport.New(transport.Options{Logger: logger}),
		Logger:    logger,
	})
}

func TestOpenAI_Chat(t *testing.T) {
	var got oaiRequest
	var auth string
	srv := chatServer(t, http.StatusOK,
		`{"choices":[{"message":{"role":"assistant","content":"  Glucose is normal.\n"},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}}`,
		&got, &auth)

	out, err := newTestOpenAI(srv.URL, "sk-test").Chat(context.Background(), []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "Glucose 92 mg/dL"},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "Glucose is normal." {
		t.Errorf("unexpected content %q", out)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("unexpected Authorization %q", auth)
	}
	if got.Model != "gpt-test" || got.MaxTokens != 256 || got.Stream {
		t.Errorf("unexpected request %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[1].Content != "Glucose 92 mg/dL" {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
}

func TestOpenAI_NoKeyNoAuthHeader(t *testing.T) {
	auth := "unset"
	srv := chatServer(t, http.StatusOK, `{"choices":[]}`, nil, &auth)

	out, err := newTestOpenAI(srv.URL, "").Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "" {
		t.Errorf("expected empty content without choices, got %q", out)
	}
	if auth != "" {
		t.Errorf("Authorization should be absent, got %q", auth)
	}
}

func TestOpenAI_APIError(t *testing.T) {
	srv := chatServer(t, http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided"}}`, nil, nil)

	_, err := newTestOpenAI(srv.URL, "bad").Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Message != "Incorrect API key provided" {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestOpenAI_MalformedBody(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `<html>gateway</html>`, nil, nil)

	_, err := newTestOpenAI(srv.URL, "k").Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err == nil || !strings.Contains(err.Error(), "decode") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestOpenAI_Defaults(t *testing.T) {
	o := NewOpenAI(OpenAIConfig{})
	if o.apiBase != DefaultAPIBase || o.Model() != DefaultModel {
		t.Errorf("unexpected defaults: %s %s", o.apiBase, o.Model())
	}
}

type recordingChat struct {
	messages []Message
	reply    string
}

func (r *recordingChat) Chat(_ context.Context, messages []Message) (string, error) {
	r.messages = messages
	return r.reply, nil
}

func TestAnalyst_BuildsConversation(t *testing.T) {
	chat := &recordingChat{reply: "All values are within range."}
	out, err := NewAnalyst(chat, "").Analyze(context.Background(), "HbA1c 5.4%")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out != "All values are within range." {
		t.Errorf("unexpected output %q", out)
	}
	if len(chat.messages) != 2 {
		t.Fatalf("expected system and user messages, got %+v", chat.messages)
	}
	if chat.messages[0].Role != "system" || chat.messages[0].Content != DefaultPrompt {
		t.Errorf("unexpected system message %+v", chat.messages[0])
	}
	if chat.messages[1].Role != "user" || chat.messages[1].Content != "HbA1c 5.4%" {
		t.Errorf("unexpected user message %+v", chat.messages[1])
	}
}

func TestAnalyst_CustomPromptAndEmptyText(t *testing.T) {
	chat := &recordingChat{}
	a := NewAnalyst(chat, "Summarize.")
	if _, err := a.Analyze(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty text")
	}
	if chat.messages != nil {
		t.Fatal("empty text must not reach the model")
	}
	if _, err := a.Analyze(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	if chat.messages[0].Content != "Summarize." {
		t.Errorf("custom prompt not used: %+v", chat.messages[0])
	}
}
