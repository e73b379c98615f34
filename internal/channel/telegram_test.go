package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"mediarelay/internal/domain"
	"mediarelay/internal/transport"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "123:TOKEN"

// fakeBotAPI answers getMe and sendMessage. failSends makes the first N
// sendMessage calls return ok=false.
type fakeBotAPI struct {
	mu        sync.Mutex
	failSends int
	sent      []string
	chats     []string
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/bot"+testToken+"/getMe"):
		fmt.Fprint(w, `{"ok":true,"result":{"id":99,"is_bot":true,"first_name":"relay","username":"relay_bot"}}`)
	case strings.HasSuffix(r.URL.Path, "/bot"+testToken+"/sendMessage"):
		_ = r.ParseForm()
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failSends > 0 {
			f.failSends--
			fmt.Fprint(w, `{"ok":false,"error_code":500,"description":"Internal Server Error"}`)
			return
		}
		f.sent = append(f.sent, r.PostForm.Get("text"))
		f.chats = append(f.chats, r.PostForm.Get("chat_id"))
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
	}
}

func newTestTelegram(t *testing.T, api *fakeBotAPI, retries int) *Telegram {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	client := transport.NewWithHTTPClient(srv.Client(), transport.Options{Retries: retries, Logger: testWebhookLogger()})
	tg, err := NewTelegram(TelegramConfig{Token: testToken, APIBase: srv.URL, Client: client, Logger: testWebhookLogger()})
	require.NoError(t, err)
	tg.backoff = time.Millisecond
	return tg
}

func TestNewTelegram_RequiresToken(t *testing.T) {
	_, err := NewTelegram(TelegramConfig{})
	require.Error(t, err)
}

func TestNewTelegram_GetMe(t *testing.T) {
	tg := newTestTelegram(t, &fakeBotAPI{}, 0)
	assert.Equal(t, "relay_bot", tg.Username())
}

func TestNewTelegram_BadTokenHidden(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewTelegram(TelegramConfig{Token: "999:WRONG", APIBase: srv.URL, Logger: testWebhookLogger()})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "999:WRONG")
}

func TestTelegram_Send(t *testing.T) {
	api := &fakeBotAPI{}
	tg := newTestTelegram(t, api, 0)

	require.NoError(t, tg.Send(context.Background(), 42, "hello"))
	assert.Equal(t, []string{"hello"}, api.sent)
	assert.Equal(t, []string{"42"}, api.chats)
}

func TestTelegram_SendChunksLongText(t *testing.T) {
	api := &fakeBotAPI{}
	tg := newTestTelegram(t, api, 0)

	text := strings.Repeat("a", telegramMaxMsgLen+10)
	require.NoError(t, tg.Send(context.Background(), 42, text))
	require.Len(t, api.sent, 2)
	assert.Equal(t, text, api.sent[0]+api.sent[1])
}

func TestTelegram_SendRetries(t *testing.T) {
	api := &fakeBotAPI{failSends: 1}
	tg := newTestTelegram(t, api, 1)

	require.NoError(t, tg.Send(context.Background(), 42, "hello"))
	assert.Equal(t, []string{"hello"}, api.sent)
}

func TestTelegram_SendNoRetryByDefault(t *testing.T) {
	api := &fakeBotAPI{failSends: 1}
	tg := newTestTelegram(t, api, 0)

	err := tg.Send(context.Background(), 42, "hello")
	require.Error(t, err)
	assert.Empty(t, api.sent)
	assert.NotContains(t, err.Error(), testToken)
}

func TestFromTelegram_Photo(t *testing.T) {
	in, ok := FromTelegram(tgbotapi.Update{
		UpdateID: 5,
		Message: &tgbotapi.Message{
			Chat:    &tgbotapi.Chat{ID: 42},
			From:    &tgbotapi.User{ID: 7},
			Caption: " a caption ",
			Photo: []tgbotapi.PhotoSize{
				{FileID: "small", Width: 90, Height: 90, FileSize: 100},
				{FileID: "large", Width: 800, Height: 800, FileSize: 9000},
			},
		},
	})
	require.True(t, ok)
	assert.Equal(t, 5, in.ID)
	assert.Equal(t, domain.UpdateMedia, in.Kind)
	assert.Equal(t, int64(42), in.ChatID)
	assert.Equal(t, int64(7), in.SenderID)
	assert.Equal(t, "a caption", in.Text)
	require.Len(t, in.Photos, 2)
	assert.Equal(t, "large", in.Photos[1].FileID)
	assert.Equal(t, int64(9000), in.Photos[1].FileSize)
}

func TestFromTelegram_DocumentAndVideo(t *testing.T) {
	in, ok := FromTelegram(tgbotapi.Update{
		Message: &tgbotapi.Message{
			Chat:     &tgbotapi.Chat{ID: 1},
			Document: &tgbotapi.Document{FileID: "doc", FileName: "scan.pdf", MimeType: "application/pdf", FileSize: 10},
			Video:    &tgbotapi.Video{FileID: "vid", FileName: "clip.mp4", MimeType: "video/mp4", Width: 640, Height: 360},
		},
	})
	require.True(t, ok)
	require.NotNil(t, in.Document)
	assert.Equal(t, domain.MediaDocument, in.Document.Kind)
	assert.Equal(t, "scan.pdf", in.Document.FileName)
	require.NotNil(t, in.Video)
	assert.Equal(t, domain.MediaVideo, in.Video.Kind)
	assert.Equal(t, 640, in.Video.Width)
}

func TestFromTelegram_ChannelPost(t *testing.T) {
	in, ok := FromTelegram(tgbotapi.Update{
		ChannelPost: &tgbotapi.Message{
			Chat:       &tgbotapi.Chat{ID: -100},
			SenderChat: &tgbotapi.Chat{ID: -100},
			Text:       "news",
		},
	})
	require.True(t, ok)
	assert.Equal(t, domain.UpdateChannelPost, in.Kind)
	assert.Equal(t, int64(-100), in.SenderID)
	assert.False(t, in.HasMedia())
}

func TestFromTelegram_Skipped(t *testing.T) {
	for name, u := range map[string]tgbotapi.Update{
		"empty":   {},
		"edited":  {EditedMessage: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, Text: "x"}},
		"no chat": {Message: &tgbotapi.Message{Text: "x"}},
	} {
		_, ok := FromTelegram(u)
		assert.False(t, ok, name)
	}
}

func TestSlogBotLogger_RedactsToken(t *testing.T) {
	var sb strings.Builder
	l := &slogBotLogger{log: newBufferLogger(&sb), token: testToken}
	l.Printf("Post %q: dial tcp", "https://api.telegram.org/bot"+testToken+"/getUpdates")
	assert.NotContains(t, sb.String(), testToken)
	assert.Contains(t, sb.String(), "***")
}

func newBufferLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, nil))
}
