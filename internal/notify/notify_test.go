package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/config"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeSender struct {
	name string
	err  error
	sent []string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.sent = append(f.sent, title)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func TestNotifyFiltersEvents(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, []string{"order_submitted", " "}, discard())

	require.NoError(t, n.Notify(context.Background(), "order_submitted", "a", ""))
	require.NoError(t, n.Notify(context.Background(), "order_rejected", "b", ""))
	require.NoError(t, n.NotifyAll(context.Background(), "c", ""))
	assert.Equal(t, []string{"a", "c"}, s.sent)
}

func TestEmptyFilterAllowsAll(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, nil, discard())
	require.NoError(t, n.Notify(context.Background(), "anything", "a", ""))
	assert.Len(t, s.sent, 1)
}

func TestFailingSenderDoesNotStopOthers(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("down")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.Notify(context.Background(), "x", "title", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	assert.Len(t, good.sent, 1)
}

func TestFromConfig(t *testing.T) {
	assert.Nil(t, FromConfig(config.NotifyConfig{}, discard()))

	n := FromConfig(config.NotifyConfig{TelegramToken: "t", TelegramChatID: "c", DiscordWebhookURL: "http://x"}, discard())
	require.NotNil(t, n)
	require.Len(t, n.senders, 2)
	assert.Equal(t, "telegram", n.senders[0].Name())
	assert.Equal(t, "discord", n.senders[1].Name())
}

func TestTelegramSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.http.SetBaseURL(srv.URL)
	require.NoError(t, s.Send(context.Background(), "Fill", "bought 1 PLTR"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Fill*\nbought 1 PLTR", got["text"])
}

func TestDiscordErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}
