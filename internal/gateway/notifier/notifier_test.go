package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"signalrelay/internal/store/model"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func fastTelegram(url string) *Telegram {
	t := NewTelegram(url, "token", "42")
	t.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return t
}

func TestTelegramRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottoken/sendMessage", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "42", body["chat_id"])
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, fastTelegram(srv.URL).SendText(context.Background(), "hello"))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestTelegramGivesUpAfterThreeTries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	assert.Error(t, fastTelegram(srv.URL).SendText(context.Background(), "hello"))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestTelegramDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	assert.Error(t, fastTelegram(srv.URL).SendText(context.Background(), "hello"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestTelegramRequiresConfig(t *testing.T) {
	assert.ErrorIs(t, NewTelegram("", "", "").SendText(context.Background(), "x"), errTelegramConfig)
}

func TestRenderMarkdown(t *testing.T) {
	msg := StructuredMessage{
		Icon:  "⚠️",
		Title: "Delivery retries exhausted",
		Sections: []MessageSection{
			{Title: "Message", Lines: []string{Field("ID", "m1"), Field("Error", "")}},
			{Title: "Empty", Lines: []string{"  "}},
			{Title: "Preview", Lines: []string{"look ```here```"}},
		},
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	out := msg.RenderMarkdown()
	assert.True(t, strings.HasPrefix(out, "⚠️ Delivery retries exhausted\n\n```\nMessage\n- ID: m1\n"))
	assert.NotContains(t, out, "Error:")
	assert.NotContains(t, out, "Empty")
	assert.Contains(t, out, "- look '''here'''")
	assert.True(t, strings.HasSuffix(out, "Time: 2024-05-01 12:00:00 UTC"))
}

func TestRenderMarkdownTruncates(t *testing.T) {
	msg := StructuredMessage{Title: "x", Footer: strings.Repeat("é", maxStructuredMessageLen*2)}
	out := msg.RenderMarkdown()
	assert.Equal(t, maxStructuredMessageLen+3, len([]rune(out)))
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendText(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func TestAlerterFormatsFailures(t *testing.T) {
	n := new(mockNotifier)
	a := NewAlerter(n)
	a.sync = true
	a.now = func() time.Time { return time.Unix(0, 0) }

	n.On("SendText", mock.Anything, mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "Delivery retries exhausted") &&
			strings.Contains(text, "ID: m1") && strings.Contains(text, "Retries: 3")
	})).Return(nil).Once()
	n.On("SendText", mock.Anything, mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "Trade failed") &&
			strings.Contains(text, "Asset: 0xabc (evm)")
	})).Return(assert.AnError).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.MessageExhausted(ctx, model.QueuedMessageModel{ID: "m1", ChannelID: "c1", RetryCount: 3, MessageText: "hi"})
	a.TradeFailed(ctx, model.TradeModel{ID: "t1", ContractAddress: "0xabc", Chain: "evm"})
	n.AssertExpectations(t)
}
