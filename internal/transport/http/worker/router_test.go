package workerhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"signalrelay/internal/command"
	"signalrelay/internal/pkg/errs"
	"signalrelay/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandler embeds command.Handler so tests only stub what they call.
type fakeHandler struct {
	command.Handler
	markSentErr error
	lastLimit   int
	lastWorker  string
}

func (f *fakeHandler) MarkSent(_ context.Context, cmd command.MarkSent) (command.Reply, error) {
	if f.markSentErr != nil {
		return nil, f.markSentErr
	}
	return command.Reply{"success": true, "id": cmd.MessageID}, nil
}

func (f *fakeHandler) GetPendingMessages(_ context.Context, cmd command.GetPendingMessages) (command.Reply, error) {
	f.lastLimit = cmd.Limit
	f.lastWorker = cmd.WorkerID
	return command.Reply{"messages": []string{}}, nil
}

func (f *fakeHandler) TriggerAutoSell(context.Context, command.TriggerAutoSell) (command.Reply, error) {
	return command.Reply{"success": false, "error": "Sell already pending"}, nil
}

type observed struct {
	actions []string
	codes   []int
}

func (o *observed) ObserveHTTP(action string, code int, _ float64) {
	o.actions = append(o.actions, action)
	o.codes = append(o.codes, code)
}

func newTestServer(t *testing.T, h command.Handler, obs Observer) http.Handler {
	t.Helper()
	srv, err := NewServer(ServerConfig{
		APIKey:   "s3cret",
		Handler:  h,
		Observer: obs,
		Metrics:  http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok_metric 1\n")) }),
	})
	require.NoError(t, err)
	return srv.Handler()
}

func post(t *testing.T, h http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/worker", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

var bearer = map[string]string{"Authorization": "Bearer s3cret"}

func TestAuthentication(t *testing.T) {
	h := newTestServer(t, &fakeHandler{}, nil)
	body := `{"action":"mark_sent","data":{"message_id":"m1"}}`

	cases := []struct {
		name    string
		headers map[string]string
		code    int
	}{
		{name: "missing", code: http.StatusUnauthorized},
		{name: "wrong bearer", headers: map[string]string{"Authorization": "Bearer nope"}, code: http.StatusUnauthorized},
		{name: "prefix of key", headers: map[string]string{"X-Worker-Key": "s3c"}, code: http.StatusUnauthorized},
		{name: "basic scheme", headers: map[string]string{"Authorization": "Basic s3cret"}, code: http.StatusUnauthorized},
		{name: "bearer", headers: bearer, code: http.StatusOK},
		{name: "worker key header", headers: map[string]string{"X-Worker-Key": "s3cret"}, code: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, post(t, h, body, tc.headers).Code)
		})
	}
}

func TestEmptyKeyRejectsEveryone(t *testing.T) {
	srv, err := NewServer(ServerConfig{Handler: &fakeHandler{}})
	require.NoError(t, err)
	rec := post(t, srv.Handler(), `{"action":"mark_sent","data":{"message_id":"m1"}}`, map[string]string{"X-Worker-Key": ""})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{name: "not found", err: fmt.Errorf("mark sent: %w", store.ErrNotFound), code: http.StatusNotFound, msg: "not found"},
		{name: "conflict", err: fmt.Errorf("mark sent: %w", store.ErrInvalidTransition), code: http.StatusConflict, msg: "invalid state transition"},
		{name: "invalid", err: errs.InvalidField("message_id", "bad"), code: http.StatusBadRequest},
		{name: "internal", err: fmt.Errorf("mark sent: %w", errors.New("disk I/O error")), code: http.StatusInternalServerError, msg: "mark sent: disk I/O error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestServer(t, &fakeHandler{markSentErr: tc.err}, nil)
			rec := post(t, h, `{"action":"mark_sent","data":{"message_id":"m1"}}`, bearer)
			assert.Equal(t, tc.code, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			if tc.msg != "" {
				assert.Equal(t, tc.msg, body["error"])
			} else {
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestBadRequests(t *testing.T) {
	obs := &observed{}
	h := newTestServer(t, &fakeHandler{}, obs)

	rec := post(t, h, `{"action":"drop_tables","data":{}}`, bearer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "unknown action")

	rec = post(t, h, `{"action":"mark_sent","data":{}}`, bearer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, h, `not json`, bearer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, []string{"unknown", "mark_sent", "unknown"}, obs.actions)
	assert.Equal(t, []int{400, 400, 400}, obs.codes)
}

func TestSoftFailureIsStillOK(t *testing.T) {
	h := newTestServer(t, &fakeHandler{}, nil)
	rec := post(t, h, `{"action":"trigger_auto_sell","data":{"trade_id":"t1","percentage":100}}`, bearer)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Sell already pending", decodeBody(t, rec)["error"])
}

func TestGetReadActions(t *testing.T) {
	fh := &fakeHandler{}
	h := newTestServer(t, fh, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/worker?action=get_pending_messages&limit=7&worker_id=tg-1", nil)
	req.Header.Set("X-Worker-Key", "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, fh.lastLimit)
	assert.Equal(t, "tg-1", fh.lastWorker)

	req = httptest.NewRequest(http.MethodGet, "/api/worker?action=mark_sent&message_id=m1", nil)
	req.Header.Set("X-Worker-Key", "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "requires POST")
}

func TestHealthAndMetricsAreOpen(t *testing.T) {
	h := newTestServer(t, &fakeHandler{}, nil)
	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
