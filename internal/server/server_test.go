package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/botkeeper/internal/core/domain"
	"github.com/vietddude/botkeeper/internal/core/scheduler"
	"github.com/vietddude/botkeeper/internal/core/session"
	"github.com/vietddude/botkeeper/internal/health"
)

type fakePool struct {
	mu           sync.Mutex
	handles      []*session.Handle
	added        []domain.Params
	addErr       error
	reconnectErr error
	reconnected  []string
}

func (p *fakePool) Sessions() []session.View {
	p.mu.Lock()
	defer p.mu.Unlock()
	views := make([]session.View, 0, len(p.handles))
	for _, h := range p.handles {
		views = append(views, h.View())
	}
	return views
}

func (p *fakePool) List() []*session.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*session.Handle(nil), p.handles...)
}

func (p *fakePool) Params() []domain.Params {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Params, 0, len(p.handles))
	for _, h := range p.handles {
		out = append(out, h.Params)
	}
	return out
}

func (p *fakePool) Add(_ context.Context, params domain.Params) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.addErr != nil {
		return "", p.addErr
	}
	p.added = append(p.added, params)
	return "bot_1700000000000", nil
}

func (p *fakePool) Delete(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, h := range p.handles {
		if h.ID == id {
			p.handles = append(p.handles[:i], p.handles[i+1:]...)
			return true
		}
	}
	return false
}

func (p *fakePool) Reconnect(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconnected = append(p.reconnected, id)
	return p.reconnectErr
}

func newTestServer(t *testing.T, pool *fakePool) (*httptest.Server, *Hub) {
	t.Helper()
	hub := NewHub()
	monitor := health.NewMonitor(pool, nil, "memory", clockwork.NewFakeClock())
	srv := NewServer(pool, monitor, hub, 0)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return ts, hub
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func onlineHandle(id string) *session.Handle {
	h := session.NewHandle(id, domain.Params{Host: "syd.retslav.net", Port: 10257, Identity: "retslav003"}, nil, nil)
	h.MarkOnline()
	h.SetVitals(20, 18)
	return h
}

func TestList(t *testing.T) {
	pool := &fakePool{handles: []*session.Handle{onlineHandle("bot_default_1")}}
	ts, _ := newTestServer(t, pool)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/bots", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []Session
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, []Session{{
		ID:       "bot_default_1",
		Host:     "syd.retslav.net",
		Port:     10257,
		Username: "retslav003",
		Status:   "online",
		Health:   20,
		Food:     18,
	}}, got)
}

func TestAdd(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		addErr error
		code   int
	}{
		{"ok", `{"host":"localhost","port":25565,"username":"tester"}`, nil, http.StatusOK},
		{"string port", `{"host":"localhost","port":"25565","username":"tester"}`, nil, http.StatusOK},
		{"non-numeric port", `{"host":"localhost","port":"abc","username":"tester"}`, nil, http.StatusBadRequest},
		{"missing username", `{"host":"localhost","port":25565}`, nil, http.StatusBadRequest},
		{"missing port", `{"host":"localhost","username":"tester"}`, nil, http.StatusBadRequest},
		{"port out of range", `{"host":"localhost","port":70000,"username":"tester"}`, nil, http.StatusBadRequest},
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"creation failure", `{"host":"localhost","port":25565,"username":"tester"}`, errors.New("dial refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := &fakePool{addErr: tt.addErr}
			ts, _ := newTestServer(t, pool)

			resp, body := do(t, http.MethodPost, ts.URL+"/api/bots", tt.body)
			assert.Equal(t, tt.code, resp.StatusCode, string(body))

			if tt.code == http.StatusOK {
				var res Result
				require.NoError(t, json.Unmarshal(body, &res))
				assert.True(t, res.Success)
				assert.Equal(t, "bot_1700000000000", res.ID)
				assert.Equal(t, []domain.Params{{Host: "localhost", Port: 25565, Identity: "tester"}}, pool.added)
			} else {
				var res ErrorResponse
				require.NoError(t, json.Unmarshal(body, &res))
				assert.NotEmpty(t, res.Error)
				assert.Empty(t, pool.added)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	pool := &fakePool{handles: []*session.Handle{onlineHandle("bot_1")}}
	ts, _ := newTestServer(t, pool)

	resp, _ := do(t, http.MethodDelete, ts.URL+"/api/bots/bot_1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, http.MethodDelete, ts.URL+"/api/bots/bot_1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "Bot not found")
}

func TestReconnect(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"ok", nil, http.StatusOK},
		{"unknown", scheduler.ErrNotFound, http.StatusNotFound},
		{"pending", scheduler.ErrPending, http.StatusConflict},
		{"recreate failed", errors.New("dial refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := &fakePool{reconnectErr: tt.err}
			ts, _ := newTestServer(t, pool)

			resp, _ := do(t, http.MethodPost, ts.URL+"/api/bots/bot_7/reconnect", "")
			assert.Equal(t, tt.code, resp.StatusCode)
			assert.Equal(t, []string{"bot_7"}, pool.reconnected)
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	failed := session.NewHandle("bot_1", domain.Params{Host: "h", Port: 1, Identity: "u"}, nil, nil)
	failed.MarkError("connect ECONNREFUSED")

	tests := []struct {
		name    string
		handles []*session.Handle
		code    int
		status  string
	}{
		{"healthy", []*session.Handle{onlineHandle("bot_1")}, http.StatusOK, "healthy"},
		{"critical", []*session.Handle{failed}, http.StatusServiceUnavailable, "critical"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := newTestServer(t, &fakePool{handles: tt.handles})

			resp, body := do(t, http.MethodGet, ts.URL+"/health", "")
			assert.Equal(t, tt.code, resp.StatusCode)
			assert.JSONEq(t, `{"status":"`+tt.status+`"}`, string(body))

			resp, body = do(t, http.MethodGet, ts.URL+"/health/detailed", "")
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, string(body), `"system_status":"`+tt.status+`"`)
		})
	}
}

func TestIndexAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t, &fakePool{})

	resp, body := do(t, http.MethodGet, ts.URL+"/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "<title>botkeeper</title>")

	resp, _ = do(t, http.MethodGet, ts.URL+"/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = do(t, http.MethodGet, ts.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestWebSocket_SnapshotThenTransitions(t *testing.T) {
	pool := &fakePool{handles: []*session.Handle{onlineHandle("bot_1")}}
	ts, hub := newTestServer(t, pool)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first struct {
		Type string    `json:"type"`
		Data []Session `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, MessageSnapshot, first.Type)
	require.Len(t, first.Data, 1)
	assert.Equal(t, "bot_1", first.Data[0].ID)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	hub.Publish(MessageTransition, TransitionData{ID: "bot_1", From: "online", To: "kicked", Reason: "banned"})

	var next struct {
		Type string         `json:"type"`
		Data TransitionData `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, MessageTransition, next.Type)
	assert.Equal(t, "kicked", next.Data.To)
	assert.Equal(t, "banned", next.Data.Reason)
}
