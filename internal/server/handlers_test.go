package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"guessduel/internal/broadcast"
	"guessduel/internal/events"
	"guessduel/internal/gateway"
	"guessduel/internal/images"
	"guessduel/internal/match"
	"guessduel/internal/matchmaking"
	"guessduel/internal/metrics"
	"guessduel/internal/rooms"
	"guessduel/internal/scoring"
	"guessduel/internal/wshub"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := prometheus.NewRegistry()
	hub := wshub.NewHub(zap.NewNop())
	roomStore := rooms.NewStore(zap.NewNop())
	bus := events.NewBus()
	gw := gateway.New(ctx, gateway.Config{
		Hub:         hub,
		Queue:       matchmaking.NewQueue(),
		Rooms:       roomStore,
		Images:      images.NewCatalog(images.Image{ID: "1", URL: "u/1", Answer: scoring.Coordinate{X: 0.5, Y: 0.5}}),
		Bus:         bus,
		Metrics:     metrics.New(reg),
		Logger:      zap.NewNop(),
		RevealDelay: 10 * time.Millisecond,
	})
	t.Cleanup(gw.Close)

	srv := &Server{
		Gateway:   gw,
		Hub:       hub,
		Rooms:     roomStore,
		Stats:     broadcast.NewBroadcaster(ctx, bus, gw.Snapshot, hub, zap.NewNop()),
		Log:       zap.NewNop(),
		PublicURL: "https://duel.example.com/",
		Started:   time.Now(),
	}
	ts := httptest.NewServer(newRouter(srv, reg))
	t.Cleanup(ts.Close)
	return srv, ts
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)

	var body map[string]any
	resp := getJSON(t, ts.URL+"/health", &body)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if _, ok := body["uptime"]; !ok {
		t.Error("missing uptime")
	}
	if _, ok := body["timestamp"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestMatchesAndQR(t *testing.T) {
	srv, ts := newTestServer(t)

	var list []map[string]any
	getJSON(t, ts.URL+"/api/matches", &list)
	assert.Empty(t, list)

	resp := getJSON(t, ts.URL+"/api/matches/NOPE00/qr", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	room, err := srv.Rooms.Create(context.Background(), "a", "b", matchOptions())
	require.NoError(t, err)

	resp, err = http.Get(ts.URL + "/api/matches/" + room.Code + "/qr")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	png, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.HasPrefix(string(png), "\x89PNG"), "body should be a PNG")

	// Not started, so not listed.
	getJSON(t, ts.URL+"/api/matches", &list)
	assert.Empty(t, list)
}

func TestBaseURL(t *testing.T) {
	s := &Server{}
	r := httptest.NewRequest(http.MethodGet, "http://duel.local/api/matches/X/qr", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	if got := s.baseURL(r); got != "https://duel.local" {
		t.Errorf("baseURL() = %q, want %q", got, "https://duel.local")
	}

	s.PublicURL = "https://duel.example.com/"
	if got := s.baseURL(r); got != "https://duel.example.com" {
		t.Errorf("baseURL() = %q, want %q", got, "https://duel.example.com")
	}
}

func TestStatsAndMetrics(t *testing.T) {
	_, ts := newTestServer(t)

	var snap broadcast.Snapshot
	resp := getJSON(t, ts.URL+"/api/stats", &snap)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, broadcast.Snapshot{}, snap)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "guessduel_queue_depth")
}

func readEvent(t *testing.T, ctx context.Context, c *websocket.Conn) (string, map[string]any) {
	t.Helper()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var env wshub.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	payload := map[string]any{}
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	return env.Event, payload
}

func TestWebSocketQueueFlow(t *testing.T) {
	srv, ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	a, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer a.CloseNow()
	b, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer b.CloseNow()

	event, _ := readEvent(t, ctx, a)
	assert.Equal(t, gateway.EventPlayerStats, event)
	event, _ = readEvent(t, ctx, b)
	assert.Equal(t, gateway.EventPlayerStats, event)

	require.NoError(t, a.Write(ctx, websocket.MessageText, []byte(`{"event":"joinQueue","data":{}}`)))
	event, payload := readEvent(t, ctx, a)
	// A stats broadcast may arrive before the acknowledgement.
	for event == gateway.EventPlayerStats {
		event, payload = readEvent(t, ctx, a)
	}
	assert.Equal(t, gateway.EventQueueJoined, event)
	assert.NotEmpty(t, payload["message"])

	require.NoError(t, b.Write(ctx, websocket.MessageText, []byte(`{"event":"joinQueue"}`)))
	for {
		event, payload = readEvent(t, ctx, b)
		if event == gateway.EventQueueMatched {
			break
		}
	}
	assert.NotEmpty(t, payload["sessionId"])
	assert.Equal(t, 1, srv.Rooms.Count())

	a.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return srv.Hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func matchOptions() match.Options {
	return match.Options{Images: images.NewCatalog(images.Image{ID: "1", URL: "u/1"})}
}
