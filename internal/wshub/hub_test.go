package wshub

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newClient(id string, buf int) *Client {
	return &Client{ID: id, Send: make(chan []byte, buf)}
}

func decode(t *testing.T, data []byte) (string, map[string]any) {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var payload map[string]any
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			t.Fatalf("unmarshal data: %v", err)
		}
	}
	return env.Event, payload
}

func TestRegisterAndBroadcast(t *testing.T) {
	h := NewHub(zap.NewNop())

	c1 := newClient("c1", 16)
	c2 := newClient("c2", 16)
	h.Register(c1)
	h.Register(c2)

	h.Broadcast("playerStats", map[string]int{"inQueue": 1, "inMatch": 2})

	for _, c := range []*Client{c1, c2} {
		select {
		case data := <-c.Send:
			event, payload := decode(t, data)
			if event != "playerStats" {
				t.Errorf("event = %q, want %q", event, "playerStats")
			}
			if payload["inMatch"] != float64(2) {
				t.Errorf("inMatch = %v, want 2", payload["inMatch"])
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("%s did not receive message", c.ID)
		}
	}
}

func TestSend(t *testing.T) {
	h := NewHub(zap.NewNop())
	c1 := newClient("c1", 16)
	c2 := newClient("c2", 16)
	h.Register(c1)
	h.Register(c2)

	if !h.Send("c1", "partnerSubmitted", nil) {
		t.Fatal("Send() = false, want true")
	}

	select {
	case data := <-c1.Send:
		event, _ := decode(t, data)
		if event != "partnerSubmitted" {
			t.Errorf("event = %q, want %q", event, "partnerSubmitted")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("c1 did not receive message")
	}

	select {
	case <-c2.Send:
		t.Fatal("c2 should not receive c1's message")
	default:
	}
}

func TestSendUnknownIsNoop(t *testing.T) {
	h := NewHub(zap.NewNop())
	if h.Send("ghost", "roundStart", nil) {
		t.Error("Send() to unknown id = true, want false")
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	h := NewHub(zap.NewNop())
	c1 := newClient("c1", 16)
	h.Register(c1)
	h.Join("spectate:ABC123", "c1")

	h.Unregister("c1")

	if _, ok := <-c1.Send; ok {
		t.Fatal("c1.Send should be closed")
	}
	if h.IsLive("c1") {
		t.Error("IsLive() = true after Unregister")
	}
	// Unregistering twice must not panic on the closed channel.
	h.Unregister("c1")

	// A later client reusing the id starts outside the channel.
	again := newClient("c1", 16)
	h.Register(again)
	h.BroadcastChannel("spectate:ABC123", "spectatorRoundStart", nil)
	select {
	case msg := <-again.Send:
		t.Errorf("unexpected channel message %s", msg)
	default:
	}
}

func TestChannels(t *testing.T) {
	h := NewHub(zap.NewNop())
	c1 := newClient("c1", 16)
	c2 := newClient("c2", 16)
	h.Register(c1)
	h.Register(c2)

	h.Join("spectate:S", "c1")
	h.Join("spectate:S", "ghost")
	h.BroadcastChannel("spectate:S", "spectatorUpdate", map[string]string{"sessionId": "S"})

	select {
	case data := <-c1.Send:
		event, payload := decode(t, data)
		if event != "spectatorUpdate" || payload["sessionId"] != "S" {
			t.Errorf("got %s %v", event, payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("c1 did not receive channel message")
	}
	select {
	case <-c2.Send:
		t.Fatal("c2 is not in the channel")
	default:
	}

	h.Leave("spectate:S", "c1")
	h.Leave("spectate:S", "c1")
	h.BroadcastChannel("spectate:S", "spectatorUpdate", nil)
	select {
	case <-c1.Send:
		t.Fatal("c1 left the channel")
	default:
	}
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	h := NewHub(zap.NewNop())

	c1 := newClient("c1", 1)
	h.Register(c1)

	h.Broadcast("playerStats", nil)

	done := make(chan struct{})
	go func() {
		h.Broadcast("playerStats", nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Broadcast blocked on full channel")
	}
}

func TestEncodeNilData(t *testing.T) {
	b, err := Encode("rematchStarting", nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"event":"rematchStarting","data":{}}` {
		t.Errorf("Encode() = %s", b)
	}
}
