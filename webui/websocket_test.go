package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"livevlm/inference"
	"livevlm/telemetry"
)

func waitForClients(t *testing.T, b *Broadcaster, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client count = %d, want %d", b.ClientCount(), want)
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

func TestBroadcasterDeliversToConnectedClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBroadcaster(nil)
	go b.Start(ctx)

	srv := httptest.NewServer(http.HandlerFunc(b.HandleConnection))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitForClients(t, b, 1)

	b.BroadcastVLMResponse(inference.Result{Text: "a red truck", IsProcessing: false})

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeVLMResponse {
		t.Errorf("message type = %q, want %q", msg.Type, MessageTypeVLMResponse)
	}
	payload, _ := json.Marshal(msg.Data)
	var data VLMResponseData
	if err := json.Unmarshal(payload, &data); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if data.Response != "a red truck" {
		t.Errorf("response = %q", data.Response)
	}
}

func TestBroadcasterSendsInitialStateOnConnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	snap := telemetry.Snapshot{PlatformLabel: "nvml", AcceleratorName: "NVIDIA RTX"}
	cfg := DefaultBroadcasterConfig()
	cfg.InitialState = func() InitialData {
		return InitialData{
			Stats: &snap,
			VLM:   VLMResponseData{Response: "warming up"},
		}
	}
	b := NewBroadcasterWithConfig(cfg)
	go b.Start(ctx)

	srv := httptest.NewServer(http.HandlerFunc(b.HandleConnection))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeInitial {
		t.Fatalf("first message type = %q, want %q", msg.Type, MessageTypeInitial)
	}
	payload, _ := json.Marshal(msg.Data)
	var data InitialData
	if err := json.Unmarshal(payload, &data); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if data.Stats == nil || data.Stats.AcceleratorName != "NVIDIA RTX" {
		t.Errorf("initial stats = %+v", data.Stats)
	}
	if data.VLM.Response != "warming up" {
		t.Errorf("initial vlm response = %q", data.VLM.Response)
	}
}

func TestBroadcasterTracksClientCount(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBroadcaster(nil)
	go b.Start(ctx)

	srv := httptest.NewServer(http.HandlerFunc(b.HandleConnection))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn1, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn2, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitForClients(t, b, 2)

	conn1.Close()
	waitForClients(t, b, 1)

	conn2.Close()
	waitForClients(t, b, 0)
}

func TestBroadcastMessageDropsWhenBufferFull(t *testing.T) {
	// No Start loop draining the channel, so the buffer fills up.
	cfg := DefaultBroadcasterConfig()
	cfg.BroadcastBufferSize = 2
	b := NewBroadcasterWithConfig(cfg)

	for i := 0; i < 5; i++ {
		b.BroadcastMessage(NewStatsUpdateMessage(telemetry.Snapshot{}))
	}

	if got := len(b.broadcast); got != 2 {
		t.Errorf("queued messages = %d, want 2", got)
	}
}

func TestNewWSMessageSetsTimestamp(t *testing.T) {
	before := time.Now()
	msg := NewWSMessage(MessageTypeStatsUpdate, nil)
	after := time.Now()

	if msg.Timestamp.Before(before) || msg.Timestamp.After(after) {
		t.Errorf("timestamp %v outside [%v, %v]", msg.Timestamp, before, after)
	}
	if msg.Type != MessageTypeStatsUpdate {
		t.Errorf("type = %q", msg.Type)
	}
}
