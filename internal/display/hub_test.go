package display

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"raffle/internal/draw"
	"raffle/internal/models"
)

func TestHub_BroadcastsEventsToDisplays(t *testing.T) {
	hub := NewHub(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	sent := draw.Event{
		ID:        uuid.New(),
		SessionID: uuid.New(),
		Type:      draw.EventHighlighted,
		Timestamp: time.Now().UTC(),
		Entry:     &models.Entry{ID: 3, Name: "Carol"},
	}
	hub.Publish(sent)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got draw.Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != draw.EventHighlighted || got.Entry == nil || got.Entry.Name != "Carol" {
		t.Errorf("unexpected event: %+v", got)
	}
	if got.SessionID != sent.SessionID {
		t.Errorf("session id: got %s want %s", got.SessionID, sent.SessionID)
	}
}

func TestHub_DropsClientsOnShutdown(t *testing.T) {
	hub := NewHub(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	cancel()
	<-done
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestHub_BroadcastWhileDisplaysLeave(t *testing.T) {
	hub := NewHub(DefaultConfig())

	clients := make([]*client, 2000)
	for i := range clients {
		clients[i] = &client{
			id:          fmt.Sprintf("display-%d", i),
			send:        make(chan []byte, 4),
			hub:         hub,
			connectedAt: time.Now(),
		}
		hub.register(clients[i])
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, c := range clients {
			hub.unregister(c)
		}
	}()
	for i := 0; i < 3; i++ {
		hub.broadcast([]byte(`{"type":"Highlighted"}`))
	}
	<-done

	if n := hub.ClientCount(); n != 0 {
		t.Errorf("expected every display to be gone, got %d", n)
	}
}
