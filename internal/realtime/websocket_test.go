package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bbqstall/crew-monitor/internal/hub"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "http://localhost:8090", want: "ws://localhost:8090/realtime/websocket"},
		{in: "https://crew.example.com/", want: "wss://crew.example.com/realtime/websocket"},
		{in: "ws://localhost:8090/realtime/websocket", want: "ws://localhost:8090/realtime/websocket"},
		{in: "ftp://example.com", wantErr: true},
	}
	for _, tt := range tests {
		got, err := websocketURL(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestWebSocketFeedLifecycle(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan hub.SubscribeMessage, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/realtime/websocket", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var msg hub.SubscribeMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		subscribed <- msg
		_ = conn.WriteJSON(StatusEnvelope(msg.Channel, PhaseSubscribed, ""))
		_ = conn.WriteJSON(ChangeEnvelope(TableSessions, EventInsert, "b1", []byte(`{"id":"s1"}`), nil, time.Now()))
		// Wait for the client to go away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	feed, err := NewWebSocketFeed(srv.URL, "secret", WithBranch("b1"))
	require.NoError(t, err)

	phases := &phaseRecorder{}
	events := make(chan ChangeEvent, 1)
	sub, err := feed.Subscribe(context.Background(), Channel, Tables, func(ev ChangeEvent) { events <- ev }, phases.record)
	require.NoError(t, err)

	msg := <-subscribed
	assert.Equal(t, "subscribe", msg.Action)
	assert.Equal(t, "b1", msg.BranchID)
	assert.Equal(t, Tables, msg.Tables)

	select {
	case ev := <-events:
		session, ok := ev.(SessionChange)
		require.True(t, ok)
		assert.Equal(t, "s1", session.New.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected session change")
	}

	require.NoError(t, sub.Unsubscribe())
	assert.Equal(t, []Phase{PhaseConnecting, PhaseSubscribed, PhaseClosed}, phases.snapshot())
}

func TestWebSocketFeedReportsDisconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var msg hub.SubscribeMessage
		_ = conn.ReadJSON(&msg)
		_ = conn.WriteJSON(StatusEnvelope(msg.Channel, PhaseSubscribed, ""))
		_ = conn.Close()
	}))
	defer srv.Close()

	feed, err := NewWebSocketFeed(srv.URL, "")
	require.NoError(t, err)

	phases := &phaseRecorder{}
	_, err = feed.Subscribe(context.Background(), Channel, Tables, nil, phases.record)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got := phases.snapshot()
		return len(got) > 0 && got[len(got)-1] == PhaseDisconnected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketFeedDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	feed, err := NewWebSocketFeed(srv.URL, "")
	require.NoError(t, err)

	phases := &phaseRecorder{}
	_, err = feed.Subscribe(context.Background(), Channel, Tables, nil, phases.record)
	require.Error(t, err)
	assert.Equal(t, []Phase{PhaseConnecting, PhaseChannelError}, phases.snapshot())
}
