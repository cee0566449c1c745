package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"bbqstall/crew-monitor/internal/auth"
	"bbqstall/crew-monitor/internal/hub"
	"bbqstall/crew-monitor/internal/models"
	"bbqstall/crew-monitor/internal/realtime"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeSubscription(t *testing.T) {
	tests := []struct {
		name       string
		user       models.User
		msg        hub.SubscribeMessage
		wantBranch string
		wantErr    error
	}{
		{name: "admin any branch", user: adminUser, msg: hub.SubscribeMessage{BranchID: "b9"}, wantBranch: "b9"},
		{name: "admin all branches", user: adminUser, msg: hub.SubscribeMessage{}, wantBranch: ""},
		{name: "crew own branch", user: crewUser, msg: hub.SubscribeMessage{BranchID: branchID}, wantBranch: branchID},
		{name: "crew defaults to own branch", user: crewUser, msg: hub.SubscribeMessage{}, wantBranch: branchID},
		{name: "crew other branch", user: crewUser, msg: hub.SubscribeMessage{BranchID: "b9"}, wantErr: errBranchDenied},
		{name: "crew without branch", user: models.User{ID: "u9", Role: models.RoleCrew}, msg: hub.SubscribeMessage{}, wantErr: errBranchDenied},
		{name: "unknown channel", user: adminUser, msg: hub.SubscribeMessage{Channel: "orders"}, wantErr: errUnknownChannel},
		{name: "unknown table", user: adminUser, msg: hub.SubscribeMessage{Tables: []string{"orders"}}, wantErr: errUnknownTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := authorizeSubscription(tt.user, tt.msg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, realtime.Channel, sub.Channel)
			assert.Equal(t, tt.wantBranch, sub.BranchID)
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/realtime/websocket?access_token=query-token", nil)
	assert.Equal(t, "query-token", tokenFromRequest(req))
	req.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "header-token", tokenFromRequest(req))
	assert.Equal(t, "", tokenFromRequest(nil))
}

func newRealtimeServer(t *testing.T) (*httptest.Server, *hub.Hub, *auth.TokenManager) {
	t.Helper()
	h := hub.New()
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	mux := http.NewServeMux()
	mux.Handle("/realtime/", RealtimeHandler("/realtime", h, tokens))
	srv := httptest.NewServer(LoggingMiddleware(mux))
	t.Cleanup(srv.Close)
	return srv, h, tokens
}

func TestRealtimeFeedEndToEnd(t *testing.T) {
	srv, h, tokens := newRealtimeServer(t)
	token, _, err := tokens.Issue(crewUser)
	require.NoError(t, err)

	feed, err := realtime.NewWebSocketFeed(srv.URL, token, realtime.WithBranch(branchID))
	require.NoError(t, err)

	var mu sync.Mutex
	var phases []realtime.Phase
	events := make(chan realtime.ChangeEvent, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := feed.Subscribe(ctx, realtime.Channel, realtime.Tables,
		func(event realtime.ChangeEvent) { events <- event },
		func(phase realtime.Phase) {
			mu.Lock()
			phases = append(phases, phase)
			mu.Unlock()
		})
	require.NoError(t, err)

	hasPhase := func(want realtime.Phase) bool {
		mu.Lock()
		defer mu.Unlock()
		for _, phase := range phases {
			if phase == want {
				return true
			}
		}
		return false
	}
	require.Eventually(t, func() bool { return hasPhase(realtime.PhaseSubscribed) }, 5*time.Second, 10*time.Millisecond)

	env := realtime.ChangeEnvelope(realtime.TableActivityLogs, realtime.EventInsert, branchID, []byte(`{"id":"a1","activity_type":"heartbeat"}`), nil, time.Now())
	payload, err := json.Marshal(env)
	require.NoError(t, err)
	other := realtime.ChangeEnvelope(realtime.TableActivityLogs, realtime.EventInsert, "b9", []byte(`{"id":"a2"}`), nil, time.Now())
	otherPayload, err := json.Marshal(other)
	require.NoError(t, err)

	var got realtime.ChangeEvent
	require.Eventually(t, func() bool {
		h.Broadcast(otherPayload, hub.Meta{Channel: realtime.Channel, BranchID: "b9", Table: realtime.TableActivityLogs})
		h.Broadcast(payload, hub.Meta{Channel: realtime.Channel, BranchID: branchID, Table: realtime.TableActivityLogs})
		select {
		case got = <-events:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	change, ok := got.(realtime.ActivityLogChange)
	require.True(t, ok, "expected activity log change, got %T", got)
	require.NotNil(t, change.New)
	assert.Equal(t, "a1", change.New.ID)

	require.NoError(t, sub.Unsubscribe())
	require.Eventually(t, func() bool { return hasPhase(realtime.PhaseClosed) }, 5*time.Second, 10*time.Millisecond)
}

// readUntilClosed drains frames until the server drops the connection.
func readUntilClosed(t *testing.T, conn *websocket.Conn) error {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return err
		}
	}
}

func TestRealtimeRejectsMissingAndForeignBranch(t *testing.T) {
	srv, _, tokens := newRealtimeServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime/websocket"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	err = readUntilClosed(t, conn)
	var netErr net.Error
	assert.False(t, errors.As(err, &netErr) && netErr.Timeout(), "expected server to close, got %v", err)
	_ = conn.Close()

	token, _, err := tokens.Issue(crewUser)
	require.NoError(t, err)
	conn, _, err = websocket.DefaultDialer.Dial(wsURL+"?access_token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(hub.SubscribeMessage{Action: "subscribe", Channel: realtime.Channel, BranchID: "b9"}))

	err = readUntilClosed(t, conn)
	assert.False(t, errors.As(err, &netErr) && netErr.Timeout(), "expected server to close, got %v", err)
}
