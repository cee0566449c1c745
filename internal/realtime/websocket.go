package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"bbqstall/crew-monitor/internal/hub"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// WebSocketFeed subscribes to the service's raw WebSocket endpoint. A dropped
// connection is reported as DISCONNECTED and is not retried.
type WebSocketFeed struct {
	url      string
	token    string
	branchID string
	dialer   *websocket.Dialer
}

type WebSocketOption func(*WebSocketFeed)

// WithBranch limits the subscription to one branch.
func WithBranch(branchID string) WebSocketOption {
	return func(f *WebSocketFeed) {
		f.branchID = branchID
	}
}

func WithDialer(dialer *websocket.Dialer) WebSocketOption {
	return func(f *WebSocketFeed) {
		f.dialer = dialer
	}
}

func NewWebSocketFeed(serverURL, token string, opts ...WebSocketOption) (*WebSocketFeed, error) {
	wsURL, err := websocketURL(serverURL)
	if err != nil {
		return nil, err
	}
	feed := &WebSocketFeed{url: wsURL, token: token, dialer: websocket.DefaultDialer}
	for _, opt := range opts {
		opt(feed)
	}
	return feed, nil
}

func (f *WebSocketFeed) Subscribe(ctx context.Context, channel string, tables []string, onEvent EventHandler, onStatus StatusHandler) (Subscription, error) {
	report(onStatus, PhaseConnecting)

	header := http.Header{}
	if f.token != "" {
		header.Set("Authorization", "Bearer "+f.token)
	}
	conn, _, err := f.dialer.DialContext(ctx, f.url, header)
	if err != nil {
		report(onStatus, PhaseChannelError)
		return nil, fmt.Errorf("realtime dial: %w", err)
	}

	msg := hub.SubscribeMessage{Action: "subscribe", Channel: channel, BranchID: f.branchID, Tables: tables}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		_ = conn.Close()
		report(onStatus, PhaseChannelError)
		return nil, fmt.Errorf("realtime subscribe: %w", err)
	}

	sub := &wsSubscription{conn: conn, done: make(chan struct{})}
	go sub.listen(onEvent, onStatus)
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Unsubscribe()
		case <-sub.done:
		}
	}()
	return sub, nil
}

type wsSubscription struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	closing bool
	once    sync.Once
	done    chan struct{}
}

func (s *wsSubscription) listen(onEvent EventHandler, onStatus StatusHandler) {
	defer close(s.done)
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				report(onStatus, PhaseClosed)
			} else {
				report(onStatus, PhaseDisconnected)
			}
			return
		}
		dispatch(payload, onEvent, onStatus)
	}
}

func (s *wsSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "unsubscribe"),
			time.Now().Add(writeWait))
		err = s.conn.Close()
	})
	<-s.done
	return err
}

func websocketURL(serverURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch parsed.Scheme {
	case "http", "ws":
		parsed.Scheme = "ws"
	case "https", "wss":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server scheme %q", parsed.Scheme)
	}
	if !strings.HasSuffix(parsed.Path, "/realtime/websocket") {
		parsed.Path = strings.TrimRight(parsed.Path, "/") + "/realtime/websocket"
	}
	return parsed.String(), nil
}
