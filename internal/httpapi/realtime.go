package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"bbqstall/crew-monitor/internal/auth"
	"bbqstall/crew-monitor/internal/hub"
	"bbqstall/crew-monitor/internal/models"
	"bbqstall/crew-monitor/internal/realtime"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
)

const (
	closeMissingToken = 4001
	closeInvalidToken = 4002
	closeDenied       = 4003

	clientBuffer = 64
)

var (
	errUnknownChannel = errors.New("unknown channel")
	errUnknownTable   = errors.New("unknown table")
	errBranchDenied   = errors.New("branch access denied")
)

// RealtimeHandler serves the change feed over SockJS at prefix, with a raw
// WebSocket at prefix+"/websocket".
func RealtimeHandler(prefix string, h *hub.Hub, tokens *auth.TokenManager) http.Handler {
	return sockjs.NewHandler(prefix, sockjs.DefaultOptions, func(session sockjs.Session) {
		token := tokenFromRequest(session.Request())
		if token == "" {
			_ = session.Close(closeMissingToken, "missing access token")
			return
		}
		user, err := tokens.Parse(token)
		if err != nil {
			_ = session.Close(closeInvalidToken, "invalid access token")
			return
		}

		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, clientBuffer)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.ClearSubscription(client)
				client.Send <- statusFrame(parsed.Channel, realtime.PhaseClosed, "")
				continue
			}
			sub, err := authorizeSubscription(user, parsed)
			if err != nil {
				log.Printf("realtime subscribe denied user=%s branch=%s: %v", user.ID, parsed.BranchID, err)
				_ = session.Send(string(statusFrame(parsed.Channel, realtime.PhaseChannelError, err.Error())))
				_ = session.Close(closeDenied, "access denied")
				return
			}
			// The acknowledgement is queued before the subscription takes
			// effect so it reaches the client ahead of any change frame.
			client.Send <- statusFrame(sub.Channel, realtime.PhaseSubscribed, "")
			h.UpdateSubscription(client, sub)
		}
	})
}

// authorizeSubscription validates a subscribe request. Crew members are
// pinned to their own branch.
func authorizeSubscription(user models.User, msg hub.SubscribeMessage) (hub.Subscription, error) {
	channel := msg.Channel
	if channel == "" {
		channel = realtime.Channel
	}
	if channel != realtime.Channel {
		return hub.Subscription{}, errUnknownChannel
	}
	for _, table := range msg.Tables {
		if !isTrackedTable(table) {
			return hub.Subscription{}, errUnknownTable
		}
	}
	branchID := msg.BranchID
	if branchID == "" && !user.IsAdmin() {
		branchID = user.BranchID
	}
	if branchID != "" || !user.IsAdmin() {
		if !canAccessBranch(user, branchID) {
			return hub.Subscription{}, errBranchDenied
		}
	}
	return hub.Subscription{Channel: channel, BranchID: branchID, Tables: msg.Tables}, nil
}

func isTrackedTable(table string) bool {
	for _, tracked := range realtime.Tables {
		if table == tracked {
			return true
		}
	}
	return false
}

func statusFrame(channel string, phase realtime.Phase, message string) []byte {
	if channel == "" {
		channel = realtime.Channel
	}
	payload, _ := json.Marshal(realtime.StatusEnvelope(channel, phase, message))
	return payload
}

func tokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
