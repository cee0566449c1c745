package realtime

import (
	"context"
	"sync"

	"bbqstall/crew-monitor/internal/hub"

	"github.com/google/uuid"
)

// HubFeed subscribes directly on an in-process hub.
type HubFeed struct {
	hub    *hub.Hub
	buffer int
}

func NewHubFeed(h *hub.Hub) *HubFeed {
	return &HubFeed{hub: h, buffer: 64}
}

func (f *HubFeed) Subscribe(ctx context.Context, channel string, tables []string, onEvent EventHandler, onStatus StatusHandler) (Subscription, error) {
	client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, f.buffer)}
	f.hub.Register(client)
	f.hub.UpdateSubscription(client, hub.Subscription{Channel: channel, Tables: append([]string(nil), tables...)})

	sub := &hubSubscription{hub: f.hub, client: client, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		report(onStatus, PhaseSubscribed)
		for payload := range client.Send {
			dispatch(payload, onEvent, onStatus)
		}
		report(onStatus, PhaseClosed)
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Unsubscribe()
		case <-sub.done:
		}
	}()
	return sub, nil
}

type hubSubscription struct {
	hub    *hub.Hub
	client *hub.Client
	once   sync.Once
	done   chan struct{}
}

// Unsubscribe removes the client and waits for pending deliveries to finish.
func (s *hubSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.hub.Unregister(s.client)
	})
	<-s.done
	return nil
}
