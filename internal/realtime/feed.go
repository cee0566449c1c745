package realtime

import (
	"context"
	"encoding/json"
	"log"
)

type EventHandler func(ChangeEvent)

type StatusHandler func(Phase)

// Feed delivers row changes for a set of tables on a named channel.
// Handlers are called from the feed's goroutine and must not block.
type Feed interface {
	Subscribe(ctx context.Context, channel string, tables []string, onEvent EventHandler, onStatus StatusHandler) (Subscription, error)
}

type Subscription interface {
	Unsubscribe() error
}

func dispatch(payload []byte, onEvent EventHandler, onStatus StatusHandler) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Printf("realtime decode error: %v", err)
		return
	}
	switch env.Type {
	case envelopeChange:
		if onEvent != nil {
			onEvent(Decode(env))
		}
	case envelopeStatus:
		if onStatus != nil && env.Status != "" {
			onStatus(env.Status)
		}
	default:
		log.Printf("realtime ignore envelope type=%s", env.Type)
	}
}

func report(onStatus StatusHandler, phase Phase) {
	if onStatus != nil {
		onStatus(phase)
	}
}
