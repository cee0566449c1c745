package outbox

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"bbqstall/crew-monitor/internal/hub"
	"bbqstall/crew-monitor/internal/metrics"
	"bbqstall/crew-monitor/internal/realtime"
	"bbqstall/crew-monitor/internal/store"
)

type Broadcaster interface {
	Broadcast(payload []byte, meta hub.Meta)
}

type Config struct {
	BatchSize int
	Retention time.Duration
}

// Poller relays crew_change_events rows to realtime clients in commit order.
type Poller struct {
	store     store.OutboxStore
	hub       Broadcaster
	batchSize int
	retention time.Duration
	offset    store.OutboxOffset
	loaded    bool
	running   int32
	now       func() time.Time
}

func New(st store.OutboxStore, h Broadcaster, cfg Config) *Poller {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Poller{
		store:     st,
		hub:       h,
		batchSize: batch,
		retention: cfg.Retention,
		now:       time.Now,
	}
}

// Run relays one batch. Overlapping calls return immediately.
func (p *Poller) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return nil
	}
	defer atomic.StoreInt32(&p.running, 0)

	if !p.loaded {
		offset, err := p.store.GetOffset(ctx)
		if err != nil {
			return err
		}
		p.offset = offset
		p.loaded = true
	}

	events, err := p.store.ListOutboxEvents(ctx, p.offset, p.batchSize)
	if err != nil {
		return err
	}
	for _, event := range events {
		p.offset.LastEventTime = event.CreatedAt
		p.offset.LastEventID = event.EventID
		env := realtime.ChangeEnvelope(event.TableName, realtime.EventType(event.EventType), event.BranchID, event.NewRow, event.OldRow, event.CreatedAt)
		payload, err := json.Marshal(env)
		if err != nil {
			log.Printf("outbox encode error event=%s: %v", event.EventID, err)
			continue
		}
		metrics.RealtimeEvents.WithLabelValues(event.TableName).Inc()
		p.hub.Broadcast(payload, hub.Meta{Channel: realtime.Channel, BranchID: event.BranchID, Table: event.TableName})
	}
	if len(events) == 0 {
		return nil
	}

	if err := p.store.UpdateOffset(ctx, p.offset); err != nil {
		return err
	}
	if p.retention > 0 {
		cleanupBefore := p.now().Add(-p.retention)
		if p.offset.LastEventTime.Before(cleanupBefore) {
			cleanupBefore = p.offset.LastEventTime
		}
		if err := p.store.CleanupOutbox(ctx, cleanupBefore); err != nil {
			log.Printf("cleanup outbox error: %v", err)
		}
	}
	return nil
}

func Start(ctx context.Context, interval time.Duration, p *Poller) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := p.Run(runCtx); err != nil {
				log.Printf("outbox poll error: %v", err)
			}
			cancel()
		}
	}
}
