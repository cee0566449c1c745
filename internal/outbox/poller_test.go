package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"bbqstall/crew-monitor/internal/hub"
	"bbqstall/crew-monitor/internal/realtime"
	"bbqstall/crew-monitor/internal/store"
)

type fakeStore struct {
	events        []store.OutboxEvent
	offset        store.OutboxOffset
	listErr       error
	listedWith    []store.OutboxOffset
	updated       []store.OutboxOffset
	cleanedBefore []time.Time
}

func (f *fakeStore) ListOutboxEvents(ctx context.Context, offset store.OutboxOffset, limit int) ([]store.OutboxEvent, error) {
	f.listedWith = append(f.listedWith, offset)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []store.OutboxEvent
	for _, event := range f.events {
		if event.CreatedAt.After(offset.LastEventTime) && len(out) < limit {
			out = append(out, event)
		}
	}
	return out, nil
}

func (f *fakeStore) GetOffset(ctx context.Context) (store.OutboxOffset, error) {
	return f.offset, nil
}

func (f *fakeStore) UpdateOffset(ctx context.Context, offset store.OutboxOffset) error {
	f.updated = append(f.updated, offset)
	return nil
}

func (f *fakeStore) CleanupOutbox(ctx context.Context, before time.Time) error {
	f.cleanedBefore = append(f.cleanedBefore, before)
	return nil
}

type recordingHub struct {
	payloads [][]byte
	metas    []hub.Meta
}

func (h *recordingHub) Broadcast(payload []byte, meta hub.Meta) {
	h.payloads = append(h.payloads, payload)
	h.metas = append(h.metas, meta)
}

func TestRunBroadcastsAndAdvancesOffset(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{events: []store.OutboxEvent{
		{EventID: "e1", TableName: realtime.TableSessions, EventType: "INSERT", BranchID: "b1", NewRow: []byte(`{"id":"s1"}`), CreatedAt: base.Add(time.Second)},
		{EventID: "e2", TableName: realtime.TableActivityLogs, EventType: "INSERT", BranchID: "b1", NewRow: []byte(`{"id":"a1"}`), CreatedAt: base.Add(2 * time.Second)},
	}}
	h := &recordingHub{}
	p := New(st, h, Config{BatchSize: 10, Retention: time.Hour})
	p.now = func() time.Time { return base.Add(2 * time.Hour) }

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(h.payloads) != 2 {
		t.Fatalf("expected 2 broadcasts, got %d", len(h.payloads))
	}
	if h.metas[1].Table != realtime.TableActivityLogs || h.metas[1].BranchID != "b1" || h.metas[1].Channel != realtime.Channel {
		t.Fatalf("unexpected meta %+v", h.metas[1])
	}
	var env realtime.Envelope
	if err := json.Unmarshal(h.payloads[0], &env); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if env.Table != realtime.TableSessions || env.EventType != realtime.EventInsert {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if len(st.updated) != 1 || st.updated[0].LastEventID != "e2" {
		t.Fatalf("expected offset to advance to e2, got %+v", st.updated)
	}
	if len(st.cleanedBefore) != 1 || !st.cleanedBefore[0].Equal(base.Add(2*time.Second)) {
		t.Fatalf("expected cleanup capped at last relayed event, got %v", st.cleanedBefore)
	}

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(h.payloads) != 2 {
		t.Fatalf("expected no duplicate broadcasts, got %d", len(h.payloads))
	}
	if got := st.listedWith[1].LastEventID; got != "e2" {
		t.Fatalf("expected second poll to start after e2, got %s", got)
	}
}

func TestRunReturnsListError(t *testing.T) {
	st := &fakeStore{listErr: errors.New("db down")}
	p := New(st, &recordingHub{}, Config{})
	if err := p.Run(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if len(st.updated) != 0 {
		t.Fatalf("expected offset untouched")
	}
}

func TestRunSkipsWhenAlreadyRunning(t *testing.T) {
	st := &fakeStore{}
	p := New(st, &recordingHub{}, Config{})
	p.running = 1
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(st.listedWith) != 0 {
		t.Fatalf("expected no poll while another run is active")
	}
}
