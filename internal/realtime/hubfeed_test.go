package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"bbqstall/crew-monitor/internal/hub"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type phaseRecorder struct {
	mu     sync.Mutex
	phases []Phase
}

func (r *phaseRecorder) record(p Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, p)
}

func (r *phaseRecorder) snapshot() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Phase(nil), r.phases...)
}

func TestHubFeedDeliversTrackedTables(t *testing.T) {
	h := hub.New()
	feed := NewHubFeed(h)
	events := make(chan ChangeEvent, 4)
	phases := &phaseRecorder{}

	sub, err := feed.Subscribe(context.Background(), Channel, []string{TableActivityLogs}, func(ev ChangeEvent) { events <- ev }, phases.record)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(phases.snapshot()) > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, PhaseSubscribed, phases.snapshot()[0])

	broadcast(t, h, TableSessions)
	broadcast(t, h, TableActivityLogs)

	select {
	case ev := <-events:
		assert.Equal(t, TableActivityLogs, ev.Table())
	case <-time.After(time.Second):
		t.Fatal("expected activity log event")
	}

	require.NoError(t, sub.Unsubscribe())
	assert.Equal(t, []Phase{PhaseSubscribed, PhaseClosed}, phases.snapshot())
	assert.Empty(t, events)
	assert.Equal(t, 0, h.Count())
}

func TestHubFeedClosesWithContext(t *testing.T) {
	h := hub.New()
	feed := NewHubFeed(h)
	phases := &phaseRecorder{}
	ctx, cancel := context.WithCancel(context.Background())

	_, err := feed.Subscribe(ctx, Channel, Tables, nil, phases.record)
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		got := phases.snapshot()
		return len(got) == 2 && got[1] == PhaseClosed
	}, time.Second, 5*time.Millisecond)
}

func broadcast(t *testing.T, h *hub.Hub, table string) {
	t.Helper()
	payload, err := json.Marshal(ChangeEnvelope(table, EventInsert, "", []byte(`{}`), nil, time.Now()))
	require.NoError(t, err)
	h.Broadcast(payload, hub.Meta{Channel: Channel, Table: table})
}
