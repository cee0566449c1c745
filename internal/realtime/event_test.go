package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTypedVariants(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	ev := Decode(ChangeEnvelope(TableSessions, EventInsert, "b1",
		[]byte(`{"id":"s1","user_id":"u1","branch_id":"b1","is_active":true,"session_start":"2026-03-01T09:00:00.123456+00:00"}`), nil, at))
	session, ok := ev.(SessionChange)
	require.True(t, ok, "expected SessionChange, got %T", ev)
	require.NotNil(t, session.New)
	assert.Equal(t, "s1", session.New.ID)
	assert.True(t, session.New.IsActive)
	assert.Nil(t, session.Old)
	assert.Equal(t, EventInsert, ev.Type())
	assert.Equal(t, TableSessions, ev.Table())

	ev = Decode(ChangeEnvelope(TableActivityLogs, EventInsert, "", []byte(`{"id":"a1","activity_type":"heartbeat","activity_data":{"current_page":"/crew"}}`), nil, at))
	activity, ok := ev.(ActivityLogChange)
	require.True(t, ok)
	require.NotNil(t, activity.New)
	assert.JSONEq(t, `{"current_page":"/crew"}`, string(activity.New.ActivityData))

	ev = Decode(ChangeEnvelope(TableOnlineStatus, EventUpdate, "", []byte(`{"user_id":"u1","is_online":true}`), []byte(`{"user_id":"u1","is_online":false}`), at))
	status, ok := ev.(OnlineStatusChange)
	require.True(t, ok)
	assert.True(t, status.New.IsOnline)
	assert.False(t, status.Old.IsOnline)
}

func TestDecodeUnknownTable(t *testing.T) {
	ev := Decode(Envelope{Type: envelopeChange, Table: "orders", EventType: EventDelete, Old: json.RawMessage(`{"id":1}`)})
	unknown, ok := ev.(UnknownChange)
	require.True(t, ok)
	assert.Equal(t, "orders", unknown.Table())
	assert.Equal(t, EventDelete, unknown.Type())
	assert.JSONEq(t, `{"id":1}`, string(unknown.Old))
}

func TestDecodeKeepsTableWhenRowIsMalformed(t *testing.T) {
	ev := Decode(Envelope{Type: envelopeChange, Table: TableSessions, EventType: EventUpdate, New: json.RawMessage(`{"is_active":"maybe"}`)})
	session, ok := ev.(SessionChange)
	require.True(t, ok)
	assert.Nil(t, session.New)
}

func TestEnvelopeRoundTripThroughDispatch(t *testing.T) {
	payload, err := json.Marshal(ChangeEnvelope(TableActivityLogs, EventInsert, "b1", []byte(`{"id":"a1"}`), nil, time.Now()))
	require.NoError(t, err)

	var got ChangeEvent
	dispatch(payload, func(ev ChangeEvent) { got = ev }, nil)
	require.NotNil(t, got)
	assert.Equal(t, TableActivityLogs, got.Table())

	status, err := json.Marshal(StatusEnvelope(Channel, PhaseSubscribed, ""))
	require.NoError(t, err)
	var phase Phase
	dispatch(status, nil, func(p Phase) { phase = p })
	assert.Equal(t, PhaseSubscribed, phase)

	dispatch([]byte(`garbage`), func(ChangeEvent) { t.Fatal("unexpected event") }, func(Phase) { t.Fatal("unexpected status") })
}
