package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"bbqstall/crew-monitor/internal/dashboard"
	"bbqstall/crew-monitor/internal/monitor"
	"bbqstall/crew-monitor/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	calls  []string
	branch string
}

func (s *stubSource) Snapshot() monitor.State {
	return monitor.State{SelectedBranch: s.branch}
}

func (s *stubSource) RefreshData(context.Context) error {
	s.calls = append(s.calls, "all")
	return nil
}

func (s *stubSource) RefreshOnlineStatus(context.Context) error {
	s.calls = append(s.calls, "online")
	return nil
}

func (s *stubSource) RefreshSessions(context.Context) error {
	s.calls = append(s.calls, "sessions")
	return nil
}

func (s *stubSource) RefreshActivityLogs(context.Context) error {
	s.calls = append(s.calls, "activity")
	return nil
}

func (s *stubSource) RefreshWorkHours(context.Context, monitor.DateRange) error {
	s.calls = append(s.calls, "summary")
	return nil
}

func (s *stubSource) RefreshBranches(context.Context) error {
	s.calls = append(s.calls, "branches")
	return nil
}

func (s *stubSource) SetSelectedBranch(branch string) {
	s.branch = branch
}

func TestRunWatchHandlesKeysAndQuits(t *testing.T) {
	source := &stubSource{}
	dash := dashboard.New(source, dashboard.Options{})

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := runWatch(ctx, dash, nil, strings.NewReader("2\nb b1\nq\n"), &out)
	require.NoError(t, err)
	require.NoError(t, ctx.Err(), "runWatch should return on q")

	assert.Equal(t, dashboard.TabSessions, dash.ActiveTab())
	assert.Equal(t, "b1", source.branch)
	assert.Contains(t, source.calls, "sessions")
	assert.Contains(t, out.String(), clearScreen)
	assert.Contains(t, out.String(), "Crew Monitoring")
}

func TestRunWatchStopsOnCancel(t *testing.T) {
	dash := dashboard.New(&stubSource{}, dashboard.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	assert.NoError(t, runWatch(ctx, dash, nil, strings.NewReader(""), &out))
}

func TestHandleKeyTabNames(t *testing.T) {
	dash := dashboard.New(&stubSource{}, dashboard.Options{})

	assert.False(t, handleKey(context.Background(), dash, "summary"))
	assert.Equal(t, dashboard.TabSummary, dash.ActiveTab())
	assert.False(t, handleKey(context.Background(), dash, "nonsense"))
	assert.Equal(t, dashboard.TabSummary, dash.ActiveTab())
	assert.True(t, handleKey(context.Background(), dash, "quit"))
}

func TestParseDateRange(t *testing.T) {
	r, err := parseDateRange("", "")
	require.NoError(t, err)
	assert.False(t, r.Valid())

	r, err = parseDateRange("2026-10-01", "2026-10-07")
	require.NoError(t, err)
	assert.True(t, r.Valid())
	assert.Equal(t, 1, r.Start.Day())
	assert.Equal(t, 7, r.End.Day())

	_, err = parseDateRange("2026-10-07", "2026-10-01")
	assert.True(t, errors.Is(err, store.ErrInvalidRange))

	_, err = parseDateRange("2026-10-01", "")
	assert.Error(t, err)

	_, err = parseDateRange("10/01/2026", "2026-10-07")
	assert.Error(t, err)
}
