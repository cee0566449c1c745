package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"bbqstall/crew-monitor/internal/metrics"
	"bbqstall/crew-monitor/internal/models"
	"bbqstall/crew-monitor/internal/realtime"
	"bbqstall/crew-monitor/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrClosed = errors.New("monitor closed")

var tracer = otel.Tracer("bbqstall/crew-monitor/monitor")

// UserResolver returns the signed-in user, if any.
type UserResolver interface {
	CurrentUser(ctx context.Context) (models.User, bool, error)
}

type Options struct {
	SessionLimit    int
	ActivityLimit   int
	ActivityTimeout time.Duration
	Now             func() time.Time
}

// State is a copy of the monitor's data at one point in time.
type State struct {
	OnlineStatus     []models.CrewOnlineStatus
	Sessions         []models.CrewSession
	ActivityLogs     []models.CrewActivityLog
	WorkHours        []models.CrewWorkHoursSummary
	Branches         []models.Branch
	WorkHoursRange   DateRange
	Loading          bool
	ConnectionStatus realtime.Phase
	SelectedBranch   string
	Slices           map[Slice]SliceStatus
}

// Monitor owns the crew monitoring projections and keeps them in sync with
// the realtime feed.
type Monitor struct {
	gateway store.CrewStore
	users   UserResolver
	feed    realtime.Feed
	opts    Options

	mu             sync.RWMutex
	onlineStatus   slice[[]models.CrewOnlineStatus]
	sessions       slice[[]models.CrewSession]
	activityLogs   slice[[]models.CrewActivityLog]
	workHours      slice[workHoursResult]
	branches       slice[[]models.Branch]
	loading        int
	status         realtime.Phase
	selectedBranch string
	closed         bool
	life           context.Context
	cancel         context.CancelFunc
	sub            realtime.Subscription

	connMu  sync.Mutex
	wg      sync.WaitGroup
	updates chan struct{}
}

func New(gateway store.CrewStore, users UserResolver, feed realtime.Feed, opts Options) *Monitor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SessionLimit <= 0 {
		opts.SessionLimit = 100
	}
	if opts.ActivityLimit <= 0 {
		opts.ActivityLimit = 100
	}
	if opts.ActivityTimeout <= 0 {
		opts.ActivityTimeout = 10 * time.Second
	}
	m := &Monitor{
		gateway: gateway,
		users:   users,
		feed:    feed,
		opts:    opts,
		status:  realtime.PhaseDisconnected,
		updates: make(chan struct{}, 1),
	}
	m.workHours.value.dateRange = LastWeek(opts.Now())
	return m
}

// Updates signals after any state change. Signals are coalesced.
func (m *Monitor) Updates() <-chan struct{} {
	return m.updates
}

func (m *Monitor) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return State{
		OnlineStatus:     slices.Clone(m.onlineStatus.value),
		Sessions:         slices.Clone(m.sessions.value),
		ActivityLogs:     slices.Clone(m.activityLogs.value),
		WorkHours:        slices.Clone(m.workHours.value.rows),
		Branches:         slices.Clone(m.branches.value),
		WorkHoursRange:   m.workHours.value.dateRange,
		Loading:          m.loading > 0,
		ConnectionStatus: m.status,
		SelectedBranch:   m.selectedBranch,
		Slices: map[Slice]SliceStatus{
			SliceOnlineStatus: m.onlineStatus.status(),
			SliceSessions:     m.sessions.status(),
			SliceActivityLogs: m.activityLogs.status(),
			SliceWorkHours:    m.workHours.status(),
			SliceBranches:     m.branches.status(),
		},
	}
}

func (m *Monitor) SelectedBranch() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selectedBranch
}

// SetSelectedBranch sets the branch filter. An empty value means all branches.
func (m *Monitor) SetSelectedBranch(branch string) {
	m.mu.Lock()
	m.selectedBranch = strings.TrimSpace(branch)
	m.mu.Unlock()
	m.notify()
}

func (m *Monitor) ConnectionStatus() realtime.Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// RefreshData fetches every projection concurrently. A failed projection keeps
// its previous value; the returned error joins the per-projection failures.
func (m *Monitor) RefreshData(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "monitor.RefreshData")
	defer span.End()

	m.setLoading(1)
	defer m.setLoading(-1)

	m.mu.RLock()
	summaryRange := m.workHours.value.dateRange
	m.mu.RUnlock()

	loaders := []func(context.Context) error{
		m.RefreshOnlineStatus,
		m.RefreshSessions,
		m.RefreshActivityLogs,
		func(ctx context.Context) error { return m.RefreshWorkHours(ctx, summaryRange) },
		m.RefreshBranches,
	}
	errs := make([]error, len(loaders))
	var wg sync.WaitGroup
	for i, load := range loaders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = load(ctx)
		}()
	}
	wg.Wait()

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "partial refresh")
	}
	return err
}

func (m *Monitor) RefreshOnlineStatus(ctx context.Context) error {
	return fetch(ctx, m, SliceOnlineStatus, &m.onlineStatus, m.gateway.GetOnlineStatus)
}

func (m *Monitor) RefreshSessions(ctx context.Context) error {
	return fetch(ctx, m, SliceSessions, &m.sessions, func(ctx context.Context) ([]models.CrewSession, error) {
		return m.gateway.ListSessions(ctx, store.SessionFilter{Limit: m.opts.SessionLimit})
	})
}

func (m *Monitor) RefreshActivityLogs(ctx context.Context) error {
	return fetch(ctx, m, SliceActivityLogs, &m.activityLogs, func(ctx context.Context) ([]models.CrewActivityLog, error) {
		return m.gateway.ListActivityLogs(ctx, store.ActivityFilter{Limit: m.opts.ActivityLimit})
	})
}

// workHoursResult keeps the summary rows together with the range they cover.
type workHoursResult struct {
	rows      []models.CrewWorkHoursSummary
	dateRange DateRange
}

// RefreshWorkHours fetches the summary for r across all branches. Once the
// rows are applied, r becomes the range used by later full refreshes.
func (m *Monitor) RefreshWorkHours(ctx context.Context, r DateRange) error {
	if !r.Valid() {
		return store.ErrInvalidRange
	}
	return fetch(ctx, m, SliceWorkHours, &m.workHours, func(ctx context.Context) (workHoursResult, error) {
		rows, err := m.gateway.GetWorkHoursSummary(ctx, r.Start, r.End, "")
		if err != nil {
			return workHoursResult{}, err
		}
		return workHoursResult{rows: rows, dateRange: r}, nil
	})
}

func (m *Monitor) RefreshBranches(ctx context.Context) error {
	return fetch(ctx, m, SliceBranches, &m.branches, m.gateway.ListBranches)
}

func fetch[T any](ctx context.Context, m *Monitor, name Slice, s *slice[T], load func(context.Context) (T, error)) error {
	ctx, span := tracer.Start(ctx, "monitor.fetch", trace.WithAttributes(attribute.String("slice", string(name))))
	defer span.End()

	m.mu.Lock()
	seq := s.begin()
	m.mu.Unlock()

	value, err := load(ctx)

	m.mu.Lock()
	if err != nil {
		s.fail(seq, err)
		m.mu.Unlock()
		span.RecordError(err)
		metrics.SliceFetches.WithLabelValues(string(name), "error").Inc()
		log.Printf("crew monitor fetch error slice=%s: %v", name, err)
		m.notify()
		return fmt.Errorf("%s: %w", name, err)
	}
	applied := s.commit(seq, value, m.opts.Now())
	m.mu.Unlock()

	if !applied {
		metrics.SliceFetches.WithLabelValues(string(name), "stale").Inc()
		return nil
	}
	metrics.SliceFetches.WithLabelValues(string(name), "ok").Inc()
	m.notify()
	return nil
}

// StartCrewSession opens a session for the current user and refreshes the
// projections. It does nothing when no user is signed in.
func (m *Monitor) StartCrewSession(ctx context.Context, ipAddress, userAgent string) (string, error) {
	user, ok := m.currentUser(ctx)
	if !ok {
		return "", nil
	}
	sessionID, err := m.gateway.StartCrewSession(ctx, store.StartSessionInput{
		UserID:    user.ID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	if err != nil {
		log.Printf("crew monitor start session error user=%s: %v", user.ID, err)
		return "", err
	}
	_ = m.RefreshData(ctx)
	return sessionID, nil
}

// EndCrewSession closes the current user's session and refreshes the
// projections. It does nothing when no user is signed in.
func (m *Monitor) EndCrewSession(ctx context.Context) error {
	user, ok := m.currentUser(ctx)
	if !ok {
		return nil
	}
	if err := m.gateway.EndCrewSession(ctx, user.ID); err != nil {
		log.Printf("crew monitor end session error user=%s: %v", user.ID, err)
		return err
	}
	_ = m.RefreshData(ctx)
	return nil
}

// UpdateCrewActivity records an activity in the background and returns
// immediately. Local state is updated by the realtime feed, not here.
func (m *Monitor) UpdateCrewActivity(ctx context.Context, activityType models.ActivityType, activityData json.RawMessage, currentPage string) {
	user, ok := m.currentUser(ctx)
	if !ok {
		return
	}
	input := store.ActivityInput{
		UserID:       user.ID,
		ActivityType: activityType,
		ActivityData: activityData,
		CurrentPage:  currentPage,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.ActivityTimeout)
		defer cancel()
		if err := m.gateway.UpdateCrewActivity(callCtx, input); err != nil {
			log.Printf("crew monitor update activity error user=%s type=%s: %v", user.ID, activityType, err)
		}
	}()
}

// Connect opens the realtime subscription. Calling it again while connected
// is a no-op.
func (m *Monitor) Connect(ctx context.Context) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.sub != nil {
		m.mu.Unlock()
		return nil
	}
	m.life, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	life := m.life
	m.mu.Unlock()

	sub, err := m.feed.Subscribe(life, realtime.Channel, realtime.Tables, m.handleEvent, m.handleStatus)
	if err != nil {
		m.mu.Lock()
		m.cancel()
		m.life, m.cancel = nil, nil
		m.mu.Unlock()
		log.Printf("crew monitor subscribe error: %v", err)
		return err
	}

	m.mu.Lock()
	m.sub = sub
	m.mu.Unlock()
	return nil
}

// Close tears down the subscription and waits for background work.
func (m *Monitor) Close() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sub := m.sub
	cancel := m.cancel
	m.sub = nil
	m.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	return err
}

func (m *Monitor) handleStatus(phase realtime.Phase) {
	m.mu.Lock()
	m.status = phase
	m.mu.Unlock()
	m.notify()

	if phase == realtime.PhaseSubscribed {
		m.background(func(ctx context.Context) { _ = m.RefreshData(ctx) })
	}
}

func (m *Monitor) handleEvent(event realtime.ChangeEvent) {
	switch event.(type) {
	case realtime.OnlineStatusChange:
		m.background(func(ctx context.Context) { _ = m.RefreshOnlineStatus(ctx) })
	case realtime.SessionChange:
		m.background(func(ctx context.Context) { _ = m.RefreshSessions(ctx) })
	case realtime.ActivityLogChange:
		m.background(func(ctx context.Context) { _ = m.RefreshActivityLogs(ctx) })
	default:
		log.Printf("crew monitor ignore change table=%s type=%s", event.Table(), event.Type())
	}
}

func (m *Monitor) background(fn func(context.Context)) {
	m.mu.Lock()
	if m.closed || m.life == nil {
		m.mu.Unlock()
		return
	}
	life := m.life
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		fn(life)
	}()
}

func (m *Monitor) currentUser(ctx context.Context) (models.User, bool) {
	if m.users == nil {
		return models.User{}, false
	}
	user, ok, err := m.users.CurrentUser(ctx)
	if err != nil {
		log.Printf("crew monitor current user error: %v", err)
		return models.User{}, false
	}
	if !ok || user.ID == "" {
		return models.User{}, false
	}
	return user, true
}

func (m *Monitor) setLoading(delta int) {
	m.mu.Lock()
	m.loading += delta
	m.mu.Unlock()
	m.notify()
}

func (m *Monitor) notify() {
	select {
	case m.updates <- struct{}{}:
	default:
	}
}
