package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"bbqstall/crew-monitor/internal/monitor"
	"bbqstall/crew-monitor/internal/store"
)

type LoadStrategy string

const (
	// Lazy fetches a tab's data the first time the tab is shown.
	Lazy LoadStrategy = "lazy"
	// Eager fetches everything on open.
	Eager LoadStrategy = "eager"
)

func ParseLoadStrategy(value string) (LoadStrategy, error) {
	switch LoadStrategy(strings.ToLower(strings.TrimSpace(value))) {
	case "", Lazy:
		return Lazy, nil
	case Eager:
		return Eager, nil
	default:
		return "", fmt.Errorf("unknown load strategy %q", value)
	}
}

type Tab string

const (
	TabOnline   Tab = "online"
	TabSessions Tab = "sessions"
	TabActivity Tab = "activity"
	TabSummary  Tab = "summary"
)

var Tabs = []Tab{TabOnline, TabSessions, TabActivity, TabSummary}

func ParseTab(value string) (Tab, error) {
	tab := Tab(strings.ToLower(strings.TrimSpace(value)))
	if tab == "" {
		return TabOnline, nil
	}
	for _, known := range Tabs {
		if tab == known {
			return tab, nil
		}
	}
	return "", fmt.Errorf("unknown tab %q", value)
}

// Source is the part of the monitor the dashboard reads and drives.
type Source interface {
	Snapshot() monitor.State
	RefreshData(ctx context.Context) error
	RefreshOnlineStatus(ctx context.Context) error
	RefreshSessions(ctx context.Context) error
	RefreshActivityLogs(ctx context.Context) error
	RefreshWorkHours(ctx context.Context, r monitor.DateRange) error
	RefreshBranches(ctx context.Context) error
	SetSelectedBranch(branch string)
}

type Options struct {
	Strategy LoadStrategy
	// Tab and Range set the initial view. Zero values mean the online tab
	// and the last seven days.
	Tab   Tab
	Range monitor.DateRange
	Now   func() time.Time
}

type Dashboard struct {
	source   Source
	strategy LoadStrategy
	now      func() time.Time

	mu        sync.Mutex
	tab       Tab
	dateRange monitor.DateRange
	loaded    map[Tab]bool
	lastErr   error
}

func New(source Source, opts Options) *Dashboard {
	if opts.Strategy == "" {
		opts.Strategy = Lazy
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Tab == "" {
		opts.Tab = TabOnline
	}
	if !opts.Range.Valid() {
		opts.Range = monitor.LastWeek(opts.Now())
	}
	return &Dashboard{
		source:    source,
		strategy:  opts.Strategy,
		now:       opts.Now,
		tab:       opts.Tab,
		dateRange: opts.Range,
		loaded:    make(map[Tab]bool),
	}
}

func (d *Dashboard) Strategy() LoadStrategy {
	return d.strategy
}

func (d *Dashboard) ActiveTab() Tab {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tab
}

func (d *Dashboard) DateRange() monitor.DateRange {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dateRange
}

// Open performs the initial load for the configured strategy.
func (d *Dashboard) Open(ctx context.Context) error {
	if d.strategy == Eager {
		return d.record(d.loadAll(ctx))
	}
	err := d.source.RefreshBranches(ctx)
	if tabErr := d.loadTab(ctx, d.ActiveTab()); tabErr != nil {
		err = tabErr
	}
	return d.record(err)
}

// SelectTab switches tabs. Lazy dashboards fetch a tab on first selection.
func (d *Dashboard) SelectTab(ctx context.Context, tab Tab) error {
	d.mu.Lock()
	d.tab = tab
	needsLoad := d.strategy == Lazy && !d.loaded[tab]
	d.mu.Unlock()
	if !needsLoad {
		return nil
	}
	return d.record(d.loadTab(ctx, tab))
}

// SetBranch changes the branch filter. Lazy dashboards refetch the active tab.
func (d *Dashboard) SetBranch(ctx context.Context, branch string) error {
	d.source.SetSelectedBranch(branch)
	if d.strategy != Lazy {
		return nil
	}
	return d.record(d.loadTab(ctx, d.ActiveTab()))
}

// SetDateRange changes the work hours range and refetches the summary when it
// is on screen or already loaded.
func (d *Dashboard) SetDateRange(ctx context.Context, r monitor.DateRange) error {
	if !r.Valid() {
		return store.ErrInvalidRange
	}
	d.mu.Lock()
	d.dateRange = r
	refetch := d.strategy == Eager || d.tab == TabSummary || d.loaded[TabSummary]
	d.mu.Unlock()
	if !refetch {
		return nil
	}
	return d.record(d.loadTab(ctx, TabSummary))
}

// Retry repeats the load path that applies to the current view.
func (d *Dashboard) Retry(ctx context.Context) error {
	if d.strategy == Eager {
		return d.record(d.loadAll(ctx))
	}
	return d.record(d.loadTab(ctx, d.ActiveTab()))
}

func (d *Dashboard) loadAll(ctx context.Context) error {
	err := d.source.RefreshData(ctx)
	r := d.DateRange()
	if d.source.Snapshot().WorkHoursRange != r {
		if rangeErr := d.source.RefreshWorkHours(ctx, r); rangeErr != nil {
			err = rangeErr
		}
	}
	if err == nil {
		d.mu.Lock()
		for _, tab := range Tabs {
			d.loaded[tab] = true
		}
		d.mu.Unlock()
	}
	return err
}

func (d *Dashboard) loadTab(ctx context.Context, tab Tab) error {
	var err error
	switch tab {
	case TabOnline:
		err = d.source.RefreshOnlineStatus(ctx)
	case TabSessions:
		err = d.source.RefreshSessions(ctx)
	case TabActivity:
		err = d.source.RefreshActivityLogs(ctx)
	case TabSummary:
		err = d.source.RefreshWorkHours(ctx, d.DateRange())
	default:
		return fmt.Errorf("unknown tab %q", tab)
	}
	if err == nil {
		d.mu.Lock()
		d.loaded[tab] = true
		d.mu.Unlock()
	}
	return err
}

func (d *Dashboard) record(err error) error {
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
	return err
}
