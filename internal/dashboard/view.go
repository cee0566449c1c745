package dashboard

import (
	"fmt"
	"time"

	"bbqstall/crew-monitor/internal/models"
	"bbqstall/crew-monitor/internal/monitor"
)

const (
	emptyOnline   = "No crew members are being tracked yet"
	emptySessions = "No crew sessions found"
	emptyActivity = "No recent crew activity"
	emptySummary  = "No work hours recorded for this period"
)

type View struct {
	Tab              Tab             `json:"tab"`
	Tabs             []Tab           `json:"tabs"`
	Strategy         LoadStrategy    `json:"strategy"`
	SelectedBranch   string          `json:"selected_branch"`
	Branches         []models.Branch `json:"branches"`
	ConnectionStatus string          `json:"connection_status"`
	Loading          bool            `json:"loading"`
	Error            string          `json:"error,omitempty"`
	CanRetry         bool            `json:"can_retry"`
	StartDate        string          `json:"start_date"`
	EndDate          string          `json:"end_date"`
	OnlineCount      int             `json:"online_count"`
	ActiveSessions   int             `json:"active_sessions"`
	LastUpdated      string          `json:"last_updated"`
	EmptyMessage     string          `json:"empty_message,omitempty"`
	Online           []OnlineRow     `json:"online,omitempty"`
	Sessions         []SessionRow    `json:"sessions,omitempty"`
	Activity         []ActivityRow   `json:"activity,omitempty"`
	Summary          []SummaryRow    `json:"summary,omitempty"`
}

type OnlineRow struct {
	UserID          string `json:"user_id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Branch          string `json:"branch"`
	Online          bool   `json:"online"`
	Status          string `json:"status"`
	LastSeen        string `json:"last_seen"`
	SessionDuration string `json:"session_duration"`
	CurrentPage     string `json:"current_page"`
}

type SessionRow struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Branch       string `json:"branch"`
	Status       string `json:"status"`
	Started      string `json:"started"`
	LastActivity string `json:"last_activity"`
	Duration     string `json:"duration"`
	IPAddress    string `json:"ip_address"`
	Device       string `json:"device"`
}

type ActivityRow struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Branch  string `json:"branch"`
	Type    string `json:"type"`
	Details string `json:"details"`
	When    string `json:"when"`
}

type SummaryRow struct {
	UserID        string `json:"user_id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Branch        string `json:"branch"`
	TotalHours    string `json:"total_hours"`
	TotalSessions int    `json:"total_sessions"`
	AvgSession    string `json:"avg_session"`
}

// View renders the active tab from the current monitor state.
func (d *Dashboard) View() View {
	state := d.source.Snapshot()
	now := d.now()

	d.mu.Lock()
	tab := d.tab
	dateRange := d.dateRange
	lastErr := d.lastErr
	d.mu.Unlock()

	view := View{
		Tab:              tab,
		Tabs:             Tabs,
		Strategy:         d.strategy,
		SelectedBranch:   state.SelectedBranch,
		Branches:         state.Branches,
		ConnectionStatus: string(state.ConnectionStatus),
		Loading:          state.Loading,
		StartDate:        dateRange.Start.Format(time.DateOnly),
		EndDate:          dateRange.End.Format(time.DateOnly),
	}
	if lastErr != nil {
		view.Error = fmt.Sprintf("Failed to load crew data: %v", lastErr)
		view.CanRetry = true
	}

	idByName := make(map[string]string, len(state.Branches))
	for _, branch := range state.Branches {
		idByName[branch.Name] = branch.ID
	}
	byName := func(name string) (string, string) { return idByName[name], name }
	branch := state.SelectedBranch

	online := FilterByBranch(state.OnlineStatus, branch, func(row models.CrewOnlineStatus) (string, string) { return byName(row.BranchName) })
	sessions := FilterByBranch(state.Sessions, branch, func(row models.CrewSession) (string, string) { return row.BranchID, row.BranchName })
	for _, row := range online {
		if row.IsOnline {
			view.OnlineCount++
		}
	}
	for _, row := range sessions {
		if row.IsActive {
			view.ActiveSessions++
		}
	}

	var slice monitor.Slice
	switch tab {
	case TabOnline:
		slice = monitor.SliceOnlineStatus
		view.Online = onlineRows(online, now)
		if len(view.Online) == 0 {
			view.EmptyMessage = emptyOnline
		}
	case TabSessions:
		slice = monitor.SliceSessions
		view.Sessions = sessionRows(sessions, now)
		if len(view.Sessions) == 0 {
			view.EmptyMessage = emptySessions
		}
	case TabActivity:
		slice = monitor.SliceActivityLogs
		logs := FilterByBranch(state.ActivityLogs, branch, func(row models.CrewActivityLog) (string, string) { return row.BranchID, row.BranchName })
		view.Activity = activityRows(logs, now)
		if len(view.Activity) == 0 {
			view.EmptyMessage = emptyActivity
		}
	case TabSummary:
		slice = monitor.SliceWorkHours
		summary := FilterByBranch(state.WorkHours, branch, func(row models.CrewWorkHoursSummary) (string, string) { return byName(row.BranchName) })
		view.Summary = summaryRows(summary)
		if len(view.Summary) == 0 {
			view.EmptyMessage = emptySummary
		}
	}
	if status, ok := state.Slices[slice]; ok && status.Loaded {
		view.LastUpdated = FormatTimeAgo(status.LastSuccess, now)
	}
	return view
}

func onlineRows(rows []models.CrewOnlineStatus, now time.Time) []OnlineRow {
	out := make([]OnlineRow, 0, len(rows))
	for _, row := range rows {
		status := "Offline"
		if row.IsOnline {
			status = "Online"
		}
		out = append(out, OnlineRow{
			UserID:          row.UserID,
			Name:            row.Name,
			Email:           row.Email,
			Branch:          orDash(row.BranchName),
			Online:          row.IsOnline,
			Status:          status,
			LastSeen:        FormatTimeAgo(row.LastSeen, now),
			SessionDuration: FormatDuration(row.SessionDuration),
			CurrentPage:     orDash(row.CurrentPage),
		})
	}
	return out
}

func sessionRows(rows []models.CrewSession, now time.Time) []SessionRow {
	out := make([]SessionRow, 0, len(rows))
	for _, row := range rows {
		status := "Ended"
		end := row.LastActivity
		if row.IsActive {
			status = "Active"
			end = now
		}
		device := "-"
		if row.UserAgent != "" {
			device = shortDevice(row.UserAgent)
		}
		out = append(out, SessionRow{
			ID:           row.ID,
			Name:         row.CrewName,
			Email:        row.CrewEmail,
			Branch:       orDash(row.BranchName),
			Status:       status,
			Started:      row.SessionStart.Local().Format("2006-01-02 15:04"),
			LastActivity: FormatTimeAgo(row.LastActivity, now),
			Duration:     FormatDurationValue(end.Sub(row.SessionStart)),
			IPAddress:    orDash(row.IPAddress),
			Device:       device,
		})
	}
	return out
}

func activityRows(rows []models.CrewActivityLog, now time.Time) []ActivityRow {
	out := make([]ActivityRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, ActivityRow{
			ID:      row.ID,
			Name:    row.CrewName,
			Branch:  orDash(row.BranchName),
			Type:    activityLabel(row.ActivityType),
			Details: FormatActivityData(row.ActivityType, row.ActivityData),
			When:    FormatTimeAgo(row.CreatedAt, now),
		})
	}
	return out
}

func summaryRows(rows []models.CrewWorkHoursSummary) []SummaryRow {
	out := make([]SummaryRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, SummaryRow{
			UserID:        row.UserID,
			Name:          row.Name,
			Email:         row.Email,
			Branch:        orDash(row.BranchName),
			TotalHours:    fmt.Sprintf("%.1fh", row.TotalHours),
			TotalSessions: row.TotalSessions,
			AvgSession:    FormatDuration(row.AvgSessionDuration),
		})
	}
	return out
}

func activityLabel(activityType models.ActivityType) string {
	switch activityType {
	case models.ActivityLogin:
		return "Login"
	case models.ActivityLogout:
		return "Logout"
	case models.ActivityHeartbeat:
		return "Heartbeat"
	case models.ActivityPageView:
		return "Page view"
	case models.ActivityAction:
		return "Action"
	default:
		return string(activityType)
	}
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
