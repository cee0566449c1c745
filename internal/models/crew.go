package models

import (
	"encoding/json"
	"time"
)

type ActivityType string

const (
	ActivityLogin     ActivityType = "login"
	ActivityLogout    ActivityType = "logout"
	ActivityHeartbeat ActivityType = "heartbeat"
	ActivityPageView  ActivityType = "page_view"
	ActivityAction    ActivityType = "action"
)

func (t ActivityType) Valid() bool {
	switch t {
	case ActivityLogin, ActivityLogout, ActivityHeartbeat, ActivityPageView, ActivityAction:
		return true
	default:
		return false
	}
}

// CrewOnlineStatus is one row of get_crew_online_status. SessionDuration is
// the interval text returned by the database.
type CrewOnlineStatus struct {
	UserID          string    `json:"user_id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	BranchName      string    `json:"branch_name"`
	IsOnline        bool      `json:"is_online"`
	LastSeen        time.Time `json:"last_seen"`
	SessionDuration string    `json:"session_duration"`
	CurrentPage     string    `json:"current_page"`
}

type CrewSession struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	BranchID     string    `json:"branch_id"`
	SessionStart time.Time `json:"session_start"`
	LastActivity time.Time `json:"last_activity"`
	IsActive     bool      `json:"is_active"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	CrewName     string    `json:"crew_name"`
	CrewEmail    string    `json:"crew_email"`
	BranchName   string    `json:"branch_name"`
}

type CrewActivityLog struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	BranchID     string          `json:"branch_id"`
	ActivityType ActivityType    `json:"activity_type"`
	ActivityData json.RawMessage `json:"activity_data"`
	CreatedAt    time.Time       `json:"created_at"`
	CrewName     string          `json:"crew_name"`
	CrewEmail    string          `json:"crew_email"`
	BranchName   string          `json:"branch_name"`
}

type CrewWorkHoursSummary struct {
	UserID             string  `json:"user_id"`
	Name               string  `json:"name"`
	Email              string  `json:"email"`
	BranchName         string  `json:"branch_name"`
	TotalHours         float64 `json:"total_hours"`
	TotalSessions      int     `json:"total_sessions"`
	AvgSessionDuration string  `json:"avg_session_duration"`
}
