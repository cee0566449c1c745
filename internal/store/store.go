package store

import (
	"context"
	"encoding/json"
	"time"

	"bbqstall/crew-monitor/internal/models"
)

type SessionFilter struct {
	BranchID string
	// Active restricts to active (true) or ended (false) sessions when set.
	Active *bool
	Limit  int
}

type ActivityFilter struct {
	BranchID     string
	UserID       string
	ActivityType models.ActivityType
	Limit        int
}

type StartSessionInput struct {
	UserID    string
	IPAddress string
	UserAgent string
}

type ActivityInput struct {
	UserID       string
	ActivityType models.ActivityType
	ActivityData json.RawMessage
	CurrentPage  string
}

// CrewStore is the gateway to the crew session procedures and read models.
type CrewStore interface {
	GetOnlineStatus(ctx context.Context) ([]models.CrewOnlineStatus, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]models.CrewSession, error)
	ListActivityLogs(ctx context.Context, filter ActivityFilter) ([]models.CrewActivityLog, error)
	GetWorkHoursSummary(ctx context.Context, start, end time.Time, branchID string) ([]models.CrewWorkHoursSummary, error)
	ListBranches(ctx context.Context) ([]models.Branch, error)
	StartCrewSession(ctx context.Context, input StartSessionInput) (string, error)
	EndCrewSession(ctx context.Context, userID string) error
	UpdateCrewActivity(ctx context.Context, input ActivityInput) error
}

type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (models.User, string, error)
	GetUser(ctx context.Context, userID string) (models.User, error)
}

type OutboxEvent struct {
	EventID   string
	TableName string
	EventType string
	BranchID  string
	NewRow    []byte
	OldRow    []byte
	CreatedAt time.Time
}

type OutboxOffset struct {
	LastEventTime time.Time
	LastEventID   string
}

type OutboxStore interface {
	ListOutboxEvents(ctx context.Context, offset OutboxOffset, limit int) ([]OutboxEvent, error)
	GetOffset(ctx context.Context) (OutboxOffset, error)
	UpdateOffset(ctx context.Context, offset OutboxOffset) error
	CleanupOutbox(ctx context.Context, before time.Time) error
}

type Store interface {
	CrewStore
	UserStore
	OutboxStore
}
