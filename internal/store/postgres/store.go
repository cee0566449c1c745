package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bbqstall/crew-monitor/internal/models"
	"bbqstall/crew-monitor/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	offsetConsumer   = "crew-monitor"
	zeroUUID         = "00000000-0000-0000-0000-000000000000"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) StartCrewSession(ctx context.Context, input store.StartSessionInput) (string, error) {
	var sessionID string
	row := s.pool.QueryRow(ctx, `SELECT start_crew_session($1, $2, $3)::text`,
		input.UserID, nullable(input.IPAddress), nullable(input.UserAgent))
	if err := row.Scan(&sessionID); err != nil {
		return "", mapProcedureError(err)
	}
	return sessionID, nil
}

func (s *Store) EndCrewSession(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `SELECT end_crew_session($1)`, userID); err != nil {
		return mapProcedureError(err)
	}
	return nil
}

func (s *Store) UpdateCrewActivity(ctx context.Context, input store.ActivityInput) error {
	if !input.ActivityType.Valid() {
		return store.ErrInvalidActivity
	}
	var data any
	if len(input.ActivityData) > 0 {
		data = string(input.ActivityData)
	}
	_, err := s.pool.Exec(ctx, `SELECT update_crew_activity($1, $2, $3::jsonb, $4)`,
		input.UserID, string(input.ActivityType), data, nullable(input.CurrentPage))
	if err != nil {
		return mapProcedureError(err)
	}
	return nil
}

func (s *Store) GetOnlineStatus(ctx context.Context) ([]models.CrewOnlineStatus, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id::text, COALESCE(name, ''), COALESCE(email, ''), COALESCE(branch_name, ''),
		       COALESCE(is_online, FALSE), last_seen, COALESCE(session_duration::text, ''), COALESCE(current_page, '')
		FROM get_crew_online_status()
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	statuses := []models.CrewOnlineStatus{}
	for rows.Next() {
		var status models.CrewOnlineStatus
		if err := rows.Scan(&status.UserID, &status.Name, &status.Email, &status.BranchName,
			&status.IsOnline, &status.LastSeen, &status.SessionDuration, &status.CurrentPage); err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return statuses, nil
}

func (s *Store) ListSessions(ctx context.Context, filter store.SessionFilter) ([]models.CrewSession, error) {
	query := `
		SELECT s.id::text, s.user_id::text, COALESCE(s.branch_id::text, ''), s.session_start, s.last_activity,
		       s.is_active, COALESCE(s.ip_address, ''), COALESCE(s.user_agent, ''),
		       COALESCE(u.name, ''), COALESCE(u.email, ''), COALESCE(b.name, '')
		FROM crew_sessions s
		LEFT JOIN admin_users u ON u.id = s.user_id
		LEFT JOIN branches b ON b.id = s.branch_id
	`
	var clauses []string
	var args []any
	if filter.BranchID != "" {
		args = append(args, filter.BranchID)
		clauses = append(clauses, fmt.Sprintf("s.branch_id = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("s.is_active = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, clampLimit(filter.Limit))
	query += fmt.Sprintf(" ORDER BY s.session_start DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []models.CrewSession{}
	for rows.Next() {
		var session models.CrewSession
		if err := rows.Scan(&session.ID, &session.UserID, &session.BranchID, &session.SessionStart, &session.LastActivity,
			&session.IsActive, &session.IPAddress, &session.UserAgent,
			&session.CrewName, &session.CrewEmail, &session.BranchName); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *Store) ListActivityLogs(ctx context.Context, filter store.ActivityFilter) ([]models.CrewActivityLog, error) {
	query := `
		SELECT l.id::text, l.user_id::text, COALESCE(l.branch_id::text, ''), l.activity_type,
		       COALESCE(l.activity_data, 'null'::jsonb), l.created_at,
		       COALESCE(u.name, ''), COALESCE(u.email, ''), COALESCE(b.name, '')
		FROM crew_activity_logs l
		LEFT JOIN admin_users u ON u.id = l.user_id
		LEFT JOIN branches b ON b.id = l.branch_id
	`
	var clauses []string
	var args []any
	if filter.BranchID != "" {
		args = append(args, filter.BranchID)
		clauses = append(clauses, fmt.Sprintf("l.branch_id = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		clauses = append(clauses, fmt.Sprintf("l.user_id = $%d", len(args)))
	}
	if filter.ActivityType != "" {
		args = append(args, string(filter.ActivityType))
		clauses = append(clauses, fmt.Sprintf("l.activity_type = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, clampLimit(filter.Limit))
	query += fmt.Sprintf(" ORDER BY l.created_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.CrewActivityLog{}
	for rows.Next() {
		var entry models.CrewActivityLog
		var activityType string
		var data []byte
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.BranchID, &activityType, &data, &entry.CreatedAt,
			&entry.CrewName, &entry.CrewEmail, &entry.BranchName); err != nil {
			return nil, err
		}
		entry.ActivityType = models.ActivityType(activityType)
		entry.ActivityData = json.RawMessage(data)
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) GetWorkHoursSummary(ctx context.Context, start, end time.Time, branchID string) ([]models.CrewWorkHoursSummary, error) {
	if end.Before(start) {
		return nil, store.ErrInvalidRange
	}
	rows, err := s.pool.Query(ctx, `
		SELECT user_id::text, COALESCE(name, ''), COALESCE(email, ''), COALESCE(branch_name, ''),
		       COALESCE(total_hours, 0)::float8, COALESCE(total_sessions, 0), COALESCE(avg_session_duration::text, '')
		FROM get_crew_work_hours_summary($1::date, $2::date, $3::uuid)
	`, start.Format(time.DateOnly), end.Format(time.DateOnly), nullable(branchID))
	if err != nil {
		return nil, mapProcedureError(err)
	}
	defer rows.Close()

	summaries := []models.CrewWorkHoursSummary{}
	for rows.Next() {
		var summary models.CrewWorkHoursSummary
		var sessions int64
		if err := rows.Scan(&summary.UserID, &summary.Name, &summary.Email, &summary.BranchName,
			&summary.TotalHours, &sessions, &summary.AvgSessionDuration); err != nil {
			return nil, err
		}
		summary.TotalSessions = int(sessions)
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *Store) ListBranches(ctx context.Context) ([]models.Branch, error) {
	rows, err := s.pool.Query(ctx, `SELECT id::text, name FROM branches ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := []models.Branch{}
	for rows.Next() {
		var branch models.Branch
		if err := rows.Scan(&branch.ID, &branch.Name); err != nil {
			return nil, err
		}
		branches = append(branches, branch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return branches, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, string, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id::text, email, name, role, COALESCE(branch_id::text, ''), metadata, password_hash
		FROM admin_users
		WHERE lower(email) = lower($1) AND active = TRUE
	`, email)
	var user models.User
	var metadata []byte
	var passwordHash string
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.BranchID, &metadata, &passwordHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, "", store.ErrUserNotFound
		}
		return models.User{}, "", err
	}
	user.Metadata = decodeMetadata(metadata)
	return user, passwordHash, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (models.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id::text, email, name, role, COALESCE(branch_id::text, ''), metadata
		FROM admin_users
		WHERE id = $1 AND active = TRUE
	`, userID)
	var user models.User
	var metadata []byte
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.BranchID, &metadata); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrUserNotFound
		}
		return models.User{}, err
	}
	user.Metadata = decodeMetadata(metadata)
	return user, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, offset store.OutboxOffset, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset.LastEventTime.IsZero() {
		offset.LastEventTime = time.Unix(0, 0).UTC()
	}
	if offset.LastEventID == "" {
		offset.LastEventID = zeroUUID
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id::text, table_name, event_type, COALESCE(branch_id::text, ''), new_row, old_row, created_at
		FROM crew_change_events
		WHERE (created_at, event_id) > ($1, $2::uuid)
		ORDER BY created_at ASC, event_id ASC
		LIMIT $3
	`, offset.LastEventTime, offset.LastEventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.TableName, &event.EventType, &event.BranchID,
			&event.NewRow, &event.OldRow, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) GetOffset(ctx context.Context) (store.OutboxOffset, error) {
	var offset store.OutboxOffset
	row := s.pool.QueryRow(ctx, `
		SELECT last_event_time, last_event_id::text
		FROM realtime_offsets
		WHERE consumer = $1
	`, offsetConsumer)
	if err := row.Scan(&offset.LastEventTime, &offset.LastEventID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.OutboxOffset{}, nil
		}
		return store.OutboxOffset{}, err
	}
	return offset, nil
}

func (s *Store) UpdateOffset(ctx context.Context, offset store.OutboxOffset) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO realtime_offsets (consumer, last_event_time, last_event_id, updated_at)
		VALUES ($1, $2, $3::uuid, now())
		ON CONFLICT (consumer) DO UPDATE
		SET last_event_time = EXCLUDED.last_event_time,
		    last_event_id = EXCLUDED.last_event_id,
		    updated_at = now()
	`, offsetConsumer, offset.LastEventTime, offset.LastEventID)
	return err
}

func (s *Store) CleanupOutbox(ctx context.Context, before time.Time) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM crew_change_events WHERE created_at < $1`, before)
	return err
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func decodeMetadata(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		if text, ok := value.(string); ok {
			out[key] = text
			continue
		}
		out[key] = fmt.Sprint(value)
	}
	return out
}

// mapProcedureError turns the SQLSTATEs raised by the crew procedures into
// store sentinels.
func mapProcedureError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "P0002", "23503":
		return fmt.Errorf("%w: %s", store.ErrUserNotFound, pgErr.Message)
	case "23514":
		return fmt.Errorf("%w: %s", store.ErrInvalidActivity, pgErr.Message)
	case "22P02":
		return fmt.Errorf("invalid input: %w", err)
	default:
		return err
	}
}
