// Package apiclient talks to the crew monitor HTTP API. It implements the
// same store and resolver interfaces the server uses, so a Monitor can run
// against a remote server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bbqstall/crew-monitor/internal/models"
	"bbqstall/crew-monitor/internal/store"
)

// Error is a non-2xx response from the API.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error (%d): %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap maps API error codes back to the store sentinels.
func (e *Error) Unwrap() error {
	switch e.Code {
	case "invalid_credentials":
		return store.ErrInvalidCredentials
	case "user_not_found":
		return store.ErrUserNotFound
	case "session_not_found":
		return store.ErrSessionNotFound
	case "branch_not_found":
		return store.ErrBranchNotFound
	case "invalid_activity":
		return store.ErrInvalidActivity
	case "invalid_range":
		return store.ErrInvalidRange
	default:
		return nil
	}
}

type Client struct {
	httpClient *http.Client
	server     string
	token      string
}

type LoginResult struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        models.User `json:"user"`
}

func New(server, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		server:     strings.TrimRight(server, "/"),
		token:      token,
	}
}

func (c *Client) Server() string {
	return c.server
}

func (c *Client) Token() string {
	return c.token
}

// Login exchanges credentials for an access token and keeps it for later
// requests.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var result LoginResult
	in := map[string]string{"email": email, "password": password}
	if err := c.request(ctx, http.MethodPost, "/api/auth/login", in, &result); err != nil {
		return LoginResult{}, err
	}
	c.token = result.AccessToken
	return result, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.request(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

// CurrentUser returns the token's user. A missing or rejected token means
// nobody is signed in.
func (c *Client) CurrentUser(ctx context.Context) (models.User, bool, error) {
	if c.token == "" {
		return models.User{}, false, nil
	}
	var user models.User
	if err := c.request(ctx, http.MethodGet, "/api/auth/me", nil, &user); err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return models.User{}, false, nil
		}
		return models.User{}, false, err
	}
	return user, true, nil
}

func (c *Client) GetOnlineStatus(ctx context.Context) ([]models.CrewOnlineStatus, error) {
	var rows []models.CrewOnlineStatus
	if err := c.request(ctx, http.MethodGet, "/api/crew/online-status", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) ListSessions(ctx context.Context, filter store.SessionFilter) ([]models.CrewSession, error) {
	query := url.Values{}
	setIf(query, "branch_id", filter.BranchID)
	if filter.Active != nil {
		query.Set("active", strconv.FormatBool(*filter.Active))
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	var rows []models.CrewSession
	if err := c.request(ctx, http.MethodGet, withQuery("/api/crew/sessions", query), nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) ListActivityLogs(ctx context.Context, filter store.ActivityFilter) ([]models.CrewActivityLog, error) {
	query := url.Values{}
	setIf(query, "branch_id", filter.BranchID)
	setIf(query, "user_id", filter.UserID)
	setIf(query, "type", string(filter.ActivityType))
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	var rows []models.CrewActivityLog
	if err := c.request(ctx, http.MethodGet, withQuery("/api/crew/activity", query), nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) GetWorkHoursSummary(ctx context.Context, start, end time.Time, branchID string) ([]models.CrewWorkHoursSummary, error) {
	query := url.Values{}
	query.Set("start_date", start.Format(time.DateOnly))
	query.Set("end_date", end.Format(time.DateOnly))
	setIf(query, "branch_id", branchID)
	var rows []models.CrewWorkHoursSummary
	if err := c.request(ctx, http.MethodGet, withQuery("/api/crew/work-hours", query), nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) ListBranches(ctx context.Context) ([]models.Branch, error) {
	var rows []models.Branch
	if err := c.request(ctx, http.MethodGet, "/api/branches", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// StartCrewSession opens a session for the token's user. The server takes
// the user from the token; input.UserID is not sent.
func (c *Client) StartCrewSession(ctx context.Context, input store.StartSessionInput) (string, error) {
	in := map[string]string{}
	if input.IPAddress != "" {
		in["ip_address"] = input.IPAddress
	}
	if input.UserAgent != "" {
		in["user_agent"] = input.UserAgent
	}
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.request(ctx, http.MethodPost, "/api/crew/sessions/start", in, &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

func (c *Client) EndCrewSession(ctx context.Context, userID string) error {
	return c.request(ctx, http.MethodPost, "/api/crew/sessions/end", nil, nil)
}

func (c *Client) UpdateCrewActivity(ctx context.Context, input store.ActivityInput) error {
	in := struct {
		ActivityType models.ActivityType `json:"activity_type"`
		ActivityData json.RawMessage     `json:"activity_data,omitempty"`
		CurrentPage  string              `json:"current_page,omitempty"`
	}{
		ActivityType: input.ActivityType,
		ActivityData: input.ActivityData,
		CurrentPage:  input.CurrentPage,
	}
	return c.request(ctx, http.MethodPost, "/api/crew/activity", in, nil)
}

// Monitoring fetches a rendered dashboard view. The result is decoded into
// out so callers choose the view type.
func (c *Client) Monitoring(ctx context.Context, params url.Values, out any) error {
	return c.request(ctx, http.MethodGet, withQuery("/api/crew/monitoring", params), nil, out)
}

func (c *Client) request(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.server+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(resp.Body)
		return decodeError(resp.StatusCode, payload)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(status int, payload []byte) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Error.Code != "" {
		return &Error{Status: status, Code: envelope.Error.Code, Message: envelope.Error.Message}
	}
	message := strings.TrimSpace(string(payload))
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Status: status, Message: message}
}

func setIf(query url.Values, key, value string) {
	if value != "" {
		query.Set(key, value)
	}
}

func withQuery(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}
	return path + "?" + query.Encode()
}

var _ store.CrewStore = (*Client)(nil)
