package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bbqstall/crew-monitor/internal/models"
	"bbqstall/crew-monitor/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func TestLoginStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			var in map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, "ana@example.com", in["email"])
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token": "tok-1",
				"token_type":   "bearer",
				"expires_at":   "2026-10-17T17:00:00Z",
				"user":         models.User{ID: "u1", Role: models.RoleCrew},
			})
		case "/api/auth/me":
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			writeJSON(w, http.StatusOK, models.User{ID: "u1", Name: "Ana"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := New(srv.URL+"/", "")
	user, ok, err := client.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "no token means no user")
	assert.Empty(t, user.ID)

	result, err := client.Login(context.Background(), "ana@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", client.Token())
	assert.Equal(t, time.Date(2026, 10, 17, 17, 0, 0, 0, time.UTC), result.ExpiresAt)

	user, ok, err = client.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Ana", user.Name)
}

func TestCurrentUserTreatsUnauthorizedAsSignedOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]string{"code": "unauthorized", "message": "invalid access token"}})
	}))
	defer srv.Close()

	_, ok, err := New(srv.URL, "expired").CurrentUser(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestErrorsMapToSentinels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"request_id": "", "error": map[string]string{"code": "invalid_credentials", "message": "invalid credentials"}})
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").Login(context.Background(), "ana@example.com", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrInvalidCredentials)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestPlainTextErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "tok").GetOnlineStatus(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api error (502)")
	assert.Contains(t, err.Error(), "upstream exploded")
	assert.False(t, errors.Is(err, store.ErrUserNotFound))
}

func TestReadQueries(t *testing.T) {
	seen := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen[r.URL.Path] = r.URL.RawQuery
		writeJSON(w, http.StatusOK, []any{})
	}))
	defer srv.Close()

	client := New(srv.URL, "tok")
	ctx := context.Background()
	active := true

	_, err := client.ListSessions(ctx, store.SessionFilter{BranchID: "b1", Active: &active, Limit: 25})
	require.NoError(t, err)
	_, err = client.ListActivityLogs(ctx, store.ActivityFilter{UserID: "u1", ActivityType: models.ActivityLogin})
	require.NoError(t, err)
	_, err = client.GetWorkHoursSummary(ctx, time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC), time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	_, err = client.ListBranches(ctx)
	require.NoError(t, err)

	assert.Equal(t, "active=true&branch_id=b1&limit=25", seen["/api/crew/sessions"])
	assert.Equal(t, "type=login&user_id=u1", seen["/api/crew/activity"])
	assert.Equal(t, "end_date=2026-10-17&start_date=2026-10-10", seen["/api/crew/work-hours"])
	assert.Equal(t, "", seen["/api/branches"])
}

func TestSessionMutators(t *testing.T) {
	var activity map[string]any
	var startBody map[string]string
	ended := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		switch r.URL.Path {
		case "/api/crew/sessions/start":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&startBody))
			writeJSON(w, http.StatusOK, map[string]string{"session_id": "s-9"})
		case "/api/crew/sessions/end":
			ended = true
			writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
		case "/api/crew/activity":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&activity))
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		}
	}))
	defer srv.Close()

	client := New(srv.URL, "tok")
	ctx := context.Background()

	sessionID, err := client.StartCrewSession(ctx, store.StartSessionInput{UserID: "u1", UserAgent: "crewctl"})
	require.NoError(t, err)
	assert.Equal(t, "s-9", sessionID)
	assert.Equal(t, map[string]string{"user_agent": "crewctl"}, startBody)

	require.NoError(t, client.EndCrewSession(ctx, "u1"))
	assert.True(t, ended)

	err = client.UpdateCrewActivity(ctx, store.ActivityInput{ActivityType: models.ActivityAction, ActivityData: json.RawMessage(`{"action":"refund"}`)})
	require.NoError(t, err)
	assert.Equal(t, "action", activity["activity_type"])
	assert.Equal(t, map[string]any{"action": "refund"}, activity["activity_data"])
}
