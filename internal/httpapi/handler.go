package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"bbqstall/crew-monitor/internal/auth"
	"bbqstall/crew-monitor/internal/dashboard"
	"bbqstall/crew-monitor/internal/metrics"
	"bbqstall/crew-monitor/internal/models"
	"bbqstall/crew-monitor/internal/monitor"
	"bbqstall/crew-monitor/internal/store"

	"github.com/google/uuid"
)

// CrewMonitor is the server-side monitor the mutating and dashboard
// endpoints go through.
type CrewMonitor interface {
	dashboard.Source
	StartCrewSession(ctx context.Context, ipAddress, userAgent string) (string, error)
	EndCrewSession(ctx context.Context) error
	UpdateCrewActivity(ctx context.Context, activityType models.ActivityType, activityData json.RawMessage, currentPage string)
}

type Handler struct {
	store   store.Store
	tokens  *auth.TokenManager
	monitor    CrewMonitor
	now        func() time.Time
	trustProxy bool
}

type Options struct {
	Now func() time.Time
	// TrustProxy takes the caller address from X-Forwarded-For. Enable it
	// only behind a proxy that overwrites the header.
	TrustProxy bool
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   string      `json:"expires_at"`
	User        models.User `json:"user"`
}

type startSessionRequest struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

type startSessionResponse struct {
	SessionID string `json:"session_id"`
}

type activityRequest struct {
	ActivityType models.ActivityType `json:"activity_type"`
	ActivityData json.RawMessage     `json:"activity_data"`
	CurrentPage  string              `json:"current_page"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func NewHandler(st store.Store, tokens *auth.TokenManager, mon CrewMonitor, options Options) *Handler {
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Handler{
		store:      st,
		tokens:     tokens,
		monitor:    mon,
		now:        options.Now,
		trustProxy: options.TrustProxy,
	}
}

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
	mux.HandleFunc("/api/auth/me", h.handleMe)
	mux.HandleFunc("/api/branches", h.handleBranches)
	mux.HandleFunc("/api/crew/online-status", h.handleOnlineStatus)
	mux.HandleFunc("/api/crew/sessions", h.handleSessions)
	mux.HandleFunc("/api/crew/sessions/start", h.handleStartSession)
	mux.HandleFunc("/api/crew/sessions/end", h.handleEndSession)
	mux.HandleFunc("/api/crew/activity", h.handleActivity)
	mux.HandleFunc("/api/crew/work-hours", h.handleWorkHours)
	mux.HandleFunc("/api/crew/monitoring", h.handleMonitoring)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requestID := requestIDFromRequest(r)

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	user, err := auth.Authenticate(r.Context(), h.store, req.Email, req.Password)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	token, expiresAt, err := h.tokens.Issue(user)
	if err != nil {
		writeError(w, requestID, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
		User:        user,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.monitor.EndCrewSession(r.Context()); err != nil && !errors.Is(err, store.ErrSessionNotFound) {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "signed_out"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requestID := requestIDFromRequest(r)
	claimed, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, requestID, http.StatusUnauthorized, "unauthorized", "missing access token")
		return
	}
	user, err := h.store.GetUser(r.Context(), claimed.ID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			writeError(w, requestID, http.StatusUnauthorized, "unauthorized", "user no longer active")
			return
		}
		writeError(w, requestID, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleBranches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	branches, err := h.store.ListBranches(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, branches)
}

func (h *Handler) handleOnlineStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireAdmin(w, r) {
		return
	}
	rows, err := h.store.GetOnlineStatus(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireAdmin(w, r) {
		return
	}
	requestID := requestIDFromRequest(r)
	query := r.URL.Query()

	filter := store.SessionFilter{BranchID: strings.TrimSpace(query.Get("branch_id"))}
	if filter.BranchID != "" && !isValidUUID(filter.BranchID) {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "branch_id must be a UUID")
		return
	}
	if raw := strings.TrimSpace(query.Get("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, requestID, http.StatusBadRequest, "invalid_request", "active must be true or false")
			return
		}
		filter.Active = &active
	}
	limit, ok := readLimit(w, r)
	if !ok {
		return
	}
	filter.Limit = limit

	sessions, err := h.store.ListSessions(r.Context(), filter)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listActivity(w, r)
	case http.MethodPost:
		h.recordActivity(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listActivity(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	requestID := requestIDFromRequest(r)
	query := r.URL.Query()

	filter := store.ActivityFilter{
		BranchID:     strings.TrimSpace(query.Get("branch_id")),
		UserID:       strings.TrimSpace(query.Get("user_id")),
		ActivityType: models.ActivityType(strings.TrimSpace(query.Get("type"))),
	}
	if (filter.BranchID != "" && !isValidUUID(filter.BranchID)) || (filter.UserID != "" && !isValidUUID(filter.UserID)) {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "branch_id and user_id must be UUIDs")
		return
	}
	if filter.ActivityType != "" && !filter.ActivityType.Valid() {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "unknown activity type")
		return
	}
	limit, ok := readLimit(w, r)
	if !ok {
		return
	}
	filter.Limit = limit

	logs, err := h.store.ListActivityLogs(r.Context(), filter)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) recordActivity(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromRequest(r)
	if _, ok := UserFromContext(r.Context()); !ok {
		writeError(w, requestID, http.StatusUnauthorized, "unauthorized", "missing access token")
		return
	}
	var req activityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.ActivityType.Valid() {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "unknown activity type")
		return
	}
	h.monitor.UpdateCrewActivity(r.Context(), req.ActivityType, req.ActivityData, strings.TrimSpace(req.CurrentPage))
	writeJSON(w, http.StatusAccepted, statusResponse{Status: "accepted"})
}

func (h *Handler) handleWorkHours(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireAdmin(w, r) {
		return
	}
	requestID := requestIDFromRequest(r)
	query := r.URL.Query()

	dateRange, ok := readDateRange(w, r)
	if !ok {
		return
	}
	if !dateRange.Valid() {
		dateRange = monitor.LastWeek(h.now())
	}
	branchID := strings.TrimSpace(query.Get("branch_id"))
	if branchID != "" && !isValidUUID(branchID) {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "branch_id must be a UUID")
		return
	}

	rows, err := h.store.GetWorkHoursSummary(r.Context(), dateRange.Start, dateRange.End, branchID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requestID := requestIDFromRequest(r)
	if _, ok := UserFromContext(r.Context()); !ok {
		writeError(w, requestID, http.StatusUnauthorized, "unauthorized", "missing access token")
		return
	}
	var req startSessionRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	ip := strings.TrimSpace(req.IPAddress)
	if ip == "" {
		ip = clientIP(r, h.trustProxy)
	}
	userAgent := strings.TrimSpace(req.UserAgent)
	if userAgent == "" {
		userAgent = r.UserAgent()
	}

	sessionID, err := h.monitor.StartCrewSession(r.Context(), ip, userAgent)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, startSessionResponse{SessionID: sessionID})
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requestID := requestIDFromRequest(r)
	if _, ok := UserFromContext(r.Context()); !ok {
		writeError(w, requestID, http.StatusUnauthorized, "unauthorized", "missing access token")
		return
	}
	if err := h.monitor.EndCrewSession(r.Context()); err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestID, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ended"})
}

func (h *Handler) handleMonitoring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireAdmin(w, r) {
		return
	}
	requestID := requestIDFromRequest(r)
	query := r.URL.Query()

	tab, err := dashboard.ParseTab(query.Get("tab"))
	if err != nil {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	strategy, err := dashboard.ParseLoadStrategy(query.Get("strategy"))
	if err != nil {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	dateRange, ok := readDateRange(w, r)
	if !ok {
		return
	}

	source := &requestSource{
		Source:  h.monitor,
		gateway: h.store,
		branch:  strings.TrimSpace(query.Get("branch")),
		now:     h.now,
	}
	board := dashboard.New(source, dashboard.Options{
		Strategy: strategy,
		Tab:      tab,
		Range:    dateRange,
		Now:      h.now,
	})
	// Load failures are reported in the view's error banner.
	_ = board.Open(r.Context())
	writeJSON(w, http.StatusOK, board.View())
}

// requestSource scopes the branch filter and the work hours summary to one
// request. The other projections are read from the shared monitor.
type requestSource struct {
	dashboard.Source
	gateway store.CrewStore
	now     func() time.Time

	mu         sync.Mutex
	branch     string
	workHours  []models.CrewWorkHoursSummary
	workRange  monitor.DateRange
	workStatus monitor.SliceStatus
}

func (s *requestSource) Snapshot() monitor.State {
	state := s.Source.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	state.SelectedBranch = s.branch
	state.WorkHours = s.workHours
	state.WorkHoursRange = s.workRange
	statuses := make(map[monitor.Slice]monitor.SliceStatus, len(state.Slices)+1)
	for name, status := range state.Slices {
		statuses[name] = status
	}
	statuses[monitor.SliceWorkHours] = s.workStatus
	state.Slices = statuses
	return state
}

func (s *requestSource) SetSelectedBranch(branch string) {
	s.mu.Lock()
	s.branch = strings.TrimSpace(branch)
	s.mu.Unlock()
}

// RefreshWorkHours reads the summary for r straight from the store so
// requests with different ranges never share rows.
func (s *requestSource) RefreshWorkHours(ctx context.Context, r monitor.DateRange) error {
	if !r.Valid() {
		return store.ErrInvalidRange
	}
	rows, err := s.gateway.GetWorkHoursSummary(ctx, r.Start, r.End, "")

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.workStatus.Err = err
		return fmt.Errorf("%s: %w", monitor.SliceWorkHours, err)
	}
	s.workHours = rows
	s.workRange = r
	s.workStatus = monitor.SliceStatus{Loaded: true, LastSuccess: s.now()}
	return nil
}

func readLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
		return 0, false
	}
	return limit, true
}

// readDateRange parses start_date and end_date. Both absent yields a zero
// range; one without the other or an inverted range is rejected.
func readDateRange(w http.ResponseWriter, r *http.Request) (monitor.DateRange, bool) {
	query := r.URL.Query()
	startRaw := strings.TrimSpace(query.Get("start_date"))
	endRaw := strings.TrimSpace(query.Get("end_date"))
	if startRaw == "" && endRaw == "" {
		return monitor.DateRange{}, true
	}
	requestID := requestIDFromRequest(r)
	start, startErr := time.Parse(time.DateOnly, startRaw)
	end, endErr := time.Parse(time.DateOnly, endRaw)
	if startErr != nil || endErr != nil {
		writeError(w, requestID, http.StatusBadRequest, "invalid_request", "start_date and end_date must be YYYY-MM-DD")
		return monitor.DateRange{}, false
	}
	dateRange := monitor.DateRange{Start: start, End: end}
	if !dateRange.Valid() {
		status, code, msg := mapError(store.ErrInvalidRange)
		writeError(w, requestID, status, code, msg)
		return monitor.DateRange{}, false
	}
	return dateRange, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid credentials"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found", "no active crew session"
	case errors.Is(err, store.ErrBranchNotFound):
		return http.StatusNotFound, "branch_not_found", "branch not found"
	case errors.Is(err, store.ErrInvalidActivity):
		return http.StatusBadRequest, "invalid_activity", "invalid activity type"
	case errors.Is(err, store.ErrInvalidRange):
		return http.StatusBadRequest, "invalid_range", "start_date must not be after end_date"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", "upstream timeout"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
