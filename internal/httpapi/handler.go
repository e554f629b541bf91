package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strings"
	"time"

	"aze/timetrack-service/internal/models"
	"aze/timetrack-service/internal/store"

	"github.com/google/uuid"
)

type Handler struct {
	store         store.Store
	timerAutoStop bool
}

type Options struct {
	// TimerAutoStop switches the start-timer conflict policy from
	// reject (the default) to auto-stopping the previous entry.
	TimerAutoStop bool
}

func NewHandler(store store.Store, options Options) *Handler {
	return &Handler{
		store:         store,
		timerAutoStop: options.TimerAutoStop,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/sso", h.handleSSO)
	mux.HandleFunc("/api/auth/me", h.handleMe)
	mux.HandleFunc("/api/timer/start", h.handleTimerStart)
	mux.HandleFunc("/api/timer/stop", h.handleTimerStop)
	mux.HandleFunc("/api/timer/running", h.handleTimerRunning)
	mux.HandleFunc("/api/time-entries", h.handleTimeEntries)
	mux.HandleFunc("/api/time-entries/", h.handleTimeEntrySub)
	mux.HandleFunc("/api/approvals", h.handleApprovals)
	mux.HandleFunc("/api/approvals/", h.handleApprovalDecide)
	mux.HandleFunc("/api/master-data/", h.handleMasterData)
	mux.HandleFunc("/api/onboarding/location", h.handleOnboardingLocation)
	mux.HandleFunc("/api/users", h.handleUsers)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID string      `json:"session_id"`
	ExpiresAt string      `json:"expires_at"`
	User      models.User `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Password = strings.TrimSpace(req.Password)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	result, err := h.store.Login(r.Context(), store.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		SessionID: result.Session.SessionID,
		ExpiresAt: result.Session.ExpiresAt.Format(time.RFC3339),
		User:      result.User,
	})
}

func (h *Handler) handleSSO(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Provider    string `json:"provider"`
		Subject     string `json:"subject"`
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Provider = strings.TrimSpace(req.Provider)
	req.Subject = strings.TrimSpace(req.Subject)
	req.Email = strings.TrimSpace(req.Email)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.Provider == "" || req.Subject == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "provider, subject, and email are required")
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Email
	}

	result, err := h.store.SSOLogin(r.Context(), req.Provider, req.Subject, req.Email, req.DisplayName)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		SessionID: result.Session.SessionID,
		ExpiresAt: result.Session.ExpiresAt.Format(time.RFC3339),
		User:      result.User,
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	info, ok := requireAuth(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, info.User)
}

type timerStartRequest struct {
	Location string `json:"location"`
	Date     string `json:"date"`
}

func (h *Handler) handleTimerStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	info, ok := requireAuth(w, r)
	if !ok {
		return
	}

	var req timerStartRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Location = strings.TrimSpace(req.Location)
	req.Date = strings.TrimSpace(req.Date)
	if req.Location == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "location is required")
		return
	}
	if req.Date != "" && !isValidDate(req.Date) {
		writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}

	entry, err := h.store.StartTimer(r.Context(), store.StartTimerInput{
		UserID:    info.User.UserID,
		Location:  req.Location,
		EntryDate: req.Date,
		StartedAt: time.Now().UTC(),
		AutoStop:  h.timerAutoStop,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleTimerStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	info, ok := requireAuth(w, r)
	if !ok {
		return
	}

	entry, err := h.store.StopTimer(r.Context(), store.StopTimerInput{
		UserID:    info.User.UserID,
		StoppedAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleTimerRunning(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	info, ok := requireAuth(w, r)
	if !ok {
		return
	}

	entry, found, err := h.store.GetRunningEntry(r.Context(), info.User.UserID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleTimeEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	info, ok := requireAuth(w, r)
	if !ok {
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		userID = info.User.UserID
	}
	if userID != info.User.UserID {
		if _, ok := requireApprover(w, r); !ok {
			return
		}
		if !isValidUUID(userID) {
			writeError(w, http.StatusBadRequest, "invalid_request", "user_id must be a UUID")
			return
		}
	}

	from := strings.TrimSpace(r.URL.Query().Get("from"))
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	if (from != "" && !isValidDate(from)) || (to != "" && !isValidDate(to)) {
		writeError(w, http.StatusBadRequest, "invalid_request", "from and to must be YYYY-MM-DD")
		return
	}

	entries, err := h.store.ListTimeEntries(r.Context(), store.ListEntriesInput{UserID: userID, From: from, To: to})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleTimeEntrySub(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/time-entries/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[1] != "events" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	entryID := parts[0]
	if !isValidUUID(entryID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "entry_id must be a UUID")
		return
	}
	if _, ok := requireApprover(w, r); !ok {
		return
	}

	events, err := h.store.ListEntryEvents(r.Context(), entryID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type submitApprovalRequest struct {
	Type         string          `json:"type"`
	Target       string          `json:"target"`
	EntryID      string          `json:"entry_id"`
	TargetUserID string          `json:"target_user_id"`
	NewData      json.RawMessage `json:"new_data"`
	Reason       string          `json:"reason"`
}

func (h *Handler) handleApprovals(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleSubmitApproval(w, r)
	case http.MethodGet:
		h.handleListApprovals(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleSubmitApproval(w http.ResponseWriter, r *http.Request) {
	info, ok := requireAuth(w, r)
	if !ok {
		return
	}

	var req submitApprovalRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Type = strings.TrimSpace(req.Type)
	req.Target = strings.TrimSpace(req.Target)
	req.EntryID = strings.TrimSpace(req.EntryID)
	req.TargetUserID = strings.TrimSpace(req.TargetUserID)

	switch req.Type {
	case models.ApprovalTypeCreate, models.ApprovalTypeEdit, models.ApprovalTypeDelete:
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "type must be create, edit, or delete")
		return
	}
	if req.Target == "" {
		req.Target = models.TargetTimeEntry
	}
	switch req.Target {
	case models.TargetTimeEntry, models.TargetMasterData:
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "target must be time_entry or master_data")
		return
	}
	if req.EntryID != "" && !isValidUUID(req.EntryID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "entry_id must be a UUID")
		return
	}
	if req.TargetUserID != "" && !isValidUUID(req.TargetUserID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "target_user_id must be a UUID")
		return
	}

	request, err := h.store.SubmitApproval(r.Context(), store.SubmitApprovalInput{
		Type:         req.Type,
		Target:       req.Target,
		EntryID:      req.EntryID,
		TargetUserID: req.TargetUserID,
		NewData:      req.NewData,
		Reason:       req.Reason,
		RequestedBy:  info.User.UserID,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, request)
}

func (h *Handler) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireApprover(w, r); !ok {
		return
	}

	filter := strings.TrimSpace(r.URL.Query().Get("status"))
	switch filter {
	case "", models.ApprovalPending, models.ApprovalApproved, models.ApprovalRejected:
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "status must be pending, approved, or rejected")
		return
	}

	requests, err := h.store.ListApprovals(r.Context(), filter)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (h *Handler) handleApprovalDecide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/approvals/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[1] != "decide" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	requestID := parts[0]
	if !isValidUUID(requestID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}

	info, ok := requireAuth(w, r)
	if !ok {
		return
	}

	var req struct {
		Decision string `json:"decision"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Decision = strings.TrimSpace(req.Decision)
	if req.Decision != models.ApprovalApproved && req.Decision != models.ApprovalRejected {
		writeError(w, http.StatusBadRequest, "invalid_request", "decision must be approved or rejected")
		return
	}

	request, err := h.store.DecideApproval(r.Context(), store.DecideApprovalInput{
		RequestID: requestID,
		DeciderID: info.User.UserID,
		Decision:  req.Decision,
		DecidedAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

type masterDataRequest struct {
	WeeklyHours      float64            `json:"weekly_hours"`
	Workdays         []string           `json:"workdays"`
	FlexibleWorkdays bool               `json:"flexible_workdays"`
	CanWorkFromHome  bool               `json:"can_work_from_home"`
	DailyHours       map[string]float64 `json:"daily_hours"`
}

func (h *Handler) handleMasterData(w http.ResponseWriter, r *http.Request) {
	userID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/master-data/"), "/")
	if userID == "" || strings.Contains(userID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !isValidUUID(userID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id must be a UUID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if _, ok := requireSelfOrApprover(w, r, userID); !ok {
			return
		}
		data, err := h.store.GetMasterData(r.Context(), userID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, data)

	case http.MethodPut:
		info, ok := requireSelfOrApprover(w, r, userID)
		if !ok {
			return
		}
		var req masterDataRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		data, err := h.store.UpsertMasterData(r.Context(), store.UpsertMasterDataInput{
			UserID:           userID,
			WeeklyHours:      req.WeeklyHours,
			Workdays:         req.Workdays,
			FlexibleWorkdays: req.FlexibleWorkdays,
			CanWorkFromHome:  req.CanWorkFromHome,
			DailyHours:       req.DailyHours,
			UpdatedBy:        info.User.UserID,
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, data)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleOnboardingLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	info, ok := requireAuth(w, r)
	if !ok {
		return
	}

	var req struct {
		Location string `json:"location"`
	}
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Location = strings.TrimSpace(req.Location)
	if req.Location == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "location is required")
		return
	}

	user, err := h.store.CompleteOnboardingLocation(r.Context(), info.User.UserID, req.Location)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireApprover(w, r); !ok {
		return
	}

	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func isValidDate(value string) bool {
	_, err := time.Parse("2006-01-02", value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid credentials"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	case errors.Is(err, store.ErrRoleForbidden):
		return http.StatusForbidden, "access_denied", "role does not allow this action"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	case errors.Is(err, store.ErrEntryNotFound):
		return http.StatusNotFound, "entry_not_found", "time entry not found"
	case errors.Is(err, store.ErrMasterDataNotFound):
		return http.StatusNotFound, "master_data_not_found", "master data not found"
	case errors.Is(err, store.ErrRequestNotFound):
		return http.StatusNotFound, "request_not_found", "approval request not found"
	case errors.Is(err, store.ErrNoRunningTimer):
		return http.StatusNotFound, "no_running_timer", "no running timer"
	case errors.Is(err, store.ErrTimerRunning):
		return http.StatusConflict, "timer_running", "a timer is already running"
	case errors.Is(err, store.ErrTimerStopped):
		return http.StatusConflict, "timer_stopped", "timer was already stopped"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "request state does not allow this action"
	case errors.Is(err, store.ErrOnboardingIncomplete):
		return http.StatusConflict, "onboarding_incomplete", "onboarding is not complete"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: responseError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
