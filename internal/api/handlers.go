// Package api exposes HTTP handlers for the coaching schedule service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lautaro-loggia/fitcoach-sub003/internal/auth"
	"github.com/lautaro-loggia/fitcoach-sub003/internal/domain"
	"github.com/lautaro-loggia/fitcoach-sub003/internal/observability"
	"github.com/lautaro-loggia/fitcoach-sub003/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/completions", h.completions)
	mux.HandleFunc("/v1/clients/", h.clientSubresource)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) completions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	h.recordCompletion(w, r)
}

// clientSubresource dispatches /v1/clients/{id}/... paths.
func (h *Handler) clientSubresource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/clients/")
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing client id")
		return
	}
	clientID := parts[0]
	sub := strings.Join(parts[1:], "/")

	switch {
	case sub == "due" && r.Method == http.MethodGet:
		h.dueActivities(w, r, clientID)
	case sub == "completions" && r.Method == http.MethodGet:
		h.listCompletions(w, r, clientID)
	case sub == "checkin" && r.Method == http.MethodGet:
		h.checkinStatus(w, r, clientID)
	case sub == "checkin/reschedule" && r.Method == http.MethodPost:
		h.rescheduleCheckin(w, r, clientID)
	case sub == "cadence" && r.Method == http.MethodPost:
		h.createCadence(w, r, clientID)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
	}
}

func (h *Handler) recordCompletion(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeCompletionsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope completions:write required")
		return
	}

	var req RecordCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	outcome, err := h.service.RecordCompletion(r.Context(), domain.RecordCompletionInput{
		TenantID:   claims.TenantID,
		ClientID:   req.ClientID,
		ActivityID: req.ActivityID,
		OccurredAt: req.OccurredAt,
		Payload:    req.Payload,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if outcome.AlreadyCompleted {
		status = http.StatusOK
		observability.RecordIdempotentReplay()
	}
	writeJSON(w, status, RecordCompletionResponse{
		Record:           toCompletionView(outcome.Record),
		AlreadyCompleted: outcome.AlreadyCompleted,
	})
}

func (h *Handler) dueActivities(w http.ResponseWriter, r *http.Request, clientID string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeSchedulesRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope schedules:read required")
		return
	}

	var (
		day domain.CalendarDay
		err error
	)
	if raw := r.URL.Query().Get("date"); raw != "" {
		day, err = domain.ParseCalendarDay(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid date parameter")
			return
		}
	} else {
		day = h.service.Today()
	}

	due, err := h.service.DueOn(r.Context(), claims.TenantID, clientID, day)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]ActivityView, 0, len(due))
	for _, activity := range due {
		items = append(items, toActivityView(activity))
	}
	writeJSON(w, http.StatusOK, DueActivitiesResponse{Day: day.String(), Items: items})
}

func (h *Handler) listCompletions(w http.ResponseWriter, r *http.Request, clientID string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeSchedulesRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope schedules:read required")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	records, next, err := h.service.ListCompletions(r.Context(), claims.TenantID, clientID, cursor, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]CompletionView, 0, len(records))
	for _, record := range records {
		items = append(items, toCompletionView(record))
	}
	writeJSON(w, http.StatusOK, ListCompletionsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) checkinStatus(w http.ResponseWriter, r *http.Request, clientID string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeSchedulesRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope schedules:read required")
		return
	}

	overview, err := h.service.CheckinStatus(r.Context(), claims.TenantID, clientID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckinView(*overview))
}

func (h *Handler) rescheduleCheckin(w http.ResponseWriter, r *http.Request, clientID string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeCadenceWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope cadence:write required")
		return
	}

	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if req.NextDueDate == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "next_due_date is required")
		return
	}
	newDate, err := domain.ParseCalendarDay(req.NextDueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid next_due_date")
		return
	}

	cadence, err := h.service.RescheduleCheckin(r.Context(), claims.TenantID, clientID, newDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCadenceView(*cadence))
}

func (h *Handler) createCadence(w http.ResponseWriter, r *http.Request, clientID string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeCadenceWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope cadence:write required")
		return
	}

	var req CreateCadenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	input := domain.CreateCadenceInput{
		TenantID:      claims.TenantID,
		ClientID:      clientID,
		FrequencyDays: req.FrequencyDays,
	}
	if req.FirstDueDate != "" {
		firstDue, err := domain.ParseCalendarDay(req.FirstDueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid first_due_date")
			return
		}
		input.FirstDueDate = firstDue
	}

	cadence, err := h.service.CreateCadence(r.Context(), input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCadenceView(*cadence))
}

// RecordCompletionRequest is the payload for POST /v1/completions.
type RecordCompletionRequest struct {
	ClientID   string          `json:"client_id"`
	ActivityID string          `json:"activity_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Validate ensures request correctness.
func (r RecordCompletionRequest) Validate() error {
	if strings.TrimSpace(r.ClientID) == "" {
		return errors.New("client_id is required")
	}
	if strings.TrimSpace(r.ActivityID) == "" {
		return errors.New("activity_id is required")
	}
	if r.OccurredAt.IsZero() {
		return errors.New("occurred_at is required")
	}
	return nil
}

// RecordCompletionResponse describes the response body for completion submission.
type RecordCompletionResponse struct {
	Record           CompletionView `json:"record"`
	AlreadyCompleted bool           `json:"already_completed"`
}

// CompletionView exposes a ledger record.
type CompletionView struct {
	RecordID    string          `json:"record_id"`
	ClientID    string          `json:"client_id"`
	ActivityID  string          `json:"activity_id"`
	CalendarDay string          `json:"calendar_day"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ActivityView exposes a due schedule entry.
type ActivityView struct {
	ActivityID string   `json:"activity_id"`
	ClientID   string   `json:"client_id"`
	Kind       string   `json:"kind"`
	Title      string   `json:"title"`
	Weekdays   []string `json:"weekdays"`
	ValidFrom  string   `json:"valid_from"`
	ValidTo    string   `json:"valid_to,omitempty"`
}

// DueActivitiesResponse packages the activities due on a day.
type DueActivitiesResponse struct {
	Day   string         `json:"day"`
	Items []ActivityView `json:"items"`
}

// ListCompletionsResponse packages completion history results.
type ListCompletionsResponse struct {
	Items      []CompletionView `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// CadenceView exposes the stored cadence fields.
type CadenceView struct {
	ClientID          string `json:"client_id"`
	FrequencyDays     int    `json:"frequency_days"`
	NextDueDate       string `json:"next_due_date"`
	LastCompletedDate string `json:"last_completed_date,omitempty"`
}

// CheckinView pairs the cadence with its derived status for today.
type CheckinView struct {
	CadenceView
	Status string `json:"status"`
	Today  string `json:"today"`
}

// RescheduleRequest is the payload for a manual next-due override.
type RescheduleRequest struct {
	NextDueDate string `json:"next_due_date"`
}

// CreateCadenceRequest is the payload for cadence onboarding.
type CreateCadenceRequest struct {
	FrequencyDays int    `json:"frequency_days"`
	FirstDueDate  string `json:"first_due_date,omitempty"`
}

func writeDomainError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_failed", validation.Error())
	case errors.Is(err, domain.ErrClientNotFound),
		errors.Is(err, domain.ErrActivityNotFound),
		errors.Is(err, domain.ErrCadenceNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrCadenceExists):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage temporarily unavailable, retry later")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toCompletionView(record domain.CompletionRecord) CompletionView {
	return CompletionView{
		RecordID:    record.ID,
		ClientID:    record.ClientID,
		ActivityID:  record.ActivityID,
		CalendarDay: record.CalendarDay.String(),
		OccurredAt:  record.OccurredAt,
		Payload:     record.Payload,
		CreatedAt:   record.CreatedAt,
	}
}

func toActivityView(activity domain.ScheduledActivity) ActivityView {
	weekdays := make([]string, 0, 7)
	for _, d := range activity.Weekdays.Weekdays() {
		weekdays = append(weekdays, d.String()[:3])
	}
	view := ActivityView{
		ActivityID: activity.ID,
		ClientID:   activity.ClientID,
		Kind:       string(activity.Kind),
		Title:      activity.Title,
		Weekdays:   weekdays,
		ValidFrom:  activity.ValidFrom.String(),
	}
	if activity.ValidTo != nil {
		view.ValidTo = activity.ValidTo.String()
	}
	return view
}

func toCadenceView(cadence domain.CheckinCadence) CadenceView {
	view := CadenceView{
		ClientID:      cadence.ClientID,
		FrequencyDays: cadence.FrequencyDays,
		NextDueDate:   cadence.NextDueDate.String(),
	}
	if cadence.LastCompletedDate != nil {
		view.LastCompletedDate = cadence.LastCompletedDate.String()
	}
	return view
}

func toCheckinView(overview domain.CheckinOverview) CheckinView {
	return CheckinView{
		CadenceView: toCadenceView(overview.Cadence),
		Status:      string(overview.Status),
		Today:       overview.Today.String(),
	}
}
