package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/events"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/storage"
)

const maxDurationMinutes = 8 * 60

type AppointmentHandler struct {
	repo      storage.Repository
	publisher events.Publisher
	logger    *slog.Logger
	loc       *time.Location
	now       func() time.Time
}

// NewAppointmentHandler serves the appointment API. Dates without an explicit offset and
// calendar days are interpreted in loc, the clinic's local time zone.
func NewAppointmentHandler(repo storage.Repository, publisher events.Publisher, logger *slog.Logger, loc *time.Location) *AppointmentHandler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &AppointmentHandler{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		loc:       loc,
		now:       time.Now,
	}
}

func (h *AppointmentHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/appointments", h.Appointments)
	mux.HandleFunc("/api/v1/appointments/reschedule", h.Reschedule)
	mux.HandleFunc("/api/v1/appointments/status", h.SetStatus)
	mux.HandleFunc("/api/v1/appointments/delete", h.Delete)
	mux.HandleFunc("/api/v1/appointments/conflicts", h.Conflicts)
	mux.HandleFunc("/api/v1/doctors/availability", h.Availability)
	mux.HandleFunc("/api/v1/doctors/slots", h.Slots)
	mux.HandleFunc("/api/v1/calendar", h.Calendar)
}

type appointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	PatientName   string `json:"patient_name"`
	PatientPhone  string `json:"patient_phone,omitempty"`
	Doctor        string `json:"doctor"`
	Date          string `json:"date"`
	Type          string `json:"type,omitempty"`
	Status        string `json:"status"`
	Notes         string `json:"notes,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

type createAppointmentRequest struct {
	PatientName     string `json:"patient_name"`
	PatientPhone    string `json:"patient_phone"`
	Doctor          string `json:"doctor"`
	Date            string `json:"date"`
	Type            string `json:"type"`
	Status          string `json:"status"`
	Notes           string `json:"notes"`
	DurationMinutes int    `json:"duration_minutes"`
	Override        bool   `json:"override"`
}

type writeResponse struct {
	Appointment        appointmentItem `json:"appointment"`
	ConflictOverridden bool            `json:"conflict_overridden,omitempty"`
}

type rescheduleRequest struct {
	AppointmentID   string `json:"appointment_id"`
	Date            string `json:"date"`
	DurationMinutes int    `json:"duration_minutes"`
	Override        bool   `json:"override"`
}

type statusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

type deleteRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type conflictCheckRequest struct {
	Doctor          string `json:"doctor"`
	Date            string `json:"date"`
	DurationMinutes int    `json:"duration_minutes"`
	ExcludeID       string `json:"exclude_id"`
}

type conflictResponse struct {
	HasConflict bool              `json:"has_conflict"`
	Conflicting []appointmentItem `json:"conflicting"`
	Message     string            `json:"message,omitempty"`
}

type availabilityResponse struct {
	Doctor    string   `json:"doctor"`
	Date      string   `json:"date"`
	Available bool     `json:"available"`
	Booked    int      `json:"booked"`
	Capacity  int      `json:"capacity"`
	BusySlots []string `json:"busy_slots"`
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type calendarCell struct {
	Date         string            `json:"date"`
	InMonth      bool              `json:"in_month"`
	Appointments []appointmentItem `json:"appointments"`
}

func (h *AppointmentHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *AppointmentHandler) list(w http.ResponseWriter, r *http.Request) {
	all, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("list appointments failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list appointments")
		return
	}

	if dateStr := strings.TrimSpace(r.URL.Query().Get("date")); dateStr != "" {
		day, err := h.parseDay(dateStr)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid date (want YYYY-MM-DD)")
			return
		}
		all = availability.ForDayMatching(all, day, r.URL.Query().Get("q"))
	}
	httpx.WriteJSON(w, http.StatusOK, h.items(all))
}

func (h *AppointmentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if !decode(w, r, &req) {
		return
	}
	req.PatientName = strings.TrimSpace(req.PatientName)
	if req.PatientName == "" || req.Doctor == "" || strings.TrimSpace(req.Date) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "patient_name, doctor and date are required")
		return
	}
	start, err := h.parseTimestamp(req.Date)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid date")
		return
	}
	duration, err := parseDuration(req.DurationMinutes)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := model.StatusScheduled
	if strings.TrimSpace(req.Status) != "" {
		if status, err = model.ParseStatus(req.Status); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	appt := model.Appointment{
		PatientName:  req.PatientName,
		PatientPhone: strings.TrimSpace(req.PatientPhone),
		// Doctor names are matched exactly, so they are stored untrimmed.
		Doctor: req.Doctor,
		Date:   start,
		Type:   strings.TrimSpace(req.Type),
		Status: status,
		Notes:  req.Notes,
	}

	guard, overridden := conflictGuard(duration, req.Override)
	created, err := h.repo.Book(r.Context(), appt, guard)
	if err != nil {
		h.writeStorageError(w, err, "failed to create appointment")
		return
	}

	h.publish(r.Context(), events.AppointmentEvent(events.TypeBooked, created, time.Time{}, *overridden))
	httpx.WriteJSON(w, http.StatusCreated, writeResponse{Appointment: h.item(created), ConflictOverridden: *overridden})
}

func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req rescheduleRequest
	if !decode(w, r, &req) {
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" || strings.TrimSpace(req.Date) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "appointment_id and date are required")
		return
	}
	start, err := h.parseTimestamp(req.Date)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid date")
		return
	}
	duration, err := parseDuration(req.DurationMinutes)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	guard, overridden := conflictGuard(duration, req.Override)
	change, err := h.repo.Reschedule(r.Context(), req.AppointmentID, start, guard)
	if err != nil {
		h.writeStorageError(w, err, "failed to reschedule appointment")
		return
	}

	h.publish(r.Context(), events.AppointmentEvent(events.TypeRescheduled, change.After, change.Before.Date, *overridden))
	httpx.WriteJSON(w, http.StatusOK, writeResponse{Appointment: h.item(change.After), ConflictOverridden: *overridden})
}

func (h *AppointmentHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "appointment_id is required")
		return
	}
	status, err := model.ParseStatus(req.Status)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	change, err := h.repo.SetStatus(r.Context(), req.AppointmentID, status)
	if err != nil {
		h.writeStorageError(w, err, "failed to update appointment")
		return
	}
	if change.Before.Status != change.After.Status {
		h.publish(r.Context(), events.AppointmentEvent(events.TypeStatusChanged, change.After, time.Time{}, false))
	}
	httpx.WriteJSON(w, http.StatusOK, writeResponse{Appointment: h.item(change.After)})
}

func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req deleteRequest
	if !decode(w, r, &req) {
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "appointment_id is required")
		return
	}

	appt, err := h.repo.Delete(r.Context(), req.AppointmentID)
	if err != nil {
		h.writeStorageError(w, err, "failed to delete appointment")
		return
	}
	h.publish(r.Context(), events.AppointmentEvent(events.TypeDeleted, appt, time.Time{}, false))
	w.WriteHeader(http.StatusNoContent)
}

// Conflicts only informs: it never writes, so the caller can show the message and let
// the user decide whether to book with override.
func (h *AppointmentHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req conflictCheckRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Doctor == "" || strings.TrimSpace(req.Date) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "doctor and date are required")
		return
	}
	start, err := h.parseTimestamp(req.Date)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid date")
		return
	}
	duration, err := parseDuration(req.DurationMinutes)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	all, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("list appointments failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load appointments")
		return
	}
	res := availability.DetectConflicts(all, availability.Candidate{
		Date:      start,
		Doctor:    req.Doctor,
		Duration:  duration,
		ExcludeID: strings.TrimSpace(req.ExcludeID),
	})
	httpx.WriteJSON(w, http.StatusOK, h.conflictBody(res))
}

func (h *AppointmentHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	doctor := r.URL.Query().Get("doctor")
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if doctor == "" || dateStr == "" {
		httpx.WriteError(w, http.StatusBadRequest, "doctor and date are required")
		return
	}
	day, err := h.parseDay(dateStr)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid date (want YYYY-MM-DD)")
		return
	}

	all, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("list appointments failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load appointments")
		return
	}
	res := availability.DoctorAvailability(all, doctor, day)
	httpx.WriteJSON(w, http.StatusOK, availabilityResponse{
		Doctor:    res.Doctor,
		Date:      day.Format("2006-01-02"),
		Available: res.Available,
		Booked:    res.Booked,
		Capacity:  res.Capacity,
		BusySlots: res.BusySlots,
	})
}

// Slots lists free start times for a doctor inside a workday window given by query
// parameters (defaults 09:00-17:00, 30 minute bookings on a 15 minute grid).
func (h *AppointmentHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	doctor := q.Get("doctor")
	dateStr := strings.TrimSpace(q.Get("date"))
	if doctor == "" || dateStr == "" {
		httpx.WriteError(w, http.StatusBadRequest, "doctor and date are required")
		return
	}
	day, err := h.parseDay(dateStr)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid date (want YYYY-MM-DD)")
		return
	}

	durationMins, ok := intParam(q.Get("duration_minutes"), int(availability.DefaultDuration/time.Minute), maxDurationMinutes)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid duration_minutes")
		return
	}
	stepMins, ok := intParam(q.Get("slot_step_minutes"), 15, 120)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid slot_step_minutes")
		return
	}
	windowStart, err := clockOn(day, q.Get("workday_start"), "09:00")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid workday_start (want HH:MM)")
		return
	}
	windowEnd, err := clockOn(day, q.Get("workday_end"), "17:00")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid workday_end (want HH:MM)")
		return
	}
	if !windowEnd.After(windowStart) {
		httpx.WriteError(w, http.StatusBadRequest, "workday_end must be after workday_start")
		return
	}

	all, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("list appointments failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load booked slots")
		return
	}

	duration := time.Duration(durationMins) * time.Minute
	starts := availability.AvailableSlots(
		windowStart,
		windowEnd,
		duration,
		time.Duration(stepMins)*time.Minute,
		availability.BusyIntervals(all, doctor, day),
		h.now(),
	)
	resp := make([]slotItem, 0, len(starts))
	for _, s := range starts {
		resp = append(resp, slotItem{
			StartTime: s.Format(time.RFC3339),
			EndTime:   s.Add(duration).Format(time.RFC3339),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *AppointmentHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	month, err := time.ParseInLocation("2006-01", strings.TrimSpace(r.URL.Query().Get("month")), h.loc)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "month is required (want YYYY-MM)")
		return
	}

	all, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("list appointments failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load appointments")
		return
	}
	cells := availability.MonthGrid(all, month)
	resp := make([]calendarCell, 0, len(cells))
	for _, c := range cells {
		resp = append(resp, calendarCell{
			Date:         c.Day.Format("2006-01-02"),
			InMonth:      c.InMonth,
			Appointments: h.items(c.Appointments),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// conflictGuard returns the storage guard for a write and a flag that is set when a
// conflict was found but let through because the caller asked to override.
func conflictGuard(duration time.Duration, override bool) (storage.GuardFunc, *bool) {
	overridden := new(bool)
	check := availability.Guard(duration)
	return func(snapshot []model.Appointment, appt model.Appointment) error {
		err := check(snapshot, appt)
		if err != nil && override {
			*overridden = true
			return nil
		}
		return err
	}, overridden
}

func (h *AppointmentHandler) writeStorageError(w http.ResponseWriter, err error, msg string) {
	var conflict *availability.ConflictError
	switch {
	case errors.As(err, &conflict):
		httpx.WriteJSON(w, http.StatusConflict, h.conflictBody(conflict.Result))
	case storage.IsNotFound(err):
		httpx.WriteError(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, storage.ErrInvalidTransition):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrDuplicateID):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error(msg, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, msg)
	}
}

func (h *AppointmentHandler) publish(ctx context.Context, evt events.Event) {
	if err := h.publisher.Publish(ctx, evt); err != nil {
		h.logger.Warn("event publish failed", "err", err, "event_type", evt.Type, "appointment_id", evt.AggregateID)
	}
}

func (h *AppointmentHandler) conflictBody(res availability.ConflictResult) conflictResponse {
	return conflictResponse{
		HasConflict: res.HasConflict,
		Conflicting: h.items(res.Conflicting),
		Message:     res.Message,
	}
}

func (h *AppointmentHandler) item(a model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID: a.ID,
		PatientName:   a.PatientName,
		PatientPhone:  a.PatientPhone,
		Doctor:        a.Doctor,
		Date:          a.Date.In(h.loc).Format(time.RFC3339),
		Type:          a.Type,
		Status:        string(a.Status),
		Notes:         a.Notes,
	}
	if !a.CreatedAt.IsZero() {
		item.CreatedAt = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !a.UpdatedAt.IsZero() {
		item.UpdatedAt = a.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return item
}

func (h *AppointmentHandler) items(appts []model.Appointment) []appointmentItem {
	out := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		out = append(out, h.item(a))
	}
	return out
}

var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"}

// parseTimestamp accepts RFC3339, or a wall-clock time without offset read in the clinic zone.
func (h *AppointmentHandler) parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, h.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func (h *AppointmentHandler) parseDay(raw string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", raw, h.loc)
}

func clockOn(day time.Time, raw, fallback string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = fallback
	}
	clock, err := time.Parse("15:04", raw)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, day.Location()), nil
}

func parseDuration(minutes int) (time.Duration, error) {
	if minutes < 0 || minutes > maxDurationMinutes {
		return 0, fmt.Errorf("duration_minutes must be between 0 and %d (0 means the %d minute default)", maxDurationMinutes, int(availability.DefaultDuration/time.Minute))
	}
	if minutes == 0 {
		return availability.DefaultDuration, nil
	}
	return time.Duration(minutes) * time.Minute, nil
}

func intParam(raw string, fallback, max int) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > max {
		return 0, false
	}
	return n, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}
