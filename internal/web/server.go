// Package web exposes schedule sync, autogeneration and dedup over HTTP, including the calendar
// webhook endpoint.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"dayplanner/internal/model"
	"dayplanner/internal/service"
)

const maxBodyBytes = 1 << 20

// ScheduleReader loads one stored schedule.
type ScheduleReader interface {
	FindOne(ctx context.Context, userID, date string) (*model.Schedule, error)
}

// Server routes planner requests to the reconciler.
type Server struct {
	reconciler *service.Reconciler
	schedules  ScheduleReader
	mux        *http.ServeMux
}

func NewServer(reconciler *service.Reconciler, schedules ScheduleReader) *Server {
	s := &Server{reconciler: reconciler, schedules: schedules, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/schedules/{user}/{date}", s.handleGetSchedule)
	s.mux.HandleFunc("POST /api/schedules/{user}/{date}/sync", s.handleSync)
	s.mux.HandleFunc("POST /api/schedules/{user}/{date}/autogenerate", s.handleAutogenerate)
	s.mux.HandleFunc("POST /api/schedules/{user}/{date}/tasks/{id}/complete", s.handleComplete)
	s.mux.HandleFunc("POST /api/dedupe", s.handleDedupe)
	s.mux.HandleFunc("POST /webhooks/calendar", s.handleCalendarWebhook)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	key, err := model.NormalizeDate(r.PathValue("date"))
	if err != nil {
		writeError(w, err)
		return
	}
	doc, err := s.schedules.FindOne(r.Context(), r.PathValue("user"), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "schedule": doc})
}

type syncRequest struct {
	CalendarTasks []model.Task `json:"calendarTasks"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.reconciler.Sync(r.Context(), r.PathValue("user"), r.PathValue("date"), req.CalendarTasks)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"schedule": res.Schedule,
		"created":  res.Created,
		"stats":    res.Stats,
	})
}

func (s *Server) handleAutogenerate(w http.ResponseWriter, r *http.Request) {
	res, err := s.reconciler.Autogenerate(r.Context(), r.PathValue("user"), r.PathValue("date"), r.URL.Query().Get("tz"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                   true,
		"schedule":             res.Schedule,
		"created":              res.Created,
		"existed":              res.Existed,
		"sourceFound":          res.SourceFound,
		"calendarAuthRequired": res.CalendarAuthRequired,
	})
}

type completeRequest struct {
	Completed *bool `json:"completed"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	done := req.Completed == nil || *req.Completed
	doc, err := s.reconciler.SetCompleted(r.Context(), r.PathValue("user"), r.PathValue("date"), r.PathValue("id"), done)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "schedule": doc})
}

type dedupeRequest struct {
	Tasks      []model.Task `json:"tasks"`
	TargetDate string       `json:"targetDate"`
}

func (s *Server) handleDedupe(w http.ResponseWriter, r *http.Request) {
	var req dedupeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	day, err := model.ParseDay(req.TargetDate)
	if err != nil {
		writeError(w, err)
		return
	}
	tasks := service.Dedupe(req.Tasks, day.Format(model.DayLayout))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "tasks": tasks})
}

type webhookRequest struct {
	UserID string `json:"user_id"`
	Date   string `json:"date"`
}

// handleCalendarWebhook re-syncs one user's day. Deliveries may repeat; the merge is idempotent.
func (s *Server) handleCalendarWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, &model.ValidationError{Field: "user_id", Reason: "required"})
		return
	}
	res, err := s.reconciler.SyncFromCalendar(r.Context(), req.UserID, req.Date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"schedule": res.Schedule,
		"created":  res.Created,
		"degraded": res.Degraded,
		"stats":    res.Stats,
	})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return &model.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrScheduleNotFound), errors.Is(err, model.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[error] request failed: %v", err)
	}
	writeJSON(w, status, map[string]any{"ok": false, "error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[warn] write response: %v", err)
	}
}
