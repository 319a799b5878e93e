package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"evsched/internal/config"
	"evsched/internal/events"
	"evsched/internal/ics"
	appLog "evsched/internal/log"
	"evsched/internal/model"
	"evsched/internal/recurrence"
	"evsched/internal/store"
)

// occurrenceLayout is RFC 3339 in UTC with milliseconds, the same shape as
// JavaScript's Date.toISOString.
const occurrenceLayout = "2006-01-02T15:04:05.000Z07:00"

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20

// Syncer runs a subscription sync on demand.
type Syncer interface {
	Sync(ctx context.Context) (ics.SyncResult, error)
}

// Server provides the HTTP API over events and their occurrences.
type Server struct {
	cfg    *config.Config
	events *events.Service
	syncer Syncer
	mux    *http.ServeMux
	now    func() time.Time
}

// NewServer constructs a new Server. syncer may be nil when no
// subscriptions are configured.
func NewServer(cfg *config.Config, svc *events.Service, syncer Syncer) *Server {
	s := &Server{
		cfg:    cfg,
		events: svc,
		syncer: syncer,
		mux:    http.NewServeMux(),
		now:    time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := s.logRequests(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleGetEvent)
	s.mux.HandleFunc("PUT /api/events/{id}", s.handleUpdateEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)
	s.mux.HandleFunc("GET /api/events/{id}/occurrences", s.handleOccurrences)
	s.mux.HandleFunc("GET /api/events/{id}/ics", s.handleEventICS)

	s.mux.HandleFunc("GET /api/calendar.ics", s.handleCalendarICS)
	s.mux.HandleFunc("POST /api/subscriptions/sync", s.handleSync)
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth rather than lock everyone out.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="evsched", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventRequest is the JSON body of POST and PUT /api/events. Pointer
// fields distinguish "absent" from "zero" for partial updates.
type eventRequest struct {
	Title       *string            `json:"title"`
	Description *string            `json:"description"`
	StartDate   *string            `json:"startDate"`
	Recurrence  *recurrenceRequest `json:"recurrence"`
	CreatedBy   string             `json:"createdBy"`

	// clearRecurrence is set when the body carries "recurrence": null.
	clearRecurrence bool
}

type recurrenceRequest struct {
	Type        string  `json:"type"`
	Weekdays    []int   `json:"weekdays"`
	MonthDates  []int   `json:"monthDates"`
	Interval    *int    `json:"interval"`
	EndDate     *string `json:"endDate"`
	Occurrences *int    `json:"occurrences"`
}

func (rr *recurrenceRequest) toModel() (*model.Recurrence, error) {
	out := &model.Recurrence{
		Type:       recurrence.Kind(rr.Type),
		Weekdays:   rr.Weekdays,
		MonthDates: rr.MonthDates,
		Interval:   1,
	}
	if rr.Interval != nil {
		if *rr.Interval < 1 {
			return nil, errors.New("recurrence.interval must be a positive integer")
		}
		out.Interval = *rr.Interval
	}
	if rr.Occurrences != nil {
		if *rr.Occurrences < 1 {
			return nil, errors.New("recurrence.occurrences must be a positive integer")
		}
		out.Occurrences = *rr.Occurrences
	}
	if rr.EndDate != nil {
		t, err := parseTimestamp(*rr.EndDate)
		if err != nil {
			return nil, errors.New("recurrence.endDate: " + err.Error())
		}
		out.EndDate = &t
	}
	return out, nil
}

func decodeEventRequest(r *http.Request) (eventRequest, error) {
	var req eventRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, errors.New("invalid JSON body")
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err == nil {
		if v, ok := raw["recurrence"]; ok && string(v) == "null" {
			req.clearRecurrence = true
		}
	}
	return req, nil
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	list, err := s.events.List(r.Context())
	if err != nil {
		s.writeServiceError(w, err, "list events")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	req, err := decodeEventRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Title == nil || req.StartDate == nil {
		writeError(w, http.StatusBadRequest, "title and startDate are required")
		return
	}
	start, err := parseTimestamp(*req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "startDate: "+err.Error())
		return
	}

	in := events.Input{
		Title:     *req.Title,
		StartDate: start,
		CreatedBy: req.CreatedBy,
	}
	if req.Description != nil {
		in.Description = *req.Description
	}
	if req.Recurrence != nil {
		rec, err := req.Recurrence.toModel()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		in.Recurrence = rec
	}

	ev, err := s.events.Create(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, err, "create event")
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.events.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "get event")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	req, err := decodeEventRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p := events.Patch{
		Title:           req.Title,
		Description:     req.Description,
		ClearRecurrence: req.clearRecurrence,
	}
	if req.StartDate != nil {
		start, err := parseTimestamp(*req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "startDate: "+err.Error())
			return
		}
		p.StartDate = &start
	}
	if req.Recurrence != nil {
		rec, err := req.Recurrence.toModel()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		p.Recurrence = rec
	}

	ev, err := s.events.Update(r.Context(), r.PathValue("id"), p)
	if err != nil {
		s.writeServiceError(w, err, "update event")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.events.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err, "delete event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Event deleted successfully"})
}

// handleOccurrences expands one event.
//
// GET /api/events/{id}/occurrences?until=2025-06-30&max=50
//   - until: RFC 3339 timestamp or YYYY-MM-DD (midnight UTC), inclusive
//   - max:   positive integer
//
// Bounds stored on the rule take precedence over the query.
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var oq events.OccurrenceQuery

	if v := q.Get("until"); v != "" {
		t, err := parseTimestamp(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "until: "+err.Error())
			return
		}
		oq.Until = &t
	}
	if v := q.Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "max must be a positive integer")
			return
		}
		oq.Max = n
	}

	occ, err := s.events.Occurrences(r.Context(), r.PathValue("id"), oq)
	if err != nil {
		s.writeServiceError(w, err, "generate occurrences")
		return
	}

	out := make([]string, 0, len(occ))
	for _, t := range occ {
		out = append(out, t.UTC().Format(occurrenceLayout))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEventICS(w http.ResponseWriter, r *http.Request) {
	ev, err := s.events.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err, "get event")
		return
	}
	s.writeCalendar(w, []*model.Event{ev})
}

func (s *Server) handleCalendarICS(w http.ResponseWriter, r *http.Request) {
	list, err := s.events.List(r.Context())
	if err != nil {
		s.writeServiceError(w, err, "list events")
		return
	}
	s.writeCalendar(w, list)
}

func (s *Server) writeCalendar(w http.ResponseWriter, list []*model.Event) {
	body, err := ics.Export(list, s.now())
	if err != nil {
		s.writeServiceError(w, err, "export calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		writeJSON(w, http.StatusOK, ics.SyncResult{})
		return
	}
	res, err := s.syncer.Sync(r.Context())
	if err != nil {
		appLog.Error("api sync: one or more subscriptions failed", err, "failed", res.Failed)
	}
	writeJSON(w, http.StatusOK, res)
}

// writeServiceError maps domain errors to HTTP statuses. Unexpected errors
// are logged and reported as a generic 500.
func (s *Server) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Event not found")
	case errors.Is(err, events.ErrValidation),
		errors.Is(err, recurrence.ErrInvalidRule),
		errors.Is(err, recurrence.ErrInvalidBound):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		appLog.Error("api: "+op+" failed", err)
		writeError(w, http.StatusInternalServerError, "server error")
	}
}

// parseTimestamp accepts RFC 3339 (with or without fractional seconds) or
// a bare YYYY-MM-DD date taken as midnight UTC.
func parseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, errors.New("expected RFC 3339 timestamp or YYYY-MM-DD date")
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// ListenAndServe serves s on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
