// Package http exposes the planner over a JSON API. Identity is external:
// every handler resolves the owner through an Authenticator and never mints
// or verifies credentials itself.
package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"timecoach/app/core/plan"
	"timecoach/app/core/reflection"
	"timecoach/app/core/schedule"
	"timecoach/app/core/session"
	"timecoach/app/pkg/apperr"
	"timecoach/app/pkg/civil"
	"timecoach/app/pkg/logger"
)

// Authenticator yields the stable user identifier for a request. Token
// issuance and verification live outside this service.
type Authenticator interface {
	UserID(r *http.Request) (string, error)
}

// HeaderAuthenticator trusts the X-User-ID header, for deployments where a
// fronting proxy has already authenticated the caller.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) UserID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if id == "" {
		return "", errors.New("missing X-User-ID header")
	}
	return id, nil
}

type Server struct {
	port            int
	auth            Authenticator
	plans           *plan.Store
	sessions        *session.Store
	schedules       *schedule.Store
	reflections     *reflection.Store
	composer        *schedule.Composer
	settler         *session.Settler
	oracleTimeout   time.Duration
	shutdownTimeout time.Duration

	server      *http.Server
	startedUnix atomic.Int64

	statusProvider func(context.Context) map[string]interface{}
}

type Deps struct {
	Plans       *plan.Store
	Sessions    *session.Store
	Schedules   *schedule.Store
	Reflections *reflection.Store
	Composer    *schedule.Composer
	Settler     *session.Settler
}

func NewServer(port int, auth Authenticator, deps Deps, oracleTimeout time.Duration) *Server {
	if auth == nil {
		auth = HeaderAuthenticator{}
	}
	if oracleTimeout <= 0 {
		oracleTimeout = 60 * time.Second
	}
	return &Server{
		port:            port,
		auth:            auth,
		plans:           deps.Plans,
		sessions:        deps.Sessions,
		schedules:       deps.Schedules,
		reflections:     deps.Reflections,
		composer:        deps.Composer,
		settler:         deps.Settler,
		oracleTimeout:   oracleTimeout,
		shutdownTimeout: 5 * time.Second,
	}
}

func (s *Server) SetStatusProvider(provider func(context.Context) map[string]interface{}) {
	s.statusProvider = provider
}

func (s *Server) SetShutdownTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	s.shutdownTimeout = timeout
}

func (s *Server) Start(ctx context.Context) error {
	s.startedUnix.Store(time.Now().Unix())

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown error: %v", err)
		}
	}()

	logger.Info("HTTP listening on port %d...", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Handler builds the route table. Exposed separately so tests can drive the
// API through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/schedule", s.handleSchedule)
	mux.HandleFunc("/api/schedule/compose", s.handleCompose)
	mux.HandleFunc("/api/schedule/settle", s.handleSettle)
	mux.HandleFunc("/api/plans", s.handlePlans)
	mux.HandleFunc("/api/plans/", s.handlePlanByID)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/reflections", s.handleReflections)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
		return
	}
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindUpstreamFormat:
		status = http.StatusBadGateway
	case apperr.KindUpstreamConflict:
		status = http.StatusConflict
	case apperr.KindStore:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: string(kind)})
}

func (s *Server) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID, err := s.auth.UserID(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error()})
		return "", false
	}
	return ownerID, true
}

func readBody(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, err, "read request body")
	}
	defer r.Body.Close()
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperr.Wrap(apperr.KindValidation, err, "invalid JSON body")
	}
	return nil
}

// parseDay interprets an optional day parameter, defaulting to today.
func parseDay(raw string) (civil.Day, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return civil.Today(), nil
	}
	day, err := civil.ParseDay(raw)
	if err != nil {
		return civil.Day{}, apperr.Wrap(apperr.KindValidation, err, "invalid day")
	}
	return day, nil
}

// --- schedule ---

type scheduleResponse struct {
	Exists  bool             `json:"exists"`
	Day     string           `json:"day,omitempty"`
	Blocks  []schedule.Block `json:"blocks,omitempty"`
	Summary string           `json:"summary,omitempty"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ownerID, ok := s.owner(w, r)
	if !ok {
		return
	}
	rawDay := r.URL.Query().Get("day")
	if strings.TrimSpace(rawDay) == "" {
		writeError(w, apperr.E(apperr.KindValidation, "day query parameter is required"))
		return
	}
	day, err := parseDay(rawDay)
	if err != nil {
		writeError(w, err)
		return
	}

	sched, exists, err := s.schedules.Fetch(r.Context(), ownerID, day)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindStore, err, "load schedule"))
		return
	}
	if !exists {
		writeJSON(w, http.StatusOK, scheduleResponse{Exists: false})
		return
	}
	writeJSON(w, http.StatusOK, scheduleResponse{
		Exists:  true,
		Day:     sched.Day.String(),
		Blocks:  sched.Blocks,
		Summary: sched.Summary,
	})
}

type dayRequest struct {
	Day string `json:"day"`
}

func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ownerID, ok := s.owner(w, r)
	if !ok {
		return
	}
	var req dayRequest
	if err := readBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	day, err := parseDay(req.Day)
	if err != nil {
		writeError(w, err)
		return
	}

	// The oracle call is costly and non-idempotent, so the timeout bounds
	// the whole compose and failures are left to the caller to resubmit.
	ctx, cancel := context.WithTimeout(r.Context(), s.oracleTimeout)
	defer cancel()

	sched, err := s.composer.Compose(ctx, ownerID, day)
	if err != nil {
		logger.Error("compose %s/%s failed: %v", ownerID, day, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ownerID, ok := s.owner(w, r)
	if !ok {
		return
	}
	var req dayRequest
	if err := readBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	day, err := parseDay(req.Day)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.settler.Settle(r.Context(), ownerID, day)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// --- plans ---

type planRequest struct {
	Title            string `json:"title"`
	Subject          string `json:"subject"`
	EstimatedMinutes int    `json:"estimated_minutes"`
	Priority         string `json:"priority"`
	Day              string `json:"day"`
	Time             string `json:"time"`
	EndDay           string `json:"end_day"`
	Status           string `json:"status"`
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := s.owner(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req planRequest
		if err := readBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		task, err := taskFromRequest(ownerID, req)
		if err != nil {
			writeError(w, err)
			return
		}
		created, err := s.plans.Create(r.Context(), task)
		if err != nil {
			writeError(w, apperr.Wrap(apperr.KindValidation, err, "create plan"))
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		rawDay := r.URL.Query().Get("day")
		if strings.TrimSpace(rawDay) == "" {
			writeError(w, apperr.E(apperr.KindValidation, "day query parameter is required"))
			return
		}
		day, err := parseDay(rawDay)
		if err != nil {
			writeError(w, err)
			return
		}
		tasks, err := s.plans.ListForDay(r.Context(), ownerID, day)
		if err != nil {
			writeError(w, apperr.Wrap(apperr.KindStore, err, "list plans"))
			return
		}
		writeJSON(w, http.StatusOK, tasks)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func taskFromRequest(ownerID string, req planRequest) (plan.Task, error) {
	if strings.TrimSpace(req.Title) == "" {
		return plan.Task{}, apperr.E(apperr.KindValidation, "title is required")
	}
	if strings.TrimSpace(req.Day) == "" {
		return plan.Task{}, apperr.E(apperr.KindValidation, "day is required")
	}
	day, err := civil.ParseDay(req.Day)
	if err != nil {
		return plan.Task{}, apperr.Wrap(apperr.KindValidation, err, "invalid day")
	}
	task := plan.Task{
		OwnerID:          ownerID,
		Title:            strings.TrimSpace(req.Title),
		Subject:          strings.TrimSpace(req.Subject),
		EstimatedMinutes: req.EstimatedMinutes,
		Priority:         plan.Priority(req.Priority),
		Status:           plan.Status(req.Status),
		Anchor:           plan.Anchor{Day: day},
	}
	if strings.TrimSpace(req.Time) != "" {
		tod, err := civil.ParseTimeOfDay(req.Time)
		if err != nil {
			return plan.Task{}, apperr.Wrap(apperr.KindValidation, err, "invalid time")
		}
		task.Anchor.Time = tod
		task.Anchor.HasTime = true
	}
	if strings.TrimSpace(req.EndDay) != "" {
		endDay, err := civil.ParseDay(req.EndDay)
		if err != nil {
			return plan.Task{}, apperr.Wrap(apperr.KindValidation, err, "invalid end_day")
		}
		if endDay.Before(day) {
			return plan.Task{}, apperr.E(apperr.KindValidation, "end_day is before day")
		}
		task.EndDay = endDay
	}
	return task, nil
}

type planPatch struct {
	Title            *string `json:"title"`
	Subject          *string `json:"subject"`
	EstimatedMinutes *int    `json:"estimated_minutes"`
	Priority         *string `json:"priority"`
	Day              *string `json:"day"`
	Time             *string `json:"time"`
	EndDay           *string `json:"end_day"`
	Status           *string `json:"status"`
}

func (s *Server) handlePlanByID(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := s.owner(w, r)
	if !ok {
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/plans/"), "/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		task, err := s.plans.Get(r.Context(), ownerID, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	case http.MethodPatch:
		var patch planPatch
		if err := readBody(r, &patch); err != nil {
			writeError(w, err)
			return
		}
		task, err := s.plans.Get(r.Context(), ownerID, id)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := applyPlanPatch(&task, patch); err != nil {
			writeError(w, err)
			return
		}
		updated, err := s.plans.Update(r.Context(), task)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := s.plans.Delete(r.Context(), ownerID, id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func applyPlanPatch(task *plan.Task, patch planPatch) error {
	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return apperr.E(apperr.KindValidation, "title cannot be empty")
		}
		task.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Subject != nil {
		task.Subject = strings.TrimSpace(*patch.Subject)
	}
	if patch.EstimatedMinutes != nil {
		if *patch.EstimatedMinutes <= 0 {
			return apperr.E(apperr.KindValidation, "estimated_minutes must be positive")
		}
		task.EstimatedMinutes = *patch.EstimatedMinutes
	}
	if patch.Priority != nil {
		p, ok := plan.ParsePriority(*patch.Priority)
		if !ok {
			return apperr.E(apperr.KindValidation, "invalid priority %q", *patch.Priority)
		}
		task.Priority = p
	}
	if patch.Status != nil {
		st, ok := plan.ParseStatus(*patch.Status)
		if !ok {
			return apperr.E(apperr.KindValidation, "invalid status %q", *patch.Status)
		}
		task.Status = st
	}
	if patch.Day != nil {
		day, err := civil.ParseDay(*patch.Day)
		if err != nil {
			return apperr.Wrap(apperr.KindValidation, err, "invalid day")
		}
		task.Anchor.Day = day
	}
	if patch.Time != nil {
		if strings.TrimSpace(*patch.Time) == "" {
			task.Anchor.Time = civil.TimeOfDay{}
			task.Anchor.HasTime = false
		} else {
			tod, err := civil.ParseTimeOfDay(*patch.Time)
			if err != nil {
				return apperr.Wrap(apperr.KindValidation, err, "invalid time")
			}
			task.Anchor.Time = tod
			task.Anchor.HasTime = true
		}
	}
	if patch.EndDay != nil {
		if strings.TrimSpace(*patch.EndDay) == "" {
			task.EndDay = civil.Day{}
		} else {
			endDay, err := civil.ParseDay(*patch.EndDay)
			if err != nil {
				return apperr.Wrap(apperr.KindValidation, err, "invalid end_day")
			}
			if endDay.Before(task.Anchor.Day) {
				return apperr.E(apperr.KindValidation, "end_day is before day")
			}
			task.EndDay = endDay
		}
	}
	return nil
}

// --- sessions ---

type sessionRequest struct {
	TaskID           string   `json:"task_id"`
	StartTime        string   `json:"start_time"`
	EndTime          string   `json:"end_time"`
	Interrupted      bool     `json:"interrupted"`
	InterruptReasons []string `json:"interrupt_reasons"`
	Note             string   `json:"note"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := s.owner(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req sessionRequest
		if err := readBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
		if err != nil {
			writeError(w, apperr.Wrap(apperr.KindValidation, err, "invalid start_time"))
			return
		}
		end, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EndTime))
		if err != nil {
			writeError(w, apperr.Wrap(apperr.KindValidation, err, "invalid end_time"))
			return
		}
		created, err := s.sessions.Create(r.Context(), session.Session{
			OwnerID:          ownerID,
			TaskID:           strings.TrimSpace(req.TaskID),
			StartTime:        start,
			EndTime:          end,
			Interrupted:      req.Interrupted,
			InterruptReasons: req.InterruptReasons,
			Note:             req.Note,
		})
		if err != nil {
			writeError(w, apperr.Wrap(apperr.KindValidation, err, "create session"))
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		from, to, err := parseDayRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"), 0)
		if err != nil {
			writeError(w, err)
			return
		}
		loc := time.Local
		sessions, err := s.sessions.ListRange(r.Context(), ownerID, from.Start(loc), to.Start(loc))
		if err != nil {
			writeError(w, apperr.Wrap(apperr.KindStore, err, "list sessions"))
			return
		}
		writeJSON(w, http.StatusOK, sessions)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// parseDayRange reads [from, to) day bounds. When both are empty and
// defaultDays > 0, the range covers the trailing defaultDays days; when
// defaultDays is 0, both bounds are required.
func parseDayRange(rawFrom string, rawTo string, defaultDays int) (civil.Day, civil.Day, error) {
	rawFrom = strings.TrimSpace(rawFrom)
	rawTo = strings.TrimSpace(rawTo)
	if rawFrom == "" && rawTo == "" {
		if defaultDays <= 0 {
			return civil.Day{}, civil.Day{}, apperr.E(apperr.KindValidation, "from and to query parameters are required")
		}
		to := civil.Today().AddDays(1)
		return to.AddDays(-defaultDays), to, nil
	}
	if rawFrom == "" || rawTo == "" {
		return civil.Day{}, civil.Day{}, apperr.E(apperr.KindValidation, "from and to must be provided together")
	}
	from, err := civil.ParseDay(rawFrom)
	if err != nil {
		return civil.Day{}, civil.Day{}, apperr.Wrap(apperr.KindValidation, err, "invalid from")
	}
	to, err := civil.ParseDay(rawTo)
	if err != nil {
		return civil.Day{}, civil.Day{}, apperr.Wrap(apperr.KindValidation, err, "invalid to")
	}
	if !from.Before(to) {
		return civil.Day{}, civil.Day{}, apperr.E(apperr.KindValidation, "from must be before to")
	}
	return from, to, nil
}

// --- reflections ---

type reflectionRequest struct {
	Day                string `json:"day"`
	CompletionScore    int    `json:"completion_score"`
	MostProcrastinated string `json:"most_procrastinated"`
	WentWell           string `json:"went_well"`
	ToImprove          string `json:"to_improve"`
}

func (s *Server) handleReflections(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := s.owner(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req reflectionRequest
		if err := readBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		day, err := parseDay(req.Day)
		if err != nil {
			writeError(w, err)
			return
		}
		saved, err := s.reflections.Upsert(r.Context(), reflection.Reflection{
			OwnerID:            ownerID,
			Day:                day,
			CompletionScore:    req.CompletionScore,
			MostProcrastinated: req.MostProcrastinated,
			WentWell:           req.WentWell,
			ToImprove:          req.ToImprove,
		})
		if err != nil {
			writeError(w, apperr.Wrap(apperr.KindValidation, err, "save reflection"))
			return
		}
		writeJSON(w, http.StatusCreated, saved)
	case http.MethodGet:
		from, to, err := parseDayRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"), 7)
		if err != nil {
			writeError(w, err)
			return
		}
		items, err := s.reflections.ListRange(r.Context(), ownerID, from, to)
		if err != nil {
			writeError(w, apperr.Wrap(apperr.KindStore, err, "list reflections"))
			return
		}
		writeJSON(w, http.StatusOK, items)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// --- status ---

type statusResponse struct {
	StartedAt string                 `json:"started_at,omitempty"`
	UptimeSec int64                  `json:"uptime_sec"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := statusResponse{}
	if started := s.startedUnix.Load(); started > 0 {
		startAt := time.Unix(started, 0).UTC()
		resp.StartedAt = startAt.Format(time.RFC3339)
		resp.UptimeSec = int64(time.Since(startAt).Seconds())
		if resp.UptimeSec < 0 {
			resp.UptimeSec = 0
		}
	}
	if s.statusProvider != nil {
		resp.Runtime = s.statusProvider(r.Context())
	}
	writeJSON(w, http.StatusOK, resp)
}
