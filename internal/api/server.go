package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"alertlens/internal/analytics"
	"alertlens/internal/ingest"
	"alertlens/internal/logger"
	"alertlens/internal/metrics"
	"alertlens/internal/rules"
	"alertlens/internal/store"
	"alertlens/pkg/models"
)

// Server is the dashboard HTTP API.
type Server struct {
	engine  *analytics.Engine
	updater *ingest.Updater
	rules   *rules.Service
	store   *store.Store
	router  *mux.Router
}

// NewServer wires the API routes. rulesSvc may be nil when the rule
// browser is disabled; its endpoints then return 503.
func NewServer(engine *analytics.Engine, updater *ingest.Updater, rulesSvc *rules.Service, st *store.Store) *Server {
	s := &Server{
		engine:  engine,
		updater: updater,
		rules:   rulesSvc,
		store:   st,
		router:  mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.countMiddleware)

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/dashboard", s.handleDashboard).Methods(http.MethodGet)
	r.HandleFunc("/api/dashboard/issues", s.handleIssues).Methods(http.MethodGet)
	r.HandleFunc("/api/categories", s.handleCategories).Methods(http.MethodGet)
	r.HandleFunc("/api/components", s.handleComponents).Methods(http.MethodGet)
	r.HandleFunc("/api/components/{name}/stats", s.handleComponentStats).Methods(http.MethodGet)
	r.HandleFunc("/api/components/{name}/rules", s.handleComponentRules).Methods(http.MethodGet)
	r.HandleFunc("/api/components/{name}/rules", s.handleUpdateRule).Methods(http.MethodPut)
	r.HandleFunc("/api/issues/{id}/mute", s.handleMuteIssue).Methods(http.MethodPost)
	r.HandleFunc("/api/update", s.handleUpdate).Methods(http.MethodPost)
	r.HandleFunc("/api/update/status", s.handleUpdateStatus).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

// Handler returns the root handler. CORS wraps the whole router so
// preflight requests are answered even for method-restricted routes.
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.router)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for the request counter.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) countMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		metrics.HTTPRequests.WithLabelValues(route, fmt.Sprintf("%dxx", rec.status/100)).Inc()
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// queryFromRequest reads the shared window and narrowing parameters.
func queryFromRequest(r *http.Request) analytics.Query {
	params := r.URL.Query()
	q := analytics.Query{
		Env:         params.Get("env"),
		Component:   params.Get("component"),
		TenantID:    params.Get("tenant_id"),
		ClusterID:   params.Get("cluster_id"),
		Signature:   params.Get("signature"),
		Granularity: params.Get("granularity"),
	}
	if days, err := strconv.Atoi(params.Get("days")); err == nil {
		q.Days = days
	}
	return q
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data, err := s.engine.Dashboard(r.Context(), queryFromRequest(r))
	if err != nil {
		logger.Errorf("api: dashboard: %v", err)
		writeError(w, http.StatusInternalServerError, "computing dashboard failed")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := analytics.IssuesQuery{
		Env:        params.Get("env"),
		MetricType: params.Get("metric_type"),
		Component:  params.Get("component"),
		Category:   params.Get("category"),
		TenantID:   params.Get("tenant_id"),
		ClusterID:  params.Get("cluster_id"),
		Signature:  params.Get("signature"),
	}
	if days, err := strconv.Atoi(params.Get("days")); err == nil {
		q.Days = days
	}
	if page, err := strconv.Atoi(params.Get("page")); err == nil {
		q.Page = page
	}
	if size, err := strconv.Atoi(params.Get("page_size")); err == nil {
		q.PageSize = size
	}
	if ps := params.Get("priority"); ps != "" {
		q.Priorities = strings.Split(ps, ",")
	}

	page, err := s.engine.Issues(r.Context(), q)
	if err != nil {
		logger.Errorf("api: issues: %v", err)
		writeError(w, http.StatusInternalServerError, "listing issues failed")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": s.engine.Categories()})
}

func (s *Server) handleComponents(w http.ResponseWriter, r *http.Request) {
	components, err := s.engine.Components(r.Context())
	if err != nil {
		logger.Errorf("api: components: %v", err)
		writeError(w, http.StatusInternalServerError, "listing components failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"components": components})
}

func (s *Server) handleComponentStats(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	stats, err := s.engine.ComponentStats(r.Context(), name, queryFromRequest(r))
	if err != nil {
		logger.Errorf("api: component stats %s: %v", name, err)
		writeError(w, http.StatusInternalServerError, "computing component stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleComponentRules(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		writeError(w, http.StatusServiceUnavailable, "rule browser disabled")
		return
	}
	name := mux.Vars(r)["name"]
	tier := r.URL.Query().Get("tier")

	var (
		matched []models.Rule
		err     error
	)
	if tier != "" {
		matched, err = s.rules.ForComponentAndTier(name, tier)
	} else {
		matched, err = s.rules.ForComponent(name)
	}
	if err != nil {
		logger.Errorf("api: rules for %s: %v", name, err)
		writeError(w, http.StatusInternalServerError, "scanning rules failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": matched, "count": len(matched)})
}

type updateRuleRequest struct {
	FilePath     string      `json:"file_path"`
	OldAlertName string      `json:"old_alert_name"`
	Rule         models.Rule `json:"rule"`
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		writeError(w, http.StatusServiceUnavailable, "rule browser disabled")
		return
	}

	var req updateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FilePath == "" || req.OldAlertName == "" {
		writeError(w, http.StatusBadRequest, "file_path and old_alert_name are required")
		return
	}

	if err := s.rules.UpdateRule(req.FilePath, req.OldAlertName, req.Rule); err != nil {
		logger.Errorf("api: updating rule %s: %v", req.OldAlertName, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type muteRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleMuteIssue(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req muteRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := s.store.MuteIssue(r.Context(), id, req.Reason); err != nil {
		logger.Errorf("api: muting %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "muting issue failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "muted", "issue": id})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if s.updater == nil || !s.updater.Ready() {
		writeError(w, http.StatusServiceUnavailable, "ingestion not configured")
		return
	}

	if s.updater.Running() {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "already running"})
		return
	}

	// The cycle outlives this request; detach it from the request
	// context. The single-slot guard in the updater still applies, so a
	// concurrent trigger loses cleanly.
	go func() {
		if _, err := s.updater.FetchIncremental(context.Background()); err != nil && !errors.Is(err, ingest.ErrUpdateInProgress) {
			logger.Errorf("api: manual update: %v", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	if s.updater == nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.updater.Status())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("api: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
