package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ignatij/goclassify/internal/log"
	"github.com/ignatij/goclassify/pkg/models"
	"github.com/ignatij/goclassify/pkg/report"
	"github.com/ignatij/goclassify/pkg/service"
	"github.com/ignatij/goclassify/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes task definitions, inputs, runs and statistics over HTTP.
type Server struct {
	defs       *service.DefinitionService
	inputs     *service.InputService
	classifier *service.ClassificationService
	reporter   *report.Reporter
	gatherer   prometheus.Gatherer
}

// NewServer wires the handlers. classifier may be nil, in which case runs are
// refused; gatherer may be nil, in which case /metrics is not served.
func NewServer(store storage.Store, classifier *service.ClassificationService, gatherer prometheus.Gatherer) *Server {
	return &Server{
		defs:       service.NewDefinitionService(store, log.GetLogger()),
		inputs:     service.NewInputService(store, log.GetLogger()),
		classifier: classifier,
		reporter:   report.NewReporter(store),
		gatherer:   gatherer,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", HealthHandler)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("GET /tasks", s.listTasks)
	mux.HandleFunc("GET /tasks/{name}", s.getTask)
	mux.HandleFunc("GET /tasks/{name}/inputs", s.listInputs)
	mux.HandleFunc("POST /tasks/{name}/run", s.runTask)
	mux.HandleFunc("POST /tasks/{name}/reset", s.resetTask)
	mux.HandleFunc("GET /tasks/{name}/stats", s.taskStats)
	mux.HandleFunc("GET /tasks/{name}/export", s.exportTask)
	return mux
}

// StartServer serves until ctx is done, then shuts down gracefully.
func StartServer(ctx context.Context, port string, s *Server) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.GetLogger().Infof("Starting GoClassify server on :%s", port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		log.GetLogger().Info("Shutting down GoClassify server")
		return srv.Shutdown(shutdownCtx)
	}
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "GoClassify server is running")
}

type taskView struct {
	models.TaskDefinition
	Inputs map[models.InputStatus]int `json:"inputs"`
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	defs, err := s.defs.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	def, err := s.defs.Get(name)
	if err != nil {
		writeError(w, err)
		return
	}
	counts, err := s.inputs.Counts(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskView{TaskDefinition: def, Inputs: counts})
}

func (s *Server) listInputs(w http.ResponseWriter, r *http.Request) {
	status := models.InputStatus(r.URL.Query().Get("status"))
	inputs, err := s.inputs.List(r.PathValue("name"), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inputs)
}

func (s *Server) runTask(w http.ResponseWriter, r *http.Request) {
	if s.classifier == nil {
		http.Error(w, "Classification is not configured", http.StatusServiceUnavailable)
		return
	}
	name := r.PathValue("name")
	if r.URL.Query().Get("reset_failed") == "true" {
		if _, err := s.inputs.ResetFailed(name); err != nil {
			writeError(w, err)
			return
		}
	}
	outcome, err := s.classifier.Run(r.Context(), name)
	if err != nil {
		log.GetLogger().Errorf("Run of task '%s' failed: %v", name, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) resetTask(w http.ResponseWriter, r *http.Request) {
	n, err := s.inputs.ResetFailed(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"reset": n})
}

func (s *Server) taskStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	field := q.Get("field")
	if field == "" {
		http.Error(w, "Missing 'field' parameter", http.StatusBadRequest)
		return
	}
	breakpoints := report.DefaultBreakpoints
	if v := q.Get("breakpoints"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid 'breakpoints' parameter: %v", err), http.StatusBadRequest)
			return
		}
		breakpoints = n
	}
	since, err := report.ParseSince(q.Get("since"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	st, err := s.reporter.Summarize(r.PathValue("name"), field, since, breakpoints)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) exportTask(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.ResponseFilter{Category: q.Get("category")}
	for _, expr := range q["where"] {
		p, err := storage.ParsePredicate(expr)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.Predicates = append(filter.Predicates, p)
	}
	since, err := report.ParseSince(q.Get("since"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	filter.Since = since
	var columns []string
	if v := q.Get("columns"); v != "" {
		columns = strings.Split(v, ",")
	}

	// Render into a buffer first so that errors still get a proper status.
	var buf strings.Builder
	if _, err := s.reporter.Export(&buf, r.PathValue("name"), filter, columns); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	fmt.Fprint(w, buf.String())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}

// writeError maps sentinel errors to status codes. Not found wins over
// configuration errors, so running an unknown task answers 404.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, report.ErrNoValues):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrConfiguration):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidStatus), errors.Is(err, report.ErrInvalidQuery):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.GetLogger().Errorf("Request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
