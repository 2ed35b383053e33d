// Package http provides the HTTP API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/tasks"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/usecases"
)

// maxUploadMemory is how much of a multipart upload is buffered in memory.
const maxUploadMemory = 32 << 20

type QueryService interface {
	Answer(ctx context.Context, question string, tableHints []string) (*entities.AnswerResult, error)
}

type TaskService interface {
	Submit(kind string, job tasks.Job) (string, error)
	Get(ctx context.Context, id string) (*entities.TaskRecord, error)
}

type CleanupService interface {
	Plan(targets []string) *entities.CleanupPlan
	Execute(ctx context.Context, plan *entities.CleanupPlan, assumeYes, dryRun bool) entities.CleanupOutcome
}

type DataService interface {
	Import(ctx context.Context) (*usecases.ImportReport, error)
	SaveUpload(filename string, r io.Reader) (string, error)
}

type IndexService interface {
	Build(ctx context.Context, policy usecases.BuildPolicy) (*usecases.BuildReport, error)
}

type TableService interface {
	List(includeMeta bool) []entities.TableInfo
}

// HealthChecker reports whether a collaborator service is reachable.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// Services bundles everything the API exposes.
type Services struct {
	Query   QueryService
	Tasks   TaskService
	Cleanup CleanupService
	Data    DataService
	Index   IndexService
	Tables  TableService

	// Ingestion, when set, is checked by GET /api/health.
	Ingestion HealthChecker
}

// Server is the HTTP server for the TableRAG API.
type Server struct {
	svc    Services
	addr   string
	logger hclog.Logger
}

// NewServer creates a new HTTP server.
func NewServer(svc Services, addr string, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Server{svc: svc, addr: addr, logger: logger}
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/ask", s.handleAsk)
	mux.HandleFunc("POST /api/cleanup", s.handleCleanup)
	mux.HandleFunc("POST /api/data/import", s.handleImport)
	mux.HandleFunc("POST /api/data/upload", s.handleUpload)
	mux.HandleFunc("POST /api/embeddings/build", s.handleBuild)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleTask)
	mux.HandleFunc("GET /api/tables", s.handleTables)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	traced := otelhttp.NewHandler(mux, "tablerag",
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return "HTTP " + r.Method + " " + r.URL.Path
		}),
	)
	return corsMiddleware(s.loggingMiddleware(traced))
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// Answers can take several model round trips.
		WriteTimeout: 10 * time.Minute,
	}

	s.logger.Info("server starting", "addr", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("shutdown", "error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type askRequest struct {
	Question string   `json:"question"`
	TableID  string   `json:"table_id"`
	Tables   []string `json:"tables"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	hints := req.Tables
	if len(hints) == 0 && req.TableID != "" {
		hints = []string{req.TableID}
	}

	res, err := s.svc.Query.Answer(r.Context(), req.Question, hints)
	if err != nil {
		s.logger.Error("answering question", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type cleanupRequest struct {
	Targets []string `json:"targets"`
	DryRun  bool     `json:"dry_run"`
}

// handleCleanup never prompts; submitting the request is the confirmation.
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	plan := s.svc.Cleanup.Plan(req.Targets)
	s.submit(w, "cleanup", func(ctx context.Context) (any, error) {
		out := s.svc.Cleanup.Execute(ctx, plan, true, req.DryRun)
		return out, nil
	}, nil)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	s.submit(w, "import", func(ctx context.Context) (any, error) {
		return s.svc.Data.Import(ctx)
	}, nil)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := append(r.MultipartForm.File["files"], r.MultipartForm.File["file"]...)
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	var saved []string
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		path, err := s.svc.Data.SaveUpload(fh.Filename, f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved = append(saved, path)
	}

	s.submit(w, "import", func(ctx context.Context) (any, error) {
		return s.svc.Data.Import(ctx)
	}, map[string]any{"saved_paths": saved})
}

type buildRequest struct {
	Policy string `json:"policy"`
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	var req buildRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	policy, err := usecases.ParseBuildPolicy(req.Policy)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.submit(w, "embeddings", func(ctx context.Context) (any, error) {
		return s.svc.Index.Build(ctx, policy)
	}, nil)
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Tasks.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, tasks.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	includeMeta := r.URL.Query().Get("include_meta") == "true"
	writeJSON(w, http.StatusOK, map[string]any{"tables": s.svc.Tables.List(includeMeta)})
}

// handleHealth reports this server as up and, when configured, whether the
// ingestion service answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	if s.svc.Ingestion != nil {
		body["ingestion"] = "unavailable"
		if s.svc.Ingestion.Healthy(r.Context()) {
			body["ingestion"] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// submit starts job in the background and answers 202 with its id.
func (s *Server) submit(w http.ResponseWriter, kind string, job tasks.Job, extra map[string]any) {
	id, err := s.svc.Tasks.Submit(kind, job)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	body := map[string]any{"task_id": id, "status": entities.TaskQueued}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, http.StatusAccepted, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}
