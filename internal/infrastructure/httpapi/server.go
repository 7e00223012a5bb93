package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"ListingConverter/internal/ports"
	"ListingConverter/internal/stream"
	"ListingConverter/internal/usecase"
)

const (
	// DefaultMaxBatch caps the number of URLs of a bulk request.
	DefaultMaxBatch = 50

	actorHeader    = "X-Actor-ID"
	defaultActor   = "anonymous"
	maxBodyBytes   = 1 << 20
	maxHistoryPage = 200
)

// Converter runs the conversion pipeline. *usecase.Pipeline satisfies it.
type Converter interface {
	ConvertOne(ctx context.Context, url string, opts usecase.ConvertOptions, hooks usecase.Hooks) *usecase.ItemResult
	ConvertMany(ctx context.Context, urls []string, opts usecase.ConvertOptions, hooks usecase.Hooks) *usecase.BatchProgress
}

// StreamOpener opens progress-streamed batches. *usecase.StreamCoordinator satisfies it.
type StreamOpener interface {
	Open(ctx context.Context, req usecase.BatchRequest) (*usecase.Session, error)
}

// JobControl is the control surface over streamed jobs. *stream.Manager satisfies it.
type JobControl interface {
	GetJob(ctx context.Context, id string) (*stream.Job, error)
	CancelJob(ctx context.Context, id string) bool
}

// Deps wires the HTTP surface. History is optional.
type Deps struct {
	Converter Converter
	Streams   StreamOpener
	Jobs      JobControl
	History   ports.ConversionRepository
	MaxBatch  int
	Logger    *slog.Logger
}

// Server exposes conversions over HTTP.
type Server struct {
	converter Converter
	streams   StreamOpener
	jobs      JobControl
	history   ports.ConversionRepository
	maxBatch  int
	logger    *slog.Logger
	mux       *http.ServeMux
}

// NewServer registers every route on a fresh mux.
func NewServer(deps Deps) *Server {
	s := &Server{
		converter: deps.Converter,
		streams:   deps.Streams,
		jobs:      deps.Jobs,
		history:   deps.History,
		maxBatch:  deps.MaxBatch,
		logger:    deps.Logger,
		mux:       http.NewServeMux(),
	}
	if s.maxBatch <= 0 {
		s.maxBatch = DefaultMaxBatch
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	s.mux.HandleFunc("POST /api/v1/conversions", s.handleConvert)
	s.mux.HandleFunc("POST /api/v1/conversions/preview", s.handlePreview)
	s.mux.HandleFunc("POST /api/v1/conversions/bulk", s.handleBulk)
	s.mux.HandleFunc("POST /api/v1/conversions/bulk/stream", s.handleBulkStream)
	s.mux.HandleFunc("GET /api/v1/conversions", s.handleHistory)
	s.mux.HandleFunc("GET /api/v1/conversions/jobs/{id}", s.handleJobStatus)
	s.mux.HandleFunc("POST /api/v1/conversions/jobs/{id}/cancel", s.handleCancelJob)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.logger.Debug("request served",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration", time.Since(start),
	)
}

// statusRecorder keeps the response status for access logs. Unwrap lets
// http.ResponseController reach the underlying Flusher.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, errorResponse{Detail: fmt.Sprintf(format, args...)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body is empty")
		default:
			writeError(w, http.StatusBadRequest, "invalid JSON body: %v", err)
		}
		return false
	}
	return true
}

func actorID(r *http.Request) string {
	if v := r.Header.Get(actorHeader); v != "" {
		return v
	}
	return defaultActor
}
