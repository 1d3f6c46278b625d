// Package server exposes the solver over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iwvelando/goalseek/internal/config"
	"github.com/iwvelando/goalseek/internal/journal"
	"github.com/iwvelando/goalseek/internal/metrics"
	"github.com/iwvelando/goalseek/internal/optimizer"
	"github.com/iwvelando/goalseek/pkg/constants"
	"github.com/iwvelando/goalseek/pkg/oracle"
	"github.com/iwvelando/goalseek/pkg/output"
	"github.com/iwvelando/goalseek/pkg/solver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Journal stores and lists finished solves.
type Journal interface {
	optimizer.Recorder
	List(ctx context.Context, problem string, limit int) ([]journal.Entry, error)
}

// Options configures the handler. Zero values select defaults.
type Options struct {
	MaxUploadSize int64
	Timeout       time.Duration
	Version       string
	Registry      *prometheus.Registry
	Journal       Journal
}

type handler struct {
	logger        *zap.Logger
	maxUploadSize int64
	timeout       time.Duration
	version       string
	collector     *metrics.Collector
	journal       Journal
}

// NewHandler constructs the HTTP handler that serves the solve API.
func NewHandler(logger *zap.Logger, opts Options) (http.Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = constants.DefaultMaxUploadSizeBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = constants.DefaultRequestTimeout
	}
	version := strings.TrimSpace(opts.Version)
	if version == "" {
		version = "dev"
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		return nil, err
	}

	h := &handler{
		logger:        logger,
		maxUploadSize: opts.MaxUploadSize,
		timeout:       opts.Timeout,
		version:       version,
		collector:     collector,
		journal:       opts.Journal,
	}

	mux := http.NewServeMux()

	// Solve API endpoint (raw YAML/JSON body or multipart upload)
	mux.HandleFunc("/api/solve", h.handleSolve)

	// Journal listing
	mux.HandleFunc("/api/journal", h.handleJournal)

	// Version endpoint for client metadata
	mux.HandleFunc("/api/version", h.handleVersion)

	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return mux, nil
}

type solveResponse struct {
	Results      []optimizer.Result `json:"results"`
	CSV          string             `json:"csv"`
	Warnings     []string           `json:"warnings,omitempty"`
	Applied      map[string]float64 `json:"applied,omitempty"`
	WorkbookYAML string             `json:"workbookYaml,omitempty"`
	Duration     string             `json:"duration"`
}

func (h *handler) handleSolve(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleSolve"
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	query := r.URL.Query()
	apply := false
	if raw := strings.TrimSpace(query.Get("apply")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid apply flag %q", raw), op)
			return
		}
		apply = parsed
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	data, err := h.readConfiguration(r)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds limit of %d bytes", h.maxUploadSize), op)
			return
		}
		h.respondError(w, http.StatusBadRequest, err.Error(), op)
		return
	}

	cfg, err := config.LoadConfigurationFromReader(bytes.NewReader(data))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), op)
		return
	}
	if !cfg.Model.Inline() {
		h.respondError(w, http.StatusBadRequest, "model.path is not accepted by the server; embed the workbook under model.cells", op)
		return
	}
	problems, err := cfg.Selected(strings.TrimSpace(query.Get("problem")))
	if err != nil {
		h.respondError(w, http.StatusNotFound, err.Error(), op)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	m := cfg.Model.Open(h.logger)
	if err := m.Load(ctx); err != nil {
		status := http.StatusBadRequest
		if ctx.Err() != nil {
			status = solveStatus(ctx.Err())
		}
		h.respondError(w, status, fmt.Sprintf("failed to load model: %v", err), op)
		return
	}
	loaded := true
	defer func() {
		if loaded {
			_ = m.Unload(false)
		}
	}()

	s, err := solver.NewSolver(h.logger, m, cfg.Solver, solver.WithObserver(h.collector))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), op)
		return
	}
	var runnerOpts []optimizer.Option
	if h.journal != nil {
		runnerOpts = append(runnerOpts, optimizer.WithRecorder(h.journal))
	}
	runner, err := optimizer.NewRunner(h.logger, s, runnerOpts...)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error(), op)
		return
	}

	results, err := runner.Run(ctx, problems)
	if err != nil {
		h.respondError(w, solveStatus(err), err.Error(), op)
		return
	}

	response := solveResponse{
		Results:  results,
		Warnings: cfg.ValidateConfiguration(),
	}

	var csvBuf bytes.Buffer
	if err := output.CsvFormat(&csvBuf, results); err != nil {
		h.logger.Warn("failed to render CSV", zap.String("op", op), zap.Error(err))
	}
	response.CSV = csvBuf.String()

	if apply {
		response.Applied = optimizer.Recommended(results)
		if err := m.Apply(response.Applied); err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error(), op)
			return
		}
		loaded = false
		if err := m.Unload(true); err != nil {
			h.respondError(w, http.StatusInternalServerError, err.Error(), op)
			return
		}
		workbookBytes, err := yaml.Marshal(m.Workbook())
		if err != nil {
			h.logger.Warn("failed to marshal updated workbook", zap.String("op", op), zap.Error(err))
		} else {
			response.WorkbookYAML = string(workbookBytes)
		}
	}

	elapsed := time.Since(start)
	response.Duration = elapsed.String()

	h.logger.Info("solve request completed",
		zap.String("op", op),
		zap.Int("problems", len(results)),
		zap.Bool("apply", apply),
		zap.Duration("duration", elapsed),
	)
	h.writeJSON(w, http.StatusOK, response)
}

// readConfiguration returns the request's configuration document, taken from
// the "file" form field of a multipart upload or from the raw body.
func (h *handler) readConfiguration(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, fmt.Errorf("missing configuration")
		}
		return data, nil
	}

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to parse upload: %w", err)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("missing configuration file")
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			h.logger.Warn("failed to close uploaded file",
				zap.String("op", "server.readConfiguration"),
				zap.Error(closeErr),
			)
		}
	}()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	return buf.Bytes(), nil
}

func solveStatus(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.Is(err, oracle.ErrUnknownCell),
		errors.Is(err, solver.ErrInvalidRange),
		errors.Is(err, solver.ErrInvalidTolerance),
		errors.Is(err, solver.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) handleJournal(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleJournal"
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if h.journal == nil {
		h.respondError(w, http.StatusNotFound, "journal is not enabled", op)
		return
	}

	limit := constants.DefaultJournalListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw), op)
			return
		}
		limit = n
	}

	entries, err := h.journal.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("problem")), limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error(), op)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) respondError(w http.ResponseWriter, status int, msg string, op string) {
	h.logger.Error("request failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("error", msg),
	)

	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}
