package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"recap/internal/apperr"
	"recap/internal/config"
	"recap/internal/export"
	"recap/internal/model"
	"recap/internal/pipeline"
	"recap/internal/summarizer"
	"recap/internal/upstream/openai"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type PipelineService interface {
	Run(ctx context.Context, in pipeline.Input, progress func(pipeline.Event)) (pipeline.Result, error)
	Summarize(ctx context.Context, transcript string, minLength, maxLength int) (summarizer.Summary, error)
	Export(transcript, summary string, format export.Format) ([]byte, error)
}

type UpstreamChecker interface {
	CheckModels(ctx context.Context) error
}

type MetricsObserver interface {
	ObserveHTTP(route, method string, status int, duration time.Duration)
}

type Dependencies struct {
	Pipeline PipelineService
	// Upstream is checked by /readyz when set.
	Upstream UpstreamChecker
	// DecoderCheck reports whether the audio decoder is available.
	DecoderCheck   func() error
	Metrics        MetricsObserver
	MetricsHandler http.Handler
}

type server struct {
	cfg          config.Config
	logger       *slog.Logger
	pipeline     PipelineService
	upstream     UpstreamChecker
	decoderCheck func() error
	metrics      MetricsObserver
	metricsRoute http.Handler
}

type ctxKey string

const (
	requestIDHeader  = "X-Request-Id"
	requestIDContext = ctxKey("request_id")
	maxJSONBodyBytes = 8 << 20
	statusCanceled   = 499
	serviceName      = "Recap"
)

func NewServer(cfg config.Config, logger *slog.Logger, deps Dependencies) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Pipeline == nil {
		panic("httpapi: pipeline dependency is required")
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		pipeline:     deps.Pipeline,
		upstream:     deps.Upstream,
		decoderCheck: deps.DecoderCheck,
		metrics:      deps.Metrics,
		metricsRoute: deps.MetricsHandler,
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.metricsRoute != nil {
		r.Handle("/metrics", s.metricsRoute)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/runs", s.handleRuns)
		r.Post("/summaries", s.handleSummaries)
		r.Post("/exports", s.handleExports)
	})

	return r
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{OK: true})
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.decoderCheck != nil {
		if err := s.decoderCheck(); err != nil {
			s.writeError(w, r, http.StatusServiceUnavailable, "not_ready", "audio decoder is not available", detailsForError(err))
			return
		}
	}
	if s.upstream != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.upstream.CheckModels(ctx); err != nil {
			s.writeError(w, r, http.StatusServiceUnavailable, "not_ready", "upstream check failed", detailsForError(err))
			return
		}
	}
	writeJSON(w, http.StatusOK, model.ReadyResponse{OK: true, ServiceName: serviceName})
}

func (s *server) handleRuns(w http.ResponseWriter, r *http.Request) {
	file, header, form, err := s.readMultipartAudio(w, r)
	if err != nil {
		s.handleMultipartReadError(w, r, err)
		return
	}
	defer cleanupMultipartForm(form)
	defer func() { _ = file.Close() }()

	minLength, maxLength, err := s.lengthBounds(r.FormValue("min_length"), r.FormValue("max_length"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "min_length and max_length must be integers", nil)
		return
	}
	extension := strings.TrimSpace(r.FormValue("extension"))
	if extension == "" {
		extension = filepath.Ext(header.Filename)
	}
	in := pipeline.Input{
		Audio:     file,
		Extension: extension,
		MinLength: minLength,
		MaxLength: maxLength,
	}

	if acceptsEventStream(r) {
		s.streamRun(w, r, in)
		return
	}

	result, err := s.pipeline.Run(r.Context(), in, nil)
	if err != nil {
		status, _ := statusForError(err)
		writeJSON(w, status, toRunResponse(result))
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(result))
}

// streamRun reports progress as server-sent events and finishes with a
// "result" event carrying the same body as the JSON response.
func (s *server) streamRun(w http.ResponseWriter, r *http.Request, in pipeline.Input) {
	stream, ok := newEventStream(w)
	if !ok {
		s.writeError(w, r, http.StatusNotAcceptable, "streaming_unsupported", "response streaming is not supported", nil)
		return
	}

	result, err := s.pipeline.Run(r.Context(), in, func(e pipeline.Event) {
		stream.send("progress", model.ProgressEvent{
			RunID:   e.RunID,
			State:   string(e.State),
			Percent: e.Percent,
			Detail:  e.Detail,
		})
	})
	if err != nil {
		s.logger.Debug("streamed run failed", "request_id", requestIDFromContext(r.Context()), "error", err)
	}
	stream.send("result", toRunResponse(result))
}

func (s *server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	var req model.SummaryRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return
	}
	if req.MinLength == 0 {
		req.MinLength = s.cfg.SummaryMinLength
	}
	if req.MaxLength == 0 {
		req.MaxLength = s.cfg.SummaryMaxLength
	}

	summary, err := s.pipeline.Summarize(r.Context(), req.Transcript, req.MinLength, req.MaxLength)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.SummaryResponse{
		Summary:   summary.Text,
		Words:     summary.Words,
		Chunks:    len(summary.Chunks),
		Fallbacks: summary.Fallbacks(),
		ExtraPass: summary.ExtraPass,
		Truncated: summary.Truncated,
	})
}

func (s *server) handleExports(w http.ResponseWriter, r *http.Request) {
	var req model.ExportRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "transcript is required", nil)
		return
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", apperr.MessageOf(err), map[string]any{"supported": export.Formats()})
		return
	}

	data, err := s.pipeline.Export(req.Transcript, req.Summary, format)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	base := req.FileName
	if strings.TrimSpace(base) == "" {
		base = "transcript_summary"
	}
	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": export.FileName(base, format),
	}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *server) lengthBounds(rawMin, rawMax string) (int, int, error) {
	minLength, err := parseOptionalInt(rawMin, s.cfg.SummaryMinLength)
	if err != nil {
		return 0, 0, err
	}
	maxLength, err := parseOptionalInt(rawMax, s.cfg.SummaryMaxLength)
	if err != nil {
		return 0, 0, err
	}
	return minLength, maxLength, nil
}

func (s *server) readMultipartAudio(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, *multipart.Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(min(s.cfg.MaxUploadBytes, 8<<20)); err != nil {
		return nil, nil, nil, err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, r.MultipartForm, err
	}
	return file, header, r.MultipartForm, nil
}

func (s *server) handleMultipartReadError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "request_too_large", fmt.Sprintf("request exceeds %d bytes", s.cfg.MaxUploadBytes), nil)
		return
	}
	if errors.Is(err, http.ErrMissingFile) {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "multipart field 'file' is required", nil)
		return
	}
	s.writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid multipart form data", nil)
}

func (s *server) handleJSONDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "request_too_large", "JSON body too large", nil)
		return
	}
	s.writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
}

func (s *server) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusForError(err)
	s.writeError(w, r, status, code, apperr.MessageOf(err), detailsForError(err))
}

// statusForError maps a pipeline error to an HTTP status and error code.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return statusCanceled, "canceled"
	}

	switch kind := apperr.KindOf(err); kind {
	case apperr.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType, string(kind)
	case apperr.KindDecode, apperr.KindEmptyInput:
		return http.StatusUnprocessableEntity, string(kind)
	case apperr.KindInvalidRange:
		return http.StatusBadRequest, string(kind)
	case apperr.KindTranscriptionFailed, apperr.KindSummarizationFailed:
		return http.StatusBadGateway, string(kind)
	case apperr.KindExport:
		return http.StatusInternalServerError, string(kind)
	}

	var upstreamErr *openai.Error
	if errors.As(err, &upstreamErr) {
		return http.StatusBadGateway, "upstream_request_failed"
	}
	return http.StatusInternalServerError, "internal_error"
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	if rid := requestIDFromContext(r.Context()); rid != "" {
		w.Header().Set(requestIDHeader, rid)
	}
	writeJSON(w, status, model.ErrorResponse{
		Error:     model.APIError{Code: code, Message: message, Details: details},
		RequestID: requestIDFromContext(r.Context()),
	})
}

func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = newRequestID()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDContext, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		duration := time.Since(started)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, status, duration)
		}

		s.logger.Info("http_request",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", duration.Milliseconds(),
		)
	})
}

func (s *server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "request_id", requestIDFromContext(r.Context()), "panic", rec)
				s.writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func toRunResponse(res pipeline.Result) model.RunResponse {
	resp := model.RunResponse{
		RunID:      res.RunID,
		State:      string(res.State),
		Transcript: res.Transcript.Text,
		Summary:    res.Summary.Text,
		TimingsMS: model.RunTimings{
			Normalize:  res.Timings.Normalize.Milliseconds(),
			Transcribe: res.Timings.Transcribe.Milliseconds(),
			Summarize:  res.Timings.Summarize.Milliseconds(),
			Total:      res.Timings.Total.Milliseconds(),
		},
	}
	for _, seg := range res.Transcript.Segments {
		resp.Segments = append(resp.Segments, model.Segment{
			Index:    seg.Index,
			StartSec: seg.Start.Seconds(),
			EndSec:   seg.End.Seconds(),
			Text:     seg.Text,
			Status:   string(seg.Status),
			Attempts: seg.Attempts,
		})
	}
	if res.Err != nil {
		_, code := statusForError(res.Err)
		resp.Failure = &model.Failure{
			Stage:   string(res.FailedStage),
			Kind:    code,
			Message: apperr.MessageOf(res.Err),
		}
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer func() { _ = r.Body.Close() }()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	return ensureBodyFullyConsumed(decoder)
}

func ensureBodyFullyConsumed(decoder *json.Decoder) error {
	var extra any
	if err := decoder.Decode(&extra); err != io.EOF {
		if err == nil {
			return fmt.Errorf("multiple JSON values")
		}
		return err
	}
	return nil
}

func parseOptionalInt(value string, fallback int) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

func acceptsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func cleanupMultipartForm(form *multipart.Form) {
	if form != nil {
		_ = form.RemoveAll()
	}
}

func requestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContext).(string)
	return value
}

func newRequestID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

func detailsForError(err error) map[string]any {
	if err == nil {
		return nil
	}
	details := map[string]any{"error": err.Error()}
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		details["stage"] = string(stageErr.Stage)
	}
	var upstreamErr *openai.Error
	if errors.As(err, &upstreamErr) {
		details["upstream_status"] = upstreamErr.StatusCode
		if upstreamErr.Body != "" {
			details["upstream_body"] = upstreamErr.Body
		}
	}
	return details
}
