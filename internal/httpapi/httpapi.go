// Package httpapi serves the math-text pipeline over HTTP for the browser
// preview.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"latex-mathedit/internal/assist"
	"latex-mathedit/internal/logger"
	"latex-mathedit/internal/render"
	"latex-mathedit/internal/types"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

// Suggester produces repair suggestions; *assist.Assistant implements it.
type Suggester interface {
	Suggest(ctx context.Context, expr string) (*assist.Suggestion, error)
}

// Deps are the collaborators of the router. Assistant may be nil, in which
// case /api/assist answers 503.
type Deps struct {
	Renderer      *render.Renderer
	Assistant     Suggester
	AssistTimeout time.Duration
}

type server struct {
	renderer      *render.Renderer
	assistant     Suggester
	assistTimeout time.Duration
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))

	s := server{
		renderer:      d.Renderer,
		assistant:     d.Assistant,
		assistTimeout: d.AssistTimeout,
	}
	if s.renderer == nil {
		s.renderer = render.NewRenderer()
	}
	if s.assistTimeout <= 0 {
		s.assistTimeout = 60 * time.Second
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/normalize", s.handleNormalize)
		r.Post("/validate", s.handleValidate)
		r.Post("/parse", s.handleParse)
		r.Post("/render", s.handleRender)
		r.Post("/segments/{index}", s.handleEditSegment)
		r.Post("/assist", s.handleAssist)
	})
	return r
}

type errorResponse struct {
	Error string          `json:"error"`
	Code  types.ErrorCode `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("writeJSON encode failed", logger.Err(err))
	}
}

func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func readJSONLimited(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := readJSON(r, dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large", Code: types.ErrInvalidInput})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json", Code: types.ErrInvalidInput})
		return false
	}
	return true
}

// writeAppError maps an error to a status by its AppError code.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := types.ErrInternal
	msg := "internal error"

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		msg = appErr.Message
		switch appErr.Code {
		case types.ErrInvalidInput:
			status = http.StatusBadRequest
		case types.ErrNotFound:
			status = http.StatusNotFound
		case types.ErrConfig:
			status = http.StatusServiceUnavailable
		case types.ErrAssist:
			status = http.StatusBadGateway
		}
	}
	if status >= 500 {
		logger.Error("request failed", err,
			logger.String("req_id", middleware.GetReqID(r.Context())),
			logger.String("path", r.URL.Path))
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

type statusCapturingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusCapturingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusCapturingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		fields := []logger.Field{
			logger.String("req_id", middleware.GetReqID(r.Context())),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", sw.status),
			logger.Duration("elapsed", time.Since(start)),
		}
		if sw.status >= 500 {
			logger.Warn(fmt.Sprintf("http %s %s -> %d", r.Method, r.URL.Path, sw.status), fields...)
			return
		}
		logger.Debug("http request", fields...)
	})
}
