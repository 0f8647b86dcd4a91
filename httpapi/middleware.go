package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyAdmin     ctxKey = "admin_email"
)

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recoverMiddleware turns a handler panic into a 500 when nothing was written
// yet, and keeps the server alive either way.
func (h *Handler) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := NewResponseRecorder(w)
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.ErrorContext(r.Context(), "panic recovered",
					slog.String("request_id", requestIDFromContext(r.Context())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec),
				)
				if !recorder.Written() {
					writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
				}
			}
		}()
		next.ServeHTTP(recorder, r)
	})
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := NewResponseRecorder(w)
		next.ServeHTTP(recorder, r)

		statusCode := recorder.StatusCode()
		fields := []any{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status_code", statusCode),
			slog.Int("bytes", recorder.BytesWritten()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("request_id", requestIDFromContext(r.Context())),
		}
		switch {
		case statusCode >= 500:
			h.logger.ErrorContext(r.Context(), "http request completed", fields...)
		case statusCode >= 400:
			h.logger.WarnContext(r.Context(), "http request completed", fields...)
		default:
			h.logger.DebugContext(r.Context(), "http request completed", fields...)
		}
	})
}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return s
	}
	return ""
}
