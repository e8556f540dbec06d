package middleware

import (
	"net/http"
	"time"

	"blueprint-drafts/pkg/common"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RequestObserver receives one observation per served request
type RequestObserver interface {
	ObserveRequest(method, route string, status int, duration time.Duration)
}

// Logger creates a logging middleware
func Logger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestID", middleware.GetReqID(r.Context())),
				zap.String("remoteAddr", r.RemoteAddr),
			}
			if id := chi.URLParam(r, "sessionID"); id != "" {
				fields = append(fields, zap.String("sessionID", id))
			}

			if ww.Status() >= http.StatusInternalServerError {
				logger.Warn("HTTP Request", fields...)
				return
			}
			logger.Info("HTTP Request", fields...)
		})
	}
}

// RequestContext copies the chi request ID into the request context and
// echoes it back to the client
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := common.WithStartTime(r.Context(), time.Now())
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = common.WithRequestID(ctx, id)
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionContext tags the request context with the session in the route
func SessionContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chi.URLParam(r, "sessionID"); id != "" {
			r = r.WithContext(common.WithSessionID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// Metrics reports every request to observer, labelled by route pattern so
// session ids do not explode the label space
func Metrics(observer RequestObserver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if observer == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			observer.ObserveRequest(r.Method, route, ww.Status(), time.Since(start))
		})
	}
}
