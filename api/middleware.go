package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/warp/backoffice/auth"
	"github.com/warp/backoffice/commerce"
)

type ctxKey string

const identityKey ctxKey = "identity"

// identityFrom returns the caller set by authenticate.
func identityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	return id, ok
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// authenticate requires "Authorization: Bearer <token>" and stores the
// caller's identity in the request context.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			h.writeError(w, r, fmt.Errorf("%w: authorization header required", commerce.ErrUnauthorized))
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			h.writeError(w, r, fmt.Errorf("%w: invalid token format", commerce.ErrUnauthorized))
			return
		}

		id, err := h.Auth.Authenticate(r.Context(), strings.TrimSpace(token))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

// requireEmployee must run after authenticate.
func (h *Handler) requireEmployee(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := identityFrom(r.Context())
		if !ok {
			h.writeError(w, r, commerce.ErrUnauthorized)
			return
		}
		if !id.IsEmployee() {
			h.writeError(w, r, fmt.Errorf("%w: employee role required", commerce.ErrForbidden))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one structured line per request.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		route := routePattern(r)
		h.Metrics.RecordHTTPRequest(r.Method, route, ww.Status(), duration)

		entry := h.logger().WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"route":       route,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": duration.Milliseconds(),
			"request_id":  requestID(r),
			"remote_addr": r.RemoteAddr,
		})
		switch {
		case ww.Status() >= 500:
			entry.Error("request completed")
		case ww.Status() >= 400:
			entry.Warn("request completed")
		default:
			entry.Info("request completed")
		}
	})
}

// routePattern keeps metric labels bounded: "/api/products/{id}" rather
// than one label per product.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
