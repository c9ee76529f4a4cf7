package router

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ovaphlow/splashops/service-core/internal/clock"
	"github.com/ovaphlow/splashops/service-core/internal/dashboard"
	"github.com/ovaphlow/splashops/service-core/internal/notification"
	"github.com/ovaphlow/splashops/service-core/internal/session"
	"github.com/ovaphlow/splashops/service-core/internal/user"
	"github.com/ovaphlow/splashops/service-core/pkg/metrics"
	"github.com/ovaphlow/splashops/service-core/pkg/utilities"
)

const apiPrefix = "/api/mobile"

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

func (lrw *loggingResponseWriter) statusCode() int {
	if lrw.status == 0 {
		return http.StatusOK
	}
	return lrw.status
}

type requestIDKey struct{}

// RequestID returns the id assigned by RequestIDMiddleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDMiddleware keeps an incoming X-Request-ID or assigns a KSUID.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" || len(id) > 64 {
				id = utilities.NewKSUID()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

// LoggingMiddleware returns a middleware that logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			logger.Debugw("http request",
				"request_id", RequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", lrw.statusCode(),
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// MetricsMiddleware records request latency by route pattern, so path
// parameters do not explode label cardinality.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			path := r.Pattern
			if path == "" {
				path = "unmatched"
			}
			metrics.APILatency.WithLabelValues(r.Method, path, strconv.Itoa(lrw.statusCode())).
				Observe(time.Since(start).Seconds())
		})
	}
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			w.Header().Set("Cache-Control", "no-store")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}
			// HSTS only over TLS
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Deps are the services the routes are mounted on.
type Deps struct {
	Users          *user.UserService
	Sessions       *session.Service
	Clock          *clock.Service
	Notifications  *notification.Service
	DB             *sqlx.DB
	AdminPositions []string
	Logger         *zap.SugaredLogger
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
func RegisterRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()
	logger := d.Logger

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if d.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.DB.PingContext(ctx); err != nil {
				logger.Warnw("health check db ping failed", "err", err)
				http.Error(w, "db unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	uh := user.NewHandler(d.Users, d.Sessions, logger)
	sh := session.NewHandler(d.Sessions, d.Users.Subject, logger)
	ch := clock.NewHandler(d.Clock, d.Users, logger)
	nh := notification.NewHandler(d.Notifications, logger)
	dh := dashboard.NewHandler(d.Clock, d.Notifications, logger)
	authed := func(h http.HandlerFunc) http.Handler { return d.Sessions.Require(h) }
	admin := func(h http.HandlerFunc) http.Handler { return d.Sessions.RequirePosition(d.AdminPositions, d.Users.Subject, h) }

	mux.HandleFunc("GET /.well-known/jwks.json", sh.JWKS)

	mux.HandleFunc("POST "+apiPrefix+"/register", uh.Register)
	mux.HandleFunc("POST "+apiPrefix+"/login", uh.Login)
	mux.HandleFunc("POST "+apiPrefix+"/send-verification-code", uh.SendVerificationCode)
	mux.HandleFunc("POST "+apiPrefix+"/verify-code", uh.VerifyCode)
	mux.HandleFunc("POST "+apiPrefix+"/forgot-password", uh.ForgotPassword)
	mux.HandleFunc("POST "+apiPrefix+"/reset-password", uh.ResetPassword)
	mux.HandleFunc("POST "+apiPrefix+"/token/refresh", sh.Refresh)
	mux.HandleFunc("POST "+apiPrefix+"/logout", sh.Logout)

	mux.Handle("GET "+apiPrefix+"/me", authed(uh.Me))
	mux.Handle("GET "+apiPrefix+"/me/status", authed(uh.MeStatus))

	mux.Handle("POST "+apiPrefix+"/clock/in", authed(ch.ClockIn))
	mux.Handle("POST "+apiPrefix+"/clock/out", authed(ch.ClockOut))
	mux.Handle("GET "+apiPrefix+"/clock/status", authed(ch.Status))
	mux.Handle("GET "+apiPrefix+"/clock/records", authed(ch.Records))
	mux.Handle("GET "+apiPrefix+"/clock/active", admin(ch.Active))

	mux.Handle("GET "+apiPrefix+"/dashboard", authed(dh.Get))
	mux.Handle("GET "+apiPrefix+"/notifications", authed(nh.List))
	mux.Handle("GET "+apiPrefix+"/notifications/unread-count", authed(nh.UnreadCount))
	mux.Handle("POST "+apiPrefix+"/notifications/{id}/mark-read", authed(nh.MarkRead))
	mux.Handle("POST "+apiPrefix+"/notifications/mark-all-read", authed(nh.MarkAllRead))

	mux.Handle("GET "+apiPrefix+"/admin/users", admin(uh.ListUsers))
	mux.Handle("GET "+apiPrefix+"/admin/users/pending", admin(uh.ListPending))
	mux.Handle("GET "+apiPrefix+"/admin/users/{id}", admin(uh.GetUser))
	mux.Handle("PUT "+apiPrefix+"/admin/users/{id}", admin(uh.UpdateUser))
	mux.Handle("GET "+apiPrefix+"/admin/users/{id}/clock-records", admin(ch.EmployeeRecords))
	mux.Handle("POST "+apiPrefix+"/admin/users/{id}/approve", admin(uh.Approve))
	mux.Handle("POST "+apiPrefix+"/admin/users/{id}/deactivate", admin(uh.Deactivate))
	mux.Handle("POST "+apiPrefix+"/admin/users/{id}/activate", admin(uh.Activate))
	mux.Handle("POST "+apiPrefix+"/admin/users/{id}/position", admin(uh.AssignPosition))
	mux.Handle("DELETE "+apiPrefix+"/admin/users/{id}", admin(uh.Delete))

	var handler http.Handler = SecurityHeadersMiddleware()(mux)
	handler = MetricsMiddleware()(handler)
	handler = LoggingMiddleware(logger)(handler)
	return RequestIDMiddleware()(handler)
}
