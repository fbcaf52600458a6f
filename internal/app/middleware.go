package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/assetdesk/assetdesk/internal/observability"
	"github.com/assetdesk/assetdesk/internal/platform/httpx"
	"github.com/assetdesk/assetdesk/internal/shared"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultRatePerMinute  = 60
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics
}

// MiddlewareStack returns the chain in the order it must run. Sessions load
// before Recoverer so a panic's 500 still commits the session, and CSRF
// runs after the rate limiter so forged requests count against the client.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout, perMinute := defaultRequestTimeout, defaultRatePerMinute
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.RateLimitPerMinute > 0 {
			perMinute = cfg.Config.RateLimitPerMinute
		}
	}

	chain := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		requestLogger(logger),
		loadSession(cfg.SessionManager, logger),
		middleware.Recoverer,
		middleware.Timeout(timeout),
		secureHeaders(cfg.Config.IsProduction(), logger),
		middleware.Compress(5),
		rateLimiter(perMinute),
		verifyCSRF(cfg.CSRFManager, logger),
	}
	if cfg.Metrics != nil {
		chain = append(chain, cfg.Metrics.Middleware)
	}
	return chain
}

func secureHeaders(production bool, logger *slog.Logger) func(http.Handler) http.Handler {
	headers := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !production,
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Process has already written the redirect or error when it fails.
			if err := headers.Process(w, r); err != nil {
				logger.Warn("secure headers rejected request", slog.String("host", r.Host), slog.Any("error", err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimiter(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded")
		}),
	)
}

// sessionWriter commits the session just before the first header write so
// cookies and flashes set by handlers reach the client.
type sessionWriter struct {
	http.ResponseWriter
	ctx       context.Context
	req       *http.Request
	sess      *shared.Session
	manager   *shared.SessionManager
	logger    *slog.Logger
	committed bool
}

func (w *sessionWriter) commit() {
	if w.committed {
		return
	}
	w.committed = true
	if err := w.manager.Commit(w.ctx, w.ResponseWriter, w.req, w.sess); err != nil {
		w.logger.Error("commit session", slog.Any("error", err))
	}
}

func (w *sessionWriter) WriteHeader(status int) {
	w.commit()
	w.ResponseWriter.WriteHeader(status)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	if !w.committed {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func loadSession(manager *shared.SessionManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := manager.Load(r.Context(), r)
			if err != nil {
				logger.Error("load session", slog.Any("error", err))
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			r = r.WithContext(shared.ContextWithSession(r.Context(), sess))
			sw := &sessionWriter{ResponseWriter: w, ctx: r.Context(), req: r, sess: sess, manager: manager, logger: logger}
			next.ServeHTTP(sw, r)
			if !sw.committed {
				sw.WriteHeader(http.StatusOK)
			}
		})
	}
}

func verifyCSRF(manager *shared.CSRFManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			err := manager.VerifyToken(r.Context(), shared.SessionFromContext(r.Context()), shared.TokenFromRequest(r))
			if err != nil {
				logger.Warn("csrf rejected", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Any("error", err))
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "invalid or missing CSRF token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs one line per request. Server errors log at Error and
// client errors at Warn.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
