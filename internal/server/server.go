// Package server is the HTTP API of the dispatch service.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"artebot/internal/notify"
	"artebot/internal/storage"
	logx "artebot/pkg/logx"
)

type Config struct {
	Addr              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	RequestsPerMinute int
	Pprof             bool
}

// Dispatcher sends one notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, p notify.Payload) notify.Result
}

// Store is the storage surface behind the admin routes.
type Store interface {
	GetNotificationSettings(ctx context.Context, tenantID int64) (*notify.Settings, error)
	UpsertNotificationSettings(ctx context.Context, u storage.SettingsUpdate) (*notify.Settings, error)
	ListContacts(ctx context.Context, tenantID int64) ([]storage.Contact, error)
	CreateContact(ctx context.Context, c storage.Contact) (storage.Contact, error)
	GetContact(ctx context.Context, tenantID, contactID int64) (storage.Contact, error)
	SetContactActive(ctx context.Context, tenantID, contactID int64, active bool) error
	Ping(ctx context.Context) error
}

// Invalidator drops cached settings after an update.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID int64) error
}

type Deps struct {
	Dispatcher Dispatcher
	Store      Store
	// Cache is optional.
	Cache Invalidator
	Log   logx.Logger
}

type Server struct {
	cfg      Config
	deps     Deps
	log      logx.Logger
	validate *validator.Validate
	handler  http.Handler
}

func New(cfg Config, d Deps) *Server {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	s := &Server{
		cfg:      cfg,
		deps:     d,
		log:      d.Log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	s.handler = otelhttp.NewHandler(s.routes(), "artebot.api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	return s
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())
	if s.cfg.Pprof {
		r.Mount("/debug", middleware.Profiler())
	}

	r.Route("/v1", func(r chi.Router) {
		if s.cfg.RequestsPerMinute > 0 {
			r.Use(httprate.LimitByIP(s.cfg.RequestsPerMinute, time.Minute))
		}
		r.Post("/notifications", s.dispatch)
		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			r.Get("/notification-settings", s.getSettings)
			r.Put("/notification-settings", s.putSettings)
			r.Get("/contacts", s.listContacts)
			r.Post("/contacts", s.createContact)
			r.Patch("/contacts/{contactID}", s.patchContact)
		})
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []logx.Field{
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", status),
			logx.Duration("took", time.Since(start)),
			logx.String("request_id", middleware.GetReqID(r.Context())),
		}
		if status >= 500 {
			s.log.Warn("http request", fields...)
			return
		}
		s.log.Debug("http request", fields...)
	})
}

// Serve listens on the configured address until ctx is done, then shuts the
// server down within grace.
func (s *Server) Serve(ctx context.Context, grace time.Duration) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.serveListener(ctx, ln, grace)
}

func (s *Server) serveListener(ctx context.Context, ln net.Listener, grace time.Duration) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	if grace <= 0 {
		grace = 5 * time.Second
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("http api listening", logx.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("http api shutdown timed out", logx.Err(err))
		_ = srv.Close()
	}
	s.log.Info("http api stopped")
	return nil
}
