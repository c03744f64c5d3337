package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"telegram-reaction-payout/internal/infra/api/apiv1"
	red "telegram-reaction-payout/internal/infra/redis"
	"telegram-reaction-payout/internal/usecase"
)

type Deps struct {
	Payouts   usecase.PayoutUseCase
	Auth      *AuthManager
	Limiter   Allower
	RateLimit int
	Metrics   http.Handler
	Health    func(ctx context.Context) error
}

// NewRouter builds the admin router. /health and /metrics are public;
// everything under /api/v1 needs an admin JWT.
func NewRouter(d Deps, logger *zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if d.Health != nil {
			if err := d.Health(req.Context()); err != nil {
				http.Error(w, "unhealthy: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	var createGuard func(http.Handler) http.Handler
	if d.Limiter != nil && d.RateLimit > 0 {
		createGuard = RateLimit(d.Limiter, d.RateLimit, red.PayoutRequestKey, logger)
	}
	r.Group(func(r chi.Router) {
		r.Use(RequireAdmin(d.Auth, logger))
		apiv1.RegisterAPIV1(r, apiv1.NewServer(d.Payouts, logger), createGuard)
	})

	return Chain(r, TraceID(), Recover(logger), RequestLog(logger), Timeout(15*time.Second))
}

// Server is the admin HTTP listener.
type Server struct {
	srv *http.Server
	log *zerolog.Logger
}

func NewServer(port int, handler http.Handler, logger *zerolog.Logger) *Server {
	compLog := logger.With().Str("component", "AdminAPI").Logger()
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
		},
		log: &compLog,
	}
}

// Start blocks until the server stops. A graceful Shutdown yields nil.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("admin api listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
