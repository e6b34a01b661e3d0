package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"partnerledger/native/bonus"
	"partnerledger/native/commission"
	"partnerledger/native/partner"
	"partnerledger/native/rates"
	"partnerledger/native/withdrawal"
	"partnerledger/services/ledgerd/auth"
	"partnerledger/services/ledgerd/middleware"
	"partnerledger/services/ledgerd/scheduler"
)

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config captures the dependencies required to construct the server.
type Config struct {
	DB          *gorm.DB
	Health      Pinger
	Tables      *rates.Tables
	Ledger      *bonus.Ledger
	Partners    *partner.Service
	Commissions *commission.Engine
	Withdrawals *withdrawal.Engine
	Maintenance *scheduler.Maintenance
	Auth        *auth.Authenticator
	RateLimit   middleware.RateLimit
	Logger      *slog.Logger
	Now         func() time.Time
}

// Server exposes the ledger over JSON HTTP.
type Server struct {
	db          *gorm.DB
	health      Pinger
	tables      *rates.Tables
	ledger      *bonus.Ledger
	partners    *partner.Service
	commissions *commission.Engine
	withdrawals *withdrawal.Engine
	maintenance *scheduler.Maintenance
	auth        *auth.Authenticator
	limiter     *middleware.RateLimiter
	logger      *slog.Logger
	now         func() time.Time

	router http.Handler
}

// New constructs the router with authentication, rate limiting and
// idempotency support.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	authn := cfg.Auth
	if authn == nil {
		authn = auth.NewAuthenticator(auth.Config{Disabled: true}, logger)
	}
	srv := &Server{
		db:          cfg.DB,
		health:      cfg.Health,
		tables:      cfg.Tables,
		ledger:      cfg.Ledger,
		partners:    cfg.Partners,
		commissions: cfg.Commissions,
		withdrawals: cfg.Withdrawals,
		maintenance: cfg.Maintenance,
		auth:        authn,
		limiter:     middleware.NewRateLimiter(cfg.RateLimit),
		logger:      logger.With("component", "http"),
		now:         now,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router wrapped for tracing.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "ledgerd")
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/healthz", s.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.limiter.Middleware("api"))
		if s.db != nil {
			api.Use(middleware.Idempotency(s.db))
		}

		api.Group(func(r chi.Router) {
			r.Use(middleware.Metrics("bonus"))
			r.Use(s.auth.Require(auth.ScopeCheckout, auth.ScopeAdmin))
			r.Get("/users/{id}/bonus", s.GetBonusStats)
			r.Get("/users/{id}/bonus/history", s.GetBonusHistory)
			r.Get("/users/{id}/bonus/expiring", s.GetBonusExpiring)
			r.Post("/activities", s.GrantActivity)
		})

		api.Group(func(r chi.Router) {
			r.Use(middleware.Metrics("checkout"))
			r.Use(s.auth.Require(auth.ScopeCheckout))
			r.Post("/checkout/quote", s.QuoteCheckout)
			r.Post("/checkout/spend", s.SpendCheckout)
			r.Post("/checkout/transactions", s.RecordTransaction)
		})

		api.Group(func(r chi.Router) {
			r.Use(middleware.Metrics("partners"))
			r.Use(s.auth.Require(auth.ScopeCheckout, auth.ScopeAdmin))
			r.Post("/referrals", s.LinkReferral)
			r.Get("/partners/{id}/stats", s.GetPartnerStats)
			r.Get("/partners/{id}/commissions", s.ListPartnerCommissions)
		})

		api.Group(func(r chi.Router) {
			r.Use(middleware.Metrics("withdrawals"))
			r.Use(s.auth.Require(auth.ScopeCheckout, auth.ScopeAdmin))
			r.Post("/withdrawals/quote", s.QuoteWithdrawal)
			r.Post("/withdrawals", s.CreateWithdrawal)
			r.Get("/withdrawals/{id}", s.GetWithdrawal)
		})

		api.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Metrics("admin"))
			r.Use(s.auth.Require(auth.ScopeAdmin))
			r.Get("/withdrawals", s.ListWithdrawals)
			r.Post("/withdrawals/{id}/approve", s.ApproveWithdrawal)
			r.Post("/withdrawals/{id}/reject", s.RejectWithdrawal)
			r.Post("/commissions/{id}/approve", s.ApproveCommission)
			r.Post("/commissions/{id}/cancel", s.CancelCommission)
			r.Post("/bonus/{userID}/adjust", s.AdjustBonus)
			r.Get("/bonus/{userID}/audit", s.AuditBonus)
		})

		api.Route("/jobs", func(r chi.Router) {
			r.Use(middleware.Metrics("jobs"))
			r.Use(s.auth.Require(auth.ScopeScheduler, auth.ScopeAdmin))
			r.Post("/expire", s.RunExpire)
			r.Post("/payouts", s.RunPayouts)
			r.Post("/commissions", s.RunCommissions)
			r.Post("/warnings", s.RunWarnings)
		})
	})
	return r
}

// Healthz reports liveness and database reachability.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

const maxBodyBytes = 1 << 20

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, r, errBadRequest("invalid payload: "+err.Error()))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		s.logger.Warn("encode response", slog.String("error", err.Error()))
	}
}
