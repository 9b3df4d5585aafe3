// Package http exposes the invoice engine and the user's records as a JSON API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"faturas/internal/core"
	applog "faturas/internal/log"
	"faturas/internal/metrics"
	"faturas/internal/middleware/identity"
	"faturas/internal/middleware/ratelimit"
	"faturas/internal/middleware/security"
	"faturas/internal/middleware/trace"
	"faturas/internal/services"
	"faturas/internal/session"
	"faturas/internal/storage"
)

// Deps are the collaborators the API serves. Activity, Ready and Metrics may be nil.
type Deps struct {
	Sessions *session.Manager
	Invoices *services.InvoiceService
	Tracker  *services.StatusTracker
	Ledger   *services.LedgerService
	Activity storage.ActivityLog
	Auth     *identity.Authenticator
	Metrics  *metrics.Collectors
	Logger   *applog.Logger

	// Ready reports whether the backing store can serve requests.
	Ready func(context.Context) error

	RateLimitPerMinute int
}

type Server struct {
	http.Server
	sessions *session.Manager
	invoices *services.InvoiceService
	tracker  *services.StatusTracker
	ledger   *services.LedgerService
	activity storage.ActivityLog
	ready    func(context.Context) error
	limiter  *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		sessions: d.Sessions,
		invoices: d.Invoices,
		tracker:  d.Tracker,
		ledger:   d.Ledger,
		activity: d.Activity,
		ready:    d.Ready,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: d.RateLimitPerMinute}),
	}

	api := http.NewServeMux()

	api.HandleFunc("POST /api/session", s.withState(s.handleSignIn))
	api.HandleFunc("DELETE /api/session", s.route(s.handleSignOut))

	api.HandleFunc("GET /api/invoice", s.withState(s.handleInvoice))
	api.HandleFunc("POST /api/invoice/items/status", s.withState(s.handleSetItemStatus))
	api.HandleFunc("POST /api/invoice/pay-all", s.withState(s.handlePayAll))
	api.HandleFunc("GET /api/balance", s.withState(s.handleBalance))

	api.HandleFunc("GET /api/cards", s.withState(s.handleListCards))
	api.HandleFunc("POST /api/cards", s.withState(s.handleCreateCard))
	api.HandleFunc("GET /api/cards/utilization", s.withState(s.handleCardUtilization))
	api.HandleFunc("DELETE /api/cards/{id}", s.withState(s.handleDelete(core.CollectionCards)))

	api.HandleFunc("GET /api/clients", s.withState(s.handleListClients))
	api.HandleFunc("POST /api/clients", s.withState(s.handleCreateClient))
	api.HandleFunc("DELETE /api/clients/{id}", s.withState(s.handleDelete(core.CollectionClients)))

	api.HandleFunc("GET /api/loans", s.withState(s.handleListLoans))
	api.HandleFunc("POST /api/loans", s.withState(s.handleCreateLoan))
	api.HandleFunc("PATCH /api/loans/{id}", s.withState(s.handleUpdateLoan))
	api.HandleFunc("DELETE /api/loans/{id}", s.withState(s.handleDelete(core.CollectionLoans)))

	api.HandleFunc("GET /api/subscriptions", s.withState(s.handleListSubscriptions))
	api.HandleFunc("POST /api/subscriptions", s.withState(s.handleCreateSubscription))
	api.HandleFunc("DELETE /api/subscriptions/{id}", s.withState(s.handleDelete(core.CollectionSubscriptions)))

	api.HandleFunc("GET /api/expenses", s.withState(s.handleListExpenses))
	api.HandleFunc("POST /api/expenses", s.withState(s.handleCreateExpense))
	api.HandleFunc("DELETE /api/expenses/{id}", s.withState(s.handleDelete(core.CollectionExpenses)))

	api.HandleFunc("GET /api/incomes", s.withState(s.handleListIncomes))
	api.HandleFunc("POST /api/incomes", s.withState(s.handleCreateIncome))
	api.HandleFunc("DELETE /api/incomes/{id}", s.withState(s.handleDelete(core.CollectionIncomes)))

	api.HandleFunc("GET /api/analytics/trend", s.withState(s.handleTrend))
	api.HandleFunc("GET /api/analytics/clients", s.withState(s.handleClientBreakdown))
	api.HandleFunc("GET /api/activity", s.route(s.handleActivity))

	ips := security.NewIPExtractor()
	limited := s.limiter.Middleware(func(r *http.Request) string {
		if userID, ok := identity.FromContext(r.Context()); ok {
			return "user:" + userID
		}
		return "ip:" + ips.ClientIP(r)
	}, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, ips.ClientIP(r))
		writeError(w, r, http.StatusTooManyRequests, "too many requests, try again later")
	})(api)
	authed := d.Auth.Middleware(func(w http.ResponseWriter, r *http.Request, err error) {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	})(limited)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", s.route(handleHealth))
	root.HandleFunc("GET /readyz", s.route(s.handleReady))
	metricsHandler := d.Metrics.Handler()
	root.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		trace.SetRoute(w, r.Pattern)
		metricsHandler.ServeHTTP(w, r)
	})
	root.Handle("/api/", authed)

	var handler http.Handler = root
	handler = trace.NewMiddleware(ips.ClientIP, d.Metrics).Middleware(handler)
	handler = applog.Middleware(logger)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Shutdown gracefully shuts down the server and its background routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// apiFunc handles a request of a signed-in user. Returned errors are mapped
// to a status code by writeErr.
type apiFunc func(w http.ResponseWriter, r *http.Request, st *session.State) error

// withState resolves the caller's application state, creating it on the
// first request after sign-in.
func (s *Server) withState(fn apiFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trace.SetRoute(w, r.Pattern)
		userID, ok := identity.FromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		st, err := s.sessions.SignIn(r.Context(), userID)
		if err != nil {
			writeErr(w, r, fmt.Errorf("sign in: %w", err))
			return
		}
		if err := fn(w, r, st); err != nil {
			writeErr(w, r, err)
		}
	}
}

// route records the matched pattern for handlers that need no state.
func (s *Server) route(fn func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trace.SetRoute(w, r.Pattern)
		if err := fn(w, r); err != nil {
			writeErr(w, r, err)
		}
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) error {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			applog.FromContext(ctx).ErrorContext(ctx, "Readiness check failed",
				applog.NewFields().WithError(err, applog.ErrorTypeDatabase).ToSlice()...)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return nil
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	return nil
}
