// Package server assembles the HTTP surface: routes, middleware chain and
// the http.Server settings.
package server

import (
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/josh-kwaku/grey-ledger/internal/handler"
	"github.com/josh-kwaku/grey-ledger/internal/middleware"
)

type Handlers struct {
	Transactions *handler.TransactionHandler
	Customers    *handler.CustomerHandler
	Accounts     *handler.AccountHandler
	Fraud        *handler.FraudHandler
	Audit        *handler.AuditHandler
	Health       *handler.HealthHandler
}

type Options struct {
	JWTSecret      string
	TrustedProxies []netip.Prefix
	Idempotency    middleware.IdempotencyStore
}

// Router wires every route. Health probes bypass authentication; mutating
// API routes additionally pass through the idempotency middleware.
func Router(h Handlers, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health.Liveness)
	mux.HandleFunc("GET /ready", h.Health.Readiness)

	auth := middleware.Auth(opts.JWTSecret, opts.TrustedProxies)
	authed := chain(auth, middleware.Logging)
	mutating := chain(auth, middleware.Logging, middleware.Idempotency(opts.Idempotency))

	read := func(pattern string, fn http.HandlerFunc) { mux.Handle(pattern, authed(fn)) }
	write := func(pattern string, fn http.HandlerFunc) { mux.Handle(pattern, mutating(fn)) }

	write("POST /api/v1/transactions", h.Transactions.Create)
	read("GET /api/v1/transactions/{id}", h.Transactions.Get)
	write("POST /api/v1/transactions/{id}/approve", h.Transactions.Approve)
	write("POST /api/v1/transactions/{id}/reject", h.Transactions.Reject)

	write("POST /api/v1/customers", h.Customers.Register)
	// Search is a read carried in a POST body to keep PII out of URLs.
	read("POST /api/v1/customers/search", h.Customers.Search)
	read("GET /api/v1/customers/{id}", h.Customers.Get)
	read("GET /api/v1/customers/{id}/accounts", h.Accounts.ListForCustomer)

	write("POST /api/v1/accounts", h.Accounts.Open)
	read("GET /api/v1/accounts/{id}", h.Accounts.Get)
	write("POST /api/v1/accounts/{id}/deactivate", h.Accounts.Deactivate)
	read("GET /api/v1/accounts/{id}/reconciliation", h.Accounts.Reconcile)

	read("GET /api/v1/fraud/alerts", h.Fraud.ListAlerts)
	write("POST /api/v1/fraud/alerts/{id}/resolve", h.Fraud.ResolveAlert)
	write("PUT /api/v1/fraud/rules/{id}/active", h.Fraud.SetRuleActive)

	read("GET /api/v1/audit", h.Audit.List)

	return chain(middleware.Recovery, middleware.Tracing)(mux)
}

func chain(mws ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

func New(port int, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
