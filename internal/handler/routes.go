package handler

import (
	"net/http"

	"github.com/msomdec/issue-tracker/internal/service"
)

// Options carries the dependencies the routes need.
type Options struct {
	Auth   *service.AuthService
	Issues *service.IssueService
	// Limiter throttles the auth endpoints. Nil disables throttling.
	Limiter service.RateLimiter
	// DB backs the health check. Nil reports healthy unconditionally.
	DB           Pinger
	Metrics      *Metrics
	CookieSecure bool
}

// RegisterRoutes sets up all HTTP routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, opts Options) {
	authHandler := NewAuthHandler(opts.Auth)
	issueHandler := NewIssueHandler(opts.Issues)
	pageHandler := NewPageHandler(opts.Auth, opts.Issues, opts.CookieSecure)

	apiAuth := func(h http.HandlerFunc) http.Handler { return RequireAuth(opts.Auth, h) }
	pageAuth := func(h http.HandlerFunc) http.Handler { return RequirePageAuth(opts.Auth, h) }
	limited := func(h http.HandlerFunc) http.Handler { return RateLimit(opts.Limiter, h) }

	mux.Handle("GET /healthz", HandleHealthz(opts.DB))
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics.Handler())
	}

	// JSON API
	mux.Handle("POST /api/auth/register", limited(authHandler.HandleRegister))
	mux.Handle("POST /api/auth/login", limited(authHandler.HandleLogin))
	mux.Handle("GET /api/auth/me", apiAuth(authHandler.HandleMe))

	mux.Handle("POST /api/createissue", apiAuth(issueHandler.HandleCreate))
	mux.Handle("GET /api/getallissues", apiAuth(issueHandler.HandleList))
	mux.Handle("GET /api/getissuebyid/{id}", apiAuth(issueHandler.HandleGet))
	mux.Handle("PUT /api/updateissue/{id}", apiAuth(issueHandler.HandleUpdate))
	mux.Handle("DELETE /api/deleteissue/{id}", apiAuth(issueHandler.HandleDelete))

	// Pages
	mux.HandleFunc("GET /", pageHandler.HandleRoot)
	mux.HandleFunc("GET /login", pageHandler.HandleLoginPage)
	mux.Handle("POST /login", limited(pageHandler.HandleLogin))
	mux.HandleFunc("GET /register", pageHandler.HandleRegisterPage)
	mux.Handle("POST /register", limited(pageHandler.HandleRegister))
	mux.HandleFunc("POST /logout", pageHandler.HandleLogout)

	mux.Handle("GET /issues", pageAuth(pageHandler.HandleIssueList))
	mux.Handle("GET /issues/new", pageAuth(pageHandler.HandleIssueNew))
	mux.Handle("POST /issues", pageAuth(pageHandler.HandleIssueCreate))
	mux.Handle("GET /issues/{id}", pageAuth(pageHandler.HandleIssueView))
	mux.Handle("GET /issues/{id}/edit", pageAuth(pageHandler.HandleIssueEdit))
	mux.Handle("POST /issues/{id}", pageAuth(pageHandler.HandleIssueUpdate))
	mux.Handle("DELETE /issues/{id}", pageAuth(pageHandler.HandleIssueDelete))
}

// NewServer builds the full handler chain: routes, instrumentation, and
// security headers.
func NewServer(opts Options) http.Handler {
	mux := http.NewServeMux()
	RegisterRoutes(mux, opts)

	var h http.Handler = mux
	if opts.Metrics != nil {
		h = opts.Metrics.Instrument(h)
	}
	return SecurityHeaders(h)
}
