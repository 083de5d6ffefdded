package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/phimfa/internal/mfa/metrics"
	"github.com/aussiebroadwan/phimfa/internal/mfa/service"
	"github.com/aussiebroadwan/phimfa/internal/mfa/store"
	"github.com/aussiebroadwan/phimfa/pkg/httpx"
	"github.com/aussiebroadwan/phimfa/pkg/jwtx"
	"github.com/aussiebroadwan/phimfa/pkg/slogx"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/aussiebroadwan/phimfa/docs"
)

// ScopeMFA is the caller-token scope every /v1/mfa route requires.
const ScopeMFA = "mfa"

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store      store.Store
	MFAService *service.MFAService
	Metrics    *metrics.Metrics

	strict   *httpx.KeyedLimiter
	moderate *httpx.KeyedLimiter
	public   *httpx.KeyedLimiter
}

// NewRouter builds a router. The request limiters read their profiles from
// MFA_RATELIMIT_{STRICT,MODERATE,PUBLIC}_* once, here.
func NewRouter(
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	mfa *service.MFAService,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		store:        st,
		MFAService:   mfa,
		Metrics:      m,
		strict:       httpx.NewKeyedLimiter(httpx.ParseRateLimitFromEnv("STRICT", httpx.StrictLimit)),
		moderate:     httpx.NewKeyedLimiter(httpx.ParseRateLimitFromEnv("MODERATE", httpx.ModerateLimit)),
		public:       httpx.NewKeyedLimiter(httpx.ParseRateLimitFromEnv("PUBLIC", httpx.PublicLimit)),
	}

	// slogx must wrap metrics so route labels see the matched pattern.
	r.middlewares = []httpx.Middleware{
		httpx.Recover,
		slogx.HTTPMiddleware(r.logger),
	}
	if m != nil {
		r.middlewares = append(r.middlewares, m.Middleware)
	}

	return r
}

// ApplyRoutes registers every route on the mux.
func (r *Router) ApplyRoutes() {
	r.registerMFA()
	r.registerSessions()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// Limiters returns the request limiters so housekeeping can prune them.
func (r *Router) Limiters() []*httpx.KeyedLimiter {
	return []*httpx.KeyedLimiter{r.strict, r.moderate, r.public}
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			PHI MFA Service API
//	@version		0.1.0
//	@description	TOTP and backup code verification issuing standard and PHI-elevated sessions.
//	@description
//	@description				Every /v1/mfa route acts on the identity in the caller token's subject.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/phimfa
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Caller token (HS256 JWT). Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// secured wraps h with caller authentication, the mfa scope and a
// per-identity request limit.
func (r *Router) secured(h http.Handler, limit *httpx.KeyedLimiter) http.Handler {
	return httpx.Chain(h,
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAnyScope(ScopeMFA),
		httpx.RateLimitMiddleware(limit, httpx.IdentityKeyExtractor),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFAService: r.MFAService}

	// Code submission endpoints sit behind the strict bucket in addition to
	// the service's attempt limiter.
	r.Mux.Handle("POST /v1/mfa/verify", r.secured(http.HandlerFunc(h.HandleVerify), r.strict))
	r.Mux.Handle("POST /v1/mfa/backup-codes", r.secured(http.HandlerFunc(h.HandleRegenerateBackupCodes), r.strict))

	r.Mux.Handle("POST /v1/mfa/setup", r.secured(http.HandlerFunc(h.HandleSetup), r.moderate))
	r.Mux.Handle("GET /v1/mfa/status", r.secured(http.HandlerFunc(h.HandleStatus), r.moderate))
	r.Mux.Handle("POST /v1/mfa/disable", r.secured(http.HandlerFunc(h.HandleDisable), r.moderate))
	r.Mux.Handle("POST /v1/mfa/enable", r.secured(http.HandlerFunc(h.HandleEnable), r.moderate))
	r.Mux.Handle("DELETE /v1/mfa", r.secured(http.HandlerFunc(h.HandleRemove), r.moderate))
	r.Mux.Handle("GET /v1/mfa/backup-codes", r.secured(http.HandlerFunc(h.HandleRemainingBackupCodes), r.moderate))
	r.Mux.Handle("GET /v1/mfa/audit", r.secured(http.HandlerFunc(h.HandleAuditTrail), r.moderate))
}

func (r *Router) registerSessions() {
	h := &SessionHandler{MFAService: r.MFAService}

	r.Mux.Handle("GET /v1/mfa/session", r.secured(http.HandlerFunc(h.HandleCurrent), r.moderate))
	r.Mux.Handle("POST /v1/mfa/session/elevated", r.secured(http.HandlerFunc(h.HandleElevated), r.moderate))
	r.Mux.Handle("DELETE /v1/mfa/session", r.secured(http.HandlerFunc(h.HandleEnd), r.moderate))
}

func (r *Router) registerSystem() {
	limited := func(h http.Handler) http.Handler {
		return httpx.Chain(h, httpx.RateLimitMiddleware(r.public, httpx.IPKeyExtractor))
	}

	r.Mux.Handle("GET /livez", limited(LivezHandler(r.startTime, r.buildVersion)))
	r.Mux.Handle("GET /readyz", limited(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.MFAService.Audit)))

	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics", r.Metrics.Handler())
	}
}
