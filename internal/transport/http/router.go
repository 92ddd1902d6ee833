package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-emailaddress/internal/application/emailaddress"
	"github.com/go-emailaddress/internal/application/verifiable"
	"github.com/go-emailaddress/internal/config"
	"github.com/go-emailaddress/internal/domain"
	jwtinfra "github.com/go-emailaddress/internal/infrastructure/jwt"
	"github.com/go-emailaddress/internal/infrastructure/smtp"
	"github.com/go-emailaddress/internal/infrastructure/sns"
	"github.com/go-emailaddress/internal/metrics"
	"github.com/go-emailaddress/internal/pkg/lock"
	"github.com/go-emailaddress/internal/transport/http/handler"
	appmiddleware "github.com/go-emailaddress/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
// Templates, Events and JWTProvider are optional.
type Deps struct {
	EmailAddressRepo        EmailAddressRepository
	VerifiableDataRepo      VerifiableDataRepository
	VerificationRequestRepo VerificationRequestRepository
	TokenRepo               TokenRepository
	Locker                  lock.Locker
	Mailer                  smtp.Mailer
	Events                  sns.EventPublisher
	Templates               TemplateStore
	JWTProvider             *jwtinfra.Provider
	HealthChecks            []handler.Check
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	if cfg.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	adminMw := []func(http.Handler) http.Handler{}
	if deps.JWTProvider != nil {
		adminMw = append(adminMw, appmiddleware.Auth(deps.JWTProvider), appmiddleware.RequireRole(domain.RoleAdmin))
	}

	verifyRL := appmiddleware.NewRateLimiter(rate.Limit(cfg.VerifyRateLimit), cfg.VerifyRateBurst)

	engine := verifiable.NewService(verifiable.ServiceDeps{
		Subjects: deps.VerifiableDataRepo,
		Requests: deps.VerificationRequestRepo,
		Tokens:   deps.TokenRepo,
		Locker:   deps.Locker,
	})
	emailSvc := emailaddress.NewService(emailaddress.ServiceDeps{
		Repo:        deps.EmailAddressRepo,
		Verifier:    engine,
		Mailer:      deps.Mailer,
		Locker:      deps.Locker,
		Events:      deps.Events,
		MailFrom:    cfg.SMTPFrom,
		MailSubject: cfg.VerificationMailSubject,
	})

	healthH := handler.NewHealthHandler(deps.HealthChecks...)
	emailH := handler.NewEmailAddressHandler(emailSvc, deps.Templates)
	verifyH := handler.NewVerifyHandler(emailSvc)

	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)
		r.With(verifyRL.Limit).Get("/verify/{token}", verifyH.Verify)
		r.With(verifyRL.Limit).Post("/verify/{token}", verifyH.Verify)

		// ── Admin routes ─────────────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(adminMw...)

			r.Post("/email-addresses", emailH.Save)
			r.Post("/email-addresses/{id}/verification-requests", emailH.CreateVerificationRequest)
			r.Get("/email-addresses/{id}/verified", emailH.Verified)
			r.Delete("/email-addresses/{id}", emailH.Invalidate)
		})
	})

	return r
}
