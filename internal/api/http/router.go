// Package http wires the HTTP surface: routing, authentication, rate
// limiting and request/response handling around the link service.
package http

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	"github.com/shortlyhq/shortly/internal/config"
	"github.com/shortlyhq/shortly/internal/models"
)

// LinkService defines the core operations the HTTP layer exposes.
type LinkService interface {
	// Shorten validates originalURL and stores it under a random code or
	// the given custom slug. A nil owner creates an anonymous link.
	Shorten(ctx context.Context, originalURL string, customSlug *string, owner *models.Identity) (*models.Link, error)

	// Resolve returns the stored URL for an active code, queueing a visit
	// record as a side effect.
	Resolve(ctx context.Context, shortCode string, visitor models.VisitorInfo) (string, error)

	// Links lists the caller's links, or public links for anonymous calls.
	Links(ctx context.Context, caller *models.Identity) ([]models.Link, error)

	// UpdateSlug replaces the short code of one of the caller's links.
	UpdateSlug(ctx context.Context, linkID, slug string, caller models.Identity) (*models.Link, error)

	// Delete removes one of the caller's links and its visit records.
	Delete(ctx context.Context, linkID string, caller models.Identity) error

	// Analytics aggregates a link's visit history for its owner, or for
	// anyone when the link is ownerless.
	Analytics(ctx context.Context, shortCode string, caller *models.Identity, now time.Time) (*models.AnalyticsSnapshot, error)
}

// getValidate initializes the request payload validator, deriving field
// names from JSON tags.
func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}

// NewRouter assembles the full HTTP handler: API routes under /api, the
// health check, and the catch-all redirect route.
func NewRouter(logger *httplog.Logger, svc LinkService, verifier TokenVerifier, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"POST", "GET", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept", "Authorization"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	validate := getValidate()

	// Mirrors the three endpoint tiers: shortening is the tightest budget,
	// redirects the most lenient.
	shortenLimit := newRateLimiter(cfg.RateLimit.Shorten.RPS, cfg.RateLimit.Shorten.Burst)
	apiLimit := newRateLimiter(cfg.RateLimit.API.RPS, cfg.RateLimit.API.Burst)
	redirectLimit := newRateLimiter(cfg.RateLimit.Redirect.RPS, cfg.RateLimit.Redirect.Burst)

	r.Get("/health", handleHealth(time.Now()))

	r.Route("/api", func(r chi.Router) {
		r.NotFound(handleAPINotFound)

		r.With(shortenLimit.middleware, optionalAuth(verifier)).
			Post("/shorten", handleShorten(svc, validate, cfg.BaseURL))

		r.Group(func(r chi.Router) {
			r.Use(apiLimit.middleware)

			r.With(optionalAuth(verifier)).Get("/urls", handleListLinks(svc, cfg.BaseURL))
			r.With(requireAuth(verifier)).Put("/urls/{id}", handleUpdateSlug(svc, validate, cfg.BaseURL))
			r.With(requireAuth(verifier)).Delete("/urls/{id}", handleDeleteLink(svc))
			r.With(optionalAuth(verifier)).Get("/analytics/{slug}", handleAnalytics(svc))
		})
	})

	// Registered last so any remaining single-segment path is treated as a
	// short code.
	r.With(redirectLimit.middleware).Get("/{code}", handleRedirect(svc))

	return r
}
