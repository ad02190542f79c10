package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/shortlyhq/shortly/internal/database"
	"github.com/shortlyhq/shortly/internal/models"
	"github.com/shortlyhq/shortly/internal/service"
	"github.com/shortlyhq/shortly/pkg/response"
)

// shortenRequest is the payload for creating a shortened URL. The URL
// itself is validated by the service, which also accepts scheme-less input.
type shortenRequest struct {
	OriginalURL string  `json:"original_url" validate:"required"`
	CustomSlug  *string `json:"custom_slug,omitempty"`
}

// updateSlugRequest is the payload for replacing a link's short code.
type updateSlugRequest struct {
	Slug string `json:"slug" validate:"required"`
}

// linkResponse is the link envelope returned by creation, listing and
// update endpoints.
type linkResponse struct {
	ID           string    `json:"id"`
	OriginalURL  string    `json:"original_url"`
	ShortCode    string    `json:"short_code"`
	ShortURL     string    `json:"short_url"`
	VisitCount   int64     `json:"visit_count"`
	IsActive     bool      `json:"is_active"`
	IsCustomSlug bool      `json:"is_custom_slug"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toLinkResponse(baseURL string, link *models.Link) linkResponse {
	return linkResponse{
		ID:           link.ID,
		OriginalURL:  link.OriginalURL,
		ShortCode:    link.ShortCode,
		ShortURL:     fmt.Sprintf("%s/%s", baseURL, link.ShortCode),
		VisitCount:   link.VisitCount,
		IsActive:     link.IsActive,
		IsCustomSlug: link.IsCustomSlug,
		CreatedAt:    link.CreatedAt,
		UpdatedAt:    link.UpdatedAt,
	}
}

// handleHealth reports process health and uptime.
func handleHealth(start time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.Status(r, http.StatusOK)
		render.JSON(w, r, map[string]any{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
			"uptime":    time.Since(start).String(),
		})
	}
}

func handleAPINotFound(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusNotFound)
	render.JSON(w, r, response.ErrorResponse("API endpoint not found"))
}

// handleShorten handles POST requests to create a shortened URL, with an
// optional custom slug and an optional caller identity.
func handleShorten(svc LinkService, validate *validator.Validate, baseURL string) http.HandlerFunc {
	const op = "api.http.handleShorten"
	const successMsg = "URL shortened successfully"

	return func(w http.ResponseWriter, r *http.Request) {
		var req shortenRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		link, err := svc.Shorten(r.Context(), req.OriginalURL, req.CustomSlug, identityFrom(r.Context()))
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidURL):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.ErrorResponse("Invalid URL provided"))
			case errors.Is(err, service.ErrUnsafeURL):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.ErrorResponse("URL appears to be malicious or unsafe"))
			case errors.Is(err, service.ErrInvalidSlug):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.ErrorResponse("Invalid custom slug format. Use 3-20 alphanumeric characters, hyphens, or underscores."))
			case errors.Is(err, service.ErrSlugTaken):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.ErrorResponse("Custom slug is already taken"))
			case errors.Is(err, service.ErrCodeSpaceExhausted):
				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, response.ErrorResponse("Could not allocate a short code, please retry"))
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(baseURL, link)))
	}
}

// handleListLinks returns the caller's links when authenticated, or the
// public links otherwise.
func handleListLinks(svc LinkService, baseURL string) http.HandlerFunc {
	const op = "api.http.handleListLinks"

	return func(w http.ResponseWriter, r *http.Request) {
		links, err := svc.Links(r.Context(), identityFrom(r.Context()))
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		data := make([]linkResponse, 0, len(links))
		for i := range links {
			data = append(data, toLinkResponse(baseURL, &links[i]))
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse("", data))
	}
}

// handleUpdateSlug handles PUT requests to replace a link's short code.
// Links not owned by the caller are reported as not found.
func handleUpdateSlug(svc LinkService, validate *validator.Validate, baseURL string) http.HandlerFunc {
	const op = "api.http.handleUpdateSlug"
	const successMsg = "URL updated successfully"

	return func(w http.ResponseWriter, r *http.Request) {
		var req updateSlugRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		linkID := chi.URLParam(r, "id")

		link, err := svc.UpdateSlug(r.Context(), linkID, req.Slug, *identityFrom(r.Context()))
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidSlug):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.ErrorResponse("Invalid slug format"))
			case errors.Is(err, service.ErrSlugTaken):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.ErrorResponse("Slug is already taken"))
			case errors.Is(err, database.ErrLinkNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.NotFoundResponse)
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(baseURL, link)))
	}
}

// handleDeleteLink handles DELETE requests for one of the caller's links.
func handleDeleteLink(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleDeleteLink"
	const successMsg = "URL deleted successfully"

	return func(w http.ResponseWriter, r *http.Request) {
		linkID := chi.URLParam(r, "id")

		err := svc.Delete(r.Context(), linkID, *identityFrom(r.Context()))
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.NotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg))
	}
}

// handleAnalytics returns the aggregated visit history of a link. A link
// that doesn't exist or isn't visible to the caller gets the same answer.
func handleAnalytics(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleAnalytics"

	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")

		snapshot, err := svc.Analytics(r.Context(), slug, identityFrom(r.Context()), time.Now())
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.ErrorResponse("URL not found or access denied"))
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse("", snapshot))
	}
}

// handleRedirect resolves a short code and issues a permanent redirect.
// Visitor details are captured for analytics; failures to record them
// never affect the redirect itself.
func handleRedirect(svc LinkService) http.HandlerFunc {
	const op = "api.http.handleRedirect"

	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		originalURL, err := svc.Resolve(r.Context(), code, visitorInfo(r))
		if err != nil {
			if errors.Is(err, database.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.NotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		http.Redirect(w, r, originalURL, http.StatusMovedPermanently)
	}
}

// visitorInfo collects whatever request attributes are present; every field
// is optional on its own.
func visitorInfo(r *http.Request) models.VisitorInfo {
	var info models.VisitorInfo

	if ip := clientIP(r); ip != "" {
		info.IPAddress = &ip
	}
	if ua := r.UserAgent(); ua != "" {
		info.UserAgent = &ua
	}
	if referer := r.Referer(); referer != "" {
		info.Referer = &referer
	}

	return info
}
