package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "voucherd/internal/errors"
	api "voucherd/pkg/contracts/api/v1"
	"voucherd/pkg/contracts/domain"
)

// ProfileHandler serves the bandwidth profile endpoints.
type ProfileHandler struct {
	service  ProfileService
	validate *validator.Validate
	errors   *apierrors.ErrorHandler
	logger   *slog.Logger
}

// NewProfileHandler creates a profile handler.
func NewProfileHandler(service ProfileService, errHandler *apierrors.ErrorHandler, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{
		service:  service,
		validate: validator.New(),
		errors:   errHandler,
		logger:   logger.With(slog.String("handler", "profile")),
	}
}

// Routes returns the profile routes, mounted under a device scope.
func (h *ProfileHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Delete("/{name}", h.Delete)
	return r
}

// Create handles POST /profiles
func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	var req api.ProfileCreateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errors.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.errors.HandleError(w, r, validationError(err))
		return
	}

	profile, err := h.service.Create(r.Context(), deviceID, req)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, profile)
}

// List handles GET /profiles
func (h *ProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	profiles, err := h.service.List(r.Context(), deviceID)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if profiles == nil {
		profiles = []domain.Profile{}
	}
	render.JSON(w, r, map[string]any{"profiles": profiles, "count": len(profiles)})
}

// Delete handles DELETE /profiles/{name}
func (h *ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	name := chi.URLParam(r, "name")

	if err := h.service.Delete(r.Context(), deviceID, name); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.NoContent(w, r)
}
