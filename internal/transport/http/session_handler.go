package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "voucherd/internal/errors"
	"voucherd/pkg/contracts/domain"
)

// SessionHandler serves the live session endpoints.
type SessionHandler struct {
	service SessionService
	errors  *apierrors.ErrorHandler
	logger  *slog.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(service SessionService, errHandler *apierrors.ErrorHandler, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		errors:  errHandler,
		logger:  logger.With(slog.String("handler", "session")),
	}
}

// Routes returns the session routes, mounted under a device scope.
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListActive)
	r.Delete("/{sessionID}", h.Terminate)
	return r
}

// ListActive handles GET /sessions
func (h *SessionHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	sessions, err := h.service.ListActive(r.Context(), deviceID)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	render.JSON(w, r, map[string]any{"sessions": sessions, "count": len(sessions)})
}

// Terminate handles DELETE /sessions/{sessionID}
func (h *SessionHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.service.Terminate(r.Context(), deviceID, sessionID); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.NoContent(w, r)
}
