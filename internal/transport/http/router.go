package http

import (
	"github.com/go-chi/chi/v5"
)

// Handlers groups the API handlers mounted by the router.
type Handlers struct {
	Vouchers  *VoucherHandler
	Profiles  *ProfileHandler
	Sessions  *SessionHandler
	Templates *TemplateHandler
	Health    *HealthHandler
}

// MountAPI mounts the versioned API onto the router. Every resource is
// scoped to a device: codes, profiles, and templates all live in per-device
// namespaces.
func MountAPI(r chi.Router, h Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/health", h.Health.Routes())
		r.Route("/devices/{deviceID}", func(r chi.Router) {
			r.Mount("/vouchers", h.Vouchers.Routes())
			r.Mount("/profiles", h.Profiles.Routes())
			r.Mount("/sessions", h.Sessions.Routes())
			r.Mount("/template", h.Templates.Routes())
		})
	})
}
