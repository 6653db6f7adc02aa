// Package api contains API contract definitions for the hotspot voucher
// service. Version v1 represents the current stable API version.
package api

// Voucher API Requests

// BatchGenerateRequest represents a request to generate a batch of vouchers.
// Prefix is required when naming_policy is sequential and ignored for random.
type BatchGenerateRequest struct {
	Count         int    `json:"count" validate:"required,min=1,max=500"`
	NamingPolicy  string `json:"naming_policy" validate:"required,oneof=sequential random"`
	Prefix        string `json:"prefix,omitempty" validate:"omitempty,max=32,alphanum"`
	Profile       string `json:"profile" validate:"required,min=1,max=64"`
	CharsetLength int    `json:"charset_length,omitempty" validate:"omitempty,min=4,max=32"`
	TimeLimit     string `json:"time_limit,omitempty"`
	DataLimit     int64  `json:"data_limit,omitempty" validate:"omitempty,min=0"`
}

// Profile API Requests

// ProfileCreateRequest represents a request to create a bandwidth profile.
// RateLimit is a free-form "upload/download" pair; the enforcement device is
// authoritative for its format.
type ProfileCreateRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=64"`
	RateLimit   string `json:"rate_limit,omitempty" validate:"omitempty,max=64"`
	SharedUsers int    `json:"shared_users" validate:"omitempty,min=1"`
}

// Template API Requests

// TemplateSaveRequest represents a request to save the device's voucher
// template. Version must match the currently stored version.
type TemplateSaveRequest struct {
	HeaderText  string `json:"header_text" validate:"required,max=120"`
	FooterText  string `json:"footer_text" validate:"required,max=120"`
	LogoRef     string `json:"logo_ref,omitempty" validate:"omitempty,max=512"`
	AccentColor string `json:"accent_color" validate:"required,hexcolor"`
	Version     int64  `json:"version" validate:"min=0"`
}

// RenderRequest represents a request to render the current batch of vouchers
// with the device's template.
type RenderRequest struct {
	Format     string   `json:"format" validate:"required,oneof=preview print"`
	VoucherIDs []string `json:"voucher_ids,omitempty" validate:"omitempty,dive,uuid"`
}
