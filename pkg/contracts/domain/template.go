package domain

import "time"

// VoucherTemplate is the per-device visual identity applied to every voucher
// render for that device. There is exactly one record per device, created on
// first save. Saves carry the version the caller last read; a stale version
// is rejected so concurrent saves cannot silently clobber each other.
type VoucherTemplate struct {
	DeviceID    string    `json:"device_id" db:"device_id" validate:"required,uuid"`
	HeaderText  string    `json:"header_text" db:"header_text" validate:"required,max=120"`
	FooterText  string    `json:"footer_text" db:"footer_text" validate:"required,max=120"`
	LogoRef     string    `json:"logo_ref,omitempty" db:"logo_ref" validate:"omitempty,max=512"`
	AccentColor string    `json:"accent_color" db:"accent_color" validate:"required,hexcolor"`
	Version     int64     `json:"version" db:"version"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultTemplate returns the template used before an operator saves one.
func DefaultTemplate(deviceID string) VoucherTemplate {
	return VoucherTemplate{
		DeviceID:    deviceID,
		HeaderText:  "Wi-Fi Voucher",
		FooterText:  "Thank you for visiting!",
		AccentColor: "#2563EB",
		Version:     0,
	}
}
