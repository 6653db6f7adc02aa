package domain

import "time"

// Profile is a named bandwidth/sharing policy applied to vouchers. Profiles
// are referenced by name, never embedded: a voucher's profile field is a
// non-owning reference, and deleting a referenced profile is rejected.
type Profile struct {
	Name        string    `json:"name" db:"name" validate:"required,min=1,max=64"`
	DeviceID    string    `json:"device_id" db:"device_id" validate:"required,uuid"`
	RateLimit   string    `json:"rate_limit,omitempty" db:"rate_limit"`
	SharedUsers int       `json:"shared_users" db:"shared_users" validate:"min=1"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
