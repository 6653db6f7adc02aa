package domain

// Device is the inventory record for an enforcement device. It is owned by
// the inventory collaborator; this service only reads it to scope voucher,
// profile and session operations.
type Device struct {
	ID        string `json:"id" validate:"required,uuid"`
	Type      string `json:"type"`
	IPAddress string `json:"ip_address" validate:"required,ip"`
}
