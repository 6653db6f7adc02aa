package domain

import (
	"time"
)

// Voucher represents a single hotspot access credential. The code is unique
// within a device's namespace for all time: codes are never reused, even
// after the voucher expires or is deleted.
type Voucher struct {
	ID         string        `json:"id" db:"id" validate:"required,uuid"`
	DeviceID   string        `json:"device_id" db:"device_id" validate:"required,uuid"`
	Code       string        `json:"code" db:"code" validate:"required,min=1,max=64"`
	Profile    string        `json:"profile" db:"profile" validate:"required"`
	TimeLimit  time.Duration `json:"time_limit,omitempty" db:"time_limit"`
	QuotaBytes int64         `json:"quota_bytes,omitempty" db:"quota_bytes"`
	Status     VoucherStatus `json:"status" db:"status"`
	SessionID  string        `json:"session_id,omitempty" db:"session_id"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

// VoucherStatus represents the lifecycle state of a voucher. All transitions
// are one-directional: unused -> active -> expired|revoked. The unused ->
// active transition is owned by the enforcement device and only observed here.
type VoucherStatus string

const (
	VoucherStatusUnused  VoucherStatus = "unused"
	VoucherStatusActive  VoucherStatus = "active"
	VoucherStatusExpired VoucherStatus = "expired"
	VoucherStatusRevoked VoucherStatus = "revoked"
)

// NamingPolicy selects how batch codes are minted.
type NamingPolicy string

const (
	// NamingSequential produces prefix + zero-padded index codes.
	NamingSequential NamingPolicy = "sequential"
	// NamingRandom draws codes from a fixed alphanumeric charset.
	NamingRandom NamingPolicy = "random"
)

// VoucherBatch is the result of one atomic generation request. Vouchers are
// ordered in generation order.
type VoucherBatch struct {
	DeviceID  string    `json:"device_id"`
	Profile   string    `json:"profile"`
	Vouchers  []Voucher `json:"vouchers"`
	CreatedAt time.Time `json:"created_at"`
}
