// Package store persists vouchers, profiles, and templates. Two
// implementations exist: PostgresStore backed by pgx, and MemoryStore for
// tests and DSN-less deployments. Both enforce the same semantics, most
// importantly per-device code uniqueness and all-or-nothing batch commits.
package store

import (
	"context"
	"errors"

	"voucherd/pkg/contracts/domain"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateCode is returned when a voucher code already exists in the
	// device's namespace.
	ErrDuplicateCode = errors.New("voucher code already exists")

	// ErrDuplicateProfile is returned when a profile name already exists on
	// the device.
	ErrDuplicateProfile = errors.New("profile already exists")

	// ErrVersionConflict is returned when a template save carries a stale
	// version.
	ErrVersionConflict = errors.New("template version conflict")
)

// Store is the persistence boundary for the voucher lifecycle.
type Store interface {
	// CreateVoucherBatch commits all vouchers or none of them. A code
	// collision anywhere in the batch fails the whole batch with
	// ErrDuplicateCode and leaves the namespace untouched.
	CreateVoucherBatch(ctx context.Context, vouchers []domain.Voucher) error

	// CodeExists reports whether the code is taken in the device's namespace,
	// regardless of the owning voucher's status and including deleted
	// vouchers. Codes are never reissued.
	CodeExists(ctx context.Context, deviceID, code string) (bool, error)

	GetVoucher(ctx context.Context, deviceID, voucherID string) (domain.Voucher, error)
	GetVoucherByCode(ctx context.Context, deviceID, code string) (domain.Voucher, error)
	ListVouchers(ctx context.Context, deviceID string) ([]domain.Voucher, error)
	GetVouchersByIDs(ctx context.Context, deviceID string, voucherIDs []string) ([]domain.Voucher, error)

	// DeleteVoucher retires a voucher. The record leaves every listing and
	// lookup, but its code remains taken in the device's namespace.
	DeleteVoucher(ctx context.Context, deviceID, voucherID string) error

	// UpdateVoucherStatus applies a lifecycle transition. sessionID is stored
	// when transitioning to active and cleared otherwise.
	UpdateVoucherStatus(ctx context.Context, deviceID, voucherID string, status domain.VoucherStatus, sessionID string) error

	CreateProfile(ctx context.Context, profile domain.Profile) error
	GetProfile(ctx context.Context, deviceID, name string) (domain.Profile, error)
	ListProfiles(ctx context.Context, deviceID string) ([]domain.Profile, error)
	DeleteProfile(ctx context.Context, deviceID, name string) error

	// CountVouchersByProfile counts vouchers referencing the profile. Used to
	// guard profile deletion.
	CountVouchersByProfile(ctx context.Context, deviceID, name string) (int, error)

	// GetTemplate returns the device's saved template, or ErrNotFound when
	// the device has never saved one.
	GetTemplate(ctx context.Context, deviceID string) (domain.VoucherTemplate, error)

	// SaveTemplate persists the template if tpl.Version matches the stored
	// version (0 for a first save). Returns the stored record with the
	// incremented version, or ErrVersionConflict on a stale save.
	SaveTemplate(ctx context.Context, tpl domain.VoucherTemplate) (domain.VoucherTemplate, error)

	Close()
}
