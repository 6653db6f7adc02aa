package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voucherd/internal/device"
	apierrors "voucherd/internal/errors"
	"voucherd/internal/store"
	api "voucherd/pkg/contracts/api/v1"
	"voucherd/pkg/contracts/domain"
)

// ProfileService owns bandwidth profiles. Profiles live in the store and are
// mirrored to the enforcement device, which interprets the rate limit.
type ProfileService struct {
	store   store.Store
	devices device.Client
	logger  *slog.Logger
}

// NewProfileService creates a profile service.
func NewProfileService(st store.Store, devices device.Client, logger *slog.Logger) *ProfileService {
	return &ProfileService{store: st, devices: devices, logger: logger}
}

// Create registers a profile and mirrors it to the device. The device must
// exist in the inventory, and the device write happens before the store write
// so an unreachable device leaves no half-created profile behind.
func (s *ProfileService) Create(ctx context.Context, deviceID string, req api.ProfileCreateRequest) (domain.Profile, error) {
	if err := resolveDevice(ctx, s.devices, deviceID); err != nil {
		return domain.Profile{}, err
	}

	if _, err := s.store.GetProfile(ctx, deviceID, req.Name); err == nil {
		return domain.Profile{}, apierrors.DuplicateProfileError(req.Name)
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Profile{}, fmt.Errorf("checking profile %q: %w", req.Name, err)
	}

	sharedUsers := req.SharedUsers
	if sharedUsers < 1 {
		sharedUsers = 1
	}
	profile := domain.Profile{
		Name:        req.Name,
		DeviceID:    deviceID,
		RateLimit:   req.RateLimit,
		SharedUsers: sharedUsers,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.devices.CreateProfile(ctx, profile); err != nil {
		if errors.Is(err, device.ErrUnreachable) {
			return domain.Profile{}, apierrors.DeviceUnreachableError(err)
		}
		return domain.Profile{}, fmt.Errorf("mirroring profile to device: %w", err)
	}

	if err := s.store.CreateProfile(ctx, profile); err != nil {
		if errors.Is(err, store.ErrDuplicateProfile) {
			return domain.Profile{}, apierrors.DuplicateProfileError(req.Name)
		}
		return domain.Profile{}, fmt.Errorf("persisting profile: %w", err)
	}

	s.logger.InfoContext(ctx, "profile created",
		"device_id", deviceID,
		"profile", profile.Name,
		"rate_limit", profile.RateLimit,
		"shared_users", profile.SharedUsers)
	return profile, nil
}

// List returns all profiles registered on the device.
func (s *ProfileService) List(ctx context.Context, deviceID string) ([]domain.Profile, error) {
	profiles, err := s.store.ListProfiles(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	return profiles, nil
}

// Delete removes an unreferenced profile. Deleting a profile that any
// voucher references is rejected; the reference check and the delete are not
// atomic across devices, so the device-side delete runs first.
func (s *ProfileService) Delete(ctx context.Context, deviceID, name string) error {
	if _, err := s.store.GetProfile(ctx, deviceID, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apierrors.NotFoundError("profile")
		}
		return fmt.Errorf("fetching profile %q: %w", name, err)
	}

	count, err := s.store.CountVouchersByProfile(ctx, deviceID, name)
	if err != nil {
		return fmt.Errorf("counting vouchers for profile %q: %w", name, err)
	}
	if count > 0 {
		return apierrors.ProfileInUseError(name, int64(count))
	}

	if err := s.devices.DeleteProfile(ctx, deviceID, name); err != nil {
		switch {
		case errors.Is(err, device.ErrNotFound):
			// Device never had it; still remove our record.
		case errors.Is(err, device.ErrUnreachable):
			return apierrors.DeviceUnreachableError(err)
		default:
			return fmt.Errorf("deleting profile on device: %w", err)
		}
	}

	if err := s.store.DeleteProfile(ctx, deviceID, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apierrors.NotFoundError("profile")
		}
		return fmt.Errorf("deleting profile: %w", err)
	}

	s.logger.InfoContext(ctx, "profile deleted", "device_id", deviceID, "profile", name)
	return nil
}
