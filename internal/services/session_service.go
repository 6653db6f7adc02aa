package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"voucherd/internal/device"
	apierrors "voucherd/internal/errors"
	"voucherd/internal/infrastructure"
	"voucherd/internal/store"
	"voucherd/pkg/contracts/domain"
)

// SessionController manages live sessions. The enforcement device owns
// session state; this controller fetches it on demand and reconciles what it
// learns back into voucher statuses.
type SessionController struct {
	store       store.Store
	devices     device.Client
	broadcaster EventBroadcaster
	metrics     *infrastructure.VoucherMetrics
	logger      *slog.Logger

	// polls coalesces concurrent ListActive calls per device so operator
	// dashboards refreshing together issue one device round-trip.
	polls singleflight.Group
}

// NewSessionController creates a session controller. broadcaster and metrics
// may be nil.
func NewSessionController(
	st store.Store,
	devices device.Client,
	broadcaster EventBroadcaster,
	metrics *infrastructure.VoucherMetrics,
	logger *slog.Logger,
) *SessionController {
	return &SessionController{
		store:       st,
		devices:     devices,
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger,
	}
}

// ListActive fetches the device's live sessions and reconciles voucher
// statuses against them. A session whose voucher is still recorded as unused
// marks that voucher active; an active voucher with no live session left has
// been disconnected by the device and expires. Both transitions are
// observed, never initiated, from here.
func (c *SessionController) ListActive(ctx context.Context, deviceID string) ([]domain.Session, error) {
	v, err, _ := c.polls.Do(deviceID, func() (any, error) {
		return c.fetchAndReconcile(ctx, deviceID)
	})
	if err != nil {
		if errors.Is(err, device.ErrUnreachable) {
			return nil, apierrors.DeviceUnreachableError(err)
		}
		return nil, err
	}
	return v.([]domain.Session), nil
}

func (c *SessionController) fetchAndReconcile(ctx context.Context, deviceID string) ([]domain.Session, error) {
	sessions, err := c.devices.ListSessions(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	changed := 0
	live := make(map[string]bool, len(sessions))
	for _, sess := range sessions {
		live[sess.VoucherCode] = true

		voucher, err := c.store.GetVoucherByCode(ctx, deviceID, sess.VoucherCode)
		if errors.Is(err, store.ErrNotFound) {
			// A login this service never issued; nothing to reconcile.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("looking up voucher for session %q: %w", sess.ID, err)
		}
		if voucher.Status != domain.VoucherStatusUnused {
			continue
		}
		if err := c.store.UpdateVoucherStatus(ctx, deviceID, voucher.ID, domain.VoucherStatusActive, sess.ID); err != nil {
			return nil, fmt.Errorf("marking voucher %q active: %w", voucher.Code, err)
		}
		changed++
		c.logger.InfoContext(ctx, "voucher activation observed",
			"device_id", deviceID,
			"code", voucher.Code,
			"session_id", sess.ID)
	}

	vouchers, err := c.store.ListVouchers(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing vouchers: %w", err)
	}
	for _, voucher := range vouchers {
		if voucher.Status != domain.VoucherStatusActive || live[voucher.Code] {
			continue
		}
		if err := c.store.UpdateVoucherStatus(ctx, deviceID, voucher.ID, domain.VoucherStatusExpired, ""); err != nil {
			return nil, fmt.Errorf("expiring voucher %q: %w", voucher.Code, err)
		}
		changed++
		c.logger.InfoContext(ctx, "voucher expiry observed",
			"device_id", deviceID,
			"code", voucher.Code)
	}

	if changed > 0 {
		broadcast(c.broadcaster, EventSessionsRefreshed, map[string]any{
			"device_id": deviceID,
			"changed":   changed,
		})
	}

	return sessions, nil
}

// Terminate force-disconnects one session and revokes its voucher. Device
// errors surface verbatim: a failed termination must never look like a
// disconnected client.
func (c *SessionController) Terminate(ctx context.Context, deviceID, sessionID string) error {
	sessions, err := c.devices.ListSessions(ctx, deviceID)
	if err != nil {
		if errors.Is(err, device.ErrUnreachable) {
			return apierrors.DeviceUnreachableError(err)
		}
		return fmt.Errorf("listing sessions: %w", err)
	}

	var target *domain.Session
	for i := range sessions {
		if sessions[i].ID == sessionID {
			target = &sessions[i]
			break
		}
	}
	if target == nil {
		return apierrors.NotFoundError("session")
	}

	if err := c.devices.TerminateSession(ctx, deviceID, sessionID); err != nil {
		switch {
		case errors.Is(err, device.ErrNotFound):
			// Disconnected between the list and the kick. The revoke below
			// still applies.
		case errors.Is(err, device.ErrUnreachable):
			return apierrors.DeviceUnreachableError(err)
		default:
			return fmt.Errorf("terminating session %q: %w", sessionID, err)
		}
	}

	voucher, err := c.store.GetVoucherByCode(ctx, deviceID, target.VoucherCode)
	if err == nil {
		if err := c.store.UpdateVoucherStatus(ctx, deviceID, voucher.ID, domain.VoucherStatusRevoked, ""); err != nil {
			return fmt.Errorf("revoking voucher %q: %w", voucher.Code, err)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("looking up voucher for session %q: %w", sessionID, err)
	}

	c.metrics.RecordTermination(ctx, deviceID)
	c.logger.InfoContext(ctx, "session terminated",
		"device_id", deviceID,
		"session_id", sessionID,
		"code", target.VoucherCode)

	broadcast(c.broadcaster, EventSessionTerminated, map[string]any{
		"device_id":  deviceID,
		"session_id": sessionID,
		"code":       target.VoucherCode,
	})
	return nil
}
