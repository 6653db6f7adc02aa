package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apierrors "voucherd/internal/errors"
	"voucherd/internal/store"
	api "voucherd/pkg/contracts/api/v1"
	"voucherd/pkg/contracts/domain"
)

// TemplateService owns the per-device voucher template.
type TemplateService struct {
	store  store.Store
	logger *slog.Logger
}

// NewTemplateService creates a template service.
func NewTemplateService(st store.Store, logger *slog.Logger) *TemplateService {
	return &TemplateService{store: st, logger: logger}
}

// Get returns the device's template. Devices that never saved one get the
// built-in default at version 0, so the first save carries version 0 and the
// CAS below still applies.
func (s *TemplateService) Get(ctx context.Context, deviceID string) (domain.VoucherTemplate, error) {
	tpl, err := s.store.GetTemplate(ctx, deviceID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.DefaultTemplate(deviceID), nil
	}
	if err != nil {
		return domain.VoucherTemplate{}, fmt.Errorf("fetching template: %w", err)
	}
	return tpl, nil
}

// Save persists the template when req.Version matches the stored version.
// A stale version is rejected with the current version attached so the
// caller can re-read and retry deliberately.
func (s *TemplateService) Save(ctx context.Context, deviceID string, req api.TemplateSaveRequest) (domain.VoucherTemplate, error) {
	tpl := domain.VoucherTemplate{
		DeviceID:    deviceID,
		HeaderText:  req.HeaderText,
		FooterText:  req.FooterText,
		LogoRef:     req.LogoRef,
		AccentColor: req.AccentColor,
		Version:     req.Version,
	}

	saved, err := s.store.SaveTemplate(ctx, tpl)
	if errors.Is(err, store.ErrVersionConflict) {
		current, getErr := s.store.GetTemplate(ctx, deviceID)
		if getErr != nil {
			return domain.VoucherTemplate{}, apierrors.TemplateConflictError(-1, req.Version)
		}
		return domain.VoucherTemplate{}, apierrors.TemplateConflictError(current.Version, req.Version)
	}
	if err != nil {
		return domain.VoucherTemplate{}, fmt.Errorf("saving template: %w", err)
	}

	s.logger.InfoContext(ctx, "template saved",
		"device_id", deviceID,
		"version", saved.Version)
	return saved, nil
}
