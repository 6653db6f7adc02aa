package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"voucherd/internal/codegen"
	"voucherd/internal/device"
	apierrors "voucherd/internal/errors"
	"voucherd/internal/infrastructure"
	"voucherd/internal/store"
	api "voucherd/pkg/contracts/api/v1"
	"voucherd/pkg/contracts/domain"
)

// commitRetries bounds how often a batch is re-minted after losing a
// commit-time uniqueness race to a concurrent batch.
const commitRetries = 3

// VoucherService owns voucher batches and single-voucher lifecycle
// operations.
type VoucherService struct {
	store       store.Store
	generator   *codegen.Generator
	devices     device.Client
	broadcaster EventBroadcaster
	metrics     *infrastructure.VoucherMetrics
	logger      *slog.Logger

	maxBatchSize  int
	sequentialPad int
}

// NewVoucherService creates a voucher service. broadcaster and metrics may be
// nil.
func NewVoucherService(
	st store.Store,
	gen *codegen.Generator,
	devices device.Client,
	broadcaster EventBroadcaster,
	metrics *infrastructure.VoucherMetrics,
	logger *slog.Logger,
	maxBatchSize, sequentialPad int,
) *VoucherService {
	if maxBatchSize < 1 {
		maxBatchSize = 500
	}
	return &VoucherService{
		store:         st,
		generator:     gen,
		devices:       devices,
		broadcaster:   broadcaster,
		metrics:       metrics,
		logger:        logger,
		maxBatchSize:  maxBatchSize,
		sequentialPad: sequentialPad,
	}
}

// GenerateBatch mints, persists, and returns a batch of vouchers. The batch
// is atomic: a failure at any point leaves zero new vouchers behind. Losing a
// commit-time uniqueness race re-mints the whole batch.
func (s *VoucherService) GenerateBatch(ctx context.Context, deviceID string, req api.BatchGenerateRequest) (domain.VoucherBatch, error) {
	if err := resolveDevice(ctx, s.devices, deviceID); err != nil {
		s.metrics.RecordBatchFailure(ctx, deviceID, "device_unavailable")
		return domain.VoucherBatch{}, err
	}

	if req.Count > s.maxBatchSize {
		s.metrics.RecordBatchFailure(ctx, deviceID, "count_exceeded")
		return domain.VoucherBatch{}, apierrors.ErrValidation("count",
			fmt.Sprintf("count must not exceed %d", s.maxBatchSize))
	}

	policy := domain.NamingPolicy(req.NamingPolicy)
	prefix := req.Prefix
	if policy == domain.NamingSequential && prefix == "" {
		s.metrics.RecordBatchFailure(ctx, deviceID, "missing_prefix")
		return domain.VoucherBatch{}, apierrors.ErrValidation("prefix",
			"prefix is required for the sequential naming policy")
	}

	var timeLimit time.Duration
	if req.TimeLimit != "" {
		var err error
		timeLimit, err = time.ParseDuration(req.TimeLimit)
		if err != nil || timeLimit < 0 {
			s.metrics.RecordBatchFailure(ctx, deviceID, "invalid_time_limit")
			return domain.VoucherBatch{}, apierrors.ErrValidation("time_limit",
				fmt.Sprintf("%q is not a valid duration", req.TimeLimit))
		}
	}

	if _, err := s.store.GetProfile(ctx, deviceID, req.Profile); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.metrics.RecordBatchFailure(ctx, deviceID, "invalid_profile")
			return domain.VoucherBatch{}, apierrors.InvalidProfileError(req.Profile)
		}
		return domain.VoucherBatch{}, fmt.Errorf("looking up profile %q: %w", req.Profile, err)
	}

	genReq := codegen.Request{
		Count:         req.Count,
		Policy:        policy,
		Prefix:        prefix,
		SequentialPad: s.sequentialPad,
		CharsetLength: req.CharsetLength,
		Exists: func(ctx context.Context, code string) (bool, error) {
			return s.store.CodeExists(ctx, deviceID, code)
		},
	}

	var batch domain.VoucherBatch
	for attempt := 0; ; attempt++ {
		codes, err := s.generator.GenerateBatch(ctx, genReq)
		if err != nil {
			var exhausted *codegen.ExhaustedError
			if errors.As(err, &exhausted) {
				s.metrics.RecordBatchFailure(ctx, deviceID, "exhausted")
				return domain.VoucherBatch{}, apierrors.GenerationExhaustedError(exhausted.Attempted, exhausted.Succeeded)
			}
			return domain.VoucherBatch{}, fmt.Errorf("minting codes: %w", err)
		}

		now := time.Now().UTC()
		vouchers := make([]domain.Voucher, 0, len(codes))
		for _, code := range codes {
			vouchers = append(vouchers, domain.Voucher{
				ID:         uuid.New().String(),
				DeviceID:   deviceID,
				Code:       code,
				Profile:    req.Profile,
				TimeLimit:  timeLimit,
				QuotaBytes: req.DataLimit,
				Status:     domain.VoucherStatusUnused,
				CreatedAt:  now,
			})
		}

		err = s.store.CreateVoucherBatch(ctx, vouchers)
		if err == nil {
			batch = domain.VoucherBatch{
				DeviceID:  deviceID,
				Profile:   req.Profile,
				Vouchers:  vouchers,
				CreatedAt: now,
			}
			break
		}
		if errors.Is(err, store.ErrDuplicateCode) && attempt < commitRetries {
			s.logger.WarnContext(ctx, "batch lost uniqueness race, regenerating",
				"device_id", deviceID,
				"attempt", attempt+1)
			continue
		}
		if errors.Is(err, store.ErrDuplicateCode) {
			s.metrics.RecordBatchFailure(ctx, deviceID, "commit_conflict")
			return domain.VoucherBatch{}, apierrors.GenerationExhaustedError(commitRetries*req.Count, 0)
		}
		return domain.VoucherBatch{}, fmt.Errorf("committing batch: %w", err)
	}

	s.metrics.RecordBatch(ctx, deviceID, len(batch.Vouchers))
	s.logger.InfoContext(ctx, "voucher batch committed",
		"device_id", deviceID,
		"profile", req.Profile,
		"count", len(batch.Vouchers),
		"policy", req.NamingPolicy)

	broadcast(s.broadcaster, EventBatchCreated, map[string]any{
		"device_id": deviceID,
		"profile":   req.Profile,
		"count":     len(batch.Vouchers),
	})
	return batch, nil
}

// List returns all vouchers on the device in creation order.
func (s *VoucherService) List(ctx context.Context, deviceID string) ([]domain.Voucher, error) {
	vouchers, err := s.store.ListVouchers(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing vouchers: %w", err)
	}
	return vouchers, nil
}

// ListByIDs returns the selected vouchers in creation order. Unknown IDs are
// skipped.
func (s *VoucherService) ListByIDs(ctx context.Context, deviceID string, voucherIDs []string) ([]domain.Voucher, error) {
	vouchers, err := s.store.GetVouchersByIDs(ctx, deviceID, voucherIDs)
	if err != nil {
		return nil, fmt.Errorf("fetching vouchers: %w", err)
	}
	return vouchers, nil
}

// Get returns one voucher by ID.
func (s *VoucherService) Get(ctx context.Context, deviceID, voucherID string) (domain.Voucher, error) {
	v, err := s.store.GetVoucher(ctx, deviceID, voucherID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Voucher{}, apierrors.NotFoundError("voucher")
	}
	if err != nil {
		return domain.Voucher{}, fmt.Errorf("fetching voucher: %w", err)
	}
	return v, nil
}

// Delete removes a voucher. When the voucher is active its session is
// terminated on the device first; an unreachable device aborts the delete so
// no connected client survives its credential's removal.
func (s *VoucherService) Delete(ctx context.Context, deviceID, voucherID string) error {
	v, err := s.store.GetVoucher(ctx, deviceID, voucherID)
	if errors.Is(err, store.ErrNotFound) {
		return apierrors.NotFoundError("voucher")
	}
	if err != nil {
		return fmt.Errorf("fetching voucher: %w", err)
	}

	if v.Status == domain.VoucherStatusActive && v.SessionID != "" {
		err := s.devices.TerminateSession(ctx, deviceID, v.SessionID)
		switch {
		case errors.Is(err, device.ErrNotFound):
			// Session already gone; proceed with the delete.
		case errors.Is(err, device.ErrUnreachable):
			return apierrors.DeviceUnreachableError(err)
		case err != nil:
			return fmt.Errorf("terminating session for voucher %q: %w", v.Code, err)
		default:
			s.metrics.RecordTermination(ctx, deviceID)
		}
	}

	if err := s.store.DeleteVoucher(ctx, deviceID, voucherID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apierrors.NotFoundError("voucher")
		}
		return fmt.Errorf("deleting voucher: %w", err)
	}

	s.logger.InfoContext(ctx, "voucher deleted",
		"device_id", deviceID,
		"voucher_id", voucherID,
		"code", v.Code,
		"was_active", v.Status == domain.VoucherStatusActive)
	return nil
}

// ExportXLSX writes the selected vouchers (or all of them when voucherIDs is
// empty) into a spreadsheet for offline distribution.
func (s *VoucherService) ExportXLSX(ctx context.Context, deviceID string, voucherIDs []string) ([]byte, error) {
	var vouchers []domain.Voucher
	var err error
	if len(voucherIDs) == 0 {
		vouchers, err = s.store.ListVouchers(ctx, deviceID)
	} else {
		vouchers, err = s.store.GetVouchersByIDs(ctx, deviceID, voucherIDs)
	}
	if err != nil {
		return nil, fmt.Errorf("loading vouchers for export: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Vouchers"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Code", "Profile", "Status", "Time Limit", "Data Limit (bytes)", "Created At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for row, v := range vouchers {
		values := []any{
			v.Code,
			v.Profile,
			string(v.Status),
			formatLimit(v.TimeLimit),
			v.QuotaBytes,
			v.CreatedAt.Format(time.RFC3339),
		}
		for col, val := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, val)
		}
	}

	f.SetColWidth(sheet, "A", "F", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing spreadsheet: %w", err)
	}
	return buf.Bytes(), nil
}

func formatLimit(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

// resolveDevice confirms the device exists in the inventory before a
// namespaced operation runs against it.
func resolveDevice(ctx context.Context, devices device.Client, deviceID string) error {
	_, err := devices.GetDevice(ctx, deviceID)
	switch {
	case errors.Is(err, device.ErrNotFound):
		return apierrors.NotFoundError("device")
	case errors.Is(err, device.ErrUnreachable):
		return apierrors.DeviceUnreachableError(err)
	case err != nil:
		return fmt.Errorf("resolving device %s: %w", deviceID, err)
	}
	return nil
}
