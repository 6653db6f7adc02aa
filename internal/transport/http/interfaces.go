// Package http contains the HTTP handlers for the voucher service API.
package http

import (
	"context"
	"io"

	api "voucherd/pkg/contracts/api/v1"
	"voucherd/pkg/contracts/domain"
)

// VoucherService is the voucher surface the handlers depend on.
type VoucherService interface {
	GenerateBatch(ctx context.Context, deviceID string, req api.BatchGenerateRequest) (domain.VoucherBatch, error)
	List(ctx context.Context, deviceID string) ([]domain.Voucher, error)
	ListByIDs(ctx context.Context, deviceID string, voucherIDs []string) ([]domain.Voucher, error)
	Get(ctx context.Context, deviceID, voucherID string) (domain.Voucher, error)
	Delete(ctx context.Context, deviceID, voucherID string) error
	ExportXLSX(ctx context.Context, deviceID string, voucherIDs []string) ([]byte, error)
}

// ProfileService is the profile surface the handlers depend on.
type ProfileService interface {
	Create(ctx context.Context, deviceID string, req api.ProfileCreateRequest) (domain.Profile, error)
	List(ctx context.Context, deviceID string) ([]domain.Profile, error)
	Delete(ctx context.Context, deviceID, name string) error
}

// SessionService is the session surface the handlers depend on.
type SessionService interface {
	ListActive(ctx context.Context, deviceID string) ([]domain.Session, error)
	Terminate(ctx context.Context, deviceID, sessionID string) error
}

// TemplateService is the template surface the handlers depend on.
type TemplateService interface {
	Get(ctx context.Context, deviceID string) (domain.VoucherTemplate, error)
	Save(ctx context.Context, deviceID string, req api.TemplateSaveRequest) (domain.VoucherTemplate, error)
}

// SheetRenderer renders voucher sheets as HTML.
type SheetRenderer interface {
	Render(w io.Writer, format string, tpl domain.VoucherTemplate, vouchers []domain.Voucher) error
}

// PDFRenderer renders the print sheet as a PDF.
type PDFRenderer interface {
	RenderPDF(ctx context.Context, tpl domain.VoucherTemplate, vouchers []domain.Voucher) ([]byte, error)
}
