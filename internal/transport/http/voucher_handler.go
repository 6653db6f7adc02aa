package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "voucherd/internal/errors"
	api "voucherd/pkg/contracts/api/v1"
	"voucherd/pkg/contracts/domain"
)

// VoucherHandler serves the voucher batch and lifecycle endpoints.
type VoucherHandler struct {
	service  VoucherService
	validate *validator.Validate
	errors   *apierrors.ErrorHandler
	logger   *slog.Logger
}

// NewVoucherHandler creates a voucher handler.
func NewVoucherHandler(service VoucherService, errHandler *apierrors.ErrorHandler, logger *slog.Logger) *VoucherHandler {
	return &VoucherHandler{
		service:  service,
		validate: validator.New(),
		errors:   errHandler,
		logger:   logger.With(slog.String("handler", "voucher")),
	}
}

// Routes returns the voucher routes, mounted under a device scope.
func (h *VoucherHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.GenerateBatch)
	r.Get("/", h.List)
	r.Get("/export", h.Export)
	r.Get("/{voucherID}", h.Get)
	r.Delete("/{voucherID}", h.Delete)
	return r
}

// BatchResponse is the envelope for a committed batch.
type BatchResponse struct {
	Batch domain.VoucherBatch `json:"batch"`
	Count int                 `json:"count"`
}

// GenerateBatch handles POST /vouchers
func (h *VoucherHandler) GenerateBatch(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	var req api.BatchGenerateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errors.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.errors.HandleError(w, r, validationError(err))
		return
	}

	batch, err := h.service.GenerateBatch(r.Context(), deviceID, req)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, BatchResponse{Batch: batch, Count: len(batch.Vouchers)})
}

// List handles GET /vouchers
func (h *VoucherHandler) List(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	vouchers, err := h.service.List(r.Context(), deviceID)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if vouchers == nil {
		vouchers = []domain.Voucher{}
	}
	render.JSON(w, r, map[string]any{"vouchers": vouchers, "count": len(vouchers)})
}

// Get handles GET /vouchers/{voucherID}
func (h *VoucherHandler) Get(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	voucherID := chi.URLParam(r, "voucherID")

	voucher, err := h.service.Get(r.Context(), deviceID, voucherID)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, voucher)
}

// Delete handles DELETE /vouchers/{voucherID}
func (h *VoucherHandler) Delete(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	voucherID := chi.URLParam(r, "voucherID")

	if err := h.service.Delete(r.Context(), deviceID, voucherID); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

// Export handles GET /vouchers/export, streaming an XLSX workbook. Optional
// comma-separated ids narrow the export.
func (h *VoucherHandler) Export(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	var ids []string
	if raw := r.URL.Query().Get("ids"); raw != "" {
		ids = splitIDs(raw)
	}

	data, err := h.service.ExportXLSX(r.Context(), deviceID, ids)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="vouchers.xlsx"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
