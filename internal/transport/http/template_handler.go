package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "voucherd/internal/errors"
	"voucherd/internal/infrastructure"
	api "voucherd/pkg/contracts/api/v1"
	"voucherd/pkg/contracts/domain"
)

// TemplateHandler serves the voucher template and render endpoints.
type TemplateHandler struct {
	templates TemplateService
	vouchers  VoucherService
	renderer  SheetRenderer
	pdf       PDFRenderer
	metrics   *infrastructure.VoucherMetrics
	validate  *validator.Validate
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger
}

// NewTemplateHandler creates a template handler. pdf may be nil, which
// disables the PDF endpoint with a 501; metrics may be nil.
func NewTemplateHandler(
	templates TemplateService,
	vouchers VoucherService,
	renderer SheetRenderer,
	pdf PDFRenderer,
	metrics *infrastructure.VoucherMetrics,
	errHandler *apierrors.ErrorHandler,
	logger *slog.Logger,
) *TemplateHandler {
	return &TemplateHandler{
		templates: templates,
		vouchers:  vouchers,
		renderer:  renderer,
		pdf:       pdf,
		metrics:   metrics,
		validate:  validator.New(),
		errors:    errHandler,
		logger:    logger.With(slog.String("handler", "template")),
	}
}

// Routes returns the template routes, mounted under a device scope.
func (h *TemplateHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Get)
	r.Put("/", h.Save)
	r.Post("/render", h.Render)
	r.Post("/render/pdf", h.RenderPDF)
	return r
}

// Get handles GET /template
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	tpl, err := h.templates.Get(r.Context(), deviceID)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, tpl)
}

// Save handles PUT /template
func (h *TemplateHandler) Save(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	var req api.TemplateSaveRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errors.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.errors.HandleError(w, r, validationError(err))
		return
	}

	tpl, err := h.templates.Save(r.Context(), deviceID, req)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, tpl)
}

// Render handles POST /template/render, returning the voucher sheet as HTML.
func (h *TemplateHandler) Render(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	req, vouchers, tpl, ok := h.prepareRender(w, r, deviceID)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.renderer.Render(w, req.Format, tpl, vouchers); err != nil {
		// Headers are already written; log rather than double-respond.
		h.logger.ErrorContext(r.Context(), "sheet render failed",
			slog.String("device_id", deviceID),
			slog.String("format", req.Format),
			slog.String("error", err.Error()))
		return
	}
	h.metrics.RecordRender(r.Context(), req.Format)
}

// RenderPDF handles POST /template/render/pdf, returning the print sheet as
// a PDF document.
func (h *TemplateHandler) RenderPDF(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	if h.pdf == nil {
		h.errors.HandleError(w, r, apierrors.New(http.StatusNotImplemented, "PDF_DISABLED", "PDF rendering is not enabled"))
		return
	}

	_, vouchers, tpl, ok := h.prepareRender(w, r, deviceID)
	if !ok {
		return
	}

	pdf, err := h.pdf.RenderPDF(r.Context(), tpl, vouchers)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	h.metrics.RecordRender(r.Context(), "pdf")
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="vouchers.pdf"`)
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

// prepareRender decodes and validates the render request and loads the
// vouchers and template it needs. On failure it responds and returns
// ok=false.
func (h *TemplateHandler) prepareRender(w http.ResponseWriter, r *http.Request, deviceID string) (api.RenderRequest, []domain.Voucher, domain.VoucherTemplate, bool) {
	var req api.RenderRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errors.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return req, nil, domain.VoucherTemplate{}, false
	}
	if err := h.validate.Struct(&req); err != nil {
		h.errors.HandleError(w, r, validationError(err))
		return req, nil, domain.VoucherTemplate{}, false
	}

	var vouchers []domain.Voucher
	var err error
	if len(req.VoucherIDs) == 0 {
		vouchers, err = h.vouchers.List(r.Context(), deviceID)
	} else {
		vouchers, err = h.vouchers.ListByIDs(r.Context(), deviceID, req.VoucherIDs)
	}
	if err != nil {
		h.errors.HandleError(w, r, err)
		return req, nil, domain.VoucherTemplate{}, false
	}

	tpl, err := h.templates.Get(r.Context(), deviceID)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return req, nil, domain.VoucherTemplate{}, false
	}
	return req, vouchers, tpl, true
}
