package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"voucherd/pkg/contracts/domain"
)

// pdfTimeout bounds one headless-browser print run.
const pdfTimeout = 45 * time.Second

// A4 dimensions in inches for PrintToPDF.
const (
	a4WidthInches  = 8.27
	a4HeightInches = 11.69
)

// PDFRenderer converts the print-format HTML sheet into a PDF through a
// headless browser, so the PDF paginates exactly like the browser print
// dialog would.
type PDFRenderer struct {
	renderer *Renderer
	logger   *slog.Logger
}

// NewPDFRenderer creates a PDF renderer on top of the HTML renderer.
func NewPDFRenderer(renderer *Renderer, logger *slog.Logger) *PDFRenderer {
	return &PDFRenderer{renderer: renderer, logger: logger}
}

// RenderPDF renders the vouchers with the print layout and returns the PDF
// bytes.
func (p *PDFRenderer) RenderPDF(ctx context.Context, tpl domain.VoucherTemplate, vouchers []domain.Voucher) ([]byte, error) {
	var html bytes.Buffer
	if err := p.renderer.Render(&html, FormatPrint, tpl, vouchers); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, pdfTimeout)
	defer cancel()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
		)...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	start := time.Now()
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html.Bytes())

	var pdf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = cdppage.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(a4WidthInches).
				WithPaperHeight(a4HeightInches).
				WithMarginTop(0.4).
				WithMarginBottom(0.4).
				WithMarginLeft(0.4).
				WithMarginRight(0.4).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("printing voucher sheet to PDF: %w", err)
	}

	p.logger.InfoContext(ctx, "voucher sheet printed",
		"vouchers", len(vouchers),
		"pdf_bytes", len(pdf),
		"duration", time.Since(start).String())
	return pdf, nil
}
