// Package render produces voucher sheets. Both output formats flow through
// the same template record, so what an operator previews is what the printer
// receives, differing only in layout density and pagination.
package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"voucherd/pkg/contracts/domain"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

const (
	// FormatPreview lays vouchers out in a 4-column continuous grid for
	// on-screen review.
	FormatPreview = "preview"
	// FormatPrint lays vouchers out in a 5-column paginated grid sized for
	// A4 sheets.
	FormatPrint = "print"

	previewColumns = 4
	printColumns   = 5
	// printRowsPerPage bounds a printed page. Rows are the pagination unit:
	// a voucher row is never split across pages.
	printRowsPerPage = 10
)

// card is one voucher cell in the rendered grid.
type card struct {
	Code      string
	Profile   string
	TimeLimit string
	DataLimit string
}

// page is a group of complete rows that fits one printed sheet. The preview
// format uses a single page.
type page struct {
	Rows [][]card
}

// sheet is the root template context.
type sheet struct {
	Template domain.VoucherTemplate
	Columns  int
	Pages    []page
	Total    int
}

// Renderer renders voucher sheets as HTML.
type Renderer struct {
	tmpl *template.Template
}

// New parses the embedded sheet templates.
func New() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.gohtml")
	if err != nil {
		return nil, fmt.Errorf("parsing sheet templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render writes the voucher sheet for the given format. Rendering is pure:
// the same template, format, and voucher slice always produce the same
// output.
func (r *Renderer) Render(w io.Writer, format string, tpl domain.VoucherTemplate, vouchers []domain.Voucher) error {
	var columns, rowsPerPage int
	var name string
	switch format {
	case FormatPreview:
		columns, rowsPerPage, name = previewColumns, 0, "preview.gohtml"
	case FormatPrint:
		columns, rowsPerPage, name = printColumns, printRowsPerPage, "print.gohtml"
	default:
		return fmt.Errorf("unknown render format %q", format)
	}

	data := sheet{
		Template: tpl,
		Columns:  columns,
		Pages:    paginate(vouchers, columns, rowsPerPage),
		Total:    len(vouchers),
	}
	if err := r.tmpl.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("rendering %s sheet: %w", format, err)
	}
	return nil
}

// paginate chunks vouchers into rows of `columns` cells and rows into pages
// of `rowsPerPage` rows. rowsPerPage <= 0 puts everything on one page.
func paginate(vouchers []domain.Voucher, columns, rowsPerPage int) []page {
	var rows [][]card
	for start := 0; start < len(vouchers); start += columns {
		end := start + columns
		if end > len(vouchers) {
			end = len(vouchers)
		}
		row := make([]card, 0, end-start)
		for _, v := range vouchers[start:end] {
			row = append(row, card{
				Code:      v.Code,
				Profile:   v.Profile,
				TimeLimit: formatDuration(v.TimeLimit),
				DataLimit: formatBytes(v.QuotaBytes),
			})
		}
		rows = append(rows, row)
	}

	if rowsPerPage <= 0 {
		if len(rows) == 0 {
			return []page{{}}
		}
		return []page{{Rows: rows}}
	}

	var pages []page
	for start := 0; start < len(rows); start += rowsPerPage {
		end := start + rowsPerPage
		if end > len(rows) {
			end = len(rows)
		}
		pages = append(pages, page{Rows: rows[start:end]})
	}
	if len(pages) == 0 {
		pages = []page{{}}
	}
	return pages
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

func formatBytes(n int64) string {
	if n == 0 {
		return ""
	}
	const (
		gb = 1 << 30
		mb = 1 << 20
	)
	switch {
	case n >= gb && n%gb == 0:
		return fmt.Sprintf("%d GB", n/gb)
	case n >= mb:
		return fmt.Sprintf("%d MB", n/mb)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
