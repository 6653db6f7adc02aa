package render

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voucherd/pkg/contracts/domain"
)

func vouchers(n int) []domain.Voucher {
	out := make([]domain.Voucher, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, domain.Voucher{
			Code:    fmt.Sprintf("user%04d", i),
			Profile: "2h-basic",
		})
	}
	return out
}

func render(t *testing.T, format string, tpl domain.VoucherTemplate, vs []domain.Voucher) string {
	t.Helper()
	r, err := New()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, format, tpl, vs))
	return buf.String()
}

func TestRenderPreview_ContainsAllCodesAndBranding(t *testing.T) {
	tpl := domain.DefaultTemplate("dev-1")
	tpl.HeaderText = "Cafe Mura Wi-Fi"
	tpl.FooterText = "See you again"
	tpl.AccentColor = "#FF5733"

	out := render(t, FormatPreview, tpl, vouchers(10))

	for i := 1; i <= 10; i++ {
		assert.Contains(t, out, fmt.Sprintf("user%04d", i))
	}
	assert.Contains(t, out, "Cafe Mura Wi-Fi")
	assert.Contains(t, out, "See you again")
	assert.Contains(t, out, "#FF5733")
	assert.Contains(t, out, "repeat(4, 1fr)", "preview uses four columns")
}

func TestRenderPrint_FiveColumnsAndPagination(t *testing.T) {
	tpl := domain.DefaultTemplate("dev-1")

	// 5 columns x 10 rows = 50 cards per page; 120 vouchers need 3 pages.
	out := render(t, FormatPrint, tpl, vouchers(120))

	assert.Contains(t, out, "repeat(5, 1fr)", "print uses five columns")
	assert.Equal(t, 3, strings.Count(out, `class="page"`))
	assert.Equal(t, 120, strings.Count(out, `class="card"`))
	// Header repeats on every sheet plus the document title; the footer
	// repeats per sheet.
	assert.Equal(t, 4, strings.Count(out, tpl.HeaderText))
	assert.Equal(t, 3, strings.Count(out, tpl.FooterText))
}

func TestRenderPrint_PartialRowStaysWhole(t *testing.T) {
	// 52 vouchers: page one holds 50, page two holds one full row of two.
	out := render(t, FormatPrint, domain.DefaultTemplate("dev-1"), vouchers(52))

	pages := strings.Split(out, `class="page"`)[1:]
	require.Len(t, pages, 2)
	assert.Equal(t, 50, strings.Count(pages[0], `class="card"`))
	assert.Equal(t, 2, strings.Count(pages[1], `class="card"`))
}

func TestRender_SameTemplateBothFormats(t *testing.T) {
	tpl := domain.DefaultTemplate("dev-1")
	tpl.AccentColor = "#2563EB"
	vs := vouchers(4)

	preview := render(t, FormatPreview, tpl, vs)
	printed := render(t, FormatPrint, tpl, vs)

	// Same branding flows through both layouts.
	for _, out := range []string{preview, printed} {
		assert.Contains(t, out, "#2563EB")
		assert.Contains(t, out, tpl.HeaderText)
		assert.Contains(t, out, tpl.FooterText)
		assert.Contains(t, out, "user0001")
	}
}

func TestRender_Deterministic(t *testing.T) {
	tpl := domain.DefaultTemplate("dev-1")
	vs := vouchers(7)

	first := render(t, FormatPreview, tpl, vs)
	second := render(t, FormatPreview, tpl, vs)
	assert.Equal(t, first, second)
}

func TestRender_EmptyBatch(t *testing.T) {
	out := render(t, FormatPreview, domain.DefaultTemplate("dev-1"), nil)
	assert.Contains(t, out, "0 voucher(s)")
	assert.NotContains(t, out, `class="card"`)
}

func TestRender_UnknownFormat(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	var buf bytes.Buffer
	err = r.Render(&buf, "poster", domain.DefaultTemplate("dev-1"), nil)
	require.Error(t, err)
}

func TestRender_LimitsShownOnCard(t *testing.T) {
	vs := []domain.Voucher{{
		Code:       "user0001",
		Profile:    "2h-basic",
		TimeLimit:  2 * time.Hour,
		QuotaBytes: 1 << 30,
	}}

	out := render(t, FormatPreview, domain.DefaultTemplate("dev-1"), vs)
	assert.Contains(t, out, "2h0m0s")
	assert.Contains(t, out, "1 GB")
}
