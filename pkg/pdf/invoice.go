package pdf

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// InvoiceLine is one row on a rendered invoice.
type InvoiceLine struct {
	Description string
	Quantity    float64
	UnitCents   int64
	AmountCents int64
}

// InvoiceDocument is everything the renderer needs to lay out an invoice.
type InvoiceDocument struct {
	Number      string
	IssuerName  string
	ClientName  string
	ProjectName string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Currency    string
	Lines       []InvoiceLine
	TotalCents  int64
	IssuedAt    *time.Time
}

// InvoiceOptions configures invoice rendering.
type InvoiceOptions struct {
	FontFamily  string
	FontSize    float64
	HeaderColor Color
	Margins     Margins
}

// Color is an RGB color.
type Color struct {
	R, G, B int
}

// Margins are page margins in millimetres.
type Margins struct {
	Left, Right, Top, Bottom float64
}

// DefaultInvoiceOptions returns the standard invoice layout.
func DefaultInvoiceOptions() InvoiceOptions {
	return InvoiceOptions{
		FontFamily:  "Arial",
		FontSize:    10,
		HeaderColor: Color{R: 68, G: 114, B: 196},
		Margins:     Margins{Left: 15, Right: 15, Top: 20, Bottom: 20},
	}
}

// InvoiceRenderer renders invoices as A4 PDFs.
type InvoiceRenderer struct {
	options InvoiceOptions
}

func NewInvoiceRenderer(options InvoiceOptions) *InvoiceRenderer {
	return &InvoiceRenderer{options: options}
}

// Render writes the invoice PDF to w.
func (r *InvoiceRenderer) Render(doc InvoiceDocument, w io.Writer) error {
	opts := r.options
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(opts.Margins.Left, opts.Margins.Top, opts.Margins.Right)
	pdf.SetAutoPageBreak(true, opts.Margins.Bottom)

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(opts.FontFamily, "", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()

	pdf.SetFont(opts.FontFamily, "B", 18)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 10, fmt.Sprintf("Invoice %s", doc.Number), "", 1, "L", false, 0, "")

	pdf.SetFont(opts.FontFamily, "", opts.FontSize)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 6, doc.IssuerName, "", 1, "L", false, 0, "")
	if doc.IssuedAt != nil {
		pdf.CellFormat(0, 6, fmt.Sprintf("Issued: %s", doc.IssuedAt.Format("2006-01-02")), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetTextColor(0, 0, 0)
	r.keyValue(pdf, "Client", doc.ClientName)
	r.keyValue(pdf, "Project", doc.ProjectName)
	r.keyValue(pdf, "Period", fmt.Sprintf("%s to %s",
		doc.PeriodStart.Format("2006-01-02"), doc.PeriodEnd.Format("2006-01-02")))
	pdf.Ln(8)

	pageWidth, _ := pdf.GetPageSize()
	available := pageWidth - opts.Margins.Left - opts.Margins.Right
	widths := []float64{available * 0.52, available * 0.12, available * 0.18, available * 0.18}
	headers := []string{"Description", "Qty", "Unit", "Amount"}

	pdf.SetFont(opts.FontFamily, "B", opts.FontSize+1)
	pdf.SetFillColor(opts.HeaderColor.R, opts.HeaderColor.G, opts.HeaderColor.B)
	pdf.SetTextColor(255, 255, 255)
	for i, header := range headers {
		align := "L"
		if i > 0 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 8, header, "1", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(opts.FontFamily, "", opts.FontSize)
	pdf.SetTextColor(0, 0, 0)
	for i, line := range doc.Lines {
		if i%2 == 1 {
			pdf.SetFillColor(242, 242, 242)
		} else {
			pdf.SetFillColor(255, 255, 255)
		}
		description := line.Description
		maxChars := int(widths[0] / 2)
		if len(description) > maxChars {
			description = description[:maxChars-3] + "..."
		}
		pdf.CellFormat(widths[0], 7, description, "1", 0, "L", true, 0, "")
		pdf.CellFormat(widths[1], 7, formatQuantity(line.Quantity), "1", 0, "R", true, 0, "")
		pdf.CellFormat(widths[2], 7, formatCents(line.UnitCents, doc.Currency), "1", 0, "R", true, 0, "")
		pdf.CellFormat(widths[3], 7, formatCents(line.AmountCents, doc.Currency), "1", 0, "R", true, 0, "")
		pdf.Ln(-1)
	}

	pdf.SetFont(opts.FontFamily, "B", opts.FontSize+1)
	pdf.CellFormat(widths[0]+widths[1]+widths[2], 8, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(widths[3], 8, formatCents(doc.TotalCents, doc.Currency), "1", 1, "R", false, 0, "")

	return pdf.Output(w)
}

func (r *InvoiceRenderer) keyValue(pdf *gofpdf.Fpdf, key, value string) {
	pdf.SetFont(r.options.FontFamily, "B", r.options.FontSize)
	pdf.CellFormat(30, 6, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont(r.options.FontFamily, "", r.options.FontSize)
	pdf.CellFormat(0, 6, value, "", 1, "L", false, 0, "")
}

func formatQuantity(qty float64) string {
	if qty == float64(int64(qty)) {
		return fmt.Sprintf("%d", int64(qty))
	}
	return fmt.Sprintf("%.2f", qty)
}

func formatCents(cents int64, currency string) string {
	return fmt.Sprintf("%.2f %s", float64(cents)/100, currency)
}
