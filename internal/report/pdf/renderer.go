// Package pdf renders report documents as PDF with go-pdf/fpdf.
package pdf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"

	"github.com/olcbioinformatics/sippr-launcher/internal/constants"
	"github.com/olcbioinformatics/sippr-launcher/internal/report"
)

// Page layout in millimetres.
const (
	marginLeft   = 18.0
	marginRight  = 18.0
	marginTop    = 20.0
	marginBottom = 22.0
	headerSep    = 10.0
	rowHeight    = 5.0
	tableFont    = 7.0
	logoWidth    = 38.0
)

// Renderer writes report.Document values as landscape A4 PDFs.
type Renderer struct {
	// Absent is printed for cells the report has no value for.
	Absent string
}

// NewRenderer creates a renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render writes doc to path, creating the parent directory.
func (r *Renderer) Render(doc *report.Document, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetTitle(doc.Title+" "+doc.RunName, true)
	pdf.SetCreator(constants.AppName, true)
	pdf.SetMargins(marginLeft, marginTop, marginRight)
	pdf.SetAutoPageBreak(false, marginBottom)

	issued := doc.Issued.Format(constants.ReportDateFormat)
	logo := doc.Logo
	if logo != "" {
		if _, err := os.Stat(logo); err != nil {
			logo = ""
		}
	}

	pdf.SetHeaderFunc(func() {
		pageW, _ := pdf.GetPageSize()
		top := 8.0
		if logo != "" {
			pdf.ImageOptions(logo, marginLeft, top, logoWidth, 0, false,
				fpdf.ImageOptions{ReadDpi: true}, 0, "")
		}
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetXY(marginLeft, top)
		pdf.CellFormat(pageW-marginLeft-marginRight, 6, tr("Date Report Issued: "+issued), "", 0, "R", false, 0, "")
		pdf.SetLineWidth(0.1)
		pdf.Line(marginLeft, marginTop-2, pageW-marginRight, marginTop-2)
		pdf.SetY(marginTop + headerSep/2)
	})

	pdf.SetFooterFunc(func() {
		pdf.SetY(-marginBottom + 6)
		pdf.SetFont("Helvetica", "B", 8)
		for _, line := range doc.Footer {
			pdf.CellFormat(0, 4, tr(line), "", 1, "C", false, 0, "")
		}
	})

	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 9, tr(doc.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, tr("Run: "+doc.RunName), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	for _, t := range doc.Tables {
		r.table(pdf, tr, t)
		r.caption(pdf, tr, doc.Caption)
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("failed to write PDF: %w", err)
	}
	return nil
}

func (r *Renderer) table(pdf *fpdf.Fpdf, tr func(string) string, t report.Table) {
	columns := t.Columns(constants.StrainColumn)
	records := t.Records(r.Absent)

	pageW, pageH := pdf.GetPageSize()
	avail := pageW - marginLeft - marginRight

	pdf.SetFont("Helvetica", "B", 12)
	if pdf.GetY()+8+2*rowHeight > pageH-marginBottom {
		pdf.AddPage()
	}
	pdf.CellFormat(0, 8, tr(t.Title), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "B", tableFont)
	widths := make([]float64, len(columns))
	for i, c := range columns {
		widths[i] = pdf.GetStringWidth(tr(c)) + 3
	}
	pdf.SetFont("Helvetica", "", tableFont)
	for _, rec := range records {
		for i, v := range rec {
			if i < len(widths) {
				if w := pdf.GetStringWidth(tr(v)) + 3; w > widths[i] {
					widths[i] = w
				}
			}
		}
	}
	total := 0.0
	for _, w := range widths {
		total += w
	}
	if total > avail {
		scale := avail / total
		for i := range widths {
			widths[i] *= scale
		}
	}

	header := func() {
		pdf.SetFont("Helvetica", "B", tableFont)
		pdf.SetFillColor(230, 230, 230)
		for i, c := range columns {
			pdf.CellFormat(widths[i], rowHeight, tr(c), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", tableFont)
	}

	header()
	for _, rec := range records {
		if pdf.GetY()+rowHeight > pageH-marginBottom {
			pdf.AddPage()
			header()
		}
		for i := range columns {
			v := ""
			if i < len(rec) {
				v = rec[i]
			}
			align := "C"
			if i == 0 {
				align = "L"
			}
			pdf.CellFormat(widths[i], rowHeight, tr(v), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func (r *Renderer) caption(pdf *fpdf.Fpdf, tr func(string) string, text string) {
	if text == "" {
		return
	}
	pdf.Ln(1)
	pdf.SetFont("Helvetica", "I", 7)
	pdf.CellFormat(0, 4, tr(text), "", 1, "L", false, 0, "")
	pdf.Ln(4)
}

var _ report.Renderer = (*Renderer)(nil)
