package receipt

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	labelWidth  = 50.0
	amountWidth = 45.0
	lineHeight  = 7.0
)

// WritePDF renders doc as an A4 PDF. createdAt is used as the document's
// creation date.
func WritePDF(w io.Writer, doc Document, createdAt time.Time) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(doc.Title, false)
	pdf.SetCreator("bloodbank", false)
	pdf.SetCreationDate(createdAt)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	descWidth := pageWidth - left - right - amountWidth

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 12, doc.Title, "", 1, "C", false, 0, "")
	pdf.Ln(2)

	for _, s := range doc.Sections {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.SetFillColor(235, 235, 235)
		pdf.CellFormat(0, lineHeight, s.Title, "", 1, "L", true, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		for _, f := range s.Fields {
			pdf.CellFormat(labelWidth, lineHeight, f.Label, "", 0, "L", false, 0, "")
			pdf.MultiCell(0, lineHeight, f.Value, "", "L", false)
		}
		pdf.Ln(2)
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, lineHeight, "Charges", "", 1, "L", true, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, l := range doc.Lines {
		pdf.CellFormat(descWidth, lineHeight, l.Label, "B", 0, "L", false, 0, "")
		pdf.CellFormat(amountWidth, lineHeight, Money(l.Amount), "B", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(descWidth, lineHeight, "Total", "", 0, "L", false, 0, "")
	pdf.CellFormat(amountWidth, lineHeight, Money(doc.Total), "", 1, "R", false, 0, "")

	if len(doc.Optional) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.CellFormat(0, lineHeight, "Optional charges (not included in total)", "", 1, "L", false, 0, "")
		for _, l := range doc.Optional {
			pdf.CellFormat(descWidth, lineHeight, l.Label, "", 0, "L", false, 0, "")
			pdf.CellFormat(amountWidth, lineHeight, Money(l.Amount), "", 1, "R", false, 0, "")
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write receipt pdf: %w", err)
	}
	return nil
}
