// Package pdf renders invoices as printable documents.
package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"ledgerly/einvoice/internal/invoicing"
)

// Document is everything printed on an invoice. Lines must carry computed amounts.
type Document struct {
	Issuer         string
	InvoiceNumber  string
	CustomerName   string
	InvoiceDate    string
	DueDate        string
	PaymentTerms   string
	Reference      string
	Notes          string
	PaymentDetails string
	Lines          []invoicing.LineItem
	Totals         invoicing.InvoiceTotals
}

// NewDocument combines a stored invoice with its recomputed form state.
func NewDocument(issuer string, rec invoicing.InvoiceRecord, form invoicing.InvoiceFormValues, totals invoicing.InvoiceTotals) Document {
	doc := Document{
		Issuer:         issuer,
		InvoiceNumber:  rec.ID,
		InvoiceDate:    form.InvoiceDate,
		DueDate:        form.DueDate,
		PaymentTerms:   form.PaymentTerms,
		Reference:      form.ReferenceCode,
		Notes:          form.Notes,
		PaymentDetails: form.PaymentDetails,
		Lines:          form.LineItems,
		Totals:         totals,
	}
	if rec.InvoiceNumber != nil && *rec.InvoiceNumber != "" {
		doc.InvoiceNumber = *rec.InvoiceNumber
	}
	if rec.Customer != nil {
		doc.CustomerName = rec.Customer.Name
		if doc.CustomerName == "" {
			doc.CustomerName = rec.Customer.ID
		}
	}
	return doc
}

// A4 portrait with 15mm margins leaves 180mm for the table.
var columns = []struct {
	title string
	width float64
	align string
}{
	{"Description", 70, "L"},
	{"Qty", 18, "R"},
	{"Unit price", 26, "R"},
	{"Discount", 22, "R"},
	{"Tax", 20, "R"},
	{"Amount", 24, "R"},
}

const (
	margin     = 15.0
	rowHeight  = 7.0
	labelWidth = 30.0
)

// RenderInvoice lays the document out on A4 pages and returns the PDF bytes.
func RenderInvoice(doc Document) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin+5)
	pdf.SetTitle("Invoice "+doc.InvoiceNumber, true)
	pdf.SetCreator(doc.Issuer, true)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-margin)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr(doc.Issuer), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, tr("Invoice "+doc.InvoiceNumber), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 10)
	for _, field := range [][2]string{
		{"Bill to", doc.CustomerName},
		{"Invoice date", doc.InvoiceDate},
		{"Due date", doc.DueDate},
		{"Terms", doc.PaymentTerms},
		{"Reference", doc.Reference},
	} {
		if strings.TrimSpace(field[1]) == "" {
			continue
		}
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(labelWidth, 6, field[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 6, tr(field[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	header := func() {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for _, col := range columns {
			pdf.CellFormat(col.width, rowHeight, col.title, "1", 0, col.align, true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 10)
	}
	header()

	_, pageHeight := pdf.GetPageSize()
	for _, line := range doc.Lines {
		if pdf.GetY()+rowHeight > pageHeight-margin-5 {
			pdf.AddPage()
			header()
		}
		for i, cell := range lineCells(line) {
			text := tr(cell)
			if i == 0 {
				text = truncate(pdf, text, columns[0].width-2)
			}
			pdf.CellFormat(columns[i].width, rowHeight, text, "1", 0, columns[i].align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(3)

	tableWidth := 0.0
	for _, col := range columns {
		tableWidth += col.width
	}
	valueWidth := columns[len(columns)-1].width + 6
	for _, row := range [][2]string{
		{"Subtotal", doc.Totals.Subtotal},
		{"Discount", doc.Totals.Discount},
		{"Total excl. tax", doc.Totals.TotalExclTax},
		{"Tax", doc.Totals.Tax},
		{"Total", doc.Totals.Total},
	} {
		style := ""
		if row[0] == "Total" {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 10)
		pdf.CellFormat(tableWidth-valueWidth, 6, row[0], "", 0, "R", false, 0, "")
		pdf.CellFormat(valueWidth, 6, row[1], "", 1, "R", false, 0, "")
	}

	for _, block := range [][2]string{{"Notes", doc.Notes}, {"Payment details", doc.PaymentDetails}} {
		if strings.TrimSpace(block[1]) == "" {
			continue
		}
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, 6, block[0], "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, tr(block[1]), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render invoice %s: %w", doc.InvoiceNumber, err)
	}
	return buf.Bytes(), nil
}

// lineCells formats one row in column order.
func lineCells(line invoicing.LineItem) []string {
	description := line.Description
	if description == "" {
		description = line.ProductID
	}
	tax := line.ComputedTax
	if tax == "" {
		tax = "0.00"
	}
	amount := line.ComputedAmount
	if amount == "" {
		amount = "0.00"
	}
	return []string{
		description,
		line.Quantity,
		invoicing.FormatPrice(line.UnitPrice),
		line.Discount,
		tax,
		amount,
	}
}

func truncate(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width {
		s = s[:len(s)-1]
	}
	return s + "..."
}
