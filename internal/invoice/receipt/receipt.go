// Package receipt renders invoice PDFs.
package receipt

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/storefront/internal/models"
)

const ContentType = "application/pdf"

type Line struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

type Receipt struct {
	InvoiceID uuid.UUID
	Customer  string
	Date      time.Time
	Lines     []Line
	Total     decimal.Decimal
}

// Key is where the PDF of an invoice lives in blob storage.
func Key(invoiceID uuid.UUID) string {
	return fmt.Sprintf("invoices/invoice_%s.pdf", invoiceID)
}

func FileName(invoiceID uuid.UUID) string {
	return fmt.Sprintf("invoice_%s.pdf", invoiceID)
}

func FromInvoice(inv *models.Invoice, customer string, date time.Time) Receipt {
	r := Receipt{
		InvoiceID: inv.ID,
		Customer:  customer,
		Date:      date,
		Total:     inv.TotalAmount,
	}
	for _, l := range inv.Lines {
		r.Lines = append(r.Lines, Line{
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal,
		})
	}
	return r
}

// FormatLine is the text written for each product: "name - qty x $price = $subtotal".
func FormatLine(l Line) string {
	return fmt.Sprintf("%s - %d x $%s = $%s", l.Name, l.Quantity, l.UnitPrice.StringFixed(2), l.Subtotal.StringFixed(2))
}

func Render(r Receipt) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(FileName(r.InvoiceID), true)
	pdf.SetCreationDate(r.Date)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, "Purchase Invoice", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 7, tr("Customer: "+r.Customer), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, "Date: "+r.Date.Format("2006-01-02 15:04:05 MST"), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, "Invoice: "+r.InvoiceID.String(), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.CellFormat(0, 7, "Products:", "", 1, "L", false, 0, "")
	for _, l := range r.Lines {
		pdf.CellFormat(0, 7, tr(FormatLine(l)), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 7, "Total: $"+r.Total.StringFixed(2), "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt %s: %w", r.InvoiceID, err)
	}
	return buf.Bytes(), nil
}
