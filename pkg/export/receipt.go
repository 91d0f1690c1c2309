package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Receipt holds everything printed on a payment receipt.
type Receipt struct {
	SchoolName  string
	ReceiptNo   string
	StudentName string
	AdmissionNo string
	ClassName   string
	Amount      float64
	Method      string
	Reference   string
	TermLabel   string
	BalanceDue  float64
	Credit      float64
	IssuedAt    time.Time
}

// StatementLine is one row on a fee statement.
type StatementLine struct {
	Date        time.Time
	Description string
	Debit       float64
	Credit      float64
	Balance     float64
}

// Statement is a per-student running account over a term.
type Statement struct {
	SchoolName  string
	StudentName string
	AdmissionNo string
	TermLabel   string
	Lines       []StatementLine
	ClosingDue  float64
}

// RenderReceipt produces a single-page payment receipt PDF.
func (e *PDFExporter) RenderReceipt(r Receipt) ([]byte, error) {
	if r.StudentName == "" {
		return nil, fmt.Errorf("receipt requires a student name")
	}

	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(12, 14, 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, r.SchoolName, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, "OFFICIAL PAYMENT RECEIPT", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	line := func(label, value string) {
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(40, 6, label, "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 6, value, "", 1, "", false, 0, "")
	}

	line("Receipt No", r.ReceiptNo)
	line("Date", r.IssuedAt.Format("2006-01-02 15:04"))
	line("Student", fmt.Sprintf("%s (%s)", r.StudentName, r.AdmissionNo))
	if r.ClassName != "" {
		line("Class", r.ClassName)
	}
	line("Term", r.TermLabel)
	line("Method", r.Method)
	if r.Reference != "" {
		line("Reference", r.Reference)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, fmt.Sprintf("AMOUNT PAID: %.2f", r.Amount), "1", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("Balance due: %.2f    Credit on account: %.2f", r.BalanceDue, r.Credit), "", 1, "", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderStatement produces a fee statement PDF with a running balance.
func (e *PDFExporter) RenderStatement(s Statement) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, s.SchoolName, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Fee Statement - %s (%s) - %s", s.StudentName, s.AdmissionNo, s.TermLabel), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	widths := []float64{28, 80, 27, 27, 28}
	headers := []string{"Date", "Description", "Debit", "Credit", "Balance"}

	pdf.SetFont("Arial", "B", 9)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, l := range s.Lines {
		pdf.CellFormat(widths[0], 6, l.Date.Format("2006-01-02"), "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[1], 6, l.Description, "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[2], 6, formatMoney(l.Debit), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 6, formatMoney(l.Credit), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 6, fmt.Sprintf("%.2f", l.Balance), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(3)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 7, fmt.Sprintf("Closing balance due: %.2f", s.ClosingDue), "", 1, "R", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render statement pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func formatMoney(v float64) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}
