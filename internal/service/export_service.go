package service

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/shulepay-api/internal/models"
	appErrors "github.com/noah-isme/shulepay-api/pkg/errors"
	"github.com/noah-isme/shulepay-api/pkg/export"
	"github.com/noah-isme/shulepay-api/pkg/storage"
)

type exportPaymentReader interface {
	FindByID(ctx context.Context, schoolID, id string) (*models.Payment, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
}

type exportLedgerReader interface {
	ListEntries(ctx context.Context, schoolID, studentID string, limit, offset int) ([]models.LedgerEntry, error)
}

type exportSchoolReader interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
	GetSetting(ctx context.Context, schoolID, key string) (string, error)
}

type defaulterLister interface {
	Defaulters(ctx context.Context, schoolID string, minBalance float64, limit int) ([]models.Defaulter, error)
}

// ExportFile is a generated document plus its signed download token.
type ExportFile struct {
	FileName  string    `json:"file_name"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExportService renders receipts, statements and summary exports to PDF
// or CSV, saves them under the school's export directory, and hands out
// signed download tokens.
type ExportService struct {
	payments exportPaymentReader
	ledger   exportLedgerReader
	students studentRepository
	terms    termRepository
	schools  exportSchoolReader
	reports  defaulterLister
	pdf      *export.PDFExporter
	csv      *export.CSVExporter
	storage  *storage.LocalStorage
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(payments exportPaymentReader, ledger exportLedgerReader, students studentRepository, terms termRepository, schools exportSchoolReader, reports defaulterLister, store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		payments: payments,
		ledger:   ledger,
		students: students,
		terms:    terms,
		schools:  schools,
		reports:  reports,
		pdf:      export.NewPDFExporter(),
		csv:      export.NewCSVExporter(),
		storage:  store,
		signer:   signer,
		logger:   logger,
	}
}

// Receipt renders the PDF receipt for one payment.
func (s *ExportService) Receipt(ctx context.Context, schoolID, paymentID string) (*ExportFile, error) {
	payment, err := s.payments.FindByID(ctx, schoolID, paymentID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
	}
	student, err := s.students.FindByID(ctx, schoolID, payment.StudentID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	term, err := s.terms.FindByID(ctx, schoolID, payment.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}

	receipt := export.Receipt{
		SchoolName:  s.schoolName(ctx, schoolID),
		ReceiptNo:   fmt.Sprintf("RCT-%s", payment.ID[:8]),
		StudentName: student.FullName,
		AdmissionNo: student.AdmissionNo,
		ClassName:   student.ClassName,
		Amount:      payment.Amount,
		Method:      string(payment.Method),
		TermLabel:   term.Label(),
		BalanceDue:  student.Balance,
		Credit:      student.Credit,
		IssuedAt:    payment.CreatedAt,
	}
	if payment.Reference != nil {
		receipt.Reference = *payment.Reference
	}

	data, err := s.pdf.RenderReceipt(receipt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	name := fmt.Sprintf("receipts/receipt-%s.pdf", payment.ID)
	return s.save(schoolID, name, data)
}

// Statement renders a student's running account as a PDF from the
// ledger. Entries arrive oldest-first from the repository, which is
// already the order a statement reads in.
func (s *ExportService) Statement(ctx context.Context, schoolID, studentID string) (*ExportFile, error) {
	student, err := s.students.FindByID(ctx, schoolID, studentID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	entries, err := s.ledger.ListEntries(ctx, schoolID, studentID, 500, 0)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ledger entries")
	}

	statement := export.Statement{
		SchoolName:  s.schoolName(ctx, schoolID),
		StudentName: student.FullName,
		AdmissionNo: student.AdmissionNo,
		ClosingDue:  student.Balance,
	}
	if term, err := s.terms.FindCurrent(ctx, schoolID); err == nil {
		statement.TermLabel = term.Label()
	}
	for _, entry := range entries {
		statement.Lines = append(statement.Lines, statementLine(entry))
	}

	data, err := s.pdf.RenderStatement(statement)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render statement")
	}
	name := fmt.Sprintf("statements/statement-%s-%d.pdf", student.AdmissionNo, time.Now().Unix())
	return s.save(schoolID, name, data)
}

// Defaulters exports the over-threshold student list. Format is "csv"
// or "pdf".
func (s *ExportService) Defaulters(ctx context.Context, schoolID string, minBalance float64, format string) (*ExportFile, error) {
	rows, err := s.reports.Defaulters(ctx, schoolID, minBalance, 1000)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list defaulters")
	}

	data := export.Dataset{
		Headers: []string{"admission_no", "full_name", "class_name", "guardian_phone", "balance"},
	}
	for _, d := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"admission_no":   d.AdmissionNo,
			"full_name":      d.FullName,
			"class_name":     d.ClassName,
			"guardian_phone": d.GuardianPhone,
			"balance":        strconv.FormatFloat(d.Balance, 'f', 2, 64),
		})
	}
	return s.renderDataset(schoolID, "defaulters", data, "Fee Defaulters", format)
}

// Collections exports the term's payment list. Format is "csv" or "pdf".
func (s *ExportService) Collections(ctx context.Context, schoolID, termID, format string) (*ExportFile, error) {
	payments, _, err := s.payments.List(ctx, models.PaymentFilter{
		SchoolID: schoolID,
		TermID:   termID,
		PageSize: 10000,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}

	data := export.Dataset{
		Headers: []string{"date", "student_id", "amount", "method", "reference", "reversed"},
	}
	for _, p := range payments {
		ref := ""
		if p.Reference != nil {
			ref = *p.Reference
		}
		data.Rows = append(data.Rows, map[string]string{
			"date":       p.CreatedAt.Format("2006-01-02 15:04"),
			"student_id": p.StudentID,
			"amount":     strconv.FormatFloat(p.Amount, 'f', 2, 64),
			"method":     string(p.Method),
			"reference":  ref,
			"reversed":   strconv.FormatBool(p.Reversed),
		})
	}
	return s.renderDataset(schoolID, "collections", data, "Collections", format)
}

// Open resolves a signed download token to the underlying file. The
// school scope from the caller must match the token's.
func (s *ExportService) Open(ctx context.Context, schoolID, token string) (*os.File, string, error) {
	tokenSchool, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	if tokenSchool != schoolID {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "download token belongs to another school")
	}
	f, err := s.storage.Open(path.Join(tokenSchool, relPath))
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
	}
	return f, path.Base(relPath), nil
}

// CleanupExpired removes export files older than the TTL. Called on a
// timer from main.
func (s *ExportService) CleanupExpired(ttl time.Duration) {
	removed, err := s.storage.CleanupOlderThan(ttl)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("removed expired exports", zap.Int("count", len(removed)))
	}
}

func (s *ExportService) renderDataset(schoolID, kind string, data export.Dataset, title, format string) (*ExportFile, error) {
	var (
		raw []byte
		ext string
		err error
	)
	switch format {
	case "pdf":
		raw, err = s.pdf.Render(data, title)
		ext = "pdf"
	default:
		raw, err = s.csv.Render(data)
		ext = "csv"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	name := fmt.Sprintf("%s/%s-%d.%s", kind, kind, time.Now().Unix(), ext)
	return s.save(schoolID, name, raw)
}

func (s *ExportService) save(schoolID, relPath string, data []byte) (*ExportFile, error) {
	if _, err := s.storage.Save(path.Join(schoolID, relPath), data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(schoolID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}
	return &ExportFile{FileName: path.Base(relPath), Token: token, ExpiresAt: expiresAt}, nil
}

func (s *ExportService) schoolName(ctx context.Context, schoolID string) string {
	if brand, err := s.schools.GetSetting(ctx, schoolID, models.SettingBrandName); err == nil && brand != "" {
		return brand
	}
	if school, err := s.schools.FindByID(ctx, schoolID); err == nil {
		return school.Name
	}
	return "School"
}

func statementLine(e models.LedgerEntry) export.StatementLine {
	line := export.StatementLine{
		Date:        e.CreatedAt,
		Description: statementDescription(e),
		Balance:     e.BalanceAfter,
	}
	switch e.EntryType {
	case models.LedgerInvoiceCharge, models.LedgerPaymentReversed:
		line.Debit = e.Amount
	default:
		line.Credit = e.Amount
	}
	return line
}

func statementDescription(e models.LedgerEntry) string {
	switch e.EntryType {
	case models.LedgerInvoiceCharge:
		return "Invoice charge"
	case models.LedgerPaymentApplied:
		return "Payment received"
	case models.LedgerCreditAdded:
		return "Overpayment to credit"
	case models.LedgerCreditApplied:
		return "Credit applied"
	case models.LedgerCreditRefunded:
		return "Credit refunded"
	case models.LedgerTransferOut:
		return "Credit transferred out"
	case models.LedgerTransferIn:
		return "Credit transferred in"
	case models.LedgerPaymentReversed:
		return "Payment reversed"
	case models.LedgerCarryForward:
		return "Carry forward"
	default:
		return string(e.EntryType)
	}
}
