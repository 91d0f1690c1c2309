package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/shulepay-api/internal/models"
	appErrors "github.com/noah-isme/shulepay-api/pkg/errors"
)

type feeRepository interface {
	ListComponents(ctx context.Context, schoolID string) ([]models.FeeComponent, error)
	FindComponent(ctx context.Context, schoolID, id string) (*models.FeeComponent, error)
	CreateComponent(ctx context.Context, component *models.FeeComponent) error
	UpdateComponent(ctx context.Context, component *models.FeeComponent) error
	DeleteComponent(ctx context.Context, schoolID, id string) error
	ListClassDefaults(ctx context.Context, schoolID, termID string) ([]models.ClassFeeDefault, error)
	UpsertClassDefault(ctx context.Context, d *models.ClassFeeDefault) error
	DeleteClassDefault(ctx context.Context, schoolID, termID, className, componentID string) error
	ListStudentOverrides(ctx context.Context, schoolID, termID, studentID string) ([]models.StudentFeeOverride, error)
	UpsertStudentOverride(ctx context.Context, o *models.StudentFeeOverride) error
	DeleteStudentOverride(ctx context.Context, schoolID, termID, studentID, componentID string) error
	FindInvoice(ctx context.Context, schoolID, studentID, termID string) (*models.Invoice, error)
	ListInvoicesByTerm(ctx context.Context, schoolID, termID string) ([]models.Invoice, error)
	InvoicedTotal(ctx context.Context, schoolID, termID string) (float64, error)
}

type invoiceCharger interface {
	SaveInvoiceCharge(ctx context.Context, invoice *models.Invoice) (*models.LedgerEntry, error)
}

// FeeService manages the fee structure and turns it into invoices. The
// resolution order for an amount is student override, then class default,
// then the component's default amount. Every term-scoped mutation is gated
// on the term not being CLOSED.
type FeeService struct {
	repo       feeRepository
	students   studentRepository
	terms      termRepository
	ledger     invoiceCharger
	dashboards dashboardInvalidator
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewFeeService constructs a FeeService.
func NewFeeService(repo feeRepository, students studentRepository, terms termRepository, ledger invoiceCharger, dashboards dashboardInvalidator, validate *validator.Validate, logger *zap.Logger) *FeeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &FeeService{
		repo:       repo,
		students:   students,
		terms:      terms,
		ledger:     ledger,
		dashboards: dashboards,
		validator:  validate,
		logger:     logger,
	}
}

// requireEditableTerm rejects fee mutations against CLOSED terms. DRAFT terms
// stay editable so fees can be configured before opening.
func (s *FeeService) requireEditableTerm(ctx context.Context, schoolID, termID string) error {
	term, err := s.terms.FindByID(ctx, schoolID, termID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	if term.Status == models.TermStatusClosed {
		return appErrors.Clone(appErrors.ErrTermNotOpen, "term is closed to fee changes")
	}
	return nil
}

// ListComponents returns the school's fee components.
func (s *FeeService) ListComponents(ctx context.Context, schoolID string) ([]models.FeeComponent, error) {
	components, err := s.repo.ListComponents(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fee components")
	}
	return components, nil
}

// CreateComponent adds a fee component.
func (s *FeeService) CreateComponent(ctx context.Context, schoolID string, req models.CreateFeeComponentRequest) (*models.FeeComponent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee component payload")
	}
	component := &models.FeeComponent{
		SchoolID:      schoolID,
		Name:          req.Name,
		DefaultAmount: req.DefaultAmount,
	}
	if err := s.repo.CreateComponent(ctx, component); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create fee component")
	}
	return component, nil
}

// UpdateComponent edits a fee component.
func (s *FeeService) UpdateComponent(ctx context.Context, schoolID, id string, req models.CreateFeeComponentRequest) (*models.FeeComponent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee component payload")
	}
	component, err := s.repo.FindComponent(ctx, schoolID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee component not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee component")
	}
	component.Name = req.Name
	component.DefaultAmount = req.DefaultAmount
	if err := s.repo.UpdateComponent(ctx, component); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update fee component")
	}
	return component, nil
}

// DeleteComponent removes a fee component.
func (s *FeeService) DeleteComponent(ctx context.Context, schoolID, id string) error {
	if err := s.repo.DeleteComponent(ctx, schoolID, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "fee component is in use")
	}
	return nil
}

// ListClassDefaults returns class-level amounts for a term.
func (s *FeeService) ListClassDefaults(ctx context.Context, schoolID, termID string) ([]models.ClassFeeDefault, error) {
	defaults, err := s.repo.ListClassDefaults(ctx, schoolID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class defaults")
	}
	return defaults, nil
}

// SetClassDefault sets the amount one class pays for a component in a term.
func (s *FeeService) SetClassDefault(ctx context.Context, schoolID, termID, className string, req models.SetFeeAmountRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid amount payload")
	}
	if err := s.requireEditableTerm(ctx, schoolID, termID); err != nil {
		return err
	}
	d := &models.ClassFeeDefault{
		SchoolID:    schoolID,
		TermID:      termID,
		ClassName:   className,
		ComponentID: req.ComponentID,
		Amount:      req.Amount,
	}
	if err := s.repo.UpsertClassDefault(ctx, d); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set class default")
	}
	return nil
}

// DeleteClassDefault removes a class-level amount; the component default
// applies again from the next regeneration.
func (s *FeeService) DeleteClassDefault(ctx context.Context, schoolID, termID, className, componentID string) error {
	if err := s.requireEditableTerm(ctx, schoolID, termID); err != nil {
		return err
	}
	if err := s.repo.DeleteClassDefault(ctx, schoolID, termID, className, componentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class default")
	}
	return nil
}

// ListStudentOverrides returns one student's per-component amounts for a term.
func (s *FeeService) ListStudentOverrides(ctx context.Context, schoolID, termID, studentID string) ([]models.StudentFeeOverride, error) {
	overrides, err := s.repo.ListStudentOverrides(ctx, schoolID, termID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student overrides")
	}
	return overrides, nil
}

// SetStudentOverride sets the amount one student pays for a component in a term.
func (s *FeeService) SetStudentOverride(ctx context.Context, schoolID, termID, studentID string, req models.SetFeeAmountRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid amount payload")
	}
	if err := s.requireEditableTerm(ctx, schoolID, termID); err != nil {
		return err
	}
	if _, err := s.students.FindByID(ctx, schoolID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	o := &models.StudentFeeOverride{
		SchoolID:    schoolID,
		TermID:      termID,
		StudentID:   studentID,
		ComponentID: req.ComponentID,
		Amount:      req.Amount,
	}
	if err := s.repo.UpsertStudentOverride(ctx, o); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set student override")
	}
	return nil
}

// DeleteStudentOverride removes a per-student amount.
func (s *FeeService) DeleteStudentOverride(ctx context.Context, schoolID, termID, studentID, componentID string) error {
	if err := s.requireEditableTerm(ctx, schoolID, termID); err != nil {
		return err
	}
	if err := s.repo.DeleteStudentOverride(ctx, schoolID, termID, studentID, componentID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student override")
	}
	return nil
}

// GetInvoice returns a student's invoice for a term.
func (s *FeeService) GetInvoice(ctx context.Context, schoolID, studentID, termID string) (*models.Invoice, error) {
	invoice, err := s.repo.FindInvoice(ctx, schoolID, studentID, termID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not generated yet")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
	}
	return invoice, nil
}

// GenerateInvoices builds or rebuilds invoices for every active student in a
// term and charges the difference to each student's balance through the
// ledger. Safe to run repeatedly: only the delta is charged.
func (s *FeeService) GenerateInvoices(ctx context.Context, schoolID, termID string) (int, error) {
	if err := s.requireEditableTerm(ctx, schoolID, termID); err != nil {
		return 0, err
	}
	students, _, err := s.students.List(ctx, models.StudentFilter{SchoolID: schoolID, PageSize: 100, Page: 1})
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}

	components, err := s.repo.ListComponents(ctx, schoolID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fee components")
	}
	classDefaults, err := s.repo.ListClassDefaults(ctx, schoolID, termID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class defaults")
	}

	byClass := make(map[string]map[string]float64)
	for _, d := range classDefaults {
		if byClass[d.ClassName] == nil {
			byClass[d.ClassName] = make(map[string]float64)
		}
		byClass[d.ClassName][d.ComponentID] = d.Amount
	}

	generated := 0
	page := 1
	for {
		for _, student := range students {
			if !student.Active {
				continue
			}
			if err := s.generateFor(ctx, schoolID, termID, &student, components, byClass[student.ClassName]); err != nil {
				return generated, err
			}
			generated++
		}
		if len(students) < 100 {
			break
		}
		page++
		students, _, err = s.students.List(ctx, models.StudentFilter{SchoolID: schoolID, PageSize: 100, Page: page})
		if err != nil {
			return generated, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
		}
	}

	if s.dashboards != nil {
		s.dashboards.InvalidateDashboard(ctx, schoolID)
	}
	s.logger.Info("invoices generated",
		zap.String("school_id", schoolID),
		zap.String("term_id", termID),
		zap.Int("count", generated))
	return generated, nil
}

// RegenerateInvoice rebuilds the invoice for one student after their fee
// structure changed mid-term.
func (s *FeeService) RegenerateInvoice(ctx context.Context, schoolID, termID, studentID string) (*models.Invoice, error) {
	if err := s.requireEditableTerm(ctx, schoolID, termID); err != nil {
		return nil, err
	}
	student, err := s.students.FindByID(ctx, schoolID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	components, err := s.repo.ListComponents(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fee components")
	}
	classDefaults, err := s.repo.ListClassDefaults(ctx, schoolID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class defaults")
	}
	classAmounts := make(map[string]float64)
	for _, d := range classDefaults {
		if d.ClassName == student.ClassName {
			classAmounts[d.ComponentID] = d.Amount
		}
	}

	if err := s.generateFor(ctx, schoolID, termID, student, components, classAmounts); err != nil {
		return nil, err
	}
	if s.dashboards != nil {
		s.dashboards.InvalidateDashboard(ctx, schoolID)
	}
	return s.GetInvoice(ctx, schoolID, studentID, termID)
}

// SetDiscount sets the invoice-level discount for one student in a term. The
// discount survives regeneration; only the resulting total delta is charged.
func (s *FeeService) SetDiscount(ctx context.Context, schoolID, termID, studentID string, req models.SetDiscountRequest) (*models.Invoice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid discount payload")
	}
	if err := s.requireEditableTerm(ctx, schoolID, termID); err != nil {
		return nil, err
	}

	invoice, err := s.repo.FindInvoice(ctx, schoolID, studentID, termID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not generated yet")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
	}
	if req.Amount > invoice.Subtotal {
		return nil, appErrors.Clone(appErrors.ErrValidation, "discount exceeds invoice subtotal")
	}

	invoice.Discount = req.Amount
	invoice.Total = invoice.Subtotal - invoice.Discount
	if _, err := s.ledger.SaveInvoiceCharge(ctx, invoice); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply discount")
	}
	if s.dashboards != nil {
		s.dashboards.InvalidateDashboard(ctx, schoolID)
	}

	s.logger.Info("invoice discount set",
		zap.String("school_id", schoolID),
		zap.String("student_id", studentID),
		zap.String("term_id", termID),
		zap.Float64("discount", req.Amount))
	return invoice, nil
}

func (s *FeeService) generateFor(ctx context.Context, schoolID, termID string, student *models.Student, components []models.FeeComponent, classAmounts map[string]float64) error {
	overrides, err := s.repo.ListStudentOverrides(ctx, schoolID, termID, student.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student overrides")
	}
	overrideAmounts := make(map[string]float64, len(overrides))
	for _, o := range overrides {
		overrideAmounts[o.ComponentID] = o.Amount
	}

	var discount float64
	existing, err := s.repo.FindInvoice(ctx, schoolID, student.ID, termID)
	switch {
	case err == nil:
		discount = existing.Discount
	case errors.Is(err, sql.ErrNoRows):
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
	}

	invoice := &models.Invoice{
		SchoolID:  schoolID,
		StudentID: student.ID,
		TermID:    termID,
	}
	for _, component := range components {
		amount := component.DefaultAmount
		if v, ok := classAmounts[component.ID]; ok {
			amount = v
		}
		if v, ok := overrideAmounts[component.ID]; ok {
			amount = v
		}
		if amount <= 0 {
			continue
		}
		invoice.Items = append(invoice.Items, models.InvoiceItem{
			ComponentID: component.ID,
			Description: component.Name,
			Amount:      amount,
		})
		invoice.Subtotal += amount
	}
	if discount > invoice.Subtotal {
		discount = invoice.Subtotal
	}
	invoice.Discount = discount
	invoice.Total = invoice.Subtotal - invoice.Discount

	// One transaction writes the invoice and the ledger delta together, so a
	// crash can never leave an updated invoice with an uncharged balance.
	if _, err := s.ledger.SaveInvoiceCharge(ctx, invoice); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to charge invoice")
	}
	return nil
}
