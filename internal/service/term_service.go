package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/shulepay-api/internal/models"
	"github.com/noah-isme/shulepay-api/internal/repository"
	appErrors "github.com/noah-isme/shulepay-api/pkg/errors"
)

type termRepository interface {
	List(ctx context.Context, filter models.TermFilter) ([]models.Term, int, error)
	FindByID(ctx context.Context, schoolID, id string) (*models.Term, error)
	FindCurrent(ctx context.Context, schoolID string) (*models.Term, error)
	FindByYearTerm(ctx context.Context, schoolID string, year, termNo int) (*models.Term, error)
	Create(ctx context.Context, term *models.Term) error
	Open(ctx context.Context, schoolID, id string) (*models.Term, error)
	Close(ctx context.Context, schoolID, id string) (*models.Term, error)
	Delete(ctx context.Context, schoolID, id string) error
}

type carryLedger interface {
	ParkCredits(ctx context.Context, schoolID, fromTermID string) (int, error)
	ApplyCarryForwards(ctx context.Context, schoolID, termID string) (int, error)
}

type invoiceGenerator interface {
	GenerateInvoices(ctx context.Context, schoolID, termID string) (int, error)
}

// TermService drives the term lifecycle. Opening a term generates invoices
// and applies parked carry forwards; closing a term parks remaining credit
// for the next one.
type TermService struct {
	repo      termRepository
	ledger    carryLedger
	fees      invoiceGenerator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTermService constructs a TermService.
func NewTermService(repo termRepository, ledger carryLedger, fees invoiceGenerator, validate *validator.Validate, logger *zap.Logger) *TermService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &TermService{repo: repo, ledger: ledger, fees: fees, validator: validate, logger: logger}
}

// List returns terms matching the filter.
func (s *TermService) List(ctx context.Context, filter models.TermFilter) ([]models.Term, *models.Pagination, error) {
	terms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list terms")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return terms, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads one term.
func (s *TermService) Get(ctx context.Context, schoolID, id string) (*models.Term, error) {
	term, err := s.repo.FindByID(ctx, schoolID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	return term, nil
}

// Current returns the school's open term.
func (s *TermService) Current(ctx context.Context, schoolID string) (*models.Term, error) {
	term, err := s.repo.FindCurrent(ctx, schoolID)
	if err != nil {
		if errors.Is(err, repository.ErrNoOpenTerm) {
			return nil, appErrors.Clone(appErrors.ErrTermNotOpen, "no open term")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current term")
	}
	return term, nil
}

// Create adds a DRAFT term.
func (s *TermService) Create(ctx context.Context, schoolID string, req models.CreateTermRequest) (*models.Term, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid term payload")
	}

	if _, err := s.repo.FindByYearTerm(ctx, schoolID, req.Year, req.Term); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "term already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check term")
	}

	term := &models.Term{SchoolID: schoolID, Year: req.Year, Term: req.Term}
	if err := s.repo.Create(ctx, term); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create term")
	}
	return term, nil
}

// Open transitions a term to OPEN, generates invoices for every active
// student and then applies parked carry forwards against the new charges.
func (s *TermService) Open(ctx context.Context, schoolID, id string) (*models.Term, error) {
	term, err := s.repo.Open(ctx, schoolID, id)
	if err != nil {
		return nil, mapTermErr(err)
	}

	invoiced, err := s.fees.GenerateInvoices(ctx, schoolID, term.ID)
	if err != nil {
		return nil, err
	}
	carried, err := s.ledger.ApplyCarryForwards(ctx, schoolID, term.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply carry forwards")
	}

	s.logger.Info("term opened",
		zap.String("school_id", schoolID),
		zap.String("term", term.Label()),
		zap.Int("invoiced", invoiced),
		zap.Int("carried_forward", carried))
	return term, nil
}

// Close transitions a term to CLOSED and parks each student's remaining
// credit as a carry forward for the next term.
func (s *TermService) Close(ctx context.Context, schoolID, id string) (*models.Term, error) {
	term, err := s.repo.Close(ctx, schoolID, id)
	if err != nil {
		return nil, mapTermErr(err)
	}

	parked, err := s.ledger.ParkCredits(ctx, schoolID, term.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to park credits")
	}

	s.logger.Info("term closed",
		zap.String("school_id", schoolID),
		zap.String("term", term.Label()),
		zap.Int("credits_parked", parked))
	return term, nil
}

// Delete removes a DRAFT term.
func (s *TermService) Delete(ctx context.Context, schoolID, id string) error {
	if err := s.repo.Delete(ctx, schoolID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "only draft terms can be deleted")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete term")
	}
	return nil
}

func mapTermErr(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "term not found")
	case errors.Is(err, repository.ErrTransitionNotAllowed):
		return appErrors.Clone(appErrors.ErrTermTransition, "term status transition not allowed")
	case errors.Is(err, repository.ErrTermAlreadyOpen):
		return appErrors.Clone(appErrors.ErrTermTransition, "another term is already open")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "term transition failed")
	}
}
