package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/shulepay-api/internal/models"
	appErrors "github.com/noah-isme/shulepay-api/pkg/errors"
)

type reportRepository interface {
	ActiveStudentCount(ctx context.Context, schoolID string) (int, error)
	CollectedTotal(ctx context.Context, schoolID, termID string) (float64, error)
	CollectedSince(ctx context.Context, schoolID string, since time.Time) (float64, error)
	OutstandingTotals(ctx context.Context, schoolID string) (outstanding, credit float64, err error)
	DefaulterCount(ctx context.Context, schoolID string, minBalance float64) (int, error)
	MpesaSuccessRate(ctx context.Context, schoolID string, since time.Time) (float64, error)
	CollectionsByMethod(ctx context.Context, schoolID, termID string) ([]models.MethodTotal, error)
	DailyCollections(ctx context.Context, schoolID string, from, to time.Time) ([]models.DailyTotal, error)
	OutstandingByClass(ctx context.Context, schoolID string) ([]models.ClassOutstanding, error)
	Defaulters(ctx context.Context, schoolID string, minBalance float64, limit int) ([]models.Defaulter, error)
	LedgerDrift(ctx context.Context, schoolID string) ([]models.Student, error)
}

type invoiceTotaler interface {
	InvoicedTotal(ctx context.Context, schoolID, termID string) (float64, error)
}

// dashboardInvalidator is satisfied by ReportService. Posting paths use it to
// drop the cached dashboard summary so the figures never lag a payment.
type dashboardInvalidator interface {
	InvalidateDashboard(ctx context.Context, schoolID string)
}

// ReportService serves the dashboard and collection reports. The dashboard
// summary is cached in Redis briefly since every signed-in user loads it.
type ReportService struct {
	repo     reportRepository
	invoices invoiceTotaler
	terms    termRepository
	cache    *redis.Client
	metrics  *MetricsService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewReportService constructs a ReportService.
func NewReportService(repo reportRepository, invoices invoiceTotaler, terms termRepository, cache *redis.Client, metrics *MetricsService, cacheTTL time.Duration, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}
	return &ReportService{
		repo:     repo,
		invoices: invoices,
		terms:    terms,
		cache:    cache,
		metrics:  metrics,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// Dashboard assembles the headline figures for a school's open term.
func (s *ReportService) Dashboard(ctx context.Context, schoolID string) (*models.DashboardSummary, error) {
	cacheKey := fmt.Sprintf("dashboard:%s", schoolID)
	if s.cache != nil {
		start := time.Now()
		raw, err := s.cache.Get(ctx, cacheKey).Bytes()
		s.metrics.RecordCacheOperation(err == nil, time.Since(start))
		if err == nil {
			var cached models.DashboardSummary
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
				return &cached, nil
			}
		}
	}

	term, err := s.terms.FindCurrent(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrTermNotOpen, "dashboard requires an open term")
	}

	summary := &models.DashboardSummary{
		SchoolID:  schoolID,
		TermID:    term.ID,
		TermLabel: term.Label(),
	}

	if summary.StudentCount, err = s.repo.ActiveStudentCount(ctx, schoolID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	if summary.TotalInvoiced, err = s.invoices.InvoicedTotal(ctx, schoolID, term.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum invoiced")
	}
	if summary.TotalCollected, err = s.repo.CollectedTotal(ctx, schoolID, term.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum collected")
	}
	if summary.TotalOutstanding, summary.TotalCredit, err = s.repo.OutstandingTotals(ctx, schoolID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum outstanding")
	}
	if summary.DefaulterCount, err = s.repo.DefaulterCount(ctx, schoolID, 0); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count defaulters")
	}
	if summary.MpesaSuccessRate, err = s.repo.MpesaSuccessRate(ctx, schoolID, time.Now().UTC().AddDate(0, 0, -30)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute mpesa rate")
	}
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	if summary.CollectionsToday, err = s.repo.CollectedSince(ctx, schoolID, midnight); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum today's collections")
	}

	if s.cache != nil {
		if raw, err := json.Marshal(summary); err == nil {
			if err := s.cache.Set(ctx, cacheKey, raw, s.cacheTTL).Err(); err != nil {
				s.logger.Warn("failed to cache dashboard", zap.Error(err))
			}
		}
	}
	return summary, nil
}

// InvalidateDashboard drops the cached summary, called after postings.
func (s *ReportService) InvalidateDashboard(ctx context.Context, schoolID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, fmt.Sprintf("dashboard:%s", schoolID)).Err(); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}

// CollectionsByMethod breaks down term collections per payment method.
func (s *ReportService) CollectionsByMethod(ctx context.Context, schoolID, termID string) ([]models.MethodTotal, error) {
	totals, err := s.repo.CollectionsByMethod(ctx, schoolID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate collections")
	}
	return totals, nil
}

// DailyCollections returns per-day totals for the trailing number of days.
func (s *ReportService) DailyCollections(ctx context.Context, schoolID string, days int) ([]models.DailyTotal, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	to := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	from := to.AddDate(0, 0, -days)
	totals, err := s.repo.DailyCollections(ctx, schoolID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate daily collections")
	}
	return totals, nil
}

// OutstandingByClass groups debt per class.
func (s *ReportService) OutstandingByClass(ctx context.Context, schoolID string) ([]models.ClassOutstanding, error) {
	rows, err := s.repo.OutstandingByClass(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate class debt")
	}
	return rows, nil
}

// Defaulters lists students over the threshold.
func (s *ReportService) Defaulters(ctx context.Context, schoolID string, minBalance float64, limit int) ([]models.Defaulter, error) {
	rows, err := s.repo.Defaulters(ctx, schoolID, minBalance, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list defaulters")
	}
	return rows, nil
}

// LedgerDrift reports students whose stored balances disagree with the
// ledger. Used by the consistency check endpoint.
func (s *ReportService) LedgerDrift(ctx context.Context, schoolID string) ([]models.Student, error) {
	students, err := s.repo.LedgerDrift(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check ledger drift")
	}
	return students, nil
}
