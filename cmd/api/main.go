package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/shulepay-api/api/swagger"
	"github.com/noah-isme/shulepay-api/internal/handler"
	"github.com/noah-isme/shulepay-api/internal/middleware"
	"github.com/noah-isme/shulepay-api/internal/models"
	"github.com/noah-isme/shulepay-api/internal/repository"
	"github.com/noah-isme/shulepay-api/internal/service"
	"github.com/noah-isme/shulepay-api/pkg/cache"
	"github.com/noah-isme/shulepay-api/pkg/config"
	"github.com/noah-isme/shulepay-api/pkg/database"
	"github.com/noah-isme/shulepay-api/pkg/logger"
	"github.com/noah-isme/shulepay-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/shulepay-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/shulepay-api/pkg/middleware/requestid"
	"github.com/noah-isme/shulepay-api/pkg/mpesa"
	"github.com/noah-isme/shulepay-api/pkg/storage"
)

// @title ShulePay API
// @version 1.0.0
// @description Multi-tenant school fee management: students, terms, invoices, payments and M-Pesa collections.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(cfg.Database); err != nil {
		logr.Fatal("migrations failed", zap.Error(err))
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, dashboard caching disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("export storage init failed", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	schoolRepo := repository.NewSchoolRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	termRepo := repository.NewTermRepository(db)
	feeRepo := repository.NewFeeRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	mpesaRepo := repository.NewMpesaRepository(db)
	reminderRepo := repository.NewReminderRepository(db)
	reportRepo := repository.NewReportRepository(db)

	validate := validator.New()
	mail := mailer.New(cfg.Mail, logr)
	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "shulepay-api",
	})
	schoolSvc := service.NewSchoolService(schoolRepo, validate, logr)
	userSvc := service.NewUserService(userRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	reportSvc := service.NewReportService(reportRepo, feeRepo, termRepo, redisClient, metricsSvc, cfg.Dashboard.CacheTTL, logr)
	feeSvc := service.NewFeeService(feeRepo, studentRepo, termRepo, ledgerRepo, reportSvc, validate, logr)
	termSvc := service.NewTermService(termRepo, ledgerRepo, feeSvc, validate, logr)
	reminderSvc := service.NewReminderService(reminderRepo, studentRepo, schoolRepo, mail, metricsSvc, cfg.Reminders, logr)
	paymentSvc := service.NewPaymentService(ledgerRepo, paymentRepo, termRepo, studentRepo, reminderSvc, reportSvc, metricsSvc, validate, logr)
	creditSvc := service.NewCreditService(ledgerRepo, paymentRepo, studentRepo, reportSvc, validate, logr)
	exportSvc := service.NewExportService(paymentRepo, ledgerRepo, studentRepo, termRepo, schoolRepo, reportSvc, store, signer, logr)

	var mpesaSvc *service.MpesaService
	if cfg.Mpesa.Enabled {
		gateway := mpesa.NewClient(cfg.Mpesa.BaseURL, mpesa.Credentials{
			ConsumerKey:    cfg.Mpesa.ConsumerKey,
			ConsumerSecret: cfg.Mpesa.ConsumerSecret,
			Shortcode:      cfg.Mpesa.Shortcode,
			Passkey:        cfg.Mpesa.Passkey,
		}, cfg.Mpesa.Timeout)
		mpesaSvc = service.NewMpesaService(gateway, mpesaRepo, ledgerRepo, termRepo, studentRepo, reportSvc, metricsSvc, cfg.Mpesa.CallbackURL, validate, logr)
	} else {
		mpesaSvc = service.NewMpesaService(nil, mpesaRepo, ledgerRepo, termRepo, studentRepo, reportSvc, metricsSvc, cfg.Mpesa.CallbackURL, validate, logr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reminderSvc.Start(ctx)
	defer reminderSvc.Stop()
	if cfg.Reminders.Enabled {
		go reminderSvc.RunScheduledSweeps(ctx, schoolSvc.ActiveSchoolIDs)
	}
	go runExportCleanup(ctx, exportSvc, cfg.Exports.SignedURLTTL)
	if cfg.Mpesa.Enabled {
		go runMpesaExpiry(ctx, mpesaSvc)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r, cfg, routeDeps{
		auth:     handler.NewAuthHandler(authSvc),
		schools:  handler.NewSchoolHandler(schoolSvc),
		users:    handler.NewUserHandler(userSvc),
		students: handler.NewStudentHandler(studentSvc),
		terms:    handler.NewTermHandler(termSvc),
		fees:     handler.NewFeeHandler(feeSvc),
		payments: handler.NewPaymentHandler(paymentSvc),
		credits:  handler.NewCreditHandler(creditSvc),
		mpesa:    handler.NewMpesaHandler(mpesaSvc, cfg.Mpesa.CallbackToken),
		reminders: handler.NewReminderHandler(reminderSvc),
		reports:  handler.NewReportHandler(reportSvc),
		exports:  handler.NewExportHandler(exportSvc),
		authSvc:  authSvc,
		userRepo: userRepo,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("shutdown incomplete", zap.Error(err))
	}
}

type routeDeps struct {
	auth      *handler.AuthHandler
	schools   *handler.SchoolHandler
	users     *handler.UserHandler
	students  *handler.StudentHandler
	terms     *handler.TermHandler
	fees      *handler.FeeHandler
	payments  *handler.PaymentHandler
	credits   *handler.CreditHandler
	mpesa     *handler.MpesaHandler
	reminders *handler.ReminderHandler
	reports   *handler.ReportHandler
	exports   *handler.ExportHandler

	authSvc  *service.AuthService
	userRepo *repository.UserRepository
}

func registerRoutes(r *gin.Engine, cfg *config.Config, d routeDeps) {
	api := r.Group(cfg.APIPrefix)

	// Public surface: login, token refresh and the Daraja callback. The
	// callback route carries its own shared-secret path token.
	api.POST("/auth/login", d.auth.Login)
	api.POST("/auth/refresh", d.auth.Refresh)
	api.POST("/mpesa/callback/:token", d.mpesa.Callback)

	authed := api.Group("", middleware.JWT(d.authSvc))
	authed.POST("/auth/logout", d.auth.Logout)
	authed.POST("/auth/change-password", d.auth.ChangePassword)
	authed.GET("/auth/me", d.auth.Me)

	// Everything below operates within a single school's scope.
	scoped := authed.Group("", middleware.SchoolScope())

	platform := scoped.Group("", middleware.RBAC(models.RoleSuperAdmin))
	platform.GET("/schools", d.schools.List)
	platform.POST("/schools", middleware.Audit(d.userRepo, "create", "school"), d.schools.Create)
	platform.PATCH("/schools/:id", middleware.Audit(d.userRepo, "update", "school"), d.schools.Update)

	admin := scoped.Group("", middleware.RBAC(models.RoleSuperAdmin, models.RoleAdmin))
	admin.GET("/school/settings", d.schools.Settings)
	admin.PUT("/school/settings", middleware.Audit(d.userRepo, "update", "school_setting"), d.schools.UpsertSetting)

	admin.GET("/users", d.users.List)
	admin.GET("/users/:id", d.users.Get)
	admin.POST("/users", middleware.Audit(d.userRepo, "create", "user"), d.users.Create)
	admin.PATCH("/users/:id", middleware.Audit(d.userRepo, "update", "user"), d.users.Update)
	admin.PUT("/users/:id/password", middleware.Audit(d.userRepo, "reset_password", "user"), d.users.ResetPassword)
	admin.GET("/audit-logs", d.users.AuditLogs)

	admin.POST("/students/:id/recompute", middleware.Audit(d.userRepo, "recompute", "student"), d.payments.Recompute)

	admin.POST("/terms", middleware.Audit(d.userRepo, "create", "term"), d.terms.Create)
	admin.POST("/terms/:termId/open", middleware.Audit(d.userRepo, "open", "term"), d.terms.Open)
	admin.POST("/terms/:termId/close", middleware.Audit(d.userRepo, "close", "term"), d.terms.Close)
	admin.DELETE("/terms/:termId", middleware.Audit(d.userRepo, "delete", "term"), d.terms.Delete)

	admin.POST("/fee-components", middleware.Audit(d.userRepo, "create", "fee_component"), d.fees.CreateComponent)
	admin.PATCH("/fee-components/:id", middleware.Audit(d.userRepo, "update", "fee_component"), d.fees.UpdateComponent)
	admin.DELETE("/fee-components/:id", middleware.Audit(d.userRepo, "delete", "fee_component"), d.fees.DeleteComponent)
	admin.PUT("/terms/:termId/class-fees/:className", middleware.Audit(d.userRepo, "set", "class_fee"), d.fees.SetClassDefault)
	admin.DELETE("/terms/:termId/class-fees/:className/:componentId", middleware.Audit(d.userRepo, "delete", "class_fee"), d.fees.DeleteClassDefault)
	admin.PUT("/terms/:termId/students/:studentId/fees", middleware.Audit(d.userRepo, "set", "fee_override"), d.fees.SetStudentOverride)
	admin.DELETE("/terms/:termId/students/:studentId/fees/:componentId", middleware.Audit(d.userRepo, "delete", "fee_override"), d.fees.DeleteStudentOverride)
	admin.PUT("/terms/:termId/students/:studentId/discount", middleware.Audit(d.userRepo, "set", "discount"), d.fees.SetDiscount)
	admin.POST("/terms/:termId/generate-invoices", middleware.Audit(d.userRepo, "generate", "invoices"), d.fees.GenerateInvoices)

	// Reversal is a compensating financial write, held back from bursars.
	admin.POST("/payments/:id/reverse", middleware.Audit(d.userRepo, "reverse", "payment"), d.payments.Reverse)

	staff := scoped.Group("", middleware.RBAC(models.RoleSuperAdmin, models.RoleAdmin, models.RoleBursar))
	staff.GET("/students", d.students.List)
	staff.POST("/students", middleware.Audit(d.userRepo, "create", "student"), d.students.Create)
	staff.PATCH("/students/:id", middleware.Audit(d.userRepo, "update", "student"), d.students.Update)
	staff.POST("/students/:id/deactivate", middleware.Audit(d.userRepo, "deactivate", "student"), d.students.Deactivate)
	staff.POST("/students/import", middleware.Audit(d.userRepo, "import", "students"), d.students.ImportRoster)
	staff.GET("/students/export", d.students.ExportRoster)
	admin.DELETE("/students/:id", middleware.Audit(d.userRepo, "delete", "student"), d.students.Delete)

	staff.GET("/terms", d.terms.List)
	staff.GET("/terms/current", d.terms.Current)
	staff.GET("/terms/:termId", d.terms.Get)
	staff.GET("/fee-components", d.fees.ListComponents)
	staff.GET("/terms/:termId/class-fees/:className", d.fees.ListClassDefaults)
	staff.GET("/terms/:termId/students/:studentId/fees", d.fees.ListStudentOverrides)
	staff.POST("/terms/:termId/students/:studentId/regenerate-invoice", middleware.Audit(d.userRepo, "regenerate", "invoice"), d.fees.RegenerateInvoice)

	staff.GET("/payments", d.payments.List)
	staff.GET("/payments/:id", d.payments.Get)
	staff.POST("/payments", middleware.Audit(d.userRepo, "record", "payment"), d.payments.Record)

	staff.POST("/credits/apply", middleware.Audit(d.userRepo, "apply", "credit"), d.credits.Apply)
	staff.POST("/credits/refund", middleware.Audit(d.userRepo, "refund", "credit"), d.credits.Refund)
	staff.POST("/credits/transfer", middleware.Audit(d.userRepo, "transfer", "credit"), d.credits.Transfer)

	staff.POST("/mpesa/stk-push", middleware.Audit(d.userRepo, "initiate", "mpesa"), d.mpesa.Initiate)
	staff.GET("/mpesa/transactions/:id", d.mpesa.Status)

	staff.POST("/reminders/sweep", middleware.Audit(d.userRepo, "sweep", "reminders"), d.reminders.Sweep)
	staff.GET("/reminders", d.reminders.History)

	staff.GET("/reports/dashboard", d.reports.Dashboard)
	staff.GET("/reports/terms/:termId/collections-by-method", d.reports.CollectionsByMethod)
	staff.GET("/reports/daily-collections", d.reports.DailyCollections)
	staff.GET("/reports/outstanding-by-class", d.reports.OutstandingByClass)
	staff.GET("/reports/defaulters", d.reports.Defaulters)
	staff.GET("/reports/ledger-drift", d.reports.LedgerDrift)

	staff.POST("/exports/defaulters", d.exports.Defaulters)
	staff.POST("/exports/terms/:termId/collections", d.exports.Collections)

	// Guardians can read their own school's student-facing data.
	member := scoped.Group("", middleware.RBAC(models.RoleSuperAdmin, models.RoleAdmin, models.RoleBursar, models.RoleGuardian))
	member.GET("/school", d.schools.Get)
	member.GET("/students/:id", d.students.Get)
	member.GET("/terms/:termId/students/:studentId/invoice", d.fees.GetInvoice)
	member.GET("/students/:id/ledger", d.payments.StudentLedger)
	member.GET("/students/:id/credit", d.credits.History)
	member.GET("/students/:id/carry-forwards", d.credits.CarryForwards)
	member.GET("/students/:id/mpesa", d.mpesa.History)
	member.POST("/payments/:id/receipt", d.exports.Receipt)
	member.POST("/students/:id/statement", d.exports.Statement)
	member.GET("/exports/download", d.exports.Download)
}

// runMpesaExpiry fails PENDING STK transactions whose handset prompt has
// long timed out and will never produce a callback.
func runMpesaExpiry(ctx context.Context, svc *service.MpesaService) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = svc.ExpireStale(ctx, 30*time.Minute)
		}
	}
}

// runExportCleanup prunes generated receipts and statements whose signed
// URLs have long expired.
func runExportCleanup(ctx context.Context, svc *service.ExportService, ttl time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.CleanupExpired(ttl)
		}
	}
}
