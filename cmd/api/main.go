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

	_ "github.com/campusops/registrar-api/api/swagger"
	"github.com/campusops/registrar-api/internal/handler"
	"github.com/campusops/registrar-api/internal/middleware"
	"github.com/campusops/registrar-api/internal/models"
	"github.com/campusops/registrar-api/internal/repository"
	"github.com/campusops/registrar-api/internal/service"
	"github.com/campusops/registrar-api/pkg/cache"
	"github.com/campusops/registrar-api/pkg/config"
	"github.com/campusops/registrar-api/pkg/database"
	"github.com/campusops/registrar-api/pkg/events"
	"github.com/campusops/registrar-api/pkg/jobs"
	"github.com/campusops/registrar-api/pkg/logger"
	"github.com/campusops/registrar-api/pkg/mailer"
	corsmiddleware "github.com/campusops/registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusops/registrar-api/pkg/middleware/requestid"
	"github.com/campusops/registrar-api/pkg/storage"
)

// @title Campus Registrar API
// @version 1.0.0
// @description Academic records service: registration, grading, degree audit and planning.
// @BasePath /api/v1
// @schemes http

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
	sugar := logr.Sugar()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		sugar.Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		sugar.Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	facultyRepo := repository.NewFacultyRepository(db)
	termRepo := repository.NewTermRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	auditRepo := repository.NewDegreeAuditRepository(db)
	substitutionRepo := repository.NewSubstitutionRepository(db)
	transferRepo := repository.NewTransferRepository(db)
	waitlistRepo := repository.NewWaitlistRepository(db)
	reportRepo := repository.NewReportRepository(db)

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Audit.CacheTTL, logr, redisClient != nil)

	publisher := events.NewPublisher(cfg.Events, logr)

	mail := mailer.New(cfg.Mail, logr)
	notifications := service.NewNotificationService(mail, jobs.QueueConfig{Workers: 2, Logger: logr}, logr)
	notifications.Start(ctx)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "registrar-api",
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	termSvc := service.NewTermService(termRepo, validate, logr)
	subjectSvc := service.NewSubjectService(courseRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	facultySvc := service.NewFacultyService(facultyRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, facultyRepo, termRepo, enrollmentRepo, validate, logr)
	templateSvc := service.NewTemplateService(templateRepo, courseRepo, validate, logr)
	auditSvc := service.NewDegreeAuditService(templateRepo, studentRepo, enrollmentRepo, transferRepo,
		substitutionRepo, courseRepo, auditRepo, notifications, cacheSvc, publisher, metricsSvc,
		cfg.Audit.CacheTTL, validate, logr)

	var waitlistSvc *service.WaitlistService
	if cfg.Waitlist.Enabled {
		waitlistSvc = service.NewWaitlistService(waitlistRepo, enrollmentRepo, sectionRepo, studentRepo,
			auditRepo, templateRepo, notifications, publisher, metricsSvc, cacheSvc,
			cfg.Waitlist.MaxPerSection, validate, logr)
	}

	// The waitlist parameters are interfaces; a typed nil pointer would
	// read as wired, so the disabled branch passes untyped nil.
	var enrollmentSvc *service.EnrollmentService
	var sectionSvc *service.SectionService
	if waitlistSvc != nil {
		enrollmentSvc = service.NewEnrollmentService(enrollmentRepo, studentRepo, sectionRepo, termRepo,
			courseRepo, waitlistSvc, notifications, cacheSvc, publisher, cfg.Enrollment.MaxTermCredits, validate, logr)
		sectionSvc = service.NewSectionService(sectionRepo, courseRepo, termRepo, facultyRepo, waitlistSvc, validate, logr)
	} else {
		enrollmentSvc = service.NewEnrollmentService(enrollmentRepo, studentRepo, sectionRepo, termRepo,
			courseRepo, nil, notifications, cacheSvc, publisher, cfg.Enrollment.MaxTermCredits, validate, logr)
		sectionSvc = service.NewSectionService(sectionRepo, courseRepo, termRepo, facultyRepo, nil, validate, logr)
	}

	gradeSvc := service.NewGradeService(enrollmentRepo, sectionRepo, studentRepo, transferRepo,
		userRepo, cacheSvc, publisher, validate, logr)
	substitutionSvc := service.NewSubstitutionService(substitutionRepo, studentRepo, courseRepo,
		userRepo, cacheSvc, validate, logr)
	transferSvc := service.NewTransferCreditService(transferRepo, studentRepo, courseRepo,
		userRepo, cacheSvc, publisher, validate, logr)
	recommendationSvc := service.NewRecommendationService(templateRepo, studentRepo, enrollmentRepo,
		substitutionRepo, courseRepo, enrollmentRepo, cacheSvc, metricsSvc,
		cfg.Recommendation.CacheTTL, cfg.Recommendation.MaxResults, logr)

	var reportSvc *service.ReportService
	var reportQueue *jobs.Queue
	if cfg.Reports.Enabled {
		store, storeErr := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if storeErr != nil {
			sugar.Warnw("report storage unavailable, reports disabled", "error", storeErr, "dir", cfg.Reports.StorageDir)
		} else {
			signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
			exportSvc := service.NewExportService(studentRepo, enrollmentRepo, auditRepo, enrollmentRepo,
				sectionRepo, store, signer,
				service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Reports.SignedURLTTL}, logr, nil, nil)
			worker := service.NewReportWorker(reportRepo, exportSvc, cfg.Reports.WorkerRetries, logr)
			reportQueue = jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
				Workers:    cfg.Reports.WorkerConcurrency,
				MaxRetries: cfg.Reports.WorkerRetries,
				Logger:     logr,
			})
			reportQueue.Start(ctx)
			reportSvc = service.NewReportService(reportRepo, reportQueue, exportSvc, logr, service.ReportServiceConfig{
				ResultTTL:       cfg.Reports.SignedURLTTL,
				CleanupInterval: cfg.Reports.CleanupInterval,
				MaxRetries:      cfg.Reports.WorkerRetries,
			})
			reportSvc.RecoverPendingJobs(ctx)
			reportSvc.StartCleanup(ctx)
		}
	}

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	termHandler := handler.NewTermHandler(termSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	facultyHandler := handler.NewFacultyHandler(facultySvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	sectionHandler := handler.NewSectionHandler(sectionSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	templateHandler := handler.NewTemplateHandler(templateSvc)
	substitutionHandler := handler.NewSubstitutionHandler(substitutionSvc)
	transferHandler := handler.NewTransferCreditHandler(transferSvc)
	auditHandler := handler.NewDegreeAuditHandler(auditSvc)
	recommendationHandler := handler.NewRecommendationHandler(recommendationSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	var waitlistHandler *handler.WaitlistHandler
	if waitlistSvc != nil {
		waitlistHandler = handler.NewWaitlistHandler(waitlistSvc)
	}
	var reportHandler *handler.ReportHandler
	if reportSvc != nil {
		reportHandler = handler.NewReportHandler(reportSvc)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.POST("/auth/forgot-password", authHandler.ForgotPassword)
	api.POST("/auth/reset-password", authHandler.ResetPassword)

	// Download links carry their own signed token, so no session.
	if reportHandler != nil {
		api.GET("/export/:token", reportHandler.Download)
	}

	registrar := middleware.RequireRoles(models.RoleRegistrar)
	staff := middleware.RequireRoles(models.RoleRegistrar, models.RoleAdvisor)
	grader := middleware.RequireRoles(models.RoleRegistrar, models.RoleFaculty)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	protected.POST("/auth/logout", authHandler.Logout)
	protected.POST("/auth/change-password", authHandler.ChangePassword)
	protected.GET("/auth/me", authHandler.Me)

	users := protected.Group("/users", registrar)
	{
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
		users.POST("", userHandler.Create)
		users.PUT("/:id", userHandler.Update)
		users.DELETE("/:id", userHandler.Delete)
	}

	protected.GET("/audit-logs", registrar, userHandler.AuditLogs)

	terms := protected.Group("/terms")
	{
		terms.GET("", termHandler.List)
		terms.GET("/current", termHandler.Current)
		terms.GET("/:id", termHandler.Get)
		terms.POST("", registrar, termHandler.Create)
		terms.PUT("/:id", registrar, termHandler.Update)
		terms.POST("/:id/activate", registrar, termHandler.Activate)
		terms.PUT("/:id/registration", registrar, termHandler.SetRegistration)
	}

	protected.GET("/subjects", subjectHandler.List)
	protected.POST("/subjects", registrar, subjectHandler.Create)

	courses := protected.Group("/courses")
	{
		courses.GET("", courseHandler.List)
		courses.GET("/:id", courseHandler.Detail)
		courses.POST("", registrar, courseHandler.Create)
		courses.PUT("/:id", registrar, courseHandler.Update)
		courses.GET("/:id/prerequisites", courseHandler.Prerequisites)
		courses.PUT("/:id/prerequisites", registrar, courseHandler.ReplacePrerequisites)
	}

	instructors := protected.Group("/faculty")
	{
		instructors.GET("", facultyHandler.List)
		instructors.GET("/:id", facultyHandler.Get)
		instructors.GET("/:id/detail", facultyHandler.Detail)
		instructors.POST("", registrar, facultyHandler.Create)
		instructors.PUT("/:id", registrar, facultyHandler.Update)
		instructors.DELETE("/:id", registrar, facultyHandler.Delete)
	}

	students := protected.Group("/students")
	{
		students.GET("", staff, studentHandler.List)
		students.GET("/number/:number", staff, studentHandler.GetByNumber)
		students.GET("/:id", studentHandler.Get)
		students.GET("/:id/detail", studentHandler.Detail)
		students.POST("", registrar, studentHandler.Create)
		students.PUT("/:id", registrar, studentHandler.Update)
		students.DELETE("/:id", registrar, studentHandler.Delete)
		students.PUT("/:id/advisor", registrar, studentHandler.AssignAdvisor)
		students.GET("/:id/history", enrollmentHandler.History)
		students.GET("/:id/transcript", gradeHandler.Transcript)
		students.GET("/:id/substitutions", substitutionHandler.List)
		students.GET("/:id/transfer-credits", transferHandler.List)
		if cfg.Audit.Enabled {
			students.GET("/:id/audit", auditHandler.Latest)
			students.GET("/:id/audit/:templateId", auditHandler.Stored)
		}
		if cfg.Recommendation.Enabled {
			students.GET("/:id/recommendations", recommendationHandler.NextCourses)
			students.GET("/:id/sequence", recommendationHandler.Sequence)
			students.GET("/:id/compare", recommendationHandler.Compare)
			students.GET("/:id/paths/:requirementId", recommendationHandler.ConditionalPaths)
		}
		if waitlistHandler != nil {
			students.GET("/:id/waitlists", waitlistHandler.StudentQueues)
		}
	}

	sections := protected.Group("/sections")
	{
		sections.GET("", sectionHandler.List)
		sections.GET("/:id", sectionHandler.Get)
		sections.POST("", registrar, sectionHandler.Create)
		sections.PUT("/:id", registrar, sectionHandler.Update)
		sections.GET("/:id/roster", grader, enrollmentHandler.Roster)
		sections.GET("/:id/grade-distribution", grader, gradeHandler.Distribution)
		if waitlistHandler != nil {
			sections.GET("/:id/waitlist", waitlistHandler.SectionQueue)
			sections.POST("/:id/waitlist/promote", registrar,
				middleware.Audit(userRepo, models.AuditActionWaitlistPromote, "waitlist"), waitlistHandler.Promote)
		}
	}

	enrollments := protected.Group("/enrollments")
	{
		enrollments.GET("", staff, enrollmentHandler.List)
		enrollments.POST("", middleware.Audit(userRepo, models.AuditActionEnroll, "enrollment"), enrollmentHandler.Create)
		enrollments.DELETE("/:id", middleware.Audit(userRepo, models.AuditActionDrop, "enrollment"), enrollmentHandler.Drop)
	}

	protected.POST("/grades/finalize", grader,
		middleware.Audit(userRepo, models.AuditActionGradeFinalize, "grade"), gradeHandler.Finalize)

	templates := protected.Group("/templates")
	{
		templates.GET("", templateHandler.List)
		templates.GET("/active/:degreeCode", templateHandler.Active)
		templates.GET("/:id", templateHandler.Get)
		templates.POST("", registrar, templateHandler.Create)
		templates.POST("/:id/expire", registrar, templateHandler.Expire)
		if cfg.Audit.Enabled {
			templates.GET("/:id/validate", staff, auditHandler.ValidateTemplate)
		}
	}

	substitutions := protected.Group("/substitutions", staff)
	{
		substitutions.POST("",
			middleware.Audit(userRepo, models.AuditActionSubstitution, "substitution"), substitutionHandler.Create)
		substitutions.POST("/:id/expire",
			middleware.Audit(userRepo, models.AuditActionSubstitution, "substitution"), substitutionHandler.Expire)
	}

	transfers := protected.Group("/transfer-credits")
	{
		transfers.POST("", staff, transferHandler.Submit)
		transfers.POST("/:id/decision", registrar,
			middleware.Audit(userRepo, models.AuditActionTransferDecide, "transfer_credit"), transferHandler.Decide)
	}

	if cfg.Audit.Enabled {
		audits := protected.Group("/audits")
		{
			audits.POST("/run", middleware.Audit(userRepo, models.AuditActionDegreeAudit, "degree_audit"), auditHandler.Run)
			audits.GET("/eligible", staff, auditHandler.Eligible)
		}
	}

	if waitlistHandler != nil {
		waitlists := protected.Group("/waitlists")
		{
			waitlists.POST("", waitlistHandler.Join)
			waitlists.GET("/:id", waitlistHandler.Standing)
			waitlists.DELETE("/:id", waitlistHandler.Leave)
			waitlists.PUT("/:id/priority", registrar, waitlistHandler.OverridePriority)
		}
	}

	if reportHandler != nil {
		// The service narrows faculty to section-scoped report types.
		exporter := middleware.RequireRoles(models.RoleRegistrar, models.RoleAdvisor, models.RoleFaculty)
		reports := protected.Group("/reports")
		{
			reports.POST("", exporter, reportHandler.Create)
			reports.GET("", reportHandler.List)
			reports.GET("/:id", reportHandler.Status)
		}
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		sugar.Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	sugar.Infow("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("server shutdown failed", "error", err)
	}
	if reportQueue != nil {
		reportQueue.Stop()
	}
	if n := notifications.Pending(); n > 0 {
		sugar.Warnw("dropping undelivered mail at shutdown", "pending", n)
	}
	notifications.Stop()
	if err := publisher.Close(); err != nil {
		sugar.Warnw("event publisher close failed", "error", err)
	}
	sugar.Infow("server stopped")
}
