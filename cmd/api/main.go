package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/school-control-api/api/swagger"
	"github.com/noah-isme/school-control-api/internal/handler"
	"github.com/noah-isme/school-control-api/internal/middleware"
	"github.com/noah-isme/school-control-api/internal/models"
	"github.com/noah-isme/school-control-api/internal/repository"
	"github.com/noah-isme/school-control-api/internal/service"
	"github.com/noah-isme/school-control-api/pkg/config"
	"github.com/noah-isme/school-control-api/pkg/database"
	"github.com/noah-isme/school-control-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/school-control-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/school-control-api/pkg/middleware/requestid"
)

// @title School Control API
// @version 0.1.0
// @description Role-based school management backend
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)
	gradeRepo := repository.NewGradeRepository(db)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, validate, logr, metricsSvc)
	subjectSvc := service.NewSubjectService(subjectRepo, enrollmentRepo, validate, logr, metricsSvc)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, subjectRepo, userRepo, validate, logr, metricsSvc)
	evaluationSvc := service.NewEvaluationService(evaluationRepo, subjectRepo, enrollmentRepo, validate, logr, metricsSvc)
	gradeSvc := service.NewGradeService(gradeRepo, evaluationRepo, userRepo, validate, logr, metricsSvc)
	reportSvc := service.NewReportService(subjectRepo, gradeRepo, logr, metricsSvc)

	authHandler := handler.NewAuthHandler(authSvc, metricsSvc)
	userHandler := handler.NewUserHandler(userSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	evaluationHandler := handler.NewEvaluationHandler(evaluationSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.GET("/auth/me", authHandler.Me)

	authed.GET("/users", userHandler.List)
	authed.POST("/users", middleware.RequireRoles(models.RoleAdmin), userHandler.Create)
	authed.GET("/users/:id", userHandler.Get)
	authed.PUT("/users/:id", userHandler.Update)

	authed.GET("/subjects", subjectHandler.List)
	authed.POST("/subjects", subjectHandler.Create)
	authed.GET("/subjects/:id", subjectHandler.Get)
	authed.PUT("/subjects/:id", subjectHandler.Update)
	authed.DELETE("/subjects/:id", subjectHandler.Delete)
	authed.GET("/subjects/:id/report", reportHandler.SubjectGrades)

	authed.GET("/enrollments", enrollmentHandler.List)
	authed.POST("/enrollments", enrollmentHandler.Create)
	authed.GET("/enrollments/:id", enrollmentHandler.Get)
	authed.PUT("/enrollments/:id", enrollmentHandler.Update)
	authed.DELETE("/enrollments/:id", enrollmentHandler.Delete)

	authed.GET("/evaluations", evaluationHandler.List)
	authed.POST("/evaluations", evaluationHandler.Create)
	authed.GET("/evaluations/:id", evaluationHandler.Get)
	authed.PUT("/evaluations/:id", evaluationHandler.Update)
	authed.DELETE("/evaluations/:id", evaluationHandler.Delete)

	authed.GET("/grades", gradeHandler.List)
	authed.POST("/grades", gradeHandler.Create)
	authed.GET("/grades/:id", gradeHandler.Get)
	authed.PUT("/grades/:id", gradeHandler.Update)
	authed.DELETE("/grades/:id", gradeHandler.Delete)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
