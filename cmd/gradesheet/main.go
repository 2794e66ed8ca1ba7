package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/gradesheet-api/api/swagger"
	"github.com/noah-isme/gradesheet-api/internal/handler"
	internalmiddleware "github.com/noah-isme/gradesheet-api/internal/middleware"
	"github.com/noah-isme/gradesheet-api/internal/models"
	"github.com/noah-isme/gradesheet-api/internal/repository"
	"github.com/noah-isme/gradesheet-api/internal/service"
	"github.com/noah-isme/gradesheet-api/pkg/cache"
	"github.com/noah-isme/gradesheet-api/pkg/config"
	"github.com/noah-isme/gradesheet-api/pkg/jobs"
	"github.com/noah-isme/gradesheet-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/gradesheet-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/gradesheet-api/pkg/middleware/requestid"
	"github.com/noah-isme/gradesheet-api/pkg/storage"
)

// @title Grade Sheet API
// @version 1.0.0
// @description Server-side grade sheet editing sessions: grade entry, aggregation, clipboard import, exports and save to the school backend.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type sessionRepository interface {
	Get(ctx context.Context, id string) (*models.SheetSnapshot, error)
	Save(ctx context.Context, snap *models.SheetSnapshot, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
	io.Closer
}

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions, err := newSessionRepository(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to init session store", zap.Error(err))
	}
	defer sessions.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	backend := service.NewBackendClient(cfg.Backend, metrics, logr.Named("backend"))

	var (
		exportSvc *service.ExportService
		exporter  service.SheetExporter
		cleaner   service.ExportCleaner
	)
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Fatal("failed to init export storage", zap.Error(err))
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc = service.NewExportService(store, signer, service.ExportConfig{
			APIPrefix:    cfg.APIPrefix,
			ResultTTL:    cfg.Exports.SignedURLTTL,
			CSVSeparator: csvSeparator(cfg.Exports.CSVSeparator),
		}, logr.Named("exports"))
		exporter, cleaner = exportSvc, exportSvc
	}

	sheets := service.NewGradeSheetService(sessions, backend, exporter, validator.New(), metrics, logr.Named("gradesheet"), service.GradeSheetConfig{
		Options: models.SheetOptions{
			EmptyAverage:  models.EmptyAveragePolicy(cfg.GradeSheet.EmptyAverage),
			ColumnFloor:   cfg.GradeSheet.ColumnFloor,
			ClampOnCommit: cfg.GradeSheet.ClampOnCommit,
			DecimalComma:  cfg.GradeSheet.DecimalComma,
		},
		SessionTTL: cfg.Sessions.TTL,
	})

	queue := jobs.NewQueue("maintenance", jobs.QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: 30 * time.Second, Logger: logr})
	maintenance := service.NewMaintenanceService(queue, sheets, cleaner, logr.Named("maintenance"))
	queue.Start(ctx)
	defer queue.Stop()
	queue.Every(ctx, cfg.Sessions.PurgeInterval, service.JobPurgeSessions)
	if cfg.Exports.Enabled {
		queue.Every(ctx, cfg.Exports.CleanupInterval, service.JobCleanupExports)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, sheets)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	if exportSvc != nil {
		api.GET("/exports/download", handler.NewExportHandler(exportSvc).Download)
	}

	secured := api.Group("")
	if cfg.JWT.Enabled {
		tokens := service.NewTokenService(cfg.JWT.Secret)
		secured.Use(internalmiddleware.JWT(tokens), internalmiddleware.RequireRoles(models.RoleTeacher, models.RoleAdmin))
	} else {
		logr.Warn("authentication disabled; all callers share one anonymous identity")
	}

	sheetHandler := handler.NewGradeSheetHandler(sheets)
	audit := func(action string) gin.HandlerFunc { return internalmiddleware.Audit(logr, action) }

	sheetRoutes := secured.Group("/sheets")
	sheetRoutes.POST("", audit("gradesheet.open"), sheetHandler.Open)
	sheetRoutes.GET("/:id", sheetHandler.Get)
	sheetRoutes.GET("/:id/table", sheetHandler.Table)
	sheetRoutes.DELETE("/:id", audit("gradesheet.discard"), sheetHandler.Discard)
	sheetRoutes.POST("/:id/columns/:competency", audit("gradesheet.column.add"), sheetHandler.AddColumn)
	sheetRoutes.DELETE("/:id/columns/:competency", audit("gradesheet.column.remove"), sheetHandler.RemoveColumn)
	sheetRoutes.PUT("/:id/columns/:competency/:index/description", sheetHandler.SetDescription)
	sheetRoutes.PUT("/:id/entries", sheetHandler.SetEntry)
	sheetRoutes.POST("/:id/entries/commit", sheetHandler.CommitEntry)
	sheetRoutes.PUT("/:id/students/:studentId/attendance", sheetHandler.SetAttendance)
	sheetRoutes.POST("/:id/students/:studentId/attendance/sync", audit("gradesheet.attendance.sync"), sheetHandler.SyncAttendance)
	sheetRoutes.PUT("/:id/weights", audit("gradesheet.weights"), sheetHandler.SetWeights)
	sheetRoutes.POST("/:id/paste", audit("gradesheet.paste"), sheetHandler.Paste)
	sheetRoutes.POST("/:id/save", audit("gradesheet.save"), sheetHandler.Save)
	sheetRoutes.POST("/:id/exports", audit("gradesheet.export"), sheetHandler.Export)

	if cfg.JWT.Enabled {
		admin := secured.Group("/admin", internalmiddleware.RequireRoles(models.RoleAdmin))
		admin.POST("/maintenance/:job", audit("maintenance.trigger"), handler.NewMaintenanceHandler(maintenance).Trigger)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("session_store", cfg.Sessions.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logr.Fatal("server failed", zap.Error(err))
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("could not stop server gracefully", zap.Error(err))
		_ = srv.Close()
	}
}

func newSessionRepository(ctx context.Context, cfg *config.Config, logr *zap.Logger) (sessionRepository, error) {
	if cfg.Sessions.Store != config.SessionStoreRedis {
		return repository.NewMemorySessionRepository(), nil
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	return repository.NewRedisSessionRepository(client, logr.Named("sessions")), nil
}

func csvSeparator(raw string) rune {
	r, _ := utf8.DecodeRuneInString(raw)
	if r == utf8.RuneError {
		return ','
	}
	return r
}
