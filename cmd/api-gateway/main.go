package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/lessonloop/lessonloop-api/api/swagger"
	"github.com/lessonloop/lessonloop-api/internal/gateway"
	"github.com/lessonloop/lessonloop-api/internal/handler"
	"github.com/lessonloop/lessonloop-api/internal/middleware"
	"github.com/lessonloop/lessonloop-api/internal/repository"
	"github.com/lessonloop/lessonloop-api/internal/service"
	"github.com/lessonloop/lessonloop-api/pkg/cache"
	"github.com/lessonloop/lessonloop-api/pkg/config"
	"github.com/lessonloop/lessonloop-api/pkg/database"
	"github.com/lessonloop/lessonloop-api/pkg/logger"
	corsmiddleware "github.com/lessonloop/lessonloop-api/pkg/middleware/cors"
	reqidmiddleware "github.com/lessonloop/lessonloop-api/pkg/middleware/requestid"
)

// @title LessonLoop API
// @version 0.1.0
// @description Lesson booking and availability scheduling service
// @BasePath /
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	bookingRepo := repository.NewBookingRepository(db)
	packageRepo := repository.NewPackageRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)

	var calendar gateway.CalendarGateway = gateway.NopCalendar{}
	if cfg.Calendar.Enabled {
		calendar = gateway.NewHTTPCalendar(cfg.Calendar)
	}
	var notifier gateway.NotificationGateway = gateway.NopNotifier{}
	if cfg.Notifications.Enabled {
		notifier = gateway.NewRedisNotifier(redisClient, cfg.Notifications.Stream)
	}

	metricsSvc := service.NewMetricsService()

	planner := service.NewSlotPlanner(cfg.Booking.SlotGranularity)
	slotSvc := service.NewSlotService(availabilityRepo, bookingRepo, calendar, planner, redisClient, cfg.SlotCache, cfg.Booking.BookingBuffer, metricsSvc, logr)
	ledger := service.NewCreditLedger(packageRepo, cfg.Booking.RefundToOriginalPackage, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, bookingRepo, logr)
	dispatcher := service.NewOutboundDispatcher(calendar, notifier, bookingRepo, cfg.Jobs, metricsSvc, logr)
	bookingSvc := service.NewBookingService(db, bookingRepo, availabilityRepo, ledger, attendanceSvc, dispatcher, slotSvc, validate, logr)
	availabilitySvc := service.NewAvailabilityService(availabilityRepo, slotSvc, validate, logr)

	dispatcherCtx, stopDispatcher := context.WithCancel(context.Background())
	dispatcher.Start(dispatcherCtx)

	bookingHandler := handler.NewBookingHandler(bookingSvc, attendanceSvc, metricsSvc)
	slotHandler := handler.NewSlotHandler(slotSvc)
	availabilityHandler := handler.NewAvailabilityHandler(availabilitySvc)
	studentHandler := handler.NewStudentHandler(ledger, attendanceSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db, redisClient)

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
	{
		api.GET("/teachers/:id/slots", slotHandler.Plan)

		api.GET("/teachers/:id/availability", availabilityHandler.List)
		api.POST("/teachers/:id/availability", availabilityHandler.Create)
		api.PUT("/teachers/:id/availability/:windowId", availabilityHandler.Update)
		api.DELETE("/teachers/:id/availability/:windowId", availabilityHandler.Deactivate)

		api.POST("/bookings", bookingHandler.Create)
		api.GET("/bookings", bookingHandler.List)
		api.GET("/bookings/:id", bookingHandler.Get)
		api.POST("/bookings/:id/cancel", bookingHandler.Cancel)
		api.POST("/bookings/:id/reschedule", bookingHandler.Reschedule)
		api.POST("/bookings/:id/attendance", bookingHandler.MarkAttendance)
		api.GET("/bookings/:id/attendance", bookingHandler.AttendanceLog)
		api.POST("/bookings/:id/calendar-sync", bookingHandler.RetryCalendarSync)

		api.GET("/students/:id/packages", studentHandler.Packages)
		api.GET("/students/:id/stats", studentHandler.Stats)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	serverErr := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logr.Sugar().Infow("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		logr.Sugar().Errorw("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}

	// Drain queued side effects before releasing the connections.
	dispatcher.Stop()
	stopDispatcher()

	logr.Sugar().Infow("server stopped")
}
