package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"civic-task-engine/config"
	"civic-task-engine/handlers"
	"civic-task-engine/middleware"
	"civic-task-engine/models"
	"civic-task-engine/notifications"
	"civic-task-engine/services"
	"civic-task-engine/utils"
	"civic-task-engine/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	services.RegisterMetrics(reg)
	middleware.RegisterMetrics(reg)

	// Push delivery runs off the request path.
	sinks := notifications.Multi{notifications.LogSink{}}
	if cfg.FCM.Enabled() {
		fcm, err := notifications.NewFCMSink(ctx, cfg.FCM.ServiceAccountJSON, cfg.FCM.CredentialsFile)
		if err != nil {
			log.Printf("⚠️  FCM disabled: %v", err)
		} else {
			sinks = append(sinks, fcm)
		}
	}
	dispatcher := notifications.NewDispatcher(sinks, 4, 1000)
	defer dispatcher.Stop()

	clock := services.SystemClock{}
	badgeService := services.NewBadgeService(db, clock, dispatcher)
	if err := badgeService.SeedCatalog(ctx, models.DefaultBadges); err != nil {
		log.Fatal("failed to seed badge catalog:", err)
	}
	leaderboardService := services.NewLeaderboardService(db, clock)
	scoringService := services.NewScoringService(db, clock, badgeService, leaderboardService, dispatcher)
	submissionService := services.NewSubmissionService(db, clock, scoringService, cfg.OnDemandCooldown)
	assignmentScheduler := services.NewAssignmentScheduler(db, clock, dispatcher)
	rotationService := services.NewRotationService(db, clock)
	reminderService := services.NewReminderService(db, clock, dispatcher)
	userDirectory := services.NewUserDirectory(db)

	jobs, err := services.NewJobRunner(services.JobConfig{
		RotationInterval:    cfg.RotationInterval,
		LeaderboardInterval: cfg.LeaderboardInterval,
		ReminderHour:        cfg.StreakReminderHour,
	}, rotationService, leaderboardService, reminderService)
	if err != nil {
		log.Fatal("failed to create job runner:", err)
	}
	jobs.Start(ctx)

	var photos handlers.PhotoUploader
	var localPhotos *utils.LocalPhotoStore
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2PhotoStore(ctx, cfg.R2)
		if err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		photos = r2
	} else {
		localPhotos = &utils.LocalPhotoStore{Dir: "./uploads", BaseURL: "/uploads"}
		if err := localPhotos.EnsureUploadDir(); err != nil {
			log.Fatal("failed to ensure upload dir:", err)
		}
		photos = localPhotos
		log.Println("⚠️  R2 not configured, storing proof photos in ./uploads")
	}

	limiter := middleware.NewUserRateLimiter(cfg.SubmitRatePerMinute, cfg.SubmitBurst)
	go limiter.Cleanup(ctx.Done(), 10*time.Minute)

	if cfg.ProfileSyncURL != "" {
		syncWorker := workers.NewUserSyncWorker(userDirectory, cfg.ProfileSyncURL, "/api/v1/public/profiles", cfg.ServiceToken, cfg.ProfileSyncInterval)
		syncWorker.Start(ctx)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: utils.MaxPhotoBytes + 1<<20,
	})
	app.Use(recover.New())
	app.Use(middleware.MonitorMiddleware())

	// 🔐❗ GLOBAL: only Gateway requests allowed, except probes
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, "/healthz", "/metrics"))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	handlers.SetupRoutes(app, handlers.Engine{
		Users:         userDirectory,
		Assignments:   assignmentScheduler,
		Submissions:   submissionService,
		Badges:        badgeService,
		Leaderboard:   leaderboardService,
		Rotation:      rotationService,
		Photos:        photos,
		SubmitLimiter: limiter.Handler(),
	})
	if localPhotos != nil {
		app.Static(localPhotos.BaseURL, localPhotos.Dir)
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Printf("✅ Jobs scheduled: %s", strings.Join(jobs.Jobs(), ", "))
	log.Printf("✅ CORS configured for origins: %s", strings.Join(cfg.AllowedOrigins, ","))

	<-ctx.Done()
	log.Println("Shutting down server...")

	if err := jobs.Shutdown(); err != nil {
		log.Printf("scheduler shutdown: %v", err)
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
