package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gamification-ledger/config"
	"gamification-ledger/database"
	"gamification-ledger/handlers"
	"gamification-ledger/logger"
	"gamification-ledger/middleware"
	"gamification-ledger/services"
	"gamification-ledger/utils"
	"gamification-ledger/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logg, err := logger.New(cfg.App.LogMode)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logg.Fatal("failed to connect to database", "error", err)
	}
	if err := database.Migrate(db); err != nil {
		logg.Fatal("failed to migrate database", "error", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logg.Fatal("failed to reach redis", "addr", cfg.Redis.Addr, "error", err)
		}
		defer rdb.Close()
	}

	clock := services.NewClock(cfg.Location())

	var locker services.Locker = services.NewKeyedMutex()
	if rdb != nil {
		locker = services.NewRedisLocker(rdb, cfg.Redis.LockTTL)
	}

	profileService := services.NewProfileService(db, logg)
	streakService := services.NewStreakService(db, logg, clock, cfg.Gamification.RepairWindowDays)
	missionService := services.NewMissionService(db, logg, clock, profileService, locker, cfg.Gamification.DailyMissionCount)
	eventLogService := services.NewEventLogService(db, logg)
	catalogService := services.NewCatalogService(db, logg)

	if cfg.Gamification.CatalogSeedPath != "" {
		if _, err := catalogService.SeedFromFile(ctx, cfg.Gamification.CatalogSeedPath); err != nil {
			logg.Fatal("failed to seed catalog", "path", cfg.Gamification.CatalogSeedPath, "error", err)
		}
	}

	var archiveService *services.ArchiveService
	if cfg.Archive.Enabled {
		store, err := utils.NewR2Store(ctx, utils.R2Options{
			AccountID:       cfg.Archive.AccountID,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			AccessKeySecret: cfg.Archive.AccessKeySecret,
			Bucket:          cfg.Archive.Bucket,
			Endpoint:        cfg.Archive.Endpoint,
		})
		if err != nil {
			logg.Fatal("failed to initialize R2 client", "error", err)
		}
		archiveService = services.NewArchiveService(db, logg, clock, store)
	}

	if cfg.Scheduler.Enabled {
		sched, err := services.NewLedgerScheduler(logg, cfg.Location(), streakService, missionService, archiveService)
		if err != nil {
			logg.Fatal("failed to create scheduler", "error", err)
		}
		if err := sched.Start(ctx, services.SchedulerOptions{
			StreakSweepCron: cfg.Scheduler.StreakSweepCron,
			ExpiryInterval:  cfg.Scheduler.ExpiryInterval,
			ArchiveCron:     cfg.Scheduler.ArchiveCron,
		}); err != nil {
			logg.Fatal("failed to start scheduler", "error", err)
		}
		defer func() { _ = sched.Shutdown() }()
	}

	if cfg.AMQP.URL != "" {
		var dedupe workers.Deduper
		if rdb != nil {
			dedupe = workers.NewRedisDeduper(rdb, cfg.Redis.DedupeTTL)
		} else {
			lruDedupe, err := workers.NewLRUDeduper(100_000)
			if err != nil {
				logg.Fatal("failed to build dedupe cache", "error", err)
			}
			dedupe = lruDedupe
		}

		conn, ch, err := workers.Connect(cfg.AMQP.URL, cfg.AMQP.Queue)
		if err != nil {
			logg.Fatal("failed to connect to broker", "error", err)
		}
		defer conn.Close()

		consumer := workers.NewActivityConsumer(profileService, streakService, missionService, dedupe, logg)
		if _, err := consumer.Start(ctx, ch, cfg.AMQP.Queue, cfg.AMQP.Consumers); err != nil {
			logg.Fatal("failed to start activity consumer", "error", err)
		}
	}

	if cfg.ProfileSync.Enabled {
		syncWorker := workers.NewProfileSyncWorker(
			profileService, logg,
			cfg.ProfileSync.BaseURL, cfg.ProfileSync.EndpointPath, cfg.ProfileSync.ServiceToken,
			cfg.ProfileSync.Interval,
		)
		syncWorker.Start(ctx)
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})

	// Only Gateway requests allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.Gateway.ServiceToken, logg))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Gateway.AllowedOrigins, ","),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Service-Token, X-User-ID, X-User-Roles",
		MaxAge:       86400,
	}))

	handlers.SetupGamificationRoutes(app, handlers.LedgerServices{
		Profiles: profileService,
		Streaks:  streakService,
		Missions: missionService,
		Events:   eventLogService,
	}, logg)
	handlers.SetupCatalogRoutes(app, catalogService, eventLogService, logg)

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.App.Port)); err != nil {
			logg.Error("server error", "error", err)
		}
	}()
	logg.Info("server running", "port", cfg.App.Port, "timezone", cfg.App.Timezone, "driver", cfg.Database.Driver)

	<-ctx.Done()
	logg.Info("shutting down server")
	_ = app.Shutdown()
}
