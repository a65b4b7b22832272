package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Abdurazzoq789/uz-tts/internal/config"
	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
	"github.com/Abdurazzoq789/uz-tts/internal/domain/services"
	"github.com/Abdurazzoq789/uz-tts/internal/infrastructure/cache"
	"github.com/Abdurazzoq789/uz-tts/internal/infrastructure/database"
	"github.com/Abdurazzoq789/uz-tts/internal/infrastructure/queue"
	adminhttp "github.com/Abdurazzoq789/uz-tts/internal/interfaces/http"
	"github.com/Abdurazzoq789/uz-tts/internal/interfaces/telegram"
	"github.com/Abdurazzoq789/uz-tts/internal/normalizer"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if cfg.Telegram.BotToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is required")
	}

	db, err := database.NewPostgresConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "migrations"
	}
	if err := db.RunMigrations(migrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	userRepo := database.NewUserRepository(db)
	tariffRepo := database.NewTariffRepository(db)
	subRepo := database.NewSubscriptionRepository(db)
	paymentRepo := database.NewPaymentRepository(db)
	usageRepo := database.NewUsageRepository(db)
	jobRepo := database.NewJobRepository(db)

	jobQueue := queue.NewRedisQueue(redisClient.Client)
	audioCache := cache.NewAudioCache(redisClient)

	ledger := services.NewUsageLedger(usageRepo, logger)
	subService := services.NewSubscriptionService(subRepo, tariffRepo, paymentRepo, userRepo, logger)

	tgClient := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.APIBaseURL)
	sender := telegram.NewSender(tgClient)

	voice := models.VoiceParams{Voice: cfg.TTS.Voice, SpeakingRate: cfg.TTS.SpeakingRate}
	normOpts := normalizer.Options{
		TriggerHashtag: cfg.Telegram.TriggerHashtag,
		MaxChunkLength: cfg.TTS.MaxChunkLength,
	}

	dispatcher := services.NewDispatcher(
		userRepo, jobRepo, subService, ledger, audioCache, jobQueue, sender, voice, normOpts, logger)

	bot := telegram.NewBot(tgClient, dispatcher, subService, userRepo, cfg, logger)

	jwtService := services.NewJWTService(cfg.Admin.JWTSecret, cfg.Admin.JWTExpiry)
	authService := services.NewAuthService(cfg.Admin.Username, cfg.Admin.PasswordHash, jwtService)
	adminHandler := adminhttp.NewAdminHandler(authService, subService, userRepo, jobRepo, jobQueue.Depth)
	router := adminhttp.NewRouter(adminHandler, authService, db)

	srv := &http.Server{
		Addr:    ":" + cfg.Admin.HTTPPort,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Admin API listening on :%s ...", cfg.Admin.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start admin API: %v", err)
		}
	}()

	go bot.Run(ctx)

	<-ctx.Done()

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Printf("Admin API forced to shutdown: %v", err)
	}

	log.Println("Bot stopped cleanly.")
}
