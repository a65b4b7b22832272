package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Abdurazzoq789/uz-tts/internal/config"
	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
	"github.com/Abdurazzoq789/uz-tts/internal/domain/services"
	"github.com/Abdurazzoq789/uz-tts/internal/infrastructure/cache"
	"github.com/Abdurazzoq789/uz-tts/internal/infrastructure/database"
	"github.com/Abdurazzoq789/uz-tts/internal/infrastructure/queue"
	"github.com/Abdurazzoq789/uz-tts/internal/interfaces/telegram"
	"github.com/Abdurazzoq789/uz-tts/internal/workers/synthesizer"
	"github.com/Abdurazzoq789/uz-tts/internal/workers/synthesizer/engines"
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

	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	userRepo := database.NewUserRepository(db)
	usageRepo := database.NewUsageRepository(db)
	jobRepo := database.NewJobRepository(db)

	jobQueue := queue.NewRedisQueue(redisClient.Client)
	audioCache := cache.NewAudioCache(redisClient)
	ledger := services.NewUsageLedger(usageRepo, logger)

	engine := engines.NewMMSEngine(cfg.TTS.EngineURL, cfg.TTS.RequestTimeout)
	sender := telegram.NewSender(telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.APIBaseURL))

	voice := models.VoiceParams{Voice: cfg.TTS.Voice, SpeakingRate: cfg.TTS.SpeakingRate}
	processor := synthesizer.NewProcessor(
		jobRepo, userRepo, jobQueue, engine, audioCache, ledger, sender,
		voice, cfg.TTS.WorkerCount, cfg.TTS.MaxRetries, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Synthesis worker starting with %d workers ...", cfg.TTS.WorkerCount)
	processor.Run(ctx)
	log.Println("Worker stopped cleanly.")
}
