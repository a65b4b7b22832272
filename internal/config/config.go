package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Telegram TelegramConfig
	Database DatabaseConfig
	Redis    RedisConfig
	TTS      TTSConfig
	Billing  BillingConfig
	Admin    AdminConfig
}

type TelegramConfig struct {
	BotToken       string
	APIBaseURL     string
	PollInterval   time.Duration
	TriggerHashtag string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type TTSConfig struct {
	EngineURL      string
	Voice          string
	SpeakingRate   float64
	RequestTimeout time.Duration
	WorkerCount    int
	MaxRetries     int
	MaxChunkLength int
}

type BillingConfig struct {
	FreeTierMonthlyLimit  int
	PaidMonthlyPriceCents int
	Currency              string
	ManualCardNumber      string
	ManualCardHolder      string
}

type AdminConfig struct {
	HTTPPort     string
	JWTSecret    string
	JWTExpiry    time.Duration
	Username     string
	PasswordHash string
	TelegramIDs  []int64
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	pollSeconds, _ := strconv.Atoi(getEnv("TELEGRAM_POLL_SECONDS", "2"))
	engineTimeout, _ := strconv.Atoi(getEnv("TTS_TIMEOUT_SECONDS", "60"))
	workerCount, _ := strconv.Atoi(getEnv("TTS_WORKER_COUNT", "4"))
	maxRetries, _ := strconv.Atoi(getEnv("TTS_MAX_RETRIES", "3"))
	maxChunk, _ := strconv.Atoi(getEnv("TTS_MAX_CHUNK_LENGTH", "3000"))
	speakingRate, _ := strconv.ParseFloat(getEnv("TTS_SPEAKING_RATE", "1.0"), 64)
	freeLimit, _ := strconv.Atoi(getEnv("FREE_TIER_MONTHLY_LIMIT", "3"))
	paidPrice, _ := strconv.Atoi(getEnv("PAID_MONTHLY_PRICE_CENTS", "1000"))
	jwtExpiry, _ := strconv.Atoi(getEnv("ADMIN_JWT_EXPIRATION", "3600"))

	return &Config{
		Telegram: TelegramConfig{
			BotToken:       getEnv("TELEGRAM_BOT_TOKEN", ""),
			APIBaseURL:     getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
			PollInterval:   time.Duration(pollSeconds) * time.Second,
			TriggerHashtag: normalizeHashtag(getEnv("TRIGGER_HASHTAG", "#audio")),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "uz_tts"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		TTS: TTSConfig{
			EngineURL:      getEnv("TTS_ENGINE_URL", "http://localhost:5002"),
			Voice:          getEnv("TTS_VOICE", "uzb-script_cyrillic"),
			SpeakingRate:   speakingRate,
			RequestTimeout: time.Duration(engineTimeout) * time.Second,
			WorkerCount:    workerCount,
			MaxRetries:     maxRetries,
			MaxChunkLength: maxChunk,
		},
		Billing: BillingConfig{
			FreeTierMonthlyLimit:  freeLimit,
			PaidMonthlyPriceCents: paidPrice,
			Currency:              getEnv("BILLING_CURRENCY", "USD"),
			ManualCardNumber:      getEnv("MANUAL_PAYMENT_CARD_NUMBER", ""),
			ManualCardHolder:      getEnv("MANUAL_PAYMENT_CARD_HOLDER", ""),
		},
		Admin: AdminConfig{
			HTTPPort:     getEnv("ADMIN_HTTP_PORT", "8080"),
			JWTSecret:    getEnv("ADMIN_JWT_SECRET", ""),
			JWTExpiry:    time.Duration(jwtExpiry) * time.Second,
			Username:     getEnv("ADMIN_USERNAME", "admin"),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			TelegramIDs:  parseIDList(getEnv("ADMIN_TELEGRAM_IDS", "")),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeHashtag(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "#audio"
	}
	if !strings.HasPrefix(tag, "#") {
		return "#" + tag
	}
	return tag
}

func parseIDList(raw string) []int64 {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
