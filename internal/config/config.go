package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	AllowedOrigin string
	DataDir       string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ERPZoneURL            string
	ERPHostPattern        string
	ERPSandboxHostPattern string
	ERPSyncInterval       time.Duration
}

func Load() Config {
	// Optional .env for local development. Missing file is fine.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	syncMinutes, err := strconv.Atoi(getEnv("ERP_SYNC_INTERVAL_MINUTES", "10"))
	if err != nil || syncMinutes < 1 {
		syncMinutes = 10
	}

	cfg := Config{
		Port:          getEnv("PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DataDir:       getEnv("DATA_DIR", "data"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		ERPZoneURL:            os.Getenv("ERP_ZONE_URL"),
		ERPHostPattern:        os.Getenv("ERP_HOST_PATTERN"),
		ERPSandboxHostPattern: os.Getenv("ERP_SANDBOX_HOST_PATTERN"),
		ERPSyncInterval:       time.Duration(syncMinutes) * time.Minute,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
