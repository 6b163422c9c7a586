package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	SummaryCacheTTL       time.Duration
	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string
	LogMode               string
	ResumeRetentionDays   int
	ResumePurgeSchedule   string
}

const (
	defaultSummaryTTLSeconds = 60
	defaultTokenTTLMinutes   = 480
	// every day at 03:00; robfig/cron v1 specs carry a seconds field
	defaultPurgeSchedule = "0 0 3 * * *"
)

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	summaryTTL := positiveInt("SUMMARY_CACHE_TTL_SECONDS", defaultSummaryTTLSeconds)
	tokenTTL := positiveInt("ACCESS_TOKEN_TTL_MINUTES", defaultTokenTTLMinutes)

	// zero disables the scheduled purge
	retention, err := strconv.Atoi(getEnv("RESUME_RETENTION_DAYS", "0"))
	if err != nil || retention < 0 {
		retention = 0
	}

	return Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisAddr:             strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		SummaryCacheTTL:       time.Duration(summaryTTL) * time.Second,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		ManagerPIN:            strings.TrimSpace(os.Getenv("MANAGER_PIN")),
		LogMode:               getEnv("LOG_MODE", "dev"),
		ResumeRetentionDays:   retention,
		ResumePurgeSchedule:   getEnv("RESUME_PURGE_SCHEDULE", defaultPurgeSchedule),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
