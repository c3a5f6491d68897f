// Package config loads the engine settings from the environment.
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
	Port           string
	DatabaseURL    string
	ServiceToken   string
	AllowedOrigins []string

	RotationInterval    time.Duration
	LeaderboardInterval time.Duration
	StreakReminderHour  uint

	OnDemandCooldown    time.Duration
	SubmitRatePerMinute int
	SubmitBurst         int

	ProfileSyncURL      string
	ProfileSyncInterval time.Duration

	R2  R2Config
	FCM FCMConfig
}

// R2Config is the Cloudflare R2 bucket for proof photos. Uploads are disabled
// unless AccountID and Bucket are set.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

func (c R2Config) Enabled() bool { return c.AccountID != "" && c.Bucket != "" }

// FCMConfig holds Firebase credentials. Push is disabled when both are empty.
type FCMConfig struct {
	CredentialsFile    string
	ServiceAccountJSON string
}

func (c FCMConfig) Enabled() bool { return c.CredentialsFile != "" || c.ServiceAccountJSON != "" }

// Load reads .env when present, then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() *Config {
	return &Config{
		Port:           getEnv("PORT", "5200"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		ServiceToken:   os.Getenv("SERVICE_TOKEN"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		RotationInterval:    getDuration("ROTATION_INTERVAL", time.Hour),
		LeaderboardInterval: getDuration("LEADERBOARD_REFRESH_INTERVAL", 15*time.Minute),
		StreakReminderHour:  uint(getInt("STREAK_REMINDER_HOUR", 18, 0, 23)),

		OnDemandCooldown:    getDuration("ON_DEMAND_COOLDOWN", 0),
		SubmitRatePerMinute: getInt("SUBMIT_RATE_PER_MINUTE", 10, 1, 10000),
		SubmitBurst:         getInt("SUBMIT_BURST", 5, 1, 10000),

		ProfileSyncURL:      os.Getenv("PROFILE_SYNC_URL"),
		ProfileSyncInterval: getDuration("PROFILE_SYNC_INTERVAL", 5*time.Minute),

		R2: R2Config{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
			CDNBaseURL:      os.Getenv("CDN_BASE_URL"),
		},
		FCM: FCMConfig{
			CredentialsFile:    os.Getenv("FCM_CREDENTIALS_FILE"),
			ServiceAccountJSON: os.Getenv("FCM_SERVICE_ACCOUNT_JSON"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		log.Printf("⚠️  %s=%q is not a valid duration, using %s", key, raw, fallback)
		return fallback
	}
	return d
}

func getInt(key string, fallback, min, max int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		log.Printf("⚠️  %s=%q is out of range [%d, %d], using %d", key, raw, min, max, fallback)
		return fallback
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
