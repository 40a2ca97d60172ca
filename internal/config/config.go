package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	BaseURL string
	Env     string

	// OAuth client used to refresh stored provider tokens.
	GoogleClientID     string
	GoogleClientSecret string

	// Chat provider API base (Slack-compatible). Overridable for tests.
	ChatAPIBaseURL string

	// AI analysis service. Optional: when AIKey is empty the engine runs
	// on the heuristic classifier alone.
	AIProvider string
	AIKey      string
	AIBaseURL  string

	// Aggregation pipeline tunables.
	WindowDays      int
	PollInterval    time.Duration
	SessionLifetime time.Duration

	// Cache namespace TTLs.
	MessagesTTL   time.Duration
	TokensTTL     time.Duration
	PriorityTTL   time.Duration
	ConnStatusTTL time.Duration

	// Resilience tunables.
	RetryMaxAttempts        int
	RetryBaseDelay          time.Duration
	RetryMaxDelay           time.Duration
	BreakerFailureThreshold uint32
	BreakerRecoveryTimeout  time.Duration
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:    GetEnv("PORT", "8080"),
		BaseURL: GetEnv("BASE_URL", "http://localhost:8080"),
		Env:     GetEnv("ENV", "development"),

		GoogleClientID:     GetEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: GetEnv("GOOGLE_CLIENT_SECRET", ""),

		ChatAPIBaseURL: GetEnv("CHAT_API_BASE_URL", "https://slack.com/api"),

		AIProvider: GetEnv("AI_PROVIDER", "openai"),
		AIKey:      GetEnv("AI_API_KEY", ""),
		AIBaseURL:  GetEnv("AI_BASE_URL", ""),

		WindowDays:      GetEnvInt("FETCH_WINDOW_DAYS", 7),
		PollInterval:    GetEnvSeconds("POLL_INTERVAL_SECONDS", 30),
		SessionLifetime: GetEnvSeconds("SESSION_LIFETIME_SECONDS", 600),

		MessagesTTL:   GetEnvSeconds("CACHE_MESSAGES_TTL_SECONDS", 300),
		TokensTTL:     GetEnvSeconds("CACHE_TOKENS_TTL_SECONDS", 3600),
		PriorityTTL:   GetEnvSeconds("CACHE_PRIORITY_TTL_SECONDS", 600),
		ConnStatusTTL: GetEnvSeconds("CACHE_CONNSTATUS_TTL_SECONDS", 900),

		RetryMaxAttempts:        GetEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:          GetEnvMillis("RETRY_BASE_DELAY_MS", 1000),
		RetryMaxDelay:           GetEnvMillis("RETRY_MAX_DELAY_MS", 10000),
		BreakerFailureThreshold: uint32(GetEnvInt("BREAKER_FAILURE_THRESHOLD", 5)),
		BreakerRecoveryTimeout:  GetEnvSeconds("BREAKER_RECOVERY_TIMEOUT_SECONDS", 30),
	}, nil
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(GetEnv(key, ""))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func GetEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(GetEnvInt(key, defaultValue)) * time.Second
}

func GetEnvMillis(key string, defaultValue int) time.Duration {
	return time.Duration(GetEnvInt(key, defaultValue)) * time.Millisecond
}

func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be positive")
	}
	if c.SessionLifetime <= 0 {
		return fmt.Errorf("SESSION_LIFETIME_SECONDS must be positive")
	}
	if c.WindowDays <= 0 {
		return fmt.Errorf("FETCH_WINDOW_DAYS must be positive")
	}
	if c.RetryMaxAttempts <= 0 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive")
	}
	return nil
}
