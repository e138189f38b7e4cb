package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               string
	ClubAPIURL         string
	ClubAPITimeout     time.Duration
	JWTSecret          string
	KeystorePath       string
	DefaultPhonePrefix string
	AppEnv             string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	clubAPIURL := getEnv("CLUB_API_URL", "")
	if clubAPIURL == "" {
		return nil, fmt.Errorf("CLUB_API_URL is required")
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		ClubAPIURL:         strings.TrimRight(clubAPIURL, "/"),
		ClubAPITimeout:     clubAPITimeout(),
		JWTSecret:          jwtSecret,
		KeystorePath:       getEnv("KEYSTORE_PATH", "keystore.db"),
		DefaultPhonePrefix: getEnv("DEFAULT_PHONE_PREFIX", "+216"),
		AppEnv:             normalizeEnv(getEnv("APP_ENV", "production")),
	}, nil
}

// clubAPITimeout clamps the collaborator timeout to 5–15s so a misconfigured
// value can neither hang the draft nor starve slow mobile networks.
func clubAPITimeout() time.Duration {
	seconds := getEnvInt("CLUB_API_TIMEOUT_SECONDS", 10)
	if seconds < 5 {
		seconds = 5
	}
	if seconds > 15 {
		seconds = 15
	}
	return time.Duration(seconds) * time.Second
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}
