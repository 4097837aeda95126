package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	StorageOneDrive = "onedrive"
	StorageS3       = "s3"
)

// Session store backends
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// Config holds all configuration for the application
type Config struct {
	// Server
	Port        string
	CORSOrigins []string
	Env         string

	// Drive (OAuth2 + file API)
	Drive DriveConfig

	// Storage backend for loan files
	StorageBackend string
	S3             S3Config

	// Sessions
	SessionStore string
	SessionTTL   time.Duration
	Redis        RedisConfig

	// Sync
	Sync SyncConfig

	// API rate limiting per session or client IP
	RateLimit RateLimitConfig

	// CLI token file
	TokenFile string
}

// DriveConfig holds the OAuth2 client and file API settings
type DriveConfig struct {
	ClientID     string
	Scopes       []string
	AuthorizeURL string
	TokenURL     string
	APIURL       string
	RedirectURL  string
	FolderName   string
	PageSize     int
	RateLimit    float64 // requests per second against the file API
}

// S3Config holds AWS S3 configuration
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // Optional: for MinIO/LocalStack local dev
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SyncConfig controls background upload of loan records
type SyncConfig struct {
	Debounce time.Duration
	AutoSync bool
}

// RateLimitConfig holds the API request budget per caller
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		Env:         getEnv("ENV", "development"),
		Drive: DriveConfig{
			ClientID:     getEnv("DRIVE_CLIENT_ID", ""),
			Scopes:       strings.Fields(getEnv("DRIVE_SCOPES", "Files.ReadWrite offline_access")),
			AuthorizeURL: getEnv("DRIVE_AUTHORIZE_URL", "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"),
			TokenURL:     getEnv("DRIVE_TOKEN_URL", "https://login.microsoftonline.com/common/oauth2/v2.0/token"),
			APIURL:       strings.TrimRight(getEnv("DRIVE_API_URL", "https://graph.microsoft.com/v1.0"), "/"),
			RedirectURL:  getEnv("DRIVE_REDIRECT_URL", "http://localhost:8080/api/login-callback"),
			FolderName:   getEnv("DRIVE_FOLDER_NAME", "loan_records"),
			PageSize:     getEnvInt("DRIVE_PAGE_SIZE", 20),
			RateLimit:    getEnvFloat("DRIVE_RATE_LIMIT", 10),
		},
		StorageBackend: getEnv("STORAGE_BACKEND", StorageOneDrive),
		S3: S3Config{
			Region:          getEnv("S3_REGION", "us-east-1"),
			Bucket:          getEnv("S3_BUCKET", "loansync-records"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""), // Empty = use AWS, set for MinIO/LocalStack
		},
		SessionStore: getEnv("SESSION_STORE", SessionStoreMemory),
		SessionTTL:   getEnvDuration("SESSION_TTL", 30*24*time.Hour),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Sync: SyncConfig{
			Debounce: getEnvDuration("SYNC_DEBOUNCE", 3*time.Second),
			AutoSync: getEnvBool("SYNC_AUTO", true),
		},
		RateLimit: RateLimitConfig{
			PerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 100),
			Burst:     getEnvInt("RATE_LIMIT_BURST", 10),
		},
		TokenFile: getEnv("TOKEN_FILE", defaultTokenFile()),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case StorageOneDrive:
		if c.Drive.ClientID == "" {
			return fmt.Errorf("DRIVE_CLIENT_ID is required")
		}
	case StorageS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q", StorageOneDrive, StorageS3)
	}
	if c.SessionStore != SessionStoreMemory && c.SessionStore != SessionStoreRedis {
		return fmt.Errorf("SESSION_STORE must be %q or %q", SessionStoreMemory, SessionStoreRedis)
	}
	if c.Drive.PageSize < 1 {
		return fmt.Errorf("DRIVE_PAGE_SIZE must be at least 1")
	}
	if c.RateLimit.PerMinute < 1 || c.RateLimit.Burst < 1 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE and RATE_LIMIT_BURST must be at least 1")
	}
	if c.Sync.Debounce <= 0 {
		return fmt.Errorf("SYNC_DEBOUNCE must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".loansync-tokens.json"
	}
	return filepath.Join(dir, "loansync", "tokens.json")
}
