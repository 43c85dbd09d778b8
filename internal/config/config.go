package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend delivery modes
const (
	BackendModePerItem = "per_item"
	BackendModeBatch   = "batch"
)

// Storage types
const (
	StorageLocal = "local"
	StorageAzure = "azure"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	MaxUploadFileSize  int64
	MaxUploadFiles     int
	AllowedURLHosts    []string

	BackendURL         string
	BackendMode        string
	BackendConcurrency int
	BackendRateLimit   float64
	BackendTimeout     time.Duration

	StorageType           string
	StorageDir            string
	AzureStorageAccount   string
	AzureStorageKey       string
	AzureStorageContainer string

	DatabasePath string
	LogLevel     string
	GinMode      string
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// LoadDotEnv reads a .env file into the environment when one exists.
// Variables already set take precedence.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 512*1024*1024), // 50 x 10MB plus overhead
		MaxUploadFileSize:  parseIntOrDefault("MAX_UPLOAD_FILE_SIZE", 10*1024*1024),
		MaxUploadFiles:     int(parseIntOrDefault("MAX_UPLOAD_FILES", 50)),
		AllowedURLHosts:    parseListOrDefault("ALLOWED_URL_HOSTS", nil),

		BackendURL:         getEnvOrDefault("BACKEND_URL", "http://localhost:8000"),
		BackendMode:        strings.ToLower(getEnvOrDefault("BACKEND_MODE", BackendModePerItem)),
		BackendConcurrency: int(parseIntOrDefault("BACKEND_CONCURRENCY", 4)),
		BackendRateLimit:   parseFloatOrDefault("BACKEND_RATE_LIMIT", 0),
		BackendTimeout:     parseDurationOrDefault("BACKEND_TIMEOUT", 2*time.Minute),

		StorageType:           strings.ToLower(getEnvOrDefault("STORAGE_TYPE", StorageLocal)),
		StorageDir:            getEnvOrDefault("STORAGE_DIR", "./data/blobs"),
		AzureStorageAccount:   os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureStorageKey:       os.Getenv("AZURE_STORAGE_KEY"),
		AzureStorageContainer: getEnvOrDefault("AZURE_STORAGE_CONTAINER", "images"),

		DatabasePath: getEnvOrDefault("DATABASE_PATH", "./data/history.db"),
		LogLevel:     getEnvOrDefault("LOG_LEVEL", "info"),
		GinMode:      getEnvOrDefault("GIN_MODE", "release"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail late at runtime
func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.MaxUploadFileSize <= 0 || c.MaxUploadFiles <= 0 {
		return fmt.Errorf("upload limits must be > 0 (got size=%d, files=%d)", c.MaxUploadFileSize, c.MaxUploadFiles)
	}
	if c.RequestTimeout <= 0 || c.BackendTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, backend=%s)", c.RequestTimeout, c.BackendTimeout)
	}
	if strings.TrimSpace(c.BackendURL) == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	if c.BackendMode != BackendModePerItem && c.BackendMode != BackendModeBatch {
		return fmt.Errorf("invalid BACKEND_MODE: %q (want %s or %s)", c.BackendMode, BackendModePerItem, BackendModeBatch)
	}
	if c.BackendConcurrency <= 0 {
		return fmt.Errorf("BACKEND_CONCURRENCY must be > 0 (got %d)", c.BackendConcurrency)
	}
	if c.BackendRateLimit < 0 {
		return fmt.Errorf("BACKEND_RATE_LIMIT must be >= 0 (got %g)", c.BackendRateLimit)
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("invalid GIN_MODE: %q", c.GinMode)
	}
	switch c.StorageType {
	case StorageLocal:
		if strings.TrimSpace(c.StorageDir) == "" {
			return fmt.Errorf("STORAGE_DIR is required for local storage")
		}
	case StorageAzure:
		if c.AzureStorageAccount == "" || c.AzureStorageKey == "" {
			return fmt.Errorf("AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY are required for azure storage")
		}
	default:
		return fmt.Errorf("invalid STORAGE_TYPE: %q", c.StorageType)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
