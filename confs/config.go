package confs

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting of the relay. Values are read once at start.
type Config struct {
	Port      string
	GinMode   string
	LogLevel  string
	LogFormat string

	DeviceToken string
	UserToken   string
	APIToken    string

	MaxQueueSize     int
	MaxResultCache   int
	MaxEvents        int
	MaxFaces         int
	CommandTimeout   time.Duration
	OfflineThreshold time.Duration
	SweepInterval    time.Duration
	SignedURLTTL     time.Duration
	OffloadWorkers   int
	RelayDeviceID    string

	Storage StorageConfig
}

// StorageConfig describes the R2 (S3 compatible) bucket used for media.
// An empty AccountID or AccessKey selects the in-memory store.
type StorageConfig struct {
	AccountID string
	AccessKey string
	SecretKey string
	Bucket    string
	Endpoint  string
}

// Enabled reports whether remote object storage is configured.
func (s StorageConfig) Enabled() bool {
	return s.AccessKey != "" && s.Bucket != "" && (s.AccountID != "" || s.Endpoint != "")
}

// LoadConfig loads environment variables from a .env file if present.
func LoadConfig() error {
	// Load .env if it exists; ignore error if file not found
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("warning: could not load .env: %v", err)
		}
	}
	return nil
}

// Load reads the .env file (if any) and the environment into a Config.
func Load() (*Config, error) {
	if err := LoadConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:      getEnv("PORT", "3000"),
		GinMode:   getEnv("GIN_MODE", "release"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DeviceToken: getEnv("DEVICE_TOKEN", "default_device_token"),
		UserToken:   getEnv("USER_TOKEN", "default_user_token"),
		APIToken:    getEnv("API_TOKEN", "external_secret_999"),

		MaxQueueSize:     getEnvAsInt("MAX_QUEUE_SIZE", 50),
		MaxResultCache:   getEnvAsInt("MAX_RESULT_CACHE", 500),
		MaxEvents:        getEnvAsInt("MAX_EVENTS", 2000),
		MaxFaces:         getEnvAsInt("MAX_FACES", 1000),
		CommandTimeout:   getEnvAsDuration("COMMAND_TIMEOUT", 60*time.Second),
		OfflineThreshold: getEnvAsDuration("OFFLINE_THRESHOLD", 30*time.Second),
		SweepInterval:    getEnvAsDuration("SWEEP_INTERVAL", 10*time.Second),
		SignedURLTTL:     getEnvAsDuration("SIGNED_URL_TTL", time.Hour),
		OffloadWorkers:   getEnvAsInt("OFFLOAD_WORKERS", 4),
		RelayDeviceID:    getEnv("RELAY_DEVICE_ID", "door"),

		Storage: StorageConfig{
			AccountID: getEnv("R2_ACCOUNT_ID", ""),
			AccessKey: getEnv("R2_ACCESS_KEY_ID", ""),
			SecretKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			Bucket:    getEnv("R2_BUCKET_NAME", ""),
			Endpoint:  getEnv("R2_ENDPOINT", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects non-positive capacities and durations.
func (c *Config) Validate() error {
	ints := map[string]int{
		"MAX_QUEUE_SIZE":   c.MaxQueueSize,
		"MAX_RESULT_CACHE": c.MaxResultCache,
		"MAX_EVENTS":       c.MaxEvents,
		"MAX_FACES":        c.MaxFaces,
		"OFFLOAD_WORKERS":  c.OffloadWorkers,
	}
	for k, v := range ints {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", k, v)
		}
	}
	durations := map[string]time.Duration{
		"COMMAND_TIMEOUT":   c.CommandTimeout,
		"OFFLINE_THRESHOLD": c.OfflineThreshold,
		"SWEEP_INTERVAL":    c.SweepInterval,
		"SIGNED_URL_TTL":    c.SignedURLTTL,
	}
	for k, v := range durations {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", k, v)
		}
	}
	if c.DeviceToken == "" || c.UserToken == "" || c.APIToken == "" {
		return fmt.Errorf("DEVICE_TOKEN, USER_TOKEN and API_TOKEN must not be empty")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
