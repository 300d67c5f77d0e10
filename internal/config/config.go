package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process settings. Vendor credentials are not part of it; they
// arrive through the initialize operation.
type Config struct {
	HTTPAddr        string
	DatabaseDSN     string
	RedisAddr       string
	ImagePrepAddr   string
	JWTSecret       string
	JWTAudience     string
	DeviceKey       string
	VendorTimeout   time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
}

// Load reads an optional .env file and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	vendorTimeout, err := getDuration("VENDOR_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	maxUpload, err := strconv.ParseInt(getEnv("MAX_UPLOAD_BYTES", "10485760"), 10, 64)
	if err != nil {
		return nil, err
	}

	return &Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DatabaseDSN:     getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=idbridge port=5432 sslmode=disable"),
		RedisAddr:       getEnv("REDIS_ADDR", "redis:6379"),
		ImagePrepAddr:   getEnv("IMAGE_PREP_ADDR", "imageprep:50051"),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret"),
		JWTAudience:     os.Getenv("JWT_AUDIENCE"),
		DeviceKey:       os.Getenv("DEVICE_KEY"),
		VendorTimeout:   vendorTimeout,
		ShutdownTimeout: shutdownTimeout,
		MaxUploadBytes:  maxUpload,
	}, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}
