package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port               string
	DatabaseURL        string
	LogLevel           string
	PrinterDevice      string
	PrinterSpooler     string
	CaptureDir         string
	PrintTempTTL       time.Duration
	WebhookURL         string
	WebhookToken       string
	RelayBuffer        int
	RelayTimeout       time.Duration
	RateLimitPerMinute int
	RateLimitBurst     int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	captureDir := os.Getenv("TICKETS_CAPTURE_DIR")
	if captureDir == "" {
		captureDir = "tickets-generados"
	}

	return Config{
		Port:               port,
		DatabaseURL:        os.Getenv("DB_DSN"),
		LogLevel:           os.Getenv("LOG_LEVEL"),
		PrinterDevice:      os.Getenv("PRINTER_DEVICE"),
		PrinterSpooler:     os.Getenv("PRINTER_SPOOLER"),
		CaptureDir:         captureDir,
		PrintTempTTL:       readDurationSeconds("PRINT_TEMP_TTL_SECONDS", 60),
		WebhookURL:         os.Getenv("NOTIFY_WEBHOOK_URL"),
		WebhookToken:       os.Getenv("NOTIFY_WEBHOOK_TOKEN"),
		RelayBuffer:        readInt("RELAY_BUFFER", 64),
		RelayTimeout:       readDurationSeconds("RELAY_TIMEOUT_SECONDS", 2),
		RateLimitPerMinute: readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:     readInt("RATE_LIMIT_BURST", 30),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
