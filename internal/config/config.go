package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds the application configuration
type Config struct {
	StorageDriver string
	DatabaseURL   string
	SQLitePath    string

	Port      string
	JWTSecret string
	DevMode   bool

	AllocateMaxAttempts int
	AllocateRatePerMin  int

	LowStockThreshold int
	ChannelsFile      string
	SealingIdentity   string
	AllowOrigins      []string

	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPassword   string
	NotifyFrom     string
	NotifyTo       []string
	NotifyInterval time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		StorageDriver:       DriverPostgres,
		SQLitePath:          "./data/slotkeeper.db",
		Port:                "8080", // default port
		AllocateMaxAttempts: 4,
		AllocateRatePerMin:  60,
		LowStockThreshold:   3,
		SMTPPort:            587,
		NotifyInterval:      15 * time.Minute,
	}

	if driver := strings.ToLower(strings.TrimSpace(os.Getenv("STORAGE_DRIVER"))); driver != "" {
		cfg.StorageDriver = driver
	}
	switch cfg.StorageDriver {
	case DriverPostgres:
		// Load DATABASE_URL and log connection details (password masked)
		databaseURL := os.Getenv("DATABASE_URL")
		if databaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required")
		}
		cfg.DatabaseURL = databaseURL
		logConnection(databaseURL)
	case DriverSQLite:
		if path := os.Getenv("SQLITE_PATH"); path != "" {
			cfg.SQLitePath = path
		}
		log.Printf("DB connect: sqlite path=%s", cfg.SQLitePath)
	case DriverMemory:
		log.Printf("DB connect: in-memory store, data is lost on exit")
	default:
		return nil, fmt.Errorf("STORAGE_DRIVER must be one of postgres, sqlite, memory (got %q)", cfg.StorageDriver)
	}

	// Load PORT (optional, defaults to 8080)
	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	// Load JWT_SECRET (required)
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	cfg.JWTSecret = jwtSecret

	// Load DEV_MODE (optional, defaults to false)
	cfg.DevMode = os.Getenv("DEV_MODE") == "true"

	var err error
	if cfg.AllocateMaxAttempts, err = positiveInt("ALLOCATE_MAX_ATTEMPTS", cfg.AllocateMaxAttempts); err != nil {
		return nil, err
	}
	if cfg.AllocateRatePerMin, err = positiveInt("ALLOCATE_RATE_PER_MIN", cfg.AllocateRatePerMin); err != nil {
		return nil, err
	}
	if cfg.LowStockThreshold, err = nonNegativeInt("LOW_STOCK_THRESHOLD", cfg.LowStockThreshold); err != nil {
		return nil, err
	}

	cfg.ChannelsFile = os.Getenv("CHANNELS_FILE")
	cfg.SealingIdentity = strings.TrimSpace(os.Getenv("SEALING_IDENTITY"))
	cfg.AllowOrigins = splitList(os.Getenv("ALLOW_ORIGINS"))

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if cfg.SMTPPort, err = positiveInt("SMTP_PORT", cfg.SMTPPort); err != nil {
		return nil, err
	}
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.NotifyFrom = os.Getenv("NOTIFY_FROM")
	cfg.NotifyTo = splitList(os.Getenv("NOTIFY_TO"))
	if v := os.Getenv("NOTIFY_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("NOTIFY_INTERVAL must be a positive duration (got %q)", v)
		}
		cfg.NotifyInterval = d
	}

	return cfg, nil
}

func logConnection(databaseURL string) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	user := u.User.Username()
	if user == "" {
		user = "(none)"
	}
	log.Printf("DB connect: host=%s port=%s db=%s user=%s", host, port, dbName, user)
}

func positiveInt(name string, def int) (int, error) {
	n, err := intVar(name, def)
	if err == nil && n <= 0 {
		err = fmt.Errorf("%s must be positive (got %d)", name, n)
	}
	return n, err
}

func nonNegativeInt(name string, def int) (int, error) {
	n, err := intVar(name, def)
	if err == nil && n < 0 {
		err = fmt.Errorf("%s must not be negative (got %d)", name, n)
	}
	return n, err
}

func intVar(name string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got %q)", name, v)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
