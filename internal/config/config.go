package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// HTTP
	HTTPAddr string
	BaseURL  string // public base URL used in unsubscribe links

	// Database
	PostgresDSN    string
	MigrationsPath string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// Mail transport
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
	MailTimeout  time.Duration

	// Alert matcher
	MatchInterval      time.Duration
	MatcherMinInterval time.Duration // skip saved searches checked more recently; 0 disables
	MatcherMatchLimit  int           // max matches enqueued per saved search per pass

	// Alert dispatcher
	DispatchInterval  time.Duration
	DispatchBatchSize int
	MaxSendAttempts   int
	RetryBase         time.Duration
	RetryMax          time.Duration
	SendingStaleAfter time.Duration // sending items older than this are requeued

	// Logging
	LogLevel string
}

func Load() (*Config, error) {
	cfg := &Config{
		// Defaults
		HTTPAddr:           ":8080",
		BaseURL:            "http://localhost:8080",
		MigrationsPath:     "file://migrations",
		RedisDB:            0,
		SMTPPort:           587,
		MailTimeout:        30 * time.Second,
		MatchInterval:      5 * time.Minute,
		MatcherMinInterval: 10 * time.Minute,
		MatcherMatchLimit:  100,
		DispatchInterval:   30 * time.Second,
		DispatchBatchSize:  25,
		MaxSendAttempts:    5,
		RetryBase:          time.Minute,
		RetryMax:           time.Hour,
		SendingStaleAfter:  10 * time.Minute,
		LogLevel:           "info",
	}

	cfg.PostgresDSN = os.Getenv("POSTGRES_DSN")
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.RedisAddr = addr
	} else {
		cfg.RedisAddr = "localhost:6379"
	}

	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if redisDB := os.Getenv("REDIS_DB"); redisDB != "" {
		db, err := strconv.Atoi(redisDB)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = db
	}

	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		cfg.HTTPAddr = addr
	}

	if base := os.Getenv("BASE_URL"); base != "" {
		cfg.BaseURL = base
	}

	if path := os.Getenv("MIGRATIONS_PATH"); path != "" {
		cfg.MigrationsPath = path
	}

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.MailFrom = os.Getenv("MAIL_FROM")

	if port := os.Getenv("SMTP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
		}
		cfg.SMTPPort = p
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"MAIL_TIMEOUT", &cfg.MailTimeout},
		{"MATCH_INTERVAL", &cfg.MatchInterval},
		{"MATCHER_MIN_INTERVAL", &cfg.MatcherMinInterval},
		{"DISPATCH_INTERVAL", &cfg.DispatchInterval},
		{"RETRY_BASE", &cfg.RetryBase},
		{"RETRY_MAX", &cfg.RetryMax},
		{"SENDING_STALE_AFTER", &cfg.SendingStaleAfter},
	}
	for _, d := range durations {
		if v := os.Getenv(d.env); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", d.env, err)
			}
			*d.dst = parsed
		}
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"MATCHER_MATCH_LIMIT", &cfg.MatcherMatchLimit},
		{"DISPATCH_BATCH_SIZE", &cfg.DispatchBatchSize},
		{"MAX_SEND_ATTEMPTS", &cfg.MaxSendAttempts},
	}
	for _, n := range ints {
		if v := os.Getenv(n.env); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", n.env, err)
			}
			*n.dst = parsed
		}
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.PostgresDSN == "" {
		return fmt.Errorf("postgres DSN is empty")
	}

	if c.MatchInterval < time.Minute {
		return fmt.Errorf("match interval too small: %v", c.MatchInterval)
	}

	if c.DispatchBatchSize < 1 || c.DispatchBatchSize > 500 {
		return fmt.Errorf("dispatch batch size must be between 1 and 500")
	}

	if c.MaxSendAttempts < 1 || c.MaxSendAttempts > 20 {
		return fmt.Errorf("max send attempts must be between 1 and 20")
	}

	if c.RetryBase <= 0 || c.RetryMax < c.RetryBase {
		return fmt.Errorf("retry backoff bounds are inconsistent: base=%v max=%v", c.RetryBase, c.RetryMax)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	return nil
}
