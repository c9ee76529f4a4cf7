package mail

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the SMTP configuration. An empty Host disables delivery and
// messages are only logged.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppName  string
	Timeout  time.Duration
}

func ConfigFromEnv() Config {
	cfg := Config{
		Host:     strings.TrimSpace(os.Getenv("SMTP_HOST")),
		Port:     587,
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
		AppName:  os.Getenv("APP_NAME"),
		Timeout:  10 * time.Second,
	}
	if p, err := strconv.Atoi(os.Getenv("SMTP_PORT")); err == nil && p > 0 {
		cfg.Port = p
	}
	if d, err := time.ParseDuration(os.Getenv("SMTP_TIMEOUT")); err == nil && d > 0 {
		cfg.Timeout = d
	}
	if cfg.From == "" {
		cfg.From = "no-reply@splashops.local"
	}
	if cfg.AppName == "" {
		cfg.AppName = "SplashOps"
	}
	return cfg
}

func (c Config) Enabled() bool { return c.Host != "" }
