package router

import (
	"os"
	"strings"
)

// Config is the HTTP surface configuration.
type Config struct {
	Addr           string
	AdminPositions []string
}

func ConfigFromEnv() Config {
	cfg := Config{
		Addr:           os.Getenv("HTTP_ADDR"),
		AdminPositions: []string{"SuperAdmin", "Manager"},
	}
	if cfg.Addr == "" {
		cfg.Addr = "0.0.0.0:8431"
	}
	if v := os.Getenv("ADMIN_POSITIONS"); v != "" {
		var ps []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				ps = append(ps, p)
			}
		}
		if len(ps) > 0 {
			cfg.AdminPositions = ps
		}
	}
	return cfg
}
