package config

import (
	"os"
	"strings"
	"time"
)

// Config captures server-level configuration. Values come from the
// environment so main stays lean; every backing service is optional and the
// server falls back to in-memory implementations when one is not configured.
type Config struct {
	Addr          string
	DatabaseURL   string
	RedisURL      string
	KafkaBrokers  []string
	AuditTopic    string
	JWTSigningKey string

	// ProcedureBaseURL is the endpoint of the remote-procedure collaborator
	// invoked by remote-backed transitions.
	ProcedureBaseURL string
	// ProcedureTimeout bounds every remote invocation.
	ProcedureTimeout time.Duration

	// ImportReportTTL is how long bulk-import reports stay fetchable.
	ImportReportTTL time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:             envOr("VILLAGEOPS_ADDR", ":8080"),
		DatabaseURL:      os.Getenv("VILLAGEOPS_DATABASE_URL"),
		RedisURL:         os.Getenv("VILLAGEOPS_REDIS_URL"),
		AuditTopic:       envOr("VILLAGEOPS_AUDIT_TOPIC", "villageops.audit"),
		JWTSigningKey:    os.Getenv("VILLAGEOPS_JWT_SIGNING_KEY"),
		ProcedureBaseURL: os.Getenv("VILLAGEOPS_PROCEDURE_URL"),
		ProcedureTimeout: durationOr("VILLAGEOPS_PROCEDURE_TIMEOUT", 15*time.Second),
		ImportReportTTL:  durationOr("VILLAGEOPS_IMPORT_REPORT_TTL", 24*time.Hour),
	}
	if brokers := os.Getenv("VILLAGEOPS_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	if cfg.JWTSigningKey == "" {
		// Use a default for development - must be overridden in production
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
