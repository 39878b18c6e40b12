// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the API and scheduler binaries.
type Config struct {
	Env      string
	HTTPAddr string

	DatabaseURL string

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueue       string
	AsynqConcurrency int

	CORSAllowAll bool
	CORSOrigins  []string

	AppBaseURL string

	EmailEnabled     bool
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string
	EmailTimeout     time.Duration

	// RoleEmails maps workflow roles to distribution-list addresses.
	// Roles without an entry get in-app notifications only.
	RoleEmails map[string]string

	// WorkflowMappingFile optionally overrides the built-in
	// discrepancy-type → role and severity → due-date mappings.
	WorkflowMappingFile string
	// RuleOverridesFile optionally overrides the built-in rule catalog
	// parameters (reference ranges, freshness windows, enum values).
	RuleOverridesFile string

	// SweepInterval is how often the scheduler re-analyzes batches with
	// open signals.
	SweepInterval time.Duration
	// OutboxBatchSize limits how many outbox rows one dispatch run claims.
	OutboxBatchSize int
	// OutboxMaxAttempts bounds email delivery retries before a row is
	// marked failed and dropped from the queue.
	OutboxMaxAttempts int
}

// Load reads the configuration from the environment, applying defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	smtpHost := getEnv("SMTP_HOST", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:         getEnv("APP_ENV", "development"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueue:       getEnv("ASYNQ_QUEUE", "trialops"),
		AsynqConcurrency: mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),

		CORSAllowAll: corsAllowAll,
		CORSOrigins:  corsOrigins,

		AppBaseURL: getEnv("APP_BASE_URL", "http://localhost:4200"),

		EmailEnabled:     emailEnabled && smtpHost != "",
		SMTPHost:         smtpHost,
		SMTPPort:         mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "TrialOps"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailTimeout:     mustDuration(getEnv("EMAIL_TIMEOUT", "15s")),

		RoleEmails: parseRoleEmails(getEnv("ROLE_EMAILS", "")),

		WorkflowMappingFile: getEnv("WORKFLOW_MAPPING_FILE", ""),
		RuleOverridesFile:   getEnv("RULE_OVERRIDES_FILE", ""),

		SweepInterval:     mustDuration(getEnv("SWEEP_INTERVAL", "1h")),
		OutboxBatchSize:   mustInt(getEnv("OUTBOX_BATCH_SIZE", "50")),
		OutboxMaxAttempts: mustInt(getEnv("OUTBOX_MAX_ATTEMPTS", "5")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be a positive duration")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

// parseRoleEmails reads "Role=address" pairs separated by semicolons,
// e.g. "Data Manager=dm@example.org;Medical Monitor=mm@example.org".
func parseRoleEmails(value string) map[string]string {
	emails := make(map[string]string)
	for _, pair := range strings.Split(value, ";") {
		role, address, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		role = strings.TrimSpace(role)
		address = strings.TrimSpace(address)
		if role != "" && address != "" {
			emails[role] = address
		}
	}
	return emails
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
