// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-derived setting the CLI entrypoints need.
type Config struct {
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string

	ECFRBaseURL string

	WorkerCount     int
	BatchSize       int
	LockTTL         time.Duration
	InterestTitles  []int
	MetricsAddr     string
	DataDir         string
}

// Load reads required and optional environment variables, returning a
// *ConfigError on anything missing or malformed.
func Load() (*Config, error) {
	cfg := &Config{
		DBHost:      os.Getenv("DB_HOST"),
		DBPort:      os.Getenv("DB_PORT"),
		DBName:      os.Getenv("DB_NAME"),
		DBUser:      os.Getenv("DB_USER"),
		DBPassword:  os.Getenv("DB_PASSWORD"),
		ECFRBaseURL: getenv("ECFR_BASE_URL", "https://www.ecfr.gov/api"),
		MetricsAddr: getenv("METRICS_ADDR", ":9090"),
		DataDir:     getenv("DATA_DIR", "./data"),
	}

	for name, val := range map[string]string{
		"DB_HOST": cfg.DBHost, "DB_NAME": cfg.DBName, "DB_USER": cfg.DBUser,
	} {
		if val == "" {
			return nil, &ConfigError{Field: name, Reason: "required environment variable not set"}
		}
	}
	if cfg.DBPort == "" {
		cfg.DBPort = "5432"
	}

	workers, err := getenvInt("WORKER_COUNT", 3)
	if err != nil {
		return nil, err
	}
	cfg.WorkerCount = workers

	batch, err := getenvInt("BATCH_SIZE", 10)
	if err != nil {
		return nil, err
	}
	cfg.BatchSize = batch

	ttlMinutes, err := getenvInt("LOCK_TTL_MINUTES", 60)
	if err != nil {
		return nil, err
	}
	cfg.LockTTL = time.Duration(ttlMinutes) * time.Minute

	titles, err := getenvIntList("INTEREST_TITLES", []int{7, 50})
	if err != nil {
		return nil, err
	}
	cfg.InterestTitles = titles

	return cfg, nil
}

// DSN returns a libpq-style connection string for pgxpool.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword)
}

// ConfigError marks a fatal startup configuration problem.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &ConfigError{Field: k, Reason: "not a valid integer: " + err.Error()}
	}
	return n, nil
}

func getenvIntList(k string, def []int) ([]int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, &ConfigError{Field: k, Reason: "not a comma-separated list of integers: " + err.Error()}
		}
		out = append(out, n)
	}
	return out, nil
}
