package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config captures the settings of the availability service.
type Config struct {
	Environment        string        `yaml:"environment" validate:"oneof=development production test"`
	HTTPPort           int           `yaml:"http_port" validate:"min=1,max=65535"`
	LogLevel           string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	StorageDriver      string        `yaml:"storage_driver" validate:"oneof=memory sqlite postgres"`
	SQLiteDSN          string        `yaml:"sqlite_dsn" validate:"required_if=StorageDriver sqlite"`
	PostgresDSN        string        `yaml:"postgres_dsn" validate:"required_if=StorageDriver postgres"`
	RedisAddr          string        `yaml:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPassword      string        `yaml:"redis_password"`
	RedisDB            int           `yaml:"redis_db" validate:"min=0"`
	LockTTL            time.Duration `yaml:"lock_ttl" validate:"gt=0"`
	MaxRangeDays       int           `yaml:"max_range_days" validate:"min=1"`
	RateLimitPerSecond int           `yaml:"rate_limit" validate:"min=1"`
	CORSOrigins        []string      `yaml:"cors_origins" validate:"min=1,dive,required"`
	RetentionCron      string        `yaml:"retention_cron"`
	RetentionDays      int           `yaml:"retention_days" validate:"min=1"`
}

// envKeys maps struct fields to their environment variable.
var envKeys = map[string]string{
	"Environment":        "AVAILABILITY_ENV",
	"HTTPPort":           "AVAILABILITY_HTTP_PORT",
	"LogLevel":           "AVAILABILITY_LOG_LEVEL",
	"StorageDriver":      "AVAILABILITY_STORAGE_DRIVER",
	"SQLiteDSN":          "AVAILABILITY_SQLITE_DSN",
	"PostgresDSN":        "AVAILABILITY_POSTGRES_DSN",
	"RedisAddr":          "AVAILABILITY_REDIS_ADDR",
	"RedisPassword":      "AVAILABILITY_REDIS_PASSWORD",
	"RedisDB":            "AVAILABILITY_REDIS_DB",
	"LockTTL":            "AVAILABILITY_LOCK_TTL",
	"MaxRangeDays":       "AVAILABILITY_MAX_RANGE_DAYS",
	"RateLimitPerSecond": "AVAILABILITY_RATE_LIMIT",
	"CORSOrigins":        "AVAILABILITY_CORS_ORIGINS",
	"RetentionCron":      "AVAILABILITY_RETENTION_CRON",
	"RetentionDays":      "AVAILABILITY_RETENTION_DAYS",
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Environment:        "development",
		HTTPPort:           8080,
		LogLevel:           "info",
		StorageDriver:      "sqlite",
		SQLiteDSN:          "availability.db",
		LockTTL:            10 * time.Second,
		MaxRangeDays:       366,
		RateLimitPerSecond: 50,
		CORSOrigins:        []string{"*"},
		RetentionDays:      90,
	}
}

// Load builds the configuration from defaults, an optional YAML file named
// by AVAILABILITY_CONFIG_FILE, and AVAILABILITY_* variables. A .env file in
// the working directory, when present, seeds variables that are not already
// set. Environment values win over the file.
//
// Missing and invalid keys are collected and reported together.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("AVAILABILITY_CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	invalid := applyEnvironment(&cfg)
	missing := make([]string, 0, 1)

	if err := validator.New().Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return Config{}, fmt.Errorf("config validation failed: %w", err)
		}
		for _, fe := range fieldErrs {
			key := envKeys[fe.StructField()]
			if key == "" {
				key = fe.Namespace()
			}
			if strings.HasPrefix(fe.Tag(), "required") {
				missing = appendUnique(missing, key)
			} else {
				invalid = appendUnique(invalid, key)
			}
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return Config{}, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return Config{}, fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}

func applyEnvironment(cfg *Config) []string {
	invalid := make([]string, 0, 2)

	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			invalid = append(invalid, key)
			return
		}
		*dst = n
	}

	setString("AVAILABILITY_ENV", &cfg.Environment)
	setInt("AVAILABILITY_HTTP_PORT", &cfg.HTTPPort)
	setString("AVAILABILITY_LOG_LEVEL", &cfg.LogLevel)
	setString("AVAILABILITY_STORAGE_DRIVER", &cfg.StorageDriver)
	setString("AVAILABILITY_SQLITE_DSN", &cfg.SQLiteDSN)
	setString("AVAILABILITY_POSTGRES_DSN", &cfg.PostgresDSN)
	setString("AVAILABILITY_REDIS_ADDR", &cfg.RedisAddr)
	setString("AVAILABILITY_REDIS_PASSWORD", &cfg.RedisPassword)
	setInt("AVAILABILITY_REDIS_DB", &cfg.RedisDB)
	setInt("AVAILABILITY_MAX_RANGE_DAYS", &cfg.MaxRangeDays)
	setInt("AVAILABILITY_RATE_LIMIT", &cfg.RateLimitPerSecond)
	setString("AVAILABILITY_RETENTION_CRON", &cfg.RetentionCron)
	setInt("AVAILABILITY_RETENTION_DAYS", &cfg.RetentionDays)

	if v := strings.TrimSpace(os.Getenv("AVAILABILITY_LOCK_TTL")); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			invalid = append(invalid, "AVAILABILITY_LOCK_TTL")
		} else {
			cfg.LockTTL = ttl
		}
	}

	if v := strings.TrimSpace(os.Getenv("AVAILABILITY_CORS_ORIGINS")); v != "" {
		var origins []string
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
		cfg.CORSOrigins = origins
	}

	return invalid
}

func appendUnique(list []string, key string) []string {
	for _, existing := range list {
		if existing == key {
			return list
		}
	}
	return append(list, key)
}
