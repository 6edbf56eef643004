package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceName       string `yaml:"service_name"`
	LogLevel          string `yaml:"log_level"`
	LogFile           string `yaml:"log_file"`
	LogMaxSizeMB      int    `yaml:"log_max_size_mb"`
	LogMaxBackups     int    `yaml:"log_max_backups"`
	LogMaxAgeDays     int    `yaml:"log_max_age_days"`
	HTTPListenAddr    string `yaml:"http_listen_addr"`
	MetricsListenAddr string `yaml:"metrics_listen_addr"`

	// ContentDir is the site's content directory holding plugins, themes
	// and uploads.
	ContentDir    string `yaml:"content_dir"`
	PluginsDir    string `yaml:"plugins_dir"`
	ThemesDir     string `yaml:"themes_dir"`
	UploadsDir    string `yaml:"uploads_dir"`
	OwnPluginName string `yaml:"own_plugin_name"`

	BackupRoot   string `yaml:"backup_root"`
	ArchiveRoot  string `yaml:"archive_root"`
	ScheduleRoot string `yaml:"schedule_root"`

	SiteURL     string `yaml:"site_url"`
	AuthorEmail string `yaml:"author_email"`

	// DatabaseDriver is postgres, mysql or none.
	DatabaseDriver string `yaml:"database_driver"`
	DatabaseURL    string `yaml:"database_url"`
	DatabaseSchema string `yaml:"database_schema"`
	TablePrefix    string `yaml:"table_prefix"`
	ChunkRows      int    `yaml:"chunk_rows"`

	TickCooldown      time.Duration `yaml:"tick_cooldown"`
	TickInterval      time.Duration `yaml:"tick_interval"`
	TickLockStale     time.Duration `yaml:"tick_lock_stale"`
	StepBudget        time.Duration `yaml:"step_budget"`
	KeepLastScheduled int           `yaml:"keep_last_scheduled"`

	WebhookURL      string `yaml:"webhook_url"`
	WebhookTemplate string `yaml:"webhook_template"`

	S3Endpoint  string `yaml:"s3_endpoint"`
	S3Region    string `yaml:"s3_region"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	S3Prefix    string `yaml:"s3_prefix"`
}

func defaults() *Config {
	return &Config{
		LogLevel:          "info",
		LogMaxSizeMB:      100,
		LogMaxBackups:     5,
		LogMaxAgeDays:     30,
		HTTPListenAddr:    ":8090",
		MetricsListenAddr: ":9100",
		OwnPluginName:     "wp-backup",
		DatabaseDriver:    "none",
		DatabaseSchema:    "public",
		TablePrefix:       "wp_",
		ChunkRows:         5000,
		TickCooldown:      5 * time.Minute,
		TickInterval:      time.Minute,
		TickLockStale:     30 * time.Minute,
		KeepLastScheduled: 2,
		WebhookTemplate:   "generic",
	}
}

// Load builds the configuration from, in increasing precedence: built-in
// defaults, the YAML file named by BACKUP_CONFIG_FILE, and the environment.
// A .env file in the working directory is loaded into the environment first
// without overriding variables that are already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaults()
	if path := os.Getenv("BACKUP_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	var errs []error
	cfg.ServiceName = getEnv("SERVICE_NAME", cfg.ServiceName)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.LogMaxSizeMB = getEnvInt("LOG_MAX_SIZE_MB", cfg.LogMaxSizeMB, &errs)
	cfg.LogMaxBackups = getEnvInt("LOG_MAX_BACKUPS", cfg.LogMaxBackups, &errs)
	cfg.LogMaxAgeDays = getEnvInt("LOG_MAX_AGE_DAYS", cfg.LogMaxAgeDays, &errs)
	cfg.HTTPListenAddr = getEnv("HTTP_LISTEN_ADDR", cfg.HTTPListenAddr)
	cfg.MetricsListenAddr = getEnv("METRICS_LISTEN_ADDR", cfg.MetricsListenAddr)
	cfg.ContentDir = getEnv("CONTENT_DIR", cfg.ContentDir)
	cfg.PluginsDir = getEnv("PLUGINS_DIR", cfg.PluginsDir)
	cfg.ThemesDir = getEnv("THEMES_DIR", cfg.ThemesDir)
	cfg.UploadsDir = getEnv("UPLOADS_DIR", cfg.UploadsDir)
	cfg.OwnPluginName = getEnv("OWN_PLUGIN_NAME", cfg.OwnPluginName)
	cfg.BackupRoot = getEnv("BACKUP_ROOT", cfg.BackupRoot)
	cfg.ArchiveRoot = getEnv("ARCHIVE_ROOT", cfg.ArchiveRoot)
	cfg.ScheduleRoot = getEnv("SCHEDULE_ROOT", cfg.ScheduleRoot)
	cfg.SiteURL = getEnv("SITE_URL", cfg.SiteURL)
	cfg.AuthorEmail = getEnv("AUTHOR_EMAIL", cfg.AuthorEmail)
	cfg.DatabaseDriver = strings.ToLower(getEnv("DATABASE_DRIVER", cfg.DatabaseDriver))
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.DatabaseSchema = getEnv("DATABASE_SCHEMA", cfg.DatabaseSchema)
	cfg.TablePrefix = getEnv("TABLE_PREFIX", cfg.TablePrefix)
	cfg.ChunkRows = getEnvInt("CHUNK_ROWS", cfg.ChunkRows, &errs)
	cfg.TickCooldown = getEnvDuration("TICK_COOLDOWN", cfg.TickCooldown, &errs)
	cfg.TickInterval = getEnvDuration("TICK_INTERVAL", cfg.TickInterval, &errs)
	cfg.TickLockStale = getEnvDuration("TICK_LOCK_STALE", cfg.TickLockStale, &errs)
	cfg.StepBudget = getEnvDuration("STEP_BUDGET", cfg.StepBudget, &errs)
	cfg.KeepLastScheduled = getEnvInt("KEEP_LAST_SCHEDULED", cfg.KeepLastScheduled, &errs)
	cfg.WebhookURL = getEnv("WEBHOOK_URL", cfg.WebhookURL)
	cfg.WebhookTemplate = getEnv("WEBHOOK_TEMPLATE", cfg.WebhookTemplate)
	cfg.S3Endpoint = getEnv("S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Region = getEnv("S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getEnv("S3_BUCKET", cfg.S3Bucket)
	cfg.S3AccessKey = getEnv("S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3Prefix = getEnv("S3_PREFIX", cfg.S3Prefix)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	cfg.derive()
	return cfg, nil
}

// derive fills directories that default relative to ContentDir and the
// engine roots that default under UploadsDir.
func (c *Config) derive() {
	if c.ContentDir != "" {
		if c.PluginsDir == "" {
			c.PluginsDir = filepath.Join(c.ContentDir, "plugins")
		}
		if c.ThemesDir == "" {
			c.ThemesDir = filepath.Join(c.ContentDir, "themes")
		}
		if c.UploadsDir == "" {
			c.UploadsDir = filepath.Join(c.ContentDir, "uploads")
		}
	}
	if c.UploadsDir != "" {
		if c.BackupRoot == "" {
			c.BackupRoot = filepath.Join(c.UploadsDir, "site-backup")
		}
		if c.ArchiveRoot == "" {
			c.ArchiveRoot = filepath.Join(c.UploadsDir, "site-backup-zip")
		}
		if c.ScheduleRoot == "" {
			c.ScheduleRoot = filepath.Join(c.UploadsDir, "site-backup-cron-manager")
		}
	}
}

// OffsiteEnabled reports whether completed backups are copied to S3.
func (c *Config) OffsiteEnabled() bool { return c.S3Bucket != "" }

// Validate checks that every setting the component needs is present.
// component is "backupd" or "backup-tick".
func (c *Config) Validate(component string) error {
	var missing []string
	var invalid []string

	if c.PluginsDir == "" || c.ThemesDir == "" || c.UploadsDir == "" {
		missing = append(missing, "CONTENT_DIR")
	}
	if c.BackupRoot == "" {
		missing = append(missing, "BACKUP_ROOT")
	}
	if c.ArchiveRoot == "" {
		missing = append(missing, "ARCHIVE_ROOT")
	}
	if c.ScheduleRoot == "" {
		missing = append(missing, "SCHEDULE_ROOT")
	}

	switch c.DatabaseDriver {
	case "none":
	case "postgres", "mysql":
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		invalid = append(invalid, fmt.Sprintf("DATABASE_DRIVER %q must be postgres, mysql or none", c.DatabaseDriver))
	}
	if c.ChunkRows <= 0 {
		invalid = append(invalid, "CHUNK_ROWS must be positive")
	}
	if c.KeepLastScheduled < 0 {
		invalid = append(invalid, "KEEP_LAST_SCHEDULED must not be negative")
	}
	if c.TickCooldown < 0 || c.StepBudget < 0 {
		invalid = append(invalid, "durations must not be negative")
	}
	if c.OffsiteEnabled() && (c.S3AccessKey == "" || c.S3SecretKey == "") {
		missing = append(missing, "S3_ACCESS_KEY", "S3_SECRET_KEY")
	}

	if component == "backupd" {
		if c.HTTPListenAddr == "" {
			missing = append(missing, "HTTP_LISTEN_ADDR")
		}
		if c.TickInterval <= 0 {
			invalid = append(invalid, "TICK_INTERVAL must be positive")
		}
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing required config: "+strings.Join(missing, ", "))
	}
	parts = append(parts, invalid...)
	if len(parts) > 0 {
		return fmt.Errorf("%s: %s", component, strings.Join(parts, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return fallback
	}
	return d
}
