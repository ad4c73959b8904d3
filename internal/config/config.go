package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfig     = "INBOXSYNC_CONFIG"
	envIMAPHost   = "INBOXSYNC_IMAP_HOST"
	envIMAPPort   = "INBOXSYNC_IMAP_PORT"
	envIMAPUser   = "INBOXSYNC_IMAP_USER"
	envIMAPPass   = "INBOXSYNC_IMAP_PASS"
	envS3Endpoint = "INBOXSYNC_S3_ENDPOINT"
	envS3Region   = "INBOXSYNC_S3_REGION"
	envS3Bucket   = "INBOXSYNC_S3_BUCKET"
	envS3Key      = "INBOXSYNC_S3_KEY"
	envS3Secret   = "INBOXSYNC_S3_SECRET"
	envWebhookURL = "INBOXSYNC_WEBHOOK_URL"
	envOTLPDSN    = "INBOXSYNC_OTLP_DSN"

	DefaultFolder         = "INBOX"
	DefaultPollInterval   = 30 * time.Second
	DefaultPreloadBatch   = 15
	DefaultRefreshTimeout = 20 * time.Second
	DefaultWorkers        = 3
	DefaultQueueSize      = 64
	DefaultCachePath      = "~/.cache/inboxsync/bodies.db"
)

// Config holds non-secret configuration loaded from YAML.
type Config struct {
	Session   Session   `yaml:"session"`
	Preload   Preload   `yaml:"preload"`
	Cache     Cache     `yaml:"cache"`
	Archive   Archive   `yaml:"archive"`
	HTTP      HTTP      `yaml:"http"`
	Telemetry Telemetry `yaml:"telemetry"`
	LogLevel  string    `yaml:"log_level"`
}

type Session struct {
	Folder         string   `yaml:"folder"`
	PollInterval   Duration `yaml:"poll_interval"`
	PreloadBatch   int      `yaml:"preload_batch"`
	RefreshTimeout Duration `yaml:"refresh_timeout"`
	MessageWindow  uint32   `yaml:"message_window"`
}

type Preload struct {
	Workers     int      `yaml:"workers"`
	QueueSize   int      `yaml:"queue_size"`
	TaskTimeout Duration `yaml:"task_timeout"`
}

type Cache struct {
	Path string `yaml:"path"`
}

type Archive struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Telemetry struct {
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// Duration accepts Go durations ("90s") and days ("2d").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseRelativeDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// IMAPEnv holds the IMAP connection details from environment variables.
type IMAPEnv struct {
	Host string
	Port int
	User string
	Pass string
}

func (e IMAPEnv) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// S3Env holds the optional archive bucket settings.
type S3Env struct {
	Endpoint string
	Region   string
	Bucket   string
	Key      string
	Secret   string
}

func ParseRelativeDuration(value string) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	if strings.HasSuffix(trimmed, "d") {
		daysValue := strings.TrimSuffix(trimmed, "d")
		days, err := strconv.ParseFloat(strings.TrimSpace(daysValue), 64)
		if err != nil {
			return 0, err
		}
		if days < 0 {
			return 0, errors.New("duration must be positive")
		}
		return time.Duration(days * float64(24*time.Hour)), nil
	}
	dur, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, err
	}
	if dur < 0 {
		return 0, errors.New("duration must be positive")
	}
	return dur, nil
}

// Load reads configuration from a YAML file and fills in defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills unset fields. Explicitly invalid values are left for
// Validate to report.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Session.Folder) == "" {
		c.Session.Folder = DefaultFolder
	}
	if c.Session.PollInterval == 0 {
		c.Session.PollInterval = Duration(DefaultPollInterval)
	}
	if c.Session.PreloadBatch == 0 {
		c.Session.PreloadBatch = DefaultPreloadBatch
	}
	if c.Session.RefreshTimeout == 0 {
		c.Session.RefreshTimeout = Duration(DefaultRefreshTimeout)
	}
	if c.Preload.Workers == 0 {
		c.Preload.Workers = DefaultWorkers
	}
	if c.Preload.QueueSize == 0 {
		c.Preload.QueueSize = DefaultQueueSize
	}
	if strings.TrimSpace(c.Cache.Path) == "" {
		c.Cache.Path = DefaultCachePath
	}
	if strings.TrimSpace(c.Telemetry.Exporter) == "" {
		c.Telemetry.Exporter = "none"
	}
}

// CachePath expands a leading ~ in the cache path.
func (c Config) CachePath() (string, error) {
	path := strings.TrimSpace(c.Cache.Path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path, nil
}

// Validate performs basic validation on non-secret config.
func Validate(cfg Config) error {
	if cfg.Session.PollInterval <= 0 {
		return errors.New("session.poll_interval must be positive")
	}
	if cfg.Session.PreloadBatch < 1 {
		return errors.New("session.preload_batch must be at least 1")
	}
	if cfg.Session.RefreshTimeout <= 0 {
		return errors.New("session.refresh_timeout must be positive")
	}
	if cfg.Preload.Workers < 1 {
		return errors.New("preload.workers must be at least 1")
	}
	if cfg.Preload.QueueSize < 1 {
		return errors.New("preload.queue_size must be at least 1")
	}
	if strings.TrimSpace(cfg.Cache.Path) == "" {
		return errors.New("cache.path is required")
	}
	if cfg.Archive.Enabled {
		if _, err := S3EnvFromEnv(); err != nil {
			return fmt.Errorf("archive enabled: %w", err)
		}
	}
	switch cfg.Telemetry.Exporter {
	case "none", "stdout":
	case "otlp":
		if strings.TrimSpace(os.Getenv(envOTLPDSN)) == "" {
			return fmt.Errorf("telemetry.exporter otlp needs %s", envOTLPDSN)
		}
	default:
		return fmt.Errorf("unknown telemetry.exporter %q", cfg.Telemetry.Exporter)
	}
	return nil
}

// IMAPEnvFromEnv loads IMAP connection details and validates required entries.
func IMAPEnvFromEnv() (IMAPEnv, error) {
	missing := []string{}

	host := strings.TrimSpace(os.Getenv(envIMAPHost))
	if host == "" {
		missing = append(missing, envIMAPHost)
	}

	portRaw := strings.TrimSpace(os.Getenv(envIMAPPort))
	if portRaw == "" {
		missing = append(missing, envIMAPPort)
	}

	user := strings.TrimSpace(os.Getenv(envIMAPUser))
	if user == "" {
		missing = append(missing, envIMAPUser)
	}

	pass := strings.TrimSpace(os.Getenv(envIMAPPass))
	if pass == "" {
		missing = append(missing, envIMAPPass)
	}

	if len(missing) > 0 {
		return IMAPEnv{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	port, err := strconv.Atoi(portRaw)
	if err != nil {
		return IMAPEnv{}, fmt.Errorf("invalid %s: %w", envIMAPPort, err)
	}

	return IMAPEnv{
		Host: host,
		Port: port,
		User: user,
		Pass: pass,
	}, nil
}

// S3EnvFromEnv loads the archive bucket settings. Only the bucket is
// required; endpoint and keys fall back to the AWS defaults.
func S3EnvFromEnv() (S3Env, error) {
	env := S3Env{
		Endpoint: strings.TrimSpace(os.Getenv(envS3Endpoint)),
		Region:   strings.TrimSpace(os.Getenv(envS3Region)),
		Bucket:   strings.TrimSpace(os.Getenv(envS3Bucket)),
		Key:      strings.TrimSpace(os.Getenv(envS3Key)),
		Secret:   strings.TrimSpace(os.Getenv(envS3Secret)),
	}
	if env.Bucket == "" {
		return S3Env{}, fmt.Errorf("missing required environment variables: %s", envS3Bucket)
	}
	if (env.Key == "") != (env.Secret == "") {
		return S3Env{}, fmt.Errorf("%s and %s must be set together", envS3Key, envS3Secret)
	}
	return env, nil
}

func WebhookURL() string {
	return strings.TrimSpace(os.Getenv(envWebhookURL))
}

func OTLPDSN() string {
	return strings.TrimSpace(os.Getenv(envOTLPDSN))
}

// ReportingEnabled returns true when a webhook URL is configured via env var.
func ReportingEnabled() bool {
	return WebhookURL() != ""
}

// Summary returns a concise config summary for validation runs.
func Summary(cfg Config) string {
	reportingStatus := "disabled"
	if ReportingEnabled() {
		reportingStatus = "enabled"
	}
	archiveStatus := "disabled"
	if cfg.Archive.Enabled {
		archiveStatus = "enabled"
	}
	return fmt.Sprintf(
		"Config summary\n"+
			"- folder: %s\n"+
			"- poll interval: %s\n"+
			"- preload batch: %d\n"+
			"- preload workers: %d\n"+
			"- cache path: %s\n"+
			"- archive: %s\n"+
			"- status server: %s\n"+
			"- telemetry: %s\n"+
			"- reporting webhook: %s",
		cfg.Session.Folder,
		cfg.Session.PollInterval.Std(),
		cfg.Session.PreloadBatch,
		cfg.Preload.Workers,
		defaultIfEmpty(cfg.Cache.Path, "(not set)"),
		archiveStatus,
		defaultIfEmpty(cfg.HTTP.Addr, "disabled"),
		cfg.Telemetry.Exporter,
		reportingStatus,
	)
}

func defaultIfEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
