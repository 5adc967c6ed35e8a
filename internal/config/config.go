package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/BrandonDHaskell/turnstile/internal/logging"
)

// Authority transports.
const (
	TransportHTTP   = "http"
	TransportGRPC   = "grpc"
	TransportMemory = "memory"
)

type Config struct {
	Env string `koanf:"env"` // "dev" | "prod"

	Device    DeviceConfig    `koanf:"device"`
	HTTP      HTTPConfig      `koanf:"http"`
	DB        DBConfig        `koanf:"db"`
	Authority AuthorityConfig `koanf:"authority"`
	Sync      SyncConfig      `koanf:"sync"`
	Queue     QueueConfig     `koanf:"queue"`
	Retention RetentionConfig `koanf:"retention"`
	Log       logging.Config  `koanf:"log"`
}

type DeviceConfig struct {
	ID       string   `koanf:"id"`
	GateID   string   `koanf:"gate_id"`
	EventIDs []string `koanf:"event_ids"`
}

type HTTPConfig struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

type DBConfig struct {
	Path string `koanf:"path"`
	// SeedDev seeds a dev admin and demo tickets when Env is "dev".
	SeedDev bool `koanf:"seed_dev"`
}

type AuthorityConfig struct {
	Transport string        `koanf:"transport"` // http | grpc | memory
	BaseURL   string        `koanf:"base_url"`
	Target    string        `koanf:"target"`
	Timeout   time.Duration `koanf:"timeout"`
}

type SyncConfig struct {
	Interval  time.Duration `koanf:"interval"` // 0 = manual/connectivity triggers only
	BatchSize int           `koanf:"batch_size"`
}

type QueueConfig struct {
	MaxRetries int    `koanf:"max_retries"`
	Requeue    string `koanf:"requeue"` // tail | head
}

type RetentionConfig struct {
	AccessLogDays        int `koanf:"access_log_days"`        // 0 = keep forever
	ValidationRecordDays int `koanf:"validation_record_days"` // synced records only
	PruneIntervalHours   int `koanf:"prune_interval_hours"`
}

// Load reads the optional YAML file at path, fills defaults, then applies
// TURNSTILE_* environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	applyDefaults(k)
	applyEnvOverrides(k)

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	setDefault(k, "env", "dev")

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "gate-device"
	}
	setDefault(k, "device.id", host)
	setDefault(k, "device.event_ids", []string{})

	setDefault(k, "http.addr", ":8080")
	setDefault(k, "http.read_timeout", 10*time.Second)
	setDefault(k, "http.write_timeout", 30*time.Second)

	setDefault(k, "db.path", "./data/turnstile.db")
	setDefault(k, "db.seed_dev", true)

	setDefault(k, "authority.transport", TransportHTTP)
	setDefault(k, "authority.base_url", "http://localhost:9090")
	setDefault(k, "authority.target", "localhost:9091")
	setDefault(k, "authority.timeout", 10*time.Second)

	setDefault(k, "sync.interval", 30*time.Second)
	setDefault(k, "sync.batch_size", 100)

	setDefault(k, "queue.max_retries", 3)
	setDefault(k, "queue.requeue", "tail")

	setDefault(k, "retention.access_log_days", 30)
	setDefault(k, "retention.validation_record_days", 30)
	setDefault(k, "retention.prune_interval_hours", 6)

	setDefault(k, "log.level", "info")
	setDefault(k, "log.encoding", "json")
	setDefault(k, "log.max_size_mb", 50)
	setDefault(k, "log.max_backups", 5)
	setDefault(k, "log.max_age_days", 30)
}

func applyEnvOverrides(k *koanf.Koanf) {
	setString(k, "env", "TURNSTILE_ENV")

	setString(k, "device.id", "TURNSTILE_DEVICE_ID")
	setString(k, "device.gate_id", "TURNSTILE_GATE_ID")
	if ids := splitCSV(os.Getenv("TURNSTILE_EVENT_IDS")); len(ids) > 0 {
		k.Set("device.event_ids", ids)
	}

	setString(k, "http.addr", "TURNSTILE_HTTP_ADDR")
	setString(k, "db.path", "TURNSTILE_DB_PATH")
	if v := strings.TrimSpace(os.Getenv("TURNSTILE_DB_SEED_DEV")); v != "" {
		k.Set("db.seed_dev", strings.EqualFold(v, "true") || v == "1")
	}

	setString(k, "authority.transport", "TURNSTILE_AUTHORITY_TRANSPORT")
	setString(k, "authority.base_url", "TURNSTILE_AUTHORITY_URL")
	setString(k, "authority.target", "TURNSTILE_AUTHORITY_TARGET")
	if secs := getenvInt("TURNSTILE_AUTHORITY_TIMEOUT_SECONDS", 0); secs > 0 {
		k.Set("authority.timeout", time.Duration(secs)*time.Second)
	}

	if v := strings.TrimSpace(os.Getenv("TURNSTILE_SYNC_INTERVAL_SECONDS")); v != "" {
		k.Set("sync.interval", time.Duration(getenvInt("TURNSTILE_SYNC_INTERVAL_SECONDS", 30))*time.Second)
	}
	if n := getenvInt("TURNSTILE_SYNC_BATCH_SIZE", 0); n > 0 {
		k.Set("sync.batch_size", n)
	}

	if n := getenvInt("TURNSTILE_QUEUE_MAX_RETRIES", 0); n > 0 {
		k.Set("queue.max_retries", n)
	}
	setString(k, "queue.requeue", "TURNSTILE_QUEUE_REQUEUE")

	if v := os.Getenv("TURNSTILE_ACCESS_LOG_RETENTION_DAYS"); strings.TrimSpace(v) != "" {
		k.Set("retention.access_log_days", getenvInt("TURNSTILE_ACCESS_LOG_RETENTION_DAYS", 30))
	}
	if v := os.Getenv("TURNSTILE_RECORD_RETENTION_DAYS"); strings.TrimSpace(v) != "" {
		k.Set("retention.validation_record_days", getenvInt("TURNSTILE_RECORD_RETENTION_DAYS", 30))
	}
	if n := getenvInt("TURNSTILE_PRUNE_INTERVAL_HOURS", 0); n > 0 {
		k.Set("retention.prune_interval_hours", n)
	}

	setString(k, "log.level", "TURNSTILE_LOG_LEVEL")
	setString(k, "log.encoding", "TURNSTILE_LOG_ENCODING")
	setString(k, "log.file", "TURNSTILE_LOG_FILE")
}

func (c *Config) normalize() error {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env != "dev" && c.Env != "prod" {
		// fail-soft: treat unknown as dev
		c.Env = "dev"
	}

	c.Authority.Transport = strings.ToLower(strings.TrimSpace(c.Authority.Transport))
	switch c.Authority.Transport {
	case TransportHTTP, TransportGRPC, TransportMemory:
	default:
		return fmt.Errorf("authority.transport %q: want http, grpc or memory", c.Authority.Transport)
	}

	c.Queue.Requeue = strings.ToLower(strings.TrimSpace(c.Queue.Requeue))
	if c.Queue.Requeue != "head" {
		c.Queue.Requeue = "tail"
	}

	if strings.TrimSpace(c.Device.ID) == "" {
		return fmt.Errorf("device.id is required")
	}
	return nil
}

// setDefault only sets the value if the key doesn't already exist
func setDefault(k *koanf.Koanf, key string, value any) {
	if !k.Exists(key) {
		k.Set(key, value)
	}
}

func setString(k *koanf.Koanf, key, env string) {
	if v := getenvDefault(env, ""); v != "" {
		k.Set(key, strings.TrimSpace(v))
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
