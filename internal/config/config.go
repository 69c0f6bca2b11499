// Package config loads fishercore settings from defaults, an optional YAML
// file and FISHER_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"fishercore/internal/blob"

	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"
)

const (
	minNamespaceLen = 1
	maxNamespaceLen = 64
)

// Storage drivers accepted by OpenPersistentStore.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config holds every knob the service and CLI read.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Blob    BlobConfig    `yaml:"blob"`
	Log     LogConfig     `yaml:"log"`
	Archive ArchiveConfig `yaml:"archive"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StorageConfig selects the fisher record backend.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// BlobConfig selects the catch archive backend.
type BlobConfig struct {
	Driver string        `yaml:"driver"`
	FSRoot string        `yaml:"fs_root"`
	S3     blob.S3Config `yaml:"s3"`
}

// Options converts the section into blob.Open parameters.
func (b BlobConfig) Options() blob.Options {
	return blob.Options{Driver: blob.Driver(b.Driver), FSRoot: b.FSRoot, S3: b.S3}
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ArchiveConfig toggles the blob-backed catch archive.
type ArchiveConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig names the prometheus namespace.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{Driver: StorageSQLite, SQLitePath: "fishercore.db"},
		Blob:    BlobConfig{Driver: string(blob.DriverFilesystem), FSRoot: "./blobdata", S3: blob.S3Config{Region: "us-east-1"}},
		Log:     LogConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Namespace: "fishercore"},
	}
}

// Load reads path (when non-empty) over the defaults and then applies the
// environment. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Storage.Driver = env("FISHER_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.SQLitePath = env("FISHER_SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.PostgresDSN = env("FISHER_POSTGRES_DSN", c.Storage.PostgresDSN)

	c.Blob.Driver = env("FISHER_BLOB_DRIVER", c.Blob.Driver)
	c.Blob.FSRoot = env("FISHER_BLOB_FS_ROOT", c.Blob.FSRoot)
	c.Blob.S3.Bucket = env("FISHER_BLOB_S3_BUCKET", c.Blob.S3.Bucket)
	c.Blob.S3.Region = env("FISHER_BLOB_S3_REGION", c.Blob.S3.Region)
	c.Blob.S3.Endpoint = env("FISHER_BLOB_S3_ENDPOINT", c.Blob.S3.Endpoint)
	c.Blob.S3.PathStyle = parseBoolEnv("FISHER_BLOB_S3_PATH_STYLE", c.Blob.S3.PathStyle)
	c.Blob.S3.AccessKeyID = env("FISHER_BLOB_S3_ACCESS_KEY_ID", c.Blob.S3.AccessKeyID)
	c.Blob.S3.SecretAccessKey = env("FISHER_BLOB_S3_SECRET_ACCESS_KEY", c.Blob.S3.SecretAccessKey)

	c.Log.Level = strings.ToLower(env("FISHER_LOG_LEVEL", c.Log.Level))
	c.Log.Format = strings.ToLower(env("FISHER_LOG_FORMAT", c.Log.Format))
	c.Archive.Enabled = parseBoolEnv("FISHER_ARCHIVE_ENABLED", c.Archive.Enabled)
	c.Metrics.Namespace = env("FISHER_METRICS_NAMESPACE", c.Metrics.Namespace)
}

// Validate rejects unknown drivers and formats.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Archive.Enabled && c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket required when the archive uses s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if n := len(c.Metrics.Namespace); n < minNamespaceLen || n > maxNamespaceLen {
		errs = append(errs, fmt.Errorf("metrics namespace length %d outside %d..%d", n, minNamespaceLen, maxNamespaceLen))
	} else if !model.LegacyValidation.IsValidMetricName(c.Metrics.Namespace) {
		errs = append(errs, fmt.Errorf("metrics namespace %q is not a valid metric name", c.Metrics.Namespace))
	}
	return errors.Join(errs...)
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// RedactDSN hides credentials in DSN-like URLs to avoid logging secrets.
func RedactDSN(s string) string {
	if s == "" {
		return s
	}
	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return s
	}
	if name := u.User.Username(); name != "" {
		u.User = url.UserPassword(name, "***")
	} else {
		u.User = url.User("***")
	}
	return u.String()
}
