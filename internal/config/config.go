// Package config resolves n8nstack settings from, lowest to highest
// precedence: built-in defaults, an optional YAML file, the deployment's
// .secret file and the process environment.
package config

import (
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"n8nstack/internal/bootstrap"
	"n8nstack/internal/n8napi"
	"n8nstack/internal/ownership"
)

const (
	DefaultFile       = "n8nstack.yaml"
	DefaultSecretFile = ".secret"
)

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Admin     AdminConfig     `yaml:"admin"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Redis     RedisConfig     `yaml:"redis"`
	Engine    EngineConfig    `yaml:"engine"`
	Ownership OwnershipConfig `yaml:"ownership"`
	APIKey    APIKeyConfig    `yaml:"api_key"`
	N8N       N8NConfig       `yaml:"n8n"`

	MetricsFile string `yaml:"metrics_file" env:"N8NSTACK_METRICS_FILE, overwrite"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"N8NSTACK_LOG_LEVEL, overwrite" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" env:"N8NSTACK_LOG_FORMAT, overwrite" validate:"omitempty,oneof=text json"`
}

// DatabaseConfig mirrors n8n's own DB_* variables so the same .env serves
// both.
type DatabaseConfig struct {
	Type        string `yaml:"type" env:"DB_TYPE, overwrite" validate:"required,oneof=postgresdb postgres postgresql sqlite"`
	Host        string `yaml:"host" env:"DB_POSTGRESDB_HOST, overwrite"`
	Port        int    `yaml:"port" env:"DB_POSTGRESDB_PORT, overwrite" validate:"gte=0,lte=65535"`
	Name        string `yaml:"name" env:"DB_POSTGRESDB_DATABASE, overwrite"`
	User        string `yaml:"user" env:"DB_POSTGRESDB_USER, overwrite"`
	Password    string `yaml:"password" env:"DB_POSTGRESDB_PASSWORD, overwrite"`
	SSLMode     string `yaml:"sslmode" env:"N8NSTACK_DB_SSLMODE, overwrite" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	SQLitePath  string `yaml:"sqlite_path" env:"DB_SQLITE_DATABASE, overwrite"`
	TablePrefix string `yaml:"table_prefix" env:"DB_TABLE_PREFIX, overwrite"`
	// DSN, when set, is used verbatim instead of the fields above.
	DSN string `yaml:"dsn" env:"N8NSTACK_DATABASE_DSN, overwrite"`
	// Container names the database container; when set, liveness is probed
	// with pg_isready inside it instead of a network ping.
	Container string `yaml:"container" env:"N8NSTACK_DB_CONTAINER, overwrite"`
}

type AdminConfig struct {
	Email     string `yaml:"email" env:"N8N_ADMIN_EMAIL, overwrite" validate:"required,email"`
	Password  string `yaml:"-" env:"N8N_ADMIN_PASSWORD, overwrite" validate:"required,min=6"`
	FirstName string `yaml:"first_name" env:"N8N_ADMIN_FIRST_NAME, overwrite" validate:"max=32"`
	LastName  string `yaml:"last_name" env:"N8N_ADMIN_LAST_NAME, overwrite" validate:"max=32"`
}

type BootstrapConfig struct {
	Interval       time.Duration `yaml:"interval" env:"N8NSTACK_INTERVAL, overwrite" validate:"gt=0"`
	SchemaAttempts int           `yaml:"schema_attempts" env:"N8NSTACK_SCHEMA_ATTEMPTS, overwrite" validate:"gte=1"`
	BcryptCost     int           `yaml:"bcrypt_cost" env:"N8NSTACK_BCRYPT_COST, overwrite" validate:"gte=10,lte=31"`
}

type RedisConfig struct {
	// URL enables the Redis liveness probe, e.g. redis://redis:6379/0.
	URL       string `yaml:"url" env:"N8NSTACK_REDIS_URL, overwrite" validate:"omitempty,url"`
	ReadWrite bool   `yaml:"read_write" env:"N8NSTACK_REDIS_READ_WRITE, overwrite"`
}

type EngineConfig struct {
	// Host overrides DOCKER_HOST for the engine API client.
	Host string `yaml:"host" env:"N8NSTACK_ENGINE_HOST, overwrite"`
}

type OwnershipConfig struct {
	Paths       []string `yaml:"paths" env:"N8NSTACK_OWNERSHIP_PATHS, overwrite"`
	UID         int      `yaml:"uid" env:"N8NSTACK_OWNER_UID, overwrite" validate:"gte=0"`
	GID         int      `yaml:"gid" env:"N8NSTACK_OWNER_GID, overwrite" validate:"gte=0"`
	HelperImage string   `yaml:"helper_image" env:"N8NSTACK_HELPER_IMAGE, overwrite" validate:"required"`
	Compose     string   `yaml:"compose" env:"N8NSTACK_COMPOSE_FILE, overwrite"`
	Services    []string `yaml:"services" env:"N8NSTACK_COMPOSE_SERVICES, overwrite"`
}

type APIKeyConfig struct {
	Dir string `yaml:"dir" env:"CONFIG_DIR, overwrite" validate:"required"`
	Key string `yaml:"-" env:"N8N_API_KEY, overwrite"`
}

// N8NConfig locates the running n8n instance for the workflow commands.
type N8NConfig struct {
	URL     string        `yaml:"url" env:"N8N_URL, overwrite" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" env:"N8NSTACK_N8N_TIMEOUT, overwrite" validate:"gt=0"`
	// WorkflowsDir receives exported workflow definitions.
	WorkflowsDir string `yaml:"workflows_dir" env:"WORKFLOWS_DIR, overwrite" validate:"required"`
}

// Default returns the built-in settings: a local Postgres named n8n and the
// n8n container's node user (1000:1000) as storage owner.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{
			Type:    "postgresdb",
			Host:    "localhost",
			Port:    5432,
			Name:    "n8n",
			User:    "n8n",
			SSLMode: "disable",
		},
		Admin: AdminConfig{FirstName: "Admin", LastName: "User"},
		Bootstrap: BootstrapConfig{
			Interval:       bootstrap.DefaultInterval,
			SchemaAttempts: bootstrap.DefaultSchemaAttempts,
			BcryptCost:     bootstrap.MinBcryptCost,
		},
		Ownership: OwnershipConfig{
			UID:         1000,
			GID:         1000,
			HelperImage: ownership.DefaultHelperImage,
		},
		APIKey: APIKeyConfig{Dir: "config"},
		N8N: N8NConfig{
			URL:          n8napi.DefaultURL,
			Timeout:      n8napi.DefaultTimeout,
			WorkflowsDir: "workflows",
		},
	}
}

// IsSQLite reports whether the database is n8n's SQLite file.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Type == "sqlite"
}

// ConnString returns the driver DSN.
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.IsSQLite() {
		return filepath.Clean(d.SQLitePath)
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u.String()
}

// Redacted is ConnString with the password masked, for logs.
func (d DatabaseConfig) Redacted() string {
	if d.IsSQLite() && d.DSN == "" {
		return d.ConnString()
	}
	u, err := url.Parse(d.ConnString())
	if err != nil {
		return "<unparseable dsn>"
	}
	return u.Redacted()
}
