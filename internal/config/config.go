package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config del servicio. Los secretos (JWT_SECRET, VETSECURE_ENCRYPTION_KEY)
// NUNCA van en YAML: solo environment. El resto admite YAML con override
// por env var.
type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Addr               string   `yaml:"addr"`
		MetricsAddr        string   `yaml:"metrics_addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		// memory | postgres
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MinConns        int    `yaml:"min_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	JWT struct {
		Secret     string `yaml:"-"` // solo env
		Issuer     string `yaml:"issuer"`
		Audience   string `yaml:"audience"`
		AccessTTL  string `yaml:"access_ttl"`
		RefreshTTL string `yaml:"refresh_ttl"`
		MFATTL     string `yaml:"mfa_ttl"`
	} `yaml:"jwt"`

	MFA struct {
		Issuer string `yaml:"issuer"` // label en la app authenticator
		QRSize int    `yaml:"qr_size"`
	} `yaml:"mfa"`

	Encryption struct {
		Key string `yaml:"-"` // solo env, base64 de 32 bytes
	} `yaml:"encryption"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		// memory | redis
		Backend string `yaml:"backend"`
		Redis   struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Login struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"login"`
		MFAVerify struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"mfa_verify"`
	} `yaml:"rate"`

	Google struct {
		Enabled  bool   `yaml:"enabled"`
		ClientID string `yaml:"client_id"`
	} `yaml:"google"`
}

// Load lee el YAML (opcional: path vacío = solo defaults+env) y aplica
// overrides de environment.
func Load(path string) (*Config, error) {
	c := &Config{}
	applyDefaults(c)

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(c)
	if err := validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

func applyDefaults(c *Config) {
	c.App.Env = "dev"
	c.Log.Level = "info"
	c.Server.Addr = ":8080"
	c.Server.MetricsAddr = ":9090"
	c.Server.CORSAllowedOrigins = []string{"http://localhost:3000"}
	c.Storage.Driver = "memory"
	c.Storage.Postgres.MaxOpenConns = 5
	c.Storage.Postgres.MinConns = 2
	c.Storage.Postgres.ConnMaxLifetime = "30m"
	c.JWT.Issuer = "vetsecure"
	c.JWT.Audience = "vetsecure-api"
	c.JWT.AccessTTL = "15m"
	c.JWT.RefreshTTL = "336h" // 14 días
	c.JWT.MFATTL = "2m"
	c.MFA.Issuer = "VetSecure"
	c.MFA.QRSize = 256
	c.Rate.Enabled = true
	c.Rate.Backend = "memory"
	c.Rate.Redis.Prefix = "vetsecure:rl:"
	c.Rate.Login.Limit = 10
	c.Rate.Login.Window = "1m"
	c.Rate.MFAVerify.Limit = 5
	c.Rate.MFAVerify.Window = "1m"
}

func applyEnv(c *Config) {
	c.App.Env = getenv("APP_ENV", c.App.Env)
	c.Log.Level = getenv("LOG_LEVEL", c.Log.Level)
	c.Server.Addr = getenv("SERVER_ADDR", c.Server.Addr)
	c.Server.MetricsAddr = getenv("METRICS_ADDR", c.Server.MetricsAddr)
	if v := getenv("SERVER_CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.Server.CORSAllowedOrigins = splitCSV(v)
	}
	c.Storage.Driver = getenv("STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.DSN = getenv("STORAGE_DSN", c.Storage.DSN)
	c.JWT.Secret = getenv("JWT_SECRET", "")
	c.Encryption.Key = getenv("VETSECURE_ENCRYPTION_KEY", "")
	c.Rate.Backend = getenv("RATE_BACKEND", c.Rate.Backend)
	c.Rate.Redis.Addr = getenv("REDIS_ADDR", c.Rate.Redis.Addr)
	c.Google.ClientID = getenv("GOOGLE_CLIENT_ID", c.Google.ClientID)
	if v := getenv("GOOGLE_ENABLED", ""); v != "" {
		c.Google.Enabled, _ = strconv.ParseBool(v)
	}
}

func validate(c *Config) error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET no seteada")
	}
	if c.Encryption.Key == "" {
		return fmt.Errorf("VETSECURE_ENCRYPTION_KEY no seteada; genere una con: openssl rand -base64 32")
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("storage.driver=postgres requiere STORAGE_DSN")
	}
	if c.Google.Enabled && c.Google.ClientID == "" {
		return fmt.Errorf("google.enabled requiere GOOGLE_CLIENT_ID")
	}
	return nil
}

// ParseTTL parsea una duración de config con fallback.
func ParseTTL(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil && d > 0 {
		return d
	}
	return def
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
