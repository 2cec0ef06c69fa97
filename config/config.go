package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Debug                        bool          `envconfig:"debug"`
	Port                         int           `envconfig:"port" default:"3000"`
	Env                          string        `envconfig:"env" default:"dev"`
	DatabaseURL                  string        `envconfig:"database_url"`
	PostgresHost                 string        `envconfig:"postgres_host" default:"localhost"`
	PostgresPort                 int           `envconfig:"postgres_port" default:"5432"`
	PostgresUser                 string        `envconfig:"postgres_user"`
	PostgresPassword             string        `envconfig:"postgres_password"`
	PostgresDB                   string        `envconfig:"postgres_db"`
	JWTSecret                    string        `envconfig:"jwt_secret" required:"true"`
	TokenTTL                     time.Duration `envconfig:"token_ttl" default:"1h"`
	AllowedOrigins               []string      `envconfig:"allowed_origins" default:"*"`
	AuthRateLimit                uint          `envconfig:"auth_rate_limit" default:"20"`
	SocketRateLimit              float64       `envconfig:"socket_rate_limit" default:"5"`
	SocketBurst                  int           `envconfig:"socket_burst" default:"10"`
	GoogleApplicationCredentials string        `envconfig:"google_application_credentials"`
	ShutdownTimeout              time.Duration `envconfig:"shutdown_timeout" default:"10s"`
}

func Load() (*Config, error) {
	env := os.Getenv("GIN_MODE")
	if env != "release" {
		if err := godotenv.Load("./.env"); err != nil {
			log.Printf("couldn't load env vars: %v", err)
		}
	}

	c := &Config{}
	err := envconfig.Process("dmchat", c)
	if err != nil {
		return nil, err
	}
	c.AllowedOrigins = normalizeOrigins(c.AllowedOrigins)
	return c, nil
}

// AllowAllOrigins reports whether the origin list is the wildcard.
func (c *Config) AllowAllOrigins() bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return len(c.AllowedOrigins) == 0
}

func normalizeOrigins(origins []string) []string {
	normalized := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		normalized = append(normalized, strings.ToLower(o))
	}
	return normalized
}
