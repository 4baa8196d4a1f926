// Package config loads service settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-print"
	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// MinSigningKeyLength is the minimum HS256 secret size outside development
	MinSigningKeyLength = 32
)

// Config holds every setting the identity daemon reads
type Config struct {
	Env       string `env:"IDENTITY_ENV" envDefault:"development" json:"env"`
	HTTPAddr  string `env:"IDENTITY_HTTP_ADDR" envDefault:":8080" json:"http_addr"`
	LogLevel  string `env:"IDENTITY_LOG_LEVEL" envDefault:"info" json:"log_level"`
	LogFormat string `env:"IDENTITY_LOG_FORMAT" envDefault:"json" json:"log_format"`

	DBDriver    string `env:"IDENTITY_DB_DRIVER" envDefault:"sqlite" json:"db_driver"`
	DBDSN       string `env:"IDENTITY_DB_DSN" envDefault:"file:identity.db?_pragma=busy_timeout(5000)" json:"db_dsn"`
	AutoMigrate bool   `env:"IDENTITY_DB_AUTO_MIGRATE" envDefault:"true" json:"auto_migrate"`
	DBDebug     bool   `env:"IDENTITY_DB_DEBUG" json:"db_debug"`

	SigningKey      string        `env:"IDENTITY_SIGNING_KEY" json:"signing_key"`
	TokenExpiration time.Duration `env:"IDENTITY_TOKEN_EXPIRATION" envDefault:"72h" json:"token_expiration"`
	Issuer          string        `env:"IDENTITY_TOKEN_ISSUER" envDefault:"go-identity" json:"issuer"`
	Audience        []string      `env:"IDENTITY_TOKEN_AUDIENCE" envSeparator:"," json:"audience"`

	OTPTTL              time.Duration `env:"IDENTITY_OTP_TTL" envDefault:"10m" json:"otp_ttl"`
	BcryptCost          int           `env:"IDENTITY_BCRYPT_COST" json:"bcrypt_cost"`
	NotificationTimeout time.Duration `env:"IDENTITY_NOTIFICATION_TIMEOUT" envDefault:"5s" json:"notification_timeout"`
	DeterministicIDs    bool          `env:"IDENTITY_DETERMINISTIC_IDS" json:"deterministic_ids"`
	DefaultRegion       string        `env:"IDENTITY_DEFAULT_REGION" envDefault:"US" json:"default_region"`

	SMTPHost     string `env:"IDENTITY_SMTP_HOST" json:"smtp_host"`
	SMTPPort     int    `env:"IDENTITY_SMTP_PORT" envDefault:"587" json:"smtp_port"`
	SMTPUsername string `env:"IDENTITY_SMTP_USERNAME" json:"smtp_username"`
	SMTPPassword string `env:"IDENTITY_SMTP_PASSWORD" json:"smtp_password"`
	SMTPFrom     string `env:"IDENTITY_SMTP_FROM" json:"smtp_from"`

	RedisAddr     string        `env:"IDENTITY_REDIS_ADDR" json:"redis_addr"`
	RedisPassword string        `env:"IDENTITY_REDIS_PASSWORD" json:"redis_password"`
	RedisDB       int           `env:"IDENTITY_REDIS_DB" json:"redis_db"`
	LockTTL       time.Duration `env:"IDENTITY_LOCK_TTL" envDefault:"15s" json:"lock_ttl"`
}

var _ identity.Config = (*Config)(nil)

// Load reads dotenv files (missing files are ignored), parses the
// environment and validates the result.
func Load(files ...string) (*Config, error) {
	if err := loadDotenv(files...); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// IsDevelopment reports whether the daemon runs in development mode
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, EnvDevelopment)
}

// Validate checks the configuration
func (c *Config) Validate() error {
	keyRules := []validation.Rule{validation.Required}
	var smtpRules []validation.Rule
	if !c.IsDevelopment() {
		keyRules = append(keyRules, validation.Length(MinSigningKeyLength, 0))
		// codes are only logged when there is no mail transport
		smtpRules = append(smtpRules, validation.Required)
	}

	err := validation.ValidateStruct(c,
		validation.Field(&c.Env, validation.Required, validation.In(EnvDevelopment, EnvProduction)),
		validation.Field(&c.HTTPAddr, validation.Required),
		validation.Field(&c.DBDriver, validation.Required, validation.In("sqlite", "sqlite3", "postgres", "pgx", "postgresql")),
		validation.Field(&c.DBDSN, validation.Required),
		validation.Field(&c.SigningKey, keyRules...),
		validation.Field(&c.TokenExpiration, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.OTPTTL, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.NotificationTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.BcryptCost, validation.Min(0), validation.Max(31)),
		validation.Field(&c.DefaultRegion, validation.Required, validation.Length(2, 2)),
		validation.Field(&c.SMTPHost, smtpRules...),
		validation.Field(&c.SMTPPort, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.SMTPFrom, is.Email),
	)
	if err != nil {
		return identity.ValidationError(err, "invalid configuration")
	}
	return nil
}

// SMTPEnabled reports whether outgoing mail is configured
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// RedisEnabled reports whether the distributed locker should be used
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func (c *Config) GetSigningKey() string                 { return c.SigningKey }
func (c *Config) GetTokenExpiration() time.Duration     { return c.TokenExpiration }
func (c *Config) GetIssuer() string                     { return c.Issuer }
func (c *Config) GetAudience() []string                 { return c.Audience }
func (c *Config) GetOTPTTL() time.Duration              { return c.OTPTTL }
func (c *Config) GetBcryptCost() int                    { return c.BcryptCost }
func (c *Config) GetNotificationTimeout() time.Duration { return c.NotificationTimeout }
func (c *Config) GetDeterministicIDs() bool             { return c.DeterministicIDs }
func (c *Config) GetDefaultRegion() string              { return c.DefaultRegion }

// Redacted returns a copy with secrets masked
func (c *Config) Redacted() Config {
	out := *c
	out.SigningKey = mask(c.SigningKey)
	out.SMTPPassword = mask(c.SMTPPassword)
	out.RedisPassword = mask(c.RedisPassword)
	out.Audience = append([]string(nil), c.Audience...)
	return out
}

// Dump writes the redacted configuration as indented JSON to stdout
func (c *Config) Dump() {
	c.DumpTo(os.Stdout)
}

// DumpTo writes the redacted configuration as indented JSON to w
func (c *Config) DumpTo(w io.Writer) {
	fmt.Fprintln(w, print.MaybePrettyJSON(c.Redacted()))
}

func mask(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 4:
		return "****"
	default:
		return secret[:2] + strings.Repeat("*", len(secret)-4) + secret[len(secret)-2:]
	}
}
