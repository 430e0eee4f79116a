// Package config assembles the immutable run configuration from the
// environment, an optional .env file, and command line overrides.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/shanehull/terpalert/internal/types"
)

// DefaultHalls is the reference deployment: the three dining halls and the
// snapshot columns that hold their flags.
const DefaultHalls = "South:16:south,Yahentamitsi:19:yahentamitsi,251:51:two_fifty_one"

const (
	SnapshotAppend = "append"
	SnapshotOnce   = "once"

	TransportAPI  = "api"
	TransportSMTP = "smtp"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	MenuBaseURL string         `env:"MENU_BASE_URL" envDefault:"https://nutrition.umd.edu" validate:"required,url"`
	HallsSpec   string         `env:"TERPALERT_HALLS" envDefault:"South:16:south,Yahentamitsi:19:yahentamitsi,251:51:two_fifty_one"`
	Timezone    string         `env:"TERPALERT_TIMEZONE" envDefault:"America/New_York" validate:"required"`
	Halls       []types.Hall   `env:"-" validate:"min=1,dive"`
	Location    *time.Location `env:"-" validate:"-"`

	Fetch   FetchConfig
	Store   StoreConfig
	Notify  NotifyConfig
	SMTP    SMTPConfig
	AI      AIConfig
	Logging LoggingConfig
}

type FetchConfig struct {
	Timeout        time.Duration `env:"FETCH_TIMEOUT" envDefault:"20s" validate:"gt=0"`
	MaxAttempts    uint          `env:"FETCH_MAX_ATTEMPTS" envDefault:"3" validate:"min=1,max=10"`
	InitialBackoff time.Duration `env:"FETCH_INITIAL_BACKOFF" envDefault:"500ms" validate:"gt=0"`
	UserAgent      string        `env:"FETCH_USER_AGENT" envDefault:"terpalert/1.0"`
}

type StoreConfig struct {
	Driver         string `env:"STORE_DRIVER" envDefault:"postgres" validate:"oneof=postgres sqlite"`
	DatabaseURL    string `env:"DATABASE_URL" validate:"required_if=Driver postgres"`
	SQLitePath     string `env:"SQLITE_PATH" envDefault:"terpalert.db" validate:"required_if=Driver sqlite"`
	SnapshotPolicy string `env:"SNAPSHOT_POLICY" envDefault:"append" validate:"oneof=append once"`
}

type NotifyConfig struct {
	Transport     string        `env:"NOTIFY_TRANSPORT" envDefault:"api" validate:"oneof=api smtp"`
	APIURL        string        `env:"NOTIFY_API_URL" validate:"required_if=Transport api"`
	Timeout       time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"15s" validate:"gt=0"`
	MaxAttempts   uint          `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"3" validate:"min=1,max=10"`
	Concurrency   int           `env:"NOTIFY_CONCURRENCY" envDefault:"4" validate:"min=1,max=64"`
	RatePerSecond float64       `env:"NOTIFY_RATE_PER_SEC" envDefault:"5" validate:"gt=0"`
	HistoryDir    string        `env:"NOTIFY_HISTORY_DIR"`
	UseHistory    bool          `env:"NOTIFY_USE_HISTORY" envDefault:"true"`
}

type SMTPConfig struct {
	Server    string `env:"SMTP_SERVER" envDefault:"smtp.gmail.com"`
	Port      int    `env:"SMTP_PORT" envDefault:"587" validate:"min=1,max=65535"`
	User      string `env:"SMTP_USER"`
	Pass      string `env:"SMTP_PASS"`
	FromEmail string `env:"FROM_EMAIL" validate:"omitempty,email"`
}

type AIConfig struct {
	APIKey string `env:"GEMINI_API_KEY"`
	Model  string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	Format string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json text"`
}

// Load reads .env (if present) and the process environment, then validates
// the result. The returned Config must not be mutated after startup.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finish derives computed fields and validates the whole structure.
func (c *Config) finish() error {
	halls, err := ParseHalls(c.HallsSpec)
	if err != nil {
		return err
	}
	c.Halls = halls

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid time zone name '%s': %w", c.Timezone, err)
	}
	c.Location = loc

	if c.SMTP.FromEmail == "" && c.SMTP.User != "" {
		c.SMTP.FromEmail = c.SMTP.User
	}

	return c.Validate()
}

// Validate checks struct rules and the cross-section ones validator tags
// cannot express.
func (c *Config) Validate() error {
	if err := validateStruct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Notify.Transport == TransportSMTP {
		if c.SMTP.Server == "" || c.SMTP.User == "" || c.SMTP.Pass == "" || c.SMTP.FromEmail == "" {
			return fmt.Errorf("invalid config: smtp transport requires SMTP_SERVER, SMTP_USER, SMTP_PASS and a from address")
		}
	}
	return nil
}

// ParseHalls parses "Name:Code:Column" entries separated by commas.
func ParseHalls(spec string) ([]types.Hall, error) {
	var halls []types.Hall
	seen := make(map[string]bool)
	columns := make(map[string]bool)

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("invalid hall entry %q: want Name:Code:Column", part)
		}
		h := types.Hall{
			Name:   strings.TrimSpace(fields[0]),
			Code:   strings.TrimSpace(fields[1]),
			Column: strings.TrimSpace(fields[2]),
		}
		if seen[h.Name] {
			return nil, fmt.Errorf("duplicate hall %q", h.Name)
		}
		if columns[h.Column] {
			return nil, fmt.Errorf("duplicate snapshot column %q", h.Column)
		}
		seen[h.Name] = true
		columns[h.Column] = true
		halls = append(halls, h)
	}

	if len(halls) == 0 {
		return nil, fmt.Errorf("no halls configured")
	}
	return halls, nil
}

var (
	validate     = validator.New()
	sqlIdentExpr = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
)

func init() {
	_ = validate.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
		return sqlIdentExpr.MatchString(fl.Field().String())
	})
}

func validateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		var msgs []string
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}
