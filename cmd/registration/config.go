package main

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
	registration "github.com/goliatone/go-registration"
)

// AppConfig is loaded by go-config from config/app.json and the environment
type AppConfig struct {
	Registration registration.Settings `koanf:"registration" json:"registration"`
	Persistence  Persistence           `koanf:"persistence" json:"persistence"`
	Server       Server                `koanf:"server" json:"server"`
	Mail         Mail                  `koanf:"mail" json:"mail"`
}

// Persistence implements persistence.Config. Driver is inferred from the
// DSN scheme when empty.
type Persistence struct {
	Driver         string `koanf:"driver" json:"driver"`
	DSN            string `koanf:"dsn" json:"dsn"`
	Debug          bool   `koanf:"debug" json:"debug"`
	PingTimeout    string `koanf:"ping_timeout" json:"ping_timeout"`
	OtelIdentifier string `koanf:"otel_identifier" json:"otel_identifier"`
}

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"

	defaultPingTimeout = 5 * time.Second
)

func (p Persistence) GetDebug() bool {
	return p.Debug
}

func (p Persistence) GetDriver() string {
	switch strings.ToLower(strings.TrimSpace(p.Driver)) {
	case "postgres", "postgresql", "pg":
		return driverPostgres
	case "sqlite", "sqlite3":
		return driverSQLite
	case "":
	default:
		return strings.ToLower(strings.TrimSpace(p.Driver))
	}

	dsn := strings.ToLower(strings.TrimSpace(p.DSN))
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return driverPostgres
	}
	return driverSQLite
}

func (p Persistence) GetServer() string {
	return p.DSN
}

func (p Persistence) GetPingTimeout() time.Duration {
	if timeout, err := time.ParseDuration(strings.TrimSpace(p.PingTimeout)); err == nil && timeout > 0 {
		return timeout
	}
	return defaultPingTimeout
}

func (p Persistence) GetOtelIdentifier() string {
	return p.OtelIdentifier
}

type Server struct {
	Address string `koanf:"address" json:"address"`
}

// Mail configures SMTP delivery, activation emails are logged when Addr is empty
type Mail struct {
	Addr     string `koanf:"addr" json:"addr"`
	Host     string `koanf:"host" json:"host"`
	Username string `koanf:"username" json:"username"`
	Password string `koanf:"password" json:"password"`
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Persistence: Persistence{
			DSN:         "file:registration.db?cache=shared",
			PingTimeout: defaultPingTimeout.String(),
		},
		Server: Server{
			Address: ":8572",
		},
		Registration: registration.Settings{
			ActivationDays:   registration.DefaultActivationDays,
			ActivationMethod: registration.ActivationMethodCreateAccount,
			RegistrationForm: registration.FormUniqueEmail,
			ActivationForm:   registration.FormAccount,
		},
	}
}

func (c AppConfig) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Persistence, validation.By(func(value any) error {
			p, _ := value.(Persistence)
			if strings.TrimSpace(p.DSN) == "" {
				return errors.New("persistence dsn is required", errors.CategoryValidation)
			}
			if driver := p.GetDriver(); driver != driverPostgres && driver != driverSQLite {
				return errors.New("unsupported persistence driver", errors.CategoryValidation).
					WithMetadata(map[string]any{"driver": driver})
			}
			if timeout := strings.TrimSpace(p.PingTimeout); timeout != "" {
				if _, err := time.ParseDuration(timeout); err != nil {
					return errors.Wrap(err, errors.CategoryValidation, "invalid persistence ping_timeout")
				}
			}
			return nil
		})),
		validation.Field(&c.Server, validation.By(func(value any) error {
			s, _ := value.(Server)
			if strings.TrimSpace(s.Address) == "" {
				return errors.New("server address is required", errors.CategoryValidation)
			}
			return nil
		})),
	)
	if err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid application config")
	}

	return c.Registration.Validate()
}
