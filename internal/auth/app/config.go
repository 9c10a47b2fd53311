package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aussiebroadwan/agencydesk/pkg/httpx"
)

// Config is read from the environment and an optional .env file in the
// working directory. Environment variables win.
type Config struct {
	Issuer         string `mapstructure:"AUTH_ISSUER"`
	Audience       string `mapstructure:"AUTH_AUDIENCE"`   // comma separated
	BootstrapToken string `mapstructure:"BOOTSTRAP_TOKEN"` // empty disables /v1/bootstrap

	Algorithm      string `mapstructure:"AUTH_ALGORITHM"`        // EdDSA or ES256
	NumKeys        int    `mapstructure:"AUTH_NUM_KEYS"`         // ephemeral keys to generate
	SigningKeyFile string `mapstructure:"AUTH_SIGNING_KEY_FILE"` // comma separated PEM files; tokens survive restarts

	DatabaseFile string `mapstructure:"AUTH_DATABASE_FILE"`
	DatabaseURL  string `mapstructure:"AUTH_DATABASE_URL"` // postgres DSN; takes precedence over the file
	PepperFile   string `mapstructure:"AUTH_PEPPER_FILE"`

	SessionTTL      time.Duration `mapstructure:"AUTH_SESSION_TTL"`
	MFACodeTTL      time.Duration `mapstructure:"AUTH_MFA_CODE_TTL"`
	MFAMaxAttempts  int           `mapstructure:"AUTH_MFA_MAX_ATTEMPTS"`
	MFAMaxResends   int           `mapstructure:"AUTH_MFA_MAX_RESENDS"`
	MFAResendWindow time.Duration `mapstructure:"AUTH_MFA_RESEND_WINDOW"` // lifetime of a sign-in's challenge chain

	SMTPAddr     string        `mapstructure:"SMTP_ADDR"` // host:port
	SMTPUsername string        `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string        `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string        `mapstructure:"SMTP_FROM"`
	SMTPTimeout  time.Duration `mapstructure:"SMTP_TIMEOUT"`
	MailOutbox   bool          `mapstructure:"MAIL_OUTBOX"` // keep codes in memory and serve /v1/dev/outbox

	Env           string        `mapstructure:"ENV"` // dev, test, staging, prod
	LogLevel      string        `mapstructure:"LOG_LEVEL"`
	LogFormat     string        `mapstructure:"LOG_FORMAT"` // json or text
	Port          int           `mapstructure:"PORT"`
	ShutdownGrace time.Duration `mapstructure:"SHUTDOWN_GRACE_PERIOD"`
	Housekeeping  time.Duration `mapstructure:"HOUSEKEEPING_INTERVAL"`

	RateLimitConfig `mapstructure:",squash"`
}

// RateLimitConfig overrides the per-class request limits.
type RateLimitConfig struct {
	StrictRequests    int `mapstructure:"RATELIMIT_STRICT_REQUESTS"`
	StrictWindowSec   int `mapstructure:"RATELIMIT_STRICT_WINDOW_SEC"`
	StrictBurst       int `mapstructure:"RATELIMIT_STRICT_BURST"`
	ModerateRequests  int `mapstructure:"RATELIMIT_MODERATE_REQUESTS"`
	ModerateWindowSec int `mapstructure:"RATELIMIT_MODERATE_WINDOW_SEC"`
	ModerateBurst     int `mapstructure:"RATELIMIT_MODERATE_BURST"`
	PublicRequests    int `mapstructure:"RATELIMIT_PUBLIC_REQUESTS"`
	PublicWindowSec   int `mapstructure:"RATELIMIT_PUBLIC_WINDOW_SEC"`
	PublicBurst       int `mapstructure:"RATELIMIT_PUBLIC_BURST"`
}

const envProd = "prod"

// LoadConfig reads .env (if present), applies defaults, then validates.
func LoadConfig() (Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()

	d := httpx.DefaultRateLimitProfiles()
	defaults := map[string]any{
		"AUTH_ISSUER":            "agencydesk-auth",
		"AUTH_AUDIENCE":          "agencydesk",
		"BOOTSTRAP_TOKEN":        "",
		"AUTH_ALGORITHM":         "EdDSA",
		"AUTH_NUM_KEYS":          3,
		"AUTH_SIGNING_KEY_FILE":  "",
		"AUTH_DATABASE_FILE":     "auth.db",
		"AUTH_DATABASE_URL":      "",
		"AUTH_PEPPER_FILE":       "pepper",
		"AUTH_SESSION_TTL":       12 * time.Hour,
		"AUTH_MFA_CODE_TTL":      10 * time.Minute,
		"AUTH_MFA_MAX_ATTEMPTS":  3,
		"AUTH_MFA_MAX_RESENDS":   3,
		"AUTH_MFA_RESEND_WINDOW": 30 * time.Minute,
		"SMTP_ADDR":              "",
		"SMTP_USERNAME":          "",
		"SMTP_PASSWORD":          "",
		"SMTP_FROM":              "",
		"SMTP_TIMEOUT":           10 * time.Second,
		"MAIL_OUTBOX":            false,
		"ENV":                    "dev",
		"LOG_LEVEL":              "info",
		"LOG_FORMAT":             "json",
		"PORT":                   8080,
		"SHUTDOWN_GRACE_PERIOD":  10 * time.Second,
		"HOUSEKEEPING_INTERVAL":  time.Hour,

		"RATELIMIT_STRICT_REQUESTS":     d.Strict.RequestsPerWindow,
		"RATELIMIT_STRICT_WINDOW_SEC":   int(d.Strict.Window.Seconds()),
		"RATELIMIT_STRICT_BURST":        d.Strict.Burst,
		"RATELIMIT_MODERATE_REQUESTS":   d.Moderate.RequestsPerWindow,
		"RATELIMIT_MODERATE_WINDOW_SEC": int(d.Moderate.Window.Seconds()),
		"RATELIMIT_MODERATE_BURST":      d.Moderate.Burst,
		"RATELIMIT_PUBLIC_REQUESTS":     d.Public.RequestsPerWindow,
		"RATELIMIT_PUBLIC_WINDOW_SEC":   int(d.Public.Window.Seconds()),
		"RATELIMIT_PUBLIC_BURST":        d.Public.Burst,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.Issuer == "":
		return errors.New("config: AUTH_ISSUER must be set")
	case c.Port <= 0 || c.Port > 65535:
		return errors.New("config: PORT must be between 1 and 65535")
	case c.SessionTTL <= 0:
		return errors.New("config: AUTH_SESSION_TTL must be positive")
	case c.MFACodeTTL <= 0:
		return errors.New("config: AUTH_MFA_CODE_TTL must be positive")
	case c.MFAMaxAttempts <= 0:
		return errors.New("config: AUTH_MFA_MAX_ATTEMPTS must be positive")
	case c.MFAMaxResends <= 0:
		return errors.New("config: AUTH_MFA_MAX_RESENDS must be positive")
	case c.MFAResendWindow < c.MFACodeTTL:
		return errors.New("config: AUTH_MFA_RESEND_WINDOW must not be shorter than AUTH_MFA_CODE_TTL")
	case c.MailOutbox && c.IsProd():
		return errors.New("config: MAIL_OUTBOX must not be true when ENV=prod")
	case !c.MailOutbox && c.SMTPAddr == "":
		return errors.New("config: SMTP_ADDR must be set unless MAIL_OUTBOX is true")
	case !c.MailOutbox && c.SMTPFrom == "":
		return errors.New("config: SMTP_FROM must be set unless MAIL_OUTBOX is true")
	}
	for name, l := range map[string]httpx.RateLimitConfig{
		"STRICT":   c.RateLimits().Strict,
		"MODERATE": c.RateLimits().Moderate,
		"PUBLIC":   c.RateLimits().Public,
	} {
		if !l.Valid() {
			return fmt.Errorf("config: RATELIMIT_%s_* must all be positive", name)
		}
	}
	return nil
}

func (c Config) IsProd() bool { return strings.EqualFold(c.Env, envProd) }

// AudienceList splits Audience on commas.
func (c Config) AudienceList() []string {
	return splitList(c.Audience)
}

func (c Config) SigningKeyFiles() []string {
	return splitList(c.SigningKeyFile)
}

func (c Config) RateLimits() httpx.RateLimitProfiles {
	mk := func(n, sec, burst int) httpx.RateLimitConfig {
		return httpx.RateLimitConfig{
			RequestsPerWindow: n,
			Window:            time.Duration(sec) * time.Second,
			Burst:             burst,
		}
	}
	return httpx.RateLimitProfiles{
		Strict:   mk(c.StrictRequests, c.StrictWindowSec, c.StrictBurst),
		Moderate: mk(c.ModerateRequests, c.ModerateWindowSec, c.ModerateBurst),
		Public:   mk(c.PublicRequests, c.PublicWindowSec, c.PublicBurst),
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
