package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/ehr/deid/internal/rules"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string   `mapstructure:"REDIS_URL"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string   `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL    string   `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`

	// FakerSeed seeds synthetic names, phones and addresses. Zero picks a
	// random seed per process.
	FakerSeed uint64 `mapstructure:"FAKER_SEED"`

	ShiftDates    bool   `mapstructure:"DEID_SHIFT_DATES"`
	DateShiftDays int    `mapstructure:"DEID_DATE_SHIFT_DAYS"`
	KeepBirthYear bool   `mapstructure:"DEID_KEEP_BIRTH_YEAR"`
	KeepZipPrefix bool   `mapstructure:"DEID_KEEP_ZIP_PREFIX"`
	RedactSSN     bool   `mapstructure:"DEID_REDACT_SSN"`
	KeepGender    bool   `mapstructure:"DEID_KEEP_GENDER"`
	RulesFile     string `mapstructure:"DEID_RULES_FILE"`
	BatchWorkers  int    `mapstructure:"DEID_BATCH_WORKERS"`
}

// developmentSeed keeps pseudonyms reproducible between local runs.
const developmentSeed = 42

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("DEID_SHIFT_DATES", true)
	v.SetDefault("DEID_DATE_SHIFT_DAYS", 30)
	v.SetDefault("DEID_KEEP_BIRTH_YEAR", true)
	v.SetDefault("DEID_KEEP_ZIP_PREFIX", true)
	v.SetDefault("DEID_REDACT_SSN", true)
	v.SetDefault("DEID_KEEP_GENDER", true)
	v.SetDefault("DEID_BATCH_WORKERS", 4)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
		"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY", "CORS_ORIGINS",
		"FAKER_SEED", "DEID_SHIFT_DATES", "DEID_DATE_SHIFT_DAYS", "DEID_KEEP_BIRTH_YEAR",
		"DEID_KEEP_ZIP_PREFIX", "DEID_REDACT_SSN", "DEID_KEEP_GENDER", "DEID_RULES_FILE",
		"DEID_BATCH_WORKERS",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if !v.IsSet("FAKER_SEED") && cfg.IsDev() {
		cfg.FakerSeed = developmentSeed
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// RequireDatabase reports a missing DATABASE_URL. Only the commands that
// talk to Postgres call it.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// Validate checks that the configuration is safe to run. Production needs a
// way to verify bearer tokens.
func (c *Config) Validate() error {
	if c.DateShiftDays < 0 || c.DateShiftDays > rules.MaxDateShiftDays {
		return fmt.Errorf("DEID_DATE_SHIFT_DAYS must be between 0 and %d, got %d", rules.MaxDateShiftDays, c.DateShiftDays)
	}
	if c.BatchWorkers <= 0 {
		return fmt.Errorf("DEID_BATCH_WORKERS must be positive, got %d", c.BatchWorkers)
	}
	if c.IsProduction() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set in production")
	}
	return nil
}

// Rules builds the effective rule set: the defaults, the DEID_* flags, then
// the optional YAML overlay.
func (c *Config) Rules() (rules.RuleSet, error) {
	rs := rules.Default()
	rs.ShiftDates = c.ShiftDates
	rs.DateShiftDays = c.DateShiftDays
	rs.KeepBirthYear = c.KeepBirthYear
	rs.KeepZipCodePrefix = c.KeepZipPrefix
	rs.RedactSSN = c.RedactSSN
	rs.KeepGender = c.KeepGender
	if c.RulesFile == "" {
		if err := rs.Validate(); err != nil {
			return rules.RuleSet{}, err
		}
		return rs, nil
	}
	return rules.LoadFile(c.RulesFile, rs)
}
