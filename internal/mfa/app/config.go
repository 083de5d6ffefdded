package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/aussiebroadwan/phimfa/internal/mfa/service"
	"github.com/aussiebroadwan/phimfa/pkg/jwtx"
	"github.com/aussiebroadwan/phimfa/pkg/otpx"
)

// ConfigFileEnv names an optional TOML file read before the environment.
const ConfigFileEnv = "MFA_CONFIG_FILE"

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrInvalidConfig wraps every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Issuer string `toml:"issuer"` // issuer shown in authenticator apps (default: PHI CRM)

	DatabaseDriver string `toml:"database_driver"` // sqlite or postgres (default: sqlite)
	DatabaseFile   string `toml:"database_file"`   // sqlite file path (default: ./mfa.db)
	DatabaseDSN    string `toml:"database_dsn"`    // postgres connection string
	DBMaxConns     int    `toml:"db_max_conns"`    // postgres pool size (default: 10)

	MasterKeyPath string `toml:"master_key_path"` // secret encryption key file; falls back to MFA_MASTER_KEY
	PepperFile    string `toml:"pepper_file"`     // backup code pepper, created if missing (default: ./pepper)

	CallerTokenSecret   string        `toml:"caller_token_secret"`   // HS256 secret for caller bearer tokens
	CallerTokenIssuer   string        `toml:"caller_token_issuer"`   // expected iss, empty accepts any
	CallerTokenAudience string        `toml:"caller_token_audience"` // expected aud, empty accepts any
	CallerTokenLeeway   time.Duration `toml:"caller_token_leeway"`   // clock skew allowance (default: 30s)

	Env                 string        `toml:"env"`                   // dev, staging, prod (default: dev)
	LogLevel            string        `toml:"log_level"`             // debug, info, warn, error (default: info)
	LogFormat           string        `toml:"log_format"`            // json, text (default: json)
	Port                int           `toml:"port"`                  // HTTP port (default: 8080)
	ShutdownGracePeriod time.Duration `toml:"shutdown_grace_period"` // default: 10s
	SweepInterval       time.Duration `toml:"sweep_interval"`        // session sweep cadence (default: 60s)

	OTPDigits    int    `toml:"otp_digits"`    // 6 or 8 (default: 6)
	OTPPeriod    int    `toml:"otp_period"`    // seconds per step (default: 30)
	OTPWindow    int    `toml:"otp_window"`    // accepted steps either side (default: 2)
	OTPAlgorithm string `toml:"otp_algorithm"` // SHA1, SHA256, SHA512 (default: SHA1)
	QRCodeSize   int    `toml:"qr_code_size"`  // PNG edge in pixels, 0 disables (default: 256)

	BackupCodeCount           int  `toml:"backup_code_count"`            // default: 10
	AllowBackupBeforeVerified bool `toml:"allow_backup_before_verified"` // default: true

	MaxAttempts int           `toml:"max_attempts"` // failures before cool-down (default: 3)
	CoolDown    time.Duration `toml:"cool_down"`    // default: 15m

	StandardSessionDuration time.Duration `toml:"standard_session_duration"` // default: 15m
	ElevatedSessionDuration time.Duration `toml:"elevated_session_duration"` // default: 5m

	AuditEscalationThreshold int `toml:"audit_escalation_threshold"` // consecutive sink failures (default: 3)
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Issuer:                    "PHI CRM",
		DatabaseDriver:            DriverSQLite,
		DatabaseFile:              "mfa.db",
		DBMaxConns:                10,
		PepperFile:                "pepper",
		CallerTokenLeeway:         30 * time.Second,
		Env:                       "dev",
		LogLevel:                  "info",
		LogFormat:                 "json",
		Port:                      8080,
		ShutdownGracePeriod:       10 * time.Second,
		SweepInterval:             service.DefaultSweepInterval,
		OTPDigits:                 otpx.DefaultDigits,
		OTPPeriod:                 otpx.DefaultPeriod,
		OTPWindow:                 otpx.DefaultSkew,
		OTPAlgorithm:              otpx.DefaultAlgorithm,
		QRCodeSize:                256,
		BackupCodeCount:           service.DefaultBackupCodeCount,
		AllowBackupBeforeVerified: true,
		MaxAttempts:               service.DefaultMaxAttempts,
		CoolDown:                  service.DefaultCoolDown,
		StandardSessionDuration:   service.DefaultStandardSessionDuration,
		ElevatedSessionDuration:   service.DefaultElevatedSessionDuration,
		AuditEscalationThreshold:  service.DefaultAuditEscalationThreshold,
	}
}

// LoadConfig layers the environment over the TOML file named by
// MFA_CONFIG_FILE (if any) over DefaultConfig.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to decode TOML file %s: %w", path, err)
		}
	}

	cfg.Issuer = getEnvOrDefault("MFA_ISSUER", cfg.Issuer)
	cfg.DatabaseDriver = strings.ToLower(getEnvOrDefault("MFA_DATABASE_DRIVER", cfg.DatabaseDriver))
	cfg.DatabaseFile = getEnvOrDefault("MFA_DATABASE_FILE", cfg.DatabaseFile)
	cfg.DatabaseDSN = getEnvOrDefault("MFA_DATABASE_DSN", cfg.DatabaseDSN)
	cfg.DBMaxConns = getEnvIntOrDefault("MFA_DB_MAX_CONNS", cfg.DBMaxConns)
	cfg.MasterKeyPath = getEnvOrDefault("MFA_MASTER_KEY_PATH", cfg.MasterKeyPath)
	cfg.PepperFile = getEnvOrDefault("MFA_PEPPER_FILE", cfg.PepperFile)

	cfg.CallerTokenSecret = getEnvOrDefault("MFA_CALLER_TOKEN_SECRET", cfg.CallerTokenSecret)
	cfg.CallerTokenIssuer = getEnvOrDefault("MFA_CALLER_TOKEN_ISSUER", cfg.CallerTokenIssuer)
	cfg.CallerTokenAudience = getEnvOrDefault("MFA_CALLER_TOKEN_AUDIENCE", cfg.CallerTokenAudience)
	cfg.CallerTokenLeeway = getEnvDurationOrDefault("MFA_CALLER_TOKEN_LEEWAY", cfg.CallerTokenLeeway)

	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.Port = getEnvIntOrDefault("PORT", cfg.Port)
	cfg.ShutdownGracePeriod = getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", cfg.ShutdownGracePeriod)
	cfg.SweepInterval = getEnvDurationOrDefault("MFA_SWEEP_INTERVAL", cfg.SweepInterval)

	cfg.OTPDigits = getEnvIntOrDefault("MFA_OTP_DIGITS", cfg.OTPDigits)
	cfg.OTPPeriod = getEnvIntOrDefault("MFA_OTP_PERIOD", cfg.OTPPeriod)
	cfg.OTPWindow = getEnvIntOrDefault("MFA_OTP_WINDOW", cfg.OTPWindow)
	cfg.OTPAlgorithm = getEnvOrDefault("MFA_OTP_ALGORITHM", cfg.OTPAlgorithm)
	cfg.QRCodeSize = getEnvIntOrDefault("MFA_QR_CODE_SIZE", cfg.QRCodeSize)

	cfg.BackupCodeCount = getEnvIntOrDefault("MFA_BACKUP_CODE_COUNT", cfg.BackupCodeCount)
	cfg.AllowBackupBeforeVerified = getEnvBoolOrDefault("MFA_ALLOW_BACKUP_BEFORE_VERIFIED", cfg.AllowBackupBeforeVerified)
	cfg.MaxAttempts = getEnvIntOrDefault("MFA_MAX_ATTEMPTS", cfg.MaxAttempts)
	cfg.CoolDown = getEnvDurationOrDefault("MFA_COOL_DOWN", cfg.CoolDown)
	cfg.StandardSessionDuration = getEnvDurationOrDefault("MFA_SESSION_DURATION", cfg.StandardSessionDuration)
	cfg.ElevatedSessionDuration = getEnvDurationOrDefault("MFA_ELEVATED_SESSION_DURATION", cfg.ElevatedSessionDuration)
	cfg.AuditEscalationThreshold = getEnvIntOrDefault("MFA_AUDIT_ESCALATION_THRESHOLD", cfg.AuditEscalationThreshold)

	return cfg, nil
}

// Validate reports every problem with cfg at once.
func (c Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"shutdown_grace_period", c.ShutdownGracePeriod},
		{"sweep_interval", c.SweepInterval},
		{"cool_down", c.CoolDown},
		{"standard_session_duration", c.StandardSessionDuration},
		{"elevated_session_duration", c.ElevatedSessionDuration},
	}
	for _, d := range durations {
		if d.d <= 0 {
			fail("%s must be positive", d.name)
		}
	}
	if c.ElevatedSessionDuration > c.StandardSessionDuration {
		fail("elevated_session_duration (%s) exceeds standard_session_duration (%s)",
			c.ElevatedSessionDuration, c.StandardSessionDuration)
	}
	if c.CallerTokenLeeway < 0 {
		fail("caller_token_leeway must not be negative")
	}

	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.DatabaseFile == "" {
			fail("database_file is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseDSN == "" {
			fail("database_dsn is required for the postgres driver")
		}
		if c.DBMaxConns <= 0 {
			fail("db_max_conns must be positive")
		}
	default:
		fail("unknown database_driver %q", c.DatabaseDriver)
	}

	if len(c.CallerTokenSecret) < jwtx.MinHMACSecretLength {
		fail("caller_token_secret must be at least %d bytes", jwtx.MinHMACSecretLength)
	}
	if c.PepperFile == "" {
		fail("pepper_file is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		fail("port %d out of range", c.Port)
	}
	if c.MaxAttempts <= 0 {
		fail("max_attempts must be positive")
	}
	if c.BackupCodeCount <= 0 {
		fail("backup_code_count must be positive")
	}
	if c.OTPWindow < 0 {
		fail("otp_window must not be negative")
	}
	if c.QRCodeSize < 0 {
		fail("qr_code_size must not be negative")
	}
	if err := c.engine().Check(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}

	return errors.Join(errs...)
}

// engine builds the code engine described by the OTP settings.
func (c Config) engine() *otpx.Engine {
	e := otpx.New(c.Issuer)
	e.Digits = c.OTPDigits
	e.Period = uint(max(c.OTPPeriod, 0))
	e.Skew = uint(max(c.OTPWindow, 0))
	e.Algorithm = c.OTPAlgorithm
	return e
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
