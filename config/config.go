// Package config defines the engine's immutable configuration record and
// the layered loader (flags > environment > file > defaults) that builds
// one at startup.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/relaykms/kmsgate/codec"
	"github.com/relaykms/kmsgate/crypto"
)

// LogLevel is the three-level event verbosity the engine reports at.
type LogLevel string

const (
	LevelMinimal LogLevel = "MINI"
	LevelInfo    LogLevel = "INFO"
	LevelDebug   LogLevel = "DEBUG"
)

// Config is the immutable record consumed by C4-C7 for the lifetime of the
// process. Zero value is not valid; build one with Default or Load.
type Config struct {
	IP   string
	Port int

	EPIDOverride string // empty means "derive per request"
	HWID         [8]byte
	LCID         int
	ClientCount  int

	ActivationIntervalMin uint32
	RenewalIntervalMin    uint32

	TimeoutIdleSec int // 0 means unset/blocking

	SQLitePath string // empty means "no persistence"
	LogLevel   LogLevel
}

// Default returns the built-in defaults from spec §6's configuration
// surface table.
func Default() Config {
	hwid, _ := hex.DecodeString("364F463A8863D35F")
	var h [8]byte
	copy(h[:], hwid)
	return Config{
		IP:                    "0.0.0.0",
		Port:                  1688,
		HWID:                  h,
		LCID:                  1033,
		ClientCount:           50,
		ActivationIntervalMin: 120,
		RenewalIntervalMin:    10080,
		LogLevel:              LevelInfo,
	}
}

// fileConfig mirrors the YAML config file's shape; every field is optional
// so a partial file only overrides what it sets.
type fileConfig struct {
	IP                   *string `yaml:"ip"`
	Port                 *int    `yaml:"port"`
	EPID                 *string `yaml:"epid"`
	HWID                 *string `yaml:"hwid"`
	LCID                 *int    `yaml:"lcid"`
	ClientCount          *int    `yaml:"client_count"`
	ActivationIntervalMin *uint32 `yaml:"activation_interval"`
	RenewalIntervalMin    *uint32 `yaml:"renewal_interval"`
	TimeoutIdleSec       *int    `yaml:"timeout_idle"`
	SQLite               *string `yaml:"sqlite"`
	LogLevel             *string `yaml:"loglevel"`
}

// Error reported for any malformed input encountered while assembling a
// Config; the caller maps this to process exit code 4 (or 2/3 for the
// bind/storage-specific cases it wraps).
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Overrides is the set of values a caller (flags, in practice) wants to
// force regardless of environment or file. A nil pointer field means "not
// set by this layer".
type Overrides struct {
	IP                    *string
	Port                  *int
	EPID                  *string
	HWID                  *string
	LCID                  *int
	ClientCount           *int
	ActivationIntervalMin *uint32
	RenewalIntervalMin    *uint32
	TimeoutIdleSec        *int
	SQLite                *string
	LogLevel              *string
	ConfigFile            *string
	EnvFile               *string
}

// Load builds a Config by layering, lowest precedence first: built-in
// defaults, an optional YAML file, an optional .env file plus the process
// environment (KMS_* prefix), then explicit flag overrides.
func Load(o Overrides) (Config, error) {
	cfg := Default()

	if o.EnvFile != nil {
		if err := godotenv.Load(*o.EnvFile); err != nil && !os.IsNotExist(err) {
			return Config{}, &Error{Field: "env_file", Err: err}
		}
	}

	if o.ConfigFile != nil {
		raw, err := os.ReadFile(*o.ConfigFile)
		if err != nil {
			return Config{}, &Error{Field: "config_file", Err: err}
		}
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return Config{}, &Error{Field: "config_file", Err: err}
		}
		if err := applyFile(&cfg, fc); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := applyOverrides(&cfg, o); err != nil {
		return Config{}, err
	}

	if err := validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, fc fileConfig) error {
	if fc.IP != nil {
		cfg.IP = *fc.IP
	}
	if fc.Port != nil {
		cfg.Port = *fc.Port
	}
	if fc.EPID != nil {
		cfg.EPIDOverride = *fc.EPID
	}
	if fc.HWID != nil {
		hwid, err := parseHWID(*fc.HWID)
		if err != nil {
			return &Error{Field: "hwid", Err: err}
		}
		cfg.HWID = hwid
	}
	if fc.LCID != nil {
		cfg.LCID = *fc.LCID
	}
	if fc.ClientCount != nil {
		cfg.ClientCount = *fc.ClientCount
	}
	if fc.ActivationIntervalMin != nil {
		cfg.ActivationIntervalMin = *fc.ActivationIntervalMin
	}
	if fc.RenewalIntervalMin != nil {
		cfg.RenewalIntervalMin = *fc.RenewalIntervalMin
	}
	if fc.TimeoutIdleSec != nil {
		cfg.TimeoutIdleSec = *fc.TimeoutIdleSec
	}
	if fc.SQLite != nil {
		cfg.SQLitePath = *fc.SQLite
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = LogLevel(*fc.LogLevel)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	get := func(name string) (string, bool) {
		return os.LookupEnv("KMS_" + name)
	}
	if v, ok := get("IP"); ok {
		cfg.IP = v
	}
	if v, ok := get("PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &Error{Field: "KMS_PORT", Err: err}
		}
		cfg.Port = n
	}
	if v, ok := get("EPID"); ok {
		cfg.EPIDOverride = v
	}
	if v, ok := get("HWID"); ok {
		hwid, err := parseHWID(v)
		if err != nil {
			return &Error{Field: "KMS_HWID", Err: err}
		}
		cfg.HWID = hwid
	}
	if v, ok := get("LCID"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &Error{Field: "KMS_LCID", Err: err}
		}
		cfg.LCID = n
	}
	if v, ok := get("CLIENT_COUNT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &Error{Field: "KMS_CLIENT_COUNT", Err: err}
		}
		cfg.ClientCount = n
	}
	if v, ok := get("ACTIVATION_INTERVAL"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return &Error{Field: "KMS_ACTIVATION_INTERVAL", Err: err}
		}
		cfg.ActivationIntervalMin = uint32(n)
	}
	if v, ok := get("RENEWAL_INTERVAL"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return &Error{Field: "KMS_RENEWAL_INTERVAL", Err: err}
		}
		cfg.RenewalIntervalMin = uint32(n)
	}
	if v, ok := get("TIMEOUT_IDLE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &Error{Field: "KMS_TIMEOUT_IDLE", Err: err}
		}
		cfg.TimeoutIdleSec = n
	}
	if v, ok := get("SQLITE"); ok {
		cfg.SQLitePath = v
	}
	if v, ok := get("LOGLEVEL"); ok {
		cfg.LogLevel = LogLevel(strings.ToUpper(v))
	}
	return nil
}

func applyOverrides(cfg *Config, o Overrides) error {
	if o.IP != nil {
		cfg.IP = *o.IP
	}
	if o.Port != nil {
		cfg.Port = *o.Port
	}
	if o.EPID != nil {
		cfg.EPIDOverride = *o.EPID
	}
	if o.HWID != nil {
		hwid, err := parseHWID(*o.HWID)
		if err != nil {
			return &Error{Field: "hwid", Err: err}
		}
		cfg.HWID = hwid
	}
	if o.LCID != nil {
		cfg.LCID = *o.LCID
	}
	if o.ClientCount != nil {
		cfg.ClientCount = *o.ClientCount
	}
	if o.ActivationIntervalMin != nil {
		cfg.ActivationIntervalMin = *o.ActivationIntervalMin
	}
	if o.RenewalIntervalMin != nil {
		cfg.RenewalIntervalMin = *o.RenewalIntervalMin
	}
	if o.TimeoutIdleSec != nil {
		cfg.TimeoutIdleSec = *o.TimeoutIdleSec
	}
	if o.SQLite != nil {
		cfg.SQLitePath = *o.SQLite
	}
	if o.LogLevel != nil {
		cfg.LogLevel = LogLevel(strings.ToUpper(*o.LogLevel))
	}
	return nil
}

// parseHWID accepts either a hex-encoded 8-byte string or the literal
// RANDOM, in which case 8 cryptographically random bytes are generated
// once (the caller does not persist this across restarts, per the
// project's open-question decision to treat RANDOM as ephemeral).
func parseHWID(s string) ([8]byte, error) {
	var out [8]byte
	if strings.EqualFold(s, "RANDOM") {
		b, err := crypto.RandomBytes(8)
		if err != nil {
			return out, err
		}
		copy(out[:], b)
		return out, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("invalid hex hwid %q: %w", s, err)
	}
	if len(b) != 8 {
		return out, fmt.Errorf("hwid must be 8 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func validate(cfg *Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &Error{Field: "port", Err: fmt.Errorf("port %d out of range", cfg.Port)}
	}
	switch cfg.LogLevel {
	case LevelMinimal, LevelInfo, LevelDebug:
	default:
		return &Error{Field: "loglevel", Err: fmt.Errorf("unknown level %q", cfg.LogLevel)}
	}
	if cfg.EPIDOverride != "" {
		if _, err := codec.DecodeUTF16LE(codec.EncodeUTF16LE(cfg.EPIDOverride)); err != nil {
			return &Error{Field: "epid", Err: err}
		}
	}
	return nil
}
