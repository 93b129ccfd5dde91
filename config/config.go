package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Leave      LeaveConfig      `yaml:"leave"`
	Auth       AuthConfig       `yaml:"auth"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MongoDatabase          string `yaml:"mongo_database"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	Debug                  bool   `yaml:"debug"`
}

// WorkDays is the number of expected working days per reporting timeframe.
type WorkDays struct {
	Today int `yaml:"today"`
	Week  int `yaml:"week"`
	Month int `yaml:"month"`
}

// AttendanceConfig drives time accounting and the auto-checkout sweep.
type AttendanceConfig struct {
	UTCOffset              string         `yaml:"utc_offset"`
	Location               *time.Location `yaml:"-"`
	PresenceTimeoutSeconds int            `yaml:"presence_timeout_seconds"`
	PresenceTimeout        time.Duration  `yaml:"-"`
	SweepIntervalSeconds   int            `yaml:"sweep_interval_seconds"`
	SweepInterval          time.Duration  `yaml:"-"`
	SweepEnabled           *bool          `yaml:"sweep_enabled"`
	SweepWorkers           int            `yaml:"sweep_workers"`
	HoursPerDay            int            `yaml:"hours_per_day"`
	WorkDays               WorkDays       `yaml:"work_days"`
}

// LeaveConfig holds leave ledger policy.
type LeaveConfig struct {
	PaidLeaveType   string   `yaml:"paid_leave_type"`
	GrantDays       int      `yaml:"grant_days"`
	AdminRecipients []string `yaml:"admin_recipients"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret           string        `yaml:"jwt_secret"`
	VerifyUser          bool          `yaml:"verify_user"`
	UserCacheTTLSeconds int           `yaml:"user_cache_ttl_seconds"`
	UserCacheTTL        time.Duration `yaml:"-"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset values and derives the fields ignored by the YAML parser.
func (cfg *Config) ApplyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	switch cfg.Database.Driver {
	case "postgres", "sqlite", "mongo":
	default:
		return fmt.Errorf("unsupported database.driver %q", cfg.Database.Driver)
	}
	if cfg.Database.Driver == "mongo" && cfg.Database.MongoDatabase == "" {
		cfg.Database.MongoDatabase = "attendance"
	}

	a := &cfg.Attendance
	if a.UTCOffset == "" {
		a.UTCOffset = "+05:30"
	}
	loc, err := ParseUTCOffset(a.UTCOffset)
	if err != nil {
		return err
	}
	a.Location = loc
	if a.PresenceTimeoutSeconds <= 0 {
		a.PresenceTimeoutSeconds = 600
	}
	a.PresenceTimeout = time.Duration(a.PresenceTimeoutSeconds) * time.Second
	if a.SweepIntervalSeconds <= 0 {
		a.SweepIntervalSeconds = 300
	}
	a.SweepInterval = time.Duration(a.SweepIntervalSeconds) * time.Second
	if a.SweepEnabled == nil {
		enabled := true
		a.SweepEnabled = &enabled
	}
	if a.SweepWorkers <= 0 {
		a.SweepWorkers = 4
	}
	if a.HoursPerDay <= 0 {
		a.HoursPerDay = 8
	}
	if a.WorkDays.Today <= 0 {
		a.WorkDays.Today = 1
	}
	if a.WorkDays.Week <= 0 {
		a.WorkDays.Week = 5
	}
	if a.WorkDays.Month <= 0 {
		a.WorkDays.Month = 22
	}

	if cfg.Leave.PaidLeaveType == "" {
		cfg.Leave.PaidLeaveType = "Paid Leave"
	}
	if cfg.Leave.GrantDays <= 0 {
		cfg.Leave.GrantDays = 3
	}

	if cfg.Auth.UserCacheTTLSeconds <= 0 {
		cfg.Auth.UserCacheTTLSeconds = 60
	}
	cfg.Auth.UserCacheTTL = time.Duration(cfg.Auth.UserCacheTTLSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}
	return nil
}

// ParseUTCOffset turns "+05:30", "-0800" or "Z" into a fixed zone.
func ParseUTCOffset(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "Z" || s == "UTC" || s == "+00:00" {
		return time.UTC, nil
	}
	if len(s) < 3 || (s[0] != '+' && s[0] != '-') {
		return nil, fmt.Errorf("invalid utc_offset %q: expected ±HH:MM", s)
	}
	sign := 1
	if s[0] == '-' {
		sign = -1
	}
	body := strings.ReplaceAll(s[1:], ":", "")
	if len(body) != 2 && len(body) != 4 {
		return nil, fmt.Errorf("invalid utc_offset %q: expected ±HH:MM", s)
	}
	hours, err := strconv.Atoi(body[:2])
	if err != nil || hours > 14 {
		return nil, fmt.Errorf("invalid utc_offset hours in %q", s)
	}
	minutes := 0
	if len(body) == 4 {
		minutes, err = strconv.Atoi(body[2:])
		if err != nil || minutes >= 60 {
			return nil, fmt.Errorf("invalid utc_offset minutes in %q", s)
		}
	}
	return time.FixedZone("UTC"+s, sign*(hours*3600+minutes*60)), nil
}
