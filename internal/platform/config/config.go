package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
)

// DevSigningKey is the staff token key used when none is configured. It is
// public, so it is refused once real staff accounts exist.
const DevSigningKey = "dev-secret-key-change-in-production"

// Server captures process-level configuration.
type Server struct {
	Addr     string
	LogLevel string
	Store    StoreConfig
	Redis    RedisConfig
	Intake   IntakeConfig
	Resume   ResumeConfig
	Staff    StaffConfig
	Kafka    KafkaConfig

	// TrustedProxies lists proxy addresses or CIDRs whose forwarding headers
	// are believed.
	TrustedProxies []string
}

// StoreConfig selects and locates the lead store backend.
type StoreConfig struct {
	Backend     string
	DatabaseURL string
	SQLitePath  string
}

// RedisConfig configures the go-redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// IntakeConfig governs public lead submission.
type IntakeConfig struct {
	ReferenceDataPath    string
	EnforceReferenceData bool
	RatePerMinute        int
	Burst                int
	Seed                 bool
}

// ResumeConfig governs resume uploads.
type ResumeConfig struct {
	Dir      string
	MaxBytes int64
}

// StaffConfig governs staff sessions. Accounts maps email to bcrypt hash.
type StaffConfig struct {
	SigningKey string
	SessionTTL time.Duration
	Accounts   map[string]string
}

// KafkaConfig enables the Kafka lead-event publisher when Brokers is non-empty.
type KafkaConfig struct {
	Brokers   []string
	LeadTopic string
}

// Load reads an optional .env file, then builds the config from the environment.
func Load() (Server, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Server{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	p := &parser{}
	cfg := Server{
		Addr:           getenv("LEADS_ADDR", ":8080"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		TrustedProxies: splitList(os.Getenv("TRUSTED_PROXIES")),
		Store: StoreConfig{
			Backend:     strings.ToLower(getenv("LEADS_STORE", StoreMemory)),
			DatabaseURL: os.Getenv("DATABASE_URL"),
			SQLitePath:  getenv("SQLITE_PATH", "leads.db"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     p.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Intake: IntakeConfig{
			ReferenceDataPath:    os.Getenv("LEADS_REFERENCE_DATA"),
			EnforceReferenceData: p.bool("LEADS_ENFORCE_REFERENCE_DATA", true),
			RatePerMinute:        p.int("INTAKE_RATE_PER_MINUTE", 10),
			Burst:                p.int("INTAKE_BURST", 5),
			Seed:                 p.bool("LEADS_SEED", false),
		},
		Resume: ResumeConfig{
			Dir:      getenv("RESUME_DIR", "data/resumes"),
			MaxBytes: int64(p.int("RESUME_MAX_BYTES", 5<<20)),
		},
		Staff: StaffConfig{
			SigningKey: getenv("STAFF_JWT_SIGNING_KEY", DevSigningKey),
			SessionTTL: p.duration("STAFF_SESSION_TTL", 8*time.Hour),
			Accounts:   p.accounts("STAFF_ACCOUNTS"),
		},
		Kafka: KafkaConfig{
			Brokers:   splitList(os.Getenv("KAFKA_BROKERS")),
			LeadTopic: getenv("KAFKA_LEAD_TOPIC", "leads.events"),
		},
	}
	if err := p.err(); err != nil {
		return Server{}, err
	}
	if err := cfg.validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (c Server) validate() error {
	switch c.Store.Backend {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	case StoreRedis:
		if c.Redis.URL == "" {
			return errors.New("REDIS_URL is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown LEADS_STORE %q", c.Store.Backend)
	}
	if c.Intake.RatePerMinute <= 0 || c.Intake.Burst <= 0 {
		return errors.New("INTAKE_RATE_PER_MINUTE and INTAKE_BURST must be positive")
	}
	if c.Resume.MaxBytes <= 0 {
		return errors.New("RESUME_MAX_BYTES must be positive")
	}
	if len(c.Staff.Accounts) > 0 && c.Staff.SigningKey == DevSigningKey {
		return errors.New("STAFF_JWT_SIGNING_KEY must be set when STAFF_ACCOUNTS is configured")
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser collects conversion errors so every bad variable is reported at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) bool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

// accounts parses "email:hash,email:hash". Bcrypt hashes contain '$' but no ','.
func (p *parser) accounts(key string) map[string]string {
	out := make(map[string]string)
	for _, entry := range splitList(os.Getenv(key)) {
		email, hash, ok := strings.Cut(entry, ":")
		email = strings.ToLower(strings.TrimSpace(email))
		if !ok || email == "" || strings.TrimSpace(hash) == "" {
			p.errs = append(p.errs, fmt.Errorf("%s: malformed entry %q", key, entry))
			continue
		}
		out[email] = strings.TrimSpace(hash)
	}
	return out
}

func (p *parser) err() error {
	return errors.Join(p.errs...)
}
