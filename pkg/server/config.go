package server

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every server setting. Values are layered: DefaultConfig,
// then the YAML file, then .env, then KMUD_* environment variables; the
// CLI applies its flags last.
type Config struct {
	// --- Identity ---
	MudName string `yaml:"mud_name" env:"MUD_NAME"`
	Debug   bool   `yaml:"debug" env:"DEBUG"`

	// --- Telnet ---
	Port      int    `yaml:"port" env:"PORT"`
	Cleartext bool   `yaml:"cleartext" env:"CLEARTEXT"`
	TLS       bool   `yaml:"tls" env:"TLS"`
	TLSPort   int    `yaml:"tls_port" env:"TLS_PORT"`
	TLSCert   string `yaml:"tls_cert" env:"TLS_CERT"`
	TLSKey    string `yaml:"tls_key" env:"TLS_KEY"`
	MaxConns  int    `yaml:"max_connections" env:"MAX_CONNECTIONS"`

	// --- Web ---
	WebEnabled  bool          `yaml:"web_enabled" env:"WEB_ENABLED"`
	WebHost     string        `yaml:"web_host" env:"WEB_HOST"`
	WebPort     int           `yaml:"web_port" env:"WEB_PORT"`
	WebDomain   string        `yaml:"web_domain" env:"WEB_DOMAIN"`
	CertDir     string        `yaml:"cert_dir" env:"CERT_DIR"`
	CORSOrigins []string      `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
	APIRate     int           `yaml:"api_rate" env:"API_RATE"`
	JWTSecret   string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	JWTExpiry   time.Duration `yaml:"jwt_expiry" env:"JWT_EXPIRY"`

	// --- Storage ---
	StoreDriver string        `yaml:"store_driver" env:"STORE_DRIVER"`
	BoltPath    string        `yaml:"bolt_path" env:"BOLT_PATH"`
	SQLitePath  string        `yaml:"sqlite_path" env:"SQLITE_PATH"`
	SQLTimeout  time.Duration `yaml:"sql_timeout" env:"SQL_TIMEOUT"`
	BcryptCost  int           `yaml:"bcrypt_cost" env:"BCRYPT_COST"`

	// --- Backups ---
	ArchiveDir      string        `yaml:"archive_dir" env:"ARCHIVE_DIR"`
	ArchiveInterval time.Duration `yaml:"archive_interval" env:"ARCHIVE_INTERVAL"`
	ArchiveRetain   int           `yaml:"archive_retain" env:"ARCHIVE_RETAIN"`

	// --- Delivery ---
	TickInterval   time.Duration `yaml:"tick_interval" env:"TICK_INTERVAL"`
	DrainPerTick   int           `yaml:"drain_per_tick" env:"DRAIN_PER_TICK"`
	ChainDepth     int           `yaml:"chain_depth" env:"CHAIN_DEPTH"`
	CloseGrace     time.Duration `yaml:"close_grace" env:"CLOSE_GRACE"`
	OutboundBuffer int           `yaml:"outbound_buffer" env:"OUTBOUND_BUFFER"`
	InputRate      float64       `yaml:"input_rate" env:"INPUT_RATE"`
	InputBurst     int           `yaml:"input_burst" env:"INPUT_BURST"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`

	// --- Text ---
	TextDir string `yaml:"text_dir" env:"TEXT_DIR"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MudName:        "kmud",
		Port:           6250,
		Cleartext:      true,
		TLSPort:        6251,
		MaxConns:       500,
		WebHost:        "0.0.0.0",
		WebPort:        8080,
		CertDir:        "certs",
		APIRate:        60,
		JWTExpiry:      24 * time.Hour,
		StoreDriver:    "bolt",
		BoltPath:       "data/kmud.bolt",
		SQLitePath:     "data/kmud.sqlite",
		SQLTimeout:     5 * time.Second,
		ArchiveDir:     "backups",
		ArchiveRetain:  10,
		TickInterval:   10 * time.Millisecond,
		DrainPerTick:   64,
		ChainDepth:     1,
		CloseGrace:     5 * time.Second,
		OutboundBuffer: 64,
		InputRate:      10,
		InputBurst:     20,
		IdleTimeout:    time.Hour,
	}
}

// LoadConfig builds a Config from the defaults, the YAML file at path (if
// any), the env file (if it exists) and the process environment.
func LoadConfig(path, envFile string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
		}
		log.Printf("Loaded config from %s", path)
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "KMUD_"}); err != nil {
		return cfg, fmt.Errorf("config: environment: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if !c.Cleartext && !c.TLS && !c.WebEnabled {
		errs = append(errs, errors.New("cleartext, TLS and web listeners are all disabled; nothing to listen on"))
	}
	if c.TLS && c.TLSCert == "" && c.TLSKey == "" && c.WebDomain == "" {
		log.Printf("WARNING: tls enabled without cert files or web_domain; a self-signed certificate will be used")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		errs = append(errs, errors.New("tls_cert and tls_key must be set together"))
	}
	switch c.StoreDriver {
	case "bolt":
		if c.BoltPath == "" {
			errs = append(errs, errors.New("bolt_path is required for the bolt driver"))
		}
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite_path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store_driver %q (want bolt or sqlite)", c.StoreDriver))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("tick_interval must be positive"))
	}
	if c.DrainPerTick < 1 {
		errs = append(errs, errors.New("drain_per_tick must be at least 1"))
	}
	if c.ChainDepth < 0 {
		errs = append(errs, errors.New("chain_depth must not be negative"))
	}
	if c.OutboundBuffer < 1 {
		errs = append(errs, errors.New("outbound_buffer must be at least 1"))
	}
	if c.InputRate < 0 || (c.InputRate > 0 && c.InputBurst < 1) {
		errs = append(errs, errors.New("input_rate must be >= 0 and input_burst >= 1 when limiting"))
	}
	if c.ArchiveInterval > 0 && c.ArchiveDir == "" {
		errs = append(errs, errors.New("archive_interval needs archive_dir"))
	}
	if c.WebEnabled && c.APIRate < 1 {
		errs = append(errs, errors.New("api_rate must be at least 1"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// StorePath returns the database path of the configured driver.
func (c Config) StorePath() string {
	if c.StoreDriver == "sqlite" {
		return c.SQLitePath
	}
	return c.BoltPath
}
