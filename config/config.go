// Package config builds the single typed configuration object for the
// discovery service. It is constructed once at process start and passed by
// parameter; nothing reads viper ad hoc after Load returns.
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the discovery service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Batch     BatchConfig     `mapstructure:"batch"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Databases DatabasesConfig `mapstructure:"databases"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig contains HTTP server and auth settings.
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// EngineMode selects how the discovery engine is obtained.
const (
	EngineModeLocal  = "local"
	EngineModeRemote = "remote"
)

// EngineConfig describes the external discovery engine. In local mode the
// engine is spawned as a subprocess; in remote mode it is an HTTP+SSE service.
type EngineConfig struct {
	Mode    string            `mapstructure:"mode"`
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	WorkDir string            `mapstructure:"work_dir"`
	Env     map[string]string `mapstructure:"env"`

	RemoteURL   string `mapstructure:"remote_url"`
	RemoteToken string `mapstructure:"remote_token"`

	QuickTimeout time.Duration `mapstructure:"quick_timeout"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	KillGrace    time.Duration `mapstructure:"kill_grace"`

	// SettingsFile is an engine-local settings file merged between the shared
	// config file and the process environment (increasing priority).
	SettingsFile string `mapstructure:"settings_file"`
}

// DiscoveryConfig tunes the quick-discovery surface.
type DiscoveryConfig struct {
	MinQueryLen  int           `mapstructure:"min_query_len"`
	MaxQueryLen  int           `mapstructure:"max_query_len"`
	DefaultLimit int           `mapstructure:"default_limit"`
	SnapshotTTL  time.Duration `mapstructure:"snapshot_ttl"`
}

// BatchConfig tunes multi-source batch and scheduled daily discovery.
type BatchConfig struct {
	DailySecret   string   `mapstructure:"daily_secret"`
	DailyCron     string   `mapstructure:"daily_cron"`
	DailyLimit    int      `mapstructure:"daily_limit"`
	DefaultLimit  int      `mapstructure:"default_limit"`
	FocusRotation []string `mapstructure:"focus_rotation"`
	RecheckKey    string   `mapstructure:"recheck_key"`
}

// LLMConfig configures the chat completion provider(s).
type LLMConfig struct {
	Providers map[string]LLMProviderConfig `mapstructure:"providers"`
	Routing   LLMRoutingConfig             `mapstructure:"routing"`
}

// LLMProviderConfig is one completion provider.
type LLMProviderConfig struct {
	Type    string        `mapstructure:"type"`
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LLMRoutingConfig picks a provider per task.
type LLMRoutingConfig struct {
	Chat     string `mapstructure:"chat"`
	Fallback string `mapstructure:"fallback"`
}

// DatabasesConfig groups storage backends.
type DatabasesConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig describes the relational store.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a connection string, preferring an explicit URL.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (databases.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig describes the session/queue store.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Addr returns host:port with defaults applied.
func (r RedisConfig) Addr() string {
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return host + ":" + port
}

// TelemetryConfig contains tracing/metrics settings.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Load reads configuration with layered precedence: process environment
// (CAMPUSBRIDGE_*) over the engine-local settings file over the shared config
// file. path overrides discovery of the shared file.
func Load(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("server.address", ":10010")
	viper.SetDefault("engine.mode", EngineModeLocal)
	viper.SetDefault("engine.quick_timeout", 2*time.Minute)
	viper.SetDefault("engine.batch_timeout", 10*time.Minute)
	viper.SetDefault("engine.kill_grace", 2*time.Second)
	viper.SetDefault("discovery.min_query_len", 3)
	viper.SetDefault("discovery.max_query_len", 100)
	viper.SetDefault("discovery.default_limit", 10)
	viper.SetDefault("discovery.snapshot_ttl", 10*time.Minute)
	viper.SetDefault("batch.default_limit", 25)
	viper.SetDefault("batch.daily_limit", 50)
	viper.SetDefault("batch.recheck_key", "discovery:recheck")
	viper.SetDefault("batch.focus_rotation", []string{
		"internships", "scholarships", "hackathons",
		"research programs", "fellowships", "competitions", "grants",
	})

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("[CONFIG] no shared config file loaded: %v", err)
	}

	// Engine-local settings override the shared file but not the environment.
	if sf := viper.GetString("engine.settings_file"); sf != "" {
		viper.SetConfigFile(sf)
		if err := viper.MergeInConfig(); err != nil {
			log.Printf("[CONFIG] engine settings file %s not merged: %v", sf, err)
		}
	}

	viper.SetEnvPrefix("CAMPUSBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("[CONFIG] unable to decode config: %v", err)
	}
	cfg.applySecretFallbacks()
	return &cfg
}

// applySecretFallbacks resolves secrets through their explicit fallback
// chains: config value first, then the conventional environment variable.
func (c *Config) applySecretFallbacks() {
	for name, p := range c.LLM.Providers {
		if p.APIKey == "" {
			switch p.Type {
			case "openai", "":
				p.APIKey = os.Getenv("OPENAI_API_KEY")
			case "anthropic":
				p.APIKey = os.Getenv("ANTHROPIC_API_KEY")
			}
			c.LLM.Providers[name] = p
		}
	}
	if c.Batch.DailySecret == "" {
		c.Batch.DailySecret = os.Getenv("DISCOVERY_DAILY_SECRET")
	}
	if c.Engine.RemoteToken == "" {
		c.Engine.RemoteToken = os.Getenv("DISCOVERY_ENGINE_TOKEN")
	}
	if c.Server.JWTSecret == "" {
		c.Server.JWTSecret = os.Getenv("CAMPUSBRIDGE_JWT_SECRET")
	}
	if c.Databases.Postgres.URL == "" {
		c.Databases.Postgres.URL = os.Getenv("DATABASE_URL")
	}
}
