package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Intake    IntakeConfig    `yaml:"intake"`
	Transcode TranscodeConfig `yaml:"transcode"`
	Emit      EmitConfig      `yaml:"emit"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
}

type ServerConfig struct {
	Addr     string `yaml:"addr"`
	AssetDir string `yaml:"asset_dir"`
}

type IntakeConfig struct {
	MaxBytes         int      `yaml:"max_bytes"`
	AllowedMIMETypes []string `yaml:"allowed_mime_types"`
	MinDimension     int      `yaml:"min_dimension"`
}

type TranscodeConfig struct {
	MaxWidth  int     `yaml:"max_width"`
	MaxHeight int     `yaml:"max_height"`
	Quality   float64 `yaml:"quality"`
}

type EmitConfig struct {
	ChunkSize int `yaml:"chunk_size"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
}

type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret"`
	JWTAudience string `yaml:"jwt_audience"`
}

// Default returns the built-in configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:     ":8080",
			AssetDir: "webapp",
		},
		Intake: IntakeConfig{
			MaxBytes:         5 << 20,
			AllowedMIMETypes: []string{"image/jpeg", "image/png"},
			MinDimension:     200,
		},
		Transcode: TranscodeConfig{
			MaxWidth:  1280,
			MaxHeight: 1280,
			Quality:   0.85,
		},
		Emit: EmitConfig{
			ChunkSize: 32768,
		},
		Database: DatabaseConfig{
			DSN: "host=postgres user=postgres password=postgres dbname=photorelay port=5432 sslmode=disable",
		},
		Redis: RedisConfig{
			Addr: "redis:6379",
		},
		Auth: AuthConfig{
			JWTSecret: "dev-secret",
		},
	}
}

// Load reads the configuration file, layers environment overrides on top,
// and validates the result. An empty path yields defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Addr, "SERVER_ADDR")
	setString(&c.Server.AssetDir, "ASSET_DIR")
	setString(&c.Database.DSN, "DATABASE_DSN")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Auth.JWTAudience, "JWT_AUDIENCE")
	setInt(&c.Intake.MaxBytes, "INTAKE_MAX_BYTES")
	setInt(&c.Emit.ChunkSize, "EMIT_CHUNK_SIZE")
}

// Validate checks option ranges before the service starts.
func (c *Config) Validate() error {
	if c.Intake.MaxBytes <= 0 {
		return fmt.Errorf("intake.max_bytes must be positive, got %d", c.Intake.MaxBytes)
	}
	if len(c.Intake.AllowedMIMETypes) == 0 {
		return fmt.Errorf("intake.allowed_mime_types must not be empty")
	}
	if c.Intake.MinDimension <= 0 {
		return fmt.Errorf("intake.min_dimension must be positive, got %d", c.Intake.MinDimension)
	}
	if c.Transcode.MaxWidth <= 0 || c.Transcode.MaxHeight <= 0 {
		return fmt.Errorf("transcode.max_width and transcode.max_height must be positive")
	}
	if c.Transcode.Quality <= 0 || c.Transcode.Quality > 1 {
		return fmt.Errorf("transcode.quality must be in (0, 1], got %v", c.Transcode.Quality)
	}
	if c.Emit.ChunkSize <= 0 {
		return fmt.Errorf("emit.chunk_size must be positive, got %d", c.Emit.ChunkSize)
	}
	return nil
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*dst = parsed
		}
	}
}
