// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig      `mapstructure:"app"`
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	APIs      APIsConfig     `mapstructure:"apis"`
	Pipeline  PipelineConfig `mapstructure:"pipeline"`
	Registry  RegistryConfig `mapstructure:"registry"`
	Logging   LoggingConfig  `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

// Addr returns the host:port string the HTTP server binds to.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

// APIsConfig holds settings for external API integrations.
type APIsConfig struct {
	Completion struct {
		BaseURL     string  `mapstructure:"base_url"`
		APIKey      string  `mapstructure:"api_key"`
		Model       string  `mapstructure:"model"`
		MaxTokens   int     `mapstructure:"max_tokens"`
		Temperature float64 `mapstructure:"temperature"`
		Timeout     int     `mapstructure:"timeout"`     // milliseconds
		MaxRetries  int     `mapstructure:"max_retries"` // For error handling
	} `mapstructure:"completion"`
}

// PipelineConfig holds per-stage settings for the insight pipeline.
type PipelineConfig struct {
	Conversation ConversationConfig `mapstructure:"conversation"`
	DataAccess   DataAccessConfig   `mapstructure:"data_access"`
	Narrative    NarrativeConfig    `mapstructure:"narrative"`
}

type ConversationConfig struct {
	Backend         string `mapstructure:"backend"`           // "memory" or "redis"
	SessionTTL      int    `mapstructure:"session_ttl"`       // seconds
	MaxPerOwner     int    `mapstructure:"max_per_owner"`
	MaxHistoryTurns int    `mapstructure:"max_history_turns"`
}

// TTL returns the session inactivity TTL as a duration.
func (c ConversationConfig) TTL() time.Duration {
	return time.Duration(c.SessionTTL) * time.Second
}

type DataAccessConfig struct {
	QueryTimeout int  `mapstructure:"query_timeout"` // milliseconds
	CacheEnabled bool `mapstructure:"cache_enabled"`
	CacheTTL     int  `mapstructure:"cache_ttl"` // seconds
}

type NarrativeConfig struct {
	PromptCharBudget int `mapstructure:"prompt_char_budget"`
}

// RegistryConfig points at the dataset registry file.
type RegistryConfig struct {
	DatasetsPath string `mapstructure:"datasets_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
