package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all settings shared by the server and worker binaries.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Media     MediaConfig     `mapstructure:"media"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// WorkerConfig contains configuration for the job worker.
type WorkerConfig struct {
	MaxWorkers int `mapstructure:"max_workers"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

// MediaConfig locates uploaded source files and derived HLS outputs.
type MediaConfig struct {
	Root string `mapstructure:"root"`
}

// QueueConfig controls job dispatch, retry and timeout behaviour.
type QueueConfig struct {
	Name        string          `mapstructure:"name"`
	JobTimeout  time.Duration   `mapstructure:"job_timeout"`
	MaxAttempts int             `mapstructure:"max_attempts"`
	Backoff     []time.Duration `mapstructure:"backoff"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// TranscodeConfig selects the encoder binary used for HLS conversion.
type TranscodeConfig struct {
	FFmpegBin string `mapstructure:"ffmpeg_bin"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("worker.max_workers", 1)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "videoflix_db")
	v.SetDefault("media.root", "media")
	v.SetDefault("queue.name", "default")
	v.SetDefault("queue.job_timeout", 900*time.Second)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.backoff", []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second})
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("transcode.ffmpeg_bin", "ffmpeg")
}

// LoadConfig reads configuration from the environment. Every key can be set
// via a VIDEOFLIX_ prefixed variable, e.g. VIDEOFLIX_DATABASE_HOST or
// VIDEOFLIX_TRANSCODE_FFMPEG_BIN.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("VIDEOFLIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Queue.MaxAttempts < 1 {
		return nil, fmt.Errorf("queue.max_attempts must be at least 1, got %d", cfg.Queue.MaxAttempts)
	}
	if len(cfg.Queue.Backoff) == 0 {
		return nil, fmt.Errorf("queue.backoff must list at least one interval")
	}

	return &cfg, nil
}

// ConnString builds the postgres connection string used by pgx.
func (c *DatabaseConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
	)
}
