package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Storage   StorageConfig   `yaml:"storage"`
	Queue     QueueConfig     `yaml:"queue"`
	Worker    WorkerConfig    `yaml:"worker"`
	Transcode TranscodeConfig `yaml:"transcode"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      BrokerQueue      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Durable bool   `yaml:"durable"`
}

// BrokerQueue holds RabbitMQ queue configuration
type BrokerQueue struct {
	Name    string `yaml:"name"`
	Durable bool   `yaml:"durable"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// StorageConfig holds S3-compatible object storage configuration
type StorageConfig struct {
	Endpoint      string `yaml:"endpoint"`
	Region        string `yaml:"region"`
	Bucket        string `yaml:"bucket"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	PublicBaseURL string `yaml:"public_base_url"`
	UsePathStyle  bool   `yaml:"use_path_style"`
}

// QueueConfig holds the transcode job retry policy
type QueueConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	LeaseTTL       time.Duration `yaml:"lease_ttl"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	WorkspaceRoot   string        `yaml:"workspace_root"`
	ReaperInterval  time.Duration `yaml:"reaper_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TranscodeConfig holds per-step timeouts and codec settings
type TranscodeConfig struct {
	FFmpegPath       string        `yaml:"ffmpeg_path"`
	FFprobePath      string        `yaml:"ffprobe_path"`
	SegmentSeconds   int           `yaml:"segment_seconds"`
	ThumbnailOffset  time.Duration `yaml:"thumbnail_offset"`
	ThumbnailWidth   int           `yaml:"thumbnail_width"`
	DownloadTimeout  time.Duration `yaml:"download_timeout"`
	ThumbnailTimeout time.Duration `yaml:"thumbnail_timeout"`
	SegmentTimeout   time.Duration `yaml:"segment_timeout"`
	UploadTimeout    time.Duration `yaml:"upload_timeout"`
}

// CleanupConfig holds the orphaned media janitor settings
type CleanupConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Interval  time.Duration `yaml:"interval"`
	Retention time.Duration `yaml:"retention"`
	BatchSize int           `yaml:"batch_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

// applyDefaults fills in values the file may omit
func (c *Config) applyDefaults() {
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Queue.InitialBackoff == 0 {
		c.Queue.InitialBackoff = 5 * time.Second
	}
	if c.Queue.LeaseTTL == 0 {
		c.Queue.LeaseTTL = 30 * time.Minute
	}
	if c.Transcode.SegmentSeconds == 0 {
		c.Transcode.SegmentSeconds = 10
	}
	if c.Transcode.ThumbnailOffset == 0 {
		c.Transcode.ThumbnailOffset = time.Second
	}
	if c.Transcode.ThumbnailWidth == 0 {
		c.Transcode.ThumbnailWidth = 400
	}
	if c.Transcode.FFmpegPath == "" {
		c.Transcode.FFmpegPath = "ffmpeg"
	}
	if c.Transcode.FFprobePath == "" {
		c.Transcode.FFprobePath = "ffprobe"
	}
	if c.RabbitMQ.Publish.RetryAttempts == 0 {
		c.RabbitMQ.Publish.RetryAttempts = 3
	}
	if c.RabbitMQ.Publish.RetryInterval == 0 {
		c.RabbitMQ.Publish.RetryInterval = time.Second
	}
	if c.RabbitMQ.Publish.BackoffMultiplier == 0 {
		c.RabbitMQ.Publish.BackoffMultiplier = 2.0
	}
	if c.Cleanup.Retention == 0 {
		c.Cleanup.Retention = 24 * time.Hour
	}
	if c.Cleanup.BatchSize == 0 {
		c.Cleanup.BatchSize = 100
	}
}

// ValidateAPIConfig checks the fields the api-service depends on
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Cleanup.Enabled && c.Cleanup.Interval <= 0 {
		return fmt.Errorf("cleanup interval must be greater than 0 when cleanup is enabled")
	}

	return nil
}

// ValidateWorkerConfig checks the fields the worker-service depends on
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.WorkspaceRoot == "" {
		return fmt.Errorf("worker workspace_root is required")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	for name, d := range map[string]time.Duration{
		"download_timeout":  c.Transcode.DownloadTimeout,
		"thumbnail_timeout": c.Transcode.ThumbnailTimeout,
		"segment_timeout":   c.Transcode.SegmentTimeout,
		"upload_timeout":    c.Transcode.UploadTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("transcode %s must be greater than 0", name)
		}
	}

	return nil
}

func (c *Config) validateShared() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}

	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("queue max_attempts must be greater than 0")
	}

	return nil
}
