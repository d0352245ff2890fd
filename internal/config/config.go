package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Capitan-Parrot/clever-camera/internal/classifier"
)

const defaultConfigPath = "config/local.yaml"

// Config is the service configuration. Values come from the YAML file and
// are overridden by environment variables.
type Config struct {
	Log struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Pretty bool   `yaml:"pretty" env:"LOG_PRETTY"`
	} `yaml:"log"`

	HTTP struct {
		Addr string `yaml:"addr" env:"HTTP_ADDR"`
	} `yaml:"http"`

	Storage struct {
		SnapshotsDir   string        `yaml:"snapshots_dir" env:"SNAPSHOTS_DIR"`
		SettingsPath   string        `yaml:"settings_path" env:"SETTINGS_PATH"`
		RetentionDays  int           `yaml:"retention_days" env:"RETENTION_DAYS"`
		PruneInterval  time.Duration `yaml:"prune_interval" env:"PRUNE_INTERVAL"`
		ThumbnailSize  int           `yaml:"thumbnail_size" env:"THUMBNAIL_SIZE"`
		VideoSkipFrame int           `yaml:"video_skip_frames" env:"VIDEO_SKIP_FRAMES"`
	} `yaml:"storage"`

	Classifier classifier.Options `yaml:"classifier"`

	Postgres struct {
		DSN string `yaml:"dsn" env:"DATABASE_DSN"`
	} `yaml:"postgres"`

	Minio struct {
		Endpoint  string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
		AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
		Bucket    string `yaml:"bucket" env:"MINIO_BUCKET"`
		Secure    bool   `yaml:"secure" env:"MINIO_SECURE"`
	} `yaml:"minio"`

	Kafka struct {
		Brokers        []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
		GroupID        string   `yaml:"group_id" env:"KAFKA_GROUP_ID"`
		CommandTopic   string   `yaml:"command_topic" env:"COMMAND_TOPIC"`
		EventTopic     string   `yaml:"event_topic" env:"EVENT_TOPIC"`
		HeartbeatTopic string   `yaml:"heartbeat_topic" env:"HEARTBEAT_TOPIC"`
	} `yaml:"kafka"`

	Nats struct {
		URL           string        `yaml:"url" env:"NATS_URL"`
		Subject       string        `yaml:"subject" env:"NATS_SUBJECT"`
		Timeout       time.Duration `yaml:"timeout" env:"NATS_CONNECT_TIMEOUT"`
		ReconnectWait time.Duration `yaml:"reconnect_wait" env:"NATS_RECONNECT_WAIT"`
		MaxReconnects int           `yaml:"max_reconnects" env:"NATS_MAX_RECONNECTS"`
	} `yaml:"nats"`

	MQTT struct {
		Broker   string `yaml:"broker" env:"MQTT_BROKER"`
		ClientID string `yaml:"client_id" env:"MQTT_CLIENT_ID"`
		Username string `yaml:"username" env:"MQTT_USERNAME"`
		Password string `yaml:"password" env:"MQTT_PASSWORD"`
		Topic    string `yaml:"topic" env:"MQTT_TOPIC"`
	} `yaml:"mqtt"`

	// Dispatch bounds the background queues of the postgres, minio and
	// kafka integrations.
	Dispatch struct {
		QueueSize int           `yaml:"queue_size" env:"DISPATCH_QUEUE_SIZE"`
		Timeout   time.Duration `yaml:"timeout" env:"DISPATCH_TIMEOUT"`
	} `yaml:"dispatch"`

	SMTP struct {
		Host string `yaml:"host" env:"SMTP_HOST"`
		Port int    `yaml:"port" env:"SMTP_PORT"`
	} `yaml:"smtp"`
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Log.Level = "info"
	cfg.HTTP.Addr = ":8080"
	cfg.Storage.SnapshotsDir = "snapshots"
	cfg.Storage.SettingsPath = "settings.yaml"
	cfg.Storage.RetentionDays = 30
	cfg.Storage.PruneInterval = time.Hour
	cfg.Storage.ThumbnailSize = 224
	cfg.Classifier.Backend = classifier.BackendHTTP
	cfg.Minio.Bucket = "snapshots"
	cfg.Kafka.GroupID = "clever-camera"
	cfg.Kafka.CommandTopic = "camera-commands"
	cfg.Kafka.EventTopic = "camera-events"
	cfg.Kafka.HeartbeatTopic = "camera-heartbeats"
	cfg.Nats.Subject = "camera.alerts"
	cfg.Nats.Timeout = 5 * time.Second
	cfg.Nats.ReconnectWait = 2 * time.Second
	cfg.Nats.MaxReconnects = 10
	cfg.MQTT.ClientID = "clever-camera"
	cfg.MQTT.Topic = "camera/alerts"
	cfg.Dispatch.QueueSize = 256
	cfg.Dispatch.Timeout = 10 * time.Second
	cfg.SMTP.Host = "smtp.gmail.com"
	cfg.SMTP.Port = 587
	return cfg
}

// LoadConfig reads an optional .env file, then the YAML file at path
// (defaultConfigPath when empty), then applies environment overrides.
// A missing YAML file leaves the defaults in place.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaults()

	if path == "" {
		path = defaultConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
