package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Redis       RedisConfig       `yaml:"redis"`
	CargoLedger CargoLedgerConfig `yaml:"cargoledger"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                      string `yaml:"host"`
	Port                      int    `yaml:"port"`
	ShipmentsChangedTopicName string `yaml:"shipments_changed_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type CargoLedgerConfig struct {
	GRPCAddr           string `yaml:"grpc_addr"`
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	// JWTSecret проверяет токены, выпущенные сервисом авторизации.
	JWTSecret       string `yaml:"jwt_secret"`
	InvoicePassword string `yaml:"invoice_password"`

	SaveChunkSize   int `yaml:"save_chunk_size"`
	SaveParallelism int `yaml:"save_parallelism"`

	SnapshotTTLSeconds       int `yaml:"snapshot_ttl_seconds"`
	ImportRateLimitPerMinute int `yaml:"import_rate_limit_per_minute"`

	WorkerHTTPAddr               string `yaml:"worker_http_addr"`
	WorkerConsumerGroup          string `yaml:"worker_consumer_group"`
	WorkerRefreshIntervalSeconds int    `yaml:"worker_refresh_interval_seconds"`

	GoogleSheetsBaseURL         string `yaml:"google_sheets_base_url"`
	GoogleSheetsAPIKey          string `yaml:"google_sheets_api_key"`
	GoogleServiceAccountKeyPath string `yaml:"google_service_account_key_path"`
}

// DSN собирает строку подключения к Postgres.
func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// ${VAR} в файле подставляются из окружения (и из .env, если он загружен)
	data = []byte(os.ExpandEnv(string(data)))

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
