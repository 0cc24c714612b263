package config

import (
	"log"
	"os"
	"strconv"

	"github.com/spf13/viper"
)

type Server struct {
	Port string `mapstructure:"port"`
}

type Database struct {
	User    string `mapstructure:"user"`
	Name    string `mapstructure:"name"`
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	SSLMode string `mapstructure:"ssl-mode"`
}

type Gateway struct {
	BaseURL     string `mapstructure:"base-url"`
	CallbackURL string `mapstructure:"callback-url"`
	TimeoutMs   int    `mapstructure:"timeout-ms"`
}

type KafkaBroker struct {
	URL string `mapstructure:"url"`
}

type KafkaTopic struct {
	PaymentStatusEvents string `mapstructure:"payment-status-events"`
}

type KafkaWriter struct {
	BatchSize      int `mapstructure:"batch-size"`
	BatchTimeoutMs int `mapstructure:"batch-timeout-ms"`
}

type Kafka struct {
	Broker KafkaBroker `mapstructure:"broker"`
	Topic  KafkaTopic  `mapstructure:"topic"`
	Writer KafkaWriter `mapstructure:"writer"`
}

type Metrics struct {
	URL          string `mapstructure:"url"`
	IntervalMs   int    `mapstructure:"interval-ms"`
	CommonLabels string `mapstructure:"common-labels"`
}

type Logs struct {
	URL string `mapstructure:"url"`
}

type Config struct {
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Gateway  Gateway  `mapstructure:"gateway"`
	Kafka    Kafka    `mapstructure:"kafka"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Logs     Logs     `mapstructure:"logs"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func MustLoadConfig(path string) *Config {
	config, err := LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return config
}

// Secrets (DB password, webhook shared secrets, gateway API key, JWT secret)
// come from the environment, never from the yaml file.

func Get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func GetRequired(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("Required environment variable %s is not set", key)
	}
	return value
}
