package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config is the full service configuration loaded from YAML.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Business  BusinessConfig  `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	ClientNotifications string `mapstructure:"client_notifications"`
	OperatorAlerts      string `mapstructure:"operator_alerts"`
}

type ProvidersConfig struct {
	GamSwitch GamSwitchConfig `mapstructure:"gamswitch"`
	Nawec     NawecConfig     `mapstructure:"nawec"`
	// DefaultCashpower selects the adapter for cashpower purchases when the
	// request does not name one: "gamswitch" or "nawec".
	DefaultCashpower string `mapstructure:"default_cashpower"`
}

type GamSwitchConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIToken       string `mapstructure:"api_token"`
	HMACSecret     string `mapstructure:"hmac_secret"`
	DefaultNetwork string `mapstructure:"default_network"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type NawecConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	ClientID       string `mapstructure:"client_id"`
	ClientSecret   string `mapstructure:"client_secret"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type BusinessConfig struct {
	EnforceIPAllowlist    bool   `mapstructure:"enforce_ip_allowlist"`
	PendingTimeoutMinutes int    `mapstructure:"pending_timeout_minutes"`
	MaxRetryCount         int    `mapstructure:"max_retry_count"`
	BalanceCheckMinutes   int    `mapstructure:"balance_check_minutes"`
	ReceiptDir            string `mapstructure:"receipt_dir"`
	APIKeyCacheSeconds    int    `mapstructure:"apikey_cache_seconds"`
}

var GlobalConfig *Config

// LoadConfig reads and parses the YAML configuration file.
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("failed to parse config file: %v", err)
	}

	GlobalConfig = config
	return config
}
