package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	UnixSocket   string        `mapstructure:"unix_socket"`
	Prefix       string        `mapstructure:"prefix"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	SlowRequest  time.Duration `mapstructure:"slow_request"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

type StorageConfig struct {
	Driver string       `mapstructure:"driver"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PubSubConfig struct {
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	TopicPrefix   string        `mapstructure:"topic_prefix"`
	CallTimeout   time.Duration `mapstructure:"call_timeout"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("webhook-router")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/webhook-router")
	}

	setDefaults(v)

	v.SetEnvPrefix("WEBHOOK_ROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.unix_socket", "")
	v.SetDefault("server.prefix", "/webhooks")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", time.Duration(0))
	v.SetDefault("server.slow_request", 100*time.Millisecond)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite.path", "db.sqlite")

	v.SetDefault("pubsub.url", "nats://127.0.0.1:4222")
	v.SetDefault("pubsub.name", "webhook-router")
	v.SetDefault("pubsub.topic_prefix", "webhooks")
	v.SetDefault("pubsub.call_timeout", time.Duration(0))
	v.SetDefault("pubsub.reconnect_wait", 2*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
