package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode      string          `mapstructure:"mode"`
	Port      int             `mapstructure:"port"`
	Secret    string          `mapstructure:"secret"`
	LogLevel  string          `mapstructure:"log_level"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Rooms     RoomsConfig     `mapstructure:"rooms"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Client    ClientConfig    `mapstructure:"client"`
}

type WebSocketConfig struct {
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
}

type RoomsConfig struct {
	GracePeriod   time.Duration     `mapstructure:"grace_period"`
	SweepInterval time.Duration     `mapstructure:"sweep_interval"`
	PINLength     int               `mapstructure:"pin_length"`
	JoinLimit     int               `mapstructure:"join_limit"`
	JoinWindow    time.Duration     `mapstructure:"join_window"`
	Slugs         map[string]string `mapstructure:"slugs"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Brokers    string `mapstructure:"brokers"`
	Topic      string `mapstructure:"topic"`
	Partitions int    `mapstructure:"partitions"`
}

// ClientConfig drives the connection manager used by stagectl.
type ClientConfig struct {
	URL               string        `mapstructure:"url"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	ReconnectDelayMax time.Duration `mapstructure:"reconnect_delay_max"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")

	v.SetDefault("websocket.read_limit", 32768)
	v.SetDefault("websocket.ping_period", "54s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "5s")
	v.SetDefault("websocket.send_buffer", 64)

	v.SetDefault("rooms.grace_period", "30m")
	v.SetDefault("rooms.sweep_interval", "1m")
	v.SetDefault("rooms.pin_length", 6)
	v.SetDefault("rooms.join_limit", 10)
	v.SetDefault("rooms.join_window", "1m")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.channel", "stage:room_updates")
	v.SetDefault("redis.prefix", "stage")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "stage.room-events")
	v.SetDefault("kafka.partitions", 3)

	v.SetDefault("client.url", "ws://localhost:8080/api/ws")
	v.SetDefault("client.reconnect_attempts", 10)
	v.SetDefault("client.reconnect_delay", "500ms")
	v.SetDefault("client.reconnect_delay_max", "3s")
	v.SetDefault("client.connect_timeout", "10s")
	v.SetDefault("client.heartbeat_interval", "5s")
}

// Load reads config/config.<CONFIG_ENV>.yaml on top of defaults. STAGE_* env
// vars override both, e.g. STAGE_REDIS_ADDR.
func Load() (*Config, error) {
	return LoadWith(viper.New())
}

// LoadWith lets callers bind flags into v before the file is read.
func LoadWith(v *viper.Viper) (*Config, error) {
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	SetDefaults(v)
	v.SetEnvPrefix("STAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("config ready")
	return &cfg, nil
}
