package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Game     GameConfig     `mapstructure:"game"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Match    MatchConfig    `mapstructure:"match"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	Mode     string `mapstructure:"mode"` // debug, release
	LogLevel string `mapstructure:"logLevel"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"` // postgres://, mysql://, sqlite://
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int    `mapstructure:"expire"` // hours
}

type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"maxReconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnectWait"`
}

type GameConfig struct {
	MinActionInterval time.Duration `mapstructure:"minActionInterval"`
	RollLock          time.Duration `mapstructure:"rollLock"`
	CaptureLock       time.Duration `mapstructure:"captureLock"`
	ForfeitGrace      time.Duration `mapstructure:"forfeitGrace"`
	HubBuffer         int           `mapstructure:"hubBuffer"`
}

type GatewayConfig struct {
	RateLimit     int           `mapstructure:"rateLimit"`
	RateWindow    time.Duration `mapstructure:"rateWindow"`
	DedupeTTL     time.Duration `mapstructure:"dedupeTTL"`
	ActionTimeout time.Duration `mapstructure:"actionTimeout"`
}

type MatchConfig struct {
	WaitTimeout      time.Duration `mapstructure:"waitTimeout"`
	ResultRetention  time.Duration `mapstructure:"resultRetention"`
	SweepInterval    time.Duration `mapstructure:"sweepInterval"`
	CheckSameNetwork bool          `mapstructure:"checkSameNetwork"`
}

var GlobalConfig *Config

// LoadConfig reads the YAML file at path. Values from a .env file and from
// LUDO_* environment variables override it, e.g. LUDO_REDIS_ADDR.
func LoadConfig(path string) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("LUDO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			log.Fatalf("Error reading config file, %s", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}
	GlobalConfig = &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.logLevel", "info")
	v.SetDefault("database.dsn", "sqlite://ludo.db")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expire", 72)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.maxReconnects", -1)
	v.SetDefault("nats.reconnectWait", "2s")

	v.SetDefault("game.minActionInterval", "300ms")
	v.SetDefault("game.rollLock", "0s")
	v.SetDefault("game.captureLock", "800ms")
	v.SetDefault("game.forfeitGrace", "60s")
	v.SetDefault("game.hubBuffer", 64)

	v.SetDefault("gateway.rateLimit", 20)
	v.SetDefault("gateway.rateWindow", "10s")
	v.SetDefault("gateway.dedupeTTL", "5m")
	v.SetDefault("gateway.actionTimeout", "5s")

	v.SetDefault("match.waitTimeout", "10m")
	v.SetDefault("match.resultRetention", "5m")
	v.SetDefault("match.sweepInterval", "30s")
	v.SetDefault("match.checkSameNetwork", true)
}
