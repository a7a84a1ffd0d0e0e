package config

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	config     = viper.New()
	configFile = ""
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	Log        struct {
		Level     string `mapstructure:"LEVEL"`
		ErrorFile string `mapstructure:"ERROR_FILE"`
	} `mapstructure:"LOG"`
	TLS struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Enable      bool          `mapstructure:"ENABLE"`
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Auth struct {
		Secret   string `mapstructure:"SECRET"`
		Issuer   string `mapstructure:"ISSUER"`
		Audience string `mapstructure:"AUDIENCE"`
	} `mapstructure:"AUTH"`
	Events struct {
		HubCapacity  int           `mapstructure:"HUB_CAPACITY"`
		Heartbeat    time.Duration `mapstructure:"HEARTBEAT"`
		MinReconnect time.Duration `mapstructure:"MIN_RECONNECT"`
		MaxReconnect time.Duration `mapstructure:"MAX_RECONNECT"`
		StreamRate   float64       `mapstructure:"STREAM_RATE"`
		StreamBurst  int           `mapstructure:"STREAM_BURST"`
	} `mapstructure:"EVENTS"`
	Redeem struct {
		LockTTL time.Duration `mapstructure:"LOCK_TTL"`
	} `mapstructure:"REDEEM"`
}

// DSN renders the connection string for postgres style drivers.
func (c *Config) DSN() string {
	db := c.Database
	parts := []string{
		"host=" + db.Host,
		"port=" + db.Port,
		"user=" + db.User,
		"password=" + db.Password,
		"dbname=" + db.DBNAME,
		"sslmode=" + db.SSLMode,
	}
	if db.Timezone != "" {
		parts = append(parts, "TimeZone="+db.Timezone)
	}
	return strings.Join(parts, " ")
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

// SetFile points the loader at an explicit config file instead of ./config.yaml.
func SetFile(path string) {
	configFile = path
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "engage-ledger")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("LOG.LEVEL", "info")
	v.SetDefault("LOG.ERROR_FILE", "")
	v.SetDefault("TLS.ENABLE", false)
	v.SetDefault("TLS.CERT_PATH", "")
	v.SetDefault("TLS.KEY_PATH", "")
	v.SetDefault("OTEL.ADDR", "")
	v.SetDefault("OTEL.PROTOCOL", "http")
	v.SetDefault("PYROSCOPE.ADDR", "")
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 0)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("GRPC_SERVER.ADDR", "9090")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", "5432")
	v.SetDefault("DATABASE.DBNAME", "engage")
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 5)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 20)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 10*time.Minute)
	v.SetDefault("REDIS.ENABLE", false)
	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)
	v.SetDefault("FLAGSMITH.ADDR", "")
	v.SetDefault("FLAGSMITH.API_KEY", "")
	v.SetDefault("AUTH.SECRET", "")
	v.SetDefault("AUTH.ISSUER", "")
	v.SetDefault("AUTH.AUDIENCE", "")
	v.SetDefault("EVENTS.HUB_CAPACITY", 10)
	v.SetDefault("EVENTS.HEARTBEAT", time.Second)
	v.SetDefault("EVENTS.MIN_RECONNECT", 10*time.Second)
	v.SetDefault("EVENTS.MAX_RECONNECT", time.Minute)
	v.SetDefault("EVENTS.STREAM_RATE", 5)
	v.SetDefault("EVENTS.STREAM_BURST", 20)
	v.SetDefault("REDEEM.LOCK_TTL", 10*time.Second)
}

func LoadConfig(p Params) *Config {
	if configFile != "" {
		config.SetConfigFile(configFile)
	} else {
		config.SetConfigName("config")
		config.SetConfigType("yaml")
		config.AddConfigPath(".")
	}

	setDefaults(config)
	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			zap.L().Error("failed to read config", zap.Error(err))
			os.Exit(1)
		}
		zap.L().Info("no config file found, using defaults and environment")
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		// START - Vault
		client := p.Vault
		ctx := context.Background()

		zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
		secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
		if err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
		zap.L().Info("Success Get Secret")

		get := func(key string, fallback string) string {
			if val, ok := secret.Data.Data[key].(string); ok && val != "" {
				return val
			}
			return fallback
		}

		cfg.Database.User = get("postgres_user", cfg.Database.User)
		cfg.Database.Password = get("postgres_password", cfg.Database.Password)
		cfg.Redis.Password = get("redis_password", cfg.Redis.Password)
		cfg.Auth.Secret = get("auth_secret", cfg.Auth.Secret)
		cfg.Flagsmith.ApiKey = get("flagsmith_api_key", cfg.Flagsmith.ApiKey)
		// END - Vault
	}

	return &cfg
}
