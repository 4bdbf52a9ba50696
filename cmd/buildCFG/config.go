package buildCFG

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/wb-go/wbf/dbpg"

	"eventDesk/cmd/middleware"
	"eventDesk/internal/mailer"
	"eventDesk/internal/remote"
	"eventDesk/internal/syncManager"
)

const (
	DriverPostgREST = "postgrest"
	DriverPostgres  = "postgres"
	DriverMemory    = "memory"

	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
)

// Load reads path (if it exists) and lets environment variables override
// any key: remote.anon_key becomes REMOTE_ANON_KEY.
func Load(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		return v, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return v, nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("remote.driver", DriverMemory)
	v.SetDefault("remote.tables.events", "events")
	v.SetDefault("remote.tables.registrations", "registrations")
	v.SetDefault("remote.timeout", 10*time.Second)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.migrations", "migrations/postgres")

	v.SetDefault("storage.driver", StorageMemory)
	v.SetDefault("storage.dir", "data/cache")
	v.SetDefault("storage.prefix", "eventdesk")

	v.SetDefault("redis.addr", "localhost:6379")

	def := syncManager.DefaultConfig()
	v.SetDefault("sync.interval", def.Interval)
	v.SetDefault("sync.retry_attempts", def.RetryAttempts)
	v.SetDefault("sync.retry_delay", def.RetryDelay)

	v.SetDefault("rabbit.exchange", "eventdesk.changes")

	rl := middleware.DefaultRateLimitConfig()
	v.SetDefault("ratelimit.enabled", rl.Enabled)
	v.SetDefault("ratelimit.max_requests", rl.MaxRequests)
	v.SetDefault("ratelimit.window", rl.Window)
	v.SetDefault("ratelimit.block", rl.Block)
	v.SetDefault("ratelimit.prefix", rl.Prefix)

	v.SetDefault("mailer.port", 587)
}

type ServerConfig struct {
	Port            string
	Mode            string
	ShutdownTimeout time.Duration
}

func BuildServerConfig(cfg *viper.Viper, log *zerolog.Logger) ServerConfig {
	sc := ServerConfig{
		Port:            cfg.GetString("server.port"),
		Mode:            cfg.GetString("server.mode"),
		ShutdownTimeout: cfg.GetDuration("server.shutdown_timeout"),
	}
	log.Info().Str("port", sc.Port).Str("mode", sc.Mode).Msg("server config loaded")
	return sc
}

type RemoteConfig struct {
	Driver    string
	PostgREST remote.PostgRESTConfig
	Tables    remote.Tables
}

func BuildRemoteConfig(cfg *viper.Viper, log *zerolog.Logger) (RemoteConfig, error) {
	tables := remote.Tables{
		Events:        cfg.GetString("remote.tables.events"),
		Registrations: cfg.GetString("remote.tables.registrations"),
	}
	rc := RemoteConfig{
		Driver: strings.ToLower(cfg.GetString("remote.driver")),
		Tables: tables,
		PostgREST: remote.PostgRESTConfig{
			URL:     cfg.GetString("remote.url"),
			AnonKey: cfg.GetString("remote.anon_key"),
			Tables:  tables,
			Timeout: cfg.GetDuration("remote.timeout"),
		},
	}

	switch rc.Driver {
	case DriverPostgREST:
		if err := rc.PostgREST.Validate(); err != nil {
			return RemoteConfig{}, fmt.Errorf("remote: %w", err)
		}
	case DriverPostgres, DriverMemory:
		if tables.Events == "" || tables.Registrations == "" {
			return RemoteConfig{}, fmt.Errorf("remote: table names are required")
		}
	default:
		return RemoteConfig{}, fmt.Errorf("remote: unknown driver %q", rc.Driver)
	}

	log.Info().Str("driver", rc.Driver).Str("events", tables.Events).Str("registrations", tables.Registrations).Msg("remote config loaded")
	return rc, nil
}

type DBConfig struct {
	Migrations         string
	RollbackOnShutdown bool
}

func BuildDBConfig(cfg *viper.Viper, log *zerolog.Logger) (string, []string, *dbpg.Options, DBConfig, error) {
	master := cfg.GetString("database.master_dsn")
	if master == "" {
		return "", nil, nil, DBConfig{}, fmt.Errorf("database.master_dsn is required")
	}
	slaves := cfg.GetStringSlice("database.slave_dsns")

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("database.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: cfg.GetDuration("database.conn_max_lifetime"),
	}
	if opts.MaxOpenConns <= 0 || opts.MaxIdleConns < 0 {
		return "", nil, nil, DBConfig{}, fmt.Errorf("database pool sizes must be positive")
	}

	dc := DBConfig{
		Migrations:         cfg.GetString("database.migrations"),
		RollbackOnShutdown: cfg.GetBool("database.rollback_on_shutdown"),
	}
	log.Info().Int("slaves", len(slaves)).Int("max_open_conns", opts.MaxOpenConns).Msg("database config loaded")
	return master, slaves, opts, dc, nil
}

type StorageConfig struct {
	Driver     string
	Dir        string
	QuotaBytes int64
	Prefix     string
}

func BuildStorageConfig(cfg *viper.Viper, log *zerolog.Logger) (StorageConfig, error) {
	sc := StorageConfig{
		Driver:     strings.ToLower(cfg.GetString("storage.driver")),
		Dir:        cfg.GetString("storage.dir"),
		QuotaBytes: cfg.GetInt64("storage.quota_bytes"),
		Prefix:     cfg.GetString("storage.prefix"),
	}
	switch sc.Driver {
	case StorageMemory:
	case StorageFile:
		if sc.Dir == "" {
			return StorageConfig{}, fmt.Errorf("storage.dir is required for the file driver")
		}
		if sc.QuotaBytes < 0 {
			return StorageConfig{}, fmt.Errorf("storage.quota_bytes cannot be negative")
		}
	case StorageRedis:
		if sc.Prefix == "" {
			return StorageConfig{}, fmt.Errorf("storage.prefix is required for the redis driver")
		}
	default:
		return StorageConfig{}, fmt.Errorf("storage: unknown driver %q", sc.Driver)
	}
	log.Info().Str("driver", sc.Driver).Msg("storage config loaded")
	return sc, nil
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func BuildRedisConfig(cfg *viper.Viper, log *zerolog.Logger) RedisConfig {
	rc := RedisConfig{
		Addr:     cfg.GetString("redis.addr"),
		Password: cfg.GetString("redis.password"),
		DB:       cfg.GetInt("redis.db"),
	}
	log.Debug().Str("addr", rc.Addr).Int("db", rc.DB).Msg("redis config loaded")
	return rc
}

func BuildSyncConfig(cfg *viper.Viper, log *zerolog.Logger) (syncManager.Config, error) {
	sc := syncManager.Config{
		Interval:      cfg.GetDuration("sync.interval"),
		RetryAttempts: cfg.GetInt("sync.retry_attempts"),
		RetryDelay:    cfg.GetDuration("sync.retry_delay"),
	}
	if sc.Interval <= 0 {
		return syncManager.Config{}, fmt.Errorf("sync.interval must be positive")
	}
	if sc.RetryAttempts < 1 {
		return syncManager.Config{}, fmt.Errorf("sync.retry_attempts must be at least 1")
	}
	if sc.RetryDelay < 0 {
		return syncManager.Config{}, fmt.Errorf("sync.retry_delay cannot be negative")
	}
	log.Info().Dur("interval", sc.Interval).Int("retries", sc.RetryAttempts).Msg("sync config loaded")
	return sc, nil
}

type RabbitConfig struct {
	Enabled  bool
	Url      string
	Exchange string
	Queue    string
}

func BuildRabbitConfig(cfg *viper.Viper, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Enabled:  cfg.GetBool("rabbit.enabled"),
		Url:      cfg.GetString("rabbit.url"),
		Exchange: cfg.GetString("rabbit.exchange"),
		Queue:    cfg.GetString("rabbit.queue"),
	}
	if !rc.Enabled {
		log.Info().Msg("rabbitmq disabled")
		return rc, nil
	}
	if rc.Url == "" || rc.Exchange == "" {
		return RabbitConfig{}, fmt.Errorf("rabbit.url and rabbit.exchange are required when rabbit is enabled")
	}
	log.Info().Str("exchange", rc.Exchange).Msg("rabbitmq config loaded")
	return rc, nil
}

func BuildRateLimitConfig(cfg *viper.Viper, log *zerolog.Logger) (middleware.RateLimitConfig, error) {
	rc := middleware.RateLimitConfig{
		Enabled:     cfg.GetBool("ratelimit.enabled"),
		MaxRequests: cfg.GetInt("ratelimit.max_requests"),
		Window:      cfg.GetDuration("ratelimit.window"),
		Block:       cfg.GetDuration("ratelimit.block"),
		Prefix:      cfg.GetString("ratelimit.prefix"),
	}
	if rc.Enabled && (rc.MaxRequests < 1 || rc.Window <= 0 || rc.Block <= 0) {
		return middleware.RateLimitConfig{}, fmt.Errorf("ratelimit: max_requests, window and block must be positive")
	}
	log.Info().Bool("enabled", rc.Enabled).Int("max", rc.MaxRequests).Dur("window", rc.Window).Msg("rate limit config loaded")
	return rc, nil
}

// BuildMailerConfig returns ok=false when mail notifications are switched off.
func BuildMailerConfig(cfg *viper.Viper, log *zerolog.Logger) (mailer.Config, bool, error) {
	if !cfg.GetBool("mailer.enabled") {
		log.Info().Msg("mailer disabled")
		return mailer.Config{}, false, nil
	}
	mc := mailer.Config{
		Host:     cfg.GetString("mailer.host"),
		Port:     cfg.GetInt("mailer.port"),
		Username: cfg.GetString("mailer.username"),
		Password: cfg.GetString("mailer.password"),
		From:     cfg.GetString("mailer.from"),
	}
	if err := mc.Validate(); err != nil {
		return mailer.Config{}, false, fmt.Errorf("mailer: %w", err)
	}
	return mc, true, nil
}
