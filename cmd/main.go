package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"eventDesk/cmd/buildCFG"
	"eventDesk/cmd/middleware"
	"eventDesk/internal/api/api"
	"eventDesk/internal/cache"
	rabbitReader "eventDesk/internal/consumerWorker"
	"eventDesk/internal/mailer"
	"eventDesk/internal/rabbit"
	"eventDesk/internal/remote"
	"eventDesk/internal/repo"
	"eventDesk/internal/service"
	"eventDesk/internal/syncManager"
)

func main() {
	zlog.Init()
	log := zlog.Logger

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := buildCFG.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	serverCfg := buildCFG.BuildServerConfig(cfg, &log)

	remoteCfg, err := buildCFG.BuildRemoteConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid remote config")
	}
	storageCfg, err := buildCFG.BuildStorageConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid storage config")
	}
	syncCfg, err := buildCFG.BuildSyncConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid sync config")
	}
	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid rabbitmq config")
	}
	rateCfg, err := buildCFG.BuildRateLimitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid rate limit config")
	}
	mailCfg, mailOn, err := buildCFG.BuildMailerConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid mailer config")
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	store, shutdownStore := openRemote(rootCtx, cfg, remoteCfg, &log)
	defer shutdownStore()

	repository, err := repo.NewRepository(store, remoteCfg.Tables, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize repository")
	}

	var rdb *redis.Client
	if storageCfg.Driver == buildCFG.StorageRedis || rateCfg.Enabled {
		rc := buildCFG.BuildRedisConfig(cfg, &log)
		rdb = cache.NewRedisClient(rc.Addr, rc.Password, rc.DB, &log)
		if rdb != nil {
			defer rdb.Close()
		}
	}

	storage := openStorage(storageCfg, rdb, &log)
	localCache := cache.New(storage, &log)

	manager := syncManager.New(repository, localCache, syncCfg, &log)

	origin := uuid.NewString()
	opts := []service.Option{service.WithNotifiers(cache.NewBroadcaster(storage, &log))}

	var reader *rabbitReader.Reader
	if rabbitCfg.Enabled {
		rmq, err := rabbit.NewRabbit(rabbitCfg.Url, rabbitCfg.Exchange, rabbitCfg.Queue, &log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		opts = append(opts, service.WithNotifiers(rabbit.NewChangeNotifier(rmq, origin, &log)))
		reader = rabbitReader.NewReader(rmq, manager, origin, &log)
	}

	if mailOn {
		m, err := mailer.New(mailCfg, &log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize mailer")
		}
		opts = append(opts, service.WithMailer(m))
	}

	serviceInstance := service.NewService(repository, localCache, &log, opts...)

	manager.Start(rootCtx)
	if reader != nil {
		if err := reader.Start(rootCtx); err != nil {
			log.Fatal().Err(err).Msg("failed to start change reader")
		}
	}
	// Only a shared storage carries refresh signals from other instances.
	if storageCfg.Driver == buildCFG.StorageRedis {
		cache.Listen(rootCtx, storage, &log, func() { manager.Trigger("refresh signal") })
	}

	var limiter middleware.Limiter
	if rdb != nil {
		limiter = middleware.NewRedisLimiter(rdb, rateCfg)
	}
	app := api.NewRouters(&api.Routers{
		Service:   serviceInstance,
		Sync:      manager,
		Limiter:   limiter,
		RateLimit: rateCfg,
		Log:       &log,
		Mode:      serverCfg.Mode,
	})

	srv := &http.Server{Addr: ":" + serverCfg.Port, Handler: app}
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", serverCfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Msgf("Received signal %s. Initiating shutdown...", sig)
	case err := <-serverErrChan:
		log.Error().Err(err).Msg("server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down server")
	}

	if reader != nil {
		reader.Stop()
	}
	manager.Stop()
	cancelRoot()
	log.Info().Msg("Shutdown complete")
}

// openRemote builds the configured remote store. The returned func runs on shutdown.
func openRemote(ctx context.Context, cfg *viper.Viper, rc buildCFG.RemoteConfig, log *zerolog.Logger) (remote.Store, func()) {
	noop := func() {}

	switch rc.Driver {
	case buildCFG.DriverPostgREST:
		client := remote.NewPostgREST(rc.PostgREST, log)
		if err := client.Init(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to initialize remote client")
		}
		return client, noop

	case buildCFG.DriverPostgres:
		masterDSN, slaveDSNs, poolOptions, dbCfg, err := buildCFG.BuildDBConfig(cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build DB config")
		}
		db, err := dbpg.New(masterDSN, slaveDSNs, poolOptions)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to DB")
		}
		pg, err := remote.NewPostgresStore(db, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize postgres store")
		}

		migrationPath := dbCfg.Migrations
		if !filepath.IsAbs(migrationPath) {
			cwd, err := os.Getwd()
			if err != nil {
				log.Fatal().Err(err).Msg("cannot get working directory")
			}
			migrationPath = filepath.Join(cwd, migrationPath)
		}
		if pg.Ready() {
			if err := pg.MigrateUp(ctx, migrationPath); err != nil {
				log.Fatal().Err(err).Msg("migration failed")
			}
			log.Info().Msg("Migrations applied successfully")
		}

		return pg, func() {
			if dbCfg.RollbackOnShutdown && pg.Ready() {
				log.Info().Msg("Rolling back migrations...")
				if err := pg.MigrateDown(context.Background(), migrationPath); err != nil {
					log.Error().Err(err).Msg("failed to rollback migrations")
				}
			}
			if err := db.Master.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close database")
			}
		}

	default:
		log.Warn().Msg("using in-memory remote store, data is lost on restart")
		return remote.NewMemoryStore(rc.Tables), noop
	}
}

// openStorage falls back to process memory when the configured backend cannot be used.
func openStorage(sc buildCFG.StorageConfig, rdb *redis.Client, log *zerolog.Logger) cache.Storage {
	switch sc.Driver {
	case buildCFG.StorageFile:
		fs, err := cache.NewFileStorage(sc.Dir, sc.QuotaBytes)
		if err != nil {
			log.Error().Err(err).Str("dir", sc.Dir).Msg("file storage unavailable, using memory")
			return cache.NewMemoryStorage()
		}
		return fs
	case buildCFG.StorageRedis:
		if rdb == nil {
			log.Error().Msg("redis storage unavailable, using memory")
			return cache.NewMemoryStorage()
		}
		return cache.NewRedisStorage(rdb, sc.Prefix, log)
	default:
		return cache.NewMemoryStorage()
	}
}
