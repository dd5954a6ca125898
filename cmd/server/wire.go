package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	config "github.com/maheshrc27/reshare/configs"
	"github.com/maheshrc27/reshare/internal/backfill"
	"github.com/maheshrc27/reshare/internal/library"
	"github.com/maheshrc27/reshare/internal/locker"
	"github.com/maheshrc27/reshare/internal/queue"
	"github.com/maheshrc27/reshare/internal/repository"
	"github.com/maheshrc27/reshare/internal/service"
	"github.com/maheshrc27/reshare/internal/storage"
	"github.com/maheshrc27/reshare/pkg/vault"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type repositories struct {
	queue    repository.QueueRepository
	history  repository.HistoryRepository
	library  repository.LibraryRepository
	creds    repository.CredentialRepository
	accounts repository.AccountRepository
	tenants  repository.TenantRepository
}

// app is everything the commands share once the config is loaded.
type app struct {
	cfg      *config.Config
	db       *sql.DB
	redisOpt *redis.Options
	redis    *redis.Client
	tasks    *asynq.Client
	repos    repositories

	vault    *vault.Vault
	ig       service.InstagramClient
	store    storage.ObjectStore
	queue    service.QueueService
	tokens   service.TokenService
	settings service.TenantService
	pipeline *backfill.Pipeline
	indexer  *library.Indexer
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := repository.Open(cfg.PostgresURI)
	if err != nil {
		log.Error().Err(err).Msg("database is unreachable")
		return nil, err
	}

	redisOpt, err := redisOptions(cfg.RedisURI)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		db:       db,
		redisOpt: redisOpt,
		redis:    redis.NewClient(redisOpt),
		tasks:    asynq.NewClient(asynqOptions(redisOpt)),
		repos: repositories{
			queue:    repository.NewQueueRepository(db),
			history:  repository.NewHistoryRepository(db),
			library:  repository.NewLibraryRepository(db),
			creds:    repository.NewCredentialRepository(db),
			accounts: repository.NewAccountRepository(db),
			tenants:  repository.NewTenantRepository(db),
		},
	}

	a.vault, err = vault.New(cfg.SecretKey, vault.WithStateTTL(cfg.Tokens.StateTTL))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.store, err = newObjectStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	locks := locker.NewRedisLocker(a.redis, 2*time.Minute, 5*time.Second)

	a.ig = service.NewInstagramClient(cfg.Instagram, nil)
	a.queue = service.NewQueueService(cfg.Queue, a.repos.queue, a.repos.history, a.repos.library, a.repos.tenants, locks, queue.NewDispatcher(a.tasks))
	a.tokens = service.NewTokenService(*cfg, a.vault, a.repos.creds, a.repos.accounts, a.repos.tenants, a.ig)
	a.settings = service.NewTenantService(a.repos.tenants, a.repos.accounts, a.repos.creds)
	a.pipeline = backfill.NewPipeline(cfg.Backfill, a.ig, a.tokens, a.repos.library, a.store, backfill.NewHTTPDownloader(nil))
	a.indexer = library.NewIndexer(a.repos.library, a.store)

	return a, nil
}

// worker builds the asynq handler set.
func (a *app) worker() *queue.Queue {
	return queue.NewQueue(a.queue, a.repos.queue, a.repos.library, a.tokens, a.ig, a.store, a.pipeline)
}

func (a *app) Close() {
	if err := a.tasks.Close(); err != nil {
		log.Error().Err(err).Msg("closing task client")
	}
	if err := a.redis.Close(); err != nil {
		log.Error().Err(err).Msg("closing redis")
	}
	if err := a.db.Close(); err != nil {
		log.Error().Err(err).Msg("closing database")
	}
}

func newObjectStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	switch cfg.StorageBackend {
	case config.StorageR2:
		return storage.NewR2Store(ctx, cfg.R2)
	case config.StorageLocal:
		return storage.NewLocalStore(cfg.MediaDir), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// redisOptions accepts either a redis:// URL or a bare host:port.
func redisOptions(uri string) (*redis.Options, error) {
	if strings.Contains(uri, "://") {
		return redis.ParseURL(uri)
	}
	return &redis.Options{Addr: uri}, nil
}

func asynqOptions(opt *redis.Options) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Network:   opt.Network,
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}
}
