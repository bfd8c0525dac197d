package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
	"github.com/riskibarqy/fantasy-livefeed/internal/config"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/kvstore"
	"github.com/riskibarqy/fantasy-livefeed/internal/infrastructure/kvstore/memory"
	pgkv "github.com/riskibarqy/fantasy-livefeed/internal/infrastructure/kvstore/postgres"
	rediskv "github.com/riskibarqy/fantasy-livefeed/internal/infrastructure/kvstore/redis"
	"github.com/riskibarqy/fantasy-livefeed/internal/platform/logging"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
)

const storagePingTimeout = 5 * time.Second

// storage holds the durable KV backend and the connections behind it.
type storage struct {
	kv    kvstore.Repository
	db    *sqlx.DB
	redis goredis.UniversalClient

	closeOnce sync.Once
	closeErr  error
}

func openStorage(ctx context.Context, cfg config.Config, logger *logging.Logger) (*storage, error) {
	st := &storage{}

	if cfg.KVBackend == config.KVBackendRedis || cfg.FeedRedisStreamEnabled {
		client, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		st.redis = client
	}

	switch cfg.KVBackend {
	case config.KVBackendPostgres:
		db, err := openPostgres(ctx, cfg)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		st.db = db
		st.kv = pgkv.NewStore(db)
	case config.KVBackendRedis:
		st.kv = rediskv.NewStore(st.redis, cfg.RedisKeyPrefix)
	default:
		st.kv = memory.NewStore()
	}

	logger.InfoContext(ctx, "storage ready",
		"kv_backend", cfg.KVBackend,
		"redis", st.redis != nil,
	)
	return st, nil
}

func openPostgres(ctx context.Context, cfg config.Config) (*sqlx.DB, error) {
	db, err := otelsqlx.Open("postgres", normalizeDBURL(cfg.DBURL, cfg.DBDisablePreparedBinary),
		otelsql.WithDBSystem("postgresql"),
		otelsql.WithDBName(dbNameFromURL(cfg.DBURL)),
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, storagePingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func openRedis(ctx context.Context, rawURL string) (goredis.UniversalClient, error) {
	opts, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, storagePingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *storage) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.db != nil {
			if err := s.db.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close postgres: %w", err))
			}
		}
		if s.redis != nil {
			if err := s.redis.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close redis: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
