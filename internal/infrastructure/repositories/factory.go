package repositories

import (
	"context"

	"confline/internal/core/domain"
	"confline/internal/core/ports"
	"confline/internal/core/services"
	"confline/internal/infrastructure/directory"
	"confline/internal/infrastructure/repositories/memory"
	redisrepo "confline/internal/infrastructure/repositories/redis"
	"confline/pkg/circuitbreaker"
	"confline/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory builds the directory and history stores, falling back to
// memory implementations when the remote backends are disabled or unreachable.
type RepositoryFactory struct {
	cfg         *config.Config
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) *RepositoryFactory {
	factory := &RepositoryFactory{
		cfg:      cfg,
		useRedis: cfg.History.Redis.Enabled,
		logger:   logger,
	}

	if cfg.History.Redis.Enabled {
		rc := cfg.History.Redis
		client, err := redisrepo.NewHistoryClient(redisrepo.ClientOptions{
			Address:    rc.Address,
			Password:   rc.Password,
			DB:         rc.DB,
			PoolSize:   rc.PoolSize,
			HistoryKey: rc.Key,
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory history",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis history")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory history")
	}
	return factory
}

func (f *RepositoryFactory) CreateHistoryStore() ports.HistoryStore {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisHistoryRepository(f.redisClient, f.cfg.History.Redis.Key, f.cfg.History.Limit)
	}
	return memory.NewMemoryHistoryRepository(f.cfg.History.Limit)
}

// CreateDirectoryStore returns the HTTP directory client in http mode and the
// in-process store otherwise.
func (f *RepositoryFactory) CreateDirectoryStore(
	identity domain.Identity,
	tokens *services.TokenService,
	metrics ports.MetricsRecorder,
) (ports.DirectoryStore, error) {
	if f.cfg.Directory.Mode != "http" {
		f.logger.Info("using memory directory")
		return memory.NewMemoryConferenceRepository(identity.UserID), nil
	}

	dc := f.cfg.Directory
	client, err := directory.NewClient(directory.Options{
		BaseURL:           dc.BaseURL,
		Timeout:           dc.Timeout,
		RequestsPerSecond: dc.RequestsPerSecond,
		Burst:             dc.Burst,
		Breaker: circuitbreaker.Config{
			FailureThreshold:    dc.CircuitBreaker.FailureThreshold,
			SuccessThreshold:    dc.CircuitBreaker.SuccessThreshold,
			Timeout:             dc.CircuitBreaker.OpenTimeout,
			MaxRequestsHalfOpen: 1,
		},
	}, identity, tokens, metrics, f.logger)
	if err != nil {
		return nil, err
	}
	f.logger.Infow("using http directory", "base_url", dc.BaseURL)
	return client, nil
}

func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return f.redisClient.Close()
	}
	return nil
}

// HealthCheck verifies the history key when Redis backs the history store.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.CheckHistoryKey(ctx, f.redisClient, f.cfg.History.Redis.Key)
	}
	return nil
}
