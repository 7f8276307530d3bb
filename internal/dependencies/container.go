package dependencies

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"pulsekeep/internal/config"
	"pulsekeep/internal/metrics"
	"pulsekeep/internal/services"
	"pulsekeep/internal/storage"
	"pulsekeep/internal/transports"
)

// Container wires the stores, services and transports from configuration.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Storage
	CheckStore        storage.CheckStore
	PingStore         storage.PingStore
	FlipStore         storage.FlipStore
	ChannelStore      storage.ChannelStore
	NotificationStore storage.NotificationStore
	BucketStore       storage.BucketStore
	Queue             storage.Queue

	// Services
	CheckService    *services.CheckService
	ChannelService  *services.ChannelService
	PingService     *services.PingService
	SweepService    *services.SweepService
	DispatchService *services.DispatchService
	RateLimits      *services.RateLimitService

	Transports *transports.Registry
	Metrics    *metrics.Metrics

	DB *pgxpool.Pool
}

func NewContainer(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Container, error) {
	container := &Container{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.NewDefault(),
	}

	if err := container.initDatabase(ctx); err != nil {
		return nil, err
	}

	if err := container.initRedis(); err != nil {
		return nil, err
	}

	container.initStorage()
	container.initServices()

	log.Info("Dependency container initialized successfully")
	return container, nil
}

func (c *Container) initDatabase(ctx context.Context) error {
	db, err := storage.NewPostgres(ctx, &c.Config.Database, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := storage.EnsureSchema(ctx, db); err != nil {
		return err
	}

	c.DB = db
	return nil
}

func (c *Container) initRedis() error {
	queue, err := storage.NewRedisQueue(&c.Config.Redis, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.Queue = queue
	return nil
}

func (c *Container) initStorage() {
	c.CheckStore = storage.NewCheckStore(c.DB)
	c.PingStore = storage.NewPingStore(c.DB)
	c.FlipStore = storage.NewFlipStore(c.DB)
	c.ChannelStore = storage.NewChannelStore(c.DB)
	c.NotificationStore = storage.NewNotificationStore(c.DB)
	c.BucketStore = storage.NewBucketStore(c.DB)
}

func (c *Container) initServices() {
	logger := c.Logger

	c.RateLimits = services.NewRateLimitService(c.BucketStore, c.Metrics)

	c.Transports = transports.NewRegistry(transports.Deps{
		Config:   c.Config,
		Channels: c.ChannelStore,
		Limiter:  c.RateLimits,
		Logger:   logger.With("component", "transports"),
	})

	c.CheckService = services.NewCheckService(
		c.CheckStore,
		c.PingStore,
		c.FlipStore,
		c.ChannelStore,
		logger.With("service", "check"),
	)

	c.ChannelService = services.NewChannelService(
		c.ChannelStore,
		c.NotificationStore,
		c.Transports,
		logger.With("service", "channel"),
	)

	c.PingService = services.NewPingService(
		c.CheckStore,
		c.PingStore,
		c.FlipStore,
		c.Queue,
		c.Metrics,
		logger.With("service", "ping"),
	)

	c.SweepService = services.NewSweepService(
		c.CheckStore,
		c.FlipStore,
		c.Queue,
		c.Metrics,
		logger.With("service", "sweep"),
		c.Config.Sweeper.BatchSize,
	)

	c.DispatchService = services.NewDispatchService(
		c.CheckStore,
		c.ChannelStore,
		c.FlipStore,
		c.NotificationStore,
		c.Queue,
		c.Transports,
		c.Metrics,
		logger.With("service", "dispatch"),
	)
}

// Close releases the container's connections.
func (c *Container) Close() {
	if c.Queue != nil {
		c.Queue.Close()
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
