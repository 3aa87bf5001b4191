package bootstrap

import (
	"context"
	"fmt"
	"time"

	"voice2note-be/internal/config"
	"voice2note-be/internal/controller"
	"voice2note-be/internal/handler"
	"voice2note-be/internal/pkg/logger"
	"voice2note-be/internal/pkg/serverutils"
	"voice2note-be/internal/repository/memory"
	"voice2note-be/internal/repository/tenantstore"
	"voice2note-be/internal/repository/unitofwork"
	"voice2note-be/internal/service"
	"voice2note-be/internal/websocket"
	"voice2note-be/pkg/archive"
	"voice2note-be/pkg/embedding"
	"voice2note-be/pkg/events"
	"voice2note-be/pkg/llm/factory"
	"voice2note-be/pkg/media"
	pktNats "voice2note-be/pkg/nats"
	"voice2note-be/pkg/rabbitmq"
	"voice2note-be/pkg/ratelimit"
	"voice2note-be/pkg/stt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// noteCacheLocalTTL is short because pipeline workers in other processes can only
// invalidate the shared level.
const noteCacheLocalTTL = 5 * time.Second

type Container struct {
	Config *config.Config
	Logger *logger.ZapLogger

	Pools       *tenantstore.PoolManager
	Store       unitofwork.RepositoryFactory
	Provisioner *tenantstore.Provisioner
	Archive     archive.Store
	Bus         events.Bus
	Redis       *redis.Client
	Hub         *websocket.Hub

	// Pipeline
	Dispatcher service.IDispatcherService

	// HTTP
	Auth            fiber.Handler
	RateLimit       fiber.Handler
	AudioController controller.IAudioController
	NoteController  controller.INoteController
	ChatController  controller.IChatController
	StatusHandler   *handler.StatusHandler

	closers []func() error
}

func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	c := &Container{Config: cfg, Logger: sysLogger}

	c.Pools = tenantstore.NewPoolManager(db, cfg.Database.Connection, cfg.Database.TenantPoolSize, sysLogger)
	c.closers = append(c.closers, func() error { c.Pools.Close(); return nil })
	c.Store = tenantstore.NewStore(c.Pools, cfg.Database.AcquireTimeout)
	c.Provisioner = tenantstore.NewProvisioner(db, sysLogger)

	arch, err := newArchive(db, cfg.Archive)
	if err != nil {
		return nil, err
	}
	c.Archive = arch

	// 2. Infrastructure
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		c.Redis = redis.NewClient(opt)
		c.closers = append(c.closers, c.Redis.Close)
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			sysLogger.Warn("Bootstrap", "redis unreachable, continuing", map[string]interface{}{"error": err.Error()})
		}
	}

	bus, err := newBus(ctx, cfg.Events, logger.NewWatermillAdapter(sysLogger, "EventBus", false))
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Bus = bus
	c.closers = append(c.closers, bus.Close)

	c.Hub = websocket.NewHub(c.Redis, cfg.App.InstanceID, sysLogger)
	noteCache := memory.NewNoteCache(c.Redis, noteCacheLocalTTL, cfg.Redis.NoteCacheTTL, sysLogger)

	// 3. AI providers
	embedder, err := embedding.NewProvider(embedding.Config{
		Provider: cfg.Ai.EmbeddingProvider,
		BaseURL:  cfg.Ai.EmbeddingBaseURL,
		APIKey:   cfg.Ai.EmbeddingAPIKey,
		Model:    cfg.Ai.EmbeddingModel,
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	llmProvider, err := factory.NewLLMProvider(factory.Config{
		Provider: cfg.Ai.LLMProvider,
		BaseURL:  cfg.Ai.LLMBaseURL,
		APIKey:   cfg.Ai.LLMAPIKey,
		Model:    cfg.Ai.LLMModel,
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	sysLogger.Info("Bootstrap", "providers configured", map[string]interface{}{
		"embedding": cfg.Ai.EmbeddingProvider,
		"llm":       cfg.Ai.LLMProvider,
		"model":     cfg.Ai.LLMModel,
		"bus":       cfg.Events.Bus,
		"archive":   cfg.Archive.Driver,
	})

	// 4. Services
	retrievalService := service.NewRetrievalService(c.Store, embedder, cfg.Ai.EmbeddingDimensions, cfg.Ai.CallTimeout)

	deps := service.PipelineDeps{
		Store:     c.Store,
		Archive:   c.Archive,
		Publisher: c.Bus,
		Notifier:  c.Hub,
		Cache:     noteCache,
		Logger:    sysLogger,
	}
	c.Dispatcher = service.NewDispatcherService(c.Archive.Bucket(), service.StageSet{
		Transcoder:    service.NewTranscoderStage(deps, media.NewFFmpeg(cfg.Media.FFmpegPath), cfg.Media.WorkDir),
		Transcription: service.NewTranscriptionStage(deps, stt.NewClient(stt.Config(cfg.Speech))),
		Summarization: service.NewSummarizationStage(deps, llmProvider, cfg.Ai.CallTimeout),
		Vectorization: service.NewVectorizationStage(deps, retrievalService, cfg.Retrieval.ChunkSize),
	}, sysLogger)

	audioService := service.NewAudioService(c.Store, c.Archive, c.Bus, sysLogger)
	noteService := service.NewNoteService(c.Store, c.Archive, c.Bus, noteCache, sysLogger)
	chatService := service.NewChatService(c.Store, retrievalService, llmProvider, service.ChatConfig{
		K:           cfg.Retrieval.K,
		Threshold:   cfg.Retrieval.Threshold,
		CallTimeout: cfg.Ai.CallTimeout,
	}, sysLogger)

	// 5. HTTP
	c.Auth = serverutils.JwtMiddleware(cfg.App.JWTSecret)
	c.RateLimit = serverutils.RateLimitMiddleware(newLimiter(cfg.RateLimit, c.Redis, sysLogger), sysLogger)
	c.AudioController = controller.NewAudioController(audioService)
	c.NoteController = controller.NewNoteController(noteService)
	c.ChatController = controller.NewChatController(chatService)
	c.StatusHandler = handler.NewStatusHandler(c.Hub, sysLogger)

	return c, nil
}

// RunWorker consumes stage events until ctx ends.
func (c *Container) RunWorker(ctx context.Context) error {
	c.Logger.Info("Worker", "consuming stage events", map[string]interface{}{"bus": c.Config.Events.Bus})
	return c.Bus.Run(ctx, c.Dispatcher.Handle)
}

// Close releases infrastructure in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Logger.Warn("Bootstrap", "close failed", map[string]interface{}{"error": err.Error()})
		}
	}
	c.closers = nil
	_ = c.Logger.Sync()
}

func newArchive(db *gorm.DB, cfg config.ArchiveConfig) (archive.Store, error) {
	switch cfg.Driver {
	case "", "fs":
		return archive.NewFileStore(cfg.Root, cfg.Bucket)
	case "db":
		return archive.NewDBStore(db, cfg.Bucket), nil
	default:
		return nil, fmt.Errorf("unsupported archive driver: %s", cfg.Driver)
	}
}

func newBus(ctx context.Context, cfg config.EventsConfig, wmLogger watermill.LoggerAdapter) (events.Bus, error) {
	switch cfg.Bus {
	case "", "memory":
		return events.NewGoChannelBus(wmLogger, events.DefaultRetryConfig())
	case "nats":
		return pktNats.NewBus(ctx, pktNats.Config{
			URL:        cfg.NatsURL,
			Durable:    cfg.Durable,
			MaxDeliver: cfg.MaxDeliver,
		}, wmLogger)
	case "rabbitmq":
		conn, err := rabbitmq.Dial(cfg.RabbitMQURL, cfg.DialTimeout)
		if err != nil {
			return nil, err
		}
		bus, err := rabbitmq.NewBus(conn, cfg.Queue, wmLogger)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		return bus, nil
	default:
		return nil, fmt.Errorf("unsupported event bus: %s", cfg.Bus)
	}
}

func newLimiter(cfg config.RateLimitConfig, rdb *redis.Client, log logger.ILogger) ratelimit.Limiter {
	rl := ratelimit.Config{MaxRequests: cfg.MaxRequests, Window: cfg.Window}
	if cfg.Backend == "redis" {
		if rdb != nil {
			return ratelimit.NewRedisLimiter(rdb, rl, nil)
		}
		log.Warn("Bootstrap", "redis rate limiter requested without REDIS_URL, using memory", nil)
	}
	return ratelimit.NewMemoryLimiter(rl, nil)
}
