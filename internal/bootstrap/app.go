package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"medtrak/internal/annotation"
	appsvc "medtrak/internal/app"
	"medtrak/internal/cache"
	"medtrak/internal/config"
	"medtrak/internal/dialogue"
	"medtrak/internal/feed"
	"medtrak/internal/metrics"
	mysqlClient "medtrak/internal/platform/mysql"
	rabbitmqClient "medtrak/internal/platform/rabbitmq"
	redisClient "medtrak/internal/platform/redis"
	"medtrak/internal/repository"
	"medtrak/internal/storage"
	"medtrak/internal/worker"
)

type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	MySQL    *gorm.DB
	Redis    *redis.Client
	MQConn   *amqp.Connection
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Store    *storage.Store

	Auth     *appsvc.AuthService
	Records  *appsvc.RecordService
	Summary  *appsvc.SummaryService
	Sessions *dialogue.Registry
	Worker   *worker.AnnotationWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logger := NewLogger(cfg.Log, cfg.App.Name)

	app := &App{Config: cfg, Logger: logger, StartedAt: time.Now()}
	if err := app.init(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config
	var err error

	if a.MySQL, err = mysqlClient.Open(ctx, cfg.MySQLDSN(), a.Logger); err != nil {
		return err
	}
	if a.Redis, err = redisClient.Open(ctx, cfg.Redis, a.Logger); err != nil {
		return err
	}
	if a.MQConn, err = rabbitmqClient.Dial(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.AnnotationQueue, cfg.App.Name, a.Logger); err != nil {
		return err
	}

	maxBytes := int64(cfg.Storage.MaxUploadMB) << 20
	if a.Store, err = storage.NewOnDisk(cfg.Storage.Root, cfg.Storage.PublicBaseURL, maxBytes); err != nil {
		return fmt.Errorf("open attachment store failed: %w", err)
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	a.Auth = appsvc.NewAuthService(
		repository.NewUserRepository(a.MySQL),
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	a.Records = appsvc.NewRecordService(
		repository.NewRecordRepository(a.MySQL),
		a.Store,
		rabbitmqClient.NewJobPublisher(a.MQConn, cfg.RabbitMQ.AnnotationQueue),
		cache.NewTimelineCache(
			a.Redis,
			time.Duration(cfg.Redis.TimelineTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.TimelineDirtyTTLSeconds)*time.Second,
		),
		a.followUpFeed(),
		a.Logger.With().Str("component", "records").Logger(),
		a.Metrics,
	)

	annotations := annotation.NewClient(
		cfg.Annotation.BaseURL,
		time.Duration(cfg.Annotation.TimeoutSeconds)*time.Second,
		a.Store,
		a.Logger.With().Str("component", "annotation").Logger(),
		a.Metrics,
	)
	a.Summary = appsvc.NewSummaryService(a.Records, annotations)

	pipeline := appsvc.NewAnnotationPipeline(a.Records, annotations, a.Logger.With().Str("component", "pipeline").Logger(), a.Metrics)
	a.Worker = worker.NewAnnotationWorker(a.MQConn, pipeline, cfg.RabbitMQ.AnnotationQueue, a.Logger.With().Str("component", "worker").Logger())
	if err := a.Worker.Start(ctx); err != nil {
		return fmt.Errorf("start annotation worker failed: %w", err)
	}

	a.Sessions, err = dialogue.NewRegistry(a.Records, dialogue.RegistryConfig{
		Session: dialogue.Config{
			InitialPrompt:  cfg.Dialogue.InitialPrompt,
			ClosingMessage: cfg.Dialogue.ClosingMessage,
		},
		Capacity: cfg.Dialogue.MaxSessions,
		TTL:      time.Duration(cfg.Dialogue.SessionTTLMinutes) * time.Minute,
	}, a.Logger.With().Str("component", "dialogue").Logger(), a.Metrics)
	if err != nil {
		return err
	}
	return nil
}

func (a *App) followUpFeed() feed.Feed {
	if a.Config.Redis.FollowUpFeed == "local" {
		a.Logger.Info().Msg("follow-up feed is local to this instance")
		return feed.NewHub()
	}
	return feed.NewRedisFeed(a.Redis, a.Logger.With().Str("component", "feed").Logger())
}

func (a *App) Close() error {
	var closeErr error
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.Worker != nil {
		a.Worker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
