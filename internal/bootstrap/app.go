package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	appsvc "animalfaces-api/internal/app"
	"animalfaces-api/internal/cache"
	"animalfaces-api/internal/config"
	"animalfaces-api/internal/logger"
	"animalfaces-api/internal/model"
	mysqlClient "animalfaces-api/internal/platform/mysql"
	rabbitmqClient "animalfaces-api/internal/platform/rabbitmq"
	redisClient "animalfaces-api/internal/platform/redis"
	"animalfaces-api/internal/repository"
	"animalfaces-api/internal/vision"
	"animalfaces-api/internal/worker"
)

// App is the immutable handle produced once at startup and shared by all handlers.
type App struct {
	Config      *config.Config
	Engine      *vision.Engine
	Predictions *appsvc.PredictionService
	History     *appsvc.HistoryService

	MySQL            *gorm.DB
	Redis            *redis.Client
	MQConn           *amqp.Connection
	PredictionWorker *worker.PredictionPersistWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	if err := logger.Init(cfg.App.Name, cfg.Log); err != nil {
		return nil, fmt.Errorf("init logger failed: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig loads the model and connects the enabled dependencies. Any
// error means the process must not serve traffic.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	engine, err := LoadEngine(cfg)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("model", cfg.Model.ModelPath).
		Strs("labels", engine.Labels()).
		Ints64("input_shape", engine.InputShape()).
		Msg("model loaded")

	a := &App{
		Config:    cfg,
		Engine:    engine,
		StartedAt: time.Now(),
	}
	if err := a.connect(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config
	var (
		resultCache appsvc.ResultCache
		publisher   appsvc.EventPublisher
		repo        *repository.PredictionRepository
	)

	if cfg.MySQL.Enabled {
		db, err := mysqlClient.New(ctx, cfg.MySQLDSN())
		if err != nil {
			return err
		}
		a.MySQL = db
		if err := db.AutoMigrate(&model.Prediction{}); err != nil {
			return fmt.Errorf("auto migrate tables failed: %w", err)
		}
		repo = repository.NewPredictionRepository(db)
		a.History = appsvc.NewHistoryService(repo)
		publisher = appsvc.NewDirectRecorder(repo)
	}

	if cfg.Redis.Enabled {
		client, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		a.Redis = client
		resultCache = cache.NewPredictionCache(client, cfg.Model.Version, a.Engine.Options().Fingerprint(), time.Duration(cfg.Redis.ResultTTLSeconds)*time.Second)
	}

	if cfg.RabbitMQ.Enabled {
		conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		a.MQConn = conn
		publisher = rabbitmqClient.NewPredictionPublisher(conn, cfg.RabbitMQ.PredictionQueue)

		if repo != nil {
			a.PredictionWorker = worker.NewPredictionPersistWorker(conn, repo, cfg.RabbitMQ.PredictionQueue)
			if err := a.PredictionWorker.Start(ctx); err != nil {
				return fmt.Errorf("start prediction worker failed: %w", err)
			}
		} else {
			log.Warn().Str("queue", cfg.RabbitMQ.PredictionQueue).Msg("mysql disabled, prediction events are published without an in-process consumer")
		}
	}

	a.Predictions = appsvc.NewPredictionService(a.Engine, resultCache, publisher, cfg.Model.Version, cfg.RequestTimeout())
	return nil
}

// LoadEngine builds the inference engine described by cfg.Model.
func LoadEngine(cfg *config.Config) (*vision.Engine, error) {
	m := cfg.Model
	engine, err := vision.Load(m.LabelsPath,
		vision.ONNXOptions{
			ModelPath:      m.ModelPath,
			SharedLibPath:  m.ONNXSharedLibPath,
			Sessions:       m.Sessions,
			IntraOpThreads: m.IntraOpThreads,
			ImageSize:      m.ImageSize,
		},
		vision.Options{
			ImageSize:     m.ImageSize,
			Layout:        vision.Layout(m.Layout),
			Normalization: vision.Normalization(m.Normalization),
			ApplySoftmax:  m.ApplySoftmax,
			MaxPixels:     m.MaxPixels,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("load inference engine failed: %w", err)
	}
	return engine, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.PredictionWorker != nil {
		a.PredictionWorker.Close()
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
	if a.Engine != nil {
		if err := a.Engine.Close(); err != nil {
			closeErr = err
		}
	}
	return closeErr
}
