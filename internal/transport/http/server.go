package http

import (
	"context"
	"errors"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"animalfaces-api/internal/bootstrap"
	"animalfaces-api/internal/transport/http/handler"
	"animalfaces-api/internal/transport/http/middleware"
)

var errConnectionClosed = errors.New("connection closed")

func NewRouter(app *bootstrap.App) (*gin.Engine, error) {
	cfg := app.Config
	gin.SetMode(cfg.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(), middleware.Recovery(), middleware.Metrics())

	rootHandler := handler.NewRootHandler(cfg.Static.Index, cfg.App.Name)
	router.GET("/", rootHandler.Index)
	if info, err := os.Stat(cfg.Static.Dir); err == nil && info.IsDir() {
		router.Static("/static", cfg.Static.Dir)
	}

	modelInfo := gin.H{
		"version": cfg.Model.Version,
		"labels":  len(app.Engine.Labels()),
	}
	healthHandler := handler.NewHealthHandler(cfg.App.Name, cfg.App.Env, app.StartedAt, modelInfo, healthChecks(app))
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	predictHandler := handler.NewPredictHandler(
		app.Predictions,
		cfg.Upload.FormField,
		cfg.Upload.MaxBytes,
		cfg.Upload.LegacyErrorStatus,
	)
	predictChain := []gin.HandlerFunc{}
	if cfg.RateLimit.Enabled {
		limit, err := middleware.RateLimit(cfg.RateLimit.Rate)
		if err != nil {
			return nil, err
		}
		predictChain = append(predictChain, limit)
	}
	predictChain = append(predictChain, predictHandler.Predict)
	router.POST("/predict", predictChain...)

	v1 := router.Group("/api/v1")
	modelHandler := handler.NewModelHandler(app.Engine, cfg.Model.Version)
	v1.GET("/model", modelHandler.Info)

	if app.History != nil {
		historyHandler := handler.NewHistoryHandler(app.History)
		historyGroup := v1.Group("/predictions")
		if cfg.Auth.JWTSecret != "" {
			historyGroup.Use(middleware.AuthJWT(cfg.Auth.JWTSecret))
		}
		historyGroup.GET("", historyHandler.List)
		historyGroup.GET("/stats", historyHandler.Stats)
		historyGroup.GET("/:id", historyHandler.Get)
	}

	return router, nil
}

func healthChecks(app *bootstrap.App) map[string]handler.Check {
	checks := make(map[string]handler.Check)
	if app.MySQL != nil {
		checks["mysql"] = func(ctx context.Context) error {
			sqlDB, err := app.MySQL.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if app.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		}
	}
	if app.MQConn != nil {
		checks["rabbitmq"] = func(context.Context) error {
			if app.MQConn.IsClosed() {
				return errConnectionClosed
			}
			return nil
		}
	}
	return checks
}
