package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"docqa-service/internal/bootstrap"
	"docqa-service/internal/transport/http/handler"
	"docqa-service/internal/transport/http/middleware"
)

type RouterConfig struct {
	GinMode   string
	JWTSecret string
}

func NewRouter(app *bootstrap.App) *gin.Engine {
	return buildRouter(
		RouterConfig{GinMode: app.Config.App.GinMode, JWTSecret: app.Config.Auth.JWTSecret},
		handler.NewQAHandler(app.QA),
		handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, healthChecks(app)),
	)
}

func buildRouter(cfg RouterConfig, qaHandler *handler.QAHandler, healthHandler *handler.HealthHandler) *gin.Engine {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/healthz", healthHandler.Check)

	v1 := router.Group("/api/v1")
	if cfg.JWTSecret != "" {
		v1.Use(middleware.AuthJWT(cfg.JWTSecret))
	}
	v1.POST("/qa/run", qaHandler.Run)
	v1.POST("/extract", qaHandler.Extract)
	v1.DELETE("/documents", qaHandler.Purge)

	return router
}

// healthChecks covers only the dependencies this process actually connected to.
func healthChecks(app *bootstrap.App) map[string]handler.HealthCheck {
	checks := make(map[string]handler.HealthCheck)
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
	if app.Chroma != nil {
		checks["chroma"] = func(ctx context.Context) error {
			return app.Chroma.Heartbeat(ctx)
		}
	}
	if app.MQConn != nil {
		checks["rabbitmq"] = func(context.Context) error {
			if app.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}
	}
	return checks
}
