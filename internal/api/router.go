package api

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog/log"

	"github.com/SlpAus/chat-stats-bot/internal/platform/config"
	"github.com/SlpAus/chat-stats-bot/internal/platform/health"
	"github.com/SlpAus/chat-stats-bot/internal/stats"
	"github.com/SlpAus/chat-stats-bot/pkg/token"
)

// StatusProvider 提供存储的健康状态
type StatusProvider interface {
	Status() health.Status
}

// UpdateHandler 接收Webhook推送的Telegram更新
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update *models.Update)
}

// Deps 是HTTP层依赖的服务。Updates 和 Verifier 只在webhook模式下设置。
type Deps struct {
	Store    stats.Store
	Health   StatusProvider
	Updates  UpdateHandler
	Verifier *token.Verifier
	Now      func() time.Time
}

// NewRouter 创建gin引擎并注册所有路由
func NewRouter(cfg config.ServerConfig, deps Deps) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	router := gin.New()
	if err := router.SetTrustedProxies(nil); err != nil {
		log.Err(err).Msg("无法设置受信任的代理")
	}

	router.Use(
		gin.Recovery(),
		gin.LoggerWithWriter(log.Logger, "/healthz"),
	)
	if len(cfg.Cors.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.Cors.AllowedOrigins,
			AllowMethods:  []string{"GET", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type"},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}

	if deps.Now == nil {
		deps.Now = time.Now
	}
	SetupRoutes(router, deps)
	return router
}

// SetupRoutes 注册项目的所有API路由
func SetupRoutes(router *gin.Engine, deps Deps) {
	h := &handler{deps: deps}

	router.GET("/healthz", h.getHealth)

	api := router.Group("/api")
	{
		chatRoutes := api.Group("/chats/:chatID")
		{
			chatRoutes.GET("/leaderboard", h.getLeaderboard)
			chatRoutes.GET("/users/:userID/stats", h.getUserStats)
		}
	}

	// Webhook只在配置了更新接收方时开放
	if deps.Updates != nil && deps.Verifier != nil {
		router.POST("/telegram/webhook", h.verifyWebhookSecret, h.receiveUpdate)
	}
}
