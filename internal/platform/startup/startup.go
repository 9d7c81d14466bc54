package startup

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/SlpAus/chat-stats-bot/internal/api"
	"github.com/SlpAus/chat-stats-bot/internal/command"
	"github.com/SlpAus/chat-stats-bot/internal/platform/config"
	"github.com/SlpAus/chat-stats-bot/internal/platform/database"
	"github.com/SlpAus/chat-stats-bot/internal/platform/health"
	"github.com/SlpAus/chat-stats-bot/internal/stats"
	"github.com/SlpAus/chat-stats-bot/internal/telegram"
	"github.com/SlpAus/chat-stats-bot/pkg/lifecycle"
	"github.com/SlpAus/chat-stats-bot/pkg/token"
)

// OpenStore 按配置打开存储后端。SQL后端会幂等地创建 counts 和 log 两张表。
func OpenStore(ctx context.Context, cfg *config.Config) (stats.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQL:
		db, err := database.OpenDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		store, err := stats.NewSQLStore(db)
		if err != nil {
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				_ = sqlDB.Close()
			}
			return nil, err
		}
		return store, nil
	case config.BackendRedis:
		rdb, err := database.OpenRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return stats.NewRedisStore(rdb, cfg.Redis.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("%w: %q", stats.ErrUnknownBackend, cfg.Storage.Backend)
	}
}

// App 持有一次运行所需的全部组件
type App struct {
	Config     *config.Config
	Store      stats.Store
	Client     *telegram.Client
	Dispatcher *telegram.Dispatcher
	Checker    *health.Checker
	Server     *http.Server
}

// InitializeApplication 是应用启动时执行的总入口：
// 打开存储、连接Telegram、组装处理链路，并在需要时准备HTTP服务器。
func InitializeApplication(ctx context.Context, cfg *config.Config) (*App, error) {
	log.Info().Str("backend", cfg.Storage.Backend).Str("mode", cfg.Telegram.Mode).Msg("开始应用初始化")

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("无法打开存储: %w", err)
	}

	app, err := assemble(ctx, cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	log.Info().Msg("应用初始化完成")
	return app, nil
}

func assemble(ctx context.Context, cfg *config.Config, store stats.Store) (*App, error) {
	client, err := telegram.NewClient(cfg.Telegram.Token)
	if err != nil {
		return nil, err
	}

	handler := command.NewHandler(store, client, client, command.WithAnswerTimeout(cfg.Telegram.AnswerTimeout))
	dispatcher := telegram.NewDispatcher(handler, client, cfg.Telegram.QueueSize)
	client.SetSink(dispatcher)

	checker := health.NewChecker(store, cfg.Health.Interval)
	// 启动时同步检查一次，让 /healthz 从第一刻起就有结果
	checker.PerformCheck(ctx)

	app := &App{
		Config:     cfg,
		Store:      store,
		Client:     client,
		Dispatcher: dispatcher,
		Checker:    checker,
	}

	if !cfg.Server.Enabled {
		return app, nil
	}

	deps := api.Deps{Store: store, Health: checker}
	if cfg.Telegram.Mode == config.ModeWebhook {
		secret := cfg.Telegram.WebhookSecret
		if secret == "" {
			if secret, err = token.GenerateSecret(); err != nil {
				return nil, err
			}
		}
		verifier, err := token.NewVerifier(secret)
		if err != nil {
			return nil, err
		}
		if cfg.Telegram.WebhookURL != "" {
			if err := client.RegisterWebhook(ctx, cfg.Telegram.WebhookURL, secret); err != nil {
				return nil, err
			}
		}
		deps.Updates = client
		deps.Verifier = verifier
	}

	app.Server = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: api.NewRouter(cfg.Server, deps),
	}
	return app, nil
}

// Start 在各自的Goroutine中启动后台服务，每个服务都持有生命周期句柄
func (a *App) Start(graceful, forceful *lifecycle.Manager) error {
	dispatcherGraceful, err := graceful.NewServiceHandle("dispatcher")
	if err != nil {
		return err
	}
	dispatcherForceful, err := forceful.NewServiceHandle("dispatcher")
	if err != nil {
		return err
	}
	go a.Dispatcher.Run(dispatcherGraceful, dispatcherForceful)

	healthHandle, err := graceful.NewServiceHandle("health")
	if err != nil {
		return err
	}
	go a.Checker.Run(healthHandle)

	if a.Config.Telegram.Mode == config.ModePolling {
		pollingHandle, err := graceful.NewServiceHandle("polling")
		if err != nil {
			return err
		}
		go func() {
			defer pollingHandle.Close()
			log.Debug().Str("service", pollingHandle.Name()).Str("manager", pollingHandle.Manager()).Msg("服务已启动")
			a.Client.Listen(pollingHandle.Ctx())
		}()
	}

	if a.Server != nil {
		go func() {
			log.Info().Str("address", a.Server.Addr).Msg("HTTP服务器开始监听")
			if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("HTTP服务器异常退出")
			}
		}()
	}
	return nil
}
