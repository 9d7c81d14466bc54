package shutdown

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SlpAus/chat-stats-bot/pkg/lifecycle"
)

const (
	defaultHTTPTimeout     = 15 * time.Second
	defaultGracefulTimeout = 30 * time.Second
	defaultForcefulTimeout = 1 * time.Second
)

// Coordinator 负责编排应用程序的优雅停机流程。
// 它接收外部创建的生命周期管理器，并使用它们来协调停机。
type Coordinator struct {
	GracefulManager *lifecycle.Manager
	ForcefulManager *lifecycle.Manager

	HTTPTimeout     time.Duration
	GracefulTimeout time.Duration
	ForcefulTimeout time.Duration
}

// NewCoordinator 创建一个新的停机协调器。
func NewCoordinator(gracefulMgr, forcefulMgr *lifecycle.Manager) *Coordinator {
	return &Coordinator{
		GracefulManager: gracefulMgr,
		ForcefulManager: forcefulMgr,
		HTTPTimeout:     defaultHTTPTimeout,
		GracefulTimeout: defaultGracefulTimeout,
		ForcefulTimeout: defaultForcefulTimeout,
	}
}

// ListenForSignalsAndShutdown 启动信号监听并阻塞，直到停机流程完成。
// server 可以为nil（未启用HTTP服务）；finalize 在所有后台服务退出后执行，用于关闭存储。
func (c *Coordinator) ListenForSignalsAndShutdown(server *http.Server, finalize func() error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// 阻塞直到接收到停机信号
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("收到关闭信号，开始优雅停机")

	c.Shutdown(server, finalize)
}

// Shutdown 执行停机流程：先关闭HTTP服务器，再依次进入优雅阶段和强制阶段，最后执行收尾。
func (c *Coordinator) Shutdown(server *http.Server, finalize func() error) {
	// 关闭HTTP服务器，允许正在进行的请求完成（包括正在提交消息的Webhook请求）
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), c.HTTPTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP服务器关闭错误")
		} else {
			log.Info().Msg("HTTP服务器已关闭")
		}
		shutdownCancel()
	}

	// --- 阶段一: 优雅停机 ---
	log.Info().Dur("timeout", c.GracefulTimeout).Msg("第一阶段停机：等待后台服务完成剩余任务")
	c.GracefulManager.Shutdown()

	remainingServices := c.GracefulManager.WaitWithTimeout(c.GracefulTimeout)
	if len(remainingServices) == 0 {
		log.Info().Msg("所有服务已在第一阶段优雅关闭")
	} else {
		// --- 阶段二: 强制停机 ---
		log.Warn().Strs("remaining", remainingServices).Dur("timeout", c.ForcefulTimeout).Msg("第一阶段超时，发送强制停机信号")
		c.ForcefulManager.Shutdown()
		if left := c.ForcefulManager.WaitWithTimeout(c.ForcefulTimeout); len(left) > 0 {
			log.Error().Strs("remaining", left).Msg("强制停机后仍有服务未退出")
		}
	}

	// --- 最终步骤 ---
	if finalize != nil {
		if err := finalize(); err != nil {
			log.Error().Err(err).Msg("停机收尾失败")
		}
	}
	log.Info().Msg("优雅停机完成")
}
