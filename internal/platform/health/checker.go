package health

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SlpAus/chat-stats-bot/pkg/lifecycle"
)

const (
	defaultInterval = 30 * time.Second
	pingTimeout     = 2 * time.Second
)

// Pinger 是可以被健康检查的存储
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunIDReporter 由能报告服务端实例标识的后端实现（Redis的 run_id）
type RunIDReporter interface {
	RunID(ctx context.Context) (string, error)
}

// Checker 定期检查存储的可达性
type Checker struct {
	target   Pinger
	interval time.Duration
	status   statusManager
	now      func() time.Time
}

// NewChecker 创建健康检查器。interval <= 0 时使用默认间隔。
func NewChecker(target Pinger, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Checker{
		target:   target,
		interval: interval,
		now:      time.Now,
	}
}

// Status 返回最近一次检查的结果
func (c *Checker) Status() Status {
	return c.status.snapshot()
}

// PerformCheck 执行一次完整的健康检查
func (c *Checker) PerformCheck(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	err := c.target.Ping(pingCtx)

	var runID string
	if reporter, ok := c.target.(RunIDReporter); ok && err == nil {
		id, idErr := reporter.RunID(pingCtx)
		if idErr != nil {
			log.Debug().Err(idErr).Msg("健康检查: 无法获取run_id")
		}
		runID = id
	}

	c.status.assess(c.now(), err, runID)
}

// Run 启动后台循环，直到生命周期句柄被取消
func (c *Checker) Run(handle *lifecycle.Handle) {
	defer handle.Close()
	log.Info().Str("service", handle.Name()).Dur("interval", c.interval).Msg("存储健康检查器已启动")

	c.PerformCheck(handle.Ctx())
	for {
		if err := handle.Sleep(c.interval); err != nil {
			log.Info().Str("service", handle.Name()).Msg("存储健康检查器已停止")
			return
		}
		c.PerformCheck(handle.Ctx())
	}
}
