package lifecycle

import (
	"context"
	"time"
)

// Handle 是 Manager 分发给单个后台服务的句柄。
// 服务通过它监听停机信号，并在退出前调用 Close 通知 Manager。
type Handle struct {
	name    string
	manager string
	ctx     context.Context

	// Close 可以重复调用，只有第一次生效。通常在服务Goroutine入口处 defer。
	Close func()
}

// Name 返回注册时使用的服务名
func (h *Handle) Name() string {
	return h.name
}

// Manager 返回所属管理器的名字，例如 "graceful" 或 "forceful"
func (h *Handle) Manager() string {
	return h.manager
}

func (h *Handle) Ctx() context.Context {
	return h.ctx
}

// Done 在管理器广播停机后关闭
func (h *Handle) Done() <-chan struct{} {
	return h.ctx.Done()
}

func (h *Handle) Err() error {
	return h.ctx.Err()
}

// Sleep 休眠 duration；停机信号会让它提前返回 ctx 的错误。
// 后台的定时循环都应使用它代替 time.Sleep。
func (h *Handle) Sleep(duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-h.Done():
		return h.Err()
	case <-timer.C:
		return nil
	}
}
