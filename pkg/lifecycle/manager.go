package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrManagerStopped 表示管理器已经广播过停机信号，不再接受新服务
var ErrManagerStopped = errors.New("生命周期管理器已停机")

// Manager 向后台服务分发 Handle，并在停机时等待它们全部退出。
// 一个进程通常持有两个 Manager：优雅阶段和强制阶段各一个。
type Manager struct {
	name string
	wg   sync.WaitGroup

	mu       sync.Mutex
	services map[string]time.Time // 服务名 -> 注册时间
	stopped  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager 创建一个管理器，name 出现在日志和 Handle.Manager() 中
func NewManager(name string) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		name:     name,
		services: make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// NewServiceHandle 注册一个服务。同名服务在退出前不能重复注册。
func (m *Manager) NewServiceHandle(name string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, fmt.Errorf("%w: 无法注册服务 '%s'", ErrManagerStopped, name)
	}
	if _, exists := m.services[name]; exists {
		return nil, fmt.Errorf("生命周期管理器 %s: 服务 '%s' 已被注册", m.name, name)
	}
	m.services[name] = time.Now()
	m.wg.Add(1)
	log.Debug().Str("manager", m.name).Str("service", name).Msg("生命周期管理器: 服务已注册")

	return &Handle{
		name:    name,
		manager: m.name,
		ctx:     m.ctx,
		Close:   func() { m.release(name) },
	}, nil
}

func (m *Manager) release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	registered, exists := m.services[name]
	if !exists {
		return
	}
	delete(m.services, name)
	m.wg.Done()
	log.Debug().Str("manager", m.name).Str("service", name).Dur("uptime", time.Since(registered)).Msg("生命周期管理器: 服务已退出")
}

// Shutdown 广播停机信号，所有句柄的 Done() 都会关闭。可以重复调用。
func (m *Manager) Shutdown() {
	m.mu.Lock()
	already := m.stopped
	m.stopped = true
	m.mu.Unlock()

	if !already {
		log.Info().Str("manager", m.name).Msg("生命周期管理器: 广播停机信号")
	}
	m.cancel()
}

// WaitWithTimeout 等待所有服务退出。超时后返回仍在运行的服务名（已排序），全部退出时返回nil。
func (m *Manager) WaitWithTimeout(timeout time.Duration) []string {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return m.remaining()
	}
}

func (m *Manager) remaining() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.services))
	for name := range m.services {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
