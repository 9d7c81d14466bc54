package health

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State 定义了存储健康状态的枚举类型
type State int

const (
	StateHealthy State = iota
	StateDegraded
)

func (s State) String() string {
	if s == StateHealthy {
		return "healthy"
	}
	return "degraded"
}

// Status 是一次健康检查后的快照
type Status struct {
	State     State     `json:"-"`
	StateName string    `json:"state"`
	LastCheck time.Time `json:"lastCheck"`
	LastError string    `json:"lastError,omitempty"`
	Restarts  int       `json:"restarts"`
}

// statusManager 负责线程安全地管理和提供存储的健康状态。
type statusManager struct {
	mu             sync.RWMutex
	currentState   State
	lastKnownRunID string
	lastCheck      time.Time
	lastErr        error
	restarts       int
}

func (sm *statusManager) snapshot() Status {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	s := Status{
		State:     sm.currentState,
		StateName: sm.currentState.String(),
		LastCheck: sm.lastCheck,
		Restarts:  sm.restarts,
	}
	if sm.lastErr != nil {
		s.LastError = sm.lastErr.Error()
	}
	return s
}

// assess 根据一次检查结果更新状态。
// runID 为空表示后端不提供实例标识；非空且发生变化时说明Redis重启过。
func (sm *statusManager) assess(now time.Time, pingErr error, runID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.lastCheck = now
	sm.lastErr = pingErr

	switch sm.currentState {
	case StateHealthy:
		if pingErr != nil {
			sm.currentState = StateDegraded
			log.Warn().Err(pingErr).Msg("健康检查: 存储连接丢失，状态 -> [降级]")
		}
	case StateDegraded:
		if pingErr == nil {
			sm.currentState = StateHealthy
			log.Info().Msg("健康检查: 存储连接已恢复，状态 -> [健康]")
		}
	}

	if pingErr != nil || runID == "" {
		return
	}
	if sm.lastKnownRunID != "" && sm.lastKnownRunID != runID {
		sm.restarts++
		log.Error().
			Str("old_run_id", sm.lastKnownRunID).
			Str("new_run_id", runID).
			Msg("健康检查: 检测到Redis重启，未持久化的统计数据可能已丢失")
	}
	sm.lastKnownRunID = runID
}
