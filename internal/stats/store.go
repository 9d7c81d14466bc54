package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SlpAus/chat-stats-bot/internal/event"
)

const (
	dayWindow  = 24 * time.Hour
	weekWindow = 7 * dayWindow
)

// ErrUnknownBackend 表示配置了不支持的存储后端
var ErrUnknownBackend = errors.New("unknown storage backend")

// Store 是统计数据的持久化接口。所有操作都以 chatID 为分区。
type Store interface {
	// Increment 追加一条日志，并把对应计数加一、覆盖显示名称
	Increment(ctx context.Context, entry LogEntry) error
	// Total 返回累计计数，不存在时为0
	Total(ctx context.Context, chatID, senderID int64) (int64, error)
	// TypeBreakdown 按内容类型分组，按数量降序
	TypeBreakdown(ctx context.Context, chatID, senderID int64) ([]TypeCount, error)
	// RecentCounts 返回最近24小时和最近7天的日志条数
	RecentCounts(ctx context.Context, chatID, senderID int64, now time.Time) (day, week int64, err error)
	// Leaderboard 返回聊天内所有发送者，按累计计数降序
	Leaderboard(ctx context.Context, chatID int64) ([]LeaderboardEntry, error)
	// Reset 原子地删除一个聊天的全部计数和日志
	Reset(ctx context.Context, chatID int64) error

	Ping(ctx context.Context) error
	Close() error
}

// LogReader 由两个后端实现，按写入顺序导出一个聊天的原始日志。
// 它不属于 Store：机器人本身从不读取原始日志，只有离线的 export 命令使用。
type LogReader interface {
	Log(ctx context.Context, chatID int64) ([]LogEntry, error)
}

var (
	_ LogReader = (*SQLStore)(nil)
	_ LogReader = (*RedisStore)(nil)
)

// NewLogEntry 为一次可计数事件构造日志条目，并分配一个UUIDv7。
func NewLogEntry(chatID, senderID int64, username string, date int64, typ event.ContentType) (LogEntry, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return LogEntry{}, fmt.Errorf("无法生成日志ID: %w", err)
	}
	return LogEntry{
		ID:       id.String(),
		ChatID:   chatID,
		SenderID: senderID,
		Username: username,
		Date:     date,
		Type:     typ,
	}, nil
}

// windowStarts 返回两个统计窗口的起始时间（含）
func windowStarts(now time.Time) (daySince, weekSince int64) {
	return now.Add(-dayWindow).Unix(), now.Add(-weekWindow).Unix()
}

// --- 并发控制 ---

const lockStripes = 256

// chatLocks 是按 chatID 分片的读写锁。
// 写操作（Increment、Reset）持有写锁，读操作持有读锁，
// 因此同一聊天的重置不会与进行中的计数交错。不同聊天互不影响（除非落在同一分片）。
type chatLocks struct {
	stripes [lockStripes]sync.RWMutex
}

func (l *chatLocks) forChat(chatID int64) *sync.RWMutex {
	return &l.stripes[uint64(chatID)%lockStripes]
}

// lock 获取写锁并返回解锁函数
func (l *chatLocks) lock(chatID int64) func() {
	m := l.forChat(chatID)
	m.Lock()
	return m.Unlock
}

// rlock 获取读锁并返回解锁函数
func (l *chatLocks) rlock(chatID int64) func() {
	m := l.forChat(chatID)
	m.RLock()
	return m.RUnlock
}
