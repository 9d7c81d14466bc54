package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SlpAus/chat-stats-bot/internal/event"
	"github.com/SlpAus/chat-stats-bot/internal/stats"
)

// DefaultAnswerTimeout 是命令的最长应答时间，超过后命令被静默丢弃
const DefaultAnswerTimeout = 10 * time.Second

// AdminLister 查询聊天的管理员列表，只用于 /reset
type AdminLister interface {
	ListAdmins(ctx context.Context, chatID int64) ([]int64, error)
}

// SelfIdentifier 返回当前运行的机器人用户名，用于匹配 /cmd@botname
type SelfIdentifier interface {
	SelfUsername(ctx context.Context) (string, error)
}

// Reply 是需要发回聊天的纯文本回复
type Reply struct {
	ChatID int64
	Text   string
}

// Command 是支持的用户命令
type Command string

const (
	CmdMyStats Command = "mystats"
	CmdTop     Command = "top"
	CmdReset   Command = "reset"
)

var knownCommands = map[Command]struct{}{
	CmdMyStats: {},
	CmdTop:     {},
	CmdReset:   {},
}

// Handler 按顺序处理单条消息：问候新成员、忽略状态通知、计数或应答命令。
// Handler 本身不保存任何事件状态，可以被同一个分发器反复调用。
type Handler struct {
	store         stats.Store
	admins        AdminLister
	self          SelfIdentifier
	answerTimeout time.Duration
	now           func() time.Time
}

// Option 配置 Handler
type Option func(*Handler)

// WithAnswerTimeout 覆盖默认的命令应答超时
func WithAnswerTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.answerTimeout = d
		}
	}
}

// WithClock 替换当前时间的来源，测试中使用
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// NewHandler 创建一个新的命令处理器
func NewHandler(store stats.Store, admins AdminLister, self SelfIdentifier, opts ...Option) *Handler {
	h := &Handler{
		store:         store,
		admins:        admins,
		self:          self,
		answerTimeout: DefaultAnswerTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle 处理一条消息。返回 nil 回复表示不需要发送任何内容。
// 存储错误会原样返回，由调用方记录并继续处理后续消息。
func (h *Handler) Handle(ctx context.Context, m event.Message) (*Reply, error) {
	if m.NewChatMember != nil {
		return &Reply{ChatID: m.ChatID, Text: greeting(m.NewChatMember.FirstName)}, nil
	}

	if m.IsStatusUpdate() {
		return nil, nil
	}

	if m.From == nil {
		log.Debug().Int64("chat_id", m.ChatID).Msg("忽略没有发送者的消息")
		return nil, nil
	}

	if !m.HasText() {
		return nil, h.count(ctx, m)
	}

	cmd, ok, err := h.parseCommand(ctx, m.Text)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, h.count(ctx, m)
	}

	if h.isStale(m) {
		log.Debug().
			Int64("chat_id", m.ChatID).
			Str("command", string(cmd)).
			Int64("date", m.Timestamp()).
			Msg("命令已超时，丢弃")
		return nil, nil
	}

	var text string
	switch cmd {
	case CmdMyStats:
		text, err = h.myStats(ctx, m)
	case CmdTop:
		text, err = h.top(ctx, m)
	case CmdReset:
		text, err = h.reset(ctx, m)
	}
	if err != nil {
		return nil, fmt.Errorf("处理命令 /%s 失败: %w", cmd, err)
	}
	return &Reply{ChatID: m.ChatID, Text: text}, nil
}

// count 分类并记录一条可计数消息。无法分类的消息记录诊断日志后仍然计数。
func (h *Handler) count(ctx context.Context, m event.Message) error {
	typ, ok := event.Classify(m)
	if !ok {
		log.Warn().
			Int64("chat_id", m.ChatID).
			Int64("sender_id", m.From.ID).
			Interface("message", m).
			Msg("无法识别的消息类型")
	}

	entry, err := stats.NewLogEntry(m.ChatID, m.From.ID, m.SenderName(), m.Timestamp(), typ)
	if err != nil {
		return err
	}
	if err := h.store.Increment(ctx, entry); err != nil {
		return fmt.Errorf("无法记录消息: %w", err)
	}
	return nil
}

// parseCommand 识别 "/cmd" 和 "/cmd@botname"。
// 只有文本带有 @ 后缀时才查询机器人自身的用户名。
func (h *Handler) parseCommand(ctx context.Context, text string) (Command, bool, error) {
	if !strings.HasPrefix(text, "/") {
		return "", false, nil
	}
	name, suffix, hasSuffix := strings.Cut(text[1:], "@")
	cmd := Command(name)
	if _, known := knownCommands[cmd]; !known {
		return "", false, nil
	}
	if !hasSuffix {
		return cmd, true, nil
	}

	self, err := h.self.SelfUsername(ctx)
	if err != nil {
		return "", false, fmt.Errorf("无法获取机器人用户名: %w", err)
	}
	if suffix == "" || !strings.EqualFold(suffix, self) {
		return "", false, nil
	}
	return cmd, true, nil
}

func (h *Handler) isStale(m event.Message) bool {
	return h.now().Sub(time.Unix(m.Timestamp(), 0)) > h.answerTimeout
}

func (h *Handler) myStats(ctx context.Context, m event.Message) (string, error) {
	personal, err := stats.GetPersonalStats(ctx, h.store, m.ChatID, m.From.ID, h.now())
	if err != nil {
		return "", err
	}
	return renderMyStats(m.SenderName(), personal), nil
}

func (h *Handler) top(ctx context.Context, m event.Message) (string, error) {
	ranked, err := stats.GetRankedLeaderboard(ctx, h.store, m.ChatID)
	if err != nil {
		return "", err
	}
	return RenderLeaderboard(ranked), nil
}

// reset 只允许聊天管理员清空统计。非管理员得到拒绝消息，数据不变。
func (h *Handler) reset(ctx context.Context, m event.Message) (string, error) {
	admins, err := h.admins.ListAdmins(ctx, m.ChatID)
	if err != nil {
		return "", fmt.Errorf("无法查询管理员: %w", err)
	}

	isAdmin := false
	for _, id := range admins {
		if id == m.From.ID {
			isAdmin = true
			break
		}
	}
	if !isAdmin {
		log.Info().Int64("chat_id", m.ChatID).Int64("sender_id", m.From.ID).Msg("非管理员尝试重置统计")
		return renderNotAdmin(m.SenderName()), nil
	}

	if err := h.store.Reset(ctx, m.ChatID); err != nil {
		return "", err
	}
	log.Info().Int64("chat_id", m.ChatID).Int64("sender_id", m.From.ID).Msg("聊天统计已重置")
	return renderResetDone(m.SenderName()), nil
}
