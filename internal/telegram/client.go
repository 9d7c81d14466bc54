package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog/log"

	"github.com/SlpAus/chat-stats-bot/internal/event"
)

// botAPI 是本项目用到的 *bot.Bot 方法子集
type botAPI interface {
	Start(ctx context.Context)
	GetMe(ctx context.Context) (*models.User, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	GetChatAdministrators(ctx context.Context, params *bot.GetChatAdministratorsParams) ([]models.ChatMember, error)
	SetWebhook(ctx context.Context, params *bot.SetWebhookParams) (bool, error)
	DeleteWebhook(ctx context.Context, params *bot.DeleteWebhookParams) (bool, error)
}

// Sink 接收转换后的消息，通常是 Dispatcher
type Sink interface {
	Enqueue(ctx context.Context, m event.Message) error
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"edited_message",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// Client 封装Telegram Bot API：长轮询接收、发送回复、查询管理员和自身用户名
type Client struct {
	api botAPI

	mu   sync.RWMutex
	sink Sink

	selfMu sync.Mutex
	self   string
}

// NewClient 创建Telegram客户端。收到的消息会被转交给之后通过 SetSink 设置的接收方。
func NewClient(token string) (*Client, error) {
	if token == "" {
		return nil, errors.New("telegram token 不能为空")
	}

	c := &Client{}
	// 处理函数同步执行、单个worker消费更新，同一聊天的消息按到达顺序进入队列
	api, err := createBot(token,
		bot.WithNotAsyncHandlers(),
		bot.WithWorkers(1),
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(func(ctx context.Context, _ *bot.Bot, update *models.Update) {
			c.HandleUpdate(ctx, update)
		}),
		bot.WithErrorsHandler(func(err error) {
			log.Error().Err(err).Msg("Telegram客户端错误")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("无法初始化Telegram客户端: %w", err)
	}
	c.api = api
	return c, nil
}

// SetSink 设置消息接收方
func (c *Client) SetSink(sink Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = sink
}

// HandleUpdate 转换一个更新并提交给接收方。长轮询和Webhook共用这一入口。
func (c *Client) HandleUpdate(ctx context.Context, update *models.Update) {
	m, ok := MessageFromUpdate(update)
	if !ok {
		return
	}

	c.mu.RLock()
	sink := c.sink
	c.mu.RUnlock()
	if sink == nil {
		log.Warn().Int64("chat_id", m.ChatID).Msg("消息接收方尚未就绪，丢弃更新")
		return
	}

	if err := sink.Enqueue(ctx, m); err != nil {
		log.Error().Err(err).Int64("chat_id", m.ChatID).Msg("无法提交消息")
	}
}

// Listen 以长轮询方式接收更新，直到 ctx 被取消
func (c *Client) Listen(ctx context.Context) {
	// 已注册的Webhook会让长轮询失败
	if _, err := c.api.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
		log.Warn().Err(err).Msg("无法删除已有的Webhook")
	}

	log.Info().Strs("allowed_updates", defaultAllowedUpdates).Msg("开始Telegram长轮询")
	c.api.Start(ctx)
	log.Info().Msg("Telegram长轮询已停止")
}

// RegisterWebhook 把Webhook地址和校验密钥注册到Telegram
func (c *Client) RegisterWebhook(ctx context.Context, url, secret string) error {
	ok, err := c.api.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:            url,
		SecretToken:    secret,
		AllowedUpdates: defaultAllowedUpdates,
		// Telegram默认最多并发40个Webhook请求，会打乱更新顺序
		MaxConnections: 1,
	})
	if err != nil {
		return fmt.Errorf("无法注册Webhook: %w", err)
	}
	if !ok {
		return errors.New("webhook 注册被Telegram拒绝")
	}
	log.Info().Str("url", url).Msg("Webhook已注册")
	return nil
}

// SelfUsername 返回机器人的用户名。首次成功查询后缓存结果。
func (c *Client) SelfUsername(ctx context.Context) (string, error) {
	c.selfMu.Lock()
	defer c.selfMu.Unlock()

	if c.self != "" {
		return c.self, nil
	}
	me, err := c.api.GetMe(ctx)
	if err != nil {
		return "", fmt.Errorf("无法获取机器人信息: %w", err)
	}
	c.self = me.Username
	return c.self, nil
}

// ListAdmins 返回聊天的创建者和管理员ID
func (c *Client) ListAdmins(ctx context.Context, chatID int64) ([]int64, error) {
	members, err := c.api.GetChatAdministrators(ctx, &bot.GetChatAdministratorsParams{ChatID: chatID})
	if err != nil {
		return nil, fmt.Errorf("无法获取聊天 %d 的管理员: %w", chatID, err)
	}

	ids := make([]int64, 0, len(members))
	for _, member := range members {
		switch {
		case member.Owner != nil:
			ids = append(ids, int64(member.Owner.User.ID))
		case member.Administrator != nil:
			ids = append(ids, int64(member.Administrator.User.ID))
		}
	}
	return ids, nil
}

// Send 向聊天发送纯文本
func (c *Client) Send(ctx context.Context, chatID int64, text string) error {
	if _, err := c.api.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		return fmt.Errorf("无法向聊天 %d 发送消息: %w", chatID, err)
	}
	return nil
}
