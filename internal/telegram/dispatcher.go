package telegram

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/SlpAus/chat-stats-bot/internal/command"
	"github.com/SlpAus/chat-stats-bot/internal/event"
	"github.com/SlpAus/chat-stats-bot/pkg/lifecycle"
)

// ErrDispatcherStopped 表示分发器已进入停机流程，不再接收新消息
var ErrDispatcherStopped = errors.New("dispatcher stopped")

const DefaultQueueSize = 1024

// MessageHandler 处理单条消息并给出可选的回复
type MessageHandler interface {
	Handle(ctx context.Context, m event.Message) (*command.Reply, error)
}

// ReplySender 把回复发回聊天
type ReplySender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Dispatcher 是消息的单一消费者。
// 所有消息经过同一个队列，按到达顺序逐条交给处理器，同一聊天的消息不会并发处理。
type Dispatcher struct {
	handler MessageHandler
	sender  ReplySender
	queue   chan event.Message

	// stopping 在停机开始时关闭，唤醒阻塞在满队列上的提交者
	stopping      chan struct{}
	stopOnce      sync.Once
	isShutdown    bool
	shutdownMutex sync.RWMutex
}

// NewDispatcher 创建一个分发器，queueSize <= 0 时使用默认容量
func NewDispatcher(handler MessageHandler, sender ReplySender, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Dispatcher{
		handler:  handler,
		sender:   sender,
		queue:    make(chan event.Message, queueSize),
		stopping: make(chan struct{}),
	}
}

// Enqueue 提交一条消息。队列满时阻塞，直到有空位、ctx 取消或分发器停机。
func (d *Dispatcher) Enqueue(ctx context.Context, m event.Message) error {
	d.shutdownMutex.RLock()
	defer d.shutdownMutex.RUnlock()

	if d.isShutdown {
		return ErrDispatcherStopped
	}
	select {
	case d.queue <- m:
		return nil
	case <-d.stopping:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run 是分发器的主循环，响应两阶段停机：
// 收到优雅停机信号后排空队列，收到强制停机信号时立即中断。
func (d *Dispatcher) Run(gracefulHandle, forcefulHandle *lifecycle.Handle) {
	defer gracefulHandle.Close()
	defer forcefulHandle.Close()
	log.Info().Msg("消息分发器已启动")

	for {
		select {
		case <-gracefulHandle.Done():
			log.Info().Int("pending", len(d.queue)).Msg("消息分发器: 收到优雅停机信号，正在处理剩余消息")
			d.drain(forcefulHandle)
			log.Info().Msg("消息分发器: 主循环退出")
			return
		case m := <-d.queue:
			d.process(forcefulHandle.Ctx(), m)
		}
	}
}

// drain 关闭队列并处理其中剩余的消息
func (d *Dispatcher) drain(forcefulHandle *lifecycle.Handle) {
	d.stopOnce.Do(func() { close(d.stopping) })

	d.shutdownMutex.Lock()
	d.isShutdown = true
	close(d.queue)
	d.shutdownMutex.Unlock()

	for m := range d.queue {
		select {
		case <-forcefulHandle.Done():
			log.Warn().Int("dropped", len(d.queue)+1).Msg("消息分发器: 收到强制停机信号，排空队列被中断")
			return
		default:
		}
		d.process(forcefulHandle.Ctx(), m)
	}
}

// process 处理一条消息。失败只记录日志，后续消息照常处理。
func (d *Dispatcher) process(ctx context.Context, m event.Message) {
	reply, err := d.handler.Handle(ctx, m)
	if err != nil {
		log.Error().Err(err).Int64("chat_id", m.ChatID).Msg("处理消息失败")
		return
	}
	if reply == nil {
		return
	}
	if err := d.sender.Send(ctx, reply.ChatID, reply.Text); err != nil {
		log.Error().Err(err).Int64("chat_id", reply.ChatID).Msg("发送回复失败")
	}
}
