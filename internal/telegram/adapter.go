package telegram

import (
	"github.com/go-telegram/bot/models"

	"github.com/SlpAus/chat-stats-bot/internal/event"
)

// primaryMessage 返回更新中携带的消息。新消息和编辑过的消息都需要统计。
func primaryMessage(update *models.Update) *models.Message {
	switch {
	case update == nil:
		return nil
	case update.Message != nil:
		return update.Message
	case update.EditedMessage != nil:
		return update.EditedMessage
	default:
		return nil
	}
}

// MessageFromUpdate 把Telegram更新转换为统计引擎使用的消息。
// 不含消息的更新（回调、成员变更等）返回 false。
func MessageFromUpdate(update *models.Update) (event.Message, bool) {
	msg := primaryMessage(update)
	if msg == nil {
		return event.Message{}, false
	}
	return toMessage(msg), true
}

func toMessage(msg *models.Message) event.Message {
	m := event.Message{
		ChatID:   msg.Chat.ID,
		From:     toUser(msg.From),
		Date:     int64(msg.Date),
		EditDate: int64(msg.EditDate),

		Text:        msg.Text,
		HasLocation: msg.Location != nil,
		HasVideo:    msg.Video != nil,
		HasVoice:    msg.Voice != nil,
		HasPhoto:    len(msg.Photo) > 0,
		HasDocument: msg.Document != nil,
		HasSticker:  msg.Sticker != nil,

		LeftChatMember:    toUser(msg.LeftChatMember),
		MigrateFromChatID: int64(msg.MigrateFromChatID),
		HasPinnedMessage:  msg.PinnedMessage != nil,
	}
	// 一次加入多人时只问候第一位
	if len(msg.NewChatMembers) > 0 {
		m.NewChatMember = toUser(&msg.NewChatMembers[0])
	}
	return m
}

func toUser(user *models.User) *event.User {
	if user == nil {
		return nil
	}
	return &event.User{
		ID:        int64(user.ID),
		FirstName: user.FirstName,
		Username:  user.Username,
	}
}
