package event

// User 是消息发送者或新成员的最小描述
type User struct {
	ID        int64
	FirstName string
	Username  string
}

// Message 是传输层适配后的入站消息事件。
// 内容字段只记录“是否存在”，统计引擎不关心具体的媒体内容。
type Message struct {
	ChatID int64
	From   *User

	// Date 是发送时间，EditDate 是编辑时间（未编辑时为0），均为Unix秒
	Date     int64
	EditDate int64

	Text        string
	HasLocation bool
	HasVideo    bool
	HasVoice    bool
	HasPhoto    bool
	HasDocument bool
	HasSticker  bool

	// --- 状态类事件 ---
	NewChatMember     *User
	LeftChatMember    *User
	MigrateFromChatID int64
	HasPinnedMessage  bool
}

// Timestamp 返回用于统计和超时判断的事件时间：编辑过的消息取编辑时间。
func (m Message) Timestamp() int64 {
	if m.EditDate != 0 {
		return m.EditDate
	}
	return m.Date
}

// IsEdited 报告消息是否带有编辑标记
func (m Message) IsEdited() bool {
	return m.EditDate != 0
}

// HasText 报告消息是否带有文本字段
func (m Message) HasText() bool {
	return m.Text != ""
}

// IsStatusUpdate 报告消息是否是群迁移、置顶或成员离开的通知。
// 这类事件不计数，也不回复。
func (m Message) IsStatusUpdate() bool {
	return m.MigrateFromChatID != 0 || m.HasPinnedMessage || m.LeftChatMember != nil
}

// SenderName 返回发送者的显示名称
func (m Message) SenderName() string {
	if m.From == nil {
		return ""
	}
	return m.From.FirstName
}
