package stats

import "github.com/SlpAus/chat-stats-bot/internal/event"

// CounterRecord 定义了每个 (聊天, 发送者) 的累计计数。
// Count 始终等于同一对 (ChatID, SenderID) 在日志表中的行数。
type CounterRecord struct {
	ChatID   int64 `gorm:"primaryKey;autoIncrement:false"`
	SenderID int64 `gorm:"primaryKey;autoIncrement:false"`

	// Username 是最近一次看到的显示名称
	Username string
	Count    int64
}

// TableName 固定表名为 counts
func (CounterRecord) TableName() string {
	return "counts"
}

// LogEntry 定义了一条只追加、不可变的消息日志
type LogEntry struct {
	// ID 是 UUIDv7，按写入时间有序
	ID string `gorm:"primaryKey;type:varchar(36)" json:"id"`

	ChatID   int64  `gorm:"index:idx_log_chat_sender_date,priority:1;not null" json:"chatId"`
	SenderID int64  `gorm:"index:idx_log_chat_sender_date,priority:2;not null" json:"senderId"`
	Username string `json:"username"`

	// Date 是事件时间（Unix秒），编辑过的消息为编辑时间
	Date int64             `gorm:"index:idx_log_chat_sender_date,priority:3;not null" json:"date"`
	Type event.ContentType `gorm:"type:varchar(16)" json:"type"`
}

// TableName 固定表名为 log
func (LogEntry) TableName() string {
	return "log"
}

// TypeCount 是按内容类型分组后的计数
type TypeCount struct {
	Type  event.ContentType `gorm:"column:type"`
	Count int64             `gorm:"column:total"`
}

// LeaderboardEntry 是排行榜上的一行
type LeaderboardEntry struct {
	SenderID int64  `gorm:"column:sender_id"`
	Username string `gorm:"column:username"`
	Count    int64  `gorm:"column:count"`
}
