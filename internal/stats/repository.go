package stats

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SlpAus/chat-stats-bot/internal/platform/metadata"
)

// schemaVersion 是 counts 和 log 两张表的结构版本
const schemaVersion = 1

// SQLStore 是基于GORM的 Store 实现，支持SQLite和PostgreSQL
type SQLStore struct {
	db    *gorm.DB
	locks chatLocks
}

// NewSQLStore 包装一个已打开的连接，并幂等地迁移 counts 和 log 两张表
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&CounterRecord{}, &LogEntry{}); err != nil {
		return nil, fmt.Errorf("无法迁移统计表: %w", err)
	}
	if err := metadata.EnsureSchemaVersion(db, schemaVersion); err != nil {
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

// Increment 在同一个事务中追加日志并更新计数。
// 计数通过 upsert 原子地加一，不存在“读-改-写”的竞态。
func (s *SQLStore) Increment(ctx context.Context, entry LogEntry) error {
	unlock := s.locks.lock(entry.ChatID)
	defer unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("无法写入日志: %w", err)
		}

		record := CounterRecord{
			ChatID:   entry.ChatID,
			SenderID: entry.SenderID,
			Username: entry.Username,
			Count:    1,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "chat_id"}, {Name: "sender_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"count":    gorm.Expr("counts.count + 1"),
				"username": gorm.Expr("excluded.username"),
			}),
		}).Create(&record).Error
		if err != nil {
			return fmt.Errorf("无法更新计数: %w", err)
		}
		return nil
	})
}

// Total 返回累计计数，记录不存在时返回0
func (s *SQLStore) Total(ctx context.Context, chatID, senderID int64) (int64, error) {
	unlock := s.locks.rlock(chatID)
	defer unlock()

	var counts []int64
	err := s.db.WithContext(ctx).Model(&CounterRecord{}).
		Where("chat_id = ? AND sender_id = ?", chatID, senderID).
		Pluck("count", &counts).Error
	if err != nil {
		return 0, fmt.Errorf("无法读取计数: %w", err)
	}
	if len(counts) == 0 {
		return 0, nil
	}
	return counts[0], nil
}

// TypeBreakdown 从日志表按类型分组统计。数量相同时按类型首次出现的顺序排列。
func (s *SQLStore) TypeBreakdown(ctx context.Context, chatID, senderID int64) ([]TypeCount, error) {
	unlock := s.locks.rlock(chatID)
	defer unlock()

	var rows []TypeCount
	err := s.db.WithContext(ctx).Model(&LogEntry{}).
		Select("type, COUNT(*) AS total").
		Where("chat_id = ? AND sender_id = ?", chatID, senderID).
		Group("type").
		Order("total DESC, MIN(id) ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("无法统计消息类型: %w", err)
	}
	return rows, nil
}

// RecentCounts 统计最近24小时和7天的日志条数（7天窗口包含24小时窗口）
func (s *SQLStore) RecentCounts(ctx context.Context, chatID, senderID int64, now time.Time) (int64, int64, error) {
	unlock := s.locks.rlock(chatID)
	defer unlock()

	daySince, weekSince := windowStarts(now)
	var day, week int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		base := "chat_id = ? AND sender_id = ? AND date >= ?"
		if err := tx.Model(&LogEntry{}).Where(base, chatID, senderID, daySince).Count(&day).Error; err != nil {
			return err
		}
		return tx.Model(&LogEntry{}).Where(base, chatID, senderID, weekSince).Count(&week).Error
	})
	if err != nil {
		return 0, 0, fmt.Errorf("无法统计近期消息: %w", err)
	}
	return day, week, nil
}

// Leaderboard 按累计计数降序返回聊天内的所有发送者
func (s *SQLStore) Leaderboard(ctx context.Context, chatID int64) ([]LeaderboardEntry, error) {
	unlock := s.locks.rlock(chatID)
	defer unlock()

	var entries []LeaderboardEntry
	err := s.db.WithContext(ctx).Model(&CounterRecord{}).
		Select("sender_id, username, count").
		Where("chat_id = ?", chatID).
		Order("count DESC, sender_id ASC").
		Scan(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("无法读取排行榜: %w", err)
	}
	return entries, nil
}

// Reset 在一个事务中删除聊天的全部计数和日志，其他聊天不受影响
func (s *SQLStore) Reset(ctx context.Context, chatID int64) error {
	unlock := s.locks.lock(chatID)
	defer unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&CounterRecord{}).Error; err != nil {
			return fmt.Errorf("无法删除计数: %w", err)
		}
		if err := tx.Where("chat_id = ?", chatID).Delete(&LogEntry{}).Error; err != nil {
			return fmt.Errorf("无法删除日志: %w", err)
		}
		return nil
	})
}

// Log 按写入顺序返回聊天的全部日志
func (s *SQLStore) Log(ctx context.Context, chatID int64) ([]LogEntry, error) {
	unlock := s.locks.rlock(chatID)
	defer unlock()

	var entries []LogEntry
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("id asc").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("无法读取日志: %w", err)
	}
	return entries, nil
}

// Ping 检查底层数据库连接
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭底层数据库连接
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
