package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/SlpAus/chat-stats-bot/internal/event"
)

// --- Redis 键布局 ---
// 所有键都带有 chatID，重置时可以一次性删除一个聊天的全部数据：
//
//	{prefix}:chat:{chat}:counts               ZSET  member=sender score=累计计数
//	{prefix}:chat:{chat}:names                HASH  field=sender value=最近的显示名称
//	{prefix}:chat:{chat}:log                  LIST  LogEntry 的JSON，只追加
//	{prefix}:chat:{chat}:user:{sender}:types  HASH  field=内容类型 value=计数
//	{prefix}:chat:{chat}:user:{sender}:times  ZSET  member=日志ID score=事件时间
//	{prefix}:chat:{chat}:user:{sender}:first  HASH  field=内容类型 value=该类型第一条日志的ID
const defaultKeyPrefix = "statbot"

// maxResetAttempts 是重置事务因并发写入而冲突时的最大尝试次数
const maxResetAttempts = 10

var runIDPattern = regexp.MustCompile(`run_id:([a-f0-9]+)`)

// RedisStore 是基于Redis的 Store 实现。写操作使用 MULTI/EXEC 事务。
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	locks  chatLocks
}

// NewRedisStore 包装一个已连接的Redis客户端
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) chatKey(chatID int64, suffix string) string {
	return fmt.Sprintf("%s:chat:%d:%s", s.prefix, chatID, suffix)
}

func (s *RedisStore) userKey(chatID, senderID int64, suffix string) string {
	return fmt.Sprintf("%s:chat:%d:user:%d:%s", s.prefix, chatID, senderID, suffix)
}

// Increment 在一个事务中写入日志、计数、名称、类型和时间索引
func (s *RedisStore) Increment(ctx context.Context, entry LogEntry) error {
	unlock := s.locks.lock(entry.ChatID)
	defer unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("无法序列化日志: %w", err)
	}
	sender := strconv.FormatInt(entry.SenderID, 10)

	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, s.chatKey(entry.ChatID, "log"), data)
	pipe.ZIncrBy(ctx, s.chatKey(entry.ChatID, "counts"), 1, sender)
	pipe.HSet(ctx, s.chatKey(entry.ChatID, "names"), sender, entry.Username)
	pipe.HIncrBy(ctx, s.userKey(entry.ChatID, entry.SenderID, "types"), string(entry.Type), 1)
	pipe.HSetNX(ctx, s.userKey(entry.ChatID, entry.SenderID, "first"), string(entry.Type), entry.ID)
	pipe.ZAdd(ctx, s.userKey(entry.ChatID, entry.SenderID, "times"), redis.Z{
		Score:  float64(entry.Date),
		Member: entry.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("执行计数事务失败: %w", err)
	}
	return nil
}

// Total 返回累计计数，成员不存在时返回0
func (s *RedisStore) Total(ctx context.Context, chatID, senderID int64) (int64, error) {
	unlock := s.locks.rlock(chatID)
	defer unlock()

	score, err := s.rdb.ZScore(ctx, s.chatKey(chatID, "counts"), strconv.FormatInt(senderID, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("无法读取计数: %w", err)
	}
	return int64(score), nil
}

// TypeBreakdown 按数量降序返回类型计数。数量相同时先出现的类型在前，
// 日志ID是UUIDv7，字典序即时间序，与SQL后端的 MIN(id) 一致。
func (s *RedisStore) TypeBreakdown(ctx context.Context, chatID, senderID int64) ([]TypeCount, error) {
	unlock := s.locks.rlock(chatID)
	defer unlock()

	pipe := s.rdb.Pipeline()
	typesCmd := pipe.HGetAll(ctx, s.userKey(chatID, senderID, "types"))
	firstCmd := pipe.HGetAll(ctx, s.userKey(chatID, senderID, "first"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("无法读取类型计数: %w", err)
	}
	raw, first := typesCmd.Val(), firstCmd.Val()

	rows := make([]TypeCount, 0, len(raw))
	for typ, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("类型计数 %s 的值无效: %w", typ, err)
		}
		rows = append(rows, TypeCount{Type: event.ContentType(typ), Count: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		fi, fj := first[string(rows[i].Type)], first[string(rows[j].Type)]
		if fi != fj {
			return fi < fj
		}
		return rows[i].Type < rows[j].Type
	})
	return rows, nil
}

// RecentCounts 通过时间索引统计最近24小时和7天的条数
func (s *RedisStore) RecentCounts(ctx context.Context, chatID, senderID int64, now time.Time) (int64, int64, error) {
	unlock := s.locks.rlock(chatID)
	defer unlock()

	daySince, weekSince := windowStarts(now)
	key := s.userKey(chatID, senderID, "times")

	pipe := s.rdb.Pipeline()
	dayCmd := pipe.ZCount(ctx, key, strconv.FormatInt(daySince, 10), "+inf")
	weekCmd := pipe.ZCount(ctx, key, strconv.FormatInt(weekSince, 10), "+inf")
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("无法统计近期消息: %w", err)
	}
	return dayCmd.Val(), weekCmd.Val(), nil
}

// Leaderboard 从计数有序集合读取排名，再批量取回显示名称
func (s *RedisStore) Leaderboard(ctx context.Context, chatID int64) ([]LeaderboardEntry, error) {
	unlock := s.locks.rlock(chatID)
	defer unlock()

	ranked, err := s.rdb.ZRevRangeWithScores(ctx, s.chatKey(chatID, "counts"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("无法读取排行榜: %w", err)
	}
	if len(ranked) == 0 {
		return []LeaderboardEntry{}, nil
	}

	senders := make([]string, len(ranked))
	for i, z := range ranked {
		senders[i] = fmt.Sprint(z.Member)
	}
	names, err := s.rdb.HMGet(ctx, s.chatKey(chatID, "names"), senders...).Result()
	if err != nil {
		return nil, fmt.Errorf("无法读取显示名称: %w", err)
	}

	entries := make([]LeaderboardEntry, len(ranked))
	for i, z := range ranked {
		senderID, err := strconv.ParseInt(senders[i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("排行榜成员 %s 无效: %w", senders[i], err)
		}
		var name string
		if names[i] != nil {
			name, _ = names[i].(string)
		}
		entries[i] = LeaderboardEntry{SenderID: senderID, Username: name, Count: int64(z.Score)}
	}
	return entries, nil
}

// Reset 在一个事务中删除聊天的全部键。
// 成员列表在 WATCH counts 之后读取：其他客户端在读取和 EXEC 之间写入时事务失败并重试，
// 不会留下新成员的类型和时间索引。
func (s *RedisStore) Reset(ctx context.Context, chatID int64) error {
	unlock := s.locks.lock(chatID)
	defer unlock()

	countsKey := s.chatKey(chatID, "counts")
	txf := func(tx *redis.Tx) error {
		senders, err := tx.ZRange(ctx, countsKey, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("无法读取聊天成员: %w", err)
		}

		keys := []string{
			countsKey,
			s.chatKey(chatID, "names"),
			s.chatKey(chatID, "log"),
		}
		for _, sender := range senders {
			senderID, err := strconv.ParseInt(sender, 10, 64)
			if err != nil {
				return fmt.Errorf("聊天成员 %s 无效: %w", sender, err)
			}
			keys = append(keys,
				s.userKey(chatID, senderID, "types"),
				s.userKey(chatID, senderID, "times"),
				s.userKey(chatID, senderID, "first"),
			)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keys...)
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= maxResetAttempts; attempt++ {
		err := s.rdb.Watch(ctx, txf, countsKey)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("执行重置事务失败: %w", err)
		}
		log.Debug().Int64("chat_id", chatID).Int("attempt", attempt).Msg("重置事务冲突，重试")
	}
	return fmt.Errorf("重置事务连续 %d 次冲突: %w", maxResetAttempts, redis.TxFailedErr)
}

// Log 按写入顺序返回聊天的全部日志
func (s *RedisStore) Log(ctx context.Context, chatID int64) ([]LogEntry, error) {
	unlock := s.locks.rlock(chatID)
	defer unlock()

	raw, err := s.rdb.LRange(ctx, s.chatKey(chatID, "log"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("无法读取日志: %w", err)
	}
	entries := make([]LogEntry, 0, len(raw))
	for _, item := range raw {
		var entry LogEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("无法解析日志: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Ping 检查Redis连接
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// RunID 返回Redis服务端的 run_id，健康检查用它发现重启
func (s *RedisStore) RunID(ctx context.Context) (string, error) {
	info, err := s.rdb.Info(ctx, "server").Result()
	if err != nil {
		return "", err
	}
	return parseRunID(info)
}

func parseRunID(info string) (string, error) {
	matches := runIDPattern.FindStringSubmatch(info)
	if len(matches) < 2 {
		return "", errors.New("无法在Redis INFO中找到run_id")
	}
	return matches[1], nil
}

// Close 关闭Redis客户端
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
