package stats

import (
	"context"
	"time"
)

// --- Service-Level DTOs ---
// 命令处理器和HTTP接口共用这些派生统计结果

// Trend 比较短期（1天）与长期（7天）的消息速率
type Trend int

const (
	TrendFlat Trend = iota
	TrendUp
	TrendDown
)

// String 返回趋势的名称，用于JSON输出
func (t Trend) String() string {
	switch t {
	case TrendUp:
		return "up"
	case TrendDown:
		return "down"
	default:
		return "flat"
	}
}

// TypeShare 是带百分比的类型计数
type TypeShare struct {
	TypeCount
	Percent float64
}

// PersonalStats 是一个发送者在一个聊天内的统计报告
type PersonalStats struct {
	Total     int64
	Breakdown []TypeShare
	Day       int64
	Week      int64
	Trend     Trend
}

// RankedSender 是带百分比的排行榜条目
type RankedSender struct {
	LeaderboardEntry
	Percent float64
}

// Percent 计算占比（0-100）。分母为0时约定返回0，不会除零。
func Percent(count, total int64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(count) / float64(total)
}

// TrendOf 比较 day*7 与 week：严格大于为上升，严格小于为下降，相等时没有趋势
func TrendOf(day, week int64) Trend {
	switch {
	case day*7 > week:
		return TrendUp
	case day*7 < week:
		return TrendDown
	default:
		return TrendFlat
	}
}

// GetPersonalStats 汇总一个发送者的累计计数、类型分布和近期趋势
func GetPersonalStats(ctx context.Context, store Store, chatID, senderID int64, now time.Time) (*PersonalStats, error) {
	total, err := store.Total(ctx, chatID, senderID)
	if err != nil {
		return nil, err
	}

	types, err := store.TypeBreakdown(ctx, chatID, senderID)
	if err != nil {
		return nil, err
	}
	breakdown := make([]TypeShare, len(types))
	for i, tc := range types {
		breakdown[i] = TypeShare{TypeCount: tc, Percent: Percent(tc.Count, total)}
	}

	day, week, err := store.RecentCounts(ctx, chatID, senderID, now)
	if err != nil {
		return nil, err
	}

	return &PersonalStats{
		Total:     total,
		Breakdown: breakdown,
		Day:       day,
		Week:      week,
		Trend:     TrendOf(day, week),
	}, nil
}

// GetRankedLeaderboard 返回带百分比的排行榜，百分比以全聊天总数为分母
func GetRankedLeaderboard(ctx context.Context, store Store, chatID int64) ([]RankedSender, error) {
	entries, err := store.Leaderboard(ctx, chatID)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, e := range entries {
		total += e.Count
	}

	ranked := make([]RankedSender, len(entries))
	for i, e := range entries {
		ranked[i] = RankedSender{LeaderboardEntry: e, Percent: Percent(e.Count, total)}
	}
	return ranked, nil
}
