package command

import (
	"fmt"
	"strings"

	"github.com/SlpAus/chat-stats-bot/internal/stats"
)

const (
	trendUpMarker   = " \u2197\ufe0f"
	trendDownMarker = " \u2198\ufe0f"

	emptyLeaderboard = "No messages counted yet."
)

func greeting(name string) string {
	return fmt.Sprintf("Hello %s \U0001f60a", name)
}

// renderMyStats 输出个人统计：总数、按类型的占比，以及日/周计数和趋势标记
func renderMyStats(name string, s *stats.PersonalStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s, you sent %d messages in this channel.\n", name, s.Total)

	lines := make([]string, len(s.Breakdown))
	for i, share := range s.Breakdown {
		lines[i] = fmt.Sprintf("%s: %d (%.1f%%)", share.Type, share.Count, share.Percent)
	}
	b.WriteString(strings.Join(lines, "\n"))

	fmt.Fprintf(&b, "\nday: %d, week: %d", s.Day, s.Week)
	switch s.Trend {
	case stats.TrendUp:
		b.WriteString(trendUpMarker)
	case stats.TrendDown:
		b.WriteString(trendDownMarker)
	}
	return b.String()
}

// RenderLeaderboard 每个发送者一行，顺序与排行榜一致。离线的 top 命令也使用它。
func RenderLeaderboard(ranked []stats.RankedSender) string {
	if len(ranked) == 0 {
		return emptyLeaderboard
	}
	lines := make([]string, len(ranked))
	for i, r := range ranked {
		lines[i] = fmt.Sprintf("%s: %d (%.1f%%)", r.Username, r.Count, r.Percent)
	}
	return strings.Join(lines, "\n")
}

func renderNotAdmin(name string) string {
	return fmt.Sprintf("%s, you're not an admin!", name)
}

func renderResetDone(name string) string {
	return fmt.Sprintf("%s, done.", name)
}
