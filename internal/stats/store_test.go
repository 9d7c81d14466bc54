package stats

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SlpAus/chat-stats-bot/internal/event"
)

// logReader 同时提供统计和原始日志，用于校验计数与日志的一致性
type logReader interface {
	Store
	LogReader
}

const (
	chatA int64 = -1001
	chatB int64 = -1002
)

func mustIncrement(t *testing.T, s Store, chatID, senderID int64, name string, date int64, typ event.ContentType) {
	t.Helper()
	entry, err := NewLogEntry(chatID, senderID, name, date, typ)
	require.NoError(t, err)
	require.NoError(t, s.Increment(context.Background(), entry))
}

// runStoreSuite 对任意 Store 实现运行同一组行为测试
func runStoreSuite(t *testing.T, newStore func(t *testing.T) logReader) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	t.Run("missing sender defaults to zero", func(t *testing.T) {
		s := newStore(t)
		total, err := s.Total(ctx, chatA, 42)
		require.NoError(t, err)
		assert.Zero(t, total)

		breakdown, err := s.TypeBreakdown(ctx, chatA, 42)
		require.NoError(t, err)
		assert.Empty(t, breakdown)

		day, week, err := s.RecentCounts(ctx, chatA, 42, now)
		require.NoError(t, err)
		assert.Zero(t, day)
		assert.Zero(t, week)

		board, err := s.Leaderboard(ctx, chatA)
		require.NoError(t, err)
		assert.Empty(t, board)
	})

	t.Run("total equals number of events and log rows", func(t *testing.T) {
		s := newStore(t)
		types := []event.ContentType{event.TypeText, event.TypeText, event.TypePhoto, event.TypeText, event.TypeSticker, event.Unclassified}
		for i, typ := range types {
			mustIncrement(t, s, chatA, 1, "Alice", now.Unix()+int64(i), typ)
		}

		total, err := s.Total(ctx, chatA, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(len(types)), total)

		breakdown, err := s.TypeBreakdown(ctx, chatA, 1)
		require.NoError(t, err)
		var sum int64
		for _, tc := range breakdown {
			sum += tc.Count
		}
		assert.Equal(t, total, sum)
		require.NotEmpty(t, breakdown)
		assert.Equal(t, TypeCount{Type: event.TypeText, Count: 3}, breakdown[0])

		log, err := s.Log(ctx, chatA)
		require.NoError(t, err)
		assert.Len(t, log, len(types))
	})

	t.Run("display name follows latest event", func(t *testing.T) {
		s := newStore(t)
		mustIncrement(t, s, chatA, 1, "Alice", now.Unix(), event.TypeText)
		mustIncrement(t, s, chatA, 1, "Alicia", now.Unix(), event.TypeText)

		board, err := s.Leaderboard(ctx, chatA)
		require.NoError(t, err)
		require.Len(t, board, 1)
		assert.Equal(t, "Alicia", board[0].Username)
		assert.Equal(t, int64(2), board[0].Count)

		log, err := s.Log(ctx, chatA)
		require.NoError(t, err)
		require.Len(t, log, 2)
		assert.Equal(t, "Alice", log[0].Username)
		assert.Equal(t, "Alicia", log[1].Username)
	})

	t.Run("leaderboard is ordered by count", func(t *testing.T) {
		s := newStore(t)
		counts := []struct {
			id    int64
			name  string
			count int
		}{{1, "A", 5}, {2, "B", 9}, {3, "C", 2}}
		for _, c := range counts {
			for i := 0; i < c.count; i++ {
				mustIncrement(t, s, chatA, c.id, c.name, now.Unix(), event.TypeText)
			}
		}

		board, err := s.Leaderboard(ctx, chatA)
		require.NoError(t, err)
		assert.Equal(t, []LeaderboardEntry{
			{SenderID: 2, Username: "B", Count: 9},
			{SenderID: 1, Username: "A", Count: 5},
			{SenderID: 3, Username: "C", Count: 2},
		}, board)
	})

	t.Run("recent counts use day and week windows", func(t *testing.T) {
		s := newStore(t)
		mustIncrement(t, s, chatA, 1, "Alice", now.Unix()-3600, event.TypeText)
		mustIncrement(t, s, chatA, 1, "Alice", now.Unix()-90000, event.TypeText)
		mustIncrement(t, s, chatA, 1, "Alice", now.Unix()-700000, event.TypeText)

		day, week, err := s.RecentCounts(ctx, chatA, 1, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), day)
		assert.Equal(t, int64(2), week)
	})

	t.Run("window boundaries are inclusive", func(t *testing.T) {
		s := newStore(t)
		mustIncrement(t, s, chatA, 1, "Alice", now.Unix()-86400, event.TypeText)
		mustIncrement(t, s, chatA, 1, "Alice", now.Unix()-604800, event.TypeText)

		day, week, err := s.RecentCounts(ctx, chatA, 1, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), day)
		assert.Equal(t, int64(2), week)
	})

	t.Run("reset is idempotent and scoped to one chat", func(t *testing.T) {
		s := newStore(t)
		mustIncrement(t, s, chatA, 1, "Alice", now.Unix(), event.TypeText)
		mustIncrement(t, s, chatA, 2, "Bob", now.Unix(), event.TypePhoto)
		mustIncrement(t, s, chatB, 1, "Alice", now.Unix(), event.TypeText)

		for i := 0; i < 2; i++ {
			require.NoError(t, s.Reset(ctx, chatA))

			total, err := s.Total(ctx, chatA, 1)
			require.NoError(t, err)
			assert.Zero(t, total)

			board, err := s.Leaderboard(ctx, chatA)
			require.NoError(t, err)
			assert.Empty(t, board)

			log, err := s.Log(ctx, chatA)
			require.NoError(t, err)
			assert.Empty(t, log)

			breakdown, err := s.TypeBreakdown(ctx, chatA, 2)
			require.NoError(t, err)
			assert.Empty(t, breakdown)
		}

		total, err := s.Total(ctx, chatB, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)

		board, err := s.Leaderboard(ctx, chatB)
		require.NoError(t, err)
		assert.Len(t, board, 1)
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		s := newStore(t)
		const workers = 20
		const perWorker = 5

		var wg sync.WaitGroup
		errs := make(chan error, workers*perWorker)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					entry, err := NewLogEntry(chatA, 7, "Carol", now.Unix(), event.TypeText)
					if err != nil {
						errs <- err
						continue
					}
					errs <- s.Increment(ctx, entry)
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		total, err := s.Total(ctx, chatA, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(workers*perWorker), total)

		log, err := s.Log(ctx, chatA)
		require.NoError(t, err)
		assert.Len(t, log, workers*perWorker)
	})

	t.Run("breakdown ties follow first-seen order", func(t *testing.T) {
		s := newStore(t)
		for i, typ := range []event.ContentType{event.TypeText, event.TypePhoto, event.TypePhoto, event.TypeText} {
			mustIncrement(t, s, chatA, 1, "Alice", now.Unix()+int64(i), typ)
		}

		breakdown, err := s.TypeBreakdown(ctx, chatA, 1)
		require.NoError(t, err)
		assert.Equal(t, []TypeCount{
			{Type: event.TypeText, Count: 2},
			{Type: event.TypePhoto, Count: 2},
		}, breakdown)
	})

	t.Run("reset interleaved with increments keeps counts consistent", func(t *testing.T) {
		s := newStore(t)
		const senders = 5
		const perSender = 20

		var wg sync.WaitGroup
		errs := make(chan error, senders*perSender+10)
		for sender := int64(1); sender <= senders; sender++ {
			wg.Add(1)
			go func(sender int64) {
				defer wg.Done()
				for i := 0; i < perSender; i++ {
					entry, err := NewLogEntry(chatA, sender, "User", now.Unix(), event.TypeText)
					if err != nil {
						errs <- err
						continue
					}
					errs <- s.Increment(ctx, entry)
				}
			}(sender)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				errs <- s.Reset(ctx, chatA)
			}
		}()
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		entries, err := s.Log(ctx, chatA)
		require.NoError(t, err)
		rows := make(map[int64]int64)
		for _, e := range entries {
			rows[e.SenderID]++
		}

		for sender := int64(1); sender <= senders; sender++ {
			total, err := s.Total(ctx, chatA, sender)
			require.NoError(t, err)
			assert.Equal(t, rows[sender], total, "sender %d", sender)

			breakdown, err := s.TypeBreakdown(ctx, chatA, sender)
			require.NoError(t, err)
			var sum int64
			for _, tc := range breakdown {
				sum += tc.Count
			}
			assert.Equal(t, total, sum, "sender %d", sender)

			_, week, err := s.RecentCounts(ctx, chatA, sender, now)
			require.NoError(t, err)
			assert.Equal(t, total, week, "sender %d", sender)
		}
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(ctx))
	})
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0.0, Percent(0, 0))
	assert.Equal(t, 0.0, Percent(5, 0))
	assert.Equal(t, 50.0, Percent(1, 2))
	assert.InDelta(t, 33.333, Percent(1, 3), 0.001)
}

func TestTrendOf(t *testing.T) {
	assert.Equal(t, TrendUp, TrendOf(2, 10))
	assert.Equal(t, TrendDown, TrendOf(1, 10))
	assert.Equal(t, TrendFlat, TrendOf(0, 0))
	assert.Equal(t, TrendFlat, TrendOf(1, 7))
	assert.Equal(t, "up", TrendUp.String())
	assert.Equal(t, "down", TrendDown.String())
	assert.Equal(t, "flat", TrendFlat.String())
}

func TestNewLogEntry_IDsAreOrdered(t *testing.T) {
	first, err := NewLogEntry(chatA, 1, "Alice", 1, event.TypeText)
	require.NoError(t, err)
	second, err := NewLogEntry(chatA, 1, "Alice", 1, event.TypeText)
	require.NoError(t, err)
	assert.Less(t, first.ID, second.ID)
}
