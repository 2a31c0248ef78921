package engagement

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kardelitaitu/auto-ai-sub003/pkg/types"
)

func TestLimiterRecordEnforcesLimit(t *testing.T) {
	limiter := NewLimiter(map[types.EngagementCategory]int{
		types.CategoryReply: 3,
	})

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.CanPerform(types.CategoryReply))
		assert.True(t, limiter.Record(types.CategoryReply))
	}

	assert.False(t, limiter.CanPerform(types.CategoryReply))
	assert.False(t, limiter.Record(types.CategoryReply))
	assert.Equal(t, 3, limiter.Current(types.CategoryReply))
}

func TestLimiterRecordWithoutPriorCheck(t *testing.T) {
	// Record must re-check internally: calling it without CanPerform first
	// can never push current past limit.
	limiter := NewLimiter(map[types.EngagementCategory]int{
		types.CategoryLike: 2,
	})

	assert.True(t, limiter.Record(types.CategoryLike))
	assert.True(t, limiter.Record(types.CategoryLike))
	assert.False(t, limiter.Record(types.CategoryLike))
	assert.Equal(t, 2, limiter.Current(types.CategoryLike))
}

func TestLimiterUnboundedCategory(t *testing.T) {
	limiter := NewLimiter(map[types.EngagementCategory]int{
		types.CategoryReply: 1,
		// like is absent, so unbounded
	})

	for i := 0; i < 50; i++ {
		require.True(t, limiter.Record(types.CategoryLike))
	}
	assert.Equal(t, 50, limiter.Current(types.CategoryLike))
	assert.True(t, limiter.CanPerform(types.CategoryLike))
}

func TestLimiterConcurrentRecordNeverExceedsLimit(t *testing.T) {
	const limit = 25
	const workers = 16
	const attemptsPerWorker = 40

	limiter := NewLimiter(map[types.EngagementCategory]int{
		types.CategoryRetweet: limit,
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < attemptsPerWorker; i++ {
				// Deliberately interleave check and record from many
				// goroutines; only record commits.
				limiter.CanPerform(types.CategoryRetweet)
				if limiter.Record(types.CategoryRetweet) {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, granted)
	assert.Equal(t, limit, limiter.Current(types.CategoryRetweet))
}

func TestLimiterProgress(t *testing.T) {
	limiter := NewLimiter(map[types.EngagementCategory]int{
		types.CategoryReply: 4,
	})
	limiter.Record(types.CategoryReply)

	progress := limiter.Progress()

	reply := progress[types.CategoryReply]
	assert.Equal(t, 1, reply.Current)
	assert.Equal(t, 4, reply.Limit)
	assert.Equal(t, 3, reply.Remaining)
	assert.InDelta(t, 25.0, reply.PercentUsed, 0.001)

	like := progress[types.CategoryLike]
	assert.True(t, like.Unbounded())
	assert.Equal(t, -1, like.Remaining)
}

func TestLimiterStatusProjection(t *testing.T) {
	limiter := NewLimiter(map[types.EngagementCategory]int{
		types.CategoryQuote: 5,
	})
	limiter.Record(types.CategoryQuote)
	limiter.Record(types.CategoryBookmark)

	status := limiter.Status()
	assert.Equal(t, "1/5", status["quote"])
	assert.Equal(t, "1/∞", status["bookmark"])
	assert.Equal(t, "0/∞", status["like"])
}

func TestLimiterSummarize(t *testing.T) {
	limiter := NewLimiter(map[types.EngagementCategory]int{
		types.CategoryReply: 1,
		types.CategoryLike:  10,
	})
	limiter.Record(types.CategoryReply)
	limiter.Record(types.CategoryLike)
	limiter.Record(types.CategoryBookmark)

	summary := limiter.Summarize()
	assert.Equal(t, 3, summary.Total)
	assert.Contains(t, summary.Exhausted, types.CategoryReply)
	assert.NotContains(t, summary.Exhausted, types.CategoryLike)
}

func TestLimiterReset(t *testing.T) {
	limiter := NewLimiter(map[types.EngagementCategory]int{
		types.CategoryReply: 1,
	})
	require.True(t, limiter.Record(types.CategoryReply))
	require.False(t, limiter.CanPerform(types.CategoryReply))

	limiter.Reset()

	assert.Equal(t, 0, limiter.Current(types.CategoryReply))
	assert.True(t, limiter.CanPerform(types.CategoryReply))
	assert.Equal(t, 1, limiter.Limit(types.CategoryReply))
}
