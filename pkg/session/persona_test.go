package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kardelitaitu/auto-ai-sub003/pkg/types"
)

func TestDefaultPersonaRanges(t *testing.T) {
	p := NewDefaultPersona()

	for i := 0; i < 100; i++ {
		read := p.ReadDelay()
		assert.GreaterOrEqual(t, read, 2*time.Second)
		assert.Less(t, read, 9*time.Second)

		delta := p.ScrollDelta()
		assert.GreaterOrEqual(t, delta, 300.0)
		assert.Less(t, delta, 800.0)

		delay := p.TypeDelayMillis()
		assert.GreaterOrEqual(t, delay, 40.0)
		assert.Less(t, delay, 120.0)
	}
}

func TestDefaultPersonaDivePauseJitters(t *testing.T) {
	p := NewDefaultPersona()
	base := 45 * time.Second

	for i := 0; i < 100; i++ {
		pause := p.DivePause(base)
		assert.GreaterOrEqual(t, pause, base-18*time.Second)
		assert.LessOrEqual(t, pause, base+18*time.Second)
	}

	assert.Equal(t, time.Duration(0), p.DivePause(0))
}

func TestDefaultPersonaPickCategory(t *testing.T) {
	p := NewDefaultPersona()

	assert.Equal(t, types.EngagementCategory(""), p.PickCategory(nil))

	// Always returns something from the available set.
	available := []types.EngagementCategory{types.CategoryLike, types.CategoryReply}
	for i := 0; i < 100; i++ {
		picked := p.PickCategory(available)
		assert.Contains(t, available, picked)
	}

	// Single option is always picked.
	assert.Equal(t, types.CategoryQuote,
		p.PickCategory([]types.EngagementCategory{types.CategoryQuote}))
}
