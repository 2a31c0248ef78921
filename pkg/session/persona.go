package session

import (
	"math/rand"
	"sync"
	"time"

	"github.com/kardelitaitu/auto-ai-sub003/pkg/types"
)

// Persona supplies the timing biases and engagement preferences that keep a
// session from behaving like a metronome. Implementations must be safe for
// concurrent use: the scroll loop and dive tasks consult it in parallel.
type Persona interface {
	// Name identifies the persona in logs.
	Name() string

	// ReadDelay is the pause after opening a post, long enough to have
	// plausibly read it.
	ReadDelay() time.Duration

	// ScrollDelta is the vertical distance of one feed scroll, in pixels.
	ScrollDelta() float64

	// DivePause is the idle time between dives.
	DivePause(base time.Duration) time.Duration

	// TypeDelayMillis paces composer keystrokes.
	TypeDelayMillis() float64

	// PickCategory chooses an engagement from the still-available set.
	// Returns "" when nothing appeals.
	PickCategory(available []types.EngagementCategory) types.EngagementCategory
}

// categoryWeights biases the default persona toward cheap engagements.
// Likes dominate, generated text is rare.
var categoryWeights = map[types.EngagementCategory]int{
	types.CategoryLike:     50,
	types.CategoryBookmark: 15,
	types.CategoryRetweet:  12,
	types.CategoryReply:    10,
	types.CategoryFollow:   8,
	types.CategoryQuote:    5,
}

// DefaultPersona is a moderately active reader with jittered timing.
type DefaultPersona struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewDefaultPersona creates the default persona with its own random source.
func NewDefaultPersona() *DefaultPersona {
	return &DefaultPersona{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (p *DefaultPersona) Name() string { return "default" }

// ReadDelay returns 2-9 seconds, roughly proportional to a short post.
func (p *DefaultPersona) ReadDelay() time.Duration {
	return 2*time.Second + p.jitterDuration(7*time.Second)
}

// ScrollDelta returns 300-800 pixels, a comfortable flick.
func (p *DefaultPersona) ScrollDelta() float64 {
	return 300 + p.jitterFloat(500)
}

// DivePause returns the base interval varied by ±40%.
func (p *DefaultPersona) DivePause(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	spread := time.Duration(float64(base) * 0.8)
	return base - spread/2 + p.jitterDuration(spread)
}

// TypeDelayMillis returns 40-120ms per keystroke.
func (p *DefaultPersona) TypeDelayMillis() float64 {
	return 40 + p.jitterFloat(80)
}

// PickCategory draws from the available set weighted by preference.
func (p *DefaultPersona) PickCategory(available []types.EngagementCategory) types.EngagementCategory {
	if len(available) == 0 {
		return ""
	}

	total := 0
	for _, cat := range available {
		total += categoryWeights[cat]
	}
	if total == 0 {
		return available[0]
	}

	p.mu.Lock()
	n := p.rng.Intn(total)
	p.mu.Unlock()

	for _, cat := range available {
		n -= categoryWeights[cat]
		if n < 0 {
			return cat
		}
	}
	return available[len(available)-1]
}

func (p *DefaultPersona) jitterDuration(max time.Duration) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.rng.Int63n(int64(max)))
}

func (p *DefaultPersona) jitterFloat(max float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64() * max
}
