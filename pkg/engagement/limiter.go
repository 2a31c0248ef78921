// Package engagement enforces per-category engagement quotas for a session.
//
// The limiter is the single source of truth for rate accounting. Earlier
// designs kept two independent counters consistent by AND-ing their answers;
// that drift-prone composition is collapsed here into one service, and any
// legacy-shaped views are derived as pure projections of the live numbers.
package engagement

import (
	"fmt"
	"sync"

	"github.com/kardelitaitu/auto-ai-sub003/pkg/types"
)

// Limiter tracks engagement counts against configured per-category limits.
// A limit <= 0 means the category is unbounded.
//
// Check-then-increment is a single atomic step: Record re-validates the quota
// under the same mutex rather than trusting a prior CanPerform call, so the
// invariant current <= limit holds at every observation point even under
// concurrent callers.
type Limiter struct {
	mu      sync.Mutex
	limits  map[types.EngagementCategory]int
	current map[types.EngagementCategory]int
}

// NewLimiter creates a limiter with the given per-category limits. Categories
// absent from limits are unbounded.
func NewLimiter(limits map[types.EngagementCategory]int) *Limiter {
	l := &Limiter{
		limits:  make(map[types.EngagementCategory]int, len(limits)),
		current: make(map[types.EngagementCategory]int),
	}
	for cat, limit := range limits {
		l.limits[cat] = limit
	}
	return l
}

// CanPerform reports whether one more engagement of the given category is
// currently within quota.
func (l *Limiter) CanPerform(category types.EngagementCategory) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowsLocked(category)
}

// Record commits one engagement of the given category. It re-checks the quota
// internally and returns false without counting when the category is already
// at its limit.
func (l *Limiter) Record(category types.EngagementCategory) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.allowsLocked(category) {
		return false
	}
	l.current[category]++
	return true
}

// allowsLocked checks quota for category. Caller must hold l.mu.
func (l *Limiter) allowsLocked(category types.EngagementCategory) bool {
	limit, bounded := l.limits[category]
	if !bounded || limit <= 0 {
		return true
	}
	return l.current[category] < limit
}

// Current returns the committed count for a category.
func (l *Limiter) Current(category types.EngagementCategory) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current[category]
}

// Limit returns the configured limit for a category (0 when unbounded).
func (l *Limiter) Limit(category types.EngagementCategory) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	limit := l.limits[category]
	if limit < 0 {
		return 0
	}
	return limit
}

// Progress returns a per-category snapshot of quota usage. Unbounded
// categories report Remaining=-1 and PercentUsed=0.
func (l *Limiter) Progress() map[types.EngagementCategory]types.CategoryProgress {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := make(map[types.EngagementCategory]types.CategoryProgress, len(types.AllCategories))
	for _, cat := range types.AllCategories {
		limit := l.limits[cat]
		cur := l.current[cat]
		p := types.CategoryProgress{Current: cur, Limit: limit}
		if limit > 0 {
			p.Remaining = limit - cur
			p.PercentUsed = float64(cur) / float64(limit) * 100
		} else {
			p.Limit = 0
			p.Remaining = -1
		}
		snapshot[cat] = p
	}
	return snapshot
}

// Status returns the legacy "current/limit" view keyed by category name,
// derived from the live counters. Unbounded categories render as "n/∞".
func (l *Limiter) Status() map[string]string {
	status := make(map[string]string, len(types.AllCategories))
	for cat, p := range l.Progress() {
		if p.Unbounded() {
			status[cat.String()] = fmt.Sprintf("%d/∞", p.Current)
		} else {
			status[cat.String()] = fmt.Sprintf("%d/%d", p.Current, p.Limit)
		}
	}
	return status
}

// Summary aggregates the live counters into the legacy summary shape.
type Summary struct {
	Total      int                                                 `json:"total"`
	Exhausted  []types.EngagementCategory                          `json:"exhausted,omitempty"`
	Categories map[types.EngagementCategory]types.CategoryProgress `json:"categories"`
}

// Summarize builds a Summary projection from the current counters.
func (l *Limiter) Summarize() Summary {
	progress := l.Progress()
	summary := Summary{Categories: progress}
	for cat, p := range progress {
		summary.Total += p.Current
		if !p.Unbounded() && p.Remaining == 0 {
			summary.Exhausted = append(summary.Exhausted, cat)
		}
	}
	return summary
}

// Reset clears all counters. Limits are preserved.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = make(map[types.EngagementCategory]int)
}
