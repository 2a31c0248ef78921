// Package types defines the shared domain types used across the autopilot
// engagement core: engagement categories, inference request/response
// envelopes, task results, and the failure taxonomy.
package types

// EngagementCategory identifies a rate-limited class of engagement action.
type EngagementCategory string

const (
	CategoryReply    EngagementCategory = "reply"    // CategoryReply is an AI-generated reply to a post.
	CategoryRetweet  EngagementCategory = "retweet"  // CategoryRetweet is a plain repost.
	CategoryQuote    EngagementCategory = "quote"    // CategoryQuote is a repost with AI-generated commentary.
	CategoryLike     EngagementCategory = "like"     // CategoryLike is a like on a post.
	CategoryFollow   EngagementCategory = "follow"   // CategoryFollow follows a post's author.
	CategoryBookmark EngagementCategory = "bookmark" // CategoryBookmark bookmarks a post.
)

// AllCategories lists every engagement category in a stable order.
var AllCategories = []EngagementCategory{
	CategoryReply,
	CategoryRetweet,
	CategoryQuote,
	CategoryLike,
	CategoryFollow,
	CategoryBookmark,
}

// Valid reports whether c is a known engagement category.
func (c EngagementCategory) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// String returns the category name.
func (c EngagementCategory) String() string {
	return string(c)
}

// CategoryProgress is a point-in-time snapshot of one category's quota usage.
type CategoryProgress struct {
	Current     int     `json:"current"`
	Limit       int     `json:"limit"`
	Remaining   int     `json:"remaining"`
	PercentUsed float64 `json:"percent_used"`
}

// Unbounded reports whether the category has no configured cap.
func (p CategoryProgress) Unbounded() bool {
	return p.Limit <= 0
}
