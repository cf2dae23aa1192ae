package cache

import "fmt"

// Namespaced key helpers. Ephemeral counters and cached computed values all
// live under these prefixes so administrative invalidation can target them
// with ClearPattern.

// RateLimitKey is the fixed-window counter key for a user.
func RateLimitKey(userID int64) string {
	return fmt.Sprintf("rate_limit:%d", userID)
}

// UserKey caches per-user computed data.
func UserKey(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// UserPattern matches every per-user cache entry.
const UserPattern = "user:*"

// UserStatsKey caches the aggregate user statistics snapshot.
const UserStatsKey = "user:stats"

// ContentKey caches rendered content sections by name.
func ContentKey(section string) string {
	return fmt.Sprintf("content:%s", section)
}

// ContentPattern matches every cached content section.
const ContentPattern = "content:*"
