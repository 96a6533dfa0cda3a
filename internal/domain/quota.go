package domain

import "time"

// QuotaCounters holds the per-user, per-category ceilings and rolling usage.
//
// A counter value is only meaningful relative to its stored reset marker: when
// the marker no longer matches the current day/ISO-week/month label the
// counter is stale and must be treated as zero before use. A nil ceiling means
// unlimited.
type QuotaCounters struct {
	UserID   string
	Category Category

	DailyLimit   *int
	WeeklyLimit  *int
	MonthlyLimit *int
	BatchLimit   *int

	DailyUsed   int
	WeeklyUsed  int
	MonthlyUsed int

	DailyMarker   string
	WeeklyMarker  string
	MonthlyMarker string

	UpdatedAt time.Time
}

// UsageSnapshot is the caller-facing view of current usage returned alongside
// an admission decision.
type UsageSnapshot struct {
	DailyUsed    int  `json:"dailyUsed"`
	WeeklyUsed   int  `json:"weeklyUsed"`
	MonthlyUsed  int  `json:"monthlyUsed"`
	DailyLimit   *int `json:"dailyLimit,omitempty"`
	WeeklyLimit  *int `json:"weeklyLimit,omitempty"`
	MonthlyLimit *int `json:"monthlyLimit,omitempty"`
	BatchLimit   *int `json:"batchLimit,omitempty"`
}

// CacheEntry maps a canonical item to its most recent successful outcome.
type CacheEntry struct {
	Item      string
	Outcome   Outcome
	CheckedAt time.Time
}

// ProgressEvent is one fan-out update for a batch's live observers. Delivery
// is at-most-once; consumers must tolerate missed intermediate events.
type ProgressEvent struct {
	BatchID     string `json:"batchId"`
	Processed   int    `json:"processed"`
	Total       int    `json:"total"`
	Valid       int    `json:"valid"`
	Invalid     int    `json:"invalid"`
	Status      string `json:"status"`
	CurrentItem string `json:"currentItem,omitempty"`
}

const (
	ProgressStatusProcessing  = "processing"
	ProgressStatusCompleted   = "completed"
	ProgressStatusInterrupted = "interrupted"
	ProgressStatusError       = "error"
)
