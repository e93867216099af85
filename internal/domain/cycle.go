package domain

import "time"

// CycleLog records one pass of the monitor loop for audit and dashboards.
type CycleLog struct {
	ID             string
	StartedAt      time.Time
	Duration       time.Duration
	PolyListings   int
	KalshiListings int
	PairsEvaluated int
	MatchesFound   int
	Opportunities  int
	AlertsSent     int
	Degraded       bool
	Error          string
	BestNetProfit  float64
	TotalNetProfit float64
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}
