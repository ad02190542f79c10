package models

// DailyCount is the number of visits on one UTC calendar date.
type DailyCount struct {
	Date   string `json:"date"`
	Visits int64  `json:"visits"`
}

// ReferrerCount is the number of visits attributed to one referrer.
type ReferrerCount struct {
	Referer string `json:"referer"`
	Visits  int64  `json:"visits"`
}

// BrowserCount is the number of visits attributed to one browser family.
type BrowserCount struct {
	Browser string `json:"browser"`
	Visits  int64  `json:"visits"`
}

// AnalyticsSnapshot is the aggregated view of a link's visit history.
type AnalyticsSnapshot struct {
	TotalVisits  int64           `json:"total_visits"`
	DailyVisits  []DailyCount    `json:"daily_visits"`
	TopReferrers []ReferrerCount `json:"top_referrers"`
	Browsers     []BrowserCount  `json:"browsers"`
}
