package service

import (
	"sort"
	"strings"
	"time"

	"github.com/shortlyhq/shortly/internal/models"
)

const (
	analyticsWindowDays = 30
	topReferrerLimit    = 10
)

// aggregateVisits computes an analytics snapshot from raw visit records.
// It is pure computation: access control happens before it is called.
func aggregateVisits(visits []models.Visit, now time.Time) models.AnalyticsSnapshot {
	return models.AnalyticsSnapshot{
		TotalVisits:  int64(len(visits)),
		DailyVisits:  dailyVisits(visits, now),
		TopReferrers: topReferrers(visits),
		Browsers:     browserCounts(visits),
	}
}

// dailyVisits buckets visits from the trailing 30-day window by UTC
// calendar date, ascending. Dates without visits are omitted.
func dailyVisits(visits []models.Visit, now time.Time) []models.DailyCount {
	cutoff := now.UTC().AddDate(0, 0, -analyticsWindowDays)

	byDate := make(map[string]int64)
	for _, v := range visits {
		if v.VisitedAt.Before(cutoff) {
			continue
		}
		byDate[v.VisitedAt.UTC().Format(time.DateOnly)]++
	}

	counts := make([]models.DailyCount, 0, len(byDate))
	for date, n := range byDate {
		counts = append(counts, models.DailyCount{Date: date, Visits: n})
	}

	sort.Slice(counts, func(i, j int) bool {
		return counts[i].Date < counts[j].Date
	})

	return counts
}

// topReferrers counts non-empty referrer values by exact string and keeps
// the top 10, count descending. Ties keep first-seen order (stable sort).
func topReferrers(visits []models.Visit) []models.ReferrerCount {
	byReferer := make(map[string]int64)
	var order []string

	for _, v := range visits {
		if v.Referer == nil || *v.Referer == "" {
			continue
		}
		if _, seen := byReferer[*v.Referer]; !seen {
			order = append(order, *v.Referer)
		}
		byReferer[*v.Referer]++
	}

	counts := make([]models.ReferrerCount, 0, len(order))
	for _, referer := range order {
		counts = append(counts, models.ReferrerCount{Referer: referer, Visits: byReferer[referer]})
	}

	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Visits > counts[j].Visits
	})

	if len(counts) > topReferrerLimit {
		counts = counts[:topReferrerLimit]
	}

	return counts
}

// browserCounts classifies user agents into browser families and counts
// them, descending. Ties are broken lexicographically by name so the
// output order is deterministic.
func browserCounts(visits []models.Visit) []models.BrowserCount {
	byBrowser := make(map[string]int64)

	for _, v := range visits {
		if v.UserAgent == nil || *v.UserAgent == "" {
			continue
		}
		byBrowser[classifyBrowser(*v.UserAgent)]++
	}

	counts := make([]models.BrowserCount, 0, len(byBrowser))
	for browser, n := range byBrowser {
		counts = append(counts, models.BrowserCount{Browser: browser, Visits: n})
	}

	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Visits != counts[j].Visits {
			return counts[i].Visits > counts[j].Visits
		}
		return counts[i].Browser < counts[j].Browser
	})

	return counts
}

// classifyBrowser maps a user agent to a browser family by ordered token
// precedence. Chrome is tested before Safari because Chrome user agents
// also carry a Safari token.
func classifyBrowser(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "Chrome/"):
		return "Chrome"
	case strings.Contains(userAgent, "Firefox/"):
		return "Firefox"
	case strings.Contains(userAgent, "Safari/"):
		return "Safari"
	case strings.Contains(userAgent, "Edge/"):
		return "Edge"
	case strings.Contains(userAgent, "Opera/"):
		return "Opera"
	default:
		return "Other"
	}
}
