package models

import "time"

// Visit is one logged redirect event against a link. Visits are append-only
// and are removed only when their link is deleted.
type Visit struct {
	ID        string
	LinkID    string
	VisitedAt time.Time
	IPAddress *string
	UserAgent *string
	Referer   *string
}

// VisitorInfo carries the optional request attributes captured during a
// redirect. Every field may be absent independently.
type VisitorInfo struct {
	IPAddress *string
	UserAgent *string
	Referer   *string
}
