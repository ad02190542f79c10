// Package database defines the storage errors shared by repository
// implementations and their consumers.
package database

import "errors"

var (
	// ErrCodeExists is returned when an insert or slug update collides with
	// an existing short code. The unique index on links.short_code is the
	// source of truth for this condition, not any pre-check.
	ErrCodeExists = errors.New("short code exists")
	// ErrLinkNotFound is returned when no link matches the given code or id.
	// Owner-scoped operations also return it when the stored owner doesn't
	// match, so absence and denied access are indistinguishable.
	ErrLinkNotFound = errors.New("link not found")
)
