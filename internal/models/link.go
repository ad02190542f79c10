// Package models defines the domain types shared between the service,
// repository and API layers.
package models

import "time"

// Link represents one mapping from a short code to an original URL.
type Link struct {
	// ID is the unique identifier of the link, assigned at creation.
	ID string
	// ShortCode is the unique token that resolves to the original URL.
	ShortCode string
	// OriginalURL is the normalized, fully-qualified URL the code points to.
	OriginalURL string
	// OwnerID references the external identity that created the link.
	// It is nil for anonymous links.
	OwnerID *string
	// VisitCount is the number of recorded visits for the link.
	VisitCount int64
	// IsActive reports whether the link still resolves for redirects.
	// Inactive links stay visible to their owner.
	IsActive bool
	// IsCustomSlug records whether the short code was chosen by the user
	// rather than generated.
	IsCustomSlug bool
	// CreatedAt is the timestamp when the link was created.
	CreatedAt time.Time
	// UpdatedAt advances on any mutation, including visit recording.
	UpdatedAt time.Time
}

// Identity is the caller identity supplied by the external token
// verification service. It is optional on most operations.
type Identity struct {
	UserID string
	Email  string
}
