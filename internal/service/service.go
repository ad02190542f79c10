// Package service contains the core short link logic: URL validation and
// normalization, short code allocation, redirect resolution with
// best-effort visit recording, and analytics aggregation.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shortlyhq/shortly/internal/database"
	"github.com/shortlyhq/shortly/internal/models"
)

const defaultPublicListLimit = 100

// LinkRepository defines the persistence operations the core needs. The
// implementation lives behind the storage boundary and must enforce short
// code uniqueness with a unique constraint.
type LinkRepository interface {
	// Insert stores a new link, reporting database.ErrCodeExists when the
	// short code is already in use.
	Insert(ctx context.Context, shortCode, originalURL string, ownerID *string, customSlug bool) (*models.Link, error)

	// CodeTaken reports whether any link, active or not, uses the code.
	CodeTaken(ctx context.Context, shortCode string) (bool, error)

	// FindActiveByCode retrieves an active link by its short code. Inactive
	// links are reported as database.ErrLinkNotFound.
	FindActiveByCode(ctx context.Context, shortCode string) (*models.Link, error)

	// FindByCode retrieves a link regardless of active state.
	FindByCode(ctx context.Context, shortCode string) (*models.Link, error)

	// FindByOwner retrieves the owner's links, newest first, including
	// deactivated ones.
	FindByOwner(ctx context.Context, ownerID string) ([]models.Link, error)

	// FindPublic retrieves ownerless active links, newest first, up to limit.
	FindPublic(ctx context.Context, limit int) ([]models.Link, error)

	// UpdateSlug replaces a link's short code. A non-nil ownerID restricts
	// the update to links owned by that identity; a mismatch is reported as
	// database.ErrLinkNotFound.
	UpdateSlug(ctx context.Context, linkID, shortCode string, ownerID *string) (*models.Link, error)

	// Delete removes a link and its visit records, with the same ownership
	// masking as UpdateSlug.
	Delete(ctx context.Context, linkID string, ownerID *string) error

	// RecordVisit appends a visit record and increments the link's visit
	// counter atomically.
	RecordVisit(ctx context.Context, linkID string, info models.VisitorInfo) error

	// VisitsSince retrieves a link's visit records in ascending visit
	// order. A nil since returns the full history.
	VisitsSince(ctx context.Context, linkID string, since *time.Time) ([]models.Visit, error)
}

// VisitDispatcher queues a visit for background persistence. It must not
// block and must not surface failures to the caller.
type VisitDispatcher interface {
	Record(linkID string, info models.VisitorInfo)
}

// LinkService implements link creation, redirect resolution, link
// management and analytics on top of a LinkRepository.
type LinkService struct {
	repo            LinkRepository
	alloc           *CodeAllocator
	visits          VisitDispatcher
	publicListLimit int
}

func NewLinkService(repo LinkRepository, alloc *CodeAllocator, visits VisitDispatcher) *LinkService {
	return &LinkService{
		repo:            repo,
		alloc:           alloc,
		visits:          visits,
		publicListLimit: defaultPublicListLimit,
	}
}

// Shorten validates and normalizes originalURL, allocates a short code
// (random, or derived from customSlug when given) and stores the mapping.
// A custom slug that is already taken is a conflict; a random code that
// loses the insert race is drawn again up to the allocation bound.
func (s *LinkService) Shorten(ctx context.Context, originalURL string, customSlug *string, owner *models.Identity) (*models.Link, error) {
	const op = "service.LinkService.Shorten"

	normalized, err := ValidateURL(originalURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var ownerID *string
	if owner != nil {
		ownerID = &owner.UserID
	}

	if customSlug != nil && *customSlug != "" {
		code, err := s.alloc.ResolveCustom(ctx, *customSlug)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		link, err := s.repo.Insert(ctx, code, normalized, ownerID, true)
		if err != nil {
			if errors.Is(err, database.ErrCodeExists) {
				// Lost the race after the pre-check. Custom slugs never
				// silently change value.
				return nil, fmt.Errorf("%s: %w", op, ErrSlugTaken)
			}

			return nil, fmt.Errorf("%s: failed to create link: %w", op, err)
		}

		return link, nil
	}

	for i := 0; i < maxAllocAttempts; i++ {
		code, err := s.alloc.Allocate(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		link, err := s.repo.Insert(ctx, code, normalized, ownerID, false)
		if err != nil {
			if errors.Is(err, database.ErrCodeExists) {
				continue
			}

			return nil, fmt.Errorf("%s: failed to create link: %w", op, err)
		}

		return link, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrCodeSpaceExhausted)
}

// Resolve looks up an active link by code and returns its stored URL,
// queueing a visit record on the way out. Missing and deactivated links
// are indistinguishable. Visit recording never delays or fails the
// redirect.
func (s *LinkService) Resolve(ctx context.Context, shortCode string, visitor models.VisitorInfo) (string, error) {
	const op = "service.LinkService.Resolve"

	link, err := s.repo.FindActiveByCode(ctx, shortCode)
	if err != nil {
		return "", fmt.Errorf("%s: failed to resolve short code: %w", op, err)
	}

	s.visits.Record(link.ID, visitor)

	return link.OriginalURL, nil
}

// Links lists the caller's links when an identity is present, or the
// public (ownerless, active) links otherwise.
func (s *LinkService) Links(ctx context.Context, caller *models.Identity) ([]models.Link, error) {
	const op = "service.LinkService.Links"

	if caller != nil {
		links, err := s.repo.FindByOwner(ctx, caller.UserID)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to list owner links: %w", op, err)
		}

		return links, nil
	}

	links, err := s.repo.FindPublic(ctx, s.publicListLimit)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list public links: %w", op, err)
	}

	return links, nil
}

// UpdateSlug replaces the short code of one of the caller's links with a
// sanitized custom slug. Links the caller doesn't own surface as not found.
func (s *LinkService) UpdateSlug(ctx context.Context, linkID, slug string, caller models.Identity) (*models.Link, error) {
	const op = "service.LinkService.UpdateSlug"

	code, err := s.alloc.ResolveCustom(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	link, err := s.repo.UpdateSlug(ctx, linkID, code, &caller.UserID)
	if err != nil {
		if errors.Is(err, database.ErrCodeExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrSlugTaken)
		}

		return nil, fmt.Errorf("%s: failed to update slug: %w", op, err)
	}

	return link, nil
}

// Delete removes one of the caller's links along with its visit records.
func (s *LinkService) Delete(ctx context.Context, linkID string, caller models.Identity) error {
	const op = "service.LinkService.Delete"

	if err := s.repo.Delete(ctx, linkID, &caller.UserID); err != nil {
		return fmt.Errorf("%s: failed to delete link: %w", op, err)
	}

	return nil
}

// Analytics aggregates the visit history of a link. Owned links are only
// visible to their owner; anything else is reported as not found so that
// denied access doesn't reveal the link's existence.
func (s *LinkService) Analytics(ctx context.Context, shortCode string, caller *models.Identity, now time.Time) (*models.AnalyticsSnapshot, error) {
	const op = "service.LinkService.Analytics"

	link, err := s.repo.FindByCode(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to find link: %w", op, err)
	}

	if link.OwnerID != nil && (caller == nil || caller.UserID != *link.OwnerID) {
		return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
	}

	visits, err := s.repo.VisitsSince(ctx, link.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to fetch visits: %w", op, err)
	}

	snapshot := aggregateVisits(visits, now)

	return &snapshot, nil
}
