package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// codeAlphabet leaves out glyphs that are easy to misread (0/O, 1/l/I, o).
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz"

const (
	defaultCodeLength = 6
	maxAllocAttempts  = 10
	maxSlugLength     = 20
)

var (
	// ErrInvalidSlug is returned when a custom slug doesn't match the
	// allowed format (3-20 alphanumerics, hyphens or underscores).
	ErrInvalidSlug = errors.New("invalid custom slug")
	// ErrSlugTaken is returned when the sanitized custom slug is already in
	// use. Custom slugs are never silently changed to resolve a conflict.
	ErrSlugTaken = errors.New("custom slug is already taken")
	// ErrCodeSpaceExhausted is returned when random allocation keeps
	// colliding after the bounded number of attempts.
	ErrCodeSpaceExhausted = errors.New("could not allocate a unique short code")
)

var (
	slugPattern      = regexp.MustCompile(`^[A-Za-z0-9_-]{3,20}$`)
	invalidSlugChars = regexp.MustCompile(`[^a-z0-9_-]`)
	hyphenRuns       = regexp.MustCompile(`-+`)
)

// CodeAllocator hands out unique short codes, either randomly drawn from
// the restricted alphabet or derived from a user-chosen slug.
//
// Its uniqueness pre-checks are an optimization only; the storage-level
// unique index remains the authority, and insert-time collisions must still
// be handled by the caller.
type CodeAllocator struct {
	repo   codeChecker
	length int
}

type codeChecker interface {
	CodeTaken(ctx context.Context, shortCode string) (bool, error)
}

func NewCodeAllocator(repo codeChecker, length int) *CodeAllocator {
	if length <= 0 {
		length = defaultCodeLength
	}

	return &CodeAllocator{
		repo:   repo,
		length: length,
	}
}

// Allocate draws random codes until one is free, giving up with
// ErrCodeSpaceExhausted after maxAllocAttempts consecutive collisions.
func (a *CodeAllocator) Allocate(ctx context.Context) (string, error) {
	const op = "service.CodeAllocator.Allocate"

	for i := 0; i < maxAllocAttempts; i++ {
		code, err := gonanoid.Generate(codeAlphabet, a.length)
		if err != nil {
			return "", fmt.Errorf("%s: failed to generate short code: %w", op, err)
		}

		taken, err := a.repo.CodeTaken(ctx, code)
		if err != nil {
			return "", fmt.Errorf("%s: failed to check short code: %w", op, err)
		}

		if !taken {
			return code, nil
		}
	}

	return "", fmt.Errorf("%s: %w", op, ErrCodeSpaceExhausted)
}

// ResolveCustom validates a user-chosen slug, sanitizes it into its
// canonical stored form and checks that the result is free. A taken slug is
// a conflict, not a retry.
func (a *CodeAllocator) ResolveCustom(ctx context.Context, slug string) (string, error) {
	const op = "service.CodeAllocator.ResolveCustom"

	if !slugPattern.MatchString(slug) {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidSlug)
	}

	sanitized := sanitizeSlug(slug)

	taken, err := a.repo.CodeTaken(ctx, sanitized)
	if err != nil {
		return "", fmt.Errorf("%s: failed to check short code: %w", op, err)
	}
	if taken {
		return "", fmt.Errorf("%s: %w", op, ErrSlugTaken)
	}

	return sanitized, nil
}

// sanitizeSlug lowercases the slug, replaces characters outside
// [a-z0-9_-] with hyphens, collapses hyphen runs, trims edge hyphens and
// caps the length.
func sanitizeSlug(slug string) string {
	s := strings.ToLower(slug)
	s = invalidSlugChars.ReplaceAllString(s, "-")
	s = hyphenRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > maxSlugLength {
		s = s[:maxSlugLength]
	}

	return s
}
