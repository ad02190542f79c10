package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shortlyhq/shortly/internal/database"
	"github.com/shortlyhq/shortly/internal/models"
)

type linkRecord struct {
	ID           string    `db:"id"`
	ShortCode    string    `db:"short_code"`
	OriginalURL  string    `db:"original_url"`
	OwnerID      *string   `db:"owner_id"`
	VisitCount   int64     `db:"visit_count"`
	IsActive     bool      `db:"is_active"`
	IsCustomSlug bool      `db:"is_custom_slug"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r *linkRecord) toLink() *models.Link {
	return &models.Link{
		ID:           r.ID,
		ShortCode:    r.ShortCode,
		OriginalURL:  r.OriginalURL,
		OwnerID:      r.OwnerID,
		VisitCount:   r.VisitCount,
		IsActive:     r.IsActive,
		IsCustomSlug: r.IsCustomSlug,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type visitRecord struct {
	ID        string    `db:"id"`
	LinkID    string    `db:"link_id"`
	VisitedAt time.Time `db:"visited_at"`
	IPAddress *string   `db:"ip_address"`
	UserAgent *string   `db:"user_agent"`
	Referer   *string   `db:"referer"`
}

func (r *visitRecord) toVisit() models.Visit {
	return models.Visit{
		ID:        r.ID,
		LinkID:    r.LinkID,
		VisitedAt: r.VisitedAt,
		IPAddress: r.IPAddress,
		UserAgent: r.UserAgent,
		Referer:   r.Referer,
	}
}

// LinkRepository stores links and their visit records in PostgreSQL.
type LinkRepository struct {
	db *sqlx.DB
}

func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{
		db: db,
	}
}

// Insert stores a new link. The short code collides with an existing one
// when the unique index rejects the row, reported as database.ErrCodeExists.
func (r *LinkRepository) Insert(ctx context.Context, shortCode, originalURL string, ownerID *string, customSlug bool) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.Insert"

	rec := new(linkRecord)
	query := `INSERT INTO links(id, short_code, original_url, owner_id, is_custom_slug)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, uuid.NewString(), shortCode, originalURL, ownerID, customSlug)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrCodeExists)
		}

		return nil, fmt.Errorf("%s: failed to insert link record: %w", op, err)
	}

	return rec.toLink(), nil
}

// CodeTaken reports whether any link, active or not, already uses the code.
func (r *LinkRepository) CodeTaken(ctx context.Context, shortCode string) (bool, error) {
	const op = "database.postgres.LinkRepository.CodeTaken"

	var taken bool
	query := `SELECT EXISTS(SELECT 1 FROM links WHERE short_code = $1)`

	if err := r.db.GetContext(ctx, &taken, query, shortCode); err != nil {
		return false, fmt.Errorf("%s: failed to check short code: %w", op, err)
	}

	return taken, nil
}

// FindActiveByCode retrieves an active link by its short code. Inactive
// links are reported as not found.
func (r *LinkRepository) FindActiveByCode(ctx context.Context, shortCode string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.FindActiveByCode"

	rec := new(linkRecord)
	query := `SELECT * FROM links WHERE short_code = $1 AND is_active = TRUE`

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get link record: %w", op, err)
	}

	return rec.toLink(), nil
}

// FindByCode retrieves a link by its short code regardless of active state.
func (r *LinkRepository) FindByCode(ctx context.Context, shortCode string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.FindByCode"

	rec := new(linkRecord)
	query := `SELECT * FROM links WHERE short_code = $1`

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get link record: %w", op, err)
	}

	return rec.toLink(), nil
}

// FindByOwner retrieves all links owned by the given identity, newest
// first, including deactivated ones.
func (r *LinkRepository) FindByOwner(ctx context.Context, ownerID string) ([]models.Link, error) {
	const op = "database.postgres.LinkRepository.FindByOwner"

	var recs []linkRecord
	query := `SELECT * FROM links WHERE owner_id = $1 ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &recs, query, ownerID); err != nil {
		return nil, fmt.Errorf("%s: failed to select link records: %w", op, err)
	}

	links := make([]models.Link, 0, len(recs))
	for _, rec := range recs {
		links = append(links, *rec.toLink())
	}

	return links, nil
}

// FindPublic retrieves ownerless active links, newest first, up to limit.
func (r *LinkRepository) FindPublic(ctx context.Context, limit int) ([]models.Link, error) {
	const op = "database.postgres.LinkRepository.FindPublic"

	var recs []linkRecord
	query := `SELECT * FROM links
		WHERE owner_id IS NULL AND is_active = TRUE
		ORDER BY created_at DESC
		LIMIT $1`

	if err := r.db.SelectContext(ctx, &recs, query, limit); err != nil {
		return nil, fmt.Errorf("%s: failed to select link records: %w", op, err)
	}

	links := make([]models.Link, 0, len(recs))
	for _, rec := range recs {
		links = append(links, *rec.toLink())
	}

	return links, nil
}

// UpdateSlug replaces the short code of a link. When ownerID is non-nil the
// update applies only to links owned by that identity; a mismatch surfaces
// as database.ErrLinkNotFound without revealing whether the link exists.
func (r *LinkRepository) UpdateSlug(ctx context.Context, linkID, shortCode string, ownerID *string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.UpdateSlug"

	rec := new(linkRecord)
	query := `UPDATE links
		SET short_code = $1, is_custom_slug = TRUE, updated_at = NOW()
		WHERE id = $2 AND ($3::text IS NULL OR owner_id = $3)
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, shortCode, linkID, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrCodeExists)
		}

		return nil, fmt.Errorf("%s: failed to update link record: %w", op, err)
	}

	return rec.toLink(), nil
}

// Delete removes a link and, through the foreign key cascade, its visit
// records. The same ownership masking as UpdateSlug applies.
func (r *LinkRepository) Delete(ctx context.Context, linkID string, ownerID *string) error {
	const op = "database.postgres.LinkRepository.Delete"

	query := `DELETE FROM links WHERE id = $1 AND ($2::text IS NULL OR owner_id = $2)`

	res, err := r.db.ExecContext(ctx, query, linkID, ownerID)
	if err != nil {
		return fmt.Errorf("%s: failed to delete link record: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
	}

	return nil
}

// RecordVisit appends a visit record and bumps the link's visit counter in
// one transaction, so the counter stays equal to the number of stored
// visits even under concurrent redirects.
func (r *LinkRepository) RecordVisit(ctx context.Context, linkID string, info models.VisitorInfo) error {
	const op = "database.postgres.LinkRepository.RecordVisit"

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	insertQuery := `INSERT INTO visits(id, link_id, ip_address, user_agent, referer)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := tx.ExecContext(ctx, insertQuery, uuid.NewString(), linkID, info.IPAddress, info.UserAgent, info.Referer); err != nil {
		return fmt.Errorf("%s: failed to insert visit record: %w", op, err)
	}

	updateQuery := `UPDATE links
		SET visit_count = visit_count + 1, updated_at = NOW()
		WHERE id = $1`

	res, err := tx.ExecContext(ctx, updateQuery, linkID)
	if err != nil {
		return fmt.Errorf("%s: failed to update visit count: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	return nil
}

// VisitsSince retrieves the visit records of a link in ascending visit
// order. A nil since returns the full history.
func (r *LinkRepository) VisitsSince(ctx context.Context, linkID string, since *time.Time) ([]models.Visit, error) {
	const op = "database.postgres.LinkRepository.VisitsSince"

	var recs []visitRecord
	query := `SELECT * FROM visits
		WHERE link_id = $1 AND ($2::timestamptz IS NULL OR visited_at >= $2)
		ORDER BY visited_at ASC`

	if err := r.db.SelectContext(ctx, &recs, query, linkID, since); err != nil {
		return nil, fmt.Errorf("%s: failed to select visit records: %w", op, err)
	}

	visits := make([]models.Visit, 0, len(recs))
	for _, rec := range recs {
		visits = append(visits, rec.toVisit())
	}

	return visits, nil
}
