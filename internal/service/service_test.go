package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shortlyhq/shortly/internal/database"
	"github.com/shortlyhq/shortly/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockLinkRepository struct {
	mock.Mock
}

func (r *MockLinkRepository) Insert(ctx context.Context, shortCode, originalURL string, ownerID *string, customSlug bool) (*models.Link, error) {
	args := r.Called(ctx, shortCode, originalURL, ownerID, customSlug)
	link, _ := args.Get(0).(*models.Link)
	return link, args.Error(1)
}

func (r *MockLinkRepository) CodeTaken(ctx context.Context, shortCode string) (bool, error) {
	args := r.Called(ctx, shortCode)
	return args.Bool(0), args.Error(1)
}

func (r *MockLinkRepository) FindActiveByCode(ctx context.Context, shortCode string) (*models.Link, error) {
	args := r.Called(ctx, shortCode)
	link, _ := args.Get(0).(*models.Link)
	return link, args.Error(1)
}

func (r *MockLinkRepository) FindByCode(ctx context.Context, shortCode string) (*models.Link, error) {
	args := r.Called(ctx, shortCode)
	link, _ := args.Get(0).(*models.Link)
	return link, args.Error(1)
}

func (r *MockLinkRepository) FindByOwner(ctx context.Context, ownerID string) ([]models.Link, error) {
	args := r.Called(ctx, ownerID)
	links, _ := args.Get(0).([]models.Link)
	return links, args.Error(1)
}

func (r *MockLinkRepository) FindPublic(ctx context.Context, limit int) ([]models.Link, error) {
	args := r.Called(ctx, limit)
	links, _ := args.Get(0).([]models.Link)
	return links, args.Error(1)
}

func (r *MockLinkRepository) UpdateSlug(ctx context.Context, linkID, shortCode string, ownerID *string) (*models.Link, error) {
	args := r.Called(ctx, linkID, shortCode, ownerID)
	link, _ := args.Get(0).(*models.Link)
	return link, args.Error(1)
}

func (r *MockLinkRepository) Delete(ctx context.Context, linkID string, ownerID *string) error {
	args := r.Called(ctx, linkID, ownerID)
	return args.Error(0)
}

func (r *MockLinkRepository) RecordVisit(ctx context.Context, linkID string, info models.VisitorInfo) error {
	args := r.Called(ctx, linkID, info)
	return args.Error(0)
}

func (r *MockLinkRepository) VisitsSince(ctx context.Context, linkID string, since *time.Time) ([]models.Visit, error) {
	args := r.Called(ctx, linkID, since)
	visits, _ := args.Get(0).([]models.Visit)
	return visits, args.Error(1)
}

// stubDispatcher captures queued visit events synchronously.
type stubDispatcher struct {
	linkIDs []string
	infos   []models.VisitorInfo
}

func (d *stubDispatcher) Record(linkID string, info models.VisitorInfo) {
	d.linkIDs = append(d.linkIDs, linkID)
	d.infos = append(d.infos, info)
}

func setupLinkService(t *testing.T) (*LinkService, *MockLinkRepository, *stubDispatcher) {
	t.Helper()

	repoMock := new(MockLinkRepository)
	dispatcher := new(stubDispatcher)
	svc := NewLinkService(repoMock, NewCodeAllocator(repoMock, 6), dispatcher)

	t.Cleanup(func() {
		repoMock.AssertExpectations(t)
	})

	return svc, repoMock, dispatcher
}

var errUnknown = errors.New("unknown error")

func TestLinkService_Shorten(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid url", func(t *testing.T) {
		svc, _, _ := setupLinkService(t)

		link, err := svc.Shorten(ctx, "http://localhost/x", nil, nil)

		assert.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidURL)
		assert.Nil(t, link)
	})

	t.Run("unsafe url", func(t *testing.T) {
		svc, _, _ := setupLinkService(t)

		link, err := svc.Shorten(ctx, "javascript:alert(1)", nil, nil)

		assert.Error(t, err)
		assert.ErrorIs(t, err, ErrUnsafeURL)
		assert.Nil(t, link)
	})

	t.Run("random code with normalized url", func(t *testing.T) {
		svc, repoMock, _ := setupLinkService(t)

		repoMock.
			On("CodeTaken", ctx, mock.AnythingOfType("string")).
			Once().
			Return(false, nil)
		repoMock.
			On("Insert", ctx, mock.AnythingOfType("string"), "https://example.com/x", (*string)(nil), false).
			Once().
			Return(&models.Link{
				ID:          "link-1",
				ShortCode:   "abc234",
				OriginalURL: "https://example.com/x",
				IsActive:    true,
			}, nil)

		link, err := svc.Shorten(ctx, "example.com/x", nil, nil)

		assert.NoError(t, err)
		assert.NotNil(t, link)
		assert.Equal(t, "https://example.com/x", link.OriginalURL)
	})

	t.Run("insert race retries with a fresh code", func(t *testing.T) {
		svc, repoMock, _ := setupLinkService(t)

		repoMock.
			On("CodeTaken", ctx, mock.AnythingOfType("string")).
			Twice().
			Return(false, nil)
		repoMock.
			On("Insert", ctx, mock.AnythingOfType("string"), "https://example.com", (*string)(nil), false).
			Once().
			Return(nil, database.ErrCodeExists)
		repoMock.
			On("Insert", ctx, mock.AnythingOfType("string"), "https://example.com", (*string)(nil), false).
			Once().
			Return(&models.Link{ID: "link-1", ShortCode: "fresh2"}, nil)

		link, err := svc.Shorten(ctx, "https://example.com", nil, nil)

		assert.NoError(t, err)
		assert.NotNil(t, link)
	})

	t.Run("custom slug conflict", func(t *testing.T) {
		svc, repoMock, _ := setupLinkService(t)

		slug := "my-slug"
		repoMock.
			On("CodeTaken", ctx, "my-slug").
			Once().
			Return(true, nil)

		link, err := svc.Shorten(ctx, "https://example.com", &slug, nil)

		assert.Error(t, err)
		assert.ErrorIs(t, err, ErrSlugTaken)
		assert.Nil(t, link)
	})

	t.Run("custom slug loses the insert race", func(t *testing.T) {
		svc, repoMock, _ := setupLinkService(t)

		slug := "my-slug"
		repoMock.
			On("CodeTaken", ctx, "my-slug").
			Once().
			Return(false, nil)
		repoMock.
			On("Insert", ctx, "my-slug", "https://example.com", (*string)(nil), true).
			Once().
			Return(nil, database.ErrCodeExists)

		link, err := svc.Shorten(ctx, "https://example.com", &slug, nil)

		assert.Error(t, err)
		assert.ErrorIs(t, err, ErrSlugTaken)
		assert.Nil(t, link)
	})

	t.Run("custom slug stores the sanitized form with the owner", func(t *testing.T) {
		svc, repoMock, _ := setupLinkService(t)

		slug := "My-Slug"
		owner := &models.Identity{UserID: "user-1"}
		repoMock.
			On("CodeTaken", ctx, "my-slug").
			Once().
			Return(false, nil)
		repoMock.
			On("Insert", ctx, "my-slug", "https://example.com", &owner.UserID, true).
			Once().
			Return(&models.Link{ID: "link-1", ShortCode: "my-slug", OwnerID: &owner.UserID}, nil)

		link, err := svc.Shorten(ctx, "https://example.com", &slug, owner)

		assert.NoError(t, err)
		assert.NotNil(t, link)
		assert.Equal(t, "my-slug", link.ShortCode)
	})
}

func TestLinkService_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown code", func(t *testing.T) {
		svc, repoMock, dispatcher := setupLinkService(t)

		repoMock.
			On("FindActiveByCode", ctx, "ghost1").
			Once().
			Return(nil, database.ErrLinkNotFound)

		url, err := svc.Resolve(ctx, "ghost1", models.VisitorInfo{})

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrLinkNotFound)
		assert.Empty(t, url)
		assert.Empty(t, dispatcher.linkIDs)
	})

	t.Run("success queues a visit", func(t *testing.T) {
		svc, repoMock, dispatcher := setupLinkService(t)

		ua := "Mozilla/5.0 Chrome/120.0"
		repoMock.
			On("FindActiveByCode", ctx, "abc234").
			Once().
			Return(&models.Link{ID: "link-1", ShortCode: "abc234", OriginalURL: "https://example.com/x", IsActive: true}, nil)

		url, err := svc.Resolve(ctx, "abc234", models.VisitorInfo{UserAgent: &ua})

		assert.NoError(t, err)
		assert.Equal(t, "https://example.com/x", url)
		assert.Equal(t, []string{"link-1"}, dispatcher.linkIDs)
		assert.Equal(t, &ua, dispatcher.infos[0].UserAgent)
	})

	t.Run("storage error", func(t *testing.T) {
		svc, repoMock, _ := setupLinkService(t)

		repoMock.
			On("FindActiveByCode", ctx, "abc234").
			Once().
			Return(nil, errUnknown)

		url, err := svc.Resolve(ctx, "abc234", models.VisitorInfo{})

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.Empty(t, url)
	})
}

func TestLinkService_Links(t *testing.T) {
	ctx := context.Background()

	t.Run("anonymous callers see public links", func(t *testing.T) {
		svc, repoMock, _ := setupLinkService(t)

		repoMock.
			On("FindPublic", ctx, defaultPublicListLimit).
			Once().
			Return([]models.Link{{ID: "link-1"}}, nil)

		links, err := svc.Links(ctx, nil)

		assert.NoError(t, err)
		assert.Len(t, links, 1)
	})

	t.Run("authenticated callers see their own links", func(t *testing.T) {
		svc, repoMock, _ := setupLinkService(t)

		repoMock.
			On("FindByOwner", ctx, "user-1").
			Once().
			Return([]models.Link{{ID: "link-1"}, {ID: "link-2"}}, nil)

		links, err := svc.Links(ctx, &models.Identity{UserID: "user-1"})

		assert.NoError(t, err)
		assert.Len(t, links, 2)
	})
}

func TestLinkService_UpdateSlug(t *testing.T) {
	ctx := context.Background()
	caller := models.Identity{UserID: "user-1"}

	t.Run("invalid slug format", func(t *testing.T) {
		svc, _, _ := setupLinkService(t)

		link, err := svc.UpdateSlug(ctx, "link-1", "a!", caller)

		assert.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidSlug)
		assert.Nil(t, link)
	})

	t.Run("not owned is masked as not found", func(t *testing.T) {
		svc, repoMock, _ := setupLinkService(t)

		repoMock.
			On("CodeTaken", ctx, "new-slug").
			Once().
			Return(false, nil)
		repoMock.
			On("UpdateSlug", ctx, "link-1", "new-slug", &caller.UserID).
			Once().
			Return(nil, database.ErrLinkNotFound)

		link, err := svc.UpdateSlug(ctx, "link-1", "new-slug", caller)

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrLinkNotFound)
		assert.Nil(t, link)
	})

	t.Run("update race surfaces as conflict", func(t *testing.T) {
		svc, repoMock, _ := setupLinkService(t)

		repoMock.
			On("CodeTaken", ctx, "new-slug").
			Once().
			Return(false, nil)
		repoMock.
			On("UpdateSlug", ctx, "link-1", "new-slug", &caller.UserID).
			Once().
			Return(nil, database.ErrCodeExists)

		link, err := svc.UpdateSlug(ctx, "link-1", "new-slug", caller)

		assert.Error(t, err)
		assert.ErrorIs(t, err, ErrSlugTaken)
		assert.Nil(t, link)
	})

	t.Run("success", func(t *testing.T) {
		svc, repoMock, _ := setupLinkService(t)

		repoMock.
			On("CodeTaken", ctx, "new-slug").
			Once().
			Return(false, nil)
		repoMock.
			On("UpdateSlug", ctx, "link-1", "new-slug", &caller.UserID).
			Once().
			Return(&models.Link{ID: "link-1", ShortCode: "new-slug", IsCustomSlug: true}, nil)

		link, err := svc.UpdateSlug(ctx, "link-1", "New-Slug", caller)

		assert.NoError(t, err)
		assert.NotNil(t, link)
		assert.Equal(t, "new-slug", link.ShortCode)
	})
}

func TestLinkService_Delete(t *testing.T) {
	ctx := context.Background()
	caller := models.Identity{UserID: "user-1"}

	t.Run("not found", func(t *testing.T) {
		svc, repoMock, _ := setupLinkService(t)

		repoMock.
			On("Delete", ctx, "link-1", &caller.UserID).
			Once().
			Return(database.ErrLinkNotFound)

		err := svc.Delete(ctx, "link-1", caller)

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrLinkNotFound)
	})

	t.Run("success", func(t *testing.T) {
		svc, repoMock, _ := setupLinkService(t)

		repoMock.
			On("Delete", ctx, "link-1", &caller.UserID).
			Once().
			Return(nil)

		err := svc.Delete(ctx, "link-1", caller)

		assert.NoError(t, err)
	})
}

func TestLinkService_Analytics(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	t.Run("unknown code", func(t *testing.T) {
		svc, repoMock, _ := setupLinkService(t)

		repoMock.
			On("FindByCode", ctx, "ghost1").
			Once().
			Return(nil, database.ErrLinkNotFound)

		snapshot, err := svc.Analytics(ctx, "ghost1", nil, now)

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrLinkNotFound)
		assert.Nil(t, snapshot)
	})

	t.Run("owned link hidden from anonymous callers", func(t *testing.T) {
		svc, repoMock, _ := setupLinkService(t)

		ownerID := "user-1"
		repoMock.
			On("FindByCode", ctx, "abc234").
			Once().
			Return(&models.Link{ID: "link-1", OwnerID: &ownerID}, nil)

		snapshot, err := svc.Analytics(ctx, "abc234", nil, now)

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrLinkNotFound)
		assert.Nil(t, snapshot)
	})

	t.Run("owned link hidden from other users", func(t *testing.T) {
		svc, repoMock, _ := setupLinkService(t)

		ownerID := "user-1"
		repoMock.
			On("FindByCode", ctx, "abc234").
			Once().
			Return(&models.Link{ID: "link-1", OwnerID: &ownerID}, nil)

		snapshot, err := svc.Analytics(ctx, "abc234", &models.Identity{UserID: "user-2"}, now)

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrLinkNotFound)
		assert.Nil(t, snapshot)
	})

	t.Run("owner sees the aggregated history", func(t *testing.T) {
		svc, repoMock, _ := setupLinkService(t)

		ownerID := "user-1"
		repoMock.
			On("FindByCode", ctx, "abc234").
			Once().
			Return(&models.Link{ID: "link-1", OwnerID: &ownerID}, nil)
		repoMock.
			On("VisitsSince", ctx, "link-1", (*time.Time)(nil)).
			Once().
			Return([]models.Visit{
				{LinkID: "link-1", VisitedAt: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)},
				{LinkID: "link-1", VisitedAt: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
				{LinkID: "link-1", VisitedAt: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)},
			}, nil)

		snapshot, err := svc.Analytics(ctx, "abc234", &models.Identity{UserID: "user-1"}, now)

		assert.NoError(t, err)
		assert.NotNil(t, snapshot)
		assert.Equal(t, int64(3), snapshot.TotalVisits)
		assert.Equal(t, []models.DailyCount{
			{Date: "2024-01-01", Visits: 2},
			{Date: "2024-01-02", Visits: 1},
		}, snapshot.DailyVisits)
	})

	t.Run("ownerless link is public", func(t *testing.T) {
		svc, repoMock, _ := setupLinkService(t)

		repoMock.
			On("FindByCode", ctx, "abc234").
			Once().
			Return(&models.Link{ID: "link-1"}, nil)
		repoMock.
			On("VisitsSince", ctx, "link-1", (*time.Time)(nil)).
			Once().
			Return(nil, nil)

		snapshot, err := svc.Analytics(ctx, "abc234", nil, now)

		assert.NoError(t, err)
		assert.NotNil(t, snapshot)
		assert.Zero(t, snapshot.TotalVisits)
	})
}
