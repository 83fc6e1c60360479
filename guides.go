package guides

import (
	"context"
	"errors"
	"strings"

	"github.com/wosguides/guides/api"
	"github.com/wosguides/guides/localization"
	"github.com/wosguides/guides/query"
)

// ErrEmptyID is returned by single item reads called without an id.
var ErrEmptyID = errors.New("guides: empty id")

// Categories returns every category, served from the offline cache when present.
func (s *Service) Categories(ctx context.Context) ([]api.Category, error) {
	return query.Fetch(ctx, s.queries, KeyCategories(), s.api.Categories)
}

func (s *Service) Category(ctx context.Context, id string) (*api.Category, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	return query.Fetch(ctx, s.queries, KeyCategory(id), func(ctx context.Context) (*api.Category, error) {
		return s.api.Category(ctx, id)
	})
}

func (s *Service) Subcategories(ctx context.Context, parentID string) ([]api.Category, error) {
	if parentID == "" {
		return nil, ErrEmptyID
	}
	return query.Fetch(ctx, s.queries, KeySubcategories(parentID), func(ctx context.Context) ([]api.Category, error) {
		return s.api.Subcategories(ctx, parentID)
	})
}

func (s *Service) Guides(ctx context.Context) ([]api.Guide, error) {
	return query.Fetch(ctx, s.queries, KeyGuides(), s.api.Guides)
}

func (s *Service) Guide(ctx context.Context, id string) (*api.Guide, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	return query.Fetch(ctx, s.queries, KeyGuide(id), func(ctx context.Context) (*api.Guide, error) {
		return s.api.Guide(ctx, id)
	})
}

func (s *Service) GuidesByCategory(ctx context.Context, categoryID string) ([]api.Guide, error) {
	if categoryID == "" {
		return nil, ErrEmptyID
	}
	return query.Fetch(ctx, s.queries, KeyGuidesByCategory(categoryID), func(ctx context.Context) ([]api.Guide, error) {
		return s.api.GuidesByCategory(ctx, categoryID)
	})
}

// SearchGuides returns guides matching q. A blank query yields no results and is not cached.
func (s *Service) SearchGuides(ctx context.Context, q string) ([]api.Guide, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []api.Guide{}, nil
	}
	return query.Fetch(ctx, s.queries, KeySearchGuides(q), func(ctx context.Context) ([]api.Guide, error) {
		return s.api.SearchGuides(ctx, q)
	})
}

// CreateCategory requires connectivity and refreshes the category lists once it succeeds.
// The returned category is cached for its detail read.
func (s *Service) CreateCategory(ctx context.Context, req api.CreateCategoryRequest) (*api.Category, error) {
	category, err := query.Mutate(ctx, s.queries, func(ctx context.Context) (*api.Category, error) {
		return s.api.CreateCategory(ctx, req)
	}, KeyCategories())
	if err != nil || category == nil {
		return category, err
	}
	s.remember(ctx, KeyCategory(category.ID), category)
	return category, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id string, req api.UpdateCategoryRequest) (*api.Category, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	category, err := query.Mutate(ctx, s.queries, func(ctx context.Context) (*api.Category, error) {
		return s.api.UpdateCategory(ctx, id, req)
	}, KeyCategories(), KeyGuides())
	if err != nil || category == nil {
		return category, err
	}
	s.remember(ctx, KeyCategory(id), category)
	return category, nil
}

func (s *Service) CreateGuide(ctx context.Context, req api.CreateGuideRequest) (*api.Guide, error) {
	guide, err := query.Mutate(ctx, s.queries, func(ctx context.Context) (*api.Guide, error) {
		return s.api.CreateGuide(ctx, req)
	}, KeyGuides())
	if err != nil || guide == nil {
		return guide, err
	}
	s.remember(ctx, KeyGuide(guide.ID), guide)
	return guide, nil
}

func (s *Service) UpdateGuide(ctx context.Context, id string, req api.UpdateGuideRequest) (*api.Guide, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	guide, err := query.Mutate(ctx, s.queries, func(ctx context.Context) (*api.Guide, error) {
		return s.api.UpdateGuide(ctx, id, req)
	}, KeyGuides())
	if err != nil || guide == nil {
		return guide, err
	}
	s.remember(ctx, KeyGuide(id), guide)
	return guide, nil
}

// remember caches what a mutation returned under its detail key, after the list
// invalidation, so the detail screen opens without a round trip.
func (s *Service) remember(ctx context.Context, key query.Key, value any) {
	if key[len(key)-1] == "" {
		return
	}
	if err := query.Set(ctx, s.queries, key, value); err != nil {
		s.Log(ctx).WithError(err).WithField("query", key.String()).Warn("could not cache mutation result")
	}
}

// Resolve picks the display string of t in the active language.
func (s *Service) Resolve(ctx context.Context, t localization.Text) string {
	return s.languages.Resolve(ctx, t)
}

func (s *Service) Translate(ctx context.Context, messageID string) string {
	return s.languages.Translate(ctx, messageID)
}

func (s *Service) Language() string {
	return s.languages.Language()
}

// ChangeLanguage persists and activates code, then aligns the layout direction.
// It reports whether the app must restart for the new direction to apply.
// Cached queries are kept; they refresh on the next invalidation.
func (s *Service) ChangeLanguage(ctx context.Context, code string) bool {
	s.languages.ChangeLanguage(ctx, code)
	return s.languages.UpdateRTLBasedOnLanguage(ctx)
}

func (s *Service) IsOnboardingCompleted(ctx context.Context) bool {
	return s.onboarding.IsCompleted(ctx)
}

func (s *Service) CompleteOnboarding(ctx context.Context) error {
	return s.onboarding.SetCompleted(ctx)
}

// Refresh marks every cached query stale and refetches them in the background.
func (s *Service) Refresh(ctx context.Context) int {
	return s.queries.Invalidate(ctx, nil)
}

// ClearCache drops the in-memory and the persisted offline cache.
func (s *Service) ClearCache(ctx context.Context) error {
	return s.queries.Clear(ctx)
}
