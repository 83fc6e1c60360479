package guides

import (
	"context"
	"strings"

	"github.com/wosguides/guides/api"
	"github.com/wosguides/guides/query"
)

const (
	segmentCategories    = "categories"
	segmentSubcategories = "subcategories"
	segmentGuides        = "guides"
	segmentCategory      = "category"
	segmentSearch        = "search"
)

func KeyCategories() query.Key {
	return query.NewKey(segmentCategories)
}

func KeyCategory(id string) query.Key {
	return query.NewKey(segmentCategories, id)
}

func KeySubcategories(parentID string) query.Key {
	return query.NewKey(segmentCategories, parentID, segmentSubcategories)
}

func KeyGuides() query.Key {
	return query.NewKey(segmentGuides)
}

func KeyGuide(id string) query.Key {
	return query.NewKey(segmentGuides, id)
}

func KeyGuidesByCategory(categoryID string) query.Key {
	return query.NewKey(segmentGuides, segmentCategory, categoryID)
}

func KeySearchGuides(q string) query.Key {
	return query.NewKey(segmentGuides, segmentSearch, strings.TrimSpace(q))
}

// resolve maps a cache key back to the API call that produces it, so entries restored from
// disk can be refreshed before any screen asks for them again.
func (s *Service) resolve(key query.Key) (query.RawFetcher, bool) {
	switch {
	case len(key) == 1 && key[0] == segmentCategories:
		return query.Raw(s.api.Categories), true
	case len(key) == 2 && key[0] == segmentCategories:
		id := key[1]
		return query.Raw(func(ctx context.Context) (*api.Category, error) {
			return s.api.Category(ctx, id)
		}), true
	case len(key) == 3 && key[0] == segmentCategories && key[2] == segmentSubcategories:
		id := key[1]
		return query.Raw(func(ctx context.Context) ([]api.Category, error) {
			return s.api.Subcategories(ctx, id)
		}), true
	case len(key) == 1 && key[0] == segmentGuides:
		return query.Raw(s.api.Guides), true
	case len(key) == 3 && key[0] == segmentGuides && key[1] == segmentCategory:
		id := key[2]
		return query.Raw(func(ctx context.Context) ([]api.Guide, error) {
			return s.api.GuidesByCategory(ctx, id)
		}), true
	case len(key) == 3 && key[0] == segmentGuides && key[1] == segmentSearch:
		q := key[2]
		return query.Raw(func(ctx context.Context) ([]api.Guide, error) {
			return s.api.SearchGuides(ctx, q)
		}), true
	case len(key) == 2 && key[0] == segmentGuides:
		id := key[1]
		return query.Raw(func(ctx context.Context) (*api.Guide, error) {
			return s.api.Guide(ctx, id)
		}), true
	}
	return nil, false
}
