package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wosguides/guides/localization"
)

// Category is a guide category. Name and Description may be plain or localized.
type Category struct {
	ID             string            `json:"_id"`
	Name           localization.Text `json:"name"`
	Description    localization.Text `json:"description,omitzero"`
	ParentCategory *string           `json:"parentCategory,omitempty"`
	IsActive       bool              `json:"isActive"`
	CreatedAt      time.Time         `json:"createdAt,omitzero"`
	UpdatedAt      time.Time         `json:"updatedAt,omitzero"`
	Version        int               `json:"__v,omitempty"`
}

// HasParent reports whether the category is a subcategory.
func (c Category) HasParent() bool {
	return c.ParentCategory != nil && *c.ParentCategory != ""
}

// Guide is a single guide. Its category is either an id or the populated category.
type Guide struct {
	ID          string            `json:"_id"`
	Title       localization.Text `json:"title"`
	HTMLContent string            `json:"htmlContent"`
	Category    CategoryRef       `json:"category"`
	Tags        []string          `json:"tags,omitempty"`
	IsActive    bool              `json:"isActive"`
	CreatedAt   time.Time         `json:"createdAt,omitzero"`
	UpdatedAt   time.Time         `json:"updatedAt,omitzero"`
	Version     int               `json:"__v,omitempty"`
}

// CategoryRef references a category by id or carries the populated category.
type CategoryRef struct {
	ID       string
	Category *Category
}

func CategoryID(id string) CategoryRef {
	return CategoryRef{ID: id}
}

func PopulatedCategory(c Category) CategoryRef {
	return CategoryRef{ID: c.ID, Category: &c}
}

// IsPopulated reports whether the full category object is present.
func (r CategoryRef) IsPopulated() bool {
	return r.Category != nil
}

func (r *CategoryRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*r = CategoryRef{}
		return nil
	case data[0] == '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = CategoryID(id)
		return nil
	case data[0] == '{':
		var c Category
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		*r = PopulatedCategory(c)
		return nil
	default:
		return fmt.Errorf("api: category must be an id or an object, got %s", data)
	}
}

func (r CategoryRef) MarshalJSON() ([]byte, error) {
	switch {
	case r.Category != nil:
		return json.Marshal(r.Category)
	case r.ID != "":
		return json.Marshal(r.ID)
	default:
		return []byte("null"), nil
	}
}

type CreateCategoryRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	ParentCategory string `json:"parentCategory,omitempty"`
}

type UpdateCategoryRequest struct {
	Name           *string `json:"name,omitempty"`
	Description    *string `json:"description,omitempty"`
	ParentCategory *string `json:"parentCategory,omitempty"`
	IsActive       *bool   `json:"isActive,omitempty"`
}

type CreateGuideRequest struct {
	Title       string   `json:"title"`
	HTMLContent string   `json:"htmlContent"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags,omitempty"`
}

type UpdateGuideRequest struct {
	Title       *string  `json:"title,omitempty"`
	HTMLContent *string  `json:"htmlContent,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	IsActive    *bool    `json:"isActive,omitempty"`
}

// ErrorPayload is the body the server sends with non-success statuses.
type ErrorPayload struct {
	Message    string `json:"message"`
	Error      string `json:"error,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
}
