package model

import (
	"fmt"
	"time"
)

// CategoryRef names a taxonomy entry by its (category, subcategory) pair.
type CategoryRef struct {
	Category    string `json:"category" yaml:"category"`
	Subcategory string `json:"subcategory" yaml:"subcategory"`
}

// String renders the pair as "Category / Subcategory".
func (r CategoryRef) String() string {
	return fmt.Sprintf("%s / %s", r.Category, r.Subcategory)
}

// Category represents a taxonomy entry.
type Category struct {
	CreatedAt       time.Time
	Name            string
	Subcategory     string
	ID              int64
	SystemGenerated bool // Created at runtime from advisory evidence
	Approved        bool // Confirmed by a user
}

// Ref returns the category's (category, subcategory) pair.
func (c Category) Ref() CategoryRef {
	return CategoryRef{Category: c.Name, Subcategory: c.Subcategory}
}

// CategoryCount is a category with the number of transactions assigned to it.
type CategoryCount struct {
	CategoryRef `yaml:",inline"`
	CategoryID  int64 `yaml:"category_id"`
	Count       int   `yaml:"count"`
}
