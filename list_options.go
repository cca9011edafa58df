package main

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// SortType is the direction of a listing, as given by an admin API client.
type SortType string

const (
	SortTypeAscending  SortType = "asc"
	SortTypeDescending SortType = "desc"
)

// ToString returns the SQL keyword for s.
func (s SortType) ToString() string {
	return strings.ToUpper(string(s))
}

// ParseSortType accepts "asc" or "desc" in any case. An empty string yields nil.
func ParseSortType(raw string) (*SortType, error) {
	if raw == "" {
		return nil, nil
	}
	st := SortType(strings.ToLower(raw))
	if st != SortTypeAscending && st != SortTypeDescending {
		return nil, fmt.Errorf("invalid sort type %q", raw)
	}
	return &st, nil
}

// Page sizes for request and session history listings. The export command
// walks the full history in MaxLimit pages.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// ListOptions pages and orders a history listing.
type ListOptions struct {
	Offset uint32    `json:"offset,omitempty" form:"offset"`
	Limit  uint32    `json:"limit,omitempty" form:"limit"`
	Sort   *SortType `json:"sort,omitempty" form:"-"` // asc or desc
}

// pageBounds returns the offset and limit for options. A zero limit means
// DefaultLimit and anything above MaxLimit is capped.
func (o ListOptions) pageBounds() (offset, limit int) {
	limit = int(o.Limit)
	switch {
	case limit == 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return int(o.Offset), limit
}

// applyListOptions orders db by sortBy and pages it. Without options the
// query is ordered by defaultSort and left unbounded.
func applyListOptions(db *gorm.DB, sortBy string, defaultSort SortType, options *ListOptions) *gorm.DB {
	direction := defaultSort
	if options != nil && options.Sort != nil {
		direction = *options.Sort
	}
	db = db.Order(sortBy + " " + direction.ToString())
	if options == nil {
		return db
	}

	offset, limit := options.pageBounds()
	return db.Offset(offset).Limit(limit)
}
