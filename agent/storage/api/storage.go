// Package api defines the storage collaborator of the agent. Records are
// stored as opaque values with string tags which can be queried by equality.
package api

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("record not found")

// Item is a stored record. Type selects the bucket/table and ID is unique
// inside the type.
type Item struct {
	Type  string
	ID    string
	Value []byte
	Tags  map[string]string
}

// TagFilter matches items which have all of the tags with the same values.
// Empty filter matches all.
type TagFilter map[string]string

// Match tells if the tags pass the filter.
func (f TagFilter) Match(tags map[string]string) bool {
	for k, v := range f {
		if tv, ok := tags[k]; !ok || tv != v {
			return false
		}
	}
	return true
}

// Storage is the record storage of the agent. Save replaces the whole item.
type Storage interface {
	Save(ctx context.Context, item Item) error
	Get(ctx context.Context, typ, id string) (*Item, error)
	Query(ctx context.Context, typ string, filter TagFilter) ([]Item, error)
	Delete(ctx context.Context, typ, id string) error
	Close() error
}
