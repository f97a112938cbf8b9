// Package memstore is an in-memory storage for tests and ephemeral agents.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/findy-network/findy-agent-core/agent/storage/api"
)

type Store struct {
	l     sync.RWMutex
	items map[string]map[string]api.Item
}

func New() *Store {
	return &Store{items: make(map[string]map[string]api.Item)}
}

func (s *Store) Save(_ context.Context, item api.Item) error {
	s.l.Lock()
	defer s.l.Unlock()

	bucket, ok := s.items[item.Type]
	if !ok {
		bucket = make(map[string]api.Item)
		s.items[item.Type] = bucket
	}
	bucket[item.ID] = clone(item)
	return nil
}

func (s *Store) Get(_ context.Context, typ, id string) (*api.Item, error) {
	s.l.RLock()
	defer s.l.RUnlock()

	item, ok := s.items[typ][id]
	if !ok {
		return nil, api.ErrNotFound
	}
	c := clone(item)
	return &c, nil
}

// Query returns the matching items in ID order.
func (s *Store) Query(_ context.Context, typ string, filter api.TagFilter) ([]api.Item, error) {
	s.l.RLock()
	defer s.l.RUnlock()

	res := make([]api.Item, 0)
	for _, item := range s.items[typ] {
		if filter.Match(item.Tags) {
			res = append(res, clone(item))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *Store) Delete(_ context.Context, typ, id string) error {
	s.l.Lock()
	defer s.l.Unlock()

	if _, ok := s.items[typ][id]; !ok {
		return api.ErrNotFound
	}
	delete(s.items[typ], id)
	return nil
}

func (s *Store) Close() error {
	return nil
}

func clone(item api.Item) api.Item {
	c := api.Item{
		Type:  item.Type,
		ID:    item.ID,
		Value: append([]byte(nil), item.Value...),
		Tags:  make(map[string]string, len(item.Tags)),
	}
	for k, v := range item.Tags {
		c.Tags[k] = v
	}
	return c
}
