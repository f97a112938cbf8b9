package memstore

import (
	"context"
	"testing"

	"github.com/findy-network/findy-agent-core/agent/storage/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Save(ctx, api.Item{Type: "conn", ID: "2", Value: []byte("b"),
		Tags: map[string]string{"state": "active"}}))
	require.NoError(t, s.Save(ctx, api.Item{Type: "conn", ID: "1", Value: []byte("a"),
		Tags: map[string]string{"state": "invitation"}}))

	item, err := s.Get(ctx, "conn", "1")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), item.Value)

	item.Value[0] = 'x'
	item, _ = s.Get(ctx, "conn", "1")
	assert.Equal(t, []byte("a"), item.Value, "stored value must not be shared")

	all, err := s.Query(ctx, "conn", nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "1", all[0].ID)

	active, err := s.Query(ctx, "conn", api.TagFilter{"state": "active"})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "2", active[0].ID)

	_, err = s.Get(ctx, "other", "1")
	assert.ErrorIs(t, err, api.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "conn", "1"))
	assert.ErrorIs(t, s.Delete(ctx, "conn", "1"), api.ErrNotFound)
}
