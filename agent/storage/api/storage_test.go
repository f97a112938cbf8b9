package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagFilter_Match(t *testing.T) {
	tags := map[string]string{"state": "active", "my_did": "D1"}
	tests := []struct {
		name   string
		filter TagFilter
		want   bool
	}{
		{"empty", nil, true},
		{"one", TagFilter{"state": "active"}, true},
		{"all", TagFilter{"state": "active", "my_did": "D1"}, true},
		{"wrong value", TagFilter{"state": "invitation"}, false},
		{"missing tag", TagFilter{"their_did": "D2"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(tags))
		})
	}
}
