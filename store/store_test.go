package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeRef(t *testing.T) {
	persisted := NodeRef{Identity: "4:abc:1"}
	assert.False(t, persisted.IsNew())
	assert.Equal(t, "4:abc:1", persisted.Key())

	fresh := NodeRef{Local: "n0"}
	assert.True(t, fresh.IsNew())
	assert.Equal(t, "n0", fresh.Key())
}

func TestWriteRequestIsEmpty(t *testing.T) {
	assert.True(t, (&WriteRequest{ID: "req-1"}).IsEmpty())
	assert.False(t, (&WriteRequest{Deletes: []string{"4:abc:1"}}).IsEmpty())
	assert.False(t, (&WriteRequest{Upserts: []NodeUpsert{{}}}).IsEmpty())
}
