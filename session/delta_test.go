package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinnou/graphom/schema"
)

func deltaFixture(t *testing.T) (*schema.Registry, *deltaComputer) {
	t.Helper()
	registry := schema.NewRegistry()
	require.NoError(t, registry.Register(&Movie{}))
	return registry, &deltaComputer{registry: registry}
}

func TestDiffNewEntity(t *testing.T) {
	registry, dc := deltaFixture(t)
	nt, err := registry.Lookup(&Movie{})
	require.NoError(t, err)

	movie := &Movie{Title: "Heat", TopActor: &Actor{Name: "Pacino"}}
	d, err := dc.diff(nt, movie, nil, false)
	require.NoError(t, err)

	assert.False(t, d.IsEmpty())
	assert.Empty(t, d.Identity)
	assert.Equal(t, map[string]any{"title": "Heat", "released": 0}, d.Props)
	require.Len(t, d.Added, 1)
	assert.Equal(t, "TOP_ACTOR", d.Added[0].Rel.Type)
	assert.Empty(t, d.Added[0].Target.Identity)
	assert.Empty(t, d.Removed)
}

func TestDiffNewEntityWithZeroValuesIsNotEmpty(t *testing.T) {
	registry, dc := deltaFixture(t)
	nt, _ := registry.Lookup(&Movie{})

	d, err := dc.diff(nt, &Movie{}, nil, false)
	require.NoError(t, err)
	assert.False(t, d.IsEmpty(), "a new node must be created even with all-zero properties")
}

func TestDiffUnchangedEntityIsEmpty(t *testing.T) {
	registry, dc := deltaFixture(t)
	nt, _ := registry.Lookup(&Movie{})

	movie := &Movie{ID: "mem:1", Title: "Heat", Released: 1995}
	snap, err := captureSnapshot(registry, nt, movie)
	require.NoError(t, err)

	d, err := dc.diff(nt, movie, snap, false)
	require.NoError(t, err)
	assert.True(t, d.IsEmpty())
}

func TestDiffPropertyChange(t *testing.T) {
	registry, dc := deltaFixture(t)
	nt, _ := registry.Lookup(&Movie{})

	movie := &Movie{ID: "mem:1", Title: "Heat", Released: 1995}
	snap, err := captureSnapshot(registry, nt, movie)
	require.NoError(t, err)

	movie.Title = "Heat 2"
	d, err := dc.diff(nt, movie, snap, false)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"title": "Heat 2"}, d.Props)
	assert.Empty(t, d.Added)
	assert.Empty(t, d.Removed)
}

func TestDiffRelationshipAdditionAndRemoval(t *testing.T) {
	registry, dc := deltaFixture(t)
	nt, _ := registry.Lookup(&Movie{})

	old := &Actor{ID: "mem:2", Name: "Pacino"}
	movie := &Movie{ID: "mem:1", Title: "Heat", TopActor: old}
	snap, err := captureSnapshot(registry, nt, movie)
	require.NoError(t, err)

	movie.TopActor = &Actor{ID: "mem:3", Name: "De Niro"}
	d, err := dc.diff(nt, movie, snap, false)
	require.NoError(t, err)

	require.Len(t, d.Added, 1)
	assert.Equal(t, "mem:3", d.Added[0].Target.Identity)
	require.Len(t, d.Removed, 1)
	assert.Equal(t, "mem:2", d.Removed[0].Target.Identity)
	assert.Empty(t, d.Props)
}

func TestDiffPropsOnlySkipsRelationships(t *testing.T) {
	registry, dc := deltaFixture(t)
	nt, _ := registry.Lookup(&Movie{})

	movie := &Movie{ID: "mem:1", Title: "Heat"}
	snap, err := captureSnapshot(registry, nt, movie)
	require.NoError(t, err)

	movie.Title = "Heat 2"
	movie.TopActor = &Actor{Name: "Pacino"}
	d, err := dc.diff(nt, movie, snap, true)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"title": "Heat 2"}, d.Props)
	assert.Empty(t, d.Added)
}

func TestApplyDeltaKeepsExcludedChangesPending(t *testing.T) {
	// a props-only delta applied over a snapshot must not record the
	// relationship state the save skipped
	registry, dc := deltaFixture(t)
	nt, _ := registry.Lookup(&Movie{})

	movie := &Movie{ID: "mem:1", Title: "Heat"}
	prev, err := captureSnapshot(registry, nt, movie)
	require.NoError(t, err)

	movie.Title = "Heat 2"
	movie.TopActor = &Actor{ID: "mem:2", Name: "Pacino"}
	d, err := dc.diff(nt, movie, prev, true)
	require.NoError(t, err)

	next := applyDelta(prev, d, "mem:1")
	assert.Equal(t, "Heat 2", next.Props["title"])
	assert.False(t, next.hasRel("TOP_ACTOR|OUTGOING", "mem:2"))

	// the next full diff still sees the pending addition
	d2, err := dc.diff(nt, movie, next, false)
	require.NoError(t, err)
	require.Len(t, d2.Added, 1)
	assert.Equal(t, "mem:2", d2.Added[0].Target.Identity)
}

func TestApplyDeltaDoesNotMutatePrevious(t *testing.T) {
	registry, dc := deltaFixture(t)
	nt, _ := registry.Lookup(&Movie{})

	movie := &Movie{ID: "mem:1", Title: "Heat", TopActor: &Actor{ID: "mem:2", Name: "Pacino"}}
	prev, err := captureSnapshot(registry, nt, movie)
	require.NoError(t, err)

	movie.Title = "Heat 2"
	movie.TopActor = nil
	d, err := dc.diff(nt, movie, prev, false)
	require.NoError(t, err)

	next := applyDelta(prev, d, "mem:1")

	assert.Equal(t, "Heat", prev.Props["title"])
	assert.True(t, prev.hasRel("TOP_ACTOR|OUTGOING", "mem:2"))
	assert.Equal(t, "Heat 2", next.Props["title"])
	assert.False(t, next.hasRel("TOP_ACTOR|OUTGOING", "mem:2"))
}

func TestCaptureSnapshotSkipsIdentitylessTargets(t *testing.T) {
	registry, _ := deltaFixture(t)
	nt, _ := registry.Lookup(&Movie{})

	movie := &Movie{ID: "mem:1", Title: "Heat", TopActor: &Actor{Name: "Pacino"}}
	snap, err := captureSnapshot(registry, nt, movie)
	require.NoError(t, err)

	assert.Empty(t, snap.relSet("TOP_ACTOR|OUTGOING"))
}
