package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/tinnou/graphom/pkg/errors"
)

type Movie struct {
	ID       string `graph:"id"`
	Title    string `graph:"prop,name=title"`
	Released int
	TopActor *Actor   `graph:"rel,type=TOP_ACTOR,direction=outgoing"`
	Cast     []*Actor `graph:"rel,type=ACTS_IN,direction=incoming"`
	internal string   //nolint:unused // unexported fields are ignored
}

type Actor struct {
	ID     string `graph:"id"`
	Name   string
	Movies []*Movie `graph:"rel,type=ACTS_IN"`
}

type Film struct {
	ID string `graph:"id"`
}

func (Film) GraphLabel() string { return "Movie" }

func TestRegisterResolvesMetadata(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Movie{}))

	nt, err := r.Lookup(&Movie{})
	require.NoError(t, err)

	assert.Equal(t, "Movie", nt.Label)
	require.Len(t, nt.Properties, 2)
	assert.Equal(t, "title", nt.Properties[0].Name)
	assert.Equal(t, "released", nt.Properties[1].Name)

	require.Len(t, nt.Relationships, 2)
	assert.Equal(t, "TOP_ACTOR", nt.Relationships[0].Type)
	assert.Equal(t, Outgoing, nt.Relationships[0].Direction)
	assert.False(t, nt.Relationships[0].Collection)
	assert.Equal(t, "ACTS_IN", nt.Relationships[1].Type)
	assert.Equal(t, Incoming, nt.Relationships[1].Direction)
	assert.True(t, nt.Relationships[1].Collection)
}

func TestRegisterFollowsRelationshipTargets(t *testing.T) {
	r := NewRegistry()
	// Registering Movie must also register Actor, despite the
	// Movie <-> Actor reference cycle.
	require.NoError(t, r.Register(&Movie{}))

	nt, err := r.Lookup(&Actor{})
	require.NoError(t, err)
	assert.Equal(t, "Actor", nt.Label)

	byLabel, ok := r.ByLabel("Actor")
	require.True(t, ok)
	assert.Same(t, nt, byLabel)
}

func TestDefaultRelationshipType(t *testing.T) {
	type Person struct {
		ID         string  `graph:"id"`
		BestFriend *Person `graph:"rel"`
	}
	r := NewRegistry()
	require.NoError(t, r.Register(&Person{}))

	nt, err := r.Lookup(&Person{})
	require.NoError(t, err)
	require.Len(t, nt.Relationships, 1)
	assert.Equal(t, "BEST_FRIEND", nt.Relationships[0].Type)
}

func TestLabelOverride(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Film{}))

	nt, ok := r.ByLabel("Movie")
	require.True(t, ok)
	assert.Equal(t, "Film", nt.GoType.Name())
}

func TestIdentityAccess(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Movie{}))
	nt, err := r.Lookup(&Movie{})
	require.NoError(t, err)

	m := &Movie{}
	assert.Empty(t, nt.IdentityOf(m))

	nt.SetIdentity(m, "4:abc:17")
	assert.Equal(t, "4:abc:17", nt.IdentityOf(m))
	assert.Equal(t, "4:abc:17", m.ID)
}

func TestPropertyValues(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Movie{}))
	nt, err := r.Lookup(&Movie{})
	require.NoError(t, err)

	props := nt.PropertyValues(&Movie{Title: "Heat", Released: 1995})
	assert.Equal(t, map[string]any{"title": "Heat", "released": 1995}, props)
}

func TestRelatedAndSetRelated(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Movie{}))
	nt, err := r.Lookup(&Movie{})
	require.NoError(t, err)

	actor := &Actor{Name: "Pacino"}
	m := &Movie{TopActor: actor, Cast: []*Actor{actor, nil}}

	single := nt.Related(m, nt.Relationships[0])
	require.Len(t, single, 1)
	assert.Same(t, actor, single[0])

	// nil slice elements are dropped
	many := nt.Related(m, nt.Relationships[1])
	assert.Len(t, many, 1)

	require.NoError(t, nt.SetRelated(m, nt.Relationships[0], nil))
	assert.Nil(t, m.TopActor)

	other := &Actor{Name: "De Niro"}
	require.NoError(t, nt.SetRelated(m, nt.Relationships[1], []any{actor, other}))
	assert.Len(t, m.Cast, 2)
}

func TestRegisterRejectsBadTypes(t *testing.T) {
	type NoID struct {
		Name string
	}
	type IntID struct {
		ID int `graph:"id"`
	}
	type BadRel struct {
		ID   string `graph:"id"`
		Next string `graph:"rel"`
	}

	tests := []struct {
		name  string
		proto any
	}{
		{"missing identity field", &NoID{}},
		{"non-string identity", &IntID{}},
		{"scalar relationship field", &BadRel{}},
		{"non-struct entity", "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().Register(tt.proto)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidation(err))
		})
	}
}

func TestLookupUnregistered(t *testing.T) {
	_, err := NewRegistry().Lookup(&Movie{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}
