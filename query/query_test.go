package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/tinnou/graphom/pkg/errors"
)

func TestRawPassesThroughVerbatim(t *testing.T) {
	q := NewRaw("MATCH (n:Movie) WHERE n.title = $title RETURN n", map[string]any{"title": "Heat"})

	text, params, err := q.Cypher()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n:Movie) WHERE n.title = $title RETURN n", text)
	assert.Equal(t, map[string]any{"title": "Heat"}, params)
}

func TestRawNilParamsBecomeEmptyMap(t *testing.T) {
	_, params, err := NewRaw("RETURN 1", nil).Cypher()
	require.NoError(t, err)
	assert.NotNil(t, params)
	assert.Empty(t, params)
}

func TestRawRejectsEmptyText(t *testing.T) {
	_, _, err := NewRaw("   ", nil).Cypher()
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestDeriveSingleCondition(t *testing.T) {
	f, err := Derive("Movie", "FindByTitle", "Heat")
	require.NoError(t, err)

	text, params, err := f.Cypher()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n:Movie) WHERE n.title = $p0 RETURN n", text)
	assert.Equal(t, map[string]any{"p0": "Heat"}, params)
}

func TestDeriveConnectors(t *testing.T) {
	tests := []struct {
		name     string
		spec     string
		args     []any
		wantText string
	}{
		{
			name:     "and",
			spec:     "FindByTitleAndReleased",
			args:     []any{"Heat", 1995},
			wantText: "MATCH (n:Movie) WHERE n.title = $p0 AND n.released = $p1 RETURN n",
		},
		{
			name:     "or",
			spec:     "FindByTitleOrReleased",
			args:     []any{"Heat", 1995},
			wantText: "MATCH (n:Movie) WHERE n.title = $p0 OR n.released = $p1 RETURN n",
		},
		{
			name:     "mixed",
			spec:     "FindByTitleAndReleasedOrRating",
			args:     []any{"Heat", 1995, 5},
			wantText: "MATCH (n:Movie) WHERE n.title = $p0 AND n.released = $p1 OR n.rating = $p2 RETURN n",
		},
		{
			name:     "property containing a connector word",
			spec:     "FindByAndroidVersion",
			args:     []any{"14"},
			wantText: "MATCH (n:Movie) WHERE n.androidVersion = $p0 RETURN n",
		},
		{
			name:     "lower camel prefix",
			spec:     "findByTitle",
			args:     []any{"Heat"},
			wantText: "MATCH (n:Movie) WHERE n.title = $p0 RETURN n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Derive("Movie", tt.spec, tt.args...)
			require.NoError(t, err)
			text, _, err := f.Cypher()
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, text)
		})
	}
}

func TestDeriveRejectsMalformedSpecs(t *testing.T) {
	tests := []struct {
		name string
		spec string
		args []any
	}{
		{name: "missing prefix", spec: "GetByTitle", args: []any{"Heat"}},
		{name: "empty body", spec: "FindBy", args: nil},
		{name: "argument count mismatch", spec: "FindByTitle", args: []any{"Heat", "extra"}},
		{name: "no arguments for condition", spec: "FindByTitleAndReleased", args: []any{"Heat"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Derive("Movie", tt.spec, tt.args...)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidation(err))
		})
	}
}

func TestDeriveRejectsEmptyLabel(t *testing.T) {
	_, err := Derive("", "FindByTitle", "Heat")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestFinderWithPageable(t *testing.T) {
	f, err := Derive("Movie", "FindByReleased", 1995)
	require.NoError(t, err)

	paged := f.WithPageable(Pageable{
		Page: 2,
		Size: 25,
		Sort: []Sort{{Property: "title"}, {Property: "released", Descending: true}},
	})

	text, params, err := paged.Cypher()
	require.NoError(t, err)
	assert.Equal(t,
		"MATCH (n:Movie) WHERE n.released = $p0 RETURN n ORDER BY n.title, n.released DESC SKIP 50 LIMIT 25",
		text)
	assert.Equal(t, map[string]any{"p0": 1995}, params)
}

func TestFinderWithPageableDoesNotMutateOriginal(t *testing.T) {
	f, err := Derive("Movie", "FindByReleased", 1995)
	require.NoError(t, err)

	_ = f.WithPageable(Pageable{Page: 1, Size: 10})

	text, _, err := f.Cypher()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n:Movie) WHERE n.released = $p0 RETURN n", text)
}

func TestFinderSanitizesInterpolatedIdentifiers(t *testing.T) {
	// label, condition properties, and sort keys are interpolated into the
	// query text, so hostile characters must be stripped
	f, err := Derive("Movie`)--(", "FindByTitle`", "Heat")
	require.NoError(t, err)

	paged := f.WithPageable(Pageable{Sort: []Sort{{Property: "title`)--"}}})
	text, params, err := paged.Cypher()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n:Movie) WHERE n.title = $p0 RETURN n ORDER BY n.title", text)
	assert.Equal(t, map[string]any{"p0": "Heat"}, params)
}

func TestFinderSortWithoutSizeAddsOnlyOrdering(t *testing.T) {
	f, err := Derive("Movie", "FindByReleased", 1995)
	require.NoError(t, err)

	text, _, err := f.WithPageable(Pageable{Sort: []Sort{{Property: "title"}}}).Cypher()
	require.NoError(t, err)
	assert.Equal(t, "MATCH (n:Movie) WHERE n.released = $p0 RETURN n ORDER BY n.title", text)
}
