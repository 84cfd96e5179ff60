package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTypes(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		check   func(error) bool
		errType ErrorType
	}{
		{
			name:    "validation error",
			err:     NewValidation("identity field missing"),
			check:   IsValidation,
			errType: ErrorTypeValidation,
		},
		{
			name:    "not found error",
			err:     NewNotFound("node 42 does not exist"),
			check:   IsNotFound,
			errType: ErrorTypeNotFound,
		},
		{
			name:    "stale binding error",
			err:     NewStaleBinding("node is a read replica", nil),
			check:   IsStaleBinding,
			errType: ErrorTypeStaleBinding,
		},
		{
			name:    "conflict error",
			err:     NewConflict("unique constraint violated", nil),
			check:   IsConflict,
			errType: ErrorTypeConflict,
		},
		{
			name:    "connectivity error",
			err:     NewConnectivity("connection reset", fmt.Errorf("EOF")),
			check:   IsConnectivity,
			errType: ErrorTypeConnectivity,
		},
		{
			name:    "internal error",
			err:     NewInternal("unexpected state", fmt.Errorf("boom")),
			check:   IsInternal,
			errType: ErrorTypeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			assert.True(t, tt.check(tt.err))
			assert.Equal(t, tt.errType, TypeOf(tt.err))
		})
	}
}

func TestWrapPreservesType(t *testing.T) {
	inner := NewConnectivity("connection dropped", fmt.Errorf("broken pipe"))
	wrapped := Wrap(inner, "save failed")

	assert.True(t, IsConnectivity(wrapped))
	assert.Contains(t, wrapped.Error(), "save failed")
	assert.Contains(t, wrapped.Error(), "connection dropped")
}

func TestWrapForeignError(t *testing.T) {
	wrapped := Wrap(fmt.Errorf("plain"), "context")
	assert.True(t, IsInternal(wrapped))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "ignored"))
}

func TestTypeOfForeignError(t *testing.T) {
	assert.Equal(t, ErrorTypeInternal, TypeOf(fmt.Errorf("plain")))
}
