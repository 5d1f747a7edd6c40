package outbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndResolve(t *testing.T) {
	registry := NewRegistry()

	handler := HandlerFunc(func(ctx context.Context, entry Entry) error { return nil })
	registry.Register("MemberCreatedEvent", handler)

	resolved, err := registry.Resolve("MemberCreatedEvent")
	require.NoError(t, err)
	assert.NotNil(t, resolved)
}

func TestRegistry_Resolve_NotFound(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Resolve("UnknownEvent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandlerNotFound)
	assert.Contains(t, err.Error(), "UnknownEvent")
}

func TestRegistry_Register_LastWins(t *testing.T) {
	registry := NewRegistry()

	var called string
	registry.Register("MemberCreatedEvent", HandlerFunc(func(ctx context.Context, entry Entry) error {
		called = "v1"
		return nil
	}))
	registry.Register("MemberCreatedEvent", HandlerFunc(func(ctx context.Context, entry Entry) error {
		called = "v2"
		return nil
	}))

	handler, err := registry.Resolve("MemberCreatedEvent")
	require.NoError(t, err)
	require.NoError(t, handler.Handle(context.Background(), Entry{}))
	assert.Equal(t, "v2", called)
}
