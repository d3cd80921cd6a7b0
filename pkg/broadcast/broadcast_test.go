package broadcast_test

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/sessionkit/pkg/broadcast"
	"github.com/stretchr/testify/require"
)

func TestHubFanOut(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hub := broadcast.NewHub()

	var a, b []broadcast.Message
	cancelA, err := hub.Subscribe(ctx, func(m broadcast.Message) { a = append(a, m) })
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, func(m broadcast.Message) { b = append(b, m) })
	require.NoError(t, err)

	msg := broadcast.Message{Kind: broadcast.KindSignOut, Origin: "ctx-1"}
	require.NoError(t, hub.Publish(ctx, msg))
	require.Equal(t, []broadcast.Message{msg}, a)
	require.Equal(t, []broadcast.Message{msg}, b)

	cancelA()
	cancelA() // idempotent
	require.Equal(t, 1, hub.Len())

	require.NoError(t, hub.Publish(ctx, msg))
	require.Len(t, a, 1)
	require.Len(t, b, 2)
}

func TestHubHandlerMayUnsubscribeItself(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hub := broadcast.NewHub()

	var cancel func()
	calls := 0
	cancel, err := hub.Subscribe(ctx, func(broadcast.Message) {
		calls++
		cancel()
	})
	require.NoError(t, err)

	require.NoError(t, hub.Publish(ctx, broadcast.Message{Kind: broadcast.KindSignOut}))
	require.NoError(t, hub.Publish(ctx, broadcast.Message{Kind: broadcast.KindSignOut}))
	require.Equal(t, 1, calls)
	require.Zero(t, hub.Len())
}
