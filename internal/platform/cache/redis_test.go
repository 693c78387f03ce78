package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsDatabase(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := New(ctx, Options{Addr: mr.Addr(), DB: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(ctx, "order:seq", 7, 0).Err())
	got, err := mr.DB(2).Get("order:seq")
	require.NoError(t, err)
	require.Equal(t, "7", got)
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), Options{Addr: addr})
	require.ErrorContains(t, err, "platform/cache: ping")

	_, err = New(context.Background(), Options{})
	require.Error(t, err)
}

func TestAsynqOptionsMirrorClient(t *testing.T) {
	opts := Options{Addr: "redis:6379", Password: "secret", DB: 3}
	got := opts.Asynq()
	require.Equal(t, "redis:6379", got.Addr)
	require.Equal(t, "secret", got.Password)
	require.Equal(t, 3, got.DB)
}
