package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := New(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", got)
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	_, err := New(context.Background(), Options{Addr: "127.0.0.1:1", PingTimeout: 200 * time.Millisecond})
	require.Error(t, err)
}

func TestAsynqOptSharesAddress(t *testing.T) {
	opt := AsynqOpt(Options{Addr: "redis:6379", DB: 2})
	require.Equal(t, "redis:6379", opt.Addr)
	require.Equal(t, 2, opt.DB)
}
