package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/toystudio/internal/history"
)

func newSink(t *testing.T, opts ...Option) (*Sink, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	s := NewFromClient(client, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestSendAndQuery(t *testing.T) {
	s, mr := newSink(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Send(ctx, history.Event{Type: history.EventInstall, Product: "a.toml", OperationID: "1", OccurredAt: base}))
	require.NoError(t, s.Send(ctx, history.Event{Type: history.EventInstall, Product: "b.toml", OperationID: "2", OccurredAt: base.Add(time.Second)}))
	require.NoError(t, s.Send(ctx, history.Event{Type: history.EventStartup, Product: "a.toml", OperationID: "3", OccurredAt: base.Add(2 * time.Second), PID: 10}))

	assert.True(t, mr.Exists(DefaultKey))

	all, err := s.Query(ctx, history.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "3", all[0].OperationID)
	assert.True(t, all[2].OccurredAt.Equal(base))

	onlyA, err := s.Query(ctx, history.Filter{Product: "a.toml", Limit: 1})
	require.NoError(t, err)
	require.Len(t, onlyA, 1)
	assert.Equal(t, 10, onlyA[0].PID)
}

func TestMaxLenTrims(t *testing.T) {
	s, _ := newSink(t, WithMaxLen(3), WithKey("custom"))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Send(ctx, history.Event{Type: history.EventShutdown, Product: "a.toml", OperationID: fmt.Sprint(i)}))
	}
	got, err := s.Query(ctx, history.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "4", got[0].OperationID)
	assert.Equal(t, "2", got[2].OperationID)
}

func TestQueryEmpty(t *testing.T) {
	s, _ := newSink(t)
	got, err := s.Query(context.Background(), history.Filter{Product: "none"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNewFromDSN(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := New("redis://" + mr.Addr() + "/0?key=events")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	assert.Equal(t, "events", s.key)

	require.NoError(t, s.Send(context.Background(), history.Event{Type: history.EventUninstall, Product: "x.toml"}))
	assert.True(t, mr.Exists("events"))
}

func TestNewBadDSN(t *testing.T) {
	_, err := New("http://nope")
	assert.Error(t, err)
}
