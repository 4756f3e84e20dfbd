package sweeper

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/healthbridge/ormworklist/internal/cache"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New(t.TempDir(), 5, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	return c
}

const sampleOrder = "MSH|^~\\&|HIS|MC|LIS|MC|20060307110114||ORM^O01|MID1|P|2.3\r" +
	"PID|||12001||Jones^John\r" +
	"ORC|NW|20060307110114"

func TestSweeperRemovesExpiredOnTick(t *testing.T) {
	c := newTestCache(t)
	id, err := c.Put(sampleOrder)
	require.NoError(t, err)

	root := c.Root()
	old := time.Now().Add(-100 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, "active", id+".hl7"), old, old))

	s := New(c, 20*time.Millisecond, 72, false, 3, logrus.NewEntry(logrus.New()))

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)

	require.False(t, c.Exists(id))
}

func TestSweeperStopsOnContextCancel(t *testing.T) {
	c := newTestCache(t)
	s := New(c, time.Hour, 72, false, 3, logrus.NewEntry(logrus.New()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
