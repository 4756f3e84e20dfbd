package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, maxPerPatient int) *Cache {
	t.Helper()
	root := t.TempDir()
	c, err := New(root, maxPerPatient, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	return c
}

func ormFor(patientID, controlID string) string {
	return "MSH|^~\\&|HIS|MC|LIS|MC|20060307110114||ORM^O01|" + controlID + "|P|2.3\r" +
		"PID|||" + patientID + "||Jones^John\r" +
		"ORC|NW|20060307110114"
}

func TestPutCreatesExactlyOneFile(t *testing.T) {
	c := newTestCache(t, 5)
	id, err := c.Put(ormFor("12001", "MID1"))
	require.NoError(t, err)
	require.True(t, c.Exists(id))

	entries, err := os.ReadDir(filepath.Join(c.root, activeSubdir))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestPutRoundTripsRawBytes(t *testing.T) {
	c := newTestCache(t, 5)
	raw := ormFor("12001", "MID1")
	id, err := c.Put(raw)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(c.root, activeSubdir, id+hl7Ext))
	require.NoError(t, err)
	require.Equal(t, raw, string(data))
}

func TestPerPatientCapEvictsOldest(t *testing.T) {
	c := newTestCache(t, 5)
	var firstID string
	for i := 0; i < 6; i++ {
		id, err := c.Put(ormFor("12001", "MID"+string(rune('0'+i))))
		require.NoError(t, err)
		if i == 0 {
			firstID = id
		}
		time.Sleep(5 * time.Millisecond) // ensure distinct mtimes for ordering
	}

	orders, err := c.List()
	require.NoError(t, err)
	require.Len(t, orders, 5)
	require.False(t, c.Exists(firstID))
}

func TestListSkipsTmpFiles(t *testing.T) {
	c := newTestCache(t, 5)
	_, err := c.Put(ormFor("12001", "MID1"))
	require.NoError(t, err)

	tmp := filepath.Join(c.root, activeSubdir, "stray.hl7.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("partial"), 0o644))

	orders, err := c.List()
	require.NoError(t, err)
	require.Len(t, orders, 1)
}

func TestSweepExpiredRemovesOldOrders(t *testing.T) {
	c := newTestCache(t, 5)
	id, err := c.Put(ormFor("12001", "MID1"))
	require.NoError(t, err)

	old := time.Now().Add(-73 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(c.root, activeSubdir, id+hl7Ext), old, old))

	removed, err := c.SweepExpired(72)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.False(t, c.Exists(id))
}

func TestSweepIsIdempotent(t *testing.T) {
	c := newTestCache(t, 5)
	id, err := c.Put(ormFor("12001", "MID1"))
	require.NoError(t, err)

	old := time.Now().Add(-73 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(c.root, activeSubdir, id+hl7Ext), old, old))

	first, err := c.SweepExpired(72)
	require.NoError(t, err)
	require.Equal(t, 1, first)

	second, err := c.SweepExpired(72)
	require.NoError(t, err)
	require.Equal(t, 0, second)
}
