package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/provas/models"
)

func TestKeyChangesWithFileVersion(t *testing.T) {
	mod := time.Unix(1700000000, 0)
	k := Key("output/a.json", mod, 100)
	assert.Equal(t, k, Key("output/a.json", mod, 100))
	assert.NotEqual(t, k, Key("output/a.json", mod.Add(time.Second), 100))
	assert.NotEqual(t, k, Key("output/a.json", mod, 101))
	assert.NotEqual(t, k, Key("output/b.json", mod, 100))
}

func TestGetSet(t *testing.T) {
	c := New(2, time.Hour)
	qs := []models.TransformedQuestion{{ID: "rawles-1"}}

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", qs)
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "rawles-1", got[0].ID)
}

func TestCapacityEvicts(t *testing.T) {
	c := New(2, time.Hour)
	c.Set("a", nil)
	c.Set("b", nil)
	c.Set("c", nil)
	assert.Equal(t, 2, c.Len())

	_, ok := c.Get("c")
	assert.True(t, ok, "newest entry is always kept")
}

func TestExpiry(t *testing.T) {
	c := New(4, time.Nanosecond)
	c.Set("a", nil)
	time.Sleep(time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("b", nil)
	assert.Equal(t, 1, c.Len(), "expired entries are dropped on Set")
}

func TestDisabled(t *testing.T) {
	c := New(0, time.Hour)
	c.Set("a", nil)
	_, ok := c.Get("a")
	assert.False(t, ok)

	var nilCache *Cache
	_, ok = nilCache.Get("a")
	assert.False(t, ok)
}
