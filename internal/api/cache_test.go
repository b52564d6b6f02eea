package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueryCache_ExpiresAfterTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newQueryCache(time.Minute, func() time.Time { return now }, nil)

	c.set("k", 1)
	v, ok := c.get("k")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(time.Minute)
	_, ok = c.get("k")
	assert.False(t, ok)
	assert.Zero(t, c.size(), "expired entry is dropped on read")
}

func TestQueryCache_ZeroTTLDisables(t *testing.T) {
	c := newQueryCache(0, nil, nil)
	c.set("k", 1)

	_, ok := c.get("k")
	assert.False(t, ok)
	assert.Zero(t, c.size())
}

func TestQueryCache_Purge(t *testing.T) {
	c := newQueryCache(time.Hour, nil, nil)
	c.set("a", 1)
	c.set("b", 2)
	assert.Equal(t, 2, c.size())

	c.purge()
	assert.Zero(t, c.size())
}

func TestQueryCache_ScopeChangeDropsEntries(t *testing.T) {
	owner := "user:1"
	c := newQueryCache(time.Hour, nil, func() string { return owner })
	c.set("k", 1)
	_, ok := c.get("k")
	assert.True(t, ok)

	owner = ""
	_, ok = c.get("k")
	assert.False(t, ok, "logged out")
	assert.Zero(t, c.size())

	c.set("k", 2)
	owner = "user:2"
	_, ok = c.get("k")
	assert.False(t, ok, "another user")

	c.set("k", 3)
	v, ok := c.get("k")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}
