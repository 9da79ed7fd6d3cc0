package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheInsertAndGet(t *testing.T) {
	c := New(Options{MaxEntries: 1})
	c.Insert("v/c.1.0-25.mp4", []byte("segment"))

	got, ok := c.Get("v/c.1.0-25.mp4")
	assert.True(t, ok)
	assert.Equal(t, []byte("segment"), got)
}

func TestCacheEvictsOnOverflow(t *testing.T) {
	c := New(Options{MaxEntries: 1})
	c.Insert("a", []byte("1"))
	c.Insert("b", []byte("2"))

	_, ok := c.Get("a")
	assert.False(t, ok)
	got, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, []byte("2"), got)
}
