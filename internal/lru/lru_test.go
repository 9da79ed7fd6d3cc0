package lru

import "testing"

func TestCacheInsertAndGet(t *testing.T) {
	c := New[string, int](Options{MaxEntries: 2})
	c.Insert("a", 1)
	c.Insert("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %d, %v, want 1, true", v, ok)
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](Options{MaxEntries: 2})
	c.Insert("a", 1)
	c.Insert("b", 2)
	c.Get("a") // promote a, b becomes the LRU entry
	c.Insert("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatalf("Get(b) found after eviction, want evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("Get(a) not found, want promoted entry to survive")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatalf("Get(c) not found, want newly inserted entry to survive")
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
}

func TestCacheInsertOverwritesExistingKey(t *testing.T) {
	c := New[string, int](Options{MaxEntries: 2})
	c.Insert("a", 1)
	c.Insert("a", 2)

	if v, ok := c.Get("a"); !ok || v != 2 {
		t.Fatalf("Get(a) = %d, %v, want 2, true", v, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

func TestCacheZeroOptionsFallsBackToDefault(t *testing.T) {
	c := New[string, int](Options{})
	for i := 0; i < 200; i++ {
		c.Insert(string(rune('a'+i%26))+string(rune(i)), i)
	}
	if c.Len() > DefaultOptions().MaxEntries {
		t.Fatalf("Len() = %d, exceeds default capacity %d", c.Len(), DefaultOptions().MaxEntries)
	}
}
