// Package trackcache implements the process-wide TrackModel cache spec.md
// §5 requires: "An LRU cache of TrackModels keyed by path+inode+mtime is
// held process-wide; eviction runs on insertion."
package trackcache

import (
	"fmt"
	"os"
	"syscall"

	"github.com/tetsuo/vodstream/bmff"
	"github.com/tetsuo/vodstream/internal/lru"
	"github.com/tetsuo/vodstream/track"
)

// Key identifies one cached Movie: the triple spec.md §5 names, so a
// file that is replaced in place (same path, new inode or mtime) never
// serves a stale TrackModel from the cache.
type Key struct {
	Path  string
	Inode uint64
	Mtime int64
}

// KeyForFile derives the cache key for an already-open file, using the
// platform inode from its os.FileInfo.
func KeyForFile(path string, fi os.FileInfo) (Key, error) {
	stat, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return Key{}, fmt.Errorf("trackcache: %s: no inode information available", path)
	}
	return Key{Path: path, Inode: stat.Ino, Mtime: fi.ModTime().UnixNano()}, nil
}

// Movie is one parsed moov subtree: its movie header, every track's
// TrackModel, and the raw trak boxes BuildMovie derived them from (the
// Fragmenter needs the original trak, not just the derived Track, to
// reuse tkhd/mdia/minf/stsd verbatim in an initialization segment).
type Movie struct {
	Mvhd   *bmff.Box
	Mvex   *bmff.Box // moov's mvex child, or nil if absent
	Tracks []*track.Track

	trakByID map[uint32]*bmff.Box
}

// Trak returns the raw trak box for trackID, or nil.
func (m *Movie) Trak(trackID uint32) *bmff.Box {
	return m.trakByID[trackID]
}

// Trex returns the mvex/trex entry for trackID, or nil if the movie has
// no mvex or no trex names that track.
func (m *Movie) Trex(trackID uint32) *bmff.Box {
	if m.Mvex == nil {
		return nil
	}
	for _, trex := range m.Mvex.ChildList(bmff.TypeTrex) {
		if trex.Trex != nil && trex.Trex.TrackId == trackID {
			return trex
		}
	}
	return nil
}

// Track returns the TrackModel for trackID, or nil.
func (m *Movie) Track(trackID uint32) *track.Track {
	return track.FindTrack(m.Tracks, trackID)
}

// BuildMovie derives a Movie from a decoded moov box.
func BuildMovie(moov *bmff.Box) (*Movie, error) {
	mvhdBox := moov.Child(bmff.TypeMvhd)
	if mvhdBox == nil {
		return nil, fmt.Errorf("trackcache: moov missing mvhd")
	}

	traks := moov.ChildList(bmff.TypeTrak)
	m := &Movie{
		Mvhd:     mvhdBox,
		Mvex:     moov.Child(bmff.TypeMvex),
		Tracks:   make([]*track.Track, 0, len(traks)),
		trakByID: make(map[uint32]*bmff.Box, len(traks)),
	}
	for _, trak := range traks {
		t, err := track.BuildTrack(trak)
		if err != nil {
			return nil, err
		}
		m.Tracks = append(m.Tracks, t)
		m.trakByID[t.TrackId] = trak
	}
	return m, nil
}

// Cache is the process-wide Movie cache.
type Cache struct {
	cache *lru.Cache[Key, *Movie]
}

// New creates a Cache holding up to maxEntries Movies. maxEntries <= 0
// falls back to lru.DefaultOptions.
func New(maxEntries int) *Cache {
	return &Cache{cache: lru.New[Key, *Movie](lru.Options{MaxEntries: maxEntries})}
}

// Get returns the cached Movie for key, if present.
func (c *Cache) Get(key Key) (*Movie, bool) {
	return c.cache.Get(key)
}

// Insert stores movie under key, evicting the least-recently-used entry
// if the cache is now over capacity (spec.md §5: "eviction runs on
// insertion"). Callers parse the Movie before calling Insert, so no
// I/O ever happens while this cache's lock is held.
func (c *Cache) Insert(key Key, movie *Movie) {
	c.cache.Insert(key, movie)
}
