package trackcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo/vodstream/bmff"
)

// buildMoov assembles a minimal, syntactically valid moov with one
// video track, mirroring track_test.go's buildTrak helper.
func buildMoov(trackId uint32) *bmff.Box {
	stbl := &bmff.Box{
		Type: bmff.TypeStbl,
		Children: []*bmff.Box{
			{Type: bmff.TypeStsd, Stsd: &bmff.StsdBox{EntryCount: 1}},
			{Type: bmff.TypeStts, Stts: &bmff.SttsBox{Entries: []bmff.SttsEntry{{Count: 4, Duration: 10}}}},
			{Type: bmff.TypeStsc, Stsc: &bmff.StscBox{Entries: []bmff.StscEntry{{FirstChunk: 1, SamplesPerChunk: 4, SampleDescriptionId: 1}}}},
			{Type: bmff.TypeStsz, Stsz: &bmff.StszBox{SampleSize: 100, SampleCount: 4}},
			{Type: bmff.TypeStco, Stco: &bmff.StcoBox{Entries: []uint32{1000}}},
			{Type: bmff.TypeStss, Stss: &bmff.StssBox{Entries: []uint32{1}}},
		},
	}
	minf := &bmff.Box{Type: bmff.TypeMinf, Children: []*bmff.Box{stbl}}
	mdia := &bmff.Box{
		Type: bmff.TypeMdia,
		Children: []*bmff.Box{
			{Type: bmff.TypeMdhd, Mdhd: &bmff.MdhdBox{Timescale: 1000, Duration: 40}},
			{Type: bmff.TypeHdlr, Hdlr: &bmff.HdlrBox{HandlerType: [4]byte{'v', 'i', 'd', 'e'}}},
			minf,
		},
	}
	trak := &bmff.Box{
		Type: bmff.TypeTrak,
		Children: []*bmff.Box{
			{Type: bmff.TypeTkhd, Tkhd: &bmff.TkhdBox{TrackId: trackId}},
			mdia,
		},
	}
	return &bmff.Box{
		Type: bmff.TypeMoov,
		Children: []*bmff.Box{
			{Type: bmff.TypeMvhd, Mvhd: &bmff.MvhdBox{Timescale: 1000, Duration: 40}},
			trak,
		},
	}
}

func TestBuildMovie(t *testing.T) {
	m, err := BuildMovie(buildMoov(7))
	require.NoError(t, err)

	require.Len(t, m.Tracks, 1)
	assert.Equal(t, uint32(7), m.Tracks[0].TrackId)
	assert.NotNil(t, m.Trak(7))
	assert.Nil(t, m.Trak(99))
	assert.Same(t, m.Tracks[0], m.Track(7))
}

func TestBuildMovieMissingMvhd(t *testing.T) {
	_, err := BuildMovie(&bmff.Box{Type: bmff.TypeMoov})
	assert.Error(t, err)
}

func TestCacheInsertAndGet(t *testing.T) {
	c := New(2)
	movie, err := BuildMovie(buildMoov(1))
	require.NoError(t, err)

	key := Key{Path: "/a.mp4", Inode: 1, Mtime: 100}
	c.Insert(key, movie)

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Same(t, movie, got)

	_, ok = c.Get(Key{Path: "/a.mp4", Inode: 1, Mtime: 200})
	assert.False(t, ok, "a different mtime must miss, even for the same path")
}
