package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo/vodstream/bmff"
)

// buildTrak assembles a minimal, syntactically valid trak subtree with
// four samples of size 100, duration 10 per timescale tick, one sync
// sample at index 0, and a single chunk.
func buildTrak(trackId uint32, edits []bmff.ElstEntry) *bmff.Box {
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
	if edits != nil {
		trak.Children = append(trak.Children, &bmff.Box{
			Type:     bmff.TypeEdts,
			Children: []*bmff.Box{{Type: bmff.TypeElst, Elst: &bmff.ElstBox{Entries: edits}}},
		})
	}
	return trak
}

func TestBuildTrackSampleTable(t *testing.T) {
	trak := buildTrak(1, nil)
	tr, err := BuildTrack(trak)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), tr.TrackId)
	assert.Equal(t, uint32(1000), tr.Timescale)
	require.Len(t, tr.Table.Entries, 4)

	for i, s := range tr.Table.Entries {
		assert.Equal(t, int64(1000+i*100), s.Offset)
		assert.Equal(t, uint32(100), s.Size)
		assert.Equal(t, uint32(10), s.Duration)
		assert.Equal(t, int64(i*10), s.DTS)
	}
	assert.True(t, tr.Table.Entries[0].Sync)
	assert.False(t, tr.Table.Entries[1].Sync)
}

func TestBuildTrackMissingBoxes(t *testing.T) {
	_, err := BuildTrack(&bmff.Box{Type: bmff.TypeTrak})
	require.Error(t, err)
	var berr *bmff.Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, bmff.Malformed, berr.Kind)
}

func TestFindSampleAfter(t *testing.T) {
	tr, err := BuildTrack(buildTrak(1, nil))
	require.NoError(t, err)

	// samples at DTS 0,10,20,30 (timescale 1000); only index 0 is sync.
	assert.Equal(t, 0, tr.FindSampleAfter(0))
	assert.Equal(t, 3, tr.FindSampleAfter(0.005)) // no sync sample at or after PTS 5; clamped to last sample
	assert.Equal(t, 3, tr.FindSampleAfter(1.0)) // clamped to last sample
}

func TestNewSampleRange(t *testing.T) {
	tr, err := BuildTrack(buildTrak(1, nil))
	require.NoError(t, err)

	rng := tr.NewSampleRange(1, 3)
	assert.Equal(t, 1, rng.First)
	assert.Equal(t, 3, rng.Last)
	assert.Equal(t, int64(10), rng.DecodeTimeOrigin)
}

func TestClassifyEditsShapes(t *testing.T) {
	cases := []struct {
		name  string
		edits []bmff.ElstEntry
		shape EditShape
	}{
		{"none", nil, EditShapeNone},
		{"dwell", []bmff.ElstEntry{{MediaTime: -1, SegmentDuration: 5}}, EditShapeInitialDwell},
		{"leading negative", []bmff.ElstEntry{{MediaTime: 20, MediaRateInt: 1, SegmentDuration: 20}}, EditShapeLeadingNegative},
		{"positive shift", []bmff.ElstEntry{{MediaTime: 20, MediaRateInt: 1, SegmentDuration: 0}}, EditShapePositiveShift},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tr, err := BuildTrack(buildTrak(1, c.edits))
			require.NoError(t, err)
			shape, _, _, err := tr.ClassifyEdits()
			require.NoError(t, err)
			assert.Equal(t, c.shape, shape)
		})
	}
}

func TestClassifyEditsUnsupported(t *testing.T) {
	edits := []bmff.ElstEntry{
		{MediaTime: -1, SegmentDuration: 5},
		{MediaTime: 0, MediaRateInt: 1, SegmentDuration: 10},
	}
	tr, err := BuildTrack(buildTrak(1, edits))
	require.NoError(t, err)

	_, _, _, err = tr.ClassifyEdits()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedEditList)
}

func TestFindTrack(t *testing.T) {
	a, err := BuildTrack(buildTrak(1, nil))
	require.NoError(t, err)
	b, err := BuildTrack(buildTrak(2, nil))
	require.NoError(t, err)

	tracks := []*Track{a, b}
	assert.Same(t, b, FindTrack(tracks, 2))
	assert.Nil(t, FindTrack(tracks, 3))
}
