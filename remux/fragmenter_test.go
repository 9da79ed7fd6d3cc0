package remux

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo/vodstream/bmff"
	"github.com/tetsuo/vodstream/track"
)

// buildFragmenterTrak mirrors track_test.go's buildTrak helper: four
// 100-byte samples at chunk offset 2000, one sync sample at index 0.
func buildFragmenterTrak(trackId uint32) *bmff.Box {
	stbl := &bmff.Box{
		Type: bmff.TypeStbl,
		Children: []*bmff.Box{
			{Type: bmff.TypeStsd, Stsd: &bmff.StsdBox{EntryCount: 1}},
			{Type: bmff.TypeStts, Stts: &bmff.SttsBox{Entries: []bmff.SttsEntry{{Count: 4, Duration: 10}}}},
			{Type: bmff.TypeStsc, Stsc: &bmff.StscBox{Entries: []bmff.StscEntry{{FirstChunk: 1, SamplesPerChunk: 4, SampleDescriptionId: 1}}}},
			{Type: bmff.TypeStsz, Stsz: &bmff.StszBox{SampleSize: 100, SampleCount: 4}},
			{Type: bmff.TypeStco, Stco: &bmff.StcoBox{Entries: []uint32{2000}}},
			{Type: bmff.TypeStss, Stss: &bmff.StssBox{Entries: []uint32{1}}},
		},
	}
	minf := &bmff.Box{Type: bmff.TypeMinf, Children: []*bmff.Box{{Type: bmff.TypeVmhd}, stbl}}
	mdia := &bmff.Box{
		Type: bmff.TypeMdia,
		Children: []*bmff.Box{
			{Type: bmff.TypeMdhd, Mdhd: &bmff.MdhdBox{Timescale: 1000, Duration: 40}},
			{Type: bmff.TypeHdlr, Hdlr: &bmff.HdlrBox{HandlerType: [4]byte{'v', 'i', 'd', 'e'}, Name: "VideoHandler"}},
			minf,
		},
	}
	return &bmff.Box{
		Type: bmff.TypeTrak,
		Children: []*bmff.Box{
			{Type: bmff.TypeTkhd, Tkhd: &bmff.TkhdBox{TrackId: trackId, Duration: 40}},
			mdia,
		},
	}
}

func newFragmenterFixture(t *testing.T) (*Fragmenter, *fakeSource) {
	t.Helper()

	mvhd := &bmff.Box{Type: bmff.TypeMvhd, Mvhd: &bmff.MvhdBox{Timescale: 1000, Duration: 40, NextTrackId: 2}}
	trak := buildFragmenterTrak(1)
	tr, err := track.BuildTrack(trak)
	require.NoError(t, err)

	f, err := NewFragmenter(mvhd, trak, tr)
	require.NoError(t, err)

	src := newFakeSource(3000)
	for i := 0; i < 4; i++ {
		src.fill(2000+int64(i*100), 100, 0xDD)
	}
	return f, src
}

func TestFragmenterInitSegment(t *testing.T) {
	f, _ := newFragmenterFixture(t)

	buf, err := f.InitSegment()
	require.NoError(t, err)

	boxes, err := bmff.DecodeAll(buf, 0, len(buf))
	require.NoError(t, err)
	require.Len(t, boxes, 2)
	assert.Equal(t, bmff.TypeFtyp, boxes[0].Type)

	moov := boxes[1]
	gotMvhd := moov.Child(bmff.TypeMvhd)
	require.NotNil(t, gotMvhd)
	assert.Equal(t, uint64(40), gotMvhd.Mvhd.Duration, "init segment carries the full-presentation duration")

	trak := moov.Child(bmff.TypeTrak)
	require.NotNil(t, trak)
	gotTkhd := trak.Child(bmff.TypeTkhd)
	assert.Equal(t, uint32(1), gotTkhd.Tkhd.TrackId)

	stbl := trak.Child(bmff.TypeMdia).Child(bmff.TypeMinf).Child(bmff.TypeStbl)
	require.NotNil(t, stbl)
	assert.Equal(t, uint32(0), stbl.Child(bmff.TypeStsz).Stsz.SampleCount, "init segment's sample table is empty")

	mvex := moov.Child(bmff.TypeMvex)
	require.NotNil(t, mvex)
	gotTrex := mvex.Child(bmff.TypeTrex)
	require.NotNil(t, gotTrex)
	assert.Equal(t, uint32(1), gotTrex.Trex.TrackId)
}

func TestFragmenterMediaSegment(t *testing.T) {
	f, src := newFragmenterFixture(t)

	rng := f.Track.NewSampleRange(1, 3)
	var out bytes.Buffer
	err := f.MediaSegment(context.Background(), &out, src, rng, 5)
	require.NoError(t, err)

	boxes, err := bmff.DecodeAll(out.Bytes(), 0, out.Len())
	require.NoError(t, err)
	require.Len(t, boxes, 4, "styp, sidx, moof, mdat")
	assert.Equal(t, bmff.TypeStyp, boxes[0].Type)
	assert.Equal(t, bmff.TypeSidx, boxes[1].Type)

	sidx := boxes[1]
	require.NotNil(t, sidx.Sidx)
	assert.Equal(t, uint32(1), sidx.Sidx.ReferenceId)
	require.Len(t, sidx.Sidx.Entries, 1)
	assert.Equal(t, uint32(20), sidx.Sidx.Entries[0].SubsegDuration, "two samples of duration 10 each")

	moof := boxes[2]
	require.Equal(t, bmff.TypeMoof, moof.Type)
	gotMfhd := moof.Child(bmff.TypeMfhd)
	require.NotNil(t, gotMfhd)
	assert.Equal(t, uint32(5), gotMfhd.Mfhd.SequenceNumber)

	traf := moof.Child(bmff.TypeTraf)
	require.NotNil(t, traf)
	gotTfhd := traf.Child(bmff.TypeTfhd)
	assert.Equal(t, uint32(1), gotTfhd.Tfhd.TrackId)

	gotTfdt := traf.Child(bmff.TypeTfdt)
	require.NotNil(t, gotTfdt)
	assert.Equal(t, uint64(10), gotTfdt.Tfdt.BaseMediaDecodeTime, "range starts at sample index 1, DTS 10")

	gotTrun := traf.Child(bmff.TypeTrun)
	require.NotNil(t, gotTrun)
	require.Len(t, gotTrun.Trun.Entries, 2)

	mdat := boxes[3]
	require.NotNil(t, mdat.Mdat)
	mdatBytes := out.Bytes()[mdat.Mdat.ByteOffset : mdat.Mdat.ByteOffset+mdat.Mdat.ByteSize]
	require.Len(t, mdatBytes, 200)
	assert.Equal(t, byte(0xDD), mdatBytes[0])
	assert.Equal(t, byte(0xDD), mdatBytes[199])
}

func TestFragmenterEmptyRangeIsNoop(t *testing.T) {
	f, src := newFragmenterFixture(t)
	rng := f.Track.NewSampleRange(2, 2)
	var out bytes.Buffer
	err := f.MediaSegment(context.Background(), &out, src, rng, 1)
	require.NoError(t, err)
	assert.Zero(t, out.Len())
}
