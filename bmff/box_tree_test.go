package bmff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetsuo/vodstream/bmff"
)

// buildMoovTree assembles a minimal, syntactically valid ftyp+moov with one
// avc1 video track, mirroring track_test.go's buildTrak helper but
// exercising the encode side too.
func buildMoovTree(duration uint64) (*bmff.Box, *bmff.Box) {
	ftyp := &bmff.Box{
		Type: bmff.TypeFtyp,
		Ftyp: &bmff.FtypBox{
			MajorBrand:       [4]byte{'i', 's', 'o', '5'},
			MinorVersion:     0,
			CompatibleBrands: [][4]byte{{'i', 's', 'o', '5'}, {'i', 's', 'o', 'm'}},
		},
	}

	avcC := &bmff.Box{Type: bmff.TypeAvcC, AvcC: &bmff.AvcCBox{Raw: []byte{1, 0x64, 0x00, 0x1f, 0xff}}}
	avc1 := &bmff.Box{
		Type: bmff.TypeAvc1,
		Sample: &bmff.SampleEntry{
			DataReferenceIndex: 1,
			Width:              1920,
			Height:             1080,
			FrameCount:         1,
			Depth:              24,
			AvcC:               avcC.AvcC,
		},
	}
	stsd := &bmff.Box{Type: bmff.TypeStsd, Stsd: &bmff.StsdBox{EntryCount: 1}, Children: []*bmff.Box{avc1}}
	stbl := &bmff.Box{
		Type: bmff.TypeStbl,
		Children: []*bmff.Box{
			stsd,
			{Type: bmff.TypeStts, Stts: &bmff.SttsBox{Entries: []bmff.SttsEntry{{Count: 4, Duration: 10}}}},
			{Type: bmff.TypeCtts, Ctts: &bmff.CttsBox{Entries: []bmff.CttsEntry{{Count: 4, Offset: 2}}}},
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
			{Type: bmff.TypeMdhd, Mdhd: &bmff.MdhdBox{Timescale: 1000, Duration: duration}},
			{Type: bmff.TypeHdlr, Hdlr: &bmff.HdlrBox{HandlerType: [4]byte{'v', 'i', 'd', 'e'}, Name: "VideoHandler"}},
			minf,
		},
	}
	edts := &bmff.Box{
		Type: bmff.TypeEdts,
		Children: []*bmff.Box{
			{Type: bmff.TypeElst, Elst: &bmff.ElstBox{Entries: []bmff.ElstEntry{{SegmentDuration: 40, MediaTime: 10, MediaRateInt: 1}}}},
		},
	}
	trak := &bmff.Box{
		Type: bmff.TypeTrak,
		Children: []*bmff.Box{
			{Type: bmff.TypeTkhd, Tkhd: &bmff.TkhdBox{TrackId: 1, Duration: duration, Width: 1920 << 16, Height: 1080 << 16}},
			edts,
			mdia,
		},
	}
	moov := &bmff.Box{
		Type: bmff.TypeMoov,
		Children: []*bmff.Box{
			{Type: bmff.TypeMvhd, Mvhd: &bmff.MvhdBox{Timescale: 1000, Duration: duration, NextTrackId: 2}},
			trak,
		},
	}
	return ftyp, moov
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ftyp, moov := buildMoovTree(40)

	buf, err := bmff.EncodeAll([]*bmff.Box{ftyp, moov})
	require.NoError(t, err)

	boxes, err := bmff.DecodeAll(buf, 0, len(buf))
	require.NoError(t, err)
	require.Len(t, boxes, 2)

	gotFtyp, gotMoov := boxes[0], boxes[1]
	require.NotNil(t, gotFtyp.Ftyp)
	assert.Equal(t, ftyp.Ftyp.MajorBrand, gotFtyp.Ftyp.MajorBrand)
	assert.Equal(t, ftyp.Ftyp.CompatibleBrands, gotFtyp.Ftyp.CompatibleBrands)

	gotMvhd := gotMoov.Child(bmff.TypeMvhd)
	require.NotNil(t, gotMvhd)
	assert.Equal(t, uint32(1000), gotMvhd.Mvhd.Timescale)
	assert.Equal(t, uint64(40), gotMvhd.Mvhd.Duration)
	assert.Equal(t, uint32(2), gotMvhd.Mvhd.NextTrackId)
	assert.Equal(t, uint8(0), gotMvhd.Version, "duration under 2^32 must encode as version 0")

	gotTrak := gotMoov.Child(bmff.TypeTrak)
	require.NotNil(t, gotTrak)
	gotTkhd := gotTrak.Child(bmff.TypeTkhd)
	require.NotNil(t, gotTkhd)
	assert.Equal(t, uint32(1), gotTkhd.Tkhd.TrackId)
	assert.Equal(t, uint32(1920<<16), gotTkhd.Tkhd.Width)

	gotElst := gotTrak.Child(bmff.TypeEdts).Child(bmff.TypeElst)
	require.NotNil(t, gotElst)
	require.Len(t, gotElst.Elst.Entries, 1)
	assert.Equal(t, int64(10), gotElst.Elst.Entries[0].MediaTime)

	gotStbl := gotTrak.Child(bmff.TypeMdia).Child(bmff.TypeMinf).Child(bmff.TypeStbl)
	require.NotNil(t, gotStbl)

	gotStts := gotStbl.Child(bmff.TypeStts)
	require.Len(t, gotStts.Stts.Entries, 1)
	assert.Equal(t, uint32(4), gotStts.Stts.Entries[0].Count)
	assert.Equal(t, uint32(10), gotStts.Stts.Entries[0].Duration)

	gotCtts := gotStbl.Child(bmff.TypeCtts)
	require.NotNil(t, gotCtts)
	assert.Equal(t, int32(2), gotCtts.Ctts.Entries[0].Offset)

	gotStsz := gotStbl.Child(bmff.TypeStsz)
	assert.Equal(t, uint32(100), gotStsz.Stsz.SampleSize)
	assert.Equal(t, uint32(4), gotStsz.Stsz.SampleCount)

	gotStco := gotStbl.Child(bmff.TypeStco)
	assert.Equal(t, []uint32{1000}, gotStco.Stco.Entries)

	gotStss := gotStbl.Child(bmff.TypeStss)
	assert.Equal(t, []uint32{1}, gotStss.Stss.Entries)

	gotStsd := gotStbl.Child(bmff.TypeStsd)
	require.Len(t, gotStsd.Children, 1)
	gotAvc1 := gotStsd.Children[0]
	require.NotNil(t, gotAvc1.Sample)
	assert.Equal(t, uint16(1920), gotAvc1.Sample.Width)
	assert.Equal(t, uint16(1080), gotAvc1.Sample.Height)
	require.NotNil(t, gotAvc1.Sample.AvcC)
	assert.Equal(t, "64001f", gotAvc1.Sample.AvcC.ProfileLevel)
}

func TestEncodeDecodeLargeDurationUsesVersion1(t *testing.T) {
	const bigDuration = uint64(1) << 33 // exceeds 32-bit field width
	ftyp, moov := buildMoovTree(bigDuration)

	buf, err := bmff.EncodeAll([]*bmff.Box{ftyp, moov})
	require.NoError(t, err)

	boxes, err := bmff.DecodeAll(buf, 0, len(buf))
	require.NoError(t, err)

	gotMvhd := boxes[1].Child(bmff.TypeMvhd)
	require.NotNil(t, gotMvhd)
	assert.Equal(t, uint8(1), gotMvhd.Version)
	assert.Equal(t, bigDuration, gotMvhd.Mvhd.Duration)
}

func TestDecodeTruncatedBoxIsMalformed(t *testing.T) {
	_, err := bmff.Decode([]byte{0, 0, 0, 1}, 0, 4)
	require.Error(t, err)
	var berr *bmff.Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, bmff.Malformed, berr.Kind)
}

func TestEncodeMdatWithoutRawIsEncodingError(t *testing.T) {
	_, err := bmff.EncodeToBytes(&bmff.Box{Type: bmff.TypeMdat, Mdat: &bmff.MdatBox{}})
	require.Error(t, err)
	var berr *bmff.Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, bmff.Encoding, berr.Kind)
}

func TestChildAndChildList(t *testing.T) {
	_, moov := buildMoovTree(40)
	assert.Nil(t, moov.Child(bmff.TypeMoof))
	traks := moov.ChildList(bmff.TypeTrak)
	require.Len(t, traks, 1)
}

func TestEncodeAndDecodeFragmentBoxes(t *testing.T) {
	moof := &bmff.Box{
		Type: bmff.TypeMoof,
		Children: []*bmff.Box{
			{Type: bmff.TypeMfhd, Mfhd: &bmff.MfhdBox{SequenceNumber: 7}},
			{
				Type: bmff.TypeTraf,
				Children: []*bmff.Box{
					{Type: bmff.TypeTfhd, Tfhd: &bmff.TfhdBox{TrackId: 1, Flags: bmff.TfhdDefaultBaseIsMoof}},
					{Type: bmff.TypeTfdt, Tfdt: &bmff.TfdtBox{BaseMediaDecodeTime: 500}},
					{
						Type: bmff.TypeTrun,
						Trun: &bmff.TrunBox{
							Flags: bmff.TrunSampleDurationPresent | bmff.TrunSampleSizePresent | bmff.TrunSampleCompositionTimeOffsetPresent,
							Entries: []bmff.TrunEntry{
								{Duration: 10, Size: 100, CompositionTimeOffset: 2},
								{Duration: 10, Size: 120, CompositionTimeOffset: -1},
							},
						},
					},
				},
			},
		},
	}

	buf, err := bmff.EncodeToBytes(moof)
	require.NoError(t, err)

	got, err := bmff.Decode(buf, 0, len(buf))
	require.NoError(t, err)

	gotTraf := got.Child(bmff.TypeTraf)
	require.NotNil(t, gotTraf)
	gotTrun := gotTraf.Child(bmff.TypeTrun)
	require.NotNil(t, gotTrun)
	require.Len(t, gotTrun.Trun.Entries, 2)
	assert.Equal(t, uint32(120), gotTrun.Trun.Entries[1].Size)
	assert.Equal(t, int32(-1), gotTrun.Trun.Entries[1].CompositionTimeOffset)

	gotTfdt := gotTraf.Child(bmff.TypeTfdt)
	assert.Equal(t, uint64(500), gotTfdt.Tfdt.BaseMediaDecodeTime)
}
