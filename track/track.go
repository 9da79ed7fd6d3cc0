// Package track derives the per-track sample model (spec'd as TrackModel)
// from a parsed moov subtree: the sample table used by both the
// progressive rewriter and the fragmenter, plus edit-list interpretation,
// which only the fragmenter needs.
package track

import (
	"sort"

	"github.com/tetsuo/vodstream/bmff"
)

// Sample is one decoded sample (frame, access unit, or subtitle cue) with
// everything the downstream packages need to address and order it.
type Sample struct {
	Offset             int64
	Size               uint32
	Duration           uint32
	DTS                int64
	PresentationOffset int32
	Sync               bool
}

// PTS returns the sample's presentation timestamp in the track's timescale.
func (s Sample) PTS() int64 {
	return s.DTS + int64(s.PresentationOffset)
}

// SampleTable is the ordered, derived sample sequence for one track.
type SampleTable struct {
	Entries []Sample
}

// Track is the TrackModel for one track: identity, timing, sample table,
// and the raw (untranslated) edit list.
type Track struct {
	TrackId     uint32
	HandlerType [4]byte
	Language    uint16
	Timescale   uint32
	Duration    uint64 // mdhd duration, media timescale

	// Width and Height are the tkhd track dimensions (whole pixels,
	// truncated from 16.16 fixed point); both zero for non-video tracks.
	Width, Height uint16

	// Codec is the RFC 6381 codec string (e.g. "avc1.640028",
	// "mp4a.40.2"); Mime is the matching RFC 6381 "video/mp4" /
	// "audio/mp4" MIME type used in the HLS CODECS attribute. Both are
	// empty for an unrecognised sample entry kind (e.g. tx3g, handled
	// by the subtitle package instead of by codec string).
	Codec string
	Mime  string

	Table SampleTable
	Edits []bmff.ElstEntry

	// DefaultSampleDescriptionIndex is the sample description index shared
	// by every chunk (mixed sample description indices within one track
	// are not supported; see BuildTrack).
	DefaultSampleDescriptionIndex uint32
}

// DurationSeconds returns the track's total sample duration in seconds,
// summing the sample table rather than trusting mdhd's duration field,
// which some encoders leave stale after edit-list trimming.
func (t *Track) DurationSeconds() float64 {
	var total uint64
	for _, s := range t.Table.Entries {
		total += uint64(s.Duration)
	}
	return float64(total) / float64(t.Timescale)
}

// IsVideo, IsAudio and IsSubtitle classify a track by its mdia handler.
func (t *Track) IsVideo() bool    { return t.HandlerType == [4]byte{'v', 'i', 'd', 'e'} }
func (t *Track) IsAudio() bool    { return t.HandlerType == [4]byte{'s', 'o', 'u', 'n'} }
func (t *Track) IsSubtitle() bool { return t.HandlerType == [4]byte{'t', 'e', 'x', 't'} }

// FindTrack returns the track with the given id, or nil.
func FindTrack(tracks []*Track, id uint32) *Track {
	for _, t := range tracks {
		if t.TrackId == id {
			return t
		}
	}
	return nil
}

// BuildTrack derives a Track from a trak box's children.
func BuildTrack(trak *bmff.Box) (*Track, error) {
	tkhdBox := trak.Child(bmff.TypeTkhd)
	if tkhdBox == nil || tkhdBox.Tkhd == nil {
		return nil, newMalformed(0, "trak missing tkhd")
	}
	mdiaBox := trak.Child(bmff.TypeMdia)
	if mdiaBox == nil {
		return nil, newMalformed(tkhdBox.Tkhd.TrackId, "trak missing mdia")
	}
	mdhdBox := mdiaBox.Child(bmff.TypeMdhd)
	if mdhdBox == nil || mdhdBox.Mdhd == nil {
		return nil, newMalformed(tkhdBox.Tkhd.TrackId, "mdia missing mdhd")
	}
	hdlrBox := mdiaBox.Child(bmff.TypeHdlr)
	if hdlrBox == nil || hdlrBox.Hdlr == nil {
		return nil, newMalformed(tkhdBox.Tkhd.TrackId, "mdia missing hdlr")
	}
	minfBox := mdiaBox.Child(bmff.TypeMinf)
	if minfBox == nil {
		return nil, newMalformed(tkhdBox.Tkhd.TrackId, "mdia missing minf")
	}
	stblBox := minfBox.Child(bmff.TypeStbl)
	if stblBox == nil {
		return nil, newMalformed(tkhdBox.Tkhd.TrackId, "minf missing stbl")
	}

	t := &Track{
		TrackId:     tkhdBox.Tkhd.TrackId,
		HandlerType: hdlrBox.Hdlr.HandlerType,
		Language:    mdhdBox.Mdhd.Language,
		Timescale:   mdhdBox.Mdhd.Timescale,
		Duration:    mdhdBox.Mdhd.Duration,
		Width:       uint16(tkhdBox.Tkhd.Width >> 16),
		Height:      uint16(tkhdBox.Tkhd.Height >> 16),
	}

	if stsdBox := stblBox.Child(bmff.TypeStsd); stsdBox != nil && len(stsdBox.Children) > 0 {
		t.Codec, t.Mime = codecString(stsdBox.Children[0])
	}

	if edtsBox := trak.Child(bmff.TypeEdts); edtsBox != nil {
		if elstBox := edtsBox.Child(bmff.TypeElst); elstBox != nil && elstBox.Elst != nil {
			t.Edits = elstBox.Elst.Entries
		}
	}

	table, defaultSdi, err := buildSampleTable(stblBox)
	if err != nil {
		return nil, newMalformed(t.TrackId, err.Error())
	}
	t.Table = table
	t.DefaultSampleDescriptionIndex = defaultSdi

	return t, nil
}

// codecString derives the RFC 6381 codec and MIME strings for a sample
// entry, the same dispatch remux's progressive rewriter uses, applied
// here to every recognised kind rather than just the first video/audio
// track (spec.md §4.5 needs a CODECS attribute for every rendition).
func codecString(entry *bmff.Box) (codec, mime string) {
	switch entry.Type {
	case bmff.TypeAvc1:
		codec = "avc1"
		if entry.Sample != nil && entry.Sample.AvcC != nil && entry.Sample.AvcC.ProfileLevel != "" {
			codec += "." + entry.Sample.AvcC.ProfileLevel
		}
		return codec, `video/mp4; codecs="` + codec + `"`
	case bmff.TypeHvc1:
		codec = "hvc1"
		return codec, `video/mp4; codecs="` + codec + `"`
	case bmff.TypeMp4a:
		codec = "mp4a"
		if entry.Sample != nil && entry.Sample.Esds != nil && entry.Sample.Esds.Codec != "" {
			codec += "." + entry.Sample.Esds.Codec
		}
		return codec, `audio/mp4; codecs="` + codec + `"`
	default:
		return "", ""
	}
}

func buildSampleTable(stbl *bmff.Box) (SampleTable, uint32, error) {
	stszBox := stbl.Child(bmff.TypeStsz)
	if stszBox == nil || stszBox.Stsz == nil {
		return SampleTable{}, 0, errMissing("stsz")
	}
	sttsBox := stbl.Child(bmff.TypeStts)
	if sttsBox == nil || sttsBox.Stts == nil {
		return SampleTable{}, 0, errMissing("stts")
	}
	stscBox := stbl.Child(bmff.TypeStsc)
	if stscBox == nil || stscBox.Stsc == nil || len(stscBox.Stsc.Entries) == 0 {
		return SampleTable{}, 0, errMissing("stsc")
	}

	var chunkOffsets []int64
	if co64Box := stbl.Child(bmff.TypeCo64); co64Box != nil && co64Box.Co64 != nil {
		chunkOffsets = make([]int64, len(co64Box.Co64.Entries))
		for i, v := range co64Box.Co64.Entries {
			chunkOffsets[i] = int64(v)
		}
	} else if stcoBox := stbl.Child(bmff.TypeStco); stcoBox != nil && stcoBox.Stco != nil {
		chunkOffsets = make([]int64, len(stcoBox.Stco.Entries))
		for i, v := range stcoBox.Stco.Entries {
			chunkOffsets[i] = int64(v)
		}
	} else {
		return SampleTable{}, 0, errMissing("stco/co64")
	}

	numSamples := int(stszBox.Stsz.SampleCount)
	entries := make([]Sample, numSamples)

	var cttsEntries []bmff.CttsEntry
	if cttsBox := stbl.Child(bmff.TypeCtts); cttsBox != nil && cttsBox.Ctts != nil {
		cttsEntries = cttsBox.Ctts.Entries
	}
	var syncEntries []uint32
	if stssBox := stbl.Child(bmff.TypeStss); stssBox != nil && stssBox.Stss != nil {
		syncEntries = stssBox.Stss.Entries
	}

	stscEntries := stscBox.Stsc.Entries
	sampleToChunkIdx := 0
	sampleInChunk := 0
	chunk := 0
	var offsetInChunk int64

	sttsEntries := sttsBox.Stts.Entries
	decodingIdx, decodingOff := 0, 0
	cttsIdx, cttsOff := 0, 0
	syncIdx := 0

	var dts int64
	var defaultSdi uint32

	for i := range numSamples {
		curr := stscEntries[sampleToChunkIdx]
		defaultSdi = curr.SampleDescriptionId

		var size uint32
		if stszBox.Stsz.SampleSize != 0 {
			size = stszBox.Stsz.SampleSize
		} else if i < len(stszBox.Stsz.Entries) {
			size = stszBox.Stsz.Entries[i]
		}

		var duration uint32
		if decodingIdx < len(sttsEntries) {
			duration = sttsEntries[decodingIdx].Duration
		}

		var presentationOffset int32
		if cttsIdx < len(cttsEntries) {
			presentationOffset = cttsEntries[cttsIdx].Offset
		}

		sync := true
		if syncEntries != nil {
			sync = syncIdx < len(syncEntries) && syncEntries[syncIdx] == uint32(i+1)
		}

		entries[i] = Sample{
			Offset:             offsetInChunk + chunkOffsets[chunk],
			Size:               size,
			Duration:           duration,
			DTS:                dts,
			PresentationOffset: presentationOffset,
			Sync:               sync,
		}

		if i+1 >= numSamples {
			break
		}

		sampleInChunk++
		offsetInChunk += int64(size)
		if sampleInChunk >= int(curr.SamplesPerChunk) {
			sampleInChunk = 0
			offsetInChunk = 0
			chunk++
			if sampleToChunkIdx+1 < len(stscEntries) {
				next := stscEntries[sampleToChunkIdx+1]
				if uint32(chunk+1) >= next.FirstChunk {
					sampleToChunkIdx++
				}
			}
		}

		dts += int64(duration)
		decodingOff++
		if decodingIdx < len(sttsEntries) && decodingOff >= int(sttsEntries[decodingIdx].Count) {
			decodingIdx++
			decodingOff = 0
		}
		if cttsEntries != nil {
			cttsOff++
			if cttsIdx < len(cttsEntries) && cttsOff >= int(cttsEntries[cttsIdx].Count) {
				cttsIdx++
				cttsOff = 0
			}
		}
		if sync {
			syncIdx++
		}
	}

	return SampleTable{Entries: entries}, defaultSdi, nil
}

// FindSampleAfter returns the index of the first sync sample whose PTS is
// at or after timeSeconds, clamped to the last sample.
func (t *Track) FindSampleAfter(timeSeconds float64) int {
	scaled := int64(timeSeconds * float64(t.Timescale))
	samples := t.Table.Entries

	idx := sort.Search(len(samples), func(i int) bool {
		return samples[i].PTS() >= scaled
	})
	if idx >= len(samples) {
		return len(samples) - 1
	}
	for idx < len(samples) && !samples[idx].Sync {
		idx++
	}
	if idx >= len(samples) {
		return len(samples) - 1
	}
	return idx
}

// SampleRange is a half-open [First, Last) interval of sample indices, with
// its own decode-time origin (spec.md §3).
type SampleRange struct {
	First            int
	Last             int
	DecodeTimeOrigin int64
}

// NewSampleRange builds a SampleRange over [first, last) of t's samples.
func (t *Track) NewSampleRange(first, last int) SampleRange {
	origin := int64(0)
	if first < len(t.Table.Entries) {
		origin = t.Table.Entries[first].DTS
	}
	return SampleRange{First: first, Last: last, DecodeTimeOrigin: origin}
}
