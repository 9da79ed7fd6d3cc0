package bmff

// This file defines the typed payloads attached to a decoded Box. Entry
// types shared with the internal box reader/writer (SttsEntry, CttsEntry,
// StscEntry, ElstEntry, TrunEntry, SidxEntry) are reused as-is so Encode
// can hand them straight to the matching write method.

// FtypBox is a file type or segment type box (ftyp/styp).
type FtypBox struct {
	MajorBrand       [4]byte
	MinorVersion     uint32
	CompatibleBrands [][4]byte
}

// MvhdBox is a movie header box.
type MvhdBox struct {
	Timescale   uint32
	Duration    uint64
	NextTrackId uint32
}

// TkhdBox is a track header box.
type TkhdBox struct {
	Flags    uint32 // full box flags: track enabled/in-movie/in-preview
	TrackId  uint32
	Duration uint64
	Width    uint32 // 16.16 fixed point
	Height   uint32 // 16.16 fixed point
}

// MdhdBox is a media header box.
type MdhdBox struct {
	Timescale uint32
	Duration  uint64
	Language  uint16 // packed ISO-639-2/T code
}

// HdlrBox is a handler reference box.
type HdlrBox struct {
	HandlerType [4]byte
	Name        string
}

// DrefBox is a data reference box. This implementation only emits and
// expects a single self-contained "url " entry (spec §4: no external
// data references are supported).
type DrefBox struct {
	EntryCount uint32
}

// StsdBox is a sample description box. The sample entries themselves are
// the owning Box's Children, each identified by its Type.
type StsdBox struct {
	EntryCount uint32
}

// SampleEntry is the common header shared by visual and audio sample
// entries, plus whichever codec-specific child box was present.
type SampleEntry struct {
	DataReferenceIndex uint16

	// Visual fields (avc1/hvc1)
	Width, Height   uint16
	HResolution     uint32
	VResolution     uint32
	FrameCount      uint16
	CompressorName  string
	Depth           uint16
	AvcC            *AvcCBox
	HvcC            *HvcCBox

	// Audio fields (mp4a)
	ChannelCount uint16
	SampleSize   uint16
	SampleRate   uint32 // 16.16 fixed point
	Esds         *EsdsBox

	// Subtitle fields (tx3g)
	Tx3g *Tx3gBox
}

// AvcCBox carries the raw AVCDecoderConfigurationRecord bytes; only the
// profile/level triplet is decoded eagerly (used for the MIME codec
// string), the rest round-trips via Raw.
type AvcCBox struct {
	ProfileLevel string // e.g. "64001f", from readAvcCCodec
	Raw          []byte
}

// HvcCBox carries the raw HEVCDecoderConfigurationRecord bytes.
type HvcCBox struct {
	Raw []byte
}

// EsdsBox carries the decoded MPEG-4 elementary stream descriptor fields
// relevant to codec identification (see readEsdsCodec).
type EsdsBox struct {
	Codec string // e.g. "40.2" for AAC-LC, from readEsdsCodec
	Raw   []byte
}

// Tx3gBox is a 3GPP timed text sample entry's payload (fixed header plus
// any child boxes), kept as raw bytes: style records are only interpreted
// per-sample in the subtitle package, not at the sample-entry level.
type Tx3gBox struct {
	Raw []byte
}

// StszBox is a sample size box.
type StszBox struct {
	SampleSize  uint32 // non-zero means every sample has this size and Entries is empty
	SampleCount uint32 // total sample count, valid even when SampleSize != 0
	Entries     []uint32
}

// StcoBox is a 32-bit chunk offset box.
type StcoBox struct {
	Entries []uint32
}

// Co64Box is a 64-bit chunk offset box.
type Co64Box struct {
	Entries []uint64
}

// StssBox is a sync sample box.
type StssBox struct {
	Entries []uint32
}

// SttsBox is a time-to-sample box.
type SttsBox struct {
	Entries []SttsEntry
}

// CttsBox is a composition time-to-sample box.
type CttsBox struct {
	Entries []CttsEntry
}

// StscBox is a sample-to-chunk box.
type StscBox struct {
	Entries []StscEntry
}

// ElstBox is an edit list box.
type ElstBox struct {
	Entries []ElstEntry
}

// MehdBox is a movie extends header box.
type MehdBox struct {
	FragmentDuration uint64
}

// TrexBox is a track extends box.
type TrexBox struct {
	TrackId                       uint32
	DefaultSampleDescriptionIndex uint32
	DefaultSampleDuration         uint32
	DefaultSampleSize             uint32
	DefaultSampleFlags            uint32
}

// MfhdBox is a movie fragment header box.
type MfhdBox struct {
	SequenceNumber uint32
}

// TfhdBox is a track fragment header box.
type TfhdBox struct {
	Flags                         uint32
	TrackId                       uint32
	BaseDataOffset                uint64
	SampleDescriptionIndex        uint32
	DefaultSampleDuration         uint32
	DefaultSampleSize             uint32
	DefaultSampleFlags            uint32
}

// TfdtBox is a track fragment base media decode time box.
type TfdtBox struct {
	BaseMediaDecodeTime uint64
}

// TrunBox is a track fragment run box.
type TrunBox struct {
	Flags      uint32
	DataOffset int32
	Entries    []TrunEntry
}

// SidxBox is a segment index box.
type SidxBox struct {
	ReferenceId               uint32
	Timescale                 uint32
	EarliestPresentationTime  uint64
	FirstOffset               uint64
	Entries                   []SidxEntry
}

// MdatBox is a media data box. Decode never copies its payload into Raw:
// ByteOffset/ByteSize describe where the data lives in the source file,
// for a caller to fetch with source.ByteReader. Raw is only populated
// by code that builds an Mdat in memory (e.g. a fragment's own writer).
type MdatBox struct {
	ByteOffset int64
	ByteSize   int64
	Raw        []byte
}
