// Package hls builds master and per-track HLS playlists over a TrackModel,
// and derives the SampleRanges each media segment covers.
package hls

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tetsuo/vodstream/track"
)

// Kind classifies a track for segment naming and content negotiation.
type Kind uint8

const (
	KindVideo Kind = iota
	KindAudio
	KindSubtitle
)

func kindOf(t *track.Track) Kind {
	switch {
	case t.IsVideo():
		return KindVideo
	case t.IsAudio():
		return KindAudio
	default:
		return KindSubtitle
	}
}

// dir and ext match the seven URL shapes of spec.md §6 exactly.
func (k Kind) dir() string {
	switch k {
	case KindVideo:
		return "v"
	case KindAudio:
		return "a"
	default:
		return "s"
	}
}

func (k Kind) ext() string {
	switch k {
	case KindVideo:
		return "mp4"
	case KindAudio:
		return "m4a"
	default:
		return "vtt"
	}
}

// SegmentURI builds the literal "c.<track>.<first>-<last>.<ext>" segment
// path, under the track-kind's directory, per spec.md §4.5/§6. It requires
// no server-side state to decode: a router can parse it back into
// (track, first, last) with ParseSegmentURI.
func SegmentURI(t *track.Track, rng track.SampleRange) string {
	k := kindOf(t)
	return fmt.Sprintf("%s/c.%d.%d-%d.%s", k.dir(), t.TrackId, rng.First, rng.Last, k.ext())
}

// InitURI builds the "init.<track>.mp4" initialization-segment path.
func InitURI(t *track.Track) string {
	return fmt.Sprintf("init.%d.mp4", t.TrackId)
}

// MediaPlaylistURI builds the "media.<track>.m3u8" per-track playlist path.
func MediaPlaylistURI(t *track.Track) string {
	return fmt.Sprintf("media.%d.m3u8", t.TrackId)
}

// ParseSegmentURI decodes the "c.<track>.<first>-<last>" portion of a
// segment path back into its track id and sample range, the server's
// other half of SegmentURI's literal encoding (spec.md §4.5 "no
// server-side state is required to decode a request"). name excludes the
// kind directory and extension (e.g. "c.1.0-25", not "v/c.1.0-25.mp4").
func ParseSegmentURI(name string) (trackId uint32, first, last int, err error) {
	parts := strings.Split(name, ".")
	if len(parts) != 3 || parts[0] != "c" {
		return 0, 0, 0, fmt.Errorf("hls: malformed segment name %q", name)
	}
	id, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("hls: malformed segment track in %q: %w", name, err)
	}
	bounds := strings.SplitN(parts[2], "-", 2)
	if len(bounds) != 2 {
		return 0, 0, 0, fmt.Errorf("hls: malformed segment range in %q", name)
	}
	first, err = strconv.Atoi(bounds[0])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("hls: malformed segment range in %q: %w", name, err)
	}
	last, err = strconv.Atoi(bounds[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("hls: malformed segment range in %q: %w", name, err)
	}
	return uint32(id), first, last, nil
}

// BuildSegmentRanges derives the SampleRanges for one track's media
// playlist, targeting targetDuration seconds per segment (spec.md §4.5
// "Segmentation"):
//
//   - video: ranges start at sync samples and extend to at least
//     targetDuration before snapping forward to the next sync sample (or
//     the end of the track); the last range absorbs the remainder.
//   - audio and anything else (including TX3G, whose sample boundaries
//     carry no sync flag of their own): sample boundaries are arbitrary,
//     ranges simply target targetDuration.
func BuildSegmentRanges(t *track.Track, targetDuration float64) []track.SampleRange {
	samples := t.Table.Entries
	n := len(samples)
	if n == 0 {
		return nil
	}

	scaledTarget := int64(targetDuration * float64(t.Timescale))
	video := t.IsVideo()

	var ranges []track.SampleRange
	first := 0
	for first < n {
		startDTS := samples[first].DTS
		last := first + 1
		for last < n && samples[last].DTS-startDTS < scaledTarget {
			last++
		}
		if video {
			for last < n && !samples[last].Sync {
				last++
			}
		}
		ranges = append(ranges, t.NewSampleRange(first, last))
		first = last
	}
	return ranges
}

// SegmentBoundaries returns, for each range in ranges, the presentation
// time in seconds at which that range ends — the end of the last sample's
// span if the range reaches the end of the track, otherwise the DTS of the
// first sample past the range. Used to align a co-presented subtitle
// track's ranges to its video's segment boundaries.
func SegmentBoundaries(t *track.Track, ranges []track.SampleRange) []float64 {
	samples := t.Table.Entries
	bounds := make([]float64, len(ranges))
	for i, r := range ranges {
		var endDTS int64
		if r.Last < len(samples) {
			endDTS = samples[r.Last].DTS
		} else if len(samples) > 0 {
			last := samples[len(samples)-1]
			endDTS = last.DTS + int64(last.Duration)
		}
		bounds[i] = float64(endDTS) / float64(t.Timescale)
	}
	return bounds
}

// BoundaryAlignedRanges splits t's samples at the given presentation-time
// boundaries (seconds), producing one range per boundary plus a final
// range for any remainder — the co-presented subtitle segmentation of
// spec.md §4.5. Cue-level clipping of a cue straddling a boundary is the
// subtitle package's job, not this function's: a SampleRange only knows
// about sample indices, not cue text.
func BoundaryAlignedRanges(t *track.Track, boundaries []float64) []track.SampleRange {
	samples := t.Table.Entries
	n := len(samples)
	var ranges []track.SampleRange
	first := 0
	for _, b := range boundaries {
		scaled := int64(b * float64(t.Timescale))
		last := first
		for last < n && samples[last].PTS() < scaled {
			last++
		}
		if last > first {
			ranges = append(ranges, t.NewSampleRange(first, last))
		}
		first = last
	}
	if first < n {
		ranges = append(ranges, t.NewSampleRange(first, n))
	}
	return ranges
}

// rangeDuration returns a range's duration in seconds.
func rangeDuration(t *track.Track, r track.SampleRange) float64 {
	var total uint64
	for _, s := range t.Table.Entries[r.First:r.Last] {
		total += uint64(s.Duration)
	}
	return float64(total) / float64(t.Timescale)
}
