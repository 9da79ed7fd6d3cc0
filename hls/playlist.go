package hls

import (
	"bytes"
	"math"
	"strconv"
	"text/template"

	"github.com/tetsuo/vodstream/track"
)

// videoRendition is one #EXT-X-STREAM-INF entry.
type videoRendition struct {
	URI           string
	Bandwidth     uint64
	Codecs        string
	Resolution    string
	AudioGroup    string
	SubtitleGroup string
}

// alternative is one #EXT-X-MEDIA entry (audio or subtitle).
type alternative struct {
	Type     string // "AUDIO" or "SUBTITLES"
	GroupId  string
	Name     string
	Language string
	Default  bool
	URI      string
	codec    string
}

type masterData struct {
	Videos      []videoRendition
	Audios      []alternative
	Subtitles   []alternative
	HasAudio    bool
	HasSubtitle bool
}

const audioGroupId = "aud0"
const subtitleGroupId = "sub0"

var masterTmpl = template.Must(template.New("master").Parse(`#EXTM3U
#EXT-X-VERSION:7
{{- range .Audios}}
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="{{.GroupId}}",NAME="{{.Name}}",LANGUAGE="{{.Language}}",DEFAULT={{if .Default}}YES{{else}}NO{{end}},AUTOSELECT=YES,URI="{{.URI}}"
{{- end}}
{{- range .Subtitles}}
#EXT-X-MEDIA:TYPE=SUBTITLES,GROUP-ID="{{.GroupId}}",NAME="{{.Name}}",LANGUAGE="{{.Language}}",DEFAULT={{if .Default}}YES{{else}}NO{{end}},AUTOSELECT=YES,URI="{{.URI}}"
{{- end}}
{{- range .Videos}}
#EXT-X-STREAM-INF:BANDWIDTH={{.Bandwidth}},CODECS="{{.Codecs}}"{{if .Resolution}},RESOLUTION={{.Resolution}}{{end}}{{if .AudioGroup}},AUDIO="{{.AudioGroup}}"{{end}}{{if .SubtitleGroup}},SUBTITLES="{{.SubtitleGroup}}"{{end}}
{{.URI}}
{{- end}}
`))

// MasterPlaylist renders the top-level HLS playlist enumerating one
// #EXT-X-STREAM-INF per video track, with #EXT-X-MEDIA alternatives for
// every audio and subtitle track, per spec.md §4.5. Rendering goes
// through text/template (not string concatenation) because the template
// is the one place the full grammar of a playlist line is visible at a
// glance, matching how multi-line, conditionally-attributed text formats
// are usually produced rather than assembled field by field.
func MasterPlaylist(tracks []*track.Track) ([]byte, error) {
	data := masterData{}

	for _, t := range tracks {
		if t.IsAudio() {
			data.Audios = append(data.Audios, alternative{
				Type:     "AUDIO",
				GroupId:  audioGroupId,
				Name:     languageTag(t.Language),
				Language: languageTag(t.Language),
				Default:  len(data.Audios) == 0,
				URI:      MediaPlaylistURI(t),
				codec:    t.Codec,
			})
		}
	}
	for _, t := range tracks {
		if t.IsSubtitle() {
			data.Subtitles = append(data.Subtitles, alternative{
				Type:     "SUBTITLES",
				GroupId:  subtitleGroupId,
				Name:     languageTag(t.Language),
				Language: languageTag(t.Language),
				Default:  len(data.Subtitles) == 0,
				URI:      MediaPlaylistURI(t),
			})
		}
	}
	data.HasAudio = len(data.Audios) > 0
	data.HasSubtitle = len(data.Subtitles) > 0

	for _, t := range tracks {
		if !t.IsVideo() {
			continue
		}
		codecs := t.Codec
		if data.HasAudio && data.Audios[0].codec != "" {
			codecs += "," + data.Audios[0].codec
		}
		v := videoRendition{
			URI:       MediaPlaylistURI(t),
			Bandwidth: bandwidth(t),
			Codecs:    codecs,
		}
		if t.Width > 0 && t.Height > 0 {
			v.Resolution = resolutionString(t.Width, t.Height)
		}
		if data.HasAudio {
			v.AudioGroup = audioGroupId
		}
		if data.HasSubtitle {
			v.SubtitleGroup = subtitleGroupId
		}
		data.Videos = append(data.Videos, v)
	}

	var buf bytes.Buffer
	if err := masterTmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type segmentData struct {
	Duration float64
	URI      string
}

type mediaData struct {
	TargetDuration int
	InitURI        string
	Segments       []segmentData
}

var mediaTmpl = template.Must(template.New("media").Parse(`#EXTM3U
#EXT-X-VERSION:7
#EXT-X-TARGETDURATION:{{.TargetDuration}}
#EXT-X-PLAYLIST-TYPE:VOD
#EXT-X-MAP:URI="{{.InitURI}}"
{{- range .Segments}}
#EXTINF:{{printf "%.5f" .Duration}},
{{.URI}}
{{- end}}
#EXT-X-ENDLIST
`))

// MediaPlaylist renders the per-track playlist for t: VOD, target
// duration equal to the ceiling of the longest segment's duration, an
// #EXT-X-MAP pointing at the initialization segment, and one #EXTINF /
// segment-URI pair per range in ranges (spec.md §4.5). ranges is built by
// BuildSegmentRanges for video/audio, or BoundaryAlignedRanges for a
// subtitle track sharing its co-presented video's segment boundaries.
func MediaPlaylist(t *track.Track, ranges []track.SampleRange) ([]byte, error) {
	data := mediaData{InitURI: InitURI(t)}

	var longest float64
	for _, r := range ranges {
		d := rangeDuration(t, r)
		if d > longest {
			longest = d
		}
		data.Segments = append(data.Segments, segmentData{
			Duration: d,
			URI:      SegmentURI(t, r),
		})
	}
	data.TargetDuration = int(math.Ceil(longest))

	var buf bytes.Buffer
	if err := mediaTmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// bandwidth estimates the AVERAGE-BANDWIDTH/BANDWIDTH value as the
// track's mean bitrate in bits per second.
func bandwidth(t *track.Track) uint64 {
	var totalBytes uint64
	for _, s := range t.Table.Entries {
		totalBytes += uint64(s.Size)
	}
	dur := t.DurationSeconds()
	if dur <= 0 {
		return 0
	}
	return uint64(float64(totalBytes) * 8 / dur)
}

func resolutionString(w, h uint16) string {
	return strconv.Itoa(int(w)) + "x" + strconv.Itoa(int(h))
}

// languageTag unpacks mdhd's ISO-639-2/T language code (three 5-bit
// characters biased by 0x60, per ISO/IEC 14496-12) into its ASCII form.
// A zero code (undetermined language) decodes to "und".
func languageTag(packed uint16) string {
	if packed == 0 {
		return "und"
	}
	var b [3]byte
	b[0] = byte((packed>>10)&0x1f) + 0x60
	b[1] = byte((packed>>5)&0x1f) + 0x60
	b[2] = byte(packed&0x1f) + 0x60
	return string(b[:])
}
