package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ParseVTT parses a WebVTT file's cues, per spec.md §4.6: a leading Byte
// Order Mark is tolerated and stripped, cue identifiers are optional, the
// timing line is "HH:MM:SS.mmm --> HH:MM:SS.mmm" (hours may be omitted)
// followed by recognised cue settings (position, line, align, size),
// and <i>/<b> inline tags plus the &amp;/&lt;/&gt; entities are left in
// Cue.Text verbatim for the caller to interpret or re-render.
func ParseVTT(r io.Reader) ([]Cue, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	if !sc.Scan() {
		return nil, fmt.Errorf("subtitle: empty WebVTT input")
	}
	header := strings.TrimPrefix(sc.Text(), "\ufeff")
	if !strings.HasPrefix(header, "WEBVTT") {
		return nil, fmt.Errorf("subtitle: missing WEBVTT header")
	}

	var cues []Cue
	var pendingID string
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			pendingID = ""
			continue
		}
		start, end, settings, ok := parseTimingLine(line)
		if !ok {
			// not a timing line: either a cue identifier or a stray note.
			pendingID = line
			continue
		}

		var textLines []string
		for sc.Scan() {
			l := sc.Text()
			if l == "" {
				break
			}
			textLines = append(textLines, l)
		}

		cues = append(cues, Cue{
			ID:       pendingID,
			Start:    start,
			End:      end,
			Settings: settings,
			Text:     strings.Join(textLines, "\n"),
		})
		pendingID = ""
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("subtitle: reading WebVTT: %w", err)
	}
	return cues, nil
}

var timingLineRe = regexp.MustCompile(
	`^\s*(\d{2,}:)?(\d{2}):(\d{2})\.(\d{3})\s*-->\s*(\d{2,}:)?(\d{2}):(\d{2})\.(\d{3})\s*(.*)$`)

func parseTimingLine(line string) (start, end float64, settings string, ok bool) {
	m := timingLineRe.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, "", false
	}
	start = parseTimestampParts(m[1], m[2], m[3], m[4])
	end = parseTimestampParts(m[5], m[6], m[7], m[8])
	return start, end, strings.TrimSpace(m[9]), true
}

func parseTimestampParts(hours, minutes, seconds, millis string) float64 {
	h, _ := strconv.Atoi(strings.TrimSuffix(hours, ":"))
	m, _ := strconv.Atoi(minutes)
	s, _ := strconv.Atoi(seconds)
	ms, _ := strconv.Atoi(millis)
	return float64(h*3600+m*60+s) + float64(ms)/1000
}

// SegmentRef is one .vtt URI and the #EXTINF duration preceding it in a
// segmented WebVTT playlist.
type SegmentRef struct {
	URI      string
	Duration float64
}

// ParseSegmentedVTT resolves an m3u8 referencing multiple .vtt URIs by
// fetching and concatenating their cues, offsetting each file's
// timestamps by the cumulative duration of the segments before it
// (spec.md §4.6). fetch opens one segment's content; the caller supplies
// it so this package never owns an HTTP client or a path resolver.
func ParseSegmentedVTT(segments []SegmentRef, fetch func(uri string) (io.Reader, error)) ([]Cue, error) {
	var all []Cue
	var offset float64
	for _, seg := range segments {
		r, err := fetch(seg.URI)
		if err != nil {
			return nil, fmt.Errorf("subtitle: fetching %s: %w", seg.URI, err)
		}
		cues, err := ParseVTT(r)
		if err != nil {
			return nil, fmt.Errorf("subtitle: parsing %s: %w", seg.URI, err)
		}
		for _, c := range cues {
			c.Start += offset
			c.End += offset
			all = append(all, c)
		}
		offset += seg.Duration
	}
	return all, nil
}

// allowedVTTTags is spec.md §6's WebVTT output quirk: only <i> and <b>
// survive; anything else (including <u>, which TX3GToVTT can produce) is
// stripped for broadest device compatibility, notably Chromecast.
var allowedVTTTags = map[string]bool{"i": true, "b": true}

var inlineTagRe = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9]*)[^>]*>`)

func filterTags(text string, allowed map[string]bool) string {
	return inlineTagRe.ReplaceAllStringFunc(text, func(tag string) string {
		m := inlineTagRe.FindStringSubmatch(tag)
		if allowed[strings.ToLower(m[1])] {
			return tag
		}
		return ""
	})
}

// RenderVTT renders cues as a WebVTT file matching spec.md §6's device
// compatibility quirks: no leading BOM, only <i>/<b> inline markup,
// position-capable cue settings preserved, every source line break kept
// as a hard break.
func RenderVTT(cues []Cue) []byte {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, c := range cues {
		if c.ID != "" {
			b.WriteString(c.ID)
			b.WriteByte('\n')
		}
		b.WriteString(formatVTTTimestamp(c.Start))
		b.WriteString(" --> ")
		b.WriteString(formatVTTTimestamp(c.End))
		if c.Settings != "" {
			b.WriteByte(' ')
			b.WriteString(c.Settings)
		}
		b.WriteByte('\n')
		b.WriteString(filterTags(c.Text, allowedVTTTags))
		b.WriteString("\n\n")
	}
	return []byte(b.String())
}

func formatVTTTimestamp(sec float64) string {
	return formatTimestamp(sec, '.')
}

func formatTimestamp(sec float64, fracSep byte) string {
	if sec < 0 {
		sec = 0
	}
	totalMs := int64(math.Round(sec * 1000))
	h := totalMs / 3600000
	totalMs %= 3600000
	m := totalMs / 60000
	totalMs %= 60000
	s := totalMs / 1000
	ms := totalMs % 1000
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, fracSep, ms)
}
