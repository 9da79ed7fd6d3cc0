package subtitle

import (
	"strconv"
	"strings"
)

// RenderSRT renders cues as SubRip text (spec.md §4.6's "supplemented"
// scope, §1): sequential integer cue numbers, "HH:MM:SS,mmm -->
// HH:MM:SS,mmm" timing (comma-separated milliseconds, SRT's own
// convention, unlike WebVTT's dot), and the cue text unchanged — SRT
// carries no cue-settings line, and the Chromecast tag restriction is a
// WebVTT-output quirk only, so <i>/<b>/<u> all pass through here.
func RenderSRT(cues []Cue) []byte {
	var b strings.Builder
	for i, c := range cues {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteByte('\n')
		b.WriteString(formatTimestamp(c.Start, ','))
		b.WriteString(" --> ")
		b.WriteString(formatTimestamp(c.End, ','))
		b.WriteByte('\n')
		b.WriteString(c.Text)
		b.WriteString("\n\n")
	}
	return []byte(b.String())
}
