// Package subtitle implements the TX3G-to-WebVTT transcoding path and the
// WebVTT/SRT text formats around it: a single []Cue model flows between a
// TX3G sample stream, parsed external WebVTT, and both text outputs.
package subtitle

import (
	"encoding/binary"
	"sort"
	"strings"
	"unicode/utf16"
)

var be = binary.BigEndian

// Cue is one subtitle cue: a time span and the text shown during it. Text
// may already carry <i>/<b>/<u> inline markup (from TX3G style runs or a
// parsed external WebVTT file); Render* functions decide which of those
// tags survive in their output.
type Cue struct {
	ID       string
	Start    float64 // seconds
	End      float64 // seconds
	Settings string  // raw WebVTT cue-settings line (position, line, align, size)
	Text     string
}

// RawSample is one TX3G sample: its presentation span and its raw mdat
// payload (length-prefixed text plus optional style boxes), exactly as
// read off disk via the ByteReader layer.
type RawSample struct {
	Start float64
	End   float64
	Data  []byte
}

// TX3GToVTT converts a track's TX3G samples into cues, one cue per
// sample, per spec.md §4.6: text decoded (UTF-8, or UTF-16 if the sample
// starts with a BOM), with <b>/<i>/<u> spans inserted from the sample's
// 'styl' box at the styled runs' UTF-8 code-unit offsets, literal
// '&'/'<'/'>' escaped outside of the inserted tags.
func TX3GToVTT(samples []RawSample) []Cue {
	cues := make([]Cue, len(samples))
	for i, s := range samples {
		cues[i] = Cue{Start: s.Start, End: s.End, Text: decodeTx3gSample(s.Data)}
	}
	return cues
}

// tx3gStyleRun is one 'styl' box style record (ISO/IEC 14496-30 §5.16).
type tx3gStyleRun struct {
	startChar, endChar      uint16
	bold, italic, underline bool
}

func decodeTx3gSample(data []byte) string {
	if len(data) < 2 {
		return ""
	}
	textLen := int(be.Uint16(data[:2]))
	if textLen > len(data)-2 {
		textLen = len(data) - 2
	}
	textBytes := data[2 : 2+textLen]
	rest := data[2+textLen:]

	var text string
	if len(textBytes) >= 2 && textBytes[0] == 0xfe && textBytes[1] == 0xff {
		text = decodeUTF16BE(textBytes[2:])
	} else {
		text = string(textBytes)
	}

	return applyStyleRuns(text, parseStyleRuns(rest))
}

// parseStyleRuns walks the sample's trailing child boxes looking for a
// 'styl' box (the only one TX3GToVTT needs to interpret; 'hlit'/'hclr'
// highlight boxes and box record extensions are left unparsed).
func parseStyleRuns(rest []byte) []tx3gStyleRun {
	var runs []tx3gStyleRun
	for len(rest) >= 8 {
		size := be.Uint32(rest[0:4])
		kind := string(rest[4:8])
		if size < 8 || int64(size) > int64(len(rest)) {
			break
		}
		if kind == "styl" {
			body := rest[8:size]
			if len(body) >= 2 {
				count := int(be.Uint16(body[0:2]))
				body = body[2:]
				for i := 0; i < count && len(body) >= 12; i++ {
					runs = append(runs, tx3gStyleRun{
						startChar: be.Uint16(body[0:2]),
						endChar:   be.Uint16(body[2:4]),
						bold:      body[6]&0x1 != 0,
						italic:    body[6]&0x2 != 0,
						underline: body[6]&0x4 != 0,
					})
					body = body[12:]
				}
			}
		}
		rest = rest[size:]
	}
	return runs
}

type styleMarker struct {
	pos  int
	open bool
	tag  byte
}

func applyStyleRuns(text string, runs []tx3gStyleRun) string {
	if len(runs) == 0 {
		return escapeVTTLiteral(text)
	}

	var markers []styleMarker
	for _, r := range runs {
		for tag, on := range map[byte]bool{'b': r.bold, 'i': r.italic, 'u': r.underline} {
			if on {
				markers = append(markers,
					styleMarker{int(r.startChar), true, tag},
					styleMarker{int(r.endChar), false, tag})
			}
		}
	}
	sort.SliceStable(markers, func(i, j int) bool { return markers[i].pos < markers[j].pos })

	raw := []byte(text)
	var b strings.Builder
	last := 0
	for _, m := range markers {
		pos := m.pos
		if pos > len(raw) {
			pos = len(raw)
		}
		if pos < last {
			pos = last
		}
		b.WriteString(escapeVTTLiteral(string(raw[last:pos])))
		if m.open {
			b.WriteByte('<')
			b.WriteByte(m.tag)
			b.WriteByte('>')
		} else {
			b.WriteString("</")
			b.WriteByte(m.tag)
			b.WriteByte('>')
		}
		last = pos
	}
	b.WriteString(escapeVTTLiteral(string(raw[last:])))
	return b.String()
}

func decodeUTF16BE(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = be.Uint16(b[i*2:])
	}
	return string(utf16.Decode(units))
}

// escapeVTTLiteral escapes the three characters spec.md §4.6 requires
// ('&', '<', '>') in a literal text span, leaving any tag markers the
// caller writes separately untouched.
func escapeVTTLiteral(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
