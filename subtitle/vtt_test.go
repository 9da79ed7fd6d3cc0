package subtitle

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleVTT = `WEBVTT

1
00:00:01.000 --> 00:00:04.500 position:50%,line:0 align:center
<i>hello</i> world

00:00:05.250 --> 00:00:06.000
second cue
`

func TestParseVTT(t *testing.T) {
	cues, err := ParseVTT(strings.NewReader(sampleVTT))
	require.NoError(t, err)
	require.Len(t, cues, 2)

	assert.Equal(t, "1", cues[0].ID)
	assert.Equal(t, 1.0, cues[0].Start)
	assert.Equal(t, 4.5, cues[0].End)
	assert.Equal(t, "position:50%,line:0 align:center", cues[0].Settings)
	assert.Equal(t, "<i>hello</i> world", cues[0].Text)

	assert.Equal(t, "", cues[1].ID)
	assert.Equal(t, 5.25, cues[1].Start)
}

func TestParseVTTStripsBOM(t *testing.T) {
	_, err := ParseVTT(strings.NewReader("﻿WEBVTT\n\n00:00:00.000 --> 00:00:01.000\nhi\n"))
	require.NoError(t, err)
}

func TestParseVTTMissingHeader(t *testing.T) {
	_, err := ParseVTT(strings.NewReader("not a vtt file\n"))
	assert.Error(t, err)
}

func TestRenderVTTStripsDisallowedTags(t *testing.T) {
	cues := []Cue{{Start: 0, End: 1.5, Text: "<u>under</u> <i>ital</i> <b>bold</b> <x>kept?</x>"}}
	out := string(RenderVTT(cues))

	assert.Contains(t, out, "WEBVTT\n\n")
	assert.Contains(t, out, "under")
	assert.NotContains(t, out, "<u>")
	assert.Contains(t, out, "<i>ital</i>")
	assert.Contains(t, out, "<b>bold</b>")
	assert.NotContains(t, out, "<x>")
}

func TestParseSegmentedVTTOffsetsTimestamps(t *testing.T) {
	segs := []SegmentRef{
		{URI: "a.vtt", Duration: 10},
		{URI: "b.vtt", Duration: 5},
	}
	sources := map[string]string{
		"a.vtt": "WEBVTT\n\n00:00:00.000 --> 00:00:01.000\nfirst\n",
		"b.vtt": "WEBVTT\n\n00:00:00.000 --> 00:00:02.000\nsecond\n",
	}
	fetch := func(uri string) (io.Reader, error) {
		return strings.NewReader(sources[uri]), nil
	}

	cues, err := ParseSegmentedVTT(segs, fetch)
	require.NoError(t, err)
	require.Len(t, cues, 2)

	assert.Equal(t, 0.0, cues[0].Start)
	assert.Equal(t, 10.0, cues[1].Start)
	assert.Equal(t, 12.0, cues[1].End)
}
