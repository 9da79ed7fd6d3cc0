package subtitle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tx3gSample builds a raw TX3G mdat payload: 2-byte length, UTF-8 text,
// and an optional 'styl' box covering one style run.
func tx3gSample(text string, run *tx3gStyleRun) []byte {
	buf := make([]byte, 2, 2+len(text)+64)
	be.PutUint16(buf, uint16(len(text)))
	buf = append(buf, text...)
	if run == nil {
		return buf
	}
	body := make([]byte, 2+12)
	be.PutUint16(body[0:2], 1)
	be.PutUint16(body[2:4], run.startChar)
	be.PutUint16(body[4:6], run.endChar)
	var flags byte
	if run.bold {
		flags |= 0x1
	}
	if run.italic {
		flags |= 0x2
	}
	if run.underline {
		flags |= 0x4
	}
	body[8] = flags
	styl := make([]byte, 8+len(body))
	be.PutUint32(styl[0:4], uint32(len(styl)))
	copy(styl[4:8], "styl")
	copy(styl[8:], body)
	return append(buf, styl...)
}

func TestTX3GToVTTPlainText(t *testing.T) {
	samples := []RawSample{
		{Start: 1.0, End: 2.5, Data: tx3gSample("hello & <world>", nil)},
	}
	cues := TX3GToVTT(samples)
	require.Len(t, cues, 1)
	assert.Equal(t, 1.0, cues[0].Start)
	assert.Equal(t, 2.5, cues[0].End)
	assert.Equal(t, "hello &amp; &lt;world&gt;", cues[0].Text)
}

func TestTX3GToVTTStyledRun(t *testing.T) {
	run := &tx3gStyleRun{startChar: 0, endChar: 5, bold: true}
	samples := []RawSample{{Start: 0, End: 1, Data: tx3gSample("hello world", run)}}

	cues := TX3GToVTT(samples)
	require.Len(t, cues, 1)
	assert.Equal(t, "<b>hello</b> world", cues[0].Text)
}

func TestTX3GToVTTUTF16(t *testing.T) {
	text := "hé"
	utf16Bytes := []byte{0xfe, 0xff, 0x00, 'h', 0x00, 0xe9}
	buf := make([]byte, 2, 2+len(utf16Bytes))
	be.PutUint16(buf, uint16(len(utf16Bytes)))
	buf = append(buf, utf16Bytes...)

	cues := TX3GToVTT([]RawSample{{Start: 0, End: 1, Data: buf}})
	require.Len(t, cues, 1)
	assert.Equal(t, text, cues[0].Text)
}

func TestRenderSRT(t *testing.T) {
	cues := []Cue{{Start: 1.5, End: 3.25, Text: "hi"}}
	out := string(RenderSRT(cues))
	assert.Contains(t, out, "1\n")
	assert.Contains(t, out, "00:00:01,500 --> 00:00:03,250")
	assert.Contains(t, out, "hi")
}
