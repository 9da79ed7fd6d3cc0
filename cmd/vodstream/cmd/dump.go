package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tetsuo/vodstream/bmff"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <file.mp4>",
	Short: "Print an MP4 file's box structure",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)
}

func runDump(_ *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	boxes, err := bmff.DecodeAll(data, 0, len(data))
	if err != nil {
		return fmt.Errorf("decoding %s: %w", args[0], err)
	}
	for _, box := range boxes {
		printBox(box, 0)
	}
	return nil
}

func printBox(box *bmff.Box, depth int) {
	indent := strings.Repeat("  ", depth)
	vf := ""
	if box.HasFullBox {
		vf = fmt.Sprintf(" v=%d flags=0x%06x", box.Version, box.Flags)
	}
	fmt.Printf("%s[%s] size=%d%s%s\n", indent, box.Type, box.Size, vf, boxInfo(box))

	for _, child := range box.Children {
		printBox(child, depth+1)
	}
}

func boxInfo(box *bmff.Box) string {
	switch {
	case box.Ftyp != nil:
		f := box.Ftyp
		brands := make([]string, len(f.CompatibleBrands))
		for i, b := range f.CompatibleBrands {
			brands[i] = string(b[:])
		}
		return fmt.Sprintf(" brand=%s ver=%d compat=[%s]", string(f.MajorBrand[:]), f.MinorVersion, strings.Join(brands, ","))
	case box.Mvhd != nil:
		m := box.Mvhd
		return fmt.Sprintf(" timescale=%d duration=%d nextTrackId=%d", m.Timescale, m.Duration, m.NextTrackId)
	case box.Tkhd != nil:
		t := box.Tkhd
		return fmt.Sprintf(" trackId=%d duration=%d size=%dx%d", t.TrackId, t.Duration, t.Width>>16, t.Height>>16)
	case box.Mdhd != nil:
		m := box.Mdhd
		return fmt.Sprintf(" timescale=%d duration=%d lang=%d", m.Timescale, m.Duration, m.Language)
	case box.Hdlr != nil:
		h := box.Hdlr
		return fmt.Sprintf(" type=%s name=%q", string(h.HandlerType[:]), h.Name)
	case box.Stsd != nil:
		return fmt.Sprintf(" entries=%d", box.Stsd.EntryCount)
	case box.Stsz != nil:
		if box.Stsz.SampleSize != 0 {
			return fmt.Sprintf(" count=%d uniformSize=%d", box.Stsz.SampleCount, box.Stsz.SampleSize)
		}
		return fmt.Sprintf(" count=%d", box.Stsz.SampleCount)
	case box.Stco != nil:
		return fmt.Sprintf(" entries=%d", len(box.Stco.Entries))
	case box.Co64 != nil:
		return fmt.Sprintf(" entries=%d", len(box.Co64.Entries))
	case box.Stts != nil:
		return fmt.Sprintf(" entries=%d", len(box.Stts.Entries))
	case box.Ctts != nil:
		return fmt.Sprintf(" entries=%d", len(box.Ctts.Entries))
	case box.Stsc != nil:
		return fmt.Sprintf(" entries=%d", len(box.Stsc.Entries))
	case box.Elst != nil:
		return fmt.Sprintf(" entries=%d", len(box.Elst.Entries))
	case box.Dref != nil:
		return fmt.Sprintf(" entries=%d", box.Dref.EntryCount)
	case box.Sample != nil:
		s := box.Sample
		if s.AvcC != nil || s.HvcC != nil {
			return fmt.Sprintf(" %dx%d compressor=%q", s.Width, s.Height, s.CompressorName)
		}
		if s.Esds != nil {
			return fmt.Sprintf(" ch=%d sampleSize=%d sampleRate=%d codec=%s", s.ChannelCount, s.SampleSize, s.SampleRate>>16, s.Esds.Codec)
		}
		return ""
	case box.AvcC != nil:
		return fmt.Sprintf(" profileLevel=%s rawLen=%d", box.AvcC.ProfileLevel, len(box.AvcC.Raw))
	case box.Esds != nil:
		return fmt.Sprintf(" codec=%s rawLen=%d", box.Esds.Codec, len(box.Esds.Raw))
	case box.Mdat != nil:
		return fmt.Sprintf(" dataLen=%d", box.Mdat.ByteSize)
	case box.Mfhd != nil:
		return fmt.Sprintf(" seq=%d", box.Mfhd.SequenceNumber)
	case box.Raw != nil:
		return fmt.Sprintf(" (raw %d bytes)", len(box.Raw))
	}
	return ""
}
