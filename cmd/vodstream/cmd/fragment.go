package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tetsuo/vodstream/bmff"
	"github.com/tetsuo/vodstream/internal/trackcache"
	"github.com/tetsuo/vodstream/remux"
	"github.com/tetsuo/vodstream/source"
)

var fragmentCmd = &cobra.Command{
	Use:   "fragment <file.mp4> <track-id> <first>-<last>",
	Short: "Write one fMP4 media segment to stdout",
	Long: `fragment writes a single fragmented MP4 segment for the given track and
sample range (first inclusive, last exclusive) directly to stdout, for
inspecting what a given HLS media segment request would actually produce.`,
	Args: cobra.ExactArgs(3),
	RunE: runFragment,
}

func init() {
	rootCmd.AddCommand(fragmentCmd)
}

func runFragment(_ *cobra.Command, args []string) error {
	path := args[0]
	trackID, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return fmt.Errorf("parsing track id %q: %w", args[1], err)
	}
	first, last, err := parseSampleRange(args[2])
	if err != nil {
		return fmt.Errorf("parsing sample range %q: %w", args[2], err)
	}

	sf, err := source.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer sf.Close()

	start, end, ok, err := sf.LocateTopLevel(bmff.TypeMoov)
	if err != nil {
		return fmt.Errorf("locating moov: %w", err)
	}
	if !ok {
		return fmt.Errorf("%s: no moov box", path)
	}
	buf, err := sf.MapMovie(start, end)
	if err != nil {
		return fmt.Errorf("mapping moov: %w", err)
	}
	moov, err := bmff.Decode(buf, 0, len(buf))
	if err != nil {
		return fmt.Errorf("decoding moov: %w", err)
	}
	movie, err := trackcache.BuildMovie(moov)
	if err != nil {
		return fmt.Errorf("building movie: %w", err)
	}

	t := movie.Track(uint32(trackID))
	trak := movie.Trak(uint32(trackID))
	if t == nil || trak == nil {
		return fmt.Errorf("track %d not found", trackID)
	}
	if first < 0 || last > len(t.Table.Entries) || first >= last {
		return fmt.Errorf("sample range %d-%d out of bounds (track has %d samples)", first, last, len(t.Table.Entries))
	}

	f, err := remux.NewFragmenter(movie.Mvhd, trak, t)
	if err != nil {
		return fmt.Errorf("building fragmenter: %w", err)
	}
	init, err := f.InitSegment()
	if err != nil {
		return fmt.Errorf("building init segment: %w", err)
	}
	if _, err := os.Stdout.Write(init); err != nil {
		return err
	}

	rng := t.NewSampleRange(first, last)
	const sequenceNumber = 1
	if err := f.MediaSegment(context.Background(), os.Stdout, sf, rng, sequenceNumber); err != nil {
		return fmt.Errorf("building media segment: %w", err)
	}
	return nil
}

func parseSampleRange(s string) (first, last int, err error) {
	dash := strings.IndexByte(s, '-')
	if dash < 0 {
		return 0, 0, fmt.Errorf("expected <first>-<last>")
	}
	first64, err := strconv.ParseInt(s[:dash], 10, 32)
	if err != nil {
		return 0, 0, err
	}
	last64, err := strconv.ParseInt(s[dash+1:], 10, 32)
	if err != nil {
		return 0, 0, err
	}
	return int(first64), int(last64), nil
}
