package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tetsuo/vodstream/bmff"
	"github.com/tetsuo/vodstream/internal/trackcache"
	"github.com/tetsuo/vodstream/source"
	"github.com/tetsuo/vodstream/track"
)

var probeCmd = &cobra.Command{
	Use:   "probe <file.mp4>",
	Short: "Report track and keyframe information for an MP4 file",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(_ *cobra.Command, args []string) error {
	sf, err := source.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening %s: %w", args[0], err)
	}
	defer sf.Close()

	start, end, ok, err := sf.LocateTopLevel(bmff.TypeMoov)
	if err != nil {
		return fmt.Errorf("locating moov: %w", err)
	}
	if !ok {
		return fmt.Errorf("%s: no moov box", args[0])
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

	for i, tr := range movie.Tracks {
		fmt.Printf("Track %d: %s\n", i, tr.Codec)
		fmt.Printf("  Total samples: %d\n", len(tr.Table.Entries))
		fmt.Printf("  Duration: %.2fs\n", tr.DurationSeconds())
		fmt.Printf("  TimeScale: %d\n\n", tr.Timescale)

		keyframes := 0
		var prevKfTime float64
		var intervals []float64

		fmt.Println("  Keyframes:")
		for j, s := range tr.Table.Entries {
			if !s.Sync {
				continue
			}
			pts := float64(s.PTS()) / float64(tr.Timescale)
			fmt.Printf("    [%5d] %.3fs", j, pts)
			if keyframes > 0 {
				interval := pts - prevKfTime
				intervals = append(intervals, interval)
				fmt.Printf(" (%.3fs since last)", interval)
			}
			fmt.Println()

			prevKfTime = pts
			keyframes++
			if keyframes >= 20 {
				fmt.Printf("    ... (%d more keyframes)\n", countKeyframes(tr.Table.Entries[j+1:]))
				break
			}
		}

		fmt.Printf("\n  Total keyframes: %d\n", countKeyframes(tr.Table.Entries))
		if len(intervals) > 0 {
			fmt.Printf("  Keyframe interval: avg=%.3fs min=%.3fs max=%.3fs\n",
				average(intervals), minimum(intervals), maximum(intervals))
		}
		fmt.Println()
	}
	return nil
}

func countKeyframes(samples []track.Sample) int {
	count := 0
	for _, s := range samples {
		if s.Sync {
			count++
		}
	}
	return count
}

func average(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func minimum(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals {
		if v < m {
			m = v
		}
	}
	return m
}

func maximum(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}
