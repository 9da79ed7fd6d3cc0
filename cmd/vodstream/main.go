// Command vodstream serves progressive and HLS views over ISO-BMFF media
// files without pre-transcoding, and offers a few diagnostic subcommands
// for inspecting MP4 structure directly.
package main

import (
	"os"

	"github.com/tetsuo/vodstream/cmd/vodstream/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
