package track

import (
	"errors"
	"fmt"

	"github.com/tetsuo/vodstream/bmff"
)

// ErrUnsupportedEditList is returned by ClassifyEdits when a track's edit
// list is legal ISO-BMFF but does not reduce to one of the three shapes
// the fragmenter knows how to translate (spec.md §4.4, §7).
var ErrUnsupportedEditList = bmff.ErrUnsupportedEditList

func errMissing(box string) error {
	return fmt.Errorf("missing %s", box)
}

func newMalformed(trackId uint32, msg string) error {
	return &bmff.Error{Kind: bmff.Malformed, TrackId: trackId, Err: errors.New(msg)}
}

func newTrackError(trackId uint32, sentinel *bmff.Error) error {
	return &bmff.Error{Kind: sentinel.Kind, TrackId: trackId}
}
