package track

// EditShape is one of the three edit-list shapes the fragmenter can
// reduce to fMP4 timing, per spec.md §4.4.
type EditShape int

const (
	// EditShapeNone means the track carries no edit list at all.
	EditShapeNone EditShape = iota
	// EditShapeInitialDwell is a single empty edit (media_time == -1) at
	// the head of the list: a dwell of SegmentDuration movie-timescale
	// ticks before media playback starts.
	EditShapeInitialDwell
	// EditShapeLeadingNegative is a single non-empty edit whose MediaTime
	// is positive, used to skip leading media-time samples (typically
	// audio priming/encoder-delay samples).
	EditShapeLeadingNegative
	// EditShapePositiveShift is a single non-empty edit covering the
	// track's full duration, used only to shift composition offsets into
	// non-negative territory.
	EditShapePositiveShift
)

// ClassifyEdits resolves t.Edits into one of the three reducible shapes.
// dwellTicks (movie timescale) is populated for EditShapeInitialDwell;
// skipMediaTime (track timescale) is populated for EditShapeLeadingNegative
// and EditShapePositiveShift. An edit list matching none of the three
// shapes returns ErrUnsupportedEditList.
func (t *Track) ClassifyEdits() (shape EditShape, dwellTicks uint64, skipMediaTime int64, err error) {
	switch len(t.Edits) {
	case 0:
		return EditShapeNone, 0, 0, nil
	case 1:
		e := t.Edits[0]
		switch {
		case e.MediaTime == -1:
			return EditShapeInitialDwell, e.SegmentDuration, 0, nil
		case e.MediaTime > 0 && e.MediaRateInt == 1:
			// A single edit spanning (approximately) the whole media
			// duration shifts composition offsets; one spanning less is
			// a leading skip. The fragmenter handles the two
			// differently: a positive shift subtracts MediaTime from
			// every composition offset, a leading skip leaves this
			// track's timing alone and reports MediaTime through
			// SiblingSkipTicks.
			if uint64(e.SegmentDuration) == 0 {
				return EditShapePositiveShift, 0, e.MediaTime, nil
			}
			return EditShapeLeadingNegative, 0, e.MediaTime, nil
		}
	}
	return EditShapeNone, 0, 0, newTrackError(t.TrackId, ErrUnsupportedEditList)
}
