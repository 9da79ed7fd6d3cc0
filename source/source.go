// Package source implements the ByteReader layer: one open file, its
// MovieBox memory-mapped for box decoding, and positioned reads against
// the MediaDataBox for fragment emission.
package source

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/exp/mmap"

	"github.com/tetsuo/vodstream/bmff"
	"github.com/tetsuo/vodstream/internal/workerpool"
)

// File is a single open source file: the file is memory-mapped on the
// first MapMovie call and the mapping is reused until Close;
// MediaDataBox reads go straight to the *os.File as positioned reads, so
// they never compete with the mapped region for a file descriptor.
type File struct {
	f    *os.File
	size int64

	movieStart int64
	movieEnd   int64
	movie      *mmap.ReaderAt
}

// Open opens path and stats its size. The MovieBox is not mapped until
// MapMovie is called.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &bmff.Error{Kind: bmff.Io, Err: err}
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &bmff.Error{Kind: bmff.Io, Err: err}
	}
	return &File{f: f, size: fi.Size()}, nil
}

// Close releases the mapped MovieBox (if any) and the underlying file.
func (s *File) Close() error {
	var err error
	if s.movie != nil {
		err = s.movie.Close()
		s.movie = nil
	}
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Size returns the total file size in bytes.
func (s *File) Size() int64 { return s.size }

// MapMovie memory-maps the file (on the first call only) and returns a
// copy of its [start, end) span (the MovieBox's on-disk span) as a byte
// slice suitable for bmff.Decode. The mapping is kept open until Close.
func (s *File) MapMovie(start, end int64) ([]byte, error) {
	if start < 0 || end > s.size || start > end {
		return nil, &bmff.Error{Kind: bmff.OutOfRange, Err: fmt.Errorf("movie range [%d,%d) outside file of size %d", start, end, s.size)}
	}
	if s.movie == nil {
		m, err := mmap.Open(s.f.Name())
		if err != nil {
			return nil, &bmff.Error{Kind: bmff.Io, Err: err}
		}
		s.movie = m
	}
	s.movieStart, s.movieEnd = start, end

	buf := make([]byte, end-start)
	if _, err := s.movie.ReadAt(buf, start); err != nil && err != io.EOF {
		return nil, &bmff.Error{Kind: bmff.Io, Err: err}
	}
	return buf, nil
}

// LocateTopLevel scans the file's top-level boxes looking for one of type
// t, returning its [start, end) span (header included) without decoding
// its body. Callers use this to find the MovieBox's span before calling
// MapMovie. Scanning rewinds the file's read offset; it never touches the
// mapped region or interferes with concurrent ReadAt/ReadRequests calls,
// which address the file independently of its current seek position.
func (s *File) LocateTopLevel(t bmff.BoxType) (start, end int64, ok bool, err error) {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return 0, 0, false, &bmff.Error{Kind: bmff.Io, Err: err}
	}
	sc := bmff.NewScanner(s.f)
	for sc.Next() {
		e := sc.Entry()
		if e.Type == t {
			return e.Offset, e.Offset + e.Size, true, nil
		}
	}
	if err := sc.Err(); err != nil {
		return 0, 0, false, &bmff.Error{Kind: bmff.Io, Err: err}
	}
	return 0, 0, false, nil
}

// ReadAt satisfies io.ReaderAt against the underlying file descriptor,
// for MediaDataBox access via bmff's fragment writers.
func (s *File) ReadAt(p []byte, off int64) (int, error) {
	n, err := s.f.ReadAt(p, off)
	if err != nil && err != io.EOF {
		return n, &bmff.Error{Kind: bmff.Io, Err: err}
	}
	return n, err
}

// ReadRequest is one byte range to fetch from the MediaDataBox.
type ReadRequest struct {
	Offset int64
	Buf    []byte
}

// maxGap is the largest hole between two requested ranges that gets
// coalesced into a single read rather than dispatched separately.
const maxGap = 4096

// defaultWorkers bounds how many coalesced reads run concurrently per
// ReadRequests call.
const defaultWorkers = 8

// ReadRequests fetches every request's byte range, coalescing adjacent
// or near-adjacent (within maxGap) requests into a single positioned
// read and dispatching the rest across a bounded worker pool. Requests
// must be sorted by Offset. Each request's Buf must already be sized
// for its read.
func (s *File) ReadRequests(ctx context.Context, reqs []ReadRequest) error {
	if len(reqs) == 0 {
		return nil
	}

	type group struct {
		start, end int64
		reqs       []ReadRequest
	}

	var groups []group
	for _, r := range reqs {
		end := r.Offset + int64(len(r.Buf))
		if len(groups) > 0 {
			last := &groups[len(groups)-1]
			if r.Offset-last.end <= maxGap {
				last.end = end
				last.reqs = append(last.reqs, r)
				continue
			}
		}
		groups = append(groups, group{start: r.Offset, end: end, reqs: []ReadRequest{r}})
	}

	return workerpool.Run(ctx, len(groups), defaultWorkers, func(ctx context.Context, i int) error {
		g := groups[i]
		span := make([]byte, g.end-g.start)
		if _, err := s.f.ReadAt(span, g.start); err != nil && err != io.EOF {
			return &bmff.Error{Kind: bmff.Io, Err: err}
		}
		for _, r := range g.reqs {
			copy(r.Buf, span[r.Offset-g.start:])
		}
		return nil
	})
}
