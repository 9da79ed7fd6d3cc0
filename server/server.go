// Package server implements the ResourceRouter: an HTTP surface over the
// transmuxing engine serving the progressive-MP4 and HLS resource shapes
// of spec.md §6, backed by a process-wide TrackModel cache.
package server

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tetsuo/vodstream/bmff"
	"github.com/tetsuo/vodstream/hls"
	"github.com/tetsuo/vodstream/internal/cache"
	"github.com/tetsuo/vodstream/internal/config"
	"github.com/tetsuo/vodstream/internal/trackcache"
	"github.com/tetsuo/vodstream/remux"
	"github.com/tetsuo/vodstream/source"
	"github.com/tetsuo/vodstream/subtitle"
	"github.com/tetsuo/vodstream/track"
)

// Server wires the ResourceRouter: chi routing, the TrackModel and fragment
// caches, and the source/track/remux/hls/subtitle packages they sit on top
// of.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	movies *trackcache.Cache
	frags  *cache.Cache

	router chi.Router
}

// New builds a Server from cfg, ready to be used as an http.Handler.
func New(cfg *config.Config, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		movies: trackcache.New(cfg.Cache.TrackModelEntries),
		frags:  cache.New(cache.Options{MaxEntries: cfg.Cache.FragmentEntries}),
	}
	s.router = s.routes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(recoverPanic(s.logger))
	r.Use(logRequests(s.logger))
	r.Get("/*", s.handleResource)
	return r
}

// handleResource dispatches every request by locating the first ".mp4"
// suffix in the wildcard path and routing on what follows it. chi's
// {param:regex} syntax only matches within a single path segment, which
// can't express an arbitrary nested media path ending in ".mp4" followed by
// an HLS sub-resource, so the split is done by hand instead of by route
// pattern. A directory component that itself contains the literal ".mp4"
// substring ahead of the real file would split in the wrong place; this is
// a known, documented limitation (see DESIGN.md).
func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	param := chi.URLParam(r, "*")
	filePath, rest, ok := splitResourcePath(param)
	if !ok {
		http.NotFound(w, r)
		return
	}
	fullPath := filepath.Join(s.cfg.Server.MediaRoot, filePath)

	switch {
	case rest == "":
		s.handleProgressive(w, r, fullPath)
	case rest == "/main.m3u8":
		s.handleMaster(w, r, fullPath)
	case strings.HasPrefix(rest, "/media.") && strings.HasSuffix(rest, ".m3u8"):
		s.handleMediaPlaylist(w, r, fullPath, strings.TrimSuffix(strings.TrimPrefix(rest, "/media."), ".m3u8"))
	case strings.HasPrefix(rest, "/init.") && strings.HasSuffix(rest, ".mp4"):
		s.handleInit(w, r, fullPath, strings.TrimSuffix(strings.TrimPrefix(rest, "/init."), ".mp4"))
	case strings.HasPrefix(rest, "/v/"), strings.HasPrefix(rest, "/a/"), strings.HasPrefix(rest, "/s/"):
		s.handleSegment(w, r, fullPath, rest)
	default:
		http.NotFound(w, r)
	}
}

// splitResourcePath splits a wildcard request path at its first ".mp4"
// suffix into the underlying media file's path and whatever HLS
// sub-resource suffix follows it (empty for the progressive endpoint
// itself). ok is false if the path carries no ".mp4" at all.
func splitResourcePath(param string) (filePath, rest string, ok bool) {
	idx := strings.Index(param, ".mp4")
	if idx < 0 {
		return "", "", false
	}
	return param[:idx+len(".mp4")], param[idx+len(".mp4"):], true
}

// resolveMovie opens fullPath and returns its parsed Movie, consulting (and
// populating) the process-wide TrackModel cache keyed by path+inode+mtime.
// The returned *source.File stays open for the caller's mdat reads; the
// caller must Close it.
func (s *Server) resolveMovie(fullPath string) (*source.File, *trackcache.Movie, error) {
	sf, err := source.Open(fullPath)
	if err != nil {
		return nil, nil, err
	}

	fi, err := os.Stat(fullPath)
	if err != nil {
		sf.Close()
		return nil, nil, err
	}
	key, err := trackcache.KeyForFile(fullPath, fi)
	if err != nil {
		sf.Close()
		return nil, nil, err
	}
	if movie, ok := s.movies.Get(key); ok {
		return sf, movie, nil
	}

	start, end, ok, err := sf.LocateTopLevel(bmff.TypeMoov)
	if err != nil {
		sf.Close()
		return nil, nil, err
	}
	if !ok {
		sf.Close()
		return nil, nil, &bmff.Error{Kind: bmff.Malformed, Err: fmt.Errorf("%s: no moov box", fullPath)}
	}
	buf, err := sf.MapMovie(start, end)
	if err != nil {
		sf.Close()
		return nil, nil, err
	}
	moov, err := bmff.Decode(buf, 0, len(buf))
	if err != nil {
		sf.Close()
		return nil, nil, err
	}
	movie, err := trackcache.BuildMovie(moov)
	if err != nil {
		sf.Close()
		return nil, nil, err
	}
	s.movies.Insert(key, movie)
	return sf, movie, nil
}

// handleProgressive serves the progressive rewritten MP4 of spec.md §4.3:
// one moov covering exactly the tracks named by the request's ?track=
// parameters, renumbered 1..=k in request order, with a single mdat. More
// than one ?track= value triggers interleaving, merging every selected
// track's samples into that mdat ordered by decode time (spec.md §4.4).
func (s *Server) handleProgressive(w http.ResponseWriter, r *http.Request, fullPath string) {
	rawIDs := r.URL.Query()["track"]
	if len(rawIDs) == 0 {
		http.Error(w, "missing track parameter", http.StatusBadRequest)
		return
	}
	trackIDs := make([]uint32, len(rawIDs))
	for i, raw := range rawIDs {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			http.Error(w, "malformed track parameter", http.StatusBadRequest)
			return
		}
		trackIDs[i] = uint32(id)
	}

	sf, movie, err := s.resolveMovie(fullPath)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer sf.Close()

	s.writeProgressive(w, r, sf, movie, trackIDs)
}

func (s *Server) writeProgressive(w http.ResponseWriter, r *http.Request, sf *source.File, movie *trackcache.Movie, trackIDs []uint32) {
	var buf bytes.Buffer
	opts := remux.RewriteOptions{TrackIDs: trackIDs, Interleave: len(trackIDs) > 1}
	if err := remux.Rewrite(r.Context(), &buf, sf, movie, opts); err != nil {
		var bmffErr *bmff.Error
		if errors.As(err, &bmffErr) && bmffErr.Kind == bmff.UnknownTrack {
			http.NotFound(w, r)
			return
		}
		s.writeError(w, r, err)
		return
	}
	serveRangedContent(w, r, buf.Bytes(), "video/mp4", s.cfg.Server.SafariRangeCapBytes)
}

// serveCached writes the fragment cached under r.URL.Path, or calls render
// to produce and cache it first. The fragment cache spans playlists, init
// segments and media segments alike: a hot segment near a seek point is
// re-requested often, and none of these outputs depend on anything but the
// (cached) TrackModel they were rendered from.
func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, contentType string, render func() ([]byte, error)) {
	key := r.URL.Path
	body, ok := s.frags.Get(key)
	if !ok {
		var err error
		body, err = render()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.frags.Insert(key, body)
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(body)
}

// handleMaster serves the top-level HLS playlist.
func (s *Server) handleMaster(w http.ResponseWriter, r *http.Request, fullPath string) {
	sf, movie, err := s.resolveMovie(fullPath)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer sf.Close()

	s.serveCached(w, r, "application/vnd.apple.mpegurl", func() ([]byte, error) {
		return hls.MasterPlaylist(movie.Tracks)
	})
}

// handleMediaPlaylist serves the per-track HLS media playlist.
func (s *Server) handleMediaPlaylist(w http.ResponseWriter, r *http.Request, fullPath, trackIDStr string) {
	trackID, err := strconv.ParseUint(trackIDStr, 10, 32)
	if err != nil {
		http.Error(w, "malformed track id", http.StatusBadRequest)
		return
	}

	sf, movie, err := s.resolveMovie(fullPath)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer sf.Close()

	t := movie.Track(uint32(trackID))
	if t == nil {
		http.NotFound(w, r)
		return
	}

	ranges := s.segmentRanges(movie, t)
	s.serveCached(w, r, "application/vnd.apple.mpegurl", func() ([]byte, error) {
		return hls.MediaPlaylist(t, ranges)
	})
}

// segmentRanges computes t's media-segment SampleRanges: target-duration
// segmentation for video/audio, or ranges aligned to the co-presented
// video track's segment boundaries for a subtitle track (spec.md §4.5).
func (s *Server) segmentRanges(movie *trackcache.Movie, t *track.Track) []track.SampleRange {
	if !t.IsSubtitle() {
		return hls.BuildSegmentRanges(t, s.cfg.HLS.SegmentDuration)
	}
	for _, v := range movie.Tracks {
		if v.IsVideo() {
			videoRanges := hls.BuildSegmentRanges(v, s.cfg.HLS.SegmentDuration)
			boundaries := hls.SegmentBoundaries(v, videoRanges)
			return hls.BoundaryAlignedRanges(t, boundaries)
		}
	}
	return hls.BuildSegmentRanges(t, s.cfg.HLS.SegmentDuration)
}

// handleInit serves a track's fMP4 initialization segment.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request, fullPath, trackIDStr string) {
	trackID, err := strconv.ParseUint(trackIDStr, 10, 32)
	if err != nil {
		http.Error(w, "malformed track id", http.StatusBadRequest)
		return
	}

	sf, movie, err := s.resolveMovie(fullPath)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer sf.Close()

	t := movie.Track(uint32(trackID))
	trak := movie.Trak(uint32(trackID))
	if t == nil || trak == nil {
		http.NotFound(w, r)
		return
	}

	s.serveCached(w, r, "video/mp4", func() ([]byte, error) {
		f, err := remux.NewFragmenter(movie.Mvhd, trak, t)
		if err != nil {
			return nil, err
		}
		return f.InitSegment()
	})
}

// handleSegment serves one media segment: video/audio as fMP4 via the
// Fragmenter, subtitles as a standalone WebVTT document.
func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request, fullPath, rest string) {
	kind := rest[1] // 'v', 'a' or 's'
	base := path.Base(rest)
	ext := path.Ext(base)
	name := strings.TrimSuffix(base, ext)

	trackID, first, last, err := hls.ParseSegmentURI(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sf, movie, err := s.resolveMovie(fullPath)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer sf.Close()

	t := movie.Track(trackID)
	if t == nil {
		http.NotFound(w, r)
		return
	}
	if first < 0 || last > len(t.Table.Entries) || first >= last {
		http.Error(w, "sample range out of bounds", http.StatusBadRequest)
		return
	}
	rng := t.NewSampleRange(first, last)

	if kind == 's' {
		s.writeSubtitleSegment(w, r, sf, t, rng)
		return
	}

	trak := movie.Trak(trackID)
	contentType := "video/mp4"
	if kind == 'a' {
		contentType = "audio/mp4"
	}

	const segmentSequenceNumber = 1 // every request is one self-contained fragment, not part of a moof sequence
	s.serveCached(w, r, contentType, func() ([]byte, error) {
		f, err := remux.NewFragmenter(movie.Mvhd, trak, t)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := f.MediaSegment(r.Context(), &buf, sf, rng, segmentSequenceNumber); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})
}

func (s *Server) writeSubtitleSegment(w http.ResponseWriter, r *http.Request, sf *source.File, t *track.Track, rng track.SampleRange) {
	s.serveCached(w, r, "text/vtt", func() ([]byte, error) {
		samples := t.Table.Entries[rng.First:rng.Last]
		raw := make([]subtitle.RawSample, len(samples))
		for i, sm := range samples {
			buf := make([]byte, sm.Size)
			if _, err := sf.ReadAt(buf, sm.Offset); err != nil {
				return nil, err
			}
			raw[i] = subtitle.RawSample{
				Start: float64(sm.PTS()) / float64(t.Timescale),
				End:   float64(sm.PTS()+int64(sm.Duration)) / float64(t.Timescale),
				Data:  buf,
			}
		}
		cues := subtitle.TX3GToVTT(raw)
		return subtitle.RenderVTT(cues), nil
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var berr *bmff.Error
	if errors.As(err, &berr) {
		switch berr.Kind {
		case bmff.UnknownTrack, bmff.OutOfRange:
			status = http.StatusNotFound
		case bmff.Malformed, bmff.UnsupportedVersion, bmff.UnsupportedEditList, bmff.Encoding:
			status = http.StatusUnprocessableEntity
		}
	}
	if os.IsNotExist(err) {
		status = http.StatusNotFound
	}
	s.logger.ErrorContext(r.Context(), "request failed",
		slog.String("error", err.Error()),
		slog.String("path", r.URL.Path),
	)
	http.Error(w, http.StatusText(status), status)
}
