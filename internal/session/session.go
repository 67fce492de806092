// Package session holds the Editing Session: the in-memory track under
// edit, its bounded undo/redo history, and the six edit operations. Every
// exported method serializes on the session's own mutex, grounded the same
// way the teacher serializes per-resource writes in
// internal/database.Service (a dedicated mutex per protected resource,
// taken for the duration of the operation and never shared with the
// registry's own lock).
package session

import (
	"sync"
	"time"

	"github.com/trackforge/trackforge/internal/geo"
	"github.com/trackforge/trackforge/internal/track"
	"github.com/trackforge/trackforge/internal/trackerr"
)

// MaxHistory bounds the undo/redo ring (spec §4.7). NewWithHistory takes
// a different bound, and NewRegistry passes its own bound to every session
// it creates.
const MaxHistory = 10

// fallbackSpeedMS is used by insert_point when metadata carries no
// distance/duration pair to derive a real average speed from.
const fallbackSpeedMS = 5.0

// stuckRadiusMeters is the "effectively stationary" threshold used by
// detect_gps_stucks's greedy run extension.
const stuckRadiusMeters = 1.0

// GpsStuck describes one detected stuck-GPS run within a segment.
type GpsStuck struct {
	SegmentIdx   int
	StartIdx     int
	EndIdx       int
	StuckIndices []int
}

// Session is one user's editable track plus its history ring. All state
// is private; every exported method takes mu for its whole duration.
type Session struct {
	mu sync.Mutex

	maxHistory int

	originalTrack *track.Track
	currentTrack  *track.Track

	history    []*track.Track
	historyIdx int
}

// New constructs a Session from a freshly decoded track. The track is
// cloned on the way in so the caller's copy and the session's internal
// state never alias.
func New(t *track.Track) *Session {
	return NewWithHistory(t, MaxHistory)
}

// NewWithHistory is New with an explicit history bound, for configuration
// or tests.
func NewWithHistory(t *track.Track, maxHistory int) *Session {
	original := t.Clone()
	current := t.Clone()
	return &Session{
		maxHistory:    maxHistory,
		originalTrack: original,
		currentTrack:  current,
		history:       []*track.Track{current.Clone()},
		historyIdx:    0,
	}
}

// Current returns a deep copy of the track as it stands right now.
func (s *Session) Current() *track.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTrack.Clone()
}

// Original returns a deep copy of the track as originally decoded.
func (s *Session) Original() *track.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.originalTrack.Clone()
}

// snapshot implements the history contract (spec §4.7). Caller must hold mu.
func (s *Session) snapshot() {
	if s.historyIdx < len(s.history)-1 {
		s.history = s.history[:s.historyIdx+1]
	}
	s.history = append(s.history, s.currentTrack.Clone())
	s.historyIdx++
	if len(s.history) > s.maxHistory {
		s.history = s.history[1:]
		s.historyIdx--
	}
}

// Undo restores the previous history snapshot, or reports false if there
// is none.
func (s *Session) Undo() (*track.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyIdx <= 0 {
		return s.currentTrack.Clone(), false
	}
	s.historyIdx--
	s.currentTrack = s.history[s.historyIdx].Clone()
	return s.currentTrack.Clone(), true
}

// Redo is the symmetric counterpart of Undo.
func (s *Session) Redo() (*track.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyIdx >= len(s.history)-1 {
		return s.currentTrack.Clone(), false
	}
	s.historyIdx++
	s.currentTrack = s.history[s.historyIdx].Clone()
	return s.currentTrack.Clone(), true
}

// Reset drops every history entry but the first and restores from it.
func (s *Session) Reset() *track.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = s.history[:1]
	s.historyIdx = 0
	s.currentTrack = s.history[0].Clone()
	return s.currentTrack.Clone()
}

func checkSegmentIdx(t *track.Track, segIdx int) error {
	if segIdx < 0 || segIdx >= len(t.Segments) {
		return trackerr.Newf(trackerr.OutOfRange, "segment index %d out of range", segIdx)
	}
	return nil
}

// InsertPoint implements spec §4.7's insert_point: prevPointIdx == -1
// prepends, prevPointIdx == len(points)-1 appends, anything else in
// between interpolates the new point's auxiliary fields.
func (s *Session) InsertPoint(segIdx, prevPointIdx int, lat, lon float64) (*track.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkSegmentIdx(s.currentTrack, segIdx); err != nil {
		return nil, err
	}
	seg := &s.currentTrack.Segments[segIdx]
	n := len(seg.Points)
	if prevPointIdx < -1 || prevPointIdx > n-1 {
		return nil, trackerr.Newf(trackerr.OutOfRange, "prev point index %d out of range", prevPointIdx)
	}

	np := track.Point{ID: track.NewPointID(), Lat: lat, Lon: lon}
	v := sessionSpeed(s.currentTrack.Metadata)

	switch {
	case n == 0:
		// Nothing to anchor synthesis to; the new point becomes the
		// segment's sole member.
		seg.Points = append(seg.Points, np)
	case prevPointIdx == -1:
		first := seg.Points[0]
		np.Ele = clonePtrFloat(first.Ele)
		np.Cadence = clonePtrInt(first.Cadence)
		np.HR = clonePtrInt(first.HR)
		np.Power = clonePtrInt(first.Power)
		if first.Time != nil {
			d := geo.Haversine(geo.Point{Lat: lat, Lon: lon}, geo.Point{Lat: first.Lat, Lon: first.Lon})
			t := first.Time.Add(-time.Duration(d / v * float64(time.Second)))
			np.Time = &t
		}
		seg.Points = append([]track.Point{np}, seg.Points...)
	case prevPointIdx == n-1:
		last := seg.Points[n-1]
		np.Ele = clonePtrFloat(last.Ele)
		np.Cadence = clonePtrInt(last.Cadence)
		np.HR = clonePtrInt(last.HR)
		np.Power = clonePtrInt(last.Power)
		if last.Time != nil {
			d := geo.Haversine(geo.Point{Lat: last.Lat, Lon: last.Lon}, geo.Point{Lat: lat, Lon: lon})
			t := last.Time.Add(time.Duration(d / v * float64(time.Second)))
			np.Time = &t
		}
		seg.Points = append(seg.Points, np)
	default:
		prev := seg.Points[prevPointIdx]
		next := seg.Points[prevPointIdx+1]
		d0 := geo.Haversine(geo.Point{Lat: prev.Lat, Lon: prev.Lon}, geo.Point{Lat: lat, Lon: lon})
		d1 := geo.Haversine(geo.Point{Lat: lat, Lon: lon}, geo.Point{Lat: next.Lat, Lon: next.Lon})
		t := 0.5
		if d0+d1 > 0 {
			t = d0 / (d0 + d1)
		}
		if prev.Time != nil && next.Time != nil {
			nt := prev.Time.Add(time.Duration(t * float64(next.Time.Sub(*prev.Time))))
			np.Time = &nt
		}
		np.Ele = geo.InterpFloat(prev.Ele, next.Ele, t)
		np.Cadence = geo.InterpInt(prev.Cadence, next.Cadence, t)
		np.HR = geo.InterpInt(prev.HR, next.HR, t)
		np.Power = geo.InterpInt(prev.Power, next.Power, t)

		out := make([]track.Point, 0, n+1)
		out = append(out, seg.Points[:prevPointIdx+1]...)
		out = append(out, np)
		out = append(out, seg.Points[prevPointIdx+1:]...)
		seg.Points = out
	}

	s.snapshot()
	return s.currentTrack.Clone(), nil
}

// sessionSpeed derives the average m/s used to synthesize a new point's
// time at the track's edges, falling back to fallbackSpeedMS (spec §4.7).
func sessionSpeed(md track.Metadata) float64 {
	if md.Distance != nil && md.Duration != nil && *md.Duration > 0 {
		return *md.Distance / *md.Duration
	}
	return fallbackSpeedMS
}

// UpdateTime implements spec §4.7's update_time, rejecting a new time that
// would violate monotonicity against either neighbor.
func (s *Session) UpdateTime(segIdx, pointIdx int, newTime time.Time) (*track.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkSegmentIdx(s.currentTrack, segIdx); err != nil {
		return nil, err
	}
	seg := &s.currentTrack.Segments[segIdx]
	if pointIdx < 0 || pointIdx >= len(seg.Points) {
		return nil, trackerr.Newf(trackerr.OutOfRange, "point index %d out of range", pointIdx)
	}

	if pointIdx > 0 {
		if prev := seg.Points[pointIdx-1].Time; prev != nil && newTime.Before(*prev) {
			return nil, trackerr.New(trackerr.InvalidArgument, "time out of order")
		}
	}
	if pointIdx < len(seg.Points)-1 {
		if next := seg.Points[pointIdx+1].Time; next != nil && newTime.After(*next) {
			return nil, trackerr.New(trackerr.InvalidArgument, "time out of order")
		}
	}

	t := newTime.UTC()
	seg.Points[pointIdx].Time = &t
	s.snapshot()
	return s.currentTrack.Clone(), nil
}

// rerouteWindow is the half-width of the index window reroute perturbs
// around the moved point (spec §4.7).
const rerouteWindow = 100

// Reroute implements spec §4.7's local elastic deformation. Only
// mode=="straight" applies the elastic falloff to neighboring points;
// any other mode still moves the target point but leaves its neighbors
// untouched (spec §9, an accepted open question).
func (s *Session) Reroute(segIdx, pointIdx int, newLat, newLon, radiusM float64, mode string) (*track.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkSegmentIdx(s.currentTrack, segIdx); err != nil {
		return nil, err
	}
	seg := &s.currentTrack.Segments[segIdx]
	if pointIdx < 0 || pointIdx >= len(seg.Points) {
		return nil, trackerr.Newf(trackerr.OutOfRange, "point index %d out of range", pointIdx)
	}

	target := seg.Points[pointIdx]
	oldLat, oldLon := target.Lat, target.Lon
	dLat, dLon := newLat-oldLat, newLon-oldLon

	if mode == "straight" && radiusM > 0 {
		lo := pointIdx - rerouteWindow
		if lo < 0 {
			lo = 0
		}
		hi := pointIdx + rerouteWindow
		if hi > len(seg.Points) {
			hi = len(seg.Points)
		}
		for i := lo; i < hi; i++ {
			p := &seg.Points[i]
			d := geo.Haversine(geo.Point{Lat: oldLat, Lon: oldLon}, geo.Point{Lat: p.Lat, Lon: p.Lon})
			if d > radiusM {
				continue
			}
			weight := 1 - d/radiusM
			p.Lat += weight * dLat
			p.Lon += weight * dLon
		}
	}

	seg.Points[pointIdx].Lat = newLat
	seg.Points[pointIdx].Lon = newLon

	s.snapshot()
	return s.currentTrack.Clone(), nil
}

// DetectGpsStucks is a pure read: it takes no snapshot and leaves
// current_track untouched (spec §4.7).
func (s *Session) DetectGpsStucks(maxSpeed float64, minPoints int) []GpsStuck {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stucks []GpsStuck
	for segIdx, seg := range s.currentTrack.Segments {
		stucks = append(stucks, detectStucksInSegment(segIdx, seg.Points, maxSpeed, minPoints)...)
	}
	return stucks
}

func detectStucksInSegment(segIdx int, points []track.Point, maxSpeed float64, minPoints int) []GpsStuck {
	var out []GpsStuck
	i := 1
	for i < len(points) {
		start := i - 1
		j := i
		for j < len(points) && geo.Haversine(
			geo.Point{Lat: points[start].Lat, Lon: points[start].Lon},
			geo.Point{Lat: points[j].Lat, Lon: points[j].Lon},
		) <= stuckRadiusMeters {
			j++
		}
		runLen := j - start - 1

		recorded := false
		if runLen >= minPoints && j < len(points) {
			last := points[j-1]
			next := points[j]
			if last.Time != nil && next.Time != nil {
				dt := next.Time.Sub(*last.Time).Seconds()
				if dt > 0 {
					jump := geo.Haversine(geo.Point{Lat: last.Lat, Lon: last.Lon}, geo.Point{Lat: next.Lat, Lon: next.Lon})
					if jump/dt > maxSpeed {
						idxs := make([]int, 0, runLen)
						for k := start + 1; k < j; k++ {
							idxs = append(idxs, k)
						}
						out = append(out, GpsStuck{SegmentIdx: segIdx, StartIdx: start, EndIdx: j, StuckIndices: idxs})
						i = j
						recorded = true
					}
				}
			}
		}
		if !recorded {
			i++
		}
	}
	return out
}

// NormalizeGpsStucks implements spec §4.7's normalize_gps_stucks: each
// stuck index is moved onto the straight-line interpolation between the
// run's bracketing points. Only lat/lon change.
func (s *Session) NormalizeGpsStucks(stucks []GpsStuck) (*track.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, run := range stucks {
		if err := checkSegmentIdx(s.currentTrack, run.SegmentIdx); err != nil {
			return nil, err
		}
		points := s.currentTrack.Segments[run.SegmentIdx].Points
		if run.StartIdx < 0 || run.EndIdx >= len(points) || run.StartIdx >= run.EndIdx {
			return nil, trackerr.New(trackerr.OutOfRange, "gps stuck run out of range")
		}
		p0 := points[run.StartIdx]
		p1 := points[run.EndIdx]
		n := len(run.StuckIndices) + 1
		for j, idx := range run.StuckIndices {
			if idx < 0 || idx >= len(points) {
				return nil, trackerr.New(trackerr.OutOfRange, "stuck index out of range")
			}
			t := float64(j+1) / float64(n)
			points[idx].Lat = p0.Lat + t*(p1.Lat-p0.Lat)
			points[idx].Lon = p0.Lon + t*(p1.Lon-p0.Lon)
		}
	}

	s.snapshot()
	return s.currentTrack.Clone(), nil
}

// Trim implements spec §4.7's trim over global, cross-segment indices.
func (s *Session) Trim(startIdx, endIdx int) (*track.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var newSegments []track.Segment
	global := 0
	for _, seg := range s.currentTrack.Segments {
		var kept []track.Point
		for _, p := range seg.Points {
			if global >= startIdx && global <= endIdx {
				kept = append(kept, p)
			}
			global++
		}
		if len(kept) > 0 {
			newSegments = append(newSegments, track.Segment{Points: kept})
		}
	}
	if len(newSegments) == 0 {
		return nil, trackerr.New(trackerr.InvalidArgument, "empty trim")
	}

	s.currentTrack.Segments = newSegments
	s.snapshot()
	return s.currentTrack.Clone(), nil
}

// MergeWith implements spec §4.7's merge_with: other's segments are deep
// copied onto the end of current_track's. Metadata is left untouched.
func (s *Session) MergeWith(other *track.Track) (*track.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seg := range other.Segments {
		s.currentTrack.Segments = append(s.currentTrack.Segments, seg.Clone())
	}
	s.snapshot()
	return s.currentTrack.Clone(), nil
}

func clonePtrFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func clonePtrInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
