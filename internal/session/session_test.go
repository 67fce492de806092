package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackforge/trackforge/internal/track"
)

func pf(v float64) *float64 { return &v }
func pi(v int) *int         { return &v }
func pt(t time.Time) *time.Time { return &t }

func straightLineTrack() *track.Track {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	pts := make([]track.Point, 0, 5)
	for i := 0; i < 5; i++ {
		tm := base.Add(time.Duration(i) * time.Minute)
		ele := 10.0 + float64(i)
		hr := 130 + i
		pts = append(pts, track.Point{
			ID:   "p" + string(rune('a'+i)),
			Lat:  50.0 + float64(i)*0.01,
			Lon:  0.0,
			Ele:  pf(ele),
			Time: pt(tm),
			HR:   pi(hr),
		})
	}
	return &track.Track{
		Segments: []track.Segment{{Points: pts}},
		Metadata: track.Metadata{Format: "gpx"},
	}
}

func TestNewSeedsSingleSnapshot(t *testing.T) {
	s := New(straightLineTrack())
	_, ok := s.Undo()
	assert.False(t, ok)
	_, ok = s.Redo()
	assert.False(t, ok)
}

func TestSnapshotTruncatesTailAfterUndo(t *testing.T) {
	s := NewWithHistory(straightLineTrack(), MaxHistory)

	_, err := s.InsertPoint(0, -1, 49.9, 0)
	require.NoError(t, err)
	_, err = s.InsertPoint(0, -1, 49.8, 0)
	require.NoError(t, err)

	cur, ok := s.Undo()
	require.True(t, ok)
	assert.Equal(t, 6, cur.TotalPoints())

	// A fresh edit after undo must discard the redo branch.
	_, err = s.UpdateTime(0, 0, cur.Segments[0].Points[0].Time.Add(-time.Hour))
	require.NoError(t, err)

	_, ok = s.Redo()
	assert.False(t, ok, "redo branch should have been discarded by the new edit")
}

func TestHistoryBoundDropsOldestAndKeepsIndex(t *testing.T) {
	s := NewWithHistory(straightLineTrack(), 3)

	for i := 0; i < 5; i++ {
		_, err := s.InsertPoint(0, -1, 49.0-float64(i)*0.01, 0)
		require.NoError(t, err)
	}

	// Ring bound is 3: only the two most recent edits should be undoable
	// before hitting the floor, plus the current state.
	_, ok := s.Undo()
	assert.True(t, ok)
	_, ok = s.Undo()
	assert.True(t, ok)
	_, ok = s.Undo()
	assert.False(t, ok, "history should not extend past maxHistory entries")
}

func TestResetDropsAllButOriginal(t *testing.T) {
	s := New(straightLineTrack())
	_, err := s.InsertPoint(0, -1, 49.9, 0)
	require.NoError(t, err)

	restored := s.Reset()
	assert.Equal(t, 5, restored.TotalPoints())
	_, ok := s.Redo()
	assert.False(t, ok)
}

func TestInsertPointPrependSynthesizesFromFirst(t *testing.T) {
	s := New(straightLineTrack())
	before := s.Current()
	first := before.Segments[0].Points[0]

	result, err := s.InsertPoint(0, -1, first.Lat-0.001, first.Lon)
	require.NoError(t, err)

	require.Equal(t, 6, len(result.Segments[0].Points))
	np := result.Segments[0].Points[0]
	require.NotNil(t, np.Ele)
	assert.Equal(t, *first.Ele, *np.Ele)
	require.NotNil(t, np.HR)
	assert.Equal(t, *first.HR, *np.HR)
	require.NotNil(t, np.Time)
	assert.True(t, np.Time.Before(*first.Time))
	assert.NotEmpty(t, np.ID)
}

func TestInsertPointAppendSynthesizesFromLast(t *testing.T) {
	s := New(straightLineTrack())
	before := s.Current()
	last := before.Segments[0].Points[len(before.Segments[0].Points)-1]

	result, err := s.InsertPoint(0, len(before.Segments[0].Points)-1, last.Lat+0.001, last.Lon)
	require.NoError(t, err)

	np := result.Segments[0].Points[len(result.Segments[0].Points)-1]
	require.NotNil(t, np.Ele)
	assert.Equal(t, *last.Ele, *np.Ele)
	require.NotNil(t, np.Time)
	assert.True(t, np.Time.After(*last.Time))
}

func TestInsertPointInteriorInterpolates(t *testing.T) {
	s := New(straightLineTrack())
	before := s.Current()
	prev := before.Segments[0].Points[1]
	next := before.Segments[0].Points[2]

	midLat := (prev.Lat + next.Lat) / 2
	result, err := s.InsertPoint(0, 1, midLat, 0)
	require.NoError(t, err)

	np := result.Segments[0].Points[2]
	require.NotNil(t, np.Ele)
	assert.InDelta(t, (*prev.Ele+*next.Ele)/2, *np.Ele, 0.5)
	require.NotNil(t, np.Time)
	assert.True(t, np.Time.After(*prev.Time))
	assert.True(t, np.Time.Before(*next.Time))
}

func TestInsertPointRejectsOutOfRangePrev(t *testing.T) {
	s := New(straightLineTrack())
	_, err := s.InsertPoint(0, 99, 1, 1)
	assert.Error(t, err)

	_, err = s.InsertPoint(5, -1, 1, 1)
	assert.Error(t, err)
}

func TestInsertPointOnEmptySegmentDoesNotPanic(t *testing.T) {
	tr := &track.Track{Segments: []track.Segment{{Points: nil}}}
	s := New(tr)
	result, err := s.InsertPoint(0, -1, 1, 1)
	require.NoError(t, err)
	require.Len(t, result.Segments[0].Points, 1)
}

func TestUpdateTimeRejectsOutOfOrder(t *testing.T) {
	s := New(straightLineTrack())
	before := s.Current()
	mid := before.Segments[0].Points[2]

	_, err := s.UpdateTime(0, 2, mid.Time.Add(-time.Hour))
	assert.Error(t, err)

	_, err = s.UpdateTime(0, 2, mid.Time.Add(time.Hour))
	assert.Error(t, err)
}

func TestUpdateTimeAcceptsWithinBounds(t *testing.T) {
	s := New(straightLineTrack())
	before := s.Current()
	mid := before.Segments[0].Points[2]
	newTime := mid.Time.Add(10 * time.Second)

	result, err := s.UpdateTime(0, 2, newTime)
	require.NoError(t, err)
	assert.True(t, result.Segments[0].Points[2].Time.Equal(newTime.UTC()))
}

func TestRerouteMovesTargetAndFallsOffWithRadius(t *testing.T) {
	s := New(straightLineTrack())
	before := s.Current()
	target := before.Segments[0].Points[2]

	result, err := s.Reroute(0, 2, target.Lat+0.01, target.Lon+0.01, 50, "straight")
	require.NoError(t, err)

	assert.Equal(t, target.Lat+0.01, result.Segments[0].Points[2].Lat)
	assert.Equal(t, target.Lon+0.01, result.Segments[0].Points[2].Lon)

	farPoint := result.Segments[0].Points[0]
	origFar := before.Segments[0].Points[0]
	assert.Equal(t, origFar.Lat, farPoint.Lat, "points outside radius must be untouched")
}

func TestRerouteNonStraightModeStillMovesTarget(t *testing.T) {
	s := New(straightLineTrack())
	before := s.Current()
	target := before.Segments[0].Points[2]
	neighbor := before.Segments[0].Points[1]

	result, err := s.Reroute(0, 2, target.Lat+0.01, target.Lon+0.01, 5000, "snap")
	require.NoError(t, err)

	assert.Equal(t, target.Lat+0.01, result.Segments[0].Points[2].Lat)
	assert.Equal(t, neighbor.Lat, result.Segments[0].Points[1].Lat, "non-straight mode leaves neighbors untouched")
}

func TestRerouteRejectsOutOfRangePoint(t *testing.T) {
	s := New(straightLineTrack())
	_, err := s.Reroute(0, 99, 1, 1, 10, "straight")
	assert.Error(t, err)
}

func TestDetectGpsStucksFindsStationaryRun(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	pts := []track.Point{
		{ID: "0", Lat: 50.0, Lon: 0.0, Time: pt(base)},
		{ID: "1", Lat: 50.0, Lon: 0.0, Time: pt(base.Add(1 * time.Second))},
		{ID: "2", Lat: 50.0, Lon: 0.0, Time: pt(base.Add(2 * time.Second))},
		{ID: "3", Lat: 50.0, Lon: 0.0, Time: pt(base.Add(3 * time.Second))},
		// Jump far away in under a second: triggers the speed check.
		{ID: "4", Lat: 50.01, Lon: 0.0, Time: pt(base.Add(3500 * time.Millisecond))},
	}
	tr := &track.Track{Segments: []track.Segment{{Points: pts}}}
	s := New(tr)

	stucks := s.DetectGpsStucks(2.0, 2)
	require.Len(t, stucks, 1)
	assert.Equal(t, 0, stucks[0].SegmentIdx)
	assert.Equal(t, 0, stucks[0].StartIdx)
	assert.Equal(t, 4, stucks[0].EndIdx)
	assert.Equal(t, []int{1, 2, 3}, stucks[0].StuckIndices)
}

func TestDetectGpsStucksIsPureAndTakesNoSnapshot(t *testing.T) {
	s := New(straightLineTrack())
	before := s.Current()
	s.DetectGpsStucks(100, 3)
	after := s.Current()
	assert.Equal(t, before, after)
	_, ok := s.Undo()
	assert.False(t, ok, "a pure read must not push a history entry")
}

func TestNormalizeGpsStucksInterpolatesLatLonOnly(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	hr := 150
	pts := []track.Point{
		{ID: "0", Lat: 0.0, Lon: 0.0, Time: pt(base), HR: &hr},
		{ID: "1", Lat: 0.1, Lon: 0.2, Time: pt(base.Add(time.Second)), HR: &hr},
		{ID: "2", Lat: 0.2, Lon: 0.4, Time: pt(base.Add(2 * time.Second)), HR: &hr},
		{ID: "3", Lat: 1.0, Lon: 2.0, Time: pt(base.Add(3 * time.Second)), HR: &hr},
	}
	tr := &track.Track{Segments: []track.Segment{{Points: pts}}}
	s := New(tr)

	result, err := s.NormalizeGpsStucks([]GpsStuck{
		{SegmentIdx: 0, StartIdx: 0, EndIdx: 3, StuckIndices: []int{1, 2}},
	})
	require.NoError(t, err)

	p1 := result.Segments[0].Points[1]
	p2 := result.Segments[0].Points[2]
	assert.InDelta(t, 1.0/3.0, p1.Lat, 1e-9)
	assert.InDelta(t, 2.0/3.0, p1.Lon, 1e-9)
	assert.InDelta(t, 2.0/3.0, p2.Lat, 1e-9)
	assert.InDelta(t, 4.0/3.0, p2.Lon, 1e-9)
	require.NotNil(t, p1.HR)
	assert.Equal(t, hr, *p1.HR, "non-position fields are untouched")
}

func TestNormalizeGpsStucksRejectsBadRun(t *testing.T) {
	s := New(straightLineTrack())
	_, err := s.NormalizeGpsStucks([]GpsStuck{
		{SegmentIdx: 0, StartIdx: 0, EndIdx: 99, StuckIndices: []int{1}},
	})
	assert.Error(t, err)
}

func TestTrimKeepsGlobalIndexRangeAndDropsEmptySegments(t *testing.T) {
	tr := &track.Track{Segments: []track.Segment{
		{Points: []track.Point{{ID: "0"}}},
		{Points: []track.Point{{ID: "1"}, {ID: "2"}}},
		{Points: []track.Point{{ID: "3"}, {ID: "4"}}},
	}}
	s := New(tr)

	result, err := s.Trim(1, 3)
	require.NoError(t, err)

	// The first segment holds only global index 0 and is dropped.
	require.Len(t, result.Segments, 2)
	var ids []string
	for _, seg := range result.Segments {
		for _, p := range seg.Points {
			ids = append(ids, p.ID)
		}
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
}

func TestTrimRejectsEmptyResult(t *testing.T) {
	tr := &track.Track{Segments: []track.Segment{{Points: []track.Point{{ID: "0"}}}}}
	s := New(tr)
	_, err := s.Trim(5, 10)
	assert.Error(t, err)
}

func TestMergeWithAppendsSegmentsAndLeavesMetadata(t *testing.T) {
	s := New(straightLineTrack())
	before := s.Current()

	other := &track.Track{
		Segments: []track.Segment{{Points: []track.Point{{ID: "x"}, {ID: "y"}}}},
		Metadata: track.Metadata{Format: "tcx"},
	}

	result, err := s.MergeWith(other)
	require.NoError(t, err)

	require.Len(t, result.Segments, 2)
	assert.Equal(t, "x", result.Segments[1].Points[0].ID)
	assert.Equal(t, before.Metadata.Format, result.Metadata.Format, "merge must not alter metadata")

	// Mutating the source track after merging must not affect the session.
	other.Segments[0].Points[0].ID = "mutated"
	assert.Equal(t, "x", s.Current().Segments[1].Points[0].ID)
}

func TestConcurrentEditsAreSerialized(t *testing.T) {
	s := New(straightLineTrack())
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func(i int) {
			_, _ = s.InsertPoint(0, -1, 49.0-float64(i)*0.001, 0)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	assert.Equal(t, 25, s.Current().TotalPoints())
}
