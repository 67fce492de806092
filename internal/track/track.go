// Package track holds the in-memory geometric model edited by a session:
// Point, Segment, Track and its Metadata, plus the deep-clone and the
// canonical dictionary projection used for external serialization.
package track

import (
	"fmt"
	"sync/atomic"
	"time"
)

// idSeq backs NewPointID. A process-wide counter is enough: ids only need
// to be unique within a track's lifetime, never across process restarts.
var idSeq uint64

// NewPointID mints a fresh point id, used by every codec's decoder and by
// a session's insert_point so that ids come from one scheme regardless of
// where the point originated.
func NewPointID() string {
	n := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("pt-%d", n)
}

// Point is a single GPS sample. Ele/Time/HR/Cadence/Power are optional.
// ID is editor-only: assigned on decode or insertion, preserved across
// edits, and never round-tripped through a codec.
//
// NoPosition marks a point whose source record had no coordinates at all
// (only the TCX decoder produces these, to keep point indices aligned with
// the source lap); Lat/Lon are meaningless when it is set, and Dict emits
// null for both rather than 0,0.
type Point struct {
	ID         string
	Lat        float64
	Lon        float64
	NoPosition bool
	Ele        *float64
	Time       *time.Time
	HR         *int
	Cadence    *int
	Power      *int
}

// Clone returns a deep, independent copy of the point.
func (p Point) Clone() Point {
	out := p
	out.Ele = clonePtrFloat(p.Ele)
	out.Time = clonePtrTime(p.Time)
	out.HR = clonePtrInt(p.HR)
	out.Cadence = clonePtrInt(p.Cadence)
	out.Power = clonePtrInt(p.Power)
	return out
}

// Dict projects the point into its canonical external shape:
// {id, lat, lon, ele, time (ISO-8601 or null), hr, cadence, power}.
func (p Point) Dict() map[string]any {
	d := map[string]any{"id": p.ID}
	if p.NoPosition {
		d["lat"] = nil
		d["lon"] = nil
	} else {
		d["lat"] = p.Lat
		d["lon"] = p.Lon
	}
	if p.Ele != nil {
		d["ele"] = *p.Ele
	} else {
		d["ele"] = nil
	}
	if p.Time != nil {
		d["time"] = p.Time.UTC().Format(time.RFC3339)
	} else {
		d["time"] = nil
	}
	if p.HR != nil {
		d["hr"] = *p.HR
	} else {
		d["hr"] = nil
	}
	if p.Cadence != nil {
		d["cadence"] = *p.Cadence
	} else {
		d["cadence"] = nil
	}
	if p.Power != nil {
		d["power"] = *p.Power
	} else {
		d["power"] = nil
	}
	return d
}

// Segment is an ordered sequence of Points. Timestamps, where present,
// must be monotonically non-decreasing within a segment.
type Segment struct {
	Points []Point
}

// Clone returns a deep, independent copy of the segment.
func (s Segment) Clone() Segment {
	pts := make([]Point, len(s.Points))
	for i, p := range s.Points {
		pts[i] = p.Clone()
	}
	return Segment{Points: pts}
}

// Dict projects the segment into {points: [...]}.
func (s Segment) Dict() map[string]any {
	pts := make([]map[string]any, len(s.Points))
	for i, p := range s.Points {
		pts[i] = p.Dict()
	}
	return map[string]any{"points": pts}
}

// Metadata is the open key/value record describing a Track as a whole.
// Decoders populate what the source format provides; unknown fields are
// simply left zero/nil.
type Metadata struct {
	Format       string
	Name         *string
	Description  *string
	Sport        *string
	Manufacturer *string
	Product      *string
	StartTime    *time.Time
	Duration     *float64 // seconds
	Distance     *float64 // meters
}

// Clone returns a deep, independent copy of the metadata.
func (m Metadata) Clone() Metadata {
	out := m
	out.Name = clonePtrString(m.Name)
	out.Description = clonePtrString(m.Description)
	out.Sport = clonePtrString(m.Sport)
	out.Manufacturer = clonePtrString(m.Manufacturer)
	out.Product = clonePtrString(m.Product)
	out.StartTime = clonePtrTime(m.StartTime)
	out.Duration = clonePtrFloat(m.Duration)
	out.Distance = clonePtrFloat(m.Distance)
	return out
}

// Dict projects the metadata into a flat record, ISO-8601 for time fields.
func (m Metadata) Dict() map[string]any {
	d := map[string]any{"format": m.Format}
	putString(d, "name", m.Name)
	putString(d, "description", m.Description)
	putString(d, "sport", m.Sport)
	putString(d, "manufacturer", m.Manufacturer)
	putString(d, "product", m.Product)
	if m.StartTime != nil {
		d["start_time"] = m.StartTime.UTC().Format(time.RFC3339)
	} else {
		d["start_time"] = nil
	}
	putFloat(d, "duration", m.Duration)
	putFloat(d, "distance", m.Distance)
	return d
}

func putString(d map[string]any, key string, v *string) {
	if v != nil {
		d[key] = *v
	} else {
		d[key] = nil
	}
}

func putFloat(d map[string]any, key string, v *float64) {
	if v != nil {
		d[key] = *v
	} else {
		d[key] = nil
	}
}

// Track is an ordered sequence of Segments plus Metadata describing the
// recorded activity as a whole. A Track always has at least one segment
// except transiently during an edit.
type Track struct {
	Segments []Segment
	Metadata Metadata
}

// Clone returns a deep, independent copy of the track, its segments and
// points. Used for history snapshots so that no Track object is ever
// shared across sessions or between current/original/history states.
func (t *Track) Clone() *Track {
	segs := make([]Segment, len(t.Segments))
	for i, s := range t.Segments {
		segs[i] = s.Clone()
	}
	return &Track{Segments: segs, Metadata: t.Metadata.Clone()}
}

// Dict projects the track into its canonical external shape:
// {segments: [{points: [...]}], metadata: {...}}.
func (t *Track) Dict() map[string]any {
	segs := make([]map[string]any, len(t.Segments))
	for i, s := range t.Segments {
		segs[i] = s.Dict()
	}
	return map[string]any{
		"segments": segs,
		"metadata": t.Metadata.Dict(),
	}
}

// TotalPoints counts points across all segments.
func (t *Track) TotalPoints() int {
	n := 0
	for _, s := range t.Segments {
		n += len(s.Points)
	}
	return n
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

func clonePtrString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func clonePtrTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
