// Package tcxcodec decodes Garmin Training Center XML (laps, trackpoints,
// heart rate, cadence, TPX watts) into a track.Track. Encoding is not
// implemented: spec §4.6 does not require TCX export.
//
// The wire structs are grounded on
// other_examples/c0728556_Matbe34-aimharder-sync__internal-tcx-generator.go,
// the only TCX schema in the retrieved pack. That file only ever encodes
// TCX (Lap and Trackpoint are always emitted as slices), so it doesn't show
// the "one-or-many" shape a real Garmin export can use for a single lap or
// trackpoint; rawElem below handles that the same way the GPX codec in this
// module handles arbitrary extension elements, by decoding into a raw
// element and inspecting its children by local name.
package tcxcodec

import (
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"github.com/trackforge/trackforge/internal/codec"
	"github.com/trackforge/trackforge/internal/track"
	"github.com/trackforge/trackforge/internal/trackerr"
)

func init() {
	codec.Register("tcx", Codec{}, nil)
}

// Codec implements codec.Decoder for TCX. No Encoder is registered.
type Codec struct{}

type tcxDatabase struct {
	XMLName    xml.Name        `xml:"TrainingCenterDatabase"`
	Activities *tcxActivities  `xml:"Activities"`
}

type tcxActivities struct {
	Activity rawElem `xml:"Activity"`
}

// rawElem captures an element's attributes and children generically, so
// Lap and Trackpoint can be normalized whether the source XML emitted one
// element or several under the same parent tag.
type rawElem struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Content string     `xml:",chardata"`
	Children []rawElem `xml:",any"`
}

func (e rawElem) attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func (e rawElem) child(name string) (rawElem, bool) {
	for _, c := range e.Children {
		if c.XMLName.Local == name {
			return c, true
		}
	}
	return rawElem{}, false
}

func (e rawElem) childrenNamed(name string) []rawElem {
	var out []rawElem
	for _, c := range e.Children {
		if c.XMLName.Local == name {
			out = append(out, c)
		}
	}
	return out
}

func (e rawElem) text() string {
	return strings.TrimSpace(e.Content)
}

// Decode parses TrainingCenterDatabase/Activities/Activity. A missing
// Activity fails with InvalidFormat per spec §4.6.
func (Codec) Decode(content []byte) (*track.Track, error) {
	var db tcxDatabase
	if err := xml.Unmarshal(content, &db); err != nil {
		return nil, trackerr.Newf(trackerr.InvalidFormat, "tcx: %v", err)
	}
	if db.Activities == nil || db.Activities.Activity.XMLName.Local == "" {
		return nil, trackerr.New(trackerr.InvalidFormat, "tcx: missing Activity")
	}
	activity := db.Activities.Activity

	md := track.Metadata{Format: "tcx"}
	if sport, ok := activity.attr("Sport"); ok && sport != "" {
		s := strings.ToLower(sport)
		md.Sport = &s
	}
	if idElem, ok := activity.child("Id"); ok {
		if t, err := parseISOTime(idElem.text()); err == nil {
			md.StartTime = t
		}
	}

	var segments []track.Segment
	for _, lap := range activity.childrenNamed("Lap") {
		trackElem, ok := lap.child("Track")
		if !ok {
			continue
		}
		tps := trackElem.childrenNamed("Trackpoint")
		if len(tps) == 0 {
			continue
		}
		points := make([]track.Point, 0, len(tps))
		for _, tp := range tps {
			points = append(points, decodeTrackpoint(tp))
		}
		segments = append(segments, track.Segment{Points: points})
	}
	if len(segments) == 0 {
		segments = []track.Segment{{}}
	}

	return &track.Track{Segments: segments, Metadata: md}, nil
}

func decodeTrackpoint(tp rawElem) track.Point {
	p := track.Point{ID: track.NewPointID()}

	havePos := false
	if pos, ok := tp.child("Position"); ok {
		latElem, latOK := pos.child("LatitudeDegrees")
		lonElem, lonOK := pos.child("LongitudeDegrees")
		lat, latParsed := parseFloat(latElem.text())
		lon, lonParsed := parseFloat(lonElem.text())
		if latOK && lonOK && latParsed && lonParsed {
			p.Lat = lat
			p.Lon = lon
			havePos = true
		}
	}
	p.NoPosition = !havePos
	if alt, ok := tp.child("AltitudeMeters"); ok {
		if v, ok := parseFloat(alt.text()); ok {
			e := v
			p.Ele = &e
		}
	}
	if timeElem, ok := tp.child("Time"); ok {
		if t, err := parseISOTime(timeElem.text()); err == nil {
			p.Time = t
		}
	}
	if hr, ok := tp.child("HeartRateBpm"); ok {
		if v, ok := hr.child("Value"); ok {
			if i, ok := parseInt(v.text()); ok {
				p.HR = &i
			}
		}
	}
	if cad, ok := tp.child("Cadence"); ok {
		if i, ok := parseInt(cad.text()); ok {
			p.Cadence = &i
		}
	}
	if ext, ok := tp.child("Extensions"); ok {
		if tpx, ok := ext.child("TPX"); ok {
			if watts, ok := tpx.child("Watts"); ok {
				if i, ok := parseInt(watts.text()); ok {
					p.Power = &i
				}
			}
		}
	}
	return p
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

func parseInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f + 0.5), true
	}
	return 0, false
}

func parseISOTime(s string) (*time.Time, error) {
	s = strings.Replace(s, "Z", "+00:00", 1)
	layouts := []string{time.RFC3339Nano, "2006-01-02T15:04:05-07:00", time.RFC3339}
	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		} else {
			lastErr = err
		}
	}
	return nil, lastErr
}
