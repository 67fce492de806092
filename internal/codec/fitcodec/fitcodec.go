// Package fitcodec decodes FIT activity files (record/session/file_id/sport
// messages) into a track.Track. Encoding is not implemented: spec §4.5 does
// not require it, and fabricating a writer for a binary protocol this dense
// without a verified reference is a worse bet than declining it outright.
//
// Grounded on two pack files rather than a third-party FIT library: the
// header layout and semicircle/Garmin-epoch constants come from
// other_examples/ac259912_sstent-go-garminconnect__internal-fit-encoder.go,
// and the "read a tagged binary record stream with encoding/binary, dispatch
// on a small record-type switch" shape comes from
// sam-dumont-rkd-telemetry-extractor/go/rkd/parser.go. No repo in the
// retrieved pack imports github.com/tormoder/fit with source to ground its
// API against (it only shows up in two go.mod manifests), so rather than
// guess at that library's call shape this codec reads the wire format
// directly, same as both grounding files do for their own binary formats.
package fitcodec

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/trackforge/trackforge/internal/codec"
	"github.com/trackforge/trackforge/internal/track"
	"github.com/trackforge/trackforge/internal/trackerr"
)

func init() {
	codec.Register("fit", Codec{}, nil)
}

// Codec implements codec.Decoder for FIT. It has no Encoder: registering
// nil for the encoder slot means codec.Encode fails with
// UnsupportedExportFormat for "fit", per spec §4.5.
type Codec struct{}

const (
	fitHeaderMinSize = 12
	garminEpochOffset = 631065600 // seconds, 1989-12-31T00:00:00Z vs Unix epoch
	semicircleToDeg   = 180.0 / 2147483648.0 // 180 / 2^31
)

// Global FIT message numbers this decoder recognizes (spec §4.5). FIT
// defines many more; everything else is skipped once its definition is
// known, matching the "PERIODIC and TIMESTAMP are silently ignored" shape
// of the rkd parser's record switch.
const (
	mesgFileID  = 0
	mesgSession = 18
	mesgRecord  = 20
	mesgSport   = 12
)

// fitField is a single field definition from a FIT definition message:
// which field number, how many bytes it occupies, and its base type.
type fitField struct {
	num      byte
	size     byte
	baseType byte
}

// fitDef is a decoded definition message: the global message it describes,
// byte order, and its field layout. The local message type it binds is the
// key it is stored under in Decode's defs map.
type fitDef struct {
	globalNum uint16
	bigEndian bool
	fields    []fitField
	totalSize int
}

// Decode walks a FIT byte stream's header, definition and data messages,
// accumulating record messages into one TrackSegment and copying file_id,
// sport and session fields into metadata.
func (Codec) Decode(content []byte) (*track.Track, error) {
	if len(content) < fitHeaderMinSize {
		return nil, trackerr.New(trackerr.InvalidFormat, "fit: file too small")
	}
	headerSize := int(content[0])
	if headerSize < fitHeaderMinSize || len(content) < headerSize {
		return nil, trackerr.New(trackerr.InvalidFormat, "fit: bad header size")
	}
	if string(content[8:12]) != ".FIT" {
		return nil, trackerr.New(trackerr.InvalidFormat, "fit: missing .FIT signature")
	}
	dataSize := int(binary.LittleEndian.Uint32(content[4:8]))
	dataEnd := headerSize + dataSize
	if dataEnd > len(content) {
		dataEnd = len(content)
	}

	md := track.Metadata{Format: "fit"}
	var points []track.Point

	defs := map[byte]*fitDef{}
	offset := headerSize
	for offset < dataEnd {
		if offset >= len(content) {
			break
		}
		recordHeader := content[offset]
		offset++

		if recordHeader&0x40 != 0 {
			// Definition message.
			localType := recordHeader & 0x0F
			def, n, err := parseDefinition(content[offset:])
			if err != nil {
				return nil, err
			}
			defs[localType] = def
			offset += n
			continue
		}

		localType := recordHeader & 0x0F
		def, ok := defs[localType]
		if !ok {
			// Unknown local type with no preceding definition: nothing
			// safe to do but stop, the stream is no longer parseable.
			break
		}
		if offset+def.totalSize > len(content) {
			break
		}
		payload := content[offset : offset+def.totalSize]
		offset += def.totalSize

		switch def.globalNum {
		case mesgFileID:
			applyFileID(def, payload, &md)
		case mesgSport:
			applySport(def, payload, &md)
		case mesgSession:
			applySession(def, payload, &md)
		case mesgRecord:
			if p, ok := buildRecordPoint(def, payload); ok {
				points = append(points, p)
			}
		}
	}

	return &track.Track{
		Segments: []track.Segment{{Points: points}},
		Metadata: md,
	}, nil
}

// parseDefinition reads a definition message's body (data[0] is the
// reserved byte and data[1] the architecture byte; the record header was
// already consumed by the caller) and returns it plus the number of bytes
// read.
func parseDefinition(data []byte) (*fitDef, int, error) {
	if len(data) < 5 {
		return nil, 0, trackerr.New(trackerr.InvalidFormat, "fit: truncated definition message")
	}
	bigEndian := data[1] != 0
	globalNum := readUint16(data[2:4], bigEndian)
	numFields := int(data[4])
	def := &fitDef{globalNum: globalNum, bigEndian: bigEndian}

	pos := 5
	for i := 0; i < numFields; i++ {
		if pos+3 > len(data) {
			return nil, 0, trackerr.New(trackerr.InvalidFormat, "fit: truncated field definition")
		}
		f := fitField{num: data[pos], size: data[pos+1], baseType: data[pos+2]}
		def.fields = append(def.fields, f)
		def.totalSize += int(f.size)
		pos += 3
	}
	return def, pos, nil
}

func readUint16(b []byte, bigEndian bool) uint16 {
	if bigEndian {
		return binary.BigEndian.Uint16(b)
	}
	return binary.LittleEndian.Uint16(b)
}

func readUint32(b []byte, bigEndian bool) uint32 {
	if bigEndian {
		return binary.BigEndian.Uint32(b)
	}
	return binary.LittleEndian.Uint32(b)
}

// fieldBytes locates the raw bytes for field number want within payload,
// per def's field layout, or reports ok=false if absent.
func fieldBytes(def *fitDef, payload []byte, want byte) (b []byte, ok bool) {
	pos := 0
	for _, f := range def.fields {
		size := int(f.size)
		if pos+size > len(payload) {
			return nil, false
		}
		if f.num == want {
			return payload[pos : pos+size], true
		}
		pos += size
	}
	return nil, false
}

// isInvalid reports whether raw looks like a FIT "field not present" value:
// all bits set, the convention used across every FIT base type.
func isInvalid(raw []byte) bool {
	for _, b := range raw {
		if b != 0xFF {
			return false
		}
	}
	return true
}

func readInt32Field(def *fitDef, payload []byte, num byte) (int32, bool) {
	raw, ok := fieldBytes(def, payload, num)
	if !ok || len(raw) != 4 || isInvalid(raw) {
		return 0, false
	}
	return int32(readUint32(raw, def.bigEndian)), true
}

func readUint32Field(def *fitDef, payload []byte, num byte) (uint32, bool) {
	raw, ok := fieldBytes(def, payload, num)
	if !ok || len(raw) != 4 || isInvalid(raw) {
		return 0, false
	}
	return readUint32(raw, def.bigEndian), true
}

func readUint16Field(def *fitDef, payload []byte, num byte) (uint16, bool) {
	raw, ok := fieldBytes(def, payload, num)
	if !ok || len(raw) != 2 || isInvalid(raw) {
		return 0, false
	}
	return readUint16(raw, def.bigEndian), true
}

func readUint8Field(def *fitDef, payload []byte, num byte) (byte, bool) {
	raw, ok := fieldBytes(def, payload, num)
	if !ok || len(raw) != 1 || raw[0] == 0xFF {
		return 0, false
	}
	return raw[0], true
}

// FIT file_id field numbers.
const (
	fieldFileIDManufacturer = 1
	fieldFileIDProduct      = 2
)

func applyFileID(def *fitDef, payload []byte, md *track.Metadata) {
	if v, ok := readUint16Field(def, payload, fieldFileIDManufacturer); ok {
		s := manufacturerName(v)
		md.Manufacturer = &s
	}
	if v, ok := readUint16Field(def, payload, fieldFileIDProduct); ok {
		s := productName(v)
		md.Product = &s
	}
}

func manufacturerName(v uint16) string {
	if v == 1 {
		return "garmin"
	}
	return strconv.Itoa(int(v))
}

func productName(v uint16) string {
	return strconv.Itoa(int(v))
}

// FIT sport field number.
const fieldSportSport = 0

func applySport(def *fitDef, payload []byte, md *track.Metadata) {
	if v, ok := readUint8Field(def, payload, fieldSportSport); ok {
		s := sportName(v)
		md.Sport = &s
	}
}

func sportName(v byte) string {
	names := map[byte]string{
		0: "generic", 1: "running", 2: "cycling", 5: "swimming", 11: "hiking",
	}
	if n, ok := names[v]; ok {
		return n
	}
	return strconv.Itoa(int(v))
}

// FIT session field numbers.
const (
	fieldSessionStartTime        = 2
	fieldSessionTotalElapsedTime = 7
	fieldSessionTotalDistance    = 9
)

func applySession(def *fitDef, payload []byte, md *track.Metadata) {
	if v, ok := readUint32Field(def, payload, fieldSessionStartTime); ok {
		t := fitTimeToUTC(v)
		md.StartTime = &t
	}
	if v, ok := readUint32Field(def, payload, fieldSessionTotalElapsedTime); ok {
		d := float64(v) / 1000.0
		md.Duration = &d
	}
	if v, ok := readUint32Field(def, payload, fieldSessionTotalDistance); ok {
		d := float64(v) / 100.0
		md.Distance = &d
	}
}

// FIT record field numbers.
const (
	fieldRecordLat       = 0
	fieldRecordLon       = 1
	fieldRecordAltitude  = 2
	fieldRecordHeartRate = 3
	fieldRecordCadence   = 4
	fieldRecordPower     = 7
	fieldRecordTimestamp = 253
)

// buildRecordPoint converts one record message into a TrackPoint, or
// reports ok=false when lat or lon is absent (spec §4.5: skip the record).
func buildRecordPoint(def *fitDef, payload []byte) (track.Point, bool) {
	latRaw, latOK := readInt32Field(def, payload, fieldRecordLat)
	lonRaw, lonOK := readInt32Field(def, payload, fieldRecordLon)
	if !latOK || !lonOK {
		return track.Point{}, false
	}

	p := track.Point{
		ID:  track.NewPointID(),
		Lat: float64(latRaw) * semicircleToDeg,
		Lon: float64(lonRaw) * semicircleToDeg,
	}
	if v, ok := readUint16Field(def, payload, fieldRecordAltitude); ok {
		e := float64(v)/5.0 - 500.0
		p.Ele = &e
	}
	if v, ok := readUint32Field(def, payload, fieldRecordTimestamp); ok {
		t := fitTimeToUTC(v)
		p.Time = &t
	}
	if v, ok := readUint8Field(def, payload, fieldRecordHeartRate); ok {
		hr := int(v)
		p.HR = &hr
	}
	if v, ok := readUint8Field(def, payload, fieldRecordCadence); ok {
		c := int(v)
		p.Cadence = &c
	}
	if v, ok := readUint16Field(def, payload, fieldRecordPower); ok {
		w := int(v)
		p.Power = &w
	}
	return p, true
}

func fitTimeToUTC(v uint32) time.Time {
	return time.Unix(int64(v)+garminEpochOffset, 0).UTC()
}

