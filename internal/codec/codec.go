// Package codec dispatches an uploaded file to the matching format
// decoder by filename suffix and routes an export back through the
// matching encoder, per spec §4.3 and the "polymorphism over codecs"
// design note in §9: one Decode(bytes) -> Track capability per format,
// and an Encode dispatch keyed by the requested export format.
package codec

import (
	"strings"

	"github.com/trackforge/trackforge/internal/track"
	"github.com/trackforge/trackforge/internal/trackerr"
)

// MediaType maps an export format to its HTTP media type (spec §6).
var MediaType = map[string]string{
	"gpx": "application/gpx+xml",
	"fit": "application/vnd.ant.fit",
	"tcx": "application/vnd.garmin.tcx+xml",
}

// Decoder is implemented by each format's codec.
type Decoder interface {
	Decode(content []byte) (*track.Track, error)
}

// Encoder is implemented by formats that support export.
type Encoder interface {
	Encode(t *track.Track) ([]byte, error)
}

var decoders = map[string]Decoder{}
var encoders = map[string]Encoder{}

// Register installs a decoder and, optionally, an encoder for a format
// name ("gpx", "fit", "tcx"). Called from each codec subpackage's init.
func Register(format string, dec Decoder, enc Encoder) {
	decoders[format] = dec
	if enc != nil {
		encoders[format] = enc
	}
}

// suffixFormat maps a case-insensitive filename suffix to a format name.
func suffixFormat(filename string) (string, bool) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".gpx"):
		return "gpx", true
	case strings.HasSuffix(lower, ".fit"):
		return "fit", true
	case strings.HasSuffix(lower, ".tcx"):
		return "tcx", true
	default:
		return "", false
	}
}

// Decode reads filename's suffix to pick a decoder and parses content
// fully before returning. The caller is expected to have already read
// the whole file into content — decoders never suspend.
func Decode(filename string, content []byte) (*track.Track, error) {
	format, ok := suffixFormat(filename)
	if !ok {
		return nil, trackerr.Newf(trackerr.UnsupportedFormat, "unrecognized file suffix in %q", filename)
	}
	dec, ok := decoders[format]
	if !ok {
		return nil, trackerr.Newf(trackerr.UnsupportedFormat, "no decoder registered for format %q", format)
	}
	t, err := dec.Decode(content)
	if err != nil {
		if _, ok := err.(*trackerr.Error); ok {
			return nil, err
		}
		return nil, trackerr.Newf(trackerr.InvalidFormat, "%s: %v", format, err)
	}
	return t, nil
}

// Encode renders t in format's byte representation and returns it together
// with format's media type.
func Encode(t *track.Track, format string) ([]byte, string, error) {
	mediaType, ok := MediaType[format]
	if !ok {
		return nil, "", trackerr.Newf(trackerr.UnsupportedExportFormat, "unrecognized export format %q", format)
	}
	enc, ok := encoders[format]
	if !ok {
		return nil, "", trackerr.Newf(trackerr.UnsupportedExportFormat, "export not supported for format %q", format)
	}
	data, err := enc.Encode(t)
	if err != nil {
		return nil, "", trackerr.Newf(trackerr.Internal, "encode %s: %v", format, err)
	}
	return data, mediaType, nil
}
