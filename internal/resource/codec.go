package resource

import (
	"errors"
	"fmt"
	"strings"
)

// Codec identifies how a resource payload is stored on disk.
type Codec int8

const (
	// Inherit defers to the container's effective codec.
	Inherit Codec = -1

	// Uncompressed payloads are read straight from the source.
	Uncompressed Codec = 0

	// Deflate payloads are raw deflate streams.
	Deflate Codec = 1

	// Oodle payloads are single vendor-compressed blocks with no streaming support.
	Oodle Codec = 2

	// UnknownDeflate payloads are deflate streams carrying length-prefixed sub-blocks.
	// The layout is only verified against the handful of files it was observed in.
	UnknownDeflate Codec = 3
)

// ErrUnsupportedCodec is returned when a payload names a codec the decoder does not know.
// It means the format registry and the data disagree, so callers should not retry.
var ErrUnsupportedCodec = errors.New("mapcache: unsupported resource codec")

// String returns the human-readable name of a codec.
func (c Codec) String() string {
	switch c {
	case Inherit:
		return "inherit"
	case Uncompressed:
		return "uncompressed"
	case Deflate:
		return "deflate"
	case Oodle:
		return "oodle"
	case UnknownDeflate:
		return "unknown_deflate"
	default:
		return fmt.Sprintf("unknown(%d)", int8(c))
	}
}

// ParseCodec parses a codec from its string representation.
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "inherit", "":
		return Inherit, nil
	case "uncompressed", "none", "raw":
		return Uncompressed, nil
	case "deflate":
		return Deflate, nil
	case "oodle":
		return Oodle, nil
	case "unknown_deflate":
		return UnknownDeflate, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCodec, name)
	}
}

// MarshalYAML renders the codec by name in registry dumps.
func (c Codec) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}
