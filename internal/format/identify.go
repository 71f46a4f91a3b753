package format

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/jchantrell/mapcache/internal/cache"
	"github.com/jchantrell/mapcache/internal/resource"
)

// Header magic values as read little-endian. Files written big-endian
// store the same four bytes reversed.
const (
	LittleMagic uint32 = 0x68656164
	BigMagic    uint32 = 0x64616568
)

const maxBuildLength = 32

var (
	// ErrNotAContainer is returned when the header magic matches neither byte order.
	ErrNotAContainer = errors.New("mapcache: not a cache container")

	// ErrUnknownContainer is returned when no layout could be resolved after every fallback.
	ErrUnknownContainer = errors.New("mapcache: unknown cache container")
)

// validBuild matches strings that look like a real build stamp.
var validBuild = regexp.MustCompile(`^[A-Za-z0-9. :]{10,32}$`)

// buildDateLayouts are the compiler date stamps some builds use as their build string.
var buildDateLayouts = []string{
	"Jan _2 2006 15:04:05",
	"Jan 2 2006 15:04:05",
}

// baselines are the layouts assumed when a remastered file carries an empty build string.
var baselines = map[int32]Layout{
	10: MccHaloReach,
	11: MccHalo3,
}

// gameFolders maps the per-title install folder names onto their baseline layouts.
var gameFolders = map[string]Layout{
	"halo1":     MccHalo1,
	"halo2":     MccHalo2,
	"halo3":     MccHalo3,
	"halo3odst": MccHalo3ODST,
	"haloreach": MccHaloReach,
	"halo4":     MccHalo4,
	"groundhog": MccHalo2X,
}

// Identified is the resolved format of one file.
type Identified struct {
	Path      string
	ByteOrder binary.ByteOrder
	Version   int32
	Build     string
	Format    *Descriptor
	Signature *Signature

	// ViaFolder is set when the layout came from the install folder name rather than the build string.
	ViaFolder bool
}

// Codec returns the effective resource codec, honouring signature overrides.
func (id *Identified) Codec() resource.Codec {
	if id.Signature != nil && id.Signature.Codec != nil {
		return *id.Signature.Codec
	}
	return id.Format.Codec
}

// Flags returns the effective flags, honouring signature overrides.
func (id *Identified) Flags() Flags {
	if id.Signature != nil && id.Signature.Flags != nil {
		return *id.Signature.Flags
	}
	return id.Format.Flags
}

// Namespaces returns the string namespace table id, or "" for flat string tables.
func (id *Identified) Namespaces() string {
	if id.Signature == nil {
		return ""
	}
	return id.Signature.Namespaces
}

// Identify opens a file and resolves its layout.
func Identify(path string) (*Identified, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	return IdentifyReader(f, path)
}

// IdentifyReader resolves the layout of a container read from r. The path is
// only used for the install-folder fallback and may be empty.
func IdentifyReader(r io.ReaderAt, path string) (*Identified, error) {
	var head [8]byte
	if _, err := r.ReadAt(head[:], 0); err != nil {
		return nil, fmt.Errorf("%w: reading magic: %v", ErrNotAContainer, err)
	}

	var order binary.ByteOrder
	switch binary.LittleEndian.Uint32(head[:4]) {
	case LittleMagic:
		order = binary.LittleEndian
	case BigMagic:
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad magic %#08x", ErrNotAContainer, binary.LittleEndian.Uint32(head[:4]))
	}

	version := int32(order.Uint32(head[4:]))

	offset, err := buildOffset(r, order, version)
	if err != nil {
		return nil, err
	}

	build, err := readCString(r, offset, maxBuildLength)
	if err != nil {
		return nil, fmt.Errorf("%w: reading build string at %d: %v", ErrUnknownContainer, offset, err)
	}

	id := &Identified{
		Path:      path,
		ByteOrder: order,
		Version:   version,
		Build:     build,
	}

	if build == "" {
		layout, ok := baselines[version]
		if !ok {
			return nil, fmt.Errorf("%w: empty build string for version %d", ErrUnknownContainer, version)
		}
		id.Format, _ = Lookup(layout)
		id.Signature, _ = DefaultSignature(layout)
		slog.Debug("Empty build string, using baseline layout", "path", path, "version", version, "layout", layout)
		return id, nil
	}

	if sig, desc, ok := LookupBuild(build); ok {
		id.Format = desc
		id.Signature = sig
		return id, nil
	}

	layout, ok := gameFolders[strings.ToLower(cache.GameFolder(path))]
	if ok {
		if desc, found := Lookup(layout); found {
			id.Format = desc
			id.Signature, _ = DefaultSignature(layout)
			id.ViaFolder = true
			slog.Debug("Unrecognised build string, using install folder", "path", path, "build", build, "layout", layout)
			return id, nil
		}
	}

	return nil, fmt.Errorf("%w: build %q (version %d)", ErrUnknownContainer, build, version)
}

// buildOffset decides where the build string lives for a header version.
func buildOffset(r io.ReaderAt, order binary.ByteOrder, version int32) (int64, error) {
	switch version {
	case 5, 6, 7, 609:
		return 64, nil

	case 8:
		var marker [4]byte
		if _, err := r.ReadAt(marker[:], 36); err != nil {
			return 0, fmt.Errorf("%w: reading layout marker: %v", ErrUnknownContainer, err)
		}
		switch int32(order.Uint32(marker[:])) {
		case 0:
			return 288, nil
		case -1:
			return 300, nil
		default:
			return 0, fmt.Errorf("%w: unexpected layout marker %#x for version 8", ErrUnknownContainer, order.Uint32(marker[:]))
		}

	case 9:
		return 284, nil

	case 10, 11, 12:
		return 288, nil

	case 13:
		s, err := readCString(r, 288, maxBuildLength)
		if err == nil && validBuild.MatchString(s) {
			return 288, nil
		}
		return 344, nil

	default:
		s, err := readCString(r, 352, maxBuildLength)
		if err == nil && isBuildDate(s) {
			return 352, nil
		}
		return 288, nil
	}
}

func isBuildDate(s string) bool {
	for _, layout := range buildDateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// readCString reads a nul-terminated string of at most max bytes.
func readCString(r io.ReaderAt, off int64, max int) (string, error) {
	buf := make([]byte, max)
	n, err := r.ReadAt(buf, off)
	if n == 0 && err != nil {
		return "", err
	}
	buf = buf[:n]
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), nil
}
