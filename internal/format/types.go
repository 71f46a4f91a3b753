package format

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/jchantrell/mapcache/internal/resource"
)

// Layout identifies one historical on-disk structure of a cache container.
// Values are ordered chronologically within each engine family so that
// header fields can be declared valid for a [min, max) range of layouts.
type Layout uint16

const (
	Unknown Layout = iota

	Halo1Xbox
	Halo1PC
	Halo1CE
	MccHalo1

	Halo2Beta
	Halo2Xbox
	Halo2Vista
	MccHalo2

	Halo3Alpha
	Halo3Beta
	Halo3Retail
	MccHalo3
	MccHalo3U6
	Halo3ODST
	MccHalo3ODST
	MccHalo3ODSTU3

	HaloReachBeta
	HaloReachRetail
	MccHaloReach
	MccHaloReachU3

	Halo4Beta
	Halo4Retail
	MccHalo4
	MccHalo4U4
	MccHalo2X
	MccHalo2XU8

	layoutCount
)

var layoutNames = [...]string{
	Unknown:         "Unknown",
	Halo1Xbox:       "Halo1Xbox",
	Halo1PC:         "Halo1PC",
	Halo1CE:         "Halo1CE",
	MccHalo1:        "MccHalo1",
	Halo2Beta:       "Halo2Beta",
	Halo2Xbox:       "Halo2Xbox",
	Halo2Vista:      "Halo2Vista",
	MccHalo2:        "MccHalo2",
	Halo3Alpha:      "Halo3Alpha",
	Halo3Beta:       "Halo3Beta",
	Halo3Retail:     "Halo3Retail",
	MccHalo3:        "MccHalo3",
	MccHalo3U6:      "MccHalo3U6",
	Halo3ODST:       "Halo3ODST",
	MccHalo3ODST:    "MccHalo3ODST",
	MccHalo3ODSTU3:  "MccHalo3ODSTU3",
	HaloReachBeta:   "HaloReachBeta",
	HaloReachRetail: "HaloReachRetail",
	MccHaloReach:    "MccHaloReach",
	MccHaloReachU3:  "MccHaloReachU3",
	Halo4Beta:       "Halo4Beta",
	Halo4Retail:     "Halo4Retail",
	MccHalo4:        "MccHalo4",
	MccHalo4U4:      "MccHalo4U4",
	MccHalo2X:       "MccHalo2X",
	MccHalo2XU8:     "MccHalo2XU8",
}

func (l Layout) String() string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return fmt.Sprintf("Layout(%d)", uint16(l))
}

// ParseLayout resolves a layout by name, ignoring case.
func ParseLayout(name string) (Layout, error) {
	for i, n := range layoutNames {
		if strings.EqualFold(n, name) {
			return Layout(i), nil
		}
	}
	return Unknown, fmt.Errorf("unknown layout %q", name)
}

// MarshalYAML renders the layout by name in registry dumps.
func (l Layout) MarshalYAML() (interface{}, error) {
	return l.String(), nil
}

// Engine is the game engine family that produced a layout.
type Engine uint8

const (
	Halo1 Engine = iota + 1
	Halo2
	Halo3
	ODST
	HaloReach
	Halo4
	Halo2X
)

func (e Engine) String() string {
	switch e {
	case Halo1:
		return "Halo1"
	case Halo2:
		return "Halo2"
	case Halo3:
		return "Halo3"
	case ODST:
		return "Halo3ODST"
	case HaloReach:
		return "HaloReach"
	case Halo4:
		return "Halo4"
	case Halo2X:
		return "Halo2X"
	default:
		return fmt.Sprintf("Engine(%d)", uint8(e))
	}
}

// Generation is the container generation tier. It is derived from the
// engine and cannot be set independently.
func (e Engine) Generation() Generation {
	switch e {
	case Halo1:
		return Gen1
	case Halo2:
		return Gen2
	case Halo3, ODST, HaloReach:
		return Gen3
	case Halo4, Halo2X:
		return Gen4
	default:
		return 0
	}
}

func (e Engine) MarshalYAML() (interface{}, error) {
	return e.String(), nil
}

// Generation groups engines that share a container structure.
type Generation uint8

const (
	Gen1 Generation = iota + 1
	Gen2
	Gen3
	Gen4
)

func (g Generation) String() string {
	if g == 0 {
		return "Gen?"
	}
	return fmt.Sprintf("Gen%d", uint8(g))
}

// Platform is the distribution platform a layout was built for.
type Platform uint8

const (
	Xbox Platform = iota + 1
	PC
	Xbox360
	MCC
)

func (p Platform) String() string {
	switch p {
	case Xbox:
		return "Xbox"
	case PC:
		return "PC"
	case Xbox360:
		return "Xbox360"
	case MCC:
		return "MCC"
	default:
		return fmt.Sprintf("Platform(%d)", uint8(p))
	}
}

func (p Platform) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// Architecture is the CPU architecture of the target platform.
type Architecture uint8

const (
	X86 Architecture = iota + 1
	PowerPC
	X64
)

func (a Architecture) String() string {
	switch a {
	case X86:
		return "x86"
	case PowerPC:
		return "PowerPC"
	case X64:
		return "x64"
	default:
		return fmt.Sprintf("Architecture(%d)", uint8(a))
	}
}

func (a Architecture) MarshalYAML() (interface{}, error) {
	return a.String(), nil
}

// Flags carry release-channel attributes of a layout.
type Flags uint8

const (
	PreRelease Flags = 1 << iota
	Beta
	Flight
	Anniversary
	Remastered
)

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, fl := range []struct {
		bit  Flags
		name string
	}{
		{PreRelease, "prerelease"},
		{Beta, "beta"},
		{Flight, "flight"},
		{Anniversary, "anniversary"},
		{Remastered, "remastered"},
	} {
		if f&fl.bit != 0 {
			parts = append(parts, fl.name)
		}
	}
	return strings.Join(parts, "|")
}

func (f Flags) MarshalYAML() (interface{}, error) {
	return f.String(), nil
}

// Descriptor describes one known layout. Descriptors are defined at build
// time and never mutated.
type Descriptor struct {
	Layout   Layout         `yaml:"layout"`
	Engine   Engine         `yaml:"engine"`
	Platform Platform       `yaml:"platform"`
	Arch     Architecture   `yaml:"arch"`
	Codec    resource.Codec `yaml:"codec"`
	Flags    Flags          `yaml:"flags"`

	// Version is the raw header version integer files of this layout carry.
	Version int32 `yaml:"version"`
}

// Generation returns the generation tier of the descriptor's engine.
func (d *Descriptor) Generation() Generation {
	return d.Engine.Generation()
}

// ByteOrder returns the byte order files of this layout are written in.
func (d *Descriptor) ByteOrder() binary.ByteOrder {
	if d.Platform == Xbox360 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Is64Bit reports whether stored virtual addresses in the header are 64 bits wide.
func (d *Descriptor) Is64Bit() bool {
	return d.Arch == X64
}

// Signature is one recognised build string and the layout it selects.
type Signature struct {
	Build  string `yaml:"build"`
	Layout Layout `yaml:"layout"`

	// Namespaces names the string namespace table used by this build, if any.
	Namespaces string `yaml:"namespaces,omitempty"`

	Codec *resource.Codec `yaml:"codec,omitempty"`
	Flags *Flags          `yaml:"flags,omitempty"`
}
