package tags

import (
	"fmt"
	"strings"
)

// ClassCode is a four-character tag class such as "scnr". The first character
// occupies the most significant byte, so the value is the same whichever byte
// order the container uses.
type ClassCode uint32

// NoClass marks an absent parent class.
const NoClass ClassCode = 0xFFFFFFFF

const (
	Scenario        ClassCode = 's'<<24 | 'c'<<16 | 'n'<<8 | 'r'
	Globals         ClassCode = 'm'<<24 | 'a'<<16 | 't'<<8 | 'g'
	SoundGestalt    ClassCode = 'u'<<24 | 'g'<<16 | 'h'<<8 | '!'
	ResourceGestalt ClassCode = 'z'<<24 | 'o'<<16 | 'n'<<8 | 'e'
	ResourceLayout  ClassCode = 'p'<<24 | 'l'<<16 | 'a'<<8 | 'y'
	ModelGestalt    ClassCode = 'g'<<24 | 'e'<<16 | 's'<<8 | 't'
)

// systemClasses are decoded once per entry and shared by every caller.
var systemClasses = map[ClassCode]bool{
	Scenario:        true,
	Globals:         true,
	SoundGestalt:    true,
	ResourceGestalt: true,
	ResourceLayout:  true,
	ModelGestalt:    true,
}

// IsSystem reports whether decoded payloads of this class are memoized.
func (c ClassCode) IsSystem() bool {
	return systemClasses[c]
}

// Valid reports whether the code names a class at all.
func (c ClassCode) Valid() bool {
	return c != 0 && c != NoClass
}

func (c ClassCode) String() string {
	if !c.Valid() {
		return ""
	}
	b := []byte{byte(c >> 24), byte(c >> 16), byte(c >> 8), byte(c)}
	for i, ch := range b {
		if ch < 0x20 || ch > 0x7E {
			b[i] = '?'
		}
	}
	return string(b)
}

// ParseClass parses a class code of one to four characters. Shorter codes
// are padded with spaces, matching how short class names are stored.
func ParseClass(s string) (ClassCode, error) {
	if len(s) == 0 || len(s) > 4 {
		return 0, fmt.Errorf("invalid class code %q: must be 1 to 4 characters", s)
	}
	for _, ch := range []byte(s) {
		if ch < 0x20 || ch > 0x7E {
			return 0, fmt.Errorf("invalid class code %q: non-printable character", s)
		}
	}
	s += strings.Repeat(" ", 4-len(s))
	return ClassCode(uint32(s[0])<<24 | uint32(s[1])<<16 | uint32(s[2])<<8 | uint32(s[3])), nil
}

// MustParseClass is ParseClass for literals known to be valid.
func MustParseClass(s string) ClassCode {
	c, err := ParseClass(s)
	if err != nil {
		panic(err)
	}
	return c
}
