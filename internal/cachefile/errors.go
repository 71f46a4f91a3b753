package cachefile

import (
	"errors"
	"fmt"

	"github.com/jchantrell/mapcache/internal/format"
	"github.com/jchantrell/mapcache/internal/resource"
	"github.com/jchantrell/mapcache/internal/tags"
)

var (
	ErrNotAContainer      = format.ErrNotAContainer
	ErrUnknownContainer   = format.ErrUnknownContainer
	ErrUnsupportedCodec   = resource.ErrUnsupportedCodec
	ErrDecode             = tags.ErrDecode
	ErrAmbiguousGlobalTag = tags.ErrAmbiguousGlobalTag

	// ErrUnsupportedContainer is returned for recognised layouts that cannot be read.
	ErrUnsupportedContainer = errors.New("mapcache: unsupported cache container")

	// ErrCorruptContainer is returned when header or index structures are out of range or truncated.
	ErrCorruptContainer = errors.New("mapcache: corrupt cache container")

	// ErrClosed is returned by reads against a closed container.
	ErrClosed = errors.New("mapcache: container closed")
)

// Stage names the part of Open that failed.
type Stage string

const (
	StageIdentify Stage = "identify"
	StageHeader   Stage = "header"
	StageIndex    Stage = "index"
	StageStrings  Stage = "strings"
	StageNames    Stage = "names"
)

// OpenError reports a failed Open along with the stage that failed.
type OpenError struct {
	Stage Stage
	Path  string
	Err   error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("opening %s: %s: %v", e.Path, e.Stage, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// corrupt wraps a structural failure so it matches ErrCorruptContainer.
func corrupt(msg string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptContainer, fmt.Sprintf(msg, args...))
}

// truncated marks a failed structural read as corruption while keeping the cause.
func truncated(what string, err error) error {
	if errors.Is(err, ErrClosed) || errors.Is(err, ErrCorruptContainer) {
		return err
	}
	return fmt.Errorf("%w: reading %s: %w", ErrCorruptContainer, what, err)
}
