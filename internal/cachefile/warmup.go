package cachefile

import (
	"errors"
	"fmt"

	"github.com/jchantrell/mapcache/internal/format"
	"github.com/jchantrell/mapcache/internal/tags"
)

// warmClasses are the global tags most consumers reach for first.
var warmClasses = []tags.ClassCode{tags.Scenario, tags.ResourceGestalt, tags.ResourceLayout}

// startWarmup runs the configured warm-up function in the background. It is
// purely an optimisation: nothing waits for it and its failures are only logged.
func (c *Container) startWarmup() {
	if c.warmup == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Warn("Background warm-up panicked", "path", c.path, "panic", fmt.Sprint(r))
			}
		}()

		for _, class := range warmClasses {
			if c.closed.Load() {
				return
			}
			e, err := c.tags.Global(class)
			if err != nil {
				if !errors.Is(err, tags.ErrTagNotFound) {
					c.logger.Warn("Skipping warm-up", "path", c.path, "class", class, "error", err)
				}
				continue
			}
			if err := c.warmup(e); err != nil {
				if errors.Is(err, ErrClosed) {
					return
				}
				c.logger.Warn("Warm-up failed", "path", c.path, "tag", e, "error", err)
			}
		}
	}()
}

// Preamble is the leading bytes of a tag payload.
type Preamble [16]byte

// WarmupAs returns a warm-up function that decodes each tag as T, so later
// Decode[T] calls for the same system tags are served from the memo.
func WarmupAs[T any]() func(*tags.Entry) error {
	return func(e *tags.Entry) error {
		_, err := tags.Decode[T](e)
		return err
	}
}

// Prefetch decodes the Preamble of a tag. It is the default warm-up for
// sectioned layouts: it pages in the payload and fills the memo slot without
// knowing the payload type. Callers that do should use WarmupAs.
var Prefetch = WarmupAs[Preamble]()

// defaultWarmup returns the warm-up used when none was configured. Only the
// sectioned layouts carry the resource gestalt and layout tags.
func defaultWarmup(desc *format.Descriptor) func(*tags.Entry) error {
	if desc.Generation() >= format.Gen3 {
		return Prefetch
	}
	return nil
}
