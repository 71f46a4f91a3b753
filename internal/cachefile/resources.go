package cachefile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/jchantrell/mapcache/internal/cache"
	"github.com/jchantrell/mapcache/internal/format"
	"github.com/jchantrell/mapcache/internal/resource"
)

// sharedFiles are the sibling containers each generation stores shared
// resources in, indexed by resource.Location.
var sharedFiles = map[format.Generation][resource.MaxShared]string{
	format.Gen1: {"bitmaps.map", "sounds.map", "loc.map"},
	format.Gen2: {"mainmenu.map", "shared.map", "single_player_shared.map"},
	format.Gen3: {"mainmenu.map", "shared.map", "campaign.map"},
	format.Gen4: {"mainmenu.map", "shared.map", "campaign.map"},
}

// SharedFile returns the path of the file holding resources at loc.
func (c *Container) SharedFile(loc resource.Location) (string, error) {
	if loc.IsLocal() {
		return c.path, nil
	}
	names, ok := sharedFiles[c.id.Format.Generation()]
	if !ok || int(loc) >= len(names) || loc < 0 {
		return "", fmt.Errorf("no shared container for %s in %s", loc, c.id.Format.Generation())
	}
	return cache.ForFile(c.path).SharedPath(names[loc]), nil
}

// sectioned reports whether resource offsets are relative to a resource section.
func (c *Container) sectioned() bool {
	return c.id.Format.Generation() >= format.Gen3
}

// ReadResource returns up to maxLength decompressed bytes of the resource at loc,
// starting skip bytes into it. The file holding the resource is opened for
// the duration of the call.
func (c *Container) ReadResource(loc resource.Locator, skip, maxLength int64) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	codec := loc.Codec
	if codec == resource.Inherit {
		codec = c.Codec()
	}
	req := resource.Request{
		Codec:            codec,
		CompressedSize:   loc.CompressedSize,
		DecompressedSize: loc.DecompressedSize,
		Skip:             skip,
		MaxLength:        maxLength,
	}

	offset := loc.Offset
	if c.sectioned() {
		base, err := c.resourceSection(loc.Location)
		if err != nil {
			return nil, err
		}
		offset += base
	}

	// a chunked container's own resources live in its logical stream
	if loc.Location.IsLocal() && c.chunked {
		if err := c.checkRange("resource", offset, loc.CompressedSize); err != nil {
			return nil, err
		}
		return c.decoder.Decode(io.NewSectionReader(c.src, offset, loc.CompressedSize), req)
	}

	path, err := c.SharedFile(loc.Location)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening resource file: %w", err)
	}
	defer f.Close()

	data, err := c.decoder.Decode(io.NewSectionReader(f, offset, loc.CompressedSize), req)
	if err != nil {
		return nil, fmt.Errorf("reading resource at %s+%#x: %w", loc.Location, offset, err)
	}
	return data, nil
}

// resourceSection returns the file offset resource offsets at loc are relative to.
// Shared containers are read once per container and remembered.
func (c *Container) resourceSection(loc resource.Location) (int64, error) {
	if loc.IsLocal() {
		return c.resourceBase, nil
	}

	c.sharedMu.Lock()
	base, ok := c.sharedBases[loc]
	c.sharedMu.Unlock()
	if ok {
		return base, nil
	}

	v, err, _ := c.sharedGroup.Do(loc.String(), func() (any, error) {
		path, err := c.SharedFile(loc)
		if err != nil {
			return int64(0), err
		}
		base, err := readResourceSection(path, c.id.Format, c.id.ByteOrder)
		if err != nil {
			return int64(0), err
		}
		c.sharedMu.Lock()
		c.sharedBases[loc] = base
		c.sharedMu.Unlock()
		return base, nil
	})
	if err != nil {
		return 0, fmt.Errorf("reading resource section of %s: %w", loc, err)
	}
	return v.(int64), nil
}

// readResourceSection reads the resource section offset from a sibling
// container, which shares the layout of the container referencing it.
func readResourceSection(path string, desc *format.Descriptor, order binary.ByteOrder) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h, err := readHeader(f, desc, order)
	if err != nil {
		return 0, err
	}
	offsets := h.uint32s(fieldSectionOffsets)
	if len(offsets) <= SectionResource {
		return 0, fmt.Errorf("%w: %s has no section table", ErrUnsupportedContainer, desc.Layout)
	}
	return int64(offsets[SectionResource]), nil
}
