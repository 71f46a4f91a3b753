package cachefile

import (
	"fmt"
	"log/slog"

	"github.com/jchantrell/mapcache/internal/address"
	"github.com/jchantrell/mapcache/internal/chunk"
	"github.com/jchantrell/mapcache/internal/tags"
)

const (
	// indexMagic is the 'tags' marker that closes every tag index summary.
	indexMagic = 0x74616773

	gen1IndexSize = 40
	gen1EntrySize = 32
	gen1NameMax   = 256

	gen1FlagExternal = 1
)

func (c *Container) loadGen1() error {
	h, err := readHeader(c.src, c.id.Format, c.id.ByteOrder)
	if err != nil {
		return c.fail(StageHeader, err)
	}

	if n := h.uint(fieldCompressedSize); n != 0 {
		return c.fail(StageHeader, fmt.Errorf("%w: %s payload is compressed (%d bytes)",
			ErrUnsupportedContainer, c.id.Format.Layout, n))
	}

	if h.uint(fieldChunkCompressed) != 0 {
		table, err := c.chunkTable()
		if err != nil {
			return c.fail(StageHeader, truncated("chunk table", err))
		}
		c.src = guarded{r: chunk.NewStream(c.src, table), closed: &c.closed}
		c.size = table.Size()
		c.chunked = true
		slog.Debug("Reading chunk-compressed container", "path", c.path, "chunks", table.Len(), "size", c.size)

		// the raw header is the first chunk, so re-reading through the stream yields the same bytes
		if h, err = readHeader(c.src, c.id.Format, c.id.ByteOrder); err != nil {
			return c.fail(StageHeader, err)
		}
	}

	c.header = h
	c.scenario = h.text(fieldScenarioName)

	indexAddress := h.int(fieldIndexAddress)
	summary, err := c.read("tag index", indexAddress, gen1IndexSize)
	if err != nil {
		return c.fail(StageIndex, err)
	}

	order := c.id.ByteOrder
	tagArray := int64(order.Uint32(summary[0:]))
	scenarioID := order.Uint32(summary[4:])
	count := int64(order.Uint32(summary[12:]))
	if m := order.Uint32(summary[36:]); m != indexMagic {
		return c.fail(StageIndex, corrupt("tag index marker %#08x", m))
	}

	meta := address.FromPointer(tagArray, indexAddress+gen1IndexSize)
	c.translators = Translators{Index: meta, Metadata: meta}

	arrayOffset := meta.ToOffset(tagArray)
	raw, err := c.read("tag array", arrayOffset, count*gen1EntrySize)
	if err != nil {
		return c.fail(StageIndex, err)
	}

	src := c.source(meta)
	entries := make([]*tags.Entry, count)
	for i := range entries {
		rec := raw[i*gen1EntrySize:]
		e := &tags.Entry{
			Class:   tags.ClassCode(order.Uint32(rec[0:])),
			Parents: [2]tags.ClassCode{tags.ClassCode(order.Uint32(rec[4:])), tags.ClassCode(order.Uint32(rec[8:]))},
			ID:      order.Uint32(rec[12:]),
		}
		if !e.Class.Valid() {
			continue
		}

		namePointer := int64(order.Uint32(rec[16:]))
		e.Pointer = int64(order.Uint32(rec[20:]))
		e.External = order.Uint32(rec[24:])&gen1FlagExternal != 0
		if !e.External && e.Pointer != 0 {
			e.Offset = meta.ToOffset(e.Pointer)
		}

		if namePointer != 0 {
			name, err := src.At(meta.ToOffset(namePointer)).ReadCString(gen1NameMax)
			if err != nil {
				return c.fail(StageNames, truncated(fmt.Sprintf("name of tag %d", i), err))
			}
			e.Name = name
		}
		entries[i] = e
	}

	c.tags = tags.NewDirectory(src, entries, []tags.Global{{Class: tags.Scenario, ID: scenarioID}})
	c.strings = tags.NewStringTable(nil, nil)
	return nil
}
