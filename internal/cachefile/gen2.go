package cachefile

import (
	"log/slog"

	"github.com/jchantrell/mapcache/internal/address"
	"github.com/jchantrell/mapcache/internal/tags"
)

const (
	gen2IndexSize      = 32
	gen2ClassEntrySize = 12
	gen2TagEntrySize   = 16
)

func (c *Container) loadGen2() error {
	h, err := readHeader(c.src, c.id.Format, c.id.ByteOrder)
	if err != nil {
		return c.fail(StageHeader, err)
	}
	c.header = h
	c.scenario = h.text(fieldScenarioName)

	order := c.id.ByteOrder
	indexAddress := h.int(fieldIndexAddress)
	indexSize := h.int(fieldIndexSize)

	summary, err := c.read("tag index", indexAddress, gen2IndexSize)
	if err != nil {
		return c.fail(StageIndex, err)
	}
	classPointer := int64(order.Uint32(summary[0:]))
	classCount := int64(order.Uint32(summary[4:]))
	tagPointer := int64(order.Uint32(summary[8:]))
	scenarioID := order.Uint32(summary[12:])
	globalsID := order.Uint32(summary[16:])
	tagCount := int64(order.Uint32(summary[24:]))
	if m := order.Uint32(summary[28:]); m != indexMagic {
		return c.fail(StageIndex, corrupt("tag index marker %#08x", m))
	}

	index := address.FromPointer(classPointer, indexAddress+gen2IndexSize)

	classes, err := c.read("tag class table", index.ToOffset(classPointer), classCount*gen2ClassEntrySize)
	if err != nil {
		return c.fail(StageIndex, err)
	}
	parents := make(map[tags.ClassCode][2]tags.ClassCode, classCount)
	for i := int64(0); i < classCount; i++ {
		rec := classes[i*gen2ClassEntrySize:]
		parents[tags.ClassCode(order.Uint32(rec))] = [2]tags.ClassCode{
			tags.ClassCode(order.Uint32(rec[4:])),
			tags.ClassCode(order.Uint32(rec[8:])),
		}
	}

	raw, err := c.read("tag array", index.ToOffset(tagPointer), tagCount*gen2TagEntrySize)
	if err != nil {
		return c.fail(StageIndex, err)
	}

	// metadata starts right after the index; its first pointer fixes the magic
	metadataStart := indexAddress + indexSize
	var meta address.Magic
	found := false

	entries := make([]*tags.Entry, tagCount)
	for i := range entries {
		rec := raw[i*gen2TagEntrySize:]
		e := &tags.Entry{
			Class:   tags.ClassCode(order.Uint32(rec[0:])),
			ID:      order.Uint32(rec[4:]),
			Pointer: int64(order.Uint32(rec[8:])),
			Size:    int64(order.Uint32(rec[12:])),
		}
		if !e.Class.Valid() || e.ID == 0xFFFFFFFF {
			continue
		}
		e.Parents = parents[e.Class]
		if e.Pointer != 0 && !found {
			meta = address.FromPointer(e.Pointer, metadataStart)
			found = true
		}
		entries[i] = e
	}
	if !found {
		meta = address.FromOffset(metadataStart)
	}
	for _, e := range entries {
		if e != nil && e.Pointer != 0 {
			e.Offset = meta.ToOffset(e.Pointer)
		}
	}
	c.translators = Translators{Index: index, Metadata: meta}

	names, err := c.offsetTable(h, nameTable, address.FromOffset(0), nil)
	if err != nil {
		return c.fail(StageNames, err)
	}
	for i, e := range entries {
		if e != nil && i < len(names) {
			e.Name = names[i]
		}
	}

	values, err := c.offsetTable(h, stringTable, address.FromOffset(0), nil)
	if err != nil {
		return c.fail(StageStrings, err)
	}

	c.tags = tags.NewDirectory(c.source(meta), entries, []tags.Global{
		{Class: tags.Scenario, ID: scenarioID},
		{Class: tags.Globals, ID: globalsID},
	})
	c.strings = tags.NewStringTable(values, nil)
	return nil
}

// tableFields names the header fields of one offset table.
type tableFields struct {
	name                       string
	count, size, index, offset field
}

var (
	nameTable   = tableFields{"tag names", fieldFileTableCount, fieldFileTableSize, fieldFileTableIndexOffset, fieldFileTableOffset}
	stringTable = tableFields{"strings", fieldStringCount, fieldStringSize, fieldStringIndexOffset, fieldStringOffset}
)

// offsetTable reads the strings of an offset table whose header offsets are
// translated by tr.
func (c *Container) offsetTable(h *header, t tableFields, tr address.Translator, key *tags.Key) ([]string, error) {
	count := h.int(t.count)
	size := h.int(t.size)
	if count == 0 {
		return nil, nil
	}
	indexOffset := tr.ToOffset(h.int(t.index))
	blobOffset := tr.ToOffset(h.int(t.offset))

	if err := c.checkRange(t.name+" index", indexOffset, count*4); err != nil {
		return nil, err
	}
	if err := c.checkRange(t.name+" data", blobOffset, size); err != nil {
		return nil, err
	}

	values, err := tags.ReadOffsetTable(c.src, c.id.ByteOrder, indexOffset, int(count), blobOffset, int(size), key)
	if err != nil {
		return nil, truncated(t.name, err)
	}
	slog.Debug("Read offset table", "table", t.name, "count", count, "bytes", size, "encrypted", key != nil)
	return values, nil
}
