package cachefile

import (
	"fmt"

	"github.com/jchantrell/mapcache/internal/address"
	"github.com/jchantrell/mapcache/internal/format"
	"github.com/jchantrell/mapcache/internal/tags"
)

// Sections of a sectioned container.
const (
	SectionDebug = iota
	SectionResource
	SectionTag
	SectionLocalization

	sectionCount
)

const (
	gen3IndexSize  = 40
	gen3GroupSize  = 16
	gen3TagSize    = 8
	gen3GlobalSize = 8

	halo4IndexBits  = 17
	halo2XIndexBits = 16
)

// Section is one entry of the section table.
type Section struct {
	Address uint32
	Size    uint32
	// Offset is the file offset the section's contents are relative to.
	Offset int64
}

// encrypted lists layouts whose name and string blobs are AES encrypted.
var encrypted = map[format.Layout]bool{
	format.HaloReachRetail: true,
	format.Halo4Beta:       true,
	format.Halo4Retail:     true,
}

// expandsPointers reports whether 32-bit pointers stored in tag data are
// shifted and rebased before translation.
func expandsPointers(desc *format.Descriptor) bool {
	return desc.Generation() == format.Gen4 || desc.Platform == format.MCC
}

func (c *Container) loadGen3() error {
	desc := c.id.Format
	h, err := readHeader(c.src, desc, c.id.ByteOrder)
	if err != nil {
		return c.fail(StageHeader, err)
	}
	c.header = h
	c.scenario = h.text(fieldScenarioName)

	sections := c.Sections()
	debug := address.FromOffset(sections[SectionDebug].Offset)
	res := address.FromOffset(sections[SectionResource].Offset)
	tag := address.FromPointer(h.int(fieldVirtualBase), int64(sections[SectionTag].Address)+sections[SectionTag].Offset)

	var stored address.Translator = tag
	if expandsPointers(desc) {
		stored = address.Expanded{Inner: tag}
	}
	c.resourceBase = sections[SectionResource].Offset
	c.translators = Translators{Index: stored, Metadata: stored, Debug: debug, Resource: res}

	order := c.id.ByteOrder
	summary, err := c.read("tag index", tag.ToOffset(h.int(fieldIndexPointer)), gen3IndexSize)
	if err != nil {
		return c.fail(StageIndex, err)
	}
	groupCount := int64(order.Uint32(summary[0:]))
	groupPointer := int64(order.Uint32(summary[4:]))
	tagCount := int64(order.Uint32(summary[8:]))
	tagPointer := int64(order.Uint32(summary[12:]))
	globalCount := int64(order.Uint32(summary[16:]))
	globalPointer := int64(order.Uint32(summary[20:]))
	if m := order.Uint32(summary[36:]); m != indexMagic {
		return c.fail(StageIndex, corrupt("tag index marker %#08x", m))
	}

	groups, err := c.readGroups(stored, groupPointer, groupCount)
	if err != nil {
		return c.fail(StageIndex, err)
	}

	raw, err := c.read("tag array", stored.ToOffset(tagPointer), tagCount*gen3TagSize)
	if err != nil {
		return c.fail(StageIndex, err)
	}
	entries := make([]*tags.Entry, tagCount)
	for i := range entries {
		rec := raw[i*gen3TagSize:]
		group := int16(order.Uint16(rec[0:]))
		if group < 0 {
			continue
		}
		if int64(group) >= groupCount {
			return c.fail(StageIndex, corrupt("tag %d references group %d of %d", i, group, groupCount))
		}
		salt := uint32(order.Uint16(rec[2:]))
		e := &tags.Entry{
			ID:      salt<<16 | uint32(i),
			Class:   groups[group][0],
			Parents: [2]tags.ClassCode{groups[group][1], groups[group][2]},
			Pointer: int64(order.Uint32(rec[4:])),
		}
		if e.Pointer != 0 {
			e.Offset = stored.ToOffset(e.Pointer)
		}
		entries[i] = e
	}

	var globals []tags.Global
	if globalCount > 0 {
		raw, err := c.read("global tags", stored.ToOffset(globalPointer), globalCount*gen3GlobalSize)
		if err != nil {
			return c.fail(StageIndex, err)
		}
		globals = make([]tags.Global, globalCount)
		for i := range globals {
			rec := raw[i*gen3GlobalSize:]
			globals[i] = tags.Global{Class: tags.ClassCode(order.Uint32(rec)), ID: order.Uint32(rec[4:])}
		}
	}

	var nameKey, stringKey *tags.Key
	if encrypted[desc.Layout] {
		nameKey, stringKey = tags.FileNameKey, tags.StringKey
	}

	names, err := c.offsetTable(h, nameTable, debug, nameKey)
	if err != nil {
		return c.fail(StageNames, err)
	}
	for i, e := range entries {
		if e != nil && i < len(names) {
			e.Name = names[i]
		}
	}

	values, err := c.offsetTable(h, stringTable, debug, stringKey)
	if err != nil {
		return c.fail(StageStrings, err)
	}
	ns, err := c.namespaces(h, debug, len(values))
	if err != nil {
		return c.fail(StageStrings, err)
	}

	c.tags = tags.NewDirectory(c.source(stored), entries, globals)
	c.strings = tags.NewStringTable(values, ns)
	return nil
}

// readGroups returns {class, parent, grandparent} for every tag group.
func (c *Container) readGroups(tr address.Translator, pointer, count int64) ([][3]tags.ClassCode, error) {
	raw, err := c.read("tag groups", tr.ToOffset(pointer), count*gen3GroupSize)
	if err != nil {
		return nil, err
	}
	order := c.id.ByteOrder
	groups := make([][3]tags.ClassCode, count)
	for i := range groups {
		rec := raw[i*gen3GroupSize:]
		for j := range groups[i] {
			groups[i][j] = tags.ClassCode(order.Uint32(rec[j*4:]))
		}
	}
	return groups, nil
}

// namespaces builds the string namespace map from the build's registered
// table, or from the per-namespace counts recorded in the header.
func (c *Container) namespaces(h *header, debug address.Translator, total int) (*tags.NamespaceMap, error) {
	if id := c.id.Namespaces(); id != "" {
		table, err := format.NamespaceTableByID(id)
		if err != nil {
			return nil, err
		}
		return tags.NewNamespaceMap(table, total), nil
	}

	count := h.int(fieldNamespaceCount)
	if count == 0 {
		return nil, nil
	}
	raw, err := c.read("string namespaces", debug.ToOffset(h.int(fieldNamespaceTableOffset)), count*4)
	if err != nil {
		return nil, err
	}
	counts := make([]int, count)
	for i := range counts {
		n := int32(c.id.ByteOrder.Uint32(raw[i*4:]))
		if n < 0 {
			return nil, corrupt("namespace %d has %d strings", i, n)
		}
		counts[i] = int(n)
	}

	bits := uint(halo4IndexBits)
	if c.id.Format.Engine == format.Halo2X {
		bits = halo2XIndexBits
	}
	return tags.FromCounts(bits, counts), nil
}

// Sections returns the section table of a sectioned container, or nil.
func (c *Container) Sections() []Section {
	if c.header == nil || !c.header.has(fieldSectionTable) {
		return nil
	}
	table := c.header.uint32s(fieldSectionTable)
	offsets := c.header.uint32s(fieldSectionOffsets)
	out := make([]Section, sectionCount)
	for i := range out {
		out[i] = Section{Address: table[i*2], Size: table[i*2+1], Offset: int64(offsets[i])}
	}
	return out
}

// SectionName returns the name of a section index.
func SectionName(i int) string {
	switch i {
	case SectionDebug:
		return "debug"
	case SectionResource:
		return "resource"
	case SectionTag:
		return "tag"
	case SectionLocalization:
		return "localization"
	default:
		return fmt.Sprintf("section(%d)", i)
	}
}
