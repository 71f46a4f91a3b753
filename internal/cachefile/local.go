package cachefile

import (
	"fmt"

	"github.com/jchantrell/mapcache/internal/address"
	"github.com/jchantrell/mapcache/internal/format"
	"github.com/jchantrell/mapcache/internal/tags"
)

// bspLayout locates a scenario's structure BSP block and the shape of its elements.
type bspLayout struct {
	blockOffset int64
	elementSize int64
}

var bspLayouts = map[format.Generation]bspLayout{
	format.Gen1: {blockOffset: 0x5A4, elementSize: 32},
	format.Gen2: {blockOffset: 0x210, elementSize: 68},
}

// LocalTranslators returns one translator per structure BSP referenced by
// a scenario. BSP data uses pointers relative to its own load address.
func (c *Container) LocalTranslators(scenario *tags.Entry) ([]address.Translator, error) {
	layout, ok := bspLayouts[c.id.Format.Generation()]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no self-relative regions", ErrUnsupportedContainer, c.id.Format.Layout)
	}
	if scenario.Class != tags.Scenario {
		return nil, fmt.Errorf("tag %s is not a scenario", scenario)
	}

	r, err := scenario.Reader()
	if err != nil {
		return nil, err
	}
	r.Skip(layout.blockOffset)
	block, err := r.ReadBlock()
	if err != nil {
		return nil, &tags.DecodeError{ID: scenario.ID, Class: scenario.Class, Name: scenario.Name, Err: err}
	}
	if block.Count == 0 {
		return nil, nil
	}
	if err := c.checkRange("structure bsp block", block.Offset, int64(block.Count)*layout.elementSize); err != nil {
		return nil, err
	}

	out := make([]address.Translator, block.Count)
	for i := range out {
		el := r.At(block.Offset + int64(i)*layout.elementSize)
		fileOffset, err := el.ReadUint32()
		if err != nil {
			return nil, err
		}
		if _, err := el.ReadUint32(); err != nil { // size
			return nil, err
		}
		addr, err := el.ReadUint32()
		if err != nil {
			return nil, err
		}
		out[i] = address.NewLocal(int64(addr), int64(fileOffset))
	}
	return out, nil
}
