package tags

import (
	"fmt"
	"log/slog"
)

// Global names the entry a container's index marks as the singleton of a class.
type Global struct {
	Class ClassCode
	ID    uint32
}

// Directory is the ordered tag index of one container. It is immutable after
// construction and safe for concurrent use.
type Directory struct {
	entries []*Entry // by index, nil for null slots
	byID    map[uint32]*Entry
	byClass map[ClassCode][]*Entry
	globals map[ClassCode]*Entry
	paths   map[uint64][]*Entry
	count   int
}

// NewDirectory indexes entries by id, class and path. Entries are attached to
// src so their payloads can be decoded. Globals whose id is not present are ignored.
func NewDirectory(src *Source, entries []*Entry, globals []Global) *Directory {
	d := &Directory{
		entries: entries,
		byID:    make(map[uint32]*Entry, len(entries)),
		byClass: make(map[ClassCode][]*Entry),
		globals: make(map[ClassCode]*Entry, len(globals)),
		paths:   make(map[uint64][]*Entry, len(entries)),
	}

	for i, e := range entries {
		if e == nil {
			continue
		}
		e.Index = i
		e.src = src
		d.count++
		d.byID[e.ID] = e
		d.byClass[e.Class] = append(d.byClass[e.Class], e)
		if e.Name != "" {
			h := PathHash(e.Name, e.Class)
			d.paths[h] = append(d.paths[h], e)
		}
	}

	for _, g := range globals {
		if e, ok := d.byID[g.ID]; ok {
			d.globals[g.Class] = e
		}
	}

	slog.Debug("indexed tag directory",
		"tags", d.count,
		"classes", len(d.byClass),
		"globals", len(d.globals),
	)
	return d
}

// Len returns the number of non-null entries.
func (d *Directory) Len() int {
	return d.count
}

// Slots returns the number of index slots, including null ones.
func (d *Directory) Slots() int {
	return len(d.entries)
}

// All returns the non-null entries in index order.
func (d *Directory) All() []*Entry {
	out := make([]*Entry, 0, d.count)
	for _, e := range d.entries {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (d *Directory) Get(id uint32) (*Entry, bool) {
	e, ok := d.byID[id]
	return e, ok
}

func (d *Directory) ByIndex(i int) (*Entry, bool) {
	if i < 0 || i >= len(d.entries) || d.entries[i] == nil {
		return nil, false
	}
	return d.entries[i], true
}

// ByClass returns every entry of class in index order.
func (d *Directory) ByClass(class ClassCode) []*Entry {
	return d.byClass[class]
}

// Global returns the singleton entry of a class. An explicit global from the
// index wins; otherwise the class must have exactly one entry.
func (d *Directory) Global(class ClassCode) (*Entry, error) {
	if e, ok := d.globals[class]; ok {
		return e, nil
	}
	switch candidates := d.byClass[class]; len(candidates) {
	case 0:
		return nil, fmt.Errorf("%w: no %s tag", ErrTagNotFound, class)
	case 1:
		return candidates[0], nil
	default:
		return nil, fmt.Errorf("%w: %d %s tags", ErrAmbiguousGlobalTag, len(candidates), class)
	}
}

// Find looks a tag up by path and class. Paths compare case-insensitively
// and treat '/' and '\' alike.
func (d *Directory) Find(path string, class ClassCode) (*Entry, bool) {
	want := normalizePath(path)
	for _, e := range d.paths[PathHash(path, class)] {
		if e.Class == class && normalizePath(e.Name) == want {
			return e, true
		}
	}
	return nil, false
}
