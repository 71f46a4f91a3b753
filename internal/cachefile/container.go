// Package cachefile opens cache containers: it reads the layout-specific
// header, builds the address translators and populates the tag directory
// and string table before Open returns.
package cachefile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/jchantrell/mapcache/internal/address"
	"github.com/jchantrell/mapcache/internal/chunk"
	"github.com/jchantrell/mapcache/internal/format"
	"github.com/jchantrell/mapcache/internal/resource"
	"github.com/jchantrell/mapcache/internal/tags"
)

// Translators are the address translators a container uses. Unused ones are nil.
type Translators struct {
	// Index translates pointers inside the tag index.
	Index address.Translator
	// Metadata translates pointers stored in tag payloads.
	Metadata address.Translator
	// Debug translates string and file table offsets in sectioned layouts.
	Debug address.Translator
	// Resource translates resource offsets in sectioned layouts.
	Resource address.Translator
}

// Option configures Open.
type Option func(*Container)

// WithWarmup runs fn in the background for the scenario, resource gestalt
// and resource layout tags once the container is open. Failures are logged
// and otherwise ignored. Without this option Gen3 and later layouts warm up
// with Prefetch; a nil fn disables warm-up.
func WithWarmup(fn func(*tags.Entry) error) Option {
	return func(c *Container) {
		c.warmup = fn
		c.warmupSet = true
	}
}

// WithLogger sets the logger used for background work.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBlockCodec sets the block codec used for Oodle resources.
func WithBlockCodec(codec resource.BlockCodec) Option {
	return func(c *Container) {
		c.decoder = resource.NewDecoder(codec)
	}
}

// Container is an open cache container. Its directory, string table and
// translators are immutable after Open and safe for concurrent use.
type Container struct {
	id     *format.Identified
	path   string
	file   *os.File
	size   int64
	closed atomic.Bool

	// src reads the logical container bytes and fails once the container is closed.
	src io.ReaderAt

	chunked    bool
	chunkTable func() (*chunk.Table, error)

	header      *header
	scenario    string
	translators Translators
	tags        *tags.Directory
	strings     *tags.StringTable

	// resourceBase is the file offset of the resource section in sectioned layouts.
	resourceBase int64

	sharedMu    sync.Mutex
	sharedBases map[resource.Location]int64
	sharedGroup singleflight.Group

	decoder   *resource.Decoder
	warmup    func(*tags.Entry) error
	warmupSet bool
	logger    *slog.Logger
}

// OpenFile identifies and opens a container.
func OpenFile(path string, opts ...Option) (*Container, error) {
	id, err := format.Identify(path)
	if err != nil {
		return nil, &OpenError{Stage: StageIdentify, Path: path, Err: err}
	}
	return Open(id, opts...)
}

// Open reads the container described by id. The header, tag directory and
// string table are fully populated when Open returns.
func Open(id *format.Identified, opts ...Option) (*Container, error) {
	if id == nil || id.Format == nil {
		path := ""
		if id != nil {
			path = id.Path
		}
		return nil, &OpenError{Stage: StageIdentify, Path: path, Err: ErrUnknownContainer}
	}
	if id.Format.Layout == format.Halo3Alpha {
		return nil, &OpenError{
			Stage: StageIdentify,
			Path:  id.Path,
			Err:   fmt.Errorf("%w: %s", ErrUnsupportedContainer, id.Format.Layout),
		}
	}

	f, err := os.Open(id.Path)
	if err != nil {
		return nil, &OpenError{Stage: StageHeader, Path: id.Path, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &OpenError{Stage: StageHeader, Path: id.Path, Err: err}
	}

	c := &Container{
		id:          id,
		path:        id.Path,
		file:        f,
		size:        info.Size(),
		sharedBases: make(map[resource.Location]int64),
		logger:      slog.Default(),
	}
	c.src = guarded{r: f, closed: &c.closed}
	c.chunkTable = sync.OnceValues(func() (*chunk.Table, error) {
		return chunk.ReadTable(guarded{r: f, closed: &c.closed})
	})
	for _, opt := range opts {
		opt(c)
	}
	if c.decoder == nil {
		c.decoder = resource.NewDecoder(nil)
	}
	if !c.warmupSet {
		c.warmup = defaultWarmup(id.Format)
	}

	if err := c.load(); err != nil {
		f.Close()
		var oe *OpenError
		if errors.As(err, &oe) {
			return nil, err
		}
		return nil, &OpenError{Stage: StageHeader, Path: id.Path, Err: err}
	}

	slog.Debug("Opened cache container",
		"path", c.path,
		"layout", id.Format.Layout,
		"tags", c.tags.Len(),
		"strings", c.strings.Len(),
	)

	c.startWarmup()
	return c, nil
}

func (c *Container) load() error {
	switch c.id.Format.Generation() {
	case format.Gen1:
		return c.loadGen1()
	case format.Gen2:
		return c.loadGen2()
	case format.Gen3, format.Gen4:
		return c.loadGen3()
	default:
		return c.fail(StageHeader, fmt.Errorf("%w: generation %s", ErrUnsupportedContainer, c.id.Format.Generation()))
	}
}

func (c *Container) fail(stage Stage, err error) *OpenError {
	return &OpenError{Stage: stage, Path: c.path, Err: err}
}

// Close releases the file. Reads in flight or started afterwards fail with ErrClosed.
func (c *Container) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.file.Close()
}

func (c *Container) Path() string {
	return c.path
}

func (c *Container) Identified() *format.Identified {
	return c.id
}

func (c *Container) Format() *format.Descriptor {
	return c.id.Format
}

func (c *Container) ByteOrder() binary.ByteOrder {
	return c.id.ByteOrder
}

// ScenarioName is the scenario path recorded in the header.
func (c *Container) ScenarioName() string {
	return c.scenario
}

func (c *Container) Tags() *tags.Directory {
	return c.tags
}

func (c *Container) Strings() *tags.StringTable {
	return c.strings
}

func (c *Container) Translators() Translators {
	return c.translators
}

// Codec is the resource codec used when a locator inherits one.
func (c *Container) Codec() resource.Codec {
	return c.id.Codec()
}

// Chunked reports whether the container payload is chunk-compressed.
func (c *Container) Chunked() bool {
	return c.chunked
}

// Size is the logical size of the container.
func (c *Container) Size() int64 {
	return c.size
}

// ReaderAt reads the logical container bytes.
func (c *Container) ReaderAt() io.ReaderAt {
	return c.src
}

// NewStream returns a seekable reader over the logical container bytes.
// For chunked containers the chunk table is shared by every stream.
func (c *Container) NewStream() (io.ReadSeeker, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if c.Chunked() {
		table, err := c.chunkTable()
		if err != nil {
			return nil, err
		}
		return chunk.NewStream(guarded{r: c.file, closed: &c.closed}, table), nil
	}
	return io.NewSectionReader(c.src, 0, c.size), nil
}

// guarded fails reads once its container is closed.
type guarded struct {
	r      io.ReaderAt
	closed *atomic.Bool
}

func (g guarded) ReadAt(p []byte, off int64) (int, error) {
	if g.closed.Load() {
		return 0, ErrClosed
	}
	return g.r.ReadAt(p, off)
}

// checkRange fails when [offset, offset+length) is outside the container.
func (c *Container) checkRange(what string, offset, length int64) error {
	if offset < 0 || length < 0 || offset > c.size || length > c.size-offset {
		return corrupt("%s at %#x (+%#x) is outside the %#x byte container", what, offset, length, c.size)
	}
	return nil
}

// source returns the tags.Source used for tag payloads.
func (c *Container) source(tr address.Translator) *tags.Source {
	return &tags.Source{R: c.src, Order: c.id.ByteOrder, Translator: tr}
}

// read returns length bytes at offset after checking they lie inside the container.
func (c *Container) read(what string, offset, length int64) ([]byte, error) {
	if err := c.checkRange(what, offset, length); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	if n, err := c.src.ReadAt(buf, offset); n != len(buf) {
		return nil, truncated(what, err)
	}
	return buf, nil
}
