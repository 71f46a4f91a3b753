package cachefile

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/jchantrell/mapcache/internal/format"
	"github.com/jchantrell/mapcache/internal/resource"
	"github.com/jchantrell/mapcache/internal/tags"
)

type testWords struct {
	A, B uint32
}

func words(order binary.ByteOrder, a, b uint32) []byte {
	out := make([]byte, 8)
	order.PutUint32(out, a)
	order.PutUint32(out[4:], b)
	return out
}

// scenarioWithBSP returns a scenario whose structure BSP block holds one element.
func scenarioWithBSP(blockOffset, elementSize int64, fileOffset, loadAddress uint32) fixtureTag {
	return fixtureTag{
		class:   "scnr",
		name:    testScenario,
		payload: make([]byte, blockOffset+12),
		patch: func(im *image, self int64, ptr func(int64) int64) {
			el := im.alloc(int(elementSize))
			im.u32(el, fileOffset)
			im.u32(el+4, 0x2000)
			im.u32(el+8, loadAddress)
			im.u32(self+blockOffset, 1)
			im.u32(self+blockOffset+4, uint32(ptr(el)))
		},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openError(t *testing.T, err error) *OpenError {
	t.Helper()
	var oe *OpenError
	require.True(t, errors.As(err, &oe), "expected *OpenError, got %v", err)
	return oe
}

var bitm = tags.MustParseClass("bitm")

func TestOpenGen1(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	im := buildGen1(7, "01.00.00.0564", []fixtureTag{
		scenarioWithBSP(0x5A4, 32, 0x9000, 0x81234000),
		{class: "bitm", name: "ui\\shell\\bitmaps\\background", payload: words(binary.LittleEndian, 0xB17B17, 42)},
		{null: true},
		{class: "snd!", name: "sound\\sfx\\ui\\click", external: true},
	})
	path := writeMap(t, dir, "bloodgulch.map", im.buf)
	writeMap(t, dir, "loc.map", pattern(64, 3))

	c, err := OpenFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	assert.Equal(t, format.Halo1PC, c.Format().Layout)
	assert.Equal(t, testScenario, c.ScenarioName())
	assert.Equal(t, 3, c.Tags().Len())
	assert.Equal(t, 4, c.Tags().Slots())
	assert.Zero(t, c.Strings().Len())
	assert.False(t, c.Chunked())

	scn, err := c.Tags().Global(tags.Scenario)
	require.NoError(t, err)
	assert.Equal(t, tagID(0), scn.ID)

	e, ok := c.Tags().Find("UI/Shell/Bitmaps/Background", bitm)
	require.True(t, ok)
	w, err := tags.Decode[testWords](e)
	require.NoError(t, err)
	assert.Equal(t, testWords{A: 0xB17B17, B: 42}, *w)

	_, ok = c.Tags().ByIndex(2)
	assert.False(t, ok)

	snd, ok := c.Tags().Get(tagID(3))
	require.True(t, ok)
	assert.True(t, snd.External)
	_, err = snd.Reader()
	assert.Error(t, err)

	local, err := c.LocalTranslators(scn)
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, int64(0x9000), local[0].ToOffset(0x81234000))

	data, err := c.ReadResource(resource.FromPointer(uint32(e.Offset), 8), 0, 8)
	require.NoError(t, err)
	assert.Equal(t, words(binary.LittleEndian, 0xB17B17, 42), data)

	shared := resource.Locator{Location: resource.Shared(2), Offset: 16, Codec: resource.Uncompressed, CompressedSize: 16, DecompressedSize: 16}
	data, err = c.ReadResource(shared, 4, 100)
	require.NoError(t, err)
	assert.Equal(t, pattern(64, 3)[20:32], data)
}

func TestOpenGen1Chunked(t *testing.T) {
	t.Parallel()

	big := pattern(3000, 5)
	logical := buildGen1(7, "01.03.43.0000", []fixtureTag{
		{class: "scnr", name: testScenario, payload: pattern(700, 1)},
		{class: "bitm", name: "ui\\shell\\bitmaps\\background", payload: big},
	})
	logical.u32(0x2C0, 1)

	path := writeMap(t, t.TempDir(), "a10.map", chunkify(t, logical.buf, 0x200))
	c, err := OpenFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	assert.Equal(t, format.MccHalo1, c.Format().Layout)
	assert.True(t, c.Chunked())
	assert.Equal(t, int64(len(logical.buf)), c.Size())
	assert.Equal(t, testScenario, c.ScenarioName())

	e, ok := c.Tags().Find("ui\\shell\\bitmaps\\background", bitm)
	require.True(t, ok)
	r, err := e.Reader()
	require.NoError(t, err)
	got := make([]byte, len(big))
	_, err = io.ReadFull(r, got)
	require.NoError(t, err)
	assert.Equal(t, big, got)

	loc := resource.Locator{Offset: e.Offset, Codec: resource.Uncompressed, CompressedSize: int64(len(big)), DecompressedSize: int64(len(big))}
	data, err := c.ReadResource(loc, 1000, 600)
	require.NoError(t, err)
	assert.Equal(t, big[1000:1600], data)

	s, err := c.NewStream()
	require.NoError(t, err)
	all, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, logical.buf, all)
}

func TestOpenGen1CompressedIsUnsupported(t *testing.T) {
	t.Parallel()

	im := buildGen1(5, "01.10.12.2276", []fixtureTag{{class: "scnr", name: testScenario, payload: pattern(16, 0)}})
	im.u32(0x0C, 0x4000)
	path := writeMap(t, t.TempDir(), "beavercreek.map", im.buf)

	_, err := OpenFile(path)
	require.ErrorIs(t, err, ErrUnsupportedContainer)
	assert.Equal(t, StageHeader, openError(t, err).Stage)
}

func TestOpenGen2(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		layout format.Layout
		build  string
	}{
		{"xbox", format.Halo2Xbox, "02.09.27.09809"},
		{"vista", format.Halo2Vista, "11081.07.04.30.0934.main"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			strings := []string{"default", "walk", "run"}
			im := buildGen2(t, gen2Fixture{
				layout:  tt.layout,
				build:   tt.build,
				strings: strings,
				tags: []fixtureTag{
					scenarioWithBSP(0x210, 68, 0x12000, 0x81000000),
					{class: "matg", name: "globals\\globals", payload: pattern(32, 2)},
					{null: true},
					{class: "bitm", name: "ui\\shell\\bitmaps\\background", payload: words(binary.LittleEndian, 7, 9)},
				},
			})
			path := writeMap(t, dir, "coagulation.map", im.buf)
			writeMap(t, dir, "shared.map", pattern(256, 4))

			c, err := OpenFile(path)
			require.NoError(t, err)
			t.Cleanup(func() { c.Close() })

			assert.Equal(t, tt.layout, c.Format().Layout)
			assert.Equal(t, testScenario, c.ScenarioName())
			assert.Equal(t, 3, c.Tags().Len())

			scn, err := c.Tags().Global(tags.Scenario)
			require.NoError(t, err)
			assert.Equal(t, tagID(0), scn.ID)
			matg, err := c.Tags().Global(tags.Globals)
			require.NoError(t, err)
			assert.Equal(t, "globals\\globals", matg.Name)

			e, ok := c.Tags().Find("ui/shell/bitmaps/background", bitm)
			require.True(t, ok)
			assert.Equal(t, [2]tags.ClassCode{tags.MustParseClass("obje"), tags.NoClass}, e.Parents)
			assert.Equal(t, int64(8), e.Size)
			assert.Equal(t, e.Offset, c.Translators().Metadata.ToOffset(e.Pointer))
			w, err := tags.Decode[testWords](e)
			require.NoError(t, err)
			assert.Equal(t, testWords{A: 7, B: 9}, *w)

			for i, want := range strings {
				got, ok := c.Strings().Get(uint32(i))
				require.True(t, ok)
				assert.Equal(t, want, got)
			}

			local, err := c.LocalTranslators(scn)
			require.NoError(t, err)
			require.Len(t, local, 1)
			assert.Equal(t, int64(0x12000), local[0].ToOffset(0x81000000))

			data, err := c.ReadResource(resource.FromPointer(2<<30|0x40, 16), 0, 16)
			require.NoError(t, err)
			assert.Equal(t, pattern(256, 4)[0x40:0x50], data)
		})
	}
}

type gen3Case struct {
	name     string
	layout   format.Layout
	version  int32
	build    string
	nsCounts []int
}

var gen3Cases = []gen3Case{
	{"halo3", format.Halo3Retail, 9, "11855.07.08.20.2317.halo3_ship", nil},
	{"reach encrypted", format.HaloReachRetail, 12, "11860.10.07.24.0147.omaha_relea", nil},
	{"reach mcc", format.MccHaloReach, 10, "1.1035.0.0 reach_release", nil},
	{"halo4", format.Halo4Retail, 12, "20810.12.09.22.1647.main", nil},
	{"halo2x header namespaces", format.MccHalo2XU8, 17, "Apr 12 2022 09:40:11", []int{2, 3}},
}

var fixtureStrings = []string{
	"default",
	"primary_weapon_fire",
	"secondary",
	"armor_lock_recharge_value",
	"x",
}

func gen3Tags(order binary.ByteOrder) []fixtureTag {
	return []fixtureTag{
		{class: "scnr", name: "levels\\solo\\m10\\m10", payload: pattern(64, 1)},
		{class: "bitm", name: "ui\\shell\\bitmaps\\background", payload: words(order, 0xCAFE, 3)},
		{null: true},
		{class: "zone", name: "levels\\solo\\m10\\m10", payload: pattern(16, 2)},
		{class: "play", name: "levels\\solo\\m10\\m10", payload: pattern(16, 3)},
	}
}

func TestOpenGen3(t *testing.T) {
	t.Parallel()

	for _, tt := range gen3Cases {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			desc, ok := format.Lookup(tt.layout)
			require.True(t, ok)
			order := desc.ByteOrder()

			im := buildGen3(t, gen3Fixture{
				layout:   tt.layout,
				version:  tt.version,
				build:    tt.build,
				strings:  fixtureStrings,
				nsCounts: tt.nsCounts,
				tags:     gen3Tags(order),
			})
			path := writeMap(t, t.TempDir(), "m10.map", im.buf)

			c, err := OpenFile(path)
			require.NoError(t, err)
			t.Cleanup(func() { c.Close() })

			assert.Equal(t, tt.layout, c.Format().Layout)
			assert.Equal(t, order, c.ByteOrder())
			assert.Equal(t, testScenario, c.ScenarioName())
			assert.Equal(t, 4, c.Tags().Len())
			assert.Equal(t, 5, c.Tags().Slots())

			sections := c.Sections()
			require.Len(t, sections, 4)
			assert.Equal(t, uint32(gen3TagAddress), sections[SectionTag].Address)
			assert.Equal(t, "tag", SectionName(SectionTag))

			scn, err := c.Tags().Global(tags.Scenario)
			require.NoError(t, err)
			assert.Equal(t, tagID(0), scn.ID)
			assert.Equal(t, "levels\\solo\\m10\\m10", scn.Name)

			e, ok := c.Tags().Find("UI\\Shell\\Bitmaps\\Background", bitm)
			require.True(t, ok)
			assert.Equal(t, tagID(1), e.ID)
			w, err := tags.Decode[testWords](e)
			require.NoError(t, err)
			assert.Equal(t, testWords{A: 0xCAFE, B: 3}, *w)

			_, ok = c.Tags().ByIndex(2)
			assert.False(t, ok)

			require.Equal(t, len(fixtureStrings), c.Strings().Len())
			for i, want := range fixtureStrings {
				id, ok := c.Strings().ID(i)
				require.True(t, ok, "index %d", i)
				got, ok := c.Strings().Get(id)
				require.True(t, ok, "id %#x", id)
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestOpenHeaderNamespaces(t *testing.T) {
	t.Parallel()

	im := buildGen3(t, gen3Fixture{
		layout:   format.MccHalo2XU8,
		version:  17,
		build:    "Apr 12 2022 09:40:11",
		strings:  fixtureStrings,
		nsCounts: []int{2, 3},
		tags:     gen3Tags(binary.LittleEndian),
	})
	path := writeMap(t, t.TempDir(), "zanzibar.map", im.buf)

	c, err := OpenFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	ns := c.Strings().Namespaces()
	require.NotNil(t, ns)
	assert.Equal(t, 2, ns.Count(0))
	assert.Equal(t, 3, ns.Count(1))

	got, ok := c.Strings().Get(1<<16 | 1)
	require.True(t, ok)
	assert.Equal(t, fixtureStrings[3], got)
}

func TestReadResourceSectioned(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	raw := pattern(4096, 6)
	compressed := deflateBytes(t, raw)
	resources := append(pattern(64, 7), compressed...)

	im := buildGen3(t, gen3Fixture{
		layout:    format.MccHaloReach,
		version:   10,
		build:     "1.1035.0.0 reach_release",
		strings:   fixtureStrings,
		tags:      gen3Tags(binary.LittleEndian),
		resources: resources,
	})
	path := writeMap(t, dir, "m35.map", im.buf)

	sharedResources := pattern(128, 8)
	shared := buildGen3(t, gen3Fixture{
		layout:    format.MccHaloReach,
		version:   10,
		build:     "1.1035.0.0 reach_release",
		tags:      gen3Tags(binary.LittleEndian),
		resources: sharedResources,
	})
	writeMap(t, dir, "shared.map", shared.buf)

	c, err := OpenFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	assert.Equal(t, resource.Deflate, c.Codec())

	inherited := resource.Locator{
		Offset:           64,
		Codec:            resource.Inherit,
		CompressedSize:   int64(len(compressed)),
		DecompressedSize: int64(len(raw)),
	}
	data, err := c.ReadResource(inherited, 100, 200)
	require.NoError(t, err)
	assert.Equal(t, raw[100:300], data)

	local := resource.Locator{Offset: 8, Codec: resource.Uncompressed, CompressedSize: 16, DecompressedSize: 16}
	data, err = c.ReadResource(local, 0, 16)
	require.NoError(t, err)
	assert.Equal(t, resources[8:24], data)

	remote := resource.Locator{Location: resource.Shared(1), Offset: 32, Codec: resource.Uncompressed, CompressedSize: 32, DecompressedSize: 32}
	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			data, err := c.ReadResource(remote, 0, 32)
			if err != nil {
				return err
			}
			if string(data) != string(sharedResources[32:64]) {
				return errors.New("shared resource mismatch")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	missing := resource.Locator{Location: resource.Shared(2), Offset: 0, Codec: resource.Uncompressed, CompressedSize: 4, DecompressedSize: 4}
	_, err = c.ReadResource(missing, 0, 4)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = c.LocalTranslators(c.Tags().ByClass(tags.Scenario)[0])
	assert.ErrorIs(t, err, ErrUnsupportedContainer)
}

func TestOpenFailures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	alpha := buildGen3(t, gen3Fixture{layout: format.Halo3Alpha, version: 9, build: "08172.07.03.02.1722.delta"})
	badMarker := buildGen3(t, gen3Fixture{
		layout:        format.Halo3Retail,
		version:       9,
		build:         "11855.07.08.20.2317.halo3_ship",
		tags:          gen3Tags(binary.BigEndian),
		corruptMarker: true,
	})
	whole := buildGen3(t, gen3Fixture{
		layout:  format.Halo3Retail,
		version: 9,
		build:   "11855.07.08.20.2317.halo3_ship",
		tags:    gen3Tags(binary.BigEndian),
	})

	tests := []struct {
		name  string
		data  []byte
		stage Stage
		err   error
	}{
		{"not a container", pattern(0x100, 1), StageIdentify, ErrNotAContainer},
		{"alpha", alpha.buf, StageIdentify, ErrUnsupportedContainer},
		{"bad marker", badMarker.buf, StageIndex, ErrCorruptContainer},
		{"truncated header", whole.buf[:0x2000], StageHeader, ErrCorruptContainer},
		{"truncated index", whole.buf[:0x3010], StageIndex, ErrCorruptContainer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeMap(t, dir, tt.name+".map", tt.data)
			_, err := OpenFile(path)
			require.ErrorIs(t, err, tt.err)
			oe := openError(t, err)
			assert.Equal(t, tt.stage, oe.Stage)
			assert.Equal(t, path, oe.Path)
		})
	}

	_, err := Open(&format.Identified{Path: "nowhere.map"})
	assert.ErrorIs(t, err, ErrUnknownContainer)
}

func TestWarmupFailuresAreSwallowed(t *testing.T) {
	t.Parallel()

	im := buildGen3(t, gen3Fixture{
		layout:  format.MccHaloReach,
		version: 10,
		build:   "1.1035.0.0 reach_release",
		strings: fixtureStrings,
		tags:    gen3Tags(binary.LittleEndian),
	})
	path := writeMap(t, t.TempDir(), "m20.map", im.buf)

	calls := make(chan tags.ClassCode, len(warmClasses))
	warm := func(e *tags.Entry) error {
		calls <- e.Class
		switch e.Class {
		case tags.ResourceGestalt:
			return errors.New("gestalt unavailable")
		case tags.ResourceLayout:
			panic("layout exploded")
		}
		return Prefetch(e)
	}

	c, err := OpenFile(path, WithWarmup(warm), WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	var got []tags.ClassCode
	for range warmClasses {
		select {
		case class := <-calls:
			got = append(got, class)
		case <-time.After(5 * time.Second):
			t.Fatal("warm-up did not run")
		}
	}
	assert.Equal(t, warmClasses, got)

	// the successful warm-up filled the scenario's memo slot
	scn, err := c.Tags().Global(tags.Scenario)
	require.NoError(t, err)
	assert.Eventually(t, scn.Cached, 5*time.Second, 10*time.Millisecond)
	pre, err := tags.Decode[Preamble](scn)
	require.NoError(t, err)
	assert.Equal(t, Preamble(pattern(64, 1)[:16]), *pre)

	gestalt, err := c.Tags().Global(tags.ResourceGestalt)
	require.NoError(t, err)
	assert.False(t, gestalt.Cached())
}

func TestDefaultWarmup(t *testing.T) {
	t.Parallel()

	im := buildGen3(t, gen3Fixture{
		layout:  format.MccHaloReach,
		version: 10,
		build:   "1.1035.0.0 reach_release",
		strings: fixtureStrings,
		tags:    gen3Tags(binary.LittleEndian),
	})
	dir := t.TempDir()
	path := writeMap(t, dir, "m35.map", im.buf)

	// sectioned layouts warm up without being asked
	c, err := OpenFile(path, WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	for _, class := range warmClasses {
		e, err := c.Tags().Global(class)
		require.NoError(t, err)
		assert.Eventually(t, e.Cached, 5*time.Second, 10*time.Millisecond, class.String())
	}

	// a typed warm-up serves later decodes of the same type from the memo
	typed, err := OpenFile(path, WithWarmup(WarmupAs[testWords]()), WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { typed.Close() })
	scn, err := typed.Tags().Global(tags.Scenario)
	require.NoError(t, err)
	require.Eventually(t, scn.Cached, 5*time.Second, 10*time.Millisecond)
	first, err := tags.Decode[testWords](scn)
	require.NoError(t, err)
	second, err := tags.Decode[testWords](scn)
	require.NoError(t, err)
	assert.Same(t, first, second)

	// nil disables it
	off, err := OpenFile(path, WithWarmup(nil))
	require.NoError(t, err)
	t.Cleanup(func() { off.Close() })
	scn, err = off.Tags().Global(tags.Scenario)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.False(t, scn.Cached())

	assert.Nil(t, defaultWarmup(&format.Descriptor{Engine: format.Halo2}))
	assert.NotNil(t, defaultWarmup(&format.Descriptor{Engine: format.Halo4}))
}

func TestCloseFailsReads(t *testing.T) {
	t.Parallel()

	im := buildGen3(t, gen3Fixture{
		layout:    format.MccHaloReach,
		version:   10,
		build:     "1.1035.0.0 reach_release",
		tags:      gen3Tags(binary.LittleEndian),
		resources: pattern(32, 1),
	})
	path := writeMap(t, t.TempDir(), "m30.map", im.buf)

	c, err := OpenFile(path)
	require.NoError(t, err)
	e, ok := c.Tags().Find("ui\\shell\\bitmaps\\background", bitm)
	require.True(t, ok)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = tags.Decode[testWords](e)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, err, ErrDecode)

	_, err = c.ReadResource(resource.Locator{Codec: resource.Uncompressed, CompressedSize: 4, DecompressedSize: 4}, 0, 4)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = c.NewStream()
	assert.ErrorIs(t, err, ErrClosed)
}
