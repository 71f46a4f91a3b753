package format

import "github.com/jchantrell/mapcache/internal/resource"

// descriptors is the build-time table of every known layout, indexed by Layout.
var descriptors = [layoutCount]Descriptor{
	Halo1Xbox: {Layout: Halo1Xbox, Engine: Halo1, Platform: Xbox, Arch: X86, Codec: resource.Uncompressed, Version: 5},
	Halo1PC:   {Layout: Halo1PC, Engine: Halo1, Platform: PC, Arch: X86, Codec: resource.Uncompressed, Version: 7},
	Halo1CE:   {Layout: Halo1CE, Engine: Halo1, Platform: PC, Arch: X86, Codec: resource.Uncompressed, Version: 609},
	MccHalo1:  {Layout: MccHalo1, Engine: Halo1, Platform: MCC, Arch: X64, Codec: resource.Deflate, Flags: Anniversary | Remastered, Version: 7},

	Halo2Beta:  {Layout: Halo2Beta, Engine: Halo2, Platform: Xbox, Arch: X86, Codec: resource.Uncompressed, Flags: PreRelease | Beta, Version: 8},
	Halo2Xbox:  {Layout: Halo2Xbox, Engine: Halo2, Platform: Xbox, Arch: X86, Codec: resource.Uncompressed, Version: 8},
	Halo2Vista: {Layout: Halo2Vista, Engine: Halo2, Platform: PC, Arch: X86, Codec: resource.Uncompressed, Version: 8},
	MccHalo2:   {Layout: MccHalo2, Engine: Halo2, Platform: MCC, Arch: X64, Codec: resource.Deflate, Flags: Remastered, Version: 8},

	Halo3Alpha:     {Layout: Halo3Alpha, Engine: Halo3, Platform: Xbox360, Arch: PowerPC, Codec: resource.Deflate, Flags: PreRelease, Version: 9},
	Halo3Beta:      {Layout: Halo3Beta, Engine: Halo3, Platform: Xbox360, Arch: PowerPC, Codec: resource.Deflate, Flags: PreRelease | Beta, Version: 9},
	Halo3Retail:    {Layout: Halo3Retail, Engine: Halo3, Platform: Xbox360, Arch: PowerPC, Codec: resource.Deflate, Version: 9},
	MccHalo3:       {Layout: MccHalo3, Engine: Halo3, Platform: MCC, Arch: X64, Codec: resource.Deflate, Flags: Remastered, Version: 11},
	MccHalo3U6:     {Layout: MccHalo3U6, Engine: Halo3, Platform: MCC, Arch: X64, Codec: resource.Deflate, Flags: Remastered, Version: 13},
	Halo3ODST:      {Layout: Halo3ODST, Engine: ODST, Platform: Xbox360, Arch: PowerPC, Codec: resource.Deflate, Version: 9},
	MccHalo3ODST:   {Layout: MccHalo3ODST, Engine: ODST, Platform: MCC, Arch: X64, Codec: resource.Deflate, Flags: Remastered, Version: 11},
	MccHalo3ODSTU3: {Layout: MccHalo3ODSTU3, Engine: ODST, Platform: MCC, Arch: X64, Codec: resource.Deflate, Flags: Remastered, Version: 13},

	HaloReachBeta:   {Layout: HaloReachBeta, Engine: HaloReach, Platform: Xbox360, Arch: PowerPC, Codec: resource.Deflate, Flags: PreRelease | Beta, Version: 9},
	HaloReachRetail: {Layout: HaloReachRetail, Engine: HaloReach, Platform: Xbox360, Arch: PowerPC, Codec: resource.Deflate, Version: 12},
	MccHaloReach:    {Layout: MccHaloReach, Engine: HaloReach, Platform: MCC, Arch: X64, Codec: resource.Deflate, Flags: Remastered, Version: 10},
	MccHaloReachU3:  {Layout: MccHaloReachU3, Engine: HaloReach, Platform: MCC, Arch: X64, Codec: resource.Deflate, Flags: Remastered, Version: 13},

	Halo4Beta:   {Layout: Halo4Beta, Engine: Halo4, Platform: Xbox360, Arch: PowerPC, Codec: resource.Deflate, Flags: PreRelease | Beta, Version: 12},
	Halo4Retail: {Layout: Halo4Retail, Engine: Halo4, Platform: Xbox360, Arch: PowerPC, Codec: resource.Deflate, Version: 12},
	MccHalo4:    {Layout: MccHalo4, Engine: Halo4, Platform: MCC, Arch: X64, Codec: resource.Oodle, Flags: Remastered, Version: 13},
	MccHalo4U4:  {Layout: MccHalo4U4, Engine: Halo4, Platform: MCC, Arch: X64, Codec: resource.Oodle, Flags: Remastered, Version: 17},
	MccHalo2X:   {Layout: MccHalo2X, Engine: Halo2X, Platform: MCC, Arch: X64, Codec: resource.Oodle, Flags: Remastered, Version: 17},
	MccHalo2XU8: {Layout: MccHalo2XU8, Engine: Halo2X, Platform: MCC, Arch: X64, Codec: resource.Oodle, Flags: Remastered, Version: 17},
}

func codecOverride(c resource.Codec) *resource.Codec { return &c }
func flagsOverride(f Flags) *Flags                    { return &f }

// signatures lists every recognised build string. Lookups scan in order,
// so the first match wins.
var signatures = []Signature{
	{Build: "01.10.12.2276", Layout: Halo1Xbox},
	{Build: "01.00.00.0564", Layout: Halo1PC},
	{Build: "01.00.00.0609", Layout: Halo1CE},
	{Build: "01.03.43.0000", Layout: MccHalo1},

	{Build: "02.06.28.07902", Layout: Halo2Beta},
	{Build: "02.09.27.09809", Layout: Halo2Xbox},
	{Build: "11081.07.04.30.0934.main", Layout: Halo2Vista},
	{Build: "1.106708 cert_ms23", Layout: MccHalo2},

	{Build: "08172.07.03.02.1722.delta", Layout: Halo3Alpha},
	{Build: "09699.07.05.01.1534.delta", Layout: Halo3Beta},
	{Build: "11855.07.08.20.2317.halo3_ship", Layout: Halo3Retail},
	{Build: "12065.08.08.26.0819.halo3_ship", Layout: Halo3Retail},
	{Build: "1.1520.0.0 cert_ms25", Layout: MccHalo3},
	{Build: "1.1955.0.0 release", Layout: MccHalo3U6},
	{Build: "Halo3_U6_ms25_build", Layout: MccHalo3U6},
	{Build: "13895.09.04.27.2201.atlas_relea", Layout: Halo3ODST},
	{Build: "1.1520.0.0 odst_release", Layout: MccHalo3ODST},
	{Build: "1.2094.0.0 odst release", Layout: MccHalo3ODSTU3},

	{Build: "09449.10.03.25.1545.omaha_beta", Layout: HaloReachBeta},
	{Build: "11860.10.07.24.0147.omaha_relea", Layout: HaloReachRetail},
	{Build: "1.1035.0.0 reach_release", Layout: MccHaloReach, Namespaces: "reach_mcc"},
	{Build: "1.1270.0.0 reach release", Layout: MccHaloReachU3, Namespaces: "reach_mcc"},

	{Build: "14064.12.05.05.1011.beta", Layout: Halo4Beta, Namespaces: "halo4"},
	{Build: "20810.12.09.22.1647.main", Layout: Halo4Retail, Namespaces: "halo4"},
	{Build: "21122.12.11.21.0101.main", Layout: Halo4Retail, Namespaces: "halo4"},
	{Build: "1.1819.0.0 halo4 release", Layout: MccHalo4, Namespaces: "halo4_mcc"},
	{Build: "Mar 10 2021 12:53:20", Layout: MccHalo4U4, Namespaces: "halo4_mcc"},
	{
		Build:      "Feb 22 2021 11:52:59",
		Layout:     MccHalo4U4,
		Namespaces: "halo4_mcc",
		Codec:      codecOverride(resource.UnknownDeflate),
		Flags:      flagsOverride(Flight | Remastered),
	},
	{Build: "Oct 29 2020 18:55:01", Layout: MccHalo2X, Namespaces: "halo2x"},
	{Build: "1.2448.0.0 h2a release", Layout: MccHalo2X, Namespaces: "halo2x"},
	{Build: "Apr 12 2022 09:40:11", Layout: MccHalo2XU8},
}

// Lookup returns the descriptor registered for a layout.
func Lookup(layout Layout) (*Descriptor, bool) {
	if layout == Unknown || layout >= layoutCount {
		return nil, false
	}
	d := &descriptors[layout]
	if d.Layout != layout {
		return nil, false
	}
	return d, true
}

// LookupBuild resolves a build string to its signature and descriptor.
func LookupBuild(build string) (*Signature, *Descriptor, bool) {
	for i := range signatures {
		if signatures[i].Build != build {
			continue
		}
		d, ok := Lookup(signatures[i].Layout)
		if !ok {
			return nil, nil, false
		}
		return &signatures[i], d, true
	}
	return nil, nil, false
}

// DefaultSignature returns the first signature registered for a layout. It is
// used when a layout was derived without a usable build string.
func DefaultSignature(layout Layout) (*Signature, bool) {
	for i := range signatures {
		if signatures[i].Layout == layout {
			return &signatures[i], true
		}
	}
	return nil, false
}

// Descriptors returns a copy of every registered descriptor in layout order.
func Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if d.Layout != Unknown {
			out = append(out, d)
		}
	}
	return out
}

// Signatures returns a copy of the signature table.
func Signatures() []Signature {
	out := make([]Signature, len(signatures))
	copy(out, signatures)
	return out
}
