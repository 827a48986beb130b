package tile

import (
	"cmp"
	"errors"
	"fmt"
	"sort"
)

// Kind tells whether a payload holds features or the strings they reference.
type Kind uint8

const (
	KindData Kind = iota
	KindStrings
)

func (k Kind) String() string {
	if k == KindStrings {
		return "strings"
	}
	return "data"
}

// Language of a strings payload. Values follow the numbering used on the wire.
type Language uint16

const (
	LangEnglish Language = iota
	LangSwedish
	LangGerman
	LangDanish
	LangItalian
	LangDutch
	LangSpanish
	LangFrench
	LangWelsh
	LangFinnish
	LangNorwegian
	LangPortuguese
	LangAmerican
	LangCzech
	LangAlbanian
	LangBasque
	LangCatalan
	LangFrisian
	LangIrish
	LangGalician
	LangLetzeburgesch
	LangRaetoRomance
	LangSerboCroatian
	LangSlovenian
	LangValencian
	LangHungarian
	LangGreek
	LangPolish
	LangSlovak
	LangRussian
)

// Well-known layer ids.
const (
	LayerMap     = 0
	LayerRoute   = 1
	LayerPOI     = 2
	LayerTraffic = 3
	LayerACP     = 4
	LayerEvent   = 5
)

// RouteID identifies the route a route-layer tile was rendered for.
type RouteID struct {
	ID           uint32
	CreationTime uint32
}

// Params addresses one tile payload.
//
// Params is a comparable value; two addresses are equal iff all fields are equal.
// Lat and Lon must fit in 15 signed bits, Detail and Layer in 4 bits,
// Importance in 5 bits and ServerPrefix in 5 bits.
type Params struct {
	ServerPrefix uint32
	Gzip         bool
	Layer        int
	Kind         Kind
	Importance   int
	Lang         Language
	Lat          int32
	Lon          int32
	Detail       int

	// Route is encoded only on LayerRoute, where it is always present on the wire.
	Route    RouteID
	HasRoute bool
}

// codeChars is the sorted 64-character alphabet of the string form.
const codeChars = "!()*+-<>@ABCDEFGHIJKLMNOPQRSTUVWXYZ[]^abcdefghijklmnopqrstuvwxyz"

const (
	dataPrefix    = 'G'
	stringsPrefix = 'T'
)

var ErrInvalidParams = errors.New("libsfd: invalid tile params")

// IsMapKey reports whether key is the string form of a grid tile address.
// Everything else (format descriptions and similar) is an "other" key.
func IsMapKey(key string) bool {
	return len(key) > 0 && (key[0] == dataPrefix || key[0] == stringsPrefix)
}

// KeyKind returns the kind encoded in the first character of a grid key.
func KeyKind(key string) (Kind, bool) {
	switch {
	case len(key) == 0:
		return 0, false
	case key[0] == dataPrefix:
		return KindData, true
	case key[0] == stringsPrefix:
		return KindStrings, true
	}
	return 0, false
}

// WithKind returns a copy of p with the given kind.
func (p Params) WithKind(kind Kind) Params {
	p.Kind = kind
	return p
}

// WithImportance returns a copy of p with the given importance.
func (p Params) WithImportance(importance int) Params {
	p.Importance = importance
	return p
}

// String returns the canonical key of p.
func (p Params) String() string {
	var w bitWriter

	w.writeBits(uint32(p.Importance)&0xf, 4)
	w.writeBits(uint32(p.Detail), 4)

	nbrBits := 15
	if p.Detail > 0 {
		nbrBits = max(signedBitLen(p.Lat), signedBitLen(p.Lon))
		w.writeBits(uint32(nbrBits), 4)
	}

	if nbrBits > 8 {
		w.writeBits(uint32(p.Lat)&0xff, 8)
		w.writeBits(uint32(p.Lon)&0xff, 8)
		w.writeBits(uint32(p.Lat>>8), nbrBits-8)
		w.writeBits(uint32(p.Lon>>8), nbrBits-8)
	} else {
		w.writeBits(uint32(p.Lat), nbrBits)
		w.writeBits(uint32(p.Lon), nbrBits)
	}

	w.writeBits(uint32(p.Layer), 4)
	w.writeBits(p.ServerPrefix&0x1f, 5)

	if p.Kind == KindStrings {
		w.writeBits(uint32(p.Lang)&0x7, 3)
		w.writeBits(uint32(p.Lang>>3)&0x7, 3)
	}

	// Languages above 63 need seven extra high bits.
	if p.Lang >= 64 {
		w.writeBits(1, 1)
		w.writeBits(uint32(p.Lang>>6)&0x7f, 7)
	} else {
		w.writeBits(0, 1)
	}

	w.writeBits(uint32(p.Importance>>4), 1)
	if p.Gzip {
		w.writeBits(0, 1)
	} else {
		w.writeBits(1, 1)
	}

	if p.Layer == LayerRoute {
		w.writeBits(p.Route.ID, 32)
		w.writeBits(p.Route.CreationTime, 32)
	}

	nbrChars := (w.nbits + 5) / 6
	out := make([]byte, 0, nbrChars+1)
	if p.Kind == KindStrings {
		out = append(out, stringsPrefix)
	} else {
		out = append(out, dataPrefix)
	}
	r := bitReader{buf: w.buf, limit: w.nbits}
	for range nbrChars {
		out = append(out, codeChars[r.readBits(6)])
	}
	return string(out)
}

// ParseParams parses the canonical key produced by Params.String.
func ParseParams(key string) (Params, error) {
	p := Params{Lang: LangSwedish}
	if !IsMapKey(key) {
		return p, fmt.Errorf("%w: unknown type in %q", ErrInvalidParams, key)
	}
	if key[0] == stringsPrefix {
		p.Kind = KindStrings
	}

	var w bitWriter
	for i := 1; i < len(key); i++ {
		idx := sort.Search(len(codeChars), func(j int) bool { return codeChars[j] >= key[i] })
		if idx == len(codeChars) || codeChars[idx] != key[i] {
			return p, fmt.Errorf("%w: invalid character %q in %q", ErrInvalidParams, key[i], key)
		}
		w.writeBits(uint32(idx), 6)
	}
	r := bitReader{buf: w.buf, limit: w.nbits}

	missing := func(field string) (Params, error) {
		return p, fmt.Errorf("%w: no bits for %s in %q", ErrInvalidParams, field, key)
	}

	if r.remaining() < 8 {
		return missing("detail")
	}
	lowImportance := int(r.readBits(4))
	p.Detail = int(r.readBits(4))

	nbrBits := 15
	if p.Detail > 0 {
		if r.remaining() < 4 {
			return missing("coordinate width")
		}
		nbrBits = int(r.readBits(4))
	}
	if nbrBits == 0 {
		return p, fmt.Errorf("%w: zero coordinate width in %q", ErrInvalidParams, key)
	}

	if nbrBits > 8 {
		if r.remaining() < 16+(nbrBits-8)*2 {
			return missing("coordinates")
		}
		lowLat := int32(r.readBits(8))
		lowLon := int32(r.readBits(8))
		p.Lat = r.readSignedBits(nbrBits-8)<<8 | lowLat
		p.Lon = r.readSignedBits(nbrBits-8)<<8 | lowLon
	} else {
		if r.remaining() < nbrBits*2 {
			return missing("coordinates")
		}
		p.Lat = r.readSignedBits(nbrBits)
		p.Lon = r.readSignedBits(nbrBits)
	}

	if r.remaining() < 9 {
		return missing("layer")
	}
	p.Layer = int(r.readBits(4))
	p.ServerPrefix = r.readBits(5)

	if p.Kind == KindStrings {
		if r.remaining() < 6 {
			return missing("language")
		}
		low := r.readBits(3)
		p.Lang = Language(r.readBits(3)<<3 | low)
	}

	if r.remaining() < 3 {
		return missing("importance")
	}
	if r.readBits(1) == 1 {
		if r.remaining() < 9 {
			return missing("language")
		}
		p.Lang |= Language(r.readBits(7) << 6)
	}
	p.Importance = int(r.readBits(1))<<4 | lowImportance
	p.Gzip = r.readBits(1) == 0

	if p.Layer == LayerRoute {
		if r.remaining() < 64 {
			return missing("route id")
		}
		p.Route.ID = r.readBits(32)
		p.Route.CreationTime = r.readBits(32)
		p.HasRoute = true
	}

	return p, nil
}

// Compare orders addresses by lat, lon, prefix, gzip, layer, kind,
// importance, language, detail and route id. Addresses without a route id
// sort before those with one.
func Compare(a, b Params) int {
	if c := cmp.Compare(a.Lat, b.Lat); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Lon, b.Lon); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ServerPrefix, b.ServerPrefix); c != 0 {
		return c
	}
	if c := compareBool(a.Gzip, b.Gzip); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Layer, b.Layer); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Importance, b.Importance); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Lang, b.Lang); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Detail, b.Detail); c != 0 {
		return c
	}
	if c := compareBool(a.HasRoute, b.HasRoute); c != 0 || !a.HasRoute {
		return c
	}
	if c := cmp.Compare(a.Route.ID, b.Route.ID); c != 0 {
		return c
	}
	return cmp.Compare(a.Route.CreationTime, b.Route.CreationTime)
}

func (p Params) Less(other Params) bool {
	return Compare(p, other) < 0
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
