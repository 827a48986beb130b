package sfd

import (
	"errors"
	"fmt"
	"slices"

	"github.com/eak1mov/go-libsfd/sfd/spec"
)

// ErrNotAdjacent is returned when two files cannot be placed next to each other.
var ErrNotAdjacent = errors.New("libsfd: sfds are not adjacent")

type placement int

const (
	placeAbove placement = iota
	placeBelow
	placeRight
	placeLeft
	placeContained
)

func (p placement) String() string {
	return [...]string{"above", "below", "right", "left", "contained"}[p]
}

func ordIn(v, lo, hi int32) bool {
	return lo <= v && v <= hi
}

// touches reports whether a rectangle starting at start continues one ending at end.
// Rectangles may share their border row or column.
func touches(end, start int32) bool {
	return start == end || start == end+1
}

// classify places b relative to a. Containment is tested first, so a
// rectangle that only extends a over their shared row counts as adjacent.
func classify(a, b *spec.TilesNotice) (placement, bool) {
	lonInside := ordIn(b.StartLon, a.StartLon, a.EndLon) && ordIn(b.EndLon, a.StartLon, a.EndLon)
	latInside := ordIn(b.StartLat, a.StartLat, a.EndLat) && ordIn(b.EndLat, a.StartLat, a.EndLat)
	switch {
	case latInside && lonInside:
		return placeContained, true
	case touches(a.EndLat, b.StartLat) && lonInside:
		return placeAbove, true
	case touches(b.EndLat, a.StartLat) && lonInside:
		return placeBelow, true
	case touches(a.EndLon, b.StartLon) && latInside:
		return placeRight, true
	case touches(b.EndLon, a.StartLon) && latInside:
		return placeLeft, true
	}
	return 0, false
}

func (f *File) checkMergeable(other *File) error {
	h, oh := f.Header, other.Header
	switch {
	case h.StringsAreNullTerminated != oh.StringsAreNullTerminated:
		return spec.Violationf("merge: null termination differs")
	case h.StrIdxEntrySizeBits != oh.StrIdxEntrySizeBits:
		return spec.Violationf("merge: string index entry size %d vs %d", h.StrIdxEntrySizeBits, oh.StrIdxEntrySizeBits)
	case h.ReadDebugParams != oh.ReadDebugParams:
		return spec.Violationf("merge: debug params flag differs")
	case !slices.Equal(f.HeaderStrings, other.HeaderStrings):
		return spec.Violationf("merge: header strings differ")
	case len(h.RouteIDs) != 0 || len(oh.RouteIDs) != 0:
		return spec.Violationf("merge: files with route ids")
	case len(h.Collections) != 1 || len(oh.Collections) != 1:
		return spec.Violationf("merge: %d and %d tile collections, want 1", len(h.Collections), len(oh.Collections))
	}
	c, oc := &h.Collections[0], &oh.Collections[0]
	switch {
	case len(c.Groups) != 1 || len(oc.Groups) != 1:
		return spec.Violationf("merge: %d and %d tile groups, want 1", len(c.Groups), len(oc.Groups))
	case c.Groups[0].StartDetail != oc.Groups[0].StartDetail || len(c.Groups[0].Notices) != len(oc.Groups[0].Notices):
		return spec.Violationf("merge: detail levels differ")
	}
	// Both sides must describe exactly the blocks they hold.
	if len(f.Maps) != h.Cells() || len(other.Maps) != oh.Cells() {
		return spec.Violationf("merge: %d/%d blocks for %d/%d cells", len(f.Maps), len(other.Maps), h.Cells(), oh.Cells())
	}
	return nil
}

// Merge adds the tiles of other to f. The rectangles of both files must be
// adjacent or one must contain the other at every detail level; where both
// cover a cell, the lower (or left, or containing) file wins.
// other is left empty.
func (f *File) Merge(other *File) error {
	if err := f.checkMergeable(other); err != nil {
		return err
	}

	h := f.Header
	coll := h.Collections[0].Clone()
	g, og := &coll.Groups[0], &other.Header.Collections[0].Groups[0]
	var merged []MapBuff
	thisPos, otherPos := 0, 0
	for ni := range g.Notices {
		n, on := &g.Notices[ni], &og.Notices[ni]
		if n.Empty() != on.Empty() {
			return spec.Violationf("merge: detail %d present on one side only", g.StartDetail+ni)
		}
		if n.Empty() {
			continue
		}
		if !slices.Equal(n.Layers, on.Layers) {
			return spec.Violationf("merge: layers of detail %d differ", g.StartDetail+ni)
		}

		where, ok := classify(n, on)
		if !ok {
			return fmt.Errorf("%w: detail %d: %d..%d x %d..%d and %d..%d x %d..%d", ErrNotAdjacent, g.StartDetail+ni,
				n.StartLat, n.EndLat, n.StartLon, n.EndLon, on.StartLat, on.EndLat, on.StartLon, on.EndLon)
		}

		first, second := *n, *on
		firstMaps, secondMaps := f.Maps[thisPos:], other.Maps[otherPos:]
		if where == placeBelow || where == placeLeft {
			first, second = second, first
			firstMaps, secondMaps = secondMaps, firstMaps
		}
		f.logger.Debug("libsfd: merge", "detail", g.StartDetail+ni, "placement", where.String())

		minLat, maxLat := min(first.StartLat, second.StartLat), max(first.EndLat, second.EndLat)
		minLon, maxLon := min(first.StartLon, second.StartLon), max(first.EndLon, second.EndLon)
		fi, si := 0, 0
		for lat := minLat; lat <= maxLat; lat++ {
			for lon := minLon; lon <= maxLon; lon++ {
				inFirst := first.Contains(lat, lon)
				inSecond := second.Contains(lat, lon)
				switch {
				case inFirst && !firstMaps[fi].Missing():
					merged = append(merged, firstMaps[fi])
				case inSecond && !secondMaps[si].Missing():
					merged = append(merged, secondMaps[si])
				default:
					merged = append(merged, MapBuff{})
				}
				if inFirst {
					fi++
				}
				if inSecond {
					si++
				}
			}
		}
		thisPos += n.Cells()
		otherPos += on.Cells()
		n.UpdateBBox(minLat, maxLat, minLon, maxLon)
	}

	h.Collections[0] = coll
	h.MaxStringSize = max(h.MaxStringSize, other.Header.MaxStringSize)
	for _, c := range other.Header.InitialChars {
		if i, found := slices.BinarySearch(h.InitialChars, c); !found {
			h.InitialChars = slices.Insert(h.InitialChars, i, c)
		}
	}
	h.Collections[0].UpdateOffset(h.MultiBufferOffsetStart)

	f.Maps = merged
	other.Take()
	return nil
}

// MergeFiles merges files into the first one, which is renamed to name
// unless name is empty.
func MergeFiles(name string, files ...*File) (*File, error) {
	if len(files) == 0 {
		return nil, spec.Violationf("merge: no files")
	}
	out := files[0].Take()
	if name != "" {
		out.SetName(name)
	}
	for _, f := range files[1:] {
		if err := out.Merge(f); err != nil {
			return nil, err
		}
	}
	return out, nil
}
