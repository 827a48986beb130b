package spec

import (
	"encoding/binary"
	"iter"
	"maps"
	"slices"

	"github.com/eak1mov/go-libsfd/tile"
)

// EntrySize is the size of one grid cell entry in the closed-form offset
// arithmetic of the index.
const EntrySize = 4

// LayerImportance is the importance range of one layer inside a rectangle.
type LayerImportance struct {
	Layer int
	First int
	Last  int
}

// TilesNotice is the rectangle of tiles of one detail level.
// A notice without layers is empty and covers no cells.
type TilesNotice struct {
	StartLat int32
	EndLat   int32
	StartLon int32
	EndLon   int32

	// Layers is sorted by layer id.
	Layers []LayerImportance

	// Offset of cell (StartLat, StartLon); valid after UpdateOffset.
	Offset uint32
}

func (n *TilesNotice) Empty() bool {
	return len(n.Layers) == 0
}

func (n *TilesNotice) Width() int {
	if n.Empty() {
		return 0
	}
	return int(n.EndLon-n.StartLon) + 1
}

func (n *TilesNotice) Height() int {
	if n.Empty() {
		return 0
	}
	return int(n.EndLat-n.StartLat) + 1
}

func (n *TilesNotice) Cells() int {
	return n.Width() * n.Height()
}

func (n *TilesNotice) Contains(lat, lon int32) bool {
	return !n.Empty() && lat >= n.StartLat && lat <= n.EndLat && lon >= n.StartLon && lon <= n.EndLon
}

// Layer returns the importance range of the given layer.
func (n *TilesNotice) Layer(layer int) (LayerImportance, bool) {
	for _, li := range n.Layers {
		if li.Layer == layer {
			return li, true
		}
	}
	return LayerImportance{}, false
}

// CellIndex returns the row-major index of (lat, lon) inside the rectangle.
// The position must be inside the rectangle.
func (n *TilesNotice) CellIndex(lat, lon int32) int {
	return n.Width()*int(lat-n.StartLat) + int(lon-n.StartLon)
}

// CellOffset returns the offset of the cell holding p, or false if p's
// position, layer or importance is outside the notice.
func (n *TilesNotice) CellOffset(p tile.Params) (uint32, bool) {
	if !n.Contains(p.Lat, p.Lon) {
		return 0, false
	}
	li, ok := n.Layer(p.Layer)
	if !ok || p.Importance < li.First || p.Importance > li.Last {
		return 0, false
	}
	return n.Offset + uint32(n.CellIndex(p.Lat, p.Lon))*EntrySize, true
}

// UpdateOffset assigns start to the notice and returns the first offset after its cells.
func (n *TilesNotice) UpdateOffset(start uint32) uint32 {
	n.Offset = start
	return start + uint32(n.Cells())*EntrySize
}

// UpdateBBox grows the rectangle to include the given bounds.
func (n *TilesNotice) UpdateBBox(minLat, maxLat, minLon, maxLon int32) {
	n.StartLat = min(n.StartLat, minLat)
	n.EndLat = max(n.EndLat, maxLat)
	n.StartLon = min(n.StartLon, minLon)
	n.EndLon = max(n.EndLon, maxLon)
}

// UpdateWithParam grows the rectangle and the layer's importance range to include p.
func (n *TilesNotice) UpdateWithParam(p tile.Params) {
	if n.Empty() {
		n.StartLat, n.EndLat = p.Lat, p.Lat
		n.StartLon, n.EndLon = p.Lon, p.Lon
	} else {
		n.UpdateBBox(p.Lat, p.Lat, p.Lon, p.Lon)
	}

	i, found := slices.BinarySearchFunc(n.Layers, p.Layer, func(li LayerImportance, layer int) int {
		return li.Layer - layer
	})
	if !found {
		n.Layers = slices.Insert(n.Layers, i, LayerImportance{Layer: p.Layer, First: p.Importance, Last: p.Importance})
		return
	}
	n.Layers[i].First = min(n.Layers[i].First, p.Importance)
	n.Layers[i].Last = max(n.Layers[i].Last, p.Importance)
}

// TileGroup holds the notices of all detail levels for layers sharing tile settings.
// Notices[i] describes detail level StartDetail+i.
type TileGroup struct {
	StartDetail int
	Notices     []TilesNotice
}

// Notice returns the notice of the given detail level, or nil.
func (g *TileGroup) Notice(detail int) *TilesNotice {
	i := detail - g.StartDetail
	if i < 0 || i >= len(g.Notices) {
		return nil
	}
	return &g.Notices[i]
}

func (g *TileGroup) UpdateWithParam(p tile.Params) {
	if len(g.Notices) == 0 {
		g.StartDetail = 0
	}
	if p.Detail < g.StartDetail {
		g.Notices = slices.Insert(g.Notices, 0, make([]TilesNotice, g.StartDetail-p.Detail)...)
		g.StartDetail = p.Detail
	}
	if i := p.Detail - g.StartDetail; i >= len(g.Notices) {
		g.Notices = append(g.Notices, make([]TilesNotice, i+1-len(g.Notices))...)
	}
	g.Notice(p.Detail).UpdateWithParam(p)
}

// MakeCompactDetail drops leading empty detail levels.
func (g *TileGroup) MakeCompactDetail() {
	i := 0
	for i < len(g.Notices) && g.Notices[i].Empty() {
		i++
	}
	if i == len(g.Notices) {
		g.StartDetail = 0
		g.Notices = nil
		return
	}
	g.StartDetail += i
	g.Notices = slices.Clone(g.Notices[i:])
}

// TileCollection maps layers to the tile groups describing them.
// Several layers may share one group.
type TileCollection struct {
	LayerGroups map[int]int
	Groups      []TileGroup
}

func (c *TileCollection) group(layer int) *TileGroup {
	i, ok := c.LayerGroups[layer]
	if !ok || i < 0 || i >= len(c.Groups) {
		return nil
	}
	return &c.Groups[i]
}

// Notice returns the notice covering p's layer and detail level, or nil.
func (c *TileCollection) Notice(layer, detail int) *TilesNotice {
	g := c.group(layer)
	if g == nil {
		return nil
	}
	return g.Notice(detail)
}

// CellOffset returns the offset of the cell holding p.
func (c *TileCollection) CellOffset(p tile.Params) (uint32, bool) {
	n := c.Notice(p.Layer, p.Detail)
	if n == nil {
		return 0, false
	}
	return n.CellOffset(p)
}

// CellIndex returns the position of p's cell in file order within the
// collection, independent of the assigned offsets.
func (c *TileCollection) CellIndex(p tile.Params) (int, bool) {
	gi, ok := c.LayerGroups[p.Layer]
	if !ok || gi < 0 || gi >= len(c.Groups) {
		return 0, false
	}
	n := c.Groups[gi].Notice(p.Detail)
	if n == nil {
		return 0, false
	}
	if _, ok := n.CellOffset(p); !ok {
		return 0, false
	}
	idx := 0
	for i := range gi {
		idx += c.Groups[i].Cells()
	}
	g := &c.Groups[gi]
	for i := 0; i < p.Detail-g.StartDetail; i++ {
		idx += g.Notices[i].Cells()
	}
	return idx + n.CellIndex(p.Lat, p.Lon), true
}

// ImportanceRange returns the importance range of layer in the notice
// covering (detail, lat, lon). The layer must be present there; anything
// else is a contract violation.
func (c *TileCollection) ImportanceRange(layer, detail int, lat, lon int32) (LayerImportance, error) {
	n := c.Notice(layer, detail)
	if n == nil {
		return LayerImportance{}, Violationf("layer %d detail %d not in tile collection", layer, detail)
	}
	if !n.Contains(lat, lon) {
		return LayerImportance{}, Violationf("tile %d,%d outside layer %d detail %d", lat, lon, layer, detail)
	}
	li, ok := n.Layer(layer)
	if !ok {
		return LayerImportance{}, Violationf("layer %d missing in notice for detail %d", layer, detail)
	}
	return li, nil
}

// UpdateOffset assigns offsets to every notice in file order and returns the first free offset.
func (c *TileCollection) UpdateOffset(start uint32) uint32 {
	for gi := range c.Groups {
		for ni := range c.Groups[gi].Notices {
			start = c.Groups[gi].Notices[ni].UpdateOffset(start)
		}
	}
	return start
}

func (c *TileCollection) MakeCompactDetail() {
	for gi := range c.Groups {
		c.Groups[gi].MakeCompactDetail()
	}
}

// AddParams registers p in the collection. A new layer joins the group of
// the first registered layer for which sameSettings reports true; with a nil
// sameSettings every layer gets its own group.
func (c *TileCollection) AddParams(p tile.Params, sameSettings func(a, b int) bool) {
	if c.LayerGroups == nil {
		c.LayerGroups = make(map[int]int)
	}
	if g := c.group(p.Layer); g != nil {
		g.UpdateWithParam(p)
		return
	}
	gi := -1
	if sameSettings != nil {
		for _, layer := range slices.Sorted(maps.Keys(c.LayerGroups)) {
			if sameSettings(layer, p.Layer) {
				gi = c.LayerGroups[layer]
				break
			}
		}
	}
	if gi < 0 {
		gi = len(c.Groups)
		c.Groups = append(c.Groups, TileGroup{})
	}
	c.LayerGroups[p.Layer] = gi
	c.Groups[gi].UpdateWithParam(p)
}

func (g *TileGroup) Cells() int {
	n := 0
	for i := range g.Notices {
		n += g.Notices[i].Cells()
	}
	return n
}

func (c *TileCollection) Cells() int {
	n := 0
	for i := range c.Groups {
		n += c.Groups[i].Cells()
	}
	return n
}

// Cell is one grid position in file order.
type Cell struct {
	Group  int
	Detail int
	Lat    int32
	Lon    int32
}

// CellSeq returns the cells of the collection in file order:
// group, detail, lat, lon.
func (c *TileCollection) CellSeq() iter.Seq[Cell] {
	return func(yield func(Cell) bool) {
		for gi := range c.Groups {
			g := &c.Groups[gi]
			for ni := range g.Notices {
				n := &g.Notices[ni]
				if n.Empty() {
					continue
				}
				for lat := n.StartLat; lat <= n.EndLat; lat++ {
					for lon := n.StartLon; lon <= n.EndLon; lon++ {
						if !yield(Cell{Group: gi, Detail: g.StartDetail + ni, Lat: lat, Lon: lon}) {
							return
						}
					}
				}
			}
		}
	}
}

// Clone returns a deep copy of the collection.
func (c *TileCollection) Clone() TileCollection {
	out := TileCollection{
		LayerGroups: maps.Clone(c.LayerGroups),
		Groups:      make([]TileGroup, len(c.Groups)),
	}
	for gi, g := range c.Groups {
		out.Groups[gi] = TileGroup{StartDetail: g.StartDetail, Notices: make([]TilesNotice, len(g.Notices))}
		for ni, n := range g.Notices {
			n.Layers = slices.Clone(n.Layers)
			out.Groups[gi].Notices[ni] = n
		}
	}
	return out
}

func appendTileCollection(buf []byte, c *TileCollection) []byte {
	layers := slices.Sorted(maps.Keys(c.LayerGroups))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(layers)))
	for _, layer := range layers {
		buf = binary.BigEndian.AppendUint16(buf, uint16(layer))
		buf = binary.BigEndian.AppendUint16(buf, uint16(c.LayerGroups[layer]))
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(c.Groups)))
	for _, g := range c.Groups {
		buf = binary.BigEndian.AppendUint16(buf, uint16(g.StartDetail))
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(g.Notices)))
		for _, n := range g.Notices {
			startLat, endLat, startLon, endLon := n.StartLat, n.EndLat, n.StartLon, n.EndLon
			if n.Empty() {
				startLat, endLat, startLon, endLon = 0, -1, 0, -1
			}
			buf = binary.BigEndian.AppendUint32(buf, uint32(startLat))
			buf = binary.BigEndian.AppendUint32(buf, uint32(endLat))
			buf = binary.BigEndian.AppendUint32(buf, uint32(startLon))
			buf = binary.BigEndian.AppendUint32(buf, uint32(endLon))
			buf = binary.BigEndian.AppendUint32(buf, n.Offset)
			buf = binary.BigEndian.AppendUint16(buf, uint16(len(n.Layers)))
			for _, li := range n.Layers {
				buf = binary.BigEndian.AppendUint16(buf, uint16(li.Layer))
				buf = binary.BigEndian.AppendUint16(buf, uint16(li.First))
				buf = binary.BigEndian.AppendUint16(buf, uint16(li.Last))
			}
		}
	}
	return buf
}

func (d *decoder) tileCollection() TileCollection {
	c := TileCollection{LayerGroups: make(map[int]int)}
	nbrLayers := int(d.u16("layer mapping count"))
	for range nbrLayers {
		layer := int(d.u16("layer id"))
		c.LayerGroups[layer] = int(d.u16("layer group"))
	}
	nbrGroups := int(d.u16("tile group count"))
	for range nbrGroups {
		if d.err != nil {
			break
		}
		g := TileGroup{StartDetail: int(d.u16("start detail"))}
		nbrNotices := int(d.u16("notice count"))
		for range nbrNotices {
			if d.err != nil {
				break
			}
			n := TilesNotice{
				StartLat: int32(d.u32("start lat")),
				EndLat:   int32(d.u32("end lat")),
				StartLon: int32(d.u32("start lon")),
				EndLon:   int32(d.u32("end lon")),
				Offset:   d.u32("notice offset"),
			}
			nbrImp := int(d.u16("notice layer count"))
			for range nbrImp {
				n.Layers = append(n.Layers, LayerImportance{
					Layer: int(d.u16("notice layer")),
					First: int(d.u16("first importance")),
					Last:  int(d.u16("last importance")),
				})
			}
			g.Notices = append(g.Notices, n)
		}
		c.Groups = append(c.Groups, g)
	}
	for layer, gi := range c.LayerGroups {
		if d.err == nil && gi >= len(c.Groups) {
			d.err = Violationf("layer %d mapped to missing tile group %d", layer, gi)
		}
	}
	return c
}
