package ui

// Braille cells are 2 dots wide and 4 dots tall. Bit layout per dot
// position (column, row).
var brailleBits = [2][4]uint8{
	{0x01, 0x02, 0x04, 0x40},
	{0x08, 0x10, 0x20, 0x80},
}

// brailleBuf is a dot buffer over a grid of terminal cells.
type brailleBuf struct {
	w, h int // in cells
	m    []uint8
}

func newBrailleBuf(w, h int) *brailleBuf {
	return &brailleBuf{w: w, h: h, m: make([]uint8, w*h)}
}

// setDot sets the dot at dot coordinates (2x4 per cell).
func (b *brailleBuf) setDot(dx, dy int) {
	if dx < 0 || dy < 0 {
		return
	}
	cx, cy := dx/2, dy/4
	if cx >= b.w || cy >= b.h {
		return
	}
	b.m[cy*b.w+cx] |= brailleBits[dx%2][dy%4]
}

// mask returns the dot mask of a cell.
func (b *brailleBuf) mask(cx, cy int) uint8 {
	return b.m[cy*b.w+cx]
}

// glyph returns the braille rune of a cell, or a space when no dot is set.
func (b *brailleBuf) glyph(cx, cy int) rune {
	m := b.mask(cx, cy)
	if m == 0 {
		return ' '
	}
	return rune(0x2800 + int(m))
}

// raster maps every dot of the canvas to the index of the unit under it,
// or -1 for background.
type raster struct {
	dw, dh int // in dots
	idx    []int32
}

func (r *raster) at(dx, dy int) int32 {
	if dx < 0 || dy < 0 || dx >= r.dw || dy >= r.dh {
		return -1
	}
	return r.idx[dy*r.dw+dx]
}

// edge reports whether a dot lies on a unit boundary: its right or lower
// neighbour belongs to a different unit.
func (r *raster) edge(dx, dy int) bool {
	here := r.at(dx, dy)
	return here != r.at(dx+1, dy) || here != r.at(dx, dy+1)
}
