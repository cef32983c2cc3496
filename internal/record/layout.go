package record

import "image"

// Grid returns the tile layout for n sources: a single participant
// fills the canvas, small calls get a quad, mid-size calls a nine-box,
// and anything larger four columns with as many rows as needed.
func Grid(n int) (cols, rows int) {
	switch {
	case n <= 1:
		return 1, 1
	case n <= 4:
		return 2, 2
	case n <= 9:
		return 3, 3
	default:
		return 4, (n + 3) / 4
	}
}

// CellRect returns the pixel rectangle of cell i in a cols by rows grid
// on a w by h canvas. Cells fill left to right, top to bottom.
func CellRect(i, cols, rows, w, h int) image.Rectangle {
	cw := w / cols
	ch := h / rows
	x := (i % cols) * cw
	y := (i / cols) * ch
	return image.Rect(x, y, x+cw, y+ch)
}

// fitRect scales src into cell preserving aspect ratio, centered.
func fitRect(cell, src image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	if sw == 0 || sh == 0 {
		return cell
	}
	rw := cell.Dx()
	rh := rw * sh / sw
	if rh > cell.Dy() {
		rh = cell.Dy()
		rw = rh * sw / sh
	}
	x := cell.Min.X + (cell.Dx()-rw)/2
	y := cell.Min.Y + (cell.Dy()-rh)/2
	return image.Rect(x, y, x+rw, y+rh)
}
