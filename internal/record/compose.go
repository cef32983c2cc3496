package record

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	bgFill    = image.NewUniform(color.RGBA{18, 18, 22, 255})
	cellFill  = image.NewUniform(color.RGBA{32, 34, 40, 255})
	labelFill = image.NewUniform(color.RGBA{235, 235, 235, 255})
	liveFill  = image.NewUniform(color.RGBA{80, 200, 120, 255})
	deadFill  = image.NewUniform(color.RGBA{200, 80, 80, 255})
	recFill   = image.NewUniform(color.RGBA{220, 40, 40, 255})
	shadeFill = image.NewUniform(color.RGBA{0, 0, 0, 140})
)

// Compositor renders one composite frame per tick. Not safe for
// concurrent use; the recorder's tick goroutine owns it.
type Compositor struct {
	w, h   int
	canvas *image.RGBA
}

func NewCompositor(w, h int) *Compositor {
	return &Compositor{w: w, h: h, canvas: image.NewRGBA(image.Rect(0, 0, w, h))}
}

// Compose tiles every source onto the canvas and burns in the overlay.
// The returned image is reused between calls; encode it before the
// next tick.
func (c *Compositor) Compose(srcs []Source, elapsed time.Duration) *image.RGBA {
	draw.Draw(c.canvas, c.canvas.Bounds(), bgFill, image.Point{}, draw.Src)
	cols, rows := Grid(len(srcs))
	for i, s := range srcs {
		c.tile(s, CellRect(i, cols, rows, c.w, c.h))
	}
	c.stampRec(elapsed)
	return c.canvas
}

func (c *Compositor) tile(s Source, cell image.Rectangle) {
	inner := cell.Inset(2)
	frame := s.Frame()
	if frame == nil {
		draw.Draw(c.canvas, inner, cellFill, image.Point{}, draw.Src)
	} else {
		dst := fitRect(inner, frame.Bounds())
		draw.ApproxBiLinear.Scale(c.canvas, dst, frame, frame.Bounds(), draw.Src, nil)
	}
	label := s.Label()
	if s.Screen() {
		label += " [screen]"
	}
	c.label(label, inner.Min.X+6, inner.Max.Y-6)
	badge := deadFill
	if s.Live() {
		badge = liveFill
	}
	dot := image.Rect(inner.Max.X-14, inner.Min.Y+6, inner.Max.X-6, inner.Min.Y+14)
	draw.Draw(c.canvas, dot, badge, image.Point{}, draw.Src)
}

// label draws text over a shaded box so it stays readable on bright
// frames. x, y is the baseline start.
func (c *Compositor) label(text string, x, y int) {
	d := font.Drawer{
		Dst:  c.canvas,
		Src:  labelFill,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	w := d.MeasureString(text).Ceil()
	box := image.Rect(x-3, y-11, x+w+3, y+3)
	draw.Draw(c.canvas, box, shadeFill, image.Point{}, draw.Over)
	d.DrawString(text)
}

func (c *Compositor) stampRec(elapsed time.Duration) {
	dot := image.Rect(8, 8, 18, 18)
	draw.Draw(c.canvas, dot, recFill, image.Point{}, draw.Src)
	c.label("REC "+formatElapsed(elapsed), 24, 17)
}

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
