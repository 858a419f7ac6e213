package console

import (
	"image/color"

	"ember/hal"

	"tinygo.org/x/drivers"
)

// fbDisplay is the drivers.Displayer tinyterm draws on. It behaves like a
// panel with its own RGB565 memory and a hardware vertical scroll register:
// blit copies that memory to a hal.Framebuffer starting at the scroll line.
type fbDisplay struct {
	w, h   int
	vram   []byte
	scroll int
}

func newFBDisplay(w, h int) *fbDisplay {
	return &fbDisplay{w: w, h: h, vram: make([]byte, w*h*2)}
}

func (d *fbDisplay) Size() (x, y int16) {
	return int16(d.w), int16(d.h)
}

func (d *fbDisplay) SetPixel(x, y int16, c color.RGBA) {
	ix, iy := int(x), int(y)
	if ix < 0 || ix >= d.w || iy < 0 || iy >= d.h {
		return
	}
	pixel := hal.RGB565(c.R, c.G, c.B)
	off := (iy*d.w + ix) * 2
	d.vram[off] = byte(pixel)
	d.vram[off+1] = byte(pixel >> 8)
}

// Display is a no-op: the console blits once per host frame rather than
// once per glyph.
func (d *fbDisplay) Display() error { return nil }

func (d *fbDisplay) FillRectangle(x, y, width, height int16, c color.RGBA) error {
	x0 := clampInt(int(x), 0, d.w)
	y0 := clampInt(int(y), 0, d.h)
	x1 := clampInt(int(x)+int(width), 0, d.w)
	y1 := clampInt(int(y)+int(height), 0, d.h)
	if x0 >= x1 || y0 >= y1 {
		return nil
	}

	pixel := hal.RGB565(c.R, c.G, c.B)
	lo, hi := byte(pixel), byte(pixel>>8)
	for py := y0; py < y1; py++ {
		row := py * d.w * 2
		for px := x0; px < x1; px++ {
			d.vram[row+px*2] = lo
			d.vram[row+px*2+1] = hi
		}
	}
	return nil
}

// SetScroll sets the memory line shown at the top of the screen.
func (d *fbDisplay) SetScroll(line int16) {
	if d.h == 0 {
		return
	}
	d.scroll = ((int(line) % d.h) + d.h) % d.h
}

func (d *fbDisplay) SetRotation(rotation drivers.Rotation) error { return nil }

// blit copies the visible picture into fb. It does nothing for
// framebuffers that are not RGB565.
func (d *fbDisplay) blit(fb hal.Framebuffer) {
	if fb == nil || fb.Format() != hal.PixelFormatRGB565 {
		return
	}
	buf := fb.Buffer()
	stride := fb.StrideBytes()
	rowBytes := d.w * 2
	if rowBytes > stride {
		rowBytes = stride
	}
	rows := d.h
	if fb.Height() < rows {
		rows = fb.Height()
	}
	for y := 0; y < rows; y++ {
		src := ((y + d.scroll) % d.h) * d.w * 2
		dst := y * stride
		if dst+rowBytes > len(buf) {
			return
		}
		copy(buf[dst:dst+rowBytes], d.vram[src:src+rowBytes])
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
