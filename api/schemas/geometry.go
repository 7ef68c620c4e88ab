package schemas

import "fmt"

// NormalizedScale is the size of the coordinate space vision models answer in.
const NormalizedScale = 1000

// BoundingBox is a rectangle in normalized 0-1000 space, independent of the
// viewport it was measured against.
type BoundingBox struct {
	X1, Y1, X2, Y2 int
}

// Valid reports whether the box is a non-empty rectangle inside the
// normalized space.
func (b BoundingBox) Valid() bool {
	return b.X1 >= 0 && b.Y1 >= 0 &&
		b.X1 < b.X2 && b.Y1 < b.Y2 &&
		b.X2 <= NormalizedScale && b.Y2 <= NormalizedScale
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%d,%d,%d,%d]", b.X1, b.Y1, b.X2, b.Y2)
}

// PixelBox is a rectangle in live viewport pixels.
type PixelBox struct {
	X1, Y1, X2, Y2 int
}

// Center returns the midpoint of the box.
func (p PixelBox) Center() (x, y int) {
	return (p.X1 + p.X2) / 2, (p.Y1 + p.Y2) / 2
}

// Viewport is the live size of the page, in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ToPixels scales a normalized box to the viewport using
// pixel = coord * dimension / 1000, rounded down. A box that a small viewport
// would collapse to zero width or height is widened by one pixel so that the
// ordering of a valid box survives the conversion.
func (b BoundingBox) ToPixels(vp Viewport) PixelBox {
	p := PixelBox{
		X1: scale(b.X1, vp.Width),
		Y1: scale(b.Y1, vp.Height),
		X2: scale(b.X2, vp.Width),
		Y2: scale(b.Y2, vp.Height),
	}
	if p.X2 <= p.X1 && p.X1 < vp.Width {
		p.X2 = p.X1 + 1
	}
	if p.Y2 <= p.Y1 && p.Y1 < vp.Height {
		p.Y2 = p.Y1 + 1
	}
	return p
}

func scale(coord, dimension int) int {
	return coord * dimension / NormalizedScale
}
