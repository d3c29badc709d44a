package geometry

import "math"

// Point is a 2D coordinate in either screen or image space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is an axis-aligned rectangle with non-negative dimensions.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

const (
	// ZoomFactor is the multiplicative step applied per wheel notch.
	ZoomFactor = 1.05

	// minScale keeps the transform invertible.
	minScale = 1e-6
)

// ViewportTransform maps between screen space and image space under
// pan and zoom. The zero value is not useful; use NewViewportTransform.
// All methods return a new transform so callers can treat it as a value
// and unit-test pan/zoom math without a rendering surface.
type ViewportTransform struct {
	Scale    float64 `json:"scale"`
	Position Point   `json:"position"`
}

// NewViewportTransform returns an identity transform.
func NewViewportTransform() ViewportTransform {
	return ViewportTransform{Scale: 1}
}

// ScreenToImage converts a screen-space point to image space.
func (t ViewportTransform) ScreenToImage(p Point) Point {
	return Point{
		X: (p.X - t.Position.X) / t.Scale,
		Y: (p.Y - t.Position.Y) / t.Scale,
	}
}

// ImageToScreen converts an image-space point to screen space.
func (t ViewportTransform) ImageToScreen(p Point) Point {
	return Point{
		X: p.X*t.Scale + t.Position.X,
		Y: p.Y*t.Scale + t.Position.Y,
	}
}

// ZoomAt rescales around the given screen-space pointer so that the
// image point under the pointer stays fixed. A positive wheelDelta
// zooms out, a negative one zooms in (wheel deltaY convention).
func (t ViewportTransform) ZoomAt(pointer Point, wheelDelta float64) ViewportTransform {
	anchor := t.ScreenToImage(pointer)

	newScale := t.Scale * ZoomFactor
	if wheelDelta > 0 {
		newScale = t.Scale / ZoomFactor
	}
	if newScale < minScale {
		newScale = minScale
	}

	return ViewportTransform{
		Scale: newScale,
		Position: Point{
			X: pointer.X - anchor.X*newScale,
			Y: pointer.Y - anchor.Y*newScale,
		},
	}
}

// Pan shifts the view by a screen-space delta.
func (t ViewportTransform) Pan(dx, dy float64) ViewportTransform {
	t.Position.X += dx
	t.Position.Y += dy
	return t
}

// Fit returns a transform that scales the content to fit inside the
// container and centers it.
func Fit(container, content Size) ViewportTransform {
	scale := math.Min(container.Width/content.Width, container.Height/content.Height)
	if scale < minScale {
		scale = minScale
	}
	return ViewportTransform{
		Scale: scale,
		Position: Point{
			X: (container.Width - content.Width*scale) / 2,
			Y: (container.Height - content.Height*scale) / 2,
		},
	}
}

// RectFromCorners builds a rectangle from two pointer samples of a
// drag-draw gesture, swapping corners so width and height come out
// non-negative.
func RectFromCorners(a, b Point) Rect {
	return Rect{
		X:      math.Min(a.X, b.X),
		Y:      math.Min(a.Y, b.Y),
		Width:  math.Abs(b.X - a.X),
		Height: math.Abs(b.Y - a.Y),
	}
}
