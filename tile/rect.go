package tile

// Rect is a rectangle in tile-index space: X/Y is the lower corner tile index,
// Width/Height the extent in tiles. Used for request ROIs and predictions.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Contains reports whether tile index (x, y) falls inside the rectangle.
// Both edges are inclusive: a rect at X with Width covers indices X..X+Width.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x <= r.X+r.Width && y >= r.Y && y <= r.Y+r.Height
}

// Extrapolate returns the first-order prediction of the next rectangle given
// the previous one: each field drifts by the same delta it moved last time.
func (r Rect) Extrapolate(prev Rect) Rect {
	return Rect{
		X:      r.X + (r.X - prev.X),
		Y:      r.Y + (r.Y - prev.Y),
		Width:  r.Width + (r.Width - prev.Width),
		Height: r.Height + (r.Height - prev.Height),
	}
}
