package valueobjects

import "math"

// Position represents a pod's x/y placement on the canvas
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewPosition creates a position, snapping non-finite values to zero
func NewPosition(x, y float64) Position {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		x = 0
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		y = 0
	}
	return Position{X: x, Y: y}
}

// Equals checks if two positions are the same point
func (p Position) Equals(other Position) bool {
	return p.X == other.X && p.Y == other.Y
}
