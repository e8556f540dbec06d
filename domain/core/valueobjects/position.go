package valueobjects

import (
	"errors"
	"math"
)

// Position is the canvas location of a node
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// NewPosition creates a position, rejecting NaN and infinite coordinates
func NewPosition(x, y float64) (Position, error) {
	if !isFinite(x) || !isFinite(y) {
		return Position{}, errors.New("invalid coordinates")
	}
	return Position{X: x, Y: y}, nil
}

// Equals checks if two positions are the same point
func (p Position) Equals(other Position) bool {
	return p.X == other.X && p.Y == other.Y
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
