package lightsim

import (
	"fmt"
	"strings"
)

// Direction is one of the eight compass directions energy travels in. Window
// rows grow southwards, so N steps to y-1.
type Direction uint8

const (
	N Direction = iota
	NE
	E
	SE
	S
	SW
	W
	NW
)

const DirectionCount = 8

var All = [DirectionCount]Direction{N, NE, E, SE, S, SW, W, NW}

var directionNames = [DirectionCount]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

func ParseDirection(s string) (Direction, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range directionNames {
		if name == s {
			return Direction(i), nil
		}
	}
	return N, fmt.Errorf("unknown direction %q", s)
}

func (d Direction) IsOrthogonal() bool { return d%2 == 0 }

func (d Direction) IsDiagonal() bool { return d%2 == 1 }

// Offset is the single-step displacement in window coordinates.
func (d Direction) Offset() (dx, dy int) {
	switch d {
	case N:
		return 0, -1
	case NE:
		return 1, -1
	case E:
		return 1, 0
	case SE:
		return 1, 1
	case S:
		return 0, 1
	case SW:
		return -1, 1
	case W:
		return -1, 0
	case NW:
		return -1, -1
	}
	return 0, 0
}

// Components returns the orthogonal parts of a diagonal direction. For an
// orthogonal direction both results are d itself.
func (d Direction) Components() (Direction, Direction) {
	switch d {
	case NE:
		return N, E
	case SE:
		return S, E
	case SW:
		return S, W
	case NW:
		return N, W
	}
	return d, d
}
