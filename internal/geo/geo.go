package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/humanalog/markedfordeath/internal/model"
	geom "github.com/peterstace/simplefeatures/geom"
)

// Positions arrive from the host as "x,y,z" in world units, Y being the height axis.
// The map plane is therefore X/Z; geometry helpers below project onto it.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// MaxCoordinate bounds every axis. Larger or non-finite values are rejected.
const MaxCoordinate = 1e6

// PositionFromString parses "x,y,z" into a model.Position.
// A two component string is read as "x,z" with the height left at 0.
func PositionFromString(coords string) (model.Position, error) {
	parts := strings.Split(coords, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return model.Position{}, ErrInvalidCoordinates
	}
	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(v) || math.Abs(v) > MaxCoordinate {
			return model.Position{}, ErrInvalidCoordinates
		}
		vals[i] = v
	}
	if len(vals) == 2 {
		return model.Position{X: vals[0], Z: vals[1]}, nil
	}
	return model.Position{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

// PlaneXY projects a position onto the horizontal map plane.
func PlaneXY(p model.Position) geom.XY {
	return geom.XY{X: p.X, Y: p.Z}
}

// World is the square playable area centred on the origin.
type World struct {
	size float64
	env  geom.Envelope
}

// NewWorld returns a world of the given edge length.
func NewWorld(size float64) (World, error) {
	if !(size > 0) || math.IsInf(size, 1) {
		return World{}, fmt.Errorf("invalid world size %v", size)
	}
	half := size / 2
	env, err := geom.NewEnvelope([]geom.XY{{X: -half, Y: -half}, {X: half, Y: half}})
	if err != nil {
		return World{}, fmt.Errorf("world envelope: %w", err)
	}
	return World{size: size, env: env}, nil
}

// Size is the edge length of the world.
func (w World) Size() float64 {
	return w.size
}

// Contains reports whether p lies inside the world on the map plane.
func (w World) Contains(p model.Position) bool {
	return w.env.Contains(PlaneXY(p))
}
