// Package grid turns world positions into coarse, jittered map labels.
package grid

import (
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/humanalog/markedfordeath/internal/geo"
	"github.com/humanalog/markedfordeath/internal/model"
)

const (
	DefaultCellSize     = 150.0
	DefaultWorldSize    = 4500.0
	DefaultJitterRadius = 100
)

// MaxColumn is the largest column index that still encodes to letters only.
// Indices east of it share its label.
const MaxColumn = 26*26 - 1

const maxRow = math.MaxInt32

// RandomSource yields uniform integers in [0, n).
type RandomSource interface {
	IntN(n int) int
}

// Config describes the grid overlaid on the world.
type Config struct {
	CellSize  float64
	WorldSize float64
}

// Obfuscator maps positions to grid labels after applying a bounded random offset.
type Obfuscator struct {
	cfg    Config
	world  geo.World
	rng    RandomSource
	logger *slog.Logger
}

// NewObfuscator creates an Obfuscator. Zero config values fall back to the defaults.
func NewObfuscator(cfg Config, rng RandomSource, logger *slog.Logger) *Obfuscator {
	if logger == nil {
		logger = slog.Default()
	}
	if !(cfg.CellSize > 0) || math.IsInf(cfg.CellSize, 1) {
		cfg.CellSize = DefaultCellSize
	}
	world, err := geo.NewWorld(cfg.WorldSize)
	if err != nil {
		if cfg.WorldSize != 0 {
			logger.Warn("invalid world size, using default", "error", err, "default", DefaultWorldSize)
		}
		cfg.WorldSize = DefaultWorldSize
		world, _ = geo.NewWorld(DefaultWorldSize)
	}
	return &Obfuscator{
		cfg:    cfg,
		world:  world,
		rng:    rng,
		logger: logger,
	}
}

// Obfuscate offsets X and Z independently by a uniform integer in [-radius, radius]
// and returns the label of the resulting cell. Height is ignored.
func (o *Obfuscator) Obfuscate(pos model.Position, radius int) string {
	if !o.world.Contains(pos) {
		o.logger.Debug("position outside world bounds",
			"x", pos.X, "z", pos.Z, "worldSize", o.cfg.WorldSize)
	}
	x := pos.X + float64(o.offset(radius))
	z := pos.Z + float64(o.offset(radius))
	return Label(x, z, o.cfg)
}

func (o *Obfuscator) offset(radius int) int {
	if radius <= 0 {
		return 0
	}
	return o.rng.IntN(2*radius+1) - radius
}

// Label is the deterministic half of Obfuscate: "<columnLetters>:<row>" for the cell at (x, z).
func Label(x, z float64, cfg Config) string {
	half := cfg.WorldSize / 2
	col := clampIndex((x+half)/cfg.CellSize, 0, MaxColumn)
	row := clampIndex((half-z)/cfg.CellSize, -maxRow, maxRow)
	return ColumnLabel(col) + ":" + strconv.Itoa(row)
}

// clampIndex floors v into [lo, hi] before converting, so huge or NaN
// inputs never reach the int conversion.
func clampIndex(v float64, lo, hi int) int {
	switch {
	case math.IsNaN(v) || v < float64(lo):
		return lo
	case v >= float64(hi):
		return hi
	}
	return int(math.Floor(v))
}

// ColumnLabel encodes a column index. For q = idx/26 and r = idx%26 it writes
// q copies of letter 'A'+q followed by 'A'+r, so 26 is "BA" and 52 is "CCA".
// Indices clamp to [0, MaxColumn].
func ColumnLabel(idx int) string {
	idx = min(max(idx, 0), MaxColumn)
	q, r := idx/26, idx%26

	var b strings.Builder
	b.Grow(q + 1)
	for i := 0; i < q; i++ {
		b.WriteRune(rune('A' + q))
	}
	b.WriteRune(rune('A' + r))
	return b.String()
}

// IsLabel reports whether s looks like "<letters>:<integer>".
func IsLabel(s string) bool {
	letters, row, ok := strings.Cut(s, ":")
	if !ok || letters == "" {
		return false
	}
	for _, c := range letters {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	_, err := strconv.Atoi(row)
	return err == nil
}
