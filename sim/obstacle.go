package sim

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"
)

const (
	// obstacleTrailLen bounds MovingObstacle.Trail.
	obstacleTrailLen = 5
)

// Direction is an axis-aligned unit vector.
type Direction struct {
	DX int `json:"dx"`
	DY int `json:"dy"`
}

var (
	DirUp    = Direction{DX: 0, DY: -1}
	DirDown  = Direction{DX: 0, DY: 1}
	DirLeft  = Direction{DX: -1, DY: 0}
	DirRight = Direction{DX: 1, DY: 0}
)

func (d Direction) String() string {
	return fmt.Sprintf("(%+d,%+d)", d.DX, d.DY)
}

// MovingObstacle is a transient grid occupant. It never blocks a cell; it only
// raises the path cost of cells within ObstacleRadius.
type MovingObstacle struct {
	Pos Position
	Dir Direction
	// Transparent is true while the obstacle overlaps a Hospital cell.
	Transparent bool
	// Trail holds the last few positions, oldest first.
	Trail []Position
}

// ObstacleSimulator owns the moving-obstacle population: border spawning,
// stepping, and retirement once an obstacle leaves the grid.
type ObstacleSimulator struct {
	grid      *Grid
	rng       *rand.Rand
	maxCount  int
	batchSize int
	turnProb  float64
	obstacles []*MovingObstacle
}

// NewObstacleSimulator creates an empty obstacle population over grid.
func NewObstacleSimulator(grid *Grid, rng *rand.Rand, maxCount, batchSize int, turnProb float64) *ObstacleSimulator {
	return &ObstacleSimulator{
		grid:      grid,
		rng:       rng,
		maxCount:  maxCount,
		batchSize: batchSize,
		turnProb:  turnProb,
	}
}

// Len returns the current obstacle population.
func (o *ObstacleSimulator) Len() int {
	return len(o.obstacles)
}

// Obstacles returns the live obstacles. Callers must not retain or mutate the slice.
func (o *ObstacleSimulator) Obstacles() []*MovingObstacle {
	return o.obstacles
}

// Clear removes every obstacle.
func (o *ObstacleSimulator) Clear() {
	o.obstacles = nil
}

// Seed spawns k obstacles unconditionally (used when a simulation starts).
func (o *ObstacleSimulator) Seed(k int) {
	for i, n := 0, k; i < n; i++ {
		o.spawnOne()
	}
}

// Add inserts an obstacle at an explicit position and direction.
func (o *ObstacleSimulator) Add(pos Position, dir Direction) *MovingObstacle {
	ob := &MovingObstacle{Pos: pos, Dir: dir, Transparent: o.grid.Kind(pos) == CellHospital}
	o.obstacles = append(o.obstacles, ob)
	return ob
}

// Refresh recomputes Transparent for obstacles at pos after its cell kind changes.
func (o *ObstacleSimulator) Refresh(pos Position) {
	for _, ob := range o.obstacles {
		if ob.Pos == pos {
			ob.Transparent = o.grid.Kind(pos) == CellHospital
		}
	}
}

// SpawnBatch spawns one batch of obstacles if the population is below the cap.
// Returns the number spawned.
func (o *ObstacleSimulator) SpawnBatch() int {
	if len(o.obstacles) >= o.maxCount {
		return 0
	}
	for i, n := 0, o.batchSize; i < n; i++ {
		o.spawnOne()
	}
	return o.batchSize
}

// spawnOne places an obstacle on a random border cell, pointing inward.
func (o *ObstacleSimulator) spawnOne() {
	n := o.grid.Size()
	var pos Position
	var dir Direction
	if o.rng.Float64() < 0.5 {
		// left or right edge, moving horizontally inward
		if o.rng.Intn(2) == 0 {
			pos, dir = Position{X: 0, Y: o.rng.Intn(n)}, DirRight
		} else {
			pos, dir = Position{X: n - 1, Y: o.rng.Intn(n)}, DirLeft
		}
	} else {
		// top or bottom edge, moving vertically inward
		if o.rng.Intn(2) == 0 {
			pos, dir = Position{X: o.rng.Intn(n), Y: 0}, DirDown
		} else {
			pos, dir = Position{X: o.rng.Intn(n), Y: n - 1}, DirUp
		}
	}
	o.Add(pos, dir)
}

// randomDirection picks one of the four axis-aligned unit vectors uniformly.
func (o *ObstacleSimulator) randomDirection() Direction {
	sign := 1
	if o.rng.Intn(2) == 0 {
		sign = -1
	}
	if o.rng.Float64() < 0.5 {
		return Direction{DX: sign, DY: 0}
	}
	return Direction{DX: 0, DY: sign}
}

// Move advances every obstacle by one cell. Obstacles stepping outside the grid
// are removed in the same call. Returns the number removed.
func (o *ObstacleSimulator) Move() int {
	kept := o.obstacles[:0]
	removed := 0
	for _, ob := range o.obstacles {
		ob.Trail = append(ob.Trail, ob.Pos)
		if len(ob.Trail) > obstacleTrailLen {
			ob.Trail = ob.Trail[len(ob.Trail)-obstacleTrailLen:]
		}
		if o.rng.Float64() < o.turnProb {
			ob.Dir = o.randomDirection()
		}
		next := ob.Pos.Step(ob.Dir.DX, ob.Dir.DY)
		if !o.grid.InBounds(next) {
			removed++
			continue
		}
		ob.Pos = next
		ob.Transparent = o.grid.Kind(next) == CellHospital
		kept = append(kept, ob)
	}
	clear(o.obstacles[len(kept):])
	o.obstacles = kept
	if removed > 0 {
		logrus.Debugf("obstacles: %d left the grid, %d remain", removed, len(kept))
	}
	return removed
}

// Proximity counts obstacles within Chebyshev distance ObstacleRadius of p.
func (o *ObstacleSimulator) Proximity(p Position) int {
	count := 0
	for _, ob := range o.obstacles {
		if Chebyshev(ob.Pos, p) <= ObstacleRadius {
			count++
		}
	}
	return count
}
