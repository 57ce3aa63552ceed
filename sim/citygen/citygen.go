// Package citygen builds procedural city layouts: building blocks from
// layered simplex noise and well-spaced hospitals that can all reach each
// other.
package citygen

import (
	"math/rand"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Cell is a grid coordinate.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Params controls generation.
type Params struct {
	Seed int64
	// BuildingDensity is the fraction of cells turned into buildings, in [0,1).
	BuildingDensity float64
	Hospitals       int
	// Spacing is the preferred minimum Chebyshev distance between hospitals.
	// Zero picks max(2, n/6).
	Spacing int
}

// Layout is a generated city on an n×n grid.
type Layout struct {
	Size      int
	Buildings []Cell
	Hospitals []Cell
}

// Generate builds a layout. The same n and Params always produce the same layout.
func Generate(n int, p Params) Layout {
	blocked := buildingMask(n, p.Seed, p.BuildingDensity)
	hospitals := placeHospitals(n, blocked, p)
	connect(n, blocked, hospitals)

	out := Layout{Size: n, Hospitals: hospitals}
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			if blocked[y*n+x] {
				out.Buildings = append(out.Buildings, Cell{X: x, Y: y})
			}
		}
	}
	return out
}

// buildingMask marks the round(density·n²) cells with the highest noise value.
func buildingMask(n int, seed int64, density float64) []bool {
	blocked := make([]bool, n*n)
	target := int(density*float64(n*n) + 0.5)
	if target <= 0 {
		return blocked
	}
	noise := opensimplex.NewNormalized(seed)
	type scored struct {
		idx int
		v   float64
	}
	cells := make([]scored, 0, n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			cells = append(cells, scored{idx: y*n + x, v: octaveNoise(noise, float64(x), float64(y), 3, 0.18, 0.5)})
		}
	}
	sort.SliceStable(cells, func(i, j int) bool { return cells[i].v > cells[j].v })
	for _, c := range cells[:min(target, len(cells))] {
		blocked[c.idx] = true
	}
	return blocked
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// placeHospitals picks free cells in shuffled order, keeping the requested
// spacing and relaxing it one step at a time if the grid is too crowded.
func placeHospitals(n int, blocked []bool, p Params) []Cell {
	if p.Hospitals <= 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(p.Seed))
	var free []Cell
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			if !blocked[y*n+x] {
				free = append(free, Cell{X: x, Y: y})
			}
		}
	}
	rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })

	spacing := p.Spacing
	if spacing <= 0 {
		spacing = max(2, n/6)
	}
	var chosen []Cell
	taken := make(map[Cell]bool)
	for ; spacing >= 1 && len(chosen) < p.Hospitals; spacing-- {
		for _, c := range free {
			if len(chosen) == p.Hospitals {
				break
			}
			if taken[c] || !farFromAll(c, chosen, spacing) {
				continue
			}
			chosen = append(chosen, c)
			taken[c] = true
		}
	}
	return chosen
}

func farFromAll(c Cell, others []Cell, spacing int) bool {
	for _, o := range others {
		if chebyshev(c, o) < spacing {
			return false
		}
	}
	return true
}

// connect clears a corridor from every hospital that cannot reach the first
// one. Corridors step diagonally toward the first hospital, which an
// 8-connected planner can always follow.
func connect(n int, blocked []bool, hospitals []Cell) {
	if len(hospitals) < 2 {
		return
	}
	hub := hospitals[0]
	reach := reachable(n, blocked, hub)
	for _, h := range hospitals[1:] {
		if reach[h.Y*n+h.X] {
			continue
		}
		for c := h; c != hub; {
			c = Cell{X: c.X + sign(hub.X-c.X), Y: c.Y + sign(hub.Y-c.Y)}
			blocked[c.Y*n+c.X] = false
		}
		reach = reachable(n, blocked, hub)
	}
}

// reachable flood-fills 8-connected free cells from start.
func reachable(n int, blocked []bool, start Cell) []bool {
	seen := make([]bool, n*n)
	seen[start.Y*n+start.X] = true
	queue := []Cell{start}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := c.X+dx, c.Y+dy
				if nx < 0 || ny < 0 || nx >= n || ny >= n {
					continue
				}
				i := ny*n + nx
				if seen[i] || blocked[i] {
					continue
				}
				seen[i] = true
				queue = append(queue, Cell{X: nx, Y: ny})
			}
		}
	}
	return seen
}

// Connected reports whether every hospital in l can reach every other one.
func Connected(l Layout) bool {
	if len(l.Hospitals) < 2 {
		return true
	}
	blocked := make([]bool, l.Size*l.Size)
	for _, b := range l.Buildings {
		blocked[b.Y*l.Size+b.X] = true
	}
	reach := reachable(l.Size, blocked, l.Hospitals[0])
	for _, h := range l.Hospitals[1:] {
		if !reach[h.Y*l.Size+h.X] {
			return false
		}
	}
	return true
}

func chebyshev(a, b Cell) int {
	return max(abs(a.X-b.X), abs(a.Y-b.Y))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func sign(x int) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
