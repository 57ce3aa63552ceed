package sim

import "container/heap"

// ObstacleRadius is the Chebyshev radius within which a moving obstacle
// raises the traversal cost of a cell.
const ObstacleRadius = 2

// obstaclePenalty is the extra edge cost per nearby obstacle.
const obstaclePenalty = 2

// neighborOffsets lists the 8-connected moves: orthogonal first, then diagonals.
var neighborOffsets = [8][2]int{
	{0, 1}, {1, 0}, {0, -1}, {-1, 0},
	{1, 1}, {-1, 1}, {1, -1}, {-1, -1},
}

// ProximitySource reports how many moving obstacles are within ObstacleRadius of a cell.
type ProximitySource interface {
	Proximity(p Position) int
}

// noObstacles is a ProximitySource for obstacle-free planning.
type noObstacles struct{}

func (noObstacles) Proximity(Position) int { return 0 }

// PathPlanner searches the grid for obstacle-averse routes.
//
// Edge weight into a cell is 1 + 2×Proximity(cell); the frontier is ordered by
// cost-so-far plus Euclidean distance to the goal. The heuristic ignores the
// obstacle penalty and overestimates diagonal moves, so routes are
// safe-preferring rather than cost-optimal.
type PathPlanner struct {
	grid      *Grid
	obstacles ProximitySource
}

// NewPathPlanner creates a planner over grid. A nil obstacles source plans as
// if no obstacles exist.
func NewPathPlanner(grid *Grid, obstacles ProximitySource) *PathPlanner {
	if obstacles == nil {
		obstacles = noObstacles{}
	}
	return &PathPlanner{grid: grid, obstacles: obstacles}
}

// FindPath returns the waypoints from start (exclusive) to end (inclusive).
// Returns an empty slice when start == end or when end is unreachable.
func (pp *PathPlanner) FindPath(start, end Position) []Position {
	if start == end || !pp.grid.InBounds(start) || !pp.grid.Passable(end) {
		return []Position{}
	}

	frontier := newFrontier()
	frontier.push(start, 0, 0)
	cameFrom := map[Position]Position{}
	costSoFar := map[Position]int{start: 0}

	for frontier.Len() > 0 {
		item := frontier.pop()
		current := item.pos
		if item.cost != costSoFar[current] {
			continue // stale entry, a cheaper route was queued later
		}
		if current == end {
			break
		}
		for _, off := range neighborOffsets {
			next := current.Step(off[0], off[1])
			if !pp.grid.Passable(next) {
				continue
			}
			newCost := costSoFar[current] + 1 + obstaclePenalty*pp.obstacles.Proximity(next)
			if prev, seen := costSoFar[next]; !seen || newCost < prev {
				costSoFar[next] = newCost
				cameFrom[next] = current
				frontier.push(next, newCost, float64(newCost)+Euclidean(next, end))
			}
		}
	}

	if _, reached := cameFrom[end]; !reached {
		return []Position{}
	}
	var path []Position
	for current := end; current != start; current = cameFrom[current] {
		path = append(path, current)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// frontierItem is one queued search node.
type frontierItem struct {
	pos      Position
	cost     int
	priority float64
	seq      uint64
}

// frontier implements a priority queue with deterministic ordering.
// Ordering: priority → insertion sequence.
type frontier struct {
	items   []frontierItem
	nextSeq uint64
}

func newFrontier() *frontier {
	f := &frontier{items: make([]frontierItem, 0, 64)}
	heap.Init(f)
	return f
}

// Len implements heap.Interface
func (f *frontier) Len() int { return len(f.items) }

// Less implements heap.Interface with deterministic ordering
func (f *frontier) Less(i, j int) bool {
	a, b := f.items[i], f.items[j]
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.seq < b.seq
}

// Swap implements heap.Interface
func (f *frontier) Swap(i, j int) { f.items[i], f.items[j] = f.items[j], f.items[i] }

// Push implements heap.Interface
func (f *frontier) Push(x any) { f.items = append(f.items, x.(frontierItem)) }

// Pop implements heap.Interface
func (f *frontier) Pop() any {
	old := f.items
	n := len(old)
	item := old[n-1]
	f.items = old[:n-1]
	return item
}

func (f *frontier) push(p Position, cost int, priority float64) {
	heap.Push(f, frontierItem{pos: p, cost: cost, priority: priority, seq: f.nextSeq})
	f.nextSeq++
}

func (f *frontier) pop() frontierItem {
	return heap.Pop(f).(frontierItem)
}
