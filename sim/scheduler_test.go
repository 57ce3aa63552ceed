package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type schedulerFixture struct {
	grid      *Grid
	registry  *HospitalRegistry
	obstacles *ObstacleSimulator
	counters  *Counters
	sched     *AgentScheduler
}

func newSchedulerFixture(n int) *schedulerFixture {
	f := &schedulerFixture{grid: NewGrid(n), counters: &Counters{}}
	f.registry = NewHospitalRegistry(f.grid, rand.New(rand.NewSource(1)), rand.New(rand.NewSource(2)), 0)
	f.obstacles = NewObstacleSimulator(f.grid, rand.New(rand.NewSource(3)), 200, 3, 0)
	f.sched = NewAgentScheduler(f.grid, f.registry, NewPathPlanner(f.grid, f.obstacles), f.counters)
	return f
}

func TestAgentScheduler_Dispatch(t *testing.T) {
	// GIVEN two hospitals on a diagonal
	f := newSchedulerFixture(10)
	h1 := f.registry.Place(Position{0, 0})
	h2 := f.registry.Place(Position{4, 4})

	// WHEN a drone is dispatched
	d, err := f.sched.Dispatch(h1, h2, SupplyBlood, "req-1")

	// THEN it starts at the origin with a planned path and counters move
	require.NoError(t, err)
	assert.Equal(t, "D1", d.ID)
	assert.Equal(t, Position{0, 0}, d.Pos)
	assert.Equal(t, []Position{{1, 1}, {2, 2}, {3, 3}, {4, 4}}, d.Path)
	assert.Equal(t, DroneTraveling, d.State)
	assert.Equal(t, 1, h1.ActiveDrones)
	assert.Equal(t, 1, f.counters.ActiveRoutes)
	assert.True(t, f.sched.HasRequest("req-1"))
	assert.False(t, f.sched.HasRequest("req-2"))
	assert.False(t, f.sched.HasRequest(""))
}

func TestAgentScheduler_Dispatch_CapEnforced(t *testing.T) {
	f := newSchedulerFixture(10)
	h1 := f.registry.Place(Position{0, 0})
	h2 := f.registry.Place(Position{4, 4})
	for rep, reps := 0, MaxActiveDrones; rep < reps; rep++ {
		_, err := f.sched.Dispatch(h1, h2, SupplyBlood, "")
		require.NoError(t, err)
	}

	_, err := f.sched.Dispatch(h1, h2, SupplyBlood, "")

	assert.Error(t, err)
	assert.Equal(t, MaxActiveDrones, h1.ActiveDrones)
	assert.Equal(t, MaxActiveDrones, f.counters.ActiveRoutes)
	assert.Equal(t, MaxActiveDrones, f.sched.Len())
}

func TestAgentScheduler_MoveAll_CompletesDelivery(t *testing.T) {
	// GIVEN a drone carrying a supply the destination needs
	f := newSchedulerFixture(10)
	h1 := f.registry.Place(Position{0, 0})
	h2 := f.registry.Place(Position{4, 4})
	h2.Needs = needs(SupplyBlood, SupplyMedical)
	var completed []*Drone
	f.sched.OnComplete = func(d *Drone) { completed = append(completed, d) }
	_, err := f.sched.Dispatch(h1, h2, SupplyBlood, "")
	require.NoError(t, err)

	// WHEN it moves one cell per call
	for i := 1; i <= 3; i++ {
		assert.Empty(t, f.sched.MoveAll(), "delivered early on move %d", i)
	}
	delivered := f.sched.MoveAll()

	// THEN the fourth move lands on the destination and bookkeeping is applied
	require.Len(t, delivered, 1)
	assert.Equal(t, DroneDelivered, delivered[0].State)
	assert.Equal(t, []Position{{0, 0}, {1, 1}, {2, 2}, {3, 3}}, delivered[0].Trail)
	assert.Equal(t, completed, delivered)
	assert.Equal(t, 0, f.sched.Len())
	assert.Equal(t, 1, f.counters.TotalDeliveries)
	assert.Equal(t, 0, f.counters.ActiveRoutes)
	assert.Equal(t, 0, h1.ActiveDrones)
	assert.Equal(t, []SupplyType{SupplyMedical}, h2.SortedNeeds())
}

func TestAgentScheduler_MoveAll_ReplansAroundObstacle(t *testing.T) {
	// GIVEN a drone with a straight route along row 10
	f := newSchedulerFixture(20)
	h1 := f.registry.Place(Position{0, 10})
	h2 := f.registry.Place(Position{12, 10})
	var replans []bool
	f.sched.OnReplan = func(d *Drone, found bool) { replans = append(replans, found) }
	d, err := f.sched.Dispatch(h1, h2, SupplyBlood, "")
	require.NoError(t, err)
	require.Len(t, d.Path, 12)
	require.Equal(t, Position{1, 10}, d.Path[0])

	// WHEN an obstacle appears near its next waypoint
	f.obstacles.Add(Position{3, 10}, DirUp)
	f.sched.MoveAll()

	// THEN the drone replans in place instead of moving
	want := []Position{
		{0, 11}, {0, 12}, {1, 13}, {2, 13}, {3, 13}, {4, 13}, {5, 13},
		{6, 12}, {7, 11}, {8, 10}, {9, 10}, {10, 10}, {11, 10}, {12, 10},
	}
	assert.Equal(t, Position{0, 10}, d.Pos)
	assert.Equal(t, want, d.Path)
	assert.Equal(t, 1, d.Replans)
	assert.Equal(t, []bool{true}, replans)

	// AND the next move follows the new path
	f.sched.MoveAll()
	assert.Equal(t, Position{0, 11}, d.Pos)
}

func TestAgentScheduler_MoveAll_StalledDroneReplans(t *testing.T) {
	// GIVEN a wall that separates the hospitals
	f := newSchedulerFixture(5)
	h1 := f.registry.Place(Position{0, 2})
	h2 := f.registry.Place(Position{4, 2})
	for y := 0; y < 5; y++ {
		f.grid.SetKind(Position{2, y}, CellBuilding)
	}
	var replans []bool
	f.sched.OnReplan = func(d *Drone, found bool) { replans = append(replans, found) }
	d, err := f.sched.Dispatch(h1, h2, SupplyBlood, "")
	require.NoError(t, err)
	require.Empty(t, d.Path)

	// WHEN moving while blocked
	f.sched.MoveAll()

	// THEN the drone waits and the failed replan is reported
	assert.Equal(t, Position{0, 2}, d.Pos)
	assert.Equal(t, 0, d.Replans)
	assert.Equal(t, []bool{false}, replans)

	// WHEN the wall opens
	f.grid.SetKind(Position{2, 2}, CellEmpty)
	f.sched.MoveAll()

	// THEN the drone picks up a route
	assert.Equal(t, 1, d.Replans)
	assert.Equal(t, []bool{false, true}, replans)
	assert.Equal(t, []Position{{1, 2}, {2, 2}, {3, 2}, {4, 2}}, d.Path)
}

func TestAgentScheduler_ClearRestartsIDs(t *testing.T) {
	f := newSchedulerFixture(10)
	h1 := f.registry.Place(Position{0, 0})
	h2 := f.registry.Place(Position{4, 4})
	_, err := f.sched.Dispatch(h1, h2, SupplyBlood, "")
	require.NoError(t, err)

	f.sched.Clear()
	h1.ActiveDrones = 0
	d, err := f.sched.Dispatch(h1, h2, SupplyBlood, "")

	require.NoError(t, err)
	assert.Equal(t, 1, f.sched.Len())
	assert.Equal(t, "D1", d.ID)
}
