package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// AgentScheduler owns the drone population: dispatch, per-tick movement,
// replanning around obstacles, and delivery completion.
type AgentScheduler struct {
	grid     *Grid
	registry *HospitalRegistry
	planner  *PathPlanner
	counters *Counters
	drones   []*Drone
	nextID   int

	// OnReplan is called after every replan attempt (nil-safe).
	OnReplan func(d *Drone, found bool)
	// OnComplete is called after a drone has delivered and been removed (nil-safe).
	OnComplete func(d *Drone)
}

// NewAgentScheduler creates a scheduler with no drones. counters is shared with
// the orchestrator's SimulationState.
func NewAgentScheduler(grid *Grid, registry *HospitalRegistry, planner *PathPlanner, counters *Counters) *AgentScheduler {
	return &AgentScheduler{
		grid:     grid,
		registry: registry,
		planner:  planner,
		counters: counters,
		nextID:   1,
	}
}

// Drones returns the live drones in dispatch order. Callers must not mutate the slice.
func (s *AgentScheduler) Drones() []*Drone {
	return s.drones
}

// Len returns the number of live drones.
func (s *AgentScheduler) Len() int {
	return len(s.drones)
}

// HasRequest reports whether a live drone was admitted from requestID.
func (s *AgentScheduler) HasRequest(requestID string) bool {
	if requestID == "" {
		return false
	}
	for _, d := range s.drones {
		if d.RequestID == requestID {
			return true
		}
	}
	return false
}

// Clear destroys every drone without completing it and restarts drone ids.
// Hospital drone counts and the active-route counter are left to the caller.
func (s *AgentScheduler) Clear() {
	s.drones = nil
	s.nextID = 1
}

// Dispatch creates a drone from origin to dest carrying supply. The caller is
// responsible for admission; Dispatch only enforces the hard cap so that
// ActiveDrones can never exceed MaxActiveDrones.
func (s *AgentScheduler) Dispatch(origin, dest *Hospital, supply SupplyType, requestID string) (*Drone, error) {
	if origin.ActiveDrones >= MaxActiveDrones {
		return nil, fmt.Errorf("hospital %s already has %d active drones", origin.ID, origin.ActiveDrones)
	}
	d := &Drone{
		ID:            fmt.Sprintf("D%d", s.nextID),
		RequestID:     requestID,
		Pos:           origin.Pos,
		OriginID:      origin.ID,
		DestinationID: dest.ID,
		Destination:   dest.Pos,
		Supply:        supply,
		State:         DroneTraveling,
		Path:          s.planner.FindPath(origin.Pos, dest.Pos),
	}
	s.nextID++
	origin.ActiveDrones++
	s.counters.ActiveRoutes++
	s.drones = append(s.drones, d)
	logrus.Debugf("dispatched %v path=%d", d, len(d.Path))
	return d, nil
}

// MoveAll performs one movement tick for every drone. Returns the drones
// delivered during this tick (already removed).
func (s *AgentScheduler) MoveAll() []*Drone {
	var delivered []*Drone
	kept := s.drones[:0]
	for _, d := range s.drones {
		s.moveOne(d)
		if d.AtDestination() {
			s.complete(d)
			delivered = append(delivered, d)
			continue
		}
		kept = append(kept, d)
	}
	clear(s.drones[len(kept):])
	s.drones = kept
	return delivered
}

// moveOne advances d by at most one cell.
func (s *AgentScheduler) moveOne(d *Drone) {
	if len(d.Path) == 0 {
		if !d.AtDestination() {
			// Stalled: the initial plan (or a previous replan) found no route.
			s.replan(d)
		}
		return
	}

	next := d.Path[0]
	if s.planner.obstacles.Proximity(next) > 0 || !s.grid.Passable(next) {
		s.replan(d)
		return
	}

	d.pushTrail(d.Pos)
	d.Pos = d.Pos.Step(clampUnit(next.X-d.Pos.X), clampUnit(next.Y-d.Pos.Y))
	if d.Pos == next {
		d.Path = d.Path[1:]
	}
}

// replan recomputes d's path from its current position. The old path is kept
// when no route exists.
func (s *AgentScheduler) replan(d *Drone) {
	path := s.planner.FindPath(d.Pos, d.Destination)
	found := len(path) > 0
	if found {
		d.Path = path
		d.Replans++
	}
	if s.OnReplan != nil {
		s.OnReplan(d, found)
	}
}

// complete applies delivery bookkeeping for d.
func (s *AgentScheduler) complete(d *Drone) {
	d.State = DroneDelivered
	s.counters.TotalDeliveries++
	s.counters.ActiveRoutes--
	if origin := s.registry.Get(d.OriginID); origin != nil && origin.ActiveDrones > 0 {
		origin.ActiveDrones--
	}
	s.registry.Fulfill(d.DestinationID, d.Supply)
	logrus.Debugf("delivered %s: %s -> %s (%s)", d.ID, d.OriginID, d.DestinationID, d.Supply)
	if s.OnComplete != nil {
		s.OnComplete(d)
	}
}
