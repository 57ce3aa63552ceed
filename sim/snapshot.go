package sim

// Snapshot is a deep copy of the simulation state, taken once per tick. It
// shares no memory with the live simulation and is safe to read from any
// goroutine.
type Snapshot struct {
	Tick        int64              `json:"tick"`
	Mode        string             `json:"mode"`
	GridSize    int                `json:"grid_size"`
	Cells       []CellKind         `json:"cells"` // row-major, index y*grid_size + x
	Hospitals   []HospitalSnapshot `json:"hospitals"`
	Drones      []DroneSnapshot    `json:"drones"`
	Obstacles   []ObstacleSnapshot `json:"obstacles"`
	Counters    Counters           `json:"counters"`
	AutoDeploy  bool               `json:"auto_deploy"`
	DeployCount int                `json:"deploy_count"`
}

// HospitalSnapshot is the per-hospital part of a Snapshot.
type HospitalSnapshot struct {
	ID           string             `json:"id"`
	Pos          Position           `json:"pos"`
	Specialties  map[SupplyType]int `json:"specialties"`
	Needs        []SupplyType       `json:"needs"`
	ActiveDrones int                `json:"active_drones"`
}

// DroneSnapshot is the per-drone part of a Snapshot.
type DroneSnapshot struct {
	ID            string     `json:"id"`
	RequestID     string     `json:"request_id,omitempty"`
	Pos           Position   `json:"pos"`
	OriginID      string     `json:"origin"`
	DestinationID string     `json:"destination"`
	Supply        SupplyType `json:"supply"`
	Path          []Position `json:"path"`
	Trail         []Position `json:"trail"`
}

// ObstacleSnapshot is the per-obstacle part of a Snapshot.
type ObstacleSnapshot struct {
	Pos         Position   `json:"pos"`
	Dir         Direction  `json:"dir"`
	Transparent bool       `json:"transparent"`
	Trail       []Position `json:"trail"`
}

// HospitalByID returns the snapshot of hospital id, or nil.
func (s *Snapshot) HospitalByID(id string) *HospitalSnapshot {
	for i := range s.Hospitals {
		if s.Hospitals[i].ID == id {
			return &s.Hospitals[i]
		}
	}
	return nil
}

func clonePositions(ps []Position) []Position {
	out := make([]Position, len(ps))
	copy(out, ps)
	return out
}

// takeSnapshot builds a Snapshot of the current state. Orchestrator goroutine only.
func (s *Simulator) takeSnapshot() *Snapshot {
	snap := &Snapshot{
		Tick:        s.State.Tick,
		Mode:        s.State.Mode.String(),
		GridSize:    s.Grid.Size(),
		Cells:       s.Grid.Cells(),
		Hospitals:   make([]HospitalSnapshot, 0, s.Registry.Len()),
		Drones:      make([]DroneSnapshot, 0, s.Scheduler.Len()),
		Obstacles:   make([]ObstacleSnapshot, 0, s.Obstacles.Len()),
		Counters:    s.State.Counters,
		AutoDeploy:  s.State.AutoDeploy,
		DeployCount: s.State.DeployCount,
	}
	for _, h := range s.Registry.All() {
		specialties := make(map[SupplyType]int, len(h.Specialties))
		for k, v := range h.Specialties {
			specialties[k] = v
		}
		snap.Hospitals = append(snap.Hospitals, HospitalSnapshot{
			ID:           h.ID,
			Pos:          h.Pos,
			Specialties:  specialties,
			Needs:        h.SortedNeeds(),
			ActiveDrones: h.ActiveDrones,
		})
	}
	for _, d := range s.Scheduler.Drones() {
		snap.Drones = append(snap.Drones, DroneSnapshot{
			ID:            d.ID,
			RequestID:     d.RequestID,
			Pos:           d.Pos,
			OriginID:      d.OriginID,
			DestinationID: d.DestinationID,
			Supply:        d.Supply,
			Path:          clonePositions(d.Path),
			Trail:         clonePositions(d.Trail),
		})
	}
	for _, o := range s.Obstacles.Obstacles() {
		snap.Obstacles = append(snap.Obstacles, ObstacleSnapshot{
			Pos:         o.Pos,
			Dir:         o.Dir,
			Transparent: o.Transparent,
			Trail:       clonePositions(o.Trail),
		})
	}
	return snap
}
