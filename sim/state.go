package sim

// Counters are the process-wide delivery statistics, reset on ClearSimulation.
type Counters struct {
	TotalDeliveries int `json:"total_deliveries"`
	ActiveRoutes    int `json:"active_routes"`
	EmergencyCount  int `json:"emergency_count"`
}

// Mode is the simulation's command mode.
type Mode int

const (
	// ModeEdit accepts placement commands; nothing moves.
	ModeEdit Mode = iota
	// ModeRunning advances obstacles, drones and needs each tick.
	ModeRunning
)

func (m Mode) String() string {
	if m == ModeRunning {
		return "running"
	}
	return "edit"
}

// SimulationState holds the mutable orchestrator state that is not owned by a
// component: counters, mode flags, deploy settings and tick timers.
type SimulationState struct {
	Tick        int64
	Mode        Mode
	Counters    Counters
	AutoDeploy  bool
	DeployCount int
	Timers      Timers
}

// NewSimulationState creates edit-mode state for cfg.
func NewSimulationState(cfg Config) *SimulationState {
	return &SimulationState{
		Mode:        ModeEdit,
		DeployCount: 1,
		Timers:      NewTimers(cfg),
	}
}
