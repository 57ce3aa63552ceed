// sim/simulator.go
package sim

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dronesim/dronesim/sim/ledger"
	"github.com/dronesim/dronesim/sim/trace"
)

// Simulator is the tick orchestrator. It owns the grid, hospitals, drones and
// obstacles and is the only code that mutates them; every method except
// Submit, Snapshot and View must be called from the goroutine driving Step.
type Simulator struct {
	cfg Config
	rng *PartitionedRNG

	Grid      *Grid
	Registry  *HospitalRegistry
	Obstacles *ObstacleSimulator
	Planner   *PathPlanner
	Scheduler *AgentScheduler
	State     *SimulationState
	// Trace records admission and replan decisions; nil-safe when disabled.
	Trace *trace.SimulationTrace

	admission AdmissionPolicy
	ledger    ledger.Store

	requests chan *DeliveryRequest
	outcomes Mailbox[RequestOutcome]
	commands Mailbox[Command]
	view     atomic.Pointer[RegistryView]
	snapshot atomic.Pointer[Snapshot]
	hooks    []func(*Snapshot)

	baseCtx    context.Context
	baseCancel context.CancelFunc
	genCancel  context.CancelFunc
	genWG      sync.WaitGroup
}

// NewSimulator creates an edit-mode simulator. store may be nil, which
// disables the ledger. Panics if cfg fails validation.
func NewSimulator(cfg Config, store ledger.Store) *Simulator {
	if err := cfg.Validate(); err != nil {
		panic("NewSimulator: " + err.Error())
	}
	rng := NewPartitionedRNG(NewSimulationKey(cfg.Seed))
	grid := NewGrid(cfg.GridSize)
	registry := NewHospitalRegistry(grid, rng.ForSubsystem(SubsystemRegistry), rng.ForSubsystem(SubsystemNeeds), cfg.NeedChurnProb)
	obstacles := NewObstacleSimulator(grid, rng.ForSubsystem(SubsystemObstacles), cfg.ObstacleCap, cfg.ObstacleBatch, cfg.ObstacleTurnProb)
	planner := NewPathPlanner(grid, obstacles)
	state := NewSimulationState(cfg)

	s := &Simulator{
		cfg:       cfg,
		rng:       rng,
		Grid:      grid,
		Registry:  registry,
		Obstacles: obstacles,
		Planner:   planner,
		Scheduler: NewAgentScheduler(grid, registry, planner, &state.Counters),
		State:     state,
		Trace:     trace.NewSimulationTrace(trace.TraceLevel(cfg.Trace.Level)),
		admission: NewAdmissionPolicy(cfg.AdmissionPolicy),
		ledger:    store,
		requests:  make(chan *DeliveryRequest, cfg.Generator.Buffer),
	}
	s.baseCtx, s.baseCancel = context.WithCancel(context.Background())
	s.Scheduler.OnReplan = s.recordReplan
	s.Scheduler.OnComplete = s.notifyCompleted
	s.publish()
	return s
}

// Config returns the configuration the simulator was built with.
func (s *Simulator) Config() Config {
	return s.cfg
}

// AddSnapshotHook registers fn to receive every published snapshot. Hooks run
// on the orchestrator goroutine and must not block. Register before Run.
func (s *Simulator) AddSnapshotHook(fn func(*Snapshot)) {
	s.hooks = append(s.hooks, fn)
}

// Snapshot returns the most recently published snapshot. Safe from any goroutine.
func (s *Simulator) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// View returns the most recently published registry view. Safe from any goroutine.
func (s *Simulator) View() *RegistryView {
	return s.view.Load()
}

// PlaceHospital places a hospital on an empty cell. Edit mode only.
func (s *Simulator) PlaceHospital(pos Position) (*Hospital, error) {
	if err := s.checkPlacement(pos); err != nil {
		return nil, err
	}
	h := s.Registry.Place(pos)
	s.Obstacles.Refresh(pos)
	return h, nil
}

// PlaceBuilding marks an empty cell impassable. Edit mode only.
func (s *Simulator) PlaceBuilding(pos Position) error {
	if err := s.checkPlacement(pos); err != nil {
		return err
	}
	s.Grid.SetKind(pos, CellBuilding)
	s.Obstacles.Refresh(pos)
	return nil
}

func (s *Simulator) checkPlacement(pos Position) error {
	if s.State.Mode != ModeEdit {
		return ErrNotEditMode
	}
	if !s.Grid.InBounds(pos) {
		return ErrOutOfBounds
	}
	if s.Grid.Kind(pos) != CellEmpty {
		return ErrCellOccupied
	}
	return nil
}

// StartSimulation clears drones and obstacles, re-initializes the ledger,
// seeds the initial obstacles, resets timers and starts the request generator.
func (s *Simulator) StartSimulation() {
	s.stopGenerator()
	s.Scheduler.Clear()
	s.Registry.ResetDrones()
	s.State.Counters.ActiveRoutes = 0
	s.Obstacles.Clear()
	s.Obstacles.Seed(s.cfg.InitialObstacles)
	s.State.Timers.Reset()
	s.resetLedger()
	s.State.Mode = ModeRunning
	s.publish()
	s.startGenerator()
	logrus.Infof("[tick %07d] Simulation started: %d hospitals, %d buildings, %d obstacles",
		s.State.Tick, s.Registry.Len(), s.Grid.Count(CellBuilding), s.Obstacles.Len())
}

// StopSimulation returns to edit mode and halts auto-deploy. Drones and
// obstacles stay where they are.
func (s *Simulator) StopSimulation() {
	s.stopGenerator()
	s.State.Mode = ModeEdit
	s.State.AutoDeploy = false
	s.publish()
	logrus.Infof("[tick %07d] Simulation stopped", s.State.Tick)
}

// ClearSimulation resets the world: grid, hospitals, drones, obstacles,
// counters and the ledger.
func (s *Simulator) ClearSimulation() {
	s.stopGenerator()
	s.Grid.Reset()
	s.Registry.Clear()
	s.Scheduler.Clear()
	s.Obstacles.Clear()
	s.State.Counters = Counters{}
	s.State.Mode = ModeEdit
	s.State.AutoDeploy = false
	s.State.Timers.Reset()
	s.Trace.Reset()
	s.resetLedger()
	s.publish()
	logrus.Infof("[tick %07d] Simulation cleared", s.State.Tick)
}

// SetAutoDeploy toggles periodic dispatch.
func (s *Simulator) SetAutoDeploy(enabled bool) {
	if enabled && !s.State.AutoDeploy {
		s.State.Timers.Deploy.Reset()
	}
	s.State.AutoDeploy = enabled
}

// SetDeployCount sets the number of dispatch attempts per auto-deploy firing,
// clamped to [1,5].
func (s *Simulator) SetDeployCount(n int) {
	s.State.DeployCount = max(1, min(5, n))
}

// ManualDeploy makes one dispatch attempt. Requires a running simulation with
// auto-deploy off. Finding no eligible pair is not an error.
func (s *Simulator) ManualDeploy() error {
	if s.State.Mode != ModeRunning {
		return ErrNotRunning
	}
	if s.State.AutoDeploy {
		return ErrAutoDeployActive
	}
	s.deployOnce(SourceManual)
	return nil
}

// Step advances the simulation by one tick. Queued commands are applied
// first; the world only moves while running.
func (s *Simulator) Step() {
	for _, cmd := range s.commands.Drain() {
		if err := s.Apply(cmd); err != nil {
			logrus.Debugf("[tick %07d] command %v rejected: %v", s.State.Tick, cmd, err)
		}
	}
	if s.State.Mode == ModeRunning {
		s.State.Tick++
		s.stepObstacles()
		s.stepDrones()
		s.ingestRequests()
		s.stepAutoDeploy()
		s.stepChurn()
	}
	s.publish()
}

// Run steps at cfg.TickRate until ctx is cancelled or, when maxTicks > 0,
// until maxTicks steps have run.
func (s *Simulator) Run(ctx context.Context, maxTicks int64) {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.TickRate))
	defer ticker.Stop()
	var steps int64
	for maxTicks <= 0 || steps < maxTicks {
		select {
		case <-ctx.Done():
			logrus.Infof("[tick %07d] Run interrupted after %d steps", s.State.Tick, steps)
			return
		case <-ticker.C:
		}
		s.Step()
		steps++
	}
	logrus.Infof("[tick %07d] Run finished after %d steps", s.State.Tick, steps)
}

// Close stops the generator and closes the ledger.
func (s *Simulator) Close() error {
	s.stopGenerator()
	s.baseCancel()
	if s.ledger == nil {
		return nil
	}
	return s.ledger.Close()
}

func (s *Simulator) stepObstacles() {
	if s.State.Timers.ObstacleSpawn.Tick() {
		if n := s.Obstacles.SpawnBatch(); n > 0 {
			logrus.Debugf("[tick %07d] spawned %d obstacles (%d live)", s.State.Tick, n, s.Obstacles.Len())
		}
	}
	if s.State.Timers.ObstacleMove.Tick() {
		s.Obstacles.Move()
	}
}

func (s *Simulator) stepDrones() {
	if !s.State.Timers.DroneMove.Tick() {
		return
	}
	s.Scheduler.MoveAll()
}

// ingestRequests drains the request channel without blocking and admits or
// rejects each request.
func (s *Simulator) ingestRequests() {
	for {
		select {
		case req := <-s.requests:
			s.admit(req)
		default:
			return
		}
	}
}

func (s *Simulator) admit(req *DeliveryRequest) {
	var ok bool
	var reason string
	if s.Scheduler.HasRequest(req.ID) {
		ok, reason = false, "duplicate request"
	} else {
		ok, reason = s.admission.Admit(req, s.Registry)
	}
	if ok {
		origin, dest := s.Registry.Get(req.OriginID), s.Registry.Get(req.DestinationID)
		if _, err := s.Scheduler.Dispatch(origin, dest, req.Supply, req.ID); err != nil {
			ok, reason = false, err.Error()
		}
	}
	s.recordDispatch(req.ID, req.Source, DispatchChoice{OriginID: req.OriginID, DestinationID: req.DestinationID, Supply: req.Supply}, ok, reason)

	outcome := RequestOutcome{Kind: OutcomeAdmitted, Tick: s.State.Tick}
	if ok {
		req.Status = StatusActive
	} else {
		outcome.Kind = OutcomeRejected
		outcome.Reason = reason
		logrus.Debugf("[tick %07d] rejected %s: %s", s.State.Tick, req.ID, reason)
	}
	outcome.Request = *req
	s.outcomes.Push(outcome)
}

func (s *Simulator) stepAutoDeploy() {
	if !s.State.AutoDeploy || !s.State.Timers.Deploy.Tick() {
		return
	}
	for i, n := 0, s.State.DeployCount; i < n; i++ {
		s.deployOnce(SourceAuto)
	}
}

// deployOnce applies the dispatch policy to live state and creates at most
// one drone.
func (s *Simulator) deployOnce(source RequestSource) {
	choice, ok := SelectDispatch(s.Registry.View(), s.rng.ForSubsystem(SubsystemDispatch))
	if !ok {
		return
	}
	origin, dest := s.Registry.Get(choice.OriginID), s.Registry.Get(choice.DestinationID)
	_, err := s.Scheduler.Dispatch(origin, dest, choice.Supply, "")
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	s.recordDispatch("", source, choice, err == nil, reason)
}

func (s *Simulator) stepChurn() {
	for _, id := range s.Registry.Churn() {
		s.State.Counters.EmergencyCount++
		logrus.Infof("[tick %07d] hospital %s needs every supply type", s.State.Tick, id)
	}
}

// publish refreshes the registry view and snapshot and runs snapshot hooks.
func (s *Simulator) publish() {
	view := s.Registry.View()
	view.Tick = s.State.Tick
	s.view.Store(view)
	snap := s.takeSnapshot()
	s.snapshot.Store(snap)
	for _, fn := range s.hooks {
		fn(snap)
	}
}

func (s *Simulator) startGenerator() {
	if !s.cfg.Generator.Enabled {
		return
	}
	s.outcomes.Reset()
	ctx, cancel := context.WithCancel(s.baseCtx)
	g := NewRequestGenerator(s.cfg.Generator, s.rng.ForSubsystem(SubsystemGenerator), &s.view, s.requests, &s.outcomes, s.ledger)
	s.genCancel = cancel
	s.genWG.Add(1)
	go func() {
		defer s.genWG.Done()
		g.Run(ctx)
	}()
}

// stopGenerator cancels the generator, waits for it to exit and discards any
// requests it left in the channel.
func (s *Simulator) stopGenerator() {
	if s.genCancel == nil {
		return
	}
	s.genCancel()
	s.genWG.Wait()
	s.genCancel = nil
	for {
		select {
		case <-s.requests:
		default:
			return
		}
	}
}

func (s *Simulator) resetLedger() {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.Reset(); err != nil {
		logrus.Warnf("[tick %07d] ledger reset failed: %v", s.State.Tick, err)
	}
}

func (s *Simulator) notifyCompleted(d *Drone) {
	if d.RequestID == "" {
		return
	}
	s.outcomes.Push(RequestOutcome{
		Kind: OutcomeCompleted,
		Tick: s.State.Tick,
		Request: DeliveryRequest{
			ID:            d.RequestID,
			OriginID:      d.OriginID,
			DestinationID: d.DestinationID,
			Supply:        d.Supply,
			Status:        StatusCompleted,
		},
	})
}

func (s *Simulator) recordDispatch(id string, source RequestSource, choice DispatchChoice, admitted bool, reason string) {
	if !s.Trace.Enabled() {
		return
	}
	s.Trace.RecordDispatch(trace.DispatchRecord{
		RequestID:   id,
		Tick:        s.State.Tick,
		Source:      string(source),
		Origin:      choice.OriginID,
		Destination: choice.DestinationID,
		Supply:      string(choice.Supply),
		Admitted:    admitted,
		Reason:      reason,
	})
}

func (s *Simulator) recordReplan(d *Drone, found bool) {
	if !s.Trace.Enabled() {
		return
	}
	s.Trace.RecordReplan(trace.ReplanRecord{
		DroneID: d.ID,
		Tick:    s.State.Tick,
		Found:   found,
		PathLen: len(d.Path),
	})
}

// OpenLedger opens the store selected by cfg. Backend "none" returns a nil store.
func OpenLedger(cfg LedgerConfig) (ledger.Store, error) {
	if cfg.Backend == "none" {
		return nil, nil
	}
	if cfg.Path == "" {
		return nil, errors.New("ledger path is empty")
	}
	return ledger.Open(cfg.Backend, cfg.Path)
}
