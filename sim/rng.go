package sim

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey uniquely identifies a reproducible simulation run.
// Two simulations with the same SimulationKey, configuration and command
// sequence produce identical tick-driven state.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// Subsystem names an independent random stream.
type Subsystem string

const (
	// SubsystemObstacles drives obstacle spawning and direction changes.
	SubsystemObstacles Subsystem = "obstacles"

	// SubsystemRegistry drives hospital specialty/need draws at placement.
	SubsystemRegistry Subsystem = "registry"

	// SubsystemNeeds drives per-tick need churn.
	SubsystemNeeds Subsystem = "needs"

	// SubsystemDispatch drives manual and auto-deploy origin/destination selection.
	SubsystemDispatch Subsystem = "dispatch"

	// SubsystemGenerator drives the background request generator.
	// Its *rand.Rand is handed to the generator goroutine and must not be
	// touched by the orchestrator while the generator is running.
	SubsystemGenerator Subsystem = "generator"
)

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula: masterSeed XOR fnv1a64(subsystemName), so adding draws in
// one subsystem never perturbs the stream of another.
//
// Thread-safety: NOT thread-safe. Must be called from the orchestrator goroutine.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[Subsystem]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[Subsystem]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name Subsystem) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(int64(p.key) ^ fnv1a64(string(name))))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
