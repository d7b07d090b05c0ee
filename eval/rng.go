package eval

import (
	"hash/fnv"
	"math/rand"
)

// RunKey uniquely identifies a reproducible evaluation run.
// Two runs with the same RunKey and identical input MUST produce identical
// variation draws.
type RunKey int64

// NewRunKey creates a RunKey from a seed value.
func NewRunKey(seed int64) RunKey {
	return RunKey(seed)
}

// SubsystemWorker returns the RNG subsystem name for a worker's profile
// variation stream.
func SubsystemWorker(worker string) string {
	return "worker_" + worker
}

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation: masterSeed XOR fnv1a64(subsystemName). Draws on one worker's
// stream never shift another worker's sequence.
//
// Thread-safety: NOT thread-safe. Must be called from single goroutine.
type PartitionedRNG struct {
	key        RunKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a RunKey.
func NewPartitionedRNG(key RunKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(int64(p.key) ^ fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

// Key returns the RunKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() RunKey {
	return p.key
}

// UnitDelta draws a uniform value in [-1, 1] on a 0.01 grid from the named
// subsystem.
func (p *PartitionedRNG) UnitDelta(subsystem string) float64 {
	return float64(p.ForSubsystem(subsystem).Intn(201)-100) / 100
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
