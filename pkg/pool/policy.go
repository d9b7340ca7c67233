package pool

import "math"

// Policy decides how far a pool's capacity should move.
// Implementations must be pure functions of their inputs.
type Policy interface {
	CapacityChange(running, pending, backlog int) int
}

// PolicyFunc adapts a function to the Policy interface
type PolicyFunc func(running, pending, backlog int) int

// CapacityChange calls f
func (f PolicyFunc) CapacityChange(running, pending, backlog int) int {
	return f(running, pending, backlog)
}

// RatioPolicy sizes in-flight capacity to a fraction of the backlog, bounded
// by the pool's minimum and maximum capacity.
type RatioPolicy struct {
	MinCapacity  int
	MaxCapacity  int
	ScalingRatio float64
}

// CapacityChange implements Policy
func (r RatioPolicy) CapacityChange(running, pending, backlog int) int {
	capacity := running + pending

	// Pending capacity already covers part of the backlog
	change := int(math.Ceil(float64(backlog)*r.ScalingRatio)) - pending

	if capacity+change > r.MaxCapacity {
		change = r.MaxCapacity - capacity
	}
	if capacity+change < r.MinCapacity {
		change = r.MinCapacity - capacity
	}

	return change
}
