// Package interp smooths a remote player's sparse position snapshots into a
// per-frame position.
package interp

import "sync"

const (
	// Smoothing is the fraction of the remaining distance covered per frame.
	Smoothing = 0.15
	// FrameSeconds is the assumed frame duration used for dead reckoning.
	FrameSeconds = 0.016

	SpawnX = 200
	SpawnY = 500
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Interpolator is safe for concurrent use: snapshots usually arrive on a
// store goroutine while frames run on the game loop.
type Interpolator struct {
	mu sync.Mutex

	targetX, targetY   float64
	targetVx, targetVy float64
	current            Point
}

func New() *Interpolator {
	i := &Interpolator{}
	i.Reset()
	return i
}

// SetTarget records the latest remote snapshot.
func (i *Interpolator) SetTarget(x, y, vx, vy float64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.targetX, i.targetY = x, y
	i.targetVx, i.targetVy = vx, vy
}

// Update advances the estimate by one frame: exponential smoothing toward the
// target followed by extrapolation along the target velocity. Without new
// targets the estimate keeps drifting along the last known velocity.
func (i *Interpolator) Update() Point {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.current.X += (i.targetX - i.current.X) * Smoothing
	i.current.Y += (i.targetY - i.current.Y) * Smoothing

	i.current.X += i.targetVx * FrameSeconds
	i.current.Y += i.targetVy * FrameSeconds
	return i.current
}

// Current returns the last estimate without advancing it.
func (i *Interpolator) Current() Point {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.current
}

// Reset puts target and estimate back at the spawn point with no velocity.
func (i *Interpolator) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.targetX, i.targetY = SpawnX, SpawnY
	i.targetVx, i.targetVy = 0, 0
	i.current = Point{X: SpawnX, Y: SpawnY}
}
