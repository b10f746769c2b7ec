package interp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolator_StartsAtSpawn(t *testing.T) {
	i := New()
	assert.Equal(t, Point{X: SpawnX, Y: SpawnY}, i.Current())
	// No target movement and no velocity: the estimate stays put.
	assert.Equal(t, Point{X: SpawnX, Y: SpawnY}, i.Update())
}

func TestInterpolator_ConvergesTowardStaticTarget(t *testing.T) {
	i := New()
	i.SetTarget(300, 100, 0, 0)

	prev := math.Hypot(300-SpawnX, 100-SpawnY)
	for n := 0; n < 100; n++ {
		p := i.Update()
		d := math.Hypot(300-p.X, 100-p.Y)
		require.Less(t, d, prev, "frame %d did not move closer", n)
		prev = d
	}
	assert.InDelta(t, 300, i.Current().X, 0.01)
	assert.InDelta(t, 100, i.Current().Y, 0.01)
}

func TestInterpolator_FirstFrameMath(t *testing.T) {
	i := New()
	i.SetTarget(300, 500, 10, -20)
	p := i.Update()
	assert.InDelta(t, 200+100*Smoothing+10*FrameSeconds, p.X, 1e-9)
	assert.InDelta(t, 500-20*FrameSeconds, p.Y, 1e-9)
}

func TestInterpolator_ExtrapolatesWithoutSnapshots(t *testing.T) {
	i := New()
	i.SetTarget(SpawnX, SpawnY, 5, 0)

	// With no new snapshots the estimate keeps being pushed along the last
	// velocity and settles v*dt/Smoothing ahead of the target.
	var last Point
	for n := 0; n < 500; n++ {
		last = i.Update()
	}
	next := i.Update()
	assert.Greater(t, next.X, float64(SpawnX))
	// Steady state: offset o satisfies o = o*(1-s) + v*dt.
	steady := 5 * FrameSeconds / Smoothing
	assert.InDelta(t, SpawnX+steady, next.X, 1e-6)
	assert.InDelta(t, last.X, next.X, 1e-6)
	assert.Equal(t, float64(SpawnY), next.Y)
}

func TestInterpolator_Reset(t *testing.T) {
	i := New()
	i.SetTarget(10, 20, 3, 4)
	i.Update()
	i.Reset()
	assert.Equal(t, Point{X: SpawnX, Y: SpawnY}, i.Current())
	assert.Equal(t, Point{X: SpawnX, Y: SpawnY}, i.Update())
}
