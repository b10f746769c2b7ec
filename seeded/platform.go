package seeded

import "math"

const (
	PlatformHeight = 15
	FloorHeight    = 80
	GroundHeight   = 30

	initialPlatforms = 20
	minRawWidth      = 80
	maxRawWidth      = 150
	minWidth         = 60
	edgeMargin       = 10
)

type Platform struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Index  int     `json:"index"`
	Ground bool    `json:"ground,omitempty"`
}

// GeneratePlatform draws the next platform at height y. It consumes exactly
// two values from seq, so peers stay in lockstep as long as they generate the
// same platforms in the same order.
func GeneratePlatform(seq *Sequence, y float64, index int, screenWidth int) Platform {
	width := float64(seq.NextInt(minRawWidth, maxRawWidth))
	x := float64(seq.NextInt(edgeMargin, screenWidth-int(width)-edgeMargin))

	// Platforms narrow as the tower climbs.
	factor := math.Max(0.5, 1-float64(index)*0.005)
	width = math.Max(minWidth, width*factor)

	return Platform{
		X:      x,
		Y:      y,
		Width:  width,
		Height: PlatformHeight,
		Index:  index,
	}
}

// Tower is the shared level of an online game.
type Tower struct {
	seq       *Sequence
	width     int
	Platforms []Platform
}

// NewTower lays the ground and the first platforms for a screen of the given
// size.
func NewTower(seed int64, width, height int) *Tower {
	t := &Tower{
		seq:   New(seed),
		width: width,
	}
	ground := float64(height - GroundHeight)
	t.Platforms = append(t.Platforms, Platform{
		X:      0,
		Y:      ground,
		Width:  float64(width),
		Height: GroundHeight,
		Ground: true,
	})
	for i := 1; i <= initialPlatforms; i++ {
		y := ground - float64(i*FloorHeight)
		t.Platforms = append(t.Platforms, GeneratePlatform(t.seq, y, i, width))
	}
	return t
}

// Extend appends one platform above the current top and returns it.
func (t *Tower) Extend() Platform {
	top := t.Platforms[len(t.Platforms)-1]
	p := GeneratePlatform(t.seq, top.Y-FloorHeight, len(t.Platforms), t.width)
	t.Platforms = append(t.Platforms, p)
	return p
}
