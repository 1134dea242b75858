// Package knockback computes the velocity applied to subjects pushed back from a portal they may not use.
package knockback

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/df-mc/portalguard/portal/world"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// DefaultStrength replaces a non-finite strength.
	DefaultStrength = 1.0
	// DefaultHeight replaces a non-finite height.
	DefaultHeight = 0.5

	minDirectionSq  = 0.001
	minHorizontal   = 0.001
	verticalDamping = 0.2
	heightFloor     = 0.3
)

// defaultDirection is used when the subject is at the portal position.
var defaultDirection = mgl64.Vec3{0, 0, 1}

// Calculator computes knockback vectors. The zero value is not usable, use New or Default.
type Calculator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Calculator drawing random horizontal directions from the source passed.
func New(src rand.Source) *Calculator {
	return &Calculator{rng: rand.New(src)}
}

var def = New(rand.NewPCG(rand.Uint64(), rand.Uint64()))

// Default returns the Calculator used by Calculate.
func Default() *Calculator {
	return def
}

// Calculate computes knockback using the default Calculator. See Calculator.Calculate.
func Calculate(subject, portal mgl64.Vec3, target world.Dimension, strength, height float64) mgl64.Vec3 {
	return def.Calculate(subject, portal, target, strength, height)
}

// Calculate computes the velocity pushing a subject at the subject position away from a portal at the
// portal position. The direction is mostly horizontal and scaled by strength, with an upward component of at
// least height*0.3. Portals leading to the Nether or End push harder. Non-finite strength and height are
// replaced by DefaultStrength and DefaultHeight. A strength and height of zero yield the zero vector. The
// vector returned never holds NaN or infinite values.
func (c *Calculator) Calculate(subject, portal mgl64.Vec3, target world.Dimension, strength, height float64) mgl64.Vec3 {
	if !finite(strength) {
		strength = DefaultStrength
	}
	if !finite(height) {
		height = DefaultHeight
	}
	if strength == 0 && height == 0 {
		return mgl64.Vec3{}
	}

	v := c.direction(subject.Sub(portal)).Mul(strength)
	v[1] = math.Max(v[1], height*heightFloor)

	switch target {
	case world.Nether:
		v = v.Mul(1.2)
		v[1] += height * 0.2
	case world.End:
		v = v.Mul(1.1)
		v[1] += height * 0.4
	default:
		v[1] += height * 0.3
	}
	return sanitise(v)
}

// direction returns the unit direction of the knockback for the offset of the subject from the portal.
func (c *Calculator) direction(dir mgl64.Vec3) mgl64.Vec3 {
	if !finiteVec(dir) || dir.LenSqr() < minDirectionSq {
		return defaultDirection
	}
	dir = dir.Normalize()
	dir[1] *= verticalDamping
	if math.Hypot(dir[0], dir[2]) < minHorizontal {
		angle := c.float64() * 2 * math.Pi
		dir[0], dir[2] = math.Cos(angle), math.Sin(angle)
	}
	return dir.Normalize()
}

func (c *Calculator) float64() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64()
}

func sanitise(v mgl64.Vec3) mgl64.Vec3 {
	for i, f := range v {
		if !finite(f) {
			v[i] = 0
		}
	}
	return v
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func finiteVec(v mgl64.Vec3) bool {
	return finite(v[0]) && finite(v[1]) && finite(v[2])
}
