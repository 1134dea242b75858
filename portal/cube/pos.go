package cube

import (
	"fmt"
	"iter"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Pos holds the position of a block. The position is represented of an array with an x, y and z value,
// where the y value is positive.
type Pos [3]int

// String converts the Pos to a string in the format (1,2,3) and returns it.
func (p Pos) String() string {
	return fmt.Sprintf("(%v,%v,%v)", p[0], p[1], p[2])
}

// X returns the X coordinate of the block position.
func (p Pos) X() int {
	return p[0]
}

// Y returns the Y coordinate of the block position.
func (p Pos) Y() int {
	return p[1]
}

// Z returns the Z coordinate of the block position.
func (p Pos) Z() int {
	return p[2]
}

// Add adds two block positions together and returns a new one with the combined values.
func (p Pos) Add(pos Pos) Pos {
	return Pos{p[0] + pos[0], p[1] + pos[1], p[2] + pos[2]}
}

// Sub subtracts pos from p and returns a new one with the subtracted values.
func (p Pos) Sub(pos Pos) Pos {
	return Pos{p[0] - pos[0], p[1] - pos[1], p[2] - pos[2]}
}

// Vec3 returns a vec3 holding the same coordinates as the block position.
func (p Pos) Vec3() mgl64.Vec3 {
	return mgl64.Vec3{float64(p[0]), float64(p[1]), float64(p[2])}
}

// Vec3Centre returns a Vec3 holding the coordinates of the block position with 0.5 added on both horizontal
// axes and the vertical axis.
func (p Pos) Vec3Centre() mgl64.Vec3 {
	return mgl64.Vec3{float64(p[0]) + 0.5, float64(p[1]) + 0.5, float64(p[2]) + 0.5}
}

// Within returns a sequence over every position in the cube of the radius passed around p, p included. The
// positions are yielded with x ascending first, then y, then z, so that the first match of a scan is
// deterministic. A negative radius yields nothing.
func (p Pos) Within(radius int) iter.Seq[Pos] {
	return func(yield func(Pos) bool) {
		if radius < 0 {
			return
		}
		for x := -radius; x <= radius; x++ {
			for y := -radius; y <= radius; y++ {
				for z := -radius; z <= radius; z++ {
					if !yield(Pos{p[0] + x, p[1] + y, p[2] + z}) {
						return
					}
				}
			}
		}
	}
}

// PosFromVec3 returns a block position by a Vec3, rounding the values down adequately. Non-finite
// coordinates are treated as zero.
func PosFromVec3(vec3 mgl64.Vec3) Pos {
	return Pos{floor(vec3[0]), floor(vec3[1]), floor(vec3[2])}
}

func floor(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(math.Floor(f))
}
