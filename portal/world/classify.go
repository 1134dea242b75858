package world

import "github.com/df-mc/portalguard/portal/cube"

// Classification is the result of classifying a portal block. Kind is what permissions and block settings
// are keyed by and never depends on the direction the portal currently leads. Target is the dimension the
// portal leads to from the dimension it was sampled in, or NoDimension if it cannot be determined.
type Classification struct {
	Kind   Kind
	Target Dimension
}

// Classify classifies the material passed, sampled while in the current dimension. Nether portals lead to
// the Nether, or back to the Overworld when used from within the Nether. End portals and gateways lead to the
// End, or back to the Overworld from within the End. Any other material classifies as KindCustom with an
// unknown target.
func Classify(material string, current Dimension) Classification {
	switch MaterialFamily(material) {
	case FamilyNetherPortal:
		if current == Nether {
			return Classification{Kind: KindNether, Target: Overworld}
		}
		return Classification{Kind: KindNether, Target: Nether}
	case FamilyEndPortal, FamilyEndGateway:
		if current == End {
			return Classification{Kind: KindEnd, Target: Overworld}
		}
		return Classification{Kind: KindEnd, Target: End}
	}
	return Classification{Kind: KindCustom}
}

// ClassifyAround classifies the portal a subject at centre is in. The centre block is checked first. If it
// is not a nether or end portal, the 3x3x3 window around centre is scanned with x ascending first, then y,
// then z, and the first nether or end portal found is classified. The position of the classified block is
// returned. If no portal is found, the classification of the centre block is returned with false.
func ClassifyAround(src BlockSource, centre cube.Pos, current Dimension) (Classification, cube.Pos, bool) {
	if src == nil {
		return Classification{Kind: KindCustom}, centre, false
	}
	material := src.Material(centre)
	if travelFamily(material) {
		return Classify(material, current), centre, true
	}
	for pos := range centre.Within(1) {
		if m := src.Material(pos); travelFamily(m) {
			return Classify(m, current), pos, true
		}
	}
	return Classify(material, current), centre, false
}

// NearPortal reports if any portal family block exists in the cube of the radius passed around centre. A
// radius of 2 checks the 5x5x5 window around the centre. End gateways are not counted.
func NearPortal(src BlockSource, centre cube.Pos, radius int) bool {
	_, ok := NearestPortal(src, centre, radius)
	return ok
}

// NearestPortal returns the position of the portal family block closest to centre within the radius
// passed. Ties are broken by scan order.
func NearestPortal(src BlockSource, centre cube.Pos, radius int) (cube.Pos, bool) {
	if src == nil || radius < 0 {
		return cube.Pos{}, false
	}
	best, bestDist, found := cube.Pos{}, 0, false
	for pos := range centre.Within(radius) {
		if !MaterialFamily(src.Material(pos)).Portal() {
			continue
		}
		if dist := distanceSq(centre, pos); !found || dist < bestDist {
			best, bestDist, found = pos, dist, true
			if dist == 0 {
				break
			}
		}
	}
	return best, found
}

func travelFamily(material string) bool {
	f := MaterialFamily(material)
	return f == FamilyNetherPortal || f == FamilyEndPortal || f == FamilyEndGateway
}

func distanceSq(a, b cube.Pos) int {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return dx*dx + dy*dy + dz*dz
}
