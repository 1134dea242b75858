package world

import (
	"strings"
	"sync"

	"github.com/brentp/intintmap"
	"github.com/df-mc/portalguard/portal/cube"
	"github.com/segmentio/fasthash/fnv1a"
)

// Family groups block materials by how they relate to portals.
type Family uint8

const (
	// FamilyNone is any block that has nothing to do with portals.
	FamilyNone Family = iota
	// FamilyNetherPortal is the nether portal block.
	FamilyNetherPortal
	// FamilyEndPortal is the end portal block.
	FamilyEndPortal
	// FamilyEndFrame is the end portal frame.
	FamilyEndFrame
	// FamilyOther is any other block with "portal" in its name.
	FamilyOther
	// FamilyEndGateway is the end gateway. It leads to the End like an end portal but is not a portal block
	// for proximity checks.
	FamilyEndGateway
)

// Portal reports if blocks of the family count as portal blocks for proximity checks.
func (f Family) Portal() bool {
	return f != FamilyNone && f != FamilyEndGateway
}

// BlockSource provides the material of blocks around a subject. Implementations are supplied by the host
// and must be safe to call from the goroutine that raised the event being evaluated.
type BlockSource interface {
	// Material returns the name of the block at the position passed, such as "minecraft:nether_portal".
	// An empty string is returned for air or unloaded positions.
	Material(pos cube.Pos) string
}

// NormaliseMaterial lower cases a material name and strips the minecraft namespace.
func NormaliseMaterial(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimPrefix(name, "minecraft:")
}

var families = struct {
	mu sync.RWMutex
	m  *intintmap.Map
}{m: intintmap.New(64, 0.6)}

// MaterialFamily returns the family of the material passed. Results are cached per material name so that
// repeated scans over the same blocks do not normalise names again.
func MaterialFamily(name string) Family {
	if name == "" {
		return FamilyNone
	}
	h := int64(fnv1a.HashString64(name))

	families.mu.RLock()
	v, ok := families.m.Get(h)
	families.mu.RUnlock()
	if ok {
		return Family(v)
	}

	f := familyOf(NormaliseMaterial(name))
	families.mu.Lock()
	families.m.Put(h, int64(f))
	families.mu.Unlock()
	return f
}

func familyOf(name string) Family {
	switch name {
	case "nether_portal", "portal":
		return FamilyNetherPortal
	case "end_portal":
		return FamilyEndPortal
	case "end_gateway":
		return FamilyEndGateway
	case "end_portal_frame":
		return FamilyEndFrame
	}
	if strings.Contains(name, "portal") {
		return FamilyOther
	}
	return FamilyNone
}
