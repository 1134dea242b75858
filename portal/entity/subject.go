// Package entity describes the subjects that portal decisions are made for. Subjects are plain values
// built by host adapters for every event, the engine never holds on to them.
package entity

import (
	"log/slog"

	"github.com/df-mc/portalguard/portal/cube"
	"github.com/df-mc/portalguard/portal/world"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// Kind is the kind of a Subject.
type Kind uint8

const (
	// Player is a connected player. Only players are subject to permission checks and player cooldowns.
	Player Kind = iota
	// Mob is any living non-player entity.
	Mob
	// Vehicle is a rideable entity such as a boat or minecart.
	Vehicle
)

// String ...
func (k Kind) String() string {
	switch k {
	case Player:
		return "player"
	case Mob:
		return "mob"
	}
	return "vehicle"
}

// Subject is an entity that may use a portal.
type Subject struct {
	// ID is the stable unique ID of the entity. Cooldowns and bypass tracking are keyed by it.
	ID uuid.UUID
	// Name is the display name of the entity, used in log records only.
	Name string
	Kind Kind
	// Position is the position of the entity in the world.
	Position mgl64.Vec3
	// Dimension is the dimension the entity is currently in.
	Dimension world.Dimension
	// Blocks provides the blocks around the entity. If nil, proximity checks never find a portal.
	Blocks world.BlockSource
	// Passengers holds the entities riding the Subject if it is a vehicle.
	Passengers []Subject
}

// BlockPos returns the position of the block the Subject is in.
func (s Subject) BlockPos() cube.Pos {
	return cube.PosFromVec3(s.Position)
}

// Player reports if the Subject is a player.
func (s Subject) Player() bool {
	return s.Kind == Player
}

// NearPortal reports if a portal family block is within the radius passed of the Subject's block.
func (s Subject) NearPortal(radius int) bool {
	return world.NearPortal(s.Blocks, s.BlockPos(), radius)
}

// LogValue ...
func (s Subject) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("id", s.ID.String()),
		slog.String("kind", s.Kind.String()),
	}
	if s.Name != "" {
		attrs = append(attrs, slog.String("name", s.Name))
	}
	if len(s.Passengers) > 0 {
		attrs = append(attrs, slog.Int("passengers", len(s.Passengers)))
	}
	return slog.GroupValue(attrs...)
}

// Capabilities reports which capabilities, usually permission nodes, a Subject holds.
type Capabilities interface {
	// HasCapability reports if the Subject holds the capability with the key passed.
	HasCapability(key string) bool
}

// CapabilityFunc is a function implementing Capabilities.
type CapabilityFunc func(key string) bool

// HasCapability ...
func (f CapabilityFunc) HasCapability(key string) bool { return f(key) }

// CapabilitySet is a fixed set of capabilities.
type CapabilitySet map[string]struct{}

// NewCapabilitySet returns a CapabilitySet holding the keys passed.
func NewCapabilitySet(keys ...string) CapabilitySet {
	set := make(CapabilitySet, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// HasCapability ...
func (s CapabilitySet) HasCapability(key string) bool {
	_, ok := s[key]
	return ok
}

// NoCapabilities is a Capabilities holding nothing. It is used for non-player subjects.
type NoCapabilities struct{}

// HasCapability ...
func (NoCapabilities) HasCapability(string) bool { return false }
