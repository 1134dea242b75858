package portal

import (
	"time"

	"github.com/df-mc/portalguard/portal/entity"
	"github.com/df-mc/portalguard/portal/world"
	"github.com/go-gl/mathgl/mgl64"
)

// Handler handles the side effects of decisions made by an Engine. Its methods are called on a goroutine
// owned by the Engine, never on the goroutine that raised the event. A Handler that mutates the world must
// hand the work to the goroutine owning it.
type Handler interface {
	// HandleDenial handles a subject being denied use of a portal.
	HandleDenial(d Denial)
	// HandleCooldown handles a subject being put on cooldown by a bypass heuristic or a denial.
	HandleCooldown(c CooldownApplied)
}

// Denial describes a subject denied use of a portal.
type Denial struct {
	Subject  entity.Subject
	Decision Decision
	// Portal is the position of the portal block the subject was denied, or the position of the subject if
	// no portal block could be found.
	Portal mgl64.Vec3
	// Target is the dimension the portal leads to, or world.NoDimension if unknown.
	Target world.Dimension
	// Knockback is the velocity to apply to the subject. It is the zero vector if knockback is disabled.
	Knockback mgl64.Vec3
	// Message is the rendered message to send to the subject, or an empty string if none should be sent.
	Message string
	// Sound is the sound to play to the subject. Sound.Play is false if none should be played.
	Sound SoundRules
}

// Trigger is what caused a subject to be put on cooldown.
type Trigger uint8

const (
	TriggerPermission Trigger = iota
	TriggerVehicle
	TriggerLongStay
	TriggerGlide
	TriggerElytraBoost
	TriggerMovement
	TriggerVelocity
	TriggerManual
)

// String ...
func (t Trigger) String() string {
	switch t {
	case TriggerPermission:
		return "permission"
	case TriggerVehicle:
		return "vehicle"
	case TriggerLongStay:
		return "long-stay"
	case TriggerGlide:
		return "glide"
	case TriggerElytraBoost:
		return "elytra-boost"
	case TriggerMovement:
		return "movement"
	case TriggerVelocity:
		return "velocity"
	}
	return "manual"
}

// CooldownApplied describes a subject that was put on cooldown.
type CooldownApplied struct {
	Subject  entity.Subject
	Trigger  Trigger
	Duration time.Duration
}

// NopHandler implements the Handler interface but does not execute any code when an effect is dispatched.
// Users may embed NopHandler to avoid having to implement each method.
type NopHandler struct{}

// Compile time check to make sure NopHandler implements Handler.
var _ Handler = NopHandler{}

func (NopHandler) HandleDenial(Denial)            {}
func (NopHandler) HandleCooldown(CooldownApplied) {}
