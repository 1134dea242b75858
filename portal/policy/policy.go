// Package policy decides whether a subject may pass through a portal based on the configured block settings,
// the subject's capabilities and its cooldown. Decisions have no side effects: applying cooldowns or
// knockback as a consequence of a denial is left to the caller.
package policy

import "github.com/df-mc/portalguard/portal/world"

// Reason is the reason a Decision denies passage.
type Reason uint8

const (
	// ReasonNone is the reason of a Decision that allows passage.
	ReasonNone Reason = iota
	// ReasonCooldown denies passage because the subject has an active cooldown.
	ReasonCooldown
	// ReasonNoPermission denies passage because the portal kind is blocked and the subject lacks the
	// permission for it.
	ReasonNoPermission
	// ReasonVehicle denies passage to vehicles carrying passengers and to players that entered a vehicle
	// near a portal.
	ReasonVehicle
	// ReasonLongStay denies passage to a subject that stayed in a portal for too long.
	ReasonLongStay
	// ReasonEntityCooldown denies passage because a bypass heuristic put the subject on cooldown.
	ReasonEntityCooldown
)

// String ...
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonCooldown:
		return "cooldown"
	case ReasonNoPermission:
		return "no-permission"
	case ReasonVehicle:
		return "vehicle"
	case ReasonLongStay:
		return "long-stay"
	case ReasonEntityCooldown:
		return "entity-cooldown"
	}
	return "unknown"
}

// MessageKeyCooldown is the message key of a cooldown denial.
const MessageKeyCooldown = "cooldown_active"

// Decision is the outcome of a portal check.
type Decision struct {
	// Allowed is true if the subject may pass.
	Allowed bool
	// Reason is the reason passage was denied. It is ReasonNone if Allowed is true.
	Reason Reason
	// Kind is the kind of portal the decision was made for.
	Kind world.Kind
	// MessageKey is the key of the message to show the subject, or an empty string if none should be shown.
	MessageKey string
	// Remaining is the remaining cooldown in whole seconds for cooldown denials.
	Remaining int
}

// Allow returns a Decision allowing passage through a portal of the kind passed.
func Allow(kind world.Kind) Decision {
	return Decision{Allowed: true, Kind: kind}
}

// Deny returns a Decision denying passage for the reason passed.
func Deny(kind world.Kind, reason Reason, messageKey string) Decision {
	return Decision{Kind: kind, Reason: reason, MessageKey: messageKey}
}

// Env provides the inputs of a decision. Every method is called at most once per decision and only when
// the step needing it is reached.
type Env interface {
	// Enabled reports if portal restrictions are enabled at all.
	Enabled() bool
	// Bypass reports if the subject may bypass every restriction.
	Bypass() bool
	// Cooldown returns the remaining cooldown of the subject in whole seconds, or 0 if it has none.
	Cooldown() int
	// Blocked reports if portals of the kind passed are blocked.
	Blocked(kind world.Kind) bool
	// Permitted reports if the subject holds the permission for portals of the kind passed.
	Permitted(kind world.Kind) bool
}

// Decide decides whether the subject described by env may pass through a portal of the kind passed. The
// steps are taken in order and the first that applies decides:
//
//  1. Restrictions disabled: allow.
//  2. Subject holds the bypass capability: allow.
//  3. Subject has an active cooldown: deny with the remaining time.
//  4. Kind blocked: allow if the subject holds the kind's permission, deny otherwise.
//  5. Allow.
func Decide(kind world.Kind, env Env) Decision {
	if !env.Enabled() || env.Bypass() {
		return Allow(kind)
	}
	if remaining := env.Cooldown(); remaining > 0 {
		d := Deny(kind, ReasonCooldown, MessageKeyCooldown)
		d.Remaining = remaining
		return d
	}
	if env.Blocked(kind) && !env.Permitted(kind) {
		return Deny(kind, ReasonNoPermission, kind.MessageKey())
	}
	return Allow(kind)
}
