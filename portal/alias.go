package portal

import "github.com/df-mc/portalguard/portal/policy"

type (
	// Decision is the outcome of a portal check.
	Decision = policy.Decision
	// Reason is the reason a Decision denies passage.
	Reason = policy.Reason
)

const (
	ReasonNone           = policy.ReasonNone
	ReasonCooldown       = policy.ReasonCooldown
	ReasonNoPermission   = policy.ReasonNoPermission
	ReasonVehicle        = policy.ReasonVehicle
	ReasonLongStay       = policy.ReasonLongStay
	ReasonEntityCooldown = policy.ReasonEntityCooldown
)
