package portal

import (
	"sync/atomic"
	"time"

	"github.com/df-mc/portalguard/portal/message"
	"github.com/df-mc/portalguard/portal/security"
	"github.com/df-mc/portalguard/portal/world"
)

// Rules is an immutable snapshot of the settings an Engine decides by. Rules are usually created by
// calling UserConfig.Rules.
type Rules struct {
	// Enabled controls if portal restrictions are applied at all.
	Enabled bool
	// Debug logs every decision at info level rather than debug level.
	Debug bool
	// Language is the language of messages attached to denials.
	Language string

	// BlockNether, BlockEnd and BlockCustom control which portal kinds require a permission.
	BlockNether, BlockEnd, BlockCustom bool

	Cooldown  CooldownRules
	Knockback KnockbackRules
	Sound     SoundRules
	Security  security.Settings

	// Permissions maps permission keys such as "nether" or "bypass" to permission nodes. Keys that are not
	// present map to "portals.<key>".
	Permissions map[string]string
	// Messages holds the messages attached to denials. If nil, no messages are attached.
	Messages *message.Catalogue
}

// CooldownRules holds the settings of player cooldowns.
type CooldownRules struct {
	// Enabled controls if players denied a portal are put on cooldown.
	Enabled bool
	// Duration is the length of a player cooldown.
	Duration time.Duration
	// ShowMessage controls if a message is attached to cooldown denials.
	ShowMessage bool
}

// KnockbackRules holds the settings of the knockback applied on denial.
type KnockbackRules struct {
	Enabled  bool
	Strength float64
	Height   float64
}

// SoundRules holds the sound a host should play on denial.
type SoundRules struct {
	Play bool
	// Type is the host specific name of the sound.
	Type string
	// Volume is in the range [0, 1].
	Volume float64
	// Pitch is in the range [0, 2].
	Pitch float64
}

// Blocked reports if portals of the kind passed require a permission.
func (r *Rules) Blocked(kind world.Kind) bool {
	switch kind {
	case world.KindNether:
		return r.BlockNether
	case world.KindEnd:
		return r.BlockEnd
	}
	return r.BlockCustom
}

// Permission returns the permission node for the key passed.
func (r *Rules) Permission(key string) string {
	if node, ok := r.Permissions[key]; ok && node != "" {
		return node
	}
	return "portals." + key
}

// RuleSource provides the current Rules. Engines call Rules for every setting they read, so an
// implementation may swap the rules at any time.
type RuleSource interface {
	// Rules returns the current rules, or ErrRulesUnavailable if none are loaded yet.
	Rules() (*Rules, error)
}

// RuleHolder is a RuleSource holding rules that may be replaced at runtime. The zero value holds no rules.
type RuleHolder struct {
	r atomic.Pointer[Rules]
}

// NewRuleHolder returns a RuleHolder holding the rules passed.
func NewRuleHolder(r *Rules) *RuleHolder {
	h := &RuleHolder{}
	h.Store(r)
	return h
}

// Store replaces the rules held.
func (h *RuleHolder) Store(r *Rules) {
	h.r.Store(r)
}

// Rules ...
func (h *RuleHolder) Rules() (*Rules, error) {
	if r := h.r.Load(); r != nil {
		return r, nil
	}
	return nil, ErrRulesUnavailable
}
