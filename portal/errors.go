package portal

import "errors"

var (
	// ErrMissingRules is returned by Config.New if no RuleSource is configured.
	ErrMissingRules = errors.New("portal: no rule source configured")
	// ErrRulesUnavailable is returned by a RuleSource that has no rules loaded yet. Engines treat it as if
	// portal restrictions were disabled.
	ErrRulesUnavailable = errors.New("portal: rules not loaded")
	// ErrInvalidConfig is wrapped by errors returned when a UserConfig holds invalid values.
	ErrInvalidConfig = errors.New("portal: invalid configuration")
)
