package message

// DefaultMessages returns the messages shipped with the default configuration.
func DefaultMessages() map[string]map[string]string {
	return map[string]map[string]string{
		"en": {
			"no_permission_nether": "<red>You don't have permission to use Nether portals!</red>",
			"no_permission_end":    "<red>You don't have permission to use End portals!</red>",
			"no_permission_custom": "<red>You don't have permission to use this portal!</red>",
			"cooldown_active":      "<yellow>You must wait {time} seconds before using a portal again.</yellow>",
			"portal_blocked":       "<red>This portal is blocked.</red>",
		},
		"pl": {
			"no_permission_nether": "<red>Nie masz uprawnień do korzystania z portali do Netheru!</red>",
			"no_permission_end":    "<red>Nie masz uprawnień do korzystania z portali do Endu!</red>",
			"no_permission_custom": "<red>Nie masz uprawnień do korzystania z tego portalu!</red>",
			"cooldown_active":      "<yellow>Musisz poczekać {time} sekund przed ponownym użyciem portalu.</yellow>",
		},
	}
}
