package world

// Kind is the kind of portal a subject is attempting to use. Kinds are what the block and permission
// settings are keyed by.
type Kind uint8

const (
	// KindNether is a nether portal.
	KindNether Kind = iota
	// KindEnd is an end portal or an end gateway.
	KindEnd
	// KindCustom is any other portal-like block.
	KindCustom
)

// Kinds returns every portal kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindNether, KindEnd, KindCustom}
}

// String returns the lower case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNether:
		return "nether"
	case KindEnd:
		return "end"
	}
	return "custom"
}

// PermissionKey returns the key used to look up the permission node that allows using a portal of this kind.
func (k Kind) PermissionKey() string {
	return k.String()
}

// MessageKey returns the message key sent to a player denied use of a portal of this kind.
func (k Kind) MessageKey() string {
	return "no_permission_" + k.String()
}
