package world

import "strings"

// Dimension is a dimension a subject may be in or travel to. The zero value, NoDimension, is used when the
// destination of a portal cannot be determined.
type Dimension uint8

const (
	// NoDimension is the unknown dimension. It is the target of custom portals.
	NoDimension Dimension = iota
	// Overworld is the default dimension.
	Overworld
	// Nether is the dimension reached through nether portals.
	Nether
	// End is the dimension reached through end portals and gateways.
	End
)

// String returns the lower case name of the dimension.
func (d Dimension) String() string {
	switch d {
	case Overworld:
		return "overworld"
	case Nether:
		return "nether"
	case End:
		return "end"
	}
	return "unknown"
}

// ParseDimension parses a dimension name as found in configuration files and host events. The boolean is
// false if the name is not recognised.
func ParseDimension(name string) (Dimension, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "overworld", "world", "normal", "default":
		return Overworld, true
	case "nether", "hell", "the_nether":
		return Nether, true
	case "end", "the_end", "end_dimension":
		return End, true
	}
	return NoDimension, false
}
