package world

import (
	"testing"

	"github.com/df-mc/portalguard/portal/cube"
)

// blocks is a BlockSource backed by a map for tests.
type blocks map[cube.Pos]string

func (b blocks) Material(pos cube.Pos) string {
	return b[pos]
}

func TestClassify(t *testing.T) {
	tests := []struct {
		material string
		current  Dimension
		want     Classification
	}{
		{"minecraft:nether_portal", Overworld, Classification{KindNether, Nether}},
		{"minecraft:nether_portal", Nether, Classification{KindNether, Overworld}},
		{"minecraft:portal", End, Classification{KindNether, Nether}},
		{"NETHER_PORTAL", Overworld, Classification{KindNether, Nether}},
		{"minecraft:end_portal", Overworld, Classification{KindEnd, End}},
		{"minecraft:end_portal", End, Classification{KindEnd, Overworld}},
		{"minecraft:end_gateway", Nether, Classification{KindEnd, End}},
		{"minecraft:end_portal_frame", Overworld, Classification{KindCustom, NoDimension}},
		{"mymod:twilight_portal", Overworld, Classification{KindCustom, NoDimension}},
		{"", Overworld, Classification{KindCustom, NoDimension}},
	}
	for _, tt := range tests {
		if got := Classify(tt.material, tt.current); got != tt.want {
			t.Fatalf("Classify(%q, %v) = %+v, want %+v", tt.material, tt.current, got, tt.want)
		}
	}
}

func TestClassifyAroundCentreFirst(t *testing.T) {
	centre := cube.Pos{0, 64, 0}
	src := blocks{
		centre:       "minecraft:end_portal",
		{-1, 63, -1}: "minecraft:nether_portal",
		{1, 64, 0}:   "minecraft:nether_portal",
	}
	c, pos, ok := ClassifyAround(src, centre, Overworld)
	if !ok || c.Kind != KindEnd || pos != centre {
		t.Fatalf("expected the centre end portal, got %+v at %v (%v)", c, pos, ok)
	}
}

func TestClassifyAroundScanOrder(t *testing.T) {
	centre := cube.Pos{0, 64, 0}
	src := blocks{
		{1, 63, -1}:  "minecraft:nether_portal",
		{-1, 65, 1}:  "minecraft:end_gateway",
		{0, 64, 1}:   "minecraft:end_portal_frame",
		{-1, 64, -1}: "minecraft:stone",
	}
	c, pos, ok := ClassifyAround(src, centre, Overworld)
	if !ok {
		t.Fatalf("expected a portal to be found")
	}
	if pos != (cube.Pos{-1, 65, 1}) || c.Kind != KindEnd {
		t.Fatalf("expected the lowest x match first, got %+v at %v", c, pos)
	}
}

func TestClassifyAroundNothing(t *testing.T) {
	c, _, ok := ClassifyAround(blocks{}, cube.Pos{}, Nether)
	if ok || c.Kind != KindCustom {
		t.Fatalf("expected no match, got %+v (%v)", c, ok)
	}
	if _, _, ok := ClassifyAround(nil, cube.Pos{}, Nether); ok {
		t.Fatalf("nil source should never match")
	}
}

func TestNearPortal(t *testing.T) {
	centre := cube.Pos{10, 70, 10}
	tests := []struct {
		name string
		src  blocks
		want bool
	}{
		{"empty", blocks{}, false},
		{"frame at edge", blocks{{12, 68, 8}: "minecraft:end_portal_frame"}, true},
		{"outside radius", blocks{{13, 70, 10}: "minecraft:nether_portal"}, false},
		{"modded portal", blocks{{9, 71, 11}: "aether:aether_portal"}, true},
		{"unrelated", blocks{{10, 70, 10}: "minecraft:obsidian"}, false},
		{"end gateway", blocks{{10, 70, 10}: "minecraft:end_gateway"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NearPortal(tt.src, centre, 2); got != tt.want {
				t.Fatalf("NearPortal = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNearestPortal(t *testing.T) {
	centre := cube.Pos{}
	src := blocks{
		{2, 2, 2}: "minecraft:nether_portal",
		{0, 1, 0}: "minecraft:nether_portal",
	}
	pos, ok := NearestPortal(src, centre, 2)
	if !ok || pos != (cube.Pos{0, 1, 0}) {
		t.Fatalf("expected nearest portal at (0,1,0), got %v (%v)", pos, ok)
	}
}

func TestMaterialFamilyCached(t *testing.T) {
	for i := 0; i < 2; i++ {
		if f := MaterialFamily("minecraft:End_Gateway"); f != FamilyEndGateway {
			t.Fatalf("expected end gateway family, got %v", f)
		}
	}
	if MaterialFamily("minecraft:air").Portal() {
		t.Fatalf("air should not be a portal")
	}
}

func TestKindKeys(t *testing.T) {
	if KindNether.PermissionKey() != "nether" || KindEnd.MessageKey() != "no_permission_end" ||
		KindCustom.MessageKey() != "no_permission_custom" {
		t.Fatalf("unexpected kind keys")
	}
	if d, ok := ParseDimension("The_End"); !ok || d != End {
		t.Fatalf("expected the_end to parse as End")
	}
	if _, ok := ParseDimension("moon"); ok {
		t.Fatalf("expected unknown dimension to fail")
	}
}
