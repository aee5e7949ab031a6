/*
Copyright © 2026 Wei-Hsuan Chen <weihsuan.c@fastmail.com>
*/

package main

import "testing"

func TestPathLabel(t *testing.T) {
	if got := pathLabel(nil); got != "本人" {
		t.Fatalf("empty path: got %s", got)
	}
	if got := pathLabel([]EdgeType{EdgeParentFather}); got != "爸爸" {
		t.Fatalf("P_f: got %s", got)
	}
	if got := pathLabel([]EdgeType{EdgeParentMother, EdgeParentFather}); got != "外公" {
		t.Fatalf("P_m P_f: got %s", got)
	}
	// Paths without a dedicated title fall back to chained edge words.
	if got := pathLabel([]EdgeType{EdgeSpouse, EdgeParentFather}); got != "配偶的爸爸" {
		t.Fatalf("fallback chain: got %s", got)
	}
}

func TestVirtualNodeIDRoundTrip(t *testing.T) {
	path := []EdgeType{EdgeParentFather, EdgeChildMale}
	id := virtualNodeID("alice", path)
	if id != "virt_alice_P_f_C_m" {
		t.Fatalf("unexpected id: %s", id)
	}

	subject, parsed, ok := parseVirtualID(id)
	if !ok {
		t.Fatalf("expected id to parse")
	}
	if subject != "alice" || !pathEquals(parsed, path) {
		t.Fatalf("round trip mismatch: %s %v", subject, parsed)
	}
}

func TestParseVirtualIDStripsOrdinals(t *testing.T) {
	// Dynamically spawned children carry a trailing ordinal.
	subject, path, ok := parseVirtualID("virt_alice_P_f_C_any_2")
	if !ok {
		t.Fatalf("expected spawned child id to parse")
	}
	if subject != "alice" || !pathEquals(path, []EdgeType{EdgeParentFather, EdgeChildAny}) {
		t.Fatalf("unexpected parse: %s %v", subject, path)
	}

	if _, _, ok := parseVirtualID("alice"); ok {
		t.Fatalf("player node id should not parse as virtual")
	}
	if _, _, ok := parseVirtualID("virt_alice_X_y"); ok {
		t.Fatalf("malformed edge tokens should not parse")
	}
}

func TestDynamicNodeID(t *testing.T) {
	if got := dynamicNodeID("virt_alice_P_f", "S"); got != "virt_alice_P_f_S" {
		t.Fatalf("virtual anchor: got %s", got)
	}
	if got := dynamicNodeID("alice", "S"); got != "virt_alice_S" {
		t.Fatalf("player anchor: got %s", got)
	}
}
