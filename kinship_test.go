/*
Copyright © 2026 Wei-Hsuan Chen <weihsuan.c@fastmail.com>
*/

package main

import "testing"

func pathEquals(a, b []EdgeType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTitleToPathFather(t *testing.T) {
	def, ok := kinship.TitleToPath("爸爸", "")
	if !ok {
		t.Fatalf("expected 爸爸 to resolve")
	}
	if !pathEquals(def.Path, []EdgeType{EdgeParentFather}) {
		t.Fatalf("unexpected path: %v", def.Path)
	}
	if def.GenderHint != GenderMale {
		t.Fatalf("unexpected gender hint: %s", def.GenderHint)
	}
	if len(def.RoleLabels) != 0 {
		t.Fatalf("a single hop has no intermediate nodes, got %v", def.RoleLabels)
	}
}

func TestTitleToPathAliases(t *testing.T) {
	for _, alias := range []string{"父親", "老爸"} {
		def, ok := kinship.TitleToPath(alias, "")
		if !ok {
			t.Fatalf("expected %s to resolve", alias)
		}
		if !pathEquals(def.Path, []EdgeType{EdgeParentFather}) {
			t.Fatalf("%s: unexpected path %v", alias, def.Path)
		}
	}

	def, ok := kinship.TitleToPath("爺爺", "")
	if !ok {
		t.Fatalf("expected 爺爺 to resolve")
	}
	if !pathEquals(def.Path, []EdgeType{EdgeParentFather, EdgeParentFather}) {
		t.Fatalf("爺爺: unexpected path %v", def.Path)
	}
}

func TestTitleToPathSiblingRefinement(t *testing.T) {
	def, ok := kinship.TitleToPath("哥哥", "")
	if !ok {
		t.Fatalf("expected 哥哥 to resolve")
	}
	if !pathEquals(def.Path, []EdgeType{EdgeParentFather, EdgeChildMale}) {
		t.Fatalf("哥哥: unexpected path %v", def.Path)
	}

	def, ok = kinship.TitleToPath("妹妹", "")
	if !ok {
		t.Fatalf("expected 妹妹 to resolve")
	}
	if !pathEquals(def.Path, []EdgeType{EdgeParentFather, EdgeChildFemale}) {
		t.Fatalf("妹妹: unexpected path %v", def.Path)
	}
	if def.GenderHint != GenderFemale {
		t.Fatalf("妹妹: unexpected gender hint %s", def.GenderHint)
	}
}

// 表哥 is ambiguous between the paternal and maternal side; without a
// context the paternal branch wins by ontology order, with one the
// matching branch is chosen.
func TestTitleToPathContext(t *testing.T) {
	def, ok := kinship.TitleToPath("表哥", "")
	if !ok {
		t.Fatalf("expected 表哥 to resolve")
	}
	if def.Path[0] != EdgeParentFather {
		t.Fatalf("default 表哥 should trace the paternal side, got %v", def.Path)
	}
	if def.Path[len(def.Path)-1] != EdgeChildMale {
		t.Fatalf("表哥 should refine the last hop to a son, got %v", def.Path)
	}

	def, ok = kinship.TitleToPath("表哥", "maternal")
	if !ok {
		t.Fatalf("expected maternal 表哥 to resolve")
	}
	if def.Path[0] != EdgeParentMother {
		t.Fatalf("maternal 表哥 should trace the maternal side, got %v", def.Path)
	}
}

func TestTitleToPathUnknown(t *testing.T) {
	if _, ok := kinship.TitleToPath("外星人", ""); ok {
		t.Fatalf("expected unknown title to fail")
	}
	if _, ok := kinship.TitleToPath("", ""); ok {
		t.Fatalf("expected empty title to fail")
	}
}

func TestTitleToPathDeterministic(t *testing.T) {
	first, ok := kinship.TitleToPath("表姊", "")
	if !ok {
		t.Fatalf("expected 表姊 to resolve")
	}
	for i := 0; i < 20; i++ {
		def, ok := kinship.TitleToPath("表姊", "")
		if !ok || !pathEquals(def.Path, first.Path) {
			t.Fatalf("resolution not deterministic: %v vs %v", def.Path, first.Path)
		}
	}
}

func TestRoleLabelsCoverIntermediateNodes(t *testing.T) {
	def, ok := kinship.TitleToPath("舅舅", "")
	if !ok {
		t.Fatalf("expected 舅舅 to resolve")
	}
	if len(def.RoleLabels) != len(def.Path)-1 {
		t.Fatalf("role labels (%d) should cover the %d intermediate nodes",
			len(def.RoleLabels), len(def.Path)-1)
	}
	if def.RoleLabels[0] != "母親" {
		t.Fatalf("intermediate node should be the mother, got %s", def.RoleLabels[0])
	}
}
