/*
Copyright © 2026 Wei-Hsuan Chen <weihsuan.c@fastmail.com>
*/

package main

import "testing"

// The mutual-brother scenario from the store tests, seen through the
// display builder: the two inferred fathers must converge to one node
// with a parent edge to each player.
func TestSkeletonSiblingConvergence(t *testing.T) {
	alice := testPlayer("alice", "小明", GenderMale)
	bob := testPlayer("bob", "小華", GenderMale)
	players := []*Player{alice, bob}
	rels := []Relationship{
		brotherClaim(alice, bob),
		brotherClaim(bob, alice),
	}

	graph := buildSkeletonGraph(rels, players, nil)

	if len(graph.Nodes) != 3 {
		for _, n := range graph.Nodes {
			t.Logf("node: %s (%s)", n.ID, n.Label)
		}
		t.Fatalf("expected 2 players + 1 father, got %d nodes", len(graph.Nodes))
	}
	if len(graph.Edges) != 2 {
		t.Fatalf("expected 2 parent edges, got %d: %v", len(graph.Edges), graph.Edges)
	}

	var father *DisplayNode
	for _, n := range graph.Nodes {
		if n.IsVirtual {
			father = n
		}
	}
	if father == nil {
		t.Fatalf("no virtual father node in graph")
	}
	for _, e := range graph.Edges {
		if e.Type != "parent" || e.From != father.ID {
			t.Fatalf("expected parent edges pointing away from the father, got %+v", e)
		}
	}
}

func TestSkeletonDeterministic(t *testing.T) {
	alice := testPlayer("alice", "小明", GenderMale)
	bob := testPlayer("bob", "小華", GenderMale)
	players := []*Player{alice, bob}
	rels := []Relationship{
		brotherClaim(alice, bob),
		brotherClaim(bob, alice),
	}

	first := buildSkeletonGraph(rels, players, nil)
	second := buildSkeletonGraph(rels, players, nil)

	if len(first.Nodes) != len(second.Nodes) || len(first.Edges) != len(second.Edges) {
		t.Fatalf("rebuild changed the graph: %d/%d nodes, %d/%d edges",
			len(first.Nodes), len(second.Nodes), len(first.Edges), len(second.Edges))
	}
	for i := range first.Nodes {
		if first.Nodes[i].ID != second.Nodes[i].ID {
			t.Fatalf("node order changed: %s vs %s", first.Nodes[i].ID, second.Nodes[i].ID)
		}
	}
}

// Store facts overlay the skeleton: a confirmed name replaces the role
// label, and spawned nodes absent from any claim get inserted with
// their pointer edges.
func TestSkeletonStoreOverlay(t *testing.T) {
	alice := testPlayer("alice", "小明", GenderMale)
	bob := testPlayer("bob", "小華", GenderMale)
	players := []*Player{alice, bob}
	rels := []Relationship{brotherClaim(alice, bob)}

	store := instantiateVirtualNodes(rels, players)
	fatherID := ""
	for _, n := range store.All() {
		if !n.IsPlayer {
			fatherID = n.ID
		}
	}
	if fatherID == "" {
		t.Fatalf("no inferred father in store")
	}
	father, _ := store.Get(fatherID)
	father.Name = "王志遠"

	// A spouse spawned in phase 2 exists only in the store.
	f := &taskFactory{store: store}
	spouse, _ := spawnSpouseNode(f, fatherID)
	if spouse == nil {
		t.Fatalf("spawn failed")
	}

	graph := buildSkeletonGraph(rels, players, store)

	byID := make(map[string]*DisplayNode)
	for _, n := range graph.Nodes {
		byID[n.ID] = n
	}

	fatherNode, ok := byID[fatherID]
	if !ok {
		t.Fatalf("father missing from graph")
	}
	if fatherNode.Label != "王志遠" || !fatherNode.Confirmed {
		t.Fatalf("confirmed name not overlaid: %+v", fatherNode)
	}

	spouseNode, ok := byID[spouse.ID]
	if !ok {
		t.Fatalf("spawned spouse missing from graph")
	}
	if spouseNode.Label != "？" || spouseNode.Confirmed {
		t.Fatalf("unnamed spawned node should render as ？: %+v", spouseNode)
	}

	spouseEdge := false
	for _, e := range graph.Edges {
		if e.Type == "spouse" &&
			((e.From == fatherID && e.To == spouse.ID) || (e.From == spouse.ID && e.To == fatherID)) {
			spouseEdge = true
		}
	}
	if !spouseEdge {
		t.Fatalf("spawned spouse has no spouse edge: %v", graph.Edges)
	}
}
