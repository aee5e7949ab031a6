/*
Copyright © 2026 Wei-Hsuan Chen <weihsuan.c@fastmail.com>
*/

package main

import (
	"testing"
	"time"
)

// seedStore builds the minimal phase-2 fixture: two named players with
// one unnamed key-node father between them.
func seedStore(t *testing.T) (*NodeStore, string) {
	t.Helper()
	alice := testPlayer("alice", "小明", GenderMale)
	bob := testPlayer("bob", "小華", GenderMale)
	rels := []Relationship{
		brotherClaim(alice, bob),
		brotherClaim(bob, alice),
	}
	store := instantiateVirtualNodes(rels, []*Player{alice, bob})

	for _, n := range store.All() {
		if !n.IsPlayer {
			return store, n.ID
		}
	}
	t.Fatalf("no virtual node in fixture")
	return nil, ""
}

func TestGenerateTasksCategoryOrder(t *testing.T) {
	store, fatherID := seedStore(t)

	// An edge-unpinned key node (e.g. reached via C_any) has no inferred
	// gender and still needs its parents traced.
	store.Put(&VirtualNode{
		ID:        "virt_alice_C_any",
		Gender:    GenderUnknown,
		KeyNode:   true,
		CreatedAt: time.Now(),
	})

	f := &taskFactory{store: store}
	tasks := generateTasks(f)

	if len(tasks) == 0 {
		t.Fatalf("expected tasks for an unnamed key node")
	}

	// Naming comes first, and for a key node at the top priority.
	first := tasks[0]
	if first.Base().Type != TaskNodeNaming || first.Base().Priority != PriorityL1 {
		t.Fatalf("first task should be L1 naming, got %s %s",
			first.Base().Type, first.Base().Priority)
	}

	rank := map[string]int{}
	for i, task := range tasks {
		if _, seen := rank[task.Base().Type]; !seen {
			rank[task.Base().Type] = i
		}
	}
	if rank[TaskUpwardTracing] > rank[TaskDownwardInquiry] {
		t.Fatalf("upward tasks must be generated before downward tasks")
	}

	// Named players generate nothing about themselves except the
	// lateral/downward confirmations every key node needs.
	for _, task := range tasks {
		base := task.Base()
		if base.TargetNodeID != "alice" {
			continue
		}
		if base.Type != TaskLateralInquiry && base.Type != TaskDownwardInquiry {
			t.Fatalf("unexpected task for a named player: %s", base.Type)
		}
	}

	// The father's gender is pinned by his edge, which seeds his upward
	// dimension: he needs naming but no parent questions.
	sawFatherNaming := false
	for _, task := range tasks {
		if task.Base().TargetNodeID != fatherID {
			continue
		}
		if task.Base().Type == TaskNodeNaming {
			sawFatherNaming = true
		}
		if task.Base().Type == TaskUpwardTracing {
			t.Fatalf("gender-pinned node should not get upward tasks")
		}
	}
	if !sawFatherNaming {
		t.Fatalf("missing naming task for the inferred father")
	}

	// The unpinned node needs both parents traced and its gender asked.
	wantUnpinned := map[string]bool{TaskUpwardTracing: false, TaskAttributeFilling: false}
	for _, task := range tasks {
		if task.Base().TargetNodeID == "virt_alice_C_any" {
			if _, ok := wantUnpinned[task.Base().Type]; ok {
				wantUnpinned[task.Base().Type] = true
			}
		}
	}
	for kind, found := range wantUnpinned {
		if !found {
			t.Fatalf("missing %s task for the unpinned key node", kind)
		}
	}
}

func TestGenerateTasksLateralAutoComplete(t *testing.T) {
	store, fatherID := seedStore(t)
	father, _ := store.Get(fatherID)
	father.SpouseIDs = []string{"somebody"}

	tasks := generateTasks(&taskFactory{store: store})

	for _, task := range tasks {
		if task.Base().Type == TaskLateralInquiry && task.Base().TargetNodeID == fatherID {
			t.Fatalf("evidenced spouse should suppress the lateral task")
		}
	}
	if !father.EFU.Lateral {
		t.Fatalf("evidenced spouse should mark the lateral dimension complete")
	}
}

func TestSpawnSpouseNode(t *testing.T) {
	store, fatherID := seedStore(t)
	f := &taskFactory{store: store}
	father, _ := store.Get(fatherID)

	spouse, tasks := spawnSpouseNode(f, fatherID)
	if spouse == nil {
		t.Fatalf("spawn failed")
	}
	if spouse.Gender != GenderFemale {
		t.Fatalf("spouse of a male node should be female, got %s", spouse.Gender)
	}
	if !spouse.Terminal || !spouse.EFU.complete() {
		t.Fatalf("spawned spouse must be terminal and fully confirmed: %+v", spouse)
	}
	if len(spouse.ChildIDs) != len(father.ChildIDs) {
		t.Fatalf("spouse should share the children: %v vs %v", spouse.ChildIDs, father.ChildIDs)
	}
	if len(tasks) != 1 || tasks[0].Base().Type != TaskNodeNaming {
		t.Fatalf("known-gender spouse should produce exactly one naming task, got %d", len(tasks))
	}

	// Spawning again is a no-op returning the existing node.
	again, more := spawnSpouseNode(f, fatherID)
	if again != spouse || more != nil {
		t.Fatalf("second spawn should return the existing spouse with no tasks")
	}
}

func TestSpawnChildNodes(t *testing.T) {
	store, fatherID := seedStore(t)
	f := &taskFactory{store: store}
	spouse, _ := spawnSpouseNode(f, fatherID)

	children, tasks := spawnChildNodes(f, fatherID, 2)
	if len(children) != 2 {
		t.Fatalf("expected 2 spawned children, got %d", len(children))
	}
	// Naming plus gender per child.
	if len(tasks) != 4 {
		t.Fatalf("expected 4 tasks, got %d", len(tasks))
	}
	for _, child := range children {
		if child.FatherID != fatherID {
			t.Fatalf("child should point at the anchor father: %q", child.FatherID)
		}
		if child.MotherID != spouse.ID {
			t.Fatalf("child should point at the first spouse: %q", child.MotherID)
		}
		if !child.Terminal {
			t.Fatalf("spawned children must be terminal")
		}
	}

	// Same count again: ids collide, nothing new is created.
	more, moreTasks := spawnChildNodes(f, fatherID, 2)
	if len(more) != 0 || len(moreTasks) != 0 {
		t.Fatalf("re-spawning the same ordinals should be a no-op")
	}
}

func TestDetectSameNameNodes(t *testing.T) {
	store := newNodeStore()
	now := time.Now()
	store.Put(&VirtualNode{ID: "virt_a_P_f", Name: "王大明", Gender: GenderMale, CreatedAt: now})
	store.Put(&VirtualNode{ID: "virt_b_P_f", Name: "王大明", Gender: GenderMale, CreatedAt: now})
	store.Put(&VirtualNode{ID: "virt_c_P_f", Name: "李小龍", Gender: GenderMale, CreatedAt: now})

	f := &taskFactory{store: store}
	tasks := detectSameNameNodes(f, "virt_a_P_f", "王大明")

	if len(tasks) != 1 {
		t.Fatalf("expected exactly one convergence candidate, got %d", len(tasks))
	}
	conv := tasks[0].(*ConvergenceTask)
	if conv.CandidateNodeID != "virt_b_P_f" {
		t.Fatalf("unexpected candidate: %s", conv.CandidateNodeID)
	}
	if conv.Priority != PriorityL2 {
		t.Fatalf("convergence tasks are L2, got %s", conv.Priority)
	}

	if got := detectSameNameNodes(f, "virt_c_P_f", "李小龍"); len(got) != 0 {
		t.Fatalf("unique name should produce no candidates, got %d", len(got))
	}
}

func TestHumanNodeLabelSimplification(t *testing.T) {
	store := newNodeStore()
	now := time.Now()
	store.Put(&VirtualNode{ID: "alice", Name: "小明", IsPlayer: true, CreatedAt: now})
	store.Put(&VirtualNode{ID: "virt_alice_P_f", Gender: GenderMale, CreatedAt: now})
	store.Put(&VirtualNode{ID: "virt_alice_P_f_P_f", Gender: GenderMale, CreatedAt: now})

	if got := humanNodeLabel("virt_alice_P_f", store); got != "小明的爸爸" {
		t.Fatalf("direct path label: got %s", got)
	}
	if got := humanNodeLabel("virt_alice_P_f_P_f", store); got != "小明的祖父" {
		t.Fatalf("two-hop path label: got %s", got)
	}

	// Once the father is named, deeper labels hang off his name.
	father, _ := store.Get("virt_alice_P_f")
	father.Name = "王志遠"
	if got := humanNodeLabel("virt_alice_P_f_P_f", store); got != "王志遠的爸爸" {
		t.Fatalf("simplified label: got %s", got)
	}
	if got := humanNodeLabel("virt_alice_P_f", store); got != "王志遠" {
		t.Fatalf("named node label: got %s", got)
	}
}

func TestPropagateNamingUpdatesTasks(t *testing.T) {
	store := newNodeStore()
	now := time.Now()
	store.Put(&VirtualNode{ID: "alice", Name: "小明", IsPlayer: true, CreatedAt: now})
	store.Put(&VirtualNode{ID: "virt_alice_P_f", Gender: GenderMale, CreatedAt: now})
	store.Put(&VirtualNode{ID: "virt_alice_P_f_P_f", Gender: GenderMale, CreatedAt: now})

	f := &taskFactory{store: store}
	father, _ := store.Get("virt_alice_P_f")
	grandpa, _ := store.Get("virt_alice_P_f_P_f")
	fatherTask := f.upward(father, "father", PriorityL1)
	grandpaTask := f.naming(grandpa, PriorityL1)

	father.Name = "王志遠"
	propagateNaming(f, "virt_alice_P_f", "王志遠", []Task{fatherTask, grandpaTask})

	if fatherTask.TargetNodeName != "王志遠" {
		t.Fatalf("task on the named node should show the name, got %s", fatherTask.TargetNodeName)
	}
	if grandpaTask.TargetNodeLabel != "王志遠的爸爸" {
		t.Fatalf("downstream task label should re-simplify, got %s", grandpaTask.TargetNodeLabel)
	}
}

func TestTaskStillNeeded(t *testing.T) {
	store, fatherID := seedStore(t)
	f := &taskFactory{store: store}
	father, _ := store.Get(fatherID)

	naming := f.naming(father, PriorityL1)
	if !taskStillNeeded(naming, store) {
		t.Fatalf("unnamed node still needs naming")
	}
	father.Name = "王志遠"
	if taskStillNeeded(naming, store) {
		t.Fatalf("named node no longer needs naming")
	}

	gone := f.naming(&VirtualNode{ID: "virt_gone_P_f"}, PriorityL1)
	if taskStillNeeded(gone, store) {
		t.Fatalf("task on a merged-away node is never needed")
	}
}
