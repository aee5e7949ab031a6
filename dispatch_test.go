/*
Copyright © 2026 Wei-Hsuan Chen <weihsuan.c@fastmail.com>
*/

package main

import (
	"testing"
	"time"
)

// Non-naming tasks must wait until their target has a name, so players
// are always asked about people they can identify.
func TestDispatchNameFirst(t *testing.T) {
	store, fatherID := seedStore(t)
	f := &taskFactory{store: store}
	father, _ := store.Get(fatherID)

	naming := f.naming(father, PriorityL1)
	lateral := f.lateral(father, PriorityL1)

	board := newTaskBoard()
	board.backlog = []Task{lateral, naming}

	got := board.selectForPlayer(store, "alice", "alice")
	if got == nil || got.Base().Type != TaskNodeNaming {
		t.Fatalf("expected the naming task first, got %v", got)
	}

	// Once named, the held-back lateral task becomes dispatchable.
	father.Name = "王志遠"
	got = board.selectForPlayer(store, "alice", "alice")
	if got == nil || got.Base().Type != TaskLateralInquiry {
		t.Fatalf("expected the lateral task after naming, got %v", got)
	}
}

func TestSkipDemotesEveryThird(t *testing.T) {
	store, fatherID := seedStore(t)
	f := &taskFactory{store: store}
	father, _ := store.Get(fatherID)
	task := f.naming(father, PriorityL1)

	board := newTaskBoard()
	board.backlog = []Task{task}

	for i := 1; i <= 3; i++ {
		board.assign(task, "alice")
		board.skip(task, "alice")
		if i < 3 && task.Base().Priority != PriorityL1 {
			t.Fatalf("skip %d should not demote yet, got %s", i, task.Base().Priority)
		}
	}
	if task.Base().Priority != PriorityL2 {
		t.Fatalf("third skip should demote exactly one level, got %s", task.Base().Priority)
	}
	if task.Base().Locked || task.Base().AssignedPlayerID != "" {
		t.Fatalf("skipped task should be unlocked and unassigned")
	}
	if len(board.backlog) != 1 || len(board.inflight) != 0 {
		t.Fatalf("skipped task should be back in the backlog")
	}
}

func TestDemoteFloor(t *testing.T) {
	if got := demote(PriorityL6); got != PriorityL6 {
		t.Fatalf("L6 is the floor, got %s", got)
	}
	if got := demote(PriorityL1); got != PriorityL2 {
		t.Fatalf("L1 demotes to L2, got %s", got)
	}
}

func TestPurgeNode(t *testing.T) {
	store, fatherID := seedStore(t)
	f := &taskFactory{store: store}
	father, _ := store.Get(fatherID)

	direct := f.naming(father, PriorityL1)
	unrelated := f.lateral(father, PriorityL2)
	unrelated.TargetNodeID = "alice"
	conv := &ConvergenceTask{
		TaskBase:        f.base(TaskNodeConvergence, "task_conv_1", PriorityL2, DimUpward, "alice"),
		CandidateNodeID: fatherID,
	}

	board := newTaskBoard()
	board.backlog = []Task{direct, unrelated, conv}
	board.purgeNode(fatherID)

	if len(board.backlog) != 1 || board.backlog[0] != unrelated {
		t.Fatalf("purge should drop tasks targeting or referencing the node, kept %d", len(board.backlog))
	}
}

func TestBoardExhausted(t *testing.T) {
	store, fatherID := seedStore(t)
	f := &taskFactory{store: store}
	father, _ := store.Get(fatherID)
	task := f.naming(father, PriorityL1)

	board := newTaskBoard()
	board.backlog = []Task{task}

	if board.exhausted(store) {
		t.Fatalf("pending naming means work remains")
	}

	// The fact got filled by some other answer: the stale backlog entry
	// no longer counts.
	father.Name = "王志遠"
	if !board.exhausted(store) {
		t.Fatalf("stale backlog entries should not block exhaustion")
	}

	board.assign(task, "alice")
	if board.exhausted(store) {
		t.Fatalf("in-flight work means the board is not exhausted")
	}
}

func TestProximityScore(t *testing.T) {
	store := newNodeStore()
	now := time.Now()
	store.Put(&VirtualNode{ID: "alice", IsPlayer: true, FatherID: "virt_alice_P_f", CreatedAt: now})
	store.Put(&VirtualNode{ID: "virt_alice_P_f", Gender: GenderMale, ChildIDs: []string{"alice"}, FatherID: "virt_alice_P_f_P_f", CreatedAt: now})
	store.Put(&VirtualNode{ID: "virt_alice_P_f_P_f", Gender: GenderMale, ChildIDs: []string{"virt_alice_P_f"}, CreatedAt: now})
	store.Put(&VirtualNode{ID: "stranger", CreatedAt: now})

	if got := proximityScore(store, "alice", "alice"); got != 1 {
		t.Fatalf("self distance: got %f", got)
	}
	if got := proximityScore(store, "alice", "virt_alice_P_f"); got != 0.5 {
		t.Fatalf("one hop: got %f", got)
	}
	if got := proximityScore(store, "alice", "virt_alice_P_f_P_f"); got != 1.0/3.0 {
		t.Fatalf("two hops: got %f", got)
	}
	if got := proximityScore(store, "alice", "stranger"); got != 0 {
		t.Fatalf("unreachable: got %f", got)
	}
}
