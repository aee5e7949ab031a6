/*
Copyright © 2026 Wei-Hsuan Chen <weihsuan.c@fastmail.com>
*/

package main

import (
	"math/rand"
	"time"
)

// playerProgress tracks one player's standing in the data-filling
// phase: finished work for the fairness term and per-task skip counts
// for the penalty term.
type playerProgress struct {
	PlayerID  string
	Completed []string
	Skips     map[string]int
}

// taskBoard is the room's scheduling state: the backlog of undispatched
// tasks, the in-flight map of dispatched-but-unanswered ones, and the
// completed pile kept for scoring.
type taskBoard struct {
	backlog   []Task
	inflight  map[string]Task
	completed []Task
	progress  map[string]*playerProgress
}

func newTaskBoard() *taskBoard {
	return &taskBoard{
		inflight: make(map[string]Task),
		progress: make(map[string]*playerProgress),
	}
}

func (tb *taskBoard) progressFor(playerID string) *playerProgress {
	p, ok := tb.progress[playerID]
	if !ok {
		p = &playerProgress{PlayerID: playerID, Skips: make(map[string]int)}
		tb.progress[playerID] = p
	}
	return p
}

func (tb *taskBoard) removeFromBacklog(taskID string) {
	for i, t := range tb.backlog {
		if t.Base().TaskID == taskID {
			tb.backlog = append(tb.backlog[:i], tb.backlog[i+1:]...)
			return
		}
	}
}

// purgeNode drops every queued task that references a node id, used
// after a merge removes the node from the store.
func (tb *taskBoard) purgeNode(nodeID string) {
	out := tb.backlog[:0]
	for _, t := range tb.backlog {
		if t.Base().TargetNodeID == nodeID {
			continue
		}
		if c, ok := t.(*ConvergenceTask); ok && c.CandidateNodeID == nodeID {
			continue
		}
		out = append(out, t)
	}
	tb.backlog = out
}

// exhausted reports whether no work remains: nothing in flight and no
// backlog task whose fact is still missing. Stale backlog entries whose
// facts were filled by other answers do not count as remaining work.
func (tb *taskBoard) exhausted(store *NodeStore) bool {
	if len(tb.inflight) > 0 {
		return false
	}
	for _, t := range tb.backlog {
		if taskStillNeeded(t, store) {
			return false
		}
	}
	return true
}

// dispatchable applies the pre-scoring filters: the fact must still be
// missing, and no task other than naming may target a still-unnamed
// node (names come first so later questions can reference people by
// name).
func (tb *taskBoard) dispatchable(t Task, store *NodeStore) bool {
	if !taskStillNeeded(t, store) {
		return false
	}
	if _, isNaming := t.(*NamingTask); !isNaming {
		if vnode, ok := store.Get(t.Base().TargetNodeID); ok && !vnode.IsPlayer && vnode.Name == "" {
			return false
		}
	}
	return true
}

// selectForPlayer picks the best backlog task for one player:
// 0.5·priority + 0.4·proximity + 0.1·random − 0.2·skipCount. The
// random term intentionally leaves exact ties nondeterministic.
func (tb *taskBoard) selectForPlayer(store *NodeStore, playerID, playerNodeID string) Task {
	skips := tb.progressFor(playerID).Skips

	var best Task
	bestScore := 0.0

	for _, t := range tb.backlog {
		if !tb.dispatchable(t, store) {
			continue
		}
		base := t.Base()
		score := 0.5*priorityScore(base.Priority) +
			0.4*proximityScore(store, playerNodeID, base.TargetNodeID) +
			0.1*rand.Float64() -
			0.2*float64(skips[base.TaskID])
		if best == nil || score > bestScore {
			best = t
			bestScore = score
		}
	}

	if best != nil {
		tb.assign(best, playerID)
	}
	return best
}

// selectAny scores every (task, player) pair for the room-wide initial
// dispatch: 0.6·proximity + 0.2·fairness + 0.1·random − 0.1·skipCount,
// where fairness favors players who have completed the least.
func (tb *taskBoard) selectAny(store *NodeStore, players []*Player) (Task, string) {
	if len(players) == 0 {
		return nil, ""
	}

	poolSize := len(tb.backlog) + len(tb.completed)
	fairness := make(map[string]float64, len(players))
	for _, p := range players {
		done := len(tb.progressFor(p.PlayerID).Completed)
		if poolSize > 0 {
			fairness[p.PlayerID] = 1 - float64(done)/float64(poolSize)
		}
	}

	var best Task
	bestPlayer := ""
	bestScore := 0.0

	for _, t := range tb.backlog {
		if !tb.dispatchable(t, store) {
			continue
		}
		base := t.Base()
		for _, p := range players {
			score := 0.6*proximityScore(store, p.NodeID, base.TargetNodeID) +
				0.2*fairness[p.PlayerID] +
				0.1*rand.Float64() -
				0.1*float64(tb.progressFor(p.PlayerID).Skips[base.TaskID])
			if best == nil || score > bestScore {
				best = t
				bestPlayer = p.PlayerID
				bestScore = score
			}
		}
	}

	if best != nil {
		tb.assign(best, bestPlayer)
	}
	return best, bestPlayer
}

// assign locks a task to a player and moves it from the backlog to the
// in-flight map.
func (tb *taskBoard) assign(t Task, playerID string) {
	base := t.Base()
	base.AssignedPlayerID = playerID
	base.Locked = true
	tb.removeFromBacklog(base.TaskID)
	tb.inflight[base.TaskID] = t
}

// complete moves an in-flight task to the completed pile and credits
// the answering player.
func (tb *taskBoard) complete(t Task, playerID string, answer any) {
	base := t.Base()
	base.Answer = answer
	base.CompletedAt = time.Now().UnixMilli()
	delete(tb.inflight, base.TaskID)
	tb.completed = append(tb.completed, t)

	p := tb.progressFor(playerID)
	p.Completed = append(p.Completed, base.TaskID)
}

// skip returns an in-flight task to the backlog and counts the skip
// against this (player, task) pair; every third skip demotes the task
// one priority level, bottoming out at L6.
func (tb *taskBoard) skip(t Task, playerID string) {
	base := t.Base()
	delete(tb.inflight, base.TaskID)
	base.AssignedPlayerID = ""
	base.Locked = false

	p := tb.progressFor(playerID)
	p.Skips[base.TaskID]++
	if p.Skips[base.TaskID]%3 == 0 {
		base.Priority = demote(base.Priority)
	}

	tb.backlog = append(tb.backlog, t)
}

// proximityScore is 1/(1+d) where d is the undirected hop distance
// between the player's own node and the target, so closer relatives
// score strictly higher. Unreachable nodes score zero.
func proximityScore(store *NodeStore, fromID, toID string) float64 {
	if fromID == toID {
		return 1
	}
	if !store.Has(fromID) || !store.Has(toID) {
		return 0
	}

	visited := map[string]bool{fromID: true}
	frontier := []string{fromID}
	for depth := 1; len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			vnode, ok := store.Get(id)
			if !ok {
				continue
			}
			for _, neighbor := range nodeNeighbors(store, vnode) {
				if visited[neighbor] {
					continue
				}
				if neighbor == toID {
					return 1 / float64(1+depth)
				}
				visited[neighbor] = true
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	return 0
}

// nodeNeighbors lists every id adjacent to a node in either direction,
// including parents that only know this node through their child list.
func nodeNeighbors(store *NodeStore, vnode *VirtualNode) []string {
	var out []string
	if vnode.FatherID != "" {
		out = append(out, vnode.FatherID)
	}
	if vnode.MotherID != "" {
		out = append(out, vnode.MotherID)
	}
	out = append(out, vnode.SpouseIDs...)
	out = append(out, vnode.ChildIDs...)

	for _, other := range store.All() {
		if other.ID == vnode.ID {
			continue
		}
		if other.FatherID == vnode.ID || other.MotherID == vnode.ID {
			out = append(out, other.ID)
			continue
		}
		for _, childID := range other.ChildIDs {
			if childID == vnode.ID {
				out = append(out, other.ID)
				break
			}
		}
	}
	return out
}
