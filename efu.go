/*
Copyright © 2026 Wei-Hsuan Chen <weihsuan.c@fastmail.com>
*/

package main

import "go.uber.org/zap"

// EFUTracker is a cached per-node completion snapshot for aggregate
// progress queries; the node store remains authoritative.
type EFUTracker struct {
	NodeID    string    `json:"nodeId"`
	NodeName  string    `json:"nodeName"`
	KeyNode   bool      `json:"isKeyNode"`
	Completed efuStatus `json:"completionStatus"`
}

func initEFUTrackers(store *NodeStore) map[string]*EFUTracker {
	trackers := make(map[string]*EFUTracker, store.Len())
	for _, vnode := range store.All() {
		trackers[vnode.ID] = &EFUTracker{
			NodeID:    vnode.ID,
			NodeName:  vnode.Name,
			KeyNode:   vnode.KeyNode,
			Completed: vnode.EFU,
		}
	}
	return trackers
}

// markEFUDimension records an explicitly confirmed dimension on both
// the node and its tracker.
func markEFUDimension(store *NodeStore, trackers map[string]*EFUTracker, nodeID string, dim EfuDimension) {
	vnode, ok := store.Get(nodeID)
	if !ok {
		return
	}
	switch dim {
	case DimUpward:
		vnode.EFU.Upward = true
	case DimLateral:
		vnode.EFU.Lateral = true
	case DimDownward:
		vnode.EFU.Downward = true
	}
	if tracker, ok := trackers[nodeID]; ok {
		tracker.Completed = vnode.EFU
		tracker.NodeName = vnode.Name
	}
}

// checkEFUCompletion reports whether every key node satisfies the
// three-dimensional completeness requirement. Lateral and downward need
// an explicit confirming answer even for players; spouses and children
// that were confirmed to exist must themselves be named. Short-circuits
// on the first violation.
//
// A true result alone does not end the phase: the caller must also see
// an empty backlog and an empty in-flight map, or a player could still
// be holding an answer that reopens completeness.
func checkEFUCompletion(store *NodeStore) bool {
	for _, vnode := range store.All() {
		if !vnode.KeyNode {
			continue
		}

		if !vnode.IsPlayer && vnode.Name == "" {
			logger.Debug("efu incomplete: unnamed key node", zap.String("nodeId", vnode.ID))
			return false
		}
		if !vnode.IsPlayer && !vnode.EFU.Upward {
			logger.Debug("efu incomplete: parents unconfirmed", zap.String("nodeId", vnode.ID))
			return false
		}
		if !vnode.EFU.Lateral {
			logger.Debug("efu incomplete: spouse unconfirmed", zap.String("nodeId", vnode.ID))
			return false
		}
		if !vnode.EFU.Downward {
			logger.Debug("efu incomplete: children unconfirmed", zap.String("nodeId", vnode.ID))
			return false
		}

		for _, spouseID := range vnode.SpouseIDs {
			if spouse, ok := store.Get(spouseID); ok && !spouse.IsPlayer && spouse.Name == "" {
				logger.Debug("efu incomplete: unnamed spouse",
					zap.String("nodeId", vnode.ID), zap.String("spouseId", spouseID))
				return false
			}
		}
		for _, childID := range vnode.ChildIDs {
			if child, ok := store.Get(childID); ok && !child.IsPlayer && child.Name == "" {
				logger.Debug("efu incomplete: unnamed child",
					zap.String("nodeId", vnode.ID), zap.String("childId", childID))
				return false
			}
		}
	}
	return true
}

// efuCompletionPercent is the share of key nodes with all three
// dimensions confirmed, as a whole percentage for progress displays.
func efuCompletionPercent(store *NodeStore) int {
	keyCount := 0
	doneCount := 0
	for _, vnode := range store.All() {
		if !vnode.KeyNode {
			continue
		}
		keyCount++
		if vnode.EFU.complete() {
			doneCount++
		}
	}
	if keyCount == 0 {
		return 0
	}
	return int(float64(doneCount)/float64(keyCount)*100 + 0.5)
}
