/*
Copyright © 2026 Wei-Hsuan Chen <weihsuan.c@fastmail.com>
*/

package main

import (
	"time"
)

// Relationship is one accepted claim from the scan phase: the subject
// player declared that the object player is reachable via Path. Records
// are append-only for the lifetime of the room.
type Relationship struct {
	SubjectPlayerID string     `json:"subjectPlayerId"`
	ObjectPlayerID  string     `json:"objectPlayerId"`
	SubjectNodeID   string     `json:"subjectNodeId"`
	ObjectNodeID    string     `json:"objectNodeId"`
	Direction       string     `json:"direction"`
	Title           string     `json:"title"`
	Path            []EdgeType `json:"path"`
	RoleLabels      []string   `json:"roleLabels"`
}

type efuStatus struct {
	Upward   bool `json:"upward"`
	Lateral  bool `json:"lateral"`
	Downward bool `json:"downward"`
}

func (e efuStatus) complete() bool {
	return e.Upward && e.Lateral && e.Downward
}

// VirtualNode is one person in the evolving family graph, player or
// inferred relative. Pointer fields hold node ids within the same store.
type VirtualNode struct {
	ID       string
	Name     string
	Gender   Gender
	Birthday string // YYYY-MM-DD, empty until confirmed
	IsPlayer bool
	PlayerID string

	// KeyNode marks nodes on a path connecting players; only these
	// gate phase completion. Terminal nodes are dynamically spawned
	// spouses/children that are never traced further.
	KeyNode  bool
	Terminal bool

	EFU efuStatus

	FatherID  string
	MotherID  string
	SpouseIDs []string
	ChildIDs  []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func addUnique(list []string, id string) []string {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}

// NodeStore holds every VirtualNode of one room. Iteration follows
// insertion order so that keep-first merge decisions and task generation
// are deterministic.
type NodeStore struct {
	nodes map[string]*VirtualNode
	order []string
}

func newNodeStore() *NodeStore {
	return &NodeStore{nodes: make(map[string]*VirtualNode)}
}

func (s *NodeStore) Get(id string) (*VirtualNode, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

func (s *NodeStore) Has(id string) bool {
	_, ok := s.nodes[id]
	return ok
}

func (s *NodeStore) Put(n *VirtualNode) {
	if _, ok := s.nodes[n.ID]; !ok {
		s.order = append(s.order, n.ID)
	}
	s.nodes[n.ID] = n
}

func (s *NodeStore) Delete(id string) {
	if _, ok := s.nodes[id]; !ok {
		return
	}
	delete(s.nodes, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *NodeStore) Len() int {
	return len(s.nodes)
}

// All returns the live nodes in insertion order.
func (s *NodeStore) All() []*VirtualNode {
	out := make([]*VirtualNode, 0, len(s.nodes))
	for _, id := range s.order {
		if n, ok := s.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// instantiateVirtualNodes builds the relational store from the scan
// phase's accepted claims. Player nodes are seeded first; each claim's
// path then materializes intermediate virtual nodes keyed by
// subject+path-prefix, so claims sharing a prefix collapse onto one
// node. The final hop of every path lands on the known object player and
// never synthesizes a node.
func instantiateVirtualNodes(rels []Relationship, players []*Player) *NodeStore {
	store := newNodeStore()
	now := time.Now()

	for _, p := range players {
		store.Put(&VirtualNode{
			ID:       p.NodeID,
			Name:     p.Name,
			Gender:   p.Gender,
			Birthday: p.Birthday.Format("2006-01-02"),
			IsPlayer: true,
			PlayerID: p.PlayerID,
			KeyNode:  true,
			EFU: efuStatus{
				// Parents were covered while walking claim paths;
				// spouse/children completeness carries over only when a
				// claim already evidenced such an edge.
				Upward:   true,
				Lateral:  playerHasEdgeEvidence(rels, p.NodeID, EdgeSpouse),
				Downward: playerHasChildEvidence(rels, p.NodeID),
			},
			CreatedAt: p.JoinedAt,
			UpdatedAt: now,
		})
	}

	for _, rel := range rels {
		if len(rel.Path) == 0 {
			continue
		}
		walkRelationshipPath(store, rel, now)
	}

	dedupNodeStore(store)

	return store
}

func playerHasEdgeEvidence(rels []Relationship, nodeID string, edge EdgeType) bool {
	for _, r := range rels {
		if len(r.Path) == 0 {
			continue
		}
		if r.SubjectNodeID == nodeID && r.Path[0] == edge {
			return true
		}
		if r.ObjectNodeID == nodeID && r.Path[len(r.Path)-1] == edge {
			return true
		}
	}
	return false
}

func playerHasChildEvidence(rels []Relationship, nodeID string) bool {
	for _, r := range rels {
		if len(r.Path) == 0 {
			continue
		}
		// A first hop along a child edge means the subject has a child;
		// a final hop along a parent edge means the object is the
		// parent, which evidences the same thing from the other side.
		if r.SubjectNodeID == nodeID && edgeIsChild(r.Path[0]) {
			return true
		}
		if r.ObjectNodeID == nodeID && edgeIsParent(r.Path[len(r.Path)-1]) {
			return true
		}
	}
	return false
}

func walkRelationshipPath(store *NodeStore, rel Relationship, now time.Time) {
	currentID := rel.SubjectNodeID

	for i, edge := range rel.Path {
		last := i == len(rel.Path)-1

		var nextID string
		if last {
			nextID = rel.ObjectNodeID
		} else {
			nextID = virtualNodeID(rel.SubjectNodeID, rel.Path[:i+1])
		}

		next, exists := store.Get(nextID)
		if !exists {
			gender := edgeGender(edge)
			next = &VirtualNode{
				ID:      nextID,
				Gender:  gender,
				KeyNode: true,
				EFU: efuStatus{
					// A node whose gender is pinned by its edge type
					// needs no upward confirmation of its own.
					Upward: gender != GenderUnknown,
				},
				CreatedAt: now,
				UpdatedAt: now,
			}
			store.Put(next)
		}

		linkStep(store, currentID, next, edge)
		currentID = nextID
	}
}

// linkStep wires one path hop into the relational model, in both
// directions where the parent's gender allows a concrete pointer.
func linkStep(store *NodeStore, currentID string, next *VirtualNode, edge EdgeType) {
	current, _ := store.Get(currentID)

	switch {
	case edgeIsParent(edge):
		// Moving up: next is current's parent.
		next.ChildIDs = addUnique(next.ChildIDs, currentID)
		if current != nil {
			switch next.Gender {
			case GenderMale:
				if current.FatherID == "" {
					current.FatherID = next.ID
				}
			case GenderFemale:
				if current.MotherID == "" {
					current.MotherID = next.ID
				}
			}
		}
	case edgeIsChild(edge):
		// Moving down: current is next's parent.
		var parentGender Gender = GenderUnknown
		if current != nil {
			parentGender = current.Gender
			current.ChildIDs = addUnique(current.ChildIDs, next.ID)
		}
		switch parentGender {
		case GenderMale:
			if next.FatherID == "" {
				next.FatherID = currentID
			}
		case GenderFemale:
			if next.MotherID == "" {
				next.MotherID = currentID
			}
		}
	case edge == EdgeSpouse:
		next.SpouseIDs = addUnique(next.SpouseIDs, currentID)
		if current != nil {
			current.SpouseIDs = addUnique(current.SpouseIDs, next.ID)
		}
	}
}

// maxDedupPasses caps the fixed-point merge loops as a safety valve; a
// converging store never comes close.
const maxDedupPasses = 20

// dedupNodeStore collapses virtual nodes that must be the same person:
// when one child lists two or more same-gender virtual parents, all but
// the first are merged into it. Merging can cascade a new duplicate one
// generation up, so the pass repeats until nothing merges.
func dedupNodeStore(store *NodeStore) {
	for pass := 0; pass < maxDedupPasses; pass++ {
		if !dedupOnePass(store) {
			break
		}
	}
}

func dedupOnePass(store *NodeStore) bool {
	fathersOf := make(map[string][]string)
	mothersOf := make(map[string][]string)
	var childOrder []string

	for _, n := range store.All() {
		if n.IsPlayer {
			continue
		}
		for _, childID := range n.ChildIDs {
			var group map[string][]string
			switch n.Gender {
			case GenderMale:
				group = fathersOf
			case GenderFemale:
				group = mothersOf
			default:
				continue
			}
			if _, seen := group[childID]; !seen {
				childOrder = append(childOrder, childID)
			}
			group[childID] = append(group[childID], n.ID)
		}
	}

	merged := false
	for _, group := range []map[string][]string{fathersOf, mothersOf} {
		for _, childID := range childOrder {
			parents := group[childID]
			if len(parents) < 2 {
				continue
			}
			keepID := parents[0]
			for _, removeID := range parents[1:] {
				if removeID == keepID || !store.Has(removeID) || !store.Has(keepID) {
					continue
				}
				mergeVirtualNodes(store, keepID, removeID)
				merged = true
			}
		}
	}
	return merged
}

// mergeVirtualNodes folds removeID into keepID: relationship sets are
// unioned, missing scalars are back-filled (an already-set value always
// wins), every reference to the removed id anywhere in the store is
// rewritten, and the removed node is deleted. Self-references introduced
// by the rewrite are dropped.
func mergeVirtualNodes(store *NodeStore, keepID, removeID string) {
	keep, okKeep := store.Get(keepID)
	remove, okRemove := store.Get(removeID)
	if !okKeep || !okRemove || keepID == removeID {
		return
	}

	if keep.Name == "" && remove.Name != "" {
		keep.Name = remove.Name
	}
	if keep.Gender == GenderUnknown && remove.Gender != GenderUnknown {
		keep.Gender = remove.Gender
	}
	if keep.Birthday == "" && remove.Birthday != "" {
		keep.Birthday = remove.Birthday
	}
	if keep.FatherID == "" && remove.FatherID != "" {
		keep.FatherID = remove.FatherID
	}
	if keep.MotherID == "" && remove.MotherID != "" {
		keep.MotherID = remove.MotherID
	}

	for _, id := range remove.SpouseIDs {
		if id != keepID {
			keep.SpouseIDs = addUnique(keep.SpouseIDs, id)
		}
	}
	for _, id := range remove.ChildIDs {
		if id != keepID {
			keep.ChildIDs = addUnique(keep.ChildIDs, id)
		}
	}

	keep.EFU.Upward = keep.EFU.Upward || remove.EFU.Upward
	keep.EFU.Lateral = keep.EFU.Lateral || remove.EFU.Lateral
	keep.EFU.Downward = keep.EFU.Downward || remove.EFU.Downward
	keep.KeyNode = keep.KeyNode || remove.KeyNode
	keep.Terminal = keep.Terminal && remove.Terminal

	store.Delete(removeID)

	for _, n := range store.All() {
		if n.FatherID == removeID {
			n.FatherID = keepID
		}
		if n.MotherID == removeID {
			n.MotherID = keepID
		}
		n.ChildIDs = rewriteRefs(n.ChildIDs, removeID, keepID, n.ID)
		n.SpouseIDs = rewriteRefs(n.SpouseIDs, removeID, keepID, n.ID)
	}
	if keep.FatherID == keepID {
		keep.FatherID = ""
	}
	if keep.MotherID == keepID {
		keep.MotherID = ""
	}

	keep.UpdatedAt = time.Now()
}

// rewriteRefs replaces old with new in an id set, dropping duplicates
// and references to the owning node itself.
func rewriteRefs(ids []string, oldID, newID, selfID string) []string {
	out := ids[:0]
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == oldID {
			id = newID
		}
		if id == selfID || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
