/*
Copyright © 2026 Wei-Hsuan Chen <weihsuan.c@fastmail.com>
*/

package main

import (
	"time"

	"go.uber.org/zap"
)

// DisplayNode and DisplayEdge form the client-facing skeleton graph.
// Field names are part of the wire contract.
type DisplayNode struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Gender    Gender `json:"gender"`
	IsPlayer  bool   `json:"isPlayer"`
	PlayerID  string `json:"playerId,omitempty"`
	IsVirtual bool   `json:"isVirtual"`
	Birthday  string `json:"birthday,omitempty"`
	Confirmed bool   `json:"isConfirmed"`
}

type DisplayEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Type  string `json:"type"` // "parent" or "spouse"
	Label string `json:"label"`
}

type DisplayGraph struct {
	Nodes       []*DisplayNode `json:"nodes"`
	Edges       []DisplayEdge  `json:"edges"`
	GeneratedAt int64          `json:"generatedAt"`
}

// edgeHopLabel is the short per-hop label shown on display edges.
func edgeHopLabel(e EdgeType) string {
	switch e {
	case EdgeParentFather:
		return "父"
	case EdgeParentMother:
		return "母"
	case EdgeParentAny:
		return "父/母"
	case EdgeChildMale:
		return "子"
	case EdgeChildFemale:
		return "女"
	case EdgeChildAny:
		return "子女"
	case EdgeSpouse:
		return "配偶"
	}
	return string(e)
}

// graphBuilder keeps node insertion order so rebuilt graphs come out
// stable for the same inputs.
type graphBuilder struct {
	nodes map[string]*DisplayNode
	order []string
	edges []DisplayEdge
}

func newGraphBuilder() *graphBuilder {
	return &graphBuilder{nodes: make(map[string]*DisplayNode)}
}

func (b *graphBuilder) put(n *DisplayNode) {
	if _, ok := b.nodes[n.ID]; !ok {
		b.order = append(b.order, n.ID)
	}
	b.nodes[n.ID] = n
}

func (b *graphBuilder) delete(id string) {
	delete(b.nodes, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// addEdge appends an edge unless an equivalent one exists. Spouse edges
// are undirected for dedup purposes; parent edges compare exact from/to.
func (b *graphBuilder) addEdge(e DisplayEdge) {
	for _, existing := range b.edges {
		if existing.Type == "spouse" && e.Type == "spouse" &&
			((existing.From == e.From && existing.To == e.To) ||
				(existing.From == e.To && existing.To == e.From)) {
			return
		}
		if existing.Type == "parent" && e.Type == "parent" &&
			existing.From == e.From && existing.To == e.To {
			return
		}
	}
	b.edges = append(b.edges, e)
}

func (b *graphBuilder) dedupEdges() {
	seen := make(map[string]bool, len(b.edges))
	out := b.edges[:0]
	for _, e := range b.edges {
		var key string
		if e.Type == "spouse" {
			a, z := e.From, e.To
			if z < a {
				a, z = z, a
			}
			key = "spouse_" + a + "|" + z
		} else {
			key = "parent_" + e.From + "_" + e.To
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	b.edges = out
}

// buildSkeletonGraph produces the display graph from the accepted claims
// plus the current node store. The builder is stateless: rebuilding from
// the same inputs yields the same graph.
func buildSkeletonGraph(rels []Relationship, players []*Player, store *NodeStore) *DisplayGraph {
	b := newGraphBuilder()

	for _, p := range players {
		b.put(&DisplayNode{
			ID:        p.NodeID,
			Label:     p.Name,
			Gender:    p.Gender,
			IsPlayer:  true,
			PlayerID:  p.PlayerID,
			Birthday:  p.Birthday.Format("2006-01-02"),
			Confirmed: true,
		})
	}

	for _, rel := range rels {
		if len(rel.Path) == 0 {
			continue
		}
		if _, ok := b.nodes[rel.SubjectNodeID]; !ok {
			continue
		}
		if _, ok := b.nodes[rel.ObjectNodeID]; !ok {
			continue
		}
		b.walkClaim(rel)
	}

	b.convergeParents()

	if store != nil {
		b.overlayStore(store)
		b.repairOrphans(store)
	}

	nodes := make([]*DisplayNode, 0, len(b.order))
	for _, id := range b.order {
		if n, ok := b.nodes[id]; ok {
			nodes = append(nodes, n)
		}
	}

	return &DisplayGraph{
		Nodes:       nodes,
		Edges:       b.edges,
		GeneratedAt: time.Now().UnixMilli(),
	}
}

// walkClaim lays down intermediate virtual nodes keyed by the subject's
// path prefix, then one edge per hop. Sharing the id scheme with the
// node store means two claims along the same branch land on one node.
func (b *graphBuilder) walkClaim(rel Relationship) {
	nodeIDs := []string{rel.SubjectNodeID}

	for i := 0; i < len(rel.Path)-1; i++ {
		edge := rel.Path[i]
		virtID := virtualNodeID(rel.SubjectNodeID, rel.Path[:i+1])
		if _, ok := b.nodes[virtID]; !ok {
			label := "?"
			if i < len(rel.RoleLabels) {
				label = rel.RoleLabels[i]
			}
			b.put(&DisplayNode{
				ID:        virtID,
				Label:     label,
				Gender:    edgeGender(edge),
				IsVirtual: true,
			})
		}
		nodeIDs = append(nodeIDs, virtID)
	}
	nodeIDs = append(nodeIDs, rel.ObjectNodeID)

	for i, edge := range rel.Path {
		from, to := nodeIDs[i], nodeIDs[i+1]
		switch {
		case edgeIsParent(edge):
			b.addEdge(DisplayEdge{From: to, To: from, Type: "parent", Label: edgeHopLabel(edge)})
		case edgeIsChild(edge):
			b.addEdge(DisplayEdge{From: from, To: to, Type: "parent", Label: edgeHopLabel(edge)})
		default:
			b.addEdge(DisplayEdge{From: from, To: to, Type: "spouse", Label: "配偶"})
		}
	}
}

// convergeParents merges same-gender virtual parents of the same child
// until a full pass performs no merge, capped as a guard against
// pathological inputs.
func (b *graphBuilder) convergeParents() {
	for pass := 0; pass < maxDedupPasses; pass++ {
		if !b.convergeOnePass() {
			break
		}
	}
}

func (b *graphBuilder) convergeOnePass() bool {
	fathersOf := make(map[string][]string)
	mothersOf := make(map[string][]string)
	var childOrder []string

	for _, e := range b.edges {
		if e.Type != "parent" {
			continue
		}
		parent, ok := b.nodes[e.From]
		if !ok || !parent.IsVirtual {
			continue
		}
		var group map[string][]string
		switch parent.Gender {
		case GenderMale:
			group = fathersOf
		case GenderFemale:
			group = mothersOf
		default:
			continue
		}
		if _, seen := group[e.To]; !seen {
			childOrder = append(childOrder, e.To)
		}
		group[e.To] = append(group[e.To], e.From)
	}

	merged := false
	for _, group := range []map[string][]string{fathersOf, mothersOf} {
		for _, childID := range childOrder {
			parents := group[childID]
			if len(parents) < 2 {
				continue
			}
			keepID := parents[0]
			removed := make(map[string]bool)
			for _, id := range parents[1:] {
				if id != keepID {
					removed[id] = true
				}
			}
			if len(removed) == 0 {
				continue
			}
			for i := range b.edges {
				if removed[b.edges[i].From] {
					b.edges[i].From = keepID
				}
				if removed[b.edges[i].To] {
					b.edges[i].To = keepID
				}
			}
			for id := range removed {
				b.delete(id)
			}
			merged = true
		}
		if merged {
			b.dedupEdges()
		}
	}
	return merged
}

// overlayStore folds the relational store into the display graph:
// existing nodes pick up confirmed names, genders and birthdays; nodes
// that never appeared in a claim path (dynamically spawned spouses and
// children) are inserted along with edges from their own pointers.
func (b *graphBuilder) overlayStore(store *NodeStore) {
	for _, vnode := range store.All() {
		if existing, ok := b.nodes[vnode.ID]; ok {
			if vnode.Name != "" {
				existing.Label = vnode.Name
				existing.Confirmed = true
			}
			if vnode.Gender != GenderUnknown {
				existing.Gender = vnode.Gender
			}
			if vnode.Birthday != "" {
				existing.Birthday = vnode.Birthday
			}
			continue
		}

		label := vnode.Name
		if label == "" {
			label = "？"
		}
		b.put(&DisplayNode{
			ID:        vnode.ID,
			Label:     label,
			Gender:    vnode.Gender,
			IsPlayer:  vnode.IsPlayer,
			PlayerID:  vnode.PlayerID,
			IsVirtual: !vnode.IsPlayer,
			Birthday:  vnode.Birthday,
			Confirmed: vnode.Name != "",
		})

		for _, spouseID := range vnode.SpouseIDs {
			if _, ok := b.nodes[spouseID]; ok {
				b.addEdge(DisplayEdge{From: spouseID, To: vnode.ID, Type: "spouse", Label: "配偶"})
			}
		}
		for _, childID := range vnode.ChildIDs {
			if _, ok := b.nodes[childID]; ok {
				label := edgeHopLabel(EdgeParentFather)
				if vnode.Gender == GenderFemale {
					label = edgeHopLabel(EdgeParentMother)
				}
				b.addEdge(DisplayEdge{From: vnode.ID, To: childID, Type: "parent", Label: label})
			}
		}
		if vnode.FatherID != "" {
			if _, ok := b.nodes[vnode.FatherID]; ok {
				b.addEdge(DisplayEdge{From: vnode.FatherID, To: vnode.ID, Type: "parent", Label: "父"})
			}
		}
		if vnode.MotherID != "" {
			if _, ok := b.nodes[vnode.MotherID]; ok {
				b.addEdge(DisplayEdge{From: vnode.MotherID, To: vnode.ID, Type: "parent", Label: "母"})
			}
		}
	}
}

// repairOrphans is a cosmetic safety pass: a non-player node that ends
// up with no inbound parent edge floats to the top of the rendered
// layout, so try to reconstruct one from the store before giving up.
func (b *graphBuilder) repairOrphans(store *NodeStore) {
	hasParentEdge := make(map[string]bool)
	for _, e := range b.edges {
		if e.Type == "parent" {
			hasParentEdge[e.To] = true
		}
	}

	for _, id := range append([]string{}, b.order...) {
		node, ok := b.nodes[id]
		if !ok || node.IsPlayer || hasParentEdge[id] {
			continue
		}
		vnode, ok := store.Get(id)
		if !ok {
			continue
		}

		repaired := false
		if vnode.FatherID != "" {
			if _, ok := b.nodes[vnode.FatherID]; ok {
				b.addEdge(DisplayEdge{From: vnode.FatherID, To: id, Type: "parent", Label: "父"})
				repaired = true
			}
		}
		if vnode.MotherID != "" {
			if _, ok := b.nodes[vnode.MotherID]; ok {
				b.addEdge(DisplayEdge{From: vnode.MotherID, To: id, Type: "parent", Label: "母"})
				repaired = true
			}
		}

		if !repaired {
			for _, candidate := range store.All() {
				linked := false
				for _, childID := range candidate.ChildIDs {
					if childID == id {
						linked = true
						break
					}
				}
				if !linked {
					continue
				}
				if _, ok := b.nodes[candidate.ID]; !ok {
					continue
				}
				label := edgeHopLabel(EdgeParentFather)
				if candidate.Gender == GenderFemale {
					label = edgeHopLabel(EdgeParentMother)
				}
				b.addEdge(DisplayEdge{From: candidate.ID, To: id, Type: "parent", Label: label})
				repaired = true
				break
			}
		}

		if !repaired {
			logger.Warn("orphan display node without parent edge",
				zap.String("nodeId", id),
				zap.String("label", node.Label))
		}
	}
}
