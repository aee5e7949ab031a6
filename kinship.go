/*
Copyright © 2026 Wei-Hsuan Chen <weihsuan.c@fastmail.com>
*/

package main

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// EdgeType is one step in a kinship path, read left to right starting
// from the subject.
type EdgeType string

const (
	EdgeParentFather EdgeType = "P_f"
	EdgeParentMother EdgeType = "P_m"
	EdgeParentAny    EdgeType = "P_any"
	EdgeChildMale    EdgeType = "C_m"
	EdgeChildFemale  EdgeType = "C_f"
	EdgeChildAny     EdgeType = "C_any"
	EdgeSpouse       EdgeType = "S"
)

type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// maxPathDepth caps BFS exploration; anything further removed than five
// steps is outside the ontology anyway.
const maxPathDepth = 5

//go:embed kinshipmap.yaml
var kinshipRaw []byte

type kinshipEdge struct {
	Type   EdgeType `yaml:"type"`
	Target string   `yaml:"target"`
}

type kinshipNode struct {
	ID     string        `yaml:"id"`
	Gender string        `yaml:"gender"`
	Role   string        `yaml:"role"`
	TitleM string        `yaml:"title_m"`
	TitleF string        `yaml:"title_f"`
	Edges  []kinshipEdge `yaml:"edges"`
}

// titleEntry is one candidate resolution for a spoken title. genderKey
// records which gendered form of the node's title matched.
type titleEntry struct {
	nodeID    string
	genderKey byte // 'M' or 'F'
}

// KinshipMap is the loaded ontology. It is immutable after load and safe
// for concurrent reads.
type KinshipMap struct {
	nodes  map[string]*kinshipNode
	order  []string
	titles map[string][]titleEntry
}

// titleAliases folds common spoken variants onto the canonical titles the
// ontology carries. Age-ordered forms collapse onto the neutral sibling
// titles.
var titleAliases = map[string]string{
	"父親":  "爸爸",
	"老爸":  "爸爸",
	"母親":  "媽媽",
	"老媽":  "媽媽",
	"爺爺":  "祖父",
	"阿公":  "祖父",
	"奶奶":  "祖母",
	"阿嬤":  "祖母",
	"外祖父": "外公",
	"外祖母": "外婆",
	"哥哥":  "兄弟",
	"弟弟":  "兄弟",
	"姊姊":  "姊妹",
	"姐姐":  "姊妹",
	"妹妹":  "姊妹",
	"堂哥":  "堂兄弟",
	"堂弟":  "堂兄弟",
	"堂姊":  "堂姊妹",
	"堂姐":  "堂姊妹",
	"堂妹":  "堂姊妹",
	"表哥":  "表兄弟",
	"表弟":  "表兄弟",
	"表姊":  "表姊妹",
	"表姐":  "表姊妹",
	"表妹":  "表姊妹",
	"叔叔":  "叔伯",
	"伯伯":  "叔伯",
	"姑媽":  "姑姑",
	"姨媽":  "阿姨",
	"老公":  "丈夫",
	"先生":  "丈夫",
	"老婆":  "妻子",
	"太太":  "妻子",
	"姪子":  "侄子",
	"姪女":  "侄女",
	"外甥":  "侄子",
	"外甥女": "侄女",
	"孫":   "孫子",
}

var kinship = mustKinshipMap()

func mustKinshipMap() *KinshipMap {
	k, err := loadKinshipMap(kinshipRaw)
	if err != nil {
		panic(fmt.Sprintf("kinship ontology: %v", err))
	}
	return k
}

func loadKinshipMap(raw []byte) (*KinshipMap, error) {
	var list []*kinshipNode
	if err := yaml.Unmarshal(raw, &list); err != nil {
		return nil, err
	}

	k := &KinshipMap{
		nodes:  make(map[string]*kinshipNode, len(list)),
		titles: make(map[string][]titleEntry),
	}
	for _, n := range list {
		if n.ID == "" {
			return nil, fmt.Errorf("node without id")
		}
		if _, ok := k.nodes[n.ID]; ok {
			return nil, fmt.Errorf("duplicate node %q", n.ID)
		}
		k.nodes[n.ID] = n
		k.order = append(k.order, n.ID)

		if n.TitleM != "" {
			k.titles[n.TitleM] = append(k.titles[n.TitleM], titleEntry{n.ID, 'M'})
		}
		if n.TitleF != "" && n.TitleF != n.TitleM {
			k.titles[n.TitleF] = append(k.titles[n.TitleF], titleEntry{n.ID, 'F'})
		}
	}
	for _, n := range list {
		for _, e := range n.Edges {
			if _, ok := k.nodes[e.Target]; !ok {
				return nil, fmt.Errorf("node %q: edge to unknown node %q", n.ID, e.Target)
			}
		}
	}
	return k, nil
}

// PathDef is a resolved kinship path relative to a subject.
type PathDef struct {
	Path       []EdgeType
	GenderHint Gender
	// RoleLabels names the nodes strictly between self and the target,
	// so RoleLabels[i] labels the node reached after i+1 steps and the
	// slice is one shorter than Path.
	RoleLabels []string
}

// RoleLabel returns the display label of an ontology node, falling back
// to the node id for nodes without one.
func (k *KinshipMap) RoleLabel(nodeID string) string {
	if n, ok := k.nodes[nodeID]; ok && n.Role != "" {
		return n.Role
	}
	return nodeID
}

// TitleToPath resolves a spoken kinship title into an edge path starting
// at "self". Aliases are folded first, then candidates are filtered by
// speaker context (e.g. "paternal") when it narrows the field, and ties
// between equally short paths fall to ontology document order.
func (k *KinshipMap) TitleToPath(title, context string) (*PathDef, bool) {
	title = strings.TrimSpace(title)
	if canonical, ok := titleAliases[title]; ok {
		title = canonical
	}
	candidates := k.titles[title]
	if len(candidates) == 0 {
		return nil, false
	}

	if context != "" {
		var narrowed []titleEntry
		for _, c := range candidates {
			if strings.HasPrefix(c.nodeID, context+"_") || c.nodeID == context {
				narrowed = append(narrowed, c)
			}
		}
		if len(narrowed) > 0 {
			candidates = narrowed
		}
	}

	var best *PathDef
	for _, c := range candidates {
		path, labels, ok := k.shortestPath("self", c.nodeID)
		if !ok {
			continue
		}
		path = refineLastEdge(path, c.genderKey)
		if best == nil || len(path) < len(best.Path) {
			best = &PathDef{
				Path:       path,
				GenderHint: genderFromKey(c.genderKey),
				RoleLabels: labels,
			}
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// shortestPath runs BFS over the directed ontology graph. Among paths of
// equal length the first one found wins, which with a FIFO queue is the
// edge declaration order of the document.
func (k *KinshipMap) shortestPath(from, to string) ([]EdgeType, []string, bool) {
	type state struct {
		node   string
		path   []EdgeType
		labels []string
	}
	if from == to {
		return nil, nil, true
	}
	visited := map[string]bool{from: true}
	queue := []state{{node: from}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if len(cur.path) >= maxPathDepth {
			continue
		}
		n := k.nodes[cur.node]
		for _, e := range n.Edges {
			if visited[e.Target] {
				continue
			}
			visited[e.Target] = true
			path := append(append([]EdgeType{}, cur.path...), e.Type)
			if e.Target == to {
				// Labels name the nodes strictly between self and
				// target; the endpoints label themselves.
				return path, cur.labels, true
			}
			labels := append(append([]string{}, cur.labels...), k.RoleLabel(e.Target))
			queue = append(queue, state{e.Target, path, labels})
		}
	}
	return nil, nil, false
}

// refineLastEdge narrows a gender-ambiguous final step using the gendered
// title form that matched. Earlier steps stay untouched.
func refineLastEdge(path []EdgeType, genderKey byte) []EdgeType {
	if len(path) == 0 {
		return path
	}
	out := append([]EdgeType{}, path...)
	switch out[len(out)-1] {
	case EdgeChildAny:
		if genderKey == 'M' {
			out[len(out)-1] = EdgeChildMale
		} else if genderKey == 'F' {
			out[len(out)-1] = EdgeChildFemale
		}
	case EdgeParentAny:
		if genderKey == 'M' {
			out[len(out)-1] = EdgeParentFather
		} else if genderKey == 'F' {
			out[len(out)-1] = EdgeParentMother
		}
	}
	return out
}

func genderFromKey(key byte) Gender {
	switch key {
	case 'M':
		return GenderMale
	case 'F':
		return GenderFemale
	}
	return GenderUnknown
}

// edgeGender is the gender an edge implies for the person it points at.
func edgeGender(e EdgeType) Gender {
	switch e {
	case EdgeParentFather, EdgeChildMale:
		return GenderMale
	case EdgeParentMother, EdgeChildFemale:
		return GenderFemale
	}
	return GenderUnknown
}

func edgeIsParent(e EdgeType) bool {
	return e == EdgeParentFather || e == EdgeParentMother || e == EdgeParentAny
}

func edgeIsChild(e EdgeType) bool {
	return e == EdgeChildMale || e == EdgeChildFemale || e == EdgeChildAny
}

// joinPath renders an edge path as the underscore form used in virtual
// node ids and label keys, e.g. "P_f_C_m".
func joinPath(path []EdgeType) string {
	parts := make([]string, len(path))
	for i, e := range path {
		parts[i] = string(e)
	}
	return strings.Join(parts, "_")
}
