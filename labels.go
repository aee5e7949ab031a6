/*
Copyright © 2026 Wei-Hsuan Chen <weihsuan.c@fastmail.com>
*/

package main

import "strings"

// pathLabels maps whole edge paths (underscore form, relative to the
// subject) to the spoken title a player would use. Paths missing here
// fall back to a composed chain in pathLabel.
var pathLabels = map[string]string{
	"P_f": "爸爸",
	"P_m": "媽媽",
	"S":   "配偶",
	"C_m": "兒子",
	"C_f": "女兒",

	"C_any": "子女",

	"P_f_P_f": "祖父",
	"P_f_P_m": "祖母",
	"P_m_P_f": "外公",
	"P_m_P_m": "外婆",

	"P_f_C_m":   "兄弟",
	"P_f_C_f":   "姊妹",
	"P_m_C_m":   "兄弟",
	"P_m_C_f":   "姊妹",
	"P_f_C_any": "兄弟姊妹",
	"P_m_C_any": "兄弟姊妹",

	"C_m_C_m": "孫子",
	"C_m_C_f": "孫女",
	"C_f_C_m": "孫子",
	"C_f_C_f": "孫女",

	"P_f_C_m_C_m": "侄子",
	"P_f_C_m_C_f": "侄女",
	"P_f_C_f_C_m": "侄子",
	"P_f_C_f_C_f": "侄女",
	"P_m_C_m_C_m": "侄子",
	"P_m_C_m_C_f": "侄女",
	"P_m_C_f_C_m": "侄子",
	"P_m_C_f_C_f": "侄女",

	"P_f_P_f_C_m": "叔伯",
	"P_f_P_f_C_f": "姑姑",
	"P_f_P_m_C_m": "叔伯",
	"P_f_P_m_C_f": "姑姑",
	"P_m_P_f_C_m": "舅舅",
	"P_m_P_f_C_f": "阿姨",
	"P_m_P_m_C_m": "舅舅",
	"P_m_P_m_C_f": "阿姨",

	"P_f_P_f_P_f": "曾祖父",
	"P_f_P_f_P_m": "曾祖母",
	"P_m_P_f_P_f": "外曾祖父",
	"P_m_P_f_P_m": "外曾祖母",

	"P_f_P_f_C_m_C_m": "堂兄弟",
	"P_f_P_f_C_m_C_f": "堂姊妹",
	"P_f_P_m_C_m_C_m": "堂兄弟",
	"P_f_P_m_C_m_C_f": "堂姊妹",
	"P_f_P_f_C_f_C_m": "表兄弟",
	"P_f_P_f_C_f_C_f": "表姊妹",
	"P_f_P_m_C_f_C_m": "表兄弟",
	"P_f_P_m_C_f_C_f": "表姊妹",
	"P_m_P_f_C_m_C_m": "表兄弟",
	"P_m_P_f_C_m_C_f": "表姊妹",
	"P_m_P_m_C_m_C_m": "表兄弟",
	"P_m_P_m_C_m_C_f": "表姊妹",
	"P_m_P_f_C_f_C_m": "表兄弟",
	"P_m_P_f_C_f_C_f": "表姊妹",
	"P_m_P_m_C_f_C_m": "表兄弟",
	"P_m_P_m_C_f_C_f": "表姊妹",
}

// edgeWords is the fallback vocabulary for paths without a dedicated
// title; steps get chained with 的, e.g. 爸爸的配偶的兒子.
var edgeWords = map[EdgeType]string{
	EdgeParentFather: "爸爸",
	EdgeParentMother: "媽媽",
	EdgeParentAny:    "家長",
	EdgeChildMale:    "兒子",
	EdgeChildFemale:  "女兒",
	EdgeChildAny:     "小孩",
	EdgeSpouse:       "配偶",
}

// pathLabel renders an edge path relative to the subject as a spoken
// title.
func pathLabel(path []EdgeType) string {
	if len(path) == 0 {
		return "本人"
	}
	if label, ok := pathLabels[joinPath(path)]; ok {
		return label
	}
	parts := make([]string, len(path))
	for i, e := range path {
		parts[i] = edgeWords[e]
	}
	return strings.Join(parts, "的")
}

const virtualPrefix = "virt_"

// virtualNodeID builds the deterministic id of a skeleton node: the
// subject's own node id plus the edge prefix that reaches it.
func virtualNodeID(subjectNodeID string, path []EdgeType) string {
	return virtualPrefix + subjectNodeID + "_" + joinPath(path)
}

// parseVirtualID splits a virtual node id back into its subject node id
// and edge path. Subject node ids never contain underscores, so the
// first token after the prefix is the subject and the rest must parse as
// a well-formed edge sequence. Dynamically spawned children carry a
// trailing ordinal (e.g. "_C_any_2") which is ignored here.
func parseVirtualID(id string) (string, []EdgeType, bool) {
	rest, ok := strings.CutPrefix(id, virtualPrefix)
	if !ok {
		return "", nil, false
	}
	tokens := strings.Split(rest, "_")
	for len(tokens) > 0 && isDigits(tokens[len(tokens)-1]) {
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) < 2 {
		return "", nil, false
	}
	subject := tokens[0]
	path, ok := parseEdgeTokens(tokens[1:])
	if !ok {
		return "", nil, false
	}
	return subject, path, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// dynamicNodeID derives the id of a spawned spouse/child node from its
// anchor node, keeping the result parseable by parseVirtualID.
func dynamicNodeID(anchorID, suffix string) string {
	if strings.HasPrefix(anchorID, virtualPrefix) {
		return anchorID + "_" + suffix
	}
	return virtualPrefix + anchorID + "_" + suffix
}

func parseEdgeTokens(tokens []string) ([]EdgeType, bool) {
	var path []EdgeType
	for i := 0; i < len(tokens); {
		switch tokens[i] {
		case "S":
			path = append(path, EdgeSpouse)
			i++
		case "P", "C":
			if i+1 >= len(tokens) {
				return nil, false
			}
			e := EdgeType(tokens[i] + "_" + tokens[i+1])
			switch e {
			case EdgeParentFather, EdgeParentMother, EdgeParentAny,
				EdgeChildMale, EdgeChildFemale, EdgeChildAny:
				path = append(path, e)
			default:
				return nil, false
			}
			i += 2
		default:
			return nil, false
		}
	}
	if len(path) == 0 {
		return nil, false
	}
	return path, true
}
