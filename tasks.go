/*
Copyright © 2026 Wei-Hsuan Chen <weihsuan.c@fastmail.com>
*/

package main

type TaskPriority string

const (
	PriorityL1 TaskPriority = "L1"
	PriorityL2 TaskPriority = "L2"
	PriorityL3 TaskPriority = "L3"
	PriorityL4 TaskPriority = "L4"
	PriorityL5 TaskPriority = "L5"
	PriorityL6 TaskPriority = "L6"
)

// priorityScore maps L1..L6 onto 9..4 for dispatch scoring.
func priorityScore(p TaskPriority) float64 {
	switch p {
	case PriorityL1:
		return 9
	case PriorityL2:
		return 8
	case PriorityL3:
		return 7
	case PriorityL4:
		return 6
	case PriorityL5:
		return 5
	case PriorityL6:
		return 4
	}
	return 5
}

// demote lowers a priority by one level, bottoming out at L6.
func demote(p TaskPriority) TaskPriority {
	switch p {
	case PriorityL1:
		return PriorityL2
	case PriorityL2:
		return PriorityL3
	case PriorityL3:
		return PriorityL4
	case PriorityL4:
		return PriorityL5
	default:
		return PriorityL6
	}
}

type EfuDimension string

const (
	DimUpward   EfuDimension = "upward"
	DimLateral  EfuDimension = "lateral"
	DimDownward EfuDimension = "downward"
	DimOptional EfuDimension = "optional"
)

const (
	TaskNodeNaming       = "node-naming"
	TaskAttributeFilling = "attribute-filling"
	TaskUpwardTracing    = "upward-tracing"
	TaskNodeConvergence  = "node-convergence"
	TaskAgeOrdering      = "age-ordering"
	TaskLateralInquiry   = "lateral-inquiry"
	TaskDownwardInquiry  = "downward-inquiry"
)

// TaskBase carries the fields shared by every task variant. Variants
// embed it, so any task can be handled through the Task interface
// without type switches for the common lifecycle fields.
type TaskBase struct {
	Type             string       `json:"type"`
	TaskID           string       `json:"taskId"`
	Priority         TaskPriority `json:"priority"`
	Dimension        EfuDimension `json:"efuDimension"`
	TargetNodeID     string       `json:"targetNodeId"`
	AssignedPlayerID string       `json:"assignedPlayerId,omitempty"`
	Locked           bool         `json:"isLocked"`
	CreatedAt        int64        `json:"createdAt"`
	Answer           any          `json:"answer,omitempty"`
	CompletedAt      int64        `json:"completedAt,omitempty"`
}

func (b *TaskBase) Base() *TaskBase { return b }

// Task is the tagged union of the data-filling work items.
type Task interface {
	Base() *TaskBase
}

// NamingTask asks a player to put a name on a virtual node. When the
// node has siblings, the disambiguation fields let the client phrase
// "which of {parent}'s children is this?".
type NamingTask struct {
	TaskBase
	TargetNodeLabel   string   `json:"targetNodeLabel"`
	SiblingIndex      int      `json:"siblingIndex,omitempty"`
	KnownSiblingNames []string `json:"knownSiblingNames,omitempty"`
	ParentName        string   `json:"parentName,omitempty"`
}

// AttributeTask fills a single missing attribute (gender or birthday).
type AttributeTask struct {
	TaskBase
	TargetNodeName string `json:"targetNodeName"`
	AttributeType  string `json:"attributeType"` // "gender" or "birthday"
}

// UpwardTask asks who a node's father or mother is.
type UpwardTask struct {
	TaskBase
	TargetNodeName string `json:"targetNodeName"`
	ParentType     string `json:"parentType"` // "father" or "mother"
}

// ConvergenceTask asks whether two same-named nodes derived from
// different paths are the same person.
type ConvergenceTask struct {
	TaskBase
	TargetNodeName    string `json:"targetNodeName"`
	CandidateNodeID   string `json:"candidateNodeId"`
	CandidateNodeName string `json:"candidateNodeName"`
}

// AgeOrderingTask asks a player to order siblings by age. Defined for
// the wire contract; the generator currently never emits one.
type AgeOrderingTask struct {
	TaskBase
	NodeIDs   []string `json:"nodeIds"`
	NodeNames []string `json:"nodeNames"`
}

// LateralTask asks whether a node has a spouse.
type LateralTask struct {
	TaskBase
	TargetNodeName string `json:"targetNodeName"`
}

// DownwardTask asks how many children a node has beyond those already
// known.
type DownwardTask struct {
	TaskBase
	TargetNodeName     string   `json:"targetNodeName"`
	KnownChildrenCount int      `json:"knownChildrenCount"`
	KnownChildrenNames []string `json:"knownChildrenNames"`
}

// taskDisplayName returns whichever human-readable label the variant
// carries.
func taskDisplayName(t Task) string {
	switch v := t.(type) {
	case *NamingTask:
		return v.TargetNodeLabel
	case *AttributeTask:
		return v.TargetNodeName
	case *UpwardTask:
		return v.TargetNodeName
	case *ConvergenceTask:
		return v.TargetNodeName
	case *LateralTask:
		return v.TargetNodeName
	case *DownwardTask:
		return v.TargetNodeName
	}
	return t.Base().TargetNodeID
}

// setTaskDisplayName overwrites the variant's label field, used when a
// target node gains a real name.
func setTaskDisplayName(t Task, name string) {
	switch v := t.(type) {
	case *NamingTask:
		v.TargetNodeLabel = name
	case *AttributeTask:
		v.TargetNodeName = name
	case *UpwardTask:
		v.TargetNodeName = name
	case *ConvergenceTask:
		v.TargetNodeName = name
	case *LateralTask:
		v.TargetNodeName = name
	case *DownwardTask:
		v.TargetNodeName = name
	}
}
