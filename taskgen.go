/*
Copyright © 2026 Wei-Hsuan Chen <weihsuan.c@fastmail.com>
*/

package main

import (
	"fmt"
	"strings"
	"time"
)

// humanNodeLabel renders a node id as something a player can recognize.
// Named nodes use their name directly. For path-derived ids the path is
// unwound from the nearest already-named ancestor, so once "祖父" is
// named 王志遠, his son reads 王志遠的兒子 instead of a three-hop chain.
func humanNodeLabel(nodeID string, store *NodeStore) string {
	if vnode, ok := store.Get(nodeID); ok && vnode.Name != "" {
		return vnode.Name
	}

	subjectID, path, ok := parseVirtualID(nodeID)
	if !ok {
		return nodeID
	}

	subjectName := "玩家"
	if subject, ok := store.Get(subjectID); ok && subject.Name != "" {
		subjectName = subject.Name
	}

	for i := len(path) - 1; i >= 1; i-- {
		ancestorID := virtualNodeID(subjectID, path[:i])
		ancestor, ok := store.Get(ancestorID)
		if !ok || ancestor.Name == "" {
			continue
		}
		return ancestor.Name + "的" + pathLabel(path[i:])
	}

	return subjectName + "的" + pathLabel(path)
}

// taskFactory builds tasks over one room's node store with a running
// sequence number so task ids stay unique for the room's lifetime.
type taskFactory struct {
	store *NodeStore
	seq   int
}

func (f *taskFactory) next() int {
	f.seq++
	return f.seq
}

func (f *taskFactory) base(kind string, taskID string, priority TaskPriority, dim EfuDimension, targetID string) TaskBase {
	return TaskBase{
		Type:         kind,
		TaskID:       taskID,
		Priority:     priority,
		Dimension:    dim,
		TargetNodeID: targetID,
		CreatedAt:    time.Now().UnixMilli(),
	}
}

func (f *taskFactory) naming(vnode *VirtualNode, priority TaskPriority) *NamingTask {
	t := &NamingTask{
		TaskBase: f.base(TaskNodeNaming,
			fmt.Sprintf("task_naming_%s_%d", vnode.ID, f.next()),
			priority, DimOptional, vnode.ID),
		TargetNodeLabel: humanNodeLabel(vnode.ID, f.store),
	}

	// Sibling disambiguation: when the parent has several children the
	// client needs to ask which one this is.
	parentID := vnode.FatherID
	if parentID == "" {
		parentID = vnode.MotherID
	}
	if parentID != "" {
		if parent, ok := f.store.Get(parentID); ok && len(parent.ChildIDs) > 1 {
			if parent.Name != "" {
				t.ParentName = parent.Name
			} else {
				t.ParentName = humanNodeLabel(parentID, f.store)
			}
			for i, childID := range parent.ChildIDs {
				if childID == vnode.ID {
					t.SiblingIndex = i + 1
					continue
				}
				if sibling, ok := f.store.Get(childID); ok && sibling.Name != "" {
					t.KnownSiblingNames = append(t.KnownSiblingNames, sibling.Name)
				}
			}
		}
	}

	return t
}

func (f *taskFactory) attribute(vnode *VirtualNode, attr string, priority TaskPriority) *AttributeTask {
	dim := DimUpward
	if attr == "birthday" {
		dim = DimOptional
	}
	return &AttributeTask{
		TaskBase: f.base(TaskAttributeFilling,
			fmt.Sprintf("task_attr_%s_%s_%d", vnode.ID, attr, f.next()),
			priority, dim, vnode.ID),
		TargetNodeName: humanNodeLabel(vnode.ID, f.store),
		AttributeType:  attr,
	}
}

func (f *taskFactory) upward(vnode *VirtualNode, parentType string, priority TaskPriority) *UpwardTask {
	return &UpwardTask{
		TaskBase: f.base(TaskUpwardTracing,
			fmt.Sprintf("task_upward_%s_%s_%d", vnode.ID, parentType, f.next()),
			priority, DimUpward, vnode.ID),
		TargetNodeName: humanNodeLabel(vnode.ID, f.store),
		ParentType:     parentType,
	}
}

func (f *taskFactory) lateral(vnode *VirtualNode, priority TaskPriority) *LateralTask {
	return &LateralTask{
		TaskBase: f.base(TaskLateralInquiry,
			fmt.Sprintf("task_lateral_%s_%d", vnode.ID, f.next()),
			priority, DimLateral, vnode.ID),
		TargetNodeName: humanNodeLabel(vnode.ID, f.store),
	}
}

func (f *taskFactory) downward(vnode *VirtualNode, priority TaskPriority) *DownwardTask {
	var names []string
	for _, childID := range vnode.ChildIDs {
		if child, ok := f.store.Get(childID); ok && child.Name != "" {
			names = append(names, child.Name)
		}
	}
	return &DownwardTask{
		TaskBase: f.base(TaskDownwardInquiry,
			fmt.Sprintf("task_downward_%s_%d", vnode.ID, f.next()),
			priority, DimDownward, vnode.ID),
		TargetNodeName:     humanNodeLabel(vnode.ID, f.store),
		KnownChildrenCount: len(vnode.ChildIDs),
		KnownChildrenNames: names,
	}
}

// generateTasks produces the initial backlog. Category order is part of
// the contract: earlier categories get the more urgent priorities, and
// upward questions come before downward ones because "who is X's
// parent" has a unique answer while "who is X's child" may not. Facts
// already known never generate a task.
func generateTasks(f *taskFactory) []Task {
	var tasks []Task

	pick := func(key bool, ifKey, ifNot TaskPriority) TaskPriority {
		if key {
			return ifKey
		}
		return ifNot
	}

	for _, vnode := range f.store.All() {
		if vnode.IsPlayer || vnode.Name != "" {
			continue
		}
		tasks = append(tasks, f.naming(vnode, pick(vnode.KeyNode, PriorityL1, PriorityL4)))
	}

	for _, vnode := range f.store.All() {
		if vnode.IsPlayer || !vnode.KeyNode || vnode.EFU.Upward {
			continue
		}
		if vnode.FatherID == "" {
			tasks = append(tasks, f.upward(vnode, "father", PriorityL1))
		}
		if vnode.MotherID == "" {
			tasks = append(tasks, f.upward(vnode, "mother", PriorityL1))
		}
	}

	for _, vnode := range f.store.All() {
		if vnode.IsPlayer || vnode.Gender != GenderUnknown {
			continue
		}
		tasks = append(tasks, f.attribute(vnode, "gender", pick(vnode.KeyNode, PriorityL2, PriorityL4)))
	}

	for _, vnode := range f.store.All() {
		if !vnode.KeyNode || vnode.EFU.Lateral {
			continue
		}
		if len(vnode.SpouseIDs) > 0 {
			// Spouse already evidenced by a claim; nothing to ask.
			vnode.EFU.Lateral = true
			continue
		}
		tasks = append(tasks, f.lateral(vnode, PriorityL2))
	}

	for _, vnode := range f.store.All() {
		if !vnode.KeyNode || vnode.EFU.Downward {
			continue
		}
		tasks = append(tasks, f.downward(vnode, PriorityL2))
	}

	for _, vnode := range f.store.All() {
		if vnode.IsPlayer || vnode.Birthday != "" {
			continue
		}
		tasks = append(tasks, f.attribute(vnode, "birthday", PriorityL5))
	}

	return tasks
}

// spawnSpouseNode reacts to a "yes, X has a spouse" answer: one
// terminal node of the opposite gender sharing X's children, plus a
// naming task and, when the gender could not be inferred, a gender task.
func spawnSpouseNode(f *taskFactory, targetID string) (*VirtualNode, []Task) {
	target, ok := f.store.Get(targetID)
	if !ok {
		return nil, nil
	}

	spouseID := dynamicNodeID(targetID, "S")
	if existing, ok := f.store.Get(spouseID); ok {
		return existing, nil
	}

	gender := GenderUnknown
	switch target.Gender {
	case GenderMale:
		gender = GenderFemale
	case GenderFemale:
		gender = GenderMale
	}

	now := time.Now()
	spouse := &VirtualNode{
		ID:       spouseID,
		Gender:   gender,
		Terminal: true,
		// Terminal nodes are never traced further in any direction.
		EFU:       efuStatus{Upward: true, Lateral: true, Downward: true},
		SpouseIDs: []string{targetID},
		ChildIDs:  append([]string{}, target.ChildIDs...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.store.Put(spouse)
	target.SpouseIDs = addUnique(target.SpouseIDs, spouseID)

	tasks := []Task{f.naming(spouse, PriorityL1)}
	if gender == GenderUnknown {
		tasks = append(tasks, f.attribute(spouse, "gender", PriorityL2))
	}
	return spouse, tasks
}

// spawnChildNodes reacts to "X has N more children": N terminal child
// nodes with parent pointers from X and X's first spouse, each with a
// naming and a gender task.
func spawnChildNodes(f *taskFactory, targetID string, count int) ([]*VirtualNode, []Task) {
	target, ok := f.store.Get(targetID)
	if !ok || count <= 0 {
		return nil, nil
	}

	var spouse *VirtualNode
	if len(target.SpouseIDs) > 0 {
		spouse, _ = f.store.Get(target.SpouseIDs[0])
	}

	var nodes []*VirtualNode
	var tasks []Task
	now := time.Now()

	for i := 1; i <= count; i++ {
		childID := dynamicNodeID(targetID, fmt.Sprintf("C_any_%d", i))
		if f.store.Has(childID) {
			continue
		}

		child := &VirtualNode{
			ID:        childID,
			Gender:    GenderUnknown,
			Terminal:  true,
			EFU:       efuStatus{Upward: true, Lateral: true, Downward: true},
			CreatedAt: now,
			UpdatedAt: now,
		}
		switch target.Gender {
		case GenderMale:
			child.FatherID = targetID
		case GenderFemale:
			child.MotherID = targetID
		}
		if spouse != nil {
			switch spouse.Gender {
			case GenderMale:
				child.FatherID = spouse.ID
			case GenderFemale:
				child.MotherID = spouse.ID
			}
			spouse.ChildIDs = addUnique(spouse.ChildIDs, childID)
		}

		f.store.Put(child)
		target.ChildIDs = addUnique(target.ChildIDs, childID)
		nodes = append(nodes, child)

		tasks = append(tasks, f.naming(child, PriorityL1))
		tasks = append(tasks, f.attribute(child, "gender", PriorityL2))
	}

	return nodes, tasks
}

// detectSameNameNodes scans for other nodes carrying the exact trimmed
// name that was just assigned and emits one convergence question per
// match. A rejected convergence is never re-asked, so the scan only
// fires at naming time.
func detectSameNameNodes(f *taskFactory, namedNodeID, name string) []Task {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil
	}

	var tasks []Task
	for _, vnode := range f.store.All() {
		if vnode.ID == namedNodeID || strings.TrimSpace(vnode.Name) != trimmed {
			continue
		}
		tasks = append(tasks, &ConvergenceTask{
			TaskBase: f.base(TaskNodeConvergence,
				fmt.Sprintf("task_convergence_%s_%s_%d", namedNodeID, vnode.ID, time.Now().UnixMilli()),
				PriorityL2, DimUpward, namedNodeID),
			TargetNodeName:    fmt.Sprintf("%s（%s）", humanNodeLabel(namedNodeID, f.store), trimmed),
			CandidateNodeID:   vnode.ID,
			CandidateNodeName: fmt.Sprintf("%s（%s）", humanNodeLabel(vnode.ID, f.store), trimmed),
		})
	}
	return tasks
}

// propagateNaming refreshes task labels after a node gains a name:
// tasks targeting the node directly show the name, tasks whose target
// path passes through it get a re-simplified label, and sibling naming
// tasks learn the new name for disambiguation.
func propagateNaming(f *taskFactory, nodeID, name string, tasks ...[]Task) {
	named, _ := f.store.Get(nodeID)

	update := func(t Task) {
		base := t.Base()
		switch {
		case base.TargetNodeID == nodeID:
			setTaskDisplayName(t, name)
		case strings.HasPrefix(base.TargetNodeID, nodeID+"_"):
			current := taskDisplayName(t)
			if strings.Contains(current, "的") {
				setTaskDisplayName(t, humanNodeLabel(base.TargetNodeID, f.store))
			}
		}

		naming, ok := t.(*NamingTask)
		if !ok || named == nil || base.TargetNodeID == nodeID {
			return
		}
		sibling, ok := f.store.Get(base.TargetNodeID)
		if !ok {
			return
		}
		sameFather := sibling.FatherID != "" && sibling.FatherID == named.FatherID
		sameMother := sibling.MotherID != "" && sibling.MotherID == named.MotherID
		if sameFather || sameMother {
			naming.KnownSiblingNames = addUnique(naming.KnownSiblingNames, name)
		}
	}

	for _, list := range tasks {
		for _, t := range list {
			update(t)
		}
	}
}

// taskStillNeeded re-checks a task right before dispatch; another
// player's answer may have filled the fact in the meantime, and merged
// nodes disappear from the store entirely.
func taskStillNeeded(t Task, store *NodeStore) bool {
	vnode, ok := store.Get(t.Base().TargetNodeID)
	if !ok {
		return false
	}

	switch v := t.(type) {
	case *NamingTask:
		return vnode.Name == ""
	case *AttributeTask:
		if v.AttributeType == "gender" {
			return vnode.Gender == GenderUnknown
		}
		return vnode.Birthday == ""
	case *UpwardTask:
		if v.ParentType == "father" {
			return vnode.FatherID == ""
		}
		return vnode.MotherID == ""
	case *LateralTask:
		return !vnode.EFU.Lateral
	case *DownwardTask:
		return !vnode.EFU.Downward
	case *ConvergenceTask:
		return store.Has(v.CandidateNodeID)
	}
	return true
}
