// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package hproj models a project file as a flat graph of identified
// objects: groups, file references, targets, build phases, and the
// memberships that tie them together.
//
// The package is a data model with a YAML codec. It enforces identity
// rules (unique IDs, a root group, registered objects) but no domain
// policy: it will happily hold a file reference no group links to, or a
// membership whose file is gone. Detecting and repairing those states
// is the job of the engine layered on top.
//
// Thread Safety:
//
//	Project is NOT safe for concurrent use. Callers mutate a project
//	from a single goroutine; the CLI guarantees this by construction.
package hproj

import (
	"fmt"
	"sort"
)

// Project is the object registry for one project file.
//
// Every object lives in a flat map keyed by NodeID. Structure (which
// group contains what, which phase lists which membership) is carried
// entirely by ID slices inside the objects themselves.
type Project struct {
	// Name is the project display name.
	Name string

	// rootID is the identity of the root group. Always set.
	rootID NodeID

	// productsID is the identity of the products group, or "" when the
	// project has none.
	productsID NodeID

	// targetIDs holds target identities in display order.
	targetIDs []NodeID

	// objects maps identity to object. Unexported to force registration
	// through AddObject.
	objects map[NodeID]Object
}

// NewProject creates an empty project with a fresh root group.
func NewProject(name string) *Project {
	p := &Project{
		Name:    name,
		objects: make(map[NodeID]Object),
	}
	root := &Group{}
	id, _ := p.AddObject(root)
	p.rootID = id
	return p
}

// AddObject registers an object in the project.
//
// Description:
//
//	Assigns a fresh NodeID when the object has none, then stores it in
//	the registry. Objects that already carry an ID (for example, ones
//	decoded from disk) keep it.
//
//	Registration does NOT link the object anywhere: appending it to a
//	group's Children or a phase's Files is the caller's job. An object
//	that is registered but never linked is exactly what the validation
//	engine reports as orphaned.
//
// Inputs:
//
//	obj - The object to register. Must not be nil.
//
// Outputs:
//
//	NodeID - The object's identity.
//	error - ErrNilObject or ErrDuplicateObject.
func (p *Project) AddObject(obj Object) (NodeID, error) {
	if obj == nil {
		return "", ErrNilObject
	}
	if obj.ID() == "" {
		obj.assign(NewNodeID())
	}
	id := obj.ID()
	if _, exists := p.objects[id]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateObject, id)
	}
	p.objects[id] = obj
	return id, nil
}

// DeleteObject removes an object from the registry.
//
// Description:
//
//	Removes only the registry entry. IDs referring to the deleted
//	object may remain in Children or Files slices elsewhere; cleaning
//	those up is the caller's job. The root group cannot be deleted.
//
// Outputs:
//
//	bool - True if an object was removed.
func (p *Project) DeleteObject(id NodeID) bool {
	if id == p.rootID {
		return false
	}
	if _, exists := p.objects[id]; !exists {
		return false
	}
	delete(p.objects, id)
	if id == p.productsID {
		p.productsID = ""
	}
	for i, tid := range p.targetIDs {
		if tid == id {
			p.targetIDs = append(p.targetIDs[:i], p.targetIDs[i+1:]...)
			break
		}
	}
	return true
}

// Object retrieves an object by ID.
func (p *Project) Object(id NodeID) (Object, bool) {
	obj, exists := p.objects[id]
	return obj, exists
}

// Contains reports whether an ID is registered.
func (p *Project) Contains(id NodeID) bool {
	_, exists := p.objects[id]
	return exists
}

// ObjectCount returns the number of registered objects.
func (p *Project) ObjectCount() int {
	return len(p.objects)
}

// RootID returns the identity of the root group.
func (p *Project) RootID() NodeID {
	return p.rootID
}

// RootGroup returns the root group.
func (p *Project) RootGroup() *Group {
	return p.GetGroup(p.rootID)
}

// ProductsID returns the identity of the products group, or "".
func (p *Project) ProductsID() NodeID {
	return p.productsID
}

// ProductsGroup returns the products group, or nil when the project has
// none.
func (p *Project) ProductsGroup() *Group {
	if p.productsID == "" {
		return nil
	}
	return p.GetGroup(p.productsID)
}

// SetProductsID records which registered group is the products group.
func (p *Project) SetProductsID(id NodeID) error {
	if p.GetGroup(id) == nil {
		return fmt.Errorf("%w: %s", ErrNotAGroup, id)
	}
	p.productsID = id
	return nil
}

// AddTarget registers a target and appends it to the target list.
func (p *Project) AddTarget(t *Target) (NodeID, error) {
	id, err := p.AddObject(t)
	if err != nil {
		return "", err
	}
	p.targetIDs = append(p.targetIDs, id)
	return id, nil
}

// Targets returns all targets in display order.
func (p *Project) Targets() []*Target {
	result := make([]*Target, 0, len(p.targetIDs))
	for _, id := range p.targetIDs {
		if t := p.GetTarget(id); t != nil {
			result = append(result, t)
		}
	}
	return result
}

// TargetIDs returns the target identities in display order.
// Callers should NOT modify the returned slice.
func (p *Project) TargetIDs() []NodeID {
	return p.targetIDs
}

// GetGroup retrieves a group by ID. Returns nil if the ID is missing or
// names a different kind.
func (p *Project) GetGroup(id NodeID) *Group {
	if g, ok := p.objects[id].(*Group); ok {
		return g
	}
	return nil
}

// GetVariantGroup retrieves a variant group by ID. Returns nil if the
// ID is missing or names a different kind.
func (p *Project) GetVariantGroup(id NodeID) *VariantGroup {
	if v, ok := p.objects[id].(*VariantGroup); ok {
		return v
	}
	return nil
}

// GetFileReference retrieves a file reference by ID. Returns nil if the
// ID is missing or names a different kind.
func (p *Project) GetFileReference(id NodeID) *FileReference {
	if f, ok := p.objects[id].(*FileReference); ok {
		return f
	}
	return nil
}

// GetTarget retrieves a target by ID. Returns nil if the ID is missing
// or names a different kind.
func (p *Project) GetTarget(id NodeID) *Target {
	if t, ok := p.objects[id].(*Target); ok {
		return t
	}
	return nil
}

// GetBuildPhase retrieves a build phase by ID. Returns nil if the ID is
// missing or names a different kind.
func (p *Project) GetBuildPhase(id NodeID) *BuildPhase {
	if b, ok := p.objects[id].(*BuildPhase); ok {
		return b
	}
	return nil
}

// GetBuildFile retrieves a build file by ID. Returns nil if the ID is
// missing or names a different kind.
func (p *Project) GetBuildFile(id NodeID) *BuildFile {
	if b, ok := p.objects[id].(*BuildFile); ok {
		return b
	}
	return nil
}

// sortedIDs returns every registered ID in ascending order. Map order
// is random per process, so every whole-registry walk goes through this
// to stay deterministic.
func (p *Project) sortedIDs() []NodeID {
	ids := make([]NodeID, 0, len(p.objects))
	for id := range p.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Objects returns an iterator over all objects in ascending ID order.
//
// Example:
//
//	for id, obj := range p.Objects() {
//	    fmt.Printf("%s %s\n", id, hproj.KindOf(obj))
//	}
func (p *Project) Objects() func(yield func(NodeID, Object) bool) {
	ids := p.sortedIDs()
	return func(yield func(NodeID, Object) bool) {
		for _, id := range ids {
			if !yield(id, p.objects[id]) {
				return
			}
		}
	}
}

// FileReferences returns every registered file reference in ascending
// ID order, linked or not.
func (p *Project) FileReferences() []*FileReference {
	result := make([]*FileReference, 0)
	for _, id := range p.sortedIDs() {
		if f, ok := p.objects[id].(*FileReference); ok {
			result = append(result, f)
		}
	}
	return result
}

// Groups returns every registered group in ascending ID order,
// including the root and products groups.
func (p *Project) Groups() []*Group {
	result := make([]*Group, 0)
	for _, id := range p.sortedIDs() {
		if g, ok := p.objects[id].(*Group); ok {
			result = append(result, g)
		}
	}
	return result
}

// VariantGroups returns every registered variant group in ascending ID
// order.
func (p *Project) VariantGroups() []*VariantGroup {
	result := make([]*VariantGroup, 0)
	for _, id := range p.sortedIDs() {
		if v, ok := p.objects[id].(*VariantGroup); ok {
			result = append(result, v)
		}
	}
	return result
}

// BuildFiles returns every registered build file in ascending ID order.
func (p *Project) BuildFiles() []*BuildFile {
	result := make([]*BuildFile, 0)
	for _, id := range p.sortedIDs() {
		if b, ok := p.objects[id].(*BuildFile); ok {
			result = append(result, b)
		}
	}
	return result
}

// ParentOf finds the container holding id as a child.
//
// Description:
//
//	Scans groups and variant groups in ascending ID order and returns
//	the first container whose Children includes id. The graph does not
//	keep parent pointers, so this is an O(objects) walk.
//
// Outputs:
//
//	NodeID - The container's identity.
//	bool - False if nothing links the id.
func (p *Project) ParentOf(id NodeID) (NodeID, bool) {
	for _, candidate := range p.sortedIDs() {
		switch obj := p.objects[candidate].(type) {
		case *Group:
			for _, c := range obj.Children {
				if c == id {
					return candidate, true
				}
			}
		case *VariantGroup:
			for _, c := range obj.Children {
				if c == id {
					return candidate, true
				}
			}
		}
	}
	return "", false
}
