// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import "github.com/halyardhq/halyard/services/project/hproj"

// Pending accumulates cache updates during a multi-step operation.
//
// The engine's mutation discipline is: touch the cache only after the
// whole operation has succeeded. Each step records its intended Put or
// Drop here, and the operation either applies everything in order on
// success or abandons the set on failure. A failed operation therefore
// cannot poison the cache with entries for graph state that was never
// committed.
//
// The zero value is ready to use.
type Pending struct {
	ops []pendingOp
}

type pendingOp struct {
	scope Scope
	key   string
	id    hproj.NodeID
	drop  bool
}

// Put records that key should resolve to id once the operation
// succeeds.
func (p *Pending) Put(scope Scope, key string, id hproj.NodeID) {
	p.ops = append(p.ops, pendingOp{scope: scope, key: key, id: id})
}

// Drop records that key should be invalidated once the operation
// succeeds.
func (p *Pending) Drop(scope Scope, key string) {
	p.ops = append(p.ops, pendingOp{scope: scope, key: key, drop: true})
}

// Len returns the number of recorded updates.
func (p *Pending) Len() int {
	return len(p.ops)
}

// Apply flushes the recorded updates into the lookup, in record order,
// and resets the set.
func (p *Pending) Apply(l *Lookup) {
	for _, op := range p.ops {
		if op.drop {
			l.Invalidate(op.scope, op.key)
		} else {
			l.Put(op.scope, op.key, op.id)
		}
	}
	p.ops = nil
}

// Reset discards the recorded updates without applying them.
func (p *Pending) Reset() {
	p.ops = nil
}
