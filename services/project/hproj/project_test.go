// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package hproj

import (
	"errors"
	"testing"
)

func TestNewProject(t *testing.T) {
	p := NewProject("Demo")

	if p.Name != "Demo" {
		t.Errorf("Name = %q, expected %q", p.Name, "Demo")
	}
	if p.ObjectCount() != 1 {
		t.Errorf("ObjectCount = %d, expected 1 (root group)", p.ObjectCount())
	}
	root := p.RootGroup()
	if root == nil {
		t.Fatal("RootGroup() = nil")
	}
	if root.ID() != p.RootID() {
		t.Errorf("root.ID() = %s, expected %s", root.ID(), p.RootID())
	}
	if p.ProductsGroup() != nil {
		t.Error("new project should have no products group")
	}
}

func TestProject_AddObject(t *testing.T) {
	t.Run("assigns fresh id", func(t *testing.T) {
		p := NewProject("Demo")
		ref := &FileReference{Path: "main.swift"}

		id, err := p.AddObject(ref)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !id.IsValid() {
			t.Errorf("assigned id %q is not canonical", id)
		}
		if ref.ID() != id {
			t.Errorf("ref.ID() = %s, expected %s", ref.ID(), id)
		}
		if got := p.GetFileReference(id); got != ref {
			t.Error("GetFileReference should return the same pointer")
		}
	})

	t.Run("keeps preset id", func(t *testing.T) {
		p := NewProject("Demo")
		ref := &FileReference{Path: "main.swift"}
		ref.assign("0123456789ABCDEF01234567")

		id, err := p.AddObject(ref)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "0123456789ABCDEF01234567" {
			t.Errorf("id = %s, expected preset id", id)
		}
	})

	t.Run("rejects nil", func(t *testing.T) {
		p := NewProject("Demo")
		if _, err := p.AddObject(nil); !errors.Is(err, ErrNilObject) {
			t.Errorf("err = %v, expected ErrNilObject", err)
		}
	})

	t.Run("rejects duplicate id", func(t *testing.T) {
		p := NewProject("Demo")
		a := &FileReference{Path: "a.swift"}
		if _, err := p.AddObject(a); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		b := &FileReference{Path: "b.swift"}
		b.assign(a.ID())
		if _, err := p.AddObject(b); !errors.Is(err, ErrDuplicateObject) {
			t.Errorf("err = %v, expected ErrDuplicateObject", err)
		}
	})
}

func TestProject_DeleteObject(t *testing.T) {
	t.Run("refuses root", func(t *testing.T) {
		p := NewProject("Demo")
		if p.DeleteObject(p.RootID()) {
			t.Error("DeleteObject(root) = true, expected false")
		}
		if p.RootGroup() == nil {
			t.Fatal("root group gone after refused delete")
		}
	})

	t.Run("clears products id", func(t *testing.T) {
		p := NewProject("Demo")
		products := &Group{Name: "Products"}
		id, _ := p.AddObject(products)
		if err := p.SetProductsID(id); err != nil {
			t.Fatalf("SetProductsID: %v", err)
		}

		if !p.DeleteObject(id) {
			t.Fatal("DeleteObject(products) = false")
		}
		if p.ProductsID() != "" {
			t.Errorf("ProductsID = %s, expected empty", p.ProductsID())
		}
	})

	t.Run("prunes target list", func(t *testing.T) {
		p := NewProject("Demo")
		tgt := &Target{Name: "App", ProductType: ProductTypeApplication}
		id, _ := p.AddTarget(tgt)

		if !p.DeleteObject(id) {
			t.Fatal("DeleteObject(target) = false")
		}
		if len(p.Targets()) != 0 {
			t.Errorf("Targets() = %d entries, expected 0", len(p.Targets()))
		}
	})

	t.Run("leaves links dangling", func(t *testing.T) {
		p := NewProject("Demo")
		ref := &FileReference{Path: "main.swift"}
		id, _ := p.AddObject(ref)
		root := p.RootGroup()
		root.Children = append(root.Children, id)

		if !p.DeleteObject(id) {
			t.Fatal("DeleteObject(ref) = false")
		}
		// Registry entry is gone but the child link survives. That is the
		// raw-delete contract; the engine cleans links up.
		if p.Contains(id) {
			t.Error("deleted id still registered")
		}
		if len(root.Children) != 1 || root.Children[0] != id {
			t.Errorf("Children = %v, expected dangling [%s]", root.Children, id)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		p := NewProject("Demo")
		if p.DeleteObject("FFFFFFFFFFFFFFFFFFFFFFFF") {
			t.Error("DeleteObject(missing) = true, expected false")
		}
	})
}

func TestProject_TypedGetters(t *testing.T) {
	p := NewProject("Demo")
	ref := &FileReference{Path: "main.swift"}
	refID, _ := p.AddObject(ref)

	if p.GetGroup(refID) != nil {
		t.Error("GetGroup on a file reference should return nil")
	}
	if p.GetTarget(refID) != nil {
		t.Error("GetTarget on a file reference should return nil")
	}
	if p.GetFileReference(p.RootID()) != nil {
		t.Error("GetFileReference on a group should return nil")
	}
	if p.GetFileReference("FFFFFFFFFFFFFFFFFFFFFFFF") != nil {
		t.Error("GetFileReference on missing id should return nil")
	}
}

func TestProject_SetProductsID(t *testing.T) {
	p := NewProject("Demo")
	ref := &FileReference{Path: "main.swift"}
	refID, _ := p.AddObject(ref)

	if err := p.SetProductsID(refID); !errors.Is(err, ErrNotAGroup) {
		t.Errorf("err = %v, expected ErrNotAGroup", err)
	}
	if err := p.SetProductsID("FFFFFFFFFFFFFFFFFFFFFFFF"); !errors.Is(err, ErrNotAGroup) {
		t.Errorf("err = %v, expected ErrNotAGroup", err)
	}
}

func TestProject_TargetsOrder(t *testing.T) {
	p := NewProject("Demo")
	for _, name := range []string{"Zulu", "Alpha", "Mike"} {
		if _, err := p.AddTarget(&Target{Name: name, ProductType: ProductTypeApplication}); err != nil {
			t.Fatalf("AddTarget(%s): %v", name, err)
		}
	}

	targets := p.Targets()
	if len(targets) != 3 {
		t.Fatalf("Targets() = %d entries, expected 3", len(targets))
	}
	// Display order is insertion order, not name order.
	for i, expected := range []string{"Zulu", "Alpha", "Mike"} {
		if targets[i].Name != expected {
			t.Errorf("Targets()[%d] = %q, expected %q", i, targets[i].Name, expected)
		}
	}
}

func TestProject_ParentOf(t *testing.T) {
	p := NewProject("Demo")
	root := p.RootGroup()

	sub := &Group{Name: "Sources", Path: "Sources"}
	subID, _ := p.AddObject(sub)
	root.Children = append(root.Children, subID)

	ref := &FileReference{Path: "main.swift"}
	refID, _ := p.AddObject(ref)
	sub.Children = append(sub.Children, refID)

	if parent, ok := p.ParentOf(refID); !ok || parent != subID {
		t.Errorf("ParentOf(ref) = (%s, %v), expected (%s, true)", parent, ok, subID)
	}
	if parent, ok := p.ParentOf(subID); !ok || parent != p.RootID() {
		t.Errorf("ParentOf(sub) = (%s, %v), expected (%s, true)", parent, ok, p.RootID())
	}

	orphan := &FileReference{Path: "stray.swift"}
	orphanID, _ := p.AddObject(orphan)
	if _, ok := p.ParentOf(orphanID); ok {
		t.Error("ParentOf(orphan) = true, expected false")
	}
}

func TestProject_FileReferencesSorted(t *testing.T) {
	p := NewProject("Demo")
	for _, path := range []string{"c.swift", "a.swift", "b.swift"} {
		if _, err := p.AddObject(&FileReference{Path: path}); err != nil {
			t.Fatalf("AddObject(%s): %v", path, err)
		}
	}

	refs := p.FileReferences()
	if len(refs) != 3 {
		t.Fatalf("FileReferences() = %d entries, expected 3", len(refs))
	}
	for i := 1; i < len(refs); i++ {
		if refs[i-1].ID() >= refs[i].ID() {
			t.Errorf("FileReferences not in ascending ID order: %s before %s",
				refs[i-1].ID(), refs[i].ID())
		}
	}
}

func TestProject_ObjectsIterator(t *testing.T) {
	p := NewProject("Demo")
	p.AddObject(&FileReference{Path: "a.swift"})
	p.AddObject(&FileReference{Path: "b.swift"})

	var prev NodeID
	count := 0
	for id, obj := range p.Objects() {
		if obj == nil {
			t.Fatalf("nil object for id %s", id)
		}
		if prev != "" && prev >= id {
			t.Errorf("iterator out of order: %s before %s", prev, id)
		}
		prev = id
		count++
	}
	if count != 3 {
		t.Errorf("iterated %d objects, expected 3", count)
	}
}
