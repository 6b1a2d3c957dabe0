// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package hproj

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SchemaVersion is the project document schema this build reads and
// writes.
const SchemaVersion = 1

// document is the serialized form of a Project.
type document struct {
	Schema   int         `yaml:"halyard"`
	Name     string      `yaml:"name,omitempty"`
	Root     string      `yaml:"root"`
	Products string      `yaml:"products,omitempty"`
	Targets  []string    `yaml:"targets,omitempty"`
	Objects  []rawObject `yaml:"objects"`
}

// rawObject is the serialized form of one graph object. One struct
// covers every kind; the codec reads and writes only the fields that
// apply to the object's kind.
type rawObject struct {
	ID          string         `yaml:"id"`
	Kind        string         `yaml:"kind"`
	Name        string         `yaml:"name,omitempty"`
	Path        string         `yaml:"path,omitempty"`
	Children    []string       `yaml:"children,omitempty"`
	FileType    string         `yaml:"file_type,omitempty"`
	ProductType string         `yaml:"product_type,omitempty"`
	Product     string         `yaml:"product,omitempty"`
	Phases      []string       `yaml:"phases,omitempty"`
	Phase       string         `yaml:"phase,omitempty"`
	Files       []string       `yaml:"files,omitempty"`
	File        string         `yaml:"file,omitempty"`
	Settings    map[string]any `yaml:"settings,omitempty"`
	URL         string         `yaml:"url,omitempty"`
	Requirement string         `yaml:"requirement,omitempty"`
}

// Load reads and decodes a project document from disk.
//
// Description:
//
//	Reads the file, unmarshals the YAML document, and rebuilds the
//	object registry. Structural identity is validated strictly: the
//	schema version must match, IDs must be unique, the root must be a
//	registered group, and every listed target must be a registered
//	target.
//
//	Link integrity is deliberately NOT validated. Children or Files
//	entries pointing at missing IDs load fine; surfacing them is what
//	the validation engine is for.
//
// Inputs:
//
//	path - Location of the project document.
//
// Outputs:
//
//	*Project - The decoded project.
//	error - Read failure, YAML failure, or structural validation
//	failure wrapping ErrInvalidDocument, ErrSchemaVersion, or
//	ErrUnknownObjectKind.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading project %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing project %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a project document from bytes. See Load.
func Parse(data []byte) (*Project, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return decode(&doc)
}

// Write encodes a project and writes it to disk.
//
// Objects are emitted in ascending ID order so the same graph always
// serializes to the same bytes, which keeps project files diffable and
// lets the transaction layer compare backups byte for byte.
func Write(p *Project, path string) error {
	data, err := Marshal(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing project %s: %w", path, err)
	}
	return nil
}

// Marshal encodes a project to document bytes. See Write.
func Marshal(p *Project) ([]byte, error) {
	doc := encode(p)
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding project: %w", err)
	}
	return data, nil
}

func encode(p *Project) *document {
	doc := &document{
		Schema:   SchemaVersion,
		Name:     p.Name,
		Root:     string(p.rootID),
		Products: string(p.productsID),
		Objects:  make([]rawObject, 0, len(p.objects)),
	}
	for _, id := range p.targetIDs {
		doc.Targets = append(doc.Targets, string(id))
	}
	for _, id := range p.sortedIDs() {
		doc.Objects = append(doc.Objects, encodeObject(id, p.objects[id]))
	}
	return doc
}

func encodeObject(id NodeID, obj Object) rawObject {
	raw := rawObject{ID: string(id), Kind: KindOf(obj).String()}
	switch o := obj.(type) {
	case *Group:
		raw.Name = o.Name
		raw.Path = o.Path
		raw.Children = idStrings(o.Children)
	case *VariantGroup:
		raw.Name = o.Name
		raw.Children = idStrings(o.Children)
	case *FileReference:
		raw.Path = o.Path
		raw.Name = o.Name
		raw.FileType = o.FileType
	case *Target:
		raw.Name = o.Name
		raw.ProductType = string(o.ProductType)
		raw.Product = string(o.ProductID)
		raw.Phases = idStrings(o.Phases)
	case *BuildPhase:
		raw.Phase = o.Kind.String()
		raw.Name = o.Name
		raw.Files = idStrings(o.Files)
	case *BuildFile:
		raw.File = string(o.FileID)
		raw.Settings = o.Settings
	case *PackageReference:
		raw.URL = o.URL
		raw.Requirement = o.Requirement
	}
	return raw
}

func decode(doc *document) (*Project, error) {
	if doc.Schema != SchemaVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSchemaVersion, doc.Schema, SchemaVersion)
	}
	if doc.Root == "" {
		return nil, fmt.Errorf("%w: missing root group id", ErrInvalidDocument)
	}

	p := &Project{
		Name:    doc.Name,
		objects: make(map[NodeID]Object, len(doc.Objects)),
	}

	for i := range doc.Objects {
		raw := &doc.Objects[i]
		if raw.ID == "" {
			return nil, fmt.Errorf("%w: object %d has no id", ErrInvalidDocument, i)
		}
		obj, err := decodeObject(raw)
		if err != nil {
			return nil, err
		}
		obj.assign(NodeID(raw.ID))
		if _, exists := p.objects[obj.ID()]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateObject, raw.ID)
		}
		p.objects[obj.ID()] = obj
	}

	p.rootID = NodeID(doc.Root)
	if p.GetGroup(p.rootID) == nil {
		return nil, fmt.Errorf("%w: root %s is not a registered group", ErrInvalidDocument, doc.Root)
	}
	if doc.Products != "" {
		p.productsID = NodeID(doc.Products)
		if p.GetGroup(p.productsID) == nil {
			return nil, fmt.Errorf("%w: products %s is not a registered group", ErrInvalidDocument, doc.Products)
		}
	}
	for _, id := range doc.Targets {
		tid := NodeID(id)
		if p.GetTarget(tid) == nil {
			return nil, fmt.Errorf("%w: target %s is not a registered target", ErrInvalidDocument, id)
		}
		p.targetIDs = append(p.targetIDs, tid)
	}
	return p, nil
}

func decodeObject(raw *rawObject) (Object, error) {
	kind, ok := kindFromName(raw.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q (object %s)", ErrUnknownObjectKind, raw.Kind, raw.ID)
	}

	switch kind {
	case KindGroup:
		return &Group{Name: raw.Name, Path: raw.Path, Children: nodeIDs(raw.Children)}, nil
	case KindVariantGroup:
		return &VariantGroup{Name: raw.Name, Children: nodeIDs(raw.Children)}, nil
	case KindFileReference:
		return &FileReference{Path: raw.Path, Name: raw.Name, FileType: raw.FileType}, nil
	case KindTarget:
		return &Target{
			Name:        raw.Name,
			ProductType: ProductType(raw.ProductType),
			ProductID:   NodeID(raw.Product),
			Phases:      nodeIDs(raw.Phases),
		}, nil
	case KindBuildPhase:
		phase, ok := phaseKindFromName(raw.Phase)
		if !ok {
			return nil, fmt.Errorf("%w: phase kind %q (object %s)", ErrUnknownObjectKind, raw.Phase, raw.ID)
		}
		return &BuildPhase{Kind: phase, Name: raw.Name, Files: nodeIDs(raw.Files)}, nil
	case KindBuildFile:
		return &BuildFile{FileID: NodeID(raw.File), Settings: raw.Settings}, nil
	case KindPackageReference:
		return &PackageReference{URL: raw.URL, Requirement: raw.Requirement}, nil
	default:
		return nil, fmt.Errorf("%w: %q (object %s)", ErrUnknownObjectKind, raw.Kind, raw.ID)
	}
}

func idStrings(ids []NodeID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func nodeIDs(ids []string) []NodeID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]NodeID, len(ids))
	for i, id := range ids {
		out[i] = NodeID(id)
	}
	return out
}
