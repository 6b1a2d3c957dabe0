// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package hproj

import (
	"path"
	"strings"
)

// NodeID is the stable identity of an object in a project graph.
//
// IDs are 24 uppercase hex characters, assigned once when an object is
// registered and never reused. All structural links between objects
// (children, phases, memberships) are expressed as NodeIDs, never as
// pointers, so a graph survives serialization without aliasing bugs.
type NodeID string

// ObjectKind identifies the concrete type behind an Object.
type ObjectKind int

const (
	// KindUnknown indicates an unrecognized object kind.
	KindUnknown ObjectKind = iota

	// KindGroup is a logical folder in the project hierarchy.
	KindGroup

	// KindVariantGroup is a localization container holding per-locale files.
	KindVariantGroup

	// KindFileReference is a reference to a file on disk.
	KindFileReference

	// KindTarget is a buildable product definition.
	KindTarget

	// KindBuildPhase is an ordered step within a target's build.
	KindBuildPhase

	// KindBuildFile is the membership of a file reference in a build phase.
	KindBuildFile

	// KindPackageReference is a remote package dependency declaration.
	KindPackageReference
)

// kindNames maps ObjectKind values to their string representations.
var kindNames = map[ObjectKind]string{
	KindUnknown:          "unknown",
	KindGroup:            "group",
	KindVariantGroup:     "variant_group",
	KindFileReference:    "file",
	KindTarget:           "target",
	KindBuildPhase:       "phase",
	KindBuildFile:        "buildfile",
	KindPackageReference: "package",
}

// String returns the string representation of the ObjectKind.
func (k ObjectKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// kindFromName is the inverse of kindNames, used by the codec.
func kindFromName(name string) (ObjectKind, bool) {
	for k, n := range kindNames {
		if n == name && k != KindUnknown {
			return k, true
		}
	}
	return KindUnknown, false
}

// Object is implemented by every node type stored in a Project.
//
// The interface is sealed: the assign method is unexported so only the
// types defined in this package can live in a project graph.
type Object interface {
	// ID returns the object's identity, or "" if it has not been
	// registered with a Project yet.
	ID() NodeID

	assign(id NodeID)
}

// objectID carries the assigned identity. Every concrete node type
// embeds it by pointer receiver.
type objectID struct {
	id NodeID
}

// ID returns the object's identity.
func (o *objectID) ID() NodeID { return o.id }

func (o *objectID) assign(id NodeID) { o.id = id }

// KindOf reports the ObjectKind of a registered or unregistered object.
func KindOf(obj Object) ObjectKind {
	switch obj.(type) {
	case *Group:
		return KindGroup
	case *VariantGroup:
		return KindVariantGroup
	case *FileReference:
		return KindFileReference
	case *Target:
		return KindTarget
	case *BuildPhase:
		return KindBuildPhase
	case *BuildFile:
		return KindBuildFile
	case *PackageReference:
		return KindPackageReference
	default:
		return KindUnknown
	}
}

// Group is a logical folder in the project hierarchy.
//
// A group may or may not correspond to a directory on disk: when Path is
// set, the group contributes that segment to the filesystem location of
// everything beneath it; when Path is empty the group is organizational
// only and is invisible to path resolution.
type Group struct {
	objectID

	// Name is the display name. May be empty when Path carries the name.
	Name string

	// Path is the on-disk directory segment, relative to the parent
	// group's directory. Empty for purely organizational groups.
	Path string

	// Children holds the IDs of contained groups, variant groups, and
	// file references, in display order.
	Children []NodeID
}

// DisplayName returns the name shown in the hierarchy: Name when set,
// otherwise the Path segment.
func (g *Group) DisplayName() string {
	if g.Name != "" {
		return g.Name
	}
	return g.Path
}

// RemoveChild deletes the first occurrence of id from Children.
// Returns true if the id was present.
func (g *Group) RemoveChild(id NodeID) bool {
	for i, c := range g.Children {
		if c == id {
			g.Children = append(g.Children[:i], g.Children[i+1:]...)
			return true
		}
	}
	return false
}

// VariantGroup is a localization container. Its display name is
// file-like (for example "Main.storyboard") and its children are the
// per-locale file references.
type VariantGroup struct {
	objectID

	// Name is the file-like display name.
	Name string

	// Children holds the IDs of the per-locale file references.
	Children []NodeID
}

// RemoveChild deletes the first occurrence of id from Children.
// Returns true if the id was present.
func (v *VariantGroup) RemoveChild(id NodeID) bool {
	for i, c := range v.Children {
		if c == id {
			v.Children = append(v.Children[:i], v.Children[i+1:]...)
			return true
		}
	}
	return false
}

// FileReference points at a file on disk.
type FileReference struct {
	objectID

	// Path locates the file relative to the owning group's directory.
	// Absolute paths are kept verbatim for files outside the project
	// tree.
	Path string

	// Name is an optional display override. Empty means the basename of
	// Path is displayed.
	Name string

	// FileType is the classified content type, for example
	// "sourcecode.swift". See FileTypeForPath.
	FileType string
}

// DisplayName returns the name shown in the hierarchy: Name when set,
// otherwise the basename of Path.
func (f *FileReference) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	return path.Base(f.Path)
}

// ProductType classifies what a target builds.
type ProductType string

const (
	// ProductTypeApplication builds an application bundle.
	ProductTypeApplication ProductType = "application"

	// ProductTypeFramework builds a dynamic framework bundle.
	ProductTypeFramework ProductType = "framework"

	// ProductTypeStaticLibrary builds a static archive.
	ProductTypeStaticLibrary ProductType = "static-library"

	// ProductTypeDynamicLibrary builds a dynamic library.
	ProductTypeDynamicLibrary ProductType = "dynamic-library"

	// ProductTypeUnitTest builds a unit test bundle.
	ProductTypeUnitTest ProductType = "unit-test"

	// ProductTypeUITest builds a UI test bundle.
	ProductTypeUITest ProductType = "ui-test"

	// ProductTypeAppExtension builds an app extension bundle.
	ProductTypeAppExtension ProductType = "app-extension"

	// ProductTypeBundle builds a loadable resource bundle.
	ProductTypeBundle ProductType = "bundle"

	// ProductTypeTool builds a command line executable with no bundle
	// wrapper. Its product is the bare binary, named after the target.
	ProductTypeTool ProductType = "tool"
)

// productExtensions maps each product type to the extension of the file
// it produces. Types absent from the map produce no product file.
var productExtensions = map[ProductType]string{
	ProductTypeApplication:    ".app",
	ProductTypeFramework:      ".framework",
	ProductTypeStaticLibrary:  ".a",
	ProductTypeDynamicLibrary: ".dylib",
	ProductTypeUnitTest:       ".xctest",
	ProductTypeUITest:         ".xctest",
	ProductTypeAppExtension:   ".appex",
	ProductTypeBundle:         ".bundle",
	ProductTypeTool:           "",
}

// productReferenceTypes maps each product type to the FileType carried
// by its synthesized product reference.
var productReferenceTypes = map[ProductType]string{
	ProductTypeApplication:    "wrapper.application",
	ProductTypeFramework:      "wrapper.framework",
	ProductTypeStaticLibrary:  "archive.ar",
	ProductTypeDynamicLibrary: "compiled.mach-o.dylib",
	ProductTypeUnitTest:       "wrapper.cfbundle",
	ProductTypeUITest:         "wrapper.cfbundle",
	ProductTypeAppExtension:   "wrapper.app-extension",
	ProductTypeBundle:         "wrapper.cfbundle",
	ProductTypeTool:           "compiled.mach-o.executable",
}

// ProductFileName returns the name of the product file a target named
// targetName would build, and whether the product type produces one.
//
// Static libraries follow the ar convention ("lib" prefix), bundled
// types are targetName plus the type's extension, and tools are the
// bare targetName. Unrecognized types produce nothing.
func (t ProductType) ProductFileName(targetName string) (string, bool) {
	ext, ok := productExtensions[t]
	if !ok {
		return "", false
	}
	if t == ProductTypeStaticLibrary {
		return "lib" + targetName + ext, true
	}
	return targetName + ext, true
}

// ReferenceType returns the FileType a synthesized product reference of
// this product type should carry. Falls back to "file" for unmapped
// types.
func (t ProductType) ReferenceType() string {
	if ft, ok := productReferenceTypes[t]; ok {
		return ft
	}
	return "file"
}

// Target is a buildable product definition.
type Target struct {
	objectID

	// Name is the target name, unique within a project by convention.
	Name string

	// ProductType classifies what the target builds.
	ProductType ProductType

	// ProductID is the file reference for the built product, or "" when
	// none has been linked yet.
	ProductID NodeID

	// Phases holds the IDs of the target's build phases in execution
	// order.
	Phases []NodeID
}

// PhaseKind identifies the role of a build phase.
type PhaseKind int

const (
	// PhaseUnknown indicates an unrecognized phase kind.
	PhaseUnknown PhaseKind = iota

	// PhaseSources compiles source files.
	PhaseSources

	// PhaseResources copies resources into the product.
	PhaseResources

	// PhaseFrameworks links frameworks and libraries.
	PhaseFrameworks

	// PhaseCopyFiles copies files to an arbitrary destination.
	PhaseCopyFiles

	// PhaseScript runs a shell script.
	PhaseScript
)

// phaseNames maps PhaseKind values to their string representations.
var phaseNames = map[PhaseKind]string{
	PhaseUnknown:    "unknown",
	PhaseSources:    "sources",
	PhaseResources:  "resources",
	PhaseFrameworks: "frameworks",
	PhaseCopyFiles:  "copy-files",
	PhaseScript:     "script",
}

// String returns the string representation of the PhaseKind.
func (k PhaseKind) String() string {
	if name, ok := phaseNames[k]; ok {
		return name
	}
	return "unknown"
}

// phaseKindFromName is the inverse of phaseNames, used by the codec.
func phaseKindFromName(name string) (PhaseKind, bool) {
	for k, n := range phaseNames {
		if n == name && k != PhaseUnknown {
			return k, true
		}
	}
	return PhaseUnknown, false
}

// BuildPhase is an ordered step within a target's build.
type BuildPhase struct {
	objectID

	// Kind is the phase's role.
	Kind PhaseKind

	// Name is an optional display name, used by copy-files and script
	// phases.
	Name string

	// Files holds BuildFile IDs in build order.
	Files []NodeID
}

// RemoveFile deletes the first occurrence of id from Files.
// Returns true if the id was present.
func (b *BuildPhase) RemoveFile(id NodeID) bool {
	for i, f := range b.Files {
		if f == id {
			b.Files = append(b.Files[:i], b.Files[i+1:]...)
			return true
		}
	}
	return false
}

// BuildFile records the membership of one file reference in one build
// phase. Matching memberships to files is always done by FileID, never
// by comparing paths or names.
type BuildFile struct {
	objectID

	// FileID is the file reference this membership points at.
	FileID NodeID

	// Settings holds per-membership build settings, for example
	// compiler flags or copy attributes.
	Settings map[string]any
}

// PackageReference declares a remote package dependency.
type PackageReference struct {
	objectID

	// URL is the repository location.
	URL string

	// Requirement is the version requirement expression.
	Requirement string
}

// fileTypesByExtension maps lowercase file extensions to classified
// content types. Extensions absent from the map classify as "file".
var fileTypesByExtension = map[string]string{
	".swift":      "sourcecode.swift",
	".m":          "sourcecode.c.objc",
	".mm":         "sourcecode.cpp.objcpp",
	".c":          "sourcecode.c.c",
	".cc":         "sourcecode.cpp.cpp",
	".cpp":        "sourcecode.cpp.cpp",
	".h":          "sourcecode.c.h",
	".hpp":        "sourcecode.cpp.h",
	".metal":      "sourcecode.metal",
	".storyboard": "file.storyboard",
	".xib":        "file.xib",
	".strings":    "text.plist.strings",
	".plist":      "text.plist.xml",
	".entitlements": "text.plist.entitlements",
	".json":       "text.json",
	".md":         "net.daringfireball.markdown",
	".txt":        "text",
	".png":        "image.png",
	".jpg":        "image.jpeg",
	".jpeg":       "image.jpeg",
	".pdf":        "image.pdf",
	".xcassets":   "folder.assetcatalog",
	".xcdatamodeld": "wrapper.xcdatamodeld",
	".framework":  "wrapper.framework",
	".a":          "archive.ar",
	".dylib":      "compiled.mach-o.dylib",
	".tbd":        "sourcecode.text-based-dylib-definition",
}

// FileTypeForPath classifies a file path by its extension.
//
// The classification drives build phase selection when a file is added
// to a target, so unknown extensions deliberately fall back to the
// generic "file" type rather than guessing.
func FileTypeForPath(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if ft, ok := fileTypesByExtension[ext]; ok {
		return ft
	}
	return "file"
}
