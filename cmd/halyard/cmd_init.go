// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/halyardhq/halyard/pkg/ux"
	"github.com/halyardhq/halyard/services/project/engine"
	"github.com/halyardhq/halyard/services/project/hproj"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	initName        string
	initTarget      string
	initProductType string
	initForce       bool
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// initCmd scaffolds a fresh project file.
var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Create an empty project file",
	Long: `Create a project file with a root group and a Products group.

The path defaults to <name>.hproj in the current directory; with a path
argument and no --name, the name is the file's stem. With --target a
native target is added, complete with sources, frameworks, and resources
phases and a product reference in the Products group.

Product types: application, framework, static-library, dynamic-library,
unit-test, ui-test, app-extension, bundle, tool.

Examples:
  halyard init --name Demo
  halyard init Demo.hproj --target Demo
  halyard init --name KitDemo --target KitDemo --product-type framework`,
	Args: cobra.MaximumNArgs(1),
	Run:  runInitCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	initCmd.Flags().StringVar(&initName, "name", "",
		"Project name")
	initCmd.Flags().StringVar(&initTarget, "target", "",
		"Create a native target with this name")
	initCmd.Flags().StringVar(&initProductType, "product-type", "application",
		"Product type for --target")
	initCmd.Flags().BoolVar(&initForce, "force", false,
		"Overwrite an existing project file")

	rootCmd.AddCommand(initCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runInitCommand writes the scaffold and links the optional target's
// product reference through the engine so the new project starts valid.
func runInitCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	name := initName
	if name == "" && path != "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if name == "" {
		ux.Error("either --name or a path argument is required")
		os.Exit(exitBadArgs)
	}
	if path == "" {
		path = name + ".hproj"
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitBadArgs)
	}

	ptype, err := parseProductType(initProductType)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitBadArgs)
	}

	if _, statErr := os.Stat(abs); statErr == nil && !initForce {
		ux.Error(fmt.Sprintf("%s already exists (use --force to overwrite)", path))
		os.Exit(exitFailure)
	}

	project, err := newScaffold(name, initTarget, ptype)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(exitFailure)
	}
	if err := hproj.Write(project, abs); err != nil {
		ux.Error(fmt.Sprintf("writing %s: %v", path, err))
		os.Exit(exitFailure)
	}

	if initTarget != "" {
		if _, builds := ptype.ProductFileName(initTarget); builds {
			if err := linkInitialProduct(ctx, project, abs, initTarget); err != nil {
				ux.Error(err.Error())
				os.Exit(exitFailure)
			}
		}
	}

	ux.Success(fmt.Sprintf("created %s", path))
	if initTarget != "" {
		ux.Item(1, fmt.Sprintf("target %s (%s)", initTarget, ptype))
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// productTypes maps the --product-type flag values.
var productTypes = map[string]hproj.ProductType{
	"application":     hproj.ProductTypeApplication,
	"framework":       hproj.ProductTypeFramework,
	"static-library":  hproj.ProductTypeStaticLibrary,
	"dynamic-library": hproj.ProductTypeDynamicLibrary,
	"unit-test":       hproj.ProductTypeUnitTest,
	"ui-test":         hproj.ProductTypeUITest,
	"app-extension":   hproj.ProductTypeAppExtension,
	"bundle":          hproj.ProductTypeBundle,
	"tool":            hproj.ProductTypeTool,
}

// parseProductType validates a --product-type value.
func parseProductType(s string) (hproj.ProductType, error) {
	if t, ok := productTypes[s]; ok {
		return t, nil
	}
	valid := make([]string, 0, len(productTypes))
	for k := range productTypes {
		valid = append(valid, k)
	}
	sort.Strings(valid)
	return "", fmt.Errorf("unknown product type %q (valid: %s)", s, strings.Join(valid, ", "))
}

// newScaffold builds the in-memory project: root group, Products group,
// and optionally one target carrying the three standard phases.
func newScaffold(name, targetName string, ptype hproj.ProductType) (*hproj.Project, error) {
	p := hproj.NewProject(name)
	root := p.RootGroup()

	products := &hproj.Group{Name: engine.ProductsGroupName}
	if _, err := p.AddObject(products); err != nil {
		return nil, err
	}
	root.Children = append(root.Children, products.ID())
	if err := p.SetProductsID(products.ID()); err != nil {
		return nil, err
	}

	if targetName != "" {
		t := &hproj.Target{Name: targetName, ProductType: ptype}
		for _, kind := range []hproj.PhaseKind{hproj.PhaseSources, hproj.PhaseFrameworks, hproj.PhaseResources} {
			phase := &hproj.BuildPhase{Kind: kind}
			if _, err := p.AddObject(phase); err != nil {
				return nil, err
			}
			t.Phases = append(t.Phases, phase.ID())
		}
		if _, err := p.AddTarget(t); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// linkInitialProduct runs AddProductReference over the just-written file
// and saves the result.
func linkInitialProduct(ctx context.Context, project *hproj.Project, path, targetName string) error {
	svc, err := engine.New(project, engine.Config{ProjectPath: path})
	if err != nil {
		return err
	}
	defer svc.Close()

	if _, err := svc.AddProductReference(ctx, targetName); err != nil {
		return err
	}
	return svc.Save(ctx)
}
