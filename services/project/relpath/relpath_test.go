// Copyright (C) 2025 Halyard Project (maintainers@halyardhq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package relpath

import "testing"

func TestBetween(t *testing.T) {
	tests := []struct {
		name     string
		baseDir  string
		target   string
		expected string
	}{
		{
			name:     "directly beneath",
			baseDir:  "/p/Sources",
			target:   "/p/Sources/main.swift",
			expected: "main.swift",
		},
		{
			name:     "nested beneath",
			baseDir:  "/p/Sources",
			target:   "/p/Sources/App/main.swift",
			expected: "App/main.swift",
		},
		{
			name:     "sibling directory",
			baseDir:  "/p/Sources",
			target:   "/p/Vendor/lib.a",
			expected: "../Vendor/lib.a",
		},
		{
			name:     "cousin directory",
			baseDir:  "/p/Sources/App",
			target:   "/p/Tests/AppTests/main_test.swift",
			expected: "../../Tests/AppTests/main_test.swift",
		},
		{
			name:     "above the base",
			baseDir:  "/p/Sources/App",
			target:   "/p/README.md",
			expected: "../../README.md",
		},
		{
			name:     "same directory",
			baseDir:  "/p/Sources",
			target:   "/p/Sources",
			expected: ".",
		},
		{
			name:     "root base",
			baseDir:  "/",
			target:   "/etc/hosts",
			expected: "etc/hosts",
		},
		{
			name:     "only root shared",
			baseDir:  "/p/Sources",
			target:   "/q/lib.a",
			expected: "../../q/lib.a",
		},
		{
			name:     "unclean inputs",
			baseDir:  "/p//Sources/./",
			target:   "/p/Sources/App/../App/main.swift",
			expected: "App/main.swift",
		},
		{
			name:     "windows separators",
			baseDir:  `C:\p\Sources`,
			target:   `C:\p\Vendor\lib.a`,
			expected: "../Vendor/lib.a",
		},
		{
			name:     "different windows volumes",
			baseDir:  `C:\p\Sources`,
			target:   `D:\q\lib.a`,
			expected: "D:/q/lib.a",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Between(tc.baseDir, tc.target)
			if got != tc.expected {
				t.Errorf("Between(%q, %q) = %q, expected %q",
					tc.baseDir, tc.target, got, tc.expected)
			}
		})
	}
}

func TestIsBeneath(t *testing.T) {
	tests := []struct {
		baseDir  string
		target   string
		expected bool
	}{
		{"/p/Sources", "/p/Sources/main.swift", true},
		{"/p/Sources", "/p/Sources", true},
		{"/p/Sources", "/p/SourcesExtra/x", false},
		{"/p/Sources", "/p", false},
		{"/p/Sources", "/q/Sources/main.swift", false},
	}

	for _, tc := range tests {
		got := IsBeneath(tc.baseDir, tc.target)
		if got != tc.expected {
			t.Errorf("IsBeneath(%q, %q) = %v, expected %v",
				tc.baseDir, tc.target, got, tc.expected)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"/p//Sources/./App", "/p/Sources/App"},
		{`C:\p\Sources`, "C:/p/Sources"},
		{"a/b/../c", "a/c"},
		{"/", "/"},
	}

	for _, tc := range tests {
		if got := Normalize(tc.in); got != tc.expected {
			t.Errorf("Normalize(%q) = %q, expected %q", tc.in, got, tc.expected)
		}
	}
}
