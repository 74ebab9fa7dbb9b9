// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"testing"
)

const compactSource = `def add(a, b):
    total = a + b
    return total
`

// Same structure as compactSource with comments, blank lines, a trailing
// comma, grouping parentheses and a line continuation.
const noisySource = `# leading comment


def add(
    a,
    b,
):  # trailing comment
    # inside the body
    total = (a +
             b)

    return \
        total
`

func TestNamedCounter_FormattingInsensitive(t *testing.T) {
	compact := mustParse(t, compactSource)
	noisy := mustParse(t, noisySource)

	if c, n := compact.Count(compact.Root()), noisy.Count(noisy.Root()); c != n {
		t.Errorf("module counts differ: compact %d, noisy %d", c, n)
	}

	compactFn := FindTopLevelFunction(compact, "add")
	noisyFn := FindTopLevelFunction(noisy, "add")
	if compactFn == nil || noisyFn == nil {
		t.Fatal("function add not found")
	}
	if compactFn.Size != noisyFn.Size {
		t.Errorf("function sizes differ: compact %d, noisy %d", compactFn.Size, noisyFn.Size)
	}
}

func TestSyntaxCounter_SeesPunctuation(t *testing.T) {
	parser := NewPythonParser(WithCounter(SyntaxCounter{}))
	compact, err := parser.Parse(context.Background(), []byte(compactSource), "a.py")
	if err != nil {
		t.Fatalf("Parse(compact) error: %v", err)
	}
	defer compact.Close()
	noisy, err := parser.Parse(context.Background(), []byte(noisySource), "b.py")
	if err != nil {
		t.Fatalf("Parse(noisy) error: %v", err)
	}
	defer noisy.Close()

	if compact.Count(compact.Root()) == noisy.Count(noisy.Root()) {
		t.Error("syntax counts should differ once punctuation is added")
	}
}

func TestCountNodes_Nil(t *testing.T) {
	if got := CountNodes(nil); got != 0 {
		t.Errorf("CountNodes(nil) = %d, want 0", got)
	}
	if got := (SyntaxCounter{}).Count(nil, nil); got != 0 {
		t.Errorf("SyntaxCounter.Count(nil) = %d, want 0", got)
	}
}

func TestCountNodes_SubtreeSumsToParent(t *testing.T) {
	tree := mustParse(t, "a = 1\nb = 2\nc = a + b\n")
	root := tree.Root()

	sum := 1 // the module node itself
	for i := 0; i < int(root.ChildCount()); i++ {
		sum += tree.Count(root.Child(i))
	}
	if got := tree.Count(root); got != sum {
		t.Errorf("Count(root) = %d, want sum of children plus one = %d", got, sum)
	}
}

func TestCountNodes_ElisionShrinks(t *testing.T) {
	full := mustParse(t, compactSource)
	elided := mustParse(t, "def add(a, b):\n    pass  # moved\n")

	fullSize := FindTopLevelFunction(full, "add").Size
	elidedSize := FindTopLevelFunction(elided, "add").Size
	if elidedSize >= fullSize {
		t.Errorf("elided size %d should be below full size %d", elidedSize, fullSize)
	}
}

func TestCounterByName(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "", want: CounterNamed},
		{name: "named", want: CounterNamed},
		{name: "syntax", want: CounterSyntax},
		{name: "pyast", want: CounterPyAST},
		{name: "bytes", wantErr: true},
	}

	for _, tt := range tests {
		c, err := CounterByName(tt.name)
		if tt.wantErr {
			if err == nil {
				t.Errorf("CounterByName(%q) expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("CounterByName(%q) error: %v", tt.name, err)
			continue
		}
		if c.Name() != tt.want {
			t.Errorf("CounterByName(%q).Name() = %q, want %q", tt.name, c.Name(), tt.want)
		}
	}
}
