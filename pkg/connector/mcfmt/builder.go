// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package mcfmt

import (
	"strings"
)

// Builder accumulates a message left to right. Adjacent unstyled text is
// merged into a single child.
type Builder struct {
	parts []Component
	text  strings.Builder
}

// AppendText adds unstyled text.
func (b *Builder) AppendText(s string) *Builder {
	b.text.WriteString(s)
	return b
}

// Append adds a component. Empty components are dropped.
func (b *Builder) Append(c Component) *Builder {
	if c.IsEmpty() {
		return b
	}
	if c.isPlainLeaf() {
		return b.AppendText(c.Text)
	}
	b.flush()
	b.parts = append(b.parts, c)
	return b
}

// Build returns the accumulated component. The Builder is reset.
func (b *Builder) Build() Component {
	b.flush()
	parts := b.parts
	b.parts = nil
	switch len(parts) {
	case 0:
		return Component{}
	case 1:
		return parts[0]
	default:
		return Component{Children: parts}
	}
}

func (b *Builder) flush() {
	if b.text.Len() == 0 {
		return
	}
	b.parts = append(b.parts, Component{Text: b.text.String()})
	b.text.Reset()
}
