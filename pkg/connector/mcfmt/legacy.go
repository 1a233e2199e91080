// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package mcfmt

import (
	"strings"
	"unicode/utf8"
)

// ParseLegacy converts a legacy formatted string to a component. marker is
// the code prefix, usually SectionSign or '&' for config files. Obfuscated,
// strikethrough and underline codes are dropped; unknown codes are kept as
// literal text.
func ParseLegacy(s string, marker rune) Component {
	var b Builder
	var current style
	var run strings.Builder

	flush := func() {
		if run.Len() == 0 {
			return
		}
		b.Append(Component{Text: run.String(), Color: current.color, Bold: current.bold, Italic: current.italic})
		run.Reset()
	}

	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r != marker || i+size >= len(s) {
			run.WriteString(s[i : i+size])
			i += size
			continue
		}
		code := lower(s[i+size])
		next := current
		switch {
		case codeColors[code] != "":
			next = style{color: codeColors[code]}
		case code == 'l':
			next.bold = true
		case code == 'o':
			next.italic = true
		case code == 'r':
			next = style{}
		case code == 'k' || code == 'm' || code == 'n':
		default:
			run.WriteString(s[i : i+size])
			i += size
			continue
		}
		if next != current {
			flush()
			current = next
		}
		i += size + 1
	}
	flush()
	return b.Build()
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
