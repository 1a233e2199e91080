// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package mention

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aiku/supersonic/pkg/connector/discordfmt"
	"github.com/aiku/supersonic/pkg/connector/mcfmt"
	"github.com/aiku/supersonic/pkg/roster"
)

// Finder resolves the text after an '@' sigil to a roster member.
// *roster.Index satisfies it.
type Finder interface {
	Find(candidate string) (roster.Mention, bool)
}

// Result is a rewritten game message. Display is shown back in Minecraft
// and Transmit is sent to Discord. Outside of mentions both carry the
// source text unchanged.
type Result struct {
	Display  mcfmt.Component
	Transmit string
}

// RewriteInbound rewrites free-form "@name" mentions typed in game.
//
// The candidate after '@' runs to the next whitespace. A resolved mention
// consumes only '@' plus the matched name, so the rest of the candidate is
// kept as ordinary text: with "Jo" registered, "@John" yields a mention of
// Jo followed by "hn".
func RewriteInbound(text string, f Finder) Result {
	var display mcfmt.Builder
	var transmit strings.Builder
	transmit.Grow(len(text))

	emit := func(s string) {
		display.AppendText(s)
		transmit.WriteString(s)
	}

	cursor := 0
	for cursor < len(text) {
		at := strings.IndexByte(text[cursor:], '@')
		if at < 0 {
			break
		}
		at += cursor
		emit(text[cursor:at])

		end := at + 1
		for end < len(text) {
			r, size := utf8.DecodeRuneInString(text[end:])
			if isDelimiter(r) {
				break
			}
			end += size
		}

		candidate := text[at+1 : end]
		m, ok := lookup(f, candidate)
		if !ok {
			emit(text[at:end])
			cursor = end
			continue
		}
		name := m.MatchedName()
		display.Append(mcfmt.Styled("@"+name, InboundColor))
		transmit.WriteString(discordfmt.User(m.Member.ID))
		cursor = at + 1 + len(name)
	}
	emit(text[cursor:])

	return Result{Display: display.Build(), Transmit: transmit.String()}
}

// isDelimiter reports whether r ends a mention candidate. It is the set
// Java's Character.isWhitespace accepts, as used on the proxy side: the
// no-break spaces U+00A0, U+2007 and U+202F and NEL (U+0085) do not end a
// candidate.
func isDelimiter(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', 0x1c, 0x1d, 0x1e, 0x1f:
		return true
	case '\u00a0', '\u2007', '\u202f':
		return false
	}
	return unicode.In(r, unicode.Zs, unicode.Zl, unicode.Zp)
}

// lookup only accepts a match whose name prefixes candidate.
func lookup(f Finder, candidate string) (roster.Mention, bool) {
	if candidate == "" {
		return roster.Mention{}, false
	}
	m, ok := f.Find(candidate)
	if !ok {
		return roster.Mention{}, false
	}
	name := m.MatchedName()
	if name == "" || !strings.HasPrefix(candidate, name) {
		return roster.Mention{}, false
	}
	return m, true
}
