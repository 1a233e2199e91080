// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package mention rewrites chat text between Discord and Minecraft,
// resolving references against the live roster and directory.
//
// Both directions scan the source once from left to right. Text outside a
// reference is copied unchanged, and a reference that cannot be resolved is
// emitted verbatim.
package mention

import (
	"github.com/aiku/supersonic/pkg/connector/discordfmt"
	"github.com/aiku/supersonic/pkg/connector/mcfmt"
)

// Resolver maps Discord ids to display names.
type Resolver interface {
	ResolveRole(id string) (string, bool)
	ResolveUser(id string) (string, bool)
	ResolveChannel(id string) (string, bool)
}

// Mention colors used when rendering for Minecraft.
const (
	RoleColor    = mcfmt.Aqua
	UserColor    = mcfmt.DarkAqua
	ChannelColor = mcfmt.Gray
	InboundColor = mcfmt.Aqua
)

// RewriteOutbound renders Discord text for Minecraft. Role and user tokens
// become "@name", channel tokens become "#name".
func RewriteOutbound(text string, r Resolver) mcfmt.Component {
	var b mcfmt.Builder
	last := 0
	for _, tok := range discordfmt.FindTokens(text) {
		b.AppendText(text[last:tok.Start])
		if c, ok := resolveToken(tok, r); ok {
			b.Append(c)
		} else {
			b.AppendText(text[tok.Start:tok.End])
		}
		last = tok.End
	}
	b.AppendText(text[last:])
	return b.Build()
}

func resolveToken(tok discordfmt.Token, r Resolver) (mcfmt.Component, bool) {
	switch tok.Kind {
	case discordfmt.KindRole:
		if name, ok := r.ResolveRole(tok.ID); ok {
			return mcfmt.Styled("@"+name, RoleColor), true
		}
	case discordfmt.KindUser:
		if name, ok := r.ResolveUser(tok.ID); ok {
			return mcfmt.Styled("@"+name, UserColor), true
		}
	case discordfmt.KindChannel:
		if name, ok := r.ResolveChannel(tok.ID); ok {
			return mcfmt.Styled("#"+name, ChannelColor), true
		}
	}
	return mcfmt.Component{}, false
}
