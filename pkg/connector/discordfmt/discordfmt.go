// Copyright 2024-2026 Aiku AI

// Package discordfmt recognizes Discord reference tokens and builds Discord
// markdown for bridged messages.
package discordfmt

import (
	"regexp"
	"strings"
)

// Kind is the type of entity a reference token points at.
type Kind int

const (
	KindUser Kind = iota
	KindRole
	KindChannel
)

func (k Kind) String() string {
	switch k {
	case KindRole:
		return "role"
	case KindChannel:
		return "channel"
	default:
		return "user"
	}
}

// Token is a reference token found in a message. Start and End are byte
// offsets into the scanned text.
type Token struct {
	Kind  Kind
	ID    string
	Start int
	End   int
}

var (
	tokenRe = regexp.MustCompile(`<@&(?P<role>\d+)>|<@!?(?P<user>\d+)>|<#(?P<channel>\d+)>`)

	roleGroup    = tokenRe.SubexpIndex("role")
	userGroup    = tokenRe.SubexpIndex("user")
	channelGroup = tokenRe.SubexpIndex("channel")

	markdownReplacer = strings.NewReplacer(
		`\`, `\\`,
		`*`, `\*`,
		`_`, `\_`,
		`~`, `\~`,
		"`", "\\`",
		`|`, `\|`,
		`>`, `\>`,
	)
)

// FindTokens returns every role, user and channel token in text, in order.
func FindTokens(text string) []Token {
	matches := tokenRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	tokens := make([]Token, 0, len(matches))
	for _, m := range matches {
		tok := Token{Start: m[0], End: m[1]}
		switch {
		case m[2*roleGroup] >= 0:
			tok.Kind = KindRole
			tok.ID = text[m[2*roleGroup]:m[2*roleGroup+1]]
		case m[2*userGroup] >= 0:
			tok.Kind = KindUser
			tok.ID = text[m[2*userGroup]:m[2*userGroup+1]]
		case m[2*channelGroup] >= 0:
			tok.Kind = KindChannel
			tok.ID = text[m[2*channelGroup]:m[2*channelGroup+1]]
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// User returns the mention token for a user id.
func User(id string) string { return "<@" + id + ">" }

// Role returns the mention token for a role id.
func Role(id string) string { return "<@&" + id + ">" }

// Channel returns the reference token for a channel id.
func Channel(id string) string { return "<#" + id + ">" }

// Escape backslash-escapes the markdown characters Discord interprets
// inline, so player and server names render literally.
func Escape(s string) string {
	return markdownReplacer.Replace(s)
}

// Bold wraps an escaped s in bold markers.
func Bold(s string) string {
	return "**" + Escape(s) + "**"
}

// Code wraps s in an inline code span. Escapes do not apply inside code
// spans, so backticks are replaced with a quote.
func Code(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "'") + "`"
}
