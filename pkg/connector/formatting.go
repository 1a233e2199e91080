// Copyright 2024-2026 Aiku AI

package connector

import (
	"fmt"
	"time"

	"github.com/aiku/supersonic/pkg/connector/discordfmt"
	"github.com/aiku/supersonic/pkg/connector/mcfmt"
)

// relayedMessage is what players see for a Discord message:
//
//	[Discord] <sender>: <text>
func relayedMessage(sender string, text mcfmt.Component) mcfmt.Component {
	var b mcfmt.Builder
	return b.Append(mcfmt.Styled("[Discord]", mcfmt.Gold)).
		AppendText(" ").
		Append(mcfmt.Styled(sender, mcfmt.Green)).
		AppendText(": ").
		Append(text).
		Build()
}

// gameEcho confirms a /dsay message to the sender's server.
func gameEcho(sender string, display mcfmt.Component) mcfmt.Component {
	var b mcfmt.Builder
	return b.Append(mcfmt.Styled(sender, mcfmt.Green)).
		AppendText(" to ").
		Append(mcfmt.Styled("Discord", mcfmt.Gold)).
		AppendText(": ").
		Append(display).
		Build()
}

// gameMessage is the Discord form of a /dsay message.
func gameMessage(p Player, transmit string) string {
	source := discordfmt.Bold(p.Name)
	if p.Server != "" {
		source += " from " + discordfmt.Code(p.Server)
	}
	return source + ": " + transmit
}

func presenceLine(p Player, verb string) string {
	return discordfmt.Bold(p.Name) + " " + verb + " " + discordfmt.Code(p.Server) + "."
}

func serverLine(s Server, host string) string {
	line := discordfmt.Code(s.Name)
	if host != "" {
		line += " (" + host + ")"
	}
	return fmt.Sprintf("%s: **%d** players online", line, s.Players)
}

// codeMessage is the disconnect message of the login gate.
func codeMessage(welcome, code string, expiresIn time.Duration) mcfmt.Component {
	var b mcfmt.Builder
	return b.AppendText("Welcome to " + welcome + "! Please submit this code in Discord with ").
		Append(mcfmt.Styled("/auth", mcfmt.Green)).
		AppendText(" ").
		Append(mcfmt.Styled("<code>", mcfmt.Aqua)).
		AppendText(" command:\n\n").
		Append(mcfmt.Component{Text: code, Bold: true}).
		AppendText("\n\nThis code will expire in " + formatMinutes(expiresIn) + ".").
		Build()
}

func formatMinutes(d time.Duration) string {
	n := int(d / time.Minute)
	if n == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", n)
}
