// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package mcfmt builds Minecraft chat components and renders them as plain
// text, legacy section-sign strings, or JSON text components. The JSON form
// is go-mc's chat.Message.
package mcfmt

import (
	"encoding/json"
	"strings"

	"github.com/Tnze/go-mc/chat"
)

// Color is a named Minecraft text color.
type Color string

const (
	Black       Color = chat.Black
	DarkBlue    Color = chat.DarkBlue
	DarkGreen   Color = chat.DarkGreen
	DarkAqua    Color = chat.DarkAqua
	DarkRed     Color = chat.DarkRed
	DarkPurple  Color = chat.DarkPurple
	Gold        Color = chat.Gold
	Gray        Color = chat.Gray
	DarkGray    Color = chat.DarkGray
	Blue        Color = chat.Blue
	Green       Color = chat.Green
	Aqua        Color = chat.Aqua
	Red         Color = chat.Red
	LightPurple Color = chat.LightPurple
	Yellow      Color = chat.Yellow
	White       Color = chat.White
)

// SectionSign prefixes legacy formatting codes.
const SectionSign = '§'

var colorCodes = map[Color]byte{
	Black: '0', DarkBlue: '1', DarkGreen: '2', DarkAqua: '3',
	DarkRed: '4', DarkPurple: '5', Gold: '6', Gray: '7',
	DarkGray: '8', Blue: '9', Green: 'a', Aqua: 'b',
	Red: 'c', LightPurple: 'd', Yellow: 'e', White: 'f',
}

var codeColors = func() map[byte]Color {
	m := make(map[byte]Color, len(colorCodes))
	for c, code := range colorCodes {
		m[code] = c
	}
	return m
}()

// Component is a node of a chat message. Children inherit the parent's
// color when they have none of their own, and its bold and italic flags.
type Component struct {
	Text     string
	Color    Color
	Bold     bool
	Italic   bool
	Children []Component
}

// Text returns an unstyled component.
func Text(s string) Component {
	return Component{Text: s}
}

// Styled returns a component colored c.
func Styled(s string, c Color) Component {
	return Component{Text: s, Color: c}
}

// Join returns an unstyled component wrapping parts.
func Join(parts ...Component) Component {
	return Component{Children: parts}
}

func (c Component) style() style {
	return style{color: c.Color, bold: c.Bold, italic: c.Italic}
}

func (c Component) isPlainLeaf() bool {
	return c.style() == style{} && len(c.Children) == 0
}

// IsEmpty reports whether the component renders no text.
func (c Component) IsEmpty() bool {
	if c.Text != "" {
		return false
	}
	for _, child := range c.Children {
		if !child.IsEmpty() {
			return false
		}
	}
	return true
}

// Plain returns the component text with all styling dropped.
func (c Component) Plain() string {
	var sb strings.Builder
	c.walk(style{}, func(text string, _ style) {
		sb.WriteString(text)
	})
	return sb.String()
}

// Legacy renders the component with section-sign codes. Every styled run is
// closed with a reset, so plain text around a mention is emitted unchanged.
func (c Component) Legacy() string {
	var sb strings.Builder
	var current style
	c.walk(style{}, func(text string, s style) {
		if s != current {
			if current != (style{}) {
				sb.WriteRune(SectionSign)
				sb.WriteByte('r')
			}
			s.writeCodes(&sb)
			current = s
		}
		sb.WriteString(text)
	})
	if current != (style{}) {
		sb.WriteRune(SectionSign)
		sb.WriteByte('r')
	}
	return sb.String()
}

func (c Component) walk(parent style, fn func(text string, s style)) {
	s := parent.inherit(c.style())
	if c.Text != "" {
		fn(c.Text, s)
	}
	for _, child := range c.Children {
		child.walk(s, fn)
	}
}

// Message converts the component to a go-mc chat message.
func (c Component) Message() chat.Message {
	m := chat.Message{
		Text:   c.Text,
		Color:  string(c.Color),
		Bold:   c.Bold,
		Italic: c.Italic,
	}
	if len(c.Children) > 0 {
		m.Extra = make([]chat.Message, len(c.Children))
		for i, child := range c.Children {
			m.Extra[i] = child.Message()
		}
	}
	return m
}

// FromMessage converts a go-mc chat message. Styling this package does not
// model, such as click events, underline or translations, is dropped.
func FromMessage(m chat.Message) Component {
	c := Component{
		Text:   m.Text,
		Color:  Color(m.Color),
		Bold:   m.Bold,
		Italic: m.Italic,
	}
	if _, ok := colorCodes[c.Color]; !ok {
		c.Color = ""
	}
	if len(m.Extra) > 0 {
		c.Children = make([]Component, len(m.Extra))
		for i, extra := range m.Extra {
			c.Children[i] = FromMessage(extra)
		}
	}
	return c
}

// MarshalJSON encodes the component as a JSON text component.
func (c Component) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Message())
}

// UnmarshalJSON decodes any JSON text component go-mc accepts, including
// the bare string and array forms.
func (c *Component) UnmarshalJSON(data []byte) error {
	var m chat.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*c = FromMessage(m)
	return nil
}

type style struct {
	color  Color
	bold   bool
	italic bool
}

func (s style) inherit(own style) style {
	if own.color != "" {
		s.color = own.color
	}
	s.bold = s.bold || own.bold
	s.italic = s.italic || own.italic
	return s
}

func (s style) writeCodes(sb *strings.Builder) {
	// A color code resets formatting in the legacy format, so it goes first.
	if code, ok := colorCodes[s.color]; ok {
		sb.WriteRune(SectionSign)
		sb.WriteByte(code)
	}
	if s.bold {
		sb.WriteRune(SectionSign)
		sb.WriteByte('l')
	}
	if s.italic {
		sb.WriteRune(SectionSign)
		sb.WriteByte('o')
	}
}
