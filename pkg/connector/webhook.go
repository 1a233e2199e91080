// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// MessageSender posts a message to the bridged Discord channel.
type MessageSender interface {
	SendMessage(ctx context.Context, content string) error
}

// maxMessageLength is Discord's limit on message content, in characters.
const maxMessageLength = 2000

// ErrInvalidWebhookURL is returned for a webhook URL without an id and token.
var ErrInvalidWebhookURL = errors.New("webhook url must end in /webhooks/{id}/{token}")

// ParseWebhookURL returns the id and token of a Discord webhook URL.
func ParseWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", ErrInvalidWebhookURL
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 3 || parts[len(parts)-3] != "webhooks" {
		return "", "", ErrInvalidWebhookURL
	}
	id, token = parts[len(parts)-2], parts[len(parts)-1]
	if id == "" || token == "" {
		return "", "", ErrInvalidWebhookURL
	}
	return id, token, nil
}

// WebhookSender posts messages through a Discord incoming webhook. Only
// user mentions ping; role and @everyone mentions typed in game are inert.
type WebhookSender struct {
	session *discordgo.Session
	target  *url.URL
	id      string
	token   string
	log     zerolog.Logger
}

var _ MessageSender = (*WebhookSender)(nil)

// NewWebhookSender creates a sender for webhookURL. A nil hc uses a client
// with a 10 second timeout. Requests go to webhookURL itself, so a proxy or
// test server can stand in for discord.com.
func NewWebhookSender(webhookURL string, hc *http.Client, log zerolog.Logger) (*WebhookSender, error) {
	id, token, err := ParseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	target, _ := url.Parse(webhookURL)
	target.RawQuery = ""
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Client = hc
	// A rate limited chat line is dropped rather than queued behind retries.
	session.ShouldRetryOnRateLimit = false
	session.MaxRestRetries = 1
	return &WebhookSender{
		session: session,
		target:  target,
		id:      id,
		token:   token,
		log:     log.With().Str("component", "discord_webhook").Str("webhook_id", id).Logger(),
	}, nil
}

// SendMessage implements MessageSender. Content longer than Discord allows
// is truncated.
func (w *WebhookSender) SendMessage(ctx context.Context, content string) error {
	params := &discordgo.WebhookParams{
		Content: truncate(content, maxMessageLength),
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
		},
	}
	_, err := w.session.WebhookExecute(w.id, w.token, false, params,
		discordgo.WithContext(ctx), w.toTarget)
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil {
			w.log.Warn().Int("status", restErr.Response.StatusCode).Msg("Discord rejected webhook message")
		}
		return fmt.Errorf("post webhook: %w", err)
	}
	return nil
}

func (w *WebhookSender) toTarget(cfg *discordgo.RequestConfig) {
	u := *w.target
	u.RawQuery = cfg.Request.URL.RawQuery
	cfg.Request.URL = &u
	cfg.Request.Host = u.Host
}

// LogSender only logs messages. It stands in for Discord when no webhook
// is configured.
type LogSender struct {
	log zerolog.Logger
}

var _ MessageSender = LogSender{}

// NewLogSender returns a sender that writes each message to log.
func NewLogSender(log zerolog.Logger) LogSender {
	return LogSender{log: log.With().Str("component", "discord_log").Logger()}
}

// SendMessage implements MessageSender.
func (s LogSender) SendMessage(_ context.Context, content string) error {
	s.log.Info().Str("content", content).Msg("Discord message")
	return nil
}

// truncate cuts s to at most n runes, ending in an ellipsis. A mention or
// channel token the cut would split is dropped whole.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	cut := string([]rune(s)[:n-1])
	for {
		i := max(strings.LastIndex(cut, "<@"), strings.LastIndex(cut, "<#"))
		if i < 0 || strings.ContainsRune(cut[i:], '>') {
			break
		}
		cut = cut[:i]
	}
	return cut + "…"
}
