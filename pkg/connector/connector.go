// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiku/supersonic/pkg/allowlist"
	"github.com/aiku/supersonic/pkg/auth"
	"github.com/aiku/supersonic/pkg/connector/discordfmt"
	"github.com/aiku/supersonic/pkg/connector/mcfmt"
	"github.com/aiku/supersonic/pkg/mention"
	"github.com/aiku/supersonic/pkg/otp"
	"github.com/aiku/supersonic/pkg/roster"
)

// Player is a Minecraft player as reported by the proxy. Server is empty
// while the player is not connected to a backend server.
type Player struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Server string    `json:"server,omitempty"`
}

func (p Player) requester() otp.Requester {
	return otp.Requester{ID: p.ID, Name: p.Name}
}

// Reply is the response to a Discord slash command.
type Reply struct {
	Content   string `json:"content"`
	Ephemeral bool   `json:"ephemeral"`
}

// SayCommand is a /say invocation.
type SayCommand struct {
	Member    roster.Member `json:"member"`
	Roles     []string      `json:"roles"`
	ChannelID string        `json:"channel_id"`
	Server    string        `json:"server"`
	Content   string        `json:"content"`
}

// RoleEvent reports roles added to or removed from a guild member.
type RoleEvent struct {
	Member  roster.Member `json:"member"`
	Added   []string      `json:"added,omitempty"`
	Removed []string      `json:"removed,omitempty"`
}

// LoginResult is the login gate's decision. Reason is the disconnect
// message shown to a denied player.
type LoginResult struct {
	Allowed bool
	Reason  mcfmt.Component
}

// Connector bridges the proxy and Discord. It owns the roster of role
// holders and the directory used to render Discord references in game.
type Connector struct {
	Config    *Config
	Roster    *roster.Index
	Directory *Directory
	Auth      *auth.Coordinator
	Proxy     Proxy
	Discord   MessageSender
	// Reloader is set when the allow-list lives in a file.
	Reloader  allowlist.Reloader

	log zerolog.Logger

	serverMu   sync.Mutex
	server     *http.Server
	listenAddr net.Addr
}

// New creates a Connector with an empty roster.
func New(cfg *Config, coordinator *auth.Coordinator, proxy Proxy, discord MessageSender, log zerolog.Logger) *Connector {
	ix := roster.NewIndex(log)
	return &Connector{
		Config:    cfg,
		Roster:    ix,
		Directory: NewDirectory(ix),
		Auth:      coordinator,
		Proxy:     proxy,
		Discord:   discord,
		log:       log.With().Str("component", "connector").Logger(),
	}
}

// Start serves the bridge API on the configured address. It fails if the
// address cannot be bound.
func (c *Connector) Start(_ context.Context) error {
	addr := c.Config.API.Addr
	if addr == "" {
		return errors.New("api.addr is empty")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	server := &http.Server{
		Handler:      NewHandler(c).Echo(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	c.serverMu.Lock()
	c.server = server
	c.listenAddr = ln.Addr()
	c.serverMu.Unlock()

	go func() {
		c.log.Info().Str("addr", ln.Addr().String()).Msg("Starting bridge API")
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.Error().Err(err).Msg("Bridge API error")
		}
	}()
	return nil
}

// Addr returns the bound API address, or nil before Start.
func (c *Connector) Addr() net.Addr {
	c.serverMu.Lock()
	defer c.serverMu.Unlock()
	return c.listenAddr
}

// Stop gracefully shuts the bridge API down. It is a no-op before Start.
func (c *Connector) Stop(ctx context.Context) error {
	c.serverMu.Lock()
	server := c.server
	c.server = nil
	c.listenAddr = nil
	c.serverMu.Unlock()
	if server == nil {
		return nil
	}
	c.log.Info().Msg("Stopping bridge API")
	return server.Shutdown(ctx)
}

// RewriteOutbound renders Discord text for the game.
func (c *Connector) RewriteOutbound(text string) mcfmt.Component {
	return mention.RewriteOutbound(text, c.Directory)
}

// RewriteInbound converts game text to its display and Discord forms.
func (c *Connector) RewriteInbound(text string) mention.Result {
	return mention.RewriteInbound(text, c.Roster)
}

// HandleSay relays a /say command to a game server. Only role holders may
// use it, and only in the bridged channel.
func (c *Connector) HandleSay(ctx context.Context, cmd SayCommand) Reply {
	roleID, channelID := c.Config.Discord.RoleID, c.Config.Discord.ChannelID
	if !slices.Contains(cmd.Roles, roleID) {
		return Reply{
			Content:   "You need the role " + discordfmt.Role(roleID) + " to use this command. Ask your admin!",
			Ephemeral: true,
		}
	}
	if cmd.ChannelID != channelID {
		return Reply{
			Content:   "This command can only be used in " + discordfmt.Channel(channelID) + ".",
			Ephemeral: true,
		}
	}

	msg := relayedMessage(cmd.Member.EffectiveName(), c.RewriteOutbound(cmd.Content))
	err := c.Proxy.Send(ctx, cmd.Server, msg)
	switch {
	case errors.Is(err, ErrServerNotFound):
		return Reply{Content: "Server not found.", Ephemeral: true}
	case err != nil:
		c.log.Error().Err(err).Str("server", cmd.Server).Msg("Failed to relay Discord message")
		return Reply{Content: "Failed to deliver the message. Please try again later.", Ephemeral: true}
	}
	c.log.Debug().
		Str("member_id", cmd.Member.ID).
		Str("server", cmd.Server).
		Msg("Relayed Discord message")
	return Reply{Content: "Message sent to " + discordfmt.Code(cmd.Server) + ": " + cmd.Content}
}

// HandleServers lists the proxy's servers with their player counts.
func (c *Connector) HandleServers(ctx context.Context, ephemeral bool) Reply {
	servers, err := c.Proxy.Servers(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to list servers")
		return Reply{Content: "Failed to reach the proxy. Please try again later.", Ephemeral: true}
	}
	if len(servers) == 0 {
		return Reply{Content: "No servers are registered.", Ephemeral: ephemeral}
	}

	lines := make([]string, 0, len(servers))
	for _, s := range servers {
		lines = append(lines, serverLine(s, c.Config.ForcedHosts[s.Name]))
	}
	return Reply{Content: strings.Join(lines, "\n"), Ephemeral: ephemeral}
}

// HandleAuth redeems a login code.
func (c *Connector) HandleAuth(ctx context.Context, code string) Reply {
	req, err := c.Auth.Redeem(ctx, code)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCode) {
			c.log.Error().Err(err).Msg("Failed to redeem code")
		}
		return Reply{Content: "Invalid code. Please retry and get a new code.", Ephemeral: true}
	}
	return Reply{
		Content:   "Welcome " + discordfmt.Bold(req.Name) + "! You can now connect to the servers.",
		Ephemeral: true,
	}
}

// HandleDiscordSay posts an in-game /dsay message to Discord and returns
// the echo to show on the player's server.
func (c *Connector) HandleDiscordSay(ctx context.Context, p Player, message string) (mcfmt.Component, error) {
	res := c.RewriteInbound(message)
	if err := c.Discord.SendMessage(ctx, gameMessage(p, res.Transmit)); err != nil {
		return mcfmt.Component{}, fmt.Errorf("send to discord: %w", err)
	}
	return gameEcho(p.Name, res.Display), nil
}

// HandleLogin runs the login gate. Denied players get a fresh code.
func (c *Connector) HandleLogin(ctx context.Context, p Player) (LoginResult, error) {
	d, err := c.Auth.OnConnectAttempt(ctx, p.requester())
	if err != nil {
		return LoginResult{}, err
	}
	if d.Allowed {
		return LoginResult{Allowed: true}, nil
	}
	return LoginResult{Reason: codeMessage(c.Config.Messages.Welcome, d.Code, d.ExpiresIn)}, nil
}

// HandleJoin announces a player connecting to a server.
func (c *Connector) HandleJoin(ctx context.Context, p Player) error {
	return c.announce(ctx, p, "joined")
}

// HandleLeave announces a player leaving the proxy.
func (c *Connector) HandleLeave(ctx context.Context, p Player) error {
	return c.announce(ctx, p, "left")
}

func (c *Connector) announce(ctx context.Context, p Player, verb string) error {
	if p.Server == "" {
		return nil
	}
	if err := c.Discord.SendMessage(ctx, presenceLine(p, verb)); err != nil {
		return fmt.Errorf("send to discord: %w", err)
	}
	return nil
}

// ReloadAllowList rereads a file-backed allow-list. It reports false when
// the list has nothing to reload.
func (c *Connector) ReloadAllowList() (bool, error) {
	if c.Reloader == nil {
		return false, nil
	}
	if err := c.Reloader.Reload(); err != nil {
		return false, fmt.Errorf("reload allow-list: %w", err)
	}
	c.log.Info().Msg("Reloaded allow-list")
	return true, nil
}

// HandleRoleEvent keeps the roster in sync with the bridged role. Events
// for other roles are ignored. It reports whether the roster changed.
func (c *Connector) HandleRoleEvent(ev RoleEvent) bool {
	roleID := c.Config.Discord.RoleID
	switch {
	case slices.Contains(ev.Added, roleID):
		c.Roster.Add(ev.Member)
		return true
	case slices.Contains(ev.Removed, roleID):
		c.Roster.Remove(ev.Member)
		return true
	}
	return false
}

// SyncMembers replaces the roster with the current role holders.
func (c *Connector) SyncMembers(members []roster.Member) {
	c.Roster.Replace(members)
	c.log.Info().Int("members", c.Roster.Len()).Msg("Synchronized roster")
}
