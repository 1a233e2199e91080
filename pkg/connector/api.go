// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/aiku/supersonic/pkg/connector/mcfmt"
	"github.com/aiku/supersonic/pkg/roster"
)

// maxRequestBodySize is the body limit for every API request.
const maxRequestBodySize = "1M"

// Handler exposes the Connector over HTTP for the proxy plugin and the
// Discord adapter.
type Handler struct {
	conn *Connector
	log  zerolog.Logger
}

// NewHandler returns the HTTP handler for conn. Requests are checked
// against conn.Config.API.Token.
func NewHandler(conn *Connector) *Handler {
	return &Handler{
		conn: conn,
		log:  conn.log.With().Str("component", "api").Logger(),
	}
}

// Echo returns a router with the API routes and middleware installed.
func (h *Handler) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(maxRequestBodySize))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			h.log.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("Handled request")
			return nil
		},
	}))
	e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == healthPath
		},
		Validator: h.validToken,
	}))
	h.RegisterRoutes(e)
	return e
}

// validToken compares the bearer token in constant time. An empty
// configured token rejects everything.
func (h *Handler) validToken(key string, _ echo.Context) (bool, error) {
	want := h.conn.Config.API.Token
	if want == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(want)) == 1, nil
}

const healthPath = "/api/health"

// RegisterRoutes mounts every API route on e. Token checking is installed
// by Echo, so callers with their own router must add it themselves.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET(healthPath, h.handleHealth)

	e.POST("/api/minecraft/login", h.handleLogin)
	e.POST("/api/minecraft/chat", h.handleChat)
	e.POST("/api/minecraft/join", h.handleJoin)
	e.POST("/api/minecraft/leave", h.handleLeave)

	e.POST("/api/discord/say", h.handleSay)
	e.GET("/api/discord/servers", h.handleServers)
	e.POST("/api/discord/auth", h.handleAuth)
	e.PUT("/api/discord/members", h.handleSyncMembers)
	e.POST("/api/discord/members/:id/roles", h.handleRoleEvent)
	e.PUT("/api/discord/directory", h.handleDirectory)

	e.POST("/api/whitelist/reload", h.handleReloadAllowList)

	e.POST("/api/rewrite/outbound", h.handleRewriteOutbound)
	e.POST("/api/rewrite/inbound", h.handleRewriteInbound)
}

// componentBody carries a chat component in both renderings.
type componentBody struct {
	Component mcfmt.Component `json:"component"`
	Legacy    string          `json:"legacy"`
	Plain     string          `json:"plain"`
}

func newComponentBody(c mcfmt.Component) componentBody {
	return componentBody{Component: c, Legacy: c.Legacy(), Plain: c.Plain()}
}

type loginResponse struct {
	Allowed bool           `json:"allowed"`
	Reason  *componentBody `json:"reason,omitempty"`
}

type chatRequest struct {
	Player
	Message string `json:"message"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type textRequest struct {
	Text string `json:"text"`
}

type inboundResponse struct {
	Display  componentBody `json:"display"`
	Transmit string        `json:"transmit"`
}

func (h *Handler) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "ok",
		"members": h.conn.Roster.Len(),
	})
}

func bindPlayer(c echo.Context) (Player, error) {
	var p Player
	if err := c.Bind(&p); err != nil {
		return p, err
	}
	if p.ID == uuid.Nil || p.Name == "" {
		return p, echo.NewHTTPError(http.StatusBadRequest, "id and name are required")
	}
	return p, nil
}

func badRequest(c echo.Context, err error) error {
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		if s, ok := he.Message.(string); ok {
			msg = s
		}
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

func (h *Handler) handleLogin(c echo.Context) error {
	p, err := bindPlayer(c)
	if err != nil {
		return badRequest(c, err)
	}
	res, err := h.conn.HandleLogin(c.Request().Context(), p)
	if err != nil {
		h.log.Error().Err(err).Str("player", p.Name).Msg("Login gate failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login gate unavailable"})
	}
	resp := loginResponse{Allowed: res.Allowed}
	if !res.Allowed {
		body := newComponentBody(res.Reason)
		resp.Reason = &body
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if req.Name == "" || req.Message == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and message are required"})
	}
	echoed, err := h.conn.HandleDiscordSay(c.Request().Context(), req.Player, req.Message)
	if err != nil {
		h.log.Error().Err(err).Str("player", req.Name).Msg("Failed to relay game message")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to reach discord"})
	}
	return c.JSON(http.StatusOK, newComponentBody(echoed))
}

func (h *Handler) handleJoin(c echo.Context) error {
	return h.handlePresence(c, h.conn.HandleJoin)
}

func (h *Handler) handleLeave(c echo.Context) error {
	return h.handlePresence(c, h.conn.HandleLeave)
}

func (h *Handler) handlePresence(c echo.Context, fn func(ctx context.Context, p Player) error) error {
	p, err := bindPlayer(c)
	if err != nil {
		return badRequest(c, err)
	}
	if err := fn(c.Request().Context(), p); err != nil {
		h.log.Error().Err(err).Str("player", p.Name).Msg("Failed to announce player")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to reach discord"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func (h *Handler) handleSay(c echo.Context) error {
	var cmd SayCommand
	if err := c.Bind(&cmd); err != nil {
		return badRequest(c, err)
	}
	if cmd.Server == "" || cmd.Content == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "server and content are required"})
	}
	return c.JSON(http.StatusOK, h.conn.HandleSay(c.Request().Context(), cmd))
}

func (h *Handler) handleServers(c echo.Context) error {
	ephemeral := false
	if v := c.QueryParam("ephemeral"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ephemeral flag"})
		}
		ephemeral = b
	}
	return c.JSON(http.StatusOK, h.conn.HandleServers(c.Request().Context(), ephemeral))
}

func (h *Handler) handleAuth(c echo.Context) error {
	var req codeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	return c.JSON(http.StatusOK, h.conn.HandleAuth(c.Request().Context(), req.Code))
}

func (h *Handler) handleSyncMembers(c echo.Context) error {
	var members []roster.Member
	if err := c.Bind(&members); err != nil {
		return badRequest(c, err)
	}
	h.conn.SyncMembers(members)
	return c.JSON(http.StatusOK, echo.Map{"members": h.conn.Roster.Len()})
}

func (h *Handler) handleRoleEvent(c echo.Context) error {
	var ev RoleEvent
	if err := c.Bind(&ev); err != nil {
		return badRequest(c, err)
	}
	ev.Member.ID = c.Param("id")
	changed := h.conn.HandleRoleEvent(ev)
	return c.JSON(http.StatusOK, echo.Map{"changed": changed, "members": h.conn.Roster.Len()})
}

func (h *Handler) handleDirectory(c echo.Context) error {
	var snap DirectorySnapshot
	if err := c.Bind(&snap); err != nil {
		return badRequest(c, err)
	}
	h.conn.Directory.Update(snap)
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func (h *Handler) handleReloadAllowList(c echo.Context) error {
	reloaded, err := h.conn.ReloadAllowList()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to reload allow-list")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to reload allow-list"})
	}
	return c.JSON(http.StatusOK, echo.Map{"reloaded": reloaded})
}

func (h *Handler) handleRewriteOutbound(c echo.Context) error {
	var req textRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	return c.JSON(http.StatusOK, newComponentBody(h.conn.RewriteOutbound(req.Text)))
}

func (h *Handler) handleRewriteInbound(c echo.Context) error {
	var req textRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	res := h.conn.RewriteInbound(req.Text)
	return c.JSON(http.StatusOK, inboundResponse{
		Display:  newComponentBody(res.Display),
		Transmit: res.Transmit,
	})
}
