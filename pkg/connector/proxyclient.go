// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/supersonic/pkg/connector/mcfmt"
)

// ErrServerNotFound is returned when a destination name is not registered
// on the proxy.
var ErrServerNotFound = errors.New("server not found")

// Server is a backend server registered on the proxy.
type Server struct {
	Name    string `json:"name"`
	Players int    `json:"players"`
}

// Proxy enumerates destinations and delivers chat components to them.
type Proxy interface {
	Servers(ctx context.Context) ([]Server, error)
	Send(ctx context.Context, server string, msg mcfmt.Component) error
}

// proxyMessage carries both renderings so either kind of proxy plugin can
// display it.
type proxyMessage struct {
	Component mcfmt.Component `json:"component"`
	Legacy    string          `json:"legacy"`
}

const defaultHTTPTimeout = 10 * time.Second

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 1 << 20

// ProxyClient talks to the proxy's message API:
//
//	GET  {base}/servers                -> [{"name": .., "players": ..}]
//	POST {base}/servers/{name}/message <- {"component": .., "legacy": ..}
type ProxyClient struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

var _ Proxy = (*ProxyClient)(nil)

// NewProxyClient creates a client for baseURL. A nil hc uses a client with a
// 10 second timeout.
func NewProxyClient(baseURL string, hc *http.Client, log zerolog.Logger) *ProxyClient {
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &ProxyClient{
		baseURL: baseURL,
		http:    hc,
		log:     log.With().Str("component", "proxy_client").Logger(),
	}
}

// Servers implements Proxy.
func (p *ProxyClient) Servers(ctx context.Context) ([]Server, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/servers", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list servers: proxy returned %s", resp.Status)
	}

	var servers []Server
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&servers); err != nil {
		return nil, fmt.Errorf("decode servers: %w", err)
	}
	return servers, nil
}

// Send implements Proxy. An unknown server yields ErrServerNotFound.
func (p *ProxyClient) Send(ctx context.Context, server string, msg mcfmt.Component) error {
	target := p.baseURL + "/servers/" + url.PathEscape(server) + "/message"
	resp, err := postJSON(ctx, p.http, target, proxyMessage{Component: msg, Legacy: msg.Legacy()})
	if err != nil {
		return fmt.Errorf("send to %s: %w", server, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrServerNotFound
	case resp.StatusCode >= 300:
		return fmt.Errorf("send to %s: proxy returned %s", server, resp.Status)
	}
	p.log.Debug().Str("server", server).Msg("Delivered message to proxy")
	return nil
}

func postJSON(ctx context.Context, hc *http.Client, target string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return hc.Do(req)
}
