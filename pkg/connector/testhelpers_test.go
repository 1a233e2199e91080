// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/supersonic/pkg/allowlist"
	"github.com/aiku/supersonic/pkg/auth"
	"github.com/aiku/supersonic/pkg/connector/mcfmt"
	"github.com/aiku/supersonic/pkg/otp"
)

const (
	testChannelID = "100"
	testRoleID    = "200"
	testAPIToken  = "test-api-token"
)

// fakeProxy is an in-memory Proxy recording delivered messages.
type fakeProxy struct {
	mu       sync.Mutex
	servers  []Server
	sent     map[string][]mcfmt.Component
	failWith error
}

func newFakeProxy(servers ...Server) *fakeProxy {
	return &fakeProxy{servers: servers, sent: map[string][]mcfmt.Component{}}
}

func (p *fakeProxy) Servers(context.Context) ([]Server, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return nil, p.failWith
	}
	return append([]Server(nil), p.servers...), nil
}

func (p *fakeProxy) Send(_ context.Context, server string, msg mcfmt.Component) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	for _, s := range p.servers {
		if s.Name == server {
			p.sent[server] = append(p.sent[server], msg)
			return nil
		}
	}
	return ErrServerNotFound
}

func (p *fakeProxy) Sent(server string) []mcfmt.Component {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]mcfmt.Component(nil), p.sent[server]...)
}

// recordingSender captures Discord messages.
type recordingSender struct {
	mu       sync.Mutex
	messages []string
	failWith error
}

func (s *recordingSender) SendMessage(_ context.Context, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.messages = append(s.messages, content)
	return nil
}

func (s *recordingSender) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

func testConfig() *Config {
	cfg := defaultConfig()
	cfg.Discord.ChannelID = testChannelID
	cfg.Discord.RoleID = testRoleID
	cfg.Proxy.URL = "http://proxy.invalid"
	cfg.API.Token = testAPIToken
	cfg.ForcedHosts = map[string]string{"survival": "play.example.com"}
	cfg.Messages.Welcome = "Dreamyard"
	return &cfg
}

type testBridge struct {
	conn   *Connector
	proxy  *fakeProxy
	sender *recordingSender
	codes  *otp.MemoryStore
	list   *allowlist.FileList

	// listPath is the allow-list file behind list.
	listPath string
}

func newTestBridge(t *testing.T) *testBridge {
	t.Helper()
	listPath := filepath.Join(t.TempDir(), "whitelist.yaml")
	list, err := allowlist.LoadFile(listPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	codes := otp.NewMemoryStore()
	issuer := otp.NewIssuer(codes, otp.DigitGenerator{}, 0, zerolog.Nop())
	cfg := testConfig()
	coordinator := auth.NewCoordinator(list, issuer, codes, cfg.CodeTTL(), zerolog.Nop())

	proxy := newFakeProxy(Server{Name: "survival", Players: 3}, Server{Name: "lobby", Players: 0})
	sender := &recordingSender{}
	return &testBridge{
		conn:   New(cfg, coordinator, proxy, sender, zerolog.Nop()),
		proxy:  proxy,
		sender: sender,
		codes:  codes,
		list:   list,

		listPath: listPath,
	}
}

// endpointCall records a request made to a fake HTTP server.
type endpointCall struct {
	Method string
	Path   string
	Body   string
}

// fakeHTTP wraps an httptest.Server answering with a fixed status and body
// while recording every call.
type fakeHTTP struct {
	Server *httptest.Server

	mu     sync.Mutex
	calls  []endpointCall
	status int
	body   string
}

func newFakeHTTP(t *testing.T, status int, body string) *fakeHTTP {
	t.Helper()
	f := &fakeHTTP{status: status, body: body}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.calls = append(f.calls, endpointCall{Method: r.Method, Path: r.URL.EscapedPath(), Body: string(data)})
		status, body := f.status, f.body
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *fakeHTTP) Calls() []endpointCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]endpointCall(nil), f.calls...)
}

var errUnavailable = errors.New("unavailable")

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
