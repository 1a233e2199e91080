// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func doRequest(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return doRequestWithToken(t, e, method, path, body, testAPIToken)
}

func doRequestWithToken(t *testing.T, e *echo.Echo, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	res := httptest.NewRecorder()
	e.ServeHTTP(res, req)
	return res
}

func decodeBody[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(res.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", res.Body.String(), err)
	}
	return v
}

func newTestAPI(t *testing.T) (*testBridge, *echo.Echo) {
	t.Helper()
	b := newTestBridge(t)
	return b, NewHandler(b.conn).Echo()
}

const steveJSON = `{"id":"6f1d8a4e-4c3b-4d7a-9a57-0d1c2b3a4f50","name":"Steve","server":"survival"}`

func TestAPIHealth(t *testing.T) {
	t.Parallel()
	_, e := newTestAPI(t)
	res := doRequest(t, e, http.MethodGet, "/api/health", "")
	if res.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", res.Code)
	}
	if got := decodeBody[map[string]any](t, res)["status"]; got != "ok" {
		t.Errorf("status field: got %v", got)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	t.Parallel()
	_, e := newTestAPI(t)
	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusBadRequest},
		{"wrong", "not-the-token", http.StatusUnauthorized},
		{"prefix", testAPIToken[:4], http.StatusUnauthorized},
		{"valid", testAPIToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := doRequestWithToken(t, e, http.MethodGet, "/api/discord/servers", "", tt.token)
			if res.Code != tt.want {
				t.Errorf("status: got %d, want %d (body %s)", res.Code, tt.want, res.Body.String())
			}
		})
	}

	res := doRequestWithToken(t, e, http.MethodGet, "/api/health", "", "")
	if res.Code != http.StatusOK {
		t.Errorf("health without token: got %d, want 200", res.Code)
	}
}

func TestAPIRejectsEverythingWithoutConfiguredToken(t *testing.T) {
	t.Parallel()
	b := newTestBridge(t)
	b.conn.Config.API.Token = ""
	e := NewHandler(b.conn).Echo()
	for _, token := range []string{"", " ", testAPIToken} {
		res := doRequestWithToken(t, e, http.MethodPost, "/api/whitelist/reload", "", token)
		if res.Code == http.StatusOK {
			t.Errorf("token %q: got 200, want a rejection", token)
		}
	}
}

func TestAPILoginAndAuth(t *testing.T) {
	t.Parallel()
	b, e := newTestAPI(t)

	res := doRequest(t, e, http.MethodPost, "/api/minecraft/login", steveJSON)
	if res.Code != http.StatusOK {
		t.Fatalf("login status: got %d: %s", res.Code, res.Body)
	}
	login := decodeBody[loginResponse](t, res)
	if login.Allowed || login.Reason == nil {
		t.Fatalf("login: got %+v, want denial", login)
	}
	if !strings.Contains(login.Reason.Legacy, "§a/auth§r") {
		t.Errorf("legacy reason: got %q", login.Reason.Legacy)
	}
	code := strings.Split(login.Reason.Plain, "\n")[2]

	res = doRequest(t, e, http.MethodPost, "/api/discord/auth", `{"code":"`+code+`"}`)
	reply := decodeBody[Reply](t, res)
	if !strings.HasPrefix(reply.Content, "Welcome **Steve**!") || !reply.Ephemeral {
		t.Errorf("auth reply: got %+v", reply)
	}
	if n, _ := b.codes.Len(testContext(t)); n != 0 {
		t.Errorf("redeemed code should be gone, store Len=%d", n)
	}

	res = doRequest(t, e, http.MethodPost, "/api/minecraft/login", steveJSON)
	if login := decodeBody[loginResponse](t, res); !login.Allowed || login.Reason != nil {
		t.Errorf("second login: got %+v, want allowed", login)
	}
}

func TestAPIRejectsBadRequests(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"login without id", http.MethodPost, "/api/minecraft/login", `{"name":"Steve"}`},
		{"login bad json", http.MethodPost, "/api/minecraft/login", `{"name":`},
		{"chat without message", http.MethodPost, "/api/minecraft/chat", steveJSON},
		{"join without name", http.MethodPost, "/api/minecraft/join", `{"id":"6f1d8a4e-4c3b-4d7a-9a57-0d1c2b3a4f50"}`},
		{"say without server", http.MethodPost, "/api/discord/say", `{"content":"hi"}`},
		{"servers bad flag", http.MethodGet, "/api/discord/servers?ephemeral=maybe", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, e := newTestAPI(t)
			res := doRequest(t, e, tt.method, tt.path, tt.body)
			if res.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400 (%s)", res.Code, res.Body)
			}
			if _, ok := decodeBody[map[string]any](t, res)["error"]; !ok {
				t.Errorf("body should carry an error: %s", res.Body)
			}
		})
	}
}

func TestAPIChat(t *testing.T) {
	t.Parallel()
	b, e := newTestAPI(t)
	doRequest(t, e, http.MethodPut, "/api/discord/members", `[{"id":"555","name":"Alex"}]`)

	body := `{"id":"6f1d8a4e-4c3b-4d7a-9a57-0d1c2b3a4f50","name":"Steve","server":"survival","message":"hi @Alex"}`
	res := doRequest(t, e, http.MethodPost, "/api/minecraft/chat", body)
	if res.Code != http.StatusOK {
		t.Fatalf("status: got %d: %s", res.Code, res.Body)
	}
	echoed := decodeBody[componentBody](t, res)
	if echoed.Plain != "Steve to Discord: hi @Alex" {
		t.Errorf("echo: got %q", echoed.Plain)
	}
	if msgs := b.sender.Messages(); len(msgs) != 1 || msgs[0] != "**Steve** from `survival`: hi <@555>" {
		t.Errorf("discord: got %q", msgs)
	}

	b.sender.failWith = errUnavailable
	if res := doRequest(t, e, http.MethodPost, "/api/minecraft/chat", body); res.Code != http.StatusInternalServerError {
		t.Errorf("status with Discord down: got %d, want 500", res.Code)
	}
}

func TestAPIJoinLeave(t *testing.T) {
	t.Parallel()
	b, e := newTestAPI(t)
	for _, path := range []string{"/api/minecraft/join", "/api/minecraft/leave"} {
		if res := doRequest(t, e, http.MethodPost, path, steveJSON); res.Code != http.StatusOK {
			t.Errorf("%s: got %d", path, res.Code)
		}
	}
	if got := len(b.sender.Messages()); got != 2 {
		t.Errorf("messages: got %d, want 2", got)
	}
}

func TestAPISayAndServers(t *testing.T) {
	t.Parallel()
	b, e := newTestAPI(t)

	body := `{"member":{"id":"555","name":"Alex"},"roles":["200"],"channel_id":"100","server":"survival","content":"hello"}`
	res := doRequest(t, e, http.MethodPost, "/api/discord/say", body)
	if reply := decodeBody[Reply](t, res); reply.Content != "Message sent to `survival`: hello" {
		t.Errorf("say: got %+v", reply)
	}
	if got := len(b.proxy.Sent("survival")); got != 1 {
		t.Errorf("relayed: got %d, want 1", got)
	}

	res = doRequest(t, e, http.MethodGet, "/api/discord/servers?ephemeral=true", "")
	reply := decodeBody[Reply](t, res)
	if !reply.Ephemeral || !strings.Contains(reply.Content, "`survival` (play.example.com): **3** players online") {
		t.Errorf("servers: got %+v", reply)
	}
}

func TestAPIMembersAndRoles(t *testing.T) {
	t.Parallel()
	b, e := newTestAPI(t)

	res := doRequest(t, e, http.MethodPut, "/api/discord/members", `[{"id":"1","name":"Ann"},{"id":"2","name":"Bo"}]`)
	if got := decodeBody[map[string]any](t, res)["members"]; got != float64(2) {
		t.Errorf("members after sync: got %v", got)
	}

	res = doRequest(t, e, http.MethodPost, "/api/discord/members/3/roles", `{"member":{"name":"Cy"},"added":["200"]}`)
	out := decodeBody[map[string]any](t, res)
	if out["changed"] != true || out["members"] != float64(3) {
		t.Errorf("role add: got %v", out)
	}
	if m, ok := b.conn.Roster.Get("3"); !ok || m.Name != "Cy" {
		t.Errorf("path id should be used: got (%+v, %v)", m, ok)
	}

	res = doRequest(t, e, http.MethodPost, "/api/discord/members/1/roles", `{"removed":["200"]}`)
	if out := decodeBody[map[string]any](t, res); out["members"] != float64(2) {
		t.Errorf("role remove: got %v", out)
	}
}

func TestAPIDirectoryAndRewrite(t *testing.T) {
	t.Parallel()
	_, e := newTestAPI(t)

	doRequest(t, e, http.MethodPut, "/api/discord/directory", `{"roles":{"12345":"Mods"}}`)
	res := doRequest(t, e, http.MethodPost, "/api/rewrite/outbound", `{"text":"ping <@&12345> <@&1>"}`)
	out := decodeBody[componentBody](t, res)
	if out.Legacy != "ping §b@Mods§r <@&1>" || out.Plain != "ping @Mods <@&1>" {
		t.Errorf("outbound: got %+v", out)
	}

	doRequest(t, e, http.MethodPut, "/api/discord/members", `[{"id":"555","name":"Alex"}]`)
	res = doRequest(t, e, http.MethodPost, "/api/rewrite/inbound", `{"text":"hey @Alex can you help"}`)
	in := decodeBody[inboundResponse](t, res)
	if in.Transmit != "hey <@555> can you help" || in.Display.Legacy != "hey §b@Alex§r can you help" {
		t.Errorf("inbound: got %+v", in)
	}
}

func TestAPIBodyLimit(t *testing.T) {
	t.Parallel()
	_, e := newTestAPI(t)
	big := `{"text":"` + strings.Repeat("a", 2<<20) + `"}`
	if res := doRequest(t, e, http.MethodPost, "/api/rewrite/outbound", big); res.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status: got %d, want 413", res.Code)
	}
}

func TestAPIReloadAllowList(t *testing.T) {
	t.Parallel()
	b, e := newTestAPI(t)

	res := doRequest(t, e, http.MethodPost, "/api/whitelist/reload", "")
	if got := decodeBody[map[string]any](t, res)["reloaded"]; res.Code != http.StatusOK || got != false {
		t.Fatalf("reload without a file list: got %d %v", res.Code, got)
	}

	b.conn.Reloader = b.list
	doc := "entries:\n  - uuid: 6f1d8a4e-4c3b-4d7a-9a57-0d1c2b3a4f50\n    username: Steve\n"
	if err := os.WriteFile(b.listPath, []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	res = doRequest(t, e, http.MethodPost, "/api/whitelist/reload", "")
	if got := decodeBody[map[string]any](t, res)["reloaded"]; res.Code != http.StatusOK || got != true {
		t.Fatalf("reload: got %d %v", res.Code, got)
	}

	res = doRequest(t, e, http.MethodPost, "/api/minecraft/login", steveJSON)
	if login := decodeBody[loginResponse](t, res); !login.Allowed {
		t.Errorf("player added on disk should be allowed after reload: %+v", login)
	}

	if err := os.WriteFile(b.listPath, []byte("entries: [oops"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	res = doRequest(t, e, http.MethodPost, "/api/whitelist/reload", "")
	if res.Code != http.StatusInternalServerError {
		t.Errorf("broken file: got %d, want 500", res.Code)
	}
}
