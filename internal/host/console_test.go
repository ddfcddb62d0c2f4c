package host

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zeuscript/internal/core/scripts"
)

const testToken = "supersecrettoken"

func startConsole(t *testing.T) (*Host, string) {
	t.Helper()
	cfg := writeFixture(t)
	cfg.ConsoleToken = testToken
	h := newTestHost(t, cfg, nil)
	startHost(t, h)

	s := httptest.NewServer(h.Handler())
	t.Cleanup(s.Close)
	return h, "ws" + strings.TrimPrefix(s.URL, "http") + "/console"
}

func dial(t *testing.T, u string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(u+"?token="+testToken, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	welcome := read(t, conn)
	require.Equal(t, EventWelcome, welcome.Event)
	require.NotEmpty(t, welcome.Session)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func call(t *testing.T, conn *websocket.Conn, req Request) Message {
	t.Helper()
	require.NoError(t, conn.WriteJSON(req))
	for {
		msg := read(t, conn)
		if msg.Type == TypeResponse && msg.ID == req.ID {
			return msg
		}
	}
}

func TestConsoleAuth(t *testing.T) {
	_, u := startConsole(t)

	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, _, err = websocket.DefaultDialer.Dial(u+"?token=invalid", nil)
	assert.Error(t, err)

	header := http.Header{"Authorization": []string{"Bearer " + testToken}}
	conn, _, err := websocket.DefaultDialer.Dial(u, header)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, EventWelcome, read(t, conn).Event)
}

func TestConsoleListAndSend(t *testing.T) {
	h, u := startConsole(t)
	conn := dial(t, u)
	require.Eventually(t, func() bool { return h.GetStats().Sessions == 1 }, time.Second, 10*time.Millisecond)

	list := call(t, conn, Request{ID: "1", Op: OpList})
	require.True(t, list.OK, list.Error)
	entities, ok := list.Result.([]any)
	require.True(t, ok)
	require.Len(t, entities, 2)

	hero := entities[0].(map[string]any)
	assert.Equal(t, "hero", hero["name"])
	assert.Equal(t, true, hero["loaded"])
	heroScripts := hero["scripts"].([]any)
	require.Len(t, heroScripts, 1)
	assert.Equal(t, "counter", heroScripts[0].(map[string]any)["name"])
	assert.Equal(t, "post-initialized", heroScripts[0].(map[string]any)["state"])

	sum := call(t, conn, Request{ID: "2", Op: OpSend, Entity: "hero", Script: "counter", Method: "add", Args: []any{2, 3}})
	require.True(t, sum.OK, sum.Error)
	assert.Equal(t, float64(5), sum.Result)

	missing := call(t, conn, Request{ID: "3", Op: OpSend, Entity: "hero", Script: "ghost", Method: "boo"})
	assert.True(t, missing.OK)
	assert.Nil(t, missing.Result)

	noEntity := call(t, conn, Request{ID: "4", Op: OpSend, Entity: "nobody", Script: "counter", Method: "add"})
	assert.False(t, noEntity.OK)
	assert.Contains(t, noEntity.Error, ErrEntityNotFound.Error())

	unknown := call(t, conn, Request{ID: "5", Op: "explode"})
	assert.False(t, unknown.OK)
	assert.Contains(t, unknown.Error, ErrUnknownOp.Error())
}

func TestConsoleEnable(t *testing.T) {
	h, u := startConsole(t)
	conn := dial(t, u)

	off := false
	resp := call(t, conn, Request{ID: "1", Op: OpEnable, Entity: "hero", Enabled: &off})
	require.True(t, resp.OK, resp.Error)

	list := call(t, conn, Request{ID: "2", Op: OpList})
	hero := list.Result.([]any)[0].(map[string]any)
	assert.Equal(t, false, hero["enabled"])
	assert.Equal(t, false, hero["scripts"].([]any)[0].(map[string]any)["enabled"])

	// ticks no longer reach the disabled entity
	before := call(t, conn, Request{ID: "3", Op: OpSend, Entity: "hero", Script: "counter", Method: "count"})
	time.Sleep(50 * time.Millisecond)
	after := call(t, conn, Request{ID: "4", Op: OpSend, Entity: "hero", Script: "counter", Method: "count"})
	assert.Equal(t, before.Result, after.Result)
	assert.Greater(t, h.GetStats().Ticks, uint64(0))

	bad := call(t, conn, Request{ID: "5", Op: OpEnable, Entity: "hero"})
	assert.False(t, bad.OK)
}

func TestConsoleScriptsPushesErrors(t *testing.T) {
	h, u := startConsole(t)
	conn := dial(t, u)

	resp := call(t, conn, Request{ID: "1", Op: OpScripts, Entity: "crate", Scripts: []scripts.Reference{{URL: "missing.js"}}})
	require.True(t, resp.OK, resp.Error)

	for {
		msg := read(t, conn)
		if msg.Type == TypeEvent && msg.Event == "script.error" {
			assert.Contains(t, msg.Error, "missing.js")
			break
		}
	}
	require.Eventually(t, func() bool { return h.GetStats().ScriptErrors == 1 }, time.Second, 5*time.Millisecond)

	reload := call(t, conn, Request{ID: "2", Op: OpScripts, Entity: "crate", Scripts: []scripts.Reference{{URL: "counter.js", Attributes: map[string]any{"ticks": 100}}}})
	require.True(t, reload.OK, reload.Error)

	deadline := time.Now().Add(5 * time.Second)
	for {
		got := call(t, conn, Request{ID: "3", Op: OpSend, Entity: "crate", Script: "counter", Method: "count"})
		if n, ok := got.Result.(float64); ok && n >= 100 {
			break
		}
		require.True(t, time.Now().Before(deadline), "counter never picked up the attribute")
		time.Sleep(20 * time.Millisecond)
	}

	malformed := call(t, conn, Request{ID: "4", Op: OpScripts, Entity: "crate", Scripts: []scripts.Reference{{}}})
	assert.False(t, malformed.OK)
}
