package rpc_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewallet/wcnode/pkg/log"
	"github.com/corewallet/wcnode/pkg/rpc"
)

func TestNewWebsocketNode(t *testing.T) {
	t.Parallel()

	_, err := rpc.NewWebsocketNode(rpc.WebsocketNodeConfig{})
	require.EqualError(t, err, "logger cannot be nil")

	node, err := rpc.NewWebsocketNode(rpc.WebsocketNodeConfig{Logger: log.NewNoopLogger()})
	require.NoError(t, err)
	require.NotNil(t, node)

	assert.Panics(t, func() { node.Handle(rpc.PingMethod, func(*rpc.Context) {}) })
	assert.Panics(t, func() { node.Handle("", func(*rpc.Context) {}) })
	assert.Panics(t, func() { node.Handle("x", nil) })
}

// roleFromQuery authenticates test peers by the "role" query parameter.
func roleFromQuery(r *http.Request) (string, error) {
	role := r.URL.Query().Get("role")
	if role == "" {
		return "", errors.New("missing role")
	}
	return role, nil
}

func dialPeer(t *testing.T, server *httptest.Server, role string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?role=" + role
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func call(t *testing.T, conn *websocket.Conn, msg rpc.Message) rpc.Message {
	t.Helper()

	require.NoError(t, conn.WriteJSON(msg))
	return readMessage(t, conn)
}

func readMessage(t *testing.T, conn *websocket.Conn) rpc.Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var res rpc.Message
	require.NoError(t, conn.ReadJSON(&res))
	return res
}

func TestWebsocketNode_FullFlow(t *testing.T) {
	t.Parallel()

	type echoParams struct {
		Text string `json:"text"`
	}

	var mu sync.Mutex
	connected := map[string]int{}
	disconnected := map[string]int{}
	received := map[string]int{}
	notified := make(chan string, 1)

	node, err := rpc.NewWebsocketNode(rpc.WebsocketNodeConfig{
		Logger:       log.NewNoopLogger(),
		Authenticate: roleFromQuery,
		OnConnectHandler: func(conn rpc.Connection) {
			mu.Lock()
			defer mu.Unlock()
			connected[conn.Role()]++
		},
		OnDisconnectHandler: func(conn rpc.Connection) {
			mu.Lock()
			defer mu.Unlock()
			disconnected[conn.Role()]++
		},
		OnMessageReceivedHandler: func(role, method string) {
			mu.Lock()
			defer mu.Unlock()
			received[role+"/"+method]++
		},
	})
	require.NoError(t, err)

	middlewareCalls := 0
	node.Use(func(c *rpc.Context) {
		mu.Lock()
		middlewareCalls++
		mu.Unlock()
		c.Next()
	})

	ui := node.NewGroup("ui")
	ui.Use(rpc.RequireRole("ui"))
	ui.Handle("ui_echo", func(c *rpc.Context) {
		var params echoParams
		if !c.Bind(&params) {
			return
		}
		c.Succeed(params)
	})
	ui.Handle("ui_fail", func(c *rpc.Context) {
		c.Fail(errors.New("database is on fire"), "could not do it")
	})
	ui.Handle("ui_reject", func(c *rpc.Context) {
		c.Fail(rpc.UserRejected(""), "")
	})

	relay := node.NewGroup("relay")
	relay.Use(rpc.RequireRole("relay"))
	relay.Handle("wc_event", func(c *rpc.Context) {
		var params echoParams
		if c.Bind(&params) {
			notified <- params.Text
		}
	})

	server := httptest.NewServer(node)
	defer server.Close()

	// Peers without a role are refused before the upgrade.
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	uiConn := dialPeer(t, server, "ui")
	relayConn := dialPeer(t, server, "relay")
	require.Eventually(t, func() bool {
		return node.ConnectedPeers("ui") == 1 && node.ConnectedPeers("relay") == 1
	}, time.Second, 10*time.Millisecond)

	t.Run("ping", func(t *testing.T) {
		req, err := rpc.NewRequest(1, rpc.PingMethod, nil)
		require.NoError(t, err)
		res := call(t, uiConn, req)
		assert.Equal(t, uint64(1), res.ID)
		assert.JSONEq(t, `"pong"`, string(res.Result))
	})

	t.Run("echo", func(t *testing.T) {
		req, err := rpc.NewRequest(2, "ui_echo", echoParams{Text: "hi"})
		require.NoError(t, err)
		res := call(t, uiConn, req)
		require.Nil(t, res.Error)
		assert.JSONEq(t, `{"text":"hi"}`, string(res.Result))
	})

	t.Run("invalid params", func(t *testing.T) {
		req, err := rpc.NewRequest(3, "ui_echo", []int{1})
		require.NoError(t, err)
		res := call(t, uiConn, req)
		require.NotNil(t, res.Error)
		assert.Equal(t, rpc.CodeInvalidParams, res.Error.Code)
	})

	t.Run("internal error is hidden", func(t *testing.T) {
		req, err := rpc.NewRequest(4, "ui_fail", nil)
		require.NoError(t, err)
		res := call(t, uiConn, req)
		require.NotNil(t, res.Error)
		assert.Equal(t, rpc.CodeInternal, res.Error.Code)
		assert.Equal(t, "could not do it", res.Error.Message)
	})

	t.Run("rpc error is forwarded", func(t *testing.T) {
		req, err := rpc.NewRequest(5, "ui_reject", nil)
		require.NoError(t, err)
		res := call(t, uiConn, req)
		require.NotNil(t, res.Error)
		assert.Equal(t, rpc.CodeUserRejected, res.Error.Code)
		assert.Equal(t, "User rejected the request", res.Error.Message)
	})

	t.Run("wrong role", func(t *testing.T) {
		req, err := rpc.NewRequest(6, "ui_echo", echoParams{Text: "x"})
		require.NoError(t, err)
		res := call(t, relayConn, req)
		require.NotNil(t, res.Error)
		assert.Equal(t, rpc.CodeUnauthorized, res.Error.Code)
	})

	t.Run("unknown method", func(t *testing.T) {
		req, err := rpc.NewRequest(7, "nope", nil)
		require.NoError(t, err)
		res := call(t, uiConn, req)
		require.NotNil(t, res.Error)
		assert.Equal(t, rpc.CodeMethodNotFound, res.Error.Code)
	})

	t.Run("malformed frame", func(t *testing.T) {
		require.NoError(t, uiConn.WriteMessage(websocket.TextMessage, []byte("{")))
		res := readMessage(t, uiConn)
		require.NotNil(t, res.Error)
		assert.Equal(t, rpc.CodeInvalidRequest, res.Error.Code)
	})

	t.Run("notification gets no response", func(t *testing.T) {
		n, err := rpc.NewNotification("wc_event", echoParams{Text: "proposal"})
		require.NoError(t, err)
		require.NoError(t, relayConn.WriteJSON(n))

		select {
		case text := <-notified:
			assert.Equal(t, "proposal", text)
		case <-time.After(2 * time.Second):
			t.Fatal("notification was not handled")
		}

		// The next response on the connection belongs to the next request.
		req, err := rpc.NewRequest(8, rpc.PingMethod, nil)
		require.NoError(t, err)
		res := call(t, relayConn, req)
		assert.Equal(t, uint64(8), res.ID)
	})

	t.Run("notify by role", func(t *testing.T) {
		require.NoError(t, node.Notify("ui", "ui_toast", map[string]string{"message": "hello"}))

		msg := readMessage(t, uiConn)
		assert.True(t, msg.IsNotification())
		assert.Equal(t, "ui_toast", msg.Method)
		var params map[string]string
		require.NoError(t, json.Unmarshal(msg.Params, &params))
		assert.Equal(t, "hello", params["message"])

		assert.ErrorIs(t, node.Notify("nobody", "ui_toast", nil), rpc.ErrNoPeer)
	})

	uiConn.Close()
	relayConn.Close()
	require.Eventually(t, func() bool {
		return node.ConnectedPeers("ui") == 0 && node.ConnectedPeers("relay") == 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, connected["ui"])
	assert.Equal(t, 1, connected["relay"])
	assert.Equal(t, 1, disconnected["ui"])
	assert.Equal(t, 1, disconnected["relay"])
	assert.Equal(t, 2, received["ui/ui_echo"])
	assert.Equal(t, 1, received["relay/ui_echo"])
	assert.Equal(t, 1, received["relay/wc_event"])
	assert.Equal(t, 8, middlewareCalls)
}
