package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"

	"github.com/corewallet/wcnode/pkg/log"
)

const (
	defaultNodeErrorMessage = "an error occurred while processing the request"

	nodeGroupHandlerPrefix = "group."
	nodeGroupRoot          = "root"

	// PingMethod is answered by every node with the result "pong".
	PingMethod = "ping"
)

// Node routes the messages of authenticated peers to handlers and pushes
// notifications to peers by role.
type Node interface {
	Handle(method string, handler Handler)
	// Notify sends a notification to every connection with role.
	Notify(role, method string, params any) error
	Use(middleware Handler)
	NewGroup(name string) HandlerGroup
	// ConnectedPeers returns the number of live connections with role.
	ConnectedPeers(role string) int
}

type HandlerGroup interface {
	Handle(method string, handler Handler)
	Use(middleware Handler)
	NewGroup(name string) HandlerGroup
}

// AuthenticateFunc resolves the role of a peer from its upgrade request.
// A non-nil error refuses the upgrade with 401.
type AuthenticateFunc func(r *http.Request) (role string, err error)

var (
	_ Node         = &WebsocketNode{}
	_ http.Handler = &WebsocketNode{}

	_ HandlerGroup = &WebsocketHandlerGroup{}
)

// WebsocketNode is a Node serving JSON-RPC 2.0 over websockets. Messages of
// one connection are handled in arrival order; handlers that need to wait
// on something must hand the work off and return.
type WebsocketNode struct {
	upgrader     websocket.Upgrader
	cfg          WebsocketNodeConfig
	groupId      string
	handlerChain map[string][]Handler
	routes       map[string][]string
	connHub      *ConnectionHub
	mu           sync.RWMutex
}

type WebsocketNodeConfig struct {
	Logger log.Logger
	// Authenticate defaults to accepting every peer with an empty role.
	Authenticate AuthenticateFunc
	// Tracer names the otel tracer of per-message spans. Empty disables spans.
	Tracer string

	OnConnectHandler         func(conn Connection)
	OnDisconnectHandler      func(conn Connection)
	OnMessageSentHandler     func(role string, message []byte)
	OnMessageReceivedHandler func(role, method string)

	WsUpgraderReadBufferSize  int
	WsUpgraderWriteBufferSize int
	WsUpgraderCheckOrigin     func(r *http.Request) bool

	WsConnWriteTimeout      time.Duration
	WsConnWriteBufferSize   int
	WsConnProcessBufferSize int
}

func NewWebsocketNode(config WebsocketNodeConfig) (*WebsocketNode, error) {
	if config.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	config.Logger = config.Logger.WithName("rpc-node")

	if config.Authenticate == nil {
		config.Authenticate = func(*http.Request) (string, error) { return "", nil }
	}
	if config.OnConnectHandler == nil {
		config.OnConnectHandler = func(Connection) {}
	}
	if config.OnDisconnectHandler == nil {
		config.OnDisconnectHandler = func(Connection) {}
	}
	if config.OnMessageSentHandler == nil {
		config.OnMessageSentHandler = func(string, []byte) {}
	}
	if config.OnMessageReceivedHandler == nil {
		config.OnMessageReceivedHandler = func(string, string) {}
	}
	if config.WsUpgraderReadBufferSize <= 0 {
		config.WsUpgraderReadBufferSize = 1024
	}
	if config.WsUpgraderWriteBufferSize <= 0 {
		config.WsUpgraderWriteBufferSize = 1024
	}
	if config.WsUpgraderCheckOrigin == nil {
		// Peers are local processes holding a token, not browsers.
		config.WsUpgraderCheckOrigin = func(r *http.Request) bool { return true }
	}

	node := &WebsocketNode{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.WsUpgraderReadBufferSize,
			WriteBufferSize: config.WsUpgraderWriteBufferSize,
			CheckOrigin:     config.WsUpgraderCheckOrigin,
		},
		cfg:          config,
		groupId:      nodeGroupHandlerPrefix + nodeGroupRoot,
		handlerChain: make(map[string][]Handler),
		routes:       make(map[string][]string),
		connHub:      NewConnectionHub(),
	}

	node.Handle(PingMethod, node.handlePing)

	return node, nil
}

// ServeHTTP authenticates the peer, upgrades the request and blocks until
// the connection closes.
func (wn *WebsocketNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	role, err := wn.cfg.Authenticate(r)
	if err != nil {
		wn.cfg.Logger.Warn("peer authentication failed", "error", err, "path", r.URL.Path, "remoteAddr", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	wsConnection, err := wn.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wn.cfg.Logger.Error("failed to upgrade connection to websocket", "error", err)
		return
	}
	defer wsConnection.Close()

	connectionID := uuid.NewString()
	connection, err := NewWebsocketConnection(WebsocketConnectionConfig{
		ConnectionID:      connectionID,
		Role:              role,
		WebsocketConn:     wsConnection,
		WriteTimeout:      wn.cfg.WsConnWriteTimeout,
		WriteBufferSize:   wn.cfg.WsConnWriteBufferSize,
		ProcessBufferSize: wn.cfg.WsConnProcessBufferSize,
		Logger:            wn.cfg.Logger,
		OnMessageSentHandler: func(message []byte) {
			wn.cfg.OnMessageSentHandler(role, message)
		},
	})
	if err != nil {
		wn.cfg.Logger.Error("failed to create websocket connection", "error", err, "connectionID", connectionID)
		return
	}
	if err := wn.connHub.Add(connection); err != nil {
		wn.cfg.Logger.Error("failed to add connection to hub", "error", err, "connectionID", connectionID)
		return
	}

	wn.cfg.OnConnectHandler(connection)
	wn.cfg.Logger.Info("peer connected", "connectionID", connectionID, "role", role)

	defer func() {
		wn.cfg.OnDisconnectHandler(connection)
		wn.connHub.Remove(connectionID)
		wn.cfg.Logger.Info("peer disconnected", "connectionID", connectionID, "role", role)
	}()

	parentCtx, cancel := context.WithCancel(r.Context())
	wg := &sync.WaitGroup{}
	wg.Add(2)
	childHandleClosure := func(_ error) {
		cancel()
		wg.Done()
	}

	go connection.Serve(parentCtx, childHandleClosure)
	go wn.processMessages(connection, parentCtx, childHandleClosure)

	wg.Wait()
}

func (wn *WebsocketNode) processMessages(conn Connection, parentCtx context.Context, handleClosure func(error)) {
	defer handleClosure(nil)

	for {
		var messageBytes []byte
		select {
		case <-parentCtx.Done():
			wn.cfg.Logger.Debug("context done, stopping message processing")
			return
		case messageBytes = <-conn.RawMessages():
			if len(messageBytes) == 0 {
				return
			}
		}

		var msg Message
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			wn.cfg.Logger.Debug("invalid message format", "error", err, "message", string(messageBytes))
			wn.writeMessage(conn, NewErrorResponse(0, InvalidRequest("invalid message format")))
			continue
		}
		if msg.IsResponse() {
			wn.cfg.Logger.Debug("ignoring response from peer", "id", msg.ID, "role", conn.Role())
			continue
		}
		if err := msg.Validate(); err != nil {
			wn.writeMessage(conn, NewErrorResponse(msg.ID, InvalidRequest(err.Error())))
			continue
		}

		wn.cfg.OnMessageReceivedHandler(conn.Role(), msg.Method)

		routeHandlers := wn.routeHandlers(msg.Method)
		if len(routeHandlers) == 0 {
			wn.cfg.Logger.Debug("no handlers' route found for method", "method", msg.Method)
			if !msg.IsNotification() {
				wn.writeMessage(conn, NewErrorResponse(msg.ID, Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", msg.Method)}))
			}
			continue
		}

		wn.dispatch(parentCtx, conn, msg, routeHandlers)
	}
}

func (wn *WebsocketNode) dispatch(parentCtx context.Context, conn Connection, msg Message, handlers []Handler) {
	lg := wn.cfg.Logger.
		WithKV("connectionID", conn.ConnectionID()).
		WithKV("role", conn.Role()).
		WithKV("method", msg.Method)

	msgCtx := log.SetContextLogger(parentCtx, lg)
	if wn.cfg.Tracer != "" {
		var span trace.Span
		msgCtx, span = log.StartSpan(parentCtx, wn.cfg.Tracer, msg.Method, lg, "role", conn.Role(), "id", msg.ID)
		defer span.End()
	}

	lg.Debug("processing message", "id", msg.ID)

	ctx := &Context{
		Context:      msgCtx,
		ConnectionID: conn.ConnectionID(),
		Role:         conn.Role(),
		Message:      msg,
		handlers:     handlers,
	}
	ctx.Next()

	if msg.IsNotification() {
		return
	}

	responseBytes, err := ctx.rawResponse()
	if err != nil {
		lg.Error("failed to prepare response", "error", err)
		wn.writeMessage(conn, NewErrorResponse(msg.ID, Internal(defaultNodeErrorMessage)))
		return
	}
	conn.WriteRawMessage(responseBytes)
}

func (wn *WebsocketNode) routeHandlers(method string) []Handler {
	wn.mu.RLock()
	defer wn.mu.RUnlock()

	methodRoute, ok := wn.routes[method]
	if !ok || len(methodRoute) == 0 {
		return nil
	}

	var routeHandlers []Handler
	for _, handlersId := range methodRoute {
		handlers, exists := wn.handlerChain[handlersId]
		if !exists {
			// Groups without middleware have no chain of their own.
			if handlersId != method {
				continue
			}
			return nil
		}
		routeHandlers = append(routeHandlers, handlers...)
	}
	return routeHandlers
}

// NewGroup creates a handler group. Middleware registered on the group runs
// after the node's middleware and before the group's handlers.
//
//	relay := node.NewGroup("relay")
//	relay.Use(rpc.RequireRole("relay"))
//	relay.Handle("wc_sessionRequest", onSessionRequest)
func (wn *WebsocketNode) NewGroup(name string) HandlerGroup {
	return &WebsocketHandlerGroup{
		groupId:     nodeGroupHandlerPrefix + name,
		routePrefix: []string{wn.groupId},
		root:        wn,
	}
}

// Handle registers handler for method. Registering a method twice panics.
func (wn *WebsocketNode) Handle(method string, handler Handler) {
	wn.handle([]string{wn.groupId, method}, method, handler)
}

func (wn *WebsocketNode) handle(route []string, method string, handler Handler) {
	if method == "" {
		panic("websocket method cannot be empty")
	}
	if handler == nil {
		panic(fmt.Sprintf("websocket handler cannot be nil for method %s", method))
	}

	wn.mu.Lock()
	defer wn.mu.Unlock()

	if _, exists := wn.routes[method]; exists {
		panic(fmt.Sprintf("websocket handler already registered for method %s", method))
	}
	wn.handlerChain[method] = []Handler{handler}
	wn.routes[method] = route
}

// Use adds middleware running before every handler of the node.
func (wn *WebsocketNode) Use(middleware Handler) {
	wn.use(wn.groupId, middleware)
}

func (wn *WebsocketNode) use(groupId string, middleware Handler) {
	if middleware == nil {
		panic("websocket middleware handler cannot be nil for group")
	}

	wn.mu.Lock()
	defer wn.mu.Unlock()
	wn.handlerChain[groupId] = append(wn.handlerChain[groupId], middleware)
}

func (wn *WebsocketNode) Notify(role, method string, params any) error {
	msg, err := NewNotification(method, params)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if wn.connHub.Publish(role, raw) == 0 {
		return ErrNoPeer
	}
	return nil
}

func (wn *WebsocketNode) ConnectedPeers(role string) int {
	return wn.connHub.Count(role)
}

func (wn *WebsocketNode) writeMessage(conn Connection, msg Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		wn.cfg.Logger.Error("failed to marshal message", "error", err)
		return
	}
	conn.WriteRawMessage(raw)
}

func (wn *WebsocketNode) handlePing(ctx *Context) {
	ctx.Next()
	ctx.Succeed("pong")
}

// RequireRole is middleware refusing messages from connections of any other role.
func RequireRole(role string) Handler {
	return func(c *Context) {
		if c.Role != role {
			c.Fail(Unauthorized(fmt.Sprintf("method %s is not available to %q peers", c.Message.Method, c.Role)), "")
			return
		}
		c.Next()
	}
}

// WebsocketHandlerGroup is a named set of handlers sharing middleware.
type WebsocketHandlerGroup struct {
	groupId     string
	routePrefix []string
	root        *WebsocketNode
}

func (hg *WebsocketHandlerGroup) NewGroup(name string) HandlerGroup {
	prefix := make([]string, 0, len(hg.routePrefix)+1)
	prefix = append(prefix, hg.routePrefix...)
	return &WebsocketHandlerGroup{
		groupId:     fmt.Sprintf("%s.%s", hg.groupId, name),
		routePrefix: append(prefix, hg.groupId),
		root:        hg.root,
	}
}

func (hg *WebsocketHandlerGroup) Handle(method string, handler Handler) {
	route := make([]string, 0, len(hg.routePrefix)+2)
	route = append(route, hg.routePrefix...)
	route = append(route, hg.groupId, method)
	hg.root.handle(route, method, handler)
}

func (hg *WebsocketHandlerGroup) Use(middleware Handler) {
	hg.root.use(hg.groupId, middleware)
}
