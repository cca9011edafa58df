package rpc

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/corewallet/wcnode/pkg/log"
)

// Defaults for the zero values of WebsocketConnectionConfig. The UI and the
// relay bridge each keep a single long-lived link, so small queues are enough.
var (
	// defaultWsConnWriteTimeout bounds how long WriteRawMessage waits for room
	// in the write queue.
	defaultWsConnWriteTimeout = 5 * time.Second
	// defaultWsConnProcessBufferSize is the number of inbound frames held
	// before the read pump blocks.
	defaultWsConnProcessBufferSize = 16
	// defaultWsConnWriteBufferSize is the number of outbound frames held.
	defaultWsConnWriteBufferSize = 16
)

// Connection is one authenticated peer link. The role is fixed when the peer
// authenticates during the upgrade and never changes afterwards.
type Connection interface {
	// ConnectionID is assigned by the node when the link is accepted.
	ConnectionID() string
	// Role names the peer kind, such as the wallet UI or the relay bridge.
	Role() string
	// RawMessages yields inbound frames; it is closed when the peer goes away.
	RawMessages() <-chan []byte
	// WriteRawMessage queues a frame for the peer. It returns false when the
	// write queue stays full for the write timeout, which also closes the
	// connection.
	WriteRawMessage(message []byte) bool
	// Serve starts the read and write pumps and returns immediately.
	// handleClosure runs once, after both pumps have stopped.
	Serve(parentCtx context.Context, handleClosure func(error))
}

// GorillaWsConnectionAdapter is the subset of *websocket.Conn used by WebsocketConnection.
// Tests replace it with an in-memory pipe.
type GorillaWsConnectionAdapter interface {
	// ReadMessage blocks for the next complete frame.
	ReadMessage() (messageType int, p []byte, err error)
	// NextWriter opens a writer for one outbound frame.
	NextWriter(messageType int) (io.WriteCloser, error)
	Close() error
}

// WebsocketConnection implements Connection on top of a gorilla websocket.
// A read pump feeds RawMessages and a write pump drains the write queue, so
// callers never touch the socket directly.
type WebsocketConnection struct {
	// ctx is set by the first Serve call and marks the connection as started.
	ctx           context.Context
	connectionID  string
	role          string
	websocketConn GorillaWsConnectionAdapter
	writeTimeout  time.Duration

	logger log.Logger
	// onMessageSentHandler runs after each frame is flushed; the node uses it
	// for the sent-message metric.
	onMessageSentHandler func([]byte)
	writeSink            chan []byte
	processSink          chan []byte
	// closeConnCh asks waitForConnClose to tear the connection down.
	closeConnCh chan struct{}

	// mu guards ctx.
	mu sync.Mutex
}

// WebsocketConnectionConfig configures NewWebsocketConnection. ConnectionID
// and WebsocketConn are required; zero values elsewhere take the defaults.
type WebsocketConnectionConfig struct {
	ConnectionID  string
	Role          string
	WebsocketConn GorillaWsConnectionAdapter

	WriteTimeout      time.Duration
	WriteBufferSize   int
	ProcessBufferSize int
	// Logger defaults to a no-op logger.
	Logger               log.Logger
	OnMessageSentHandler func([]byte)
}

// NewWebsocketConnection validates config and allocates the queues. Nothing is
// read or written until Serve is called.
func NewWebsocketConnection(config WebsocketConnectionConfig) (*WebsocketConnection, error) {
	if config.ConnectionID == "" {
		return nil, fmt.Errorf("connection ID cannot be empty")
	}
	if config.WebsocketConn == nil {
		return nil, fmt.Errorf("websocket connection cannot be nil")
	}
	if config.Logger == nil {
		config.Logger = log.NewNoopLogger()
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaultWsConnWriteTimeout
	}
	if config.WriteBufferSize <= 0 {
		config.WriteBufferSize = defaultWsConnWriteBufferSize
	}
	if config.ProcessBufferSize <= 0 {
		config.ProcessBufferSize = defaultWsConnProcessBufferSize
	}
	if config.OnMessageSentHandler == nil {
		config.OnMessageSentHandler = func([]byte) {}
	}

	return &WebsocketConnection{
		connectionID:  config.ConnectionID,
		role:          config.Role,
		websocketConn: config.WebsocketConn,
		writeTimeout:  config.WriteTimeout,

		logger:               config.Logger.WithKV("connectionID", config.ConnectionID).WithKV("role", config.Role),
		onMessageSentHandler: config.OnMessageSentHandler,
		writeSink:            make(chan []byte, config.WriteBufferSize),
		processSink:          make(chan []byte, config.ProcessBufferSize),
		closeConnCh:          make(chan struct{}, 1),
	}, nil
}

// Serve is idempotent: a second call reports closure immediately without
// starting another set of pumps.
func (conn *WebsocketConnection) Serve(parentCtx context.Context, handleClosure func(error)) {
	conn.mu.Lock()
	if conn.ctx != nil {
		conn.mu.Unlock()
		handleClosure(nil)
		return
	}
	conn.ctx = parentCtx
	conn.mu.Unlock()

	childCtx, cancel := context.WithCancel(parentCtx)
	wg := &sync.WaitGroup{}
	wg.Add(3)

	var closureErr error
	var closureErrMu sync.Mutex
	childHandleClosure := func(err error) {
		closureErrMu.Lock()
		defer closureErrMu.Unlock()

		if err != nil && closureErr == nil {
			closureErr = err
		}

		cancel()
		wg.Done()
	}

	go conn.readMessages(childHandleClosure)
	go conn.writeMessages(childCtx, childHandleClosure)
	go conn.waitForConnClose(childCtx, childHandleClosure)

	go func() {
		wg.Wait()

		closureErrMu.Lock()
		defer closureErrMu.Unlock()
		handleClosure(closureErr)

		if err := conn.websocketConn.Close(); err != nil {
			conn.logger.Error("error closing websocket connection", "error", err)
		}
	}()
}

// ConnectionID implements Connection.
func (conn *WebsocketConnection) ConnectionID() string {
	return conn.connectionID
}

func (conn *WebsocketConnection) Role() string {
	return conn.role
}

// RawMessages implements Connection.
func (conn *WebsocketConnection) RawMessages() <-chan []byte {
	return conn.processSink
}

// WriteRawMessage implements Connection. A timed-out write signals the close
// pump without blocking when a close is already pending.
func (conn *WebsocketConnection) WriteRawMessage(message []byte) bool {
	timer := time.NewTimer(conn.writeTimeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		select {
		case conn.closeConnCh <- struct{}{}:
		default:
		}
		return false
	case conn.writeSink <- message:
		return true
	}
}

// readMessages forwards non-empty frames until the socket errors. Normal and
// going-away closes end the connection without an error.
func (conn *WebsocketConnection) readMessages(handleClosure func(error)) {
	defer close(conn.processSink)

	for {
		_, messageBytes, err := conn.websocketConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				conn.logger.Error("websocket connection closed with unexpected reason", "error", err)
				handleClosure(err)
			} else {
				handleClosure(nil)
			}
			return
		}

		if len(messageBytes) == 0 {
			conn.logger.Debug("received empty message, skipping")
			continue
		}
		conn.processSink <- messageBytes
	}
}

// writeMessages flushes queued frames one writer at a time. A failed frame is
// logged and dropped; the pump keeps going.
func (conn *WebsocketConnection) writeMessages(ctx context.Context, handleClosure func(error)) {
	defer handleClosure(nil)

	for {
		select {
		case <-ctx.Done():
			conn.logger.Debug("context done, stopping message writing")
			return
		case messageBytes := <-conn.writeSink:
			if len(messageBytes) == 0 {
				continue
			}

			w, err := conn.websocketConn.NextWriter(websocket.TextMessage)
			if err != nil {
				conn.logger.Error("error getting writer for message", "error", err)
				continue
			}

			if _, err := w.Write(messageBytes); err != nil {
				conn.logger.Error("error writing message", "error", err)
				w.Close()
				continue
			}

			if err := w.Close(); err != nil {
				conn.logger.Error("error closing writer for message", "error", err)
				continue
			}

			conn.onMessageSentHandler(messageBytes)
		}
	}
}

func (conn *WebsocketConnection) waitForConnClose(ctx context.Context, handleClosure func(error)) {
	defer handleClosure(nil)

	select {
	case <-ctx.Done():
		conn.logger.Debug("context done, stopping connection close wait")
	case <-conn.closeConnCh:
		conn.logger.Info("peer is unresponsive, closing connection")
	}
}
