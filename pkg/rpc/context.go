package rpc

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler processes one inbound message. Middleware calls c.Next to hand over
// to the rest of the chain.
type Handler func(c *Context)

// Context carries an inbound message through its handler chain.
type Context struct {
	// Context is cancelled when the connection closes. It carries a logger
	// tagged with the connection and method, see log.FromContext.
	Context      context.Context
	ConnectionID string
	Role         string
	Message      Message
	// Response is nil until a handler calls Succeed or Fail. Responses to
	// notifications are never written.
	Response *Message

	handlers []Handler
}

func (c *Context) Next() {
	if len(c.handlers) == 0 {
		return
	}

	handler := c.handlers[0]
	c.handlers = c.handlers[1:]
	handler(c)
}

// Succeed sets the result of the request.
func (c *Context) Succeed(result any) {
	res, err := NewResult(c.Message.ID, result)
	if err != nil {
		c.Fail(err, "failed to encode result")
		return
	}
	c.Response = &res
}

// Fail sets the error of the request. An Error is sent as is; any other
// error is replaced by an Internal error with fallbackMessage.
func (c *Context) Fail(err error, fallbackMessage string) {
	res := NewErrorResponse(c.Message.ID, ToError(err, fallbackMessage))
	c.Response = &res
}

// Bind decodes the params of the message into v, failing the request with
// InvalidParams when they do not decode.
func (c *Context) Bind(v any) bool {
	if err := c.Message.Translate(v); err != nil {
		c.Fail(InvalidParams(fmt.Sprintf("invalid params: %v", err)), "")
		return false
	}
	return true
}

func (c *Context) rawResponse() ([]byte, error) {
	if c.Response == nil {
		c.Fail(nil, "internal server error: no response from handler")
	}

	raw, err := json.Marshal(c.Response)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response message: %w", err)
	}
	return raw, nil
}
