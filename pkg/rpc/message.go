package rpc

import (
	"encoding/json"
	"fmt"
)

// Version is the only JSON-RPC version spoken on the peer channel.
const Version = "2.0"

// Message is a JSON-RPC 2.0 envelope. A single type covers the three shapes
// exchanged with peers:
//
//	request:       {"jsonrpc":"2.0","id":7,"method":"ui_approveRequest","params":{...}}
//	notification:  {"jsonrpc":"2.0","method":"ui_showPrompt","params":{...}}
//	response:      {"jsonrpc":"2.0","id":7,"result":...} or {"jsonrpc":"2.0","id":7,"error":{...}}
//
// Notifications have ID 0 and expect no response.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewRequest builds a request envelope; params are JSON-encoded.
func NewRequest(id uint64, method string, params any) (Message, error) {
	raw, err := encodeParams(params)
	if err != nil {
		return Message{}, err
	}
	return Message{JSONRPC: Version, ID: id, Method: method, Params: raw}, nil
}

// NewNotification builds a notification envelope; params are JSON-encoded.
func NewNotification(method string, params any) (Message, error) {
	return NewRequest(0, method, params)
}

// NewResult builds the success response to request id. A nil result is sent
// as JSON null.
func NewResult(id uint64, result any) (Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode result: %w", err)
	}
	return Message{JSONRPC: Version, ID: id, Result: raw}, nil
}

// NewErrorResponse builds the error response to request id.
func NewErrorResponse(id uint64, rpcErr Error) Message {
	return Message{JSONRPC: Version, ID: id, Error: &rpcErr}
}

func (m Message) IsNotification() bool {
	return m.Method != "" && m.ID == 0
}

func (m Message) IsResponse() bool {
	return m.Method == "" && (m.Result != nil || m.Error != nil)
}

// Validate checks the envelope shape of an inbound message.
func (m Message) Validate() error {
	if m.JSONRPC != Version {
		return fmt.Errorf("unsupported jsonrpc version %q", m.JSONRPC)
	}
	if m.Method == "" && !m.IsResponse() {
		return fmt.Errorf("message has neither method nor result")
	}
	return nil
}

// Translate decodes the params into v.
func (m Message) Translate(v any) error {
	if len(m.Params) == 0 {
		return fmt.Errorf("params are empty")
	}
	return json.Unmarshal(m.Params, v)
}

func encodeParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}
	return raw, nil
}
