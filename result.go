package main

import (
	"encoding/json"
	"fmt"

	"github.com/corewallet/wcnode/pkg/rpc"
)

// ResultKind distinguishes the outcomes of a handler.
type ResultKind uint8

const (
	// ResultSuccess is terminal and may carry a value.
	ResultSuccess ResultKind = iota + 1
	// ResultDeferred means the handler prompted the user and the request waits
	// for an approval event.
	ResultDeferred
	// ResultFailure is terminal and carries an rpc error.
	ResultFailure
)

func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultDeferred:
		return "deferred"
	case ResultFailure:
		return "failure"
	default:
		return fmt.Sprintf("ResultKind(%d)", k)
	}
}

// Result is the outcome of handling or approving a request.
type Result struct {
	Kind  ResultKind
	Value any
	Err   rpc.Error
}

func Success(value any) Result {
	return Result{Kind: ResultSuccess, Value: value}
}

func Deferred() Result {
	return Result{Kind: ResultDeferred}
}

func Failure(err rpc.Error) Result {
	return Result{Kind: ResultFailure, Err: err}
}

func (r Result) IsTerminal() bool {
	return r.Kind == ResultSuccess || r.Kind == ResultFailure
}

// MarshalValue encodes the success value as the raw JSON sent to the dApp.
// A nil value encodes as null.
func (r Result) MarshalValue() (json.RawMessage, error) {
	if r.Value == nil {
		return json.RawMessage("null"), nil
	}
	if raw, ok := r.Value.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(r.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return b, nil
}
