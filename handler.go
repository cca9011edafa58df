package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/corewallet/wcnode/pkg/rpc"
)

const defaultNodeErrorMessage = "an error occurred while processing the request"

// Handler serves one or more RPC methods. Handlers are constructed once at
// startup and never mutated.
type Handler interface {
	Methods() []string
	Handle(ctx context.Context, req Request) Result
}

// Approver is implemented by handlers whose Handle may return Deferred. It runs
// once the user approved the prompt, with the method specific approval data.
type Approver interface {
	Approve(ctx context.Context, req Request, data json.RawMessage) Result
}

// HandlerRegistry maps method names to handlers. It is read-only after construction.
type HandlerRegistry struct {
	handlers map[string]Handler
}

// NewHandlerRegistry flattens the method sets of handlers into a lookup table.
// A method served by two handlers is a configuration error.
func NewHandlerRegistry(handlers ...Handler) (*HandlerRegistry, error) {
	r := &HandlerRegistry{handlers: make(map[string]Handler)}
	for i, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("handler %d is nil", i)
		}
		methods := h.Methods()
		if len(methods) == 0 {
			return nil, fmt.Errorf("handler %T declares no methods", h)
		}
		for _, method := range methods {
			if method == "" {
				return nil, fmt.Errorf("handler %T declares an empty method name", h)
			}
			if existing, ok := r.handlers[method]; ok {
				return nil, fmt.Errorf("method %s is served by both %T and %T", method, existing, h)
			}
			r.handlers[method] = h
		}
	}
	return r, nil
}

func (r *HandlerRegistry) Lookup(method string) (Handler, bool) {
	h, ok := r.handlers[method]
	return h, ok
}

// Methods lists the registered method names in lexical order.
func (r *HandlerRegistry) Methods() []string {
	methods := make([]string, 0, len(r.handlers))
	for m := range r.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

const (
	errMsgInvalidApproveData = "Invalid approve data"
	errMsgAccountNotFound    = "Account does not exist"
	errMsgPromptFailed       = "Unable to display the approval prompt"
)

// deferWithPrompt shows the approval prompt of req and defers the request.
func deferWithPrompt(ctx context.Context, prompter Prompter, req Request, kind PromptKind, data any) Result {
	// The user may answer as soon as the prompt is out.
	armApproval(ctx)
	if err := prompter.ShowPrompt(ctx, NewPrompt(req, kind, data)); err != nil {
		LoggerFromContext(ctx).Error("failed to show approval prompt", "kind", kind, "error", err)
		return Failure(rpc.Internal(errMsgPromptFailed))
	}
	return Deferred()
}

// networkOfRequest resolves the network named by the request chain id.
func networkOfRequest(ctx context.Context, networks NetworkLookup, req Request) (Network, *rpc.Error) {
	chainID, err := ParseChainID(req.ChainID)
	if err != nil {
		rpcErr := rpc.ResourceNotFound(errMsgNetworkNotFound)
		return Network{}, &rpcErr
	}
	network, ok, err := networks.Get(chainID)
	if err != nil {
		LoggerFromContext(ctx).Error("failed to look up network", "chainID", chainID, "error", err)
	}
	if err != nil || !ok {
		rpcErr := rpc.ResourceNotFound(errMsgNetworkNotFound)
		return Network{}, &rpcErr
	}
	return network, nil
}
