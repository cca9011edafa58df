package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/corewallet/wcnode/pkg/rpc"
)

const (
	MethodGetContacts   = "avalanche_getContacts"
	MethodCreateContact = "avalanche_createContact"
	MethodUpdateContact = "avalanche_updateContact"
	MethodRemoveContact = "avalanche_removeContact"

	errMsgInvalidContact  = "Contact is invalid"
	errMsgContactNotFound = "Contact does not exist"
)

type contactPrompt struct {
	Contact Contact `json:"contact"`
}

// ContactHandler serves the address book methods.
type ContactHandler struct {
	contacts *ContactStore
	prompter Prompter
}

func NewContactHandler(contacts *ContactStore, prompter Prompter) *ContactHandler {
	return &ContactHandler{contacts: contacts, prompter: prompter}
}

func (h *ContactHandler) Methods() []string {
	return []string{MethodGetContacts, MethodCreateContact, MethodUpdateContact, MethodRemoveContact}
}

func (h *ContactHandler) Handle(ctx context.Context, req Request) Result {
	switch req.Method {
	case MethodGetContacts:
		contacts, err := h.contacts.List()
		if err != nil {
			LoggerFromContext(ctx).Error("failed to list contacts", "error", err)
			return Failure(rpc.Internal(defaultNodeErrorMessage))
		}
		if contacts == nil {
			contacts = []Contact{}
		}
		return Success(contacts)

	case MethodCreateContact, MethodUpdateContact:
		params, err := parseFirstParam[ContactParams](req.Params)
		if err != nil {
			return Failure(rpc.InvalidParams(errMsgInvalidContact))
		}
		kind := PromptCreateContact
		if req.Method == MethodUpdateContact {
			kind = PromptUpdateContact
			if params.ID == "" {
				return Failure(rpc.InvalidParams(errMsgInvalidContact))
			}
			if rpcErr := h.ensureExists(ctx, params.ID); rpcErr != nil {
				return Failure(*rpcErr)
			}
		}
		return deferWithPrompt(ctx, h.prompter, req, kind, contactPrompt{Contact: params.contact()})

	case MethodRemoveContact:
		params, err := parseFirstParam[RemoveContactParams](req.Params)
		if err != nil {
			return Failure(rpc.InvalidParams(errMsgInvalidContact))
		}
		contact, err := h.contacts.Get(params.ID)
		if rpcErr := contactLookupError(ctx, err); rpcErr != nil {
			return Failure(*rpcErr)
		}
		return deferWithPrompt(ctx, h.prompter, req, PromptRemoveContact, contactPrompt{Contact: contact})
	}
	return Failure(rpc.MethodNotSupported(req.Method))
}

func (h *ContactHandler) Approve(ctx context.Context, req Request, _ json.RawMessage) Result {
	var err error
	switch req.Method {
	case MethodCreateContact:
		var params ContactParams
		if params, err = parseFirstParam[ContactParams](req.Params); err == nil {
			_, err = h.contacts.Create(params.contact())
		}
	case MethodUpdateContact:
		var params ContactParams
		if params, err = parseFirstParam[ContactParams](req.Params); err == nil {
			err = h.contacts.Update(params.contact())
		}
	case MethodRemoveContact:
		var params RemoveContactParams
		if params, err = parseFirstParam[RemoveContactParams](req.Params); err == nil {
			err = h.contacts.Remove(params.ID)
		}
	default:
		return Failure(rpc.MethodNotSupported(req.Method))
	}

	if rpcErr := contactLookupError(ctx, err); rpcErr != nil {
		return Failure(*rpcErr)
	}
	return Success(nil)
}

func (h *ContactHandler) ensureExists(ctx context.Context, id string) *rpc.Error {
	_, err := h.contacts.Get(id)
	return contactLookupError(ctx, err)
}

func contactLookupError(ctx context.Context, err error) *rpc.Error {
	if err == nil {
		return nil
	}
	var rpcErr rpc.Error
	if errors.Is(err, ErrContactNotFound) {
		rpcErr = rpc.ResourceNotFound(errMsgContactNotFound)
	} else {
		LoggerFromContext(ctx).Error("contact store failure", "error", err)
		rpcErr = rpc.Internal(defaultNodeErrorMessage)
	}
	return &rpcErr
}

func (p ContactParams) contact() Contact {
	return Contact{ID: p.ID, Name: p.Name, Address: p.Address}
}
