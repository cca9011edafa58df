package main

import (
	"encoding/json"

	rpclog "github.com/corewallet/wcnode/pkg/log"
	"github.com/corewallet/wcnode/pkg/rpc"
)

// Notifications pushed by the relay peer.
const (
	RelaySessionProposalMethod = "wc_sessionProposal"
	RelaySessionRequestMethod  = "wc_sessionRequest"
	RelaySessionSettledMethod  = "wc_sessionSettled"
	RelaySessionDeleteMethod   = "wc_sessionDelete"
)

const errMsgUnknownSession = "Session does not exist"

// SessionRequestEnvelope is a dApp request as delivered by the relay.
type SessionRequestEnvelope struct {
	ID      uint64          `json:"id" validate:"required"`
	Topic   string          `json:"topic" validate:"required"`
	Method  string          `json:"method" validate:"required"`
	Params  json.RawMessage `json:"params"`
	ChainID string          `json:"chainId"`
	Session *Session        `json:"session,omitempty"`
}

type sessionSettledParams struct {
	ProposalID uint64  `json:"proposalId"`
	Session    Session `json:"session"`
}

type sessionDeleteParams struct {
	Topic string       `json:"topic" validate:"required"`
	Peer  PeerMetadata `json:"peer"`
}

// RelayRouter turns relay notifications into pipeline requests.
type RelayRouter struct {
	processor *RequestProcessor
	sessions  *SessionStore
	listener  *WalletListener
}

func NewRelayRouter(node rpc.Node, processor *RequestProcessor, sessions *SessionStore, listener *WalletListener) *RelayRouter {
	r := &RelayRouter{processor: processor, sessions: sessions, listener: listener}

	group := node.NewGroup(PeerRoleRelay)
	group.Use(rpc.RequireRole(PeerRoleRelay))
	group.Handle(RelaySessionProposalMethod, r.HandleSessionProposal)
	group.Handle(RelaySessionRequestMethod, r.HandleSessionRequest)
	group.Handle(RelaySessionSettledMethod, r.HandleSessionSettled)
	group.Handle(RelaySessionDeleteMethod, r.HandleSessionDelete)
	return r
}

func (r *RelayRouter) HandleSessionProposal(c *rpc.Context) {
	var proposal SessionProposal
	if !c.Bind(&proposal) {
		return
	}
	if proposal.ID == 0 {
		c.Fail(rpc.InvalidParams("proposal id is required"), "")
		return
	}

	if err := r.processor.Submit(c.Context, NewSessionProposalRequest(proposal)); err != nil {
		c.Fail(err, "failed to queue session proposal")
		return
	}
	c.Succeed(nil)
}

func (r *RelayRouter) HandleSessionRequest(c *rpc.Context) {
	logger := rpclog.FromContext(c.Context)

	var envelope SessionRequestEnvelope
	if !c.Bind(&envelope) {
		return
	}
	if err := getValidator().Struct(envelope); err != nil {
		c.Fail(rpc.InvalidParams("invalid session request: "+err.Error()), "")
		return
	}

	session := envelope.Session
	if session == nil {
		record, ok, err := r.sessions.Get(envelope.Topic)
		if err != nil {
			logger.Error("failed to load session", "topic", envelope.Topic, "error", err)
			c.Fail(err, "failed to load session")
			return
		}
		if !ok {
			c.Fail(rpc.Unauthorized(errMsgUnknownSession), "")
			return
		}
		if session, err = record.Session(); err != nil {
			c.Fail(err, "failed to load session")
			return
		}
	}

	req := Request{
		ID:      envelope.ID,
		Method:  envelope.Method,
		Params:  envelope.Params,
		ChainID: envelope.ChainID,
		Topic:   envelope.Topic,
		Session: session,
	}
	if err := r.processor.Submit(c.Context, req); err != nil {
		c.Fail(err, "failed to queue session request")
		return
	}
	c.Succeed(nil)
}

func (r *RelayRouter) HandleSessionSettled(c *rpc.Context) {
	var params sessionSettledParams
	if !c.Bind(&params) {
		return
	}
	if params.Session.Topic == "" {
		c.Fail(rpc.InvalidParams("session topic is required"), "")
		return
	}
	if err := r.listener.SessionSettled(c.Context, params.ProposalID, params.Session); err != nil {
		c.Fail(err, "failed to record session")
		return
	}
	c.Succeed(nil)
}

func (r *RelayRouter) HandleSessionDelete(c *rpc.Context) {
	var params sessionDeleteParams
	if !c.Bind(&params) {
		return
	}
	if params.Topic == "" {
		c.Fail(rpc.InvalidParams("session topic is required"), "")
		return
	}
	r.listener.OnDisconnect(c.Context, params.Topic, params.Peer)
	c.Succeed(nil)
}
