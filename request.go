package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MethodSessionProposal is the internal method name under which session
// proposals travel through the pipeline.
const MethodSessionProposal = "session_proposal"

// NamespaceEIP155 is the only namespace the wallet grants.
const NamespaceEIP155 = "eip155"

// PeerMetadata describes a dApp as announced over the relay.
type PeerMetadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons,omitempty"`
}

// Namespace is a set of chains, methods and events requested by or granted to a dApp.
// Accounts are only present on granted namespaces.
type Namespace struct {
	Chains   []string `json:"chains,omitempty"`
	Methods  []string `json:"methods"`
	Events   []string `json:"events"`
	Accounts []string `json:"accounts,omitempty"`
}

type Namespaces map[string]Namespace

// Session is a WalletConnect session established with a dApp.
type Session struct {
	Topic      string       `json:"topic"`
	Peer       PeerMetadata `json:"peer"`
	Namespaces Namespaces   `json:"namespaces"`
}

// HasAccount reports whether the account "eip155:<chainID>:<address>" was
// granted to the session. Addresses are compared case-insensitively.
func (s *Session) HasAccount(chainID, address string) bool {
	if s == nil {
		return false
	}
	want := strings.ToLower(chainID + ":" + address)
	for _, ns := range s.Namespaces {
		for _, account := range ns.Accounts {
			if strings.ToLower(account) == want {
				return true
			}
		}
	}
	return false
}

// SessionProposal is the first message a dApp sends to open a session.
type SessionProposal struct {
	ID                 uint64       `json:"id"`
	Proposer           PeerMetadata `json:"proposer"`
	RequiredNamespaces Namespaces   `json:"requiredNamespaces"`
	OptionalNamespaces Namespaces   `json:"optionalNamespaces,omitempty"`
}

// Request is a unit of work submitted to the RequestProcessor. It is either a
// session proposal (Proposal set) or a session request (Session set).
// Two requests with the same ID are the same unit of work.
type Request struct {
	ID      uint64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ChainID string          `json:"chainId,omitempty"`
	Topic   string          `json:"topic,omitempty"`

	Session  *Session         `json:"session,omitempty"`
	Proposal *SessionProposal `json:"proposal,omitempty"`
}

// NewSessionProposalRequest wraps a proposal into a pipeline request.
func NewSessionProposalRequest(p SessionProposal) Request {
	return Request{
		ID:       p.ID,
		Method:   MethodSessionProposal,
		Proposal: &p,
	}
}

func (r Request) IsSessionProposal() bool {
	return r.Proposal != nil
}

// Peer returns the metadata of the dApp behind the request.
func (r Request) Peer() PeerMetadata {
	switch {
	case r.Proposal != nil:
		return r.Proposal.Proposer
	case r.Session != nil:
		return r.Session.Peer
	default:
		return PeerMetadata{}
	}
}

// DAppName is the name shown to the user in toasts.
func (r Request) DAppName() string {
	if name := r.Peer().Name; name != "" {
		return name
	}
	return "Unknown dApp"
}

// CaipChainID formats a numeric chain id as "eip155:<id>".
func CaipChainID(chainID uint64) string {
	return fmt.Sprintf("%s:%d", NamespaceEIP155, chainID)
}
