package main

import (
	"context"
	"encoding/json"

	"github.com/corewallet/wcnode/pkg/rpc"
)

// RelayProtocolIRN is the WalletConnect relay protocol used for approved sessions.
const RelayProtocolIRN = "irn"

// Notifications sent to the relay peer.
const (
	RelayApproveSessionMethod = "wc_approveSession"
	RelayRejectSessionMethod  = "wc_rejectSession"
	RelayApproveRequestMethod = "wc_approveRequest"
	RelayRejectRequestMethod  = "wc_rejectRequest"
	RelayKillSessionsMethod   = "wc_killSessions"
	RelayPairMethod           = "wc_pair"
)

// Transport delivers pipeline decisions back to WalletConnect.
type Transport interface {
	ApproveSession(ctx context.Context, proposalID uint64, relayProtocol string, namespaces Namespaces) error
	RejectSession(ctx context.Context, proposalID uint64, rpcErr rpc.Error) error
	ApproveRequest(ctx context.Context, topic string, requestID uint64, result json.RawMessage) error
	RejectRequest(ctx context.Context, topic string, requestID uint64, rpcErr rpc.Error) error
	KillSessions(ctx context.Context, topics []string) error
	Pair(ctx context.Context, uri string) error
}

type approveSessionParams struct {
	ID            uint64     `json:"id"`
	RelayProtocol string     `json:"relayProtocol"`
	Namespaces    Namespaces `json:"namespaces"`
}

type rejectSessionParams struct {
	ID    uint64    `json:"id"`
	Error rpc.Error `json:"error"`
}

type approveRequestParams struct {
	Topic  string          `json:"topic"`
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
}

type rejectRequestParams struct {
	Topic string    `json:"topic"`
	ID    uint64    `json:"id"`
	Error rpc.Error `json:"error"`
}

type killSessionsParams struct {
	Topics []string `json:"topics"`
}

type pairParams struct {
	URI string `json:"uri"`
}

// RelayTransport forwards decisions to the connected relay bridge as notifications.
type RelayTransport struct {
	notify func(role, method string, params any) error
}

func NewRelayTransport(notify func(role, method string, params any) error) *RelayTransport {
	return &RelayTransport{notify: notify}
}

func (t *RelayTransport) send(method string, params any) error {
	return t.notify(PeerRoleRelay, method, params)
}

func (t *RelayTransport) ApproveSession(_ context.Context, proposalID uint64, relayProtocol string, namespaces Namespaces) error {
	return t.send(RelayApproveSessionMethod, approveSessionParams{
		ID:            proposalID,
		RelayProtocol: relayProtocol,
		Namespaces:    namespaces,
	})
}

func (t *RelayTransport) RejectSession(_ context.Context, proposalID uint64, rpcErr rpc.Error) error {
	return t.send(RelayRejectSessionMethod, rejectSessionParams{ID: proposalID, Error: rpcErr})
}

func (t *RelayTransport) ApproveRequest(_ context.Context, topic string, requestID uint64, result json.RawMessage) error {
	return t.send(RelayApproveRequestMethod, approveRequestParams{Topic: topic, ID: requestID, Result: result})
}

func (t *RelayTransport) RejectRequest(_ context.Context, topic string, requestID uint64, rpcErr rpc.Error) error {
	return t.send(RelayRejectRequestMethod, rejectRequestParams{Topic: topic, ID: requestID, Error: rpcErr})
}

func (t *RelayTransport) KillSessions(_ context.Context, topics []string) error {
	if topics == nil {
		topics = []string{}
	}
	return t.send(RelayKillSessionsMethod, killSessionsParams{Topics: topics})
}

func (t *RelayTransport) Pair(_ context.Context, uri string) error {
	return t.send(RelayPairMethod, pairParams{URI: uri})
}
