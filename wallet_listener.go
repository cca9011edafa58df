package main

import (
	"context"
	"fmt"

	"github.com/corewallet/wcnode/pkg/rpc"
)

const (
	sessionOutcomeApproved = "approved"
	sessionOutcomeRejected = "rejected"

	toastApproveRequestFailed  = "Unable to approve request"
	toastRejectRequestFailed   = "Unable to reject request"
	toastApproveSessionFailed  = "Unable to approve session proposal"
	toastRejectSessionFailed   = "Unable to reject session proposal"
	toastPairFailed            = "Unable to pair with dapp"
	toastUnsupportedMethodTmpl = "%s requested an unsupported method: %s"
)

// WalletListener is the outbound side of the pipeline. It relays every
// outcome to the transport, keeps the session records current and tells the
// user about failures.
type WalletListener struct {
	bus       *EventBus
	transport Transport
	toaster   Toaster
	sessions  *SessionStore
	metrics   *Metrics
	logger    Logger
}

// NewWalletListener builds a listener. sessions and metrics may be nil.
func NewWalletListener(bus *EventBus, transport Transport, toaster Toaster, sessions *SessionStore, metrics *Metrics, logger Logger) *WalletListener {
	return &WalletListener{
		bus:       bus,
		transport: transport,
		toaster:   toaster,
		sessions:  sessions,
		metrics:   metrics,
		logger:    logger.NewSystem("wallet-listener"),
	}
}

// Run consumes outcomes until ctx is done or the bus is closed.
func (l *WalletListener) Run(ctx context.Context) {
	for {
		outcome, ok := l.bus.ConsumeOutcome(ctx)
		if !ok {
			return
		}
		l.HandleOutcome(ctx, outcome)
	}
}

func (l *WalletListener) HandleOutcome(ctx context.Context, o Outcome) {
	lg := requestLogger(l.logger, o.Request)
	ctx = SetContextLogger(ctx, lg)

	if !o.Result.IsTerminal() {
		lg.Warn("ignoring non-terminal outcome", "kind", o.Result.Kind)
		return
	}
	if o.Request.IsSessionProposal() {
		l.handleSessionProposal(ctx, o)
		return
	}
	l.handleSessionRequest(ctx, o)
}

func (l *WalletListener) handleSessionRequest(ctx context.Context, o Outcome) {
	req := o.Request
	lg := LoggerFromContext(ctx)

	if o.Result.Kind == ResultSuccess {
		value, err := o.Result.MarshalValue()
		if err == nil {
			err = l.transport.ApproveRequest(ctx, req.Topic, req.ID, value)
		}
		if err != nil {
			lg.Error("failed to approve request", "error", err)
			l.dAppError(ctx, toastApproveRequestFailed, req)
		}
		return
	}

	rpcErr := o.Result.Err
	if err := l.transport.RejectRequest(ctx, req.Topic, req.ID, rpcErr); err != nil {
		lg.Error("failed to reject request", "error", err)
		l.dAppError(ctx, toastRejectRequestFailed, req)
		return
	}

	switch rpcErr.Code {
	case rpc.CodeUserRejected:
	case rpc.CodeMethodNotSupported:
		l.dAppError(ctx, fmt.Sprintf(toastUnsupportedMethodTmpl, req.DAppName(), req.Method), req)
	default:
		l.dAppError(ctx, rpcErr.Message, req)
	}
}

func (l *WalletListener) handleSessionProposal(ctx context.Context, o Outcome) {
	req := o.Request
	lg := LoggerFromContext(ctx)

	if o.Result.Kind == ResultSuccess {
		namespaces, ok := o.Result.Value.(Namespaces)
		if !ok {
			lg.Error("session proposal approved without namespaces", "valueType", fmt.Sprintf("%T", o.Result.Value))
			l.dAppError(ctx, toastApproveSessionFailed, req)
			return
		}
		if err := l.transport.ApproveSession(ctx, req.Proposal.ID, RelayProtocolIRN, namespaces); err != nil {
			lg.Error("failed to approve session proposal", "error", err)
			l.dAppError(ctx, toastApproveSessionFailed, req)
			return
		}
		l.countSession(sessionOutcomeApproved)
		l.toast(ctx, Toast{Type: ToastSuccess, Message: "Connected to " + req.DAppName()})
		return
	}

	rpcErr := o.Result.Err
	l.countSession(sessionOutcomeRejected)
	if err := l.transport.RejectSession(ctx, req.Proposal.ID, rpcErr); err != nil {
		lg.Error("failed to reject session proposal", "error", err)
		l.dAppError(ctx, toastRejectSessionFailed, req)
		return
	}
	if rpcErr.Code != rpc.CodeUserRejected {
		l.dAppError(ctx, rpcErr.Message, req)
	}
}

// SessionSettled records a session the relay established after an approval.
func (l *WalletListener) SessionSettled(ctx context.Context, proposalID uint64, session Session) error {
	if l.sessions == nil {
		return nil
	}
	if err := l.sessions.Save(proposalID, session); err != nil {
		return err
	}
	LoggerFromContext(ctx).Info("session settled", "topic", session.Topic, "dapp", session.Peer.Name)
	return nil
}

// OnDisconnect forgets the session of topic and tells the user.
func (l *WalletListener) OnDisconnect(ctx context.Context, topic string, peer PeerMetadata) {
	if l.sessions != nil {
		if record, ok, err := l.sessions.Get(topic); err == nil && ok && peer.Name == "" {
			peer.Name = record.DAppName
		}
		if err := l.sessions.Delete(topic); err != nil {
			l.logger.Error("failed to delete session", "topic", topic, "error", err)
		}
	}
	name := peer.Name
	if name == "" {
		name = "Unknown dApp"
	}
	l.toast(ctx, Toast{Type: ToastSuccess, Message: name + " was disconnected"})
}

// KillSessions ends the sessions of topics.
func (l *WalletListener) KillSessions(ctx context.Context, topics []string) error {
	if err := l.transport.KillSessions(ctx, topics); err != nil {
		return err
	}
	if l.sessions != nil && len(topics) > 0 {
		return l.sessions.Delete(topics...)
	}
	return nil
}

// KillAllSessions ends every known session, e.g. on logout.
func (l *WalletListener) KillAllSessions(ctx context.Context) error {
	var topics []string
	if l.sessions != nil {
		var err error
		if topics, err = l.sessions.Topics(); err != nil {
			return err
		}
	}
	return l.KillSessions(ctx, topics)
}

// Pair asks the relay to pair with the dApp behind a WalletConnect uri.
func (l *WalletListener) Pair(ctx context.Context, uri string) error {
	if err := l.transport.Pair(ctx, uri); err != nil {
		l.logger.Error("failed to pair", "error", err)
		l.toast(ctx, Toast{Type: ToastError, Message: toastPairFailed})
		return err
	}
	return nil
}

func (l *WalletListener) dAppError(ctx context.Context, message string, req Request) {
	l.toast(ctx, Toast{Type: ToastError, Message: message, DApp: req.DAppName()})
}

func (l *WalletListener) toast(ctx context.Context, t Toast) {
	if l.toaster != nil {
		l.toaster.ShowToast(ctx, t)
	}
}

func (l *WalletListener) countSession(outcome string) {
	if l.metrics != nil {
		l.metrics.Sessions.WithLabelValues(outcome).Inc()
	}
}
