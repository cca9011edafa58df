package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const (
	PeerRoleRelay = "relay"
	PeerRoleUI    = "ui"
)

// PromptKind selects the approval screen the UI renders.
type PromptKind string

const (
	PromptSessionProposal PromptKind = "sessionProposal"
	PromptSendTransaction PromptKind = "sendTransaction"
	PromptSignMessage     PromptKind = "signMessage"
	PromptAddChain        PromptKind = "addChain"
	PromptSwitchChain     PromptKind = "switchChain"
	PromptSelectAccount   PromptKind = "selectAccount"
	PromptCreateContact   PromptKind = "createContact"
	PromptUpdateContact   PromptKind = "updateContact"
	PromptRemoveContact   PromptKind = "removeContact"
)

// Prompt asks the user to approve or reject a deferred request.
type Prompt struct {
	ID        string       `json:"id"`
	RequestID uint64       `json:"requestId"`
	Kind      PromptKind   `json:"kind"`
	Method    string       `json:"method"`
	DApp      PeerMetadata `json:"dapp"`
	Data      any          `json:"data,omitempty"`
}

// NewPrompt builds the prompt of req.
func NewPrompt(req Request, kind PromptKind, data any) Prompt {
	return Prompt{
		ID:        uuid.NewString(),
		RequestID: req.ID,
		Kind:      kind,
		Method:    req.Method,
		DApp:      req.Peer(),
		Data:      data,
	}
}

type ToastType string

const (
	ToastSuccess ToastType = "success"
	ToastError   ToastType = "error"
)

// Toast is a short message. DApp names the dApp an error toast is about.
type Toast struct {
	Type    ToastType `json:"type"`
	Message string    `json:"message"`
	DApp    string    `json:"dapp,omitempty"`
}

// Prompter shows approval prompts to the user.
type Prompter interface {
	ShowPrompt(ctx context.Context, p Prompt) error
}

// Toaster shows short messages to the user.
type Toaster interface {
	ShowToast(ctx context.Context, t Toast)
}

// EventType is the notification method sent to a peer.
type EventType string

const (
	ShowPromptEventType EventType = "ui_showPrompt"
	ToastEventType      EventType = "ui_toast"
)

func (e EventType) String() string {
	return string(e)
}

// Notification is a message addressed to every peer of a role.
type Notification struct {
	role      string
	eventType EventType
	data      any
}

// WSNotifier delivers notifications to peers through the websocket node.
type WSNotifier struct {
	notify func(role string, method string, params any) error
	logger Logger
}

func NewWSNotifier(notifyFunc func(role string, method string, params any) error, logger Logger) *WSNotifier {
	return &WSNotifier{
		notify: notifyFunc,
		logger: logger,
	}
}

// Notify sends every notification and returns the first delivery error.
func (n *WSNotifier) Notify(notifications ...*Notification) error {
	var firstErr error
	for _, notification := range notifications {
		if notification == nil {
			continue
		}
		if err := n.notify(notification.role, notification.eventType.String(), notification.data); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s notification to %s: %w", notification.eventType, notification.role, err)
			}
			continue
		}
		if n.logger != nil {
			n.logger.Debug(fmt.Sprintf("%s notification sent", notification.eventType), "role", notification.role)
		}
	}
	return firstErr
}

func (n *WSNotifier) ShowPrompt(_ context.Context, p Prompt) error {
	return n.Notify(&Notification{role: PeerRoleUI, eventType: ShowPromptEventType, data: p})
}

func (n *WSNotifier) ShowToast(_ context.Context, t Toast) {
	if err := n.Notify(&Notification{role: PeerRoleUI, eventType: ToastEventType, data: t}); err != nil && n.logger != nil {
		n.logger.Warn("failed to show toast", "message", t.Message, "error", err)
	}
}
