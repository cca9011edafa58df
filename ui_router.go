package main

import (
	"encoding/json"

	rpclog "github.com/corewallet/wcnode/pkg/log"
	"github.com/corewallet/wcnode/pkg/rpc"
)

// Methods called by the approval UI.
const (
	UIApproveRequestMethod     = "ui_approveRequest"
	UIRejectRequestMethod      = "ui_rejectRequest"
	UIPairMethod               = "ui_pair"
	UIKillSessionsMethod       = "ui_killSessions"
	UIKillAllSessionsMethod    = "ui_killAllSessions"
	UIGetPendingRequestsMethod = "ui_getPendingRequests"
)

const errMsgRequestNotPending = "Request is not awaiting approval"

type approveRequestUIParams struct {
	RequestID uint64          `json:"requestId"`
	Data      json.RawMessage `json:"data"`
}

type rejectRequestUIParams struct {
	RequestID uint64 `json:"requestId"`
	Message   string `json:"message,omitempty"`
}

type pairUIParams struct {
	URI string `json:"uri" validate:"required"`
}

type killSessionsUIParams struct {
	Topics []string `json:"topics" validate:"required,min=1"`
}

// PendingRequestsResponse lists the requests waiting for the user.
type PendingRequestsResponse struct {
	RequestIDs []uint64        `json:"requestIds"`
	Requests   []RequestRecord `json:"requests"`
}

// UIRouter serves the approval UI peer.
type UIRouter struct {
	processor *RequestProcessor
	listener  *WalletListener
	requests  *RequestStore
}

func NewUIRouter(node rpc.Node, processor *RequestProcessor, listener *WalletListener, requests *RequestStore) *UIRouter {
	r := &UIRouter{processor: processor, listener: listener, requests: requests}

	group := node.NewGroup(PeerRoleUI)
	group.Use(rpc.RequireRole(PeerRoleUI))
	group.Handle(UIApproveRequestMethod, r.HandleApproveRequest)
	group.Handle(UIRejectRequestMethod, r.HandleRejectRequest)
	group.Handle(UIPairMethod, r.HandlePair)
	group.Handle(UIKillSessionsMethod, r.HandleKillSessions)
	group.Handle(UIKillAllSessionsMethod, r.HandleKillAllSessions)
	group.Handle(UIGetPendingRequestsMethod, r.HandleGetPendingRequests)
	return r
}

func (r *UIRouter) HandleApproveRequest(c *rpc.Context) {
	var params approveRequestUIParams
	if !c.Bind(&params) {
		return
	}
	if !r.processor.Resolve(ApprovalEvent{RequestID: params.RequestID, Data: params.Data}) {
		c.Fail(rpc.ResourceNotFound(errMsgRequestNotPending), "")
		return
	}
	c.Succeed(nil)
}

func (r *UIRouter) HandleRejectRequest(c *rpc.Context) {
	var params rejectRequestUIParams
	if !c.Bind(&params) {
		return
	}
	rejection := rpc.UserRejected(params.Message)
	if !r.processor.Resolve(ApprovalEvent{RequestID: params.RequestID, Err: &rejection}) {
		c.Fail(rpc.ResourceNotFound(errMsgRequestNotPending), "")
		return
	}
	c.Succeed(nil)
}

func (r *UIRouter) HandlePair(c *rpc.Context) {
	var params pairUIParams
	if !c.Bind(&params) {
		return
	}
	if err := getValidator().Struct(params); err != nil {
		c.Fail(rpc.InvalidParams("uri is required"), "")
		return
	}
	if err := r.listener.Pair(c.Context, params.URI); err != nil {
		c.Fail(err, toastPairFailed)
		return
	}
	c.Succeed(nil)
}

func (r *UIRouter) HandleKillSessions(c *rpc.Context) {
	var params killSessionsUIParams
	if !c.Bind(&params) {
		return
	}
	if err := getValidator().Struct(params); err != nil {
		c.Fail(rpc.InvalidParams("topics are required"), "")
		return
	}
	if err := r.listener.KillSessions(c.Context, params.Topics); err != nil {
		rpclog.FromContext(c.Context).Error("failed to kill sessions", "error", err)
		c.Fail(err, "failed to kill sessions")
		return
	}
	c.Succeed(nil)
}

func (r *UIRouter) HandleKillAllSessions(c *rpc.Context) {
	if err := r.listener.KillAllSessions(c.Context); err != nil {
		rpclog.FromContext(c.Context).Error("failed to kill all sessions", "error", err)
		c.Fail(err, "failed to kill sessions")
		return
	}
	c.Succeed(nil)
}

func (r *UIRouter) HandleGetPendingRequests(c *rpc.Context) {
	resp := PendingRequestsResponse{
		RequestIDs: r.processor.PendingApprovals(),
		Requests:   []RequestRecord{},
	}
	if r.requests != nil {
		records, err := r.requests.Pending()
		if err != nil {
			rpclog.FromContext(c.Context).Error("failed to load pending requests", "error", err)
			c.Fail(err, "failed to load pending requests")
			return
		}
		resp.Requests = records
	}
	c.Succeed(resp)
}
