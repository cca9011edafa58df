package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/corewallet/wcnode/pkg/rpc"
)

// ApprovalEvent is the user's decision on a deferred request. Err is set when
// the user rejected; otherwise Data carries the method specific approval data.
type ApprovalEvent struct {
	RequestID uint64          `json:"requestId"`
	Data      json.RawMessage `json:"data,omitempty"`
	Err       *rpc.Error      `json:"error,omitempty"`
}

func (e ApprovalEvent) IsRejection() bool {
	return e.Err != nil
}

// ApprovalWaiters holds one pending continuation per deferred request id.
// A waiter accepts an event only once it is armed, which happens when its
// request is about to be shown to the user. The first event resolving an id
// wins; later events for it are ignored.
type ApprovalWaiters struct {
	mu      sync.Mutex
	waiters map[uint64]*approvalWaiter
}

type approvalWaiter struct {
	ch    chan ApprovalEvent
	armed bool
}

func NewApprovalWaiters() *ApprovalWaiters {
	return &ApprovalWaiters{waiters: make(map[uint64]*approvalWaiter)}
}

// Register creates the disarmed waiter of id. The returned channel receives
// at most one event.
func (w *ApprovalWaiters) Register(id uint64) (<-chan ApprovalEvent, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.waiters[id]; ok {
		return nil, fmt.Errorf("request %d is already waiting for approval", id)
	}
	waiter := &approvalWaiter{ch: make(chan ApprovalEvent, 1)}
	w.waiters[id] = waiter
	return waiter.ch, nil
}

// Arm lets the waiter of id accept an event. It is a no-op for an armed
// waiter and reports false when id has no waiter.
func (w *ApprovalWaiters) Arm(id uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	waiter, ok := w.waiters[id]
	if !ok {
		return false
	}
	waiter.armed = true
	return true
}

// Resolve delivers ev to its waiter. It reports false when no armed waiter
// exists, which is the case for unknown ids, for requests that were never
// shown to the user and for events after the first.
func (w *ApprovalWaiters) Resolve(ev ApprovalEvent) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	waiter, ok := w.waiters[ev.RequestID]
	if !ok || !waiter.armed {
		return false
	}
	delete(w.waiters, ev.RequestID)
	waiter.ch <- ev
	return true
}

// Cancel drops the waiter of id without resolving it.
func (w *ApprovalWaiters) Cancel(id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.waiters, id)
}

func (w *ApprovalWaiters) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.waiters)
}

// Pending returns the armed ids waiting for approval in ascending order.
func (w *ApprovalWaiters) Pending() []uint64 {
	w.mu.Lock()
	ids := make([]uint64, 0, len(w.waiters))
	for id, waiter := range w.waiters {
		if waiter.armed {
			ids = append(ids, id)
		}
	}
	w.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type approvalArmKey struct{}

// withApprovalArm attaches the function that arms the waiter of the request
// being handled.
func withApprovalArm(ctx context.Context, arm func()) context.Context {
	return context.WithValue(ctx, approvalArmKey{}, arm)
}

// armApproval arms the waiter of the request handled under ctx, if any.
func armApproval(ctx context.Context) {
	if arm, ok := ctx.Value(approvalArmKey{}).(func()); ok {
		arm()
	}
}
