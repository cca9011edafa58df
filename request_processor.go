package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	rpclog "github.com/corewallet/wcnode/pkg/log"
	"github.com/corewallet/wcnode/pkg/rpc"
)

const (
	defaultDedupWindow = 10 * time.Minute
	processorTracer    = "wcnode/processor"
)

// RequestValidatorFunc adapts a function to the processor's validation step.
type RequestValidatorFunc func(ctx context.Context, req Request) error

// RequestProcessorConfig tunes the processor.
type RequestProcessorConfig struct {
	// ApprovalTimeout rejects deferred requests the user did not answer in
	// time. Zero waits forever.
	ApprovalTimeout time.Duration
	// DedupWindow is how long a resolved request id is remembered.
	DedupWindow time.Duration
}

// RequestProcessor runs every request through lookup, validation, handling,
// the optional approval wait and approval, then emits the outcome on the bus.
// Requests with different ids run concurrently.
type RequestProcessor struct {
	registry *HandlerRegistry
	validate RequestValidatorFunc
	bus      *EventBus
	waiters  *ApprovalWaiters
	store    *RequestStore
	metrics  *Metrics
	logger   Logger
	cfg      RequestProcessorConfig

	resolved *MessageCache
	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

// NewRequestProcessor builds a processor. store and metrics may be nil.
func NewRequestProcessor(
	registry *HandlerRegistry,
	validate RequestValidatorFunc,
	bus *EventBus,
	store *RequestStore,
	metrics *Metrics,
	logger Logger,
	cfg RequestProcessorConfig,
) *RequestProcessor {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = defaultDedupWindow
	}
	if validate == nil {
		validate = func(context.Context, Request) error { return nil }
	}
	return &RequestProcessor{
		registry: registry,
		validate: validate,
		bus:      bus,
		waiters:  NewApprovalWaiters(),
		store:    store,
		metrics:  metrics,
		logger:   logger.NewSystem("processor"),
		cfg:      cfg,
		resolved: NewMessageCache(cfg.DedupWindow),
		inFlight: make(map[string]struct{}),
	}
}

// Submit queues req for processing.
func (p *RequestProcessor) Submit(ctx context.Context, req Request) error {
	return p.bus.PublishRequest(ctx, req)
}

// Run consumes submitted requests until ctx is done or the bus is closed,
// then waits for the requests already started.
func (p *RequestProcessor) Run(ctx context.Context) {
	p.logger.Info("request processor started")
	defer p.logger.Info("request processor stopped")

	for {
		req, ok := p.bus.ConsumeRequest(ctx)
		if !ok {
			break
		}
		if !p.acquire(req) {
			p.logger.Warn("dropping duplicate request", "requestID", req.ID, "method", req.Method)
			if p.metrics != nil {
				p.metrics.DroppedRequests.Inc()
			}
			continue
		}

		p.wg.Add(1)
		go func(req Request) {
			defer p.wg.Done()
			defer p.release(req)

			result := p.Process(ctx, req)
			if err := p.bus.PublishOutcome(ctx, Outcome{Request: req, Result: result}); err != nil {
				p.logger.Error("failed to emit outcome", "requestID", req.ID, "error", err)
			}
		}(req)
	}
	p.wg.Wait()
}

// acquire marks req as in flight unless it is in flight already, was resolved
// within the dedup window, or has a final record in the store.
func (p *RequestProcessor) acquire(req Request) bool {
	key := RequestKey(req)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.inFlight[key]; ok {
		return false
	}
	if p.resolved.Exists(key) {
		return false
	}
	if p.store != nil {
		resolved, err := p.store.IsResolved(req)
		if err != nil {
			p.logger.Warn("failed to look up request history", "requestID", req.ID, "error", err)
		} else if resolved {
			p.resolved.Add(key)
			return false
		}
	}
	p.inFlight[key] = struct{}{}
	return true
}

func (p *RequestProcessor) release(req Request) {
	key := RequestKey(req)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.resolved.Add(key)
	delete(p.inFlight, key)
}

// Resolve delivers a user decision. It reports false when no request with
// that id is waiting, including when it was already resolved.
func (p *RequestProcessor) Resolve(ev ApprovalEvent) bool {
	return p.waiters.Resolve(ev)
}

// PendingApprovals returns the ids waiting for a user decision.
func (p *RequestProcessor) PendingApprovals() []uint64 {
	return p.waiters.Pending()
}

// Process runs req to its terminal result.
func (p *RequestProcessor) Process(ctx context.Context, req Request) (result Result) {
	started := time.Now()
	lg := requestLogger(p.logger, req)

	ctx, span := otel.Tracer(processorTracer).Start(ctx, "wc."+req.Method,
		trace.WithAttributes(rpclog.Attributes("requestID", req.ID, "method", req.Method, "topic", req.Topic, "chainID", req.ChainID)...))
	defer span.End()
	ctx = SetContextLogger(ctx, lg)

	p.record(lg, func(s *RequestStore) error { return s.RecordReceived(req) })

	defer func() {
		if r := recover(); r != nil {
			lg.Error("handler panicked", "panic", r)
			result = Failure(rpc.Internal(defaultNodeErrorMessage))
		}

		span.SetAttributes(rpclog.Attributes("result", result.Kind.String())...)
		if result.Kind == ResultFailure {
			span.SetStatus(codes.Error, result.Err.Message)
			lg.Info("request failed", "code", result.Err.Code, "message", result.Err.Message)
		} else {
			lg.Info("request succeeded")
		}

		p.record(lg, func(s *RequestStore) error { return s.RecordResult(req.ID, result) })
		if p.metrics != nil {
			p.metrics.RPCRequests.WithLabelValues(req.Method, result.Kind.String()).Inc()
			p.metrics.RequestDuration.WithLabelValues(req.Method).Observe(time.Since(started).Seconds())
		}
	}()

	handler, ok := p.registry.Lookup(req.Method)
	if !ok {
		return Failure(rpc.MethodNotSupported(req.Method))
	}

	if err := p.validate(ctx, req); err != nil {
		return Failure(rpc.ToError(err, defaultNodeErrorMessage))
	}

	// The waiter exists before the prompt is shown so a fast decision is not
	// lost. It only accepts decisions once armed, so a decision for a request
	// that is never prompted is refused instead of dropped.
	decisions, err := p.waiters.Register(req.ID)
	if err != nil {
		lg.Error("failed to register approval waiter", "error", err)
		return Failure(rpc.Internal(defaultNodeErrorMessage))
	}

	result = handler.Handle(withApprovalArm(ctx, func() { p.waiters.Arm(req.ID) }), req)
	if result.Kind != ResultDeferred {
		p.waiters.Cancel(req.ID)
		return result
	}
	p.waiters.Arm(req.ID)

	p.record(lg, func(s *RequestStore) error { return s.MarkAwaitingApproval(req.ID) })
	ev, err := p.await(ctx, req, decisions)
	if err != nil {
		return Failure(rpc.ToError(err, defaultNodeErrorMessage))
	}

	if ev.IsRejection() {
		lg.Info("request rejected by user")
		return Failure(*ev.Err)
	}

	approver, ok := handler.(Approver)
	if !ok {
		return Success(nil)
	}
	result = approver.Approve(ctx, req, ev.Data)
	if result.Kind == ResultDeferred {
		lg.Error("approve returned a deferred result")
		return Failure(rpc.Internal(defaultNodeErrorMessage))
	}
	return result
}

// await blocks until the user decides, the approval timeout fires or ctx is done.
func (p *RequestProcessor) await(ctx context.Context, req Request, decisions <-chan ApprovalEvent) (ApprovalEvent, error) {
	if p.metrics != nil {
		p.metrics.PendingApprovals.Inc()
		defer p.metrics.PendingApprovals.Dec()
	}

	var timeout <-chan time.Time
	if p.cfg.ApprovalTimeout > 0 {
		timer := time.NewTimer(p.cfg.ApprovalTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case ev := <-decisions:
		return ev, nil
	case <-timeout:
		p.waiters.Cancel(req.ID)
		// A decision delivered before Cancel still wins.
		select {
		case ev := <-decisions:
			return ev, nil
		default:
		}
		LoggerFromContext(ctx).Info("approval timed out", "timeout", p.cfg.ApprovalTimeout)
		rejected := rpc.UserRejected("")
		return ApprovalEvent{RequestID: req.ID, Err: &rejected}, nil
	case <-ctx.Done():
		p.waiters.Cancel(req.ID)
		return ApprovalEvent{}, fmt.Errorf("waiting for approval: %w", ctx.Err())
	}
}

func (p *RequestProcessor) record(lg Logger, fn func(s *RequestStore) error) {
	if p.store == nil {
		return
	}
	if err := fn(p.store); err != nil {
		lg.Error("failed to record request status", "error", err)
	}
}
