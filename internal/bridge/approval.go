// Package bridge provides the single-slot human-in-the-loop gates the
// engine suspends on: tool approval and mid-call questions.
package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/mosaic-ai/mosaic/internal/event"
)

// Answer is the outcome of one approval request.
type Answer string

const (
	AcceptOnce   Answer = "accept-once"
	AcceptAlways Answer = "accept-always"
	Reject       Answer = "reject"
	Cancel       Answer = "cancel"
)

// ErrApprovalPending is returned when a second approval is requested
// while one is outstanding. Overlapping requests are a programming
// error, not a queue.
var ErrApprovalPending = errors.New("an approval request is already pending")

// ErrNoPending is returned by Respond when nothing awaits an answer.
var ErrNoPending = errors.New("no pending request")

// ApprovalRequest describes the tool call awaiting a decision.
type ApprovalRequest struct {
	ID       string
	ToolName string
	Args     map[string]any
}

// Gate is the process-wide approval rendezvous. One request may be
// outstanding at a time; the auto-approve flag short-circuits requests
// without making them externally visible.
type Gate struct {
	mu      sync.Mutex
	pending *pendingApproval
	auto    atomic.Bool

	acceptedMu sync.Mutex
	accepted   []func(ApprovalRequest)
}

type pendingApproval struct {
	req ApprovalRequest
	ch  chan Answer
}

// NewGate creates an approval gate. autoApprove starts the process in
// auto-approve mode (requireApprovals=false).
func NewGate(autoApprove bool) *Gate {
	g := &Gate{}
	g.auto.Store(autoApprove)
	return g
}

// Request suspends until the user answers, the request is cancelled, or
// ctx is done. In auto-approve mode it resolves immediately with
// AcceptOnce and publishes nothing.
func (g *Gate) Request(ctx context.Context, req ApprovalRequest) (Answer, error) {
	if g.auto.Load() {
		return AcceptOnce, nil
	}

	if req.ID == "" {
		req.ID = ulid.Make().String()
	}

	g.mu.Lock()
	if g.pending != nil {
		g.mu.Unlock()
		return "", ErrApprovalPending
	}
	p := &pendingApproval{req: req, ch: make(chan Answer, 1)}
	g.pending = p
	g.mu.Unlock()

	event.PublishSync(event.Event{
		Type: event.ApprovalRequired,
		Data: event.ApprovalRequiredData{ID: req.ID, ToolName: req.ToolName, Args: req.Args},
	})

	var answer Answer
	select {
	case <-ctx.Done():
		answer = Cancel
	case answer = <-p.ch:
	}

	g.mu.Lock()
	if g.pending == p {
		g.pending = nil
	}
	g.mu.Unlock()

	if answer == AcceptAlways {
		g.auto.Store(true)
	}

	event.PublishSync(event.Event{
		Type: event.ApprovalResolved,
		Data: event.ApprovalResolvedData{ID: req.ID, Answer: string(answer)},
	})

	if answer == AcceptOnce || answer == AcceptAlways {
		g.notifyAccepted(req)
	}

	return answer, nil
}

// Respond resolves the pending request with the given answer.
func (g *Gate) Respond(answer Answer) error {
	g.mu.Lock()
	p := g.pending
	g.mu.Unlock()
	if p == nil {
		return ErrNoPending
	}
	p.ch <- answer
	return nil
}

// Cancel drains the pending request, if any, with Cancel. The driver
// treats this as a rejection for the current tool only; the stream
// continues so the model can revise. Safe to call with nothing pending.
func (g *Gate) Cancel() {
	g.mu.Lock()
	p := g.pending
	g.mu.Unlock()
	if p != nil {
		select {
		case p.ch <- Cancel:
		default:
		}
	}
}

// Pending returns the outstanding request, if any.
func (g *Gate) Pending() (ApprovalRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return ApprovalRequest{}, false
	}
	return g.pending.req, true
}

// AutoApprove reports the auto-approve mode flag.
func (g *Gate) AutoApprove() bool { return g.auto.Load() }

// SetAutoApprove toggles auto-approve mode (bound to a keybinding in
// the front-ends).
func (g *Gate) SetAutoApprove(on bool) { g.auto.Store(on) }

// SubscribeAccepted registers a callback invoked after any accepted
// approval.
func (g *Gate) SubscribeAccepted(fn func(ApprovalRequest)) {
	g.acceptedMu.Lock()
	defer g.acceptedMu.Unlock()
	g.accepted = append(g.accepted, fn)
}

func (g *Gate) notifyAccepted(req ApprovalRequest) {
	g.acceptedMu.Lock()
	fns := make([]func(ApprovalRequest), len(g.accepted))
	copy(fns, g.accepted)
	g.acceptedMu.Unlock()
	for _, fn := range fns {
		fn(req)
	}
}
