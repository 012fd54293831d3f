package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/mosaic-ai/mosaic/internal/event"
)

// ErrQuestionPending is returned when a second question is asked while
// one is outstanding.
var ErrQuestionPending = errors.New("a question is already pending")

// ErrQuestionCancelled is returned when the pending question is
// dismissed without an answer.
var ErrQuestionCancelled = errors.New("question cancelled")

// QuestionRequest is a clarifying question a tool asks mid-call. Options
// are suggestions; the answer may be free text.
type QuestionRequest struct {
	ID      string
	Prompt  string
	Options []string
}

// Question is the single-slot question rendezvous, structurally the same
// as the approval gate but resolving to a free value.
type Question struct {
	mu      sync.Mutex
	pending *pendingQuestion
}

type pendingQuestion struct {
	req QuestionRequest
	ch  chan questionAnswer
}

type questionAnswer struct {
	value     string
	cancelled bool
}

// NewQuestion creates a question bridge.
func NewQuestion() *Question {
	return &Question{}
}

// Request suspends until the user supplies a value or the request is
// cancelled.
func (q *Question) Request(ctx context.Context, req QuestionRequest) (string, error) {
	if req.ID == "" {
		req.ID = ulid.Make().String()
	}

	q.mu.Lock()
	if q.pending != nil {
		q.mu.Unlock()
		return "", ErrQuestionPending
	}
	p := &pendingQuestion{req: req, ch: make(chan questionAnswer, 1)}
	q.pending = p
	q.mu.Unlock()

	event.PublishSync(event.Event{
		Type: event.QuestionRequired,
		Data: event.QuestionRequiredData{ID: req.ID, Prompt: req.Prompt, Options: req.Options},
	})

	var ans questionAnswer
	select {
	case <-ctx.Done():
		ans = questionAnswer{cancelled: true}
	case ans = <-p.ch:
	}

	q.mu.Lock()
	if q.pending == p {
		q.pending = nil
	}
	q.mu.Unlock()

	if ans.cancelled {
		return "", ErrQuestionCancelled
	}

	event.PublishSync(event.Event{
		Type: event.QuestionResolved,
		Data: event.QuestionResolvedData{ID: req.ID, Value: ans.value},
	})
	return ans.value, nil
}

// Respond resolves the pending question with the given value.
func (q *Question) Respond(value string) error {
	q.mu.Lock()
	p := q.pending
	q.mu.Unlock()
	if p == nil {
		return ErrNoPending
	}
	p.ch <- questionAnswer{value: value}
	return nil
}

// Cancel dismisses the pending question, if any.
func (q *Question) Cancel() {
	q.mu.Lock()
	p := q.pending
	q.mu.Unlock()
	if p != nil {
		select {
		case p.ch <- questionAnswer{cancelled: true}:
		default:
		}
	}
}

// Pending returns the outstanding question, if any.
func (q *Question) Pending() (QuestionRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == nil {
		return QuestionRequest{}, false
	}
	return q.pending.req, true
}
