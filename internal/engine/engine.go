package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mosaic-ai/mosaic/internal/bridge"
	"github.com/mosaic-ai/mosaic/internal/command"
	"github.com/mosaic-ai/mosaic/internal/config"
	"github.com/mosaic-ai/mosaic/internal/event"
	"github.com/mosaic-ai/mosaic/internal/history"
	"github.com/mosaic-ai/mosaic/internal/logging"
	"github.com/mosaic-ai/mosaic/internal/provider"
	"github.com/mosaic-ai/mosaic/internal/stream"
	"github.com/mosaic-ai/mosaic/internal/tool"
	"github.com/mosaic-ai/mosaic/pkg/types"
)

const (
	abortByUser   = "Request interrupted by user."
	abortByPolicy = "Request aborted by policy (step budget exceeded)."

	emptyResponsePlaceholder = "no textual response"

	// longTurnThreshold triggers the decorative end-of-turn notice.
	longTurnThreshold = 60 * time.Second
)

// ErrBusy is returned when a second turn is submitted while one is
// processing. The caller treats it as a no-op.
var ErrBusy = errors.New("a turn is already in progress")

// Deps wires the engine's collaborators.
type Deps struct {
	Providers *provider.Registry
	Tools     *tool.Registry
	Runner    *tool.Runner
	Gate      *bridge.Gate
	Store     *history.Store // nil disables persistence
	Commands  *command.Registry
}

// Engine owns one conversation and serializes turns over it.
type Engine struct {
	opts      *config.Options
	providers *provider.Registry
	tools     *tool.Registry
	runner    *tool.Runner
	gate      *bridge.Gate
	store     *history.Store
	commands  *command.Registry

	processing atomic.Bool

	mu     sync.Mutex // guards conv and cancel
	conv   *Conversation
	cancel context.CancelFunc
}

// New creates an engine over a fresh conversation.
func New(opts *config.Options, deps Deps) *Engine {
	gate := deps.Gate
	if gate == nil {
		gate = bridge.NewGate(!opts.ApprovalsRequired())
	}
	runner := deps.Runner
	if runner == nil {
		runner = tool.NewRunner(deps.Tools, nil)
	}
	return &Engine{
		opts:      opts,
		providers: deps.Providers,
		tools:     deps.Tools,
		runner:    runner,
		gate:      gate,
		store:     deps.Store,
		commands:  deps.Commands,
		conv:      &Conversation{},
	}
}

// Input is one user submission.
type Input struct {
	Text        string
	Attachments []types.Attachment
	Pasted      bool
}

// Result reports what a slash input asked the front-end to do; turns
// themselves are observed through mutations and bus events.
type Result struct {
	EnterReview bool
}

// turnState is the per-turn bookkeeping of the event loop.
type turnState struct {
	steps        int
	activeID     string // current assistant message id, "" until first delta
	resolved     bool   // a tool result was produced this segment
	finish       *stream.Finish
	failed       bool // stream error surfaced
	aborted      bool
	abortText    string
	abortNoticed bool // latch: at most one interruption notice per turn
}

// RunTurn executes one user turn: slash commands are delegated to the
// registry, `!` inputs run the shell tool directly, everything else
// drives the provider stream to completion. A second call while a turn
// is processing returns ErrBusy.
func (e *Engine) RunTurn(ctx context.Context, input Input) (Result, error) {
	if !e.processing.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer e.processing.Store(false)

	text := strings.TrimSpace(input.Text)
	if text == "" && len(input.Attachments) == 0 {
		return Result{}, nil
	}

	if command.IsCommand(text) {
		res, continuation, err := e.runCommand(text)
		if err != nil || continuation == "" {
			return res, err
		}
		input = Input{Text: continuation}
		text = continuation
	}

	if strings.HasPrefix(text, "!") {
		input.Text = e.runShellPassthrough(ctx, strings.TrimSpace(text[1:]))
	}

	e.turn(ctx, input)
	return Result{}, nil
}

// runCommand resolves a slash input. The returned continuation, when
// non-empty, is re-submitted as the user turn content.
func (e *Engine) runCommand(text string) (Result, string, error) {
	outcome, err := e.commands.Resolve(text)
	if err != nil {
		e.appendMessage(types.Message{Role: types.RoleSlash, Content: err.Error()})
		return Result{}, "", nil
	}

	if outcome.ClearMessages {
		e.clear()
	}
	if outcome.Compact {
		if err := e.compact(); err != nil {
			e.appendMessage(types.Message{Role: types.RoleSlash, Content: "Compaction failed: " + err.Error()})
		} else {
			e.persist()
		}
	}
	if outcome.Output != "" {
		e.appendMessage(types.Message{Role: types.RoleSlash, Content: outcome.Output})
	}
	if outcome.EnterReview {
		return Result{EnterReview: true}, "", nil
	}
	return Result{}, outcome.ContinueAsTurn, nil
}

// runShellPassthrough executes a `!command` directly through the shell
// tool, records the tool message, and returns the rewritten user
// content embedding the output.
func (e *Engine) runShellPassthrough(ctx context.Context, cmd string) string {
	args := map[string]any{"command": cmd}
	result := e.runner.Execute(ctx, "bash", args)

	e.appendMessage(types.Message{
		Role: types.RoleTool,
		Tool: &types.ToolPayload{
			Name:    "bash",
			Args:    args,
			Result:  &result,
			Success: result.Success,
		},
	})

	return fmt.Sprintf("I ran: %s\nOutput:\n%s\nAnalyze.", cmd, result.Text())
}

// turn drives the provider stream for one user message.
func (e *Engine) turn(ctx context.Context, input Input) {
	log := logging.Component("engine")
	start := time.Now()

	e.mu.Lock()
	if e.conv.ID == "" {
		e.conv.ID = NewConversationID()
		e.conv.CreatedAt = time.Now().UnixMilli()
	}
	convID := e.conv.ID
	e.mu.Unlock()

	turnCtx, cancel := context.WithCancel(ctx)
	e.setCancel(cancel)
	defer func() {
		e.setCancel(nil)
		cancel()
	}()

	event.PublishSync(event.Event{Type: event.TurnStarted, Data: event.TurnStartedData{ConversationID: convID}})

	e.appendMessage(types.Message{
		Role:        types.RoleUser,
		Content:     input.Text,
		Pasted:      input.Pasted,
		Attachments: input.Attachments,
	})

	st := &turnState{}
	prov, modelID, err := e.selectProvider()
	if err == nil {
		if verdict := prov.Ready(turnCtx, modelID); !verdict.Ready {
			err = errors.New(verdict.Err)
		}
	}
	if err != nil {
		// Readiness failure: banner only, no persistence.
		e.appendMessage(types.Message{Role: types.RoleError, Content: err.Error()})
		e.finishTurn(start, convID, st, false)
		return
	}

	specs := provider.ToSchemaTools(e.tools.Specs())

	for {
		outbound := e.snapshotOutbound()
		e.setPromptEstimate(estimateOutbound(outbound) + estimateTokens(e.opts.SystemPrompt))

		cs, err := prov.CreateCompletion(turnCtx, &provider.CompletionRequest{
			Model:    modelID,
			Messages: provider.BuildSchemaMessages(e.opts.SystemPrompt, outbound),
			Tools:    specs,
		})
		if err != nil {
			if turnCtx.Err() != nil {
				e.noteAbort(st)
			} else {
				e.appendMessage(types.Message{Role: types.RoleError, Content: "stream error: " + err.Error()})
				st.failed = true
			}
			break
		}

		st.activeID = ""
		st.resolved = false
		st.finish = nil
		for ev := range stream.Normalize(turnCtx, cs) {
			e.handleEvent(turnCtx, st, ev)
		}

		if st.aborted || st.failed {
			break
		}
		if st.finish != nil && st.finish.Reason == stream.FinishToolUse && st.resolved {
			// Tool results feed back through the rebuilt outbound list.
			continue
		}
		break
	}

	e.finalizeAssistant(st, time.Since(start))
	e.finishTurn(start, convID, st, true)

	if !st.aborted && !st.failed && e.opts.AutoCompactEnabled() {
		max := e.effectiveMaxContext()
		if shouldAutoCompact(e.totalTokens(), float64(max)) {
			if err := e.compact(); err != nil {
				log.Warn().Err(err).Msg("auto-compaction failed")
			} else {
				e.persist()
			}
		}
	}
}

// handleEvent applies one normalized stream event. Deltas arriving
// after an abort are dropped.
func (e *Engine) handleEvent(ctx context.Context, st *turnState, ev stream.Event) {
	if st.aborted {
		if _, isErr := ev.(stream.Error); !isErr {
			return
		}
	}

	switch ev := ev.(type) {
	case stream.StepStart:
		st.steps++
		event.PublishSync(event.Event{Type: event.StepStarted, Data: event.StepStartedData{Step: st.steps}})
		if e.opts.MaxSteps > 0 && st.steps > e.opts.MaxSteps {
			st.abortText = abortByPolicy
			e.noteAbort(st)
			e.CancelTurn()
		}

	case stream.TextDelta:
		id := e.ensureAssistant(st)
		e.updateMessage(id, func(m *types.Message) { m.Content += ev.Content })
		e.addTokens(func(t *types.TokenBreakdown) { t.Output += estimateTokens(ev.Content) })
		event.PublishSync(event.Event{Type: event.TextDelta, Data: event.TextDeltaData{MessageID: id, Delta: ev.Content}})

	case stream.ReasoningDelta:
		id := e.ensureAssistant(st)
		e.updateMessage(id, func(m *types.Message) { m.Reasoning += ev.Content })
		e.addTokens(func(t *types.TokenBreakdown) { t.Reasoning += estimateTokens(ev.Content) })
		event.PublishSync(event.Event{Type: event.ReasoningDelta, Data: event.ReasoningDeltaData{MessageID: id, Delta: ev.Content}})

	case stream.ToolCallEnd:
		e.handleToolCall(ctx, st, ev)

	case stream.Finish:
		st.finish = &ev
		if ev.Usage != nil {
			e.setAuthoritativeUsage(ev.Usage)
		}

	case stream.Error:
		if ev.Source == "abort" || ctx.Err() != nil {
			e.noteAbort(st)
		} else {
			st.failed = true
			e.appendMessage(types.Message{Role: types.RoleError, Content: "stream error: " + ev.Err.Error()})
		}
	}
}

// handleToolCall runs the approval gate and the tool runner for one
// complete tool call, then records the terminal tool message.
func (e *Engine) handleToolCall(ctx context.Context, st *turnState, call stream.ToolCallEnd) {
	log := logging.Component("engine")

	var policy tool.Policy
	if t, ok := e.tools.Get(call.Name); ok {
		policy = t.Policy()
	}

	if policy.NeedsApproval {
		answer, err := e.gate.Request(ctx, bridge.ApprovalRequest{ToolName: call.Name, Args: call.Args})
		if err != nil {
			log.Warn().Str("tool", call.Name).Err(err).Msg("approval request failed")
			e.resolveTool(st, call, types.ToolResult{Success: false, Error: err.Error()}, false)
			return
		}
		switch answer {
		case bridge.Reject:
			e.resolveTool(st, call, types.ToolResult{Success: false, Error: "user rejected"}, false)
			return
		case bridge.Cancel:
			if ctx.Err() != nil {
				e.noteAbort(st)
				return
			}
			// Approval-level cancel rejects this tool only; the turn
			// continues so the model can revise.
			e.resolveTool(st, call, types.ToolResult{Success: false, Error: "user rejected"}, false)
			return
		}
	}

	if policy.ShowRunning {
		e.appendMessage(types.Message{
			Role: types.RoleTool,
			Tool: &types.ToolPayload{
				CallID:    call.CallID,
				Name:      call.Name,
				Args:      call.Args,
				Running:   true,
				StartedAt: time.Now().UnixMilli(),
			},
		})
		event.PublishSync(event.Event{Type: event.RunningToolStarted, Data: event.RunningToolStartedData{
			ToolName: call.Name,
			Args:     call.Args,
		}})
	}

	result := e.runner.Execute(ctx, call.Name, call.Args)
	e.resolveTool(st, call, result, policy.ShowRunning)

	if ctx.Err() != nil {
		e.noteAbort(st)
	}
}

// resolveTool replaces the running tool message with the terminal one.
// The call id match is authoritative; (name, running) is best-effort.
// expectRunning is set when the tool's policy enqueued a running
// message, so its absence is worth a warning.
func (e *Engine) resolveTool(st *turnState, call stream.ToolCallEnd, result types.ToolResult, expectRunning bool) {
	log := logging.Component("engine")
	st.resolved = true

	e.mu.Lock()
	idx := -1
	for i := range e.conv.Messages {
		m := &e.conv.Messages[i]
		if m.Tool != nil && m.Tool.Running && m.Tool.CallID != "" && m.Tool.CallID == call.CallID {
			idx = i
			break
		}
	}
	if idx < 0 {
		for i := range e.conv.Messages {
			m := &e.conv.Messages[i]
			if m.Tool != nil && m.Tool.Running && m.Tool.Name == call.Name {
				idx = i
				break
			}
		}
	}

	var updated types.Message
	replaced := idx >= 0
	if replaced {
		m := &e.conv.Messages[idx]
		m.Tool.Running = false
		m.Tool.Result = &result
		m.Tool.Success = result.Success
		updated = *m
		e.mu.Unlock()
		event.PublishSync(event.Event{Type: event.MessageUpdated, Data: event.MessageUpdatedData{
			ConversationID: e.ConversationID(),
			Message:        &updated,
		}})
	} else {
		e.mu.Unlock()
		if expectRunning {
			log.Warn().Str("tool", call.Name).Str("callID", call.CallID).Msg("no running message for tool result")
		}
		e.appendMessage(types.Message{
			Role: types.RoleTool,
			Tool: &types.ToolPayload{
				CallID:  call.CallID,
				Name:    call.Name,
				Args:    call.Args,
				Result:  &result,
				Success: result.Success,
			},
		})
	}

	e.addTokens(func(t *types.TokenBreakdown) { t.Tools += estimateTokens(result.Text()) })
	event.PublishSync(event.Event{Type: event.ToolResolved, Data: event.ToolResolvedData{
		CallID:   call.CallID,
		ToolName: call.Name,
		Result:   result,
	}})
}

// noteAbort appends the single interruption notice. The latch keeps a
// cancellation observed at several suspension points to one message.
func (e *Engine) noteAbort(st *turnState) {
	st.aborted = true
	if st.abortNoticed {
		return
	}
	st.abortNoticed = true

	text := st.abortText
	if text == "" {
		text = abortByUser
	}
	e.appendMessage(types.Message{
		Role:    types.RoleTool,
		Content: text,
		Tool: &types.ToolPayload{
			Name:    "interrupt",
			Result:  &types.ToolResult{Success: false, Error: text},
			Success: false,
		},
	})
}

// finalizeAssistant applies the end-of-turn invariants to the active
// assistant message: the response duration, a placeholder on a clean
// empty end, the interrupted flag on abort.
func (e *Engine) finalizeAssistant(st *turnState, elapsed time.Duration) {
	if st.activeID == "" {
		return
	}
	e.updateMessage(st.activeID, func(m *types.Message) {
		m.DurationMS = elapsed.Milliseconds()
		if st.aborted {
			m.Interrupted = true
			return
		}
		if !st.failed && m.Content == "" {
			m.Content = emptyResponsePlaceholder
		}
	})
}

// finishTurn persists, emits the end-of-turn events, and publishes the
// decorative notice for long turns.
func (e *Engine) finishTurn(start time.Time, convID string, st *turnState, persist bool) {
	if persist {
		e.persist()
	}

	elapsed := time.Since(start)
	if elapsed > longTurnThreshold {
		event.Publish(event.Event{Type: event.Notice, Data: event.NoticeData{
			Text: fmt.Sprintf("Turn completed in %s.", elapsed.Round(time.Second)),
		}})
	}
	event.PublishSync(event.Event{Type: event.TurnFinished, Data: event.TurnFinishedData{
		ConversationID: convID,
		DurationMS:     elapsed.Milliseconds(),
		Aborted:        st.aborted,
	}})
}

// CancelTurn signals the active turn's cancellation handle and drains
// any pending approval. Idempotent; a no-op when nothing is running.
func (e *Engine) CancelTurn() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.gate.Cancel()
}

func (e *Engine) setCancel(cancel context.CancelFunc) {
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
}

// selectProvider resolves the configured provider and model, falling
// back to the registry default and the provider's first model.
func (e *Engine) selectProvider() (provider.Provider, string, error) {
	var (
		p   provider.Provider
		err error
	)
	if e.opts.Provider != "" {
		p, err = e.providers.Get(e.opts.Provider)
	} else {
		p, err = e.providers.Default()
	}
	if err != nil {
		return nil, "", err
	}
	model := e.opts.Model
	if model == "" {
		if models := p.Models(); len(models) > 0 {
			model = models[0].ID
		}
	}
	return p, model, nil
}

// clear empties the conversation and reseeds the token estimate. The
// conversation id survives.
func (e *Engine) clear() {
	e.mu.Lock()
	e.conv.Messages = nil
	e.conv.Tokens = types.TokenBreakdown{}
	e.conv.TotalTokens = 0
	e.mu.Unlock()
}

// persist writes the conversation record atomically. Persistence
// failures are logged, never surfaced as turn errors.
func (e *Engine) persist() {
	if e.store == nil {
		return
	}
	log := logging.Component("engine")

	e.mu.Lock()
	if e.conv.ID == "" {
		e.mu.Unlock()
		return
	}
	if e.conv.Title == "" {
		for _, m := range e.conv.Messages {
			if m.Role == types.RoleUser {
				e.conv.Title = truncateRunes(strings.SplitN(m.Content, "\n", 2)[0], 60)
				break
			}
		}
	}
	steps := history.ToSteps(e.conv.Messages)
	record := &types.ConversationRecord{
		ID:          e.conv.ID,
		Timestamp:   e.conv.CreatedAt,
		Steps:       steps,
		TotalSteps:  len(steps),
		Title:       e.conv.Title,
		Workspace:   e.opts.Workspace,
		TotalTokens: e.conv.TotalTokens,
		Model:       e.opts.Model,
		Provider:    e.opts.Provider,
	}
	e.mu.Unlock()

	if err := e.store.SaveConversation(record); err != nil {
		log.Warn().Str("conversation", record.ID).Err(err).Msg("failed to persist conversation")
	}
}

// appendMessage stamps and appends a message, publishing the appended
// event synchronously so UI ordering follows processing order.
func (e *Engine) appendMessage(m types.Message) types.Message {
	e.mu.Lock()
	if m.ID == "" {
		m.ID = newMessageID()
	}
	m.Time = e.conv.nextTime()
	e.conv.Messages = append(e.conv.Messages, m)
	convID := e.conv.ID
	e.mu.Unlock()

	event.PublishSync(event.Event{Type: event.MessageAppended, Data: event.MessageAppendedData{
		ConversationID: convID,
		Message:        &m,
	}})
	return m
}

// updateMessage patches a message in place by id.
func (e *Engine) updateMessage(id string, patch func(*types.Message)) {
	e.mu.Lock()
	var updated *types.Message
	for i := range e.conv.Messages {
		if e.conv.Messages[i].ID == id {
			patch(&e.conv.Messages[i])
			m := e.conv.Messages[i]
			updated = &m
			break
		}
	}
	convID := e.conv.ID
	e.mu.Unlock()

	if updated != nil {
		event.PublishSync(event.Event{Type: event.MessageUpdated, Data: event.MessageUpdatedData{
			ConversationID: convID,
			Message:        updated,
		}})
	}
}

// ensureAssistant returns the active assistant message id, creating the
// message on the first delta of a stream segment.
func (e *Engine) ensureAssistant(st *turnState) string {
	if st.activeID == "" {
		m := e.appendMessage(types.Message{Role: types.RoleAssistant})
		st.activeID = m.ID
	}
	return st.activeID
}

func (e *Engine) addTokens(update func(*types.TokenBreakdown)) {
	e.mu.Lock()
	update(&e.conv.Tokens)
	if total := e.conv.Tokens.Total(); total > e.conv.TotalTokens {
		e.conv.TotalTokens = total
	}
	e.mu.Unlock()
}

func (e *Engine) setPromptEstimate(tokens int) {
	e.addTokens(func(t *types.TokenBreakdown) {
		if tokens > t.Prompt {
			t.Prompt = tokens
		}
	})
}

// setAuthoritativeUsage replaces the running estimate with the
// provider-reported counts.
func (e *Engine) setAuthoritativeUsage(u *types.Usage) {
	e.mu.Lock()
	if u.TotalTokens > 0 {
		e.conv.TotalTokens = u.TotalTokens
	}
	if u.PromptTokens > 0 {
		e.conv.Tokens.Prompt = u.PromptTokens
	}
	if u.CompletionTokens > 0 {
		e.conv.Tokens.Output = u.CompletionTokens
	}
	if u.ReasoningTokens > 0 {
		e.conv.Tokens.Reasoning = u.ReasoningTokens
	}
	e.mu.Unlock()
}

// snapshotOutbound builds the provider message list from the current
// conversation.
func (e *Engine) snapshotOutbound() []provider.ChatMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return buildOutbound(e.conv.Messages)
}

// Messages returns a copy of the conversation messages.
func (e *Engine) Messages() []types.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.Message, len(e.conv.Messages))
	copy(out, e.conv.Messages)
	return out
}

// ConversationID returns the lazily assigned conversation id.
func (e *Engine) ConversationID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv.ID
}

// Tokens returns the current breakdown and total.
func (e *Engine) Tokens() (types.TokenBreakdown, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv.Tokens, e.conv.TotalTokens
}

func (e *Engine) totalTokens() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv.TotalTokens
}

// IsProcessing reports whether a turn is in flight. Review Mode uses
// it to refuse entry mid-turn.
func (e *Engine) IsProcessing() bool {
	return e.processing.Load()
}

// Gate exposes the approval gate for front-end wiring.
func (e *Engine) Gate() *bridge.Gate {
	return e.gate
}

func newMessageID() string {
	return ulid.Make().String()
}
