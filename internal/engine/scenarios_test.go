package engine_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cloudwego/eino/schema"

	"github.com/mosaic-ai/mosaic/internal/bridge"
	"github.com/mosaic-ai/mosaic/internal/command"
	"github.com/mosaic-ai/mosaic/internal/config"
	"github.com/mosaic-ai/mosaic/internal/engine"
	"github.com/mosaic-ai/mosaic/internal/event"
	"github.com/mosaic-ai/mosaic/internal/history"
	"github.com/mosaic-ai/mosaic/internal/provider"
	"github.com/mosaic-ai/mosaic/internal/tool"
	"github.com/mosaic-ai/mosaic/pkg/types"
)

// scriptedProvider replays canned chunk scripts, one per stream open.
// The last script repeats when the engine opens more streams than
// scripted. With hang set, the stream blocks after the script until the
// request context is cancelled.
type scriptedProvider struct {
	mu       sync.Mutex
	scripts  [][]*schema.Message
	calls    int
	requests []*provider.CompletionRequest
	hang     bool
	started  chan struct{}
}

func newScriptedProvider(scripts ...[]*schema.Message) *scriptedProvider {
	return &scriptedProvider{scripts: scripts, started: make(chan struct{}, 8)}
}

func (p *scriptedProvider) ID() string   { return "scripted" }
func (p *scriptedProvider) Name() string { return "Scripted" }

func (p *scriptedProvider) Models() []provider.Model {
	return []provider.Model{{ID: "scripted-model", Name: "Scripted", ContextLength: 200000, SupportsTools: true}}
}

func (p *scriptedProvider) Ready(ctx context.Context, modelID string) provider.Verdict {
	return provider.Verdict{Ready: true}
}

func (p *scriptedProvider) CreateCompletion(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionStream, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.requests = append(p.requests, req)
	if idx >= len(p.scripts) {
		idx = len(p.scripts) - 1
	}
	script := p.scripts[idx]
	hang := p.hang
	p.mu.Unlock()

	reader, writer := schema.Pipe[*schema.Message](len(script) + 1)
	go func() {
		defer writer.Close()
		for _, msg := range script {
			if closed := writer.Send(msg, nil); closed {
				return
			}
		}
		select {
		case p.started <- struct{}{}:
		default:
		}
		if hang {
			<-ctx.Done()
			writer.Send(nil, ctx.Err())
		}
	}()
	return provider.NewCompletionStream(reader), nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *scriptedProvider) request(i int) *provider.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

// fakeTool satisfies tool.Tool with a fixed result.
type fakeTool struct {
	name   string
	policy tool.Policy
	output string
	calls  atomic.Int32
}

func (t *fakeTool) Name() string        { return t.name }
func (t *fakeTool) Description() string { return "scripted test tool" }

func (t *fakeTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"command":{"type":"string"},"filePath":{"type":"string"}},"required":[]}`)
}

func (t *fakeTool) Policy() tool.Policy { return t.policy }

func (t *fakeTool) Execute(ctx context.Context, input json.RawMessage) (*tool.Output, error) {
	t.calls.Add(1)
	return &tool.Output{Title: t.name, Text: t.output}, nil
}

func textChunk(text string) *schema.Message {
	return &schema.Message{Role: schema.Assistant, Content: text}
}

func toolChunk(id, name, args string) *schema.Message {
	return &schema.Message{Role: schema.Assistant, ToolCalls: []schema.ToolCall{
		{ID: id, Function: schema.FunctionCall{Name: name, Arguments: args}},
	}}
}

func finishChunk(reason string, totalTokens int) *schema.Message {
	meta := &schema.ResponseMeta{FinishReason: reason}
	if totalTokens > 0 {
		meta.Usage = &schema.TokenUsage{
			PromptTokens:     totalTokens / 2,
			CompletionTokens: totalTokens - totalTokens/2,
			TotalTokens:      totalTokens,
		}
	}
	return &schema.Message{Role: schema.Assistant, ResponseMeta: meta}
}

var _ = Describe("Turn scenarios", func() {
	var (
		prov     *scriptedProvider
		bash     *fakeTool
		readFile *fakeTool
		gate     *bridge.Gate
		store    *history.Store
		opts     *config.Options
		eng      *engine.Engine
		unsubs   []func()
	)

	makeEngine := func() {
		providers := provider.NewRegistry()
		providers.Register(prov)

		registry := tool.NewRegistry(GinkgoT().TempDir())
		registry.Register(bash)
		registry.Register(readFile)

		commands := command.NewRegistry()
		command.RegisterBuiltins(commands, nil)

		eng = engine.New(opts, engine.Deps{
			Providers: providers,
			Tools:     registry,
			Runner:    tool.NewRunner(registry, nil),
			Gate:      gate,
			Store:     store,
			Commands:  commands,
		})
	}

	respondToApprovals := func(answer bridge.Answer) {
		unsub := event.Subscribe(event.ApprovalRequired, func(event.Event) {
			gate.Respond(answer)
		})
		unsubs = append(unsubs, unsub)
	}

	BeforeEach(func() {
		event.Reset()
		unsubs = nil
		bash = &fakeTool{name: "bash", policy: tool.Policy{NeedsApproval: true, ShowRunning: true}, output: "a\nb"}
		readFile = &fakeTool{name: "read", policy: tool.Policy{}, output: "file contents"}
		gate = bridge.NewGate(false)
		store = history.NewStore(GinkgoT().TempDir())
		opts = &config.Options{Provider: "scripted", Model: "scripted-model", Workspace: "/tmp"}
	})

	AfterEach(func() {
		for _, unsub := range unsubs {
			unsub()
		}
	})

	It("runs a pure text turn", func() {
		prov = newScriptedProvider([]*schema.Message{textChunk("hi"), finishChunk("stop", 10)})
		makeEngine()

		_, err := eng.RunTurn(context.Background(), engine.Input{Text: "hello"})
		Expect(err).NotTo(HaveOccurred())

		msgs := eng.Messages()
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[0].Role).To(Equal(types.RoleUser))
		Expect(msgs[0].Content).To(Equal("hello"))
		Expect(msgs[1].Role).To(Equal(types.RoleAssistant))
		Expect(msgs[1].Content).To(Equal("hi"))

		_, total := eng.Tokens()
		Expect(total).To(Equal(10))

		records := store.LoadConversations()
		Expect(records).To(HaveLen(1))
		Expect(records[0].Steps).To(HaveLen(2))
		Expect(records[0].TotalTokens).To(Equal(10))
	})

	It("executes an approved gated tool and continues", func() {
		prov = newScriptedProvider(
			[]*schema.Message{toolChunk("t1", "bash", `{"command":"ls"}`), finishChunk("tool_calls", 0)},
			[]*schema.Message{textChunk("done"), finishChunk("stop", 40)},
		)
		makeEngine()
		respondToApprovals(bridge.AcceptOnce)

		_, err := eng.RunTurn(context.Background(), engine.Input{Text: "list files"})
		Expect(err).NotTo(HaveOccurred())

		msgs := eng.Messages()
		Expect(msgs).To(HaveLen(3))
		Expect(msgs[0].Role).To(Equal(types.RoleUser))
		Expect(msgs[1].Role).To(Equal(types.RoleTool))
		Expect(msgs[1].Tool.Name).To(Equal("bash"))
		Expect(msgs[1].Tool.Running).To(BeFalse())
		Expect(msgs[1].Tool.Success).To(BeTrue())
		Expect(msgs[1].Tool.Result.Text()).To(Equal("a\nb"))
		Expect(msgs[2].Role).To(Equal(types.RoleAssistant))
		Expect(msgs[2].Content).To(Equal("done"))

		Expect(bash.calls.Load()).To(Equal(int32(1)))

		// The second stream open carries the collapsed tool memory.
		Expect(prov.callCount()).To(Equal(2))
		secondOutbound := prov.request(1).Messages
		Expect(secondOutbound[0].Role).To(Equal(schema.Assistant))
		Expect(secondOutbound[0].Content).To(ContainSubstring("Recent tool memory:"))
		Expect(secondOutbound[0].Content).To(ContainSubstring("bash"))
	})

	It("rejects a gated tool without executing it", func() {
		prov = newScriptedProvider(
			[]*schema.Message{toolChunk("t1", "bash", `{"command":"rm -rf /"}`), finishChunk("tool_calls", 0)},
			[]*schema.Message{textChunk("understood, skipping that"), finishChunk("stop", 30)},
		)
		makeEngine()
		respondToApprovals(bridge.Reject)

		_, err := eng.RunTurn(context.Background(), engine.Input{Text: "clean up"})
		Expect(err).NotTo(HaveOccurred())

		Expect(bash.calls.Load()).To(BeZero())

		msgs := eng.Messages()
		Expect(msgs).To(HaveLen(3))
		Expect(msgs[1].Role).To(Equal(types.RoleTool))
		Expect(msgs[1].Tool.Success).To(BeFalse())
		Expect(msgs[1].Tool.Result.Error).To(Equal("user rejected"))
		Expect(msgs[2].Content).To(Equal("understood, skipping that"))
	})

	It("skips the approval gate entirely in auto-approve mode", func() {
		prov = newScriptedProvider(
			[]*schema.Message{toolChunk("t1", "bash", `{"command":"ls"}`), finishChunk("tool_calls", 0)},
			[]*schema.Message{textChunk("done"), finishChunk("stop", 20)},
		)
		gate = bridge.NewGate(true)
		makeEngine()

		sawRequest := false
		unsubs = append(unsubs, event.Subscribe(event.ApprovalRequired, func(event.Event) {
			sawRequest = true
		}))

		_, err := eng.RunTurn(context.Background(), engine.Input{Text: "list files"})
		Expect(err).NotTo(HaveOccurred())
		Expect(sawRequest).To(BeFalse())
		Expect(bash.calls.Load()).To(Equal(int32(1)))
	})

	It("appends exactly one interruption notice on cancellation", func() {
		prov = newScriptedProvider([]*schema.Message{textChunk("partial te")})
		prov.hang = true
		makeEngine()

		sawText := make(chan struct{}, 1)
		unsubs = append(unsubs, event.Subscribe(event.TextDelta, func(event.Event) {
			select {
			case sawText <- struct{}{}:
			default:
			}
		}))

		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)
			_, err := eng.RunTurn(context.Background(), engine.Input{Text: "long question"})
			Expect(err).NotTo(HaveOccurred())
		}()

		Eventually(sawText, 2*time.Second).Should(Receive())
		eng.CancelTurn()
		eng.CancelTurn() // idempotent
		Eventually(done, 2*time.Second).Should(BeClosed())

		msgs := eng.Messages()
		notices := 0
		for _, m := range msgs {
			if m.Role == types.RoleTool && m.Content == "Request interrupted by user." {
				notices++
			}
		}
		Expect(notices).To(Equal(1))

		// The partial text survives, flagged as interrupted.
		var assistant *types.Message
		for i := range msgs {
			if msgs[i].Role == types.RoleAssistant {
				assistant = &msgs[i]
			}
		}
		Expect(assistant).NotTo(BeNil())
		Expect(assistant.Content).To(Equal("partial te"))
		Expect(assistant.Interrupted).To(BeTrue())

		Expect(store.LoadConversations()).To(HaveLen(1))
	})

	It("marks the next outbound list after an interrupted assistant", func() {
		prov = newScriptedProvider([]*schema.Message{textChunk("partial")})
		prov.hang = true
		makeEngine()

		sawText := make(chan struct{}, 1)
		unsubs = append(unsubs, event.Subscribe(event.TextDelta, func(event.Event) {
			select {
			case sawText <- struct{}{}:
			default:
			}
		}))

		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)
			eng.RunTurn(context.Background(), engine.Input{Text: "first"})
		}()
		Eventually(sawText, 2*time.Second).Should(Receive())
		eng.CancelTurn()
		Eventually(done, 2*time.Second).Should(BeClosed())

		prov.mu.Lock()
		prov.hang = false
		prov.scripts = [][]*schema.Message{{textChunk("hello again"), finishChunk("stop", 0)}}
		prov.calls = 0
		prov.requests = nil
		prov.mu.Unlock()

		_, err := eng.RunTurn(context.Background(), engine.Input{Text: "second"})
		Expect(err).NotTo(HaveOccurred())

		var marker bool
		for _, m := range prov.request(0).Messages {
			if m.Role == schema.User && strings.Contains(m.Content, "[Your previous response was interrupted by the user.]") {
				marker = true
			}
		}
		Expect(marker).To(BeTrue())
	})

	It("auto-compacts when the token total crosses the threshold", func() {
		prov = newScriptedProvider(
			[]*schema.Message{toolChunk("t1", "read", `{"filePath":"/tmp/notes.txt"}`), finishChunk("tool_calls", 0)},
			[]*schema.Message{textChunk("summarized the file"), finishChunk("stop", 955)},
		)
		opts.MaxContextTokens = 1000
		makeEngine()

		_, err := eng.RunTurn(context.Background(), engine.Input{Text: "read my notes"})
		Expect(err).NotTo(HaveOccurred())

		msgs := eng.Messages()
		Expect(msgs).To(HaveLen(1))
		Expect(msgs[0].Role).To(Equal(types.RoleAssistant))
		Expect(msgs[0].Content).To(ContainSubstring("Résumé de conversation (compact):"))
		Expect(msgs[0].Content).To(ContainSubstring("Fichiers conservés après compaction:"))
		Expect(msgs[0].Content).To(ContainSubstring("/tmp/notes.txt"))

		_, total := eng.Tokens()
		Expect(total).To(BeNumerically("<", 950))
	})

	It("clears the conversation without a provider call", func() {
		prov = newScriptedProvider([]*schema.Message{textChunk("hi"), finishChunk("stop", 0)})
		makeEngine()

		_, err := eng.RunTurn(context.Background(), engine.Input{Text: "/clear"})
		Expect(err).NotTo(HaveOccurred())
		Expect(prov.callCount()).To(BeZero())

		msgs := eng.Messages()
		Expect(msgs).To(HaveLen(1))
		Expect(msgs[0].Role).To(Equal(types.RoleSlash))
		Expect(msgs[0].Content).To(Equal("Conversation cleared."))

		_, err = eng.RunTurn(context.Background(), engine.Input{Text: "fresh start"})
		Expect(err).NotTo(HaveOccurred())
		Expect(prov.request(0).Messages).To(HaveLen(1))
		Expect(prov.request(0).Messages[0].Role).To(Equal(schema.User))
	})

	It("rejects a second turn while one is processing", func() {
		prov = newScriptedProvider([]*schema.Message{textChunk("thinking")})
		prov.hang = true
		makeEngine()

		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)
			eng.RunTurn(context.Background(), engine.Input{Text: "first"})
		}()
		Eventually(prov.started, 2*time.Second).Should(Receive())

		_, err := eng.RunTurn(context.Background(), engine.Input{Text: "second"})
		Expect(err).To(MatchError(engine.ErrBusy))

		eng.CancelTurn()
		Eventually(done, 2*time.Second).Should(BeClosed())
	})

	It("aborts by policy when the step budget is exhausted", func() {
		prov = newScriptedProvider(
			[]*schema.Message{toolChunk("t1", "read", `{"filePath":"/tmp/a"}`), finishChunk("tool_calls", 0)},
			[]*schema.Message{textChunk("should never arrive"), finishChunk("stop", 0)},
		)
		opts.MaxSteps = 1
		makeEngine()

		_, err := eng.RunTurn(context.Background(), engine.Input{Text: "loop forever"})
		Expect(err).NotTo(HaveOccurred())

		var abortText string
		for _, m := range eng.Messages() {
			if m.Role == types.RoleTool && m.Tool != nil && m.Tool.Name == "interrupt" {
				abortText = m.Content
			}
			Expect(m.Content).NotTo(Equal("should never arrive"))
		}
		Expect(abortText).To(Equal("Request aborted by policy (step budget exceeded)."))
	})
})
