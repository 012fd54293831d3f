package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mosaic-ai/mosaic/internal/bridge"
	"github.com/mosaic-ai/mosaic/internal/change"
	"github.com/mosaic-ai/mosaic/internal/command"
	"github.com/mosaic-ai/mosaic/internal/config"
	"github.com/mosaic-ai/mosaic/internal/engine"
	"github.com/mosaic-ai/mosaic/internal/event"
	"github.com/mosaic-ai/mosaic/internal/history"
	"github.com/mosaic-ai/mosaic/internal/logging"
	"github.com/mosaic-ai/mosaic/internal/provider"
	"github.com/mosaic-ai/mosaic/internal/tool"
)

var (
	runProvider    string
	runModel       string
	runDir         string
	runAutoApprove bool
)

var runCmd = &cobra.Command{
	Use:   "run [message...]",
	Short: "Start a conversation session",
	Long: `Start a conversation session in the current workspace.

With message arguments a single turn is executed and the process exits.
Without arguments an interactive prompt is opened; slash commands
(/help lists them) and ! shell passthrough work in both modes.`,
	RunE: runSession,
}

func init() {
	runCmd.Flags().StringVarP(&runProvider, "provider", "p", "", "Provider to use (anthropic|openai|ollama)")
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model to use")
	runCmd.Flags().StringVarP(&runDir, "directory", "d", "", "Workspace directory (default: current)")
	runCmd.Flags().BoolVarP(&runAutoApprove, "yes", "y", false, "Auto-approve all tool executions")
}

func runSession(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(runDir)
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return fmt.Errorf("failed to create data directories: %w", err)
	}

	opts, err := config.Load(workDir)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if runProvider != "" {
		opts.Provider = runProvider
	}
	if runModel != "" {
		opts.Model = runModel
	}
	if err := initLogging(opts.LogLevel); err != nil {
		return err
	}
	log := logging.Component("cli")

	ctx := context.Background()
	providers := buildProviders(ctx, opts)
	if len(providers.IDs()) == 0 {
		return fmt.Errorf("no providers available; set ANTHROPIC_API_KEY, OPENAI_API_KEY or run an Ollama server")
	}
	if opts.Provider != "" {
		if err := providers.SetDefault(opts.Provider); err != nil {
			return err
		}
	}

	tools := tool.DefaultRegistry(workDir)
	tracker := change.NewTracker()
	watcher, err := change.NewWatcher(tracker)
	if err != nil {
		return fmt.Errorf("failed to start change watcher: %w", err)
	}
	watcher.Start()
	defer watcher.Stop()

	questions := bridge.NewQuestion()
	tools.Register(tool.NewAskTool(questionAsker{questions}))

	runner := tool.NewRunner(tools, tracker)
	runner.SuppressWrites(watcher)
	gate := bridge.NewGate(!opts.ApprovalsRequired() || runAutoApprove)
	store := history.NewStore(paths.ConversationsPath())
	inputs := history.NewInputHistory(paths.InputHistoryPath())

	commands := command.NewRegistry()
	command.RegisterBuiltins(commands, store)
	if n := command.LoadCustomCommands(commands, paths.CommandsPath()); n > 0 {
		log.Debug().Int("count", n).Msg("loaded custom commands")
	}

	eng := engine.New(opts, engine.Deps{
		Providers: providers,
		Tools:     tools,
		Runner:    runner,
		Gate:      gate,
		Store:     store,
		Commands:  commands,
	})
	review := change.NewReview(tracker, eng.IsProcessing)
	review.SuppressWrites(watcher)

	// Externally edited files must not be silently reverted later.
	unsubChanges := event.Subscribe(event.PendingChangeAdded, func(ev event.Event) {
		if data, ok := ev.Data.(event.PendingChangeAddedData); ok {
			watcher.Track(data.Path)
		}
	})
	defer unsubChanges()

	reader := bufio.NewReader(os.Stdin)
	printer := newPrinter(os.Stdout)
	defer printer.Close()

	// The gate publishes ApprovalRequired synchronously from the turn
	// goroutine, so answering from the subscriber cannot race the turn.
	unsubApprovals := event.Subscribe(event.ApprovalRequired, func(ev event.Event) {
		data, ok := ev.Data.(event.ApprovalRequiredData)
		if !ok {
			return
		}
		answer := promptApproval(reader, data)
		if err := gate.Respond(answer); err != nil {
			log.Warn().Err(err).Msg("approval response had no pending request")
		}
	})
	defer unsubApprovals()

	unsubQuestions := event.Subscribe(event.QuestionRequired, func(ev event.Event) {
		data, ok := ev.Data.(event.QuestionRequiredData)
		if !ok {
			return
		}
		fmt.Printf("\n%s\n", data.Prompt)
		for i, opt := range data.Options {
			fmt.Printf("  %d. %s\n", i+1, opt)
		}
		fmt.Print("answer: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			questions.Cancel()
			return
		}
		if err := questions.Respond(strings.TrimSpace(line)); err != nil {
			log.Warn().Err(err).Msg("question response had no pending request")
		}
	})
	defer unsubQuestions()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			eng.CancelTurn()
		}
	}()

	runTurn := func(text string) {
		result, err := eng.RunTurn(ctx, engine.Input{Text: text})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return
		}
		if result.EnterReview {
			runReview(review, reader)
		}
	}

	if len(args) > 0 {
		runTurn(strings.Join(args, " "))
		return nil
	}

	fmt.Printf("mosaic %s | provider=%s model=%s | /help for commands, ctrl-d to exit\n",
		Version, currentProviderID(providers, opts), opts.Model)

	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return nil
		}
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			return nil
		}
		if err := inputs.Append(text); err != nil {
			log.Debug().Err(err).Msg("failed to persist input history")
		}
		runTurn(text)
	}
}

// buildProviders registers every backend that can be configured.
// Providers missing credentials are skipped, not fatal; readiness of
// the selected one is checked per turn.
func buildProviders(ctx context.Context, opts *config.Options) *provider.Registry {
	log := logging.Component("cli")
	registry := provider.NewRegistry()

	anthropicOpts := opts.ProviderFor("anthropic")
	if p, err := provider.NewAnthropicProvider(ctx, &provider.AnthropicConfig{
		APIKey:  anthropicOpts.APIKey,
		BaseURL: anthropicOpts.BaseURL,
		Model:   opts.Model,
	}); err == nil {
		registry.Register(p)
	} else {
		log.Debug().Err(err).Msg("anthropic provider unavailable")
	}

	openaiOpts := opts.ProviderFor("openai")
	if p, err := provider.NewOpenAIProvider(ctx, &provider.OpenAIConfig{
		APIKey:  openaiOpts.APIKey,
		BaseURL: openaiOpts.BaseURL,
		Model:   opts.Model,
	}); err == nil {
		registry.Register(p)
	} else {
		log.Debug().Err(err).Msg("openai provider unavailable")
	}

	ollamaOpts := opts.ProviderFor("ollama")
	if p, err := provider.NewOllamaProvider(&provider.OllamaConfig{
		Host:  ollamaOpts.BaseURL,
		Model: opts.Model,
	}); err == nil {
		registry.Register(p)
	} else {
		log.Debug().Err(err).Msg("ollama provider unavailable")
	}

	return registry
}

// questionAsker adapts the question bridge to the ask tool.
type questionAsker struct {
	q *bridge.Question
}

func (a questionAsker) Ask(ctx context.Context, prompt string, options []string) (string, error) {
	return a.q.Request(ctx, bridge.QuestionRequest{Prompt: prompt, Options: options})
}

func currentProviderID(registry *provider.Registry, opts *config.Options) string {
	if opts.Provider != "" {
		return opts.Provider
	}
	if p, err := registry.Default(); err == nil {
		return p.ID()
	}
	return "none"
}

func promptApproval(reader *bufio.Reader, req event.ApprovalRequiredData) bridge.Answer {
	fmt.Printf("\n%s wants to run:\n", req.ToolName)
	for k, v := range req.Args {
		fmt.Printf("  %s: %v\n", k, v)
	}
	for {
		fmt.Print("approve? [y]es / [a]lways / [n]o: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return bridge.Reject
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes", "":
			return bridge.AcceptOnce
		case "a", "always":
			return bridge.AcceptAlways
		case "n", "no":
			return bridge.Reject
		}
	}
}

// runReview walks the pending changes one at a time until the queue is
// empty or the user quits. Quitting keeps the remaining changes pending.
func runReview(review *change.Review, reader *bufio.Reader) {
	current, err := review.Start()
	if err != nil {
		fmt.Println(err)
		return
	}
	for {
		fmt.Println(change.Preview(current))
		fmt.Print("[k]eep / [r]evert / [a]ccept all / [q]uit: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "r", "revert":
			next, ok, err := review.Revert()
			if err != nil {
				fmt.Printf("revert failed: %v\n", err)
			}
			if !ok {
				fmt.Println("Review complete.")
				return
			}
			current = next
		case "a", "accept":
			n := review.AcceptAll()
			fmt.Printf("Accepted %d remaining changes.\n", n)
			return
		case "q", "quit":
			return
		default:
			next, ok := review.Keep()
			if !ok {
				fmt.Println("Review complete.")
				return
			}
			current = next
		}
	}
}
