package commands

import (
	"fmt"
	"io"

	"github.com/mosaic-ai/mosaic/internal/event"
	"github.com/mosaic-ai/mosaic/pkg/types"
)

// printer renders bus events to the terminal. Text deltas and message
// events are published synchronously from the turn goroutine, so writes
// arrive in order without extra locking.
type printer struct {
	w      io.Writer
	unsubs []func()

	// streaming is set while assistant text deltas are being printed, so
	// the next non-delta line starts on a fresh line.
	streaming bool
}

func newPrinter(w io.Writer) *printer {
	p := &printer{w: w}
	p.unsubs = append(p.unsubs,
		event.Subscribe(event.TextDelta, p.onTextDelta),
		event.Subscribe(event.MessageAppended, p.onMessage),
		event.Subscribe(event.MessageUpdated, p.onMessage),
		event.Subscribe(event.RunningToolStarted, p.onRunningTool),
		event.Subscribe(event.Compacted, p.onCompacted),
		event.Subscribe(event.Notice, p.onNotice),
		event.Subscribe(event.TurnFinished, p.onTurnFinished),
	)
	return p
}

func (p *printer) Close() {
	for _, unsub := range p.unsubs {
		unsub()
	}
}

func (p *printer) breakLine() {
	if p.streaming {
		fmt.Fprintln(p.w)
		p.streaming = false
	}
}

func (p *printer) onTextDelta(ev event.Event) {
	if data, ok := ev.Data.(event.TextDeltaData); ok {
		fmt.Fprint(p.w, data.Delta)
		p.streaming = true
	}
}

func (p *printer) onMessage(ev event.Event) {
	var msg *types.Message
	switch data := ev.Data.(type) {
	case event.MessageAppendedData:
		msg = data.Message
	case event.MessageUpdatedData:
		msg = data.Message
	default:
		return
	}
	if msg == nil {
		return
	}

	switch msg.Role {
	case types.RoleSlash:
		p.breakLine()
		fmt.Fprintln(p.w, msg.Content)
	case types.RoleError:
		p.breakLine()
		fmt.Fprintf(p.w, "error: %s\n", msg.Content)
	case types.RoleTool:
		if msg.Tool == nil || msg.Tool.Running {
			return
		}
		p.breakLine()
		if msg.Tool.Result != nil && !msg.Tool.Result.Success {
			fmt.Fprintf(p.w, "[%s] failed: %s\n", msg.Tool.Name, msg.Tool.Result.Error)
		} else {
			fmt.Fprintf(p.w, "[%s] done\n", msg.Tool.Name)
		}
	}
}

func (p *printer) onRunningTool(ev event.Event) {
	if data, ok := ev.Data.(event.RunningToolStartedData); ok {
		p.breakLine()
		fmt.Fprintf(p.w, "[%s] running...\n", data.ToolName)
	}
}

func (p *printer) onCompacted(ev event.Event) {
	if data, ok := ev.Data.(event.CompactedData); ok {
		p.breakLine()
		fmt.Fprintf(p.w, "(compacted: %d -> %d tokens)\n", data.TokensBefore, data.TokensAfter)
	}
}

func (p *printer) onNotice(ev event.Event) {
	if data, ok := ev.Data.(event.NoticeData); ok {
		p.breakLine()
		fmt.Fprintln(p.w, data.Text)
	}
}

func (p *printer) onTurnFinished(ev event.Event) {
	p.breakLine()
}
