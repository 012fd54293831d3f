// Package engine drives user turns against a streaming provider: it
// owns the conversation state, multiplexes the normalized event stream
// into messages and UI events, gates tool execution behind the approval
// bridge, and keeps the context bounded through compaction.
package engine

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/mosaic-ai/mosaic/pkg/types"
)

// Conversation is the live message list plus its token accounting. It
// is owned by the engine and mutated only while a turn holds the
// processing flag.
type Conversation struct {
	ID        string
	CreatedAt int64
	Title     string
	Messages  []types.Message

	// Tokens is the estimated breakdown; TotalTokens is replaced by the
	// provider's authoritative count at the end of a turn.
	Tokens      types.TokenBreakdown
	TotalTokens int

	lastTime int64
}

// NewConversationID returns a lazily assigned conversation id in the
// persisted "<unixMillis>-<random>" form.
func NewConversationID() string {
	var suffix [4]byte
	_, _ = rand.Read(suffix[:])
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), hex.EncodeToString(suffix[:]))
}

// nextTime returns a millisecond timestamp strictly greater than any
// previously issued one, keeping step timestamps monotone.
func (c *Conversation) nextTime() int64 {
	now := time.Now().UnixMilli()
	if now <= c.lastTime {
		now = c.lastTime + 1
	}
	c.lastTime = now
	return now
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
