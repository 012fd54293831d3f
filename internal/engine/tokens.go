package engine

import "github.com/mosaic-ai/mosaic/internal/provider"

// estimateTokens approximates a token count at four characters per
// token. Estimates stand in until the provider reports authoritative
// usage on finish.
func estimateTokens(text string) int {
	return len(text) / 4
}

// estimateOutbound sums the estimate over an outbound message list.
func estimateOutbound(msgs []provider.ChatMessage) int {
	total := 0
	for _, m := range msgs {
		total += estimateTokens(m.Text)
	}
	return total
}
