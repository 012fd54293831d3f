package provider

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ollama/ollama/api"

	"github.com/mosaic-ai/mosaic/internal/logging"
)

// Verdict is the outcome of a readiness probe.
type Verdict struct {
	Ready bool
	Err   string
}

// ollamaStartupTimeout bounds how long a freshly spawned server may take
// to answer its first list request.
const ollamaStartupTimeout = 20 * time.Second

// ensureOllamaReady pings the server, spawning `ollama serve` and
// polling with exponential backoff when the first ping fails. A ready
// server must also have the requested model pulled.
func ensureOllamaReady(ctx context.Context, client *api.Client, host, modelID string) Verdict {
	log := logging.Component("ollama")

	if _, err := client.List(ctx); err != nil {
		log.Info().Str("host", host).Msg("ollama server not responding, spawning ollama serve")
		cmd := exec.Command("ollama", "serve")
		if err := cmd.Start(); err != nil {
			return Verdict{Err: "ollama server unreachable at " + host + " and could not be started: " + err.Error()}
		}
		go func() {
			_ = cmd.Wait()
		}()

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 200 * time.Millisecond
		b.MaxElapsedTime = ollamaStartupTimeout
		err := backoff.Retry(func() error {
			_, err := client.List(ctx)
			return err
		}, backoff.WithContext(b, ctx))
		if err != nil {
			return Verdict{Err: "ollama server did not become ready at " + host + ": " + err.Error()}
		}
	}

	if modelID == "" {
		return Verdict{Ready: true}
	}
	resp, err := client.List(ctx)
	if err != nil {
		return Verdict{Err: "ollama list failed: " + err.Error()}
	}
	for _, m := range resp.Models {
		if m.Name == modelID || strings.TrimSuffix(m.Name, ":latest") == modelID {
			return Verdict{Ready: true}
		}
	}
	return Verdict{Err: "model " + modelID + " not pulled (run: ollama pull " + modelID + ")"}
}
