package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/recinq/reduceai/internal/event"
	"github.com/recinq/reduceai/internal/llm"
)

// buildInvoker returns the Invoker the run/trigger commands call through,
// plus a cleanup func the caller must defer. --mock substitutes an
// in-memory stub; otherwise the Anthropic-backed session pool is used,
// and its absence is a dedicated exit-3 failure (spec §6.5).
func buildInvoker(cmd *cobra.Command) (llm.Invoker, func(), error) {
	mock, _ := cmd.Flags().GetBool("mock")
	if mock {
		return llm.NewMock(llm.WithSequence("mocked response")), func() {}, nil
	}

	if !llm.IsAnthropicConfigured() {
		return nil, nil, NewExitCodeError(ExitLLMUnavailable,
			fmt.Errorf("ANTHROPIC_API_KEY is not set; pass --mock to run without a live backend"))
	}

	pool := llm.NewPool(llm.DefaultPoolConfig(), llm.NewAnthropicFactory(llm.ClientConfig{}))
	return pool, pool.Cleanup, nil
}

// buildEmitter picks the NDJSON emitter for piped output, or the
// colourised human-readable variant for an interactive terminal
// (--output overrides the auto-detection).
func buildEmitter(cmd *cobra.Command) event.EventEmitter {
	format, _ := cmd.Flags().GetString("output")
	switch format {
	case "json":
		return event.NewNDJSONEmitter()
	case "text":
		return event.NewNDJSONEmitterWithHumanReadable()
	default:
		if isInteractive() {
			return event.NewNDJSONEmitterWithHumanReadable()
		}
		return event.NewNDJSONEmitter()
	}
}

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
