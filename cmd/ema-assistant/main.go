// Command ema-assistant is a push-to-talk terminal client for the Google
// Assistant.
//
// Usage:
//
//	ema-assistant [flags]
//
// Keys:
//
//	space  talk
//	t      type a query
//	s      stop the conversation
//	h      toggle HTML screen output
//	q      quit
//
// Configuration is read from ~/.ema-assistant/config.yaml, EMA_ASSISTANT_*
// environment variables and flags, in increasing order of precedence.
package main

import (
	"fmt"
	"os"

	"github.com/koscakluka/ema-assistant/cmd/ema-assistant/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
