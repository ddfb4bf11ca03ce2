// Package notification shows desktop notifications for the resident process.
package notification

import (
	"fmt"
	"log"
	"os"
	"strings"

	"gemini-vision/src/logutil"
)

// maxMessageRunes bounds the text shown in a notification bubble.
const maxMessageRunes = 200

// Show posts a notification without blocking the caller.
func Show(title, message string) {
	message = truncate(message, maxMessageRunes)
	go func() {
		if err := show(title, message); err != nil {
			log.Printf("notification: %v (%s: %s)", err, title, logutil.SanitizeForLog(message))
		}
	}()
}

// ShowBlockingError reports an error the user has to see before the process
// exits. It falls back to stderr when no dialog can be shown.
func ShowBlockingError(title, message string) {
	if err := showAlert(title, message); err != nil {
		log.Printf("notification: alert failed: %v", err)
		fmt.Fprintf(os.Stderr, "%s: %s\n", title, message)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// appleQuote renders s as an AppleScript string literal.
func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
