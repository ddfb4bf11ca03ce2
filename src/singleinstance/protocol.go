package singleinstance

import (
	"strings"
)

const (
	residentHost = "127.0.0.1"
	pingRequest  = "PING\n"
	pongResponse = "PONG gemini-vision\n"

	modeStdout    = "STDOUT"
	modeClipboard = "CLIPBOARD"
	statusSuccess = "SUCCESS\n"
	statusError   = "ERROR\n"
)

// encodeRequest renders req as a single line: the mode, optionally
// followed by a space and the prompt with line breaks flattened.
func encodeRequest(req Request) string {
	mode := modeClipboard
	if req.OutputToStdout {
		mode = modeStdout
	}
	prompt := strings.TrimSpace(strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(req.Prompt))
	if prompt == "" {
		return mode + "\n"
	}
	return mode + " " + prompt + "\n"
}

// decodeRequest parses a request line. Unknown modes are treated as CLIPBOARD.
func decodeRequest(line string) Request {
	line = strings.TrimRight(line, "\r\n")
	mode, prompt, _ := strings.Cut(line, " ")
	return Request{
		OutputToStdout: mode == modeStdout,
		Prompt:         strings.TrimSpace(prompt),
	}
}
