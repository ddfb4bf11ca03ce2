package notification

import (
	"fmt"
	"os/exec"
)

func show(title, message string) error {
	script := fmt.Sprintf("display notification %s with title %s", appleQuote(message), appleQuote(title))
	return exec.Command("osascript", "-e", script).Run()
}

func showAlert(title, message string) error {
	script := fmt.Sprintf("display alert %s message %s as critical", appleQuote(title), appleQuote(message))
	return exec.Command("osascript", "-e", script).Run()
}
