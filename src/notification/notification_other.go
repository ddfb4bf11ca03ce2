//go:build !darwin && !windows

package notification

import (
	"errors"
	"os/exec"
)

var errNoNotifier = errors.New("notify-send not found")

func show(title, message string) error {
	path, err := exec.LookPath("notify-send")
	if err != nil {
		return errNoNotifier
	}
	return exec.Command(path, "--app-name=gemini-vision", title, message).Run()
}

func showAlert(title, message string) error {
	path, err := exec.LookPath("notify-send")
	if err != nil {
		return errNoNotifier
	}
	return exec.Command(path, "--urgency=critical", "--app-name=gemini-vision", title, message).Run()
}
