//go:build windows

package notification

import "golang.org/x/sys/windows"

func messageBox(title, message string, flags uint32) error {
	t, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return err
	}
	m, err := windows.UTF16PtrFromString(message)
	if err != nil {
		return err
	}
	_, err = windows.MessageBox(0, m, t, flags)
	return err
}

func show(title, message string) error {
	return messageBox(title, message, windows.MB_OK|windows.MB_ICONINFORMATION|windows.MB_SETFOREGROUND)
}

func showAlert(title, message string) error {
	return messageBox(title, message, windows.MB_OK|windows.MB_ICONERROR|windows.MB_SYSTEMMODAL)
}
