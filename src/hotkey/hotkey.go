package hotkey

import (
	"fmt"
	"log"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
)

var (
	startOnce sync.Once
	running   bool
	mu        sync.Mutex
)

// Listen registers hotkeyConfig (for example "Cmd+Shift+S") and invokes
// callback on every key-down of the full combination. The gohook event
// loop is started on first use and runs until Stop.
func Listen(hotkeyConfig string, callback func()) error {
	keys, err := Parse(hotkeyConfig)
	if err != nil {
		return err
	}
	log.Printf("hotkey: parsed %q as %v", hotkeyConfig, keys)

	gohook.Register(gohook.KeyDown, keys, func(e gohook.Event) {
		log.Printf("hotkey: %s activated", hotkeyConfig)
		if callback != nil {
			callback()
		}
	})

	startOnce.Do(func() {
		mu.Lock()
		running = true
		mu.Unlock()
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("hotkey: PANIC in event loop: %v", r)
				}
			}()
			evChan := gohook.Start()
			if evChan == nil {
				log.Printf("hotkey: gohook.Start() returned nil channel")
				return
			}
			<-gohook.Process(evChan)
			log.Printf("hotkey: event loop ended")
		}()
	})
	return nil
}

// Stop ends the gohook event loop.
func Stop() {
	mu.Lock()
	defer mu.Unlock()
	if running {
		gohook.End()
		running = false
	}
}

// Parse converts a combo like "Ctrl+Alt+q" to gohook key names with the
// non-modifier key first, the order gohook's Register expects.
func Parse(hotkeyConfig string) ([]string, error) {
	keys := parseHotkey(hotkeyConfig)
	if len(keys) == 0 {
		return nil, fmt.Errorf("empty hotkey")
	}

	var mods []string
	var main string
	seen := map[string]bool{}
	for _, k := range keys {
		if !validKey(k) {
			return nil, fmt.Errorf("unknown key %q in hotkey %q", k, hotkeyConfig)
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		if isModifier(k) {
			mods = append(mods, k)
			continue
		}
		if main != "" {
			return nil, fmt.Errorf("hotkey %q has more than one non-modifier key", hotkeyConfig)
		}
		main = k
	}
	if main == "" {
		return nil, fmt.Errorf("hotkey %q has no non-modifier key", hotkeyConfig)
	}
	return append([]string{main}, mods...), nil
}

// parseHotkey converts a hotkey string like "Ctrl+Alt+q" to normalized key names
func parseHotkey(hotkeyConfig string) []string {
	var keys []string
	for _, part := range strings.Split(strings.ToLower(hotkeyConfig), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "ctrl", "control":
			keys = append(keys, "ctrl")
		case "alt", "option", "opt":
			keys = append(keys, "alt")
		case "shift":
			keys = append(keys, "shift")
		case "win", "cmd", "command", "super", "meta":
			keys = append(keys, "cmd")
		case "return":
			keys = append(keys, "enter")
		case "escape":
			keys = append(keys, "esc")
		default:
			keys = append(keys, part)
		}
	}
	return keys
}

func isModifier(k string) bool {
	switch k {
	case "ctrl", "alt", "shift", "cmd":
		return true
	}
	return false
}

var namedKeys = map[string]bool{
	"space": true, "enter": true, "esc": true, "tab": true,
	"backspace": true, "delete": true, "insert": true,
	"home": true, "end": true, "pageup": true, "pagedown": true,
	"left": true, "up": true, "right": true, "down": true,
}

func validKey(k string) bool {
	if isModifier(k) || namedKeys[k] {
		return true
	}
	if len(k) == 1 && ((k[0] >= 'a' && k[0] <= 'z') || (k[0] >= '0' && k[0] <= '9')) {
		return true
	}
	var n int
	if _, err := fmt.Sscanf(k, "f%d", &n); err == nil && fmt.Sprintf("f%d", n) == k {
		return n >= 1 && n <= 24
	}
	return false
}
