package singleinstance

import (
	"os"
	"strconv"
)

const (
	defaultPortStart = 49500
	defaultPortEnd   = 49550
)

// resolve fills an unset range from the environment and clamps it to
// [1024, 65535].
func (r PortRange) resolve() (int, int) {
	start, end := r.Start, r.End
	if start == 0 && end == 0 {
		start, end = envPortRange()
	}
	if start < 1024 {
		start = 1024
	}
	if end > 65535 {
		end = 65535
	}
	if end < start {
		start, end = end, start
	}
	return start, end
}

// envPortRange reads SINGLEINSTANCE_PORT_START and SINGLEINSTANCE_PORT_END
// (integers, inclusive), falling back to defaults when unset or invalid.
func envPortRange() (int, int) {
	start := defaultPortStart
	end := defaultPortEnd
	if v := os.Getenv("SINGLEINSTANCE_PORT_START"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			start = n
		}
	}
	if v := os.Getenv("SINGLEINSTANCE_PORT_END"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			end = n
		}
	}
	return start, end
}

// String formats the effective range for logging.
func (r PortRange) String() string {
	s, e := r.resolve()
	return strconv.Itoa(s) + "-" + strconv.Itoa(e)
}
