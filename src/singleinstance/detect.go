package singleinstance

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"time"
)

const probeTimeout = 300 * time.Millisecond

// DetectResidentPort reports the first port in r where a gemini-vision
// resident answers PING.
func DetectResidentPort(ctx context.Context, r PortRange) (int, bool) {
	return scan(ctx, r, probeTimeout)
}

// scan probes each port of r in order. timeout bounds each probe and is
// shortened to fit ctx's deadline.
func scan(ctx context.Context, r PortRange, timeout time.Duration) (int, bool) {
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left > 0 && left < timeout {
			timeout = left
		}
	}
	start, end := r.resolve()
	for port := start; port <= end; port++ {
		if ctx.Err() != nil {
			return 0, false
		}
		if probe(ctx, residentAddr(port), timeout) {
			return port, true
		}
	}
	return 0, false
}

// probe sends PING to addr and checks that the answer identifies a
// gemini-vision resident rather than some other local service.
func probe(ctx context.Context, addr string, timeout time.Duration) bool {
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(dctx, "tcp", addr)
	if err != nil {
		return false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	if _, err := conn.Write([]byte(pingRequest)); err != nil {
		return false
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	return err == nil && line == pongResponse
}

func residentAddr(port int) string {
	return net.JoinHostPort(residentHost, strconv.Itoa(port))
}
