package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"time"
)

type tcpClient struct {
	ports PortRange
}

const dialTimeout = 2 * time.Second

func (c *tcpClient) TryRunOnce(ctx context.Context, req Request) (bool, string, error) {
	port, ok := scan(ctx, c.ports, dialTimeout)
	if !ok {
		return false, "", nil
	}
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	var d net.Dialer
	conn, err := d.DialContext(dctx, "tcp", residentAddr(port))
	cancel()
	if err != nil {
		// The resident went away between the probe and the request.
		return false, "", nil
	}
	text, err := exchange(ctx, conn, req)
	return true, text, err
}

// exchange sends req on conn and waits for the resident's answer. The
// connection is closed when ctx ends so a stuck resident cannot hang us.
func exchange(ctx context.Context, conn net.Conn, req Request) (string, error) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(encodeRequest(req)); err != nil {
		return "", err
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	body, _ := io.ReadAll(br)
	switch status {
	case statusSuccess:
		return string(body), nil
	case statusError:
		return "", errors.New(string(body))
	default:
		return "", errors.New("singleinstance: unexpected response " + strconv.Quote(status))
	}
}
