package supervisor

import (
	"context"
	"net"
	"strconv"
	"time"
)

// Prober measures the round-trip time to a server.
type Prober interface {
	Probe(ctx context.Context, host string, port int) (time.Duration, error)
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(ctx context.Context, host string, port int) (time.Duration, error)

func (f ProbeFunc) Probe(ctx context.Context, host string, port int) (time.Duration, error) {
	return f(ctx, host, port)
}

// TCPProber times a bare TCP handshake.
type TCPProber struct {
	Timeout time.Duration
}

func (p TCPProber) Probe(ctx context.Context, host string, port int) (time.Duration, error) {
	d := net.Dialer{Timeout: p.Timeout}
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return 0, err
	}
	rtt := time.Since(start)
	_ = conn.Close()
	return rtt, nil
}
