package adapter

import (
	"context"
	"io"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// DefaultSocketPort is the raw printing port used by network receipt
// printers.
const DefaultSocketPort = 9100

// SocketConfig configures the IP socket transport.
type SocketConfig struct {
	DefaultPort    int
	ConnectTimeout time.Duration
}

// SocketAdapter prints over a raw TCP connection. Addresses are "host" or
// "host:port".
type SocketAdapter struct {
	*stream
	port int
}

func NewSocketAdapter(cfg SocketConfig, log *zap.Logger) *SocketAdapter {
	port := cfg.DefaultPort
	if port <= 0 {
		port = DefaultSocketPort
	}
	a := &SocketAdapter{port: port}
	a.stream = newStream(KindSocket, a.dial, cfg.ConnectTimeout, log)
	return a
}

// Available is always true: TCP needs no optional platform support.
func (a *SocketAdapter) Available() bool { return true }

func (a *SocketAdapter) dial(ctx context.Context, address string) (io.WriteCloser, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", WithDefaultPort(address, a.port))
}

// WithDefaultPort appends port to address when it has none.
func WithDefaultPort(address string, port int) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, strconv.Itoa(port))
}
