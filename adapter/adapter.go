package adapter

import (
	"context"
	"fmt"
	"time"
)

// Kind identifies a transport family.
type Kind string

const (
	// KindWireless is a Bluetooth SPP printer exposed as a serial port.
	KindWireless Kind = "wireless"
	// KindCable is a USB printer-class device.
	KindCable Kind = "cable"
	// KindSocket is a network printer listening on a raw TCP port.
	KindSocket Kind = "socket"
)

// Kinds lists every supported transport.
var Kinds = []Kind{KindWireless, KindCable, KindSocket}

// ParseKind validates s as a transport kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: connection kind %q", ErrUnsupported, s)
}

// DefaultConnectTimeout bounds a connect attempt when none is configured.
const DefaultConnectTimeout = 5 * time.Second

// Adapter defines the interface for printer transports
type Adapter interface {
	// Kind reports the transport family
	Kind() Kind

	// Available reports whether the platform supports this transport.
	// The answer is computed once and memoized.
	Available() bool

	// Connect opens a session to address, replacing any existing session
	Connect(ctx context.Context, address string) error

	// Disconnect tears the session down; it is safe to call when idle
	Disconnect() error

	// Send writes a complete command stream to the printer
	Send(ctx context.Context, data []byte) error

	// IsConnected returns whether a session is open
	IsConnected() bool
}
