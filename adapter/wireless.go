package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

const (
	DefaultBaudRate          = 9600
	DefaultReconnectAttempts = 3
	DefaultReconnectBackoff  = 2 * time.Second
)

// WirelessConfig configures the Bluetooth serial transport.
type WirelessConfig struct {
	BaudRate          int
	ReconnectAttempts int
	ReconnectBackoff  time.Duration
	ConnectTimeout    time.Duration
}

// WirelessAdapter prints to a paired Bluetooth printer through its serial
// port profile device, e.g. /dev/rfcomm0 or COM5. Pairing and binding the
// port happen outside this process.
//
// A failed send triggers the reconnect policy: the port is reopened and the
// data resent, up to ReconnectAttempts times with ReconnectBackoff between
// attempts.
type WirelessAdapter struct {
	*stream
	cfg   WirelessConfig
	probe *Probe
	sleep func(ctx context.Context, d time.Duration) error
}

func NewWirelessAdapter(cfg WirelessConfig, log *zap.Logger) *WirelessAdapter {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReconnectAttempts < 0 {
		cfg.ReconnectAttempts = 0
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = DefaultReconnectBackoff
	}
	a := &WirelessAdapter{
		cfg: cfg,
		probe: NewProbe(func() bool {
			_, err := serial.GetPortsList()
			return err == nil
		}),
		sleep: sleepContext,
	}
	a.stream = newStream(KindWireless, a.openPort, cfg.ConnectTimeout, log)
	return a
}

// Available reports whether the serial subsystem can enumerate ports.
func (a *WirelessAdapter) Available() bool {
	return a.probe.Available()
}

func (a *WirelessAdapter) openPort(_ context.Context, address string) (io.WriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: a.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(address, mode)
	if err != nil {
		var perr *serial.PortError
		if errors.As(err, &perr) && perr.Code() == serial.PermissionDenied {
			return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
		return nil, err
	}
	return port, nil
}

// Send writes data, reconnecting and retrying when the link has dropped.
// When every reconnect fails the session is cleared and the error wraps
// ErrReconnectExhausted. Disconnect aborts the reconnect loop.
func (a *WirelessAdapter) Send(ctx context.Context, data []byte) error {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	sess, ctx, release := a.acquire(ctx)
	defer release()

	err := a.write(ctx, sess, data)
	if err == nil || sess == nil || ctx.Err() != nil {
		return err
	}

	for attempt := 1; attempt <= a.cfg.ReconnectAttempts; attempt++ {
		a.log.Warn("send failed, reconnecting",
			zap.String("address", sess.address),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if serr := a.sleep(ctx, a.cfg.ReconnectBackoff); serr != nil {
			err = serr
			break
		}
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}

		if derr := a.redial(ctx, sess); derr != nil {
			err = derr
			if errors.Is(derr, ErrNotConnected) {
				break
			}
			continue
		}
		if err = a.write(ctx, sess, data); err == nil {
			a.log.Info("resent after reconnect", zap.Int("attempt", attempt))
			return nil
		}
	}

	if sess.ctx.Err() != nil {
		// disconnected while we were retrying
		return &TransmissionError{Kind: a.kind, Err: ErrNotConnected}
	}
	a.drop(sess)
	return &TransmissionError{Kind: a.kind, Err: fmt.Errorf("%w: %w", ErrReconnectExhausted, err)}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
