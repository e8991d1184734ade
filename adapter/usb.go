package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"
)

// USBConfig configures the cable transport.
type USBConfig struct {
	ConnectTimeout time.Duration
}

// USBAdapter prints to a USB printer-class device. Addresses are
// "vid:pid" or "vid:pid:serial" in hex, or empty for the first printer
// found on the bus.
type USBAdapter struct {
	*stream
	probe *Probe
}

func NewUSBAdapter(cfg USBConfig, log *zap.Logger) *USBAdapter {
	a := &USBAdapter{
		probe: NewProbe(func() bool {
			// NewContext panics when libusb cannot be initialised.
			ctx := gousb.NewContext()
			return ctx.Close() == nil
		}),
	}
	a.stream = newStream(KindCable, a.openDevice, cfg.ConnectTimeout, log)
	return a
}

// Available reports whether libusb could be initialised.
func (a *USBAdapter) Available() bool {
	return a.probe.Available()
}

// USBAddress identifies a device on the bus.
type USBAddress struct {
	Vendor  gousb.ID
	Product gousb.ID
	Serial  string
}

func (u USBAddress) String() string {
	s := fmt.Sprintf("%s:%s", u.Vendor, u.Product)
	if u.Serial != "" {
		s += ":" + u.Serial
	}
	return s
}

// ParseUSBAddress parses "vid:pid[:serial]" with hex ids.
func ParseUSBAddress(address string) (USBAddress, error) {
	parts := strings.SplitN(address, ":", 3)
	if len(parts) < 2 {
		return USBAddress{}, fmt.Errorf("invalid usb address %q", address)
	}
	vid, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return USBAddress{}, fmt.Errorf("invalid vendor id in %q: %w", address, err)
	}
	pid, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return USBAddress{}, fmt.Errorf("invalid product id in %q: %w", address, err)
	}
	u := USBAddress{Vendor: gousb.ID(vid), Product: gousb.ID(pid)}
	if len(parts) == 3 {
		u.Serial = parts[2]
	}
	return u, nil
}

// usbSession owns everything claimed for one open printer.
type usbSession struct {
	ctx   *gousb.Context
	dev   *gousb.Device
	cfg   *gousb.Config
	iface *gousb.Interface
	out   *gousb.OutEndpoint
}

func (s *usbSession) Write(data []byte) (int, error) {
	n, err := s.out.Write(data)
	if err != nil {
		return n, fmt.Errorf("write failed: %w", err)
	}
	return n, nil
}

func (s *usbSession) Close() error {
	var errs []error
	if s.iface != nil {
		s.iface.Close()
	}
	if s.cfg != nil {
		errs = append(errs, s.cfg.Close())
	}
	if s.dev != nil {
		errs = append(errs, s.dev.Close())
	}
	if s.ctx != nil {
		errs = append(errs, s.ctx.Close())
	}
	return errors.Join(errs...)
}

func (a *USBAdapter) openDevice(_ context.Context, address string) (conn io.WriteCloser, err error) {
	if !a.Available() {
		return nil, ErrCapabilityUnavailable
	}

	s := &usbSession{ctx: gousb.NewContext()}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if address == "" {
		printers := FindPrinters(s.ctx)
		if len(printers) == 0 {
			return nil, errors.New("cannot find printer")
		}
		s.dev = printers[0]
		for _, p := range printers[1:] {
			p.Close()
		}
	} else {
		addr, err := ParseUSBAddress(address)
		if err != nil {
			return nil, err
		}
		if s.dev, err = openByAddress(s.ctx, addr); err != nil {
			return nil, err
		}
	}

	if err := s.claim(); err != nil {
		return nil, err
	}
	return s, nil
}

// claim finds the printer interface and its bulk out endpoint.
func (s *usbSession) claim() error {
	// Set auto-detach kernel driver on Linux
	if runtime.GOOS == "linux" {
		s.dev.SetAutoDetach(true)
	}

	cfgNum, err := s.dev.ActiveConfigNum()
	if err != nil {
		return usbError("get active config", err)
	}
	s.cfg, err = s.dev.Config(cfgNum)
	if err != nil {
		return usbError("get config", err)
	}

	ifaceNum := -1
	for _, iface := range s.cfg.Desc.Interfaces {
		for _, alt := range iface.AltSettings {
			if alt.Class == gousb.ClassPrinter {
				ifaceNum = iface.Number
				break
			}
		}
		if ifaceNum >= 0 {
			break
		}
	}
	if ifaceNum < 0 {
		return errors.New("no printer interface found")
	}

	s.iface, err = s.cfg.Interface(ifaceNum, 0)
	if err != nil {
		return usbError("claim interface", err)
	}

	for _, ep := range s.iface.Setting.Endpoints {
		if ep.Direction == gousb.EndpointDirectionOut {
			if s.out, err = s.iface.OutEndpoint(ep.Number); err == nil {
				break
			}
		}
	}
	if s.out == nil {
		return errors.New("cannot find output endpoint from printer")
	}
	return nil
}

func usbError(op string, err error) error {
	if errors.Is(err, gousb.ErrorAccess) {
		return fmt.Errorf("%s: %w: %w", op, ErrPermissionDenied, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func openByAddress(ctx *gousb.Context, addr USBAddress) (*gousb.Device, error) {
	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == addr.Vendor && desc.Product == addr.Product
	})
	if err != nil && len(devices) == 0 {
		return nil, usbError("open devices", err)
	}

	var found *gousb.Device
	for _, dev := range devices {
		if found == nil && (addr.Serial == "" || serialOf(dev) == addr.Serial) {
			found = dev
			continue
		}
		dev.Close()
	}
	if found == nil {
		return nil, fmt.Errorf("device %s not found", addr)
	}
	return found, nil
}

func serialOf(dev *gousb.Device) string {
	s, err := dev.SerialNumber()
	if err != nil {
		return ""
	}
	return s
}

// IsPrinter checks if a device exposes a printer-class interface
func IsPrinter(dev *gousb.Device) bool {
	return dev != nil && isPrinterDesc(dev.Desc)
}

func isPrinterDesc(desc *gousb.DeviceDesc) bool {
	if desc == nil {
		return false
	}
	for _, cfg := range desc.Configs {
		for _, iface := range cfg.Interfaces {
			for _, alt := range iface.AltSettings {
				if alt.Class == gousb.ClassPrinter {
					return true
				}
			}
		}
	}
	return false
}

// FindPrinters opens every printer-class device on the bus. Callers own
// the returned devices.
func FindPrinters(ctx *gousb.Context) []*gousb.Device {
	printers, _ := ctx.OpenDevices(isPrinterDesc)
	return printers
}
