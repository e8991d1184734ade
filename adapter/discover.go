package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"
	"go.bug.st/serial/enumerator"
	"golang.org/x/sync/errgroup"
)

// Device is a printer candidate found by a discovery helper. Address is in
// the format the matching adapter's Connect expects.
type Device struct {
	Kind    Kind   `json:"kind" yaml:"kind"`
	Address string `json:"address" yaml:"address"`
	Name    string `json:"name" yaml:"name"`
}

const (
	scanWorkers = 50
	maxScanHost = 1024
)

// ProbeSocket reports whether something accepts TCP connections on ip:port.
func ProbeSocket(ctx context.Context, ip string, port int, timeout time.Duration) bool {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", WithDefaultPort(ip, port))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// DiscoverSocket probes every host of cidr on port. An empty cidr scans the
// /24 of the first non-loopback IPv4 address of this machine.
func DiscoverSocket(ctx context.Context, cidr string, port int, timeout time.Duration) ([]Device, error) {
	if port <= 0 {
		port = DefaultSocketPort
	}
	if cidr == "" {
		ip, err := LocalIPv4()
		if err != nil {
			return nil, err
		}
		cidr = netip.PrefixFrom(ip, 24).Masked().String()
	}
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, fmt.Errorf("parse subnet: %w", err)
	}
	prefix = prefix.Masked()

	var (
		mu    sync.Mutex
		found []Device
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanWorkers)

	n := 0
	for addr := prefix.Addr().Next(); prefix.Contains(addr) && n < maxScanHost; addr = addr.Next() {
		if !prefix.Contains(addr.Next()) && prefix.Bits() < 31 {
			break // broadcast
		}
		n++
		ip := addr.String()
		g.Go(func() error {
			if ProbeSocket(gctx, ip, port, timeout) {
				mu.Lock()
				found = append(found, Device{Kind: KindSocket, Address: WithDefaultPort(ip, port), Name: ip})
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	sort.Slice(found, func(i, j int) bool {
		a, _ := netip.ParseAddrPort(found[i].Address)
		b, _ := netip.ParseAddrPort(found[j].Address)
		return a.Addr().Less(b.Addr())
	})
	return found, ctx.Err()
}

// LocalIPv4 returns the first non-loopback IPv4 address of this machine.
func LocalIPv4() (netip.Addr, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return netip.Addr{}, err
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			addr, _ := netip.AddrFromSlice(ip4)
			return addr, nil
		}
	}
	return netip.Addr{}, errors.New("no local IPv4 address")
}

// DiscoverSerialPorts lists serial ports. Ports that look like Bluetooth
// SPP links are listed first.
func DiscoverSerialPorts() ([]Device, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCapabilityUnavailable, err)
	}

	var bt, other []Device
	for _, p := range ports {
		d := Device{Kind: KindWireless, Address: p.Name, Name: p.Name}
		if p.Product != "" {
			d.Name = p.Product
		}
		if isBluetoothPort(p) {
			bt = append(bt, d)
		} else {
			other = append(other, d)
		}
	}
	return append(bt, other...), nil
}

func isBluetoothPort(p *enumerator.PortDetails) bool {
	name := strings.ToLower(p.Name)
	product := strings.ToLower(p.Product)
	return strings.Contains(name, "rfcomm") ||
		strings.Contains(name, "bluetooth") ||
		strings.Contains(product, "bluetooth")
}

// DiscoverUSB lists printer-class USB devices.
func DiscoverUSB() (devices []Device, err error) {
	defer func() {
		if r := recover(); r != nil {
			devices, err = nil, fmt.Errorf("%w: %v", ErrCapabilityUnavailable, r)
		}
	}()

	ctx := gousb.NewContext()
	defer ctx.Close()

	for _, dev := range FindPrinters(ctx) {
		addr := USBAddress{Vendor: dev.Desc.Vendor, Product: dev.Desc.Product, Serial: serialOf(dev)}
		name, _ := dev.Product()
		if name == "" {
			name = addr.String()
		}
		devices = append(devices, Device{Kind: KindCable, Address: addr.String(), Name: name})
		dev.Close()
	}
	return devices, nil
}
