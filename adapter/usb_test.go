package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// usbContext skips the test when libusb is not usable on this machine.
func usbContext(t *testing.T) *gousb.Context {
	t.Helper()
	if !NewUSBAdapter(USBConfig{}, nil).Available() {
		t.Skip("libusb not available, skipping test")
	}
	ctx := gousb.NewContext()
	t.Cleanup(func() { ctx.Close() })
	return ctx
}

func TestParseUSBAddress(t *testing.T) {
	testCases := []struct {
		in   string
		want USBAddress
	}{
		{"04b8:0202", USBAddress{Vendor: 0x04b8, Product: 0x0202}},
		{"0519:0001:A1B2C3", USBAddress{Vendor: 0x0519, Product: 0x0001, Serial: "A1B2C3"}},
		{"0fe6:811e:SN:7", USBAddress{Vendor: 0x0fe6, Product: 0x811e, Serial: "SN:7"}},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseUSBAddress(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.in, got.String())
		})
	}

	for _, bad := range []string{"", "04b8", "zzzz:0202", "04b8:12345"} {
		_, err := ParseUSBAddress(bad)
		assert.Error(t, err, bad)
	}
}

func TestIsPrinter(t *testing.T) {
	t.Run("NilDevice", func(t *testing.T) {
		assert.False(t, IsPrinter(nil))
	})

	t.Run("Descriptor", func(t *testing.T) {
		printer := &gousb.DeviceDesc{Configs: map[int]gousb.ConfigDesc{
			1: {Interfaces: []gousb.InterfaceDesc{{
				AltSettings: []gousb.InterfaceSetting{{Class: gousb.ClassPrinter}},
			}}},
		}}
		hid := &gousb.DeviceDesc{Configs: map[int]gousb.ConfigDesc{
			1: {Interfaces: []gousb.InterfaceDesc{{
				AltSettings: []gousb.InterfaceSetting{{Class: gousb.ClassHID}},
			}}},
		}}
		assert.True(t, isPrinterDesc(printer))
		assert.False(t, isPrinterDesc(hid))
		assert.False(t, isPrinterDesc(nil))
	})

	t.Run("RealDevice", func(t *testing.T) {
		ctx := usbContext(t)

		devices := FindPrinters(ctx)
		if len(devices) == 0 {
			t.Skip("No USB printers found")
		}
		for _, dev := range devices {
			defer dev.Close()
			assert.True(t, IsPrinter(dev))
		}
	})
}

func TestUSBAdapterUnknownDevice(t *testing.T) {
	usbContext(t)

	a := NewUSBAdapter(USBConfig{ConnectTimeout: 2 * time.Second}, nil)
	err := a.Connect(context.Background(), "ffff:ffff")
	require.Error(t, err)

	var cerr *ConnectionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindCable, cerr.Kind)
	assert.Contains(t, err.Error(), "not found")
	assert.False(t, a.IsConnected())
}

func TestUSBAdapterConnectSend(t *testing.T) {
	usbContext(t)

	devices, err := DiscoverUSB()
	if err != nil || len(devices) == 0 {
		t.Skip("No USB printer found, skipping test")
	}

	a := NewUSBAdapter(USBConfig{}, nil)
	assert.False(t, a.IsConnected())

	require.NoError(t, a.Connect(context.Background(), devices[0].Address))
	assert.True(t, a.IsConnected())

	// ESC @ (Initialize printer)
	assert.NoError(t, a.Send(context.Background(), []byte{0x1B, 0x40}))

	require.NoError(t, a.Disconnect())
	assert.False(t, a.IsConnected())

	// double disconnect should not error
	assert.NoError(t, a.Disconnect())
}

func TestDiscoverUSB(t *testing.T) {
	usbContext(t)

	devices, err := DiscoverUSB()
	require.NoError(t, err)
	if len(devices) == 0 {
		t.Skip("No USB printers found")
	}
	for _, d := range devices {
		assert.Equal(t, KindCable, d.Kind)
		_, err := ParseUSBAddress(d.Address)
		assert.NoError(t, err)
	}
}
