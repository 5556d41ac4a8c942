package usb

import (
	"testing"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
)

func printerDesc() *gousb.DeviceDesc {
	return &gousb.DeviceDesc{
		Vendor:  0x04b8,
		Product: 0x0202,
		Configs: map[int]gousb.ConfigDesc{
			1: {
				Number: 1,
				Interfaces: []gousb.InterfaceDesc{
					{Number: 0, AltSettings: []gousb.InterfaceSetting{{Number: 0, Class: gousb.ClassVendorSpec}}},
					{Number: 1, AltSettings: []gousb.InterfaceSetting{{Number: 1, Alternate: 0, Class: gousb.ClassPrinter}}},
				},
			},
		},
	}
}

func TestIsPrinter(t *testing.T) {
	assert.False(t, IsPrinter(nil))
	assert.True(t, IsPrinter(printerDesc()))

	hid := &gousb.DeviceDesc{Configs: map[int]gousb.ConfigDesc{
		1: {Interfaces: []gousb.InterfaceDesc{{AltSettings: []gousb.InterfaceSetting{{Class: gousb.ClassHID}}}}},
	}}
	assert.False(t, IsPrinter(hid))
}

func TestPrinterInterface(t *testing.T) {
	num, alt, ok := printerInterface(printerDesc().Configs[1])
	assert.True(t, ok)
	assert.Equal(t, 1, num)
	assert.Equal(t, 0, alt)
}

func TestBulkOut(t *testing.T) {
	setting := gousb.InterfaceSetting{
		Endpoints: map[gousb.EndpointAddress]gousb.EndpointDesc{
			0x81: {Number: 1, Direction: gousb.EndpointDirectionIn, TransferType: gousb.TransferTypeBulk},
			0x03: {Number: 3, Direction: gousb.EndpointDirectionOut, TransferType: gousb.TransferTypeBulk},
			0x02: {Number: 2, Direction: gousb.EndpointDirectionOut, TransferType: gousb.TransferTypeBulk},
			0x04: {Number: 4, Direction: gousb.EndpointDirectionOut, TransferType: gousb.TransferTypeInterrupt},
		},
	}
	ep, ok := bulkOut(setting)
	assert.True(t, ok)
	assert.Equal(t, 2, ep)

	_, ok = bulkOut(gousb.InterfaceSetting{})
	assert.False(t, ok)
}

func TestName(t *testing.T) {
	assert.Equal(t, "usb:auto", (&Sink{}).Name())
	assert.Equal(t, "usb:04b8:0202", (&Sink{vid: 0x04b8, pid: 0x0202}).Name())
}
