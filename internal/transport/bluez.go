package transport

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/teosibileau/grillgauge/internal/logger"
	"tinygo.org/x/bluetooth"
)

const defaultConnectTimeout = 10 * time.Second

// Bluez talks to the host's BLE controller through BlueZ. It serves
// both as the Dialer handing out per-probe devices and as the
// Discoverer used at bootstrap and in scan mode.
type Bluez struct {
	adapter *bluetooth.Adapter

	mu      sync.Mutex
	devices map[string]*bluezDevice
}

// NewBluez enables the default adapter and returns it wrapped. Link
// drops are only reported by BlueZ through the adapter-wide connect
// handler, so the wrapper routes those events back to the per-probe
// devices it handed out.
func NewBluez() (*Bluez, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, NewError(KindDeviceUnavailable, "enable adapter", err)
	}

	b := &Bluez{adapter: adapter, devices: make(map[string]*bluezDevice)}
	adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		b.mu.Lock()
		dev := b.devices[strings.ToUpper(device.Address.String())]
		b.mu.Unlock()
		if dev == nil {
			return
		}
		dev.mu.Lock()
		dev.connected = connected
		dev.mu.Unlock()
		if !connected {
			logger.Debug().Str("device", device.Address.String()).Msg("link dropped")
		}
	})

	return b, nil
}

func (b *Bluez) Dial(address string) Device {
	dev := &bluezDevice{adapter: b.adapter, address: address}
	b.mu.Lock()
	b.devices[strings.ToUpper(address)] = dev
	b.mu.Unlock()
	return dev
}

// Discover scans until the timeout elapses and reports each device at
// most once. With a non-empty serviceFilter only devices advertising
// that service UUID are reported.
func (b *Bluez) Discover(ctx context.Context, timeout time.Duration, serviceFilter string) ([]DiscoveredDevice, error) {
	var filter bluetooth.UUID
	filtered := serviceFilter != ""
	if filtered {
		var err error
		filter, err = bluetooth.ParseUUID(serviceFilter)
		if err != nil {
			return nil, NewError(KindProtocol, "parse service filter", err)
		}
	}
	probeSvc, err := bluetooth.ParseUUID(probeServiceUUID)
	if err != nil {
		return nil, NewError(KindProtocol, "parse probe service uuid", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go func() {
		<-ctx.Done()
		if err := b.adapter.StopScan(); err != nil {
			logger.Debug().Err(err).Msg("stop scan")
		}
	}()

	var found []DiscoveredDevice
	seen := make(map[string]bool)
	err = b.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		addr := result.Address.String()
		if seen[addr] {
			return
		}
		if filtered && !result.HasServiceUUID(filter) {
			return
		}
		seen[addr] = true
		found = append(found, DiscoveredDevice{
			Address:      addr,
			Name:         result.LocalName(),
			RSSI:         result.RSSI,
			ProbeService: result.HasServiceUUID(probeSvc),
		})
	})
	if err != nil && ctx.Err() == nil {
		return nil, classify("scan", err)
	}

	return found, nil
}

// probeServiceUUID mirrors probe.DataServiceUUID; duplicated here to
// keep transport free of a probe dependency.
const probeServiceUUID = "0000181a-0000-1000-8000-00805f9b34fb"

// bluezDevice is the Device implementation for one probe. All methods
// are serialized by the owning session; the mutex only protects against
// teardown racing a late notification registration.
type bluezDevice struct {
	adapter *bluetooth.Adapter
	address string

	mu        sync.Mutex
	conn      *bluetooth.Device
	char      *bluetooth.DeviceCharacteristic
	connected bool
}

func (d *bluezDevice) Connect(ctx context.Context, target Target) error {
	addr := target.Address
	if addr == "" && target.Handle != nil {
		addr = target.Handle.Address
	}

	mac, err := bluetooth.ParseMAC(addr)
	if err != nil {
		return NewError(KindDeviceUnavailable, "parse address", err)
	}

	timeout := defaultConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	params := bluetooth.ConnectionParams{
		ConnectionTimeout: bluetooth.NewDuration(timeout),
	}

	conn, err := d.adapter.Connect(bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}, params)
	if err != nil {
		return classify("connect", err)
	}

	d.mu.Lock()
	d.conn = &conn
	d.connected = true
	d.mu.Unlock()

	return nil
}

func (d *bluezDevice) Subscribe(ctx context.Context, characteristic string, onFrame NotificationFunc) error {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	if conn == nil {
		return NewError(KindSubscription, "subscribe", errNotConnected)
	}

	// GATT discovery in the tinygo stack has no context support; run
	// it on the side so the caller's deadline holds.
	done := make(chan error, 1)
	go func() {
		done <- d.subscribe(conn, characteristic, onFrame)
	}()

	select {
	case <-ctx.Done():
		return NewError(KindTimeout, "subscribe", ctx.Err())
	case err := <-done:
		return err
	}
}

func (d *bluezDevice) subscribe(conn *bluetooth.Device, characteristic string, onFrame NotificationFunc) error {
	svcUUID, err := bluetooth.ParseUUID(probeServiceUUID)
	if err != nil {
		return NewError(KindProtocol, "parse service uuid", err)
	}
	charUUID, err := bluetooth.ParseUUID(characteristic)
	if err != nil {
		return NewError(KindProtocol, "parse characteristic uuid", err)
	}

	svcs, err := conn.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return NewError(KindSubscription, "discover services", err)
	}
	if len(svcs) == 0 {
		return NewError(KindProtocol, "discover services", errServiceMissing)
	}

	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil {
		return NewError(KindSubscription, "discover characteristics", err)
	}
	if len(chars) == 0 {
		return NewError(KindProtocol, "discover characteristics", errCharacteristicMissing)
	}

	char := chars[0]
	if err := char.EnableNotifications(func(buf []byte) {
		onFrame(buf)
	}); err != nil {
		return classify("enable notifications", err)
	}

	d.mu.Lock()
	d.char = &char
	d.mu.Unlock()

	return nil
}

func (d *bluezDevice) Unsubscribe(_ string) error {
	d.mu.Lock()
	char := d.char
	d.char = nil
	d.mu.Unlock()

	if char == nil {
		return nil
	}
	if err := char.EnableNotifications(nil); err != nil {
		return NewError(KindSubscription, "disable notifications", err)
	}
	return nil
}

func (d *bluezDevice) Disconnect() error {
	d.mu.Lock()
	conn := d.conn
	d.conn = nil
	d.char = nil
	d.connected = false
	d.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Disconnect(); err != nil {
		return classify("disconnect", err)
	}
	return nil
}

func (d *bluezDevice) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

var (
	errNotConnected          = NewError(KindDeviceUnavailable, "transport", nil)
	errServiceMissing        = NewError(KindProtocol, "data service not found", nil)
	errCharacteristicMissing = NewError(KindProtocol, "temperature characteristic not found", nil)
)

// classify maps BlueZ error strings onto the failure taxonomy. BlueZ
// reports errors as D-Bus error names plus free text, so substring
// matching is the only discriminator available.
func classify(op string, err error) *Error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return NewError(KindTimeout, op, err)
	case strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "le-connection-abort"):
		return NewError(KindDeviceUnavailable, op, err)
	case strings.Contains(msg, "authentication") || strings.Contains(msg, "not authorized") ||
		strings.Contains(msg, "permission"):
		return NewError(KindPermissionDenied, op, err)
	case strings.Contains(msg, "notify") || strings.Contains(msg, "notification"):
		return NewError(KindSubscription, op, err)
	default:
		return NewError(KindUnknown, op, err)
	}
}
