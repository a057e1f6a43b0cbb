// Package transport defines the radio collaborator contract consumed by
// device sessions, plus the BlueZ implementation of it.
package transport

import (
	"context"
	"time"
)

// NotificationFunc receives one raw notification frame. The slice is
// only valid for the duration of the call.
type NotificationFunc func(raw []byte)

// Device is one radio link to a single probe. A Device is exclusively
// owned by one session and never shared.
type Device interface {
	// Connect establishes the link to the given target. The context
	// deadline bounds the attempt.
	Connect(ctx context.Context, target Target) error

	// Subscribe registers onFrame for notifications on the given
	// characteristic. The context deadline bounds GATT discovery and
	// subscription setup.
	Subscribe(ctx context.Context, characteristic string, onFrame NotificationFunc) error

	// Unsubscribe drops the notification registration. Idempotent.
	Unsubscribe(characteristic string) error

	// Disconnect closes the link. Closing an already-closed link is
	// not an error.
	Disconnect() error

	IsConnected() bool
}

// Target identifies what to connect to. Handle, when present, is the
// best-known discovered reference; Address always carries the bare
// hardware address as fallback.
type Target struct {
	Address string
	Handle  *DiscoveredDevice
}

// DiscoveredDevice is one scan result.
type DiscoveredDevice struct {
	Address string
	Name    string
	RSSI    int16

	// ProbeService reports whether the advertisement carried the
	// probe data service UUID.
	ProbeService bool
}

// Dialer creates the per-probe Device owned by a session.
type Dialer interface {
	Dial(address string) Device
}

// Discoverer performs a one-shot scan. An empty serviceFilter returns
// every device seen; otherwise only devices advertising the given
// service UUID are reported.
type Discoverer interface {
	Discover(ctx context.Context, timeout time.Duration, serviceFilter string) ([]DiscoveredDevice, error)
}
