// Package probe holds the grillprobeE domain types and the decoder for
// its temperature notification frames.
package probe

// DeviceID is the opaque hardware address uniquely identifying a probe.
type DeviceID string

func (id DeviceID) String() string {
	return string(id)
}

// Info pairs a probe's hardware address with its display name.
type Info struct {
	Address DeviceID
	Name    string
}

// Reading is one decoded temperature sample. A nil field means the
// sample carried no usable value for that channel.
type Reading struct {
	Meat  *float64
	Grill *float64
}

// GATT identifiers of the grillprobeE data service.
const (
	DataServiceUUID        = "0000181a-0000-1000-8000-00805f9b34fb"
	TempCharacteristicUUID = "00002a6e-0000-1000-8000-00805f9b34fb"
)
