package probe

import (
	"encoding/binary"

	"github.com/teosibileau/grillgauge/internal/errors"
)

// Temperature frame layout. The probe pushes 7-byte notifications:
// bytes [2:4] carry the meat channel and [4:6] the grill channel as
// little-endian signed 16-bit integers; bytes [0:2] and [6] are
// header/footer and not interpreted here.
const (
	minFrameLength = 7
	meatOffset     = 2
	grillOffset    = 4
	tempDivisor    = 10.0
	tempBias       = 40.0
)

// Decode parses a raw notification frame into a Reading. It never
// panics on malformed input; frames shorter than the minimum length
// yield an error. Values are passed through without clamping, the
// sensor's bias and scale are the only conversion applied.
func Decode(raw []byte) (Reading, error) {
	if len(raw) < minFrameLength {
		return Reading{}, errors.WithData(ErrFrameTooShort, len(raw))
	}

	meat := toCelsius(int16(binary.LittleEndian.Uint16(raw[meatOffset : meatOffset+2])))
	grill := toCelsius(int16(binary.LittleEndian.Uint16(raw[grillOffset : grillOffset+2])))

	return Reading{Meat: &meat, Grill: &grill}, nil
}

func toCelsius(raw int16) float64 {
	return float64(raw)/tempDivisor - tempBias
}
