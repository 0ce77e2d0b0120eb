package lasfile

import (
	"math"

	"github.com/pkg/errors"
)

// LayoutKind tags the binary record variant a node buffer is encoded with.
type LayoutKind uint8

const (
	// LayoutCopcFormat6 is the LAS Point Format 6 record used by
	// COPC/LAZ chunks (after decompression).
	LayoutCopcFormat6 = LayoutKind(iota)
	// LayoutPotreeFlat is a fixed-stride record whose field offsets come
	// from the Potree metadata attribute table.
	LayoutPotreeFlat
)

// Point Format 6 field offsets within a 30-byte record.
const (
	format6MinLength        = 30
	f6OffX                  = 0
	f6OffY                  = 4
	f6OffZ                  = 8
	f6OffIntensity          = 12
	f6OffClassification     = 16
	f6OffGPSTime            = 22
)

// RecordLayout describes how to pull the engine's attributes out of one
// fixed-stride point record. It is resolved once per source, from the
// declared point-data-record-format (COPC) or the metadata attribute table
// (Potree), then used for every node decode.
type RecordLayout struct {
	Kind   LayoutKind
	Stride int

	OffPosition       int
	OffIntensity      int
	OffClassification int
	OffGPSTime        int

	// HasIntensity etc. report whether the source declares the attribute;
	// missing attributes decode as zero.
	HasIntensity      bool
	HasClassification bool
	HasGPSTime        bool
}

// Format6Layout builds the layout for a LAS Point Format 6 record. Record
// lengths above 30 (format 7 RGB, extra bytes) only widen the stride.
func Format6Layout(recordLength int) (RecordLayout, error) {
	if recordLength < format6MinLength {
		return RecordLayout{}, errors.Errorf("record length %d below point format 6 minimum %d",
			recordLength, format6MinLength)
	}
	return RecordLayout{
		Kind:              LayoutCopcFormat6,
		Stride:            recordLength,
		OffPosition:       f6OffX,
		OffIntensity:      f6OffIntensity,
		OffClassification: f6OffClassification,
		OffGPSTime:        f6OffGPSTime,
		HasIntensity:      true,
		HasClassification: true,
		HasGPSTime:        true,
	}, nil
}

// GPS time plausibility window: TAI seconds over the satellite era. Values
// outside it indicate the record layout does not match the declared format.
const (
	gpsTimeMin = 1e6
	gpsTimeMax = 4e9
)

// PlausibleGPSTime reports whether v looks like a real TAI timestamp.
func PlausibleGPSTime(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= gpsTimeMin && v <= gpsTimeMax
}
