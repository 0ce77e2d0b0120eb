// Package lasfile parses LAS/COPC file headers and decodes point records.
// It owns the binary layout descriptors for both supported record variants
// (LAS Point Format 6 as used by COPC, and Potree's flat attribute layout)
// and the flat whole-file reader used when no octree hierarchy is
// available.
package lasfile

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/calipsoviz/pointstream/fetch"
	"github.com/calipsoviz/pointstream/spatial"
)

// Fixed header offsets from the LAS 1.4 layout.
const (
	headerSignature        = "LASF"
	offHeaderSize          = 94
	offPointDataOffset     = 96
	offVLRCount            = 100
	offPointFormat         = 104
	offRecordLength        = 105
	offLegacyPointCount    = 107
	offScale               = 131
	offOffset              = 155
	offBounds              = 179
	offExtendedPointCount  = 247
	minHeaderLen           = 227
	extendedHeaderLen      = 375
	vlrHeaderLen           = 54
	copcUserID             = "copc"
	copcInfoRecordID       = 1
	copcInfoPayloadLen     = 160
)

// Header carries the subset of the LAS header the streaming engine needs.
type Header struct {
	VersionMajor    uint8
	VersionMinor    uint8
	HeaderSize      uint16
	PointDataOffset uint32
	VLRCount        uint32
	PointFormat     uint8
	RecordLength    uint16
	PointCount      uint64
	Scale           r3.Vector
	Offset          r3.Vector
	// Bounds come from the header min/max fields; for corrupt COPC cubes
	// they are the trusted fallback.
	Bounds spatial.BoundingBox
}

// ParseHeader decodes a LAS header from the front of the file. The buffer
// must hold at least the legacy 227-byte header; the extended 1.4 point
// count is read when present.
func ParseHeader(buf []byte) (*Header, error) {
	if len(buf) < minHeaderLen {
		return nil, errors.Errorf("header too short: %d bytes", len(buf))
	}
	if !bytes.Equal(buf[:4], []byte(headerSignature)) {
		return nil, errors.Errorf("bad signature %q", buf[:4])
	}

	h := &Header{
		VersionMajor:    buf[24],
		VersionMinor:    buf[25],
		HeaderSize:      binary.LittleEndian.Uint16(buf[offHeaderSize:]),
		PointDataOffset: binary.LittleEndian.Uint32(buf[offPointDataOffset:]),
		VLRCount:        binary.LittleEndian.Uint32(buf[offVLRCount:]),
		PointFormat:     buf[offPointFormat] &^ 0xc0, // strip LAZ compression bits
		RecordLength:    binary.LittleEndian.Uint16(buf[offRecordLength:]),
		PointCount:      uint64(binary.LittleEndian.Uint32(buf[offLegacyPointCount:])),
	}

	h.Scale = readVector(buf[offScale:])
	h.Offset = readVector(buf[offOffset:])

	// LAS stores bounds interleaved: maxX, minX, maxY, minY, maxZ, minZ
	h.Bounds.Max.X = readF64(buf[offBounds:])
	h.Bounds.Min.X = readF64(buf[offBounds+8:])
	h.Bounds.Max.Y = readF64(buf[offBounds+16:])
	h.Bounds.Min.Y = readF64(buf[offBounds+24:])
	h.Bounds.Max.Z = readF64(buf[offBounds+32:])
	h.Bounds.Min.Z = readF64(buf[offBounds+40:])

	if h.PointCount == 0 && len(buf) >= offExtendedPointCount+8 {
		h.PointCount = binary.LittleEndian.Uint64(buf[offExtendedPointCount:])
	}
	if h.RecordLength == 0 {
		return nil, errors.New("zero point record length")
	}
	return h, nil
}

// CopcInfo is the COPC info VLR: the root cube and the location of the root
// hierarchy page.
type CopcInfo struct {
	Center         r3.Vector
	HalfSize       float64
	Spacing        float64
	RootHierOffset uint64
	RootHierSize   uint64
	GPSTimeMin     float64
	GPSTimeMax     float64
}

// Cube returns the octree root cube declared by the info block.
func (ci CopcInfo) Cube() spatial.BoundingBox {
	h := ci.HalfSize
	return spatial.BoundingBox{
		Min: r3.Vector{X: ci.Center.X - h, Y: ci.Center.Y - h, Z: ci.Center.Z - h},
		Max: r3.Vector{X: ci.Center.X + h, Y: ci.Center.Y + h, Z: ci.Center.Z + h},
	}
}

// ParseCopcInfo scans the VLR region (the bytes between the header and the
// point data) for the COPC info record.
func ParseCopcInfo(vlrRegion []byte, vlrCount uint32) (*CopcInfo, error) {
	pos := 0
	for i := uint32(0); i < vlrCount; i++ {
		if pos+vlrHeaderLen > len(vlrRegion) {
			return nil, errors.New("truncated VLR region")
		}
		userID := string(bytes.TrimRight(vlrRegion[pos+2:pos+18], "\x00"))
		recordID := binary.LittleEndian.Uint16(vlrRegion[pos+18:])
		recLen := int(binary.LittleEndian.Uint16(vlrRegion[pos+20:]))
		payload := pos + vlrHeaderLen
		if payload+recLen > len(vlrRegion) {
			return nil, errors.New("truncated VLR payload")
		}
		if userID == copcUserID && recordID == copcInfoRecordID {
			if recLen < copcInfoPayloadLen {
				return nil, errors.Errorf("copc info VLR too short: %d bytes", recLen)
			}
			p := vlrRegion[payload:]
			return &CopcInfo{
				Center:         readVector(p),
				HalfSize:       readF64(p[24:]),
				Spacing:        readF64(p[32:]),
				RootHierOffset: binary.LittleEndian.Uint64(p[40:]),
				RootHierSize:   binary.LittleEndian.Uint64(p[48:]),
				GPSTimeMin:     readF64(p[56:]),
				GPSTimeMax:     readF64(p[64:]),
			}, nil
		}
		pos = payload + recLen
	}
	return nil, errors.New("no copc info VLR found")
}

// ReadHeader fetches and parses the header plus the COPC info block through
// a range getter. The returned CopcInfo is nil for plain LAS/LAZ files.
func ReadHeader(ctx context.Context, getter fetch.RangeGetter) (*Header, *CopcInfo, error) {
	buf, err := getter.GetRange(ctx, 0, extendedHeaderLen)
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading file header")
	}
	h, err := ParseHeader(buf)
	if err != nil {
		return nil, nil, err
	}
	if h.VLRCount == 0 || uint32(h.HeaderSize) >= h.PointDataOffset {
		return h, nil, nil
	}
	vlrRegion, err := getter.GetRange(ctx, uint64(h.HeaderSize), uint64(h.PointDataOffset))
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading VLR region")
	}
	info, err := ParseCopcInfo(vlrRegion, h.VLRCount)
	if err != nil {
		// plain LAS has no info block; not an error for the caller
		return h, nil, nil
	}
	return h, info, nil
}

func readF64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func readVector(b []byte) r3.Vector {
	return r3.Vector{
		X: readF64(b),
		Y: readF64(b[8:]),
		Z: readF64(b[16:]),
	}
}
