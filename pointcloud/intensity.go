package pointcloud

// CALIPSO attenuated backscatter is stored in LAS intensity as
// (physical + 0.1) * 10000 so that negative near-zero readings survive the
// unsigned 16-bit encoding. The affine pair below must round-trip within the
// 1/10000 quantization step.
const (
	intensityScale = 10000.0
	intensityBias  = 0.1
)

// DecodeIntensity recovers the physical backscatter value from the raw LAS
// intensity encoding.
func DecodeIntensity(raw uint16) float64 {
	return float64(raw)/intensityScale - intensityBias
}

// EncodeIntensity stores a physical backscatter value into the LAS
// intensity encoding, clamping to the representable range.
func EncodeIntensity(physical float64) uint16 {
	v := (physical + intensityBias) * intensityScale
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return uint16(v + 0.5)
}
