package pointcloud

import (
	"math"
	"testing"

	"go.viam.com/test"

	"github.com/calipsoviz/pointstream/spatial"
)

func TestPointBlockBasic(t *testing.T) {
	b := NewPointBlock(4)
	test.That(t, b.Len(), test.ShouldEqual, 0)

	b.Append(-75.5, 40.1, 12.3, 1234, 2, 1.4e9)
	b.Append(-75.6, 40.2, 8.0, 5678, 1, 1.4e9+1)
	test.That(t, b.Len(), test.ShouldEqual, 2)
	test.That(t, b.Validate(), test.ShouldBeNil)

	lon, lat, alt := b.Position(1)
	test.That(t, lon, test.ShouldAlmostEqual, -75.6, 1e-4)
	test.That(t, lat, test.ShouldAlmostEqual, 40.2, 1e-4)
	test.That(t, alt, test.ShouldAlmostEqual, 8.0, 1e-4)

	stats := b.Stats()
	test.That(t, stats.Points, test.ShouldEqual, 2)
	test.That(t, stats.MinGPSTime, test.ShouldEqual, 1.4e9)
	test.That(t, stats.MaxGPSTime, test.ShouldEqual, 1.4e9+1)
	test.That(t, stats.MinAlt, test.ShouldAlmostEqual, 8.0, 1e-4)
	test.That(t, stats.MaxAlt, test.ShouldAlmostEqual, 12.3, 1e-4)
}

func TestPointBlockValidate(t *testing.T) {
	b := NewPointBlock(1)
	b.Append(0, 0, 0, 0, 0, 0)
	b.Positions = b.Positions[:2]
	test.That(t, b.Validate(), test.ShouldNotBeNil)
}

func TestIntensityRoundTrip(t *testing.T) {
	// physical backscatter range is [-0.1, 3.3]; round trip must hold within
	// the 1/10000 quantization of the unsigned encoding
	for physical := -0.1; physical <= 3.3; physical += 0.0007 {
		raw := EncodeIntensity(physical)
		got := DecodeIntensity(raw)
		test.That(t, got, test.ShouldAlmostEqual, physical, 1.0/intensityScale)
	}

	test.That(t, EncodeIntensity(-5), test.ShouldEqual, uint16(0))
	test.That(t, DecodeIntensity(0), test.ShouldAlmostEqual, -0.1)
	test.That(t, EncodeIntensity(1e9), test.ShouldEqual, uint16(65535))
}

func TestFilterAccepts(t *testing.T) {
	var f Filter
	test.That(t, f.Accepts(-75, 40, 10, 1.4e9), test.ShouldBeTrue)

	// finiteness and geographic plausibility always apply
	test.That(t, f.Accepts(math.NaN(), 40, 10, 0), test.ShouldBeFalse)
	test.That(t, f.Accepts(-75, math.Inf(1), 10, 0), test.ShouldBeFalse)
	test.That(t, f.Accepts(-181, 40, 10, 0), test.ShouldBeFalse)
	test.That(t, f.Accepts(-75, 91, 10, 0), test.ShouldBeFalse)

	bounds, err := spatial.NewGeoBounds(-80, -70, 35, 45, 0, 20)
	test.That(t, err, test.ShouldBeNil)
	f.Bounds = bounds
	f.BoundsEnabled = true
	test.That(t, f.Accepts(-75, 40, 10, 0), test.ShouldBeTrue)
	test.That(t, f.Accepts(-60, 40, 10, 0), test.ShouldBeFalse)

	f.Height = spatial.Interval{Enabled: true, Min: 5, Max: 15}
	test.That(t, f.Accepts(-75, 40, 10, 0), test.ShouldBeTrue)
	test.That(t, f.Accepts(-75, 40, 2, 0), test.ShouldBeFalse)

	f.Time = spatial.Interval{Enabled: true, Min: 100, Max: 200}
	test.That(t, f.Accepts(-75, 40, 10, 150), test.ShouldBeTrue)
	test.That(t, f.Accepts(-75, 40, 10, 250), test.ShouldBeFalse)
}

func TestFilterPolygon(t *testing.T) {
	square, err := spatial.NewPolygon([]spatial.Vertex{{Lon: 0, Lat: 0}, {Lon: 0, Lat: 1}, {Lon: 1, Lat: 1}, {Lon: 1, Lat: 0}})
	test.That(t, err, test.ShouldBeNil)

	f := Filter{AOI: square}
	test.That(t, f.Accepts(0.5, 0.5, 10, 0), test.ShouldBeTrue)
	test.That(t, f.Accepts(2, 2, 10, 0), test.ShouldBeFalse)
}

func TestFilterFingerprint(t *testing.T) {
	var a, b Filter
	test.That(t, a.Fingerprint(), test.ShouldEqual, b.Fingerprint())

	b.Height = spatial.Interval{Enabled: true, Min: 0, Max: 10}
	test.That(t, a.Fingerprint(), test.ShouldNotEqual, b.Fingerprint())

	c := b
	test.That(t, b.Fingerprint(), test.ShouldEqual, c.Fingerprint())
}

func TestMergeSorted(t *testing.T) {
	b1 := NewPointBlock(2)
	b1.Append(1, 1, 1, 10, 0, 300)
	b1.Append(2, 2, 2, 20, 0, 100)

	b2 := NewPointBlock(2)
	b2.Append(3, 3, 3, 30, 0, 200)
	b2.Append(4, 4, 4, 40, 0, 50)

	merged := MergeSorted([]*PointBlock{b1, nil, b2})
	test.That(t, merged.Len(), test.ShouldEqual, 4)
	test.That(t, merged.Validate(), test.ShouldBeNil)
	test.That(t, merged.GPSTime, test.ShouldResemble, []float64{50, 100, 200, 300})

	// arrays stay in lockstep through the permutation
	test.That(t, merged.Intensity, test.ShouldResemble, []uint16{40, 20, 30, 10})
	lon, _, _ := merged.Position(0)
	test.That(t, lon, test.ShouldEqual, float32(4))

	// first/last records carry the global extremes
	stats := merged.Stats()
	test.That(t, merged.GPSTime[0], test.ShouldEqual, stats.MinGPSTime)
	test.That(t, merged.GPSTime[merged.Len()-1], test.ShouldEqual, stats.MaxGPSTime)
}

func TestSubsample(t *testing.T) {
	b := NewPointBlock(10)
	for i := 0; i < 10; i++ {
		b.Append(float32(i), 0, 0, uint16(i), 0, float64(i))
	}

	test.That(t, b.Subsample(1), test.ShouldEqual, b)

	s := b.Subsample(3)
	test.That(t, s.Len(), test.ShouldEqual, 4)
	test.That(t, s.GPSTime, test.ShouldResemble, []float64{0, 3, 6, 9})
}
