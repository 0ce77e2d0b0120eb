package colormap

import (
	"math"
	"testing"

	"go.viam.com/test"

	"github.com/calipsoviz/pointstream/pointcloud"
)

func TestMapEndpointsAndClamping(t *testing.T) {
	low := Map(0, 0, 10, RampGrayscale)
	high := Map(10, 0, 10, RampGrayscale)
	test.That(t, low, test.ShouldResemble, RGB{0, 0, 0})
	test.That(t, high, test.ShouldResemble, RGB{255, 255, 255})

	test.That(t, Map(-5, 0, 10, RampGrayscale), test.ShouldResemble, low)
	test.That(t, Map(50, 0, 10, RampGrayscale), test.ShouldResemble, high)

	mid := Map(5, 0, 10, RampGrayscale)
	test.That(t, int(mid.R), test.ShouldBeBetweenOrEqual, 126, 130)
	test.That(t, mid.R, test.ShouldEqual, mid.G)
	test.That(t, mid.G, test.ShouldEqual, mid.B)
}

func TestMapDegenerateInputs(t *testing.T) {
	stops := rampStops[RampTurbo]
	test.That(t, Map(5, 10, 10, RampTurbo), test.ShouldResemble, stops[0])
	test.That(t, Map(math.NaN(), 0, 10, RampTurbo), test.ShouldResemble, stops[0])
	// unknown ramp falls back to turbo
	test.That(t, Map(0, 0, 10, Ramp(99)), test.ShouldResemble, stops[0])
}

func TestForClassification(t *testing.T) {
	test.That(t, ForClassification(2), test.ShouldResemble, RGB{161, 82, 46})
	test.That(t, ForClassification(9), test.ShouldResemble, RGB{60, 104, 222})
	test.That(t, ForClassification(200), test.ShouldResemble, classificationDefault)
}

func TestApplyElevation(t *testing.T) {
	b := pointcloud.NewPointBlock(2)
	b.Append(-75, 40, 0, 0, 0, 1)
	b.Append(-75, 40, 30, 0, 0, 2)

	err := Apply(b, Options{Mode: ModeElevation, Ramp: RampGrayscale, Min: 0, Max: 30})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.Validate(), test.ShouldBeNil)
	test.That(t, b.Color[0], test.ShouldEqual, uint8(0))
	test.That(t, b.Color[3], test.ShouldEqual, uint8(255))
}

func TestApplyIntensityUsesPhysicalUnits(t *testing.T) {
	b := pointcloud.NewPointBlock(2)
	// raw 0 decodes to physical -0.1; raw encoding of 3.3 is the top
	b.Append(-75, 40, 10, 0, 0, 1)
	b.Append(-75, 40, 10, pointcloud.EncodeIntensity(3.3), 0, 2)

	err := Apply(b, Options{Mode: ModeIntensity, Ramp: RampGrayscale, Min: -0.1, Max: 3.3})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.Color[0], test.ShouldEqual, uint8(0))
	test.That(t, b.Color[3], test.ShouldEqual, uint8(255))
}

func TestApplyClassification(t *testing.T) {
	b := pointcloud.NewPointBlock(1)
	b.Append(-75, 40, 10, 0, 2, 1)

	err := Apply(b, Options{Mode: ModeClassification})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, []uint8{b.Color[0], b.Color[1], b.Color[2]}, test.ShouldResemble, []uint8{161, 82, 46})
}

func TestApplyRecomputesOnModeChange(t *testing.T) {
	b := pointcloud.NewPointBlock(1)
	b.Append(-75, 40, 30, 0, 2, 1)

	test.That(t, Apply(b, Options{Mode: ModeElevation, Ramp: RampGrayscale, Min: 0, Max: 30}), test.ShouldBeNil)
	elev := append([]uint8(nil), b.Color...)

	test.That(t, Apply(b, Options{Mode: ModeClassification}), test.ShouldBeNil)
	test.That(t, b.Color, test.ShouldNotResemble, elev)

	test.That(t, Apply(b, Options{Mode: ModeElevation, Ramp: RampGrayscale, Min: 0, Max: 30}), test.ShouldBeNil)
	test.That(t, b.Color, test.ShouldResemble, elev)
}

func TestModeString(t *testing.T) {
	test.That(t, ModeElevation.String(), test.ShouldEqual, "elevation")
	test.That(t, ModeIntensity.String(), test.ShouldEqual, "intensity")
	test.That(t, ModeClassification.String(), test.ShouldEqual, "classification")
}
