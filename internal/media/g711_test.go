package media

import (
	"math"
	"testing"
)

func TestULawRoundTripAccuracy(t *testing.T) {
	samples := []int16{0, 1, -1, 100, -100, 1000, -1000, 8000, -8000, 32000, -32000, math.MaxInt16, math.MinInt16 + 1}

	encoded := ULawEncode(samples)
	decoded := ULawDecode(encoded)

	for i, want := range samples {
		got := decoded[i]

		// mu-law квантование: ошибка растет с амплитудой, но ограничена
		// шагом сегмента.
		diff := math.Abs(float64(got) - float64(want))
		limit := math.Max(16, math.Abs(float64(want))/16)

		if diff > limit {
			t.Errorf("sample %d: %d decoded as %d, error %f exceeds %f", i, want, got, diff, limit)
		}
	}
}

func TestULawSilenceEncodesCompactly(t *testing.T) {
	encoded := ULawEncode(make([]int16, 160))

	for i, b := range encoded {
		if b != 0xFF {
			t.Fatalf("byte %d: silence should encode as 0xFF, got %#x", i, b)
		}
	}
}

func TestULawLevel(t *testing.T) {
	loud := make([]int16, 160)
	for i := range loud {
		if i%2 == 0 {
			loud[i] = 30000
		} else {
			loud[i] = -30000
		}
	}

	loudLevel := ULawLevel(ULawEncode(loud))
	quietLevel := ULawLevel(ULawEncode(make([]int16, 160)))

	if loudLevel <= quietLevel {
		t.Errorf("loud payload level %f should exceed silence level %f", loudLevel, quietLevel)
	}

	if loudLevel < 0.8 || loudLevel > 1 {
		t.Errorf("near full-scale square wave should be close to 1, got %f", loudLevel)
	}

	if quietLevel > 0.01 {
		t.Errorf("silence level should be near 0, got %f", quietLevel)
	}
}

func TestULawLevelEmptyPayload(t *testing.T) {
	if got := ULawLevel(nil); got != 0 {
		t.Errorf("empty payload should give 0, got %f", got)
	}
}
