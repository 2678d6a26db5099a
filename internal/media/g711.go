package media

import "math"

// G.711 mu-law codec, 8 kHz mono. 20ms frames are 160 bytes on the wire.

const (
	ulawBias = 0x84
	ulawClip = 32635
)

// ULawEncode encodes 16-bit PCM samples to mu-law bytes.
func ULawEncode(pcm []int16) []byte {
	out := make([]byte, len(pcm))
	for i, s := range pcm {
		out[i] = ulawEncodeSample(s)
	}

	return out
}

// ULawDecode decodes mu-law bytes to 16-bit PCM samples.
func ULawDecode(payload []byte) []int16 {
	out := make([]int16, len(payload))
	for i, b := range payload {
		out[i] = ulawDecodeSample(b)
	}

	return out
}

// ULawLevel computes the normalized RMS energy of a mu-law payload.
// Used as the level fallback for remote RTP streams.
func ULawLevel(payload []byte) float64 {
	if len(payload) == 0 {
		return 0
	}

	var energy float64
	for _, b := range payload {
		v := float64(ulawDecodeSample(b))
		energy += v * v
	}

	rms := math.Sqrt(energy/float64(len(payload))) / math.MaxInt16
	if rms > 1 {
		rms = 1
	}

	return rms
}

func ulawEncodeSample(s int16) byte {
	v := int32(s)

	var sign byte
	if v < 0 {
		v = -v
		sign = 0x80
	}

	if v > ulawClip {
		v = ulawClip
	}
	v += ulawBias

	exponent := byte(7)
	for mask := int32(0x4000); (v&mask) == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}

	mantissa := byte((v >> (exponent + 3)) & 0x0F)

	return ^(sign | exponent<<4 | mantissa)
}

func ulawDecodeSample(b byte) int16 {
	b = ^b

	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F

	v := ((int32(mantissa) << 3) + ulawBias) << exponent
	v -= ulawBias

	if sign != 0 {
		v = -v
	}

	return int16(v)
}
