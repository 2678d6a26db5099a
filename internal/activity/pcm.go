package activity

import "math"

// FrameFunc returns the most recent PCM frame of a stream. ok is false once
// the stream is stopped.
type FrameFunc func() (frame []int16, ok bool)

// PCMSource derives raw levels from 16-bit PCM frames by normalized RMS
// energy.
type PCMSource struct {
	frame FrameFunc
}

func NewPCMSource(frame FrameFunc) *PCMSource {
	return &PCMSource{frame: frame}
}

func (s *PCMSource) Sample() (float64, bool) {
	frame, ok := s.frame()
	if !ok {
		return 0, false
	}

	if len(frame) == 0 {
		return 0, true
	}

	var energy float64
	for _, v := range frame {
		energy += float64(v) * float64(v)
	}

	rms := math.Sqrt(energy/float64(len(frame))) / math.MaxInt16
	if rms > 1 {
		rms = 1
	}

	return rms, true
}
