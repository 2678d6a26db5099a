package media

// Sink plays one remote participant's audio. Gain is a playback-side
// adjustment only; it has no effect on what the remote hears and requires
// no renegotiation.
type Sink interface {
	SetGain(gain float64)
	Close() error
}

// SinkFactory builds a sink for a newly established remote stream.
type SinkFactory func(remoteID, username string) Sink

type nopSink struct{}

func (nopSink) SetGain(float64) {}
func (nopSink) Close() error    { return nil }

// NopSink discards playback. Used when no audio output is attached.
func NopSink() Sink {
	return nopSink{}
}
