package activity

import (
	"context"
	"math"
	"testing"
	"time"
)

type stubSource struct {
	raw float64
	ok  bool
}

func (s *stubSource) Sample() (float64, bool) {
	return s.raw, s.ok
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "defaults", opts: Options{}},
		{name: "explicit values", opts: Options{Alpha: 0.5, Threshold: 0.2, Interval: time.Millisecond}},
		{name: "threshold too high", opts: Options{Threshold: 1.5}, wantErr: true},
		{name: "threshold negative", opts: Options{Threshold: -0.1}, wantErr: true},
		{name: "alpha too high", opts: Options{Alpha: 1}, wantErr: true},
		{name: "alpha negative", opts: Options{Alpha: -0.5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(&stubSource{ok: true}, tt.opts)

			if tt.wantErr && err == nil {
				t.Error("expected error")
			}

			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestProcessSmoothing(t *testing.T) {
	src := &stubSource{raw: 0.5, ok: true}

	d, err := New(src, Options{Alpha: 0.8, Threshold: 0.1})
	if err != nil {
		t.Fatal(err)
	}

	level, _, ok := d.Process()
	if !ok {
		t.Fatal("expected ok")
	}

	// level = 0*0.8 + 0.5*0.2
	if math.Abs(level-0.1) > 1e-9 {
		t.Errorf("expected level 0.1 after first tick, got %f", level)
	}

	level, _, _ = d.Process()
	if math.Abs(level-0.18) > 1e-9 {
		t.Errorf("expected level 0.18 after second tick, got %f", level)
	}
}

func TestProcessConvergesToConstantInput(t *testing.T) {
	src := &stubSource{raw: 0.7, ok: true}

	d, err := New(src, Options{})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 200; i++ {
		d.Process()
	}

	if level := d.Level(); math.Abs(level-0.7) > 1e-6 {
		t.Errorf("expected convergence to 0.7, got %f", level)
	}
}

func TestSpeakingFlagFollowsThreshold(t *testing.T) {
	src := &stubSource{raw: 0.5, ok: true}

	d, err := New(src, Options{Alpha: 0.8, Threshold: 0.15})
	if err != nil {
		t.Fatal(err)
	}

	if _, speaking, _ := d.Process(); speaking {
		t.Error("level 0.1 should be below threshold 0.15")
	}

	if _, speaking, _ := d.Process(); !speaking {
		t.Error("level 0.18 should exceed threshold 0.15")
	}

	// Вход пропал: уровень спадает и флаг снимается.
	src.raw = 0
	for i := 0; i < 50; i++ {
		d.Process()
	}

	if d.Speaking() {
		t.Error("speaking flag must drop after silence")
	}
}

func TestSetThresholdTakesEffectNextTick(t *testing.T) {
	src := &stubSource{raw: 0.5, ok: true}

	d, err := New(src, Options{Alpha: 0.1, Threshold: 0.9})
	if err != nil {
		t.Fatal(err)
	}

	// level = 0.5*0.9 = 0.45
	if _, speaking, _ := d.Process(); speaking {
		t.Error("0.45 is below threshold 0.9")
	}

	if err := d.SetThreshold(0.3); err != nil {
		t.Fatal(err)
	}

	if _, speaking, _ := d.Process(); !speaking {
		t.Error("the smoothed level should exceed the lowered threshold 0.3")
	}
}

func TestSetThresholdValidation(t *testing.T) {
	d, err := New(&stubSource{ok: true}, Options{})
	if err != nil {
		t.Fatal(err)
	}

	for _, v := range []float64{0, 1, -0.5, 2} {
		if err := d.SetThreshold(v); err == nil {
			t.Errorf("expected error for threshold %f", v)
		}
	}

	if got := d.Threshold(); got != DefaultThreshold {
		t.Errorf("rejected values must not change the threshold, got %f", got)
	}
}

func TestSourceStopZeroesState(t *testing.T) {
	src := &stubSource{raw: 0.9, ok: true}

	d, err := New(src, Options{Alpha: 0.1, Threshold: 0.1})
	if err != nil {
		t.Fatal(err)
	}

	d.Process()

	if !d.Speaking() {
		t.Fatal("precondition: speaking")
	}

	src.ok = false

	if _, _, ok := d.Process(); ok {
		t.Error("expected not-ok once the source stops")
	}

	if d.Level() != 0 || d.Speaking() {
		t.Error("stopped detector must report zero level and not speaking")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	src := &stubSource{raw: 0.5, ok: true}

	d, err := New(src, Options{Interval: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancel")
	}
}

func TestRunStopsWhenSourceStops(t *testing.T) {
	src := &stubSource{raw: 0.5, ok: false}

	d, err := New(src, Options{Interval: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after the source stopped")
	}
}

func TestCloseIdempotent(t *testing.T) {
	d, err := New(&stubSource{ok: true}, Options{})
	if err != nil {
		t.Fatal(err)
	}

	d.Close()
	d.Close()
}
