package resample

import (
	"math"
	"testing"

	"github.com/vtranser/captionstream/internal/sttsession"
)

func TestBytesToFloat32I16RoundTrip(t *testing.T) {
	pcm := Float32ToPCM16LE([]float32{0, 0.5, -0.5, 1, -1})
	out := BytesToFloat32(pcm, sttsession.DtypeI16)
	if len(out) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(out))
	}
	if math.Abs(float64(out[1])-0.5) > 0.001 {
		t.Fatalf("expected ~0.5, got %v", out[1])
	}
}

func TestResamplePassthrough(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out := Resample(in, 16000)
	if len(out) != len(in) {
		t.Fatalf("passthrough should not change length")
	}
}

func TestResample48kTo16kDecimatesByThree(t *testing.T) {
	in := make([]float32, 48000) // 1 second at 48k
	out := Resample(in, 48000)
	if len(out) != 16000 {
		t.Fatalf("expected 16000 samples, got %d", len(out))
	}
}

func TestResample44100To16kLinearInterpolate(t *testing.T) {
	in := make([]float32, 44100)
	out := Resample(in, 44100)
	// allow rounding slack around the exact 16000 target
	if out == nil || len(out) < 15900 || len(out) > 16100 {
		t.Fatalf("expected ~16000 samples, got %d", len(out))
	}
}

func TestAGCBoostsQuietSignal(t *testing.T) {
	in := []float32{0.01, -0.01, 0.005}
	out := AGC(in, 0.89, 12)
	peak := float32(0)
	for _, s := range out {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	if peak < 0.1 {
		t.Fatalf("expected boosted peak, got %v", peak)
	}
}

func TestAGCDoesNotBoostAboveTarget(t *testing.T) {
	in := []float32{0.95, -0.95}
	out := AGC(in, 0.89, 12)
	if out[0] != 0.95 {
		t.Fatalf("expected no gain applied above target peak, got %v", out[0])
	}
}

func TestAGCClipsToUnitRange(t *testing.T) {
	in := []float32{0.1}
	out := AGC(in, 0.89, 100)
	if out[0] > 1 || out[0] < -1 {
		t.Fatalf("expected clipped output, got %v", out[0])
	}
}

func TestAGCSanitizesNaNAndInf(t *testing.T) {
	in := []float32{float32(math.NaN()), float32(math.Inf(1)), float32(math.Inf(-1))}
	out := AGC(in, 0.89, 12)
	if out[0] != 0 {
		t.Fatalf("NaN should sanitize to 0, got %v", out[0])
	}
	if out[1] != 1 {
		t.Fatalf("+Inf should sanitize to 1, got %v", out[1])
	}
	if out[2] != -1 {
		t.Fatalf("-Inf should sanitize to -1, got %v", out[2])
	}
}

func TestAGCSkipsSilence(t *testing.T) {
	in := []float32{0, 0, 0}
	out := AGC(in, 0.89, 12)
	for _, s := range out {
		if s != 0 {
			t.Fatalf("silence should remain silent, got %v", s)
		}
	}
}
