// Package resample implements the deterministic sample-rate conversion
// and AGC pipeline. This is the repository's own "hard engineering"
// subject matter, not ambient plumbing, so it is hand-rolled on
// math/encoding/binary rather than delegated to a third-party resampler
// (see DESIGN.md).
package resample

import (
	"encoding/binary"
	"math"

	"github.com/vtranser/captionstream/internal/sttsession"
)

const OutputSampleRate = 16000

// BytesToFloat32 converts a raw PCM byte buffer to float32 samples in
// [-1, 1] given the declared dtype. i16 little-endian is the default wire
// format; f32 little-endian is accepted directly.
func BytesToFloat32(buf []byte, dtype sttsession.Dtype) []float32 {
	switch dtype {
	case sttsession.DtypeF32:
		n := len(buf) / 4
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint32(buf[i*4:])
			out[i] = math.Float32frombits(bits)
		}
		return out
	default: // i16
		n := len(buf) / 2
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			v := int16(binary.LittleEndian.Uint16(buf[i*2:]))
			out[i] = float32(v) / 32768.0
		}
		return out
	}
}

// Resample converts samples at sourceRate to OutputSampleRate. Passthrough
// when already 16 kHz; polyphase low-pass decimation when sourceRate is an
// exact multiple of 16 kHz (e.g. 48k, 32k); linear interpolation otherwise
// (acceptable fallback).
func Resample(samples []float32, sourceRate int) []float32 {
	if sourceRate <= 0 || sourceRate == OutputSampleRate {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}
	if sourceRate%OutputSampleRate == 0 {
		factor := sourceRate / OutputSampleRate
		return polyphaseDecimate(samples, factor)
	}
	return linearInterpolate(samples, sourceRate, OutputSampleRate)
}

// polyphaseDecimate applies a simple moving-average low-pass (box filter
// over `factor` input samples) before picking every `factor`-th sample,
// which approximates a polyphase decimator's anti-aliasing role without
// requiring a designed FIR filter bank.
func polyphaseDecimate(samples []float32, factor int) []float32 {
	if factor <= 1 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}
	n := len(samples) / factor
	out := make([]float32, n)
	inv := float32(1.0) / float32(factor)
	for i := 0; i < n; i++ {
		var sum float32
		base := i * factor
		for j := 0; j < factor; j++ {
			sum += samples[base+j]
		}
		out[i] = sum * inv
	}
	return out
}

// linearInterpolate resamples by linear interpolation between neighboring
// source samples, for non-integer-ratio rates (e.g. 44.1k -> 16k).
func linearInterpolate(samples []float32, sourceRate, targetRate int) []float32 {
	if len(samples) == 0 {
		return nil
	}
	ratio := float64(sourceRate) / float64(targetRate)
	outLen := int(float64(len(samples)) / ratio)
	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)
		if idx+1 < len(samples) {
			out[i] = float32(float64(samples[idx])*(1-frac) + float64(samples[idx+1])*frac)
		} else {
			out[i] = samples[idx]
		}
	}
	return out
}

// AGC applies peak-based automatic gain control in place and returns the
// same slice: if the buffer's absolute peak p is in (1e-6, targetPeak),
// multiply by min(maxGain, targetPeak/p) and clip to [-1, 1]. NaN/Inf are
// sanitized; no gain is applied above target peak.
func AGC(samples []float32, targetPeak, maxGain float64) []float32 {
	if len(samples) == 0 {
		return samples
	}

	var peak float64
	for i, s := range samples {
		f := float64(s)
		if math.IsNaN(f) {
			samples[i] = 0
			continue
		}
		if math.IsInf(f, 1) {
			samples[i] = 1
			f = 1
		} else if math.IsInf(f, -1) {
			samples[i] = -1
			f = -1
		}
		if a := math.Abs(f); a > peak {
			peak = a
		}
	}

	if peak <= 1e-6 || peak >= targetPeak {
		clip(samples)
		return samples
	}

	gain := targetPeak / peak
	if gain > maxGain {
		gain = maxGain
	}
	for i, s := range samples {
		samples[i] = float32(float64(s) * gain)
	}
	clip(samples)
	return samples
}

func clip(samples []float32) {
	for i, s := range samples {
		if s > 1 {
			samples[i] = 1
		} else if s < -1 {
			samples[i] = -1
		}
	}
}

// Float32ToPCM16LE encodes float32 samples in [-1,1] as little-endian
// int16 bytes, the format the STT recorder is fed.
func Float32ToPCM16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		i16 := int16(v * 32767)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(i16))
	}
	return out
}
