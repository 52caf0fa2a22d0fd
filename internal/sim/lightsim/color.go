package lightsim

import (
	"image/color"
	"math"
)

// Energy holds one RGB triple of light energy, each channel in [0, MaxInt32].
type Energy [3]int32

const ln256 = 5.545177444479562

// LightDefinition is an emitter colour stored as log-scaled channel energy.
type LightDefinition struct {
	Color Energy `json:"color"`
}

func FromRGB(r, g, b uint8) LightDefinition {
	return LightDefinition{Color: Energy{scaleChannel(r, 1), scaleChannel(g, 1), scaleChannel(b, 1)}}
}

// FromRGBA weights every channel by alpha.
func FromRGBA(c color.RGBA) LightDefinition {
	alpha := float64(c.A) / 255
	return LightDefinition{Color: Energy{scaleChannel(c.R, alpha), scaleChannel(c.G, alpha), scaleChannel(c.B, alpha)}}
}

func scaleChannel(c uint8, alpha float64) int32 {
	scaled := math.Log(1+float64(c)) / ln256
	return int32(math.Round(scaled * alpha * math.MaxInt32))
}

// RGBA inverts FromRGBA. Alpha is recovered from the brightest channel.
func (l LightDefinition) RGBA() color.RGBA {
	maxC := int32(1)
	for _, c := range l.Color {
		if c > maxC {
			maxC = c
		}
	}
	alpha := clamp01(float64(maxC) / math.MaxInt32)
	inv := func(c int32) uint8 {
		if alpha == 0 {
			return 0
		}
		norm := float64(c) / (math.MaxInt32 * alpha)
		v := math.Exp(norm*ln256) - 1
		return uint8(math.Round(math.Max(0, math.Min(255, v))))
	}
	return color.RGBA{
		R: inv(l.Color[0]),
		G: inv(l.Color[1]),
		B: inv(l.Color[2]),
		A: uint8(math.Round(alpha * 255)),
	}
}

// ConvertColor maps simulated energy to a display colour on a log10 curve.
// Non-positive channels are black; alpha is always opaque.
func ConvertColor(e Energy) color.RGBA {
	var out [3]uint8
	for i, v := range e {
		if v <= 0 {
			continue
		}
		norm := float64(v) / math.MaxInt32
		out[i] = uint8(math.Round(math.Log10(norm*9+1) * 255))
	}
	return color.RGBA{R: out[0], G: out[1], B: out[2], A: 255}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
