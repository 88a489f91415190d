// Package colorcodec packs and unpacks the 24-bit integer vertex colors
// used on the wire. Unpacked colors are linear-light RGB floats.
package colorcodec

import "math"

// Pack encodes 8-bit channels as 0xRRGGBB with an opaque alpha byte, the
// same layout hosts use for ARGB integers.
func Pack(r, g, b uint8) int32 {
	return int32(uint32(0xff)<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b))
}

// Channels extracts the 8-bit red, green and blue channels.
func Channels(c int32) (r, g, b uint8) {
	return uint8((c >> 16) & 0xff), uint8((c >> 8) & 0xff), uint8(c & 0xff)
}

// SRGBToLinear applies the sRGB transfer function to one channel in [0,1].
func SRGBToLinear(x float64) float64 {
	switch {
	case x <= 0:
		return 0
	case x >= 1:
		return 1
	case x < 0.04045:
		return x / 12.92
	default:
		return math.Pow((x+0.055)/1.055, 2.4)
	}
}

// Unpack decodes packed colors into a flat RGB float list. With toLinear
// the channels are converted from sRGB to linear light.
func Unpack(colors []int32, toLinear bool) []float64 {
	out := make([]float64, len(colors)*3)
	for i, c := range colors {
		r, g, b := Channels(c)
		out[i*3] = float64(r) / 255
		out[i*3+1] = float64(g) / 255
		out[i*3+2] = float64(b) / 255
		if toLinear {
			out[i*3] = SRGBToLinear(out[i*3])
			out[i*3+1] = SRGBToLinear(out[i*3+1])
			out[i*3+2] = SRGBToLinear(out[i*3+2])
		}
	}
	return out
}

// UnpackLinear decodes wire colors, stored as numbers, into linear RGB.
// Values outside the int32 range wrap the way a JavaScript |0 does.
func UnpackLinear(colors []float64) []float64 {
	packed := make([]int32, len(colors))
	for i, c := range colors {
		packed[i] = int32(uint32(int64(c)))
	}
	return Unpack(packed, true)
}
