package texc

import (
	"encoding/binary"
	"math"
)

// Wire format of image-difference results.
//
// The compare kernel accumulates one squared-error sum per channel as
// an unsigned 32.32 fixed-point value in a 64-bit little-endian word:
// the high 32 bits are the integer part, the low 32 bits the fraction.
// Each query slot holds ChannelsPerQuery such words. This decode is
// kept device-free so it can be tested against known bit patterns.
const (
	// ChannelsPerQuery is the number of channel accumulators per query slot.
	ChannelsPerQuery = 4

	// BytesPerQuery is the size of one query slot in the results buffer.
	BytesPerQuery = ChannelsPerQuery * 8
)

// fixedPointScale converts 32.32 fixed point to floating point.
const fixedPointScale = 1.0 / (1 << 32)

// DecodeChannelSum decodes one raw 64-bit accumulator into a float.
func DecodeChannelSum(raw uint64) float64 {
	return float64(raw) * fixedPointScale
}

// decodeQuerySlot decodes the ChannelsPerQuery accumulators of one
// BytesPerQuery-sized slot.
func decodeQuerySlot(slot []byte) [ChannelsPerQuery]float64 {
	var out [ChannelsPerQuery]float64
	for ch := 0; ch < ChannelsPerQuery; ch++ {
		raw := binary.LittleEndian.Uint64(slot[ch*8:])
		out[ch] = DecodeChannelSum(raw)
	}
	return out
}

// minLoss is the floor applied before the logarithm in LossToPSNR.
// A zero or negative loss maps to the defined sentinel maximum of
// 120 dB instead of overflowing to +Inf.
const minLoss = 1e-12

// MaxPSNR is the sentinel PSNR returned for a loss of zero.
const MaxPSNR = 120.0

// LossToPSNR converts a normalized loss (MSE divided by the squared
// maximum signal value) to peak signal-to-noise ratio in decibels.
//
// The mapping is strictly decreasing for losses above the internal
// floor; losses at or below it clamp to MaxPSNR.
func LossToPSNR(loss float64) float64 {
	if loss < minLoss {
		loss = minLoss
	}
	return -10.0 * math.Log10(loss)
}
