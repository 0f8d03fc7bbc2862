// Package refimage is a CPU reference implementation of the image
// quality metrics the GPU compare kernel produces. Tests use it to
// cross-check the wire-level result decode and the PSNR mapping
// against values computed directly from pixels.
package refimage

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/gogpu/texc"
)

// Channels is the number of channels compared, matching the GPU
// kernel's per-query accumulators.
const Channels = texc.ChannelsPerQuery

// MSE computes the per-channel mean squared error between two images
// of equal bounds. Channel values are normalized to [0, 1], so the
// result feeds texc.LossToPSNR with a maximum signal value of 1.
func MSE(a, b image.Image) ([Channels]float64, error) {
	var sums [Channels]float64

	if a.Bounds() != b.Bounds() {
		return sums, fmt.Errorf("refimage: bounds mismatch: %v vs %v", a.Bounds(), b.Bounds())
	}

	bounds := a.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			ar, ag, ab, aa := a.At(x, y).RGBA()
			br, bg, bb, ba := b.At(x, y).RGBA()

			// RGBA returns 16-bit premultiplied values.
			const scale = 1.0 / 0xffff
			d := [Channels]float64{
				(float64(ar) - float64(br)) * scale,
				(float64(ag) - float64(bg)) * scale,
				(float64(ab) - float64(bb)) * scale,
				(float64(aa) - float64(ba)) * scale,
			}
			for ch := 0; ch < Channels; ch++ {
				sums[ch] += d[ch] * d[ch]
			}
		}
	}

	pixels := float64(bounds.Dx() * bounds.Dy())
	if pixels == 0 {
		return sums, fmt.Errorf("refimage: empty bounds %v", bounds)
	}
	for ch := 0; ch < Channels; ch++ {
		sums[ch] /= pixels
	}
	return sums, nil
}

// PSNR derives the peak signal-to-noise ratio from per-channel MSE
// values, averaging the first channels values the way the GPU query
// pool does. Identical images report texc.MaxPSNR.
func PSNR(mse [Channels]float64, channels int) float64 {
	if channels <= 0 || channels > Channels {
		channels = Channels
	}
	var sum float64
	for ch := 0; ch < channels; ch++ {
		sum += mse[ch]
	}
	return texc.LossToPSNR(sum / float64(channels))
}

// Downscale resizes src to width x height with Catmull-Rom filtering,
// so a full-resolution reference can be compared against a mip level.
func Downscale(src image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
