package imageproc

import (
	"bytes"
	"image"
	"math"

	"github.com/apex/log"
	"golang.org/x/image/draw"
)

// comparisonSize is the common resolution both images are resized to before
// comparison, so differing source resolutions never bias the metrics.
const comparisonSize = 256

// visualChangeThreshold on the normalized pixel difference above which the
// pair is considered visually changed.
const visualChangeThreshold = 0.1

// SimilarityMetrics describes how alike two images are.
type SimilarityMetrics struct {
	SSIM          float64 `json:"ssim"`
	PixelDiffNorm float64 `json:"pixel_diff_norm"`
	VisualChange  bool    `json:"visual_change"`
}

// Similarity computes structural similarity (on grayscale) and normalized
// mean pixel difference between two images at a fixed 256x256 resolution.
// Any decode failure yields the conservative worst case (SSIM 0, full pixel
// difference) so unreadable evidence scores as suspicious, not neutral.
func Similarity(imgA, imgB []byte) SimilarityMetrics {
	worst := SimilarityMetrics{SSIM: 0.0, PixelDiffNorm: 1.0, VisualChange: true}

	a, _, err := image.Decode(bytes.NewReader(imgA))
	if err != nil {
		log.Errorf("failed to decode first image for similarity: %v", err)
		return worst
	}
	b, _, err := image.Decode(bytes.NewReader(imgB))
	if err != nil {
		log.Errorf("failed to decode second image for similarity: %v", err)
		return worst
	}

	ra := resizeRGBA(a, comparisonSize, comparisonSize)
	rb := resizeRGBA(b, comparisonSize, comparisonSize)

	ga := grayscaleResize(a, comparisonSize, comparisonSize)
	gb := grayscaleResize(b, comparisonSize, comparisonSize)

	diff := meanPixelDiff(ra, rb)

	return SimilarityMetrics{
		SSIM:          ssim(ga, gb),
		PixelDiffNorm: diff,
		VisualChange:  diff > visualChangeThreshold,
	}
}

func resizeRGBA(img image.Image, w, h int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(out, out.Bounds(), img, img.Bounds(), draw.Over, nil)
	return out
}

// meanPixelDiff is the mean absolute per-channel difference over RGB,
// normalized to [0,1].
func meanPixelDiff(a, b *image.RGBA) float64 {
	bounds := a.Bounds()
	var sum float64
	var count int
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			pa := a.RGBAAt(x, y)
			pb := b.RGBAAt(x, y)
			sum += math.Abs(float64(pa.R)-float64(pb.R)) +
				math.Abs(float64(pa.G)-float64(pb.G)) +
				math.Abs(float64(pa.B)-float64(pb.B))
			count += 3
		}
	}
	if count == 0 {
		return 1.0
	}
	return sum / float64(count) / 255.0
}

// ssim computes a global structural similarity index over two equal-length
// grayscale planes with 8-bit dynamic range.
func ssim(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	n := float64(len(a))
	var muA, muB float64
	for i := range a {
		muA += a[i]
		muB += b[i]
	}
	muA /= n
	muB /= n

	var varA, varB, cov float64
	for i := range a {
		da := a[i] - muA
		db := b[i] - muB
		varA += da * da
		varB += db * db
		cov += da * db
	}
	varA /= n - 1
	varB /= n - 1
	cov /= n - 1

	const (
		c1 = (0.01 * 255) * (0.01 * 255)
		c2 = (0.03 * 255) * (0.03 * 255)
	)

	num := (2*muA*muB + c1) * (2*cov + c2)
	den := (muA*muA + muB*muB + c1) * (varA + varB + c2)
	if den == 0 {
		return 0.0
	}
	s := num / den
	// Numeric clamp: global SSIM stays within [-1,1], and for our scoring
	// purposes negative correlation means no structural similarity at all.
	if s < 0 {
		return 0.0
	}
	if s > 1 {
		return 1.0
	}
	return s
}
