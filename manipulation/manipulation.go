// Package manipulation defines the manipulation-likelihood boundary. The
// estimator is an opaque bytes -> score function; only its probability output
// enters the pipeline.
package manipulation

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"
)

// Detector estimates the probability in [0,1] that an image was manipulated.
type Detector interface {
	Score(data []byte) (float64, error)
}

// elaQuality is the recompression quality used for error level analysis.
const elaQuality = 95

// ELADetector scores images by error level analysis: an image is recompressed
// at a fixed JPEG quality and compared against the original. Spliced or
// edited regions recompress differently from untouched ones, raising the
// normalized residual.
type ELADetector struct{}

// NewELADetector creates an error-level-analysis detector.
func NewELADetector() *ELADetector { return &ELADetector{} }

// Score runs ELA on full-resolution image bytes.
func (d *ELADetector) Score(data []byte) (float64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to decode image for manipulation analysis: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: elaQuality}); err != nil {
		return 0, fmt.Errorf("failed to recompress image: %w", err)
	}
	recompressed, err := jpeg.Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return 0, fmt.Errorf("failed to decode recompressed image: %w", err)
	}

	bounds := img.Bounds()
	var sum, peak float64
	var count int
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r1, g1, b1, _ := img.At(x, y).RGBA()
			r2, g2, b2, _ := recompressed.At(x, y).RGBA()
			d := math.Abs(float64(r1)-float64(r2)) +
				math.Abs(float64(g1)-float64(g2)) +
				math.Abs(float64(b1)-float64(b2))
			d /= 3 * 257.0 // back to 8-bit scale
			sum += d
			if d > peak {
				peak = d
			}
			count++
		}
	}
	if count == 0 || peak == 0 {
		return 0, nil
	}

	// Residuals normalized by the frame's own peak, as the classic ELA
	// heatmap does; a uniformly-compressed original lands near zero.
	score := (sum / float64(count)) / peak
	if score > 1 {
		score = 1
	}
	return score, nil
}

// FixedDetector always reports the same probability. Used in tests and as a
// stand-in when no forensic model is deployed.
type FixedDetector struct {
	Probability float64
}

// Score returns the fixed probability.
func (d *FixedDetector) Score([]byte) (float64, error) {
	return d.Probability, nil
}
